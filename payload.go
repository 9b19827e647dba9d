package pulse

import (
	"encoding/json"
	"fmt"
)

// Payload is the module-discriminated trigger data. It is a closed sum
// type: exactly the variant matching Payload.Module is set, and the JSON
// form carries the discriminant so decoding is exhaustive — an unknown
// module is a decode error, not a silently dropped blob.
type Payload struct {
	Module Module

	Alert                *AlertState
	Report               *ReportState
	DerivedStream        *DerivedStreamState
	Backfill             *BackfillJob
	QueryRecommendations *QueryRecommendationsState
}

// AlertState is the dynamic scheduling state for an alert trigger.
type AlertState struct {
	// PeriodEndAt is the end of the last evaluated period, epoch micros.
	PeriodEndAt int64 `json:"period_end_at,omitempty"`
	// LastSatisfiedAt is when the alert condition last held, epoch micros.
	LastSatisfiedAt int64 `json:"last_satisfied_at,omitempty"`
}

// ReportState is the dynamic scheduling state for a report trigger.
type ReportState struct {
	// LastSentAt is when the report was last delivered, epoch micros.
	LastSentAt int64 `json:"last_sent_at,omitempty"`
}

// DerivedStreamState is the dynamic scheduling state for a derived-stream
// trigger.
type DerivedStreamState struct {
	// PeriodEndAt is the end of the last materialized period, epoch micros.
	PeriodEndAt int64 `json:"period_end_at,omitempty"`
}

// QueryRecommendationsState is the dynamic state for a query
// recommendations trigger.
type QueryRecommendationsState struct {
	// LastRunAt is when recommendations were last computed, epoch micros.
	LastRunAt int64 `json:"last_run_at,omitempty"`
}

// payloadWire is the serialized form of Payload.
type payloadWire struct {
	Module               Module                     `json:"module"`
	Alert                *AlertState                `json:"alert,omitempty"`
	Report               *ReportState               `json:"report,omitempty"`
	DerivedStream        *DerivedStreamState        `json:"derived_stream,omitempty"`
	Backfill             *BackfillJob               `json:"backfill,omitempty"`
	QueryRecommendations *QueryRecommendationsState `json:"query_recommendations,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p Payload) MarshalJSON() ([]byte, error) {
	if !p.Module.Valid() {
		return nil, fmt.Errorf("pulse: marshal payload: unknown module %q", p.Module)
	}
	w := payloadWire{Module: p.Module}
	switch p.Module {
	case ModuleAlert:
		w.Alert = p.Alert
	case ModuleReport:
		w.Report = p.Report
	case ModuleDerivedStream:
		w.DerivedStream = p.DerivedStream
	case ModuleBackfill:
		w.Backfill = p.Backfill
	case ModuleQueryRecommendations:
		w.QueryRecommendations = p.QueryRecommendations
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. Decoding is exhaustive over
// the module discriminant.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var w payloadWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("pulse: unmarshal payload: %w", err)
	}

	out := Payload{Module: w.Module}
	switch w.Module {
	case ModuleAlert:
		out.Alert = w.Alert
	case ModuleReport:
		out.Report = w.Report
	case ModuleDerivedStream:
		out.DerivedStream = w.DerivedStream
	case ModuleBackfill:
		out.Backfill = w.Backfill
	case ModuleQueryRecommendations:
		out.QueryRecommendations = w.QueryRecommendations
	default:
		return fmt.Errorf("pulse: unmarshal payload: unknown module %q", w.Module)
	}

	*p = out
	return nil
}

// BackfillPayload wraps a BackfillJob in a Payload.
func BackfillPayload(job *BackfillJob) *Payload {
	return &Payload{Module: ModuleBackfill, Backfill: job}
}
