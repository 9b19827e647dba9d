package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arcwatch/pulse"
)

const triggerColumns = `
	org, module, module_key, next_run_at, is_realtime, is_silenced,
	status, retries, data, created_at, start_time, end_time, lease_deadline`

// Push persists a new trigger.
func (s *Store) Push(ctx context.Context, t *pulse.Trigger) error {
	data, err := marshalPayload(t.Data)
	if err != nil {
		return err
	}

	createdAt := t.CreatedAt
	if createdAt == 0 {
		createdAt = pulse.NowMicro()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pulse_triggers (
			org, module, module_key, next_run_at, is_realtime, is_silenced,
			status, retries, data, created_at, start_time, end_time, lease_deadline
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13
		)`,
		t.Org, string(t.Module), t.ModuleKey, t.NextRunAt, t.IsRealtime, t.IsSilenced,
		string(t.Status), t.Retries, data, createdAt, t.StartTime, t.EndTime, t.LeaseDeadline,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return pulse.ErrTriggerExists
		}
		return fmt.Errorf("pulse/postgres: push trigger: %w", err)
	}
	return nil
}

// Pull atomically leases up to limit due triggers: waiting rows whose
// next_run_at has passed — excluding un-silenced realtime triggers — plus
// running rows whose lease expired. Leased rows are set to running with a
// fresh lease deadline, sized by module. Uses SELECT FOR UPDATE SKIP
// LOCKED so concurrent schedulers never double-lease.
func (s *Store) Pull(ctx context.Context, limit int, alertTimeout, reportTimeout time.Duration) ([]*pulse.Trigger, error) {
	now := pulse.NowMicro()

	rows, err := s.pool.Query(ctx, `
		WITH leased AS (
			UPDATE pulse_triggers
			SET status = 'running',
			    start_time = $1,
			    lease_deadline = $1 + CASE
			        WHEN module IN ('report', 'backfill') THEN $3::bigint
			        ELSE $2::bigint
			    END
			WHERE (org, module, module_key) IN (
				SELECT org, module, module_key FROM pulse_triggers
				WHERE (status = 'waiting'
				       AND next_run_at <= $1
				       AND (is_realtime = FALSE OR is_silenced = TRUE))
				   OR (status = 'running'
				       AND lease_deadline > 0
				       AND lease_deadline < $1)
				ORDER BY next_run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $4
			)
			RETURNING `+triggerColumns+`
		)
		SELECT * FROM leased ORDER BY next_run_at ASC`,
		now, alertTimeout.Microseconds(), reportTimeout.Microseconds(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("pulse/postgres: pull triggers: %w", err)
	}
	defer rows.Close()

	return collectTriggers(rows)
}

// Get retrieves a trigger.
func (s *Store) Get(ctx context.Context, org string, module pulse.Module, key string) (*pulse.Trigger, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+triggerColumns+`
		FROM pulse_triggers
		WHERE org = $1 AND module = $2 AND module_key = $3`,
		org, string(module), key,
	)

	t, err := scanTrigger(row)
	if err != nil {
		if isNoRows(err) {
			return nil, pulse.ErrTriggerNotFound
		}
		return nil, fmt.Errorf("pulse/postgres: get trigger: %w", err)
	}
	return t, nil
}

// Update persists the full trigger row. The reason is not stored; it is
// surfaced through logging and lifecycle hooks only.
func (s *Store) Update(ctx context.Context, t *pulse.Trigger, _ string) error {
	data, err := marshalPayload(t.Data)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE pulse_triggers SET
			next_run_at = $4, is_realtime = $5, is_silenced = $6,
			status = $7, retries = $8, data = $9,
			start_time = $10, end_time = $11, lease_deadline = $12
		WHERE org = $1 AND module = $2 AND module_key = $3`,
		t.Org, string(t.Module), t.ModuleKey,
		t.NextRunAt, t.IsRealtime, t.IsSilenced,
		string(t.Status), t.Retries, data,
		t.StartTime, t.EndTime, t.LeaseDeadline,
	)
	if err != nil {
		return fmt.Errorf("pulse/postgres: update trigger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pulse.ErrTriggerNotFound
	}
	return nil
}

// UpdateStatus updates status and retries, and the payload when data is
// non-nil.
func (s *Store) UpdateStatus(ctx context.Context, org string, module pulse.Module, key string, status pulse.Status, retries int, data *pulse.Payload) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if data != nil {
		var raw []byte
		raw, err = marshalPayload(data)
		if err != nil {
			return err
		}
		tag, err = s.pool.Exec(ctx, `
			UPDATE pulse_triggers
			SET status = $4, retries = $5, data = $6
			WHERE org = $1 AND module = $2 AND module_key = $3`,
			org, string(module), key, string(status), retries, raw,
		)
	} else {
		tag, err = s.pool.Exec(ctx, `
			UPDATE pulse_triggers
			SET status = $4, retries = $5
			WHERE org = $1 AND module = $2 AND module_key = $3`,
			org, string(module), key, string(status), retries,
		)
	}
	if err != nil {
		return fmt.Errorf("pulse/postgres: update trigger status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pulse.ErrTriggerNotFound
	}
	return nil
}

// Delete removes a trigger.
func (s *Store) Delete(ctx context.Context, org string, module pulse.Module, key string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM pulse_triggers
		WHERE org = $1 AND module = $2 AND module_key = $3`,
		org, string(module), key,
	)
	if err != nil {
		return fmt.Errorf("pulse/postgres: delete trigger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pulse.ErrTriggerNotFound
	}
	return nil
}

// ListByOrg returns the org's triggers, filtered by module when module is
// non-empty, ordered by creation time.
func (s *Store) ListByOrg(ctx context.Context, org string, module pulse.Module) ([]*pulse.Trigger, error) {
	query := `
		SELECT ` + triggerColumns + `
		FROM pulse_triggers
		WHERE org = $1`
	args := []any{org}

	if module != "" {
		query += ` AND module = $2`
		args = append(args, string(module))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pulse/postgres: list triggers: %w", err)
	}
	defer rows.Close()

	return collectTriggers(rows)
}

// PurgeCompletedBefore deletes completed trigger rows created before
// cutoff and returns the number removed.
func (s *Store) PurgeCompletedBefore(ctx context.Context, cutoff int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM pulse_triggers
		WHERE status = 'completed' AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("pulse/postgres: purge triggers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// marshalPayload encodes a payload for the JSONB data column. A nil
// payload is stored as SQL NULL.
func marshalPayload(p *pulse.Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("pulse/postgres: marshal payload: %w", err)
	}
	return raw, nil
}

// scanTrigger scans a single trigger row.
func scanTrigger(row pgx.Row) (*pulse.Trigger, error) {
	var (
		t         pulse.Trigger
		moduleStr string
		statusStr string
		raw       []byte
	)
	err := row.Scan(
		&t.Org, &moduleStr, &t.ModuleKey, &t.NextRunAt, &t.IsRealtime, &t.IsSilenced,
		&statusStr, &t.Retries, &raw, &t.CreatedAt, &t.StartTime, &t.EndTime, &t.LeaseDeadline,
	)
	if err != nil {
		return nil, err
	}

	t.Module = pulse.Module(moduleStr)
	t.Status = pulse.Status(statusStr)

	if len(raw) > 0 {
		var p pulse.Payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("pulse/postgres: unmarshal payload: %w", err)
		}
		t.Data = &p
	}
	return &t, nil
}

// collectTriggers drains rows into trigger values.
func collectTriggers(rows pgx.Rows) ([]*pulse.Trigger, error) {
	triggers := make([]*pulse.Trigger, 0)
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("pulse/postgres: scan trigger row: %w", err)
		}
		triggers = append(triggers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pulse/postgres: iterate trigger rows: %w", err)
	}
	return triggers, nil
}
