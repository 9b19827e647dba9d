package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/backfill"
	"github.com/arcwatch/pulse/id"
)

// PutJobConfig inserts or replaces a backfill config row.
func (s *Store) PutJobConfig(ctx context.Context, cfg *backfill.JobConfig) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pulse_backfill_configs (
			id, org, pipeline_id, start_time, end_time,
			chunk_period_minutes, delay_between_chunks_secs,
			delete_before_backfill, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (org, id) DO UPDATE SET
			pipeline_id = EXCLUDED.pipeline_id,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			chunk_period_minutes = EXCLUDED.chunk_period_minutes,
			delay_between_chunks_secs = EXCLUDED.delay_between_chunks_secs,
			delete_before_backfill = EXCLUDED.delete_before_backfill`,
		cfg.ID.String(), cfg.Org, cfg.PipelineID, cfg.StartTime, cfg.EndTime,
		cfg.ChunkPeriodMinutes, cfg.DelayBetweenChunksSecs,
		cfg.DeleteBeforeBackfill, cfg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("pulse/postgres: put backfill config: %w", err)
	}
	return nil
}

// GetJobConfig retrieves a backfill config row.
func (s *Store) GetJobConfig(ctx context.Context, org string, jobID id.BackfillJobID) (*backfill.JobConfig, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			id, org, pipeline_id, start_time, end_time,
			chunk_period_minutes, delay_between_chunks_secs,
			delete_before_backfill, created_at
		FROM pulse_backfill_configs
		WHERE org = $1 AND id = $2`,
		org, jobID.String(),
	)

	cfg, err := scanJobConfig(row)
	if err != nil {
		if isNoRows(err) {
			return nil, pulse.ErrJobNotFound
		}
		return nil, fmt.Errorf("pulse/postgres: get backfill config: %w", err)
	}
	return cfg, nil
}

// DeleteJobConfig removes a backfill config row.
func (s *Store) DeleteJobConfig(ctx context.Context, org string, jobID id.BackfillJobID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM pulse_backfill_configs
		WHERE org = $1 AND id = $2`,
		org, jobID.String(),
	)
	if err != nil {
		return fmt.Errorf("pulse/postgres: delete backfill config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pulse.ErrJobNotFound
	}
	return nil
}

// scanJobConfig scans a single backfill config row.
func scanJobConfig(row pgx.Row) (*backfill.JobConfig, error) {
	var (
		cfg   backfill.JobConfig
		idStr string
	)
	err := row.Scan(
		&idStr, &cfg.Org, &cfg.PipelineID, &cfg.StartTime, &cfg.EndTime,
		&cfg.ChunkPeriodMinutes, &cfg.DelayBetweenChunksSecs,
		&cfg.DeleteBeforeBackfill, &cfg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseBackfillJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("pulse/postgres: parse backfill job id %q: %w", idStr, parseErr)
	}
	cfg.ID = parsedID

	return &cfg, nil
}
