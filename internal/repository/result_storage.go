package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"StreamCast/internal/domain/models"
	domrepo "StreamCast/internal/domain/repository"
	pkgch "StreamCast/pkg/clickhouse"
)

const resultColumns = "run_id, tick, ts, actual, anomaly, predictions, due, mean_error"

// ClickHouseResultStorage implements ResultStorage on the tick_results table.
type ClickHouseResultStorage struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
}

// NewClickHouseResultStorage stores into <database>.tick_results.
func NewClickHouseResultStorage(client *pkgch.Client) *ClickHouseResultStorage {
	return &ClickHouseResultStorage{
		client: client,
		db:     client.DB(),
		table:  pkgch.ResultsTable(client.Database()),
	}
}

// Init creates the database and table if missing.
func (s *ClickHouseResultStorage) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, pkgch.ResultsSchema(s.client.Database()))
}

func (s *ClickHouseResultStorage) Store(ctx context.Context, r *models.TickResult) error {
	return s.StoreBatch(ctx, []*models.TickResult{r})
}

// StoreBatch inserts rows in one transaction, the clickhouse-go batch form.
func (s *ClickHouseResultStorage) StoreBatch(ctx context.Context, results []*models.TickResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s)", s.table, resultColumns))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if r == nil || r.RunID == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			r.RunID,
			r.Tick,
			r.Timestamp,
			r.Actual,
			r.AnomalyScore,
			r.Predictions,
			r.Due,
			r.MeanError,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append tick %d: %w", r.Tick, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Query returns a run's results in [from, to], oldest tick first.
func (s *ClickHouseResultStorage) Query(ctx context.Context, runID string, from, to time.Time, limit int) ([]*models.TickResult, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s
WHERE run_id = ? AND ts >= ? AND ts <= ?
ORDER BY tick ASC
LIMIT ?`, resultColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, runID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := make([]*models.TickResult, 0, limit)
	for rows.Next() {
		var r models.TickResult
		if err := rows.Scan(&r.RunID, &r.Tick, &r.Timestamp, &r.Actual, &r.AnomalyScore, &r.Predictions, &r.Due, &r.MeanError); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *ClickHouseResultStorage) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close is a no-op; the client is owned by the caller.
func (s *ClickHouseResultStorage) Close() error {
	return nil
}

var _ domrepo.ResultStorage = (*ClickHouseResultStorage)(nil)
