package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs
// migrations, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			range_start INTEGER NOT NULL,
			range_end INTEGER NOT NULL,
			final_equity REAL NOT NULL,
			total_return REAL NOT NULL,
			sharpe_ratio REAL NOT NULL,
			max_drawdown REAL NOT NULL,
			num_trades INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_strategy ON runs(strategy, started_at);

		CREATE TABLE IF NOT EXISTS walkforward_params (
			run_id INTEGER NOT NULL REFERENCES runs(id),
			window_idx INTEGER NOT NULL,
			train_start INTEGER NOT NULL,
			train_end INTEGER NOT NULL,
			name TEXT NOT NULL,
			value REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_wf_params_run ON walkforward_params(run_id, window_idx);
	`)
	return err
}

// SaveRun inserts a run summary and returns its assigned ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (strategy, started_at, range_start, range_end,
			final_equity, total_return, sharpe_ratio, max_drawdown, num_trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Strategy,
		run.StartedAt.UnixMilli(),
		run.RangeStart.UnixMilli(),
		run.RangeEnd.UnixMilli(),
		run.FinalEquity,
		run.TotalReturn,
		run.SharpeRatio,
		run.MaxDrawdown,
		run.NumTrades,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetRun retrieves a run summary by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, started_at, range_start, range_end,
			final_equity, total_return, sharpe_ratio, max_drawdown, num_trades
		FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs for a strategy, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, strategy string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, strategy, started_at, range_start, range_end,
			final_equity, total_return, sharpe_ratio, max_drawdown, num_trades
		FROM runs`
	args := []any{}
	if strategy != "" {
		query += ` WHERE strategy = ?`
		args = append(args, strategy)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// SaveParams inserts the optimized parameters of walk-forward windows.
func (s *SQLiteStore) SaveParams(ctx context.Context, params []ParamRecord) error {
	if len(params) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO walkforward_params (run_id, window_idx, train_start, train_end, name, value)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range params {
		if _, err := stmt.ExecContext(ctx,
			p.RunID, p.WindowIdx,
			p.TrainStart.UnixMilli(), p.TrainEnd.UnixMilli(),
			p.Name, p.Value,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListParams returns all parameters recorded for a run, in window order.
func (s *SQLiteStore) ListParams(ctx context.Context, runID int64) ([]ParamRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, window_idx, train_start, train_end, name, value
		FROM walkforward_params WHERE run_id = ?
		ORDER BY window_idx, name`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var params []ParamRecord
	for rows.Next() {
		var p ParamRecord
		var trainStart, trainEnd int64
		if err := rows.Scan(&p.RunID, &p.WindowIdx, &trainStart, &trainEnd, &p.Name, &p.Value); err != nil {
			return nil, err
		}
		p.TrainStart = time.UnixMilli(trainStart).UTC()
		p.TrainEnd = time.UnixMilli(trainEnd).UTC()
		params = append(params, p)
	}
	return params, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var r RunRecord
	var startedAt, rangeStart, rangeEnd int64
	if err := row.Scan(&r.ID, &r.Strategy, &startedAt, &rangeStart, &rangeEnd,
		&r.FinalEquity, &r.TotalReturn, &r.SharpeRatio, &r.MaxDrawdown, &r.NumTrades); err != nil {
		return nil, err
	}
	r.StartedAt = time.UnixMilli(startedAt).UTC()
	r.RangeStart = time.UnixMilli(rangeStart).UTC()
	r.RangeEnd = time.UnixMilli(rangeEnd).UTC()
	return &r, nil
}
