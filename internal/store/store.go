// Package store keeps run attempt history in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/wlsplit/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps SQLite access for attempt history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return newStore(db)
}

func newStore(db *sql.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			game TEXT NOT NULL,
			category TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			finished INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			paused_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS attempt_splits (
			attempt_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			time_ms INTEGER,
			PRIMARY KEY (attempt_id, position)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(game, category, started_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertAttempt stores an attempt and its per-split times.
func (s *Store) InsertAttempt(ctx context.Context, a model.Attempt) (err error) {
	if a.ID == "" {
		return fmt.Errorf("attempt has no id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	finished := 0
	if a.Finished {
		finished = 1
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO attempts (id, game, category, started_at, ended_at, finished, elapsed_ms, paused_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Game,
		a.Category,
		a.StartedAt.UTC().Format(timeLayout),
		a.EndedAt.UTC().Format(timeLayout),
		finished,
		a.Elapsed.Milliseconds(),
		a.PausedTotal.Milliseconds(),
	)
	if err != nil {
		return err
	}

	if len(a.Splits) > 0 {
		stmt, perr := tx.PrepareContext(ctx,
			`INSERT INTO attempt_splits (attempt_id, position, name, time_ms) VALUES (?, ?, ?, ?)`)
		if perr != nil {
			err = perr
			return err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for i, sp := range a.Splits {
			var ms sql.NullInt64
			if sp.Time != nil {
				ms = sql.NullInt64{Int64: sp.Time.Milliseconds(), Valid: true}
			}
			if _, err = stmt.ExecContext(ctx, a.ID, i, sp.Name, ms); err != nil {
				return err
			}
		}
	}

	err = tx.Commit()
	return err
}

// ListAttempts returns attempts for a game/category ordered oldest first.
// Empty filters match everything; last > 0 keeps only the most recent ones.
func (s *Store) ListAttempts(ctx context.Context, cfg model.HistoryConfig) ([]model.AttemptAggregate, error) {
	clauses, args := filterClauses(cfg)
	query := fmt.Sprintf(`SELECT id, started_at, finished, elapsed_ms
		FROM attempts
		WHERE %s
		ORDER BY started_at DESC`, strings.Join(clauses, " AND "))
	if cfg.Last > 0 {
		query += " LIMIT ?"
		args = append(args, cfg.Last)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var attempts []model.AttemptAggregate
	for rows.Next() {
		var (
			agg       model.AttemptAggregate
			startedAt string
			finished  int
			elapsedMs int64
		)
		if err := rows.Scan(&agg.ID, &startedAt, &finished, &elapsedMs); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(timeLayout, startedAt)
		if err != nil {
			return nil, err
		}
		agg.StartedAt = parsed
		agg.Finished = finished != 0
		agg.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		attempts = append(attempts, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(attempts)-1; i < j; i, j = i+1, j-1 {
		attempts[i], attempts[j] = attempts[j], attempts[i]
	}
	return attempts, nil
}

// CountAttempts returns how many attempts were recorded for a game/category.
func (s *Store) CountAttempts(ctx context.Context, game, category string) (int, error) {
	clauses, args := filterClauses(model.HistoryConfig{Game: game, Category: category})
	query := fmt.Sprintf(`SELECT COUNT(*) FROM attempts WHERE %s`, strings.Join(clauses, " AND "))
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListSplitAggregates aggregates recorded split times across the given
// attempts, ordered by split position.
func (s *Store) ListSplitAggregates(ctx context.Context, attemptIDs []string) ([]model.SplitAggregate, error) {
	if len(attemptIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(attemptIDs))
	args := make([]any, len(attemptIDs))
	for i, id := range attemptIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT position, name, COUNT(time_ms) AS n,
		COALESCE(SUM(time_ms), 0) AS sum_ms, COALESCE(MIN(time_ms), 0) AS min_ms
		FROM attempt_splits
		WHERE attempt_id IN (%s)
		GROUP BY position, name
		ORDER BY position ASC, name ASC`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.SplitAggregate
	for rows.Next() {
		var agg model.SplitAggregate
		if err := rows.Scan(&agg.Position, &agg.Name, &agg.Count, &agg.SumMs, &agg.MinMs); err != nil {
			return nil, err
		}
		result = append(result, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func filterClauses(cfg model.HistoryConfig) ([]string, []any) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Game != "" {
		clauses = append(clauses, "game = ?")
		args = append(args, cfg.Game)
	}
	if cfg.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, cfg.Category)
	}
	return clauses, args
}
