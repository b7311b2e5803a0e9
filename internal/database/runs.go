package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/nao1215/sitemapper/internal/model"
)

// StartRun records the start of a crawler invocation and returns its ID.
func (cdb *CrawlDB) StartRun(ctx context.Context, root string) (string, error) {
	id := uuid.New().String()
	if _, err := cdb.db.ExecContext(ctx, `
	INSERT INTO runs (id, root, started_at, outcome) VALUES (?, ?, ?, ?)
	`, id, root, now(), model.RunOutcomeRunning); err != nil {
		return "", storageErr("start run", fmt.Errorf("failed to insert run: %w", err))
	}
	return id, nil
}

// FinishRun stores the totals and outcome of a run.
func (cdb *CrawlDB) FinishRun(ctx context.Context, id string, processed, discovered int, outcome string) error {
	res, err := cdb.db.ExecContext(ctx, `
	UPDATE runs SET finished_at = ?, processed = ?, discovered = ?, outcome = ?
	WHERE id = ?
	`, now(), processed, discovered, outcome, id)
	if err != nil {
		return storageErr("finish run", fmt.Errorf("failed to update run: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("finish run", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (cdb *CrawlDB) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := cdb.db.QueryContext(ctx, `
	SELECT id, root, started_at, finished_at, processed, discovered, outcome
	FROM runs
	ORDER BY started_at DESC, rowid DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, storageErr("list runs", fmt.Errorf("failed to query runs: %w", err))
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var (
			run       model.Run
			startedAt string
			finished  sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Root, &startedAt, &finished, &run.Processed, &run.Discovered, &run.Outcome); err != nil {
			return nil, storageErr("list runs", fmt.Errorf("failed to scan run: %w", err))
		}
		run.StartedAt = parseTimestamp(startedAt)
		if finished.Valid {
			run.FinishedAt = parseTimestamp(finished.String)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list runs", err)
	}
	return runs, nil
}
