package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// CreateRefreshJob persists a pending refresh job.
func (c *Client) CreateRefreshJob(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("refresh_job", $id) SET status = "pending", started_at = time::now()
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("create refresh job: %w", wrapQueryError(err))
	}
	return nil
}

// UpdateRefreshJob records status and progress.
func (c *Client) UpdateRefreshJob(ctx context.Context, id, status string, progress, total int) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("refresh_job", $id) SET status = $status, progress = $progress, total = $total
	`, map[string]any{"id": id, "status": status, "progress": progress, "total": total})
	if err != nil {
		return fmt.Errorf("update refresh job: %w", wrapQueryError(err))
	}
	return nil
}

// CompleteRefreshJob marks a job completed with its result.
func (c *Client) CompleteRefreshJob(ctx context.Context, id string, result map[string]any) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("refresh_job", $id) SET
			status = "completed", result = $result, completed_at = time::now()
	`, map[string]any{"id": id, "result": result})
	if err != nil {
		return fmt.Errorf("complete refresh job: %w", wrapQueryError(err))
	}
	return nil
}

// FailRefreshJob marks a job failed.
func (c *Client) FailRefreshJob(ctx context.Context, id, reason string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("refresh_job", $id) SET
			status = "failed", error = $error, completed_at = time::now()
	`, map[string]any{"id": id, "error": reason})
	if err != nil {
		return fmt.Errorf("fail refresh job: %w", wrapQueryError(err))
	}
	return nil
}

// GetRefreshJob loads one job.
func (c *Client) GetRefreshJob(ctx context.Context, id string) (*models.RefreshJob, error) {
	results, err := surrealdb.Query[[]models.RefreshJob](ctx, c.db, `
		SELECT * FROM type::record("refresh_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get refresh job: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("refresh job %s: %w", id, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// ListRefreshJobs returns the most recent jobs first.
func (c *Client) ListRefreshJobs(ctx context.Context, limit int) ([]models.RefreshJob, error) {
	results, err := surrealdb.Query[[]models.RefreshJob](ctx, c.db, `
		SELECT * FROM refresh_job ORDER BY started_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list refresh jobs: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []models.RefreshJob{}, nil
	}
	return (*results)[0].Result, nil
}

// FailInterruptedJobs marks jobs left pending or running by a previous
// process as failed. Returns the number of jobs updated.
func (c *Client) FailInterruptedJobs(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]models.RefreshJob](ctx, c.db, `
		UPDATE refresh_job SET
			status = "failed", error = "interrupted by restart", completed_at = time::now()
		WHERE status IN ["pending", "running"]
		RETURN AFTER
	`, nil)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted jobs: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}
