// Package repo persists users, batches, runs, usage and feedback.
package repo

import (
	"context"

	"github.com/newthinker/equicurve/internal/core"
)

// Repository defines persistence for everything except raw upload bytes.
type Repository interface {
	// UpsertUser creates the user or updates its plan when it changed.
	UpsertUser(ctx context.Context, id, plan string) (core.User, error)

	// CreateBatch stores a batch together with its files in one step.
	CreateBatch(ctx context.Context, batch core.Batch) error

	// GetBatch returns the batch with its files, or core.ErrBatchNotFound.
	GetBatch(ctx context.Context, id string) (*core.Batch, error)

	// SaveRun persists a portfolio run.
	SaveRun(ctx context.Context, run core.RunRecord) error

	// GetRun returns a run by ID, or core.ErrRunNotFound.
	GetRun(ctx context.Context, id string) (*core.RunRecord, error)

	// ListRuns returns the runs of a batch, newest first.
	ListRuns(ctx context.Context, batchID string) ([]core.RunRecord, error)

	// UpdateUsage applies fn to the user's usage for day under a lock. When
	// fn returns an error the usage is left unchanged.
	UpdateUsage(ctx context.Context, userID, day string, fn func(*core.Usage) error) (core.Usage, error)

	// SaveFeedback stores a feedback entry.
	SaveFeedback(ctx context.Context, fb core.Feedback) error

	// ListFeedback returns feedback entries, newest last, up to limit (0 = all).
	ListFeedback(ctx context.Context, limit int) ([]core.Feedback, error)
}
