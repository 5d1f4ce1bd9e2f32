// Package ingest validates uploaded trade lists and stores them as a batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newthinker/equicurve/internal/core"
	"github.com/newthinker/equicurve/internal/storage/object"
	"github.com/newthinker/equicurve/internal/storage/repo"
	"github.com/newthinker/equicurve/internal/tabular"
)

// Upload is one received file.
type Upload struct {
	Filename string
	Data     []byte
}

// FileReport summarises one stored file.
type FileReport struct {
	FileID      string   `json:"fileId"`
	Ticker      string   `json:"ticker"`
	Strategy    string   `json:"strategy"`
	ExportDate  string   `json:"exportDate"`
	Rows        int      `json:"rows"`
	RowsSkipped int      `json:"rowsSkipped"`
	Warnings    []string `json:"warnings"`
}

// Result is returned by Ingest.
type Result struct {
	BatchID string       `json:"batchId"`
	Files   []FileReport `json:"files"`
}

// Ingestor stores validated trade lists in object storage and records the batch.
type Ingestor struct {
	objects object.Store
	repo    repo.Repository
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an Ingestor.
func New(objects object.Store, r repo.Repository, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		objects: objects,
		repo:    r,
		logger:  logger,
		now:     time.Now,
	}
}

// Load parses stored or uploaded bytes into a normalised table.
func Load(name string, data []byte) (Table, error) {
	rows, err := tabular.Parse(name, data, nil)
	if err != nil {
		return Table{}, err
	}
	return NormalizeColumns(Table{Columns: columnsOf(rows), Rows: rows}), nil
}

// columnsOf collects every column name seen across rows.
func columnsOf(rows []core.Row) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, name := range tabular.Header(rows) {
		seen[name] = true
		cols = append(cols, name)
	}
	for _, row := range rows {
		for name := range row {
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
	}
	return cols
}

// Ingest validates every file and stores the batch. Any failure aborts the
// whole batch: objects already written are removed and nothing is recorded.
func (i *Ingestor) Ingest(ctx context.Context, user core.User, uploads []Upload) (*Result, error) {
	if len(uploads) == 0 {
		return nil, core.WithMessage(core.ErrInvalidUpload, "no files provided")
	}

	if err := i.objects.EnsureBucket(ctx); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}

	now := i.now().UTC()
	batch := core.Batch{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
	}
	result := &Result{BatchID: batch.ID, Files: make([]FileReport, 0, len(uploads))}

	var written []string
	abort := func(err error) (*Result, error) {
		i.cleanup(written)
		return nil, err
	}

	for _, up := range uploads {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}

		table, err := Load(up.Filename, up.Data)
		if err != nil {
			return abort(invalidFile(up.Filename, err))
		}
		if err := ValidateColumns(table); err != nil {
			var missing *MissingColumnsError
			e := invalidFile(up.Filename, err)
			if errors.As(err, &missing) {
				e.Details["missing"] = missing.Columns
			}
			return abort(e)
		}
		strategy, ticker, exportDate, err := ParseFilename(up.Filename)
		if err != nil {
			return abort(invalidFile(up.Filename, err))
		}
		if batch.StrategyName == "" {
			batch.StrategyName = strategy
		} else if strategy != batch.StrategyName {
			return abort(invalidFile(up.Filename, errors.New("all files in a batch must belong to the same strategy")))
		}

		rows, skipped := dedupe(table.Rows)
		warnings := []string{}
		if skipped > 0 {
			warnings = append(warnings, fmt.Sprintf("dropped %d duplicate rows", skipped))
		}

		key := fmt.Sprintf("%s/%s-%s", batch.ID, uuid.NewString(), up.Filename)
		if err := i.objects.Put(ctx, key, up.Data, contentType(up.Filename)); err != nil {
			return abort(core.WrapError(core.ErrStorageFailed, err))
		}
		written = append(written, key)

		record := core.FileRecord{
			ID:          uuid.NewString(),
			BatchID:     batch.ID,
			Ticker:      ticker,
			Strategy:    strategy,
			ExportDate:  exportDate,
			Filename:    up.Filename,
			ObjectKey:   key,
			RowsParsed:  len(rows),
			RowsSkipped: skipped,
			Warnings:    warnings,
			CreatedAt:   now,
		}
		batch.Files = append(batch.Files, record)
		result.Files = append(result.Files, FileReport{
			FileID:      record.ID,
			Ticker:      ticker,
			Strategy:    strategy,
			ExportDate:  exportDate.Format("2006-01-02"),
			Rows:        record.RowsParsed,
			RowsSkipped: skipped,
			Warnings:    warnings,
		})
	}

	if err := i.repo.CreateBatch(ctx, batch); err != nil {
		return abort(err)
	}

	i.logger.Info("batch ingested",
		zap.String("batch_id", batch.ID),
		zap.String("user_id", user.ID),
		zap.String("strategy", batch.StrategyName),
		zap.Int("files", len(batch.Files)),
	)
	return result, nil
}

// cleanup removes objects of an aborted batch, best effort.
func (i *Ingestor) cleanup(keys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := i.objects.Delete(ctx, key); err != nil {
			i.logger.Warn("failed to remove object of aborted batch",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}

func contentType(filename string) string {
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return object.ContentTypeCSV
}

func invalidFile(filename string, cause error) *core.Error {
	return core.WithMessage(core.ErrInvalidUpload, cause.Error()).
		WithDetails(map[string]any{"filename": filename})
}
