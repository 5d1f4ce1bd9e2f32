package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/newthinker/equicurve/internal/api/middleware"
	"github.com/newthinker/equicurve/internal/api/response"
	"github.com/newthinker/equicurve/internal/core"
	"github.com/newthinker/equicurve/internal/ingest"
	"github.com/newthinker/equicurve/internal/metrics"
	"github.com/newthinker/equicurve/internal/notifier"
	"github.com/newthinker/equicurve/internal/plans"
	"go.uber.org/zap"
)

// UploadHandler handles trade-list uploads and the client summary beacon.
type UploadHandler struct {
	ingestor  *ingest.Ingestor
	limiter   *plans.Limiter
	notifiers *notifier.Registry
	metrics   *metrics.Registry
	maxBytes  int64
	logger    *zap.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(
	ingestor *ingest.Ingestor,
	limiter *plans.Limiter,
	notifiers *notifier.Registry,
	reg *metrics.Registry,
	maxBytes int64,
	logger *zap.Logger,
) *UploadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadHandler{
		ingestor:  ingestor,
		limiter:   limiter,
		notifiers: notifiers,
		metrics:   reg,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// Create ingests the multipart "files" field into a new batch.
func (h *UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())

	files, err := readFiles(w, r, "files", h.maxBytes)
	if err != nil {
		response.Fail(w, err)
		return
	}

	if err := h.limiter.AllowUpload(r.Context(), user, len(files)); err != nil {
		h.metrics.RecordPlanRejection(user.Plan, "files")
		response.Fail(w, err)
		return
	}

	uploads := make([]ingest.Upload, len(files))
	for i, f := range files {
		uploads[i] = ingest.Upload{Filename: f.Name, Data: f.Data}
	}

	result, err := h.ingestor.Ingest(r.Context(), user, uploads)
	if err != nil {
		h.metrics.RecordBatch("failed", 0, 0)
		if response.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("batch ingest failed", zap.String("user_id", user.ID), zap.Error(err))
		}
		response.Fail(w, err)
		return
	}

	rows := 0
	tickers := make([]string, 0, len(result.Files))
	for _, f := range result.Files {
		rows += f.Rows
		tickers = append(tickers, f.Ticker)
	}
	h.metrics.RecordBatch("ok", len(result.Files), rows)

	h.notifiers.Publish(notifier.NewEvent(notifier.EventBatchIngested, user.ID, map[string]any{
		"batchId": result.BatchID,
		"files":   len(result.Files),
		"tickers": tickers,
		"rows":    rows,
	}))

	response.JSON(w, http.StatusOK, result)
}

// Summary accepts a client-side summary beacon. Any valid JSON is logged.
func (h *UploadHandler) Summary(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil || !json.Valid(body) {
		response.Error(w, http.StatusBadRequest,
			core.WithMessage(core.ErrInvalidRequest, "invalid summary payload").
				WithDetails(map[string]any{"status": "invalid"}))
		return
	}

	user := middleware.UserFrom(r.Context())
	h.logger.Info("summary_upload",
		zap.String("user_id", user.ID),
		zap.Any("payload", json.RawMessage(body)))

	response.JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
