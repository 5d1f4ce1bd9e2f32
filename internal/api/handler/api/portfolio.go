package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/newthinker/equicurve/internal/api/middleware"
	"github.com/newthinker/equicurve/internal/api/response"
	"github.com/newthinker/equicurve/internal/commentary"
	"github.com/newthinker/equicurve/internal/core"
	"github.com/newthinker/equicurve/internal/metrics"
	"github.com/newthinker/equicurve/internal/notifier"
	"github.com/newthinker/equicurve/internal/plans"
	"github.com/newthinker/equicurve/internal/portfolio"
	"go.uber.org/zap"
)

// PortfolioHandler runs portfolios over stored batches.
type PortfolioHandler struct {
	service    *portfolio.Service
	limiter    *plans.Limiter
	writer     *commentary.Writer
	notifiers  *notifier.Registry
	metrics    *metrics.Registry
	runTimeout time.Duration
	logger     *zap.Logger
}

// NewPortfolioHandler creates a new portfolio handler.
func NewPortfolioHandler(
	service *portfolio.Service,
	limiter *plans.Limiter,
	writer *commentary.Writer,
	notifiers *notifier.Registry,
	reg *metrics.Registry,
	runTimeout time.Duration,
	logger *zap.Logger,
) *PortfolioHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PortfolioHandler{
		service:    service,
		limiter:    limiter,
		writer:     writer,
		notifiers:  notifiers,
		metrics:    reg,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

// Run validates the request, counts it against the plan and runs it.
func (h *PortfolioHandler) Run(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())

	var req portfolio.Request
	if err := decodeJSON(w, r, &req); err != nil {
		response.Fail(w, err)
		return
	}

	if err := h.limiter.AllowRun(r.Context(), user); err != nil {
		h.metrics.RecordPlanRejection(user.Plan, "runs")
		response.Fail(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.runTimeout)
	defer cancel()

	start := time.Now()
	result, err := h.service.Run(ctx, user, req)
	if err != nil {
		h.metrics.RecordPortfolioRun("failed", time.Since(start).Seconds())
		if response.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("portfolio run failed",
				zap.String("batch_id", req.BatchID), zap.Error(err))
		}
		response.Fail(w, err)
		return
	}
	h.metrics.RecordPortfolioRun("ok", time.Since(start).Seconds())

	h.notifiers.Publish(notifier.NewEvent(notifier.EventRunCompleted, user.ID, map[string]any{
		"runId":          result.RunID,
		"batchId":        result.BatchID,
		"currency":       result.Currency,
		"totalCapital":   result.TotalCapital,
		"totalReturnPct": result.KPIs.TotalReturnPct,
		"totalTrades":    result.KPIs.TotalTrades,
	}))

	response.JSON(w, http.StatusOK, result)
}

// List returns the persisted runs of a batch, newest first.
func (h *PortfolioHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())
	batchID := chi.URLParam(r, "batchId")

	runs, err := h.service.ListRuns(r.Context(), user, batchID)
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"batchId": batchID,
		"runs":    runs,
	})
}

// Commentary asks the configured LLM for a plain-language read of a run.
func (h *PortfolioHandler) Commentary(w http.ResponseWriter, r *http.Request) {
	if !h.writer.Enabled() {
		response.Fail(w, core.ErrLLMUnavailable)
		return
	}

	user := middleware.UserFrom(r.Context())
	run, err := h.service.GetRun(r.Context(), user, chi.URLParam(r, "runId"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	c, err := h.writer.Explain(r.Context(), run)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, c)
}
