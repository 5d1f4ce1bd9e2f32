// internal/api/handler/api/backtest.go
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/newthinker/equicurve/internal/api/job"
	"github.com/newthinker/equicurve/internal/api/middleware"
	"github.com/newthinker/equicurve/internal/api/response"
	"github.com/newthinker/equicurve/internal/core"
	"go.uber.org/zap"
)

const jobTypeBacktest = "backtest"

// BacktestRequest is the request body for queueing a backtest.
type BacktestRequest struct {
	Strategy  string   `json:"strategy" validate:"required"`
	Symbols   []string `json:"symbols" validate:"required,min=1,dive,required"`
	StartDate string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string   `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// BacktestHandler handles backtest API requests.
type BacktestHandler struct {
	jobStore *job.Store
	logger   *zap.Logger
}

// NewBacktestHandler creates a new backtest handler.
func NewBacktestHandler(jobStore *job.Store, logger *zap.Logger) *BacktestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BacktestHandler{jobStore: jobStore, logger: logger}
}

// Create queues a new backtest job.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Fail(w, err)
		return
	}

	// Dates already passed the datetime check.
	start, _ := time.Parse("2006-01-02", req.StartDate)
	end, _ := time.Parse("2006-01-02", req.EndDate)
	if start.After(end) {
		response.Error(w, http.StatusBadRequest,
			core.WithMessage(core.ErrInvalidRequest, "start_date must not be after end_date"))
		return
	}

	user := middleware.UserFrom(r.Context())
	j := h.jobStore.Create(jobTypeBacktest, map[string]any{
		"strategy":   req.Strategy,
		"symbols":    req.Symbols,
		"start_date": req.StartDate,
		"end_date":   req.EndDate,
		"userId":     user.ID,
	})

	h.logger.Info("backtest queued",
		zap.String("backtest_id", j.ID),
		zap.String("strategy", req.Strategy),
		zap.Strings("symbols", req.Symbols))

	response.JSON(w, http.StatusAccepted, map[string]any{
		"backtest_id": j.ID,
		"status":      j.Status,
		"strategy":    req.Strategy,
	})
}

// Get returns the status of a backtest job.
func (h *BacktestHandler) Get(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobStore.Get(chi.URLParam(r, "id"))
	if err != nil || j.Type != jobTypeBacktest {
		response.Fail(w, core.ErrJobNotFound)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"backtest_id": j.ID,
		"status":      j.Status,
		"strategy":    j.Params["strategy"],
		"params":      j.Params,
		"created_at":  j.CreatedAt,
	})
}
