package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/newthinker/equicurve/internal/api/job"
	"github.com/newthinker/equicurve/internal/api/middleware"
	"github.com/newthinker/equicurve/internal/api/response"
	"github.com/newthinker/equicurve/internal/core"
	"github.com/newthinker/equicurve/internal/metrics"
	"github.com/newthinker/equicurve/internal/stats"
	"github.com/newthinker/equicurve/internal/upload"
	"go.uber.org/zap"
)

const jobTypeStats = "stats"

// StatsHandler runs summary statistics over uploaded files as background jobs.
type StatsHandler struct {
	jobs         *job.Store
	metrics      *metrics.Registry
	riskFreeRate float64
	timeout      time.Duration
	maxBytes     int64
	logger       *zap.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(
	jobs *job.Store,
	reg *metrics.Registry,
	riskFreeRate float64,
	timeout time.Duration,
	maxBytes int64,
	logger *zap.Logger,
) *StatsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsHandler{
		jobs:         jobs,
		metrics:      reg,
		riskFreeRate: riskFreeRate,
		timeout:      timeout,
		maxBytes:     maxBytes,
		logger:       logger,
	}
}

// Create accepts multipart "files" and an optional riskFreeRate and starts a job.
func (h *StatsHandler) Create(w http.ResponseWriter, r *http.Request) {
	files, err := readFiles(w, r, "files", h.maxBytes)
	if err != nil {
		response.Fail(w, err)
		return
	}

	rf := h.riskFreeRate
	if v := r.FormValue("riskFreeRate"); v != "" {
		rf, err = strconv.ParseFloat(v, 64)
		if err != nil || !stats.ValidRate(rf) {
			response.Error(w, http.StatusBadRequest,
				core.WithMessage(core.ErrInvalidRequest, "riskFreeRate must be a finite number"))
			return
		}
	}

	inputs := make([]upload.File, len(files))
	names := make([]string, len(files))
	for i, f := range files {
		inputs[i] = upload.File{Name: f.Name, Data: f.Data}
		names[i] = f.Name
	}

	user := middleware.UserFrom(r.Context())
	j := h.jobs.Create(jobTypeStats, map[string]any{
		"files":        names,
		"riskFreeRate": rf,
		"userId":       user.ID,
	})
	h.metrics.SetJobsActive(jobTypeStats, h.jobs.Active(jobTypeStats))

	go h.run(j.ID, inputs, rf)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

// run processes the files and records progress on the job.
func (h *StatsHandler) run(jobID string, files []upload.File, riskFreeRate float64) {
	defer func() {
		h.metrics.SetJobsActive(jobTypeStats, h.jobs.Active(jobTypeStats))
	}()

	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	processor := upload.NewProcessor(riskFreeRate, h.logger)
	summaries, err := processor.Process(ctx, files, func(p upload.Progress) {
		h.jobs.Update(jobID, func(j *job.Job) {
			j.Progress = p.Overall()
		})
	})

	if err != nil {
		h.logger.Warn("stats job failed", zap.String("job_id", jobID), zap.Error(err))
		h.metrics.RecordStatsJob("failed")
		h.jobs.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Result = summaries
			j.Error = job.ErrorFrom(core.WrapError(core.ErrStatsFailed, err))
		})
		return
	}

	h.metrics.RecordStatsJob("completed")
	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusCompleted
		j.Progress = 1
		j.Result = summaries
	})
}
