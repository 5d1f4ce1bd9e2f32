package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/equicurve/internal/api/middleware"
	"github.com/newthinker/equicurve/internal/api/response"
	"github.com/newthinker/equicurve/internal/core"
	"github.com/newthinker/equicurve/internal/storage/repo"
	"go.uber.org/zap"
)

// FeedbackRequest is the request body for user feedback.
type FeedbackRequest struct {
	Message string `json:"message" validate:"required,max=5000"`
	Rating  *int   `json:"rating" validate:"omitempty,min=0,max=10"`
}

// FeedbackHandler records user feedback.
type FeedbackHandler struct {
	repo   repo.Repository
	logger *zap.Logger
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(r repo.Repository, logger *zap.Logger) *FeedbackHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedbackHandler{repo: r, logger: logger}
}

// Create stores one feedback entry.
func (h *FeedbackHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Fail(w, err)
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		response.Error(w, http.StatusBadRequest,
			core.WithMessage(core.ErrInvalidRequest, "message is required"))
		return
	}

	user := middleware.UserFrom(r.Context())
	fb := core.Feedback{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Message:   msg,
		Rating:    req.Rating,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.repo.SaveFeedback(r.Context(), fb); err != nil {
		h.logger.Error("failed to save feedback", zap.Error(err))
		response.Fail(w, err)
		return
	}

	h.logger.Info("feedback received", zap.String("user_id", user.ID), zap.String("feedback_id", fb.ID))
	response.JSON(w, http.StatusOK, map[string]string{"detail": "Feedback received"})
}
