package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/patetisho1/rabotim-com-sub003/internal/domain"
	"github.com/patetisho1/rabotim-com-sub003/internal/service"
	apperrors "github.com/patetisho1/rabotim-com-sub003/pkg/errors"
	"github.com/patetisho1/rabotim-com-sub003/pkg/httputil"
	"github.com/patetisho1/rabotim-com-sub003/pkg/middleware"
	"github.com/patetisho1/rabotim-com-sub003/pkg/pagination"
)

// EvaluationService is the subset of service.EvaluationService the HTTP
// layer calls.
type EvaluationService interface {
	CanEvaluate(ctx context.Context, reviewerID, taskID string) (domain.EligibilityDecision, error)
	SubmitRating(ctx context.Context, in service.SubmitRatingInput) (*domain.Rating, error)
	SubmitReview(ctx context.Context, in service.SubmitReviewInput) (*domain.Review, error)
	GetEvaluationsForUser(ctx context.Context, userID string) (*service.UserEvaluations, error)
	GetSummary(ctx context.Context, userID string) (*domain.UserRatingSummary, error)
	ListReviews(ctx context.Context, userID string, params pagination.Params) (pagination.Result[domain.Review], error)
	GetEvaluation(ctx context.Context, id string) (*service.EvaluationView, error)
	RefreshSummary(ctx context.Context, userID string) (*domain.UserRatingSummary, error)
	MarkHelpful(ctx context.Context, reviewID string) (*domain.Review, error)
	ReportReview(ctx context.Context, reviewID string) (*domain.Review, error)
}

// EvaluationHandler handles HTTP requests for ratings, reviews and summaries.
type EvaluationHandler struct {
	service EvaluationService
	logger  *slog.Logger
}

// NewEvaluationHandler creates a new evaluation HTTP handler.
func NewEvaluationHandler(svc EvaluationService, logger *slog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// SubmitRatingRequest is the JSON request body for submitting a rating. The
// reviewer is always the authenticated caller.
type SubmitRatingRequest struct {
	TaskID         string `json:"task_id"`
	ReviewedUserID string `json:"reviewed_user_id"`
	Rating         int    `json:"rating"`
	Comment        string `json:"comment"`
	Category       string `json:"category,omitempty"`
}

// SubmitReviewRequest is the JSON request body for submitting a review.
type SubmitReviewRequest struct {
	TaskID         string   `json:"task_id"`
	ReviewedUserID string   `json:"reviewed_user_id"`
	Rating         int      `json:"rating"`
	Title          string   `json:"title"`
	Comment        string   `json:"comment"`
	Pros           []string `json:"pros"`
	Cons           []string `json:"cons"`
	Tags           []string `json:"tags"`
}

// --- Handlers ---

// SubmitRating handles POST /api/v1/ratings
func (h *EvaluationHandler) SubmitRating(w http.ResponseWriter, r *http.Request) {
	var req SubmitRatingRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	rating, err := h.service.SubmitRating(r.Context(), service.SubmitRatingInput{
		TaskID:         req.TaskID,
		ReviewerID:     middleware.UserIDFromContext(r.Context()),
		ReviewedUserID: req.ReviewedUserID,
		Rating:         req.Rating,
		Comment:        req.Comment,
		Category:       req.Category,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: rating})
}

// SubmitReview handles POST /api/v1/reviews
func (h *EvaluationHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req SubmitReviewRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	review, err := h.service.SubmitReview(r.Context(), service.SubmitReviewInput{
		TaskID:         req.TaskID,
		ReviewerID:     middleware.UserIDFromContext(r.Context()),
		ReviewedUserID: req.ReviewedUserID,
		Rating:         req.Rating,
		Title:          req.Title,
		Comment:        req.Comment,
		Pros:           req.Pros,
		Cons:           req.Cons,
		Tags:           req.Tags,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: review})
}

// CanEvaluate handles GET /api/v1/tasks/{taskId}/eligibility
func (h *EvaluationHandler) CanEvaluate(w http.ResponseWriter, r *http.Request) {
	taskID, ok := httputil.ParseUUID(w, "task id", chi.URLParam(r, "taskId"))
	if !ok {
		return
	}

	decision, err := h.service.CanEvaluate(r.Context(), middleware.UserIDFromContext(r.Context()), taskID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: decision})
}

// GetEvaluationsForUser handles GET /api/v1/users/{userId}/evaluations
func (h *EvaluationHandler) GetEvaluationsForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParseUUID(w, "user id", chi.URLParam(r, "userId"))
	if !ok {
		return
	}

	evaluations, err := h.service.GetEvaluationsForUser(r.Context(), userID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: evaluations})
}

// GetSummary handles GET /api/v1/users/{userId}/summary
func (h *EvaluationHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParseUUID(w, "user id", chi.URLParam(r, "userId"))
	if !ok {
		return
	}

	summary, err := h.service.GetSummary(r.Context(), userID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: summary})
}

// ListReviews handles GET /api/v1/users/{userId}/reviews?page=&per_page=
func (h *EvaluationHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParseUUID(w, "user id", chi.URLParam(r, "userId"))
	if !ok {
		return
	}

	result, err := h.service.ListReviews(r.Context(), userID.String(), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// GetEvaluation handles GET /api/v1/evaluations/{id}
func (h *EvaluationHandler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "evaluation id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	view, err := h.service.GetEvaluation(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}

// MarkHelpful handles POST /api/v1/reviews/{reviewId}/helpful
func (h *EvaluationHandler) MarkHelpful(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.service.MarkHelpful)
}

// ReportReview handles POST /api/v1/reviews/{reviewId}/report
func (h *EvaluationHandler) ReportReview(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.service.ReportReview)
}

func (h *EvaluationHandler) moderate(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (*domain.Review, error)) {
	reviewID, ok := httputil.ParseUUID(w, "review id", chi.URLParam(r, "reviewId"))
	if !ok {
		return
	}

	review, err := op(r.Context(), reviewID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: review})
}

// RefreshSummary handles POST /api/v1/admin/users/{userId}/summary/refresh
func (h *EvaluationHandler) RefreshSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParseUUID(w, "user id", chi.URLParam(r, "userId"))
	if !ok {
		return
	}

	summary, err := h.service.RefreshSummary(r.Context(), userID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.logger.InfoContext(r.Context(), "summary refresh requested",
		slog.String("user_id", userID.String()),
		slog.String("requested_by", middleware.UserIDFromContext(r.Context())),
	)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: summary})
}

// NotFound renders unknown routes in the standard envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, r, &apperrors.AppError{
		Code:    "NOT_FOUND",
		Message: "route not found",
		Status:  http.StatusNotFound,
		Err:     apperrors.ErrNotFound,
	}, nil)
}
