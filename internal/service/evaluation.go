package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/patetisho1/rabotim-com-sub003/internal/domain"
	"github.com/patetisho1/rabotim-com-sub003/internal/repository"
	apperrors "github.com/patetisho1/rabotim-com-sub003/pkg/errors"
	"github.com/patetisho1/rabotim-com-sub003/pkg/pagination"
	"github.com/patetisho1/rabotim-com-sub003/pkg/validator"
)

// TaskStatusReader answers the current status of a task.
type TaskStatusReader interface {
	TaskStatus(ctx context.Context, taskID string) (string, error)
}

// UserDirectory answers whether a user exists.
type UserDirectory interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// EventPublisher emits reputation events.
type EventPublisher interface {
	PublishEvaluationSubmitted(ctx context.Context, e *domain.Evaluation) error
	PublishSummaryUpdated(ctx context.Context, s *domain.UserRatingSummary) error
	PublishReviewReported(ctx context.Context, r *domain.Evaluation) error
}

// Deps groups the collaborators of EvaluationService.
type Deps struct {
	Evaluations repository.EvaluationRepository
	Summaries   repository.SummaryRepository
	Cache       repository.SummaryCache
	Tasks       TaskStatusReader
	Users       UserDirectory
	Events      EventPublisher
	Metrics     *Metrics
	Logger      *slog.Logger
}

// EvaluationService implements the eligibility gate, ingestion, summary
// refresh and moderation counters.
type EvaluationService struct {
	evaluations repository.EvaluationRepository
	summaries   repository.SummaryRepository
	cache       repository.SummaryCache
	tasks       TaskStatusReader
	users       UserDirectory
	events      EventPublisher
	metrics     *Metrics
	logger      *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewEvaluationService creates a new evaluation service.
func NewEvaluationService(d Deps) *EvaluationService {
	return &EvaluationService{
		evaluations: d.Evaluations,
		summaries:   d.Summaries,
		cache:       d.Cache,
		tasks:       d.Tasks,
		users:       d.Users,
		events:      d.Events,
		metrics:     d.Metrics,
		logger:      d.Logger,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

type idInput struct {
	ID string `json:"id" validate:"required,uuid"`
}

func validateID(field, id string) error {
	if err := validator.Validate(idInput{ID: id}); err != nil {
		return validator.Field(field, "must be a valid UUID")
	}
	return nil
}

// CanEvaluate reports whether reviewerID may evaluate taskID.
func (s *EvaluationService) CanEvaluate(ctx context.Context, reviewerID, taskID string) (domain.EligibilityDecision, error) {
	if err := validateID("task_id", taskID); err != nil {
		return domain.EligibilityDecision{}, err
	}
	if err := validateID("reviewer_id", reviewerID); err != nil {
		return domain.EligibilityDecision{}, err
	}

	status, err := s.tasks.TaskStatus(ctx, taskID)
	if err != nil {
		return domain.EligibilityDecision{}, err
	}
	if status != domain.TaskStatusCompleted {
		return domain.Decide(status, false), nil
	}

	exists, err := s.evaluations.Exists(ctx, taskID, reviewerID)
	if err != nil {
		return domain.EligibilityDecision{}, fmt.Errorf("check existing evaluation: %w", err)
	}
	return domain.Decide(status, exists), nil
}

// SubmitRating validates and stores a Rating, then refreshes the reviewed
// user's summary.
func (s *EvaluationService) SubmitRating(ctx context.Context, in SubmitRatingInput) (*domain.Rating, error) {
	in.normalize()
	if err := validator.Validate(in); err != nil {
		return nil, err
	}

	e := &domain.Evaluation{
		Kind:           domain.KindRating,
		TaskID:         in.TaskID,
		ReviewerID:     in.ReviewerID,
		ReviewedUserID: in.ReviewedUserID,
		Rating:         in.Rating,
		Comment:        in.Comment,
		Category:       domain.Category(in.Category),
	}
	if err := s.submit(ctx, e); err != nil {
		return nil, err
	}

	r := e.AsRating()
	return &r, nil
}

// SubmitReview validates and stores a Review, then refreshes the reviewed
// user's summary.
func (s *EvaluationService) SubmitReview(ctx context.Context, in SubmitReviewInput) (*domain.Review, error) {
	in.normalize()
	if err := validator.Validate(in); err != nil {
		return nil, err
	}

	e := &domain.Evaluation{
		Kind:           domain.KindReview,
		TaskID:         in.TaskID,
		ReviewerID:     in.ReviewerID,
		ReviewedUserID: in.ReviewedUserID,
		Rating:         in.Rating,
		Title:          in.Title,
		Comment:        in.Comment,
		Pros:           in.Pros,
		Cons:           in.Cons,
		Tags:           in.Tags,
	}
	if err := s.submit(ctx, e); err != nil {
		return nil, err
	}

	r := e.AsReview()
	return &r, nil
}

// submit runs the gate and stores e. The gate runs again inside the store
// transaction, so a concurrent duplicate still fails with already_rated.
func (s *EvaluationService) submit(ctx context.Context, e *domain.Evaluation) error {
	decision, err := s.CanEvaluate(ctx, e.ReviewerID, e.TaskID)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return s.reject(ctx, e, decision.Err())
	}

	exists, err := s.users.UserExists(ctx, e.ReviewedUserID)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NotFound("user", e.ReviewedUserID)
	}

	e.ID = s.newID()
	e.CreatedAt = s.now()
	e.IsVerified = true

	start := time.Now()
	summary, err := s.evaluations.Submit(ctx, e)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyRated) {
			return s.reject(ctx, e, err)
		}
		return fmt.Errorf("submit %s: %w", e.Kind, err)
	}
	s.metrics.summaryRecomputed(time.Since(start))
	s.metrics.evaluationSubmitted(string(e.Kind))

	s.logger.InfoContext(ctx, "evaluation submitted",
		slog.String("evaluation_id", e.ID),
		slog.String("kind", string(e.Kind)),
		slog.String("task_id", e.TaskID),
		slog.String("reviewer_id", e.ReviewerID),
		slog.String("reviewed_user_id", e.ReviewedUserID),
		slog.Int("rating", e.Rating),
	)

	s.storeSummary(ctx, summary)

	if err := s.events.PublishEvaluationSubmitted(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to publish evaluation submitted event",
			slog.String("evaluation_id", e.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (s *EvaluationService) reject(ctx context.Context, e *domain.Evaluation, cause error) error {
	reason := domain.ReasonOf(cause)
	s.metrics.evaluationRejected(string(reason))

	s.logger.InfoContext(ctx, "evaluation rejected",
		slog.String("reason", string(reason)),
		slog.String("task_id", e.TaskID),
		slog.String("reviewer_id", e.ReviewerID),
	)

	var appErr *apperrors.AppError
	switch reason {
	case domain.ReasonNotCompleted:
		appErr = apperrors.Unprocessable(string(reason), "task is not completed", cause)
		appErr.Code = "NOT_COMPLETED"
	default:
		appErr = apperrors.Conflict(string(reason), "task already evaluated by this reviewer", cause)
		appErr.Code = "ALREADY_RATED"
	}
	return appErr
}

// storeSummary caches a freshly committed summary and announces it. A cache
// write failure evicts the entry so readers fall back to the database.
func (s *EvaluationService) storeSummary(ctx context.Context, summary *domain.UserRatingSummary) {
	if err := s.cache.Set(ctx, summary); err != nil {
		s.logger.WarnContext(ctx, "failed to cache summary",
			slog.String("user_id", summary.UserID),
			slog.String("error", err.Error()),
		)
		s.evictSummary(ctx, summary.UserID, summary.Version)
	}

	if err := s.events.PublishSummaryUpdated(ctx, summary); err != nil {
		s.logger.WarnContext(ctx, "failed to publish summary updated event",
			slog.String("user_id", summary.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// evictSummary drops the cached summary and fences out any version older
// than the committed one.
func (s *EvaluationService) evictSummary(ctx context.Context, userID string, version int64) {
	if err := s.cache.Delete(ctx, userID, version); err != nil {
		s.logger.ErrorContext(ctx, "failed to evict cached summary",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// GetSummary returns a user's summary, from cache when possible.
func (s *EvaluationService) GetSummary(ctx context.Context, userID string) (*domain.UserRatingSummary, error) {
	if err := validateID("user_id", userID); err != nil {
		return nil, err
	}

	cached, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "summary cache read failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	if cached != nil {
		return cached, nil
	}

	summary, err := s.summaries.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}

	if summary.Version > 0 {
		if err := s.cache.Set(ctx, summary); err != nil {
			s.logger.WarnContext(ctx, "failed to cache summary",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}
	return summary, nil
}

// GetEvaluationsForUser returns every evaluation a user received together
// with their summary. Both come from one database snapshot rather than the
// summary cache, so the summary totals always match the lists.
func (s *EvaluationService) GetEvaluationsForUser(ctx context.Context, userID string) (*UserEvaluations, error) {
	if err := validateID("user_id", userID); err != nil {
		return nil, err
	}

	var (
		exists      bool
		evaluations []domain.Evaluation
		summary     *domain.UserRatingSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		exists, err = s.users.UserExists(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		summary, evaluations, err = s.summaries.GetWithEvaluations(gctx, userID)
		if err != nil {
			return fmt.Errorf("get evaluations: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("user", userID)
	}

	out := &UserEvaluations{
		Ratings: []domain.Rating{},
		Reviews: []domain.Review{},
		Summary: summary,
	}
	for i := range evaluations {
		e := &evaluations[i]
		switch e.Kind {
		case domain.KindRating:
			out.Ratings = append(out.Ratings, e.AsRating())
		case domain.KindReview:
			out.Reviews = append(out.Reviews, e.AsReview())
		}
	}
	return out, nil
}

// ListReviews returns a page of a user's reviews, newest first.
func (s *EvaluationService) ListReviews(ctx context.Context, userID string, params pagination.Params) (pagination.Result[domain.Review], error) {
	if err := validateID("user_id", userID); err != nil {
		return pagination.Result[domain.Review]{}, err
	}

	evaluations, total, err := s.evaluations.ListReviews(ctx, userID, params.Page, params.PerPage)
	if err != nil {
		return pagination.Result[domain.Review]{}, fmt.Errorf("list reviews: %w", err)
	}

	reviews := make([]domain.Review, 0, len(evaluations))
	for i := range evaluations {
		reviews = append(reviews, evaluations[i].AsReview())
	}
	return pagination.NewResult(reviews, total, params), nil
}

// GetEvaluation returns one evaluation of either kind.
func (s *EvaluationService) GetEvaluation(ctx context.Context, id string) (*EvaluationView, error) {
	if err := validateID("id", id); err != nil {
		return nil, err
	}

	e, err := s.evaluations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &EvaluationView{Kind: e.Kind}
	switch e.Kind {
	case domain.KindRating:
		r := e.AsRating()
		view.Rating = &r
	case domain.KindReview:
		r := e.AsReview()
		view.Review = &r
	}
	return view, nil
}

// RefreshSummary recomputes a user's summary from their evaluations.
func (s *EvaluationService) RefreshSummary(ctx context.Context, userID string) (*domain.UserRatingSummary, error) {
	if err := validateID("user_id", userID); err != nil {
		return nil, err
	}

	start := time.Now()
	summary, err := s.summaries.Refresh(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("refresh summary: %w", err)
	}
	s.metrics.summaryRecomputed(time.Since(start))

	s.logger.InfoContext(ctx, "summary refreshed",
		slog.String("user_id", userID),
		slog.Int64("version", summary.Version),
		slog.Int("total_reviews", summary.TotalReviews),
	)

	s.storeSummary(ctx, summary)
	return summary, nil
}

// MarkHelpful adds one to a review's helpful counter.
func (s *EvaluationService) MarkHelpful(ctx context.Context, reviewID string) (*domain.Review, error) {
	e, err := s.moderate(ctx, reviewID, "helpful", s.evaluations.IncrementHelpful)
	if err != nil {
		return nil, err
	}

	r := e.AsReview()
	return &r, nil
}

// ReportReview adds one to a review's report counter and hands the review
// to the triage workflow.
func (s *EvaluationService) ReportReview(ctx context.Context, reviewID string) (*domain.Review, error) {
	e, err := s.moderate(ctx, reviewID, "reported", s.evaluations.IncrementReported)
	if err != nil {
		return nil, err
	}

	if err := s.events.PublishReviewReported(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to publish review reported event",
			slog.String("review_id", e.ID),
			slog.String("error", err.Error()),
		)
	}

	r := e.AsReview()
	return &r, nil
}

func (s *EvaluationService) moderate(
	ctx context.Context,
	reviewID, counter string,
	increment func(context.Context, string) (*domain.Evaluation, int64, error),
) (*domain.Evaluation, error) {
	if err := validateID("review_id", reviewID); err != nil {
		return nil, err
	}

	e, version, err := increment(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	s.metrics.moderationIncremented(counter)

	// Recent reviews in the cached summary carry the counters.
	s.evictSummary(ctx, e.ReviewedUserID, version)

	s.logger.InfoContext(ctx, "review counter incremented",
		slog.String("review_id", e.ID),
		slog.String("counter", counter),
		slog.Int("helpful_count", e.HelpfulCount),
		slog.Int("reported_count", e.ReportedCount),
	)
	return e, nil
}
