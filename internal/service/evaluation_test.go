package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patetisho1/rabotim-com-sub003/internal/domain"
	apperrors "github.com/patetisho1/rabotim-com-sub003/pkg/errors"
	"github.com/patetisho1/rabotim-com-sub003/pkg/pagination"
	"github.com/patetisho1/rabotim-com-sub003/pkg/validator"
)

const (
	taskID     = "2f1e6a4c-8d5b-4c3a-9e7f-1a2b3c4d5e6f"
	reviewerID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	workerID   = "a3bb189e-8bf9-3888-9912-ace4e6543002"
	reviewID   = "9b2d5c1e-3f4a-4b6c-8d7e-0f1a2b3c4d5e"
)

// --- Mocks ---

type mockEvaluationRepository struct {
	mock.Mock
}

func (m *mockEvaluationRepository) Submit(ctx context.Context, e *domain.Evaluation) (*domain.UserRatingSummary, error) {
	args := m.Called(ctx, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserRatingSummary), args.Error(1)
}

func (m *mockEvaluationRepository) Exists(ctx context.Context, task, reviewer string) (bool, error) {
	args := m.Called(ctx, task, reviewer)
	return args.Bool(0), args.Error(1)
}

func (m *mockEvaluationRepository) GetByID(ctx context.Context, id string) (*domain.Evaluation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Evaluation), args.Error(1)
}

func (m *mockEvaluationRepository) ListReviews(ctx context.Context, userID string, page, perPage int) ([]domain.Evaluation, int, error) {
	args := m.Called(ctx, userID, page, perPage)
	return args.Get(0).([]domain.Evaluation), args.Int(1), args.Error(2)
}

func (m *mockEvaluationRepository) IncrementHelpful(ctx context.Context, id string) (*domain.Evaluation, int64, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).(*domain.Evaluation), args.Get(1).(int64), args.Error(2)
}

func (m *mockEvaluationRepository) IncrementReported(ctx context.Context, id string) (*domain.Evaluation, int64, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).(*domain.Evaluation), args.Get(1).(int64), args.Error(2)
}

type mockSummaryRepository struct {
	mock.Mock
}

func (m *mockSummaryRepository) Get(ctx context.Context, userID string) (*domain.UserRatingSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserRatingSummary), args.Error(1)
}

func (m *mockSummaryRepository) GetWithEvaluations(ctx context.Context, userID string) (*domain.UserRatingSummary, []domain.Evaluation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*domain.UserRatingSummary), args.Get(1).([]domain.Evaluation), args.Error(2)
}

func (m *mockSummaryRepository) Refresh(ctx context.Context, userID string) (*domain.UserRatingSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserRatingSummary), args.Error(1)
}

type mockSummaryCache struct {
	mock.Mock
}

func (m *mockSummaryCache) Get(ctx context.Context, userID string) (*domain.UserRatingSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserRatingSummary), args.Error(1)
}

func (m *mockSummaryCache) Set(ctx context.Context, s *domain.UserRatingSummary) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockSummaryCache) Delete(ctx context.Context, userID string, version int64) error {
	return m.Called(ctx, userID, version).Error(0)
}

type mockTasks struct {
	mock.Mock
}

func (m *mockTasks) TaskStatus(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) UserExists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishEvaluationSubmitted(ctx context.Context, e *domain.Evaluation) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockEvents) PublishSummaryUpdated(ctx context.Context, s *domain.UserRatingSummary) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockEvents) PublishReviewReported(ctx context.Context, e *domain.Evaluation) error {
	return m.Called(ctx, e).Error(0)
}

// --- Test Helpers ---

type fixture struct {
	evaluations *mockEvaluationRepository
	summaries   *mockSummaryRepository
	cache       *mockSummaryCache
	tasks       *mockTasks
	users       *mockUsers
	events      *mockEvents
	metrics     *Metrics
	svc         *EvaluationService
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newFixture() *fixture {
	f := &fixture{
		evaluations: new(mockEvaluationRepository),
		summaries:   new(mockSummaryRepository),
		cache:       new(mockSummaryCache),
		tasks:       new(mockTasks),
		users:       new(mockUsers),
		events:      new(mockEvents),
		metrics:     NewMetrics(prometheus.NewRegistry()),
	}
	f.svc = NewEvaluationService(Deps{
		Evaluations: f.evaluations,
		Summaries:   f.summaries,
		Cache:       f.cache,
		Tasks:       f.tasks,
		Users:       f.users,
		Events:      f.events,
		Metrics:     f.metrics,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	f.svc.now = func() time.Time { return fixedNow }
	f.svc.newID = func() string { return reviewID }
	return f
}

func (f *fixture) assertExpectations(t *testing.T) {
	t.Helper()
	f.evaluations.AssertExpectations(t)
	f.summaries.AssertExpectations(t)
	f.cache.AssertExpectations(t)
	f.tasks.AssertExpectations(t)
	f.users.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func summaryFor(userID string, ratings ...int) *domain.UserRatingSummary {
	evals := make([]domain.Evaluation, len(ratings))
	for i, r := range ratings {
		evals[i] = domain.Evaluation{ID: reviewID, Kind: domain.KindRating, Rating: r, CreatedAt: fixedNow}
	}
	s := domain.ComputeSummary(userID, evals)
	s.Version = 1
	return s
}

func validRating() SubmitRatingInput {
	return SubmitRatingInput{
		TaskID:         taskID,
		ReviewerID:     reviewerID,
		ReviewedUserID: workerID,
		Rating:         5,
		Comment:        "  on time and tidy  ",
		Category:       "Punctuality",
	}
}

func validReview() SubmitReviewInput {
	return SubmitReviewInput{
		TaskID:         taskID,
		ReviewerID:     reviewerID,
		ReviewedUserID: workerID,
		Rating:         4,
		Title:          "Solid plumber",
		Comment:        "Fixed the leak in an hour.",
		Pros:           []string{"fast", " fast ", "clean"},
		Tags:           []string{"Plumbing", "plumbing"},
	}
}

func (f *fixture) expectGateOpen(ctx context.Context) {
	f.users.On("UserExists", ctx, workerID).Return(true, nil)
	f.tasks.On("TaskStatus", ctx, taskID).Return(domain.TaskStatusCompleted, nil)
	f.evaluations.On("Exists", ctx, taskID, reviewerID).Return(false, nil)
}

// --- CanEvaluate ---

func TestCanEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		status string
		exists bool
		want   domain.EligibilityDecision
	}{
		{"completed and new", "completed", false, domain.EligibilityDecision{Allowed: true, Reason: domain.ReasonAllowed}},
		{"completed and rated", "completed", true, domain.EligibilityDecision{Reason: domain.ReasonAlreadyRated}},
		{"in progress", "in_progress", false, domain.EligibilityDecision{Reason: domain.ReasonNotCompleted}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			f.tasks.On("TaskStatus", ctx, taskID).Return(tt.status, nil)
			if tt.status == domain.TaskStatusCompleted {
				f.evaluations.On("Exists", ctx, taskID, reviewerID).Return(tt.exists, nil)
			}

			got, err := f.svc.CanEvaluate(ctx, reviewerID, taskID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			f.assertExpectations(t)
		})
	}
}

func TestCanEvaluate_InvalidTaskID(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CanEvaluate(context.Background(), reviewerID, "not-a-uuid")

	var verr *validator.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields(), "task_id")
}

func TestCanEvaluate_TaskServiceUnavailable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.tasks.On("TaskStatus", ctx, taskID).Return("", apperrors.ServiceUnavailable("task service", errors.New("circuit open")))

	_, err := f.svc.CanEvaluate(ctx, reviewerID, taskID)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

// --- SubmitRating ---

func TestSubmitRating_Success(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	summary := summaryFor(workerID, 5)

	f.expectGateOpen(ctx)
	f.evaluations.On("Submit", ctx, mock.MatchedBy(func(e *domain.Evaluation) bool {
		return e.ID == reviewID && e.Kind == domain.KindRating && e.IsVerified &&
			e.Category == domain.CategoryPunctuality && e.Comment == "on time and tidy"
	})).Return(summary, nil)
	f.cache.On("Set", ctx, summary).Return(nil)
	f.events.On("PublishEvaluationSubmitted", ctx, mock.AnythingOfType("*domain.Evaluation")).Return(nil)
	f.events.On("PublishSummaryUpdated", ctx, summary).Return(nil)

	rating, err := f.svc.SubmitRating(ctx, validRating())

	require.NoError(t, err)
	assert.Equal(t, reviewID, rating.ID)
	assert.Equal(t, 5, rating.Rating)
	assert.True(t, rating.IsVerified)
	assert.Equal(t, fixedNow, rating.CreatedAt)
	require.NotNil(t, rating.Category)
	assert.Equal(t, domain.CategoryPunctuality, *rating.Category)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.submitted.WithLabelValues("rating")))
	f.assertExpectations(t)
}

func TestSubmitRating_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*SubmitRatingInput)
		field string
	}{
		{"rating too low", func(in *SubmitRatingInput) { in.Rating = 0 }, "rating"},
		{"rating too high", func(in *SubmitRatingInput) { in.Rating = 6 }, "rating"},
		{"self rating", func(in *SubmitRatingInput) { in.ReviewedUserID = reviewerID }, "reviewed_user_id"},
		{"unknown category", func(in *SubmitRatingInput) { in.Category = "speed" }, "category"},
		{"bad task id", func(in *SubmitRatingInput) { in.TaskID = "task-1" }, "task_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			in := validRating()
			tt.mut(&in)

			rating, err := f.svc.SubmitRating(context.Background(), in)

			assert.Nil(t, rating)
			var verr *validator.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields(), tt.field)
			f.assertExpectations(t)
		})
	}
}

func TestSubmitRating_UnknownReviewedUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.tasks.On("TaskStatus", ctx, taskID).Return(domain.TaskStatusCompleted, nil)
	f.evaluations.On("Exists", ctx, taskID, reviewerID).Return(false, nil)
	f.users.On("UserExists", ctx, workerID).Return(false, nil)

	_, err := f.svc.SubmitRating(ctx, validRating())

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	f.assertExpectations(t)
}

func TestSubmitRating_TaskNotCompleted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.tasks.On("TaskStatus", ctx, taskID).Return("in_progress", nil)

	_, err := f.svc.SubmitRating(ctx, validRating())

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 422, appErr.Status)
	assert.Equal(t, "NOT_COMPLETED", appErr.Code)
	assert.Equal(t, string(domain.ReasonNotCompleted), appErr.Reason)
	assert.ErrorIs(t, err, domain.ErrNotCompleted)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.rejected.WithLabelValues("not_completed")))
	f.assertExpectations(t)
}

func TestSubmitRating_AlreadyRatedAtGate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.tasks.On("TaskStatus", ctx, taskID).Return(domain.TaskStatusCompleted, nil)
	f.evaluations.On("Exists", ctx, taskID, reviewerID).Return(true, nil)

	_, err := f.svc.SubmitRating(ctx, validRating())

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 409, appErr.Status)
	assert.Equal(t, "ALREADY_RATED", appErr.Code)
	assert.ErrorIs(t, err, domain.ErrAlreadyRated)
	f.assertExpectations(t)
}

func TestSubmitRating_LostRaceInStore(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.expectGateOpen(ctx)
	f.evaluations.On("Submit", ctx, mock.Anything).Return(nil, domain.ErrAlreadyRated)

	_, err := f.svc.SubmitRating(ctx, validRating())

	assert.ErrorIs(t, err, domain.ErrAlreadyRated)
	assert.Equal(t, "already_rated", apperrors.ReasonOf(err))
	f.assertExpectations(t)
}

func TestSubmitRating_StoreFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.expectGateOpen(ctx)
	f.evaluations.On("Submit", ctx, mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := f.svc.SubmitRating(ctx, validRating())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "submit rating")
	f.assertExpectations(t)
}

func TestSubmitRating_CacheAndEventFailuresAreBestEffort(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	summary := summaryFor(workerID, 5)

	f.expectGateOpen(ctx)
	f.evaluations.On("Submit", ctx, mock.Anything).Return(summary, nil)
	f.cache.On("Set", ctx, summary).Return(errors.New("redis down"))
	f.cache.On("Delete", ctx, workerID, summary.Version).Return(errors.New("redis down"))
	f.events.On("PublishEvaluationSubmitted", ctx, mock.Anything).Return(errors.New("kafka down"))
	f.events.On("PublishSummaryUpdated", ctx, summary).Return(errors.New("kafka down"))

	rating, err := f.svc.SubmitRating(ctx, validRating())

	require.NoError(t, err)
	assert.Equal(t, reviewID, rating.ID)
	f.assertExpectations(t)
}

// --- SubmitReview ---

func TestSubmitReview_NormalizesLists(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	summary := summaryFor(workerID, 4)

	f.expectGateOpen(ctx)
	f.evaluations.On("Submit", ctx, mock.AnythingOfType("*domain.Evaluation")).Return(summary, nil)
	f.cache.On("Set", ctx, summary).Return(nil)
	f.events.On("PublishEvaluationSubmitted", ctx, mock.Anything).Return(nil)
	f.events.On("PublishSummaryUpdated", ctx, summary).Return(nil)

	review, err := f.svc.SubmitReview(ctx, validReview())

	require.NoError(t, err)
	assert.Equal(t, []string{"fast", "clean"}, review.Pros)
	assert.Equal(t, []string{}, review.Cons)
	assert.Equal(t, []string{"plumbing"}, review.Tags)
	assert.Zero(t, review.HelpfulCount)
	assert.Zero(t, review.ReportedCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.submitted.WithLabelValues("review")))
	f.assertExpectations(t)
}

func TestSubmitReview_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*SubmitReviewInput)
		field string
	}{
		{"missing title", func(in *SubmitReviewInput) { in.Title = "   " }, "title"},
		{"missing comment", func(in *SubmitReviewInput) { in.Comment = "" }, "comment"},
		{"blank pro", func(in *SubmitReviewInput) { in.Pros = []string{"ok", " "} }, "pros[1]"},
		{"too many tags", func(in *SubmitReviewInput) {
			in.Tags = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}
		}, "tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			in := validReview()
			tt.mut(&in)

			_, err := f.svc.SubmitReview(context.Background(), in)

			var verr *validator.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields(), tt.field)
		})
	}
}

// --- Reads ---

func TestGetSummary_CacheHit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	cached := summaryFor(workerID, 5, 4)
	f.cache.On("Get", ctx, workerID).Return(cached, nil)

	got, err := f.svc.GetSummary(ctx, workerID)

	require.NoError(t, err)
	assert.Same(t, cached, got)
	f.assertExpectations(t)
}

func TestGetSummary_MissReadsThrough(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	stored := summaryFor(workerID, 3)
	f.cache.On("Get", ctx, workerID).Return(nil, nil)
	f.summaries.On("Get", ctx, workerID).Return(stored, nil)
	f.cache.On("Set", ctx, stored).Return(nil)

	got, err := f.svc.GetSummary(ctx, workerID)

	require.NoError(t, err)
	assert.Equal(t, 3.0, got.AverageRating)
	f.assertExpectations(t)
}

func TestGetSummary_EmptySummaryIsNotCached(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.cache.On("Get", ctx, workerID).Return(nil, errors.New("redis down"))
	f.summaries.On("Get", ctx, workerID).Return(domain.EmptySummary(workerID), nil)

	got, err := f.svc.GetSummary(ctx, workerID)

	require.NoError(t, err)
	assert.Zero(t, got.TotalReviews)
	assert.Equal(t, []string{}, got.Badges)
	f.assertExpectations(t)
}

func TestGetEvaluationsForUser_SplitsByKind(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	summary := summaryFor(workerID, 5, 4)
	evals := []domain.Evaluation{
		{ID: "e2", Kind: domain.KindReview, Rating: 4, Title: "Good"},
		{ID: "e1", Kind: domain.KindRating, Rating: 5, Category: domain.CategoryQuality},
	}

	f.users.On("UserExists", mock.Anything, workerID).Return(true, nil)
	f.summaries.On("GetWithEvaluations", mock.Anything, workerID).Return(summary, evals, nil)

	got, err := f.svc.GetEvaluationsForUser(ctx, workerID)

	require.NoError(t, err)
	require.Len(t, got.Ratings, 1)
	require.Len(t, got.Reviews, 1)
	assert.Equal(t, "e1", got.Ratings[0].ID)
	assert.Equal(t, "e2", got.Reviews[0].ID)
	assert.Same(t, summary, got.Summary)
	assert.Equal(t, got.Summary.TotalReviews, len(got.Ratings)+len(got.Reviews))
	f.assertExpectations(t)
}

func TestGetEvaluationsForUser_UnknownUser(t *testing.T) {
	f := newFixture()
	f.users.On("UserExists", mock.Anything, workerID).Return(false, nil)
	f.summaries.On("GetWithEvaluations", mock.Anything, workerID).Return(domain.EmptySummary(workerID), []domain.Evaluation{}, nil)

	_, err := f.svc.GetEvaluationsForUser(context.Background(), workerID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListReviews_Paginates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	page := []domain.Evaluation{{ID: "r3", Kind: domain.KindReview}, {ID: "r2", Kind: domain.KindReview}}
	f.evaluations.On("ListReviews", ctx, workerID, 1, 2).Return(page, 3, nil)

	got, err := f.svc.ListReviews(ctx, workerID, pagination.Params{Page: 1, PerPage: 2})

	require.NoError(t, err)
	assert.Len(t, got.Data, 2)
	assert.Equal(t, 3, got.TotalCount)
	assert.Equal(t, 2, got.TotalPages)
	assert.True(t, got.HasNext)
	f.assertExpectations(t)
}

func TestGetEvaluation_ShapesByKind(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.evaluations.On("GetByID", ctx, reviewID).Return(&domain.Evaluation{ID: reviewID, Kind: domain.KindReview, Title: "Good"}, nil)

	view, err := f.svc.GetEvaluation(ctx, reviewID)

	require.NoError(t, err)
	assert.Equal(t, domain.KindReview, view.Kind)
	require.NotNil(t, view.Review)
	assert.Nil(t, view.Rating)
	assert.Equal(t, "Good", view.Review.Title)
}

func TestGetEvaluation_NotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.evaluations.On("GetByID", ctx, reviewID).Return(nil, apperrors.NotFound("evaluation", reviewID))

	_, err := f.svc.GetEvaluation(ctx, reviewID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRefreshSummary(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	summary := summaryFor(workerID, 5, 5, 4)
	f.summaries.On("Refresh", ctx, workerID).Return(summary, nil)
	f.cache.On("Set", ctx, summary).Return(nil)
	f.events.On("PublishSummaryUpdated", ctx, summary).Return(nil)

	got, err := f.svc.RefreshSummary(ctx, workerID)

	require.NoError(t, err)
	assert.Equal(t, 4.7, got.AverageRating)
	f.assertExpectations(t)
}

// --- Moderation ---

func TestMarkHelpful(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	updated := &domain.Evaluation{ID: reviewID, Kind: domain.KindReview, ReviewedUserID: workerID, HelpfulCount: 3}
	f.evaluations.On("IncrementHelpful", ctx, reviewID).Return(updated, int64(8), nil)
	f.cache.On("Delete", ctx, workerID, int64(8)).Return(nil)

	review, err := f.svc.MarkHelpful(ctx, reviewID)

	require.NoError(t, err)
	assert.Equal(t, 3, review.HelpfulCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.moderation.WithLabelValues("helpful")))
	f.assertExpectations(t)
}

func TestReportReview_PublishesReport(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	updated := &domain.Evaluation{ID: reviewID, Kind: domain.KindReview, ReviewedUserID: workerID, ReportedCount: 1}
	f.evaluations.On("IncrementReported", ctx, reviewID).Return(updated, int64(5), nil)
	f.cache.On("Delete", ctx, workerID, int64(5)).Return(nil)
	f.events.On("PublishReviewReported", ctx, updated).Return(nil)

	review, err := f.svc.ReportReview(ctx, reviewID)

	require.NoError(t, err)
	assert.Equal(t, 1, review.ReportedCount)
	f.assertExpectations(t)
}

func TestMarkHelpful_UnknownReview(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.evaluations.On("IncrementHelpful", ctx, reviewID).Return(nil, int64(0), apperrors.NotFound("review", reviewID))

	_, err := f.svc.MarkHelpful(ctx, reviewID)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	f.assertExpectations(t)
}

// counterRepo applies increments under a lock the way the locked UPDATE
// does, bumping the summary version with each one.
type counterRepo struct {
	mockEvaluationRepository
	mu      sync.Mutex
	helpful int
	version int64
}

func (r *counterRepo) IncrementHelpful(_ context.Context, id string) (*domain.Evaluation, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.helpful++
	r.version++
	return &domain.Evaluation{ID: id, Kind: domain.KindReview, ReviewedUserID: workerID, HelpfulCount: r.helpful}, r.version, nil
}

func TestMarkHelpful_ConcurrentIncrementsAllLand(t *testing.T) {
	f := newFixture()
	repo := &counterRepo{}
	f.svc.evaluations = repo
	f.cache.On("Delete", mock.Anything, workerID, mock.AnythingOfType("int64")).Return(nil)

	const n = 100
	seen := make(chan int, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			review, err := f.svc.MarkHelpful(context.Background(), reviewID)
			if assert.NoError(t, err) {
				seen <- review.HelpfulCount
			}
		}()
	}
	wg.Wait()
	close(seen)

	counts := make(map[int]bool, n)
	for c := range seen {
		counts[c] = true
	}
	assert.Equal(t, n, repo.helpful)
	assert.Equal(t, int64(n), repo.version)
	assert.Len(t, counts, n)
	assert.Equal(t, float64(n), testutil.ToFloat64(f.metrics.moderation.WithLabelValues("helpful")))
}

// uniqueRepo stores evaluations keyed by (task, reviewer) and rejects a
// second one the way the unique constraint does. Exists always reports
// false so both writers pass the gate before either has stored.
type uniqueRepo struct {
	mockEvaluationRepository
	mu     sync.Mutex
	stored map[string]domain.Evaluation
}

func (r *uniqueRepo) Exists(context.Context, string, string) (bool, error) {
	return false, nil
}

func (r *uniqueRepo) Submit(_ context.Context, e *domain.Evaluation) (*domain.UserRatingSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := e.TaskID + "/" + e.ReviewerID
	if _, ok := r.stored[key]; ok {
		return nil, domain.ErrAlreadyRated
	}
	r.stored[key] = *e
	return summaryFor(e.ReviewedUserID, e.Rating), nil
}

func TestSubmit_ConcurrentDuplicatesStoreOnce(t *testing.T) {
	f := newFixture()
	repo := &uniqueRepo{stored: make(map[string]domain.Evaluation)}
	f.svc.evaluations = repo
	f.tasks.On("TaskStatus", mock.Anything, taskID).Return(domain.TaskStatusCompleted, nil)
	f.users.On("UserExists", mock.Anything, workerID).Return(true, nil)
	f.cache.On("Set", mock.Anything, mock.Anything).Return(nil)
	f.events.On("PublishEvaluationSubmitted", mock.Anything, mock.Anything).Return(nil)
	f.events.On("PublishSummaryUpdated", mock.Anything, mock.Anything).Return(nil)

	submits := []func() error{
		func() error {
			_, err := f.svc.SubmitRating(context.Background(), validRating())
			return err
		},
		func() error {
			_, err := f.svc.SubmitReview(context.Background(), validReview())
			return err
		},
	}

	errs := make([]error, len(submits))
	var wg sync.WaitGroup
	for i, submit := range submits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = submit()
		}()
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "ALREADY_RATED", appErr.Code)
		assert.ErrorIs(t, err, domain.ErrAlreadyRated)
		rejected++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Len(t, repo.stored, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.rejected.WithLabelValues("already_rated")))
}
