package repository

import (
	"context"

	"github.com/patetisho1/rabotim-com-sub003/internal/domain"
)

// EvaluationRepository persists evaluations and the summaries derived from
// them.
type EvaluationRepository interface {
	// Submit stores e after re-checking (task, reviewer) uniqueness under a
	// per-user lock and rewrites the reviewed user's summary in the same
	// transaction. A duplicate yields domain.ErrAlreadyRated.
	Submit(ctx context.Context, e *domain.Evaluation) (*domain.UserRatingSummary, error)

	// Exists reports whether the reviewer already evaluated the task in
	// either form.
	Exists(ctx context.Context, taskID, reviewerID string) (bool, error)

	// GetByID returns one evaluation of either kind.
	GetByID(ctx context.Context, id string) (*domain.Evaluation, error)

	// ListReviews returns one page of a user's reviews, newest first, with
	// the total review count.
	ListReviews(ctx context.Context, userID string, page, perPage int) ([]domain.Evaluation, int, error)

	// IncrementHelpful and IncrementReported atomically add one to a review's
	// counter and bump the reviewed user's summary version in the same
	// transaction. They return the updated review and the new version.
	IncrementHelpful(ctx context.Context, reviewID string) (*domain.Evaluation, int64, error)
	IncrementReported(ctx context.Context, reviewID string) (*domain.Evaluation, int64, error)
}

// SummaryRepository reads and rebuilds stored summaries.
type SummaryRepository interface {
	// Get returns the stored summary, or an empty one for a user with no
	// evaluations.
	Get(ctx context.Context, userID string) (*domain.UserRatingSummary, error)

	// GetWithEvaluations returns the stored summary and every evaluation the
	// user received, newest first, read from one snapshot.
	GetWithEvaluations(ctx context.Context, userID string) (*domain.UserRatingSummary, []domain.Evaluation, error)

	// Refresh recomputes a user's summary from their evaluations.
	Refresh(ctx context.Context, userID string) (*domain.UserRatingSummary, error)
}

// SummaryCache is a read-through cache of summaries. Get returns nil, nil on
// a miss. Set never replaces a newer version, and Delete(version) keeps any
// version older than the one given out of the cache.
type SummaryCache interface {
	Get(ctx context.Context, userID string) (*domain.UserRatingSummary, error)
	Set(ctx context.Context, summary *domain.UserRatingSummary) error
	Delete(ctx context.Context, userID string, version int64) error
}

// TaskStatusCache holds the latest known status of tasks.
type TaskStatusCache interface {
	Get(ctx context.Context, taskID string) (status string, found bool, err error)
	Set(ctx context.Context, taskID, status string) error
}
