package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/patetisho1/rabotim-com-sub003/internal/domain"
	"github.com/patetisho1/rabotim-com-sub003/pkg/database"
)

const (
	upsertSummarySQL = `
		INSERT INTO user_rating_summaries (user_id, average_rating, total_reviews, dist_1, dist_2, dist_3, dist_4, dist_5,
		                                   quality_rating, communication_rating, punctuality_rating, badges, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			average_rating       = EXCLUDED.average_rating,
			total_reviews        = EXCLUDED.total_reviews,
			dist_1               = EXCLUDED.dist_1,
			dist_2               = EXCLUDED.dist_2,
			dist_3               = EXCLUDED.dist_3,
			dist_4               = EXCLUDED.dist_4,
			dist_5               = EXCLUDED.dist_5,
			quality_rating       = EXCLUDED.quality_rating,
			communication_rating = EXCLUDED.communication_rating,
			punctuality_rating   = EXCLUDED.punctuality_rating,
			badges               = EXCLUDED.badges,
			version              = user_rating_summaries.version + 1,
			updated_at           = NOW()
		RETURNING version, updated_at`

	getSummarySQL = `
		SELECT average_rating, total_reviews, dist_1, dist_2, dist_3, dist_4, dist_5,
		       quality_rating, communication_rating, punctuality_rating, badges, version, updated_at
		FROM user_rating_summaries
		WHERE user_id = $1`

	recentReviewsSQL = `SELECT ` + evaluationColumns + `
		FROM evaluations
		WHERE reviewed_user_id = $1 AND kind = 'review'
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
)

// SummaryRepository implements repository.SummaryRepository using PostgreSQL.
type SummaryRepository struct {
	pool database.DBTX
}

// NewSummaryRepository creates a new PostgreSQL-backed summary repository.
func NewSummaryRepository(pool database.DBTX) *SummaryRepository {
	return &SummaryRepository{pool: pool}
}

// Get reads the stored summary together with the newest reviews from one
// snapshot. Users without a summary row get the empty summary.
func (r *SummaryRepository) Get(ctx context.Context, userID string) (*domain.UserRatingSummary, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	return readSummary(ctx, tx, userID)
}

// GetWithEvaluations reads the summary and every evaluation the user
// received from the same snapshot, so the totals match the list.
func (r *SummaryRepository) GetWithEvaluations(ctx context.Context, userID string) (*domain.UserRatingSummary, []domain.Evaluation, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	s, err := readSummary(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}
	evaluations, err := listEvaluations(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}
	return s, evaluations, nil
}

func readSummary(ctx context.Context, q rowQuerier, userID string) (*domain.UserRatingSummary, error) {
	s := domain.EmptySummary(userID)
	var (
		dist    [5]int
		badges  []string
		updated time.Time
	)
	err := q.QueryRow(ctx, getSummarySQL, userID).Scan(
		&s.AverageRating,
		&s.TotalReviews,
		&dist[0],
		&dist[1],
		&dist[2],
		&dist[3],
		&dist[4],
		&s.CategoryRatings.Quality,
		&s.CategoryRatings.Communication,
		&s.CategoryRatings.Punctuality,
		&badges,
		&s.Version,
		&updated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s, nil
		}
		return nil, fmt.Errorf("get summary: %w", err)
	}

	for i, n := range dist {
		s.RatingDistribution[i+1] = n
	}
	s.CategoryRatings.Overall = s.AverageRating
	s.UpdatedAt = updated
	if badges != nil {
		s.Badges = badges
	}

	rows, err := q.Query(ctx, recentReviewsSQL, userID, domain.RecentReviewsWindow)
	if err != nil {
		return nil, fmt.Errorf("list recent reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row evaluationRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("scan recent review: %w", err)
		}
		e := row.evaluation()
		s.RecentReviews = append(s.RecentReviews, e.AsReview())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent reviews: %w", err)
	}

	return s, nil
}

// Refresh recomputes a user's summary from scratch in its own transaction,
// under the same per-user lock submissions take.
func (r *SummaryRepository) Refresh(ctx context.Context, userID string) (s *domain.UserRatingSummary, err error) {
	ctx, end := database.TraceQuery(ctx, "RefreshSummary", upsertSummarySQL)
	defer func() { end(err) }()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err = tx.Exec(ctx, lockUserSQL, userID); err != nil {
		return nil, fmt.Errorf("lock user summary: %w", err)
	}

	s, err = recomputeSummary(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return s, nil
}

type rowQuerier interface {
	querier
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// recomputeSummary loads every evaluation the user received, derives the
// summary and upserts it, bumping the row version.
func recomputeSummary(ctx context.Context, q rowQuerier, userID string) (*domain.UserRatingSummary, error) {
	evaluations, err := listEvaluations(ctx, q, userID)
	if err != nil {
		return nil, err
	}

	s := domain.ComputeSummary(userID, evaluations)

	err = q.QueryRow(ctx, upsertSummarySQL,
		userID,
		s.AverageRating,
		s.TotalReviews,
		s.RatingDistribution[1],
		s.RatingDistribution[2],
		s.RatingDistribution[3],
		s.RatingDistribution[4],
		s.RatingDistribution[5],
		s.CategoryRatings.Quality,
		s.CategoryRatings.Communication,
		s.CategoryRatings.Punctuality,
		s.Badges,
	).Scan(&s.Version, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert summary: %w", err)
	}

	return s, nil
}
