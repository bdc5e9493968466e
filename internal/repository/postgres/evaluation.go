package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/patetisho1/rabotim-com-sub003/internal/domain"
	"github.com/patetisho1/rabotim-com-sub003/pkg/database"
	apperrors "github.com/patetisho1/rabotim-com-sub003/pkg/errors"
)

const evaluationColumns = `id, kind, task_id, reviewer_id, reviewed_user_id, rating, category, title, comment,
		       pros, cons, tags, is_verified, helpful_count, reported_count, created_at, updated_at`

const (
	lockUserSQL = `SELECT pg_advisory_xact_lock(hashtext($1))`

	existsSQL = `SELECT EXISTS(SELECT 1 FROM evaluations WHERE task_id = $1 AND reviewer_id = $2)`

	insertEvaluationSQL = `
		INSERT INTO evaluations (id, kind, task_id, reviewer_id, reviewed_user_id, rating, category, title, comment,
		                         pros, cons, tags, is_verified, helpful_count, reported_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 0, 0, $14)`

	getEvaluationSQL = `SELECT ` + evaluationColumns + ` FROM evaluations WHERE id = $1`

	listByUserSQL = `SELECT ` + evaluationColumns + `
		FROM evaluations
		WHERE reviewed_user_id = $1
		ORDER BY created_at DESC, id DESC`

	listReviewsSQL = `SELECT ` + evaluationColumns + `, count(*) OVER() AS total_count
		FROM evaluations
		WHERE reviewed_user_id = $1 AND kind = 'review'
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	reviewOwnerSQL = `SELECT reviewed_user_id FROM evaluations WHERE id = $1 AND kind = 'review'`

	bumpSummaryVersionSQL = `UPDATE user_rating_summaries SET version = version + 1
		WHERE user_id = $1
		RETURNING version`

	incrementHelpfulSQL = `UPDATE evaluations SET helpful_count = helpful_count + 1
		WHERE id = $1 AND kind = 'review'
		RETURNING ` + evaluationColumns

	incrementReportedSQL = `UPDATE evaluations SET reported_count = reported_count + 1
		WHERE id = $1 AND kind = 'review'
		RETURNING ` + evaluationColumns
)

// EvaluationRepository implements repository.EvaluationRepository using
// PostgreSQL. Ratings and reviews share the evaluations table, so a single
// UNIQUE (task_id, reviewer_id) constraint covers both kinds.
type EvaluationRepository struct {
	pool database.DBTX
}

// NewEvaluationRepository creates a new PostgreSQL-backed evaluation repository.
func NewEvaluationRepository(pool database.DBTX) *EvaluationRepository {
	return &EvaluationRepository{pool: pool}
}

// Submit inserts e and rewrites the reviewed user's summary atomically.
// The advisory lock serializes writers per reviewed user so concurrent
// submissions cannot interleave their recomputes; the unique constraint
// still backs the existence check for writers holding different locks.
func (r *EvaluationRepository) Submit(ctx context.Context, e *domain.Evaluation) (summary *domain.UserRatingSummary, err error) {
	ctx, end := database.TraceQuery(ctx, "SubmitEvaluation", insertEvaluationSQL)
	defer func() { end(err) }()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err = tx.Exec(ctx, lockUserSQL, e.ReviewedUserID); err != nil {
		return nil, fmt.Errorf("lock user summary: %w", err)
	}

	var exists bool
	if err = tx.QueryRow(ctx, existsSQL, e.TaskID, e.ReviewerID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check existing evaluation: %w", err)
	}
	if exists {
		return nil, domain.ErrAlreadyRated
	}

	_, err = tx.Exec(ctx, insertEvaluationSQL,
		e.ID,
		string(e.Kind),
		e.TaskID,
		e.ReviewerID,
		e.ReviewedUserID,
		e.Rating,
		nullableCategory(e.Category),
		e.Title,
		e.Comment,
		emptyIfNil(e.Pros),
		emptyIfNil(e.Cons),
		emptyIfNil(e.Tags),
		e.IsVerified,
		e.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, domain.ErrAlreadyRated
		}
		return nil, fmt.Errorf("insert evaluation: %w", err)
	}

	summary, err = recomputeSummary(ctx, tx, e.ReviewedUserID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return summary, nil
}

// Exists reports whether (taskID, reviewerID) already has an evaluation.
func (r *EvaluationRepository) Exists(ctx context.Context, taskID, reviewerID string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, existsSQL, taskID, reviewerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check existing evaluation: %w", err)
	}
	return exists, nil
}

// GetByID retrieves an evaluation by its identifier.
func (r *EvaluationRepository) GetByID(ctx context.Context, id string) (*domain.Evaluation, error) {
	e, err := scanEvaluation(r.pool.QueryRow(ctx, getEvaluationSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("evaluation", id)
		}
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	return e, nil
}

// ListReviews returns a page of reviews received by userID and the total
// number of reviews.
func (r *EvaluationRepository) ListReviews(ctx context.Context, userID string, page, perPage int) ([]domain.Evaluation, int, error) {
	limit := perPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if page > 1 {
		offset = (page - 1) * limit
	}

	rows, err := r.pool.Query(ctx, listReviewsSQL, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var (
		reviews    = []domain.Evaluation{}
		totalCount int
	)
	for rows.Next() {
		var r evaluationRow
		if err := rows.Scan(append(r.dest(), &totalCount)...); err != nil {
			return nil, 0, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, r.evaluation())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate review rows: %w", err)
	}

	return reviews, totalCount, nil
}

// IncrementHelpful adds one to a review's helpful counter.
func (r *EvaluationRepository) IncrementHelpful(ctx context.Context, reviewID string) (*domain.Evaluation, int64, error) {
	return r.increment(ctx, "IncrementHelpful", incrementHelpfulSQL, reviewID)
}

// IncrementReported adds one to a review's report counter.
func (r *EvaluationRepository) IncrementReported(ctx context.Context, reviewID string) (*domain.Evaluation, int64, error) {
	return r.increment(ctx, "IncrementReported", incrementReportedSQL, reviewID)
}

// increment runs a single UPDATE ... RETURNING so concurrent increments are
// never lost. It holds the reviewed user's lock and bumps the summary
// version in the same transaction, since the summary's recent reviews carry
// the counters. Rating ids match no row and report NotFound like unknown ids.
func (r *EvaluationRepository) increment(ctx context.Context, op, query, reviewID string) (e *domain.Evaluation, version int64, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID string
	if err = tx.QueryRow(ctx, reviewOwnerSQL, reviewID).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, apperrors.NotFound("review", reviewID)
		}
		return nil, 0, fmt.Errorf("%s: find review: %w", op, err)
	}

	if _, err = tx.Exec(ctx, lockUserSQL, userID); err != nil {
		return nil, 0, fmt.Errorf("lock user summary: %w", err)
	}

	e, err = scanEvaluation(tx.QueryRow(ctx, query, reviewID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, apperrors.NotFound("review", reviewID)
		}
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	err = tx.QueryRow(ctx, bumpSummaryVersionSQL, userID).Scan(&version)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, fmt.Errorf("bump summary version: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("commit transaction: %w", err)
	}
	return e, version, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listEvaluations(ctx context.Context, q querier, userID string) ([]domain.Evaluation, error) {
	rows, err := q.Query(ctx, listByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	evaluations := []domain.Evaluation{}
	for rows.Next() {
		var r evaluationRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("scan evaluation row: %w", err)
		}
		evaluations = append(evaluations, r.evaluation())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluation rows: %w", err)
	}
	return evaluations, nil
}

// evaluationRow mirrors an evaluations row with driver-friendly types for
// the columns that are nullable or typed in the domain.
type evaluationRow struct {
	e        domain.Evaluation
	kind     string
	category *string
}

func (r *evaluationRow) dest() []any {
	return []any{
		&r.e.ID,
		&r.kind,
		&r.e.TaskID,
		&r.e.ReviewerID,
		&r.e.ReviewedUserID,
		&r.e.Rating,
		&r.category,
		&r.e.Title,
		&r.e.Comment,
		&r.e.Pros,
		&r.e.Cons,
		&r.e.Tags,
		&r.e.IsVerified,
		&r.e.HelpfulCount,
		&r.e.ReportedCount,
		&r.e.CreatedAt,
		&r.e.UpdatedAt,
	}
}

func (r *evaluationRow) evaluation() domain.Evaluation {
	e := r.e
	e.Kind = domain.Kind(r.kind)
	if r.category != nil {
		e.Category = domain.Category(*r.category)
	}
	return e
}

func scanEvaluation(row pgx.Row) (*domain.Evaluation, error) {
	var r evaluationRow
	if err := row.Scan(r.dest()...); err != nil {
		return nil, err
	}
	e := r.evaluation()
	return &e, nil
}

func nullableCategory(c domain.Category) *string {
	if c == "" {
		return nil
	}
	s := string(c)
	return &s
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
