package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/patetisho1/rabotim-com-sub003/internal/domain"
	pkgkafka "github.com/patetisho1/rabotim-com-sub003/pkg/kafka"
	"github.com/patetisho1/rabotim-com-sub003/pkg/logger"
)

// Kafka topics for reputation events.
const (
	TopicEvaluationSubmitted = "rabotim.reputation.evaluation_submitted"
	TopicSummaryUpdated      = "rabotim.reputation.summary_updated"
	TopicReviewReported      = "rabotim.reputation.review_reported"
)

// Aggregate types.
const (
	AggregateTypeEvaluation = "evaluation"
	AggregateTypeUser       = "user"
)

// SourceReputationService identifies events emitted by this service.
const SourceReputationService = "reputation-service"

// EvaluationSubmittedData is the payload of an evaluation_submitted event.
type EvaluationSubmittedData struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	TaskID         string `json:"task_id"`
	ReviewerID     string `json:"reviewer_id"`
	ReviewedUserID string `json:"reviewed_user_id"`
	Rating         int    `json:"rating"`
	Category       string `json:"category,omitempty"`
}

// SummaryUpdatedData is the payload of a summary_updated event.
type SummaryUpdatedData struct {
	UserID        string   `json:"user_id"`
	AverageRating float64  `json:"average_rating"`
	TotalReviews  int      `json:"total_reviews"`
	Badges        []string `json:"badges"`
	Version       int64    `json:"version"`
}

// ReviewReportedData is the payload of a review_reported event.
type ReviewReportedData struct {
	ReviewID       string `json:"review_id"`
	ReviewedUserID string `json:"reviewed_user_id"`
	ReportedCount  int    `json:"reported_count"`
}

// Publisher is the part of pkg/kafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes reputation events. With a nil publisher every method
// is a no-op, which is how the service runs without Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new reputation event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// PublishEvaluationSubmitted announces a newly stored evaluation.
func (p *Producer) PublishEvaluationSubmitted(ctx context.Context, e *domain.Evaluation) error {
	return p.publish(ctx, TopicEvaluationSubmitted, e.ID, AggregateTypeEvaluation, EvaluationSubmittedData{
		ID:             e.ID,
		Kind:           string(e.Kind),
		TaskID:         e.TaskID,
		ReviewerID:     e.ReviewerID,
		ReviewedUserID: e.ReviewedUserID,
		Rating:         e.Rating,
		Category:       string(e.Category),
	})
}

// PublishSummaryUpdated announces a recomputed user summary.
func (p *Producer) PublishSummaryUpdated(ctx context.Context, s *domain.UserRatingSummary) error {
	return p.publish(ctx, TopicSummaryUpdated, s.UserID, AggregateTypeUser, SummaryUpdatedData{
		UserID:        s.UserID,
		AverageRating: s.AverageRating,
		TotalReviews:  s.TotalReviews,
		Badges:        s.Badges,
		Version:       s.Version,
	})
}

// PublishReviewReported hands a reported review to the triage workflow.
func (p *Producer) PublishReviewReported(ctx context.Context, r *domain.Evaluation) error {
	return p.publish(ctx, TopicReviewReported, r.ID, AggregateTypeEvaluation, ReviewReportedData{
		ReviewID:       r.ID,
		ReviewedUserID: r.ReviewedUserID,
		ReportedCount:  r.ReportedCount,
	})
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	if p.kafka == nil {
		return nil
	}

	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceReputationService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}
