package service

import (
	"strings"

	"github.com/patetisho1/rabotim-com-sub003/internal/domain"
)

// SubmitRatingInput holds the parameters for submitting a Rating.
type SubmitRatingInput struct {
	TaskID         string `json:"task_id" validate:"required,uuid"`
	ReviewerID     string `json:"reviewer_id" validate:"required,uuid"`
	ReviewedUserID string `json:"reviewed_user_id" validate:"required,uuid,nefield=ReviewerID"`
	Rating         int    `json:"rating" validate:"min=1,max=5"`
	Comment        string `json:"comment" validate:"max=1000"`
	Category       string `json:"category" validate:"omitempty,oneof=quality communication punctuality overall"`
}

func (in *SubmitRatingInput) normalize() {
	in.TaskID = strings.TrimSpace(in.TaskID)
	in.ReviewedUserID = strings.TrimSpace(in.ReviewedUserID)
	in.Comment = strings.TrimSpace(in.Comment)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
}

// SubmitReviewInput holds the parameters for submitting a Review.
type SubmitReviewInput struct {
	TaskID         string   `json:"task_id" validate:"required,uuid"`
	ReviewerID     string   `json:"reviewer_id" validate:"required,uuid"`
	ReviewedUserID string   `json:"reviewed_user_id" validate:"required,uuid,nefield=ReviewerID"`
	Rating         int      `json:"rating" validate:"min=1,max=5"`
	Title          string   `json:"title" validate:"required,max=200"`
	Comment        string   `json:"comment" validate:"required,max=1000"`
	Pros           []string `json:"pros" validate:"max=10,dive,required,max=100"`
	Cons           []string `json:"cons" validate:"max=10,dive,required,max=100"`
	Tags           []string `json:"tags" validate:"max=10,dive,required,max=100"`
}

func (in *SubmitReviewInput) normalize() {
	in.TaskID = strings.TrimSpace(in.TaskID)
	in.ReviewedUserID = strings.TrimSpace(in.ReviewedUserID)
	in.Title = strings.TrimSpace(in.Title)
	in.Comment = strings.TrimSpace(in.Comment)
	in.Pros = domain.NormalizeList(in.Pros)
	in.Cons = domain.NormalizeList(in.Cons)
	in.Tags = domain.NormalizeTags(in.Tags)
}

// UserEvaluations is everything a user received, split by kind, with the
// user's summary.
type UserEvaluations struct {
	Ratings []domain.Rating           `json:"ratings"`
	Reviews []domain.Review           `json:"reviews"`
	Summary *domain.UserRatingSummary `json:"summary"`
}

// EvaluationView is a single evaluation in the shape of its kind.
type EvaluationView struct {
	Kind   domain.Kind    `json:"kind"`
	Rating *domain.Rating `json:"rating,omitempty"`
	Review *domain.Review `json:"review,omitempty"`
}
