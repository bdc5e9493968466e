package domain

import (
	"strings"
	"time"
)

// Kind distinguishes the two evaluation shapes stored in one table.
type Kind string

const (
	KindRating Kind = "rating"
	KindReview Kind = "review"
)

// Category is the optional aspect a Rating scores.
type Category string

const (
	CategoryQuality       Category = "quality"
	CategoryCommunication Category = "communication"
	CategoryPunctuality   Category = "punctuality"
	CategoryOverall       Category = "overall"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryQuality, CategoryCommunication, CategoryPunctuality, CategoryOverall:
		return true
	}
	return false
}

// Evaluation is the stored form of both a Rating and a Review. Fields that
// belong to only one kind stay at their zero value for the other.
type Evaluation struct {
	ID             string
	Kind           Kind
	TaskID         string
	ReviewerID     string
	ReviewedUserID string
	Rating         int
	Category       Category
	Title          string
	Comment        string
	Pros           []string
	Cons           []string
	Tags           []string
	IsVerified     bool
	HelpfulCount   int
	ReportedCount  int
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// Rating is the lightweight, single-category evaluation.
type Rating struct {
	ID             string    `json:"id"`
	TaskID         string    `json:"task_id"`
	ReviewerID     string    `json:"reviewer_id"`
	ReviewedUserID string    `json:"reviewed_user_id"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"comment"`
	Category       *Category `json:"category,omitempty"`
	IsVerified     bool      `json:"is_verified"`
	CreatedAt      time.Time `json:"created_at"`
}

// Review is the rich evaluation that collects moderation counters.
type Review struct {
	ID             string     `json:"id"`
	TaskID         string     `json:"task_id"`
	ReviewerID     string     `json:"reviewer_id"`
	ReviewedUserID string     `json:"reviewed_user_id"`
	Rating         int        `json:"rating"`
	Title          string     `json:"title"`
	Comment        string     `json:"comment"`
	Pros           []string   `json:"pros"`
	Cons           []string   `json:"cons"`
	Tags           []string   `json:"tags"`
	IsVerified     bool       `json:"is_verified"`
	HelpfulCount   int        `json:"helpful_count"`
	ReportedCount  int        `json:"reported_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// AsRating projects e onto the Rating shape.
func (e *Evaluation) AsRating() Rating {
	r := Rating{
		ID:             e.ID,
		TaskID:         e.TaskID,
		ReviewerID:     e.ReviewerID,
		ReviewedUserID: e.ReviewedUserID,
		Rating:         e.Rating,
		Comment:        e.Comment,
		IsVerified:     e.IsVerified,
		CreatedAt:      e.CreatedAt,
	}
	if e.Category != "" {
		c := e.Category
		r.Category = &c
	}
	return r
}

// AsReview projects e onto the Review shape.
func (e *Evaluation) AsReview() Review {
	return Review{
		ID:             e.ID,
		TaskID:         e.TaskID,
		ReviewerID:     e.ReviewerID,
		ReviewedUserID: e.ReviewedUserID,
		Rating:         e.Rating,
		Title:          e.Title,
		Comment:        e.Comment,
		Pros:           nonNil(e.Pros),
		Cons:           nonNil(e.Cons),
		Tags:           nonNil(e.Tags),
		IsVerified:     e.IsVerified,
		HelpfulCount:   e.HelpfulCount,
		ReportedCount:  e.ReportedCount,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// NormalizeList trims every item and drops repeats, keeping the first
// occurrence and the original order. Empty items are kept so that
// validation can point at them.
func NormalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			if _, dup := seen[item]; dup {
				continue
			}
			seen[item] = struct{}{}
		}
		out = append(out, item)
	}
	return out
}

// NormalizeTags is NormalizeList on lower-cased tags.
func NormalizeTags(tags []string) []string {
	lowered := make([]string, len(tags))
	for i, t := range tags {
		lowered[i] = strings.ToLower(t)
	}
	return NormalizeList(lowered)
}
