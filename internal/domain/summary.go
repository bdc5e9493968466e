package domain

import (
	"sort"
	"time"
)

// RecentReviewsWindow is how many reviews a summary carries.
const RecentReviewsWindow = 5

// CategoryRatings holds the per-aspect sub-averages. Overall always equals
// the summary's average rating.
type CategoryRatings struct {
	Quality       float64 `json:"quality"`
	Communication float64 `json:"communication"`
	Punctuality   float64 `json:"punctuality"`
	Overall       float64 `json:"overall"`
}

// UserRatingSummary is the derived reputation of one reviewed user.
type UserRatingSummary struct {
	UserID             string          `json:"user_id"`
	AverageRating      float64         `json:"average_rating"`
	TotalReviews       int             `json:"total_reviews"`
	RatingDistribution map[int]int     `json:"rating_distribution"`
	CategoryRatings    CategoryRatings `json:"category_ratings"`
	RecentReviews      []Review        `json:"recent_reviews"`
	Badges             []string        `json:"badges"`
	Version            int64           `json:"version"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// EmptyDistribution returns a histogram with every star value present.
func EmptyDistribution() map[int]int {
	return map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
}

// EmptySummary is the summary of a user nobody has evaluated yet.
func EmptySummary(userID string) *UserRatingSummary {
	return &UserRatingSummary{
		UserID:             userID,
		RatingDistribution: EmptyDistribution(),
		RecentReviews:      []Review{},
		Badges:             []string{},
	}
}

// ComputeSummary derives a user's summary from the complete set of
// evaluations they received. It is a full recompute; nothing is carried
// over from a previous summary besides what the caller sets afterwards.
func ComputeSummary(userID string, evaluations []Evaluation) *UserRatingSummary {
	s := EmptySummary(userID)
	if len(evaluations) == 0 {
		return s
	}

	var (
		sum       int
		catSum    = map[Category]int{}
		catCount  = map[Category]int{}
		reviewSet []Evaluation
	)
	for i := range evaluations {
		e := &evaluations[i]
		sum += e.Rating
		s.RatingDistribution[e.Rating]++

		switch e.Kind {
		case KindRating:
			if e.Category != "" {
				catSum[e.Category] += e.Rating
				catCount[e.Category]++
			}
		case KindReview:
			reviewSet = append(reviewSet, *e)
		}
	}

	s.TotalReviews = len(evaluations)
	s.AverageRating = RoundedMean(sum, s.TotalReviews)
	s.CategoryRatings = CategoryRatings{
		Quality:       RoundedMean(catSum[CategoryQuality], catCount[CategoryQuality]),
		Communication: RoundedMean(catSum[CategoryCommunication], catCount[CategoryCommunication]),
		Punctuality:   RoundedMean(catSum[CategoryPunctuality], catCount[CategoryPunctuality]),
		Overall:       s.AverageRating,
	}
	s.RecentReviews = RecentReviews(reviewSet)
	s.Badges = DeriveBadges(s.AverageRating, s.TotalReviews, s.CategoryRatings)
	return s
}

// RecentReviews returns the newest reviews, up to RecentReviewsWindow,
// newest first. Ties on creation time fall back to the ID for a stable order.
func RecentReviews(reviews []Evaluation) []Review {
	sorted := make([]Evaluation, len(reviews))
	copy(sorted, reviews)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].ID > sorted[j].ID
	})

	n := min(len(sorted), RecentReviewsWindow)
	out := make([]Review, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, sorted[i].AsReview())
	}
	return out
}

// RoundedMean returns sum/n rounded half-up to one decimal, or 0 when n is 0.
// Integer arithmetic keeps values such as 4.25 from drifting below the
// midpoint.
func RoundedMean(sum, n int) float64 {
	if n <= 0 {
		return 0
	}
	tenths := (20*sum + n) / (2 * n)
	return float64(tenths) / 10
}
