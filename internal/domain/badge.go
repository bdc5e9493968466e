package domain

import "math"

// Badge labels, in the order they are emitted.
const (
	BadgeTopPerformer  = "Top performer"
	BadgeReliable      = "Reliable"
	BadgePunctual      = "Punctual"
	BadgeCommunicative = "Communicative"
)

// DeriveBadges maps aggregate metrics to badges. Rules are independent; a
// user with no evaluations earns none.
func DeriveBadges(average float64, total int, categories CategoryRatings) []string {
	badges := []string{}
	if total == 0 {
		return badges
	}

	avg := tenths(average)
	if avg >= 45 && total >= 5 {
		badges = append(badges, BadgeTopPerformer)
	}
	if avg >= 40 && total >= 10 {
		badges = append(badges, BadgeReliable)
	}
	if tenths(categories.Punctuality) >= 45 {
		badges = append(badges, BadgePunctual)
	}
	if tenths(categories.Communication) >= 45 {
		badges = append(badges, BadgeCommunicative)
	}
	return badges
}

// tenths compares one-decimal scores as integers.
func tenths(v float64) int {
	return int(math.Round(v * 10))
}
