package domain

import "errors"

// TaskStatusCompleted is the only task status that opens evaluation.
const TaskStatusCompleted = "completed"

// Reason explains an eligibility decision.
type Reason string

const (
	ReasonAllowed      Reason = "allowed"
	ReasonNotCompleted Reason = "not_completed"
	ReasonAlreadyRated Reason = "already_rated"
)

// Eligibility gate failures. Callers branch on them with errors.Is.
var (
	ErrNotCompleted = errors.New("task is not completed")
	ErrAlreadyRated = errors.New("task already evaluated by this reviewer")
)

// EligibilityDecision is the answer to whether a reviewer may evaluate a task.
type EligibilityDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

// Decide applies the gate rules in order: the task must be completed, then
// the reviewer must not have evaluated it in either form.
func Decide(taskStatus string, alreadyEvaluated bool) EligibilityDecision {
	switch {
	case taskStatus != TaskStatusCompleted:
		return EligibilityDecision{Reason: ReasonNotCompleted}
	case alreadyEvaluated:
		return EligibilityDecision{Reason: ReasonAlreadyRated}
	default:
		return EligibilityDecision{Allowed: true, Reason: ReasonAllowed}
	}
}

// Err returns the sentinel for a negative decision, nil when allowed.
func (d EligibilityDecision) Err() error {
	switch d.Reason {
	case ReasonNotCompleted:
		return ErrNotCompleted
	case ReasonAlreadyRated:
		return ErrAlreadyRated
	}
	return nil
}

// ReasonOf recovers the eligibility reason carried by err.
func ReasonOf(err error) Reason {
	switch {
	case errors.Is(err, ErrNotCompleted):
		return ReasonNotCompleted
	case errors.Is(err, ErrAlreadyRated):
		return ReasonAlreadyRated
	}
	return ""
}
