package sm2

import (
	"time"

	"github.com/papercomputeco/drills/pkg/study"
)

// Engine applies graded responses to review items using a clock.
type Engine struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewEngine creates an engine using the given clock, or time.Now when nil.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{Now: now}
}

// Apply returns a copy of item with its review state advanced by resp.
// The response is validated first so that an invalid rating never
// reaches the stored state. The next due date is counted from the engine
// clock; resp.Timestamp only dates the logged response.
func (e *Engine) Apply(item study.ReviewItem, resp *study.GradedResponse) (study.ReviewItem, error) {
	if err := resp.Validate(); err != nil {
		return item, err
	}
	if item.Ref() != resp.Ref() {
		return item, &study.ValidationError{Field: "itemId", Reason: "response does not match item " + item.Ref().String()}
	}

	item.ReviewState = Update(item.ReviewState, resp.IsCorrect, resp.EaseRating, e.Now())
	return item, nil
}
