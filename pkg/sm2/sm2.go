// Package sm2 implements the SM-2 variant used to schedule reviews.
//
// Correct answers grow the interval (1 day, 6 days, then interval × ease)
// and adjust the ease factor from the ease rating. Incorrect answers reset
// the interval to one day and raise difficulty, but leave the ease factor
// untouched.
package sm2

import (
	"math"
	"time"

	"github.com/papercomputeco/drills/pkg/study"
)

const day = 24 * time.Hour

// NewState returns the review state of a freshly created item.
// difficultyLevel comes from the owning study set and is clamped to 0..5.
func NewState(difficultyLevel int, now time.Time) study.ReviewState {
	return study.ReviewState{
		Difficulty:   clampDifficulty(difficultyLevel),
		IntervalDays: study.DefaultIntervalDays,
		EaseFactor:   study.DefaultEaseFactor,
		DueAt:        now,
		ReviewCount:  0,
	}
}

// Update computes the next review state after a graded response.
// It never fails: ratings are clamped to [1,4] and an absent rating counts
// as 3.
func Update(state study.ReviewState, isCorrect bool, rating study.EaseRating, now time.Time) study.ReviewState {
	state = Normalize(state)
	next := state

	if isCorrect {
		switch state.ReviewCount {
		case 0:
			next.IntervalDays = 1
		case 1:
			next.IntervalDays = 6
		default:
			next.IntervalDays = int(math.Round(float64(state.IntervalDays) * state.EaseFactor))
		}

		q := float64(5 - rating.Clamp())
		next.EaseFactor = state.EaseFactor + (0.1 - q*(0.08+q*0.02))
		next.Difficulty = max(study.MinDifficulty, state.Difficulty-1)
	} else {
		next.IntervalDays = 1
		next.Difficulty = min(study.MaxDifficulty, state.Difficulty+1)
	}

	next.IntervalDays = max(1, next.IntervalDays)
	next.EaseFactor = roundEase(math.Max(study.MinEaseFactor, next.EaseFactor))
	next.DueAt = now.Add(time.Duration(next.IntervalDays) * day)
	next.ReviewCount = state.ReviewCount + 1
	reviewed := now
	next.LastReviewedAt = &reviewed

	return next
}

// Normalize repairs a persisted state that violates the review invariants.
func Normalize(state study.ReviewState) study.ReviewState {
	state.Difficulty = clampDifficulty(state.Difficulty)
	if state.IntervalDays < 1 {
		state.IntervalDays = 1
	}
	if state.EaseFactor < study.MinEaseFactor {
		state.EaseFactor = study.MinEaseFactor
	}
	if state.ReviewCount < 0 {
		state.ReviewCount = 0
	}
	return state
}

func clampDifficulty(d int) int {
	return max(study.MinDifficulty, min(study.MaxDifficulty, d))
}

func roundEase(ef float64) float64 {
	return math.Round(ef*100) / 100
}
