package pack

import (
	"fmt"
)

// Policy holds the per-bucket caps a pack is composed with.
type Policy struct {
	DueFlashcards int `json:"dueFlashcards" toml:"due_flashcards"`
	DueMCQs       int `json:"dueMcqs" toml:"due_mcqs"`

	WeakTopicLimit  int `json:"weakTopicLimit" toml:"weak_topic_limit"`
	WeakMinAttempts int `json:"weakMinAttempts" toml:"weak_min_attempts"`
	WeakFlashcards  int `json:"weakFlashcards" toml:"weak_flashcards"`
	WeakMCQs        int `json:"weakMcqs" toml:"weak_mcqs"`

	NewFlashcards int `json:"newFlashcards" toml:"new_flashcards"`
	NewMCQs       int `json:"newMcqs" toml:"new_mcqs"`

	// MaxItems caps the merged pack.
	MaxItems int `json:"maxItems" toml:"max_items"`

	// Oversample multiplies the weak and new fetch limits so that random
	// tie-breaks pick from a wider pool than the cap.
	Oversample int `json:"oversample" toml:"oversample"`
}

// DefaultPolicy returns the stock daily pack policy.
func DefaultPolicy() Policy {
	return Policy{
		DueFlashcards:   12,
		DueMCQs:         8,
		WeakTopicLimit:  5,
		WeakMinAttempts: 3,
		WeakFlashcards:  5,
		WeakMCQs:        3,
		NewFlashcards:   3,
		NewMCQs:         2,
		MaxItems:        25,
		Oversample:      4,
	}
}

// Validate rejects negative caps and a non-positive total.
func (p Policy) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"dueFlashcards", p.DueFlashcards},
		{"dueMcqs", p.DueMCQs},
		{"weakTopicLimit", p.WeakTopicLimit},
		{"weakMinAttempts", p.WeakMinAttempts},
		{"weakFlashcards", p.WeakFlashcards},
		{"weakMcqs", p.WeakMCQs},
		{"newFlashcards", p.NewFlashcards},
		{"newMcqs", p.NewMCQs},
	}
	for _, f := range fields {
		if f.value < 0 {
			return fmt.Errorf("pack policy %s must not be negative, got %d", f.name, f.value)
		}
	}
	if p.MaxItems <= 0 {
		return fmt.Errorf("pack policy maxItems must be positive, got %d", p.MaxItems)
	}
	if p.Oversample < 1 {
		return fmt.Errorf("pack policy oversample must be at least 1, got %d", p.Oversample)
	}
	return nil
}
