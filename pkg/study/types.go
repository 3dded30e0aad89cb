// Package study holds the data model shared by the scheduling engine:
// review items and their spaced-repetition state, graded responses,
// per-topic performance and study sessions.
package study

import (
	"slices"
	"strings"
	"time"
)

// ItemType is the kind of review item.
type ItemType string

const (
	// ItemTypeAny matches both flashcards and MCQs in store queries.
	ItemTypeAny ItemType = ""

	ItemTypeFlashcard ItemType = "flashcard"
	ItemTypeMCQ       ItemType = "mcq"
)

// ItemTypes lists the concrete item types.
var ItemTypes = []ItemType{ItemTypeFlashcard, ItemTypeMCQ}

// Valid reports whether t is a concrete item type.
func (t ItemType) Valid() bool {
	return t == ItemTypeFlashcard || t == ItemTypeMCQ
}

// ParseItemType parses a concrete item type.
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", &ValidationError{Field: "itemType", Reason: "must be flashcard or mcq, got " + quote(s)}
	}
	return t, nil
}

// Default review state values for newly created items.
const (
	DefaultDifficulty   = 2
	DefaultIntervalDays = 1
	DefaultEaseFactor   = 2.5

	MinDifficulty = 0
	MaxDifficulty = 5
	MinEaseFactor = 1.3
)

// ItemRef identifies a review item.
type ItemRef struct {
	ItemID   string   `json:"itemId"`
	ItemType ItemType `json:"itemType"`
}

func (r ItemRef) String() string {
	return string(r.ItemType) + ":" + r.ItemID
}

// ReviewState is the spaced-repetition state of a single item.
type ReviewState struct {
	Difficulty     int        `json:"difficulty"`
	IntervalDays   int        `json:"intervalDays"`
	EaseFactor     float64    `json:"easeFactor"`
	DueAt          time.Time  `json:"dueAt"`
	LastReviewedAt *time.Time `json:"lastReviewedAt,omitempty"`
	ReviewCount    int        `json:"reviewCount"`
}

// ReviewItem is a flashcard or MCQ belonging to a user's study set.
type ReviewItem struct {
	ItemID     string    `json:"itemId"`
	ItemType   ItemType  `json:"itemType"`
	UserID     string    `json:"userId"`
	StudySetID string    `json:"studySetId"`
	Topics     []string  `json:"topics"`
	Prompt     string    `json:"prompt,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`

	ReviewState
}

// Ref returns the item's identity.
func (i *ReviewItem) Ref() ItemRef {
	return ItemRef{ItemID: i.ItemID, ItemType: i.ItemType}
}

// HasAnyTopic reports whether the item is tagged with any of topics.
func (i *ReviewItem) HasAnyTopic(topics []string) bool {
	for _, t := range i.Topics {
		if slices.Contains(topics, t) {
			return true
		}
	}
	return false
}

// StudySet groups review items under a set of topics.
type StudySet struct {
	StudySetID      string    `json:"studySetId"`
	UserID          string    `json:"userId"`
	Title           string    `json:"title"`
	Topics          []string  `json:"topics"`
	DifficultyLevel int       `json:"difficultyLevel"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Validate checks the study set's required fields.
func (s *StudySet) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return &ValidationError{Field: "userId", Reason: "is required"}
	}
	if err := ValidateTopics(s.Topics); err != nil {
		return err
	}
	if s.DifficultyLevel < MinDifficulty || s.DifficultyLevel > MaxDifficulty {
		return &ValidationError{Field: "difficultyLevel", Reason: "must be between 0 and 5"}
	}
	return nil
}

// ValidateTopics rejects empty topic lists and blank topic names.
func ValidateTopics(topics []string) error {
	if len(topics) == 0 {
		return &ValidationError{Field: "topics", Reason: "must not be empty"}
	}
	for _, t := range topics {
		if strings.TrimSpace(t) == "" {
			return &ValidationError{Field: "topics", Reason: "must not contain blank topics"}
		}
	}
	return nil
}

// EaseRating is the user's self-reported recall quality, 1 (hard) to 4 (easy).
// The zero value means the rating was not supplied.
type EaseRating int

const (
	EaseRatingAbsent  EaseRating = 0
	EaseRatingMin     EaseRating = 1
	EaseRatingMax     EaseRating = 4
	EaseRatingDefault EaseRating = 3
)

// OrDefault resolves an absent rating to the default.
func (r EaseRating) OrDefault() EaseRating {
	if r == EaseRatingAbsent {
		return EaseRatingDefault
	}
	return r
}

// Validate rejects supplied ratings outside [1,4].
func (r EaseRating) Validate() error {
	if r == EaseRatingAbsent {
		return nil
	}
	if r < EaseRatingMin || r > EaseRatingMax {
		return &ValidationError{Field: "easeRating", Reason: "must be between 1 and 4"}
	}
	return nil
}

// Clamp forces the rating into [1,4], defaulting an absent rating.
func (r EaseRating) Clamp() EaseRating {
	r = r.OrDefault()
	return max(EaseRatingMin, min(EaseRatingMax, r))
}

// GradedResponse is an immutable record of one user answer.
type GradedResponse struct {
	ResponseID string     `json:"responseId"`
	UserID     string     `json:"userId"`
	ItemID     string     `json:"itemId"`
	ItemType   ItemType   `json:"itemType"`
	SessionID  string     `json:"sessionId,omitempty"`
	IsCorrect  bool       `json:"isCorrect"`
	EaseRating EaseRating `json:"easeRating"`
	Topics     []string   `json:"topics"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Ref returns the answered item's identity.
func (r *GradedResponse) Ref() ItemRef {
	return ItemRef{ItemID: r.ItemID, ItemType: r.ItemType}
}

// Validate checks the response before any state is touched.
func (r *GradedResponse) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return &ValidationError{Field: "userId", Reason: "is required"}
	}
	if strings.TrimSpace(r.ItemID) == "" {
		return &ValidationError{Field: "itemId", Reason: "is required"}
	}
	if !r.ItemType.Valid() {
		return &ValidationError{Field: "itemType", Reason: "must be flashcard or mcq"}
	}
	return r.EaseRating.Validate()
}

// TopicPerformance tracks a user's results on one topic.
type TopicPerformance struct {
	UserID           string     `json:"userId"`
	Topic            string     `json:"topic"`
	TotalAttempts    int        `json:"totalAttempts"`
	CorrectAttempts  int        `json:"correctAttempts"`
	Accuracy7Day     float64    `json:"accuracy7day"`
	LastCalculatedAt *time.Time `json:"lastCalculatedAt,omitempty"`
}

// SessionType classifies a study session.
type SessionType string

const (
	SessionTypeDaily    SessionType = "daily"
	SessionTypeReview   SessionType = "review"
	SessionTypePractice SessionType = "practice"
)

// SessionStatus is the lifecycle state of a study session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// Breakdown counts pack items by the bucket they were selected from.
type Breakdown struct {
	DueCount       int `json:"dueCount"`
	WeakTopicCount int `json:"weakTopicCount"`
	NewCount       int `json:"newCount"`
}

// Total is the number of items across all buckets.
func (b Breakdown) Total() int {
	return b.DueCount + b.WeakTopicCount + b.NewCount
}

// StudySession is one sitting's worth of items for a user.
type StudySession struct {
	SessionID      string        `json:"sessionId"`
	UserID         string        `json:"userId"`
	SessionType    SessionType   `json:"sessionType"`
	ItemsTotal     int           `json:"itemsTotal"`
	ItemsCompleted int           `json:"itemsCompleted"`
	ItemsCorrect   int           `json:"itemsCorrect"`
	StartedAt      time.Time     `json:"startedAt"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
	Status         SessionStatus `json:"status"`
	Items          []ItemRef     `json:"items,omitempty"`
	Breakdown      Breakdown     `json:"breakdown"`
}

// Active reports whether the session can still be worked on.
func (s *StudySession) Active() bool {
	return s.Status == SessionStatusActive
}

// Complete transitions the session to completed with the given tallies.
func (s *StudySession) Complete(itemsCompleted, itemsCorrect int, at time.Time) error {
	if !s.Active() {
		return &ValidationError{Field: "status", Reason: "session is " + string(s.Status)}
	}
	if itemsCompleted < 0 || itemsCompleted > s.ItemsTotal {
		return &ValidationError{Field: "itemsCompleted", Reason: "must be between 0 and itemsTotal"}
	}
	if itemsCorrect < 0 || itemsCorrect > itemsCompleted {
		return &ValidationError{Field: "itemsCorrect", Reason: "must be between 0 and itemsCompleted"}
	}
	s.ItemsCompleted = itemsCompleted
	s.ItemsCorrect = itemsCorrect
	s.Status = SessionStatusCompleted
	s.CompletedAt = &at
	return nil
}

func quote(s string) string {
	return `"` + s + `"`
}
