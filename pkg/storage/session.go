package storage

import (
	"github.com/papercomputeco/drills/pkg/study"
)

// ApplySessionProgress counts one answered item against an active session.
// It is shared by the backends so that session bookkeeping inside
// RecordReview behaves identically everywhere.
func ApplySessionProgress(session *study.StudySession, resp *study.GradedResponse) error {
	if session.UserID != resp.UserID {
		return &study.NotFoundError{Kind: "session", ID: session.SessionID}
	}
	if !session.Active() {
		return &study.ValidationError{Field: "sessionId", Reason: "session is " + string(session.Status)}
	}
	if session.ItemsCompleted < session.ItemsTotal {
		session.ItemsCompleted++
		if resp.IsCorrect {
			session.ItemsCorrect++
		}
	}
	return nil
}

// UniqueTopics returns topics with duplicates removed, preserving order.
func UniqueTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
