package scheduler

import (
	"github.com/papercomputeco/drills/pkg/notify"
	"github.com/papercomputeco/drills/pkg/pack"
	"github.com/papercomputeco/drills/pkg/study"
)

// Status is the outcome of one user's daily generation.
type Status string

const (
	StatusGenerated        Status = "generated"
	StatusAlreadyGenerated Status = "already_generated"
	StatusEmpty            Status = "empty"
	StatusSkipped          Status = "skipped"
	StatusFailed           Status = "failed"
)

// Result is the outcome of GenerateDaily.
type Result struct {
	Status   Status                 `json:"status"`
	Session  *study.StudySession    `json:"session,omitempty"`
	Pack     *pack.Pack             `json:"pack,omitempty"`
	Delivery *notify.DeliveryResult `json:"delivery,omitempty"`
}

// Err returns study.ErrEmptyPack for an empty pack and nil otherwise.
func (r *Result) Err() error {
	if r.Status == StatusEmpty {
		return study.ErrEmptyPack
	}
	return nil
}
