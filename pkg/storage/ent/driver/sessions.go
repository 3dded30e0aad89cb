package entdriver

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"

	"github.com/papercomputeco/drills/pkg/storage/ent/migrate"
	"github.com/papercomputeco/drills/pkg/study"
)

var sessionColumns = []string{
	"session_id", "user_id", "session_type", "items_total", "items_completed",
	"items_correct", "started_at", "completed_at", "status", "items",
	"due_count", "weak_topic_count", "new_count",
}

type sessionRow struct {
	SessionID      string     `sql:"session_id"`
	UserID         string     `sql:"user_id"`
	SessionType    string     `sql:"session_type"`
	ItemsTotal     int        `sql:"items_total"`
	ItemsCompleted int        `sql:"items_completed"`
	ItemsCorrect   int        `sql:"items_correct"`
	StartedAt      time.Time  `sql:"started_at"`
	CompletedAt    *time.Time `sql:"completed_at"`
	Status         string     `sql:"status"`
	Items          []byte     `sql:"items"`
	DueCount       int        `sql:"due_count"`
	WeakTopicCount int        `sql:"weak_topic_count"`
	NewCount       int        `sql:"new_count"`
}

func (r *sessionRow) toSession() (*study.StudySession, error) {
	s := &study.StudySession{
		SessionID:      r.SessionID,
		UserID:         r.UserID,
		SessionType:    study.SessionType(r.SessionType),
		ItemsTotal:     r.ItemsTotal,
		ItemsCompleted: r.ItemsCompleted,
		ItemsCorrect:   r.ItemsCorrect,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		Status:         study.SessionStatus(r.Status),
		Breakdown: study.Breakdown{
			DueCount:       r.DueCount,
			WeakTopicCount: r.WeakTopicCount,
			NewCount:       r.NewCount,
		},
	}
	if err := decodeJSON(r.Items, &s.Items); err != nil {
		return nil, err
	}
	return s, nil
}

func (ed *EntDriver) querySessions(ctx context.Context, q dialect.ExecQuerier, preds ...*entsql.Predicate) ([]*study.StudySession, error) {
	b := ed.builder()
	t := b.Table(migrate.StudySessionsTableName)
	query, args := b.Select(t.Columns(sessionColumns...)...).
		From(t).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc(t.C("started_at"))).
		Query()

	var rows []sessionRow
	if err := scan(ctx, q, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	sessions := make([]*study.StudySession, 0, len(rows))
	for i := range rows {
		s, err := rows[i].toSession()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// CreateStudySession stores a new session.
func (ed *EntDriver) CreateStudySession(ctx context.Context, session *study.StudySession) error {
	return ed.createSession(ctx, ed.Driver, session)
}

func (ed *EntDriver) createSession(ctx context.Context, q dialect.ExecQuerier, session *study.StudySession) error {
	items, err := encodeJSON(session.Items)
	if err != nil {
		return err
	}

	query, args := ed.builder().Insert(migrate.StudySessionsTableName).
		Columns(sessionColumns...).
		Values(
			session.SessionID, session.UserID, string(session.SessionType), session.ItemsTotal,
			session.ItemsCompleted, session.ItemsCorrect, ts(session.StartedAt), tsPtr(session.CompletedAt),
			string(session.Status), items, session.Breakdown.DueCount, session.Breakdown.WeakTopicCount,
			session.Breakdown.NewCount,
		).
		Query()
	if _, err := exec(ctx, q, query, args); err != nil {
		if sqlgraph.IsUniqueConstraintError(err) {
			return &study.ValidationError{Field: "sessionId", Reason: "already exists: " + session.SessionID}
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindActiveSessionToday returns the most recently started active session
// of the type within [dayStart, dayEnd).
func (ed *EntDriver) FindActiveSessionToday(ctx context.Context, userID string, sessionType study.SessionType, dayStart, dayEnd time.Time) (*study.StudySession, error) {
	sessions, err := ed.querySessions(ctx, ed.Driver,
		entsql.EQ("user_id", userID),
		entsql.EQ("session_type", string(sessionType)),
		entsql.EQ("status", string(study.SessionStatusActive)),
		entsql.GTE("started_at", ts(dayStart)),
		entsql.LT("started_at", ts(dayEnd)),
	)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return sessions[0], nil
}

// GetSession retrieves a session by id.
func (ed *EntDriver) GetSession(ctx context.Context, sessionID string) (*study.StudySession, error) {
	return ed.getSession(ctx, ed.Driver, sessionID)
}

func (ed *EntDriver) getSession(ctx context.Context, q dialect.ExecQuerier, sessionID string) (*study.StudySession, error) {
	sessions, err := ed.querySessions(ctx, q, entsql.EQ("session_id", sessionID))
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, &study.NotFoundError{Kind: "session", ID: sessionID}
	}
	return sessions[0], nil
}

// UpdateSession persists a session's progress and status.
func (ed *EntDriver) UpdateSession(ctx context.Context, session *study.StudySession) error {
	return ed.updateSession(ctx, ed.Driver, session)
}

func (ed *EntDriver) updateSession(ctx context.Context, q dialect.ExecQuerier, session *study.StudySession) error {
	upd := ed.builder().Update(migrate.StudySessionsTableName).
		Set("items_completed", session.ItemsCompleted).
		Set("items_correct", session.ItemsCorrect).
		Set("status", string(session.Status))
	if session.CompletedAt != nil {
		upd.Set("completed_at", ts(*session.CompletedAt))
	}
	query, args := upd.Where(entsql.EQ("session_id", session.SessionID)).Query()

	n, err := exec(ctx, q, query, args)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n == 0 {
		return &study.NotFoundError{Kind: "session", ID: session.SessionID}
	}
	return nil
}

// AbandonSessions marks stale active sessions as abandoned.
func (ed *EntDriver) AbandonSessions(ctx context.Context, userID string, sessionType study.SessionType, before time.Time) (int, error) {
	return ed.abandonSessions(ctx, ed.Driver, userID, sessionType, before)
}

// StartSession abandons older active sessions and inserts session in one
// transaction.
func (ed *EntDriver) StartSession(ctx context.Context, session *study.StudySession, abandonBefore time.Time) (int, error) {
	var n int
	err := ed.withTx(ctx, func(tx dialect.Tx) error {
		var err error
		if n, err = ed.abandonSessions(ctx, tx, session.UserID, session.SessionType, abandonBefore); err != nil {
			return err
		}
		return ed.createSession(ctx, tx, session)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (ed *EntDriver) abandonSessions(ctx context.Context, q dialect.ExecQuerier, userID string, sessionType study.SessionType, before time.Time) (int, error) {
	query, args := ed.builder().Update(migrate.StudySessionsTableName).
		Set("status", string(study.SessionStatusAbandoned)).
		Where(entsql.And(
			entsql.EQ("user_id", userID),
			entsql.EQ("session_type", string(sessionType)),
			entsql.EQ("status", string(study.SessionStatusActive)),
			entsql.LT("started_at", ts(before)),
		)).
		Query()

	n, err := exec(ctx, q, query, args)
	if err != nil {
		return 0, fmt.Errorf("failed to abandon sessions: %w", err)
	}
	return int(n), nil
}
