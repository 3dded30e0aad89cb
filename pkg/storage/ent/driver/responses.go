package entdriver

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/drills/pkg/storage"
	"github.com/papercomputeco/drills/pkg/storage/ent/migrate"
	"github.com/papercomputeco/drills/pkg/study"
)

var responseColumns = []string{
	"response_id", "user_id", "item_id", "item_type", "session_id",
	"is_correct", "ease_rating", "topics", "timestamp",
}

type responseRow struct {
	ResponseID string    `sql:"response_id"`
	UserID     string    `sql:"user_id"`
	ItemID     string    `sql:"item_id"`
	ItemType   string    `sql:"item_type"`
	SessionID  *string   `sql:"session_id"`
	IsCorrect  bool      `sql:"is_correct"`
	EaseRating int       `sql:"ease_rating"`
	Topics     []byte    `sql:"topics"`
	Timestamp  time.Time `sql:"timestamp"`
}

func (r *responseRow) toResponse() (*study.GradedResponse, error) {
	resp := &study.GradedResponse{
		ResponseID: r.ResponseID,
		UserID:     r.UserID,
		ItemID:     r.ItemID,
		ItemType:   study.ItemType(r.ItemType),
		IsCorrect:  r.IsCorrect,
		EaseRating: study.EaseRating(r.EaseRating),
		Timestamp:  r.Timestamp,
	}
	if r.SessionID != nil {
		resp.SessionID = *r.SessionID
	}
	if err := decodeJSON(r.Topics, &resp.Topics); err != nil {
		return nil, err
	}
	return resp, nil
}

// AppendResponse records a graded response.
func (ed *EntDriver) AppendResponse(ctx context.Context, resp *study.GradedResponse) error {
	return ed.appendResponse(ctx, ed.Driver, resp)
}

func (ed *EntDriver) appendResponse(ctx context.Context, q dialect.ExecQuerier, resp *study.GradedResponse) error {
	topics, err := encodeJSON(resp.Topics)
	if err != nil {
		return err
	}
	var session any
	if resp.SessionID != "" {
		session = resp.SessionID
	}

	query, args := ed.builder().Insert(migrate.GradedResponsesTableName).
		Columns(responseColumns...).
		Values(
			resp.ResponseID, resp.UserID, resp.ItemID, string(resp.ItemType), session,
			resp.IsCorrect, int(resp.EaseRating), topics, ts(resp.Timestamp),
		).
		Query()
	if _, err := exec(ctx, q, query, args); err != nil {
		return fmt.Errorf("failed to append response: %w", err)
	}
	return nil
}

// QueryResponses yields the user's responses since the given time in
// timestamp order. Topic filtering happens after decoding because topics
// are stored as JSON.
func (ed *EntDriver) QueryResponses(ctx context.Context, userID string, since time.Time, topics []string) iter.Seq2[*study.GradedResponse, error] {
	return func(yield func(*study.GradedResponse, error) bool) {
		b := ed.builder()
		t := b.Table(migrate.GradedResponsesTableName)
		query, args := b.Select(t.Columns(responseColumns...)...).
			From(t).
			Where(entsql.And(
				entsql.EQ(t.C("user_id"), userID),
				entsql.GTE(t.C("timestamp"), ts(since)),
			)).
			OrderBy(t.C("timestamp"), t.C("response_id")).
			Query()

		rows := &entsql.Rows{}
		if err := ed.Driver.Query(ctx, query, args, rows); err != nil {
			yield(nil, fmt.Errorf("failed to query responses: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var r responseRow
			if err := rows.Scan(
				&r.ResponseID, &r.UserID, &r.ItemID, &r.ItemType, &r.SessionID,
				&r.IsCorrect, &r.EaseRating, &r.Topics, &r.Timestamp,
			); err != nil {
				yield(nil, fmt.Errorf("failed to scan response: %w", err))
				return
			}
			resp, err := r.toResponse()
			if err != nil {
				yield(nil, err)
				return
			}
			if len(topics) > 0 && !containsAny(resp.Topics, topics) {
				continue
			}
			if !yield(resp, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to read responses: %w", err))
		}
	}
}

func containsAny(have, want []string) bool {
	for _, t := range have {
		if slices.Contains(want, t) {
			return true
		}
	}
	return false
}

// RecordReview applies a graded response in a single transaction. On
// postgres the item row is locked with SELECT ... FOR UPDATE; sqlite
// write transactions are exclusive.
func (ed *EntDriver) RecordReview(ctx context.Context, resp *study.GradedResponse, mutate storage.ReviewMutator) (*study.ReviewItem, error) {
	var updated *study.ReviewItem

	err := ed.withTx(ctx, func(tx dialect.Tx) error {
		item, err := ed.getItem(ctx, tx, resp.Ref(), true)
		if err != nil {
			return err
		}
		if item.UserID != resp.UserID {
			return &study.NotFoundError{Kind: "item", ID: resp.Ref().String()}
		}

		var session *study.StudySession
		if resp.SessionID != "" {
			if session, err = ed.getSession(ctx, tx, resp.SessionID); err != nil {
				return err
			}
			if err := storage.ApplySessionProgress(session, resp); err != nil {
				return err
			}
		}

		next, err := mutate(*item)
		if err != nil {
			return err
		}

		if len(resp.Topics) == 0 {
			resp.Topics = slices.Clone(item.Topics)
		}

		if err := ed.persistState(ctx, tx, resp.Ref(), next.ReviewState); err != nil {
			return err
		}
		if err := ed.appendResponse(ctx, tx, resp); err != nil {
			return err
		}
		if err := ed.incrementTopics(ctx, tx, resp); err != nil {
			return err
		}
		if session != nil {
			if err := ed.updateSession(ctx, tx, session); err != nil {
				return err
			}
		}

		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
