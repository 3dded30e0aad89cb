package entdriver

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/drills/pkg/storage"
	"github.com/papercomputeco/drills/pkg/storage/ent/migrate"
	"github.com/papercomputeco/drills/pkg/study"
)

type topicRow struct {
	UserID           string     `sql:"user_id"`
	Topic            string     `sql:"topic"`
	TotalAttempts    int        `sql:"total_attempts"`
	CorrectAttempts  int        `sql:"correct_attempts"`
	Accuracy7Day     float64    `sql:"accuracy_7day"`
	LastCalculatedAt *time.Time `sql:"last_calculated_at"`
}

// IncrementTopicCounters bumps the lifetime counters of each response topic.
func (ed *EntDriver) IncrementTopicCounters(ctx context.Context, resp *study.GradedResponse) error {
	return ed.withTx(ctx, func(tx dialect.Tx) error {
		return ed.incrementTopics(ctx, tx, resp)
	})
}

func (ed *EntDriver) incrementTopics(ctx context.Context, q dialect.ExecQuerier, resp *study.GradedResponse) error {
	correct := 0
	if resp.IsCorrect {
		correct = 1
	}

	for _, topic := range storage.UniqueTopics(resp.Topics) {
		query, args := ed.builder().Insert(migrate.TopicPerformanceTableName).
			Columns("user_id", "topic", "total_attempts", "correct_attempts", "accuracy_7day").
			Values(resp.UserID, topic, 1, correct, 0.0).
			OnConflict(
				entsql.ConflictColumns("user_id", "topic"),
				entsql.ResolveWith(func(u *entsql.UpdateSet) {
					u.Add("total_attempts", 1)
					u.Add("correct_attempts", correct)
				}),
			).
			Query()
		if _, err := exec(ctx, q, query, args); err != nil {
			return fmt.Errorf("failed to increment topic %q: %w", topic, err)
		}
	}
	return nil
}

// UpsertTopicAccuracy writes recomputed accuracies without touching the
// lifetime counters of existing rows.
func (ed *EntDriver) UpsertTopicAccuracy(ctx context.Context, perfs []*study.TopicPerformance) error {
	if len(perfs) == 0 {
		return nil
	}

	return ed.withTx(ctx, func(tx dialect.Tx) error {
		for _, p := range perfs {
			query, args := ed.builder().Insert(migrate.TopicPerformanceTableName).
				Columns("user_id", "topic", "total_attempts", "correct_attempts", "accuracy_7day", "last_calculated_at").
				Values(p.UserID, p.Topic, 0, 0, p.Accuracy7Day, tsPtr(p.LastCalculatedAt)).
				OnConflict(
					entsql.ConflictColumns("user_id", "topic"),
					entsql.ResolveWith(func(u *entsql.UpdateSet) {
						u.SetExcluded("accuracy_7day")
						u.SetExcluded("last_calculated_at")
					}),
				).
				Query()
			if _, err := exec(ctx, tx, query, args); err != nil {
				return fmt.Errorf("failed to upsert topic %q: %w", p.Topic, err)
			}
		}
		return nil
	})
}

// ListTopicPerformance returns the user's topics sorted by name.
func (ed *EntDriver) ListTopicPerformance(ctx context.Context, userID string) ([]*study.TopicPerformance, error) {
	b := ed.builder()
	t := b.Table(migrate.TopicPerformanceTableName)
	query, args := b.Select(t.Columns(
		"user_id", "topic", "total_attempts", "correct_attempts", "accuracy_7day", "last_calculated_at",
	)...).
		From(t).
		Where(entsql.EQ(t.C("user_id"), userID)).
		OrderBy(t.C("topic")).
		Query()

	var rows []topicRow
	if err := scan(ctx, ed.Driver, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to list topic performance: %w", err)
	}

	perfs := make([]*study.TopicPerformance, 0, len(rows))
	for _, r := range rows {
		perfs = append(perfs, &study.TopicPerformance{
			UserID:           r.UserID,
			Topic:            r.Topic,
			TotalAttempts:    r.TotalAttempts,
			CorrectAttempts:  r.CorrectAttempts,
			Accuracy7Day:     r.Accuracy7Day,
			LastCalculatedAt: r.LastCalculatedAt,
		})
	}
	return perfs, nil
}
