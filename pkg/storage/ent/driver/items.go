package entdriver

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"

	"github.com/papercomputeco/drills/pkg/storage"
	"github.com/papercomputeco/drills/pkg/storage/ent/migrate"
	"github.com/papercomputeco/drills/pkg/study"
)

var itemColumns = []string{
	"item_id", "item_type", "user_id", "study_set_id", "prompt", "topics",
	"difficulty", "interval_days", "ease_factor", "due_at", "last_reviewed_at",
	"review_count", "created_at",
}

// itemRow is the scan target for review_items rows.
type itemRow struct {
	ItemID         string     `sql:"item_id"`
	ItemType       string     `sql:"item_type"`
	UserID         string     `sql:"user_id"`
	StudySetID     string     `sql:"study_set_id"`
	Prompt         string     `sql:"prompt"`
	Topics         []byte     `sql:"topics"`
	Difficulty     int        `sql:"difficulty"`
	IntervalDays   int        `sql:"interval_days"`
	EaseFactor     float64    `sql:"ease_factor"`
	DueAt          time.Time  `sql:"due_at"`
	LastReviewedAt *time.Time `sql:"last_reviewed_at"`
	ReviewCount    int        `sql:"review_count"`
	CreatedAt      time.Time  `sql:"created_at"`
}

func (r *itemRow) toItem() (*study.ReviewItem, error) {
	item := &study.ReviewItem{
		ItemID:     r.ItemID,
		ItemType:   study.ItemType(r.ItemType),
		UserID:     r.UserID,
		StudySetID: r.StudySetID,
		Prompt:     r.Prompt,
		CreatedAt:  r.CreatedAt,
		ReviewState: study.ReviewState{
			Difficulty:     r.Difficulty,
			IntervalDays:   r.IntervalDays,
			EaseFactor:     r.EaseFactor,
			DueAt:          r.DueAt,
			LastReviewedAt: r.LastReviewedAt,
			ReviewCount:    r.ReviewCount,
		},
	}
	if err := decodeJSON(r.Topics, &item.Topics); err != nil {
		return nil, err
	}
	return item, nil
}

func (ed *EntDriver) queryItems(ctx context.Context, q dialect.ExecQuerier, sel *entsql.Selector) ([]*study.ReviewItem, error) {
	query, args := sel.Query()

	var rows []itemRow
	if err := scan(ctx, q, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to query review items: %w", err)
	}

	items := make([]*study.ReviewItem, 0, len(rows))
	for i := range rows {
		item, err := rows[i].toItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// selectItems starts a review_items query filtered by user and type.
func (ed *EntDriver) selectItems(userID string, itemType study.ItemType, preds ...*entsql.Predicate) *entsql.Selector {
	b := ed.builder()
	t := b.Table(migrate.ReviewItemsTableName)

	preds = append(preds, entsql.EQ(t.C("user_id"), userID))
	if itemType != study.ItemTypeAny {
		preds = append(preds, entsql.EQ(t.C("item_type"), string(itemType)))
	}

	return b.Select(t.Columns(itemColumns...)...).
		From(t).
		Where(entsql.And(preds...))
}

// GetDueItems returns items due at or before asOf, earliest first.
func (ed *EntDriver) GetDueItems(ctx context.Context, userID string, itemType study.ItemType, limit int, asOf time.Time) ([]*study.ReviewItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	sel := ed.selectItems(userID, itemType, entsql.LTE("due_at", ts(asOf))).
		OrderBy(entsql.Asc("due_at"), entsql.Desc("difficulty"), entsql.Asc("item_id"), entsql.Asc("item_type")).
		Limit(limit)
	return ed.queryItems(ctx, ed.Driver, sel)
}

// GetItemsByTopics returns items tagged with any of topics, hardest first.
func (ed *EntDriver) GetItemsByTopics(ctx context.Context, userID string, topics []string, itemType study.ItemType, limit int) ([]*study.ReviewItem, error) {
	if limit <= 0 || len(topics) == 0 {
		return nil, nil
	}

	b := ed.builder()
	tt := b.Table(migrate.ItemTopicsTableName)
	args := make([]any, len(topics))
	for i, t := range topics {
		args[i] = t
	}
	tagged := b.Select(tt.C("item_id")).
		From(tt).
		Where(entsql.And(
			entsql.EQ(tt.C("user_id"), userID),
			entsql.In(tt.C("topic"), args...),
		))

	sel := ed.selectItems(userID, itemType, entsql.In("item_id", tagged)).
		OrderBy(entsql.Desc("difficulty"), entsql.Asc("item_id"), entsql.Asc("item_type")).
		Limit(limit)
	return ed.queryItems(ctx, ed.Driver, sel)
}

// GetUnreviewedItems returns never-reviewed items, newest first.
func (ed *EntDriver) GetUnreviewedItems(ctx context.Context, userID string, itemType study.ItemType, limit int) ([]*study.ReviewItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	sel := ed.selectItems(userID, itemType, entsql.EQ("review_count", 0)).
		OrderBy(entsql.Desc("created_at"), entsql.Asc("item_id"), entsql.Asc("item_type")).
		Limit(limit)
	return ed.queryItems(ctx, ed.Driver, sel)
}

// GetItem retrieves an item by reference.
func (ed *EntDriver) GetItem(ctx context.Context, ref study.ItemRef) (*study.ReviewItem, error) {
	return ed.getItem(ctx, ed.Driver, ref, false)
}

func (ed *EntDriver) getItem(ctx context.Context, q dialect.ExecQuerier, ref study.ItemRef, forUpdate bool) (*study.ReviewItem, error) {
	b := ed.builder()
	t := b.Table(migrate.ReviewItemsTableName)
	sel := b.Select(t.Columns(itemColumns...)...).
		From(t).
		Where(entsql.And(
			entsql.EQ(t.C("item_id"), ref.ItemID),
			entsql.EQ(t.C("item_type"), string(ref.ItemType)),
		))
	// SQLite has no row locks; its write transactions are already exclusive.
	if forUpdate && ed.Driver.Dialect() == dialect.Postgres {
		sel.ForUpdate()
	}

	items, err := ed.queryItems(ctx, q, sel)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &study.NotFoundError{Kind: "item", ID: ref.String()}
	}
	return items[0], nil
}

// PersistItemState overwrites an item's review state.
func (ed *EntDriver) PersistItemState(ctx context.Context, ref study.ItemRef, state study.ReviewState) error {
	return ed.persistState(ctx, ed.Driver, ref, state)
}

func (ed *EntDriver) persistState(ctx context.Context, q dialect.ExecQuerier, ref study.ItemRef, state study.ReviewState) error {
	upd := ed.builder().Update(migrate.ReviewItemsTableName).
		Set("difficulty", state.Difficulty).
		Set("interval_days", state.IntervalDays).
		Set("ease_factor", state.EaseFactor).
		Set("due_at", ts(state.DueAt)).
		Set("review_count", state.ReviewCount)
	if state.LastReviewedAt != nil {
		upd.Set("last_reviewed_at", ts(*state.LastReviewedAt))
	} else {
		upd.SetNull("last_reviewed_at")
	}
	query, args := upd.Where(entsql.And(
		entsql.EQ("item_id", ref.ItemID),
		entsql.EQ("item_type", string(ref.ItemType)),
	)).Query()

	n, err := exec(ctx, q, query, args)
	if err != nil {
		return fmt.Errorf("failed to persist item state: %w", err)
	}
	if n == 0 {
		return &study.NotFoundError{Kind: "item", ID: ref.String()}
	}
	return nil
}

// CreateStudySet stores a study set with its items in one transaction.
func (ed *EntDriver) CreateStudySet(ctx context.Context, set *study.StudySet, items []*study.ReviewItem) error {
	setTopics, err := encodeJSON(set.Topics)
	if err != nil {
		return err
	}

	return ed.withTx(ctx, func(tx dialect.Tx) error {
		b := ed.builder()
		query, args := b.Insert(migrate.StudySetsTableName).
			Columns("study_set_id", "user_id", "title", "topics", "difficulty_level", "created_at").
			Values(set.StudySetID, set.UserID, set.Title, setTopics, set.DifficultyLevel, ts(set.CreatedAt)).
			Query()
		if _, err := exec(ctx, tx, query, args); err != nil {
			if sqlgraph.IsUniqueConstraintError(err) {
				return &study.ValidationError{Field: "studySetId", Reason: "already exists: " + set.StudySetID}
			}
			return fmt.Errorf("failed to insert study set: %w", err)
		}

		for _, item := range items {
			if err := ed.insertItem(ctx, tx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func (ed *EntDriver) insertItem(ctx context.Context, tx dialect.Tx, item *study.ReviewItem) error {
	topics, err := encodeJSON(item.Topics)
	if err != nil {
		return err
	}

	b := ed.builder()
	query, args := b.Insert(migrate.ReviewItemsTableName).
		Columns(itemColumns...).
		Values(
			item.ItemID, string(item.ItemType), item.UserID, item.StudySetID, item.Prompt, topics,
			item.Difficulty, item.IntervalDays, item.EaseFactor, ts(item.DueAt), tsPtr(item.LastReviewedAt),
			item.ReviewCount, ts(item.CreatedAt),
		).
		Query()
	if _, err := exec(ctx, tx, query, args); err != nil {
		if sqlgraph.IsUniqueConstraintError(err) {
			return &study.ValidationError{Field: "itemId", Reason: "already exists: " + item.Ref().String()}
		}
		return fmt.Errorf("failed to insert review item %s: %w", item.Ref(), err)
	}

	for _, topic := range storage.UniqueTopics(item.Topics) {
		query, args := b.Insert(migrate.ItemTopicsTableName).
			Columns("item_id", "item_type", "topic", "user_id").
			Values(item.ItemID, string(item.ItemType), topic, item.UserID).
			Query()
		if _, err := exec(ctx, tx, query, args); err != nil {
			return fmt.Errorf("failed to tag review item %s: %w", item.Ref(), err)
		}
	}
	return nil
}

// DeleteStudySet removes a study set. Items and their topic tags go with it
// through ON DELETE CASCADE.
func (ed *EntDriver) DeleteStudySet(ctx context.Context, studySetID string) error {
	query, args := ed.builder().Delete(migrate.StudySetsTableName).
		Where(entsql.EQ("study_set_id", studySetID)).
		Query()

	n, err := exec(ctx, ed.Driver, query, args)
	if err != nil {
		return fmt.Errorf("failed to delete study set: %w", err)
	}
	if n == 0 {
		return &study.NotFoundError{Kind: "study set", ID: studySetID}
	}
	return nil
}

// ListUserIDs returns every user owning a study set, sorted.
func (ed *EntDriver) ListUserIDs(ctx context.Context) ([]string, error) {
	b := ed.builder()
	t := b.Table(migrate.StudySetsTableName)
	query, args := b.Select(t.C("user_id")).
		Distinct().
		From(t).
		OrderBy(t.C("user_id")).
		Query()

	var rows []struct {
		UserID string `sql:"user_id"`
	}
	if err := scan(ctx, ed.Driver, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]string, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.UserID)
	}
	return users, nil
}
