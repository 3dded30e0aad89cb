// Package migrate describes the relational schema shared by the SQL
// storage drivers and applies it with ent's Atlas-based migration engine.
package migrate

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table names.
const (
	StudySetsTableName        = "study_sets"
	ReviewItemsTableName      = "review_items"
	ItemTopicsTableName       = "item_topics"
	GradedResponsesTableName  = "graded_responses"
	TopicPerformanceTableName = "topic_performances"
	StudySessionsTableName    = "study_sessions"
)

var (
	// StudySetsColumns holds the columns for the "study_sets" table.
	StudySetsColumns = []*schema.Column{
		{Name: "study_set_id", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeString},
		{Name: "title", Type: field.TypeString, Default: ""},
		// topics is the JSON encoded list of topic names
		{Name: "topics", Type: field.TypeJSON},
		{Name: "difficulty_level", Type: field.TypeInt, Default: 2},
		{Name: "created_at", Type: field.TypeTime},
	}
	// StudySetsTable holds the schema information for the "study_sets" table.
	StudySetsTable = &schema.Table{
		Name:       StudySetsTableName,
		Columns:    StudySetsColumns,
		PrimaryKey: []*schema.Column{StudySetsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "studyset_user_id",
				Unique:  false,
				Columns: []*schema.Column{StudySetsColumns[1]},
			},
		},
	}

	// ReviewItemsColumns holds the columns for the "review_items" table.
	ReviewItemsColumns = []*schema.Column{
		{Name: "item_id", Type: field.TypeString},
		// item_type is either "flashcard" or "mcq"
		{Name: "item_type", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeString},
		{Name: "prompt", Type: field.TypeString, Default: ""},
		{Name: "topics", Type: field.TypeJSON},
		{Name: "difficulty", Type: field.TypeInt},
		{Name: "interval_days", Type: field.TypeInt},
		{Name: "ease_factor", Type: field.TypeFloat64},
		{Name: "due_at", Type: field.TypeTime},
		{Name: "last_reviewed_at", Type: field.TypeTime, Nullable: true},
		{Name: "review_count", Type: field.TypeInt},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "study_set_id", Type: field.TypeString},
	}
	// ReviewItemsTable holds the schema information for the "review_items" table.
	ReviewItemsTable = &schema.Table{
		Name:       ReviewItemsTableName,
		Columns:    ReviewItemsColumns,
		PrimaryKey: []*schema.Column{ReviewItemsColumns[0], ReviewItemsColumns[1]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "review_items_study_sets_items",
				Columns:    []*schema.Column{ReviewItemsColumns[12]},
				RefColumns: []*schema.Column{StudySetsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				// serves the due bucket query
				Name:    "reviewitem_user_id_due_at",
				Unique:  false,
				Columns: []*schema.Column{ReviewItemsColumns[2], ReviewItemsColumns[8]},
			},
			{
				// serves the new bucket query
				Name:    "reviewitem_user_id_review_count",
				Unique:  false,
				Columns: []*schema.Column{ReviewItemsColumns[2], ReviewItemsColumns[10]},
			},
		},
	}

	// ItemTopicsColumns holds the columns for the "item_topics" table.
	// Each row tags one review item with one topic so that the weak-topic
	// bucket can filter with a portable IN query instead of JSON operators.
	ItemTopicsColumns = []*schema.Column{
		{Name: "item_id", Type: field.TypeString},
		{Name: "item_type", Type: field.TypeString},
		{Name: "topic", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeString},
	}
	// ItemTopicsTable holds the schema information for the "item_topics" table.
	ItemTopicsTable = &schema.Table{
		Name:       ItemTopicsTableName,
		Columns:    ItemTopicsColumns,
		PrimaryKey: []*schema.Column{ItemTopicsColumns[0], ItemTopicsColumns[1], ItemTopicsColumns[2]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "item_topics_review_items_topics",
				Columns:    []*schema.Column{ItemTopicsColumns[0], ItemTopicsColumns[1]},
				RefColumns: []*schema.Column{ReviewItemsColumns[0], ReviewItemsColumns[1]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "itemtopic_user_id_topic",
				Unique:  false,
				Columns: []*schema.Column{ItemTopicsColumns[3], ItemTopicsColumns[2]},
			},
		},
	}

	// GradedResponsesColumns holds the columns for the "graded_responses" table.
	GradedResponsesColumns = []*schema.Column{
		{Name: "response_id", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeString},
		// item_id and item_type are not foreign keys: the log outlives
		// items removed with their study set
		{Name: "item_id", Type: field.TypeString},
		{Name: "item_type", Type: field.TypeString},
		{Name: "session_id", Type: field.TypeString, Nullable: true},
		{Name: "is_correct", Type: field.TypeBool},
		{Name: "ease_rating", Type: field.TypeInt},
		{Name: "topics", Type: field.TypeJSON},
		{Name: "timestamp", Type: field.TypeTime},
	}
	// GradedResponsesTable holds the schema information for the "graded_responses" table.
	GradedResponsesTable = &schema.Table{
		Name:       GradedResponsesTableName,
		Columns:    GradedResponsesColumns,
		PrimaryKey: []*schema.Column{GradedResponsesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "gradedresponse_user_id_timestamp",
				Unique:  false,
				Columns: []*schema.Column{GradedResponsesColumns[1], GradedResponsesColumns[8]},
			},
		},
	}

	// TopicPerformancesColumns holds the columns for the "topic_performances" table.
	TopicPerformancesColumns = []*schema.Column{
		{Name: "user_id", Type: field.TypeString},
		{Name: "topic", Type: field.TypeString},
		{Name: "total_attempts", Type: field.TypeInt, Default: 0},
		{Name: "correct_attempts", Type: field.TypeInt, Default: 0},
		// accuracy_7day is recomputed from the response log, never incremented
		{Name: "accuracy_7day", Type: field.TypeFloat64, Default: 0},
		{Name: "last_calculated_at", Type: field.TypeTime, Nullable: true},
	}
	// TopicPerformancesTable holds the schema information for the "topic_performances" table.
	TopicPerformancesTable = &schema.Table{
		Name:       TopicPerformanceTableName,
		Columns:    TopicPerformancesColumns,
		PrimaryKey: []*schema.Column{TopicPerformancesColumns[0], TopicPerformancesColumns[1]},
	}

	// StudySessionsColumns holds the columns for the "study_sessions" table.
	StudySessionsColumns = []*schema.Column{
		{Name: "session_id", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeString},
		{Name: "session_type", Type: field.TypeString},
		{Name: "items_total", Type: field.TypeInt},
		{Name: "items_completed", Type: field.TypeInt, Default: 0},
		{Name: "items_correct", Type: field.TypeInt, Default: 0},
		{Name: "started_at", Type: field.TypeTime},
		{Name: "completed_at", Type: field.TypeTime, Nullable: true},
		{Name: "status", Type: field.TypeString},
		// items is the JSON encoded ordered list of item refs in the pack
		{Name: "items", Type: field.TypeJSON},
		{Name: "due_count", Type: field.TypeInt, Default: 0},
		{Name: "weak_topic_count", Type: field.TypeInt, Default: 0},
		{Name: "new_count", Type: field.TypeInt, Default: 0},
	}
	// StudySessionsTable holds the schema information for the "study_sessions" table.
	StudySessionsTable = &schema.Table{
		Name:       StudySessionsTableName,
		Columns:    StudySessionsColumns,
		PrimaryKey: []*schema.Column{StudySessionsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "studysession_user_id_session_type_status",
				Unique:  false,
				Columns: []*schema.Column{StudySessionsColumns[1], StudySessionsColumns[2], StudySessionsColumns[8]},
			},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		StudySetsTable,
		ReviewItemsTable,
		ItemTopicsTable,
		GradedResponsesTable,
		TopicPerformancesTable,
		StudySessionsTable,
	}
)

func init() {
	ReviewItemsTable.ForeignKeys[0].RefTable = StudySetsTable
	ItemTopicsTable.ForeignKeys[0].RefTable = ReviewItemsTable
}

// Create runs the auto-migration for every table. It only applies
// append-only changes: new tables, columns and indexes.
func Create(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("failed to initialize migration: %w", err)
	}
	return m.Create(ctx, Tables...)
}
