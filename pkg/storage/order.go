package storage

import (
	"cmp"
	"strings"

	"github.com/papercomputeco/drills/pkg/study"
)

// The comparators below mirror the ORDER BY clauses of the SQL backends.
// Every ordering ends on item id so that results are stable.

// CompareDue orders earliest-due first, harder first among equally due.
func CompareDue(a, b *study.ReviewItem) int {
	if c := a.DueAt.Compare(b.DueAt); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Difficulty, a.Difficulty); c != 0 {
		return c
	}
	return compareRef(a, b)
}

// CompareHardest orders by difficulty descending.
func CompareHardest(a, b *study.ReviewItem) int {
	if c := cmp.Compare(b.Difficulty, a.Difficulty); c != 0 {
		return c
	}
	return compareRef(a, b)
}

// CompareNewest orders by creation time descending.
func CompareNewest(a, b *study.ReviewItem) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return compareRef(a, b)
}

func compareRef(a, b *study.ReviewItem) int {
	if c := strings.Compare(a.ItemID, b.ItemID); c != 0 {
		return c
	}
	return strings.Compare(string(a.ItemType), string(b.ItemType))
}

// MatchesType reports whether item satisfies an item type filter.
func MatchesType(item *study.ReviewItem, t study.ItemType) bool {
	return t == study.ItemTypeAny || item.ItemType == t
}
