package store

import (
	"sort"
	"strings"
)

// ItemKind distinguishes the two orderable entity types.
type ItemKind string

const (
	KindFolder  ItemKind = "folder"
	KindDiagram ItemKind = "diagram"
)

// Valid reports whether the kind is folder or diagram.
func (k ItemKind) Valid() bool {
	return k == KindFolder || k == KindDiagram
}

// ItemOrder is one entry of a (possibly mixed) reorder request.
type ItemOrder struct {
	Type      ItemKind `json:"type" validate:"required,oneof=folder diagram"`
	ID        string   `json:"id" validate:"notblank"`
	SortOrder int      `json:"sort_order" validate:"gte=0"`
}

// Ranked is the minimal view of a sibling used to compute dense ranks.
type Ranked struct {
	ID        string `json:"id" validate:"notblank"`
	SortOrder int    `json:"sort_order" validate:"gte=0"`
}

// SameParent compares nullable parent ids; nil and "" both mean the root.
func SameParent(a, b *string) bool {
	return parentKey(a) == parentKey(b)
}

// ScopeKey identifies a sibling scope (project plus parent) as a map key.
func ScopeKey(projectID string, parentID *string) string {
	return projectID + "/" + parentKey(parentID)
}

func parentKey(id *string) string {
	if id == nil {
		return ""
	}
	return strings.TrimSpace(*id)
}

// NextSortOrder returns max+1 over the given ranks, or 0 when there are none.
func NextSortOrder(orders []int) int {
	next := 0
	for _, order := range orders {
		if order+1 > next {
			next = order + 1
		}
	}
	return next
}

// DenseRanks sorts siblings by their current rank (ties broken by id) and
// returns the rank each id must hold so the scope reads 0..N-1.
func DenseRanks(siblings []Ranked) map[string]int {
	sorted := make([]Ranked, len(siblings))
	copy(sorted, siblings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SortOrder != sorted[j].SortOrder {
			return sorted[i].SortOrder < sorted[j].SortOrder
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make(map[string]int, len(sorted))
	for i, item := range sorted {
		out[item.ID] = i
	}
	return out
}

// MoveWithin places id at position among its siblings and returns the
// resulting dense ranks. Positions past the end clamp to the last slot.
func MoveWithin(siblings []Ranked, id string, position int) map[string]int {
	others := make([]Ranked, 0, len(siblings))
	for _, sibling := range siblings {
		if sibling.ID != id {
			others = append(others, sibling)
		}
	}
	ranks := DenseRanks(others)
	ordered := make([]string, len(others))
	for siblingID, rank := range ranks {
		ordered[rank] = siblingID
	}

	if position < 0 {
		position = 0
	}
	if position > len(ordered) {
		position = len(ordered)
	}
	ordered = append(ordered[:position], append([]string{id}, ordered[position:]...)...)

	out := make(map[string]int, len(ordered))
	for i, siblingID := range ordered {
		out[siblingID] = i
	}
	return out
}
