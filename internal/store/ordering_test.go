package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextSortOrder(t *testing.T) {
	require.Equal(t, 0, NextSortOrder(nil))
	require.Equal(t, 3, NextSortOrder([]int{0, 2, 1}))
	require.Equal(t, 6, NextSortOrder([]int{5}))
}

func TestDenseRanksClosesGapsAndBreaksTies(t *testing.T) {
	ranks := DenseRanks([]Ranked{
		{ID: "c", SortOrder: 7},
		{ID: "a", SortOrder: 2},
		{ID: "b", SortOrder: 2},
		{ID: "d", SortOrder: 0},
	})

	require.Equal(t, map[string]int{"d": 0, "a": 1, "b": 2, "c": 3}, ranks)

}

func TestSameParentAndScopeKey(t *testing.T) {
	empty := ""
	a := "a"

	require.True(t, SameParent(nil, nil))
	require.True(t, SameParent(nil, &empty))
	require.False(t, SameParent(nil, &a))
	require.Equal(t, ScopeKey("p", nil), ScopeKey("p", &empty))
	require.NotEqual(t, ScopeKey("p", nil), ScopeKey("p", &a))
}

func TestMoveWithin(t *testing.T) {
	siblings := []Ranked{{ID: "a", SortOrder: 0}, {ID: "b", SortOrder: 1}, {ID: "c", SortOrder: 2}}

	require.Equal(t, map[string]int{"c": 0, "a": 1, "b": 2}, MoveWithin(siblings, "c", 0))
	require.Equal(t, map[string]int{"b": 0, "c": 1, "a": 2}, MoveWithin(siblings, "a", 99))
	require.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2, "new": 3}, MoveWithin(siblings, "new", 3))
}
