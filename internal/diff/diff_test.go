package diff

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name string
		prev []string
		next []string
		want []Change[string]
	}{
		{
			name: "both empty",
			want: []Change[string]{},
		},
		{
			name: "equal sequences",
			prev: []string{"a", "b"},
			next: []string{"a", "b"},
			want: []Change[string]{{"a", None}, {"b", None}},
		},
		{
			name: "pure additions",
			next: []string{"a", "b"},
			want: []Change[string]{{"a", Added}, {"b", Added}},
		},
		{
			name: "pure removals",
			prev: []string{"a", "b"},
			want: []Change[string]{{"a", Removed}, {"b", Removed}},
		},
		{
			name: "interleaved",
			prev: []string{"a", "c", "e"},
			next: []string{"b", "c", "d"},
			want: []Change[string]{
				{"a", Removed},
				{"b", Added},
				{"c", None},
				{"d", Added},
				{"e", Removed},
			},
		},
		{
			name: "added tail",
			prev: []string{"a"},
			next: []string{"a", "b", "c"},
			want: []Change[string]{{"a", None}, {"b", Added}, {"c", Added}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.prev, tt.next, strings.Compare)
			assert.Equal(t, tt.want, got)
		})
	}
}

// The union of tagged outputs must cover prev ∪ next exactly.
func TestDiffCounts(t *testing.T) {
	prev := []int{1, 2, 4, 6, 9}
	next := []int{2, 3, 4, 7, 9, 10}
	cmp := func(a, b int) int { return a - b }

	var none, added, removed int
	require.NoError(t, Each(prev, next, cmp, func(_ int, tag Tag) error {
		switch tag {
		case None:
			none++
		case Added:
			added++
		case Removed:
			removed++
		}
		return nil
	}))

	assert.Equal(t, len(next), none+added)
	assert.Equal(t, len(prev), none+removed)
}

func TestEachStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var seen int
	err := Each([]int{1, 2, 3}, nil, func(a, b int) int { return a - b }, func(int, Tag) error {
		seen++
		if seen == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, seen)
}
