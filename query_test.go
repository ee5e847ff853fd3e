package twitter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryMatches(t *testing.T) {
	tw := &Tweet{ID: "1", Username: "golang", Likes: 7, IsRetweet: false, Hashtags: []string{"go"}}

	tests := []struct {
		name string
		q    Query
		want bool
	}{
		{"zero query", Query{}, true},
		{"string field", ByFields(map[string]any{"username": "golang"}), true},
		{"int field", ByFields(map[string]any{"likes": 7}), true},
		{"bool field", ByFields(map[string]any{"isRetweet": false}), true},
		{"slice field", ByFields(map[string]any{"hashtags": []string{"go"}}), true},
		{"mismatch", ByFields(map[string]any{"username": "rust"}), false},
		{"missing field", ByFields(map[string]any{"nope": 1}), false},
		{"predicate", ByPredicate(func(t *Tweet) bool { return t.Likes > 5 }), true},
		{"predicate wrong type", ByPredicate(func(p *Profile) bool { return true }), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.q.Matches(tw))
		})
	}
}

func TestFilter(t *testing.T) {
	s := &scriptedFetch{pages: []Page[testItem]{
		{Items: []testItem{{ID: "1", Kind: "a"}, {ID: "2", Kind: "b"}}, Next: "c1"},
		{Items: []testItem{{ID: "3", Kind: "a"}}, Next: ""},
	}}
	var got []string
	for it, err := range Filter(context.Background(), Paginate(s.fetch, 10, 20), ByFields(map[string]any{"kind": "a"})) {
		require.NoError(t, err)
		got = append(got, it.ID)
	}
	assert.Equal(t, []string{"1", "3"}, got)
}
