package twitter

import (
	"context"
	"encoding/json"
	"iter"
	"reflect"
)

// Query selects items from a sequence. It is either a predicate or a set of
// field equalities keyed by the item's JSON field names.
type Query struct {
	pred   func(any) bool
	fields map[string]any
}

// ByPredicate matches items of type T for which fn returns true.
func ByPredicate[T any](fn func(T) bool) Query {
	return Query{pred: func(v any) bool {
		t, ok := v.(T)
		return ok && fn(t)
	}}
}

// ByFields matches items whose JSON fields equal every given value,
// e.g. ByFields(map[string]any{"username": "golang", "isRetweet": false}).
func ByFields(fields map[string]any) Query {
	m, _ := normalizeJSON(fields).(map[string]any)
	return Query{fields: m}
}

// Matches reports whether item satisfies the query. The zero Query matches everything.
func (q Query) Matches(item any) bool {
	if q.pred != nil {
		return q.pred(item)
	}
	if len(q.fields) == 0 {
		return true
	}
	m, ok := normalizeJSON(item).(map[string]any)
	if !ok {
		return false
	}
	for k, want := range q.fields {
		if got, ok := m[k]; !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// normalizeJSON round-trips v through JSON so numbers and nested values
// compare uniformly.
func normalizeJSON(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// Filter lazily yields the items of p that satisfy q. A pager error is
// yielded last, as in Pager.All.
func Filter[T Keyed](ctx context.Context, p *Pager[T], q Query) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for item, err := range p.All(ctx) {
			if err != nil {
				yield(item, err)
				return
			}
			if q.Matches(item) && !yield(item, nil) {
				return
			}
		}
	}
}
