package twitter

import (
	"context"
	"errors"
	"iter"
	"log/slog"
)

// Keyed is implemented by items that carry a stable identifier.
type Keyed interface {
	Key() string
}

// Page is one fetched page of items and the cursor for the next one.
// An empty Next means there are no further pages. Related holds items that
// Items reference but that are not themselves part of the sequence, such as
// quoted or retweeted tweets.
type Page[T any] struct {
	Items   []T
	Related map[string]T
	Next    string
}

// FetchFunc fetches up to count items starting at cursor ("" for the first page).
type FetchFunc[T any] func(ctx context.Context, count int, cursor string) (Page[T], error)

// Pager is a lazy, finite, forward-only sequence over a cursor-paged result.
// Nothing is fetched until Next is called, and a page is fetched only once the
// previous one is consumed. Items repeated across pages are emitted once.
//
//	p := client.GetTweets(ctx, "golang", 50)
//	for p.Next(ctx) {
//		fmt.Println(p.Item().Text)
//	}
//	if err := p.Err(); err != nil { ... }
type Pager[T Keyed] struct {
	fetch    FetchFunc[T]
	cap      int
	pageSize int

	cursor  string
	fetched bool
	done    bool
	emitted int
	seen    map[string]struct{}
	related map[string]T
	buf     []T
	item    T
	err     error
}

// Paginate returns a pager emitting at most limit items, requesting pages of
// at most pageSize items.
func Paginate[T Keyed](fetch FetchFunc[T], limit, pageSize int) *Pager[T] {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Pager[T]{
		fetch:    fetch,
		cap:      limit,
		pageSize: pageSize,
		seen:     make(map[string]struct{}),
		done:     limit <= 0,
	}
}

// failedPager returns a pager that yields no items and reports err.
func failedPager[T Keyed](err error) *Pager[T] {
	return &Pager[T]{done: true, err: err}
}

// Next advances to the next item, fetching a page when the buffer is empty.
// It returns false at the end of the sequence or on error.
func (p *Pager[T]) Next(ctx context.Context) bool {
	for {
		if p.err != nil || p.emitted >= p.cap {
			p.done = true
			return false
		}
		for len(p.buf) > 0 {
			it := p.buf[0]
			p.buf = p.buf[1:]
			key := it.Key()
			if _, dup := p.seen[key]; dup {
				continue
			}
			p.seen[key] = struct{}{}
			p.emitted++
			p.item = it
			return true
		}
		if p.done {
			return false
		}
		if err := p.fill(ctx); err != nil {
			p.err = err
			p.done = true
			return false
		}
	}
}

func (p *Pager[T]) fill(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	count := min(p.pageSize, p.cap-p.emitted)
	page, err := p.fetch(ctx, count, p.cursor)
	if err != nil {
		return err
	}
	slog.Debug("page fetched", slog.Int("items", len(page.Items)), slog.Bool("has_next", page.Next != ""))

	// An empty page, or an empty or repeated cursor, means the server has
	// nothing further.
	if len(page.Items) == 0 || page.Next == "" || (p.fetched && page.Next == p.cursor) {
		p.done = true
	}
	p.fetched = true
	p.cursor = page.Next
	p.buf = page.Items
	if len(page.Related) > 0 {
		if p.related == nil {
			p.related = make(map[string]T, len(page.Related))
		}
		for k, v := range page.Related {
			p.related[k] = v
		}
	}
	return nil
}

// Related looks up an item referenced by the fetched pages but kept out of
// the sequence, e.g. the tweet behind Tweet.QuotedID.
func (p *Pager[T]) Related(key string) (T, bool) {
	v, ok := p.related[key]
	return v, ok
}

// Item returns the item produced by the last successful Next.
func (p *Pager[T]) Item() T {
	return p.item
}

// Err returns the error that ended the sequence, if any.
func (p *Pager[T]) Err() error {
	return p.err
}

// Cursor returns the cursor for the page after the current one.
func (p *Pager[T]) Cursor() string {
	return p.cursor
}

// All adapts the pager to a range-over-func sequence. An error ends the
// sequence as a final (zero, err) pair.
func (p *Pager[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for p.Next(ctx) {
			if !yield(p.item, nil) {
				return
			}
		}
		if p.err != nil {
			var zero T
			yield(zero, p.err)
		}
	}
}

// Collect drains the pager into a slice. Items gathered before an error are
// returned with it.
func (p *Pager[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for p.Next(ctx) {
		out = append(out, p.item)
	}
	return out, p.err
}

// ErrNoMatch is returned by First when the sequence ends without a match.
var ErrNoMatch = errors.New("no matching item")

// First returns the first item satisfying q.
func (p *Pager[T]) First(ctx context.Context, q Query) (T, error) {
	for p.Next(ctx) {
		if q.Matches(p.item) {
			return p.item, nil
		}
	}
	var zero T
	if p.err != nil {
		return zero, p.err
	}
	return zero, ErrNoMatch
}
