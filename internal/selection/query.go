// Package selection implements the incremental asynchronous selection engine
// behind the dashboard's remote-search dropdowns.
//
// The engine reconciles three inputs that change independently: the
// committed external value, the debounced search query, and a growing window
// of fetched pages. It performs no I/O itself. Every transition that needs
// data returns a PageRequest; the caller runs it (on any goroutine) through
// Coordinator.Do and feeds the Result back into Engine.Resolve. Results whose
// generation is no longer current are dropped, so a slow reply for an old
// query can never overwrite a newer one.
//
// Engine is meant to be owned by a single event loop (a Bubble Tea model, for
// instance). Controller wraps an Engine for callers that want goroutines,
// timers and change notifications handled for them.
package selection

import (
	"context"
	"maps"
	"slices"
	"strings"
)

// Query is the committed search text plus extra filter parameters.
// Treat it as immutable; use NewQuery to build one.
type Query struct {
	Text  string
	Extra map[string]string
}

// NewQuery returns a Query that owns a private copy of extra.
func NewQuery(text string, extra map[string]string) Query {
	q := Query{Text: text}
	if len(extra) > 0 {
		q.Extra = maps.Clone(extra)
	}
	return q
}

// Equal reports structural equality. A nil and an empty Extra are equal.
func (q Query) Equal(o Query) bool {
	return q.Text == o.Text && maps.Equal(q.Extra, o.Extra)
}

// Key returns a stable string form of the query, suitable for logging and
// map keys.
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString(q.Text)
	keys := slices.Sorted(maps.Keys(q.Extra))
	for _, k := range keys {
		b.WriteByte('\x1f')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(q.Extra[k])
	}
	return b.String()
}

// Page is one fetched page, normalized from whatever the transport returns.
// NextPage is 0 when there are no more pages.
type Page[T any] struct {
	Items       []T
	CurrentPage int
	NextPage    int
}

// HasNext reports whether another page follows this one.
func (p Page[T]) HasNext() bool {
	return p.NextPage > 0
}

// FetchFunc loads one page for a query. It is the engine's only boundary to
// the network. Implementations must return an error, never a partial page, on
// transport failure. Timeouts are the implementation's concern.
type FetchFunc[T any] func(ctx context.Context, q Query, page int) (Page[T], error)

// Option is the normalized label/value/item triple the engine works with.
// The engine never looks inside Item.
type Option[T any] struct {
	Label string
	Value string
	Item  T
}

// Formatter converts domain items into options.
type Formatter[T any] func(items []T) []Option[T]

// PageRequest identifies one fetch. Generation is the coordinator's
// generation at the time the request was issued.
type PageRequest struct {
	Query      Query
	Page       int
	Generation uint64
}

// Result carries the outcome of running a PageRequest.
type Result[T any] struct {
	Request PageRequest
	Page    Page[T]
	Err     error
}
