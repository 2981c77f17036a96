package selection

import (
	"context"
	"errors"
	"fmt"
)

// ErrCanceled may be returned by a FetchFunc to signal that the request was
// abandoned on purpose. Such results are dropped silently, the same as
// context.Canceled.
var ErrCanceled = errors.New("selection: request canceled")

// Outcome classifies a Result against the coordinator's current generation.
type Outcome int

const (
	OutcomeApplied   Outcome = iota // Current generation, no error
	OutcomeStale                    // Superseded generation; ignore
	OutcomeCancelled                // Current generation, cancelled on purpose; ignore
	OutcomeFailed                   // Current generation, transport failure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeStale:
		return "stale"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Coordinator issues generation-tagged page requests and decides which
// results may touch state.
//
// Invalidate, Request and Classify belong to the owning goroutine. Do only
// reads the immutable fetch function and may run anywhere.
type Coordinator[T any] struct {
	fetch      FetchFunc[T]
	generation uint64
}

// NewCoordinator returns a Coordinator that fetches through fetch.
func NewCoordinator[T any](fetch FetchFunc[T]) *Coordinator[T] {
	return &Coordinator[T]{fetch: fetch}
}

// Generation returns the current generation.
func (c *Coordinator[T]) Generation() uint64 {
	return c.generation
}

// Invalidate starts a new generation. Every request issued before the call
// becomes stale.
func (c *Coordinator[T]) Invalidate() uint64 {
	c.generation++
	return c.generation
}

// Request builds a request for page of q tagged with the current generation.
func (c *Coordinator[T]) Request(q Query, page int) PageRequest {
	if page < 1 {
		page = 1
	}
	return PageRequest{Query: q, Page: page, Generation: c.generation}
}

// Do runs req through the fetch function. A panic inside the fetch function
// is converted into an error so nothing escapes the coordinator boundary.
func (c *Coordinator[T]) Do(ctx context.Context, req PageRequest) (res Result[T]) {
	res.Request = req
	defer func() {
		if r := recover(); r != nil {
			res.Page = Page[T]{}
			res.Err = fmt.Errorf("selection: fetch panicked: %v", r)
		}
	}()

	if c.fetch == nil {
		res.Err = errors.New("selection: no fetch function")
		return res
	}

	page, err := c.fetch(ctx, req.Query, req.Page)
	if err != nil {
		res.Err = err
		return res
	}
	res.Page = normalizePage(page, req.Page)
	return res
}

// Classify reports what the owner should do with res. Generation is checked
// before the error so a late failure from an old query is dropped too.
func (c *Coordinator[T]) Classify(res Result[T]) Outcome {
	if res.Request.Generation != c.generation {
		return OutcomeStale
	}
	if res.Err == nil {
		return OutcomeApplied
	}
	if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, ErrCanceled) {
		return OutcomeCancelled
	}
	return OutcomeFailed
}

// normalizePage fills in what a sloppy fetch function left out.
func normalizePage[T any](p Page[T], requested int) Page[T] {
	if p.CurrentPage < 1 {
		p.CurrentPage = requested
	}
	if p.NextPage < 0 || (p.NextPage > 0 && p.NextPage <= p.CurrentPage) {
		p.NextPage = 0
	}
	return p
}
