package selection

import (
	"context"
	"sync"
)

// Snapshot is a consistent copy of an engine's derived state.
type Snapshot[T any] struct {
	State       State
	Status      Status
	Items       []Option[T]
	Display     string
	Message     string
	Search      string
	Query       Query
	Value       []string
	Provisional []string
	Loading     bool
	HasMore     bool
	Err         error
}

type flight struct {
	gen    uint64
	cancel context.CancelFunc
}

// Controller drives an Engine for callers without an event loop. It runs
// every request on its own goroutine, debounces search text with a timer,
// and cancels the context of requests a newer generation has superseded.
// All methods are safe for concurrent use.
//
// Commit and error callbacks run after the controller's lock is released,
// so they may call back into the Controller.
type Controller[T any] struct {
	mu        sync.Mutex
	engine    *Engine[T]
	debouncer *Debouncer
	ctx       context.Context
	stop      context.CancelFunc
	wg        sync.WaitGroup
	changes   chan struct{}

	flights  map[uint64]flight
	flightID uint64
	closed   bool

	onCommit func(Commit[T])
	onError  func(error)
	pending  []func()
}

// NewController builds an Engine from cfg and wraps it. Fetches run with
// contexts derived from ctx.
func NewController[T any](ctx context.Context, cfg Config[T]) (*Controller[T], error) {
	c := &Controller[T]{
		changes:  make(chan struct{}, 1),
		flights:  make(map[uint64]flight),
		onCommit: cfg.OnCommit,
		onError:  cfg.OnError,
	}
	cfg.OnCommit = func(commit Commit[T]) {
		if c.onCommit != nil {
			c.pending = append(c.pending, func() { c.onCommit(commit) })
		}
	}
	cfg.OnError = func(err error) {
		if c.onError != nil {
			c.pending = append(c.pending, func() { c.onError(err) })
		}
	}

	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	c.engine = e
	c.debouncer = NewDebouncer(e.cfg.Debounce)
	c.ctx, c.stop = context.WithCancel(ctx)
	return c, nil
}

// Changes delivers a signal after every state change. Signals coalesce.
func (c *Controller[T]) Changes() <-chan struct{} {
	return c.changes
}

// Start issues the eager first fetch, if any.
func (c *Controller[T]) Start() {
	c.do(func(e *Engine[T]) *PageRequest { return e.Start() })
}

// Open opens a session.
func (c *Controller[T]) Open() {
	c.do(func(e *Engine[T]) *PageRequest { return e.Open() })
}

// Close closes the session without committing.
func (c *Controller[T]) Close() {
	c.do(func(e *Engine[T]) *PageRequest { e.Close(); return nil })
}

// Type records raw as the search text and commits it once typing pauses.
func (c *Controller[T]) Type(raw string) {
	c.do(func(e *Engine[T]) *PageRequest { e.SetSearch(raw); return nil })
	c.debouncer.Trigger(raw, func(text string) {
		c.do(func(e *Engine[T]) *PageRequest { return e.CommitQuery(text) })
	})
}

// Submit commits raw as the query right away, dropping any pending
// debounced search.
func (c *Controller[T]) Submit(raw string) {
	c.debouncer.Stop()
	c.do(func(e *Engine[T]) *PageRequest { return e.CommitQuery(raw) })
}

// SetExtra replaces the extra filters and refetches.
func (c *Controller[T]) SetExtra(extra map[string]string) {
	c.do(func(e *Engine[T]) *PageRequest { return e.SetExtra(extra) })
}

// ScrollNearBottom fetches the next page if there is one.
func (c *Controller[T]) ScrollNearBottom() {
	c.do(func(e *Engine[T]) *PageRequest { return e.ScrollNearBottom() })
}

// SelectSingle commits value in single mode.
func (c *Controller[T]) SelectSingle(value string) {
	c.debouncer.Stop()
	c.do(func(e *Engine[T]) *PageRequest { return e.SelectSingle(value) })
}

// ToggleMulti flips value in the provisional selection.
func (c *Controller[T]) ToggleMulti(value string) {
	c.do(func(e *Engine[T]) *PageRequest { e.ToggleMulti(value); return nil })
}

// ApplyMulti commits the provisional selection.
func (c *Controller[T]) ApplyMulti() {
	c.do(func(e *Engine[T]) *PageRequest { e.ApplyMulti(); return nil })
}

// CancelMulti discards the provisional selection.
func (c *Controller[T]) CancelMulti() {
	c.do(func(e *Engine[T]) *PageRequest { e.CancelMulti(); return nil })
}

// Clear empties the selection if the control is clearable.
func (c *Controller[T]) Clear() {
	c.do(func(e *Engine[T]) *PageRequest { e.Clear(); return nil })
}

// SetValue replaces the committed value from outside.
func (c *Controller[T]) SetValue(values ...string) {
	c.do(func(e *Engine[T]) *PageRequest { e.SetValue(values...); return nil })
}

// Snapshot returns the current derived state.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.engine
	return Snapshot[T]{
		State:       e.State(),
		Status:      e.Status(),
		Items:       e.Items(),
		Display:     e.DisplayValue(),
		Message:     e.Message(),
		Search:      e.SearchText(),
		Query:       e.Query(),
		Value:       e.Value(),
		Provisional: e.Provisional(),
		Loading:     e.IsLoading(),
		HasMore:     e.HasMore(),
		Err:         e.Err(),
	}
}

// Wait blocks until every outstanding fetch has been resolved.
func (c *Controller[T]) Wait() {
	c.wg.Wait()
}

// Shutdown stops the debouncer, cancels outstanding fetches and waits for
// them. The controller ignores all calls afterwards.
func (c *Controller[T]) Shutdown() {
	c.debouncer.Stop()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stop()
	c.wg.Wait()
}

// do runs fn under the lock, launches the request it returns, then runs
// deferred callbacks and signals a change.
func (c *Controller[T]) do(fn func(e *Engine[T]) *PageRequest) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	req := fn(c.engine)
	c.cancelSupersededLocked()
	if req != nil {
		c.launchLocked(*req)
	}
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, f := range pending {
		f()
	}
	c.notify()
}

// cancelSupersededLocked cancels every flight an invalidation has made stale.
func (c *Controller[T]) cancelSupersededLocked() {
	gen := c.engine.Coordinator().Generation()
	for id, f := range c.flights {
		if f.gen < gen {
			f.cancel()
			delete(c.flights, id)
		}
	}
}

func (c *Controller[T]) launchLocked(req PageRequest) {
	c.flightID++
	id := c.flightID
	ctx, cancel := context.WithCancel(c.ctx)
	c.flights[id] = flight{gen: req.Generation, cancel: cancel}

	coord := c.engine.Coordinator()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res := coord.Do(ctx, req)
		cancel()
		c.resolve(id, res)
	}()
}

func (c *Controller[T]) resolve(id uint64, res Result[T]) {
	c.mu.Lock()
	delete(c.flights, id)
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.engine.Resolve(res)
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, f := range pending {
		f()
	}
	c.notify()
}

func (c *Controller[T]) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}
