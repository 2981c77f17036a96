package selection

import (
	"fmt"
	"unicode/utf8"
)

// State is the session state of the control.
type State int

const (
	StateClosed           State = iota // Popover closed
	StateOpeningFirstFetch             // Open, waiting for page 1
	StateIdle                          // Open, nothing outstanding
	StateFetchingNext                  // Open, a follow-up page is outstanding
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpeningFirstFetch:
		return "opening"
	case StateIdle:
		return "idle"
	case StateFetchingNext:
		return "fetching-next"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status describes what the list area should show.
type Status int

const (
	StatusIdle         Status = iota // Nothing fetched yet
	StatusLoading                    // Page 1 outstanding
	StatusBelowMinimum               // Search text shorter than MinSearchLength
	StatusEmpty                      // Fetched, no results
	StatusFailed                     // Last fetch failed
	StatusReady                      // Items available
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusBelowMinimum:
		return "below-minimum"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	case StatusReady:
		return "ready"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Engine is the session controller: it ties the debouncer, coordinator,
// page window and reconciler together. It is not safe for concurrent use.
//
// Methods that may need data return a *PageRequest; nil means nothing has
// to be fetched.
type Engine[T any] struct {
	cfg       Config[T]
	debouncer *Debouncer
	coord     *Coordinator[T]
	window    *PageWindow[T]
	sel       *Reconciler[T]

	state    State
	search   string // raw search text as typed
	query    Query  // committed query
	belowMin bool
	fetched  bool // page 1 of the current query settled at least once
	err      error
}

// New validates cfg and returns an Engine in the closed state.
func New[T any](cfg Config[T]) (*Engine[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	mode := ModeSingle
	if cfg.Multiple {
		mode = ModeMulti
	}

	e := &Engine[T]{
		cfg:       cfg,
		debouncer: NewDebouncer(cfg.Debounce),
		coord:     NewCoordinator(cfg.Fetch),
		sel:       NewReconciler[T](mode, cfg.Value),
		query:     NewQuery("", cfg.Extra),
	}
	if cfg.CustomData != nil {
		e.window = NewStaticWindow(cfg.CustomData)
		e.fetched = true
	} else {
		e.window = NewPageWindow[T](e.query)
	}
	return e, nil
}

// Coordinator exposes the coordinator so callers can run requests with Do.
func (e *Engine[T]) Coordinator() *Coordinator[T] {
	return e.coord
}

// Debouncer returns the engine's debouncer.
func (e *Engine[T]) Debouncer() *Debouncer {
	return e.debouncer
}

// Start issues the eager first fetch. It returns nil for static data and
// when CallOnOpen defers fetching to Open.
func (e *Engine[T]) Start() *PageRequest {
	if e.window.Static() || e.cfg.CallOnOpen {
		return nil
	}
	return e.commit(e.search)
}

// Open starts a session. Page 1 is requested when the current query has not
// been fetched successfully yet.
func (e *Engine[T]) Open() *PageRequest {
	if e.state != StateClosed {
		return nil
	}
	e.sel.Begin()
	e.state = StateIdle

	if e.window.Static() || e.belowMin {
		return nil
	}
	if e.window.LoadingFirst() {
		e.state = StateOpeningFirstFetch
		return nil
	}
	if e.fetched && e.err == nil {
		if e.window.LoadingNext() {
			e.state = StateFetchingNext
		}
		return nil
	}
	return e.commit(e.search)
}

// Close ends the session, discarding any provisional selection.
func (e *Engine[T]) Close() {
	e.sel.Discard()
	e.state = StateClosed
}

// IsOpen reports whether a session is open.
func (e *Engine[T]) IsOpen() bool {
	return e.state != StateClosed
}

// State returns the session state.
func (e *Engine[T]) State() State {
	return e.state
}

// SetSearch records the raw search text without committing it.
func (e *Engine[T]) SetSearch(raw string) {
	e.search = raw
}

// Search records raw and schedules its commit. Deliver the ticket to
// Debounced once Ticket.Delay has passed.
func (e *Engine[T]) Search(raw string) Ticket {
	e.search = raw
	return e.debouncer.Schedule(raw)
}

// Debounced commits the ticket's text if no newer search superseded it.
func (e *Engine[T]) Debounced(t Ticket) *PageRequest {
	text, ok := e.debouncer.Fire(t)
	if !ok {
		return nil
	}
	return e.CommitQuery(text)
}

// CommitQuery makes text the committed query right away.
func (e *Engine[T]) CommitQuery(text string) *PageRequest {
	e.search = text
	if e.window.Static() {
		e.query = NewQuery(text, e.cfg.Extra)
		return nil
	}
	return e.commit(text)
}

// SetExtra replaces the extra filter parameters and commits a new query.
func (e *Engine[T]) SetExtra(extra map[string]string) *PageRequest {
	e.cfg.Extra = NewQuery("", extra).Extra
	if e.window.Static() {
		return nil
	}
	return e.commit(e.search)
}

// commit starts a new generation for text and requests page 1 unless the
// text is below the minimum length.
func (e *Engine[T]) commit(text string) *PageRequest {
	q := NewQuery(text, e.cfg.Extra)
	e.coord.Invalidate()
	e.window.Reset(q)
	e.query = q
	e.err = nil
	e.fetched = false
	if e.state == StateFetchingNext || e.state == StateOpeningFirstFetch {
		e.state = StateIdle
	}

	if utf8.RuneCountInString(text) < e.cfg.MinSearchLength {
		e.belowMin = true
		return nil
	}
	e.belowMin = false

	req := e.coord.Request(q, 1)
	e.window.MarkLoading(1)
	if e.state != StateClosed {
		e.state = StateOpeningFirstFetch
	}
	return &req
}

// Invalidate discards every outstanding request without starting a new
// one. Loading flags are cleared since their results will never apply.
func (e *Engine[T]) Invalidate() {
	if e.window.Static() {
		return
	}
	e.coord.Invalidate()
	if e.window.LoadingFirst() {
		e.fetched = false
	}
	e.window.Settle()
	e.settleState()
}

// Reset returns the engine to an empty query and refetches unless
// CallOnOpen defers that to the next Open.
func (e *Engine[T]) Reset() *PageRequest {
	e.debouncer.Stop()
	e.search = ""
	if e.window.Static() {
		e.query = NewQuery("", e.cfg.Extra)
		return nil
	}
	if e.cfg.CallOnOpen && e.state == StateClosed {
		e.coord.Invalidate()
		e.query = NewQuery("", e.cfg.Extra)
		e.window.Reset(e.query)
		e.fetched = false
		e.err = nil
		e.belowMin = false
		return nil
	}
	return e.commit("")
}

// ScrollNearBottom requests the next page when the window has one and no
// follow-up fetch is outstanding.
func (e *Engine[T]) ScrollNearBottom() *PageRequest {
	if e.state != StateIdle && e.state != StateFetchingNext {
		return nil
	}
	if e.state == StateFetchingNext || e.window.IsLoading() || !e.window.HasNext() {
		return nil
	}
	req := e.coord.Request(e.query, e.window.NextPage())
	e.window.MarkLoading(req.Page)
	e.state = StateFetchingNext
	return &req
}

// Resolve applies a finished request and reports how it was classified.
func (e *Engine[T]) Resolve(res Result[T]) Outcome {
	outcome := e.coord.Classify(res)
	switch outcome {
	case OutcomeStale:
		return outcome

	case OutcomeCancelled:
		if res.Request.Page <= 1 {
			e.fetched = false
		}

	case OutcomeFailed:
		e.window.Reset(e.query)
		e.err = res.Err
		e.fetched = true
		if e.cfg.OnError != nil {
			e.cfg.OnError(res.Err)
		}

	case OutcomeApplied:
		e.window.Append(res.Request.Query, res.Page)
		e.err = nil
		if res.Request.Page <= 1 {
			e.fetched = true
		}
	}

	e.window.Settle()
	e.settleState()
	return outcome
}

func (e *Engine[T]) settleState() {
	if e.state == StateOpeningFirstFetch || e.state == StateFetchingNext {
		e.state = StateIdle
	}
}

// SelectSingle commits value, or deselects it when it is already the
// committed value. The session closes and the search text is cleared;
// the returned request, if any, reloads the unfiltered list.
func (e *Engine[T]) SelectSingle(value string) *PageRequest {
	if e.sel.Mode() != ModeSingle {
		return nil
	}
	opt, ok := e.lookup(value)
	if !ok {
		opt = Option[T]{Value: value}
	}
	values := e.sel.SelectSingle(opt, !e.cfg.KeepOnReselect)
	e.Close()
	e.emit(values)

	if e.search == "" && e.query.Text == "" {
		return nil
	}
	e.debouncer.Stop()
	if e.window.Static() {
		e.search = ""
		e.query = NewQuery("", e.cfg.Extra)
		return nil
	}
	return e.Reset()
}

// ToggleMulti flips value in the provisional selection. It never commits.
func (e *Engine[T]) ToggleMulti(value string) bool {
	if e.sel.Mode() != ModeMulti {
		return false
	}
	opt, ok := e.lookup(value)
	if !ok {
		opt = Option[T]{Value: value}
	}
	return e.sel.Toggle(opt)
}

// ApplyMulti commits the provisional selection and closes the session.
func (e *Engine[T]) ApplyMulti() {
	if e.sel.Mode() != ModeMulti {
		return
	}
	values := e.sel.Apply()
	e.Close()
	e.emit(values)
}

// CancelMulti closes the session without committing.
func (e *Engine[T]) CancelMulti() {
	e.Close()
}

// Clear empties the selection and commits the empty value. It reports false
// when the control is not clearable.
func (e *Engine[T]) Clear() bool {
	if !e.cfg.Clearable {
		return false
	}
	e.sel.Clear()
	e.Invalidate()
	e.Close()
	e.emit(nil)
	return true
}

// SetValue replaces the committed selection from outside (the caller's form
// state changed). It does not call OnCommit.
func (e *Engine[T]) SetValue(values ...string) {
	e.sel.SetCommitted(values)
}

// Value returns the committed values.
func (e *Engine[T]) Value() []string {
	return e.sel.Committed()
}

// Provisional returns the provisional values of an open multi session.
func (e *Engine[T]) Provisional() []string {
	return e.sel.Provisional()
}

// IsSelected reports whether value is selected in the visible selection.
func (e *Engine[T]) IsSelected(value string) bool {
	return e.sel.IsSelected(value)
}

// Multiple reports whether the engine is in multi-select mode.
func (e *Engine[T]) Multiple() bool {
	return e.sel.Mode() == ModeMulti
}

// Clearable reports whether Clear is enabled.
func (e *Engine[T]) Clearable() bool {
	return e.cfg.Clearable
}

// Items returns the formatted options of the window.
func (e *Engine[T]) Items() []Option[T] {
	return e.cfg.Format(e.window.Items())
}

// Len returns the number of items in the window.
func (e *Engine[T]) Len() int {
	return e.window.Len()
}

// DisplayValue renders the committed selection.
func (e *Engine[T]) DisplayValue() string {
	return e.sel.Display(e.Items(), e.cfg.FallbackOption, e.cfg.FallbackValue, e.cfg.Placeholder)
}

// IsLoading reports whether any fetch is outstanding.
func (e *Engine[T]) IsLoading() bool {
	return e.window.IsLoading()
}

// HasMore reports whether another page can be fetched.
func (e *Engine[T]) HasMore() bool {
	return e.window.HasNext()
}

// SearchText returns the raw search text.
func (e *Engine[T]) SearchText() string {
	return e.search
}

// Query returns the committed query.
func (e *Engine[T]) Query() Query {
	return e.query
}

// Err returns the last transport failure for the current query.
func (e *Engine[T]) Err() error {
	return e.err
}

// RemainingChars returns how many more characters the search needs before
// it will be fetched.
func (e *Engine[T]) RemainingChars() int {
	n := e.cfg.MinSearchLength - utf8.RuneCountInString(e.search)
	if n < 0 {
		return 0
	}
	return n
}

// Status returns what the list area should show. Below-minimum pre-empts
// loading and empty.
func (e *Engine[T]) Status() Status {
	switch {
	case e.belowMin:
		return StatusBelowMinimum
	case e.window.LoadingFirst():
		return StatusLoading
	case e.err != nil:
		return StatusFailed
	case !e.fetched:
		return StatusIdle
	case e.window.Len() == 0:
		return StatusEmpty
	default:
		return StatusReady
	}
}

// Message returns the configured text for the current status, or "" when
// the list should be shown.
func (e *Engine[T]) Message() string {
	switch e.Status() {
	case StatusBelowMinimum:
		return fmt.Sprintf(e.cfg.Messages.BelowMinimum, max(e.RemainingChars(), 1))
	case StatusLoading, StatusIdle:
		return e.cfg.Messages.Loading
	case StatusFailed:
		return e.cfg.Messages.Failed
	case StatusEmpty:
		return e.cfg.Messages.NoResults
	default:
		return ""
	}
}

func (e *Engine[T]) lookup(value string) (Option[T], bool) {
	return e.sel.Lookup(value, e.Items(), e.cfg.FallbackOption)
}

// emit calls OnCommit with values and the items known for them.
func (e *Engine[T]) emit(values []string) {
	if e.cfg.OnCommit == nil {
		return
	}
	c := Commit[T]{Values: values}
	if len(values) > 0 {
		items := e.Items()
		c.Items = make([]T, len(values))
		c.Found = make([]bool, len(values))
		for i, v := range values {
			if opt, ok := e.sel.Lookup(v, items, e.cfg.FallbackOption); ok {
				c.Items[i] = opt.Item
				c.Found[i] = true
			}
		}
	}
	e.cfg.OnCommit(c)
}
