package selection

import (
	"errors"
	"time"
)

var (
	// ErrNoSource is returned by New when neither Fetch nor CustomData is set.
	ErrNoSource = errors.New("selection: fetch function or custom data is required")

	// ErrNoFormatter is returned by New when Format is nil.
	ErrNoFormatter = errors.New("selection: formatter is required")
)

// Messages are the texts shown in place of the list, one per cause.
// BelowMinimum is a fmt format taking the number of missing characters.
type Messages struct {
	Loading      string
	NoResults    string
	Failed       string
	BelowMinimum string
}

// Config configures an Engine.
type Config[T any] struct {
	// Fetch loads remote pages. Ignored when CustomData is non-nil.
	Fetch FetchFunc[T]

	// Format turns items into options. Required.
	Format Formatter[T]

	// CustomData bypasses remote fetching entirely when non-nil.
	CustomData []T

	// Multiple selects many values with an apply/cancel step.
	Multiple bool

	// Clearable enables Clear.
	Clearable bool

	// MinSearchLength suppresses fetching until the search text has at
	// least this many characters.
	MinSearchLength int

	// CallOnOpen defers the first fetch until the session opens.
	CallOnOpen bool

	// Debounce is the search delay. Zero means DefaultDebounce unless
	// ImmediateSearch is set.
	Debounce        time.Duration
	ImmediateSearch bool

	// Extra is sent with every query (static filters).
	Extra map[string]string

	// Value is the initial committed selection.
	Value []string

	// FallbackValue is shown for a single committed value whose label
	// cannot be resolved from the cache, the window or FallbackOption.
	FallbackValue string

	// FallbackOption resolves a committed value before any page arrives.
	FallbackOption *Option[T]

	Placeholder string

	// KeepOnReselect disables toggle-to-deselect in single mode.
	KeepOnReselect bool

	Messages Messages

	// OnCommit is called on SelectSingle, ApplyMulti and Clear.
	OnCommit func(Commit[T])

	// OnError is called with transport failures.
	OnError func(error)
}

func (c Config[T]) withDefaults() Config[T] {
	if c.ImmediateSearch {
		c.Debounce = 0
	} else if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.MinSearchLength < 0 {
		c.MinSearchLength = 0
	}
	if c.Placeholder == "" {
		c.Placeholder = "Select..."
	}
	if c.Messages.Loading == "" {
		c.Messages.Loading = "Loading..."
	}
	if c.Messages.NoResults == "" {
		c.Messages.NoResults = "No results"
	}
	if c.Messages.Failed == "" {
		c.Messages.Failed = "Could not load results"
	}
	if c.Messages.BelowMinimum == "" {
		c.Messages.BelowMinimum = "Type %d more characters to search"
	}
	return c
}

func (c Config[T]) validate() error {
	if c.Format == nil {
		return ErrNoFormatter
	}
	if c.Fetch == nil && c.CustomData == nil {
		return ErrNoSource
	}
	return nil
}

// Commit is what the commit callback receives. Items and Found are
// index-aligned with Values: Items[i] is the zero value and Found[i] is
// false when Values[i] could not be resolved.
type Commit[T any] struct {
	Values []string
	Items  []T
	Found  []bool
}

// Value returns the single committed value, or "" when nothing is selected.
func (c Commit[T]) Value() string {
	if len(c.Values) == 0 {
		return ""
	}
	return c.Values[0]
}

// Item returns the item of the first committed value.
func (c Commit[T]) Item() (T, bool) {
	return c.ItemAt(0)
}

// ItemAt returns the item of Values[i] and whether it was resolved.
func (c Commit[T]) ItemAt(i int) (T, bool) {
	if i < 0 || i >= len(c.Items) || i >= len(c.Found) || !c.Found[i] {
		var zero T
		return zero, false
	}
	return c.Items[i], true
}
