package selection

import (
	"slices"
	"strings"
)

// Mode is the selection cardinality.
type Mode int

const (
	ModeSingle Mode = iota
	ModeMulti
)

func (m Mode) String() string {
	if m == ModeMulti {
		return "multi"
	}
	return "single"
}

// Reconciler owns what is selected. Committed values mirror the caller's
// value; provisional values exist only while a multi-select session is
// being edited.
type Reconciler[T any] struct {
	mode        Mode
	committed   []string
	provisional []string
	editing     bool

	// picked caches the option seen when a value was selected, so its label
	// survives the window being reset by a new search.
	picked map[string]Option[T]
}

// NewReconciler returns a Reconciler holding values as the committed
// selection.
func NewReconciler[T any](mode Mode, values []string) *Reconciler[T] {
	r := &Reconciler[T]{mode: mode, picked: make(map[string]Option[T])}
	r.SetCommitted(values)
	return r
}

// Mode returns the selection mode.
func (r *Reconciler[T]) Mode() Mode {
	return r.mode
}

// Committed returns a copy of the committed values.
func (r *Reconciler[T]) Committed() []string {
	return slices.Clone(r.committed)
}

// Provisional returns a copy of the provisional values, or nil when no
// session is being edited.
func (r *Reconciler[T]) Provisional() []string {
	if !r.editing {
		return nil
	}
	return slices.Clone(r.provisional)
}

// Editing reports whether a provisional selection exists.
func (r *Reconciler[T]) Editing() bool {
	return r.editing
}

// SetCommitted replaces the committed values. Empty strings and repeats
// are dropped; single mode keeps only the first value.
func (r *Reconciler[T]) SetCommitted(values []string) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
		if r.mode == ModeSingle {
			break
		}
	}
	r.committed = out
}

// Begin seeds the provisional selection from the committed one. It is a
// no-op in single mode or when already editing.
func (r *Reconciler[T]) Begin() {
	if r.mode != ModeMulti || r.editing {
		return
	}
	r.provisional = slices.Clone(r.committed)
	r.editing = true
}

// Toggle adds or removes opt.Value from the provisional selection and
// reports whether it is now selected.
func (r *Reconciler[T]) Toggle(opt Option[T]) bool {
	r.Begin()
	if i := slices.Index(r.provisional, opt.Value); i >= 0 {
		r.provisional = slices.Delete(r.provisional, i, i+1)
		return false
	}
	r.Remember(opt)
	r.provisional = append(r.provisional, opt.Value)
	return true
}

// Apply promotes the provisional selection and ends editing.
func (r *Reconciler[T]) Apply() []string {
	if r.editing {
		r.committed = r.provisional
	}
	r.Discard()
	return r.Committed()
}

// Discard drops the provisional selection.
func (r *Reconciler[T]) Discard() {
	r.provisional = nil
	r.editing = false
}

// SelectSingle commits opt.Value, or nothing when opt.Value is already
// selected and deselect is set.
func (r *Reconciler[T]) SelectSingle(opt Option[T], deselect bool) []string {
	if deselect && len(r.committed) == 1 && r.committed[0] == opt.Value {
		r.committed = nil
		return nil
	}
	r.Remember(opt)
	r.committed = []string{opt.Value}
	return r.Committed()
}

// Clear empties both selections.
func (r *Reconciler[T]) Clear() {
	r.committed = nil
	if r.editing {
		r.provisional = []string{}
	}
}

// IsSelected reports whether value is selected in the selection the user is
// currently looking at.
func (r *Reconciler[T]) IsSelected(value string) bool {
	if r.editing {
		return slices.Contains(r.provisional, value)
	}
	return slices.Contains(r.committed, value)
}

// Remember caches opt so its label can be shown without the window.
func (r *Reconciler[T]) Remember(opt Option[T]) {
	if opt.Value == "" || opt.Label == "" {
		return
	}
	r.picked[opt.Value] = opt
}

// Picked returns the cached option for value.
func (r *Reconciler[T]) Picked(value string) (Option[T], bool) {
	opt, ok := r.picked[value]
	return opt, ok
}

// Lookup finds the option for value in the cache, then in items, then in
// fallback.
func (r *Reconciler[T]) Lookup(value string, items []Option[T], fallback *Option[T]) (Option[T], bool) {
	if opt, ok := r.picked[value]; ok {
		return opt, true
	}
	for _, opt := range items {
		if opt.Value == value {
			return opt, true
		}
	}
	if fallback != nil && fallback.Value == value {
		return *fallback, true
	}
	return Option[T]{}, false
}

// Label resolves the display label for one value: cached label, window
// item, fallback option, then raw. raw defaults to the value itself.
func (r *Reconciler[T]) Label(value string, items []Option[T], fallback *Option[T], raw string) string {
	if opt, ok := r.Lookup(value, items, fallback); ok && opt.Label != "" {
		return opt.Label
	}
	if raw != "" {
		return raw
	}
	return value
}

// Display renders the committed selection, or placeholder when nothing is
// committed. Multi-select labels are joined with ", ".
func (r *Reconciler[T]) Display(items []Option[T], fallback *Option[T], raw, placeholder string) string {
	if len(r.committed) == 0 {
		return placeholder
	}
	if r.mode == ModeSingle {
		return r.Label(r.committed[0], items, fallback, raw)
	}
	labels := make([]string, 0, len(r.committed))
	for _, v := range r.committed {
		labels = append(labels, r.Label(v, items, fallback, ""))
	}
	return strings.Join(labels, ", ")
}
