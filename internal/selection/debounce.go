package selection

import (
	"sync"
	"time"
)

const (
	// DefaultDebounce is the search delay used by paginated selects.
	DefaultDebounce = 300 * time.Millisecond

	// ComboboxDebounce is the longer delay used by form comboboxes.
	ComboboxDebounce = 500 * time.Millisecond
)

// Ticket is one scheduled emission. Only the most recently issued ticket
// is accepted by Fire.
type Ticket struct {
	ID    uint64
	Text  string
	Delay time.Duration
}

// Debouncer turns a rapidly changing raw string into a delayed committed
// value. Each Schedule supersedes the previous one.
//
// Event-loop callers schedule a ticket and deliver it back after
// Ticket.Delay (tea.Tick, for example). Everyone else uses Trigger, which
// runs its own timer.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	seq   uint64
	timer *time.Timer
}

// NewDebouncer returns a Debouncer with the given delay. A delay <= 0 makes
// every emission immediate.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay < 0 {
		delay = 0
	}
	return &Debouncer{delay: delay}
}

// Delay returns the configured delay.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Schedule supersedes any pending emission and returns a ticket for raw.
func (d *Debouncer) Schedule(raw string) Ticket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scheduleLocked(raw)
}

func (d *Debouncer) scheduleLocked(raw string) Ticket {
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return Ticket{ID: d.seq, Text: raw, Delay: d.delay}
}

// Fire returns the ticket's text and true if t is still the latest ticket.
// A ticket fires at most once.
func (d *Debouncer) Fire(t Ticket) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.ID != d.seq {
		return "", false
	}
	d.seq++
	return t.Text, true
}

// Trigger schedules raw and calls emit once the delay passes without another
// Trigger or Stop. With a zero delay emit runs synchronously.
func (d *Debouncer) Trigger(raw string, emit func(string)) {
	d.mu.Lock()
	t := d.scheduleLocked(raw)
	if d.delay == 0 {
		d.mu.Unlock()
		emit(raw)
		return
	}
	d.timer = time.AfterFunc(d.delay, func() {
		if text, ok := d.Fire(t); ok {
			emit(text)
		}
	})
	d.mu.Unlock()
}

// Stop cancels any pending emission.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
