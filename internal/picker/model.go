// Package picker is the terminal dropdown: a Bubble Tea model that drives one
// selection.Engine per tab and renders the remote-search list.
package picker

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/runger/fleetdash/internal/config"
	"github.com/runger/fleetdash/internal/directory"
	"github.com/runger/fleetdash/internal/selection"
)

// nearBottom is how close to the end of the list the cursor has to get
// before the next page is requested.
const nearBottom = 3

// resolveTimeout bounds the by-id lookup of a preset value.
const resolveTimeout = 2 * time.Second

// statusCycle is the order ctrl+f steps through; "" keeps the tab's own filter.
var statusCycle = []string{"", directory.StatusActive, directory.StatusSuspended, directory.StatusArchived}

// fetchDoneMsg carries a finished page request back into Update.
type fetchDoneMsg struct {
	tab int
	res selection.Result[directory.Record]
}

// debounceMsg fires once the ticket's quiet period has passed.
type debounceMsg struct {
	tab    int
	ticket selection.Ticket
}

// initMsg is sent by Init() so the first fetch happens inside Update.
type initMsg struct{}

// Options configures a Model.
type Options struct {
	Tabs     []config.TabDef
	Provider Provider

	PageSize        int
	Debounce        time.Duration
	MinSearchLength int
	CallOnOpen      bool
	Multiple        bool
	Clearable       bool

	// Value is the committed selection the picker starts with.
	Value         []string
	FallbackValue string

	// Query is the initial search text of the first tab.
	Query string
}

// Choice is one committed value and its display label.
type Choice struct {
	Value string
	Label string
}

// Selection is what the user committed. An empty Choices means the
// selection was cleared.
type Selection struct {
	Tab     string
	Choices []Choice
}

// outcome is shared by every copy of the Model so the commit callback
// can record into it.
type outcome struct {
	done bool
	sel  Selection
}

type tab struct {
	def     config.TabDef
	engine  *selection.Engine[directory.Record]
	started bool
	status  int // index into statusCycle
	cursor  int
	offset  int

	// flights cancels outstanding fetches by generation.
	flights map[uint64]context.CancelFunc
}

// Model is the Bubble Tea model for the directory picker.
type Model struct {
	ctx    context.Context
	tabs   []*tab
	active int

	input   textinput.Model
	spinner spinner.Model
	out     *outcome

	width  int
	height int
}

// NewModel creates a picker Model. Every tab gets its own engine, bound to
// the provider's fetch function for the tab's kind.
func NewModel(ctx context.Context, opts Options) (Model, error) {
	if opts.Provider == nil {
		return Model{}, errors.New("picker: provider is required")
	}
	if len(opts.Tabs) == 0 {
		return Model{}, errors.New("picker: at least one tab is required")
	}

	out := &outcome{}
	m := Model{ctx: ctx, out: out}

	for i, def := range opts.Tabs {
		kind, err := directory.ParseKind(def.Kind)
		if err != nil {
			return Model{}, fmt.Errorf("picker: tab %q: %w", def.ID, err)
		}
		id := def.ID
		e, err := selection.New(selection.Config[directory.Record]{
			Fetch:           opts.Provider.Fetcher(kind, opts.PageSize),
			Format:          directory.Format,
			Multiple:        opts.Multiple,
			Clearable:       opts.Clearable,
			MinSearchLength: opts.MinSearchLength,
			CallOnOpen:      opts.CallOnOpen,
			Debounce:        opts.Debounce,
			Extra:           def.Filters,
			Value:           opts.Value,
			FallbackValue:   opts.FallbackValue,
			FallbackOption:  resolveFallback(ctx, opts.Provider, kind, opts.Value),
			Placeholder:     "Select " + strings.ToLower(def.Label) + "...",
			OnCommit: func(c selection.Commit[directory.Record]) {
				out.done = true
				out.sel = toSelection(id, c)
			},
		})
		if err != nil {
			return Model{}, fmt.Errorf("picker: tab %q: %w", def.ID, err)
		}
		if i == 0 && opts.Query != "" {
			e.SetSearch(opts.Query)
		}
		m.tabs = append(m.tabs, &tab{
			def:     def,
			engine:  e,
			flights: make(map[uint64]context.CancelFunc),
		})
	}

	m.input = textinput.New()
	m.input.Prompt = "> "
	m.input.PromptStyle = queryStyle
	m.input.Placeholder = "search"
	m.input.SetValue(opts.Query)
	m.input.Focus()

	m.spinner = spinner.New()
	m.spinner.Spinner = spinner.MiniDot
	m.spinner.Style = dimStyle

	return m, nil
}

// resolveFallback looks up the first preset value by id so its label shows
// before any page containing it loads. Lookup failures leave the raw value.
func resolveFallback(ctx context.Context, p Provider, kind directory.Kind, values []string) *selection.Option[directory.Record] {
	if len(values) == 0 || values[0] == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()
	r, err := p.Get(ctx, kind, values[0])
	if err != nil {
		return nil
	}
	return r.Option()
}

func toSelection(tabID string, c selection.Commit[directory.Record]) Selection {
	sel := Selection{Tab: tabID}
	for i, v := range c.Values {
		label := v
		if r, ok := c.ItemAt(i); ok {
			label = r.Label()
		}
		sel.Choices = append(sel.Choices, Choice{Value: v, Label: SanitizeLabel(label)})
	}
	return sel
}

// Result returns the committed selection. ok is false when the user
// cancelled.
func (m Model) Result() (Selection, bool) {
	return m.out.sel, m.out.done
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return initMsg{} },
		m.spinner.Tick,
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-4, 1)
		return m, nil

	case fetchDoneMsg:
		return m.handleFetchDone(msg)

	case debounceMsg:
		return m.handleDebounce(msg)

	case initMsg:
		return m, m.activate(0)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKey processes keyboard input. Keys the picker does not claim go to
// the search input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	t := m.current()
	e := t.engine

	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		if e.Multiple() {
			e.CancelMulti()
		} else {
			e.Close()
		}
		m.shutdown()
		return m, tea.Quit

	case tea.KeyEnter:
		if e.Multiple() {
			e.ApplyMulti()
			m.shutdown()
			return m, tea.Quit
		}
		items := e.Items()
		if t.cursor < 0 || t.cursor >= len(items) {
			return m, nil
		}
		e.SelectSingle(items[t.cursor].Value)
		m.shutdown()
		return m, tea.Quit

	case tea.KeyCtrlT:
		items := e.Items()
		if e.Multiple() && t.cursor >= 0 && t.cursor < len(items) {
			e.ToggleMulti(items[t.cursor].Value)
		}
		return m, nil

	case tea.KeyCtrlU:
		if e.Clear() {
			m.shutdown()
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyCtrlF:
		t.status = (t.status + 1) % len(statusCycle)
		t.cursor, t.offset = 0, 0
		return m, m.fetch(m.active, e.SetExtra(t.extra()))

	case tea.KeyUp:
		m.moveCursor(-1)
		return m, nil

	case tea.KeyDown:
		m.moveCursor(1)
		return m, m.fetch(m.active, m.maybeNextPage())

	case tea.KeyPgUp:
		m.moveCursor(-m.listHeight())
		return m, nil

	case tea.KeyPgDown:
		m.moveCursor(m.listHeight())
		return m, m.fetch(m.active, m.maybeNextPage())

	case tea.KeyTab:
		if len(m.tabs) > 1 {
			return m, m.activate((m.active + 1) % len(m.tabs))
		}
		return m, nil

	case tea.KeyShiftTab:
		if len(m.tabs) > 1 {
			return m, m.activate((m.active + len(m.tabs) - 1) % len(m.tabs))
		}
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		return m, tea.Batch(cmd, m.debounce(m.active, e.Search(after)))
	}
	return m, cmd
}

// handleFetchDone hands a finished request to its engine. Stale and
// cancelled results are dropped there.
func (m Model) handleFetchDone(msg fetchDoneMsg) (tea.Model, tea.Cmd) {
	if msg.tab < 0 || msg.tab >= len(m.tabs) {
		return m, nil
	}
	t := m.tabs[msg.tab]
	if cancel, ok := t.flights[msg.res.Request.Generation]; ok {
		cancel()
		delete(t.flights, msg.res.Request.Generation)
	}
	if t.engine.Resolve(msg.res) == selection.OutcomeApplied {
		t.clampCursor()
	}
	return m, nil
}

// handleDebounce commits the ticket's text if it is still the latest search.
func (m Model) handleDebounce(msg debounceMsg) (tea.Model, tea.Cmd) {
	if msg.tab < 0 || msg.tab >= len(m.tabs) {
		return m, nil
	}
	t := m.tabs[msg.tab]
	req := t.engine.Debounced(msg.ticket)
	if req != nil || t.engine.Status() == selection.StatusBelowMinimum {
		t.cursor, t.offset = 0, 0
	}
	return m, m.fetch(msg.tab, req)
}

// activate switches to tab i, opening its engine on first use. The outgoing
// tab's session is closed and its provisional selection dropped.
func (m *Model) activate(i int) tea.Cmd {
	if prev := m.current(); i != m.active {
		if prev.engine.Multiple() {
			prev.engine.CancelMulti()
		} else {
			prev.engine.Close()
		}
	}
	m.active = i
	t := m.tabs[i]
	m.input.SetValue(t.engine.SearchText())
	m.input.CursorEnd()

	var cmds []tea.Cmd
	if !t.started {
		t.started = true
		cmds = append(cmds, m.fetch(i, t.engine.Start()))
	}
	cmds = append(cmds, m.fetch(i, t.engine.Open()))
	return tea.Batch(cmds...)
}

// debounce turns a ticket into a delayed debounceMsg.
func (m *Model) debounce(tabIdx int, ticket selection.Ticket) tea.Cmd {
	if ticket.Delay <= 0 {
		return func() tea.Msg { return debounceMsg{tab: tabIdx, ticket: ticket} }
	}
	return tea.Tick(ticket.Delay, func(time.Time) tea.Msg {
		return debounceMsg{tab: tabIdx, ticket: ticket}
	})
}

// fetch cancels fetches of older generations on the tab and returns a
// tea.Cmd that runs req.
func (m *Model) fetch(tabIdx int, req *selection.PageRequest) tea.Cmd {
	if req == nil {
		return nil
	}
	t := m.tabs[tabIdx]
	for gen, cancel := range t.flights {
		if gen < req.Generation {
			cancel()
			delete(t.flights, gen)
		}
	}

	ctx, cancel := context.WithCancel(m.ctx)
	t.flights[req.Generation] = cancel

	coord := t.engine.Coordinator()
	r := *req
	return func() tea.Msg {
		return fetchDoneMsg{tab: tabIdx, res: coord.Do(ctx, r)}
	}
}

// maybeNextPage requests the next page when the cursor is near the end.
func (m *Model) maybeNextPage() *selection.PageRequest {
	t := m.current()
	if t.cursor < t.engine.Len()-nearBottom {
		return nil
	}
	return t.engine.ScrollNearBottom()
}

// shutdown cancels every outstanding fetch.
func (m *Model) shutdown() {
	for _, t := range m.tabs {
		t.engine.Invalidate()
		for gen, cancel := range t.flights {
			cancel()
			delete(t.flights, gen)
		}
	}
}

func (m *Model) current() *tab {
	return m.tabs[m.active]
}

func (m *Model) moveCursor(delta int) {
	t := m.current()
	t.cursor += delta
	t.clampCursor()

	h := m.listHeight()
	if t.cursor < t.offset {
		t.offset = t.cursor
	}
	if t.cursor >= t.offset+h {
		t.offset = t.cursor - h + 1
	}
	if t.offset < 0 {
		t.offset = 0
	}
}

// extra returns the tab's filters with the cycled status applied.
func (t *tab) extra() map[string]string {
	out := maps.Clone(t.def.Filters)
	if out == nil {
		out = make(map[string]string)
	}
	if s := statusCycle[t.status]; s != "" {
		out[directory.FilterStatus] = s
	}
	return out
}

// clampCursor keeps the cursor within the loaded items.
func (t *tab) clampCursor() {
	n := t.engine.Len()
	if n == 0 {
		t.cursor, t.offset = 0, 0
		return
	}
	if t.cursor < 0 {
		t.cursor = 0
	}
	if t.cursor >= n {
		t.cursor = n - 1
	}
	if t.offset > t.cursor {
		t.offset = t.cursor
	}
}

// listHeight returns the number of visible list rows.
func (m Model) listHeight() int {
	// tab bar, query line, footer
	const chrome = 3
	h := m.height - chrome
	if h < 1 {
		h = 10 // before the first WindowSizeMsg
	}
	return h
}

// --- View rendering ---

var (
	activeTabStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62"))
	inactiveTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	selectedStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	normalStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	checkedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	queryStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.viewTabBar())
	b.WriteRune('\n')
	b.WriteString(m.input.View())
	b.WriteRune('\n')
	b.WriteString(m.viewContent())
	b.WriteRune('\n')
	b.WriteString(m.viewFooter())
	return b.String()
}

func (m Model) viewTabBar() string {
	var parts []string
	for i, t := range m.tabs {
		label := " " + t.def.Label + " "
		if i == m.active {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, inactiveTabStyle.Render(label))
		}
	}
	return strings.Join(parts, " ")
}

// viewContent renders the list, or the message standing in for it.
func (m Model) viewContent() string {
	e := m.current().engine
	switch e.Status() {
	case selection.StatusReady:
		return m.viewList()
	case selection.StatusLoading:
		return m.spinner.View() + " " + dimStyle.Render(e.Message())
	case selection.StatusFailed:
		msg := e.Message()
		if err := e.Err(); err != nil {
			msg = fmt.Sprintf("%s: %s", msg, err)
		}
		return errorStyle.Render(msg)
	default:
		return dimStyle.Render(e.Message())
	}
}

func (m Model) viewList() string {
	t := m.current()
	e := t.engine
	items := e.Items()
	h := m.listHeight()

	var rows []string
	for i := t.offset; i < len(items) && i < t.offset+h; i++ {
		opt := items[i]
		prefix := "  "
		if i == t.cursor {
			prefix = "> "
		}
		check := ""
		if e.Multiple() {
			check = "[ ] "
			if e.IsSelected(opt.Value) {
				check = checkedStyle.Render("[x]") + " "
			}
		} else if e.IsSelected(opt.Value) {
			check = checkedStyle.Render("✓") + " "
		}

		label := SanitizeLabel(opt.Label)
		if m.width > 8 {
			label = MiddleTruncate(label, m.width-8)
		}
		if i == t.cursor {
			rows = append(rows, selectedStyle.Render(prefix)+check+selectedStyle.Render(label))
		} else {
			rows = append(rows, normalStyle.Render(prefix)+check+normalStyle.Render(label))
		}
	}
	return strings.Join(rows, "\n")
}

// viewFooter shows the committed value, the loaded count and the filter.
func (m Model) viewFooter() string {
	t := m.current()
	e := t.engine

	count := fmt.Sprintf("%d", e.Len())
	if e.HasMore() {
		count += "+"
	}
	parts := []string{SanitizeLabel(e.DisplayValue()), count}
	if s := statusCycle[t.status]; s != "" {
		parts = append(parts, "status:"+s)
	}
	footer := dimStyle.Render(strings.Join(parts, " · "))
	if e.State() == selection.StateFetchingNext {
		footer += " " + m.spinner.View()
	}
	return footer
}
