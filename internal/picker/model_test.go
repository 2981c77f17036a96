package picker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/fleetdash/internal/config"
	"github.com/runger/fleetdash/internal/directory"
	"github.com/runger/fleetdash/internal/selection"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

// --- Fake provider ---

type fetchCall struct {
	kind directory.Kind
	q    selection.Query
	page int
}

type fakeProvider struct {
	mu      sync.Mutex
	records map[directory.Kind][]directory.Record
	calls   []fetchCall
	gets    []string
	err     error
}

func newFakeProvider() *fakeProvider {
	p := &fakeProvider{records: make(map[directory.Kind][]directory.Record)}
	for i := 1; i <= 12; i++ {
		status := directory.StatusActive
		if i%5 == 0 {
			status = directory.StatusSuspended
		}
		p.records[directory.KindClients] = append(p.records[directory.KindClients], directory.Record{
			ID:     fmt.Sprintf("c%02d", i),
			Kind:   directory.KindClients,
			Name:   fmt.Sprintf("Client %02d", i),
			Status: status,
		})
	}
	for i := 1; i <= 3; i++ {
		p.records[directory.KindUsers] = append(p.records[directory.KindUsers], directory.Record{
			ID:     fmt.Sprintf("u%d", i),
			Kind:   directory.KindUsers,
			Name:   fmt.Sprintf("User %d", i),
			Status: directory.StatusActive,
		})
	}
	return p
}

func (p *fakeProvider) Fetcher(kind directory.Kind, perPage int) selection.FetchFunc[directory.Record] {
	return func(ctx context.Context, q selection.Query, page int) (selection.Page[directory.Record], error) {
		if err := ctx.Err(); err != nil {
			return selection.Page[directory.Record]{}, err
		}
		p.mu.Lock()
		p.calls = append(p.calls, fetchCall{kind: kind, q: q, page: page})
		err := p.err
		all := p.records[kind]
		p.mu.Unlock()
		if err != nil {
			return selection.Page[directory.Record]{}, err
		}

		var matched []directory.Record
		for _, r := range all {
			if q.Text != "" && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(q.Text)) {
				continue
			}
			if s := q.Extra[directory.FilterStatus]; s != "" && r.Status != s {
				continue
			}
			matched = append(matched, r)
		}

		start := min((page-1)*perPage, len(matched))
		end := min(start+perPage, len(matched))
		next := 0
		if end < len(matched) {
			next = page + 1
		}
		return selection.Page[directory.Record]{Items: matched[start:end], CurrentPage: page, NextPage: next}, nil
	}
}

func (p *fakeProvider) Get(ctx context.Context, kind directory.Kind, id string) (directory.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gets = append(p.gets, string(kind)+"/"+id)
	for _, r := range p.records[kind] {
		if r.ID == id {
			return r, nil
		}
	}
	return directory.Record{}, fmt.Errorf("%w: %s/%s", directory.ErrNotFound, kind, id)
}

func (p *fakeProvider) callsFor(kind directory.Kind) []fetchCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []fetchCall
	for _, c := range p.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func testTabs() []config.TabDef {
	return []config.TabDef{
		{ID: "clients", Label: "Clients", Kind: "clients"},
		{ID: "users", Label: "Users", Kind: "users"},
	}
}

func newTestModel(t *testing.T, p Provider, opts Options) Model {
	t.Helper()
	opts.Provider = p
	if opts.Tabs == nil {
		opts.Tabs = testTabs()
	}
	if opts.PageSize == 0 {
		opts.PageSize = 5
	}
	if opts.Debounce == 0 {
		opts.Debounce = time.Millisecond
	}
	m, err := NewModel(context.Background(), opts)
	require.NoError(t, err)
	m.input.Cursor.SetMode(cursor.CursorStatic)
	m.width = 80
	m.height = 24
	return m
}

// step runs cmd, flattening batches, and feeds the resulting messages into
// the model. Spinner ticks and quit messages are dropped. The commands
// produced by Update are returned unexecuted.
func step(t *testing.T, m Model, cmd tea.Cmd) (Model, []tea.Cmd) {
	t.Helper()
	var next []tea.Cmd
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case nil, spinner.TickMsg, tea.QuitMsg:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			result, more := m.Update(msg)
			m = result.(Model)
			next = append(next, more)
		}
	}
	return m, next
}

// drain runs cmd and everything it leads to.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	cmds := []tea.Cmd{cmd}
	for len(cmds) > 0 {
		var more []tea.Cmd
		for _, c := range cmds {
			var next []tea.Cmd
			m, next = step(t, m, c)
			more = append(more, next...)
		}
		cmds = more
	}
	return m
}

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	result, cmd := m.Update(msg)
	return result.(Model), cmd
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func labels(m Model) []string {
	var out []string
	for _, opt := range m.current().engine.Items() {
		out = append(out, opt.Label)
	}
	return out
}

// --- Tests ---

func TestNewModel_Validation(t *testing.T) {
	_, err := NewModel(context.Background(), Options{Tabs: testTabs()})
	assert.Error(t, err)

	_, err = NewModel(context.Background(), Options{Provider: newFakeProvider()})
	assert.Error(t, err)

	_, err = NewModel(context.Background(), Options{
		Provider: newFakeProvider(),
		Tabs:     []config.TabDef{{ID: "x", Label: "Trucks", Kind: "trucks"}},
	})
	assert.ErrorIs(t, err, directory.ErrUnknownKind)
}

func TestInit_LoadsFirstPage(t *testing.T) {
	p := newFakeProvider()
	m := newTestModel(t, p, Options{})

	m = drain(t, m, m.Init())

	e := m.current().engine
	assert.Equal(t, selection.StatusReady, e.Status())
	assert.Equal(t, 5, e.Len())
	assert.True(t, e.HasMore())
	assert.True(t, e.IsOpen())

	calls := p.callsFor(directory.KindClients)
	require.Len(t, calls, 1)
	assert.Equal(t, 1, calls[0].page)
	assert.Empty(t, p.callsFor(directory.KindUsers), "inactive tabs are not fetched")
}

func TestInit_InitialQuery(t *testing.T) {
	p := newFakeProvider()
	m := newTestModel(t, p, Options{Query: "client 1"})
	assert.Equal(t, "client 1", m.input.Value())

	m = drain(t, m, m.Init())
	assert.Equal(t, []string{"Client 10", "Client 11", "Client 12"}, labels(m))
}

func TestTyping_CoalescesIntoOneFetch(t *testing.T) {
	p := newFakeProvider()
	m := newTestModel(t, p, Options{})
	m = drain(t, m, m.Init())

	var pending []tea.Cmd
	for _, r := range "10" {
		var cmd tea.Cmd
		m, cmd = send(t, m, keyRunes(string(r)))
		pending = append(pending, cmd)
	}
	assert.Equal(t, "10", m.input.Value())

	m = drain(t, m, tea.Batch(pending...))

	calls := p.callsFor(directory.KindClients)
	require.Len(t, calls, 2, "initial load plus one search")
	assert.Equal(t, "10", calls[1].q.Text)
	assert.Equal(t, []string{"Client 10"}, labels(m))
}

func TestStaleResponse_Discarded(t *testing.T) {
	p := newFakeProvider()
	m := newTestModel(t, p, Options{})
	m = drain(t, m, m.Init())

	// First search: debounce fires and a fetch is issued, but held back.
	m, cmd := send(t, m, keyRunes("0"))
	m, held := step(t, m, cmd)
	require.Len(t, held, 1)

	// Second search supersedes it.
	m, cmd = send(t, m, keyRunes("1"))
	m = drain(t, m, cmd)
	assert.Equal(t, []string{"Client 01"}, labels(m))

	// The superseded fetch finishes late and is dropped.
	m = drain(t, m, held[0])
	assert.Equal(t, []string{"Client 01"}, labels(m))
	assert.NoError(t, m.current().engine.Err())
}

func TestScrollNearBottom_AppendsNextPage(t *testing.T) {
	p := newFakeProvider()
	m := newTestModel(t, p, Options{})
	m = drain(t, m, m.Init())

	m, cmd := send(t, m, key(tea.KeyDown))
	assert.Nil(t, cmd)
	assert.Equal(t, 1, m.current().cursor)

	m, cmd = send(t, m, key(tea.KeyDown))
	require.NotNil(t, cmd, "cursor within three rows of the end loads more")
	m = drain(t, m, cmd)

	e := m.current().engine
	assert.Equal(t, 10, e.Len())
	assert.True(t, e.HasMore())
	assert.Equal(t, 2, m.current().cursor)

	m, cmd = send(t, m, key(tea.KeyPgDown))
	m = drain(t, m, cmd)
	assert.Equal(t, 12, e.Len())
	assert.False(t, e.HasMore())
}

func TestCursor_Clamped(t *testing.T) {
	m := newTestModel(t, newFakeProvider(), Options{})
	m = drain(t, m, m.Init())

	m, _ = send(t, m, key(tea.KeyUp))
	assert.Equal(t, 0, m.current().cursor)

	m.current().cursor = 4
	m, cmd := send(t, m, keyRunes("12"))
	m = drain(t, m, cmd)
	assert.Equal(t, []string{"Client 12"}, labels(m))
	assert.Equal(t, 0, m.current().cursor)
}

func TestEnter_SelectsSingle(t *testing.T) {
	m := newTestModel(t, newFakeProvider(), Options{})
	m = drain(t, m, m.Init())

	m, _ = send(t, m, key(tea.KeyDown))
	m, cmd := send(t, m, key(tea.KeyEnter))
	assert.True(t, isQuit(cmd))

	sel, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, "clients", sel.Tab)
	assert.Equal(t, []Choice{{Value: "c02", Label: "Client 02"}}, sel.Choices)
	assert.False(t, m.current().engine.IsOpen())
}

func TestEnter_NoItems_NoOp(t *testing.T) {
	p := newFakeProvider()
	p.records[directory.KindClients] = nil
	m := newTestModel(t, p, Options{})
	m = drain(t, m, m.Init())

	m, cmd := send(t, m, key(tea.KeyEnter))
	assert.Nil(t, cmd)
	_, ok := m.Result()
	assert.False(t, ok)
	assert.Contains(t, m.View(), "No results")
}

func TestEsc_Cancels(t *testing.T) {
	m := newTestModel(t, newFakeProvider(), Options{})
	m = drain(t, m, m.Init())

	m, cmd := send(t, m, key(tea.KeyEsc))
	assert.True(t, isQuit(cmd))
	_, ok := m.Result()
	assert.False(t, ok)
}

func TestMulti_ToggleAndApply(t *testing.T) {
	m := newTestModel(t, newFakeProvider(), Options{Multiple: true})
	m = drain(t, m, m.Init())

	m, _ = send(t, m, key(tea.KeyCtrlT))
	m, _ = send(t, m, key(tea.KeyDown))
	m, _ = send(t, m, key(tea.KeyCtrlT))
	assert.Contains(t, m.View(), "[x]")

	_, ok := m.Result()
	assert.False(t, ok, "toggling never commits")

	m, cmd := send(t, m, key(tea.KeyEnter))
	assert.True(t, isQuit(cmd))
	sel, ok := m.Result()
	require.True(t, ok)
	assert.ElementsMatch(t, []Choice{
		{Value: "c01", Label: "Client 01"},
		{Value: "c02", Label: "Client 02"},
	}, sel.Choices)
}

func TestMulti_CancelDiscards(t *testing.T) {
	m := newTestModel(t, newFakeProvider(), Options{Multiple: true, Value: []string{"c03"}})
	m = drain(t, m, m.Init())

	m, _ = send(t, m, key(tea.KeyCtrlT))
	m, _ = send(t, m, key(tea.KeyEsc))

	_, ok := m.Result()
	assert.False(t, ok)
	assert.Equal(t, []string{"c03"}, m.current().engine.Value())
}

func TestClear(t *testing.T) {
	m := newTestModel(t, newFakeProvider(), Options{Clearable: true, Value: []string{"c03"}})
	m = drain(t, m, m.Init())
	assert.Contains(t, m.View(), "Client 03")

	m, cmd := send(t, m, key(tea.KeyCtrlU))
	assert.True(t, isQuit(cmd))
	sel, ok := m.Result()
	require.True(t, ok)
	assert.Empty(t, sel.Choices)
}

func TestClear_NotClearable(t *testing.T) {
	m := newTestModel(t, newFakeProvider(), Options{Value: []string{"c03"}})
	m = drain(t, m, m.Init())

	m, cmd := send(t, m, key(tea.KeyCtrlU))
	assert.Nil(t, cmd)
	_, ok := m.Result()
	assert.False(t, ok)
}

func TestTabSwitch_LoadsOnFirstUse(t *testing.T) {
	p := newFakeProvider()
	m := newTestModel(t, p, Options{})
	m = drain(t, m, m.Init())

	m, _ = send(t, m, keyRunes("0"))
	m, cmd := send(t, m, key(tea.KeyTab))
	m = drain(t, m, cmd)

	assert.Equal(t, 1, m.active)
	assert.Equal(t, []string{"User 1", "User 2", "User 3"}, labels(m))
	assert.Equal(t, "", m.input.Value())
	require.Len(t, p.callsFor(directory.KindUsers), 1)

	// Back to clients: the search text is restored and nothing refetches.
	m, cmd = send(t, m, key(tea.KeyShiftTab))
	m = drain(t, m, cmd)
	assert.Equal(t, 0, m.active)
	assert.Equal(t, "0", m.input.Value())
	assert.Len(t, p.callsFor(directory.KindUsers), 1)
}

func TestTabSwitch_ClosesOutgoingSession(t *testing.T) {
	m := newTestModel(t, newFakeProvider(), Options{Multiple: true})
	m = drain(t, m, m.Init())
	clients := m.current().engine
	require.True(t, clients.IsOpen())

	m, _ = send(t, m, key(tea.KeyCtrlT))
	assert.Equal(t, []string{"c01"}, clients.Provisional())

	m, cmd := send(t, m, key(tea.KeyTab))
	m = drain(t, m, cmd)
	assert.Equal(t, 1, m.active)
	assert.False(t, clients.IsOpen())
	assert.Nil(t, clients.Provisional())
	assert.Empty(t, clients.Value())
	assert.True(t, m.current().engine.IsOpen())

	// Coming back starts a fresh session.
	m, cmd = send(t, m, key(tea.KeyShiftTab))
	m = drain(t, m, cmd)
	assert.True(t, clients.IsOpen())
	assert.False(t, m.tabs[1].engine.IsOpen())
	assert.Empty(t, clients.Provisional())
}

func TestPresetValue_ResolvedByID(t *testing.T) {
	p := newFakeProvider()
	m := newTestModel(t, p, Options{Value: []string{"c11"}})

	// c11 is on page 3, so only the by-id lookup can label it.
	assert.Equal(t, "Client 11", m.current().engine.DisplayValue())
	assert.Equal(t, "c11", m.tabs[1].engine.DisplayValue(), "not a user id")
	assert.Equal(t, []string{"clients/c11", "users/c11"}, p.gets)

	m = drain(t, m, m.Init())
	assert.NotContains(t, labels(m), "Client 11")
	assert.Contains(t, m.View(), "Client 11")
}

func TestPresetValue_NoValueNoLookup(t *testing.T) {
	p := newFakeProvider()
	newTestModel(t, p, Options{})
	assert.Empty(t, p.gets)
}

func TestStatusFilterCycle(t *testing.T) {
	p := newFakeProvider()
	m := newTestModel(t, p, Options{PageSize: 20})
	m = drain(t, m, m.Init())
	assert.Equal(t, 12, m.current().engine.Len())

	m, cmd := send(t, m, key(tea.KeyCtrlF))
	m = drain(t, m, cmd)
	assert.Equal(t, 10, m.current().engine.Len())

	m, cmd = send(t, m, key(tea.KeyCtrlF))
	m = drain(t, m, cmd)
	assert.Equal(t, []string{"Client 05 (suspended)", "Client 10 (suspended)"}, labels(m))
	assert.Contains(t, m.View(), "status:suspended")

	calls := p.callsFor(directory.KindClients)
	assert.Equal(t, directory.StatusSuspended, calls[len(calls)-1].q.Extra[directory.FilterStatus])
}

func TestTabFilters_SentWithQuery(t *testing.T) {
	p := newFakeProvider()
	m := newTestModel(t, p, Options{
		PageSize: 20,
		Tabs: []config.TabDef{
			{ID: "suspended", Label: "Suspended", Kind: "clients", Filters: map[string]string{"status": "suspended"}},
		},
	})
	m = drain(t, m, m.Init())
	assert.Len(t, labels(m), 2)
}

func TestFetchError_Shown(t *testing.T) {
	p := newFakeProvider()
	p.err = errors.New("boom")
	m := newTestModel(t, p, Options{})
	m = drain(t, m, m.Init())

	assert.Equal(t, selection.StatusFailed, m.current().engine.Status())
	assert.Contains(t, m.View(), "Could not load results: boom")
}

func TestMinSearchLength(t *testing.T) {
	p := newFakeProvider()
	m := newTestModel(t, p, Options{MinSearchLength: 2})
	m = drain(t, m, m.Init())

	assert.Empty(t, p.callsFor(directory.KindClients))
	assert.Contains(t, m.View(), "Type 2 more characters to search")

	m, cmd := send(t, m, keyRunes("1"))
	m = drain(t, m, cmd)
	assert.Contains(t, m.View(), "Type 1 more characters to search")
	assert.Empty(t, p.callsFor(directory.KindClients))

	m, cmd = send(t, m, keyRunes("1"))
	m = drain(t, m, cmd)
	assert.Equal(t, []string{"Client 11"}, labels(m))
}

func TestView(t *testing.T) {
	m := newTestModel(t, newFakeProvider(), Options{})
	assert.Contains(t, m.View(), "Loading...")

	m = drain(t, m, m.Init())
	v := m.View()
	assert.Contains(t, v, "Clients")
	assert.Contains(t, v, "Users")
	assert.Contains(t, v, "> Client 01")
	assert.Contains(t, v, "Select clients...")
	assert.Contains(t, v, "5+")
}

func TestWindowSize(t *testing.T) {
	m := newTestModel(t, newFakeProvider(), Options{})
	m, _ = send(t, m, tea.WindowSizeMsg{Width: 40, Height: 6})
	assert.Equal(t, 3, m.listHeight())

	m = drain(t, m, m.Init())
	rows := strings.Count(m.viewList(), "\n") + 1
	assert.Equal(t, 3, rows)
}
