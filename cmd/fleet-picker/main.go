package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/shlex"
	"github.com/muesli/termenv"

	"github.com/runger/fleetdash/internal/config"
	"github.com/runger/fleetdash/internal/directory"
	"github.com/runger/fleetdash/internal/picker"
	"github.com/runger/fleetdash/internal/rpc"
	"github.com/runger/fleetdash/internal/selection"
	"github.com/runger/fleetdash/internal/storage"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Exit codes.
// These match the expectations of shell scripts:
//
//	0 = selection made or cleared (use the result)
//	1 = cancelled by user or nothing found
//	2 = error (no TTY, bad flags, unreachable directory)
const (
	exitSuccess   = 0
	exitCancelled = 1
	exitError     = 2
)

// maxQueryLen is the maximum length of a query string in bytes.
const maxQueryLen = 4096

// pickOpts holds the parsed options of the pick subcommand.
type pickOpts struct {
	tabs      string
	limit     int
	query     string
	value     string
	filters   map[string]string
	multiple  bool
	transport string
}

// queryOpts holds the parsed options of the query subcommand.
type queryOpts struct {
	kind      directory.Kind
	limit     int
	pages     int
	query     string
	filters   map[string]string
	transport string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is the main entry point, returning an exit code.
// It is separated from main() to enable testing.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitError
	}

	switch args[0] {
	case "pick":
		return runPick(args[1:], stdout, stderr)
	case "query":
		return runQuery(args[1:], stdout, stderr)
	case "--help", "-h":
		printUsage(stdout)
		return exitSuccess
	case "--version", "-v":
		printVersion(stdout)
		return exitSuccess
	default:
		fmt.Fprintf(stderr, "fleet-picker: unknown command %q\n", args[0])
		printUsage(stderr)
		return exitError
	}
}

func runPick(args []string, stdout, stderr io.Writer) int {
	opts, err := parsePickFlags(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "fleet-picker: %v\n", err)
		return exitError
	}

	if err := checkTTY(); err != nil {
		fmt.Fprintf(stderr, "fleet-picker: %v\n", err)
		return exitError
	}
	if err := checkTERM(); err != nil {
		fmt.Fprintf(stderr, "fleet-picker: %v\n", err)
		return exitError
	}
	if err := checkTermWidth(); err != nil {
		fmt.Fprintf(stderr, "fleet-picker: %v\n", err)
		return exitError
	}

	cfg, paths, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "fleet-picker: %v\n", err)
		return exitError
	}

	if err := os.MkdirAll(paths.RuntimeDir, 0o700); err != nil {
		fmt.Fprintf(stderr, "fleet-picker: failed to create runtime directory: %v\n", err)
		return exitError
	}
	lockFd, err := acquireLock(paths.LockFile())
	if err != nil {
		fmt.Fprintf(stderr, "fleet-picker: %v\n", err)
		return exitError
	}
	defer releaseLock(lockFd)

	if opts.limit == 0 {
		opts.limit = cfg.Picker.PageSize
	}
	if opts.transport == "" {
		opts.transport = cfg.Picker.Transport
	}

	provider, closeProvider, err := newProvider(cfg, opts.transport)
	if err != nil {
		fmt.Fprintf(stderr, "fleet-picker: %v\n", err)
		return exitError
	}
	defer closeProvider()

	return dispatchTUI(cfg, opts, provider, stdout, stderr)
}

// parsePickFlags parses flags for the "pick" subcommand.
func parsePickFlags(args []string, stderr io.Writer) (*pickOpts, error) {
	fs := flag.NewFlagSet("pick", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &pickOpts{}
	var filter string
	fs.StringVar(&opts.tabs, "tabs", "", "comma-separated tab IDs")
	fs.IntVar(&opts.limit, "limit", 0, "records per page (positive integer)")
	fs.StringVar(&opts.query, "query", "", "initial search query (max 4096 bytes)")
	fs.StringVar(&opts.value, "value", "", "comma-separated ids that start selected")
	fs.StringVar(&filter, "filter", "", "extra filters, e.g. 'status=active owner=c0001'")
	fs.BoolVar(&opts.multiple, "multiple", false, "select many records")
	fs.StringVar(&opts.transport, "transport", "", "http, rpc or local (default from config)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: fleet-picker pick [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	if opts.limit < 0 {
		return nil, fmt.Errorf("--limit must be a positive integer")
	}
	if opts.transport != "" && !validTransport(opts.transport) {
		return nil, fmt.Errorf("--transport must be http, rpc or local (got %q)", opts.transport)
	}

	var err error
	if opts.query, err = sanitizeQuery(opts.query); err != nil {
		return nil, fmt.Errorf("--query: %w", err)
	}
	if opts.filters, err = parseFilters(filter); err != nil {
		return nil, fmt.Errorf("--filter: %w", err)
	}
	return opts, nil
}

// parseQueryFlags parses flags for the "query" subcommand.
func parseQueryFlags(args []string, stderr io.Writer) (*queryOpts, error) {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &queryOpts{}
	var kind, filter string
	fs.StringVar(&kind, "kind", "", "record kind: clients, users, vehicles or access-levels")
	fs.IntVar(&opts.limit, "limit", 0, "records per page (positive integer)")
	fs.IntVar(&opts.pages, "pages", 1, "number of pages to load")
	fs.StringVar(&opts.query, "query", "", "search query (max 4096 bytes)")
	fs.StringVar(&filter, "filter", "", "extra filters, e.g. 'status=active owner=c0001'")
	fs.StringVar(&opts.transport, "transport", "", "http, rpc or local (default from config)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: fleet-picker query --kind <kind> [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	var err error
	if opts.kind, err = directory.ParseKind(kind); err != nil {
		return nil, fmt.Errorf("--kind: %w", err)
	}
	if opts.limit < 0 {
		return nil, fmt.Errorf("--limit must be a positive integer")
	}
	if opts.pages < 1 {
		return nil, fmt.Errorf("--pages must be at least 1")
	}
	if opts.transport != "" && !validTransport(opts.transport) {
		return nil, fmt.Errorf("--transport must be http, rpc or local (got %q)", opts.transport)
	}
	if opts.query, err = sanitizeQuery(opts.query); err != nil {
		return nil, fmt.Errorf("--query: %w", err)
	}
	if opts.filters, err = parseFilters(filter); err != nil {
		return nil, fmt.Errorf("--filter: %w", err)
	}
	return opts, nil
}

// sanitizeQuery strips control characters and validates the query string.
func sanitizeQuery(q string) (string, error) {
	if q == "" {
		return "", nil
	}

	// Reject newlines before stripping.
	if strings.ContainsAny(q, "\n\r") {
		return "", fmt.Errorf("query must not contain newlines")
	}

	// Strip control characters (0x00-0x1F) except tab (0x09).
	var b strings.Builder
	b.Grow(len(q))
	for _, r := range q {
		if r <= 0x1F && r != 0x09 {
			continue
		}
		b.WriteRune(r)
	}
	result := b.String()

	if len(result) > maxQueryLen {
		result = result[:maxQueryLen]
	}
	return result, nil
}

// parseFilters splits shell-style key=value words into a filter map.
func parseFilters(s string) (map[string]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	words, err := shlex.Split(s)
	if err != nil {
		return nil, err
	}
	filters := make(map[string]string, len(words))
	for _, w := range words {
		k, v, ok := strings.Cut(w, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", w)
		}
		filters[k] = v
	}
	return filters, nil
}

func validTransport(t string) bool {
	switch t {
	case config.TransportHTTP, config.TransportRPC, config.TransportLocal:
		return true
	}
	return false
}

func loadConfig() (*config.Config, *config.Paths, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	paths := config.DefaultPaths()
	paths.Resolve(cfg)
	return cfg, paths, nil
}

// newProvider connects to the directory over the chosen transport.
func newProvider(cfg *config.Config, transport string) (picker.Provider, func(), error) {
	switch transport {
	case config.TransportHTTP:
		debugLog("using HTTP API at %s", cfg.Picker.APIURL)
		return picker.HTTPProvider{
			BaseURL: cfg.Picker.APIURL,
			Options: []directory.HTTPOption{
				directory.WithRetry(3, 100*time.Millisecond),
				directory.WithLogger(debugLogger()),
			},
		}, func() {}, nil
	case config.TransportLocal:
		debugLog("opening database %s", cfg.Storage.Database)
		store, err := storage.NewSQLiteStore(cfg.Storage.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		return directory.NewService(store), func() { store.Close() }, nil
	default:
		debugLog("dialing %s", cfg.Server.SocketPath)
		client, err := rpc.Dial(cfg.Server.SocketPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to %s: %w", cfg.Server.SocketPath, err)
		}
		return client, func() { client.Close() }, nil
	}
}

// resolveTabs picks the configured tabs named in ids, in config order, and
// adds the extra filters to each. Unknown ids fall back to all tabs.
func resolveTabs(cfg *config.Config, ids string, filters map[string]string) []config.TabDef {
	src := cfg.Picker.Tabs
	if ids != "" {
		want := make(map[string]bool)
		for _, id := range strings.Split(ids, ",") {
			want[strings.TrimSpace(id)] = true
		}
		var matched []config.TabDef
		for _, t := range cfg.Picker.Tabs {
			if want[t.ID] {
				matched = append(matched, t)
			}
		}
		if len(matched) > 0 {
			src = matched
		}
	}

	tabs := make([]config.TabDef, len(src))
	for i, t := range src {
		tabs[i] = t
		if len(filters) == 0 {
			continue
		}
		tabs[i].Filters = make(map[string]string, len(t.Filters)+len(filters))
		for k, v := range t.Filters {
			tabs[i].Filters[k] = v
		}
		for k, v := range filters {
			tabs[i].Filters[k] = v
		}
	}
	return tabs
}

func splitValues(s string) []string {
	var values []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// dispatchTUI runs the Bubble Tea picker on /dev/tty.
func dispatchTUI(cfg *config.Config, opts *pickOpts, provider picker.Provider, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model, err := picker.NewModel(ctx, picker.Options{
		Tabs:            resolveTabs(cfg, opts.tabs, opts.filters),
		Provider:        provider,
		PageSize:        opts.limit,
		Debounce:        time.Duration(cfg.Picker.DebounceMs) * time.Millisecond,
		MinSearchLength: cfg.Picker.MinSearchLength,
		CallOnOpen:      cfg.Picker.CallOnOpen,
		Multiple:        opts.multiple || cfg.Picker.Multiple,
		Clearable:       cfg.Picker.Clearable,
		Value:           splitValues(opts.value),
		Query:           opts.query,
	})
	if err != nil {
		fmt.Fprintf(stderr, "fleet-picker: %v\n", err)
		return exitError
	}

	// Open /dev/tty for TUI input/output since stdin/stdout are used for data.
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(stderr, "fleet-picker: cannot open /dev/tty: %v\n", err)
		return exitError
	}
	defer tty.Close()

	// When invoked via $(fleet-picker ...), stdout is a pipe so lipgloss
	// defaults to Ascii. Detect the profile from the real tty instead.
	lipgloss.SetColorProfile(termenv.NewOutput(tty).ColorProfile())

	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithInput(tty),
		tea.WithOutput(tty),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintf(stderr, "fleet-picker: TUI error: %v\n", err)
		return exitError
	}

	m, ok := finalModel.(picker.Model)
	if !ok {
		fmt.Fprintln(stderr, "fleet-picker: unexpected model type")
		return exitError
	}

	sel, ok := m.Result()
	if !ok {
		return exitCancelled
	}
	printChoices(stdout, sel.Choices)
	return exitSuccess
}

// printChoices writes one "id<TAB>label" line per choice.
func printChoices(w io.Writer, choices []picker.Choice) {
	for _, c := range choices {
		fmt.Fprintf(w, "%s\t%s\n", c.Value, c.Label)
	}
}

func runQuery(args []string, stdout, stderr io.Writer) int {
	opts, err := parseQueryFlags(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "fleet-picker: %v\n", err)
		return exitError
	}

	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "fleet-picker: %v\n", err)
		return exitError
	}
	if opts.limit == 0 {
		opts.limit = cfg.Picker.PageSize
	}
	if opts.transport == "" {
		opts.transport = cfg.Picker.Transport
	}

	provider, closeProvider, err := newProvider(cfg, opts.transport)
	if err != nil {
		fmt.Fprintf(stderr, "fleet-picker: %v\n", err)
		return exitError
	}
	defer closeProvider()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	choices, msg, err := query(ctx, provider, cfg.Picker.MinSearchLength, opts)
	if err != nil {
		fmt.Fprintf(stderr, "fleet-picker: %v\n", err)
		return exitError
	}
	if len(choices) == 0 {
		fmt.Fprintln(stderr, msg)
		return exitCancelled
	}
	printChoices(stdout, choices)
	return exitSuccess
}

// query runs one search through a selection controller and loads up to
// opts.pages pages. msg is the engine's status message when nothing was
// found.
func query(ctx context.Context, provider picker.Provider, minLen int, opts *queryOpts) ([]picker.Choice, string, error) {
	var fetchErr error
	c, err := selection.NewController(ctx, selection.Config[directory.Record]{
		Fetch:           provider.Fetcher(opts.kind, opts.limit),
		Format:          directory.Format,
		Extra:           opts.filters,
		MinSearchLength: minLen,
		CallOnOpen:      true,
		ImmediateSearch: true,
		OnError:         func(err error) { fetchErr = err },
	})
	if err != nil {
		return nil, "", err
	}
	defer c.Shutdown()

	c.Submit(opts.query)
	c.Wait()
	if snap := c.Snapshot(); snap.Status != selection.StatusFailed {
		// Scrolling needs an open session; the first page is already loaded
		// so opening does not refetch.
		c.Open()
		for page := 1; page < opts.pages && c.Snapshot().HasMore; page++ {
			c.ScrollNearBottom()
			c.Wait()
		}
	}

	snap := c.Snapshot()
	if snap.Status == selection.StatusFailed {
		if fetchErr == nil {
			fetchErr = snap.Err
		}
		return nil, "", fetchErr
	}

	choices := make([]picker.Choice, 0, len(snap.Items))
	for _, opt := range snap.Items {
		choices = append(choices, picker.Choice{Value: opt.Value, Label: picker.SanitizeLabel(opt.Label)})
	}
	return choices, snap.Message, nil
}

// debugLog logs a message to stderr when FLEETDASH_DEBUG=1.
func debugLog(format string, args ...any) {
	if os.Getenv("FLEETDASH_DEBUG") == "1" {
		fmt.Fprintf(os.Stderr, "fleet-picker: debug: "+format+"\n", args...)
	}
}

// debugLogger returns a logger that only writes when FLEETDASH_DEBUG=1.
func debugLogger() *slog.Logger {
	if os.Getenv("FLEETDASH_DEBUG") != "1" {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// printUsage prints the top-level usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: fleet-picker <command> [flags]

Commands:
  pick       Pick records interactively (needs a terminal)
  query      Print the records matching a search, one per line

Flags:
  --help     Show this help message
  --version  Print version information`)
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "fleet-picker %s\n", Version)
	fmt.Fprintf(w, "  commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  built:  %s\n", BuildDate)
}
