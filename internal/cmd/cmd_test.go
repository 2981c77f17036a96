package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/runger/fleetdash/internal/config"
	"github.com/runger/fleetdash/internal/directory"
	"github.com/runger/fleetdash/internal/rpc"
	"github.com/runger/fleetdash/internal/storage"
)

func TestVersionCmd(t *testing.T) {
	withTempHome(t)
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "fleetdash dev") {
		t.Errorf("unexpected version output: %q", out)
	}
}

func TestConfigCmd_SetGetList(t *testing.T) {
	withTempHome(t)

	out, err := runCommand(t, "config", "picker.page_size", "50")
	if err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if !strings.Contains(out, "picker.page_size = 50") || !strings.Contains(out, "Saved to:") {
		t.Errorf("unexpected set output: %q", out)
	}

	out, err = runCommand(t, "config", "picker.page_size")
	if err != nil {
		t.Fatalf("config get failed: %v", err)
	}
	if strings.TrimSpace(out) != "50" {
		t.Errorf("config get = %q, want 50", out)
	}

	out, err = runCommand(t, "config")
	if err != nil {
		t.Fatalf("config list failed: %v", err)
	}
	for _, want := range []string{"picker.transport = rpc", "storage.database = (not set)", "clients  Clients (clients)"} {
		if !strings.Contains(out, want) {
			t.Errorf("config list missing %q:\n%s", want, out)
		}
	}
}

func TestConfigCmd_InvalidValue(t *testing.T) {
	withTempHome(t)

	if _, err := runCommand(t, "config", "picker.transport", "pigeon"); err == nil {
		t.Error("expected error for invalid transport")
	}
	if _, err := runCommand(t, "config", "nope.key"); err == nil {
		t.Error("expected error for unknown section")
	}
}

func TestConfigCmd_CustomFile(t *testing.T) {
	home := withTempHome(t)
	path := filepath.Join(home, "custom.yaml")

	if _, err := runCommand(t, "--config", path, "config", "server.log_level", "warn"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Server.LogLevel != "warn" {
		t.Errorf("log_level = %s, want warn", cfg.Server.LogLevel)
	}
	if _, err := os.Stat(config.DefaultPaths().ConfigFile()); !os.IsNotExist(err) {
		t.Errorf("default config file should not be written, stat err = %v", err)
	}
}

func TestSeedAndList(t *testing.T) {
	withTempHome(t)

	out, err := runCommand(t, "seed", "--count", "3", "--seed", "9")
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if !strings.Contains(out, "Seeded") {
		t.Errorf("unexpected seed output: %q", out)
	}

	out, err = runCommand(t, "list", "access-levels")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "Administrator · Full access") {
		t.Errorf("list missing Administrator:\n%s", out)
	}
	if !strings.Contains(out, "page 1 of 1 · 6 records") {
		t.Errorf("list missing pagination footer:\n%s", out)
	}

	// Seeding again with the same seed updates in place.
	if _, err := runCommand(t, "seed", "--count", "3", "--seed", "9"); err != nil {
		t.Fatalf("second seed failed: %v", err)
	}

	out, err = runCommand(t, "list", "clients", "--json")
	if err != nil {
		t.Fatalf("list --json failed: %v", err)
	}
	var env directory.Envelope
	if err := json.Unmarshal([]byte(out), &env); err != nil {
		t.Fatalf("list --json output is not an envelope: %v\n%s", err, out)
	}
	if env.Data.Pagination.Total != 3 {
		t.Errorf("clients total = %d, want 3", env.Data.Pagination.Total)
	}
}

func TestListCmd_UnknownKind(t *testing.T) {
	withTempHome(t)
	_, err := runCommand(t, "list", "trucks")
	if err == nil || !strings.Contains(err.Error(), "unknown kind") {
		t.Errorf("expected unknown kind error, got %v", err)
	}
}

func TestPrintRecords(t *testing.T) {
	env := directory.Envelope{Data: directory.EnvelopeData{
		Items: []directory.Record{
			{ID: "c1", Name: "Acme Logistics", Description: "Account 10000", Status: directory.StatusActive},
			{ID: "c22", Name: "Brightway Haulage and Fleet Services International", Status: directory.StatusSuspended},
		},
		Pagination: directory.Pagination{CurrentPage: 1, LastPage: 4, PerPage: 2, Total: 8},
	}}

	var buf bytes.Buffer
	printRecords(&buf, env, 40)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "c1   active") {
		t.Errorf("ids should be padded to the widest id: %q", lines[0])
	}
	if !strings.Contains(lines[1], "suspended") || !strings.HasSuffix(lines[1], "…") {
		t.Errorf("long label should be truncated: %q", lines[1])
	}
	if lines[3] != "page 1 of 4 · 8 records" {
		t.Errorf("unexpected footer: %q", lines[3])
	}

	buf.Reset()
	printRecords(&buf, directory.Envelope{}, 40)
	if strings.TrimSpace(buf.String()) != "No records." {
		t.Errorf("unexpected empty output: %q", buf.String())
	}
}

func TestNewLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "server.log")
	logger, closeLog, err := newLogger(config.ServerConfig{LogLevel: "warn", LogFile: logFile}, nil)
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "kind", "clients")
	closeLog()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(string(data), "msg=shown kind=clients") {
		t.Errorf("unexpected log content: %q", data)
	}
}

func TestNewLogger_Stderr(t *testing.T) {
	var buf bytes.Buffer
	logger, closeLog, err := newLogger(config.ServerConfig{LogLevel: "debug", LogFile: "-"}, &buf)
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	defer closeLog()
	logger.Debug("to stderr")
	if !strings.Contains(buf.String(), "msg=\"to stderr\"") {
		t.Errorf("unexpected output: %q", buf.String())
	}

	if _, _, err := newLogger(config.ServerConfig{LogLevel: "loud"}, &buf); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestRunServe(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "directory.db")
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := directory.Seed(context.Background(), directory.NewService(store), 4, 1); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store.Close()

	cfg := config.DefaultConfig()
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Server.SocketPath = fmt.Sprintf("/tmp/fleetdash-cmd-test-%d.sock", os.Getpid())
	cfg.Storage.Database = dbPath

	logger, _, err := newLogger(config.ServerConfig{LogLevel: "info", LogFile: "-"}, io.Discard)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg, logger) }()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := os.Stat(cfg.Server.SocketPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("socket never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}

	client, err := rpc.Dial(cfg.Server.SocketPath)
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}
	env, err := client.ListPage(context.Background(), directory.KindClients, directory.ListParams{Page: 1})
	client.Close()
	if err != nil {
		cancel()
		t.Fatalf("ListPage: %v", err)
	}
	if env.Data.Pagination.Total != 4 {
		t.Errorf("clients total = %d, want 4", env.Data.Pagination.Total)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runServe returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runServe did not stop")
	}
	if _, err := os.Stat(cfg.Server.SocketPath); !os.IsNotExist(err) {
		t.Errorf("socket should be removed on shutdown, stat err = %v", err)
	}
}

func TestLogsCmd(t *testing.T) {
	withTempHome(t)

	out, err := runCommand(t, "logs")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if !strings.Contains(out, "No log file found") {
		t.Errorf("unexpected output without log file: %q", out)
	}

	logFile := config.DefaultPaths().LogFile()
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(logFile, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err = runCommand(t, "logs", "-n", "2")
	if err != nil {
		t.Fatalf("logs -n 2 failed: %v", err)
	}
	if out != "second\nthird\n" {
		t.Errorf("logs -n 2 = %q", out)
	}
}

func TestCollectTailLines_AcrossChunks(t *testing.T) {
	var sb strings.Builder
	for i := range 1000 {
		fmt.Fprintf(&sb, "line %04d\n", i)
	}
	r := strings.NewReader(sb.String())

	lines, err := collectTailLines(r, int64(sb.Len()), 500)
	if err != nil {
		t.Fatalf("collectTailLines failed: %v", err)
	}
	if len(lines) != 500 {
		t.Fatalf("got %d lines, want 500", len(lines))
	}
	if lines[0] != "line 0500" || lines[499] != "line 0999" {
		t.Errorf("unexpected bounds: %q .. %q", lines[0], lines[499])
	}
	for i, line := range lines {
		if want := fmt.Sprintf("line %04d", 500+i); line != want {
			t.Fatalf("lines[%d] = %q, want %q", i, line, want)
		}
	}
}

func TestCollectTailLines_FewerThanRequested(t *testing.T) {
	content := "only\ntwo"
	lines, err := collectTailLines(strings.NewReader(content), int64(len(content)), 10)
	if err != nil {
		t.Fatalf("collectTailLines failed: %v", err)
	}
	if len(lines) != 2 || lines[0] != "only" || lines[1] != "two" {
		t.Errorf("unexpected lines: %q", lines)
	}
}

func TestReadChunkLines(t *testing.T) {
	r := strings.NewReader("alpha\nbeta\ngamma\n")
	offset := int64(r.Len())

	lines, rest, err := readChunkLines(r, &offset, 8, "")
	if err != nil {
		t.Fatalf("readChunkLines failed: %v", err)
	}
	if offset != 9 {
		t.Errorf("offset = %d, want 9", offset)
	}
	// The chunk "a\ngamma\n" starts mid-line.
	if rest != "a" || len(lines) != 1 || lines[0] != "gamma" {
		t.Errorf("lines = %q, rest = %q", lines, rest)
	}

	lines, rest, err = readChunkLines(r, &offset, 8, rest)
	if err != nil {
		t.Fatalf("readChunkLines failed: %v", err)
	}
	if offset != 1 || rest != "lpha" || len(lines) != 1 || lines[0] != "beta" {
		t.Errorf("offset = %d, lines = %q, rest = %q", offset, lines, rest)
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a\n", []string{"a"}},
		{"a\n\nb", []string{"a", "", "b"}},
	}
	for _, tt := range tests {
		got := splitLines(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("splitLines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTermWidth_Columns(t *testing.T) {
	if getTermWidthIoctl() > 0 {
		t.Skip("stdout is a terminal")
	}
	t.Setenv("COLUMNS", "132")
	if got := termWidth(); got != 132 {
		t.Errorf("termWidth() = %d, want 132", got)
	}
	t.Setenv("COLUMNS", "")
	if got := termWidth(); got != 80 {
		t.Errorf("termWidth() = %d, want 80", got)
	}
}
