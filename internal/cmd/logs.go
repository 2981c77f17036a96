package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	logsFollow bool
	logsLines  int
)

var logsCmd = &cobra.Command{
	Use:     "logs",
	Short:   "View server logs",
	GroupID: groupServe,
	Long: `View the fleetdash server log file.

By default, shows the last 50 lines of the log file.
Use --follow to continuously monitor new log entries.

Examples:
  fleetdash logs              # Show last 50 lines
  fleetdash logs -f           # Follow log output
  fleetdash logs --lines=100  # Show last 100 lines`,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 50, "Number of lines to show")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logFile := cfg.Server.LogFile
	out := cmd.OutOrStdout()

	if logFile == "-" {
		fmt.Fprintln(out, "The server logs to stderr (server.log_file is \"-\").")
		return nil
	}
	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "No log file found at: %s\n", logFile)
		fmt.Fprintln(out, "The server may not have been started yet.")
		return nil
	}

	if logsFollow {
		return followLogs(cmd.Context(), out, logFile)
	}

	return tailLogs(out, logFile, logsLines)
}

func tailLogs(out io.Writer, filename string, n int) error {
	if n <= 0 {
		return nil
	}

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	if stat.Size() == 0 {
		fmt.Fprintln(out, "Log file is empty.")
		return nil
	}

	lines, err := collectTailLines(f, stat.Size(), n)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	return nil
}

// collectTailLines reads f backwards from size until it has the last n lines.
func collectTailLines(f io.ReaderAt, size int64, n int) ([]string, error) {
	const bufSize = 4096

	lines := make([]string, 0, n)
	offset := size
	remainder := "" // partial line carried between chunks

	for len(lines) < n && offset > 0 {
		chunkLines, rest, err := readChunkLines(f, &offset, bufSize, remainder)
		if err != nil {
			return nil, err
		}
		remainder = rest

		for i := len(chunkLines) - 1; i >= 0 && len(lines) < n; i-- {
			if chunkLines[i] != "" || len(lines) > 0 {
				lines = append([]string{chunkLines[i]}, lines...)
			}
		}
	}

	if remainder != "" && len(lines) < n {
		lines = append([]string{remainder}, lines...)
	}
	return lines, nil
}

// readChunkLines reads the chunk ending at *offset, moves *offset back and
// splits the chunk into lines. The first line is returned separately as the
// new remainder when the chunk does not start at the beginning of the file.
func readChunkLines(f io.ReaderAt, offset *int64, bufSize int64, remainder string) ([]string, string, error) {
	readSize := min(bufSize, *offset)
	*offset -= readSize

	buf := make([]byte, readSize)
	n, err := f.ReadAt(buf, *offset)
	if err != nil && err != io.EOF {
		return nil, "", fmt.Errorf("failed to read log file: %w", err)
	}

	chunkLines := splitLines(string(buf[:n]) + remainder)
	if *offset > 0 && len(chunkLines) > 0 {
		return chunkLines[1:], chunkLines[0], nil
	}
	return chunkLines, "", nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func followLogs(ctx context.Context, out io.Writer, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(out, "Following %s (Ctrl+C to stop)...\n\n", filename)

	reader := bufio.NewReader(f)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				if line != "" {
					fmt.Fprint(out, line)
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(100 * time.Millisecond):
				}
				continue
			}
			return fmt.Errorf("error reading log: %w", err)
		}

		fmt.Fprint(out, line)
	}
}
