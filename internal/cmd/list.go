package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/runger/fleetdash/internal/directory"
	"github.com/runger/fleetdash/internal/storage"
)

var (
	listSearch  string
	listPage    int
	listPerPage int
	listStatus  string
	listOwner   string
	listJSON    bool
	listDB      string
)

var listCmd = &cobra.Command{
	Use:       "list <kind>",
	Short:     "Print one page of a record kind",
	GroupID:   groupData,
	ValidArgs: kindNames(),
	Long: `Print one page of records, the same page the HTTP API would return.

Kinds: clients, users, vehicles, access-levels

Examples:
  fleetdash list clients --search acme
  fleetdash list vehicles --owner <client-id> --page 2
  fleetdash list users --json`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "Search text")
	listCmd.Flags().IntVarP(&listPage, "page", "p", 1, "Page number")
	listCmd.Flags().IntVar(&listPerPage, "per-page", storage.DefaultPerPage, "Records per page")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Only records with this status")
	listCmd.Flags().StringVar(&listOwner, "owner", "", "Only records owned by this client id")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print the API envelope as JSON")
	listCmd.Flags().StringVar(&listDB, "db", "", "Database path (overrides storage.database)")
}

func kindNames() []string {
	names := make([]string, len(directory.Kinds))
	for i, k := range directory.Kinds {
		names[i] = string(k)
	}
	return names
}

func runList(cmd *cobra.Command, args []string) error {
	kind, err := directory.ParseKind(args[0])
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if listDB != "" {
		cfg.Storage.Database = listDB
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	env, err := directory.NewService(store).List(cmd.Context(), kind, directory.ListParams{
		Search:  listSearch,
		Page:    listPage,
		PerPage: listPerPage,
		Status:  listStatus,
		Owner:   listOwner,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if listJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}
	printRecords(out, env, termWidth())
	return nil
}

// printRecords prints one record per line: id, status and label, the label
// cut to fit width.
func printRecords(out io.Writer, env directory.Envelope, width int) {
	if len(env.Data.Items) == 0 {
		fmt.Fprintf(out, "%sNo records.%s\n", colorDim, colorReset)
		return
	}

	idWidth := 0
	for _, r := range env.Data.Items {
		idWidth = max(idWidth, runewidth.StringWidth(r.ID))
	}

	const statusWidth = 10
	labelWidth := max(width-idWidth-statusWidth-4, 10)
	for _, r := range env.Data.Items {
		status := r.Status
		switch status {
		case directory.StatusSuspended:
			status = colorYellow + runewidth.FillRight(status, statusWidth) + colorReset
		case directory.StatusArchived:
			status = colorRed + runewidth.FillRight(status, statusWidth) + colorReset
		default:
			status = runewidth.FillRight(status, statusWidth)
		}

		label := r.Name
		if r.Description != "" {
			label += " · " + r.Description
		}
		label = runewidth.Truncate(strings.ReplaceAll(label, "\n", " "), labelWidth, "…")

		fmt.Fprintf(out, "%s%s%s  %s  %s\n", colorDim, runewidth.FillRight(r.ID, idWidth), colorReset, status, label)
	}

	p := env.Data.Pagination
	fmt.Fprintf(out, "\n%spage %d of %d · %d records%s\n", colorDim, p.CurrentPage, p.LastPage, p.Total, colorReset)
}
