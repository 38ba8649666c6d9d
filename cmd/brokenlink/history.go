package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/brokenlink/internal/crawler"
	"github.com/nao1215/brokenlink/internal/database"
	"github.com/nao1215/brokenlink/internal/report"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit is the number of scans listed when --limit is not given.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [scan-id]",
		Short: "List archived scans or show one of them",
		Long: `History reads the scan archive written by "brokenlink scan" and
"brokenlink serve".

Without arguments it lists archived scans, newest first. With a scan ID it
prints that scan's report, as a console summary or in a report format.

Examples:
  # List the latest scans
  brokenlink history

  # List the scans of one site
  brokenlink history --url https://example.com

  # List every site in the archive
  brokenlink history --sites

  # Print an archived scan as CSV
  brokenlink history --csv 3f0c8a0e-5d0b-4c8e-9a55-1f3f8d2c9b7a`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP("url", "u", "",
		"Only list scans of this start URL")
	cmd.Flags().IntP("limit", "l", defaultHistoryLimit,
		"Maximum number of scans listed (0 lists all)")
	cmd.Flags().BoolP("sites", "s", false,
		"List the start URLs present in the archive")

	cmd.Flags().Bool("json", false, "Print the scan as a JSON report")
	cmd.Flags().Bool("csv", false, "Print the scan as a CSV report")
	cmd.Flags().Bool("markdown", false, "Print the scan as a Markdown report")
	cmd.MarkFlagsMutuallyExclusive("json", "csv", "markdown")

	addDBDirFlag(cmd)

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		format, err := selectedFormat(cmd)
		if err != nil {
			return err
		}
		return showScan(ctx, db, args[0], format, out)
	}

	sites, err := cmd.Flags().GetBool("sites")
	if err != nil {
		return err
	}
	if sites {
		return listSites(ctx, db, out)
	}

	startURL, err := cmd.Flags().GetString("url")
	if err != nil {
		return err
	}
	if startURL != "" {
		startURL, err = crawler.Normalize(startURL, "")
		if err != nil {
			return fmt.Errorf("invalid start URL: %w", err)
		}
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	return listScans(ctx, db, startURL, limit, out)
}

// selectedFormat returns the report format chosen by the format flags, or
// "text" when none is set.
func selectedFormat(cmd *cobra.Command) (string, error) {
	for _, format := range reportFormats {
		set, err := cmd.Flags().GetBool(format)
		if err != nil {
			return "", err
		}
		if set {
			return format, nil
		}
	}
	return "text", nil
}

// showScan prints one archived scan in format.
func showScan(ctx context.Context, db *database.ScanDB, id, format string, out io.Writer) error {
	result, err := db.GetScan(ctx, id)
	if err != nil {
		return err
	}

	if _, err := report.NewWriter(format, out).Write(result); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// listScans prints a table of archived scans, newest first.
func listScans(ctx context.Context, db *database.ScanDB, startURL string, limit int, out io.Writer) error {
	scans, err := db.ListScans(ctx, startURL, limit)
	if err != nil {
		return err
	}

	if len(scans) == 0 {
		fmt.Fprintln(out, "No scans found in the archive.")
		fmt.Fprintln(out, "\nUse 'brokenlink scan <url>' to scan a website.")
		return nil
	}

	tbl := table.New("ID", "Start URL", "Started", "Checked", "Working", "Broken", "Errors", "").WithWriter(out)
	for _, meta := range scans {
		note := ""
		if meta.Cancelled {
			note = "interrupted"
		}
		st := meta.Statistics
		tbl.AddRow(
			meta.ID,
			meta.StartURL,
			meta.StartTime.Local().Format("2006-01-02 15:04:05"),
			strconv.Itoa(st.TotalProcessed),
			strconv.Itoa(st.WorkingCount),
			strconv.Itoa(st.BrokenCount),
			strconv.Itoa(st.ErrorCount),
			note,
		)
	}
	tbl.Print()

	fmt.Fprintln(out, "\nUse 'brokenlink history <id>' to show a scan.")
	return nil
}

// listSites prints the start URLs present in the archive.
func listSites(ctx context.Context, db *database.ScanDB, out io.Writer) error {
	sites, err := db.ListScannedSites(ctx)
	if err != nil {
		return err
	}

	if len(sites) == 0 {
		fmt.Fprintln(out, "No scanned sites found in the archive.")
		return nil
	}

	fmt.Fprintf(out, "Scanned sites (%d):\n\n", len(sites))
	for _, site := range sites {
		fmt.Fprintf(out, "  • %s\n", site)
	}
	fmt.Fprintln(out, "\nUse 'brokenlink history --url <url>' to see the scans of a site.")
	return nil
}
