package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/nao1215/brokenlink/internal/crawler"
	"github.com/nao1215/brokenlink/internal/database"
	"github.com/nao1215/brokenlink/internal/model"
	"github.com/nao1215/brokenlink/internal/report"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
)

// errNotEnoughScans is returned when a site has fewer than two archived scans.
var errNotEnoughScans = errors.New("at least two archived scans are needed for a comparison")

// NewCompareCmd creates the compare command.
// This command compares scan results with historical data stored in the archive.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [url]",
		Short: "Compare the latest scan of a site with an earlier one",
		Long: `Compare shows how the broken and error links of a site changed between
two archived scans:
- New problems that appeared since the earlier scan
- Resolved problems that are no longer present
- Problems that persist in both scans

By default the two most recent scans of the start URL are compared. Use
'brokenlink history --url <url>' to see the available scans.

Examples:
  # Compare the latest two scans of a site
  brokenlink compare https://example.com

  # Compare the latest scan with a specific earlier scan
  brokenlink compare --with 3f0c8a0e-5d0b-4c8e-9a55-1f3f8d2c9b7a https://example.com

  # Output the comparison as JSON
  brokenlink compare --json https://example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runCompareCmd,
	}

	cmd.Flags().StringP("with", "w", "",
		"Compare with the archived scan with this ID instead of the previous one")
	cmd.Flags().BoolP("json", "j", false,
		"Output the comparison in JSON format")
	addDBDirFlag(cmd)

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	// Validate arguments before opening the database.
	startURL, err := crawler.Normalize(args[0], "")
	if err != nil {
		return fmt.Errorf("invalid start URL: %w", err)
	}

	withID, err := cmd.Flags().GetString("with")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	previous, current, err := loadComparedScans(cmd.Context(), db, startURL, withID)
	if err != nil {
		return err
	}

	comparison := report.Compare(previous, current)
	out := cmd.OutOrStdout()
	if jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(comparison)
	}
	printComparison(out, startURL, comparison)
	return nil
}

// loadComparedScans returns the earlier and the latest archived scan of startURL.
func loadComparedScans(ctx context.Context, db *database.ScanDB, startURL, withID string) (*model.ScanResult, *model.ScanResult, error) {
	scans, err := db.ListScans(ctx, startURL, 2)
	if err != nil {
		return nil, nil, err
	}
	if len(scans) == 0 {
		return nil, nil, fmt.Errorf("no archived scans for %s", startURL)
	}

	current, err := db.GetScan(ctx, scans[0].ID)
	if err != nil {
		return nil, nil, err
	}

	previousID := withID
	if previousID == "" {
		if len(scans) < 2 {
			return nil, nil, fmt.Errorf("%w: %s has one", errNotEnoughScans, startURL)
		}
		previousID = scans[1].ID
	}
	if previousID == scans[0].ID {
		return nil, nil, fmt.Errorf("scan %s is the latest scan; choose an earlier one", previousID)
	}

	previous, err := db.GetScan(ctx, previousID)
	if err != nil {
		return nil, nil, err
	}
	return previous, current, nil
}

// printComparison writes a human-readable comparison.
func printComparison(out io.Writer, startURL string, c *report.Comparison) {
	fmt.Fprintf(out, "Comparison for %s\n", startURL)
	fmt.Fprintf(out, "  previous scan: %s\n", c.PreviousStart)
	fmt.Fprintf(out, "  current scan:  %s\n\n", c.CurrentStart)

	direction := c.Direction()
	switch direction {
	case "worsened":
		direction = color.RedString(direction)
	case "improved":
		direction = color.GreenString(direction)
	}
	fmt.Fprintf(out, "Overall: %s (broken %s, errors %s)\n",
		direction, signed(c.BrokenDelta), signed(c.ErrorDelta))

	printRecords(out, "New problems", c.NewProblems)
	printRecords(out, "Resolved", c.Resolved)
	printRecords(out, "Still failing", c.Persisting)

	if len(c.NewProblems)+len(c.Resolved)+len(c.Persisting) == 0 {
		fmt.Fprintln(out, "\nNo broken links in either scan.")
	}
}

func printRecords(out io.Writer, title string, records []model.LinkRecord) {
	if len(records) == 0 {
		return
	}

	fmt.Fprintf(out, "\n%s (%d):\n", title, len(records))
	tbl := table.New("URL", "Status", "Detail").WithWriter(out)
	for _, rec := range records {
		code := "-"
		if rec.StatusCode != 0 {
			code = strconv.Itoa(rec.StatusCode)
		}
		tbl.AddRow(rec.URL, code, rec.ErrorMessage)
	}
	tbl.Print()
}

// signed formats n with an explicit sign for positive values.
func signed(n int) string {
	if n > 0 {
		return "+" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
