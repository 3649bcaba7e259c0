// package formatter renders ledger records and run results as tables, CSV and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/tasks"
	"github.com/desertthunder/vmx/internal/ui"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// DefaultNameWidth bounds the name column when the terminal width is unknown.
const DefaultNameWidth = 60

// SortBySize orders items largest download first. Equal sizes keep their ledger order.
func SortBySize(items []*models.Item) []*models.Item {
	sorted := append([]*models.Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Download.Size > sorted[j].Download.Size
	})
	return sorted
}

// TotalSize sums the download size of items.
func TotalSize(items []*models.Item) int64 {
	var total int64
	for _, item := range items {
		total += item.Download.Size
	}
	return total
}

// RenderItems renders items as a table of name, status and size, largest first, with a
// footer holding the total size. nameWidth caps the name column; zero or less uses
// [DefaultNameWidth].
func RenderItems(items []*models.Item, nameWidth int) string {
	if nameWidth <= 0 {
		nameWidth = DefaultNameWidth
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Name", "Status", "Size"})

	for _, item := range SortBySize(items) {
		tw.AppendRow(table.Row{
			text.Snip(cleanName(item.Name), nameWidth, "…"),
			ui.StatusLabel(item.Status),
			humanize.Bytes(uint64(item.Download.Size)),
		})
	}

	tw.AppendFooter(table.Row{
		fmt.Sprintf("%d items", len(items)),
		"Total",
		humanize.Bytes(uint64(TotalSize(items))),
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})

	return tw.Render()
}

// RenderStats renders record counts per status in state machine order.
func RenderStats(stats map[models.Status]int) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Status", "Count"})

	total := 0
	for _, s := range models.DownloadStatuses {
		tw.AppendRow(table.Row{ui.StatusLabel(s), stats[s]})
		total += stats[s]
	}
	tw.AppendFooter(table.Row{"Total", total})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})

	return tw.Render()
}

// ExportToCSV converts items to CSV with columns: Resource Key, Name, Status, Size, Quality, Path, Attempts, Last Error
func ExportToCSV(items []*models.Item) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Resource Key", "Name", "Status", "Size", "Quality", "Path", "Attempts", "Last Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range items {
		record := []string{
			item.ResourceKey,
			item.Name,
			item.Status.String(),
			strconv.FormatInt(item.Download.Size, 10),
			item.Download.Quality,
			item.Path,
			strconv.Itoa(item.Attempts),
			item.LastError,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteCSVExport writes the CSV rendition of items to path.
func WriteCSVExport(items []*models.Item, path string) error {
	data, err := ExportToCSV(items)
	if err != nil {
		return fmt.Errorf("failed to generate CSV: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write CSV file: %w", err)
	}
	return nil
}

// RenderDownload summarizes a download run.
func RenderDownload(r *tasks.DownloadResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run %s\n", r.RunID)
	if r.Reset > 0 {
		fmt.Fprintf(&b, "Recovered %d interrupted downloads\n", r.Reset)
	}
	if r.Sweep != nil {
		b.WriteString(RenderSweep(r.Sweep))
	}
	fmt.Fprintf(&b, "Processed %d in %d batches: %s, %s, %s\n",
		r.Processed, r.Batches,
		ui.OK(fmt.Sprintf("%d downloaded", r.Downloaded)),
		ui.Err(fmt.Sprintf("%d failed", r.Failed)),
		ui.Warn(fmt.Sprintf("%d re-armed", r.Rearmed)),
	)
	if r.Released > 0 {
		fmt.Fprintf(&b, "Released %d interrupted transfers\n", r.Released)
	}
	if r.Skipped > 0 {
		fmt.Fprintf(&b, "Skipped %d records claimed elsewhere\n", r.Skipped)
	}
	if r.PostSweep != nil && r.PostSweep.Rearmed > 0 {
		fmt.Fprintf(&b, "Post-flight sweep re-armed %d records\n", r.PostSweep.Rearmed)
	}

	return b.String()
}

// RenderSweep summarizes an integrity sweep.
func RenderSweep(r *tasks.SweepResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Checked %d downloaded records: %d missing, %d zero-byte, %d re-armed\n",
		r.Checked, r.Missing, r.ZeroByte, r.Rearmed)
	if len(r.StaleParts) > 0 {
		fmt.Fprintf(&b, "Removed %d partial files\n", len(r.StaleParts))
	}
	return b.String()
}

// RenderReconcile prints the three-way diff with the names in each set.
func RenderReconcile(r *tasks.ReconcileResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Catalog items: %d\n", r.CatalogCount)
	fmt.Fprintf(&b, "Ledger records: %d\n", r.LedgerCount)
	fmt.Fprintf(&b, "Files on disk: %d\n", r.DiskCount)

	missingInLedger := make([]string, 0, len(r.MissingInLedger))
	for _, c := range r.MissingInLedger {
		missingInLedger = append(missingInLedger, c.Name)
	}
	writeSection(&b, "Missing in ledger", missingInLedger)

	missingOnDisk := make([]string, 0, len(r.MissingOnDisk))
	for _, item := range r.MissingOnDisk {
		missingOnDisk = append(missingOnDisk, fmt.Sprintf("%s (%s)", item.Name, item.Status.Label()))
	}
	writeSection(&b, "Missing on disk", missingOnDisk)

	writeSection(&b, "Files on disk not in ledger (orphans)", r.OrphansOnDisk)

	b.WriteString("\n")
	if r.DryRun {
		b.WriteString(ui.Help("Dry run: no changes written. Run `vmx reconcile` to apply.") + "\n")
	} else {
		fmt.Fprintf(&b, "Marked %d missing-in-ledger records for download.\n", len(r.MissingInLedger))
		fmt.Fprintf(&b, "Marked %d missing-on-disk records for download.\n", len(r.MissingOnDisk))
		fmt.Fprintf(&b, "Applied %d corrections.\n", r.Applied)
	}

	return b.String()
}

func writeSection(b *strings.Builder, title string, names []string) {
	fmt.Fprintf(b, "\n=== %s: %d ===\n", title, len(names))
	if len(names) == 0 {
		b.WriteString("None!\n")
		return
	}
	for _, name := range names {
		b.WriteString(name + "\n")
	}
}

// cleanName strips control characters that would break table alignment.
func cleanName(name string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
}
