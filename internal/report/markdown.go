// Package report renders the markdown summary of a harvest run.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"toolharvest/internal/models"
)

// Summary is everything a run report shows. Zero sections are omitted.
type Summary struct {
	RunID       string
	GeneratedAt time.Time
	ListingURL  string

	Discovered int
	Iterations int
	StopReason string

	Extracted int
	Failed    []string

	NormalizeInput int
	Merged         int
	Dropped        map[string]int

	Tools         []models.Tool
	Mapping       []models.CategoryMappingEntry
	NewCategories []models.CategoryRecord
}

// Render builds the report and aligns its tables.
func Render(s Summary) string {
	var b strings.Builder

	b.WriteString("# Harvest report\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", s.RunID)

	if !s.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "- Generated: %s\n", s.GeneratedAt.UTC().Format(time.RFC3339))
	}

	if s.ListingURL != "" {
		fmt.Fprintf(&b, "- Listing: %s\n", s.ListingURL)
	}

	b.WriteString("\n## Pipeline\n\n")
	b.WriteString("| Stage | Count | Notes |\n| --- | --- | --- |\n")
	fmt.Fprintf(&b, "| Discovered | %d | %d iterations, stop: %s |\n", s.Discovered, s.Iterations, orDash(s.StopReason))
	fmt.Fprintf(&b, "| Extracted | %d | %d failed |\n", s.Extracted, len(s.Failed))
	fmt.Fprintf(&b, "| Normalized | %d | %d in, %d merged, %d dropped |\n",
		len(s.Tools), s.NormalizeInput, s.Merged, total(s.Dropped))

	if len(s.Dropped) > 0 {
		b.WriteString("\n## Dropped records\n\n| Reason | Count |\n| --- | --- |\n")

		for _, reason := range sortedKeys(s.Dropped) {
			fmt.Fprintf(&b, "| %s | %d |\n", cell(reason), s.Dropped[reason])
		}
	}

	if len(s.Failed) > 0 {
		b.WriteString("\n## Failed detail pages\n\n")

		for _, id := range s.Failed {
			fmt.Fprintf(&b, "- %s\n", id)
		}
	}

	if len(s.Tools) > 0 {
		b.WriteString("\n## Tools\n\n| Name | Category | Pricing | Website |\n| --- | --- | --- | --- |\n")

		for _, tool := range s.Tools {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				cell(tool.Name), cell(orDash(tool.Category)), cell(tool.PricingModel), cell(tool.WebsiteURL))
		}
	}

	if len(s.Mapping) > 0 {
		b.WriteString("\n## Categories\n\n| Category | Slug | Target | New |\n| --- | --- | --- | --- |\n")

		for _, entry := range s.Mapping {
			target := "-"
			if entry.TargetCategoryID != nil {
				target = fmt.Sprintf("%d", *entry.TargetCategoryID)
			}

			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				cell(entry.SourceName), cell(entry.SourceSlug), target, yesNo(entry.IsNew))
		}
	}

	if len(s.NewCategories) > 0 {
		b.WriteString("\n## New categories\n\n| Name | Slug | Suggested match |\n| --- | --- | --- |\n")

		for _, record := range s.NewCategories {
			fmt.Fprintf(&b, "| %s | %s | %s |\n",
				cell(record.Name), cell(record.Slug), cell(orDash(record.SuggestedMatch)))
		}
	}

	return AlignTables(b.String())
}

// AlignTables pads every markdown table in content so its columns line up
// by display width.
func AlignTables(content string) string {
	lines := strings.Split(content, "\n")

	var (
		formatted   []string
		tableBuffer []string
	)

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") {
			tableBuffer = append(tableBuffer, line)

			continue
		}

		if len(tableBuffer) > 0 {
			formatted = append(formatted, alignTable(tableBuffer)...)
			tableBuffer = nil
		}

		formatted = append(formatted, line)
	}

	if len(tableBuffer) > 0 {
		formatted = append(formatted, alignTable(tableBuffer)...)
	}

	return strings.Join(formatted, "\n")
}

func alignTable(rows []string) []string {
	// header + separator at least
	if len(rows) < 2 {
		return rows
	}

	table := make([][]string, 0, len(rows))
	colCount := 0

	for _, row := range rows {
		parts := strings.Split(strings.TrimSpace(row), "|")
		parts = parts[1 : len(parts)-1]

		cells := make([]string, len(parts))
		for i, p := range parts {
			cells[i] = strings.TrimSpace(p)
		}

		table = append(table, cells)
		colCount = max(colCount, len(cells))
	}

	separatorIdx := -1
	if isSeparator(table[1]) {
		separatorIdx = 1
	}

	widths := make([]int, colCount)

	for r, row := range table {
		if r == separatorIdx {
			continue
		}

		for i, c := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(c))
		}
	}

	for i := range widths {
		widths[i] = max(widths[i], 3)
	}

	result := make([]string, 0, len(table))

	for r, row := range table {
		var sb strings.Builder

		sb.WriteString("|")

		for j := range colCount {
			sb.WriteString(" ")

			if r == separatorIdx {
				sb.WriteString(strings.Repeat("-", widths[j]))
			} else {
				content := ""
				if j < len(row) {
					content = row[j]
				}

				sb.WriteString(runewidth.FillRight(content, widths[j]))
			}

			sb.WriteString(" |")
		}

		result = append(result, sb.String())
	}

	return result
}

func isSeparator(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}

	return len(cells) > 0
}

// cell makes s safe to place in a table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "/")

	return strings.Join(strings.Fields(s), " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}

func total(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}

	return n
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
