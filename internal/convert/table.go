package convert

import (
	"encoding/csv"
	"os"
	"regexp"
	"strings"
)

// columnGap matches the whitespace runs PDF text layers leave between
// table cells: a tab, or two-plus spaces.
var columnGap = regexp.MustCompile(`\t+| {2,}`)

// extractTableRows recovers tabular rows from a PDF text layer. A line
// counts as a table row when it splits into at least two cells on
// column gaps; single-cell lines between rows are treated as prose and
// skipped. Returns nil when fewer than two rows are found, which the
// caller treats as "no table here".
func extractTableRows(text string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cells := columnGap.Split(line, -1)
		if len(cells) < 2 {
			continue
		}
		for i, cell := range cells {
			cells[i] = strings.TrimSpace(cell)
		}
		rows = append(rows, cells)
	}
	if len(rows) < 2 {
		return nil
	}
	return rows
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
