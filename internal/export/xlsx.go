// Package export serializes aggregated fan-out results into a downloadable
// XLSX workbook, one sheet per successful server result.
package export

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/duynhne/metaboard/internal/core/domain"
)

// Excel caps sheet names at 31 characters.
const maxSheetNameLen = 31

var sheetNameSanitizer = regexp.MustCompile(`\W`)

// ErrNoResults indicates every entry in the run failed, leaving nothing
// to export.
var ErrNoResults = fmt.Errorf("no successful results to export")

// Workbook builds an XLSX workbook from a fan-out result collection.
// Failed entries are skipped entirely; they are not represented as empty
// sheets. Returns ErrNoResults when no entry succeeded.
func Workbook(entries []domain.QueryResultEntry) (*excelize.File, error) {
	f := excelize.NewFile()

	used := make(map[string]bool)
	sheets := 0

	for _, entry := range entries {
		if entry.Data == nil {
			continue
		}

		name := sheetName(entry.ServerURL, used)
		index, err := f.NewSheet(name)
		if err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", name, err)
		}
		if sheets == 0 {
			f.SetActiveSheet(index)
		}
		sheets++

		if err := writeSheet(f, name, entry.Data); err != nil {
			return nil, err
		}
	}

	if sheets == 0 {
		return nil, ErrNoResults
	}

	// Drop the default sheet excelize creates with the file.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	return f, nil
}

func writeSheet(f *excelize.File, sheet string, payload *domain.ResultPayload) error {
	// Header row.
	for col, c := range payload.Cols {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, c.Name); err != nil {
			return err
		}
	}

	for rowIdx, row := range payload.Rows {
		for colIdx, value := range row {
			if value == nil {
				// Null stays an empty cell, distinct from the string "".
				continue
			}
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}

	return nil
}

// sheetName derives a bounded, identifier-safe sheet label from a server
// URL and de-duplicates it against names already in the workbook.
func sheetName(serverURL string, used map[string]bool) string {
	name := serverURL
	name = strings.TrimPrefix(name, "https://")
	name = strings.TrimPrefix(name, "http://")
	name = sheetNameSanitizer.ReplaceAllString(name, "_")
	if len(name) > maxSheetNameLen {
		name = name[:maxSheetNameLen]
	}
	if name == "" {
		name = "results"
	}

	candidate := name
	for n := 2; used[candidate]; n++ {
		suffix := fmt.Sprintf("_%d", n)
		if len(name)+len(suffix) > maxSheetNameLen {
			candidate = name[:maxSheetNameLen-len(suffix)] + suffix
		} else {
			candidate = name + suffix
		}
	}

	used[candidate] = true
	return candidate
}
