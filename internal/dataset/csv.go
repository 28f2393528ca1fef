package dataset

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// missing value spellings accepted when parsing numeric cells.
var missingTokens = map[string]bool{"": true, "NA": true, "na": true, "NaN": true, "nan": true, "NULL": true, "null": true}

// FromCSV reads a CSV file into a Dataset. The first row is the header.
// Columns whose non-missing cells all parse as floats become numeric; every
// other column becomes a factor. Missing required columns surface as
// ErrMissingColumn.
func FromCSV(path, label, timeCol, statusCol, idCol string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv: %s is empty (no header row)", path)
	}

	headers := records[0]
	raw := make(map[string][]string, len(headers))
	for _, h := range headers {
		raw[h] = make([]string, 0, len(records)-1)
	}
	for i, record := range records[1:] {
		if len(record) != len(headers) {
			return nil, fmt.Errorf("csv: row %d has %d columns, expected %d", i+2, len(record), len(headers))
		}
		for j, h := range headers {
			raw[h] = append(raw[h], strings.TrimSpace(record[j]))
		}
	}

	frame := &Frame{
		Columns: headers,
		Numeric: make(map[string][]float64),
		Factor:  make(map[string][]string),
	}

	for _, h := range headers {
		cells := raw[h]
		if h == idCol {
			continue // identifiers stay strings, handled below
		}
		if nums, ok := parseNumericColumn(cells); ok || h == timeCol || h == statusCol {
			if !ok {
				// outcome columns must be numeric; parse leniently so bad
				// cells surface from Validate with row context
				nums = forceNumericColumn(cells)
			}
			frame.Numeric[h] = nums
		} else {
			frame.Factor[h] = cells
		}
	}

	n := len(records) - 1
	if idCol != "" {
		ids, ok := raw[idCol]
		if !ok {
			return nil, fmt.Errorf("%w: %s (file %s)", ErrMissingColumn, idCol, path)
		}
		frame.IDs = ids
	} else {
		frame.IDs = make([]string, n)
		for i := range frame.IDs {
			frame.IDs[i] = strconv.Itoa(i + 1)
		}
	}

	ds := &Dataset{
		Label:        label,
		TimeColumn:   timeCol,
		StatusColumn: statusCol,
		IDColumn:     idCol,
		Frame:        frame,
	}
	if _, ok := frame.Numeric[timeCol]; !ok {
		return nil, fmt.Errorf("%w: %s (file %s)", ErrMissingColumn, timeCol, path)
	}
	if _, ok := frame.Numeric[statusCol]; !ok {
		return nil, fmt.Errorf("%w: %s (file %s)", ErrMissingColumn, statusCol, path)
	}
	return ds, nil
}

func parseNumericColumn(cells []string) ([]float64, bool) {
	nums := make([]float64, len(cells))
	seen := false
	for i, c := range cells {
		if missingTokens[c] {
			nums[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return nil, false
		}
		nums[i] = v
		seen = true
	}
	return nums, seen
}

func forceNumericColumn(cells []string) []float64 {
	nums := make([]float64, len(cells))
	for i, c := range cells {
		v, err := strconv.ParseFloat(c, 64)
		if err != nil {
			nums[i] = math.NaN()
			continue
		}
		nums[i] = v
	}
	return nums
}

// WriteCSV materializes the named columns of a frame (plus its identifiers)
// to path. Used for the external-process adapter handoff.
func WriteCSV(f *Frame, path string, columns []string, idHeader string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create %s: %w", path, err)
	}
	defer out.Close() //nolint:errcheck

	w := csv.NewWriter(out)
	header := make([]string, 0, len(columns)+1)
	if idHeader != "" {
		header = append(header, idHeader)
	}
	header = append(header, columns...)
	if err := w.Write(header); err != nil {
		return err
	}

	record := make([]string, 0, len(header))
	for i := 0; i < f.Len(); i++ {
		record = record[:0]
		if idHeader != "" {
			record = append(record, f.IDs[i])
		}
		for _, c := range columns {
			if col, ok := f.Numeric[c]; ok {
				if math.IsNaN(col[i]) {
					record = append(record, "")
				} else {
					record = append(record, strconv.FormatFloat(col[i], 'g', -1, 64))
				}
				continue
			}
			if col, ok := f.Factor[c]; ok {
				record = append(record, col[i])
				continue
			}
			return fmt.Errorf("csv: %w: %s", ErrMissingColumn, c)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
