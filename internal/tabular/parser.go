// Package tabular turns delimited text, workbooks and generic records into
// models.Dataset values.
//
// The text dialect is deliberately small: fields are split on every comma
// and there is no quoting or escaping, so a comma inside a value cannot be
// represented. Callers that need full CSV semantics must convert the input
// first. A trailing carriage return on each line is dropped.
//
// When two rows share a key the later row replaces the earlier one in
// place (last write wins); the row keeps the position of its first
// occurrence.
package tabular

import (
	"fmt"
	"io"
	"strings"

	"chartbot/internal/models"
)

const (
	// Separator splits both header and row cells.
	Separator = ","
	// MinColumns is one key column plus one data column.
	MinColumns = 2
)

type record struct {
	line  int
	cells []string
}

// Parse reads comma-separated text. The first line is the header and every
// following non-empty line is a row.
func Parse(raw string) (*models.Dataset, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ParseError{Reason: "input is empty"}
	}

	lines := strings.Split(raw, "\n")
	header := strings.TrimSuffix(lines[0], "\r")
	if strings.TrimSpace(header) == "" {
		return nil, &ParseError{Line: 1, Reason: "header line is empty"}
	}

	records := make([]record, 0, len(lines)-1)
	for i, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		records = append(records, record{line: i + 2, cells: strings.Split(line, Separator)})
	}

	return build(strings.Split(header, Separator), records)
}

// ParseReader reads the whole stream and parses it with Parse. The dataset
// is named after name.
func ParseReader(name string, r io.Reader) (*models.Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	ds, err := Parse(string(data))
	if err != nil {
		return nil, err
	}
	ds.Name = name
	return ds, nil
}

// FromRecords builds a dataset from already split records. The first record
// is the header. It applies the same validation as Parse.
func FromRecords(name string, records [][]string) (*models.Dataset, error) {
	if len(records) == 0 {
		return nil, &ParseError{Reason: "input is empty"}
	}
	if len(records[0]) == 0 {
		return nil, &ParseError{Line: 1, Reason: "header line is empty"}
	}

	rows := make([]record, 0, len(records)-1)
	for i, cells := range records[1:] {
		if isBlank(cells) {
			continue
		}
		rows = append(rows, record{line: i + 2, cells: cells})
	}

	ds, err := build(records[0], rows)
	if err != nil {
		return nil, err
	}
	ds.Name = name
	return ds, nil
}

func build(header []string, records []record) (*models.Dataset, error) {
	if len(header) < MinColumns {
		return nil, &ParseError{
			Line:   1,
			Reason: fmt.Sprintf("header has %d column(s), need a key column and at least one data column", len(header)),
		}
	}

	ds := &models.Dataset{
		Columns: header,
		Rows:    make([][]string, 0, len(records)),
	}
	index := make(map[string]int, len(records))

	for n, rec := range records {
		if len(rec.cells) != len(header) {
			return nil, &ParseError{
				Line:   rec.line,
				Row:    n + 1,
				Reason: fmt.Sprintf("expected %d values after the key, got %d", len(header)-1, len(rec.cells)-1),
			}
		}
		key := rec.cells[0]
		if at, ok := index[key]; ok {
			ds.Rows[at] = rec.cells
			continue
		}
		index[key] = len(ds.Rows)
		ds.Rows = append(ds.Rows, rec.cells)
	}

	return ds, nil
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
