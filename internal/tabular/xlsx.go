package tabular

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"chartbot/internal/models"
)

// ParseXLSX reads the first sheet of a workbook. Rows shorter than the
// header are padded with empty cells since excelize drops trailing blanks.
func ParseXLSX(name string, r io.Reader) (*models.Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("%s is not a readable workbook: %v", name, err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Reason: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("sheet %q is not readable: %v", sheets[0], err)}
	}
	if len(rows) == 0 {
		return nil, &ParseError{Reason: "input is empty"}
	}

	width := len(rows[0])
	for i := 1; i < len(rows); i++ {
		if len(rows[i]) < width && !isBlank(rows[i]) {
			padded := make([]string, width)
			copy(padded, rows[i])
			rows[i] = padded
		}
	}

	return FromRecords(name, rows)
}
