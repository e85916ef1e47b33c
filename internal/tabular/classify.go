package tabular

import (
	"math"
	"strconv"
	"strings"

	"chartbot/internal/models"
)

// ColumnKind classifies a dataset column.
type ColumnKind string

const (
	KindKey         ColumnKind = "key"
	KindNumeric     ColumnKind = "numeric"
	KindCategorical ColumnKind = "categorical"
)

// sampleRows bounds how many rows Classify inspects per column.
const sampleRows = 20

// ParseNumber reads a cell as a float. Surrounding whitespace is ignored.
// Anything else that is not a number yields NaN and false.
func ParseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), false
	}
	return v, true
}

// Classify reports the kind of every column. Column 0 is always the key.
// A data column is numeric when every non-empty sampled cell parses.
func Classify(ds *models.Dataset) []ColumnKind {
	kinds := make([]ColumnKind, len(ds.Columns))
	if len(kinds) == 0 {
		return kinds
	}
	kinds[0] = KindKey

	check := sampleRows
	if len(ds.Rows) < check {
		check = len(ds.Rows)
	}

	for col := 1; col < len(ds.Columns); col++ {
		numeric, seen := true, false
		for i := 0; i < check; i++ {
			val := ds.Rows[i][col]
			if strings.TrimSpace(val) == "" {
				continue
			}
			seen = true
			if _, ok := ParseNumber(val); !ok {
				numeric = false
				break
			}
		}
		if numeric && seen {
			kinds[col] = KindNumeric
		} else {
			kinds[col] = KindCategorical
		}
	}
	return kinds
}
