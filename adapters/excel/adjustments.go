package excel

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"biastest/internal/aggregate"
	"biastest/internal/errors"
	"biastest/ports"
)

// AdjustmentSource reads the adjustments table back from a summary
// workbook, or from a CSV file with the same columns.
type AdjustmentSource struct {
	reader *DataReader
}

var _ ports.AdjustmentSource = (*AdjustmentSource)(nil)

// NewAdjustmentSource reads from path.
func NewAdjustmentSource(path string) *AdjustmentSource {
	return &AdjustmentSource{reader: NewDataReader(path)}
}

// LoadAdjustments returns the median and mean rows sorted by cross section.
// A blank std cell reads back as NaN.
func (s *AdjustmentSource) LoadAdjustments(ctx context.Context) (medians, means []aggregate.Adjustment, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	tbl, err := s.reader.ReadSheet(SheetAdjustments)
	if err != nil {
		return nil, nil, err
	}
	for _, h := range []string{"estimator", "xsec", "bias", "std"} {
		if !hasHeader(tbl, h) {
			return nil, nil, errors.InvalidInput(fmt.Sprintf("%s: missing column %q", s.reader.filePath, h))
		}
	}

	for n, row := range tbl.Rows {
		a, err := parseAdjustment(row)
		if err != nil {
			return nil, nil, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("%s row %d: %w", s.reader.filePath, n+2, err))
		}
		switch row["estimator"] {
		case "median":
			medians = append(medians, a)
		case "mean":
			means = append(means, a)
		default:
			return nil, nil, errors.InvalidInput(fmt.Sprintf("%s row %d: unknown estimator %q", s.reader.filePath, n+2, row["estimator"]))
		}
	}
	byXSec := func(adj []aggregate.Adjustment) {
		sort.Slice(adj, func(i, j int) bool { return adj[i].XSec < adj[j].XSec })
	}
	byXSec(medians)
	byXSec(means)
	return medians, means, nil
}

func hasHeader(t *Table, name string) bool {
	for _, h := range t.Headers {
		if h == name {
			return true
		}
	}
	return false
}

func parseAdjustment(row RawRowData) (aggregate.Adjustment, error) {
	var a aggregate.Adjustment
	var err error
	if a.XSec, err = strconv.ParseFloat(row["xsec"], 64); err != nil {
		return a, fmt.Errorf("xsec: %w", err)
	}
	if a.Mean, err = strconv.ParseFloat(row["bias"], 64); err != nil {
		return a, fmt.Errorf("bias: %w", err)
	}
	a.Std = math.NaN()
	if v := row["std"]; v != "" {
		if a.Std, err = strconv.ParseFloat(v, 64); err != nil {
			return a, fmt.Errorf("std: %w", err)
		}
	}
	return a, nil
}
