package excel

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"biastest/internal/aggregate"
	"biastest/internal/errors"
	"biastest/ports"

	"github.com/xuri/excelize/v2"
)

var fitParams = []string{"a", "b", "c"}

// Exporter implements ports.SummaryExporter.
type Exporter struct{}

var _ ports.SummaryExporter = Exporter{}

// ExportSummary writes s to path.
func (Exporter) ExportSummary(path string, s aggregate.Report) error {
	return WriteSummary(path, s)
}

// WriteSummary saves the report summary as an xlsx workbook with one sheet
// per table. Empty tables are omitted.
func WriteSummary(path string, s aggregate.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	w := &sheetWriter{f: f}
	w.sheet(SheetSummary, []interface{}{"xsec", "mass", "n", "mean", "median", "mean_err", "median_err"})
	for _, ser := range s.Series {
		for _, p := range ser.Points {
			w.row(ser.XSec, p.Mass, p.N, cell(p.Mean), cell(p.Median), cell(p.MeanErr), cell(p.MedianErr))
		}
	}

	if len(s.Medians) > 0 {
		w.sheet(SheetAdjustments, []interface{}{"estimator", "xsec", "bias", "std"})
		for _, a := range s.Medians {
			w.row("median", a.XSec, cell(a.Mean), cell(a.Std))
		}
		for _, a := range s.Means {
			w.row("mean", a.XSec, cell(a.Mean), cell(a.Std))
		}
	}

	if s.Fit != nil {
		w.sheet(SheetFit, []interface{}{"param", "value", "error", "chi2"})
		for i, name := range fitParams {
			if i >= len(s.Fit.Params) {
				break
			}
			e := math.NaN()
			if s.Fit.Cov != nil {
				e = math.Sqrt(s.Fit.Cov.At(i, i))
			}
			w.row(name, s.Fit.Params[i], cell(e), s.Fit.Chi2)
		}
	}

	if len(s.Pulls) > 0 {
		w.sheet(SheetPulls, []interface{}{"xsec", "mass", "n", "pull_mean", "pull_std", "pull_median", "value_mean", "value_std", "median_bias"})
		for _, ser := range s.Pulls {
			for _, p := range ser.Points {
				w.row(ser.XSec, p.Mass, p.Pull.N, cell(p.Pull.Mean), cell(p.Pull.Std), cell(p.Pull.Median),
					cell(p.Value.Mean), cell(p.Value.Std), cell(p.MedianBias))
			}
		}
	}
	if w.err != nil {
		return errors.Wrap(w.err, "failed to build summary workbook")
	}

	// The default sheet is unused once any table exists.
	if w.sheets > 0 {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return errors.Wrap(err, "failed to drop default sheet")
		}
		if idx, err := f.GetSheetIndex(SheetSummary); err == nil && idx >= 0 {
			f.SetActiveSheet(idx)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IOError(path, err)
	}
	if err := f.SaveAs(path); err != nil {
		return errors.IOError(path, err)
	}
	return nil
}

// cell leaves NaN and infinite values blank.
func cell(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

type sheetWriter struct {
	f      *excelize.File
	name   string
	next   int
	sheets int
	err    error
}

func (w *sheetWriter) sheet(name string, header []interface{}) {
	if w.err != nil {
		return
	}
	if _, err := w.f.NewSheet(name); err != nil {
		w.err = err
		return
	}
	w.name, w.next = name, 1
	w.sheets++
	w.row(header...)
}

func (w *sheetWriter) row(values ...interface{}) {
	if w.err != nil {
		return
	}
	addr, err := excelize.CoordinatesToCellName(1, w.next)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(w.name, addr, &values); err != nil {
		w.err = fmt.Errorf("sheet %s row %d: %w", w.name, w.next, err)
		return
	}
	w.next++
}
