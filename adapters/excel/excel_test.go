package excel

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"biastest/domain/toys"
	"biastest/internal/aggregate"
	"biastest/internal/errors"
	"biastest/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestWriteSummaryRoundTrip(t *testing.T) {
	recs := []*toys.RunRecord{
		testkit.Record(1, 300, []float64{0.9, 1.1, 1.0}, -0.2, 0.2),
		testkit.Record(1, 400, []float64{0.8}, -0.2, 0.2),
		testkit.Record(0, 300, []float64{0.1, -0.1}, -0.2, 0.2),
	}
	series := aggregate.Summarize(aggregate.GroupPoints(recs), 0, 1)
	med, avg := aggregate.Adjustments(series)
	pulls, _, err := aggregate.Pulls(recs, aggregate.PullOptions{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "summary.xlsx")
	require.NoError(t, WriteSummary(path, aggregate.Report{
		Series:  series,
		Medians: med,
		Means:   avg,
		Fit:     &aggregate.CurveFit{Params: []float64{-0.03, 2, 0.01}, Cov: mat.NewSymDense(3, []float64{4e-4, 0, 0, 0, 1, 0, 0, 0, 1e-4}), Chi2: 1.5},
		Pulls:   pulls,
	}))

	r := NewDataReader(path)
	summary, err := r.ReadSheet(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"xsec", "mass", "n", "mean", "median", "mean_err", "median_err"}, summary.Headers)
	require.Len(t, summary.Rows, 3)
	assert.Equal(t, "1", summary.Rows[0]["xsec"])
	assert.Equal(t, "300", summary.Rows[0]["mass"])
	assert.Equal(t, "3", summary.Rows[0]["n"])
	assert.Empty(t, summary.Rows[0]["median_err"])

	adj, err := r.ReadSheet(SheetAdjustments)
	require.NoError(t, err)
	assert.Len(t, adj.Rows, 4)

	fit, err := r.ReadSheet(SheetFit)
	require.NoError(t, err)
	require.Len(t, fit.Rows, 3)
	assert.Equal(t, "a", fit.Rows[0]["param"])
	e, err := strconv.ParseFloat(fit.Rows[0]["error"], 64)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, e, 1e-9)

	pullSheet, err := r.ReadSheet(SheetPulls)
	require.NoError(t, err)
	assert.Len(t, pullSheet.Rows, 3)

	_, err = r.ReadSheet("Sheet1")
	assert.Error(t, err)
}

func TestAdjustmentSourceReadsExportedWorkbook(t *testing.T) {
	med := []aggregate.Adjustment{{XSec: 1, Mean: 0.02, Std: 0.004}, {XSec: 0, Mean: -0.01, Std: math.NaN()}}
	avg := []aggregate.Adjustment{{XSec: 0, Mean: -0.02, Std: 0.003}}
	path := filepath.Join(t.TempDir(), "summary.xlsx")
	require.NoError(t, WriteSummary(path, aggregate.Report{Medians: med, Means: avg}))

	gotMed, gotAvg, err := NewAdjustmentSource(path).LoadAdjustments(context.Background())
	require.NoError(t, err)
	require.Len(t, gotMed, 2)
	assert.Equal(t, 0.0, gotMed[0].XSec)
	assert.InDelta(t, -0.01, gotMed[0].Mean, 1e-12)
	assert.True(t, math.IsNaN(gotMed[0].Std))
	assert.InDelta(t, 0.004, gotMed[1].Std, 1e-12)
	require.Len(t, gotAvg, 1)
	assert.InDelta(t, -0.02, gotAvg[0].Mean, 1e-12)
}

func TestAdjustmentSourceFromCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adjustments.csv")
	require.NoError(t, os.WriteFile(path, []byte("estimator,xsec,bias,std\nmedian,0.5,0.01,0.002\nmean,0.5,0.02,0.003\n"), 0o644))

	med, avg, err := NewAdjustmentSource(path).LoadAdjustments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []aggregate.Adjustment{{XSec: 0.5, Mean: 0.01, Std: 0.002}}, med)
	assert.Equal(t, []aggregate.Adjustment{{XSec: 0.5, Mean: 0.02, Std: 0.003}}, avg)
}

func TestAdjustmentSourceRejectsBadRows(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"missing_column.csv": "estimator,xsec,bias\nmedian,0.5,0.01\n",
		"bad_number.csv":     "estimator,xsec,bias,std\nmedian,half,0.01,0.002\n",
		"bad_estimator.csv":  "estimator,xsec,bias,std\nmode,0.5,0.01,0.002\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, _, err := NewAdjustmentSource(path).LoadAdjustments(context.Background())
		require.Error(t, err, name)
		assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err), name)
	}
}

func TestReadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, os.WriteFile(path, []byte("xsec, mass\n0.5,300\n1,400\n"), 0o644))

	tbl, err := NewDataReader(path).ReadSheet("")
	require.NoError(t, err)
	assert.Equal(t, []string{"xsec", "mass"}, tbl.Headers)
	assert.Equal(t, RawRowData{"xsec": "1", "mass": "400"}, tbl.Rows[1])
}

func TestReadMissingFile(t *testing.T) {
	_, err := NewDataReader(filepath.Join(t.TempDir(), "nope.xlsx")).ReadSheet(SheetSummary)
	assert.Error(t, err)
}
