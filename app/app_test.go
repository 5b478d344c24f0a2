package app

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"biastest/adapters/rng"
	"biastest/domain/core"
	"biastest/domain/model"
	"biastest/domain/toys"
	"biastest/internal/aggregate"
	apperrors "biastest/internal/errors"
	"biastest/internal/testkit"
	"biastest/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memorySink keeps a deep copy of every checkpoint.
type memorySink struct {
	snapshots []*toys.RunRecord
	fail      error
}

func (m *memorySink) Checkpoint(_ context.Context, rec *toys.RunRecord) error {
	if m.fail != nil {
		return m.fail
	}
	m.snapshots = append(m.snapshots, rec.Clone())
	return nil
}

func (m *memorySink) last() *toys.RunRecord {
	if len(m.snapshots) == 0 {
		return nil
	}
	return m.snapshots[len(m.snapshots)-1]
}

type memorySource []*toys.RunRecord

func (m memorySource) LoadRecords(context.Context) ([]*toys.RunRecord, []ports.LoadWarning, error) {
	return m, nil, nil
}

func options(ntrial int) toys.Options {
	o := toys.DefaultOptions()
	o.Workspace = "combination.yaml"
	o.NTrial = ntrial
	o.XSec = 0.5
	return o
}

func fixedClock() func() time.Time {
	t := testkit.FixedTime
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func run(t *testing.T, ws *testkit.FakeWorkspace, o toys.Options) (*ToyStudyResult, *memorySink, string) {
	t.Helper()
	sink := &memorySink{}
	var out bytes.Buffer
	svc := NewToyStudyService(ws, sink, rng.New(), nil, &out).WithClock(fixedClock())
	res, err := svc.Run(context.Background(), ToyStudyRequest{Options: o, Key: "fits", Argv: []string{"biastest", "toys"}})
	require.NoError(t, err)
	return res, sink, out.String()
}

func TestRunRecordsEveryTrial(t *testing.T) {
	ws := testkit.NewFakeWorkspace()
	o := options(3)
	res, sink, out := run(t, ws, o)

	rec := res.Record
	require.Equal(t, 3, rec.Len())
	assert.Equal(t, toys.TrackedKeys(o), rec.Keys)
	for i := 0; i < rec.Len(); i++ {
		tr := rec.Trial(i)
		assert.Equal(t, []int{0, 0}, tr.Statuses)
		assert.Len(t, tr.Values, len(rec.Keys))
		assert.Equal(t, tr.POI, tr.Values[0])
		assert.Equal(t, -0.1, tr.ErrLo[0])
		assert.Equal(t, 0.2, tr.ErrHi[0])
	}

	require.Len(t, ws.MinosNames, 3)
	assert.Equal(t, rec.Keys, ws.MinosNames[0])

	assert.Equal(t, "fits", rec.Header.Key)
	assert.Equal(t, 0.5, rec.Header.XSec)
	assert.Equal(t, 300, rec.Header.Mass)
	assert.False(t, rec.Header.RunID.IsEmpty())
	assert.Equal(t, core.ComputeSettingsHash(o.Settings()), rec.Header.SettingsHash)
	assert.Equal(t, res.Journal[:len(rec.Header.Setup)], rec.Header.Setup)
	assert.Equal(t, []string{"biastest", "toys"}, rec.Argv)
	assert.Positive(t, rec.Runtime)

	assert.Contains(t, out, "Skipped 0 trials with bad status.")
	assert.Contains(t, out, "Total time:")
	assert.Equal(t, rec, sink.last())
}

func TestCheckpointAfterEveryRetainedTrial(t *testing.T) {
	ws := testkit.NewFakeWorkspace()
	_, sink, _ := run(t, ws, options(4))

	// One checkpoint per trial plus the final one with the total runtime.
	require.Len(t, sink.snapshots, 5)
	for i := 0; i < 4; i++ {
		snap := sink.snapshots[i]
		assert.Equal(t, i+1, snap.Len())
		final := sink.last()
		assert.Equal(t, final.POIs[:i+1], snap.POIs)
		assert.Equal(t, final.Vals[:i+1], snap.Vals)
	}
	assert.Equal(t, sink.snapshots[3].POIs, sink.snapshots[4].POIs)
}

func TestOnlyGoodDropsFailedTrials(t *testing.T) {
	ws := testkit.NewFakeWorkspace()
	ws.Scripts = []testkit.FitScript{
		{InvalidNLL: 1},
		{Migrad: model.StatusEDMAboveMax, InvalidNLL: 7},
		{InvalidNLL: 2},
	}
	o := options(3)
	o.OnlyGood = true
	res, sink, out := run(t, ws, o)

	assert.Equal(t, 1, res.Skipped)
	require.Equal(t, 2, res.Record.Len())
	assert.Equal(t, []int{1, 2}, res.Record.NLLInvalid)
	assert.Equal(t, 1, res.Record.Skipped)
	assert.Len(t, sink.snapshots, 3)
	assert.Contains(t, out, "Skipped 1 trials with bad status.")
}

func TestFailedTrialsAreKeptWithoutOnlyGood(t *testing.T) {
	ws := testkit.NewFakeWorkspace()
	ws.Scripts = []testkit.FitScript{{Migrad: model.StatusCallLimit, Minos: model.StatusProfileFailure, InvalidNLL: 3}}
	res, _, _ := run(t, ws, options(2))

	require.Equal(t, 2, res.Record.Len())
	assert.Equal(t, []int{model.StatusCallLimit, model.StatusProfileFailure}, res.Record.Statuses[0])
	assert.Equal(t, []int{3, 3}, res.Record.NLLInvalid)
	assert.Zero(t, res.Skipped)
}

func TestStageSelection(t *testing.T) {
	ws := testkit.NewFakeWorkspace()
	ws.Scripts = []testkit.FitScript{{Hesse: model.StatusNotPosDef}}
	o := options(2)
	o.Hesse = true
	o.SkipMinos = true
	res, _, _ := run(t, ws, o)

	assert.Equal(t, []int{0, model.StatusNotPosDef}, res.Record.Statuses[0])
	assert.Empty(t, ws.MinosNames)
	assert.Equal(t, 0.15, res.Record.ErrsHi[0][0])
}

func TestMinosOnlyOnFloatingTrackedKeys(t *testing.T) {
	ws := testkit.NewFakeWorkspace()
	o := options(1)
	o.FreezeSS = true
	run(t, ws, o)

	require.Len(t, ws.MinosNames, 1)
	assert.NotContains(t, ws.MinosNames[0], model.SpuriousSignal("bj"))
	assert.Contains(t, ws.MinosNames[0], model.POI)
}

func TestSameSeedSameResults(t *testing.T) {
	a, _, _ := run(t, testkit.NewFakeWorkspace(), options(4))
	b, _, _ := run(t, testkit.NewFakeWorkspace(), options(4))
	assert.Equal(t, a.Record.POIs, b.Record.POIs)

	o := options(4)
	o.Seed = 2
	c, _, _ := run(t, testkit.NewFakeWorkspace(), o)
	assert.NotEqual(t, a.Record.POIs, c.Record.POIs)
}

func TestGenerationHappensBeforeAnyFit(t *testing.T) {
	ws := testkit.NewFakeWorkspace()
	run(t, ws, options(3))

	require.Len(t, ws.Generated, 3)
	for _, g := range ws.Generated {
		assert.Equal(t, -1, g.N)
		assert.True(t, g.POI.Constant)
		assert.Equal(t, 0.5, g.POI.Value)
	}
	require.Len(t, ws.Fitters, 3)
	assert.False(t, ws.Fitters[0].POI.Constant)
	assert.Equal(t, 1.0, ws.Fitters[0].POI.Value)
	assert.Equal(t, 105, ws.Fitters[0].Events)
	assert.False(t, ws.Fitters[0].Opts.Offset)
}

func TestPoissonCountsUseOffsetStream(t *testing.T) {
	ws := testkit.NewFakeWorkspace()
	o := options(5)
	o.Poisson = true
	o.Seed = 11
	res, _, _ := run(t, ws, o)

	require.Equal(t, 105.0, res.Expected)
	want := distuv.Poisson{Lambda: 105, Src: rng.New().Stream(StreamPoisson, 11+PoissonSeedOffset)}
	for i, g := range ws.Generated {
		assert.Equal(t, int(want.Rand()), g.N, "dataset %d", i)
	}
}

func TestReinitRestartsEveryTrial(t *testing.T) {
	ws := testkit.NewFakeWorkspace()
	o := options(3)
	o.Reinit = true
	o.Offset = true
	run(t, ws, o)

	for _, f := range ws.Fitters {
		assert.Equal(t, toys.RestartPOI, f.POI.Value)
		assert.True(t, f.Opts.Offset)
	}
}

func TestBiasAdjustOffAtGenerationOnAtFit(t *testing.T) {
	ws := testkit.NewFakeWorkspace()
	o := options(2)
	o.Adjust = toys.OffsetAdjust(0.05, toys.SignSubtract)
	res, _, _ := run(t, ws, o)

	require.NotEmpty(t, res.Journal)
	assert.Equal(t, toys.OpEditPOI, res.Journal[0].Op)
	assert.Equal(t, toys.SignSubtract, ws.Sign)

	assert.Equal(t, []float64{0.05}, ws.ExpectedCalls)
	assert.InDelta(t, 100+10*(0.5-0.05), res.Expected, 1e-12)
	for _, g := range ws.Generated {
		assert.Zero(t, g.BiasAdj)
	}
	for _, f := range ws.Fitters {
		assert.Equal(t, 0.05, f.BiasAdj)
	}
}

func TestBiasAdjustFunctionResolvesOffset(t *testing.T) {
	ws := testkit.NewFakeWorkspace()
	o := options(1)
	o.XSec = 0.25
	o.Adjust = toys.FunctionAdjust(1, toys.SignAdd)
	run(t, ws, o)

	assert.Equal(t, []float64{-0.02}, ws.ExpectedCalls)
	assert.Equal(t, -0.02, ws.Fitters[0].BiasAdj)
}

func TestConfigurationErrorsAreFatal(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*toys.Options, *testkit.FakeWorkspace)
		target error
	}{
		{"undefined adjust", func(o *toys.Options, _ *testkit.FakeWorkspace) {
			o.XSec = 0.75
			o.Adjust = toys.FunctionAdjust(1, toys.SignAdd)
		}, core.ErrAdjustUndefined},
		{"unknown adjust function", func(o *toys.Options, _ *testkit.FakeWorkspace) {
			o.Adjust = toys.FunctionAdjust(4, toys.SignAdd)
		}, core.ErrUnknownAdjustFunction},
		{"missing nuisance", func(o *toys.Options, ws *testkit.FakeWorkspace) {
			o.FreezeBias = true
			ws.Remove(model.BiasNP)
			ws.Nuisances = []string{model.SpuriousSignal("bj")}
		}, core.ErrParameterNotFound},
		{"missing workspace path", func(o *toys.Options, _ *testkit.FakeWorkspace) {
			o.Workspace = ""
		}, core.ErrInvalidOptions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := testkit.NewFakeWorkspace()
			o := options(2)
			tt.mutate(&o, ws)
			sink := &memorySink{}
			_, err := NewToyStudyService(ws, sink, rng.New(), nil, nil).Run(context.Background(), ToyStudyRequest{Options: o})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
			assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
			assert.Empty(t, ws.Generated)
			assert.Empty(t, sink.snapshots)
		})
	}
}

func TestCheckpointFailureStopsRun(t *testing.T) {
	ws := testkit.NewFakeWorkspace()
	sink := &memorySink{fail: apperrors.IOError("/ro/fits.npy", errors.New("read-only"))}
	_, err := NewToyStudyService(ws, sink, rng.New(), nil, nil).Run(context.Background(), ToyStudyRequest{Options: options(3)})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeIO, apperrors.GetCode(err))
	assert.Len(t, ws.Fitters, 1)
}

func TestCancelledRunStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewToyStudyService(testkit.NewFakeWorkspace(), &memorySink{}, rng.New(), nil, nil).Run(ctx, ToyStudyRequest{Options: options(2)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMultiSinkStopsAtFirstFailure(t *testing.T) {
	a, b := &memorySink{fail: errors.New("disk full")}, &memorySink{}
	err := MultiSink{a, b}.Checkpoint(context.Background(), testkit.Record(1, 300, []float64{1}, -1, 1))
	require.Error(t, err)
	assert.Empty(t, b.snapshots)
}

func TestReportRoundTripsRecordedPoints(t *testing.T) {
	var recs memorySource
	for _, xs := range []float64{0, 1} {
		for _, mass := range []int{300, 400} {
			o := options(5)
			o.XSec, o.Mass = xs, mass
			res, _, _ := run(t, testkit.NewFakeWorkspace(), o)
			recs = append(recs, res.Record)
		}
	}

	var out bytes.Buffer
	res, err := NewReportService(nil, nil, nil, &out).Run(context.Background(), ReportRequest{Source: recs, Bootstrap: 10, Seed: 1})
	require.NoError(t, err)
	require.Len(t, res.Series, 2)
	assert.Equal(t, 1.0, res.Series[0].XSec)

	for _, s := range res.Series {
		for _, p := range s.Points {
			var pois []float64
			for _, r := range recs {
				if r.Header.XSec == s.XSec && r.Header.Mass == p.Mass {
					pois = append(pois, r.POIs...)
				}
			}
			assert.Equal(t, 5, p.N)
			assert.InDelta(t, aggregate.Median(pois), p.Median, 1e-12)
			assert.InDelta(t, aggregate.Mean(pois), p.Mean, 1e-12)
		}
	}
	require.Len(t, res.Medians, 2)
	assert.Contains(t, out.String(), "median adjustment")
	assert.Nil(t, res.Fit)
}

type recordingCharts struct {
	reports, pulls int
	showAll        bool
}

func (r *recordingCharts) Report([]aggregate.XSecSeries, []aggregate.Adjustment, []aggregate.Adjustment) ([]string, error) {
	r.reports++
	return []string{"median_signal.pdf"}, nil
}

func (r *recordingCharts) FitCurve([]aggregate.Adjustment, *aggregate.CurveFit) (string, error) {
	return "adjustments_fit.pdf", nil
}

func (r *recordingCharts) Pulls(_ []aggregate.PullSeries, _ string, showAll bool) ([]string, error) {
	r.pulls++
	r.showAll = showAll
	return []string{"pulls.pdf"}, nil
}

type recordingExporter struct {
	path string
	rep  aggregate.Report
}

func (r *recordingExporter) ExportSummary(path string, rep aggregate.Report) error {
	r.path, r.rep = path, rep
	return nil
}

func TestReportWithFitAndExport(t *testing.T) {
	truth := []float64{-0.03, 2, 0.01}
	var recs memorySource
	for _, xs := range []float64{0, 0.1, 0.25, 0.5, 0.9} {
		for _, mass := range []int{300, 400} {
			shift := 0.002
			if mass == 400 {
				shift = -0.002
			}
			v := xs + aggregate.BiasModel(xs, truth) + shift
			recs = append(recs, testkit.Record(xs, mass, []float64{v, v}, -0.1, 0.1))
		}
	}

	charts, exp := &recordingCharts{}, &recordingExporter{}
	res, err := NewReportService(charts, exp, nil, nil).Run(context.Background(), ReportRequest{Source: recs, DoFit: true, XLSX: "out/summary.xlsx"})
	require.NoError(t, err)
	require.NotNil(t, res.Fit)
	assert.Equal(t, []string{"median_signal.pdf", "adjustments_fit.pdf"}, res.Charts)
	assert.Equal(t, "out/summary.xlsx", exp.path)
	assert.Same(t, res.Fit, exp.rep.Fit)
	assert.Equal(t, 1, charts.reports)
}

type savedAdjustments struct {
	medians, means []aggregate.Adjustment
}

func (s savedAdjustments) LoadAdjustments(context.Context) ([]aggregate.Adjustment, []aggregate.Adjustment, error) {
	return s.medians, s.means, nil
}

func TestReportRefitsSavedAdjustments(t *testing.T) {
	truth := []float64{-0.03, 2, 0.01}
	var saved savedAdjustments
	for _, xs := range []float64{0, 0.1, 0.25, 0.5, 0.9} {
		saved.medians = append(saved.medians, aggregate.Adjustment{XSec: xs, Mean: aggregate.BiasModel(xs, truth), Std: 0.002})
	}

	charts, exp := &recordingCharts{}, &recordingExporter{}
	var out bytes.Buffer
	res, err := NewReportService(charts, exp, nil, &out).Run(context.Background(), ReportRequest{Saved: saved, DoFit: true, XLSX: "refit.xlsx"})
	require.NoError(t, err)
	require.NotNil(t, res.Fit)
	assert.Equal(t, []string{"adjustments_fit.pdf"}, res.Charts)
	assert.Zero(t, charts.reports)
	assert.Equal(t, saved.medians, exp.rep.Medians)
	assert.Empty(t, exp.rep.Series)
	assert.Contains(t, out.String(), "a(1-x)^b + c:")

	_, err = NewReportService(nil, nil, nil, nil).Run(context.Background(), ReportRequest{Saved: savedAdjustments{}})
	assert.ErrorIs(t, err, core.ErrNoData)
}

func TestReportWithoutRecords(t *testing.T) {
	_, err := NewReportService(nil, nil, nil, nil).Run(context.Background(), ReportRequest{Source: memorySource{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNoData)

	_, err = NewReportService(nil, nil, nil, nil).Run(context.Background(), ReportRequest{})
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
}

func TestPullServiceDefaults(t *testing.T) {
	recs := memorySource{
		testkit.Record(0.5, 300, []float64{0.3, 0.7}, -0.2, 0.2),
		testkit.Record(0.75, 300, []float64{0.75}, -0.2, 0.2),
	}
	charts := &recordingCharts{}
	var out bytes.Buffer
	res, err := NewPullService(charts, nil, &out).Run(context.Background(), PullRequest{Source: recs, ShowAll: true})
	require.NoError(t, err)
	require.Len(t, res.Series, 1)
	assert.Equal(t, 0.5, res.Series[0].XSec)
	assert.Equal(t, []float64{-1, 1}, res.Series[0].Points[0].Pulls)
	assert.True(t, charts.showAll)
	assert.Contains(t, out.String(), "xs=0.5 m=300 n=2")

	res, err = NewPullService(nil, nil, nil).Run(context.Background(), PullRequest{Source: recs, ExcludeXS: []float64{}})
	require.NoError(t, err)
	assert.Len(t, res.Series, 2)

	_, err = NewPullService(nil, nil, nil).Run(context.Background(), PullRequest{Source: recs, Variable: "bias_bj"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrParameterNotFound)
}

func TestTimeStatsService(t *testing.T) {
	a := testkit.Record(1, 300, []float64{1, 1}, -1, 1)
	a.Runtime = 10
	var out bytes.Buffer
	ts, err := NewTimeStatsService(nil, &out).Run(context.Background(), memorySource{a})
	require.NoError(t, err)
	assert.Equal(t, 2, ts.TotalTrials)
	assert.Contains(t, out.String(), "Time per trial: 5.000s")
	assert.Contains(t, out.String(), "Failed trials: 0")
}
