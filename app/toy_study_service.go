package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"biastest/domain/core"
	"biastest/domain/model"
	"biastest/domain/toys"
	"biastest/internal/errors"
	"biastest/internal/logging"
	"biastest/ports"

	"gonum.org/v1/gonum/stat/distuv"
)

// Random stream names and the seed offset of the event-count stream.
const (
	StreamGenerate = "generate"
	StreamPoisson  = "poisson"

	PoissonSeedOffset = 100
)

// ToyStudyService injects a known signal into a workspace, draws
// pseudo-datasets from it and refits each one, checkpointing the
// accumulated results after every retained trial.
type ToyStudyService struct {
	ws     ports.Workspace
	sink   ports.ResultSink
	rng    ports.RNGPort
	logger *logging.Logger
	stdout io.Writer
	now    func() time.Time
}

// ToyStudyRequest is one invocation.
type ToyStudyRequest struct {
	Options toys.Options
	// Key is the artifact prefix recorded in the header.
	Key   string
	Argv  []string
	JobID *string
}

// ToyStudyResult is the final state of a run.
type ToyStudyResult struct {
	Record   *toys.RunRecord
	Skipped  int
	Expected float64
	Elapsed  time.Duration
	// Journal lists every applied mutation in order.
	Journal toys.Plan
}

// NewToyStudyService wires the service. Summary lines go to stdout.
func NewToyStudyService(ws ports.Workspace, sink ports.ResultSink, rng ports.RNGPort, logger *logging.Logger, stdout io.Writer) *ToyStudyService {
	if logger == nil {
		logger = logging.NewNop()
	}
	if stdout == nil {
		stdout = io.Discard
	}
	return &ToyStudyService{ws: ws, sink: sink, rng: rng, logger: logger, stdout: stdout, now: time.Now}
}

// WithClock replaces the wall clock, for tests.
func (s *ToyStudyService) WithClock(now func() time.Time) *ToyStudyService {
	s.now = now
	return s
}

// Run executes the study. Configuration and lookup problems are returned as
// errors before any trial runs; fit non-convergence is only recorded.
func (s *ToyStudyService) Run(ctx context.Context, req ToyStudyRequest) (*ToyStudyResult, error) {
	start := s.now()
	opts := req.Options
	if err := opts.Validate(); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}

	res := &ToyStudyResult{}
	offset := 0.0
	if opts.Adjust.Enabled() {
		var err error
		if offset, err = opts.Adjust.Resolve(opts.Mass, opts.XSec); err != nil {
			return nil, errors.WithCode(errors.CodeConfigInvalid, err)
		}
		s.logger.Info("Bias adjust %s: %s%+g*%s with %s=%g", opts.Adjust.Kind, model.POI, opts.Adjust.Sign, model.BiasAdj, model.BiasAdj, offset)
		if err := s.apply(res, toys.AdjustPlan(opts.Adjust.Sign, offset)); err != nil {
			return nil, err
		}
	}
	if err := s.apply(res, toys.SetupPlan(opts, s.ws.NuisanceParameters())); err != nil {
		return nil, err
	}
	setup := append(toys.Plan(nil), res.Journal...)

	res.Expected = s.ws.ExpectedEvents()
	s.logger.Info("Expected events: %g", res.Expected)

	datasets, err := s.generate(ctx, res, opts, offset)
	if err != nil {
		return nil, err
	}

	keys := toys.TrackedKeys(opts)
	header := toys.Header{
		Version:      toys.RecordVersion,
		RunID:        core.NewRunID(),
		Key:          req.Key,
		XSec:         opts.XSec,
		Mass:         opts.Mass,
		Seed:         opts.Seed,
		Requested:    opts.NTrial,
		Options:      opts,
		Setup:        setup,
		SettingsHash: core.ComputeSettingsHash(opts.Settings()),
		CreatedAt:    start.UTC(),
	}
	rec := toys.NewRunRecord(header, keys, req.Argv, req.JobID)
	res.Record = rec
	logger := s.logger.With("run_id", header.RunID.String())

	for i, ds := range datasets {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrapf(err, "toy study interrupted after %d trials", i)
		}
		trial, err := s.fitTrial(res, opts, keys, ds)
		if err != nil {
			return res, err
		}
		trial.Index = i
		logger.Info("Trial %d: %s=%g statuses=%v invalid=%d", i, model.POI, trial.POI, trial.Statuses, trial.InvalidNLL)

		if opts.OnlyGood && trial.MaxStatus() > 0 {
			res.Skipped++
			logger.Warn("Skipping trial %d with bad status %v", i, trial.Statuses)
			continue
		}
		rec.Append(trial)
		rec.Runtime = s.now().Sub(start).Seconds()
		rec.Skipped = res.Skipped
		if err := s.sink.Checkpoint(ctx, rec); err != nil {
			return res, errors.Wrapf(err, "checkpoint after trial %d failed", i)
		}
	}

	res.Elapsed = s.now().Sub(start)
	if rec.Len() > 0 {
		rec.Runtime = res.Elapsed.Seconds()
		rec.Skipped = res.Skipped
		if err := s.sink.Checkpoint(ctx, rec); err != nil {
			return res, errors.Wrap(err, "final checkpoint failed")
		}
	}

	fmt.Fprintf(s.stdout, "Skipped %d trials with bad status.\n", res.Skipped)
	fmt.Fprintf(s.stdout, "Total time: %g\n", res.Elapsed.Seconds())
	return res, nil
}

// apply runs a plan against the workspace, journaling what was applied.
func (s *ToyStudyService) apply(res *ToyStudyResult, plan toys.Plan) error {
	applied, err := toys.Apply(s.ws, plan)
	for _, m := range applied {
		s.logger.Debug("%s", m)
	}
	res.Journal = append(res.Journal, applied...)
	if err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	return nil
}

// generate draws every dataset up front with the signal held at the
// injected value, then releases the signal strength for fitting.
func (s *ToyStudyService) generate(ctx context.Context, res *ToyStudyResult, opts toys.Options, offset float64) ([]*model.Dataset, error) {
	if opts.Adjust.Enabled() {
		if err := s.apply(res, toys.GenerationPlan()); err != nil {
			return nil, err
		}
	}

	gen := s.rng.Stream(StreamGenerate, opts.Seed)
	var counts distuv.Poisson
	if opts.Poisson && res.Expected > 0 {
		counts = distuv.Poisson{Lambda: res.Expected, Src: s.rng.Stream(StreamPoisson, opts.Seed+PoissonSeedOffset)}
	}

	datasets := make([]*model.Dataset, 0, opts.NTrial)
	for i := 0; i < opts.NTrial; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "toy generation interrupted")
		}
		n := -1
		if opts.Poisson {
			n = 0
			if counts.Lambda > 0 {
				n = int(counts.Rand())
			}
		}
		ds, err := s.ws.Generate(gen, n)
		if err != nil {
			return nil, errors.Wrapf(err, "generating dataset %d", i)
		}
		ds.Name = fmt.Sprintf("ds_%03d", i)
		s.logger.Debug("Generated %s with %d events", ds.Name, ds.Len())
		datasets = append(datasets, ds)
	}

	if opts.Adjust.Enabled() {
		if err := s.apply(res, toys.RestorePlan(offset)); err != nil {
			return nil, err
		}
	}
	if err := s.apply(res, toys.ReleasePlan()); err != nil {
		return nil, err
	}
	return datasets, nil
}

// fitTrial runs the fit stages on one dataset and reads back the tracked
// parameters.
func (s *ToyStudyService) fitTrial(res *ToyStudyResult, opts toys.Options, keys []string, ds *model.Dataset) (toys.TrialResult, error) {
	if opts.Reinit {
		if err := s.apply(res, toys.ReinitPlan(s.ws.NuisanceParameters())); err != nil {
			return toys.TrialResult{}, err
		}
	}

	fitter, err := s.ws.NewFitter(ds, model.NLLOptions{Offset: opts.Offset})
	if err != nil {
		return toys.TrialResult{}, errors.Wrapf(err, "building likelihood for %s", ds.Name)
	}

	last := fitter.Migrad()
	statuses := []int{last.Status}
	if opts.Hesse {
		last = fitter.Hesse()
		statuses = append(statuses, last.Status)
	}
	if !opts.SkipMinos {
		names, err := s.floating(keys)
		if err != nil {
			return toys.TrialResult{}, err
		}
		last = fitter.Minos(names...)
		statuses = append(statuses, last.Status)
	}

	t := toys.TrialResult{
		Statuses:   statuses,
		InvalidNLL: last.InvalidNLL,
		Values:     make([]float64, len(keys)),
		ErrLo:      make([]float64, len(keys)),
		ErrHi:      make([]float64, len(keys)),
	}
	for k, key := range keys {
		p, err := s.ws.Parameter(key)
		if err != nil {
			return toys.TrialResult{}, errors.WithCode(errors.CodeConfigInvalid, err)
		}
		t.Values[k], t.ErrLo[k], t.ErrHi[k] = p.Value, p.ErrLo, p.ErrHi
	}
	poi, err := s.ws.Parameter(model.POI)
	if err != nil {
		return toys.TrialResult{}, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	t.POI = poi.Value
	return t, nil
}

// floating filters keys down to the parameters currently free in the fit.
func (s *ToyStudyService) floating(keys []string) ([]string, error) {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		p, err := s.ws.Parameter(key)
		if err != nil {
			return nil, errors.WithCode(errors.CodeConfigInvalid, err)
		}
		if !p.Constant {
			out = append(out, key)
		}
	}
	return out, nil
}
