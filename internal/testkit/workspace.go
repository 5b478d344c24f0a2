package testkit

import (
	"fmt"
	"math"
	"math/rand/v2"

	"biastest/domain/core"
	"biastest/domain/model"
	"biastest/domain/toys"
	"biastest/ports"
)

// FitScript fixes the outcome of one fit cycle on a FakeWorkspace.
type FitScript struct {
	Migrad, Hesse, Minos int
	InvalidNLL           int

	// POI overrides the fitted signal strength; by default it is the mean
	// observable value of the dataset.
	POI *float64
}

// GenerateCall captures the model state seen by one Generate call.
type GenerateCall struct {
	N       int
	POI     model.Parameter
	BiasAdj float64
}

// FitterStart captures the model state when a fitter was created.
type FitterStart struct {
	Events  int
	POI     model.Parameter
	BiasAdj float64
	Opts    model.NLLOptions
}

// FakeWorkspace is an in-memory ports.Workspace that journals every
// mutation and returns scripted fit outcomes.
type FakeWorkspace struct {
	Names     []string
	Params    map[string]*model.Parameter
	Nuisances []string

	// ExpectedEvents = Background + SignalPerPb * (npbBSM + sign*bias_adj).
	Background  float64
	SignalPerPb float64

	Journal   toys.Plan
	Installed bool
	Sign      float64

	Scripts       []FitScript
	Generated     []GenerateCall
	ExpectedCalls []float64
	Fitters       []FitterStart
	MinosNames    [][]string

	fits int
}

var _ ports.Workspace = (*FakeWorkspace)(nil)

// NewFakeWorkspace declares every required parameter of the resonance model.
func NewFakeWorkspace() *FakeWorkspace {
	w := &FakeWorkspace{
		Params:      make(map[string]*model.Parameter),
		Nuisances:   model.NuisanceParameters(),
		Background:  100,
		SignalPerPb: 10,
	}
	for _, name := range model.RequiredParameters() {
		w.declare(name, 0, -5, 5, true)
	}
	w.Params[model.POI].Min, w.Params[model.POI].Max = -5, 50
	w.Params[model.POI].Constant = false
	for _, n := range w.Nuisances {
		w.Params[n].Constant = false
	}
	w.Params[model.Mass].Min, w.Params[model.Mass].Max, w.Params[model.Mass].Value = 200, 1000, 300
	return w
}

func (w *FakeWorkspace) declare(name string, v, lo, hi float64, constant bool) {
	w.Names = append(w.Names, name)
	w.Params[name] = &model.Parameter{Name: name, Value: v, Min: lo, Max: hi, Constant: constant}
}

// Remove drops a parameter so lookups on it fail.
func (w *FakeWorkspace) Remove(name string) {
	delete(w.Params, name)
}

func (w *FakeWorkspace) lookup(name string) (*model.Parameter, error) {
	p, ok := w.Params[name]
	if !ok {
		return nil, core.NewParameterNotFoundError(name)
	}
	return p, nil
}

func (w *FakeWorkspace) SetValue(name string, v float64) error {
	p, err := w.lookup(name)
	if err != nil {
		return err
	}
	p.Value = v
	w.Journal = append(w.Journal, toys.Mutation{Op: toys.OpSetValue, Param: name, Value: v})
	return nil
}

func (w *FakeWorkspace) SetConstant(name string, constant bool) error {
	p, err := w.lookup(name)
	if err != nil {
		return err
	}
	p.Constant = constant
	w.Journal = append(w.Journal, toys.Mutation{Op: toys.OpSetConstant, Param: name, Flag: constant})
	return nil
}

func (w *FakeWorkspace) SetMin(name string, v float64) error {
	p, err := w.lookup(name)
	if err != nil {
		return err
	}
	p.Min = v
	w.Journal = append(w.Journal, toys.Mutation{Op: toys.OpSetMin, Param: name, Value: v})
	return nil
}

func (w *FakeWorkspace) InstallBiasAdjust(sign float64) error {
	if w.Installed {
		return fmt.Errorf("%s already installed", model.BiasAdj)
	}
	w.Installed, w.Sign = true, sign
	w.declare(model.BiasAdj, 0, math.Inf(-1), math.Inf(1), true)
	w.Journal = append(w.Journal, toys.Mutation{Op: toys.OpEditPOI, Param: model.BiasAdj, Value: sign})
	return nil
}

func (w *FakeWorkspace) Parameter(name string) (model.Parameter, error) {
	p, err := w.lookup(name)
	if err != nil {
		return model.Parameter{}, err
	}
	return *p, nil
}

func (w *FakeWorkspace) NuisanceParameters() []string {
	return append([]string(nil), w.Nuisances...)
}

func (w *FakeWorkspace) biasAdj() float64 {
	if p, ok := w.Params[model.BiasAdj]; ok {
		return p.Value
	}
	return 0
}

func (w *FakeWorkspace) ExpectedEvents() float64 {
	w.ExpectedCalls = append(w.ExpectedCalls, w.biasAdj())
	s := w.Params[model.POI].Value
	if w.Installed {
		s += w.Sign * w.biasAdj()
	}
	return w.Background + w.SignalPerPb*s
}

// Generate draws n uniform events; a negative n uses the expected count.
func (w *FakeWorkspace) Generate(rng *rand.Rand, n int) (*model.Dataset, error) {
	w.Generated = append(w.Generated, GenerateCall{N: n, POI: *w.Params[model.POI], BiasAdj: w.biasAdj()})
	if n < 0 {
		n = int(math.Round(w.Background + w.SignalPerPb*w.Params[model.POI].Value))
	}
	ds := &model.Dataset{Name: fmt.Sprintf("fake_%d", len(w.Generated))}
	for i := 0; i < n; i++ {
		ds.Events = append(ds.Events, model.Event{Category: rng.IntN(len(model.Categories)), X: rng.Float64()})
	}
	return ds, nil
}

func (w *FakeWorkspace) NewFitter(ds *model.Dataset, opts model.NLLOptions) (ports.Fitter, error) {
	w.Fitters = append(w.Fitters, FitterStart{
		Events:  ds.Len(),
		POI:     *w.Params[model.POI],
		BiasAdj: w.biasAdj(),
		Opts:    opts,
	})
	var script FitScript
	if len(w.Scripts) > 0 {
		script = w.Scripts[w.fits%len(w.Scripts)]
	}
	w.fits++
	return &fakeFitter{w: w, ds: ds, script: script}, nil
}

type fakeFitter struct {
	w      *FakeWorkspace
	ds     *model.Dataset
	script FitScript
}

func (f *fakeFitter) result(stage string, status int) model.StageResult {
	return model.StageResult{Stage: stage, Status: status, InvalidNLL: f.script.InvalidNLL}
}

func (f *fakeFitter) floating() []*model.Parameter {
	var out []*model.Parameter
	for _, name := range f.w.Names {
		if p, ok := f.w.Params[name]; ok && !p.Constant {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeFitter) Migrad() model.StageResult {
	poi := 0.0
	if f.script.POI != nil {
		poi = *f.script.POI
	} else if n := f.ds.Len(); n > 0 {
		for _, e := range f.ds.Events {
			poi += e.X
		}
		poi /= float64(n)
	}
	for _, p := range f.floating() {
		p.Value = 0.01
		if p.Name == model.POI {
			p.Value = poi
		}
		p.Error, p.ErrLo, p.ErrHi = 0.1, -0.1, 0.1
	}
	return f.result(model.StageMigrad, f.script.Migrad)
}

func (f *fakeFitter) Hesse() model.StageResult {
	for _, p := range f.floating() {
		p.Error, p.ErrLo, p.ErrHi = 0.15, -0.15, 0.15
	}
	return f.result(model.StageHesse, f.script.Hesse)
}

func (f *fakeFitter) Minos(names ...string) model.StageResult {
	f.w.MinosNames = append(f.w.MinosNames, append([]string(nil), names...))
	for _, name := range names {
		if p, ok := f.w.Params[name]; ok && !p.Constant {
			p.ErrLo, p.ErrHi = -0.1, 0.2
		}
	}
	return f.result(model.StageMinos, f.script.Minos)
}
