// Package workspace implements the resonance-search statistical model: two
// diphoton categories, each a Novosibirsk background plus a Gaussian
// signal, with unit-Gaussian constrained nuisance parameters. Workspaces are
// declared in YAML.
package workspace

import (
	"fmt"
	"math"

	"biastest/adapters/fit"
	"biastest/domain/core"
	"biastest/domain/model"
	"biastest/internal/logging"
	"biastest/ports"
)

type parameter struct {
	name     string
	value    float64
	min      float64
	max      float64
	step     float64
	constant bool
	nuisance bool
	err      float64
	errLo    float64
	errHi    float64
}

func (p *parameter) clamp(v float64) float64 {
	return math.Max(p.min, math.Min(p.max, v))
}

type category struct {
	name             string
	signalYieldPerPb float64
	resolution       float64
	spuriousSignal   float64
	normSigma        float64
	peakSigma        float64
	tailSigma        float64
	widthSigma       float64
}

// Workspace is a loaded model with mutable parameter state. It is not safe
// for concurrent use.
type Workspace struct {
	obsMin, obsMax float64
	bins           int
	biasSigma      float64
	categories     []category

	params []*parameter
	index  map[string]int

	adjustInstalled bool
	adjustSign      float64

	fitSettings fit.Settings
	logger      *logging.Logger
}

// Option configures a Workspace at load time.
type Option func(*Workspace)

// WithFitSettings sets the minimizer settings used by NewFitter.
func WithFitSettings(s fit.Settings) Option {
	return func(w *Workspace) { w.fitSettings = s }
}

// WithLogger sets the logger for fit setup warnings.
func WithLogger(l *logging.Logger) Option {
	return func(w *Workspace) { w.logger = l }
}

var _ ports.Workspace = (*Workspace)(nil)

// Load reads and validates a YAML workspace file.
func Load(path string, opts ...Option) (*Workspace, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	return build(doc, opts...), nil
}

// Parse builds a workspace from YAML bytes.
func Parse(data []byte, opts ...Option) (*Workspace, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	return build(doc, opts...), nil
}

func build(doc *document, opts ...Option) *Workspace {
	w := &Workspace{
		obsMin:      doc.Observable.Min,
		obsMax:      doc.Observable.Max,
		bins:        doc.NLLBins,
		biasSigma:   doc.Signal.BiasSigma,
		index:       make(map[string]int, len(doc.Parameters)+1),
		fitSettings: fit.DefaultSettings(),
		logger:      logging.NewNop(),
	}
	for _, name := range model.Categories {
		c, _ := doc.category(name)
		w.categories = append(w.categories, category{
			name:             c.Name,
			signalYieldPerPb: c.SignalYieldPerPb,
			resolution:       c.Resolution,
			spuriousSignal:   c.SpuriousSignal,
			normSigma:        c.NormSigma,
			peakSigma:        c.PeakSigma,
			tailSigma:        c.TailSigma,
			widthSigma:       c.WidthSigma,
		})
	}
	for _, d := range doc.Parameters {
		lo, hi := d.bounds()
		p := &parameter{
			name:     d.Name,
			min:      lo,
			max:      hi,
			step:     d.Step,
			constant: d.Constant,
			nuisance: d.Nuisance,
		}
		p.value = p.clamp(d.Value)
		if p.step <= 0 {
			p.step = defaultStep(p)
		}
		w.add(p)
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func defaultStep(p *parameter) float64 {
	if p.nuisance {
		return 1
	}
	if w := p.max - p.min; !math.IsInf(w, 0) {
		return w / 100
	}
	if v := math.Abs(p.value); v > 0 {
		return 0.1 * v
	}
	return 0.1
}

func (w *Workspace) add(p *parameter) {
	w.index[p.name] = len(w.params)
	w.params = append(w.params, p)
}

func (w *Workspace) lookup(name string) (*parameter, error) {
	i, ok := w.index[name]
	if !ok {
		return nil, core.NewParameterNotFoundError(name)
	}
	return w.params[i], nil
}

// SetValue sets a parameter value, clipped to its range.
func (w *Workspace) SetValue(name string, v float64) error {
	p, err := w.lookup(name)
	if err != nil {
		return err
	}
	p.value = p.clamp(v)
	return nil
}

// SetConstant fixes or releases a parameter.
func (w *Workspace) SetConstant(name string, constant bool) error {
	p, err := w.lookup(name)
	if err != nil {
		return err
	}
	p.constant = constant
	return nil
}

// SetMin moves the lower bound, clipping the current value into range.
func (w *Workspace) SetMin(name string, v float64) error {
	p, err := w.lookup(name)
	if err != nil {
		return err
	}
	if v > p.max {
		return fmt.Errorf("%s: min %g above max %g", name, v, p.max)
	}
	p.min = v
	p.value = p.clamp(p.value)
	return nil
}

// InstallBiasAdjust adds the constant bias_adj parameter and makes the
// signal strength seen by the likelihood npbBSM + sign*bias_adj.
func (w *Workspace) InstallBiasAdjust(sign float64) error {
	if sign != 1 && sign != -1 {
		return fmt.Errorf("bias adjust sign must be +1 or -1, got %g", sign)
	}
	if w.adjustInstalled {
		return fmt.Errorf("%s already installed", model.BiasAdj)
	}
	w.add(&parameter{
		name:     model.BiasAdj,
		min:      math.Inf(-1),
		max:      math.Inf(1),
		step:     0.01,
		constant: true,
	})
	w.adjustInstalled = true
	w.adjustSign = sign
	return nil
}

// Parameter returns a snapshot of a named parameter.
func (w *Workspace) Parameter(name string) (model.Parameter, error) {
	p, err := w.lookup(name)
	if err != nil {
		return model.Parameter{}, err
	}
	return model.Parameter{
		Name:     p.name,
		Value:    p.value,
		Min:      p.min,
		Max:      p.max,
		Constant: p.constant,
		Error:    p.err,
		ErrLo:    p.errLo,
		ErrHi:    p.errHi,
	}, nil
}

// NuisanceParameters lists the constrained parameters in declaration order.
func (w *Workspace) NuisanceParameters() []string {
	var out []string
	for _, p := range w.params {
		if p.nuisance {
			out = append(out, p.name)
		}
	}
	return out
}

// ExpectedEvents returns the total expected yield at the current parameters.
func (w *Workspace) ExpectedEvents() float64 {
	x := w.vector()
	l := w.layout()
	var total float64
	for c := range w.categories {
		y := l.yields(w, c, x)
		total += y.nsig + y.nbkg
	}
	return total
}

func (w *Workspace) vector() []float64 {
	x := make([]float64, len(w.params))
	for i, p := range w.params {
		x[i] = p.value
	}
	return x
}
