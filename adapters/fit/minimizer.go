// Package fit implements a Minuit-style minimizer on top of gonum: a
// quasi-Newton minimization with parabolic errors, a Hesse refinement and
// Minos profile-likelihood intervals.
package fit

import (
	"math"

	"biastest/domain/model"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Objective evaluates the negative log-likelihood at a full external
// parameter vector. ok=false marks an invalid evaluation.
type Objective func(x []float64) (v float64, ok bool)

// Settings controls the minimizer.
type Settings struct {
	// MaxCalls bounds the objective evaluations of a single minimization.
	MaxCalls int
	// Tolerance scales the EDM convergence threshold.
	Tolerance float64
	// MinosMaxIter bounds profile fits per Minos crossing.
	MinosMaxIter int
	// Up is the objective change defining one standard deviation.
	Up float64
}

// DefaultSettings mirrors the usual Minuit defaults for a likelihood fit.
func DefaultSettings() Settings {
	return Settings{MaxCalls: 20000, Tolerance: 1, MinosMaxIter: 40, Up: 0.5}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxCalls <= 0 {
		s.MaxCalls = d.MaxCalls
	}
	if s.Tolerance <= 0 {
		s.Tolerance = d.Tolerance
	}
	if s.MinosMaxIter <= 0 {
		s.MinosMaxIter = d.MinosMaxIter
	}
	if s.Up <= 0 {
		s.Up = d.Up
	}
	return s
}

func (s Settings) edmMax() float64 { return 0.002 * s.Tolerance * s.Up }

// Result is the post-fit state of one parameter.
type Result struct {
	Name     string
	Value    float64
	Error    float64
	ErrLo    float64
	ErrHi    float64
	HasMinos bool
}

// Minimizer owns the parameter state of one fit. It is not safe for
// concurrent use.
type Minimizer struct {
	nll      Objective
	params   []Param
	settings Settings

	x      []float64
	errs   []float64
	errLo  []float64
	errHi  []float64
	minos  []bool
	fmin   float64
	cov    *mat.SymDense
	hasMin bool

	calls    int
	invalid  int
	maxSeen  float64
	haveSeen bool
}

// New creates a minimizer starting from the parameter values in params.
func New(nll Objective, params []Param, settings Settings) *Minimizer {
	m := &Minimizer{
		nll:      nll,
		params:   append([]Param(nil), params...),
		settings: settings.withDefaults(),
		x:        make([]float64, len(params)),
		errs:     make([]float64, len(params)),
		errLo:    make([]float64, len(params)),
		errHi:    make([]float64, len(params)),
		minos:    make([]bool, len(params)),
	}
	for i, p := range m.params {
		m.x[i] = p.clampToBounds(p.Value)
	}
	return m
}

// Results reports every parameter, constants included.
func (m *Minimizer) Results() []Result {
	out := make([]Result, len(m.params))
	for i, p := range m.params {
		r := Result{Name: p.Name, Value: m.x[i]}
		if !p.Constant {
			r.Error = m.errs[i]
			r.ErrLo, r.ErrHi = -m.errs[i], m.errs[i]
			if m.minos[i] {
				r.ErrLo, r.ErrHi, r.HasMinos = m.errLo[i], m.errHi[i], true
			}
		}
		out[i] = r
	}
	return out
}

func (m *Minimizer) free() []int {
	var idx []int
	for i, p := range m.params {
		if !p.Constant {
			idx = append(idx, i)
		}
	}
	return idx
}

// eval counts calls and replaces invalid evaluations by a penalty above the
// largest valid value seen so far.
func (m *Minimizer) eval(x []float64) float64 {
	m.calls++
	v, ok := m.nll(x)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		m.invalid++
		if !m.haveSeen {
			return 1e30
		}
		return m.maxSeen + 1e3
	}
	if !m.haveSeen || v > m.maxSeen {
		m.maxSeen, m.haveSeen = v, true
	}
	return v
}

func (m *Minimizer) beginStage(stage string) model.StageResult {
	m.calls, m.invalid = 0, 0
	return model.StageResult{Stage: stage}
}

func (m *Minimizer) endStage(r model.StageResult) model.StageResult {
	r.InvalidNLL = m.invalid
	r.Calls = m.calls
	r.MinNLL = m.fmin
	return r
}

type subsetResult struct {
	x      []float64
	f      float64
	status int
	// settled is set when the optimizer stopped with an error but ended at
	// a finite value no higher than its start.
	settled bool
}

// profileStatus judges a profile minimization. A line search that stalls
// after reaching the floor still gives a usable profile value.
func (r subsetResult) profileStatus() int {
	if r.status == model.StatusFailed && r.settled {
		return model.StatusOK
	}
	return r.status
}

// minimizeSubset minimizes over the parameters in idx, holding the rest of
// start fixed.
func (m *Minimizer) minimizeSubset(idx []int, start []float64) subsetResult {
	full := append([]float64(nil), start...)
	if len(idx) == 0 {
		return subsetResult{x: full, f: m.eval(full), status: model.StatusOK}
	}

	u0 := make([]float64, len(idx))
	for k, i := range idx {
		u0[k] = m.params[i].toInternal(full[i])
	}
	f := func(u []float64) float64 {
		for k, i := range idx {
			full[i] = m.params[i].toExternal(u[k])
		}
		return m.eval(full)
	}
	grad := func(g, u []float64) {
		fd.Gradient(g, f, u, &fd.Settings{Formula: fd.Central, Step: 1e-5})
	}

	perIter := 2*len(idx) + 4
	settings := &optimize.Settings{
		GradientThreshold: 1e-6,
		MajorIterations:   max(m.settings.MaxCalls/perIter, 1),
		FuncEvaluations:   m.settings.MaxCalls,
		Converger:         &optimize.FunctionConverge{Absolute: 1e-4 * m.settings.edmMax(), Iterations: 5},
	}
	before := m.calls
	f0 := f(u0)
	res, err := optimize.Minimize(optimize.Problem{Func: f, Grad: grad}, u0, settings, &optimize.BFGS{})

	out := append([]float64(nil), start...)
	if res == nil {
		return subsetResult{x: out, f: m.eval(out), status: model.StatusFailed}
	}
	for k, i := range idx {
		out[i] = m.params[i].toExternal(res.X[k])
	}
	status := model.StatusOK
	switch {
	case res.Status == optimize.IterationLimit, res.Status == optimize.FunctionEvaluationLimit,
		m.calls-before >= m.settings.MaxCalls:
		status = model.StatusCallLimit
	case err != nil:
		status = model.StatusFailed
	}
	settled := !math.IsNaN(res.F) && !math.IsInf(res.F, 0) && res.F <= f0
	return subsetResult{x: out, f: res.F, status: status, settled: settled}
}

// scales picks per-parameter finite-difference scales: the current error
// when known, else the declared step, shrunk to stay inside the bounds.
func (m *Minimizer) scales(x []float64, idx []int, h float64) []float64 {
	s := make([]float64, len(idx))
	for k, i := range idx {
		p := m.params[i]
		v := m.errs[i]
		if !(v > 0) {
			v = p.step()
		}
		if p.lowerBounded() {
			if room := (x[i] - p.Min) / (2 * h); room > 0 && room < v {
				v = room
			}
		}
		if p.upperBounded() {
			if room := (p.Max - x[i]) / (2 * h); room > 0 && room < v {
				v = room
			}
		}
		if !(v > 0) {
			v = 1e-6
		}
		s[k] = v
	}
	return s
}

// curvature evaluates the gradient and covariance at x over idx in
// external coordinates. ok=false means the Hessian was not positive definite.
func (m *Minimizer) curvature(x []float64, idx []int) (cov *mat.SymDense, edm float64, ok bool) {
	const h = 0.1
	n := len(idx)
	s := m.scales(x, idx, h)
	full := append([]float64(nil), x...)
	g := func(v []float64) float64 {
		for k, i := range idx {
			full[i] = x[i] + s[k]*v[k]
		}
		return m.eval(full)
	}
	origin := make([]float64, n)

	hs := mat.NewSymDense(n, nil)
	fd.Hessian(hs, g, origin, &fd.Settings{Step: h})
	grad := make([]float64, n)
	fd.Gradient(grad, g, origin, &fd.Settings{Formula: fd.Central, Step: 1e-3})

	var chol mat.Cholesky
	vs := mat.NewSymDense(n, nil)
	ok = chol.Factorize(hs)
	if ok {
		if err := chol.InverseTo(vs); err != nil {
			ok = false
		}
	}
	if !ok {
		for k := 0; k < n; k++ {
			d := math.Abs(hs.At(k, k))
			if d == 0 {
				d = 1
			}
			vs.SetSym(k, k, 1/d)
		}
	}

	gv := mat.NewVecDense(n, grad)
	var tmp mat.VecDense
	tmp.MulVec(vs, gv)
	edm = 0.5 * mat.Dot(gv, &tmp) * 2 * m.settings.Up

	cov = mat.NewSymDense(n, nil)
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			cov.SetSym(a, b, 2*m.settings.Up*vs.At(a, b)*s[a]*s[b])
		}
	}
	return cov, edm, ok
}

func (m *Minimizer) storeErrors(idx []int, cov *mat.SymDense) {
	m.cov = cov
	for k, i := range idx {
		m.errs[i] = finiteError(math.Sqrt(math.Abs(cov.At(k, k))))
		m.minos[i] = false
	}
}

// finiteError maps an overflowed error to the largest float and an
// undefined one to zero.
func finiteError(e float64) float64 {
	switch {
	case math.IsNaN(e):
		return 0
	case math.IsInf(e, 0):
		return math.MaxFloat64
	}
	return e
}

// Migrad minimizes over all floating parameters and sets parabolic errors.
func (m *Minimizer) Migrad() model.StageResult {
	r := m.beginStage(model.StageMigrad)
	idx := m.free()
	sub := m.minimizeSubset(idx, m.x)
	m.x, m.fmin, m.hasMin = sub.x, sub.f, true

	if len(idx) == 0 {
		r.Status = sub.status
		return m.endStage(r)
	}
	cov, edm, posdef := m.curvature(m.x, idx)
	m.storeErrors(idx, cov)
	r.EDM = edm

	switch {
	case sub.status == model.StatusCallLimit:
		r.Status = model.StatusCallLimit
	case edm <= m.settings.edmMax():
		r.Status = model.StatusOK
	case sub.status == model.StatusFailed:
		r.Status = model.StatusFailed
	default:
		r.Status = model.StatusEDMAboveMax
	}
	if !posdef && r.Status == model.StatusOK {
		r.Status = model.StatusNotPosDef
	}
	return m.endStage(r)
}

// Hesse recomputes the covariance at the current point.
func (m *Minimizer) Hesse() model.StageResult {
	r := m.beginStage(model.StageHesse)
	idx := m.free()
	if !m.hasMin {
		m.fmin = m.eval(m.x)
		m.hasMin = true
	}
	if len(idx) == 0 {
		return m.endStage(r)
	}
	cov, edm, posdef := m.curvature(m.x, idx)
	m.storeErrors(idx, cov)
	r.EDM = edm
	if !posdef {
		r.Status = model.StatusNotPosDef
	}
	return m.endStage(r)
}

// Covariance returns the covariance of the floating parameters from the
// last Migrad or Hesse, or nil.
func (m *Minimizer) Covariance() *mat.SymDense { return m.cov }
