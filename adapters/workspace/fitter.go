package workspace

import (
	"biastest/adapters/fit"
	"biastest/domain/model"
	"biastest/ports"
)

// NewFitter binds the likelihood of ds to a minimizer started from the
// current parameter state.
func (w *Workspace) NewFitter(ds *model.Dataset, opts model.NLLOptions) (ports.Fitter, error) {
	nl, err := w.newLikelihood(ds, opts)
	if err != nil {
		return nil, err
	}
	if opts.Offset && !nl.offsetApplied {
		w.logger.Warn("NLL offset not applied for %s: likelihood is invalid at the starting point", ds.Name)
	}
	params := make([]fit.Param, len(w.params))
	for i, p := range w.params {
		params[i] = fit.Param{
			Name:     p.name,
			Value:    p.value,
			Min:      p.min,
			Max:      p.max,
			Step:     p.step,
			Constant: p.constant,
		}
	}
	return &boundFitter{w: w, m: fit.New(nl.eval, params, w.fitSettings)}, nil
}

// boundFitter copies fitted values and errors back into the workspace after
// every stage.
type boundFitter struct {
	w *Workspace
	m *fit.Minimizer
}

func (f *boundFitter) Migrad() model.StageResult { return f.sync(f.m.Migrad()) }

func (f *boundFitter) Hesse() model.StageResult { return f.sync(f.m.Hesse()) }

func (f *boundFitter) Minos(names ...string) model.StageResult {
	return f.sync(f.m.Minos(names...))
}

func (f *boundFitter) sync(r model.StageResult) model.StageResult {
	for i, res := range f.m.Results() {
		p := f.w.params[i]
		p.value = res.Value
		p.err, p.errLo, p.errHi = res.Error, res.ErrLo, res.ErrHi
	}
	return r
}
