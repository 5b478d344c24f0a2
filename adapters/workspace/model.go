package workspace

import (
	"biastest/domain/model"
)

// layout maps model roles to positions in a parameter vector. It is fixed
// when a likelihood is built.
type layout struct {
	poi, mass, bias int
	adj             int
	adjSign         float64
	cats            []catLayout
	nuisances       []int
}

// catLayout positions one category's parameters. shape and constraint
// follow model.ShapeComponents and model.ConstraintComponents.
type catLayout struct {
	spurious   int
	normConst  int
	norm       int
	shape      [3]int
	constraint [3]int
}

func (w *Workspace) layout() layout {
	l := layout{
		poi:  w.index[model.POI],
		mass: w.index[model.Mass],
		bias: w.index[model.BiasNP],
		adj:  -1,
	}
	if w.adjustInstalled {
		l.adj = w.index[model.BiasAdj]
		l.adjSign = w.adjustSign
	}
	for _, c := range model.Categories {
		cl := catLayout{
			spurious:  w.index[model.SpuriousSignal(c)],
			normConst: w.index[model.NormConstraint(c)],
			norm:      w.index[model.NormParam(c)],
		}
		for k, comp := range model.ShapeComponents {
			cl.shape[k] = w.index[model.ShapeParam(comp, c)]
		}
		for k, comp := range model.ConstraintComponents {
			cl.constraint[k] = w.index[model.ShapeConstraint(comp, c)]
		}
		l.cats = append(l.cats, cl)
	}
	for i, p := range w.params {
		if p.nuisance {
			l.nuisances = append(l.nuisances, i)
		}
	}
	return l
}

// catState is the evaluated per-category model at one parameter point.
type catState struct {
	nsig, nbkg        float64
	peak, tail, width float64
	mu, sigma         float64
}

// signalStrength is the cross section seen by the likelihood.
func (l layout) signalStrength(x []float64) float64 {
	s := x[l.poi]
	if l.adj >= 0 {
		s += l.adjSign * x[l.adj]
	}
	return s
}

func (l layout) yields(w *Workspace, c int, x []float64) catState {
	cat := w.categories[c]
	cl := l.cats[c]
	mu := x[l.mass]
	return catState{
		nsig: l.signalStrength(x)*cat.signalYieldPerPb*(1+w.biasSigma*x[l.bias]) +
			cat.spuriousSignal*x[cl.spurious],
		nbkg:  x[cl.norm] * (1 + cat.normSigma*x[cl.normConst]),
		peak:  x[cl.shape[0]] + cat.peakSigma*x[cl.constraint[0]],
		tail:  x[cl.shape[1]] + cat.tailSigma*x[cl.constraint[1]],
		width: x[cl.shape[2]] + cat.widthSigma*x[cl.constraint[2]],
		mu:    mu,
		sigma: cat.resolution * mu,
	}
}
