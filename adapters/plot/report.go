package plot

import (
	"biastest/internal/aggregate"

	"gonum.org/v1/plot/plotter"
)

// Report chart names.
const (
	ChartMedianSignal   = "median_signal"
	ChartMedianBias     = "median_bias"
	ChartAverageBias    = "average_bias"
	ChartNFit           = "nfit"
	ChartMedianBiasFrac = "median_bias_frac"
	ChartAdjustments    = "adjustments"
)

// Report writes the bias summary charts and returns their paths.
func (r *Renderer) Report(ss []aggregate.XSecSeries, medians, means []aggregate.Adjustment) ([]string, error) {
	type chart struct {
		name, title, ylabel string
		pick                func(aggregate.XSecSeries) series
		keep                func(aggregate.XSecSeries) bool
		zero                bool
	}
	all := func(aggregate.XSecSeries) bool { return true }
	charts := []chart{
		{ChartMedianSignal, "Median fitted signal", "median xs [pb]", func(s aggregate.XSecSeries) series {
			return series{xsLabel(s.XSec), s.Masses(), s.Medians(), s.MedianErrs()}
		}, all, false},
		{ChartMedianBias, "Median bias", "median - injected [pb]", func(s aggregate.XSecSeries) series {
			return series{xsLabel(s.XSec), s.Masses(), s.MedianBias(), s.MedianErrs()}
		}, all, true},
		{ChartAverageBias, "Average bias", "mean - injected [pb]", func(s aggregate.XSecSeries) series {
			return series{xsLabel(s.XSec), s.Masses(), s.MeanBias(), s.MeanErrs()}
		}, all, true},
		{ChartNFit, "Fits per point", "fits", func(s aggregate.XSecSeries) series {
			return series{label: xsLabel(s.XSec), xs: s.Masses(), ys: s.NFits()}
		}, all, false},
		{ChartMedianBiasFrac, "Fractional median bias", "(median - injected) / injected", func(s aggregate.XSecSeries) series {
			return series{label: xsLabel(s.XSec), xs: s.Masses(), ys: s.FractionalBias()}
		}, func(s aggregate.XSecSeries) bool { return s.XSec > 0 }, true},
	}

	var masses [][]float64
	for _, s := range ss {
		masses = append(masses, s.Masses())
	}
	lo, hi := massRange(masses)

	var paths []string
	for _, c := range charts {
		p := newPlot(c.title, "mX [GeV]", c.ylabel)
		var in []series
		for _, s := range ss {
			if c.keep(s) {
				in = append(in, c.pick(s))
			}
		}
		if c.zero {
			l, err := hline(0, lo, hi)
			if err != nil {
				return paths, err
			}
			p.Add(l)
		}
		if err := lines(p, in); err != nil {
			return paths, err
		}
		path, err := r.save(p, c.name)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	path, err := r.adjustments(medians, means)
	if err != nil {
		return paths, err
	}
	return append(paths, path), nil
}

func (r *Renderer) adjustments(medians, means []aggregate.Adjustment) (string, error) {
	p := newPlot("Bias adjustment", "injected xs [pb]", "bias [pb]")
	col := func(a []aggregate.Adjustment) series {
		s := series{xs: make([]float64, len(a)), ys: make([]float64, len(a)), errs: make([]float64, len(a))}
		for i, v := range a {
			s.xs[i], s.ys[i], s.errs[i] = v.XSec, v.Mean, v.Std
		}
		return s
	}
	med, avg := col(medians), col(means)
	med.label, avg.label = "median", "mean"
	if err := lines(p, []series{med, avg}); err != nil {
		return "", err
	}
	if len(medians) > 0 {
		l, err := hline(0, medians[0].XSec, medians[len(medians)-1].XSec)
		if err != nil {
			return "", err
		}
		p.Add(l)
	}
	return r.save(p, ChartAdjustments)
}

// FitCurve overlays a fitted bias model on the median adjustments.
func (r *Renderer) FitCurve(medians []aggregate.Adjustment, fit *aggregate.CurveFit) (string, error) {
	p := newPlot("Bias adjustment fit", "injected xs [pb]", "median bias [pb]")
	s := series{label: "median"}
	for _, a := range medians {
		s.xs = append(s.xs, a.XSec)
		s.ys = append(s.ys, a.Mean)
		s.errs = append(s.errs, a.Std)
	}
	if err := lines(p, []series{s}); err != nil {
		return "", err
	}
	f := plotter.NewFunction(func(x float64) float64 { return aggregate.BiasModel(x, fit.Params) })
	f.Samples = 200
	if len(s.xs) > 0 {
		f.XMin, f.XMax = s.xs[0], s.xs[len(s.xs)-1]
	}
	p.Add(f)
	p.Legend.Add("a(1-x)^b + c", f)
	return r.save(p, ChartAdjustments+"_fit")
}
