package plot

import (
	"fmt"
	"image/color"

	"biastest/internal/aggregate"

	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/plotter"
)

// Pulls writes the pull summary with its unit band and the median-bias
// chart. With showAll it also writes one pull histogram per point.
func (r *Renderer) Pulls(ss []aggregate.PullSeries, variable string, showAll bool) ([]string, error) {
	var masses [][]float64
	for _, s := range ss {
		masses = append(masses, s.Masses())
	}
	lo, hi := massRange(masses)

	p := hplot.New()
	p.Title.Text = "Pulls: " + variable
	p.X.Label.Text = "mX [GeV]"
	p.Y.Label.Text = "pull"
	p.Legend.Top = true
	p.Add(hplot.NewBand(color.Gray{Y: 220},
		plotter.XYs{{X: lo, Y: 1}, {X: hi, Y: 1}},
		plotter.XYs{{X: lo, Y: -1}, {X: hi, Y: -1}},
	))
	zero, err := hline(0, lo, hi)
	if err != nil {
		return nil, err
	}
	p.Add(zero)

	var in []series
	for _, s := range ss {
		in = append(in, series{xsLabel(s.XSec), s.Masses(), s.PullMeans(), s.PullStds()})
	}
	if err := lines(p.Plot, in); err != nil {
		return nil, err
	}
	var paths []string
	path, err := r.save(p.Plot, "pulls_"+variable)
	if err != nil {
		return nil, err
	}
	paths = append(paths, path)

	bp := newPlot("Median signal bias", "mX [GeV]", "median - injected [pb]")
	bp.Add(zero)
	in = in[:0]
	for _, s := range ss {
		in = append(in, series{label: xsLabel(s.XSec), xs: s.Masses(), ys: s.MedianBiases()})
	}
	if err := lines(bp, in); err != nil {
		return paths, err
	}
	if path, err = r.save(bp, "pulls_median_bias"); err != nil {
		return paths, err
	}
	paths = append(paths, path)

	if !showAll {
		return paths, nil
	}
	for _, s := range ss {
		for _, pt := range s.Points {
			path, err := r.histogram(variable, s.XSec, pt)
			if err != nil {
				return paths, err
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func (r *Renderer) histogram(variable string, xs float64, pt aggregate.PullPoint) (string, error) {
	p := hplot.New()
	p.Title.Text = fmt.Sprintf("%s pulls, xs = %g pb, mX = %d GeV", variable, xs, pt.Mass)
	p.X.Label.Text = "pull"
	p.Y.Label.Text = "trials"

	h := hplot.NewH1D(aggregate.Histogram(pt.Pulls, 20))
	h.Infos.Style = hplot.HInfoSummary
	p.Add(h, hplot.NewGrid())
	return r.save(p.Plot, fmt.Sprintf("pulls_%s_x%g_m%d", variable, xs, pt.Mass))
}
