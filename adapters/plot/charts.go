// Package plot renders the bias and pull summaries as chart files.
package plot

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"biastest/internal/errors"
	"biastest/internal/logging"
	"biastest/ports"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Chart sizes.
const (
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch
)

// Renderer writes charts into one directory in one file format.
type Renderer struct {
	dir    string
	format string
	logger *logging.Logger
}

var _ ports.ChartRenderer = (*Renderer)(nil)

// NewRenderer creates a renderer. format is a file extension accepted by
// gonum/plot (pdf, png, svg, eps).
func NewRenderer(dir, format string, logger *logging.Logger) *Renderer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if format == "" {
		format = "pdf"
	}
	return &Renderer{dir: dir, format: format, logger: logger}
}

// Path returns the output file of a named chart.
func (r *Renderer) Path(name string) string {
	return filepath.Join(r.dir, name+"."+r.format)
}

// errPoints feeds plotter.NewYErrorBars.
type errPoints struct {
	plotter.XYs
	plotter.YErrors
}

// finite drops points whose coordinates are NaN or infinite, keeping errs
// aligned.
func finite(xs, ys, errs []float64) (plotter.XYs, []float64) {
	var pts plotter.XYs
	var kept []float64
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsInf(xs[i], 0) || math.IsNaN(ys[i]) || math.IsInf(ys[i], 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: xs[i], Y: ys[i]})
		if errs != nil {
			kept = append(kept, errs[i])
		}
	}
	return pts, kept
}

// yerrs converts symmetric errors, mapping NaN to zero. ok is false when
// every error is NaN.
func yerrs(errs []float64) (plotter.YErrors, bool) {
	out := make(plotter.YErrors, len(errs))
	ok := false
	for i, e := range errs {
		if math.IsNaN(e) {
			continue
		}
		ok = true
		out[i].Low, out[i].High = e, e
	}
	return out, ok
}

type series struct {
	label  string
	xs, ys []float64
	errs   []float64
}

// lines draws one line-with-points per series plus optional error bars.
func lines(p *plot.Plot, ss []series) error {
	for i, s := range ss {
		pts, errs := finite(s.xs, s.ys, s.errs)
		if len(pts) == 0 {
			continue
		}
		l, sc, err := plotter.NewLinePoints(pts)
		if err != nil {
			return err
		}
		c := plotutil.Color(i)
		l.Color = c
		sc.GlyphStyle.Color = c
		sc.GlyphStyle.Shape = plotutil.Shape(i)
		p.Add(l, sc)
		p.Legend.Add(s.label, l, sc)

		if errs == nil {
			continue
		}
		if ye, ok := yerrs(errs); ok {
			eb, err := plotter.NewYErrorBars(errPoints{XYs: pts, YErrors: ye})
			if err != nil {
				return err
			}
			eb.Color = c
			p.Add(eb)
		}
	}
	return nil
}

func (r *Renderer) save(p *plot.Plot, name string) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", errors.IOError(r.dir, err)
	}
	path := r.Path(name)
	if err := p.Save(Width, Height, path); err != nil {
		return "", errors.IOError(path, err)
	}
	r.logger.Debug("Wrote chart %s", path)
	return path, nil
}

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	return p
}

func xsLabel(xs float64) string { return fmt.Sprintf("xs = %g pb", xs) }

// hline returns a dashed horizontal reference line over [x0, x1].
func hline(y, x0, x1 float64) (*plotter.Line, error) {
	l, err := plotter.NewLine(plotter.XYs{{X: x0, Y: y}, {X: x1, Y: y}})
	if err != nil {
		return nil, err
	}
	l.Color = color.Gray{Y: 128}
	l.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	return l, nil
}

func massRange(masses [][]float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, ms := range masses {
		for _, m := range ms {
			lo, hi = math.Min(lo, m), math.Max(hi, m)
		}
	}
	if math.IsInf(lo, 0) {
		return 0, 1
	}
	return lo, hi
}
