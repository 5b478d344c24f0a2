package workspace

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"biastest/domain/model"
)

const cdfGrid = 4096

// inverseCDF samples a tabulated density by linear interpolation of its
// cumulative distribution.
type inverseCDF struct {
	grid []float64
	cdf  []float64
}

func newInverseCDF(f func(float64) float64, lo, hi float64) inverseCDF {
	t := inverseCDF{grid: make([]float64, cdfGrid+1), cdf: make([]float64, cdfGrid+1)}
	h := (hi - lo) / cdfGrid
	prev := f(lo)
	t.grid[0] = lo
	for i := 1; i <= cdfGrid; i++ {
		x := lo + float64(i)*h
		cur := f(x)
		t.grid[i] = x
		t.cdf[i] = t.cdf[i-1] + 0.5*(prev+cur)*h
		prev = cur
	}
	return t
}

func (t inverseCDF) total() float64 { return t.cdf[len(t.cdf)-1] }

func (t inverseCDF) sample(u float64) float64 {
	target := u * t.total()
	i := sort.SearchFloat64s(t.cdf, target)
	if i == 0 {
		return t.grid[0]
	}
	if i >= len(t.cdf) {
		return t.grid[len(t.grid)-1]
	}
	span := t.cdf[i] - t.cdf[i-1]
	if span <= 0 {
		return t.grid[i]
	}
	frac := (target - t.cdf[i-1]) / span
	return t.grid[i-1] + frac*(t.grid[i]-t.grid[i-1])
}

// component is one sampled source: a category's signal or background.
type component struct {
	cat    int
	weight float64
	draw   func(u float64) float64
}

// Generate draws n events from the model at its current parameters, or the
// rounded expected count when n is negative. Negative component yields are
// not sampled.
func (w *Workspace) Generate(rng *rand.Rand, n int) (*model.Dataset, error) {
	if rng == nil {
		return nil, fmt.Errorf("generate: nil random source")
	}
	if n < 0 {
		n = int(math.Max(0, math.Round(w.ExpectedEvents())))
	}

	x := w.vector()
	l := w.layout()
	var comps []component
	var total float64
	for c := range w.categories {
		st := l.yields(w, c, x)
		if st.nbkg > 0 {
			if !(st.width > 0) {
				return nil, fmt.Errorf("generate: category %s has non-positive background width", w.categories[c].name)
			}
			peak, width, tail := st.peak, st.width, st.tail
			table := newInverseCDF(func(v float64) float64 {
				return novosibirsk(v, peak, width, tail)
			}, w.obsMin, w.obsMax)
			if table.total() > 0 {
				comps = append(comps, component{cat: c, weight: st.nbkg, draw: table.sample})
				total += st.nbkg
			}
		}
		if st.nsig > 0 && st.sigma > 0 {
			tn := newTruncatedNormal(st.mu, st.sigma, w.obsMin, w.obsMax)
			if tn.weight > 0 {
				comps = append(comps, component{cat: c, weight: st.nsig, draw: tn.quantile})
				total += st.nsig
			}
		}
	}
	if n > 0 && total <= 0 {
		return nil, fmt.Errorf("generate: model has no positive yield")
	}

	ds := &model.Dataset{Name: fmt.Sprintf("toy_%d", n), Events: make([]model.Event, 0, n)}
	for i := 0; i < n; i++ {
		u := rng.Float64() * total
		k := 0
		for k < len(comps)-1 && u >= comps[k].weight {
			u -= comps[k].weight
			k++
		}
		ds.Events = append(ds.Events, model.Event{Category: comps[k].cat, X: comps[k].draw(rng.Float64())})
	}
	return ds, nil
}
