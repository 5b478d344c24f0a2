package aggregate

import (
	"fmt"
	"math"
	"sort"

	"biastest/domain/core"
	"biastest/domain/model"
	"biastest/domain/toys"
)

// DefaultExcludedXSec is skipped by the pull summary unless overridden.
var DefaultExcludedXSec = []float64{0.75}

// PullOptions selects what the pull summary reads.
type PullOptions struct {
	Variable  string
	ExcludeXS []float64
	OnlyGood  bool
}

// PullPoint is the pull distribution of one configuration.
type PullPoint struct {
	Mass       int
	Pulls      []float64
	Values     []float64
	Errs       []float64
	Pull       Summary
	Value      Summary
	NonZero    Summary
	Err        Summary
	MedianBias float64
}

// PullSeries holds one injected cross section in ascending mass order.
type PullSeries struct {
	XSec   float64
	Points []PullPoint
}

// SkipReport counts trials dropped for a bad status in one record.
type SkipReport struct {
	XSec    float64
	Mass    int
	Skipped int
}

func (r SkipReport) String() string {
	return fmt.Sprintf("Skipped %d trials due to error status. (xs=%g, m=%d)", r.Skipped, r.XSec, r.Mass)
}

type trialValue struct {
	v, lo, hi float64
	poi       float64
}

// Pull computes (v - expected)/|err| where err is the upper error when the
// value lies below expected and the lower error otherwise. ok is false for
// a zero error.
func Pull(v, lo, hi, expected float64) (pull, err float64, ok bool) {
	err = lo
	if v < expected {
		err = hi
	}
	err = math.Abs(err)
	if err == 0 {
		return 0, 0, false
	}
	return (v - expected) / err, err, true
}

// Pulls builds the pull summary over records, ordered by ascending cross
// section. The expected value is the injected cross section for the signal
// strength and zero for any nuisance.
func Pulls(recs []*toys.RunRecord, opts PullOptions) ([]PullSeries, []SkipReport, error) {
	if opts.Variable == "" {
		opts.Variable = model.POI
	}
	excluded := make(map[float64]bool, len(opts.ExcludeXS))
	for _, xs := range opts.ExcludeXS {
		excluded[xs] = true
	}

	trials := make(map[GroupKey][]trialValue)
	var skips []SkipReport
	for _, r := range recs {
		xs, mass := r.Header.XSec, r.Header.Mass
		if excluded[xs] {
			continue
		}
		k := GroupKey{XSec: xs, Mass: mass}
		if _, ok := trials[k]; !ok {
			trials[k] = nil
		}
		col := -1
		for i, key := range r.Keys {
			if key == opts.Variable {
				col = i
			}
		}
		if col < 0 && r.Len() > 0 {
			return nil, nil, fmt.Errorf("record xs=%g m=%d: %w", xs, mass, core.NewParameterNotFoundError(opts.Variable))
		}

		skipped := 0
		for i := 0; i < r.Len(); i++ {
			t := r.Trial(i)
			if opts.OnlyGood && t.MaxStatus() > 0 {
				skipped++
				continue
			}
			trials[k] = append(trials[k], trialValue{v: t.Values[col], lo: t.ErrLo[col], hi: t.ErrHi[col], poi: t.POI})
		}
		if skipped > 0 {
			skips = append(skips, SkipReport{XSec: xs, Mass: mass, Skipped: skipped})
		}
	}

	byXS := make(map[float64][]int)
	for k := range trials {
		byXS[k.XSec] = append(byXS[k.XSec], k.Mass)
	}
	xss := make([]float64, 0, len(byXS))
	for xs := range byXS {
		xss = append(xss, xs)
	}
	sort.Float64s(xss)

	var out []PullSeries
	for _, xs := range xss {
		masses := byXS[xs]
		sort.Ints(masses)
		expected := 0.0
		if opts.Variable == model.POI {
			expected = xs
		}
		s := PullSeries{XSec: xs}
		for _, m := range masses {
			s.Points = append(s.Points, pullPoint(m, xs, expected, trials[GroupKey{XSec: xs, Mass: m}]))
		}
		out = append(out, s)
	}
	return out, skips, nil
}

func pullPoint(mass int, xs, expected float64, ts []trialValue) PullPoint {
	p := PullPoint{Mass: mass}
	var nonZero, bias []float64
	for _, t := range ts {
		p.Values = append(p.Values, t.v)
		bias = append(bias, t.poi-xs)
		err := t.lo
		if t.v < expected {
			err = t.hi
		}
		p.Errs = append(p.Errs, math.Abs(err))
		if pull, _, ok := Pull(t.v, t.lo, t.hi, expected); ok {
			p.Pulls = append(p.Pulls, pull)
			nonZero = append(nonZero, t.v)
		}
	}
	p.Pull = Describe(p.Pulls)
	p.Value = Describe(p.Values)
	p.NonZero = Describe(nonZero)
	p.Err = Describe(p.Errs)
	p.MedianBias = Median(bias)
	return p
}

// PullMeans returns the mean pull per mass.
func (s PullSeries) PullMeans() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Pull.Mean
	}
	return out
}

// PullStds returns the pull spread per mass.
func (s PullSeries) PullStds() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Pull.Std
	}
	return out
}

// Masses returns the mass axis.
func (s PullSeries) Masses() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = float64(p.Mass)
	}
	return out
}

// MedianBiases returns the median signal bias per mass.
func (s PullSeries) MedianBiases() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.MedianBias
	}
	return out
}
