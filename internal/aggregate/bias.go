package aggregate

import (
	"math"
	"math/rand/v2"
	"sort"

	"biastest/domain/toys"
)

// GroupKey identifies one injected configuration.
type GroupKey struct {
	XSec float64
	Mass int
}

// GroupPoints concatenates fitted signal strengths by configuration, in
// record order.
func GroupPoints(recs []*toys.RunRecord) map[GroupKey][]float64 {
	out := make(map[GroupKey][]float64)
	for _, r := range recs {
		k := GroupKey{XSec: r.Header.XSec, Mass: r.Header.Mass}
		out[k] = append(out[k], r.POIs...)
	}
	return out
}

// MassPoint summarizes the fits of one configuration. The bootstrap errors
// are NaN unless requested.
type MassPoint struct {
	Mass      int
	N         int
	Mean      float64
	Median    float64
	MeanErr   float64
	MedianErr float64
}

// XSecSeries holds one injected cross section across masses, in ascending
// mass order.
type XSecSeries struct {
	XSec   float64
	Points []MassPoint
}

// Masses returns the mass axis.
func (s XSecSeries) Masses() []float64 {
	return s.column(func(p MassPoint) float64 { return float64(p.Mass) })
}

// NFits returns the number of fits per mass.
func (s XSecSeries) NFits() []float64 {
	return s.column(func(p MassPoint) float64 { return float64(p.N) })
}

// Medians returns the median fitted signal per mass.
func (s XSecSeries) Medians() []float64 {
	return s.column(func(p MassPoint) float64 { return p.Median })
}

// MedianBias returns median minus injected per mass.
func (s XSecSeries) MedianBias() []float64 {
	return s.column(func(p MassPoint) float64 { return p.Median - s.XSec })
}

// MeanBias returns mean minus injected per mass.
func (s XSecSeries) MeanBias() []float64 {
	return s.column(func(p MassPoint) float64 { return p.Mean - s.XSec })
}

// FractionalBias returns the median bias divided by the injected value.
// Meaningful only for positive injections.
func (s XSecSeries) FractionalBias() []float64 {
	return s.column(func(p MassPoint) float64 { return (p.Median - s.XSec) / s.XSec })
}

// MedianErrs returns the bootstrap errors of the medians.
func (s XSecSeries) MedianErrs() []float64 {
	return s.column(func(p MassPoint) float64 { return p.MedianErr })
}

// MeanErrs returns the bootstrap errors of the means.
func (s XSecSeries) MeanErrs() []float64 {
	return s.column(func(p MassPoint) float64 { return p.MeanErr })
}

func (s XSecSeries) column(f func(MassPoint) float64) []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = f(p)
	}
	return out
}

// Summarize reduces grouped points into series ordered by descending cross
// section and ascending mass. With bootstrap > 0 the median and mean errors
// are estimated from that many resamples of a stream seeded by seed.
func Summarize(groups map[GroupKey][]float64, bootstrap int, seed int64) []XSecSeries {
	byXS := make(map[float64][]int)
	for k := range groups {
		byXS[k.XSec] = append(byXS[k.XSec], k.Mass)
	}
	xss := make([]float64, 0, len(byXS))
	for xs := range byXS {
		xss = append(xss, xs)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(xss)))

	rng := rand.New(rand.NewPCG(uint64(seed), 0))
	series := make([]XSecSeries, 0, len(xss))
	for _, xs := range xss {
		masses := byXS[xs]
		sort.Ints(masses)
		s := XSecSeries{XSec: xs}
		for _, m := range masses {
			data := groups[GroupKey{XSec: xs, Mass: m}]
			p := MassPoint{
				Mass:      m,
				N:         len(data),
				Mean:      Mean(data),
				Median:    Median(data),
				MeanErr:   math.NaN(),
				MedianErr: math.NaN(),
			}
			if bootstrap > 0 {
				p.MedianErr = Bootstrap(data, bootstrap, rng, Median)
				p.MeanErr = Bootstrap(data, bootstrap, rng, Mean)
			}
			s.Points = append(s.Points, p)
		}
		series = append(series, s)
	}
	return series
}

// Adjustment is the average bias over masses for one injection.
type Adjustment struct {
	XSec float64
	Mean float64
	Std  float64
}

// Adjustments returns the median-based and mean-based bias adjustments,
// sorted by ascending cross section.
func Adjustments(series []XSecSeries) (medians, means []Adjustment) {
	for _, s := range series {
		mb, ab := s.MedianBias(), s.MeanBias()
		medians = append(medians, Adjustment{XSec: s.XSec, Mean: Mean(mb), Std: Std(mb)})
		means = append(means, Adjustment{XSec: s.XSec, Mean: Mean(ab), Std: Std(ab)})
	}
	byXS := func(a []Adjustment) func(i, j int) bool {
		return func(i, j int) bool { return a[i].XSec < a[j].XSec }
	}
	sort.Slice(medians, byXS(medians))
	sort.Slice(means, byXS(means))
	return medians, means
}
