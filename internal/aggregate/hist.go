package aggregate

import (
	"math"

	"go-hep.org/x/hep/hbook"
)

// Histogram fills an unweighted histogram spanning the sample range,
// widened slightly so the maximum lands inside the last bin.
func Histogram(data []float64, bins int) *hbook.H1D {
	if bins <= 0 {
		bins = 10
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range data {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if len(data) == 0 {
		lo, hi = -1, 1
	}
	if hi <= lo {
		lo, hi = lo-0.5, hi+0.5
	}
	pad := 1e-9 * (hi - lo)
	h := hbook.NewH1D(bins, lo, hi+pad)
	for _, v := range data {
		h.Fill(v, 1)
	}
	return h
}
