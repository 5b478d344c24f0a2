package workspace

import (
	"math"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/stat/distuv"
)

// xi is 2*sqrt(ln 4), the FWHM of a unit Gaussian.
const xi = 2.3548200450309494

// novosibirsk is the unnormalized Novosibirsk line shape.
func novosibirsk(x, peak, width, tail float64) float64 {
	if math.Abs(tail) < 1e-7 {
		d := (x - peak) / width
		return math.Exp(-0.5 * d * d)
	}
	arg := 1 - (x-peak)*tail/width
	if arg < 1e-7 {
		return 0
	}
	lg := math.Log(arg)
	w0 := 2 / xi * math.Asinh(tail*xi/2)
	w02 := w0 * w0
	return math.Exp(-0.5/w02*lg*lg - 0.5*w02)
}

const quadPoints = 256

// novosibirskIntegral integrates the line shape over [lo, hi].
func novosibirskIntegral(lo, hi, peak, width, tail float64) float64 {
	f := func(x float64) float64 { return novosibirsk(x, peak, width, tail) }
	return quad.Fixed(f, lo, hi, quadPoints, quad.Legendre{}, 0)
}

// truncatedNormal is a Gaussian restricted to [lo, hi].
type truncatedNormal struct {
	dist   distuv.Normal
	cdfLo  float64
	weight float64
}

func newTruncatedNormal(mu, sigma, lo, hi float64) truncatedNormal {
	d := distuv.Normal{Mu: mu, Sigma: sigma}
	cl := d.CDF(lo)
	return truncatedNormal{dist: d, cdfLo: cl, weight: d.CDF(hi) - cl}
}

func (t truncatedNormal) pdf(x float64) float64 {
	if t.weight <= 0 {
		return 0
	}
	return t.dist.Prob(x) / t.weight
}

// quantile maps u in [0,1) onto the truncated range.
func (t truncatedNormal) quantile(u float64) float64 {
	p := t.cdfLo + u*t.weight
	p = math.Min(math.Max(p, 1e-300), 1-1e-16)
	return t.dist.Quantile(p)
}
