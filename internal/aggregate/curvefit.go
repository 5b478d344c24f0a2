package aggregate

import (
	"fmt"
	"math"

	"biastest/internal/errors"

	"go-hep.org/x/hep/fit"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// BiasModel is the bias-versus-injection shape a*(1-x)^b + c.
func BiasModel(x float64, ps []float64) float64 {
	return ps[0]*math.Pow(1-x, ps[1]) + ps[2]
}

// CurveFit is the result of a weighted least-squares fit.
type CurveFit struct {
	Params []float64
	// Cov is scaled by the reduced chi-square.
	Cov  *mat.SymDense
	Chi2 float64
}

// FitAdjustments fits BiasModel to the adjustments weighted by their
// spreads, starting from unit parameters.
func FitAdjustments(adj []Adjustment) (*CurveFit, error) {
	const npar = 3
	if len(adj) <= npar {
		return nil, errors.InvalidInput(fmt.Sprintf("bias fit needs more than %d points, have %d", npar, len(adj)))
	}
	xs := make([]float64, len(adj))
	ys := make([]float64, len(adj))
	sig := make([]float64, len(adj))
	for i, a := range adj {
		if !(a.Std > 0) {
			return nil, errors.InvalidInput(fmt.Sprintf("bias fit: zero spread at xs=%g", a.XSec))
		}
		xs[i], ys[i], sig[i] = a.XSec, a.Mean, a.Std
	}

	res, err := fit.Curve1D(fit.Func1D{
		F:   BiasModel,
		N:   npar,
		X:   xs,
		Y:   ys,
		Err: sig,
		Ps:  []float64{1, 1, 1},
	}, nil, &optimize.NelderMead{})
	if err != nil {
		return nil, errors.Wrap(err, "bias fit failed")
	}
	ps := append([]float64(nil), res.X...)

	residuals := func(dst, p []float64) {
		for i := range xs {
			dst[i] = (BiasModel(xs[i], p) - ys[i]) / sig[i]
		}
	}
	r := make([]float64, len(xs))
	residuals(r, ps)
	var chi2 float64
	for _, v := range r {
		chi2 += v * v
	}

	jac := mat.NewDense(len(xs), npar, nil)
	fd.Jacobian(jac, residuals, ps, &fd.JacobianSettings{Formula: fd.Central})
	var jtj mat.SymDense
	jtj.SymOuterK(1, jac.T())
	var chol mat.Cholesky
	if !chol.Factorize(&jtj) {
		return nil, errors.FitEngine("bias fit covariance is singular", nil)
	}
	cov := mat.NewSymDense(npar, nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil, errors.FitEngine("bias fit covariance inversion failed", err)
	}
	cov.ScaleSym(chi2/float64(len(xs)-npar), cov)

	return &CurveFit{Params: ps, Cov: cov, Chi2: chi2}, nil
}
