package toys

import (
	"fmt"

	"biastest/domain/core"
)

// AdjustKind tags the bias-adjust variant.
type AdjustKind string

const (
	AdjustNone     AdjustKind = "none"
	AdjustOffset   AdjustKind = "offset"
	AdjustFunction AdjustKind = "function"
)

// Adjust signs: the adjusted signal strength is npbBSM + Sign*bias_adj.
const (
	SignAdd      = 1.0
	SignSubtract = -1.0
)

// AdjustStrategy selects how the signal-strength expression is shifted.
// Offset is used by AdjustOffset, Selector by AdjustFunction.
type AdjustStrategy struct {
	Kind     AdjustKind `json:"kind"`
	Offset   float64    `json:"offset,omitempty"`
	Selector int        `json:"selector,omitempty"`
	Sign     float64    `json:"sign,omitempty"`
}

// NoAdjust returns the strategy that leaves the model untouched.
func NoAdjust() AdjustStrategy { return AdjustStrategy{Kind: AdjustNone} }

// OffsetAdjust shifts the signal strength by a fixed scalar.
func OffsetAdjust(offset, sign float64) AdjustStrategy {
	return AdjustStrategy{Kind: AdjustOffset, Offset: offset, Sign: sign}
}

// FunctionAdjust shifts the signal strength by a value looked up from mass
// and injected cross section.
func FunctionAdjust(selector int, sign float64) AdjustStrategy {
	return AdjustStrategy{Kind: AdjustFunction, Selector: selector, Sign: sign}
}

// Enabled reports whether the model must be edited.
func (a AdjustStrategy) Enabled() bool {
	return a.Kind == AdjustOffset || a.Kind == AdjustFunction
}

// Validate rejects unknown kinds, signs and function selectors.
func (a AdjustStrategy) Validate() error {
	switch a.Kind {
	case AdjustNone, "":
		return nil
	case AdjustOffset:
	case AdjustFunction:
		if _, err := BiasAdjustFunction(a.Selector); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: adjust kind %q", core.ErrInvalidOptions, a.Kind)
	}
	if a.Sign != SignAdd && a.Sign != SignSubtract {
		return fmt.Errorf("%w: adjust sign %g", core.ErrInvalidOptions, a.Sign)
	}
	return nil
}

// Resolve returns the scalar offset for the given mass and cross section.
func (a AdjustStrategy) Resolve(mass int, xs float64) (float64, error) {
	switch a.Kind {
	case AdjustOffset:
		return a.Offset, nil
	case AdjustFunction:
		fn, err := BiasAdjustFunction(a.Selector)
		if err != nil {
			return 0, err
		}
		v, ok := fn(mass, xs)
		if !ok {
			return 0, fmt.Errorf("%w: function %d at mX=%d xsec=%g", core.ErrAdjustUndefined, a.Selector, mass, xs)
		}
		return v, nil
	default:
		return 0, nil
	}
}

// AdjustFunc computes a bias offset. ok is false when the function has no
// value for the inputs.
type AdjustFunc func(mass int, xs float64) (offset float64, ok bool)

// BiasAdjustFunction returns the parametric adjust function for selector n.
//
//	0: linear between (260, -0.055) and (400, -0.01), constant above 400
//	1: constants per injected cross section, defined only for 0, 0.25, 0.5, 1
func BiasAdjustFunction(n int) (AdjustFunc, error) {
	switch n {
	case 0:
		return func(mass int, _ float64) (float64, bool) {
			const x0, y0 = 260.0, -0.055
			const x1, y1 = 400.0, -0.01
			m := float64(mass)
			if m > x1 {
				return y1, true
			}
			slope := (y1 - y0) / (x1 - x0)
			return m*slope + (y0 - slope*x0), true
		}, nil
	case 1:
		return func(_ int, xs float64) (float64, bool) {
			switch xs {
			case 0:
				return -0.03, true
			case 0.25, 0.5:
				return -0.02, true
			case 1.0:
				return -0.01, true
			}
			return 0, false
		}, nil
	default:
		return nil, fmt.Errorf("%w: %d", core.ErrUnknownAdjustFunction, n)
	}
}
