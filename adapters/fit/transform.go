package fit

import "math"

// Param is one fit parameter as seen by the minimizer. Infinite bounds mean
// unbounded on that side.
type Param struct {
	Name     string
	Value    float64
	Min      float64
	Max      float64
	Step     float64
	Constant bool
}

func (p Param) lowerBounded() bool { return !math.IsInf(p.Min, -1) && !math.IsNaN(p.Min) }
func (p Param) upperBounded() bool { return !math.IsInf(p.Max, 1) && !math.IsNaN(p.Max) }

func (p Param) step() float64 {
	if p.Step > 0 {
		return p.Step
	}
	return 0.1
}

// toInternal maps an external value to the unbounded coordinate the
// optimizer works in: a sine transform for doubly bounded parameters, a
// square-root transform for one-sided bounds, plain scaling otherwise.
func (p Param) toInternal(x float64) float64 {
	switch {
	case p.lowerBounded() && p.upperBounded():
		arg := 2*(x-p.Min)/(p.Max-p.Min) - 1
		return math.Asin(clamp(arg, -1, 1))
	case p.lowerBounded():
		d := math.Max(x-p.Min, 0) + 1
		return math.Sqrt(d*d - 1)
	case p.upperBounded():
		d := math.Max(p.Max-x, 0) + 1
		return math.Sqrt(d*d - 1)
	default:
		return x / p.step()
	}
}

func (p Param) toExternal(u float64) float64 {
	switch {
	case p.lowerBounded() && p.upperBounded():
		return p.Min + (p.Max-p.Min)*(math.Sin(u)+1)/2
	case p.lowerBounded():
		return p.Min - 1 + math.Sqrt(u*u+1)
	case p.upperBounded():
		return p.Max + 1 - math.Sqrt(u*u+1)
	default:
		return u * p.step()
	}
}

// clampToBounds keeps x inside [Min, Max].
func (p Param) clampToBounds(x float64) float64 {
	if p.lowerBounded() && x < p.Min {
		x = p.Min
	}
	if p.upperBounded() && x > p.Max {
		x = p.Max
	}
	return x
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
