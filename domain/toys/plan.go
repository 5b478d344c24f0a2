package toys

import (
	"fmt"

	"biastest/domain/model"
)

// Op is a parameter mutation kind.
type Op string

const (
	OpSetValue    Op = "set_value"
	OpSetConstant Op = "set_constant"
	OpSetMin      Op = "set_min"
	// OpEditPOI installs the bias_adj parameter and redirects the signal
	// strength through npbBSM + Value*bias_adj.
	OpEditPOI Op = "edit_poi"
)

// Mutation is one recorded change to the model's parameter state.
type Mutation struct {
	Op    Op      `json:"op"`
	Param string  `json:"param"`
	Value float64 `json:"value,omitempty"`
	Flag  bool    `json:"flag,omitempty"`
}

func (m Mutation) String() string {
	switch m.Op {
	case OpSetConstant:
		return fmt.Sprintf("%s.setConstant(%t)", m.Param, m.Flag)
	case OpSetMin:
		return fmt.Sprintf("%s.setMin(%g)", m.Param, m.Value)
	case OpEditPOI:
		return fmt.Sprintf("EDIT %s -> %s%+g*%s", model.POI, model.POI, m.Value, m.Param)
	default:
		return fmt.Sprintf("%s.setVal(%g)", m.Param, m.Value)
	}
}

// Plan is an ordered list of mutations.
type Plan []Mutation

func setValue(name string, v float64) Mutation {
	return Mutation{Op: OpSetValue, Param: name, Value: v}
}

func setConstant(name string, c bool) Mutation {
	return Mutation{Op: OpSetConstant, Param: name, Flag: c}
}

// fixAtZero fixes a parameter to constant and zeroes it.
func fixAtZero(name string) []Mutation {
	return []Mutation{setConstant(name, true), setValue(name, 0)}
}

// ParameterSetter is the slice of the workspace a plan mutates.
type ParameterSetter interface {
	SetValue(name string, v float64) error
	SetConstant(name string, constant bool) error
	SetMin(name string, v float64) error
	InstallBiasAdjust(sign float64) error
}

// Apply executes the plan in order, stopping at the first failed lookup.
// It returns the mutations that were applied.
func Apply(target ParameterSetter, plan Plan) (Plan, error) {
	applied := make(Plan, 0, len(plan))
	for _, m := range plan {
		var err error
		switch m.Op {
		case OpSetValue:
			err = target.SetValue(m.Param, m.Value)
		case OpSetConstant:
			err = target.SetConstant(m.Param, m.Flag)
		case OpSetMin:
			err = target.SetMin(m.Param, m.Value)
		case OpEditPOI:
			err = target.InstallBiasAdjust(m.Value)
		default:
			err = fmt.Errorf("unknown mutation op %q", m.Op)
		}
		if err != nil {
			return applied, fmt.Errorf("applying %s: %w", m, err)
		}
		applied = append(applied, m)
	}
	return applied, nil
}

// AdjustPlan edits the model for a bias adjust and sets its offset.
func AdjustPlan(sign, offset float64) Plan {
	return Plan{
		{Op: OpEditPOI, Param: model.BiasAdj, Value: sign},
		setValue(model.BiasAdj, offset),
	}
}

// SetupPlan zeroes the nuisances and applies the option-driven parameter
// states, finishing with the mass and the injected cross section held fixed.
func SetupPlan(o Options, nuisances []string) Plan {
	var p Plan
	for _, n := range nuisances {
		p = append(p, setValue(n, 0))
	}

	if o.FreezeBias {
		p = append(p, setValue(model.BiasNP, 0), setConstant(model.BiasNP, true))
	}
	if o.FreezeSS {
		for _, n := range model.SpuriousSignals() {
			p = append(p, setValue(n, 0), setConstant(n, true))
		}
	}
	if o.POIMin != nil {
		p = append(p, Mutation{Op: OpSetMin, Param: model.POI, Value: *o.POIMin})
	}

	if o.FreeShape || o.FreezeShape {
		if o.FreeShape {
			for _, n := range model.ShapeParams() {
				p = append(p, setConstant(n, false))
			}
		}
		for _, n := range model.ShapeConstraints() {
			p = append(p, fixAtZero(n)...)
		}
	}

	if o.FreeNorm {
		for _, n := range model.NormConstraints() {
			p = append(p, fixAtZero(n)...)
		}
		for _, n := range model.NormParams() {
			p = append(p, setConstant(n, false))
		}
	}

	p = append(p,
		setValue(model.Mass, float64(o.Mass)),
		setValue(model.POI, o.XSec),
		setConstant(model.POI, true),
	)
	return p
}

// GenerationPlan neutralizes the bias adjust while datasets are drawn.
func GenerationPlan() Plan {
	return Plan{setValue(model.BiasAdj, 0)}
}

// RestorePlan puts the bias adjust offset back for fitting.
func RestorePlan(offset float64) Plan {
	return Plan{setValue(model.BiasAdj, offset)}
}

// ReleasePlan frees the signal strength at unit value for the fit phase.
func ReleasePlan() Plan {
	return Plan{setValue(model.POI, 1), setConstant(model.POI, false)}
}

// ReinitPlan resets every nuisance to zero and restarts the signal strength.
func ReinitPlan(nuisances []string) Plan {
	p := make(Plan, 0, len(nuisances)+1)
	for _, n := range nuisances {
		p = append(p, setValue(n, 0))
	}
	return append(p, setValue(model.POI, RestartPOI))
}
