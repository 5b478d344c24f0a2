package toys

import (
	"fmt"

	"biastest/domain/core"
	"biastest/domain/model"
)

// RestartPOI is the signal strength used when re-initializing before a fit.
const RestartPOI = 0.5

// Options is the full configuration of one toy-study invocation.
type Options struct {
	Workspace string  `json:"ws"`
	Seed      int64   `json:"seed"`
	Out       string  `json:"out,omitempty"`
	NTrial    int     `json:"ntrial"`
	Mass      int     `json:"mX"`
	XSec      float64 `json:"xsec"`

	// POIMin overrides the lower bound of the signal strength when set.
	POIMin *float64 `json:"poi_min,omitempty"`

	FreezeBias  bool `json:"freeze_bias"`
	FreezeSS    bool `json:"freeze_ss"`
	FreeShape   bool `json:"free_shape"`
	FreezeShape bool `json:"freeze_shape"`
	FreeNorm    bool `json:"free_norm"`

	Adjust AdjustStrategy `json:"adjust"`

	Poisson   bool `json:"poisson"`
	Reinit    bool `json:"reinit"`
	Offset    bool `json:"offset"`
	OnlyGood  bool `json:"only_good"`
	SkipMinos bool `json:"skip_minos"`
	Hesse     bool `json:"hesse"`
}

// DefaultOptions mirrors the command-line defaults.
func DefaultOptions() Options {
	return Options{
		Seed:   1,
		NTrial: 10,
		Mass:   300,
		XSec:   1.0,
		Adjust: NoAdjust(),
	}
}

// Validate checks the options. free-shape and freeze-shape together are
// accepted; free-shape takes precedence.
func (o Options) Validate() error {
	if o.Workspace == "" {
		return fmt.Errorf("%w: workspace path is required", core.ErrInvalidOptions)
	}
	if o.NTrial < 0 {
		return fmt.Errorf("%w: ntrial must not be negative", core.ErrInvalidOptions)
	}
	return o.Adjust.Validate()
}

// Settings flattens the options for hashing.
func (o Options) Settings() map[string]interface{} {
	s := map[string]interface{}{
		"seed": o.Seed, "ntrial": o.NTrial, "mX": o.Mass, "xsec": o.XSec,
		"freeze_bias": o.FreezeBias, "freeze_ss": o.FreezeSS,
		"free_shape": o.FreeShape, "freeze_shape": o.FreezeShape, "free_norm": o.FreeNorm,
		"adjust_kind": o.Adjust.Kind, "adjust_offset": o.Adjust.Offset,
		"adjust_selector": o.Adjust.Selector, "adjust_sign": o.Adjust.Sign,
		"poisson": o.Poisson, "reinit": o.Reinit, "offset": o.Offset,
		"only_good": o.OnlyGood, "skip_minos": o.SkipMinos, "hesse": o.Hesse,
	}
	if o.POIMin != nil {
		s["poi_min"] = *o.POIMin
	}
	return s
}

// TrackedKeys returns the parameters whose values and errors are recorded
// for every trial. The list depends only on the options.
func TrackedKeys(o Options) []string {
	keys := []string{model.POI}
	keys = append(keys, model.SpuriousSignals()...)
	if o.FreeNorm {
		keys = append(keys, model.NormParams()...)
	} else {
		keys = append(keys, model.NormConstraints()...)
	}
	if o.FreeShape {
		keys = append(keys, model.ShapeParams()...)
	} else if !o.FreezeShape {
		keys = append(keys, model.ShapeConstraints()...)
	}
	return keys
}
