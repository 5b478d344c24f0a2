package workspace

import (
	"fmt"
	"math"
	"os"

	"biastest/domain/core"
	"biastest/domain/model"
	"biastest/internal/errors"

	"gopkg.in/yaml.v3"
)

// document matches the YAML workspace layout.
type document struct {
	Name       string         `yaml:"name"`
	Observable observableDef  `yaml:"observable"`
	NLLBins    int            `yaml:"nll_bins"`
	Signal     signalDef      `yaml:"signal"`
	Categories []categoryDef  `yaml:"categories"`
	Parameters []parameterDef `yaml:"parameters"`
}

type observableDef struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

type signalDef struct {
	BiasSigma float64 `yaml:"bias_sigma"`
}

type categoryDef struct {
	Name             string  `yaml:"name"`
	SignalYieldPerPb float64 `yaml:"signal_yield_per_pb"`
	Resolution       float64 `yaml:"resolution"`
	SpuriousSignal   float64 `yaml:"spurious_signal"`
	NormSigma        float64 `yaml:"norm_sigma"`
	PeakSigma        float64 `yaml:"peak_sigma"`
	TailSigma        float64 `yaml:"tail_sigma"`
	WidthSigma       float64 `yaml:"width_sigma"`
}

type parameterDef struct {
	Name     string   `yaml:"name"`
	Value    float64  `yaml:"value"`
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
	Step     float64  `yaml:"step"`
	Constant bool     `yaml:"constant"`
	Nuisance bool     `yaml:"nuisance"`
}

func readDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IOError(path, err)
	}
	doc, err := parseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("workspace %s: %w", path, err)
	}
	return doc, nil
}

func parseDocument(data []byte) (*document, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("parse workspace: %w", err))
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *document) validate() error {
	if d.Name != model.WorkspaceName {
		return fmt.Errorf("%w: workspace %q (found %q)", core.ErrNotFound, model.WorkspaceName, d.Name)
	}
	if d.Observable.Name != model.ObservableName {
		return core.NewParameterNotFoundError(model.ObservableName)
	}
	if !(d.Observable.Max > d.Observable.Min) {
		return errors.InvalidInput(fmt.Sprintf("observable range [%g, %g] is empty", d.Observable.Min, d.Observable.Max))
	}
	if d.NLLBins < 0 {
		return errors.InvalidInput("nll_bins must not be negative")
	}
	for _, cat := range model.Categories {
		c, ok := d.category(cat)
		if !ok {
			return fmt.Errorf("%w: category %q", core.ErrNotFound, cat)
		}
		if !(c.Resolution > 0) {
			return errors.InvalidInput(fmt.Sprintf("category %s: resolution must be positive", cat))
		}
	}

	seen := make(map[string]bool, len(d.Parameters))
	for _, p := range d.Parameters {
		if p.Name == "" {
			return errors.InvalidInput("parameter without a name")
		}
		if seen[p.Name] {
			return errors.InvalidInput(fmt.Sprintf("duplicate parameter %q", p.Name))
		}
		seen[p.Name] = true
		lo, hi := p.bounds()
		if lo > hi {
			return errors.InvalidInput(fmt.Sprintf("parameter %s: min %g above max %g", p.Name, lo, hi))
		}
	}
	for _, name := range model.RequiredParameters() {
		if !seen[name] {
			return core.NewParameterNotFoundError(name)
		}
	}
	return nil
}

func (d *document) category(name string) (categoryDef, bool) {
	for _, c := range d.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return categoryDef{}, false
}

func (p parameterDef) bounds() (float64, float64) {
	lo, hi := math.Inf(-1), math.Inf(1)
	if p.Min != nil {
		lo = *p.Min
	}
	if p.Max != nil {
		hi = *p.Max
	}
	return lo, hi
}
