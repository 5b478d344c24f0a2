package toys

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"biastest/domain/core"
	"biastest/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// paramState is a minimal in-memory ParameterSetter.
type paramState struct {
	values   map[string]float64
	constant map[string]bool
	mins     map[string]float64
	edits    []float64
}

func newParamState() *paramState {
	s := &paramState{values: map[string]float64{}, constant: map[string]bool{}, mins: map[string]float64{}}
	for _, n := range model.RequiredParameters() {
		s.values[n] = 7
	}
	for _, n := range append(model.ShapeParams(), model.NormParams()...) {
		s.constant[n] = true
	}
	return s
}

func (s *paramState) check(name string) error {
	if _, ok := s.values[name]; !ok {
		return core.NewParameterNotFoundError(name)
	}
	return nil
}

func (s *paramState) SetValue(name string, v float64) error {
	if err := s.check(name); err != nil {
		return err
	}
	s.values[name] = v
	return nil
}

func (s *paramState) SetConstant(name string, c bool) error {
	if err := s.check(name); err != nil {
		return err
	}
	s.constant[name] = c
	return nil
}

func (s *paramState) SetMin(name string, v float64) error {
	if err := s.check(name); err != nil {
		return err
	}
	s.mins[name] = v
	return nil
}

func (s *paramState) InstallBiasAdjust(sign float64) error {
	s.edits = append(s.edits, sign)
	s.values[model.BiasAdj] = 0
	return nil
}

func TestSetupPlanDefaults(t *testing.T) {
	s := newParamState()
	opts := Options{Mass: 350, XSec: 0.25}
	_, err := Apply(s, SetupPlan(opts, model.NuisanceParameters()))
	require.NoError(t, err)

	for _, n := range model.NuisanceParameters() {
		assert.Zero(t, s.values[n], n)
		assert.False(t, s.constant[n], n)
	}
	for _, n := range model.ShapeParams() {
		assert.True(t, s.constant[n], "shape params stay at model defaults")
	}
	assert.Equal(t, 350.0, s.values[model.Mass])
	assert.Equal(t, 0.25, s.values[model.POI])
	assert.True(t, s.constant[model.POI], "POI is fixed for generation")
	assert.Empty(t, s.mins)
}

func TestSetupPlanFreeShapeAndNorm(t *testing.T) {
	s := newParamState()
	opts := Options{FreeShape: true, FreeNorm: true, FreezeBias: true, FreezeSS: true, POIMin: ptr(-0.5)}
	_, err := Apply(s, SetupPlan(opts, model.NuisanceParameters()))
	require.NoError(t, err)

	for _, n := range model.ShapeParams() {
		assert.False(t, s.constant[n], n)
	}
	for _, n := range model.ShapeConstraints() {
		assert.True(t, s.constant[n], n)
		assert.Zero(t, s.values[n], n)
	}
	for _, n := range model.NormConstraints() {
		assert.True(t, s.constant[n], n)
	}
	for _, n := range model.NormParams() {
		assert.False(t, s.constant[n], n)
	}
	assert.True(t, s.constant[model.BiasNP])
	for _, n := range model.SpuriousSignals() {
		assert.True(t, s.constant[n], n)
	}
	assert.Equal(t, -0.5, s.mins[model.POI])
}

func TestSetupPlanFreezeShapeLeavesShapeParams(t *testing.T) {
	plan := SetupPlan(Options{FreezeShape: true}, nil)
	for _, m := range plan {
		for _, n := range model.ShapeParams() {
			assert.NotEqual(t, n, m.Param, "freeze-shape must not touch %s", n)
		}
	}
	var fixed []string
	for _, m := range plan {
		if m.Op == OpSetConstant && m.Flag {
			fixed = append(fixed, m.Param)
		}
	}
	assert.Subset(t, fixed, model.ShapeConstraints())
}

// Every mutation applied to a bj parameter has an identical bb counterpart.
func TestSetupPlanCategorySymmetry(t *testing.T) {
	opts := Options{FreeShape: true, FreeNorm: true, FreezeSS: true}
	balance := map[string]int{}
	for _, m := range SetupPlan(opts, model.NuisanceParameters()) {
		switch {
		case strings.HasSuffix(m.Param, "_bj"):
			balance[fmt.Sprintf("%s/%s/%g/%t", m.Op, strings.ReplaceAll(m.Param, "bj", "*"), m.Value, m.Flag)]++
		case strings.HasSuffix(m.Param, "_bb"):
			balance[fmt.Sprintf("%s/%s/%g/%t", m.Op, strings.ReplaceAll(m.Param, "bb", "*"), m.Value, m.Flag)]--
		}
	}
	assert.NotEmpty(t, balance)
	for k, v := range balance {
		assert.Zero(t, v, "asymmetric mutation %s", k)
	}
}

func TestApplyStopsOnMissingParameter(t *testing.T) {
	s := newParamState()
	delete(s.values, model.BiasNP)

	applied, err := Apply(s, SetupPlan(Options{FreezeBias: true}, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrParameterNotFound))
	assert.Empty(t, applied)
}

func TestPhasePlans(t *testing.T) {
	s := newParamState()
	_, err := Apply(s, AdjustPlan(SignSubtract, 0.04))
	require.NoError(t, err)
	assert.Equal(t, []float64{SignSubtract}, s.edits)
	assert.Equal(t, 0.04, s.values[model.BiasAdj])

	_, err = Apply(s, GenerationPlan())
	require.NoError(t, err)
	assert.Zero(t, s.values[model.BiasAdj])

	_, err = Apply(s, RestorePlan(0.04))
	require.NoError(t, err)
	assert.Equal(t, 0.04, s.values[model.BiasAdj])

	s.constant[model.POI] = true
	_, err = Apply(s, ReleasePlan())
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.values[model.POI])
	assert.False(t, s.constant[model.POI])

	_, err = Apply(s, ReinitPlan(model.NuisanceParameters()))
	require.NoError(t, err)
	assert.Equal(t, RestartPOI, s.values[model.POI])
	for _, n := range model.NuisanceParameters() {
		assert.Zero(t, s.values[n])
	}
}

func TestMutationString(t *testing.T) {
	assert.Equal(t, "BIAS.setVal(0)", setValue("BIAS", 0).String())
	assert.Equal(t, "BIAS.setConstant(true)", setConstant("BIAS", true).String())
	assert.Equal(t, "npbBSM.setMin(-1)", Mutation{Op: OpSetMin, Param: "npbBSM", Value: -1}.String())
}

func ptr(v float64) *float64 { return &v }
