package toys

import (
	"errors"
	"testing"

	"biastest/domain/core"
	"biastest/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackedKeysPolicy(t *testing.T) {
	base := []string{"npbBSM", "bias_bj", "bias_bb"}
	normConstraints := []string{"bkg_constraint_bj", "bkg_constraint_bb"}
	normParams := []string{"nbkg_fit_bj_bj", "nbkg_fit_bb_bb"}

	cat := func(lists ...[]string) []string {
		var out []string
		for _, l := range lists {
			out = append(out, l...)
		}
		return out
	}

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"defaults", Options{}, cat(base, normConstraints, model.ShapeConstraints())},
		{"free shape", Options{FreeShape: true}, cat(base, normConstraints, model.ShapeParams())},
		{"freeze shape", Options{FreezeShape: true}, cat(base, normConstraints)},
		{"free and freeze shape", Options{FreeShape: true, FreezeShape: true}, cat(base, normConstraints, model.ShapeParams())},
		{"free norm", Options{FreeNorm: true}, cat(base, normParams, model.ShapeConstraints())},
		{"free norm free shape", Options{FreeNorm: true, FreeShape: true}, cat(base, normParams, model.ShapeParams())},
		{"free norm freeze shape", Options{FreeNorm: true, FreezeShape: true}, cat(base, normParams)},
		{"unrelated flags", Options{FreezeBias: true, FreezeSS: true, Poisson: true, Reinit: true}, cat(base, normConstraints, model.ShapeConstraints())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrackedKeys(tt.opts)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, TrackedKeys(tt.opts), "tracked keys must be deterministic")
		})
	}
}

func TestTrackedKeysFreeShapeExcludesConstraints(t *testing.T) {
	keys := TrackedKeys(Options{FreeShape: true})
	assert.Len(t, keys, 3+2+6)
	for _, c := range model.ShapeConstraints() {
		assert.NotContains(t, keys, c)
	}
	for _, p := range model.ShapeParams() {
		assert.Contains(t, keys, p)
	}
}

func TestOptionsValidate(t *testing.T) {
	opts := DefaultOptions()
	err := opts.Validate()
	assert.True(t, errors.Is(err, core.ErrInvalidOptions), "missing workspace")

	opts.Workspace = "ws.yaml"
	require.NoError(t, opts.Validate())

	opts.NTrial = -1
	assert.True(t, errors.Is(opts.Validate(), core.ErrInvalidOptions))

	opts.NTrial = 1
	opts.Adjust = FunctionAdjust(7, SignAdd)
	assert.True(t, errors.Is(opts.Validate(), core.ErrUnknownAdjustFunction))

	opts.Adjust = OffsetAdjust(0.1, 2)
	assert.True(t, errors.Is(opts.Validate(), core.ErrInvalidOptions))
}
