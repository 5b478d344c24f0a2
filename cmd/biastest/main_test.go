package main

import (
	"testing"

	"biastest/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFloats(t *testing.T) {
	got, err := parseFloats(" 0.75, 1.5,,2 ")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.75, 1.5, 2}, got)

	got, err = parseFloats("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = parseFloats("0.5,abc")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestArtifactKey(t *testing.T) {
	assert.Equal(t, "fits", artifactKey(""))
	assert.Equal(t, "fits", artifactKey("out/fits-x1.5-m750.npy"))
	assert.Equal(t, "scan", artifactKey("out/scan.npy"))
}
