package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptionsAppliesDefaults(t *testing.T) {
	o, err := ParseOptions(`dims = 8`)
	require.NoError(t, err)
	assert.Equal(t, 1, o.Bits)
	assert.Equal(t, "l2", o.Distance)
	assert.Equal(t, "ivf", o.Kind)
	assert.Equal(t, 1, o.Height)
	assert.InDelta(t, float32(1.9), o.Epsilon, 1e-9)
}

func TestParseOptionsGraphDefaults(t *testing.T) {
	o, err := ParseOptions(`dims = 16
kind = "graph"`)
	require.NoError(t, err)
	assert.Equal(t, 32, o.M)
	assert.Equal(t, float32(1.0), o.Alpha)
	assert.Equal(t, 100, o.EfConstruction)
	assert.Equal(t, 64, o.EfSearch)
}

func TestParseOptionsRejectsBadDims(t *testing.T) {
	_, err := ParseOptions(`dims = 0`)
	assert.Error(t, err)
}

func TestParseOptionsRejectsBadDistance(t *testing.T) {
	_, err := ParseOptions(`dims = 8
distance = "cosine"`)
	assert.Error(t, err)
}

func TestParseOptionsRejectsBadBits(t *testing.T) {
	_, err := ParseOptions(`dims = 8
bits = 2`)
	assert.Error(t, err)
}

func TestParseOptionsRejectsBadKind(t *testing.T) {
	_, err := ParseOptions(`dims = 8
kind = "btree"`)
	assert.Error(t, err)
}

func TestParseOptionsRejectsGraphAlphaBelowOne(t *testing.T) {
	_, err := ParseOptions(`dims = 8
kind = "graph"
alpha = 0.5`)
	assert.Error(t, err)
}

func TestParseOptionsRejectsMalformedTOML(t *testing.T) {
	_, err := ParseOptions(`not valid toml ===`)
	assert.Error(t, err)
}
