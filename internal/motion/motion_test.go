package motion

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntensityOrdering(t *testing.T) {
	assert.True(t, Minimal < Reduced && Reduced < Normal && Normal < Enhanced)
	assert.Equal(t, Reduced, MinIntensity(Normal, Reduced))
	assert.Equal(t, Minimal, MinIntensity(Minimal, Enhanced))
}

func TestIntensityText(t *testing.T) {
	b, err := json.Marshal(struct {
		I Intensity `json:"i"`
	}{Enhanced})
	require.NoError(t, err)
	assert.JSONEq(t, `{"i":"enhanced"}`, string(b))

	var out struct {
		I Intensity `json:"i"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"i":"Reduced"}`), &out))
	assert.Equal(t, Reduced, out.I)

	assert.Error(t, json.Unmarshal([]byte(`{"i":"loud"}`), &out))
}

func TestSimplestEasing(t *testing.T) {
	assert.Equal(t, EaseOut, SimplestEasing(EaseMobile, EaseOut, EaseInOut))
	assert.Equal(t, EaseLinear, SimplestEasing(EaseApp, EaseLinear))
	assert.Equal(t, EaseApp, SimplestEasing("", EaseApp))
	assert.Equal(t, "", SimplestEasing())
}

func TestMaxTier(t *testing.T) {
	assert.Equal(t, TierSimplify, MaxTier(TierReduce, TierSimplify))
	assert.Equal(t, TierDisable, MaxTier(TierDisable, TierNone))
	assert.Equal(t, "simplify", TierSimplify.String())
}
