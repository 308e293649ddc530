package ranking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlend_NaNInputsCollapseToZero(t *testing.T) {
	t.Parallel()
	got := Blend(math.NaN(), 1.0, 1.0, 0.3, 0.4, 0.3, 0.1)
	assert.InDelta(t, 0.4+0.3-0.1, got, 0.0001)
}

func TestBlend_InfInputsCollapseToZero(t *testing.T) {
	t.Parallel()
	got := Blend(math.Inf(1), 0, 0, 0.3, 0.4, 0.3, 0.1)
	assert.InDelta(t, -0.1, got, 0.0001)
}

func TestSafeCompare_Descending(t *testing.T) {
	t.Parallel()
	assert.Equal(t, -1, safeCompare(3.0, 1.0, nil))
	assert.Equal(t, 1, safeCompare(1.0, 3.0, nil))
	assert.Equal(t, 0, safeCompare(2.0, 2.0, nil))
}

func TestSafeCompare_NaNIsEqualAndCounted(t *testing.T) {
	t.Parallel()
	calls := 0
	got := safeCompare(math.NaN(), 2.0, func() { calls++ })
	assert.Equal(t, 0, got)
	assert.Equal(t, 1, calls)
}
