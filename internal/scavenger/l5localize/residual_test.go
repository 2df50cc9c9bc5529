package l5localize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSquaredRange(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	assert.InDelta(t, 100, squaredRange(-50, 5, opts), 1e-9)
	assert.InDelta(t, 1, squaredRange(-30, 0, opts), 1e-9)

	opts.VarianceImpact = VarianceAdd
	assert.InDelta(t, math.Pow(10, 1.5), squaredRange(-50, 5, opts), 1e-9)

	opts.VarianceImpact = VarianceSubtract
	assert.InDelta(t, math.Pow(10, 2.5), squaredRange(-50, 5, opts), 1e-9)

	opts.VarianceImpact = VarianceImpact(42)
	assert.Panics(t, func() { squaredRange(-50, 5, opts) })
}

func TestRho(t *testing.T) {
	t.Parallel()

	for _, loss := range []Loss{LossLinear, LossSoftL1, LossHuber, LossCauchy, LossArctan} {
		t.Run(loss.String(), func(t *testing.T) {
			v, d := rho(loss, 0)
			assert.InDelta(t, 0, v, 1e-12)
			assert.InDelta(t, 1, d, 1e-12)

			// Derivative matches a central difference away from the kink.
			for _, z := range []float64{0.25, 3, 40} {
				const h = 1e-6
				hi, _ := rho(loss, z+h)
				lo, _ := rho(loss, z-h)
				_, d := rho(loss, z)
				assert.InDelta(t, (hi-lo)/(2*h), d, 1e-5, "z=%v", z)
			}
		})
	}
	assert.Panics(t, func() { rho(Loss(99), 1) })
}

func TestRobustCostGradient(t *testing.T) {
	t.Parallel()

	anchors := []anchor{{x: 0, y: 0, sqRange: 4}, {x: 8, y: 0, sqRange: 40}, {x: 8, y: 5, sqRange: 52}}
	for _, loss := range []Loss{LossLinear, LossCauchy, LossHuber} {
		grad := make([]float64, 2)
		robustCost(anchors, 2.5, 1.5, loss, 1, grad)

		const h = 1e-6
		dx := (robustCost(anchors, 2.5+h, 1.5, loss, 1, nil) - robustCost(anchors, 2.5-h, 1.5, loss, 1, nil)) / (2 * h)
		dy := (robustCost(anchors, 2.5, 1.5+h, loss, 1, nil) - robustCost(anchors, 2.5, 1.5-h, loss, 1, nil)) / (2 * h)
		assert.InDelta(t, dx, grad[0], 1e-3*math.Max(1, math.Abs(dx)), loss.String())
		assert.InDelta(t, dy, grad[1], 1e-3*math.Max(1, math.Abs(dy)), loss.String())
	}
}

func TestRobustCostZeroAtExactFit(t *testing.T) {
	t.Parallel()

	anchors := []anchor{{x: 0, y: 0, sqRange: 5}, {x: 3, y: 0, sqRange: 8}}
	assert.InDelta(t, 0, robustCost(anchors, 1, 2, LossCauchy, 1, nil), 1e-12)
}

func TestParseModes(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"linear", "soft_l1", "huber", "cauchy", "arctan"} {
		l, err := ParseLoss(name)
		assert.NoError(t, err)
		assert.Equal(t, name, l.String())
	}
	_, err := ParseLoss("tukey")
	assert.Error(t, err)

	for _, name := range []string{"none", "add", "subtract"} {
		v, err := ParseVarianceImpact(name)
		assert.NoError(t, err)
		assert.Equal(t, name, v.String())
	}
	_, err = ParseVarianceImpact("multiply")
	assert.Error(t, err)
	assert.Equal(t, "Loss(99)", Loss(99).String())
}
