package l5localize

import (
	"fmt"
	"math"
)

// anchor is one sniffer as seen by the solver: its position and the squared
// range implied by its mean RSSI.
type anchor struct {
	x, y    float64
	sqRange float64
}

// squaredRange inverts the log-distance path-loss model. The result is the
// squared distance in metres at which a transmitter would be heard at
// meanRSSI.
func squaredRange(meanRSSI, spread float64, opts Options) float64 {
	ref := opts.ReferenceDBm
	switch opts.VarianceImpact {
	case VarianceNone:
	case VarianceAdd:
		ref += spread
	case VarianceSubtract:
		ref -= spread
	default:
		panic(fmt.Sprintf("l5localize: unknown variance impact %d", int(opts.VarianceImpact)))
	}
	return math.Pow(10, (math.Abs(meanRSSI)-ref)/(5*opts.PathLossExponent))
}

// residual is the squared-distance mismatch of position (x, y) for one
// sniffer.
func (a anchor) residual(x, y float64) float64 {
	dx, dy := a.x-x, a.y-y
	return dx*dx + dy*dy - a.sqRange
}

// rho returns the loss value and its derivative at z = f²/C².
func rho(loss Loss, z float64) (value, deriv float64) {
	switch loss {
	case LossLinear:
		return z, 1
	case LossSoftL1:
		t := math.Sqrt(1 + z)
		return 2 * (t - 1), 1 / t
	case LossHuber:
		if z <= 1 {
			return z, 1
		}
		t := math.Sqrt(z)
		return 2*t - 1, 1 / t
	case LossCauchy:
		return math.Log1p(z), 1 / (1 + z)
	case LossArctan:
		return math.Atan(z), 1 / (1 + z*z)
	default:
		panic(fmt.Sprintf("l5localize: unknown loss %d", int(loss)))
	}
}

// robustCost is 0.5·Σ C²·ρ(fᵢ²/C²) with C = fScale. The gradient with
// respect to (x, y) is written into grad when it is non-nil.
func robustCost(anchors []anchor, x, y float64, loss Loss, fScale float64, grad []float64) float64 {
	c2 := fScale * fScale
	var cost, gx, gy float64
	for _, a := range anchors {
		f := a.residual(x, y)
		v, d := rho(loss, f*f/c2)
		cost += v
		// d/dx of 0.5·C²·ρ(f²/C²) = ρ'·f·∂f/∂x, with ∂f/∂x = 2(x − aₓ).
		gx += d * f * 2 * (x - a.x)
		gy += d * f * 2 * (y - a.y)
	}
	if grad != nil {
		grad[0], grad[1] = gx, gy
	}
	return 0.5 * c2 * cost
}
