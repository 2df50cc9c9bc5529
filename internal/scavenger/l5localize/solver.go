package l5localize

import (
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/optimize"
)

// Restart is the outcome of one multilateration run: the estimated
// position in metres and the final robust cost.
type Restart struct {
	X, Y float64
	Cost float64
}

// boxProblem solves the robust least-squares problem inside a bounding box.
// Bounds are enforced by the change of variables
// p = lo + (hi − lo)·(1 + sin u)/2, which maps all of ℝ onto [lo, hi] and
// lets an unconstrained quasi-Newton method do the work.
type boxProblem struct {
	anchors []anchor
	lo, hi  [2]float64
	loss    Loss
	fScale  float64
}

func newBoxProblem(anchors []anchor, b orb.Bound, loss Loss, fScale float64) *boxProblem {
	return &boxProblem{
		anchors: anchors,
		lo:      [2]float64{b.Min[0], b.Min[1]},
		hi:      [2]float64{b.Max[0], b.Max[1]},
		loss:    loss,
		fScale:  fScale,
	}
}

func (p *boxProblem) toBox(u []float64) (pos [2]float64, jac [2]float64) {
	for k := 0; k < 2; k++ {
		w := p.hi[k] - p.lo[k]
		if w <= 0 {
			pos[k] = p.lo[k]
			continue
		}
		pos[k] = p.lo[k] + w*(1+math.Sin(u[k]))/2
		jac[k] = w * math.Cos(u[k]) / 2
	}
	return pos, jac
}

func (p *boxProblem) fromBox(x, y float64) []float64 {
	u := make([]float64, 2)
	for k, v := range [2]float64{x, y} {
		w := p.hi[k] - p.lo[k]
		if w <= 0 {
			continue
		}
		s := 2*(v-p.lo[k])/w - 1
		u[k] = math.Asin(math.Max(-1, math.Min(1, s)))
	}
	return u
}

func (p *boxProblem) cost(x, y float64) float64 {
	return robustCost(p.anchors, x, y, p.loss, p.fScale, nil)
}

// solve minimises the robust cost starting from (x0, y0).
func (p *boxProblem) solve(x0, y0 float64) Restart {
	prob := optimize.Problem{
		Func: func(u []float64) float64 {
			pos, _ := p.toBox(u)
			return p.cost(pos[0], pos[1])
		},
		Grad: func(grad, u []float64) {
			pos, jac := p.toBox(u)
			var g [2]float64
			robustCost(p.anchors, pos[0], pos[1], p.loss, p.fScale, g[:])
			grad[0] = g[0] * jac[0]
			grad[1] = g[1] * jac[1]
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-10,
		MajorIterations:   200,
	}

	u0 := p.fromBox(x0, y0)
	best := u0
	res, err := optimize.Minimize(prob, u0, settings, &optimize.BFGS{})
	if res != nil && len(res.X) == 2 && !math.IsNaN(res.F) {
		best = res.X
	}
	if err != nil {
		tracef("restart from (%.2f, %.2f) stopped early: %v", x0, y0, err)
	}

	pos, _ := p.toBox(best)
	return Restart{X: pos[0], Y: pos[1], Cost: p.cost(pos[0], pos[1])}
}
