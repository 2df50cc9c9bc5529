package trajectory

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

// EMIterations is the number of expectation-maximisation passes Smooth
// runs before the final smoothing pass.
const EMIterations = 10

// ErrNonFinite is returned for measurements containing NaN or Inf.
var ErrNonFinite = errors.New("trajectory: non-finite measurement")

// State order is (x, vx, y, vy); one time step per measurement.
var (
	transition = mat.NewDense(4, 4, []float64{
		1, 1, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 1,
		0, 0, 0, 1,
	})
	observation = mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 0, 1, 0,
	})
)

// model holds the parameters EM learns. The transition and observation
// matrices stay fixed.
type model struct {
	q   *mat.Dense // transition covariance
	r   *mat.Dense // observation covariance
	mu0 *mat.VecDense
	p0  *mat.Dense
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

// passes holds the filtered, predicted and smoothed moments of one run.
type passes struct {
	predMean []*mat.VecDense
	predCov  []*mat.Dense
	filtMean []*mat.VecDense
	filtCov  []*mat.Dense
	smMean   []*mat.VecDense
	smCov    []*mat.Dense
	// pairCov[t] is Cov(x_t, x_{t-1}) under the smoother, t >= 1.
	pairCov []*mat.Dense
}

// Smooth fits a constant-velocity linear-Gaussian model to points with
// EMIterations EM passes over the noise covariances and initial state,
// then returns the Rauch-Tung-Striebel smoothed positions.
func Smooth(points []scavenger.Position) ([]scavenger.Position, error) {
	if len(points) == 0 {
		return nil, nil
	}
	z := make([]*mat.VecDense, len(points))
	for i, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return nil, fmt.Errorf("%w at index %d", ErrNonFinite, i)
		}
		z[i] = mat.NewVecDense(2, []float64{p.X, p.Y})
	}

	m := &model{
		q:   identity(4),
		r:   identity(2),
		mu0: mat.NewVecDense(4, []float64{points[0].X, 0, points[0].Y, 0}),
		p0:  identity(4),
	}
	for i := 0; i < EMIterations; i++ {
		ps, err := m.smooth(z)
		if err != nil {
			return nil, fmt.Errorf("em pass %d: %w", i+1, err)
		}
		m.maximise(z, ps)
	}
	ps, err := m.smooth(z)
	if err != nil {
		return nil, err
	}

	out := make([]scavenger.Position, len(points))
	for t, x := range ps.smMean {
		out[t] = scavenger.Position{X: x.AtVec(0), Y: x.AtVec(2)}
	}
	return out, nil
}

func (m *model) smooth(z []*mat.VecDense) (*passes, error) {
	n := len(z)
	ps := &passes{
		predMean: make([]*mat.VecDense, n),
		predCov:  make([]*mat.Dense, n),
		filtMean: make([]*mat.VecDense, n),
		filtCov:  make([]*mat.Dense, n),
		smMean:   make([]*mat.VecDense, n),
		smCov:    make([]*mat.Dense, n),
		pairCov:  make([]*mat.Dense, n),
	}

	for t := 0; t < n; t++ {
		if t == 0 {
			ps.predMean[0] = mat.VecDenseCopyOf(m.mu0)
			ps.predCov[0] = mat.DenseCopyOf(m.p0)
		} else {
			var x mat.VecDense
			x.MulVec(transition, ps.filtMean[t-1])
			ps.predMean[t] = &x
			ps.predCov[t] = sandwich(transition, ps.filtCov[t-1])
			ps.predCov[t].Add(ps.predCov[t], m.q)
		}

		// S = H P H' + R, K = P H' S^-1
		s := sandwich(observation, ps.predCov[t])
		s.Add(s, m.r)
		var sInv mat.Dense
		if err := invert(&sInv, s); err != nil {
			return nil, fmt.Errorf("innovation covariance at step %d: %w", t, err)
		}
		var pht, k mat.Dense
		pht.Mul(ps.predCov[t], observation.T())
		k.Mul(&pht, &sInv)

		var hx, innov, corr mat.VecDense
		hx.MulVec(observation, ps.predMean[t])
		innov.SubVec(z[t], &hx)
		corr.MulVec(&k, &innov)
		var x mat.VecDense
		x.AddVec(ps.predMean[t], &corr)
		ps.filtMean[t] = &x

		var kh, ikh, p mat.Dense
		kh.Mul(&k, observation)
		ikh.Sub(identity(4), &kh)
		p.Mul(&ikh, ps.predCov[t])
		ps.filtCov[t] = &p
	}

	ps.smMean[n-1] = mat.VecDenseCopyOf(ps.filtMean[n-1])
	ps.smCov[n-1] = mat.DenseCopyOf(ps.filtCov[n-1])
	for t := n - 2; t >= 0; t-- {
		var predInv mat.Dense
		if err := invert(&predInv, ps.predCov[t+1]); err != nil {
			return nil, fmt.Errorf("predicted covariance at step %d: %w", t+1, err)
		}
		// J = P_t A' P_{t+1|t}^-1
		var pat, j mat.Dense
		pat.Mul(ps.filtCov[t], transition.T())
		j.Mul(&pat, &predInv)

		var dm, jm, x mat.VecDense
		dm.SubVec(ps.smMean[t+1], ps.predMean[t+1])
		jm.MulVec(&j, &dm)
		x.AddVec(ps.filtMean[t], &jm)
		ps.smMean[t] = &x

		var dp mat.Dense
		dp.Sub(ps.smCov[t+1], ps.predCov[t+1])
		p := sandwich(&j, &dp)
		p.Add(p, ps.filtCov[t])
		ps.smCov[t] = p

		var pair mat.Dense
		pair.Mul(ps.smCov[t+1], j.T())
		ps.pairCov[t+1] = &pair
	}
	return ps, nil
}

// maximise updates the transition and observation covariances and the
// initial state from the smoothed moments.
func (m *model) maximise(z []*mat.VecDense, ps *passes) {
	n := len(z)

	r := mat.NewDense(2, 2, nil)
	for t := 0; t < n; t++ {
		var hx, e mat.VecDense
		hx.MulVec(observation, ps.smMean[t])
		e.SubVec(z[t], &hx)
		var outer mat.Dense
		outer.Outer(1, &e, &e)
		r.Add(r, &outer)
		r.Add(r, sandwich(observation, ps.smCov[t]))
	}
	r.Scale(1/float64(n), r)
	m.r = r

	if n > 1 {
		q := mat.NewDense(4, 4, nil)
		for t := 0; t < n-1; t++ {
			var ax, e mat.VecDense
			ax.MulVec(transition, ps.smMean[t])
			e.SubVec(ps.smMean[t+1], &ax)
			var outer mat.Dense
			outer.Outer(1, &e, &e)
			q.Add(q, &outer)
			q.Add(q, sandwich(transition, ps.smCov[t]))
			q.Add(q, ps.smCov[t+1])
			var pa mat.Dense
			pa.Mul(ps.pairCov[t+1], transition.T())
			q.Sub(q, &pa)
			q.Sub(q, pa.T())
		}
		q.Scale(1/float64(n-1), q)
		m.q = q
	}

	m.mu0 = mat.VecDenseCopyOf(ps.smMean[0])
	m.p0 = mat.DenseCopyOf(ps.smCov[0])
}

// invert tolerates ill-conditioning: gonum still returns the inverse
// alongside a Condition error unless the matrix is singular.
func invert(dst *mat.Dense, a mat.Matrix) error {
	err := dst.Inverse(a)
	var cond mat.Condition
	if errors.As(err, &cond) && !math.IsInf(float64(cond), 1) {
		return nil
	}
	return err
}

// sandwich returns a b a'.
func sandwich(a mat.Matrix, b mat.Matrix) *mat.Dense {
	var ab, out mat.Dense
	ab.Mul(a, b)
	out.Mul(&ab, a.T())
	return &out
}
