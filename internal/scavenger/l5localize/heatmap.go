package l5localize

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

const (
	smoothingSigma    = 1.0
	smoothingTruncate = 4.0
	peakQuantile      = 0.95
)

// grid is the histogram layout over the sniffer bounding box. Cell (i, j)
// covers x in [minX + i·cellW, minX + (i+1)·cellW) and likewise for y; the
// upper box edge belongs to the last cell.
type grid struct {
	minX, minY   float64
	cellW, cellH float64
	nx, ny       int
}

func newGrid(b orb.Bound, meterPerBin float64) grid {
	g := grid{minX: b.Min[0], minY: b.Min[1]}
	g.nx, g.cellW = axisBins(b.Max[0]-b.Min[0], meterPerBin)
	g.ny, g.cellH = axisBins(b.Max[1]-b.Min[1], meterPerBin)
	return g
}

func axisBins(width, meterPerBin float64) (int, float64) {
	n := int(width / meterPerBin)
	if n < 1 {
		n = 1
	}
	if width <= 0 {
		return n, 1
	}
	return n, width / float64(n)
}

func (g grid) cell(x, y float64) (i, j int, ok bool) {
	i = axisIndex(x-g.minX, g.cellW, g.nx)
	j = axisIndex(y-g.minY, g.cellH, g.ny)
	return i, j, i >= 0 && j >= 0
}

func axisIndex(offset, cell float64, n int) int {
	if offset < 0 || math.IsNaN(offset) {
		return -1
	}
	idx := int(offset / cell)
	if idx >= n {
		if offset > cell*float64(n)*(1+1e-9) {
			return -1
		}
		idx = n - 1
	}
	return idx
}

// centre returns the centre of a cell in metres.
func (g grid) centre(c scavenger.CellPoint) scavenger.Position {
	return scavenger.Position{
		X: g.minX + (float64(c.X)+0.5)*g.cellW,
		Y: g.minY + (float64(c.Y)+0.5)*g.cellH,
	}
}

func newMatrix(nx, ny int) [][]float64 {
	backing := make([]float64, nx*ny)
	m := make([][]float64, nx)
	for i := range m {
		m[i] = backing[i*ny : (i+1)*ny]
	}
	return m
}

// restartWeights maps costs onto [0.1, 0.9] and inverts them, so the
// cheapest restart weighs 0.9 and the most expensive 0.1. Equal costs give
// every restart 0.5.
func restartWeights(restarts []Restart) []float64 {
	costs := make([]float64, len(restarts))
	for i, r := range restarts {
		costs[i] = r.Cost
	}
	w := make([]float64, len(costs))
	if len(costs) == 0 {
		return w
	}
	lo, hi := floats.Min(costs), floats.Max(costs)
	for i, c := range costs {
		if hi == lo {
			w[i] = 0.5
			continue
		}
		w[i] = 1 - (0.1 + (c-lo)*0.8/(hi-lo))
	}
	return w
}

// histogram bins the weighted restarts and normalises the result to a
// density: the sum over cells of value·cellArea is one.
func histogram(restarts []Restart, weights []float64, g grid) [][]float64 {
	h := newMatrix(g.nx, g.ny)
	var total float64
	for k, r := range restarts {
		i, j, ok := g.cell(r.X, r.Y)
		if !ok {
			continue
		}
		h[i][j] += weights[k]
		total += weights[k]
	}
	if total == 0 {
		return h
	}
	norm := total * g.cellW * g.cellH
	for i := range h {
		floats.Scale(1/norm, h[i])
	}
	return h
}

func gaussianKernel(sigma, truncate float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	k := make([]float64, 2*radius+1)
	for i := range k {
		x := float64(i - radius)
		k[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

// reflect folds an out-of-range index back using half-sample symmetric
// reflection (d c b a | a b c d | d c b a).
func reflect(i, n int) int {
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

// gaussianSmooth convolves m with a separable Gaussian along both axes.
func gaussianSmooth(m [][]float64, sigma, truncate float64) [][]float64 {
	nx := len(m)
	if nx == 0 {
		return m
	}
	ny := len(m[0])
	k := gaussianKernel(sigma, truncate)
	r := len(k) / 2

	tmp := newMatrix(nx, ny)
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			var s float64
			for t, w := range k {
				s += w * m[reflect(i+t-r, nx)][j]
			}
			tmp[i][j] = s
		}
	}
	out := newMatrix(nx, ny)
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			var s float64
			for t, w := range k {
				s += w * tmp[i][reflect(j+t-r, ny)]
			}
			out[i][j] = s
		}
	}
	return out
}

// quantile is the linearly interpolated p-quantile over the closed range of
// order statistics, h = (n−1)·p.
func quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	h := float64(len(s)-1) * p
	lo := int(math.Floor(h))
	hi := lo + 1
	if hi >= len(s) {
		return s[len(s)-1]
	}
	return s[lo] + (h-float64(lo))*(s[hi]-s[lo])
}

// peakMask marks cells whose smoothed density reaches the p-quantile.
func peakMask(heat [][]float64, p float64) [][]bool {
	var flat []float64
	for _, row := range heat {
		flat = append(flat, row...)
	}
	thr := quantile(flat, p)
	mask := make([][]bool, len(heat))
	for i, row := range heat {
		mask[i] = make([]bool, len(row))
		for j, v := range row {
			mask[i][j] = v >= thr
		}
	}
	return mask
}

// components returns the 4-connected components of mask. Components are
// ordered by their first cell in row-major scan order.
func components(mask [][]bool) [][]scavenger.CellPoint {
	nx := len(mask)
	if nx == 0 {
		return nil
	}
	ny := len(mask[0])
	seen := make([][]bool, nx)
	for i := range seen {
		seen[i] = make([]bool, ny)
	}

	var out [][]scavenger.CellPoint
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			if !mask[i][j] || seen[i][j] {
				continue
			}
			var comp []scavenger.CellPoint
			queue := []scavenger.CellPoint{{X: i, Y: j}}
			seen[i][j] = true
			for len(queue) > 0 {
				c := queue[0]
				queue = queue[1:]
				comp = append(comp, c)
				for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
					a, b := c.X+d[0], c.Y+d[1]
					if a < 0 || b < 0 || a >= nx || b >= ny || !mask[a][b] || seen[a][b] {
						continue
					}
					seen[a][b] = true
					queue = append(queue, scavenger.CellPoint{X: a, Y: b})
				}
			}
			out = append(out, comp)
		}
	}
	return out
}
