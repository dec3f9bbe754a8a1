package integrate

import (
	"math"
	"math/rand/v2"
)

const (
	DefaultIterations = 10
	DefaultEvals      = 1000
	DefaultBins       = 50
	DefaultAlpha      = 1.5
)

// Vegas is an adaptive importance-sampling Monte-Carlo integrator with
// stratified sampling. Each axis carries its own grid, refined after every
// iteration toward the regions where |f| is largest. Iteration estimates
// are combined by inverse-variance weighting.
//
// A Vegas is not safe for concurrent use; its random stream advances with
// every call.
type Vegas struct {
	Iterations int
	// Evals is the approximate number of integrand calls per iteration.
	Evals int
	Bins  int
	// Alpha damps grid refinement; 0 freezes the grid.
	Alpha float64

	rng *rand.Rand
}

// NewVegas returns a Vegas drawing from src. A nil src uses a fixed seed.
func NewVegas(src rand.Source) *Vegas {
	if src == nil {
		src = rand.NewPCG(1, 2)
	}
	return &Vegas{
		Iterations: DefaultIterations,
		Evals:      DefaultEvals,
		Bins:       DefaultBins,
		Alpha:      DefaultAlpha,
		rng:        rand.New(src),
	}
}

// grid maps the unit interval onto one axis with piecewise-uniform bins of
// varying width.
type grid struct {
	lo, width float64
	edges     []float64
	acc       []float64
}

func newGrid(iv Interval, bins int) *grid {
	g := &grid{
		lo:    iv.Lo,
		width: iv.Hi - iv.Lo,
		edges: make([]float64, bins+1),
		acc:   make([]float64, bins),
	}
	for i := range g.edges {
		g.edges[i] = float64(i) / float64(bins)
	}
	return g
}

// transform maps y in [0,1) to the axis and returns the point, its bin and
// the jacobian of the map.
func (g *grid) transform(y float64) (x float64, bin int, jac float64) {
	bins := len(g.acc)
	pos := y * float64(bins)
	bin = min(int(pos), bins-1)
	frac := pos - float64(bin)
	left, right := g.edges[bin], g.edges[bin+1]
	x = g.lo + g.width*(left+frac*(right-left))
	jac = g.width * float64(bins) * (right - left)
	return x, bin, jac
}

// refine redistributes the edges so every new bin holds an equal share of
// the damped, smoothed accumulator mass, then clears the accumulators.
func (g *grid) refine(alpha float64) {
	bins := len(g.acc)
	defer clear(g.acc)
	if alpha == 0 || bins < 2 {
		return
	}

	smooth := make([]float64, bins)
	smooth[0] = (g.acc[0] + g.acc[1]) / 2
	smooth[bins-1] = (g.acc[bins-2] + g.acc[bins-1]) / 2
	for i := 1; i < bins-1; i++ {
		smooth[i] = (g.acc[i-1] + g.acc[i] + g.acc[i+1]) / 3
	}
	sum := 0.0
	for _, d := range smooth {
		sum += d
	}
	if sum == 0 || math.IsInf(sum, 0) || math.IsNaN(sum) {
		return
	}

	r := make([]float64, bins)
	sumR := 0.0
	for i, d := range smooth {
		d /= sum
		switch {
		case d <= 0:
			r[i] = 0
		case d >= 1:
			r[i] = 1
		default:
			r[i] = math.Pow((d-1)/math.Log(d), alpha)
		}
		sumR += r[i]
	}
	if sumR == 0 {
		return
	}

	step := sumR / float64(bins)
	next := make([]float64, bins+1)
	next[bins] = 1
	acc, j := 0.0, 0
	for k := 1; k < bins; k++ {
		target := step * float64(k)
		for j < bins-1 && acc+r[j] < target {
			acc += r[j]
			j++
		}
		frac := 0.0
		if r[j] > 0 {
			frac = math.Min((target-acc)/r[j], 1)
		}
		next[k] = g.edges[j] + frac*(g.edges[j+1]-g.edges[j])
	}
	g.edges = next
}

func (v *Vegas) Integrate(f Func, b Bounds) (Result, error) {
	if err := b.validate(); err != nil {
		return Result{}, err
	}
	dim := b.Dim()
	if b.Volume() == 0 {
		return Result{}, nil
	}

	grids := make([]*grid, dim)
	for k, iv := range b {
		grids[k] = newGrid(iv, max(v.Bins, 1))
	}

	strata := max(int(math.Floor(math.Pow(float64(v.Evals)/2, 1/float64(dim)))), 1)
	cubes := 1
	for k := 0; k < dim; k++ {
		cubes *= strata
	}
	perCube := max(v.Evals/cubes, 2)

	x := make([]float64, dim)
	bins := make([]int, dim)
	cell := make([]int, dim)

	var (
		estimates []float64
		variances []float64
		evals     int
	)
	for it := 0; it < max(v.Iterations, 1); it++ {
		clear(cell)
		integral, variance := 0.0, 0.0
		for c := 0; c < cubes; c++ {
			sum, sumSq := 0.0, 0.0
			for s := 0; s < perCube; s++ {
				jac := 1.0
				for k, g := range grids {
					y := (float64(cell[k]) + v.rng.Float64()) / float64(strata)
					var jk float64
					x[k], bins[k], jk = g.transform(y)
					jac *= jk
				}
				w := f(x) * jac
				evals++
				sum += w
				sumSq += w * w
				for k, g := range grids {
					g.acc[bins[k]] += w * w
				}
			}
			mean := sum / float64(perCube)
			varMean := (sumSq/float64(perCube) - mean*mean) / float64(perCube-1)
			integral += mean / float64(cubes)
			variance += math.Max(varMean, 0) / float64(cubes*cubes)
			advance(cell, strata)
		}
		estimates = append(estimates, integral)
		variances = append(variances, variance)
		for _, g := range grids {
			g.refine(v.Alpha)
		}
	}

	value, sd := combine(estimates, variances)
	return Result{Value: value, Error: sd, Evals: evals}, nil
}

// advance steps a mixed-radix counter with the given base per digit.
func advance(cell []int, base int) {
	for k := range cell {
		cell[k]++
		if cell[k] < base {
			return
		}
		cell[k] = 0
	}
}

// combine weights iteration estimates by inverse variance. If any variance
// is zero the estimates carry no usable spread and the plain mean is used.
func combine(estimates, variances []float64) (value, sd float64) {
	weightSum, weighted := 0.0, 0.0
	for i, e := range estimates {
		if variances[i] <= 0 {
			mean := 0.0
			for _, e := range estimates {
				mean += e
			}
			return mean / float64(len(estimates)), 0
		}
		w := 1 / variances[i]
		weightSum += w
		weighted += w * e
	}
	return weighted / weightSum, math.Sqrt(1 / weightSum)
}
