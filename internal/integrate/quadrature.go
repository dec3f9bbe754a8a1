package integrate

import (
	"container/heap"
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"
)

const (
	DefaultAbsTol = 1.49e-8
	DefaultRelTol = 1.49e-8
	DefaultLimit  = 50
)

// Quadrature integrates one-dimensional functions by adaptive bisection.
// Each panel is evaluated with a coarse and a fine Gauss-Legendre rule; the
// panel with the largest disagreement is split until the summed
// disagreement meets the tolerance or Limit panels exist.
type Quadrature struct {
	AbsTol float64
	RelTol float64
	Limit  int

	Coarse int
	Fine   int
}

func NewQuadrature() *Quadrature {
	return &Quadrature{
		AbsTol: DefaultAbsTol,
		RelTol: DefaultRelTol,
		Limit:  DefaultLimit,
		Coarse: 10,
		Fine:   21,
	}
}

type panel struct {
	lo, hi float64
	value  float64
	err    float64
}

// panelHeap pops the panel with the largest error first.
type panelHeap []panel

func (h panelHeap) Len() int           { return len(h) }
func (h panelHeap) Less(i, j int) bool { return h[i].err > h[j].err }
func (h panelHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *panelHeap) Push(x any)        { *h = append(*h, x.(panel)) }
func (h *panelHeap) Pop() any {
	old := *h
	p := old[len(old)-1]
	*h = old[:len(old)-1]
	return p
}

func (q *Quadrature) Integrate(f Func, b Bounds) (Result, error) {
	if err := b.validate(); err != nil {
		return Result{}, err
	}
	if b.Dim() != 1 {
		return Result{}, fmt.Errorf("%w: quadrature needs 1 axis, got %d", ErrDimension, b.Dim())
	}
	lo, hi := b[0].Lo, b[0].Hi
	if lo == hi {
		return Result{}, nil
	}

	x := make([]float64, 1)
	g := func(t float64) float64 {
		x[0] = t
		return f(x)
	}

	evals := 0
	eval := func(lo, hi float64) panel {
		coarse := quad.Fixed(g, lo, hi, q.Coarse, quad.Legendre{}, 0)
		fine := quad.Fixed(g, lo, hi, q.Fine, quad.Legendre{}, 0)
		evals += q.Coarse + q.Fine
		return panel{lo: lo, hi: hi, value: fine, err: math.Abs(fine - coarse)}
	}

	h := &panelHeap{eval(lo, hi)}
	total, errSum := (*h)[0].value, (*h)[0].err
	for h.Len() < q.Limit && errSum > math.Max(q.AbsTol, q.RelTol*math.Abs(total)) {
		p := heap.Pop(h).(panel)
		mid := p.lo + (p.hi-p.lo)/2
		left, right := eval(p.lo, mid), eval(mid, p.hi)
		heap.Push(h, left)
		heap.Push(h, right)
		total += left.value + right.value - p.value
		errSum += left.err + right.err - p.err
	}

	// Re-sum to shed the drift of the running totals.
	total, errSum = 0, 0
	for _, p := range *h {
		total += p.value
		errSum += p.err
	}
	return Result{Value: total, Error: errSum, Evals: evals}, nil
}
