// Package integrate provides definite integrals over boxes in one or more
// dimensions. One-dimensional integrals use adaptive Gauss-Legendre
// quadrature; higher dimensions use VEGAS Monte-Carlo.
package integrate

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	ErrDimension = errors.New("integrator does not support this dimension")
	ErrBounds    = errors.New("invalid integration bounds")
)

// Func is an integrand. The argument slice is reused between calls and must
// not be retained.
type Func func(x []float64) float64

// Interval is one axis of an integration box.
type Interval struct {
	Lo, Hi float64
}

// Bounds is an axis-aligned box, one interval per dimension.
type Bounds []Interval

// Box pairs lo[k] with hi[k] for every axis.
func Box(lo, hi []float64) Bounds {
	b := make(Bounds, len(lo))
	for k := range lo {
		b[k] = Interval{Lo: lo[k], Hi: hi[k]}
	}
	return b
}

// Dim returns the number of axes.
func (b Bounds) Dim() int { return len(b) }

// Volume returns the product of the axis widths.
func (b Bounds) Volume() float64 {
	v := 1.0
	for _, iv := range b {
		v *= iv.Hi - iv.Lo
	}
	return v
}

func (b Bounds) validate() error {
	if len(b) == 0 {
		return fmt.Errorf("%w: no axes", ErrBounds)
	}
	for k, iv := range b {
		if !(iv.Lo <= iv.Hi) {
			return fmt.Errorf("%w: axis %d has lo %g > hi %g", ErrBounds, k, iv.Lo, iv.Hi)
		}
	}
	return nil
}

// Result is an integral estimate.
type Result struct {
	Value float64
	// Error is the estimated absolute error: the quadrature panel
	// disagreement, or the Monte-Carlo standard deviation.
	Error float64
	Evals int
}

// Integrator estimates the integral of f over b.
type Integrator interface {
	Integrate(f Func, b Bounds) (Result, error)
}

// For returns the integrator used for a dim-dimensional ability space.
// src seeds Monte-Carlo sampling and is ignored for dim 1.
func For(dim int, src rand.Source) (Integrator, error) {
	switch {
	case dim < 1:
		return nil, fmt.Errorf("%w: %d", ErrDimension, dim)
	case dim == 1:
		return NewQuadrature(), nil
	default:
		return NewVegas(src), nil
	}
}
