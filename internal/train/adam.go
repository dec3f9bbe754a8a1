package train

import (
	"math"

	"github.com/abhisek/adaptest/internal/irt"
)

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// Adam is an Adam optimizer bound to a fixed trainable subset. Moment
// estimates are kept per trainable row, and rows outside the subset are
// never touched. A new Adam starts with zeroed moments.
type Adam struct {
	lr        float64
	t         int
	trainable irt.Trainable
	refs      []irt.RowRef
	m         [][]float64
	v         [][]float64
}

// NewAdam builds an optimizer over the rows of w selected by trainable.
func NewAdam(w *irt.Weights, trainable irt.Trainable, lr float64) *Adam {
	refs := trainable.Rows(w)
	a := &Adam{
		lr:        lr,
		trainable: trainable,
		refs:      refs,
		m:         make([][]float64, len(refs)),
		v:         make([][]float64, len(refs)),
	}
	for i := range refs {
		a.m[i] = make([]float64, w.Dim())
		a.v[i] = make([]float64, w.Dim())
	}
	return a
}

// Trainable returns the subset this optimizer was built for.
func (a *Adam) Trainable() irt.Trainable {
	return a.trainable
}

// Step applies one bias-corrected Adam update. Rows without a gradient
// entry are treated as having a zero gradient, so accumulated momentum
// still moves them.
func (a *Adam) Step(w *irt.Weights, g *irt.Gradient) {
	a.t++
	b1Corr := 1 - math.Pow(adamBeta1, float64(a.t))
	b2Corr := 1 - math.Pow(adamBeta2, float64(a.t))

	for i, ref := range a.refs {
		p := w.Row(ref.Block, ref.Row)
		grad := g.Row(ref.Block, ref.Row)
		mi, vi := a.m[i], a.v[i]
		for k := range p {
			gk := 0.0
			if grad != nil {
				gk = grad[k]
			}
			mi[k] = adamBeta1*mi[k] + (1-adamBeta1)*gk
			vi[k] = adamBeta2*vi[k] + (1-adamBeta2)*gk*gk
			mhat := mi[k] / b1Corr
			vhat := vi[k] / b2Corr
			p[k] -= a.lr * mhat / (math.Sqrt(vhat) + adamEps)
		}
	}
}
