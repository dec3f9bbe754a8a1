// Package selection scores candidate items for a student and picks the next
// item to administer.
package selection

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/abhisek/adaptest/internal/dataset"
	"github.com/abhisek/adaptest/internal/integrate"
	"github.com/abhisek/adaptest/internal/irt"
	"github.com/abhisek/adaptest/internal/train"
)

var (
	ErrNoPrediction = errors.New("no prediction for student and item")
	ErrOutOfRange   = errors.New("student or item outside model")
)

// probFloor keeps the KL integrand finite where the model saturates.
const probFloor = 1e-12

// Fisher returns the Fisher information of item at the student's current
// ability: p·(1−p)·αα^T, a d×d symmetric positive semi-definite matrix.
func Fisher(m *irt.Model, student, item int, preds irt.Predictions) (*mat.SymDense, error) {
	p, err := prediction(m, student, item, preds)
	if err != nil {
		return nil, err
	}
	d := m.Dim()
	alpha := m.Discrimination(item)
	fi := mat.NewSymDense(d, nil)
	fi.SymRankOne(fi, p*(1-p), mat.NewVecDense(d, alpha))
	return fi, nil
}

// KLI returns the Kullback-Leibler information of item for a student who
// has answered n items: the KL divergence between the response
// distribution at the current ability and at ability x, integrated over the
// box θ ± 3/√n. With n == 0 the box is unbounded and KLI is +Inf.
//
// src seeds the Monte-Carlo integrator used when the model has more than
// one dimension.
func KLI(m *irt.Model, student, item, n int, preds irt.Predictions, src rand.Source) (float64, error) {
	p, err := prediction(m, student, item, preds)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return math.Inf(1), nil
	}

	theta := m.Ability(student)
	alpha := m.Discrimination(item)
	beta := m.Difficulty(item)

	r := 3 / math.Sqrt(float64(n))
	lo, hi := slices.Clone(theta), slices.Clone(theta)
	floats.AddConst(-r, lo)
	floats.AddConst(r, hi)

	in, err := integrate.For(m.Dim(), src)
	if err != nil {
		return 0, err
	}

	p = clampProb(p)
	q := 1 - p
	res, err := in.Integrate(func(x []float64) float64 {
		px := clampProb(irt.Prob(alpha, x, beta))
		return p*math.Log(p/px) + q*math.Log(q/(1-px))
	}, integrate.Box(lo, hi))
	if err != nil {
		return 0, fmt.Errorf("integrate kli: %w", err)
	}
	return math.Max(res.Value, 0), nil
}

// EMC returns the expected model change of administering item: the
// probability-weighted distance the student's ability would move after a
// counterfactual update on label 1 and on label 0. Each branch runs
// cfg.NumEpochs steps of a fresh optimizer on the single response and is
// undone before returning. The model is locked exclusively throughout, so
// no caller can observe the transient ability.
func EMC(m *irt.Model, student, item int, preds irt.Predictions, cfg train.Config) (float64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	p, err := prediction(m, student, item, preds)
	if err != nil {
		return 0, err
	}

	var pos, neg float64
	err = m.Update(func(w *irt.Weights) error {
		row := w.Row(irt.BlockAbility, student)
		orig := slices.Clone(row)
		only := irt.AbilityOf(student)

		branch := func(label float64) float64 {
			batch := []dataset.Response{{StudentID: student, ItemID: item, Label: label}}
			train.Descend(w, batch, only, cfg.LearningRate, cfg.NumEpochs)
			dist := floats.Distance(row, orig, 2)
			copy(row, orig)
			return dist
		}
		pos = branch(1)
		neg = branch(0)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return p*pos + (1-p)*neg, nil
}

func prediction(m *irt.Model, student, item int, preds irt.Predictions) (float64, error) {
	if student < 0 || student >= m.NumStudents() || item < 0 || item >= m.NumItems() {
		return 0, fmt.Errorf("%w: student %d item %d", ErrOutOfRange, student, item)
	}
	p, ok := preds.Get(student, item)
	if !ok {
		return 0, fmt.Errorf("%w: student %d item %d", ErrNoPrediction, student, item)
	}
	return p, nil
}

func clampProb(p float64) float64 {
	return math.Min(math.Max(p, probFloor), 1-probFloor)
}
