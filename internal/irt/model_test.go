package irt

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/abhisek/adaptest/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func newModel(t *testing.T, students, items, dim int) *Model {
	t.Helper()
	m, err := New(students, items, dim, rand.NewPCG(1, 2))
	require.NoError(t, err)
	return m
}

func rows(n, dim int, v float64) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, dim)
		for k := range out[i] {
			out[i][k] = v
		}
	}
	return out
}

func TestNew_InvalidShape(t *testing.T) {
	_, err := New(0, 1, 1, rand.NewPCG(1, 2))
	assert.ErrorIs(t, err, ErrInvalidShape)
	_, err = New(1, 1, 0, rand.NewPCG(1, 2))
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestPredict_ZeroParams(t *testing.T) {
	m := newModel(t, 2, 3, 1)
	require.NoError(t, m.LoadParams(Params{
		BlockAbility:        rows(2, 1, 0),
		BlockDiscrimination: rows(3, 1, 1),
		BlockDifficulty:     rows(3, 1, 0),
	}))
	assert.Equal(t, 0.5, m.Predict(0, 0))
}

func TestPredict_Formula(t *testing.T) {
	m := newModel(t, 1, 1, 2)
	require.NoError(t, m.LoadParams(Params{
		BlockAbility:        {{1, -1}},
		BlockDiscrimination: {{0.5, 2}},
		BlockDifficulty:     {{0, 0.5}},
	}))
	// 0.5*(1-0) + 2*(-1-0.5) = -2.5
	assert.InDelta(t, 1/(1+math.Exp(2.5)), m.Predict(0, 0), 1e-15)
}

func TestPredictBatch_MatchesSingle(t *testing.T) {
	m := newModel(t, 4, 6, 3)
	items := []int{5, 0, 3, 3, 1}
	for s := 0; s < 4; s++ {
		batch := m.PredictBatch(s, items)
		require.Len(t, batch, len(items))
		for i, q := range items {
			assert.InDelta(t, m.Predict(s, q), batch[i], 1e-15)
			assert.Greater(t, batch[i], 0.0)
			assert.Less(t, batch[i], 1.0)
		}
	}
}

func TestPredictAll(t *testing.T) {
	m := newModel(t, 3, 3, 1)
	data := dataset.Data{0: {0: 1, 2: 0}, 2: {1: 1}}
	preds := m.PredictAll(data)
	assert.Len(t, preds, 2)
	p, ok := preds.Get(0, 2)
	require.True(t, ok)
	assert.Equal(t, m.Predict(0, 2), p)
	_, ok = preds.Get(1, 0)
	assert.False(t, ok)
}

func TestLoadParams_Partial(t *testing.T) {
	m := newModel(t, 2, 2, 1)
	before := m.Params()

	require.NoError(t, m.LoadParams(Params{BlockDiscrimination: rows(2, 1, 3)}))
	after := m.Params()
	assert.Equal(t, before[BlockAbility], after[BlockAbility])
	assert.Equal(t, before[BlockDifficulty], after[BlockDifficulty])
	assert.Equal(t, rows(2, 1, 3), after[BlockDiscrimination])

	require.NoError(t, m.LoadParams(Params{}))
	assert.Equal(t, after, m.Params())
}

func TestLoadParams_Mismatch(t *testing.T) {
	m := newModel(t, 2, 2, 1)
	before := m.Params()

	err := m.LoadParams(Params{
		BlockAbility:    rows(2, 1, 9),
		BlockDifficulty: rows(3, 1, 0),
	})
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Equal(t, before, m.Params(), "failed load must not partially apply")

	err = m.LoadParams(Params{"gamma": rows(2, 1, 0)})
	assert.ErrorIs(t, err, ErrUnknownBlock)
}

func TestSetAbility(t *testing.T) {
	m := newModel(t, 2, 2, 2)
	require.NoError(t, m.SetAbility(1, []float64{0.25, -0.5}))
	assert.Equal(t, []float64{0.25, -0.5}, m.Ability(1))

	got := m.Ability(1)
	got[0] = 100
	assert.Equal(t, 0.25, m.Ability(1)[0], "Ability must return a copy")

	assert.ErrorIs(t, m.SetAbility(0, []float64{1}), ErrShapeMismatch)
}

func TestClone_Independent(t *testing.T) {
	m := newModel(t, 2, 2, 1)
	c := m.Clone()
	require.NoError(t, c.SetAbility(0, []float64{42}))
	assert.NotEqual(t, m.Ability(0), c.Ability(0))
}

func TestXavierNormal(t *testing.T) {
	a := XavierNormal(400, 50, rand.NewPCG(7, 7))
	b := XavierNormal(400, 50, rand.NewPCG(7, 7))
	assert.Equal(t, a, b, "same source must give the same draw")

	var flat []float64
	for _, r := range a {
		flat = append(flat, r...)
	}
	want := math.Sqrt(2.0 / 450.0)
	assert.InDelta(t, 0, stat.Mean(flat, nil), 0.01)
	assert.InDelta(t, want, stat.StdDev(flat, nil), want*0.05)
}

func TestLoss(t *testing.T) {
	assert.InDelta(t, -math.Log(1+LossEpsilon), Loss(1, 1), 1e-12)
	assert.InDelta(t, -math.Log(LossEpsilon), Loss(0, 1), 1e-12)
	assert.False(t, math.IsInf(Loss(1, 0), 0))
	assert.InDelta(t, (Loss(0.3, 1)+Loss(0.3, 0))/2, MeanLoss([]float64{0.3, 0.3}, []float64{1, 0}), 1e-12)
}

func TestBatchGradient_FiniteDifference(t *testing.T) {
	m := newModel(t, 3, 4, 2)
	batch := []dataset.Response{
		{StudentID: 0, ItemID: 1, Label: 1},
		{StudentID: 1, ItemID: 1, Label: 0},
		{StudentID: 0, ItemID: 3, Label: 0},
		{StudentID: 2, ItemID: 0, Label: 1},
	}

	g := NewGradient(2)
	require.NoError(t, m.Update(func(w *Weights) error {
		w.BatchGradient(batch, AllParams(), g)
		return nil
	}))

	const h = 1e-6
	check := func(b Block, row, k int) {
		var lossPlus, lossMinus float64
		_ = m.Update(func(w *Weights) error {
			r := w.Row(b, row)
			orig := r[k]
			r[k] = orig + h
			lossPlus = w.BatchGradient(batch, Trainable{}, NewGradient(2))
			r[k] = orig - h
			lossMinus = w.BatchGradient(batch, Trainable{}, NewGradient(2))
			r[k] = orig
			return nil
		})
		numeric := (lossPlus - lossMinus) / (2 * h)
		analytic := 0.0
		if gr := g.Row(b, row); gr != nil {
			analytic = gr[k]
		}
		assert.InDelta(t, numeric, analytic, 1e-6, "%s[%d][%d]", b, row, k)
	}
	for _, b := range Blocks {
		for row := 0; row < 3; row++ {
			for k := 0; k < 2; k++ {
				check(b, row, k)
			}
		}
	}
}

func TestBatchGradient_RespectsTrainable(t *testing.T) {
	m := newModel(t, 2, 2, 1)
	batch := []dataset.Response{
		{StudentID: 0, ItemID: 0, Label: 1},
		{StudentID: 1, ItemID: 1, Label: 0},
	}
	g := NewGradient(1)
	_ = m.View(func(w *Weights) error {
		w.BatchGradient(batch, AbilityOf(0), g)
		return nil
	})
	assert.NotNil(t, g.Row(BlockAbility, 0))
	assert.Nil(t, g.Row(BlockAbility, 1))
	assert.Nil(t, g.Row(BlockDiscrimination, 0))
	assert.Nil(t, g.Row(BlockDifficulty, 1))
}

func TestTrainable_Rows(t *testing.T) {
	m := newModel(t, 3, 2, 1)
	_ = m.View(func(w *Weights) error {
		assert.Len(t, AllParams().Rows(w), 3+2+2)
		assert.Equal(t, []RowRef{{BlockAbility, 2}}, AbilityOf(2, 2).Rows(w))
		return nil
	})
	assert.True(t, AllParams().Has(BlockDifficulty, 1))
	assert.False(t, AbilityOf(1).Has(BlockAbility, 0))
	assert.False(t, AbilityOf(1).Has(BlockDiscrimination, 0))
}
