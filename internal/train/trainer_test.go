package train

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/abhisek/adaptest/internal/dataset"
	"github.com/abhisek/adaptest/internal/irt"
	"github.com/abhisek/adaptest/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformModel(t *testing.T, students, items int) *irt.Model {
	t.Helper()
	m, err := irt.New(students, items, 1, rand.NewPCG(3, 4))
	require.NoError(t, err)

	fill := func(n int, v float64) [][]float64 {
		out := make([][]float64, n)
		for i := range out {
			out[i] = []float64{v}
		}
		return out
	}
	require.NoError(t, m.LoadParams(irt.Params{
		irt.BlockAbility:        fill(students, 0),
		irt.BlockDiscrimination: fill(items, 1),
		irt.BlockDifficulty:     fill(items, 0),
	}))
	return m
}

// separable returns responses where the first half of the students answer
// every item correctly and the second half answer every item wrong.
func separable(students, items int) []dataset.Response {
	var out []dataset.Response
	for s := 0; s < students; s++ {
		label := 0.0
		if s < students/2 {
			label = 1
		}
		for q := 0; q < items; q++ {
			out = append(out, dataset.Response{StudentID: s, ItemID: q, Label: label})
		}
	}
	return out
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"zero lr", func(c *Config) { c.LearningRate = 0 }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"zero epochs", func(c *Config) { c.NumEpochs = 0 }},
		{"negative log step", func(c *Config) { c.LogStep = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestUpdate_SingleCorrectResponse(t *testing.T) {
	m := uniformModel(t, 2, 3)
	require.Equal(t, 0.5, m.Predict(0, 0))
	itemsBefore := m.Params()

	short := m.Clone()
	cfg := Config{LearningRate: 0.1, BatchSize: 32, NumEpochs: 10, Seed: 1}
	_, err := New(cfg).Update(context.Background(), short, 0, []dataset.Response{{StudentID: 0, ItemID: 0, Label: 1}})
	require.NoError(t, err)

	cfg.NumEpochs = 50
	st, err := New(cfg).Update(context.Background(), m, 0, []dataset.Response{{StudentID: 0, ItemID: 0, Label: 1}})
	require.NoError(t, err)
	assert.Equal(t, 50, st.Epochs)
	assert.Equal(t, 50, st.Steps)

	pShort, pLong := short.Predict(0, 0), m.Predict(0, 0)
	assert.Greater(t, pShort, 0.5)
	assert.Greater(t, pLong, pShort)
	assert.Less(t, pLong, 1.0)

	after := m.Params()
	assert.Equal(t, itemsBefore[irt.BlockDiscrimination], after[irt.BlockDiscrimination])
	assert.Equal(t, itemsBefore[irt.BlockDifficulty], after[irt.BlockDifficulty])
	assert.Equal(t, itemsBefore[irt.BlockAbility][1], after[irt.BlockAbility][1], "other students untouched")
}

func TestUpdate_WrongResponseLowersAbility(t *testing.T) {
	m := uniformModel(t, 1, 2)
	cfg := Config{LearningRate: 0.05, BatchSize: 4, NumEpochs: 20, Seed: 9}
	_, err := New(cfg).Update(context.Background(), m, 0, []dataset.Response{
		{StudentID: 0, ItemID: 0, Label: 0},
		{StudentID: 0, ItemID: 1, Label: 0},
	})
	require.NoError(t, err)
	assert.Less(t, m.Ability(0)[0], 0.0)
}

func TestUpdate_Rejects(t *testing.T) {
	m := uniformModel(t, 2, 2)
	tr := New(DefaultConfig())

	_, err := tr.Update(context.Background(), m, 0, []dataset.Response{{StudentID: 1, ItemID: 0, Label: 1}})
	assert.ErrorIs(t, err, ErrForeignResponse)

	_, err = tr.Update(context.Background(), m, 0, []dataset.Response{{StudentID: 0, ItemID: 7, Label: 1}})
	assert.ErrorIs(t, err, ErrOutOfRange)

	before := m.Params()
	st, err := tr.Update(context.Background(), m, 0, nil)
	require.NoError(t, err)
	assert.Zero(t, st.Steps)
	assert.Equal(t, before, m.Params())
}

func TestUpdateAll(t *testing.T) {
	m := uniformModel(t, 3, 2)
	cfg := Config{LearningRate: 0.1, BatchSize: 8, NumEpochs: 10, Seed: 1}
	err := New(cfg).UpdateAll(context.Background(), m, []dataset.Response{
		{StudentID: 2, ItemID: 0, Label: 0},
		{StudentID: 0, ItemID: 1, Label: 1},
		{StudentID: 2, ItemID: 1, Label: 0},
	})
	require.NoError(t, err)
	assert.Greater(t, m.Ability(0)[0], 0.0)
	assert.Equal(t, 0.0, m.Ability(1)[0])
	assert.Less(t, m.Ability(2)[0], 0.0)
}

func TestFit_Separable(t *testing.T) {
	m, err := irt.New(20, 10, 1, rand.NewPCG(5, 6))
	require.NoError(t, err)
	before := m.Params()

	reg := metrics.New()
	cfg := Config{LearningRate: 0.05, BatchSize: 16, NumEpochs: 150, Seed: 2}
	st, err := New(cfg, WithMetrics(reg)).Fit(context.Background(), m, separable(20, 10))
	require.NoError(t, err)
	assert.Equal(t, 150, st.Epochs)
	assert.Equal(t, 150*13, st.Steps)
	assert.Less(t, st.Loss, 0.1)

	after := m.Params()
	for _, b := range irt.Blocks {
		assert.NotEqual(t, before[b], after[b], "block %s should train", b)
	}
	for s := 0; s < 20; s++ {
		for q := 0; q < 10; q++ {
			p := m.Predict(s, q)
			if s < 10 {
				assert.Greater(t, p, 0.5, "student %d item %d", s, q)
			} else {
				assert.Less(t, p, 0.5, "student %d item %d", s, q)
			}
		}
	}
}

func TestFit_Deterministic(t *testing.T) {
	a, err := irt.New(6, 4, 2, rand.NewPCG(1, 1))
	require.NoError(t, err)
	b := a.Clone()

	cfg := Config{LearningRate: 0.01, BatchSize: 5, NumEpochs: 3, Seed: 42}
	data := separable(6, 4)
	_, err = New(cfg).Fit(context.Background(), a, data)
	require.NoError(t, err)
	_, err = New(cfg).Fit(context.Background(), b, data)
	require.NoError(t, err)
	assert.Equal(t, a.Params(), b.Params())
}

func TestFit_Errors(t *testing.T) {
	m := uniformModel(t, 2, 2)

	_, err := New(DefaultConfig()).Fit(context.Background(), m, nil)
	assert.ErrorIs(t, err, ErrNoResponses)

	_, err = New(Config{}).Fit(context.Background(), m, separable(2, 2))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(DefaultConfig()).Fit(ctx, m, separable(2, 2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdam_FrozenRows(t *testing.T) {
	m := uniformModel(t, 2, 2)
	before := m.Params()

	batch := []dataset.Response{
		{StudentID: 0, ItemID: 0, Label: 1},
		{StudentID: 1, ItemID: 1, Label: 0},
	}
	require.NoError(t, m.Update(func(w *irt.Weights) error {
		Descend(w, batch, irt.AbilityOf(1), 0.1, 5)
		return nil
	}))

	after := m.Params()
	assert.Equal(t, before[irt.BlockAbility][0], after[irt.BlockAbility][0])
	assert.Equal(t, before[irt.BlockDiscrimination], after[irt.BlockDiscrimination])
	assert.Equal(t, before[irt.BlockDifficulty], after[irt.BlockDifficulty])
	assert.Less(t, after[irt.BlockAbility][1][0], 0.0)
}

func TestAdam_FirstStepSize(t *testing.T) {
	m := uniformModel(t, 1, 1)
	require.NoError(t, m.Update(func(w *irt.Weights) error {
		Descend(w, []dataset.Response{{StudentID: 0, ItemID: 0, Label: 1}}, irt.AbilityOf(0), 0.1, 1)
		return nil
	}))
	// Bias-corrected Adam moves by lr·sign(g) on its first step.
	assert.InDelta(t, 0.1, m.Ability(0)[0], 1e-6)
}
