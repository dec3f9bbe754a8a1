package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/adaptest/internal/adaptive"
	"github.com/abhisek/adaptest/internal/dataset"
	"github.com/abhisek/adaptest/internal/eval"
	"github.com/abhisek/adaptest/internal/store"
)

// writeDataset simulates a 1PL response log: 40 students, 8 items, two
// concepts per item.
func writeDataset(t *testing.T, dir string) string {
	t.Helper()
	rng := rand.New(rand.NewPCG(9, 9))
	ds := dataset.Dataset{NumStudents: 40, NumItems: 8, Concepts: dataset.ConceptMap{}}
	for q := 0; q < ds.NumItems; q++ {
		ds.Concepts[q] = []int{q % 3, 3 + q%2}
	}
	for s := 0; s < ds.NumStudents; s++ {
		theta := rng.NormFloat64()
		for q := 0; q < ds.NumItems; q++ {
			b := float64(q-4) / 2
			p := 1 / (1 + math.Exp(-(theta - b)))
			y := 0.0
			if rng.Float64() < p {
				y = 1
			}
			ds.Responses = append(ds.Responses, dataset.Response{StudentID: s, ItemID: q, Label: y})
		}
	}
	body, err := json.Marshal(ds)
	require.NoError(t, err)
	p := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(p, body, 0o644))
	return p
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "adaptest.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
train:
  learning_rate: 0.05
  num_epochs: 5
update:
  learning_rate: 0.05
  num_epochs: 2
test:
  length: 3
  workers: 2
log:
  mode: prod
`), 0o644))
	return p
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := Execute(context.Background())
	return out.String(), err
}

func TestCommands_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	data := writeDataset(t, dir)
	cfg := writeConfig(t, dir)
	db := filepath.Join(dir, "db", "adaptest.db")
	common := []string{"--db", db, "--config", cfg}

	out, err := run(t, append([]string{"fit", "--data", data, "--name", "bank", "--epochs", "5"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Calibrated bank")
	assert.Contains(t, out, "accuracy")

	prom := filepath.Join(dir, "sim.prom")
	out, err = run(t, append([]string{"simulate", "--data", data, "--name", "bank",
		"--strategy", "mfi", "--length", "3", "--update-every", "1", "--metrics-out", prom}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "strategy mfi, 3 rounds")
	assert.Contains(t, out, "coverage")

	body, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(body), `adaptest_selections_total{strategy="mfi"} 24`)
	assert.Contains(t, string(body), `adaptest_train_steps_total{mode="update"}`)

	_, err = run(t, append([]string{"fit", "--data", data, "--name", "bank", "--epochs", "1"}, common...)...)
	require.NoError(t, err)

	out, err = run(t, append([]string{"checkpoints"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "bank")
	assert.Contains(t, out, "theta,alpha,beta")

	out, err = run(t, append([]string{"checkpoints", "prune", "bank", "--keep", "1"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 1 checkpoint(s) of bank.")

	_, err = run(t, append([]string{"simulate", "--data", data, "--name", "missing",
		"--strategy", "mfi", "--length", "3", "--update-every", "1", "--metrics-out", ""}, common...)...)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCommands_Errors(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	_, err := run(t, "stats", "--data", "")
	assert.ErrorContains(t, err, "--data is required")

	_, err = run(t, "fit", "--data", filepath.Join(dir, "nope.json"), "--config", cfg, "--db", filepath.Join(dir, "x.db"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = run(t, "checkpoints", "--config", cfg, "--db", filepath.Join(dir, "x.db"), "--log-mode", "loud")
	assert.Error(t, err)
	_, _ = run(t, "version", "--log-mode", "")
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	data := writeDataset(t, dir)
	out, err := run(t, "stats", "--data", data)
	require.NoError(t, err)
	assert.Contains(t, out, "students   40")
	assert.Contains(t, out, "concepts   5")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "adaptest (devel)")
	assert.Contains(t, out, store.FormatVersion)
}

func TestRenderResult(t *testing.T) {
	res := &adaptive.Result{ID: "run-1", Strategy: "kli", Rounds: []adaptive.Round{
		{Round: 1, Selected: 4, Report: eval.Report{Accuracy: 0.5, AUC: math.NaN(), Coverage: 0.25}, Elapsed: 1500 * time.Microsecond},
		{Round: 2, Selected: 4, Report: eval.Report{Accuracy: 0.75, AUC: 0.8, Coverage: 0.5}, Elapsed: 2 * time.Millisecond},
	}}
	out := renderResult(res)
	assert.Contains(t, out, "strategy kli, 2 rounds")
	assert.Contains(t, out, "n/a")
	assert.Contains(t, out, "0.800")
	assert.Contains(t, out, "2ms")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abcdefgh", shortID("abcdefgh-1234"))
	assert.Equal(t, "abc", shortID("abc"))
}
