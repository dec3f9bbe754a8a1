package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecording(t *testing.T) {
	m := New()
	m.TrainSteps("fit", 3)
	m.TrainSteps("fit", 2)
	m.TrainLoss("fit", 0.25)
	m.Selections("kli", 4, 10*time.Millisecond)
	m.Eval(0.75, 0.8, 0.5)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.trainSteps.WithLabelValues("fit")))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.trainLoss.WithLabelValues("fit")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.selections.WithLabelValues("kli")))
	assert.Equal(t, 0.8, testutil.ToFloat64(m.eval.WithLabelValues("auc")))
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TrainSteps("fit", 1)
		m.TrainLoss("fit", 1)
		m.Selections("random", 1, time.Second)
		m.Eval(1, 1, 1)
	})
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.Selections("mfi", 2, time.Millisecond)

	path := filepath.Join(t.TempDir(), "adaptest.prom")
	require.NoError(t, m.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `adaptest_selections_total{strategy="mfi"} 2`)
}
