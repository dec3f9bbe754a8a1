// Package irt implements the two-parameter logistic item response model and
// its multidimensional generalization.
//
// A student s answers item i correctly with probability
//
//	sigmoid(alpha_i · (theta_s − beta_i))
//
// where theta is the student's ability vector and alpha/beta are the item's
// discrimination and difficulty vectors, all of dimension D. D == 1 is the
// classical 2PL model.
package irt

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/abhisek/adaptest/internal/dataset"
)

var (
	ErrInvalidShape  = errors.New("invalid model shape")
	ErrShapeMismatch = errors.New("parameter block shape mismatch")
	ErrUnknownBlock  = errors.New("unknown parameter block")
)

// Block names one of the three parameter tensors.
type Block string

const (
	BlockAbility        Block = "theta"
	BlockDiscrimination Block = "alpha"
	BlockDifficulty     Block = "beta"
)

// Blocks lists every block in a stable order.
var Blocks = []Block{BlockAbility, BlockDiscrimination, BlockDifficulty}

// Params is the opaque block → tensor map exchanged with parameter stores.
// A Params value may hold any subset of the blocks.
type Params map[Block][][]float64

// Predictions caches model output as student → item → probability.
type Predictions map[int]map[int]float64

// Get returns the cached prediction for a pair.
func (p Predictions) Get(student, item int) (float64, bool) {
	row, ok := p[student]
	if !ok {
		return 0, false
	}
	v, ok := row[item]
	return v, ok
}

// Model owns the ability, discrimination and difficulty tensors.
//
// Reads take a shared lock and training takes the exclusive lock, so calls
// for different students may run concurrently. Callers still serialize
// updates for the same student.
type Model struct {
	mu sync.RWMutex
	w  Weights
}

// New builds a model with Xavier-normal initialized parameters drawn from src.
func New(numStudents, numItems, dim int, src rand.Source) (*Model, error) {
	if numStudents <= 0 || numItems <= 0 || dim <= 0 {
		return nil, fmt.Errorf("%w: students=%d items=%d dim=%d", ErrInvalidShape, numStudents, numItems, dim)
	}
	return &Model{w: Weights{
		dim:   dim,
		theta: XavierNormal(numStudents, dim, src),
		alpha: XavierNormal(numItems, dim, src),
		beta:  XavierNormal(numItems, dim, src),
	}}, nil
}

// Dim returns the latent dimension D.
func (m *Model) Dim() int { return m.w.dim }

// NumStudents returns the number of ability rows.
func (m *Model) NumStudents() int { return len(m.w.theta) }

// NumItems returns the number of item rows.
func (m *Model) NumItems() int { return len(m.w.alpha) }

// Predict returns the probability that student answers item correctly.
func (m *Model) Predict(student, item int) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.w.Prob(student, item)
}

// PredictBatch evaluates one student against many items.
func (m *Model) PredictBatch(student int, items []int) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]float64, len(items))
	for i, qid := range items {
		out[i] = m.w.Prob(student, qid)
	}
	return out
}

// PredictAll evaluates every pair on record in data.
func (m *Model) PredictAll(data dataset.Data) Predictions {
	preds := make(Predictions, len(data))
	for _, sid := range data.Students() {
		items := data.Items(sid)
		probs := m.PredictBatch(sid, items)
		row := make(map[int]float64, len(items))
		for i, qid := range items {
			row[qid] = probs[i]
		}
		preds[sid] = row
	}
	return preds
}

// Ability returns a copy of a student's ability vector.
func (m *Model) Ability(student int) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.w.theta[student])
}

// Discrimination returns a copy of an item's discrimination vector.
func (m *Model) Discrimination(item int) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.w.alpha[item])
}

// Difficulty returns a copy of an item's difficulty vector.
func (m *Model) Difficulty(item int) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.w.beta[item])
}

// SetAbility overwrites a student's ability vector.
func (m *Model) SetAbility(student int, theta []float64) error {
	if len(theta) != m.w.dim {
		return fmt.Errorf("%w: ability has %d dims, model has %d", ErrShapeMismatch, len(theta), m.w.dim)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.w.theta[student], theta)
	return nil
}

// Params returns a deep copy of all three blocks.
func (m *Model) Params() Params {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Params{
		BlockAbility:        cloneRows(m.w.theta),
		BlockDiscrimination: cloneRows(m.w.alpha),
		BlockDifficulty:     cloneRows(m.w.beta),
	}
}

// LoadParams copies the blocks present in p into the model. Missing blocks
// keep their current values, so item-only or ability-only checkpoints load
// without error. Present blocks must match the model shape exactly.
func (m *Model) LoadParams(p Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for block, rows := range p {
		dst := m.w.block(block)
		if dst == nil {
			return fmt.Errorf("%w: %q", ErrUnknownBlock, block)
		}
		if err := checkShape(rows, len(dst), m.w.dim); err != nil {
			return fmt.Errorf("block %s: %w", block, err)
		}
	}
	for block, rows := range p {
		dst := m.w.block(block)
		for i := range rows {
			copy(dst[i], rows[i])
		}
	}
	return nil
}

// Clone returns an independent copy of the model.
func (m *Model) Clone() *Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Model{w: Weights{
		dim:   m.w.dim,
		theta: cloneRows(m.w.theta),
		alpha: cloneRows(m.w.alpha),
		beta:  cloneRows(m.w.beta),
	}}
}

// Update runs fn with exclusive access to the live weights. Everything fn
// does happens without any other reader or writer interleaving.
func (m *Model) Update(fn func(w *Weights) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&m.w)
}

// View runs fn with shared read access to the live weights. fn must not
// modify them.
func (m *Model) View(fn func(w *Weights) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&m.w)
}

// Sigmoid is the logistic function.
func Sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// Prob evaluates the response function for explicit parameter vectors.
func Prob(alpha, theta, beta []float64) float64 {
	return Sigmoid(Logit(alpha, theta, beta))
}

// Logit returns alpha · (theta − beta).
func Logit(alpha, theta, beta []float64) float64 {
	z := 0.0
	for k := range alpha {
		z += alpha[k] * (theta[k] - beta[k])
	}
	return z
}

func checkShape(rows [][]float64, n, dim int) error {
	if len(rows) != n {
		return fmt.Errorf("%w: %d rows, want %d", ErrShapeMismatch, len(rows), n)
	}
	for i, r := range rows {
		if len(r) != dim {
			return fmt.Errorf("%w: row %d has %d cols, want %d", ErrShapeMismatch, i, len(r), dim)
		}
	}
	return nil
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func cloneRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = clone(r)
	}
	return out
}
