package irt

import "github.com/abhisek/adaptest/internal/dataset"

// Weights is the unlocked view of a model's tensors handed out by
// Model.Update and Model.View.
type Weights struct {
	dim   int
	theta [][]float64
	alpha [][]float64
	beta  [][]float64
}

// Dim returns the latent dimension.
func (w *Weights) Dim() int { return w.dim }

// Prob returns the response probability for a pair.
func (w *Weights) Prob(student, item int) float64 {
	return Prob(w.alpha[item], w.theta[student], w.beta[item])
}

// Row returns the live row of a block. Writes go straight to the model.
func (w *Weights) Row(b Block, i int) []float64 {
	return w.block(b)[i]
}

// Rows returns the number of rows in a block.
func (w *Weights) Rows(b Block) int {
	return len(w.block(b))
}

func (w *Weights) block(b Block) [][]float64 {
	switch b {
	case BlockAbility:
		return w.theta
	case BlockDiscrimination:
		return w.alpha
	case BlockDifficulty:
		return w.beta
	}
	return nil
}

// BatchGradient adds the gradient of the mean batch loss to g, restricted to
// the rows in t, and returns the mean loss.
func (w *Weights) BatchGradient(batch []dataset.Response, t Trainable, g *Gradient) float64 {
	if len(batch) == 0 {
		return 0
	}
	scale := 1 / float64(len(batch))
	total := 0.0
	for _, r := range batch {
		theta, alpha, beta := w.theta[r.StudentID], w.alpha[r.ItemID], w.beta[r.ItemID]
		p := Prob(alpha, theta, beta)
		total += Loss(p, r.Label)
		dz := LossGradLogit(p, r.Label) * scale

		if t.Has(BlockAbility, r.StudentID) {
			gt := g.row(BlockAbility, r.StudentID)
			for k := range gt {
				gt[k] += dz * alpha[k]
			}
		}
		if t.Has(BlockDiscrimination, r.ItemID) {
			ga := g.row(BlockDiscrimination, r.ItemID)
			gb := g.row(BlockDifficulty, r.ItemID)
			for k := range ga {
				ga[k] += dz * (theta[k] - beta[k])
				gb[k] -= dz * alpha[k]
			}
		}
	}
	return total * scale
}

// Gradient holds sparse per-row gradients. Rows never touched read as zero.
type Gradient struct {
	dim  int
	rows map[Block]map[int][]float64
}

// NewGradient returns an empty gradient for a model of dimension dim.
func NewGradient(dim int) *Gradient {
	return &Gradient{dim: dim, rows: make(map[Block]map[int][]float64, len(Blocks))}
}

// Row returns the gradient row, or nil when it is zero.
func (g *Gradient) Row(b Block, i int) []float64 {
	return g.rows[b][i]
}

// Reset zeroes the gradient, keeping allocations for reuse.
func (g *Gradient) Reset() {
	for _, rows := range g.rows {
		for _, r := range rows {
			clear(r)
		}
	}
}

func (g *Gradient) row(b Block, i int) []float64 {
	rows, ok := g.rows[b]
	if !ok {
		rows = make(map[int][]float64)
		g.rows[b] = rows
	}
	r, ok := rows[i]
	if !ok {
		r = make([]float64, g.dim)
		rows[i] = r
	}
	return r
}
