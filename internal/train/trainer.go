package train

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"

	"github.com/abhisek/adaptest/internal/dataset"
	"github.com/abhisek/adaptest/internal/irt"
	"github.com/abhisek/adaptest/internal/logger"
	"github.com/abhisek/adaptest/internal/metrics"
)

var (
	ErrNoResponses     = errors.New("no responses to train on")
	ErrForeignResponse = errors.New("response belongs to another student")
	ErrOutOfRange      = errors.New("response id outside model")
)

// shuffleStream is the second PCG word; the first is Config.Seed.
const shuffleStream = 0x9e3779b97f4a7c15

// Stats summarizes one training call.
type Stats struct {
	Epochs int
	Steps  int
	// Loss is the mean batch loss of the final epoch.
	Loss float64
}

// Trainer fits IRT models by mini-batch Adam on the log-loss.
type Trainer struct {
	cfg     Config
	log     *logger.Logger
	metrics *metrics.Metrics
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the logger used for epoch and batch progress.
func WithLogger(l *logger.Logger) Option {
	return func(t *Trainer) { t.log = l }
}

// WithMetrics records step counts and losses.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Trainer) { t.metrics = m }
}

// New creates a trainer. cfg is validated on every call, not here.
func New(cfg Config, opts ...Option) *Trainer {
	t := &Trainer{cfg: cfg}
	for _, o := range opts {
		o(t)
	}
	t.log = logger.OrNop(t.log)
	return t
}

// Config returns the trainer's settings.
func (t *Trainer) Config() Config {
	return t.cfg
}

// Fit runs NumEpochs shuffled mini-batch passes over responses, updating
// ability, discrimination and difficulty together. There is no early
// stopping. The context is checked between batches.
func (t *Trainer) Fit(ctx context.Context, m *irt.Model, responses []dataset.Response) (Stats, error) {
	if err := t.cfg.Validate(); err != nil {
		return Stats{}, err
	}
	if len(responses) == 0 {
		return Stats{}, ErrNoResponses
	}
	if err := checkRange(m, responses); err != nil {
		return Stats{}, err
	}

	rng := rand.New(rand.NewPCG(t.cfg.Seed, shuffleStream))
	st, err := t.run(ctx, m, responses, irt.AllParams(), t.cfg.BatchSize, rng, "fit")
	if err != nil {
		return st, err
	}
	t.log.Info("batch fit complete", "responses", len(responses), "epochs", st.Epochs, "steps", st.Steps, "loss", st.Loss)
	return st, nil
}

// Update refits one student's ability on that student's responses with the
// item bank frozen. Responses may be the full tested history or just the
// latest one; the loss is the same either way. Nothing but the student's
// ability row changes.
func (t *Trainer) Update(ctx context.Context, m *irt.Model, student int, responses []dataset.Response) (Stats, error) {
	if err := t.cfg.Validate(); err != nil {
		return Stats{}, err
	}
	if len(responses) == 0 {
		return Stats{}, nil
	}
	for _, r := range responses {
		if r.StudentID != student {
			return Stats{}, fmt.Errorf("%w: student %d in update for %d", ErrForeignResponse, r.StudentID, student)
		}
	}
	if err := checkRange(m, responses); err != nil {
		return Stats{}, err
	}

	batchSize := min(t.cfg.BatchSize, len(responses))
	rng := rand.New(rand.NewPCG(t.cfg.Seed^uint64(student), shuffleStream))
	return t.run(ctx, m, responses, irt.AbilityOf(student), batchSize, rng, "update")
}

// UpdateAll groups a flat response list by student and updates each
// student in ascending id order.
func (t *Trainer) UpdateAll(ctx context.Context, m *irt.Model, responses []dataset.Response) error {
	byStudent := make(map[int][]dataset.Response)
	for _, r := range responses {
		byStudent[r.StudentID] = append(byStudent[r.StudentID], r)
	}
	students := make([]int, 0, len(byStudent))
	for sid := range byStudent {
		students = append(students, sid)
	}
	sort.Ints(students)

	for _, sid := range students {
		if _, err := t.Update(ctx, m, sid, byStudent[sid]); err != nil {
			return fmt.Errorf("update student %d: %w", sid, err)
		}
	}
	return nil
}

func (t *Trainer) run(ctx context.Context, m *irt.Model, responses []dataset.Response, trainable irt.Trainable, batchSize int, rng *rand.Rand, mode string) (Stats, error) {
	order := slices.Clone(responses)
	var st Stats

	err := m.Update(func(w *irt.Weights) error {
		opt := NewAdam(w, trainable, t.cfg.LearningRate)
		grad := irt.NewGradient(w.Dim())

		for ep := 1; ep <= t.cfg.NumEpochs; ep++ {
			rng.Shuffle(len(order), func(i, j int) {
				order[i], order[j] = order[j], order[i]
			})

			epochLoss, batches := 0.0, 0
			for start := 0; start < len(order); start += batchSize {
				if err := ctx.Err(); err != nil {
					return err
				}
				end := min(start+batchSize, len(order))
				loss := w.BatchGradient(order[start:end], trainable, grad)
				opt.Step(w, grad)
				grad.Reset()

				epochLoss += loss
				batches++
				st.Steps++
				if t.cfg.LogStep > 0 && batches%t.cfg.LogStep == 0 {
					t.log.Debug("batch", "mode", mode, "epoch", ep, "batch", batches, "loss", epochLoss/float64(batches))
				}
			}
			st.Epochs = ep
			st.Loss = epochLoss / float64(batches)
			if mode == "fit" {
				t.log.Debug("epoch complete", "mode", mode, "epoch", ep, "loss", st.Loss)
			}
		}
		return nil
	})

	t.metrics.TrainSteps(mode, st.Steps)
	if st.Epochs > 0 {
		t.metrics.TrainLoss(mode, st.Loss)
	}
	return st, err
}

// Descend takes steps full-batch Adam steps on already-locked weights with
// a fresh optimizer and returns the loss before the last step. It is the
// building block for counterfactual updates, which must run inside a
// single Model.Update.
func Descend(w *irt.Weights, batch []dataset.Response, trainable irt.Trainable, lr float64, steps int) float64 {
	opt := NewAdam(w, trainable, lr)
	grad := irt.NewGradient(w.Dim())
	loss := 0.0
	for i := 0; i < steps; i++ {
		loss = w.BatchGradient(batch, trainable, grad)
		opt.Step(w, grad)
		grad.Reset()
	}
	return loss
}

func checkRange(m *irt.Model, responses []dataset.Response) error {
	for _, r := range responses {
		if r.StudentID < 0 || r.StudentID >= m.NumStudents() || r.ItemID < 0 || r.ItemID >= m.NumItems() {
			return fmt.Errorf("%w: student %d item %d", ErrOutOfRange, r.StudentID, r.ItemID)
		}
	}
	return nil
}
