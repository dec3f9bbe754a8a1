// Package adaptive drives simulated adaptive tests: each round it selects
// one item per student, records the response on file, refits abilities and
// evaluates the model.
package adaptive

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/adaptest/internal/dataset"
	"github.com/abhisek/adaptest/internal/eval"
	"github.com/abhisek/adaptest/internal/irt"
	"github.com/abhisek/adaptest/internal/logger"
	"github.com/abhisek/adaptest/internal/metrics"
	"github.com/abhisek/adaptest/internal/selection"
	"github.com/abhisek/adaptest/internal/session"
	"github.com/abhisek/adaptest/internal/train"
)

var ErrInvalidConfig = errors.New("invalid run config")

// Config bounds one run.
type Config struct {
	// Length is the maximum number of rounds. A run ends early once no
	// student has untested items.
	Length int
	// UpdateEvery refits abilities after every N rounds; 0 disables updates.
	UpdateEvery int
	Mode        session.TestedMode
}

// Round summarizes one selection round.
type Round struct {
	Round    int           `json:"round"`
	Selected int           `json:"selected"`
	Report   eval.Report   `json:"report"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Result is the outcome of a run.
type Result struct {
	ID       string  `json:"id"`
	Strategy string  `json:"strategy"`
	Rounds   []Round `json:"rounds"`
}

// Final returns the last round's report, or a zero report with NaN AUC if
// no round ran.
func (r *Result) Final() eval.Report {
	if len(r.Rounds) == 0 {
		return eval.Report{AUC: math.NaN()}
	}
	return r.Rounds[len(r.Rounds)-1].Report
}

// Runner wires a model, trainer, strategy and session together.
type Runner struct {
	Model    *irt.Model
	Trainer  *train.Trainer
	Strategy selection.Strategy
	Session  *session.Session
	Concepts dataset.ConceptMap

	Log     *logger.Logger
	Metrics *metrics.Metrics
}

// Run plays up to cfg.Length rounds. A round whose evaluation has no
// defined AUC is kept with AUC NaN.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Length < 1 || cfg.UpdateEvery < 0 {
		return nil, fmt.Errorf("%w: length %d, update every %d", ErrInvalidConfig, cfg.Length, cfg.UpdateEvery)
	}
	if r.Model == nil || r.Strategy == nil || r.Session == nil {
		return nil, fmt.Errorf("%w: runner needs a model, strategy and session", ErrInvalidConfig)
	}
	if cfg.UpdateEvery > 0 && r.Trainer == nil {
		return nil, fmt.Errorf("%w: updates need a trainer", ErrInvalidConfig)
	}

	log := logger.OrNop(r.Log)
	res := &Result{ID: uuid.NewString(), Strategy: r.Strategy.Name()}
	log = log.With("run", res.ID, "strategy", res.Strategy)
	log.Info("adaptive run started", "students", len(r.Session.Active()), "length", cfg.Length, "update_every", cfg.UpdateEvery, "mode", cfg.Mode.String())

	for round := 1; round <= cfg.Length; round++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if len(r.Session.Active()) == 0 {
			log.Info("item pools exhausted", "round", round)
			break
		}

		start := time.Now()
		preds := r.Model.PredictAll(r.Session.Data())
		picks, err := r.Strategy.Select(ctx, r.Model, r.Session, preds)
		if err != nil {
			return res, fmt.Errorf("round %d select: %w", round, err)
		}
		r.Metrics.Selections(res.Strategy, len(picks), time.Since(start))

		if err := r.Session.ApplyAll(picks); err != nil {
			return res, fmt.Errorf("round %d apply: %w", round, err)
		}

		if cfg.UpdateEvery > 0 && round%cfg.UpdateEvery == 0 {
			if err := r.Trainer.UpdateAll(ctx, r.Model, r.Session.TestedResponses(cfg.Mode)); err != nil {
				return res, fmt.Errorf("round %d update: %w", round, err)
			}
		}

		report, err := eval.Evaluate(r.Model, r.Session, r.Concepts)
		switch {
		case errors.Is(err, eval.ErrDegenerateAUC):
			log.Warn("auc undefined for this round", "round", round)
		case err != nil:
			return res, fmt.Errorf("round %d evaluate: %w", round, err)
		}
		r.Metrics.Eval(report.Accuracy, report.AUC, report.Coverage)

		elapsed := time.Since(start)
		res.Rounds = append(res.Rounds, Round{Round: round, Selected: len(picks), Report: report, Elapsed: elapsed})
		log.Info("round complete", "round", round, "selected", len(picks),
			"acc", report.Accuracy, "auc", report.AUC, "cov", report.Coverage, "elapsed", elapsed)
	}
	return res, nil
}
