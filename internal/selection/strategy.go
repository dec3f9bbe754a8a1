package selection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/abhisek/adaptest/internal/dataset"
	"github.com/abhisek/adaptest/internal/irt"
	"github.com/abhisek/adaptest/internal/session"
	"github.com/abhisek/adaptest/internal/train"
)

var ErrUnknownStrategy = errors.New("unknown selection strategy")

// Strategy picks the next item for every student that still has untested
// items. The returned map is keyed by student id.
type Strategy interface {
	Name() string
	Select(ctx context.Context, m *irt.Model, sess *session.Session, preds irt.Predictions) (map[int]int, error)
}

// Strategy names accepted by NewStrategy.
const (
	NameRandom = "random"
	NameMFI    = "mfi"
	NameKLI    = "kli"
	NameMAAT   = "maat"
)

// Names lists the known strategies.
var Names = []string{NameRandom, NameMFI, NameKLI, NameMAAT}

// DefaultTopK is the EMC shortlist size MAAT ranks by coverage.
const DefaultTopK = 10

// Options configures strategies. Fields a strategy does not use are ignored.
type Options struct {
	// Workers bounds concurrent candidate scoring for one student.
	Workers int
	Seed    uint64

	// Train drives the counterfactual updates of MAAT.
	Train    train.Config
	Concepts dataset.ConceptMap
	TopK     int
}

// NewStrategy builds a strategy by name.
func NewStrategy(name string, opts Options) (Strategy, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	switch name {
	case NameRandom:
		return NewRandom(opts.Seed), nil
	case NameMFI:
		return &MFI{Workers: opts.Workers}, nil
	case NameKLI:
		return &KLIStrategy{Workers: opts.Workers, Seed: opts.Seed}, nil
	case NameMAAT:
		k := opts.TopK
		if k < 1 {
			k = DefaultTopK
		}
		return &MAAT{Workers: opts.Workers, Train: opts.Train, Concepts: opts.Concepts, TopK: k}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Random picks uniformly among untested items.
type Random struct {
	rng *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewPCG(seed, 0))}
}

func (r *Random) Name() string { return NameRandom }

func (r *Random) Select(ctx context.Context, _ *irt.Model, sess *session.Session, _ irt.Predictions) (map[int]int, error) {
	out := make(map[int]int)
	for _, sid := range sess.Active() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pool := sess.Untested(sid)
		out[sid] = pool[r.rng.IntN(len(pool))]
	}
	return out, nil
}

// MFI picks the item of maximum Fisher information. With more than one
// dimension it maximizes the determinant of the information accumulated
// over tested items plus the candidate.
type MFI struct {
	Workers int
}

func (s *MFI) Name() string { return NameMFI }

func (s *MFI) Select(ctx context.Context, m *irt.Model, sess *session.Session, preds irt.Predictions) (map[int]int, error) {
	return perStudent(ctx, sess, s.Workers, func(sid int) (func(int) (float64, error), error) {
		if m.Dim() == 1 {
			return func(q int) (float64, error) {
				fi, err := Fisher(m, sid, q, preds)
				if err != nil {
					return 0, err
				}
				return fi.At(0, 0), nil
			}, nil
		}

		acc := mat.NewSymDense(m.Dim(), nil)
		for _, q := range sess.Tested(sid) {
			fi, err := Fisher(m, sid, q, preds)
			if err != nil {
				return nil, err
			}
			acc.AddSym(acc, fi)
		}
		return func(q int) (float64, error) {
			fi, err := Fisher(m, sid, q, preds)
			if err != nil {
				return 0, err
			}
			fi.AddSym(fi, acc)
			return mat.Det(fi), nil
		}, nil
	})
}

// KLIStrategy picks the item of maximum KL information. Students with
// nothing tested score every item +Inf and get their lowest untested id.
type KLIStrategy struct {
	Workers int
	Seed    uint64
}

func (s *KLIStrategy) Name() string { return NameKLI }

func (s *KLIStrategy) Select(ctx context.Context, m *irt.Model, sess *session.Session, preds irt.Predictions) (map[int]int, error) {
	return perStudent(ctx, sess, s.Workers, func(sid int) (func(int) (float64, error), error) {
		n := sess.Len(sid)
		return func(q int) (float64, error) {
			src := rand.NewPCG(s.Seed, uint64(sid)<<32|uint64(q))
			return KLI(m, sid, q, n, preds, src)
		}, nil
	})
}

// MAAT shortlists the TopK items by expected model change and picks the one
// that best improves concept coverage.
type MAAT struct {
	Workers  int
	Train    train.Config
	Concepts dataset.ConceptMap
	TopK     int
}

func (s *MAAT) Name() string { return NameMAAT }

func (s *MAAT) Select(ctx context.Context, m *irt.Model, sess *session.Session, preds irt.Predictions) (map[int]int, error) {
	out := make(map[int]int)
	for _, sid := range sess.Active() {
		pool := sess.Untested(sid)
		emc, err := scoreAll(ctx, pool, s.Workers, func(q int) (float64, error) {
			return EMC(m, sid, q, preds, s.Train)
		})
		if err != nil {
			return nil, fmt.Errorf("maat student %d: %w", sid, err)
		}

		order := make([]int, len(pool))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return emc[order[a]] > emc[order[b]]
		})
		short := make([]int, 0, s.TopK)
		for _, i := range order[:min(s.TopK, len(order))] {
			short = append(short, pool[i])
		}

		tested := sess.Tested(sid)
		concepts := s.Concepts.Concepts(sess.Items(sid))
		best, bestGain := short[0], math.Inf(-1)
		for _, q := range short {
			if g := coverageGain(s.Concepts, concepts, tested, q); g > bestGain {
				best, bestGain = q, g
			}
		}
		out[sid] = best
	}
	return out, nil
}

// coverageGain is the mean over the student's concepts of cnt/(cnt+1),
// where cnt counts the items among tested and candidate carrying the
// concept. It rewards touching concepts not yet seen.
func coverageGain(cm dataset.ConceptMap, concepts map[int]struct{}, tested []int, candidate int) float64 {
	if len(concepts) == 0 {
		return 0
	}
	cnt := make(map[int]int, len(concepts))
	count := func(q int) {
		for _, c := range cm[q] {
			if _, ok := concepts[c]; ok {
				cnt[c]++
			}
		}
	}
	for _, q := range tested {
		count(q)
	}
	count(candidate)

	sum := 0.0
	for c := range concepts {
		n := float64(cnt[c])
		sum += n / (n + 1)
	}
	return sum / float64(len(concepts))
}

// perStudent scores every untested item of each active student with the
// scorer built for that student and picks the argmax.
func perStudent(ctx context.Context, sess *session.Session, workers int, scorer func(sid int) (func(int) (float64, error), error)) (map[int]int, error) {
	out := make(map[int]int)
	for _, sid := range sess.Active() {
		score, err := scorer(sid)
		if err != nil {
			return nil, fmt.Errorf("student %d: %w", sid, err)
		}
		pool := sess.Untested(sid)
		scores, err := scoreAll(ctx, pool, workers, score)
		if err != nil {
			return nil, fmt.Errorf("student %d: %w", sid, err)
		}
		out[sid] = argmax(pool, scores)
	}
	return out, nil
}

// scoreAll evaluates score for every candidate with at most workers
// goroutines. scores[i] belongs to candidates[i].
func scoreAll(ctx context.Context, candidates []int, workers int, score func(int) (float64, error)) ([]float64, error) {
	scores := make([]float64, len(candidates))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, q := range candidates {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := score(q)
			if err != nil {
				return fmt.Errorf("item %d: %w", q, err)
			}
			scores[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// argmax returns the candidate with the highest score. Candidates are in
// ascending id order, so ties go to the lowest id. NaN never wins.
func argmax(candidates []int, scores []float64) int {
	best, bestScore := candidates[0], math.Inf(-1)
	found := false
	for i, v := range scores {
		if math.IsNaN(v) {
			continue
		}
		if !found || v > bestScore {
			best, bestScore, found = candidates[i], v, true
		}
	}
	return best
}
