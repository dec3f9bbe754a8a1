// Package eval scores a model's predictions against the responses on
// record and measures how much of each student's concept pool a session has
// covered.
package eval

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/abhisek/adaptest/internal/dataset"
	"github.com/abhisek/adaptest/internal/irt"
	"github.com/abhisek/adaptest/internal/session"
)

var (
	ErrEmpty         = errors.New("nothing to evaluate")
	ErrDegenerateAUC = errors.New("auc undefined: labels are all identical")
)

// Threshold is the probability at or above which a prediction counts as
// correct.
const Threshold = 0.5

// Report holds one evaluation.
type Report struct {
	Accuracy float64 `json:"accuracy"`
	// AUC is NaN when the labels are all identical.
	AUC      float64 `json:"auc"`
	Coverage float64 `json:"coverage"`
	// Responses is the number of predictions scored.
	Responses int `json:"responses"`
}

// Evaluate predicts every response on record in the session and reports
// accuracy, ROC AUC and mean concept coverage of the tested items. When AUC
// is undefined the report is still filled and the returned error wraps
// ErrDegenerateAUC.
func Evaluate(m *irt.Model, sess *session.Session, concepts dataset.ConceptMap) (Report, error) {
	data := sess.Data()
	preds := m.PredictAll(data)

	var scores, labels []float64
	for _, sid := range data.Students() {
		for _, qid := range data.Items(sid) {
			p, _ := preds.Get(sid, qid)
			scores = append(scores, p)
			labels = append(labels, data[sid][qid])
		}
	}
	if len(scores) == 0 {
		return Report{}, ErrEmpty
	}

	r := Report{
		Accuracy:  Accuracy(scores, labels),
		Coverage:  Coverage(sess, concepts),
		Responses: len(scores),
	}
	auc, err := AUC(scores, labels)
	r.AUC = auc
	if err != nil {
		return r, fmt.Errorf("evaluate %d responses: %w", len(scores), err)
	}
	return r, nil
}

// Accuracy is the fraction of predictions on the right side of Threshold.
func Accuracy(scores, labels []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	hits := 0
	for i, p := range scores {
		pred := 0.0
		if p >= Threshold {
			pred = 1
		}
		if pred == labels[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(scores))
}

// AUC returns the area under the ROC curve of scores against 0/1 labels.
// Tied scores contribute half credit.
func AUC(scores, labels []float64) (float64, error) {
	pos := 0
	classes := make([]bool, len(labels))
	for i, y := range labels {
		if y == 1 {
			classes[i] = true
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return math.NaN(), ErrDegenerateAUC
	}

	y := slices.Clone(scores)
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// Coverage averages, over students whose items carry concepts, the share of
// the student's concepts touched by tested items.
func Coverage(sess *session.Session, concepts dataset.ConceptMap) float64 {
	sum, n := 0.0, 0
	for _, sid := range sess.Students() {
		all := concepts.Concepts(sess.Items(sid))
		if len(all) == 0 {
			continue
		}
		seen := concepts.Concepts(sess.Tested(sid))
		sum += float64(len(seen)) / float64(len(all))
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
