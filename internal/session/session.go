// Package session tracks which items each student has been administered
// during an adaptive test.
package session

import (
	"errors"
	"fmt"
	"slices"

	"github.com/abhisek/adaptest/internal/dataset"
)

var (
	ErrInvalidSelection = errors.New("item is not untested for student")
	ErrUnknownMode      = errors.New("unknown tested mode")
)

// TestedMode selects which tested responses feed an incremental update.
type TestedMode int

const (
	// TestedAll returns every tested response.
	TestedAll TestedMode = iota
	// TestedLast returns only the most recently tested response per student.
	TestedLast
)

func (m TestedMode) String() string {
	switch m {
	case TestedAll:
		return "all"
	case TestedLast:
		return "last"
	}
	return fmt.Sprintf("TestedMode(%d)", int(m))
}

// ParseTestedMode parses "all" or "last".
func ParseTestedMode(s string) (TestedMode, error) {
	switch s {
	case "all", "":
		return TestedAll, nil
	case "last":
		return TestedLast, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Session partitions each student's recorded items into a tested sequence,
// kept in administration order, and an untested set. The two are disjoint
// and together cover every item on record for the student.
//
// A Session is not safe for concurrent use.
type Session struct {
	data     dataset.Data
	tested   map[int][]int
	untested map[int]map[int]struct{}
}

// New creates a session over data with every item untested.
func New(data dataset.Data) *Session {
	s := &Session{data: data}
	s.Reset()
	return s
}

// Reset marks every item untested for every student.
func (s *Session) Reset() {
	s.tested = make(map[int][]int, len(s.data))
	s.untested = make(map[int]map[int]struct{}, len(s.data))
	for sid, items := range s.data {
		pool := make(map[int]struct{}, len(items))
		for qid := range items {
			pool[qid] = struct{}{}
		}
		s.untested[sid] = pool
	}
}

// ApplySelection moves item from the student's untested set to the end of
// the tested sequence.
func (s *Session) ApplySelection(student, item int) error {
	pool, ok := s.untested[student]
	if !ok {
		return fmt.Errorf("%w: unknown student %d", ErrInvalidSelection, student)
	}
	if _, ok := pool[item]; !ok {
		return fmt.Errorf("%w: student %d item %d", ErrInvalidSelection, student, item)
	}
	delete(pool, item)
	s.tested[student] = append(s.tested[student], item)
	return nil
}

// ApplyAll applies one selection per student in ascending student order and
// stops at the first invalid one.
func (s *Session) ApplyAll(selection map[int]int) error {
	students := make([]int, 0, len(selection))
	for sid := range selection {
		students = append(students, sid)
	}
	slices.Sort(students)
	for _, sid := range students {
		if err := s.ApplySelection(sid, selection[sid]); err != nil {
			return err
		}
	}
	return nil
}

// Tested returns the student's tested items in administration order.
func (s *Session) Tested(student int) []int {
	return slices.Clone(s.tested[student])
}

// Untested returns the student's untested items in ascending order.
func (s *Session) Untested(student int) []int {
	pool := s.untested[student]
	out := make([]int, 0, len(pool))
	for qid := range pool {
		out = append(out, qid)
	}
	slices.Sort(out)
	return out
}

// IsUntested reports whether item is still selectable for student.
func (s *Session) IsUntested(student, item int) bool {
	_, ok := s.untested[student][item]
	return ok
}

// Len returns how many items the student has been administered.
func (s *Session) Len(student int) int {
	return len(s.tested[student])
}

// Last returns the most recently tested item.
func (s *Session) Last(student int) (int, bool) {
	t := s.tested[student]
	if len(t) == 0 {
		return 0, false
	}
	return t[len(t)-1], true
}

// Students returns every student on record in ascending order.
func (s *Session) Students() []int {
	return s.data.Students()
}

// Active returns the students that still have untested items.
func (s *Session) Active() []int {
	var out []int
	for _, sid := range s.data.Students() {
		if len(s.untested[sid]) > 0 {
			out = append(out, sid)
		}
	}
	return out
}

// Items returns every item on record for the student, tested or not.
func (s *Session) Items(student int) []int {
	return s.data.Items(student)
}

// Label returns the recorded response label.
func (s *Session) Label(student, item int) (float64, bool) {
	return s.data.Label(student, item)
}

// Data returns the underlying response data.
func (s *Session) Data() dataset.Data {
	return s.data
}

// TestedResponses returns labeled responses for tested items, grouped by
// ascending student id. With TestedLast students with nothing tested are
// skipped.
func (s *Session) TestedResponses(mode TestedMode) []dataset.Response {
	var out []dataset.Response
	for _, sid := range s.data.Students() {
		tested := s.tested[sid]
		if len(tested) == 0 {
			continue
		}
		if mode == TestedLast {
			tested = tested[len(tested)-1:]
		}
		for _, qid := range tested {
			out = append(out, dataset.Response{StudentID: sid, ItemID: qid, Label: s.data[sid][qid]})
		}
	}
	return out
}
