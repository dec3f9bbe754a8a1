package dataset

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicateResponse = errors.New("duplicate response for student/item pair")
	ErrOutOfRange        = errors.New("id out of range")
	ErrInvalidLabel      = errors.New("label must be 0 or 1")
)

// Response is one observed (student, item, label) triplet.
type Response struct {
	StudentID int     `json:"student_id"`
	ItemID    int     `json:"item_id"`
	Label     float64 `json:"label"`
}

// Data maps student id → item id → observed label.
type Data map[int]map[int]float64

// Students returns the student ids in ascending order.
func (d Data) Students() []int {
	ids := make([]int, 0, len(d))
	for sid := range d {
		ids = append(ids, sid)
	}
	sort.Ints(ids)
	return ids
}

// Items returns the item ids on record for a student in ascending order.
func (d Data) Items(student int) []int {
	row := d[student]
	ids := make([]int, 0, len(row))
	for qid := range row {
		ids = append(ids, qid)
	}
	sort.Ints(ids)
	return ids
}

// Label returns the observed label for a pair.
func (d Data) Label(student, item int) (float64, bool) {
	row, ok := d[student]
	if !ok {
		return 0, false
	}
	y, ok := row[item]
	return y, ok
}

// Len returns the total number of responses.
func (d Data) Len() int {
	n := 0
	for _, row := range d {
		n += len(row)
	}
	return n
}

// ConceptMap maps an item id to the concept ids it covers.
type ConceptMap map[int][]int

// Concepts returns the distinct concepts covered by the given items.
func (c ConceptMap) Concepts(items []int) map[int]struct{} {
	set := make(map[int]struct{})
	for _, qid := range items {
		for _, cid := range c[qid] {
			set[cid] = struct{}{}
		}
	}
	return set
}

// Dataset is a response log plus the item → concept map.
type Dataset struct {
	NumStudents int        `json:"num_students"`
	NumItems    int        `json:"num_items"`
	Responses   []Response `json:"responses"`
	Concepts    ConceptMap `json:"concepts,omitempty"`
}

// Validate checks id ranges, labels and response uniqueness.
func (ds *Dataset) Validate() error {
	seen := make(map[[2]int]struct{}, len(ds.Responses))
	for i, r := range ds.Responses {
		if r.StudentID < 0 || r.StudentID >= ds.NumStudents {
			return fmt.Errorf("response %d: student %d: %w", i, r.StudentID, ErrOutOfRange)
		}
		if r.ItemID < 0 || r.ItemID >= ds.NumItems {
			return fmt.Errorf("response %d: item %d: %w", i, r.ItemID, ErrOutOfRange)
		}
		if r.Label != 0 && r.Label != 1 {
			return fmt.Errorf("response %d: %w", i, ErrInvalidLabel)
		}
		key := [2]int{r.StudentID, r.ItemID}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("response %d (student %d, item %d): %w", i, r.StudentID, r.ItemID, ErrDuplicateResponse)
		}
		seen[key] = struct{}{}
	}
	for qid := range ds.Concepts {
		if qid < 0 || qid >= ds.NumItems {
			return fmt.Errorf("concept map item %d: %w", qid, ErrOutOfRange)
		}
	}
	return nil
}

// Data indexes the responses by student and item.
func (ds *Dataset) Data() Data {
	return Index(ds.Responses)
}

// Index builds a Data map from a flat response list. Later duplicates win.
func Index(responses []Response) Data {
	d := make(Data)
	for _, r := range responses {
		row, ok := d[r.StudentID]
		if !ok {
			row = make(map[int]float64)
			d[r.StudentID] = row
		}
		row[r.ItemID] = r.Label
	}
	return d
}

// Stats summarizes a dataset.
type Stats struct {
	Students     int
	Items        int
	Responses    int
	Concepts     int
	PositiveRate float64
}

// Stats computes summary counts over the responses actually on record.
func (ds *Dataset) Stats() Stats {
	students := make(map[int]struct{})
	items := make(map[int]struct{})
	positive := 0
	for _, r := range ds.Responses {
		students[r.StudentID] = struct{}{}
		items[r.ItemID] = struct{}{}
		if r.Label == 1 {
			positive++
		}
	}
	concepts := make(map[int]struct{})
	for _, cids := range ds.Concepts {
		for _, c := range cids {
			concepts[c] = struct{}{}
		}
	}
	st := Stats{
		Students:  len(students),
		Items:     len(items),
		Responses: len(ds.Responses),
		Concepts:  len(concepts),
	}
	if len(ds.Responses) > 0 {
		st.PositiveRate = float64(positive) / float64(len(ds.Responses))
	}
	return st
}
