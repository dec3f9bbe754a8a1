package irt

// Trainable selects the parameter rows an optimizer may move. Everything
// outside the subset is frozen for the lifetime of that optimizer.
type Trainable struct {
	// AllStudents makes every ability row trainable.
	AllStudents bool
	// Students lists individual ability rows; ignored when AllStudents is set.
	Students []int
	// Items makes the discrimination and difficulty blocks trainable.
	Items bool
}

// AllParams is the batch-fit subset: every block, every row.
func AllParams() Trainable {
	return Trainable{AllStudents: true, Items: true}
}

// AbilityOf freezes the item bank and all other students.
func AbilityOf(students ...int) Trainable {
	return Trainable{Students: students}
}

// Has reports whether row i of block b is trainable.
func (t Trainable) Has(b Block, i int) bool {
	switch b {
	case BlockAbility:
		if t.AllStudents {
			return true
		}
		for _, s := range t.Students {
			if s == i {
				return true
			}
		}
		return false
	case BlockDiscrimination, BlockDifficulty:
		return t.Items
	}
	return false
}

// RowRef addresses one parameter row.
type RowRef struct {
	Block Block
	Row   int
}

// Rows enumerates the trainable rows of w in a stable order.
func (t Trainable) Rows(w *Weights) []RowRef {
	var refs []RowRef
	if t.AllStudents {
		for i := range w.theta {
			refs = append(refs, RowRef{BlockAbility, i})
		}
	} else {
		seen := make(map[int]bool, len(t.Students))
		for _, s := range t.Students {
			if !seen[s] {
				seen[s] = true
				refs = append(refs, RowRef{BlockAbility, s})
			}
		}
	}
	if t.Items {
		for i := range w.alpha {
			refs = append(refs, RowRef{BlockDiscrimination, i})
		}
		for i := range w.beta {
			refs = append(refs, RowRef{BlockDifficulty, i})
		}
	}
	return refs
}
