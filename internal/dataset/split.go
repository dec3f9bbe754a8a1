package dataset

import (
	"fmt"
	"math/rand/v2"
)

// Split partitions the students into a calibration part, used to fit the
// item bank, and a testing part, used for adaptive sessions. Both halves keep
// the full id space and concept map.
func Split(ds *Dataset, trainFrac float64, src rand.Source) (train, test *Dataset, err error) {
	if trainFrac <= 0 || trainFrac >= 1 {
		return nil, nil, fmt.Errorf("train fraction %.3f not in (0, 1)", trainFrac)
	}

	students := ds.Data().Students()
	rng := rand.New(src)
	rng.Shuffle(len(students), func(i, j int) {
		students[i], students[j] = students[j], students[i]
	})

	cut := int(float64(len(students)) * trainFrac)
	if cut == 0 || cut == len(students) {
		return nil, nil, fmt.Errorf("split of %d students at %.3f leaves an empty side", len(students), trainFrac)
	}
	inTrain := make(map[int]bool, cut)
	for _, sid := range students[:cut] {
		inTrain[sid] = true
	}

	train = &Dataset{NumStudents: ds.NumStudents, NumItems: ds.NumItems, Concepts: ds.Concepts}
	test = &Dataset{NumStudents: ds.NumStudents, NumItems: ds.NumItems, Concepts: ds.Concepts}
	for _, r := range ds.Responses {
		if inTrain[r.StudentID] {
			train.Responses = append(train.Responses, r)
		} else {
			test.Responses = append(test.Responses, r)
		}
	}
	return train, test, nil
}
