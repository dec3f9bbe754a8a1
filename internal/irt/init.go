package irt

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// XavierNormal returns a rows×cols matrix drawn from N(0, 2/(fanIn+fanOut))
// with fanIn = cols and fanOut = rows, the embedding-table convention.
func XavierNormal(rows, cols int, src rand.Source) [][]float64 {
	dist := distuv.Normal{
		Mu:    0,
		Sigma: math.Sqrt(2 / float64(rows+cols)),
		Src:   src,
	}
	out := make([][]float64, rows)
	for i := range out {
		row := make([]float64, cols)
		for k := range row {
			row[k] = dist.Rand()
		}
		out[i] = row
	}
	return out
}
