package irt

import "math"

// LossEpsilon keeps the log-loss away from log(0).
const LossEpsilon = 1e-4

// Loss is the per-example negative log-likelihood
// -(y·log(p+ε) + (1−y)·log(1−p+ε)).
func Loss(p, y float64) float64 {
	return -(y*math.Log(p+LossEpsilon) + (1-y)*math.Log(1-p+LossEpsilon))
}

// LossGradLogit is dLoss/dz for p = sigmoid(z).
func LossGradLogit(p, y float64) float64 {
	dp := -(y/(p+LossEpsilon) - (1-y)/(1-p+LossEpsilon))
	return dp * p * (1 - p)
}

// MeanLoss averages Loss over paired predictions and labels.
func MeanLoss(preds, labels []float64) float64 {
	if len(preds) == 0 {
		return 0
	}
	sum := 0.0
	for i, p := range preds {
		sum += Loss(p, labels[i])
	}
	return sum / float64(len(preds))
}
