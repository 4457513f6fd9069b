package train

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Phase names the part of an epoch a batch belongs to.
type Phase string

// Epoch phases.
const (
	PhaseTrain Phase = "train"
	PhaseValid Phase = "valid"
	PhaseEval  Phase = "eval"
)

// Metrics are the per-batch averages of one pass over a loader.
type Metrics struct {
	Loss     float64
	Accuracy float64 // In [0, 1]
	Batches  int
}

// EpochMetrics is the progress record of one epoch.
type EpochMetrics struct {
	Epoch int
	Train Metrics
	Valid Metrics
	LR    float64 // Last learning rate set during the epoch
}

// accumulator sums per-batch values; averages divide once by the batch
// count and are zero when no batch was seen.
type accumulator struct {
	loss, accuracy float64
	batches        int
}

func (a *accumulator) add(loss, accuracy float64) {
	a.loss += loss
	a.accuracy += accuracy
	a.batches++
}

func (a *accumulator) metrics() Metrics {
	if a.batches == 0 {
		return Metrics{}
	}
	n := float64(a.batches)
	return Metrics{Loss: a.loss / n, Accuracy: a.accuracy / n, Batches: a.batches}
}

// Softmax returns the softmax of logits.
func Softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	for i, v := range logits {
		out[i] = float64(v)
	}
	maxLogit := floats.Max(out)
	for i := range out {
		out[i] = math.Exp(out[i] - maxLogit)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// BatchAccuracy returns the fraction of rows of the [len(labels), numClasses]
// logits whose softmax argmax equals the label. Ties go to the lowest class.
func BatchAccuracy(logits []float32, numClasses int, labels []int32) float64 {
	if len(labels) == 0 || numClasses <= 0 {
		return 0
	}
	var correct int
	for i, label := range labels {
		probs := Softmax(logits[i*numClasses : (i+1)*numClasses])
		if floats.MaxIdx(probs) == int(label) {
			correct++
		}
	}
	return float64(correct) / float64(len(labels))
}
