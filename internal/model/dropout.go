package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Dropout zeroes activations with probability p while training and scales
// the survivors by 1/(1-p). In evaluation mode it is the identity.
type Dropout[B tensor.Backend] struct {
	p        float32
	rng      *rand.Rand
	training bool
}

// NewDropout creates a dropout stage. rng drives the masks; nil uses a
// randomly seeded generator.
func NewDropout[B tensor.Backend](p float32, rng *rand.Rand) *Dropout[B] {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("dropout: probability must be in [0, 1), got %v", p))
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Dropout[B]{p: p, rng: rng, training: true}
}

// Forward applies the dropout mask.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.p == 0 {
		return input
	}

	scale := 1 / (1 - d.p)
	mask := make([]float32, input.NumElements())
	for i := range mask {
		if d.rng.Float32() >= d.p {
			mask[i] = scale
		}
	}
	maskTensor, err := tensor.FromSlice(mask, input.Shape(), input.Backend())
	if err != nil {
		panic(fmt.Sprintf("dropout: %v", err))
	}
	return input.Mul(maskTensor)
}

// Parameters returns nothing; dropout has no trainable parameters.
func (d *Dropout[B]) Parameters() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{}
}

// SetTraining implements ModeSetter.
func (d *Dropout[B]) SetTraining(training bool) {
	d.training = training
}

// String returns a string representation of the layer.
func (d *Dropout[B]) String() string {
	return fmt.Sprintf("Dropout(p=%v)", d.p)
}
