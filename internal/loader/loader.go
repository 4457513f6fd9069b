// Package loader turns dataset views into sequences of mini-batches.
package loader

import (
	"fmt"
	"iter"
	"math/rand/v2"

	"github.com/born-ml/born/tensor"

	"github.com/gabriellecaillaud/wildfire-detection/internal/dataset"
)

// Batch is a mini-batch ready for the model.
type Batch[B tensor.Backend] struct {
	Inputs *tensor.Tensor[float32, B] // [size, sample shape...]
	Labels *tensor.Tensor[int32, B]   // [size]
	Size   int
}

// Loader produces batches from a dataset.
//
// Every traversal of Batches draws a fresh permutation when shuffling is
// enabled; otherwise samples come in dataset order. A Loader must not be
// traversed by two goroutines at once.
type Loader[B tensor.Backend] struct {
	ds        dataset.Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	backend   B
}

// New creates a loader over ds.
//
// rng is only used when shuffle is set; nil falls back to a randomly seeded
// generator. Batch tensors are allocated on backend.
func New[B tensor.Backend](ds dataset.Dataset, batchSize int, shuffle bool, rng *rand.Rand, backend B) (*Loader[B], error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if shuffle && rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Loader[B]{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rng,
		backend:   backend,
	}, nil
}

// Len returns the number of batches in one traversal: ceil(n / batchSize).
func (l *Loader[B]) Len() int {
	return (l.ds.Len() + l.batchSize - 1) / l.batchSize
}

// NumSamples returns the size of the underlying dataset.
func (l *Loader[B]) NumSamples() int {
	return l.ds.Len()
}

// BatchSize returns the configured batch size.
func (l *Loader[B]) BatchSize() int {
	return l.batchSize
}

// Batches returns a lazy sequence of batches. The last batch holds the
// remainder when the dataset size is not a multiple of the batch size. A
// sample read error is yielded once and ends the traversal.
func (l *Loader[B]) Batches() iter.Seq2[*Batch[B], error] {
	return func(yield func(*Batch[B], error) bool) {
		numSamples := l.ds.Len()

		var order []int
		if l.shuffle {
			order = l.rng.Perm(numSamples)
		}

		for start := 0; start < numSamples; start += l.batchSize {
			end := min(start+l.batchSize, numSamples)

			batch, err := l.collate(start, end, order)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(batch, nil) {
				return
			}
		}
	}
}

// collate reads samples [start, end) of the traversal order into tensors.
func (l *Loader[B]) collate(start, end int, order []int) (*Batch[B], error) {
	size := end - start

	var (
		inputs      []float32
		labels      = make([]int32, size)
		sampleShape tensor.Shape
	)
	for j := start; j < end; j++ {
		idx := j
		if order != nil {
			idx = order[j]
		}

		sample, err := l.ds.Get(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to load sample %d: %w", idx, err)
		}
		if sampleShape == nil {
			sampleShape = sample.Shape.Clone()
			inputs = make([]float32, 0, size*sampleShape.NumElements())
		} else if !sampleShape.Equal(sample.Shape) {
			return nil, fmt.Errorf("sample %d has shape %v, batch expects %v", idx, sample.Shape, sampleShape)
		}

		inputs = append(inputs, sample.Signal...)
		labels[j-start] = sample.Label
	}

	inputShape := append(tensor.Shape{size}, sampleShape...)
	inputsTensor, err := tensor.FromSlice(inputs, inputShape, l.backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create inputs tensor: %w", err)
	}
	labelsTensor, err := tensor.FromSlice(labels, tensor.Shape{size}, l.backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create labels tensor: %w", err)
	}

	return &Batch[B]{Inputs: inputsTensor, Labels: labelsTensor, Size: size}, nil
}

// Loaders groups the loaders of a train/valid/test split.
type Loaders[B tensor.Backend] struct {
	Train *Loader[B]
	Valid *Loader[B]
	Test  *Loader[B]
}

// FromSplit builds shuffling loaders for the three parts of split. Each
// loader gets its own generator seeded from rng.
func FromSplit[B tensor.Backend](ds dataset.Dataset, split dataset.Split, batchSize int, rng *rand.Rand, backend B) (Loaders[B], error) {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	train, valid, test, err := split.Subsets(ds)
	if err != nil {
		return Loaders[B]{}, err
	}

	var loaders Loaders[B]
	if loaders.Train, err = New(train, batchSize, true, child(rng), backend); err != nil {
		return Loaders[B]{}, err
	}
	if loaders.Valid, err = New(valid, batchSize, true, child(rng), backend); err != nil {
		return Loaders[B]{}, err
	}
	if loaders.Test, err = New(test, batchSize, true, child(rng), backend); err != nil {
		return Loaders[B]{}, err
	}
	return loaders, nil
}

func child(rng *rand.Rand) *rand.Rand {
	return rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64()))
}
