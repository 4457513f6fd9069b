package dataset

import (
	"fmt"
	"slices"

	"github.com/born-ml/born/tensor"
)

// Sample is a single (signal, label) pair.
//
// Signal holds the row-major values of a tensor of the given Shape, without
// the batch dimension. Raw audio samples have shape [channels, samples].
type Sample struct {
	Signal []float32
	Shape  tensor.Shape
	Label  int32
}

// Dataset is an ordered, finite, indexable collection of samples.
//
// Implementations are immutable once constructed. Get returns an error
// wrapping ErrIndexOutOfRange for indices outside [0, Len()).
type Dataset interface {
	Len() int
	Get(index int) (Sample, error)
}

// Labeled is implemented by datasets that know their label set up front.
type Labeled interface {
	// Labels returns the distinct class ids, ascending.
	Labels() []int32
}

// Subset is a view of a dataset restricted to a list of indices.
type Subset struct {
	parent  Dataset
	indices []int
}

// NewSubset creates a view of ds over indices.
//
// The slice is copied; indices are validated against ds.Len().
func NewSubset(ds Dataset, indices []int) (*Subset, error) {
	n := ds.Len()
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, indexError(idx, n)
		}
	}
	return &Subset{parent: ds, indices: slices.Clone(indices)}, nil
}

// Len returns the number of indices in the subset.
func (s *Subset) Len() int {
	return len(s.indices)
}

// Get returns the sample at position index of the subset.
func (s *Subset) Get(index int) (Sample, error) {
	if index < 0 || index >= len(s.indices) {
		return Sample{}, indexError(index, len(s.indices))
	}
	return s.parent.Get(s.indices[index])
}

// Indices returns the parent indices covered by the subset.
func (s *Subset) Indices() []int {
	return slices.Clone(s.indices)
}

// InMemory is a dataset whose samples are all held in memory.
type InMemory struct {
	samples []Sample
	shape   tensor.Shape
}

// NewInMemory creates an in-memory dataset. All samples must share a shape
// whose element count matches the signal length.
func NewInMemory(samples []Sample) (*InMemory, error) {
	var shape tensor.Shape
	for i, s := range samples {
		if s.Shape.NumElements() != len(s.Signal) {
			return nil, fmt.Errorf("sample %d: shape %v does not match %d values", i, s.Shape, len(s.Signal))
		}
		if i == 0 {
			shape = s.Shape.Clone()
			continue
		}
		if !shape.Equal(s.Shape) {
			return nil, fmt.Errorf("sample %d: shape %v differs from %v", i, s.Shape, shape)
		}
	}
	return &InMemory{samples: samples, shape: shape}, nil
}

// Len returns the number of samples.
func (m *InMemory) Len() int {
	return len(m.samples)
}

// Get returns the sample at index.
func (m *InMemory) Get(index int) (Sample, error) {
	if index < 0 || index >= len(m.samples) {
		return Sample{}, indexError(index, len(m.samples))
	}
	return m.samples[index], nil
}

// Labels returns the distinct labels, ascending.
func (m *InMemory) Labels() []int32 {
	labels := make([]int32, len(m.samples))
	for i, s := range m.samples {
		labels[i] = s.Label
	}
	return distinct(labels)
}

func distinct(labels []int32) []int32 {
	out := slices.Clone(labels)
	slices.Sort(out)
	return slices.Compact(out)
}
