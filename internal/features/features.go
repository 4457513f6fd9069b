// Package features implements feature-extractor stages: transforms from a
// batch of raw mono clips [N, 1, samples] to a fixed-shape representation.
//
// Extractors have no trainable parameters. Their output shape, without the
// batch dimension, is known at construction time and is what model.Compose
// hands to the classifier.
package features

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/born-ml/born/tensor"
	"github.com/klauspost/cpuid/v2"
)

// DefaultWorkers is the number of goroutines an extractor uses when its
// configuration leaves Workers at zero: one per physical core.
func DefaultWorkers() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// forChunks splits [0, n) into at most workers contiguous chunks and runs f
// on each chunk in its own goroutine. Chunks never share an index, so f may
// keep per-chunk scratch buffers.
func forChunks(n, workers int, f func(start, end int)) {
	if workers <= 1 || n < 2 {
		f(0, n)
		return
	}

	var wg sync.WaitGroup
	chunkSize := (n + workers - 1) / workers
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, end)
	}
	wg.Wait()
}

// signals returns the host data of a [N, 1, numSamples] or [N, numSamples]
// batch and its size. Like born layers, it panics on a shape it cannot serve.
func signals[B tensor.Backend](stage string, input *tensor.Tensor[float32, B], numSamples int) ([]float32, int) {
	shape := input.Shape()
	if len(shape) < 2 || shape[0] == 0 || shape.NumElements() != shape[0]*numSamples {
		panic(fmt.Sprintf("%s: expected input [N, 1, %d], got %v", stage, numSamples, shape))
	}
	return input.Data(), shape[0]
}

func positive(field string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%s must be positive, got %d", field, v)
	}
	return nil
}
