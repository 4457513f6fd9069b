package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// Split partitions the indices of a dataset into three disjoint sets whose
// union is every index of the dataset.
type Split struct {
	Train []int
	Valid []int
	Test  []int
}

// Subsets returns dataset views over the three index sets.
func (s Split) Subsets(ds Dataset) (train, valid, test *Subset, err error) {
	if train, err = NewSubset(ds, s.Train); err != nil {
		return nil, nil, nil, fmt.Errorf("train subset: %w", err)
	}
	if valid, err = NewSubset(ds, s.Valid); err != nil {
		return nil, nil, nil, fmt.Errorf("valid subset: %w", err)
	}
	if test, err = NewSubset(ds, s.Test); err != nil {
		return nil, nil, nil, fmt.Errorf("test subset: %w", err)
	}
	return train, valid, test, nil
}

// Policy selects how a Splitter partitions a dataset.
type Policy int

// Splitting policies.
const (
	// Proportional draws train and test sizes from percentages of the
	// dataset; the remainder is validation.
	Proportional Policy = iota
	// ExplicitIndex uses caller-provided train indices and halves the rest
	// into validation and test.
	ExplicitIndex
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case Proportional:
		return "proportional"
	case ExplicitIndex:
		return "explicit-index"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Splitter is a splitting strategy together with its parameters.
type Splitter struct {
	Policy          Policy
	TrainPercentage float64 // Proportional only
	TestPercentage  float64 // Proportional only
	TrainIndices    []int   // ExplicitIndex only
}

// Split partitions ds according to the strategy. rng drives every random
// choice; a seeded rng makes the partition reproducible and nil uses a
// randomly seeded one.
func (s Splitter) Split(ds Dataset, rng *rand.Rand) (Split, error) {
	switch s.Policy {
	case Proportional:
		return SplitProportional(ds.Len(), s.TrainPercentage, s.TestPercentage, rng)
	case ExplicitIndex:
		return SplitExplicit(ds.Len(), s.TrainIndices, rng)
	default:
		return Split{}, fmt.Errorf("%w: unknown policy %v", ErrInvalidSplit, s.Policy)
	}
}

// SplitProportional randomly partitions n indices without replacement into
//
//	train = floor(trainPct * n)
//	test  = floor(testPct * n)
//	valid = n - train - test
//
// A nil rng is replaced by a randomly seeded one.
func SplitProportional(n int, trainPct, testPct float64, rng *rand.Rand) (Split, error) {
	if n < 0 {
		return Split{}, fmt.Errorf("%w: negative length %d", ErrInvalidSplit, n)
	}
	if trainPct < 0 || testPct < 0 || trainPct+testPct > 1 {
		return Split{}, fmt.Errorf("%w: train %.4f + test %.4f must be within [0, 1]", ErrInvalidSplit, trainPct, testPct)
	}

	trainSize := int(math.Floor(trainPct * float64(n)))
	testSize := int(math.Floor(testPct * float64(n)))
	validSize := n - trainSize - testSize

	perm := orRandom(rng).Perm(n)
	return Split{
		Train: perm[:trainSize],
		Valid: perm[trainSize : trainSize+validSize],
		Test:  perm[trainSize+validSize:],
	}, nil
}

// SplitExplicit keeps trainIdx as the train set and randomly halves the
// remaining indices: the first half (rounded down) is validation, the rest
// is test. A trainIdx covering every index yields empty valid and test sets.
// A nil rng is replaced by a randomly seeded one.
func SplitExplicit(n int, trainIdx []int, rng *rand.Rand) (Split, error) {
	seen := make([]bool, n)
	for _, idx := range trainIdx {
		if idx < 0 || idx >= n {
			return Split{}, fmt.Errorf("%w: train index %d not in [0, %d)", ErrInvalidSplit, idx, n)
		}
		if seen[idx] {
			return Split{}, fmt.Errorf("%w: duplicate train index %d", ErrInvalidSplit, idx)
		}
		seen[idx] = true
	}

	rest := make([]int, 0, n-len(trainIdx))
	for idx, inTrain := range seen {
		if !inTrain {
			rest = append(rest, idx)
		}
	}
	orRandom(rng).Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})

	half := len(rest) / 2
	return Split{
		Train: slices.Clone(trainIdx),
		Valid: rest[:half:half],
		Test:  rest[half:],
	}, nil
}

func orRandom(rng *rand.Rand) *rand.Rand {
	if rng == nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rng
}
