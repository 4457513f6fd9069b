// Package dataset provides the labeled audio collections used for training.
//
// A Dataset is an ordered, immutable, indexable collection of Samples. The
// package offers:
//   - Dataset interface and the Subset view over a list of indices
//   - ESC50 (ESC-50 and ESC-10) and ESC2 variants backed by an annotation CSV
//     and a directory of WAV files
//   - InMemory, a dataset held entirely in memory
//   - Splitter, which partitions a dataset into train/valid/test either by
//     percentages or from an explicit set of train indices
//
// Example:
//
//	ds, err := dataset.NewESC50(ctx, dataset.ESC50Options{Source: dataset.Source{Root: "data/esc50"}})
//	if err != nil {
//	    return err
//	}
//	split, err := dataset.Splitter{Policy: dataset.Proportional, TrainPercentage: 0.7, TestPercentage: 0.15}.
//	    Split(ds, rand.New(rand.NewPCG(42, 0)))
//	if err != nil {
//	    return err
//	}
//	train, valid, test, err := split.Subsets(ds)
package dataset
