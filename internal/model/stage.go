// Package model composes feature-extractor and classifier stages into one
// sequential, checkpointable model.
//
// Example:
//
//	m, err := model.Compose("spectrogram", features.SpectrogramFactory[B](features.SpectrogramConfig{}),
//	    "cnn_bardou", classifiers.CNNFactory[B](classifiers.CNNConfig{NumClasses: 2}), backend)
//	if err != nil {
//	    return err // *ConfigurationMismatchError when the shapes disagree
//	}
//	m.Train()
//	logits := m.Forward(batch.Inputs)
package model

import (
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Stage is one step of a model: a tensor -> tensor transform with its own
// trainable parameters (possibly none).
type Stage[B tensor.Backend] interface {
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
	Parameters() []*nn.Parameter[B]
}

// ModeSetter is implemented by stages whose behavior differs between
// training and evaluation (dropout, normalization).
type ModeSetter interface {
	SetTraining(training bool)
}

// Extractor is a feature-extraction stage. Its output shape, without the
// batch dimension, is fixed and independent of any particular input.
type Extractor[B tensor.Backend] interface {
	Stage[B]
	OutputShape() tensor.Shape
}

// Classifier is a stage mapping features to per-class logits.
type Classifier[B tensor.Backend] interface {
	Stage[B]
	// InputSize is the feature shape, without batch dimension, the
	// classifier was built for.
	InputSize() tensor.Shape
	NumClasses() int
}

// ExtractorFactory instantiates a feature extractor on backend.
type ExtractorFactory[B tensor.Backend] func(backend B) (Extractor[B], error)

// ClassifierFactory builds a classifier for features of shape inputSize.
// Factories fill the InputSize field of their typed configuration from
// inputSize and return a *ConfigurationMismatchError when that shape cannot
// be served.
type ClassifierFactory[B tensor.Backend] func(inputSize tensor.Shape, backend B) (Classifier[B], error)
