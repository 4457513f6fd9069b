package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Named pairs a stage with the name it contributes to the model identity.
type Named[B tensor.Backend] struct {
	Name  string
	Stage Stage[B]
}

// Model chains named stages: each stage's output is the next stage's input.
//
// The model owns the parameters of its stages and carries a training flag
// that is forwarded to every stage implementing ModeSetter. Its name is the
// stage names joined by "_" and identifies its checkpoints.
type Model[B tensor.Backend] struct {
	stages   []Named[B]
	name     string
	training bool
}

// New creates a model from stages, in order. Models start in training mode.
func New[B tensor.Backend](stages ...Named[B]) *Model[B] {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	m := &Model[B]{
		stages: stages,
		name:   strings.Join(names, "_"),
	}
	m.Train()
	return m
}

// Compose instantiates a feature extractor, builds a classifier for the
// extractor's declared output shape and chains the two.
//
// No forward pass is run. A classifier that cannot accept the declared shape
// fails here with a *ConfigurationMismatchError rather than during training.
func Compose[B tensor.Backend](
	extractorName string,
	newExtractor ExtractorFactory[B],
	classifierName string,
	newClassifier ClassifierFactory[B],
	backend B,
) (*Model[B], error) {
	extractor, err := newExtractor(backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor %q: %w", extractorName, err)
	}

	shape := extractor.OutputShape()
	mismatch := &ConfigurationMismatchError{
		Extractor:  extractorName,
		Classifier: classifierName,
		Shape:      shape,
	}
	if err := shape.Validate(); err != nil || len(shape) == 0 {
		mismatch.Reason = "extractor declares an invalid output shape"
		return nil, mismatch
	}

	classifier, err := newClassifier(shape.Clone(), backend)
	if err != nil {
		var cm *ConfigurationMismatchError
		if errors.As(err, &cm) {
			cm.Extractor, cm.Classifier, cm.Shape = extractorName, classifierName, shape
			return nil, cm
		}
		return nil, fmt.Errorf("failed to create classifier %q: %w", classifierName, err)
	}
	if !classifier.InputSize().Equal(shape) {
		mismatch.Reason = fmt.Sprintf("classifier was built for input %v", classifier.InputSize())
		return nil, mismatch
	}

	return New(
		Named[B]{Name: extractorName, Stage: extractor},
		Named[B]{Name: classifierName, Stage: classifier},
	), nil
}

// Name returns the stage names joined by "_".
func (m *Model[B]) Name() string {
	return m.name
}

// Stages returns the named stages in order.
func (m *Model[B]) Stages() []Named[B] {
	return append([]Named[B](nil), m.stages...)
}

// Forward applies all stages in sequence.
func (m *Model[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input
	for _, s := range m.stages {
		output = s.Stage.Forward(output)
	}
	return output
}

// Parameters returns the trainable parameters of every stage.
func (m *Model[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, s := range m.stages {
		params = append(params, s.Stage.Parameters()...)
	}
	return params
}

// Train switches every stage to training mode.
func (m *Model[B]) Train() {
	m.setTraining(true)
}

// Eval switches every stage to evaluation mode.
func (m *Model[B]) Eval() {
	m.setTraining(false)
}

// Training reports whether the model is in training mode.
func (m *Model[B]) Training() bool {
	return m.training
}

func (m *Model[B]) setTraining(training bool) {
	m.training = training
	for _, s := range m.stages {
		if ms, ok := s.Stage.(ModeSetter); ok {
			ms.SetTraining(training)
		}
	}
}

// StateDict maps parameter names to their tensors.
//
// Names have the form "<stage index>.<stage name>.<param index>.<param name>"
// (e.g. "1.mlp.0.weight") so parameters sharing a layer-local name stay distinct.
func (m *Model[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	m.eachParameter(func(key string, p *nn.Parameter[B]) {
		stateDict[key] = p.Tensor().Raw()
	})
	return stateDict
}

// LoadStateDict copies parameter values from stateDict into the model.
//
// Every parameter must be present with a matching shape.
func (m *Model[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	var err error
	m.eachParameter(func(key string, p *nn.Parameter[B]) {
		if err != nil {
			return
		}
		raw, ok := stateDict[key]
		if !ok {
			err = fmt.Errorf("missing %s in state dict", key)
			return
		}
		if !raw.Shape().Equal(p.Tensor().Shape()) {
			err = fmt.Errorf("%s shape mismatch: expected %v, got %v", key, p.Tensor().Shape(), raw.Shape())
			return
		}
		if raw.DType() != tensor.Float32 {
			err = fmt.Errorf("%s dtype mismatch: expected float32, got %v", key, raw.DType())
			return
		}
		copy(p.Tensor().Data(), raw.AsFloat32())
	})
	return err
}

func (m *Model[B]) eachParameter(fn func(key string, p *nn.Parameter[B])) {
	for i, s := range m.stages {
		for j, p := range s.Stage.Parameters() {
			fn(fmt.Sprintf("%d.%s.%d.%s", i, s.Name, j, p.Name()), p)
		}
	}
}

// String describes the model layout.
func (m *Model[B]) String() string {
	var sb strings.Builder
	sb.WriteString("Model(")
	sb.WriteString(m.name)
	sb.WriteString(")\n")
	for i, s := range m.stages {
		fmt.Fprintf(&sb, "  (%d) %s: %d parameters\n", i, s.Name, len(s.Stage.Parameters()))
	}
	return sb.String()
}
