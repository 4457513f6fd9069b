package model_test

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabriellecaillaud/wildfire-detection/internal/model"
)

type backend = *cpu.Backend

var _ nn.Module[backend] = (*model.Model[backend])(nil)

// fixedExtractor reshapes [N, ...] inputs to [N, shape...].
type fixedExtractor struct {
	shape tensor.Shape
}

func (e *fixedExtractor) Forward(x *tensor.Tensor[float32, backend]) *tensor.Tensor[float32, backend] {
	dims := append([]int{x.Shape()[0]}, e.shape...)
	return x.Reshape(dims...)
}

func (e *fixedExtractor) Parameters() []*nn.Parameter[backend] { return nil }

func (e *fixedExtractor) OutputShape() tensor.Shape { return e.shape }

func extractorOf(shape ...int) model.ExtractorFactory[backend] {
	return func(backend) (model.Extractor[backend], error) {
		return &fixedExtractor{shape: tensor.Shape(shape)}, nil
	}
}

// linearHead flattens its input and applies one linear layer.
type linearHead struct {
	inputSize tensor.Shape
	linear    *nn.Linear[backend]
	dropout   *model.Dropout[backend]
}

func (c *linearHead) Forward(x *tensor.Tensor[float32, backend]) *tensor.Tensor[float32, backend] {
	x = x.Reshape(x.Shape()[0], c.inputSize.NumElements())
	return c.linear.Forward(c.dropout.Forward(x))
}

func (c *linearHead) Parameters() []*nn.Parameter[backend] { return c.linear.Parameters() }
func (c *linearHead) InputSize() tensor.Shape              { return c.inputSize }
func (c *linearHead) NumClasses() int                      { return c.linear.OutFeatures() }
func (c *linearHead) SetTraining(training bool)            { c.dropout.SetTraining(training) }

func linearOf(numClasses int) model.ClassifierFactory[backend] {
	return func(inputSize tensor.Shape, b backend) (model.Classifier[backend], error) {
		return &linearHead{
			inputSize: inputSize,
			linear:    nn.NewLinear(inputSize.NumElements(), numClasses, b),
			dropout:   model.NewDropout[backend](0.5, rand.New(rand.NewPCG(1, 1))),
		}, nil
	}
}

func TestCompose_InputSizeMatchesExtractor(t *testing.T) {
	shapes := []tensor.Shape{{4, 6}, {1, 10}, {3, 1}, {2, 3, 5}}

	for _, shape := range shapes {
		t.Run(fmt.Sprint(shape), func(t *testing.T) {
			b := cpu.New()
			m, err := model.Compose("fixed", extractorOf(shape...), "linear", linearOf(3), b)
			require.NoError(t, err)

			stages := m.Stages()
			require.Len(t, stages, 2)
			classifier := stages[1].Stage.(model.Classifier[backend])
			assert.Equal(t, shape, classifier.InputSize())
			assert.Equal(t, "fixed_linear", m.Name())

			batch := 2
			x := tensor.Zeros[float32](tensor.Shape{batch, shape.NumElements()}, b)
			m.Eval()
			out := m.Forward(x)
			assert.Equal(t, tensor.Shape{batch, 3}, out.Shape())
		})
	}
}

func TestCompose_ClassifierRejectsShape(t *testing.T) {
	rejecting := func(inputSize tensor.Shape, b backend) (model.Classifier[backend], error) {
		return nil, &model.ConfigurationMismatchError{Reason: "needs rank 3 input"}
	}

	_, err := model.Compose("waveform", extractorOf(1, 8), "cnn", rejecting, cpu.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfigurationMismatch)

	var mismatch *model.ConfigurationMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "waveform", mismatch.Extractor)
	assert.Equal(t, "cnn", mismatch.Classifier)
	assert.Equal(t, tensor.Shape{1, 8}, mismatch.Shape)
	assert.Contains(t, err.Error(), "needs rank 3 input")
}

func TestCompose_ClassifierBuiltForOtherShape(t *testing.T) {
	wrong := func(_ tensor.Shape, b backend) (model.Classifier[backend], error) {
		return linearOf(2)(tensor.Shape{5, 5}, b)
	}

	_, err := model.Compose("fixed", extractorOf(2, 2), "linear", wrong, cpu.New())
	assert.ErrorIs(t, err, model.ErrConfigurationMismatch)
}

func TestCompose_InvalidExtractorShape(t *testing.T) {
	_, err := model.Compose("broken", extractorOf(0, 4), "linear", linearOf(2), cpu.New())
	assert.ErrorIs(t, err, model.ErrConfigurationMismatch)
}

func TestCompose_FactoryErrors(t *testing.T) {
	errBoom := errors.New("boom")
	failingExtractor := func(backend) (model.Extractor[backend], error) { return nil, errBoom }
	failingClassifier := func(tensor.Shape, backend) (model.Classifier[backend], error) { return nil, errBoom }

	_, err := model.Compose("x", failingExtractor, "linear", linearOf(2), cpu.New())
	require.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, model.ErrConfigurationMismatch)

	_, err = model.Compose("fixed", extractorOf(2), "y", failingClassifier, cpu.New())
	require.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, model.ErrConfigurationMismatch)
}

func TestModel_ModePropagation(t *testing.T) {
	m, err := model.Compose("fixed", extractorOf(1, 64), "linear", linearOf(2), cpu.New())
	require.NoError(t, err)
	head := m.Stages()[1].Stage.(*linearHead)

	assert.True(t, m.Training(), "models start in training mode")

	x := tensor.Ones[float32](tensor.Shape{1, 64}, cpu.New())

	m.Eval()
	assert.False(t, m.Training())
	assert.Equal(t, x.Data(), head.dropout.Forward(x).Data(), "dropout is the identity in eval mode")

	m.Train()
	assert.True(t, m.Training())
	dropped := head.dropout.Forward(x).Data()
	var zeros int
	for _, v := range dropped {
		if v == 0 {
			zeros++
		} else {
			assert.InDelta(t, 2.0, v, 1e-6, "survivors are scaled by 1/(1-p)")
		}
	}
	assert.Positive(t, zeros)
}

func TestModel_StateDictRoundTrip(t *testing.T) {
	b := cpu.New()
	a, err := model.Compose("fixed", extractorOf(2, 3), "linear", linearOf(4), b)
	require.NoError(t, err)
	c, err := model.Compose("fixed", extractorOf(2, 3), "linear", linearOf(4), b)
	require.NoError(t, err)

	state := a.StateDict()
	assert.Contains(t, state, "1.linear.0.weight")
	assert.Contains(t, state, "1.linear.1.bias")
	assert.Len(t, state, len(a.Parameters()))

	require.NoError(t, c.LoadStateDict(state))
	for i, p := range c.Parameters() {
		assert.Equal(t, a.Parameters()[i].Tensor().Data(), p.Tensor().Data())
	}
}

func TestModel_LoadStateDictErrors(t *testing.T) {
	b := cpu.New()
	m, err := model.Compose("fixed", extractorOf(2, 3), "linear", linearOf(4), b)
	require.NoError(t, err)

	state := m.StateDict()
	delete(state, "1.linear.1.bias")
	assert.ErrorContains(t, m.LoadStateDict(state), "missing 1.linear.1.bias")

	other, err := model.Compose("fixed", extractorOf(5), "linear", linearOf(4), b)
	require.NoError(t, err)
	assert.ErrorContains(t, m.LoadStateDict(other.StateDict()), "shape mismatch")
}

func TestNewModel_NameJoinsStages(t *testing.T) {
	m := model.New(
		model.Named[backend]{Name: "a", Stage: model.NewDropout[backend](0, nil)},
		model.Named[backend]{Name: "b", Stage: model.NewDropout[backend](0, nil)},
		model.Named[backend]{Name: "c", Stage: model.NewDropout[backend](0, nil)},
	)
	assert.Equal(t, "a_b_c", m.Name())
	assert.Empty(t, m.Parameters())
	assert.Contains(t, m.String(), "(2) c")
}

func TestNewDropout_InvalidProbability(t *testing.T) {
	assert.Panics(t, func() { model.NewDropout[backend](1, nil) })
	assert.Panics(t, func() { model.NewDropout[backend](-0.1, nil) })
}
