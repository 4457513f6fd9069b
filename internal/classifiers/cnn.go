// Package classifiers implements classifier stages: networks mapping a
// feature representation to per-class logits.
//
// Each classifier has a typed configuration whose InputSize is filled by its
// factory from the shape declared by the feature extractor. A configuration
// the network cannot serve fails at construction with a
// *model.ConfigurationMismatchError.
package classifiers

import (
	"fmt"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/gabriellecaillaud/wildfire-detection/internal/model"
)

// Block is one convolution -> ReLU -> max-pool unit.
type Block struct {
	Channels   int // Output channels of the convolution
	Kernel     int // Square convolution kernel
	Stride     int // Convolution stride
	PoolKernel int // Square max-pool window
	PoolStride int
}

// outputSize returns the spatial size after the block, without padding.
// ok is false when a window does not fit its input.
func (b Block) outputSize(h, w int) (oh, ow int, ok bool) {
	if h < b.Kernel || w < b.Kernel {
		return 0, 0, false
	}
	h = (h-b.Kernel)/b.Stride + 1
	w = (w-b.Kernel)/b.Stride + 1
	if h < b.PoolKernel || w < b.PoolKernel {
		return 0, 0, false
	}
	return (h-b.PoolKernel)/b.PoolStride + 1, (w-b.PoolKernel)/b.PoolStride + 1, true
}

// BardouBlocks is the convolutional stack of Bardou et al., "Lung sounds
// classification using convolutional neural networks".
var BardouBlocks = []Block{
	{Channels: 64, Kernel: 7, Stride: 1, PoolKernel: 3, PoolStride: 2},
	{Channels: 128, Kernel: 5, Stride: 1, PoolKernel: 3, PoolStride: 2},
	{Channels: 256, Kernel: 3, Stride: 1, PoolKernel: 3, PoolStride: 2},
	{Channels: 384, Kernel: 3, Stride: 1, PoolKernel: 3, PoolStride: 2},
	{Channels: 256, Kernel: 3, Stride: 1, PoolKernel: 3, PoolStride: 2},
}

// CNNConfig configures a CNN classifier.
type CNNConfig struct {
	InputSize  tensor.Shape // (height, width) or (channels, height, width)
	NumClasses int
	Blocks     []Block // Defaults to BardouBlocks
	Hidden     int     // Width of the hidden linear layer; defaults to 1000
}

// CNN is a stack of convolutional blocks followed by a two-layer
// fully-connected head.
//
// Architecture (Bardou defaults):
//
//	Input: [batch, C, H, W] (C = 1 for 2D features)
//	5 x (Conv2D -> ReLU -> MaxPool 3x3/2)
//	Flatten -> Linear(-> 1000) -> ReLU -> Linear(-> classes)
type CNN[B tensor.Backend] struct {
	cfg      CNNConfig
	input    [3]int // C, H, W
	convs    []*nn.Conv2D[B]
	relus    []*nn.ReLU[B]
	pools    []*nn.MaxPool2D[B]
	flat     int
	fc1      *nn.Linear[B]
	reluHead *nn.ReLU[B]
	fc2      *nn.Linear[B]
}

// NewCNN creates a CNN for inputs of shape cfg.InputSize.
func NewCNN[B tensor.Backend](cfg CNNConfig, backend B) (*CNN[B], error) {
	if cfg.Blocks == nil {
		cfg.Blocks = BardouBlocks
	}
	if cfg.Hidden == 0 {
		cfg.Hidden = 1000
	}
	if cfg.NumClasses <= 0 {
		return nil, fmt.Errorf("cnn: number of classes must be positive, got %d", cfg.NumClasses)
	}
	if cfg.Hidden < 0 {
		return nil, fmt.Errorf("cnn: hidden width must be positive, got %d", cfg.Hidden)
	}

	var c, h, w int
	switch len(cfg.InputSize) {
	case 2:
		c, h, w = 1, cfg.InputSize[0], cfg.InputSize[1]
	case 3:
		c, h, w = cfg.InputSize[0], cfg.InputSize[1], cfg.InputSize[2]
	default:
		return nil, &model.ConfigurationMismatchError{
			Shape:  cfg.InputSize,
			Reason: fmt.Sprintf("cnn needs a rank 2 or 3 input, got rank %d", len(cfg.InputSize)),
		}
	}
	if c <= 0 || h <= 0 || w <= 0 {
		return nil, &model.ConfigurationMismatchError{Shape: cfg.InputSize, Reason: "cnn needs positive input dimensions"}
	}

	m := &CNN[B]{cfg: cfg, input: [3]int{c, h, w}}
	in := c
	for i, b := range cfg.Blocks {
		if b.Channels <= 0 || b.Kernel <= 0 || b.Stride <= 0 || b.PoolKernel <= 0 || b.PoolStride <= 0 {
			return nil, fmt.Errorf("cnn: block %d has a non-positive size: %+v", i, b)
		}
		oh, ow, ok := b.outputSize(h, w)
		if !ok {
			return nil, shrinkError(cfg.InputSize, i, h, w)
		}

		m.convs = append(m.convs, nn.NewConv2D(in, b.Channels, b.Kernel, b.Kernel, b.Stride, 0, true, backend))
		m.relus = append(m.relus, nn.NewReLU[B]())
		m.pools = append(m.pools, nn.NewMaxPool2D(b.PoolKernel, b.PoolStride, backend))
		in, h, w = b.Channels, oh, ow
	}

	m.flat = in * h * w
	m.fc1 = nn.NewLinear(m.flat, cfg.Hidden, backend)
	m.reluHead = nn.NewReLU[B]()
	m.fc2 = nn.NewLinear(cfg.Hidden, cfg.NumClasses, backend)
	return m, nil
}

func shrinkError(shape tensor.Shape, block, h, w int) error {
	return &model.ConfigurationMismatchError{
		Shape:  shape,
		Reason: fmt.Sprintf("cnn block %d receives %dx%d, too small for its kernels", block, h, w),
	}
}

// CNNFactory builds CNNs for model.Compose, filling cfg.InputSize from the
// extractor shape.
func CNNFactory[B tensor.Backend](cfg CNNConfig) model.ClassifierFactory[B] {
	return func(inputSize tensor.Shape, backend B) (model.Classifier[B], error) {
		cfg.InputSize = inputSize
		c, err := NewCNN(cfg, backend)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Forward maps [batch, InputSize...] to [batch, NumClasses] logits.
func (m *CNN[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	batchSize := input.Shape()[0]
	x := input.Reshape(batchSize, m.input[0], m.input[1], m.input[2])

	for i := range m.convs {
		x = m.convs[i].Forward(x)
		x = m.relus[i].Forward(x)
		x = m.pools[i].Forward(x)
	}

	x = x.Reshape(batchSize, m.flat)
	x = m.fc1.Forward(x)
	x = m.reluHead.Forward(x)
	return m.fc2.Forward(x)
}

// Parameters returns all trainable parameters.
func (m *CNN[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 2*len(m.convs)+4)
	for _, conv := range m.convs {
		params = append(params, conv.Parameters()...)
	}
	params = append(params, m.fc1.Parameters()...)
	params = append(params, m.fc2.Parameters()...)
	return params
}

// InputSize returns the feature shape the network was built for.
func (m *CNN[B]) InputSize() tensor.Shape {
	return m.cfg.InputSize.Clone()
}

// NumClasses returns the number of logits per sample.
func (m *CNN[B]) NumClasses() int {
	return m.cfg.NumClasses
}

// FlatFeatures returns the size of the flattened convolutional output.
func (m *CNN[B]) FlatFeatures() int {
	return m.flat
}

// String returns a string representation of the model architecture.
func (m *CNN[B]) String() string {
	var sb strings.Builder
	sb.WriteString("CNN(\n")
	for i := range m.convs {
		fmt.Fprintf(&sb, "  %s\n  ReLU()\n  %s\n", m.convs[i], m.pools[i])
	}
	fmt.Fprintf(&sb, "  Linear(in=%d, out=%d)\n  ReLU()\n  Linear(in=%d, out=%d)\n)",
		m.flat, m.cfg.Hidden, m.cfg.Hidden, m.cfg.NumClasses)
	return sb.String()
}
