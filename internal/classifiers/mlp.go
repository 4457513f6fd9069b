package classifiers

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/gabriellecaillaud/wildfire-detection/internal/model"
)

// MLPConfig configures a feed-forward classifier.
type MLPConfig struct {
	InputSize  tensor.Shape // Any rank; flattened
	NumClasses int
	Hidden     []int   // Hidden layer widths; defaults to {512, 128}
	Dropout    float32 // Dropout after every hidden activation; 0 disables
	Seed       uint64  // Seeds the dropout masks
}

// MLP flattens its input and applies Linear -> ReLU (-> Dropout) layers
// followed by a linear output layer.
type MLP[B tensor.Backend] struct {
	cfg      MLPConfig
	features int
	hidden   []*nn.Linear[B]
	relus    []*nn.ReLU[B]
	dropouts []*model.Dropout[B]
	out      *nn.Linear[B]
}

// NewMLP creates an MLP for inputs of shape cfg.InputSize.
func NewMLP[B tensor.Backend](cfg MLPConfig, backend B) (*MLP[B], error) {
	if cfg.Hidden == nil {
		cfg.Hidden = []int{512, 128}
	}
	if cfg.NumClasses <= 0 {
		return nil, fmt.Errorf("mlp: number of classes must be positive, got %d", cfg.NumClasses)
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		return nil, fmt.Errorf("mlp: dropout must be in [0, 1), got %v", cfg.Dropout)
	}
	if len(cfg.InputSize) == 0 || cfg.InputSize.Validate() != nil || cfg.InputSize.NumElements() <= 0 {
		return nil, &model.ConfigurationMismatchError{Shape: cfg.InputSize, Reason: "mlp needs positive input dimensions"}
	}

	m := &MLP[B]{cfg: cfg, features: cfg.InputSize.NumElements()}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	in := m.features
	for i, width := range cfg.Hidden {
		if width <= 0 {
			return nil, fmt.Errorf("mlp: hidden layer %d width must be positive, got %d", i, width)
		}
		m.hidden = append(m.hidden, nn.NewLinear(in, width, backend))
		m.relus = append(m.relus, nn.NewReLU[B]())
		if cfg.Dropout > 0 {
			m.dropouts = append(m.dropouts, model.NewDropout[B](cfg.Dropout, rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64()))))
		}
		in = width
	}
	m.out = nn.NewLinear(in, cfg.NumClasses, backend)
	return m, nil
}

// MLPFactory builds MLPs for model.Compose, filling cfg.InputSize from the
// extractor shape.
func MLPFactory[B tensor.Backend](cfg MLPConfig) model.ClassifierFactory[B] {
	return func(inputSize tensor.Shape, backend B) (model.Classifier[B], error) {
		cfg.InputSize = inputSize
		m, err := NewMLP(cfg, backend)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Forward maps [batch, InputSize...] to [batch, NumClasses] logits.
func (m *MLP[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x := input.Reshape(input.Shape()[0], m.features)
	for i, layer := range m.hidden {
		x = layer.Forward(x)
		x = m.relus[i].Forward(x)
		if m.dropouts != nil {
			x = m.dropouts[i].Forward(x)
		}
	}
	return m.out.Forward(x)
}

// Parameters returns all trainable parameters.
func (m *MLP[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 2*len(m.hidden)+2)
	for _, layer := range m.hidden {
		params = append(params, layer.Parameters()...)
	}
	return append(params, m.out.Parameters()...)
}

// SetTraining toggles dropout.
func (m *MLP[B]) SetTraining(training bool) {
	for _, d := range m.dropouts {
		d.SetTraining(training)
	}
}

// InputSize returns the feature shape the network was built for.
func (m *MLP[B]) InputSize() tensor.Shape {
	return m.cfg.InputSize.Clone()
}

// NumClasses returns the number of logits per sample.
func (m *MLP[B]) NumClasses() int {
	return m.cfg.NumClasses
}

// String returns a string representation of the model architecture.
func (m *MLP[B]) String() string {
	var sb strings.Builder
	sb.WriteString("MLP(\n")
	for i, layer := range m.hidden {
		fmt.Fprintf(&sb, "  Linear(in=%d, out=%d)\n  ReLU()\n", layer.InFeatures(), layer.OutFeatures())
		if m.dropouts != nil {
			fmt.Fprintf(&sb, "  %s\n", m.dropouts[i])
		}
	}
	fmt.Fprintf(&sb, "  Linear(in=%d, out=%d)\n)", m.out.InFeatures(), m.out.OutFeatures())
	return sb.String()
}
