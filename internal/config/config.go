// Package config loads the YAML configuration of a training job.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gabriellecaillaud/wildfire-detection/internal/dataset"
	"github.com/gabriellecaillaud/wildfire-detection/internal/device"
	"github.com/gabriellecaillaud/wildfire-detection/internal/train"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Extractor names.
const (
	Waveform       = "waveform"
	Spectrogram    = "spectrogram"
	MelSpectrogram = "mel_spectrogram"
)

// Classifier names.
const (
	CNNBardou = "cnn_bardou"
	MLP       = "mlp"
)

// Default dataset roots per task.
const (
	DefaultESC2Root  = "audio_data"
	DefaultESC50Root = "data/esc50"
)

// Config is a complete training job.
type Config struct {
	Dataset       Dataset       `yaml:"dataset"`
	Training      Training      `yaml:"training"`
	Models        []Model       `yaml:"models"`
	Device        device.Kind   `yaml:"device"`
	Seed          uint64        `yaml:"seed"`
	CheckpointDir string        `yaml:"checkpoint_dir"`
	Features      FeatureParams `yaml:"features"`
}

// Dataset selects the ESC task and how it is split.
type Dataset struct {
	Root       string `yaml:"root"`     // Defaults per approach
	Approach   int    `yaml:"approach"` // 2, 10 or 50 classes
	Download   bool   `yaml:"download"`
	SampleRate int    `yaml:"sample_rate"`
	NumSamples int    `yaml:"num_samples"`

	// ESC-2: indices [TrainFrom, TrainTo) form the train set; the rest is
	// halved into validation and test.
	TrainFrom int `yaml:"train_from"`
	TrainTo   int `yaml:"train_to"`

	// ESC-10/ESC-50: proportional split after an optional row cap.
	TrainPercentage float64 `yaml:"train_percentage"`
	TestPercentage  float64 `yaml:"test_percentage"`
	MaxSamples      int     `yaml:"max_samples"`
}

// Training holds the loop hyperparameters.
type Training struct {
	BatchSize        int     `yaml:"batch_size"`
	LearningRate     float64 `yaml:"learning_rate"`
	Epochs           int     `yaml:"epochs"`
	SchedulerEpochs  int     `yaml:"scheduler_epochs"`
	EpsEarlyStopping float64 `yaml:"eps_early_stopping"`
	Patience         int     `yaml:"patience"`
}

// Model pairs a feature extractor with a classifier. Every entry is
// trained in turn on the same split.
type Model struct {
	Extractor  string `yaml:"extractor"`
	Classifier string `yaml:"classifier"`
}

// Name is the model name used for checkpoints.
func (m Model) Name() string {
	return m.Extractor + "_" + m.Classifier
}

// FeatureParams tunes the extractors and classifiers. Zero values keep the
// package defaults.
type FeatureParams struct {
	WaveformDownsample int     `yaml:"waveform_downsample"`
	WindowSize         int     `yaml:"window_size"`
	HopLength          int     `yaml:"hop_length"`
	NumMels            int     `yaml:"num_mels"`
	MLPHidden          []int   `yaml:"mlp_hidden"`
	MLPDropout         float32 `yaml:"mlp_dropout"`
}

// Default returns the configuration of the reference ESC-2 experiment.
func Default() Config {
	tc := train.DefaultConfig()
	return Config{
		Dataset: Dataset{
			Approach:        int(dataset.ESC2Categories),
			SampleRate:      dataset.ExpectedSampleRate,
			NumSamples:      dataset.DefaultNumSamples,
			TrainFrom:       0,
			TrainTo:         2744,
			TrainPercentage: 0.7,
			TestPercentage:  0.15,
		},
		Training: Training{
			BatchSize:        32,
			LearningRate:     tc.LearningRate,
			Epochs:           tc.Epochs,
			SchedulerEpochs:  tc.SchedulerEpochs,
			EpsEarlyStopping: tc.EpsEarlyStopping,
			Patience:         tc.Patience,
		},
		Models: []Model{
			{Extractor: Spectrogram, Classifier: CNNBardou},
		},
		Device: device.Auto,
		Seed:   42,
	}
}

// Load reads a YAML file over Default and validates the result. Unknown
// keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RootDir returns the dataset root, falling back to the default of the task.
func (d Dataset) RootDir() string {
	if d.Root != "" {
		return d.Root
	}
	if d.Approach == int(dataset.ESC2Categories) {
		return DefaultESC2Root
	}
	return DefaultESC50Root
}

// Categories returns the task as a dataset.Categories.
func (d Dataset) Categories() dataset.Categories {
	return dataset.Categories(d.Approach)
}

// TrainIndices returns TrainFrom..TrainTo-1.
func (d Dataset) TrainIndices() []int {
	indices := make([]int, 0, max(d.TrainTo-d.TrainFrom, 0))
	for i := d.TrainFrom; i < d.TrainTo; i++ {
		indices = append(indices, i)
	}
	return indices
}

// Engine returns the training engine configuration.
func (t Training) Engine() train.Config {
	return train.Config{
		Epochs:           t.Epochs,
		SchedulerEpochs:  t.SchedulerEpochs,
		LearningRate:     t.LearningRate,
		EpsEarlyStopping: t.EpsEarlyStopping,
		Patience:         t.Patience,
	}
}

// Validate checks the configuration and returns every problem found.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	d := c.Dataset
	if !d.Categories().Valid() {
		add("dataset.approach must be 2, 10 or 50, got %d", d.Approach)
	}
	if d.SampleRate <= 0 || d.NumSamples <= 0 {
		add("dataset.sample_rate and dataset.num_samples must be positive")
	}
	if d.Categories() == dataset.ESC2Categories {
		if d.TrainFrom < 0 || d.TrainTo < d.TrainFrom {
			add("dataset train index range [%d, %d) is invalid", d.TrainFrom, d.TrainTo)
		}
	} else {
		if d.TrainPercentage < 0 || d.TestPercentage < 0 || d.TrainPercentage+d.TestPercentage > 1 {
			add("dataset percentages train %v + test %v must be within [0, 1]", d.TrainPercentage, d.TestPercentage)
		}
		if d.MaxSamples < 0 {
			add("dataset.max_samples must not be negative")
		}
	}

	if c.Training.BatchSize <= 0 {
		add("training.batch_size must be positive, got %d", c.Training.BatchSize)
	}
	if err := c.Training.Engine().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}

	if len(c.Models) == 0 {
		add("at least one model is required")
	}
	for i, m := range c.Models {
		switch m.Extractor {
		case Waveform, Spectrogram, MelSpectrogram:
		default:
			add("models[%d].extractor %q is unknown", i, m.Extractor)
		}
		switch m.Classifier {
		case CNNBardou, MLP:
		default:
			add("models[%d].classifier %q is unknown", i, m.Classifier)
		}
	}

	f := c.Features
	if f.WaveformDownsample < 0 || f.WindowSize < 0 || f.HopLength < 0 || f.NumMels < 0 {
		add("feature parameters must not be negative")
	}
	if f.MLPDropout < 0 || f.MLPDropout >= 1 {
		add("features.mlp_dropout must be in [0, 1), got %v", f.MLPDropout)
	}
	return errors.Join(errs...)
}
