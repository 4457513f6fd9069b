package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabriellecaillaud/wildfire-detection/internal/config"
	"github.com/gabriellecaillaud/wildfire-detection/internal/dataset"
	"github.com/gabriellecaillaud/wildfire-detection/internal/device"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, dataset.ESC2Categories, cfg.Dataset.Categories())
	assert.Equal(t, config.DefaultESC2Root, cfg.Dataset.RootDir())
	assert.Equal(t, 32, cfg.Training.BatchSize)
	assert.Equal(t, 0.001, cfg.Training.LearningRate)
	assert.Equal(t, 100, cfg.Training.Epochs)
	assert.Equal(t, 1e-7, cfg.Training.EpsEarlyStopping)

	indices := cfg.Dataset.TrainIndices()
	require.Len(t, indices, 2744)
	assert.Equal(t, 0, indices[0])
	assert.Equal(t, 2743, indices[len(indices)-1])
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(`
dataset:
  approach: 50
  max_samples: 200
training:
  batch_size: 16
  epochs: 3
models:
  - extractor: mel_spectrogram
    classifier: mlp
  - extractor: waveform
    classifier: mlp
device: cpu
seed: 7
checkpoint_dir: out
features:
  num_mels: 40
  mlp_hidden: [64]
`))
	require.NoError(t, err)

	assert.Equal(t, dataset.ESC50Categories, cfg.Dataset.Categories())
	assert.Equal(t, config.DefaultESC50Root, cfg.Dataset.RootDir())
	assert.Equal(t, 200, cfg.Dataset.MaxSamples)
	assert.Equal(t, 0.7, cfg.Dataset.TrainPercentage, "untouched keys keep defaults")
	assert.Equal(t, 16, cfg.Training.BatchSize)
	assert.Equal(t, 3, cfg.Training.Epochs)
	assert.Equal(t, 100, cfg.Training.SchedulerEpochs)
	assert.Equal(t, device.CPU, cfg.Device)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, "out", cfg.CheckpointDir)
	assert.Equal(t, 40, cfg.Features.NumMels)
	assert.Equal(t, []int{64}, cfg.Features.MLPHidden)

	require.Len(t, cfg.Models, 2)
	assert.Equal(t, "mel_spectrogram_mlp", cfg.Models[0].Name())
	assert.Equal(t, "waveform_mlp", cfg.Models[1].Name())

	engine := cfg.Training.Engine()
	assert.Equal(t, 3, engine.Epochs)
	assert.Equal(t, 5, engine.Patience)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown key":        "batch: 3\n",
		"bad approach":       "dataset: {approach: 7}\n",
		"bad percentages":    "dataset: {approach: 10, train_percentage: 0.9, test_percentage: 0.2}\n",
		"bad range":          "dataset: {train_from: 10, train_to: 5}\n",
		"bad batch size":     "training: {batch_size: 0}\n",
		"bad learning rate":  "training: {learning_rate: -1}\n",
		"no models":          "models: []\n",
		"unknown extractor":  "models: [{extractor: cochleagram, classifier: mlp}]\n",
		"unknown classifier": "models: [{extractor: waveform, classifier: crnn}]\n",
		"bad device":         "device: tpu\n",
		"bad dropout":        "features: {mlp_dropout: 1.5}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := config.Default()
	cfg.Training.BatchSize = 0
	cfg.Models = nil

	err := cfg.Validate()
	require.ErrorIs(t, err, config.ErrInvalid)
	assert.Contains(t, err.Error(), "batch_size")
	assert.Contains(t, err.Error(), "at least one model")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: 9\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), cfg.Seed)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
