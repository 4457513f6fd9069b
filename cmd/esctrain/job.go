package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"k8s.io/klog/v2"

	"github.com/gabriellecaillaud/wildfire-detection/internal/classifiers"
	"github.com/gabriellecaillaud/wildfire-detection/internal/config"
	"github.com/gabriellecaillaud/wildfire-detection/internal/dataset"
	"github.com/gabriellecaillaud/wildfire-detection/internal/features"
	"github.com/gabriellecaillaud/wildfire-detection/internal/loader"
	"github.com/gabriellecaillaud/wildfire-detection/internal/model"
	"github.com/gabriellecaillaud/wildfire-detection/internal/train"
)

// job trains every configured model on the device picked by device.Run.
type job struct {
	ctx    context.Context
	cfg    config.Config
	logger klog.Logger
}

func (j *job) CPU(backend *autodiff.Backend[*cpu.Backend]) error {
	return runJob(j, backend)
}

// summary is the outcome of one trained model.
type summary struct {
	Model  string
	Result train.Result
	Test   train.Metrics
}

func runJob[B tensor.Backend](j *job, backend *autodiff.Backend[B]) error {
	_, err := trainAll(j.ctx, j.cfg, backend, j.logger)
	return err
}

// trainAll opens the dataset, splits it once and trains the configured
// models sequentially on that split.
func trainAll[B tensor.Backend](ctx context.Context, cfg config.Config, backend *autodiff.Backend[B], logger klog.Logger) ([]summary, error) {
	logger.Info("Job started!", "time", time.Now().Format(time.DateTime), "device", backend.Name())

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	ds, splitter, err := openDataset(ctx, cfg.Dataset, rng)
	if err != nil {
		return nil, err
	}
	logger.Info("Dataset loaded", "dataset", ds, "approach", cfg.Dataset.Categories(), "samples", ds.Len())

	split, err := splitter.Split(ds, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to split dataset: %w", err)
	}
	loaders, err := loader.FromSplit(ds, split, cfg.Training.BatchSize, rng, backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create loaders: %w", err)
	}
	logger.Info("Dataset split", "policy", splitter.Policy,
		"train", len(split.Train), "valid", len(split.Valid), "test", len(split.Test))

	numClasses := int(cfg.Dataset.Categories())
	summaries := make([]summary, 0, len(cfg.Models))
	for _, mc := range cfg.Models {
		m, err := buildModel(mc, cfg, numClasses, backend)
		if err != nil {
			return summaries, err
		}
		logger.Info("Training model", "model", m.Name(), "architecture", m.String())

		engine, err := train.New(m, loaders, backend, cfg.Training.Engine(),
			train.WithLogger(logger), train.WithCheckpointDir(cfg.CheckpointDir))
		if err != nil {
			return summaries, err
		}
		result, err := engine.Run(ctx)
		if err != nil {
			return summaries, fmt.Errorf("model %s: %w", m.Name(), err)
		}
		test, err := engine.Evaluate(ctx, loaders.Test)
		if err != nil {
			return summaries, fmt.Errorf("model %s: test evaluation: %w", m.Name(), err)
		}
		logger.Info("Test results", "model", m.Name(), "loss", test.Loss, "accuracy", test.Accuracy)
		summaries = append(summaries, summary{Model: m.Name(), Result: result, Test: test})
	}

	logger.Info("----------------------FINISHED TRAINING----------------------",
		"time", time.Now().Format(time.DateTime), "models", len(summaries))
	return summaries, nil
}

// openDataset loads the configured ESC task together with the splitting
// strategy it is used with.
func openDataset(ctx context.Context, cfg config.Dataset, rng *rand.Rand) (dataset.Dataset, dataset.Splitter, error) {
	source := dataset.Source{
		Root:       cfg.RootDir(),
		Download:   cfg.Download,
		SampleRate: cfg.SampleRate,
		NumSamples: cfg.NumSamples,
	}

	if cfg.Categories() == dataset.ESC2Categories {
		ds, err := dataset.NewESC2(ctx, dataset.ESC2Options{Source: source})
		if err != nil {
			return nil, dataset.Splitter{}, err
		}
		return ds, dataset.Splitter{Policy: dataset.ExplicitIndex, TrainIndices: cfg.TrainIndices()}, nil
	}

	ds, err := dataset.NewESC50(ctx, dataset.ESC50Options{
		Source:     source,
		Categories: cfg.Categories(),
		MaxSamples: cfg.MaxSamples,
		Rand:       rng,
	})
	if err != nil {
		return nil, dataset.Splitter{}, err
	}
	return ds, dataset.Splitter{
		Policy:          dataset.Proportional,
		TrainPercentage: cfg.TrainPercentage,
		TestPercentage:  cfg.TestPercentage,
	}, nil
}

// buildModel composes the extractor and classifier named by mc.
func buildModel[B tensor.Backend](mc config.Model, cfg config.Config, numClasses int, backend B) (*model.Model[B], error) {
	f := cfg.Features
	stft := features.SpectrogramConfig{
		NumSamples: cfg.Dataset.NumSamples,
		WindowSize: f.WindowSize,
		HopLength:  f.HopLength,
	}

	var newExtractor model.ExtractorFactory[B]
	switch mc.Extractor {
	case config.Waveform:
		newExtractor = features.WaveformFactory[B](features.WaveformConfig{
			NumSamples: cfg.Dataset.NumSamples,
			Downsample: f.WaveformDownsample,
		})
	case config.Spectrogram:
		newExtractor = features.SpectrogramFactory[B](stft)
	case config.MelSpectrogram:
		newExtractor = features.MelSpectrogramFactory[B](features.MelSpectrogramConfig{
			SpectrogramConfig: stft,
			SampleRate:        cfg.Dataset.SampleRate,
			NumMels:           f.NumMels,
		})
	default:
		return nil, fmt.Errorf("unknown extractor %q", mc.Extractor)
	}

	var newClassifier model.ClassifierFactory[B]
	switch mc.Classifier {
	case config.CNNBardou:
		newClassifier = classifiers.CNNFactory[B](classifiers.CNNConfig{NumClasses: numClasses})
	case config.MLP:
		newClassifier = classifiers.MLPFactory[B](classifiers.MLPConfig{
			NumClasses: numClasses,
			Hidden:     f.MLPHidden,
			Dropout:    f.MLPDropout,
			Seed:       cfg.Seed,
		})
	default:
		return nil, fmt.Errorf("unknown classifier %q", mc.Classifier)
	}

	return model.Compose(mc.Extractor, newExtractor, mc.Classifier, newClassifier, backend)
}
