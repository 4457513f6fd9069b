// Package train runs the epoch loop: Adam steps under a one-cycle
// schedule, per-epoch validation, early stopping on a stagnant validation
// accuracy and a checkpoint of the last epoch trained.
package train

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/gabriellecaillaud/wildfire-detection/internal/checkpoint"
	"github.com/gabriellecaillaud/wildfire-detection/internal/loader"
	"github.com/gabriellecaillaud/wildfire-detection/internal/model"
	"github.com/gabriellecaillaud/wildfire-detection/internal/schedule"
)

// Config holds the hyperparameters of a run.
type Config struct {
	Epochs           int     // Upper bound on epochs trained
	SchedulerEpochs  int     // Length of the one-cycle schedule, in epochs
	LearningRate     float64 // Peak LR of the one-cycle schedule
	EpsEarlyStopping float64 // Validation accuracy deltas below this count as no change
	Patience         int     // Stop once the no-change streak exceeds this
}

// DefaultConfig returns the defaults used for ESC training runs.
func DefaultConfig() Config {
	return Config{
		Epochs:           100,
		SchedulerEpochs:  100,
		LearningRate:     0.001,
		EpsEarlyStopping: 1e-7,
		Patience:         5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Epochs <= 0:
		return fmt.Errorf("%w: epochs must be positive, got %d", ErrInvalidConfig, c.Epochs)
	case c.SchedulerEpochs <= 0:
		return fmt.Errorf("%w: scheduler epochs must be positive, got %d", ErrInvalidConfig, c.SchedulerEpochs)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning rate must be positive, got %v", ErrInvalidConfig, c.LearningRate)
	case c.EpsEarlyStopping < 0:
		return fmt.Errorf("%w: early stopping epsilon must not be negative, got %v", ErrInvalidConfig, c.EpsEarlyStopping)
	case c.Patience < 0:
		return fmt.Errorf("%w: patience must not be negative, got %d", ErrInvalidConfig, c.Patience)
	}
	return nil
}

// StopReason tells why a run ended.
type StopReason int

// Stop reasons.
const (
	StoppedByMaxEpochs StopReason = iota
	StoppedByEarlyStopping
)

// String returns the reason name.
func (r StopReason) String() string {
	switch r {
	case StoppedByMaxEpochs:
		return "max-epochs"
	case StoppedByEarlyStopping:
		return "early-stopping"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// Result summarizes a finished run.
type Result struct {
	RunID      string
	Epochs     int // Number of epochs trained
	Reason     StopReason
	Checkpoint string // Path of the saved checkpoint
	History    []EpochMetrics
	Duration   time.Duration
}

// Option configures an Engine.
type Option func(*settings)

type settings struct {
	logger        klog.Logger
	checkpointDir string
	runID         string
	onEpoch       func(EpochMetrics)
}

// WithLogger sets the logger for progress output. Defaults to
// klog.Background().
func WithLogger(logger klog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithCheckpointDir sets the checkpoint directory.
func WithCheckpointDir(dir string) Option {
	return func(s *settings) { s.checkpointDir = dir }
}

// WithRunID overrides the random run identifier attached to log lines.
func WithRunID(id string) Option {
	return func(s *settings) { s.runID = id }
}

// WithEpochHook registers fn to be called after every epoch.
func WithEpochHook(fn func(EpochMetrics)) Option {
	return func(s *settings) { s.onEpoch = fn }
}

// Engine trains one model on one set of loaders. B is the compute backend
// wrapped by the autodiff decorator.
type Engine[B tensor.Backend] struct {
	model     *model.Model[*autodiff.Backend[B]]
	loaders   loader.Loaders[*autodiff.Backend[B]]
	backend   *autodiff.Backend[B]
	optimizer *optim.Adam[*autodiff.Backend[B]]
	scheduler *schedule.OneCycle
	saver     *checkpoint.Saver[*autodiff.Backend[B]]
	cfg       Config
	settings  settings
}

// New creates an engine. The Adam optimizer and the one-cycle schedule are
// created here; the optimizer LR starts at the schedule's initial value.
func New[B tensor.Backend](
	m *model.Model[*autodiff.Backend[B]],
	loaders loader.Loaders[*autodiff.Backend[B]],
	backend *autodiff.Backend[B],
	cfg Config,
	opts ...Option,
) (*Engine[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if loaders.Train == nil || loaders.Valid == nil {
		return nil, ErrMissingLoaders
	}

	s := settings{logger: klog.Background()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}

	adam := optim.NewAdam(m.Parameters(), optim.AdamConfig{
		LR:    float32(cfg.LearningRate),
		Betas: [2]float32{0.9, 0.999},
		Eps:   1e-8,
	}, backend)

	scheduler, err := schedule.NewOneCycle(adam, schedule.OneCycleConfig{
		MaxLR:         cfg.LearningRate,
		Epochs:        cfg.SchedulerEpochs,
		StepsPerEpoch: max(loaders.Train.Len(), 1),
		PctStart:      schedule.DefaultPctStart,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Engine[B]{
		model:     m,
		loaders:   loaders,
		backend:   backend,
		optimizer: adam,
		scheduler: scheduler,
		saver:     &checkpoint.Saver[*autodiff.Backend[B]]{Dir: s.checkpointDir},
		cfg:       cfg,
		settings:  s,
	}, nil
}

// RunID returns the identifier attached to this engine's log lines.
func (e *Engine[B]) RunID() string {
	return e.settings.runID
}

// Run trains until Epochs is reached or the validation accuracy stops
// changing, then saves a checkpoint of the last epoch trained.
//
// An epoch counts as unchanged when its validation accuracy differs from
// the previous epoch's by less than EpsEarlyStopping; the first epoch is
// compared against 0. Training stops once more than Patience consecutive
// epochs are unchanged.
//
// A cancelled ctx is checked between batches and returned as is. Failures
// inside a batch are returned as *ComputationError. No checkpoint is written
// in either case.
func (e *Engine[B]) Run(ctx context.Context) (Result, error) {
	logger := e.settings.logger.WithValues("run", e.settings.runID, "model", e.model.Name())
	start := time.Now()
	logger.Info("Starting training",
		"epochs", e.cfg.Epochs,
		"learningRate", e.cfg.LearningRate,
		"trainBatches", e.loaders.Train.Len(),
		"validBatches", e.loaders.Valid.Len())

	result := Result{RunID: e.settings.runID, Reason: StoppedByMaxEpochs}
	var previous float64
	unchanged := 0
	lastEpoch := e.cfg.Epochs - 1

	for epoch := range e.cfg.Epochs {
		trainMetrics, err := e.pass(ctx, e.loaders.Train, PhaseTrain, epoch)
		if err != nil {
			return result, err
		}
		validMetrics, err := e.pass(ctx, e.loaders.Valid, PhaseValid, epoch)
		if err != nil {
			return result, err
		}

		metrics := EpochMetrics{
			Epoch: epoch,
			Train: trainMetrics,
			Valid: validMetrics,
			LR:    e.scheduler.LastLR(),
		}
		result.History = append(result.History, metrics)
		result.Epochs = epoch + 1
		// Accuracies are logged as percentages.
		logger.Info("Epoch finished",
			"epoch", epoch,
			"trainLoss", trainMetrics.Loss,
			"trainAccuracy", 100*trainMetrics.Accuracy,
			"validLoss", validMetrics.Loss,
			"validAccuracy", 100*validMetrics.Accuracy,
			"lr", metrics.LR)
		if e.settings.onEpoch != nil {
			e.settings.onEpoch(metrics)
		}

		if math.Abs(previous-validMetrics.Accuracy) < e.cfg.EpsEarlyStopping {
			unchanged++
		} else {
			unchanged = 0
		}
		if unchanged > e.cfg.Patience {
			logger.Info("Validation accuracy stopped changing, stopping early",
				"epoch", epoch, "unchangedEpochs", unchanged)
			result.Reason = StoppedByEarlyStopping
			lastEpoch = epoch
			break
		}
		previous = validMetrics.Accuracy
	}

	path, err := e.saver.Save(e.model, lastEpoch)
	if err != nil {
		return result, err
	}
	result.Checkpoint = path
	result.Duration = time.Since(start)
	logger.Info("Model saved", "path", path)
	logger.Info("Finished training", "reason", result.Reason, "epochs", result.Epochs, "duration", result.Duration)
	return result, nil
}

// Evaluate returns the averaged loss and accuracy of the model over l in
// eval mode, without recording gradients.
func (e *Engine[B]) Evaluate(ctx context.Context, l *loader.Loader[*autodiff.Backend[B]]) (Metrics, error) {
	return e.pass(ctx, l, PhaseEval, -1)
}

// pass runs one traversal of l. Training passes step the optimizer and the
// scheduler after every batch.
func (e *Engine[B]) pass(ctx context.Context, l *loader.Loader[*autodiff.Backend[B]], phase Phase, epoch int) (m Metrics, err error) {
	training := phase == PhaseTrain
	tape := e.backend.Tape()
	if training {
		e.model.Train()
		tape.StartRecording()
	} else {
		e.model.Eval()
		tape.StopRecording()
	}

	batchIdx := -1
	defer func() {
		tape.StopRecording()
		tape.Clear()
		if r := recover(); r != nil {
			err = &ComputationError{Epoch: epoch, Phase: phase, Batch: batchIdx, Err: fmt.Errorf("%v", r)}
		}
	}()

	var acc accumulator
	for batch, loadErr := range l.Batches() {
		batchIdx++
		if err := ctx.Err(); err != nil {
			return Metrics{}, err
		}
		if loadErr != nil {
			return Metrics{}, fmt.Errorf("epoch %d, %s batch %d: %w", epoch, phase, batchIdx, loadErr)
		}

		loss, accuracy, stepErr := e.step(batch, training)
		if stepErr != nil {
			return Metrics{}, &ComputationError{Epoch: epoch, Phase: phase, Batch: batchIdx, Err: stepErr}
		}
		acc.add(loss, accuracy)
	}
	return acc.metrics(), nil
}

// step runs one batch and returns its mean loss and accuracy.
func (e *Engine[B]) step(batch *loader.Batch[*autodiff.Backend[B]], training bool) (loss, accuracy float64, err error) {
	if training {
		e.optimizer.ZeroGrad()
	}

	logits := e.model.Forward(batch.Inputs)
	shape := logits.Shape()
	if len(shape) != 2 || shape[0] != batch.Size {
		return 0, 0, fmt.Errorf("logits shape %v does not match batch size %d", shape, batch.Size)
	}

	lossRaw := e.backend.CrossEntropy(logits.Raw(), batch.Labels.Raw())
	loss = float64(lossRaw.AsFloat32()[0])
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, 0, ErrNonFiniteLoss
	}

	if training {
		outputGrad, err := tensor.NewRaw(lossRaw.Shape(), lossRaw.DType(), e.backend.Device())
		if err != nil {
			return 0, 0, fmt.Errorf("failed to create output gradient: %w", err)
		}
		outputGrad.AsFloat32()[0] = 1.0

		grads := e.backend.Tape().Backward(outputGrad, e.backend)
		e.optimizer.Step(grads)
		e.scheduler.Step()
		e.backend.Tape().Clear()
	}

	return loss, BatchAccuracy(logits.Data(), shape[1], batch.Labels.Data()), nil
}
