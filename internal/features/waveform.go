package features

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/gabriellecaillaud/wildfire-detection/internal/dataset"
	"github.com/gabriellecaillaud/wildfire-detection/internal/model"
)

// WaveformConfig configures the raw-signal extractor.
type WaveformConfig struct {
	NumSamples int // Input clip length; defaults to dataset.DefaultNumSamples
	Downsample int // Average every Downsample input values into one; defaults to 100
	Workers    int // Defaults to DefaultWorkers()
}

// Waveform passes the raw signal through, decimated by block averaging.
// Output shape is (1, NumSamples/Downsample).
type Waveform[B tensor.Backend] struct {
	cfg     WaveformConfig
	outLen  int
	workers int
}

// NewWaveform creates a waveform extractor.
func NewWaveform[B tensor.Backend](cfg WaveformConfig) (*Waveform[B], error) {
	if cfg.NumSamples == 0 {
		cfg.NumSamples = dataset.DefaultNumSamples
	}
	if cfg.Downsample == 0 {
		cfg.Downsample = 100
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers()
	}
	if err := positive("num samples", cfg.NumSamples); err != nil {
		return nil, err
	}
	if err := positive("downsample", cfg.Downsample); err != nil {
		return nil, err
	}
	if cfg.Downsample > cfg.NumSamples {
		return nil, fmt.Errorf("downsample %d exceeds clip length %d", cfg.Downsample, cfg.NumSamples)
	}
	return &Waveform[B]{cfg: cfg, outLen: cfg.NumSamples / cfg.Downsample, workers: cfg.Workers}, nil
}

// WaveformFactory adapts NewWaveform for model.Compose.
func WaveformFactory[B tensor.Backend](cfg WaveformConfig) model.ExtractorFactory[B] {
	return func(B) (model.Extractor[B], error) {
		w, err := NewWaveform[B](cfg)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// OutputShape returns (1, NumSamples/Downsample).
func (w *Waveform[B]) OutputShape() tensor.Shape {
	return tensor.Shape{1, w.outLen}
}

// Forward maps [N, 1, NumSamples] to [N, 1, NumSamples/Downsample].
func (w *Waveform[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	data, batch := signals("waveform", input, w.cfg.NumSamples)

	k := w.cfg.Downsample
	out := make([]float32, batch*w.outLen)
	forChunks(batch, w.workers, func(start, end int) {
		for n := start; n < end; n++ {
			src := data[n*w.cfg.NumSamples:]
			dst := out[n*w.outLen : (n+1)*w.outLen]
			for i := range dst {
				var sum float32
				for _, v := range src[i*k : (i+1)*k] {
					sum += v
				}
				dst[i] = sum / float32(k)
			}
		}
	})

	output, err := tensor.FromSlice(out, tensor.Shape{batch, 1, w.outLen}, input.Backend())
	if err != nil {
		panic(fmt.Sprintf("waveform: %v", err))
	}
	return output
}

// Parameters returns nothing.
func (w *Waveform[B]) Parameters() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{}
}

// String returns a string representation of the extractor.
func (w *Waveform[B]) String() string {
	return fmt.Sprintf("Waveform(samples=%d, downsample=%d)", w.cfg.NumSamples, w.cfg.Downsample)
}
