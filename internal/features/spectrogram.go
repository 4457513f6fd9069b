package features

import (
	"fmt"
	"math"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"gonum.org/v1/gonum/floats"

	"github.com/gabriellecaillaud/wildfire-detection/internal/dataset"
	"github.com/gabriellecaillaud/wildfire-detection/internal/model"
)

// SpectrogramConfig configures the STFT-based extractors.
type SpectrogramConfig struct {
	NumSamples int     // Input clip length; defaults to dataset.DefaultNumSamples
	WindowSize int     // FFT size; defaults to 1024
	HopLength  int     // Defaults to WindowSize/2
	Floor      float64 // Power floor before the dB conversion; defaults to 1e-10
	Workers    int     // Defaults to DefaultWorkers()
}

func (c *SpectrogramConfig) defaults() {
	if c.NumSamples == 0 {
		c.NumSamples = dataset.DefaultNumSamples
	}
	if c.WindowSize == 0 {
		c.WindowSize = 1024
	}
	if c.HopLength == 0 {
		c.HopLength = c.WindowSize / 2
	}
	if c.Floor == 0 {
		c.Floor = 1e-10
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers()
	}
}

// Spectrogram computes the log-power STFT of each clip.
// Output shape is (WindowSize/2+1, frames).
type Spectrogram[B tensor.Backend] struct {
	cfg  SpectrogramConfig
	stft *stft
}

// NewSpectrogram creates a spectrogram extractor.
func NewSpectrogram[B tensor.Backend](cfg SpectrogramConfig) (*Spectrogram[B], error) {
	cfg.defaults()
	s, err := newSTFT(cfg.NumSamples, cfg.WindowSize, cfg.HopLength)
	if err != nil {
		return nil, fmt.Errorf("spectrogram: %w", err)
	}
	return &Spectrogram[B]{cfg: cfg, stft: s}, nil
}

// SpectrogramFactory adapts NewSpectrogram for model.Compose.
func SpectrogramFactory[B tensor.Backend](cfg SpectrogramConfig) model.ExtractorFactory[B] {
	return func(B) (model.Extractor[B], error) {
		s, err := NewSpectrogram[B](cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// OutputShape returns (frequency bins, frames).
func (s *Spectrogram[B]) OutputShape() tensor.Shape {
	return tensor.Shape{s.stft.bins, s.stft.frames}
}

// Forward maps [N, 1, NumSamples] to [N, bins, frames] in dB.
func (s *Spectrogram[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	data, batch := signals("spectrogram", input, s.cfg.NumSamples)

	bins, frames := s.stft.bins, s.stft.frames
	out := make([]float32, batch*bins*frames)
	forChunks(batch, s.cfg.Workers, func(start, end int) {
		w := s.stft.worker()
		for n := start; n < end; n++ {
			power := w.powerSpectrum(data[n*s.cfg.NumSamples : (n+1)*s.cfg.NumSamples])
			dst := out[n*bins*frames : (n+1)*bins*frames]
			for t := 0; t < frames; t++ {
				for k := 0; k < bins; k++ {
					dst[k*frames+t] = decibels(power[t*bins+k], s.cfg.Floor)
				}
			}
		}
	})

	output, err := tensor.FromSlice(out, tensor.Shape{batch, bins, frames}, input.Backend())
	if err != nil {
		panic(fmt.Sprintf("spectrogram: %v", err))
	}
	return output
}

// Parameters returns nothing.
func (s *Spectrogram[B]) Parameters() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{}
}

// String returns a string representation of the extractor.
func (s *Spectrogram[B]) String() string {
	return fmt.Sprintf("Spectrogram(window=%d, hop=%d, shape=%v)", s.cfg.WindowSize, s.cfg.HopLength, s.OutputShape())
}

// MelSpectrogramConfig configures the mel-scaled spectrogram.
type MelSpectrogramConfig struct {
	SpectrogramConfig
	SampleRate int     // Defaults to dataset.ExpectedSampleRate
	NumMels    int     // Defaults to 64
	FMin       float64 // Lowest filter edge in Hz
	FMax       float64 // Highest filter edge in Hz; defaults to SampleRate/2
}

// MelSpectrogram projects the STFT power onto a triangular mel filterbank
// before the dB conversion. Output shape is (NumMels, frames).
type MelSpectrogram[B tensor.Backend] struct {
	cfg     MelSpectrogramConfig
	stft    *stft
	filters [][]float64 // [mel][bin]
}

// NewMelSpectrogram creates a mel-spectrogram extractor.
func NewMelSpectrogram[B tensor.Backend](cfg MelSpectrogramConfig) (*MelSpectrogram[B], error) {
	cfg.defaults()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = dataset.ExpectedSampleRate
	}
	if cfg.NumMels == 0 {
		cfg.NumMels = 64
	}
	if cfg.FMax == 0 {
		cfg.FMax = float64(cfg.SampleRate) / 2
	}
	if err := positive("mel bands", cfg.NumMels); err != nil {
		return nil, fmt.Errorf("mel spectrogram: %w", err)
	}
	if cfg.FMin < 0 || cfg.FMin >= cfg.FMax || cfg.FMax > float64(cfg.SampleRate)/2 {
		return nil, fmt.Errorf("mel spectrogram: invalid frequency range [%v, %v] for sample rate %d",
			cfg.FMin, cfg.FMax, cfg.SampleRate)
	}

	s, err := newSTFT(cfg.NumSamples, cfg.WindowSize, cfg.HopLength)
	if err != nil {
		return nil, fmt.Errorf("mel spectrogram: %w", err)
	}
	return &MelSpectrogram[B]{
		cfg:     cfg,
		stft:    s,
		filters: melFilterbank(cfg.NumMels, cfg.WindowSize, cfg.SampleRate, cfg.FMin, cfg.FMax),
	}, nil
}

// MelSpectrogramFactory adapts NewMelSpectrogram for model.Compose.
func MelSpectrogramFactory[B tensor.Backend](cfg MelSpectrogramConfig) model.ExtractorFactory[B] {
	return func(B) (model.Extractor[B], error) {
		m, err := NewMelSpectrogram[B](cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// OutputShape returns (mel bands, frames).
func (m *MelSpectrogram[B]) OutputShape() tensor.Shape {
	return tensor.Shape{m.cfg.NumMels, m.stft.frames}
}

// Forward maps [N, 1, NumSamples] to [N, mels, frames] in dB.
func (m *MelSpectrogram[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	data, batch := signals("mel spectrogram", input, m.cfg.NumSamples)

	mels, frames, bins := m.cfg.NumMels, m.stft.frames, m.stft.bins
	out := make([]float32, batch*mels*frames)
	forChunks(batch, m.cfg.Workers, func(start, end int) {
		w := m.stft.worker()
		for n := start; n < end; n++ {
			power := w.powerSpectrum(data[n*m.cfg.NumSamples : (n+1)*m.cfg.NumSamples])
			dst := out[n*mels*frames : (n+1)*mels*frames]
			for t := 0; t < frames; t++ {
				frame := power[t*bins : (t+1)*bins]
				for j, filter := range m.filters {
					dst[j*frames+t] = decibels(floats.Dot(filter, frame), m.cfg.Floor)
				}
			}
		}
	})

	output, err := tensor.FromSlice(out, tensor.Shape{batch, mels, frames}, input.Backend())
	if err != nil {
		panic(fmt.Sprintf("mel spectrogram: %v", err))
	}
	return output
}

// Parameters returns nothing.
func (m *MelSpectrogram[B]) Parameters() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{}
}

// String returns a string representation of the extractor.
func (m *MelSpectrogram[B]) String() string {
	return fmt.Sprintf("MelSpectrogram(window=%d, hop=%d, mels=%d, shape=%v)",
		m.cfg.WindowSize, m.cfg.HopLength, m.cfg.NumMels, m.OutputShape())
}

// HTK mel scale.
func hzToMel(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }
func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

// melFilterbank builds numMels triangular filters over the windowSize/2+1
// FFT bins. Filter centres are evenly spaced on the mel scale between fMin
// and fMax; each filter peaks at 1 on its centre frequency.
func melFilterbank(numMels, windowSize, sampleRate int, fMin, fMax float64) [][]float64 {
	bins := windowSize/2 + 1

	edges := make([]float64, numMels+2)
	floats.Span(edges, hzToMel(fMin), hzToMel(fMax))
	for i, mel := range edges {
		edges[i] = melToHz(mel)
	}

	binHz := float64(sampleRate) / float64(windowSize)
	filters := make([][]float64, numMels)
	for j := range filters {
		lo, centre, hi := edges[j], edges[j+1], edges[j+2]
		filter := make([]float64, bins)
		for k := range filter {
			f := float64(k) * binHz
			rising := (f - lo) / (centre - lo)
			falling := (hi - f) / (hi - centre)
			filter[k] = math.Max(0, math.Min(rising, falling))
		}
		filters[j] = filter
	}
	return filters
}
