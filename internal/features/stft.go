package features

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// stft holds the framing of a short-time Fourier transform over clips of a
// fixed length. Frames are not centred: frame t covers
// [t*hop, t*hop+len(window)).
type stft struct {
	window []float64
	hop    int
	frames int
	bins   int
}

func newSTFT(numSamples, windowSize, hop int) (*stft, error) {
	if err := positive("window size", windowSize); err != nil {
		return nil, err
	}
	if err := positive("hop length", hop); err != nil {
		return nil, err
	}
	if windowSize > numSamples {
		return nil, fmt.Errorf("window size %d exceeds clip length %d", windowSize, numSamples)
	}
	return &stft{
		window: hann(windowSize),
		hop:    hop,
		frames: 1 + (numSamples-windowSize)/hop,
		bins:   windowSize/2 + 1,
	}, nil
}

// hann returns a periodic Hann window.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// stftWorker owns the scratch space of one goroutine. gonum FFT values keep
// internal work buffers and are not shared.
type stftWorker struct {
	*stft
	fft    *fourier.FFT
	frame  []float64
	coeffs []complex128
	power  []float64 // [frames][bins]
}

func (s *stft) worker() *stftWorker {
	return &stftWorker{
		stft:   s,
		fft:    fourier.NewFFT(len(s.window)),
		frame:  make([]float64, len(s.window)),
		coeffs: make([]complex128, s.bins),
		power:  make([]float64, s.frames*s.bins),
	}
}

// powerSpectrum fills w.power with |X(t, k)|^2 for every frame t and bin k,
// frame-major.
func (w *stftWorker) powerSpectrum(signal []float32) []float64 {
	for t := 0; t < w.frames; t++ {
		offset := t * w.hop
		for i, win := range w.window {
			w.frame[i] = float64(signal[offset+i]) * win
		}
		w.coeffs = w.fft.Coefficients(w.coeffs, w.frame)

		row := w.power[t*w.bins : (t+1)*w.bins]
		for k, c := range w.coeffs {
			a := cmplx.Abs(c)
			row[k] = a * a
		}
	}
	return w.power
}

// decibels converts a power value to dB, clamping at floor.
func decibels(power, floor float64) float32 {
	return float32(10 * math.Log10(math.Max(power, floor)))
}
