package features

import (
	"math"
	"sync/atomic"
	"testing"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

type backend = *cpu.Backend

// sine returns n samples of a unit sine completing cycles periods every
// period samples.
func sine(n int, cycles, period float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * cycles * float64(i) / period))
	}
	return out
}

func batchOf(t *testing.T, clips ...[]float32) *tensor.Tensor[float32, backend] {
	t.Helper()
	var data []float32
	for _, c := range clips {
		data = append(data, c...)
	}
	x, err := tensor.FromSlice(data, tensor.Shape{len(clips), 1, len(clips[0])}, cpu.New())
	require.NoError(t, err)
	return x
}

// column returns values [k, t] for all k of sample n in a [N, K, T] tensor.
func column(x *tensor.Tensor[float32, backend], n, t int) []float64 {
	shape := x.Shape()
	k, frames := shape[1], shape[2]
	data := x.Data()[n*k*frames:]
	col := make([]float64, k)
	for i := range col {
		col[i] = float64(data[i*frames+t])
	}
	return col
}

func TestForChunks(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 8, 64} {
		var calls, covered int64
		seen := make([]int32, 50)
		forChunks(len(seen), workers, func(start, end int) {
			atomic.AddInt64(&calls, 1)
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
				atomic.AddInt64(&covered, 1)
			}
		})
		assert.EqualValues(t, 50, covered, "workers=%d", workers)
		assert.LessOrEqual(t, calls, int64(max(workers, 1)), "workers=%d", workers)
		for i, v := range seen {
			assert.EqualValues(t, 1, v, "index %d, workers=%d", i, workers)
		}
	}
}

func TestWaveform(t *testing.T) {
	w, err := NewWaveform[backend](WaveformConfig{NumSamples: 6, Downsample: 2, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 3}, w.OutputShape())
	assert.Empty(t, w.Parameters())

	x := batchOf(t, []float32{1, 2, 3, 4, 5, 6}, []float32{0, 0, 1, 1, -1, -3})
	out := w.Forward(x)
	assert.Equal(t, tensor.Shape{2, 1, 3}, out.Shape())
	assert.Equal(t, []float32{1.5, 3.5, 5.5, 0, 1, -2}, out.Data())
}

func TestWaveform_Defaults(t *testing.T) {
	w, err := NewWaveform[backend](WaveformConfig{})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2205}, w.OutputShape())
}

func TestWaveform_InvalidConfig(t *testing.T) {
	_, err := NewWaveform[backend](WaveformConfig{NumSamples: 4, Downsample: 8})
	assert.Error(t, err)
	_, err = NewWaveform[backend](WaveformConfig{NumSamples: -1})
	assert.Error(t, err)
}

func TestWaveform_RejectsWrongLength(t *testing.T) {
	w, err := NewWaveform[backend](WaveformConfig{NumSamples: 8, Downsample: 2})
	require.NoError(t, err)
	assert.Panics(t, func() { w.Forward(batchOf(t, make([]float32, 6))) })
}

func TestSpectrogram_Shape(t *testing.T) {
	tests := []struct {
		samples, window, hop int
		want                 tensor.Shape
	}{
		{64, 16, 8, tensor.Shape{9, 7}},
		{64, 16, 16, tensor.Shape{9, 4}},
		{16, 16, 4, tensor.Shape{9, 1}},
		{220500, 1024, 512, tensor.Shape{513, 429}},
	}
	for _, tt := range tests {
		s, err := NewSpectrogram[backend](SpectrogramConfig{NumSamples: tt.samples, WindowSize: tt.window, HopLength: tt.hop})
		require.NoError(t, err)
		assert.Equal(t, tt.want, s.OutputShape(), "%+v", tt)
	}
}

func TestSpectrogram_InvalidConfig(t *testing.T) {
	_, err := NewSpectrogram[backend](SpectrogramConfig{NumSamples: 8, WindowSize: 16})
	assert.Error(t, err)
	_, err = NewSpectrogram[backend](SpectrogramConfig{NumSamples: 64, WindowSize: 16, HopLength: -2})
	assert.Error(t, err)
}

func TestSpectrogram_PeakAtToneBin(t *testing.T) {
	s, err := NewSpectrogram[backend](SpectrogramConfig{NumSamples: 128, WindowSize: 32, HopLength: 16, Workers: 2})
	require.NoError(t, err)

	// Tones at exact bins 4 and 10 of a 32-point FFT.
	x := batchOf(t, sine(128, 4, 32), sine(128, 10, 32))
	out := s.Forward(x)
	require.Equal(t, tensor.Shape{2, 17, 7}, out.Shape())

	for frame := 0; frame < 7; frame++ {
		assert.Equal(t, 4, floats.MaxIdx(column(out, 0, frame)), "frame %d", frame)
		assert.Equal(t, 10, floats.MaxIdx(column(out, 1, frame)), "frame %d", frame)
	}
}

func TestSpectrogram_SilenceHitsFloor(t *testing.T) {
	s, err := NewSpectrogram[backend](SpectrogramConfig{NumSamples: 64, WindowSize: 16, Floor: 1e-6})
	require.NoError(t, err)

	out := s.Forward(batchOf(t, make([]float32, 64)))
	for _, v := range out.Data() {
		assert.InDelta(t, -60.0, v, 1e-4)
	}
}

func TestSpectrogram_WorkerCountDoesNotChangeOutput(t *testing.T) {
	clips := [][]float32{sine(96, 3, 32), sine(96, 7, 32), sine(96, 1, 32), sine(96, 12, 32), sine(96, 5, 32)}

	sequential, err := NewSpectrogram[backend](SpectrogramConfig{NumSamples: 96, WindowSize: 32, Workers: 1})
	require.NoError(t, err)
	parallel, err := NewSpectrogram[backend](SpectrogramConfig{NumSamples: 96, WindowSize: 32, Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, sequential.Forward(batchOf(t, clips...)).Data(), parallel.Forward(batchOf(t, clips...)).Data())
}

func TestMelScaleRoundTrip(t *testing.T) {
	for _, hz := range []float64{0, 100, 700, 1000, 8000, 22050} {
		assert.InDelta(t, hz, melToHz(hzToMel(hz)), 1e-6)
	}
	assert.InDelta(t, 1000.0, hzToMel(1000), 0.5, "HTK scale maps 1 kHz to about 1000 mel")
}

func TestMelFilterbank(t *testing.T) {
	filters := melFilterbank(8, 64, 16000, 0, 8000)
	require.Len(t, filters, 8)

	prevPeak := -1
	for j, filter := range filters {
		require.Len(t, filter, 33)
		assert.GreaterOrEqual(t, floats.Min(filter), 0.0, "filter %d", j)
		assert.LessOrEqual(t, floats.Max(filter), 1.0, "filter %d", j)
		assert.Positive(t, floats.Sum(filter), "filter %d covers at least one bin", j)

		peak := floats.MaxIdx(filter)
		assert.GreaterOrEqual(t, peak, prevPeak, "filter centres ascend")
		prevPeak = peak
	}
}

func TestMelSpectrogram(t *testing.T) {
	m, err := NewMelSpectrogram[backend](MelSpectrogramConfig{
		SpectrogramConfig: SpectrogramConfig{NumSamples: 256, WindowSize: 64, HopLength: 32},
		SampleRate:        16000,
		NumMels:           16,
	})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{16, 7}, m.OutputShape())

	// 500 Hz and 5 kHz tones.
	low := sine(256, 500, 16000)
	high := sine(256, 5000, 16000)
	out := m.Forward(batchOf(t, low, high))
	require.Equal(t, tensor.Shape{2, 16, 7}, out.Shape())

	for frame := 0; frame < 7; frame++ {
		lowBand := floats.MaxIdx(column(out, 0, frame))
		highBand := floats.MaxIdx(column(out, 1, frame))
		assert.Less(t, lowBand, highBand, "frame %d", frame)
	}
}

func TestMelSpectrogram_InvalidRange(t *testing.T) {
	base := SpectrogramConfig{NumSamples: 256, WindowSize: 64}
	_, err := NewMelSpectrogram[backend](MelSpectrogramConfig{SpectrogramConfig: base, SampleRate: 16000, FMax: 9000})
	assert.Error(t, err)
	_, err = NewMelSpectrogram[backend](MelSpectrogramConfig{SpectrogramConfig: base, SampleRate: 16000, FMin: 4000, FMax: 2000})
	assert.Error(t, err)
	_, err = NewMelSpectrogram[backend](MelSpectrogramConfig{SpectrogramConfig: base, NumMels: -1})
	assert.Error(t, err)
}

func TestFactories(t *testing.T) {
	b := cpu.New()
	cfg := SpectrogramConfig{NumSamples: 64, WindowSize: 16}

	e, err := SpectrogramFactory[backend](cfg)(b)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{9, 7}, e.OutputShape())

	e, err = MelSpectrogramFactory[backend](MelSpectrogramConfig{SpectrogramConfig: cfg, NumMels: 4})(b)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 7}, e.OutputShape())

	e, err = WaveformFactory[backend](WaveformConfig{NumSamples: 64, Downsample: 4})(b)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 16}, e.OutputShape())

	_, err = SpectrogramFactory[backend](SpectrogramConfig{NumSamples: 4, WindowSize: 16})(b)
	assert.Error(t, err)
}
