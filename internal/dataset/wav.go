package dataset

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ExpectedSampleRate is the sample rate of every ESC recording.
const ExpectedSampleRate = 44100

// DefaultNumSamples is the length of a 5 second ESC clip at 44.1 kHz.
const DefaultNumSamples = 5 * ExpectedSampleRate

// ReadWAV decodes a PCM WAV file into a mono signal normalized to [-1, 1].
//
// The file must be recorded at sampleRate; no resampling is performed and a
// mismatch fails with a *DataIntegrityError. Channels are averaged. The
// result is zero-padded or truncated to numSamples values.
func ReadWAV(path string, sampleRate, numSamples int) ([]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		return nil, fmt.Errorf("failed to read WAV header %s: %w", path, err)
	}
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}
	if int(decoder.SampleRate) != sampleRate {
		return nil, &DataIntegrityError{
			Path:     path,
			Property: "sample_rate",
			Want:     sampleRate,
			Got:      int(decoder.SampleRate),
			Err:      ErrSampleRate,
		}
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		channels = 1
	}
	scale := float32(int64(1) << (decoder.BitDepth - 1))
	if decoder.BitDepth == 8 {
		// 8-bit PCM is unsigned, centred on 128.
		scale = 128
	}

	signal := make([]float32, numSamples)
	frames := len(buf.Data) / channels
	for i := 0; i < frames && i < numSamples; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			v := float32(buf.Data[i*channels+c])
			if decoder.BitDepth == 8 {
				v -= 128
			}
			sum += v
		}
		signal[i] = sum / float32(channels) / scale
	}

	return signal, nil
}
