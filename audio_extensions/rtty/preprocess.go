package rtty

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrEmptySignal is returned for a zero-length sample block
	ErrEmptySignal = errors.New("empty signal")
	// ErrSilentSignal is returned when every sample of a block is zero
	ErrSilentSignal = errors.New("silent signal")
)

// Normalize selects the first channel of an interleaved block and scales it to a peak of 1
func Normalize(data []float64, channels int) ([]float64, error) {
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	if len(data) == 0 {
		return nil, ErrEmptySignal
	}

	frames := len(data) / channels
	if frames == 0 {
		return nil, ErrEmptySignal
	}

	signal := make([]float64, frames)
	for i := range signal {
		signal[i] = data[i*channels]
	}

	peak := floats.Norm(signal, math.Inf(1))
	if peak == 0 {
		return nil, ErrSilentSignal
	}

	floats.Scale(1/peak, signal)
	return signal, nil
}

// Int16ToFloat converts PCM samples to floats in [-1, 1)
func Int16ToFloat(chunk []int16) []float64 {
	out := make([]float64, len(chunk))
	for i, s := range chunk {
		out[i] = float64(s) / 32768.0
	}
	return out
}
