package rtty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTonesFindsPair(t *testing.T) {
	mark := tone(2295, 44100, 44100, 0)
	space := tone(2125, 44100, 44100, 0.4)
	signal := make([]float64, len(mark))
	for i := range signal {
		signal[i] = mark[i] + 0.7*space[i]
	}

	est, err := EstimateTones(signal, 44100, TuneOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 2295, est.Mark, 2)
	assert.InDelta(t, 2125, est.Space, 2)
	assert.InDelta(t, 170, est.Shift, 3)
}

func TestEstimateTonesErrors(t *testing.T) {
	_, err := EstimateTones(make([]float64, 10), 44100, TuneOptions{})
	assert.ErrorIs(t, err, ErrEmptySignal)

	_, err = EstimateTones(make([]float64, 16384), 44100, TuneOptions{})
	assert.ErrorIs(t, err, ErrNoTones)
}

func TestEstimateTonesLeavesSignalUntouched(t *testing.T) {
	mark := tone(1170, 3*4096, 44100, 0)
	space := tone(1000, 3*4096, 44100, 0.2)
	signal := make([]float64, len(mark))
	for i := range signal {
		signal[i] = mark[i] + 0.5*space[i]
	}
	orig := append([]float64(nil), signal...)

	est, err := EstimateTones(signal, 44100, TuneOptions{FFTSize: 4096})
	require.NoError(t, err)
	assert.InDelta(t, 1170, est.Mark, 6)
	assert.InDelta(t, 1000, est.Space, 6)
	assert.Equal(t, orig, signal)
}
