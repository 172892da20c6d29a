package rtty

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T, pcm []int16, sampleRate, channels int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signal.wav")
	w, err := NewWAVWriter(path, sampleRate, channels)
	require.NoError(t, err)
	require.NoError(t, w.WriteSamples(pcm))
	require.NoError(t, w.Close())
	return path
}

func TestWAVWriteAndLoad(t *testing.T) {
	pcm := []int16{0, 1000, -1000, 16384, -16384, 32767}
	path := writeWAV(t, pcm, 8000, 1)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 44+2*len(pcm), info.Size())

	s, err := LoadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Channels)
	assert.Equal(t, 8000, s.SampleRate)
	require.Equal(t, len(pcm), s.Frames())
	for i, v := range pcm {
		assert.InDelta(t, float64(v)/32768, s.Data[i], 1e-3)
	}
}

func TestWAVWriterDuration(t *testing.T) {
	w, err := NewWAVWriter(filepath.Join(t.TempDir(), "d.wav"), 1000, 2)
	require.NoError(t, err)
	require.NoError(t, w.WriteSamples(make([]int16, 3000)))
	assert.InDelta(t, 1.5, w.Duration(), 1e-9)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestLoadWAVErrors(t *testing.T) {
	_, err := LoadWAV(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)

	_, err = ReadWAV(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestSamplesFrames(t *testing.T) {
	assert.Equal(t, 0, Samples{}.Frames())
	assert.Equal(t, 2, Samples{Data: make([]float64, 5), Channels: 2}.Frames())
	assert.Equal(t, 3, SamplesFromInt16([]int16{1, 2, 3}, 8000).Frames())
}

func TestLoadWAVPartialLastChunk(t *testing.T) {
	pcm := make([]int16, 2*wavReadChunk+777)
	for i := range pcm {
		pcm[i] = int16(i%2000 - 1000)
	}
	pcm[len(pcm)-1] = -32768

	s, err := LoadWAV(writeWAV(t, pcm, 44100, 1))
	require.NoError(t, err)
	require.Equal(t, len(pcm), s.Frames())
	assert.Equal(t, float64(pcm[0])/32768, s.Data[0])
	assert.Equal(t, float64(pcm[wavReadChunk+5])/32768, s.Data[wavReadChunk+5])
	assert.Equal(t, -1.0, s.Data[len(pcm)-1])
}

func TestLoadWAVShorterThanOneChunk(t *testing.T) {
	pcm := make([]int16, 5000)
	pcm[4999] = 16384

	s, err := LoadWAV(writeWAV(t, pcm, 8000, 1))
	require.NoError(t, err)
	require.Equal(t, 5000, s.Frames())
	assert.Zero(t, s.Data[0], "silence stays centred on zero")
	assert.Equal(t, 0.5, s.Data[4999])
}
