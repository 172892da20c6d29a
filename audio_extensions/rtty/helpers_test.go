package rtty

import (
	"io"
	"math"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// frames concatenates framed codes with two stop bits each
func frames(codes ...Code) []byte {
	enc := NewEncoder(nil, 2)
	var out []byte
	for _, c := range codes {
		out = append(out, enc.Frame(c)...)
	}
	return out
}

// textBits encodes text from LAT with idle mark bits around it
func textBits(t testing.TB, text string) []byte {
	t.Helper()
	bits, _, err := NewEncoder(nil, 2).EncodeText(text, ModeLAT)
	require.NoError(t, err)
	out := append(Idle(4), bits...)
	return append(out, Idle(3)...)
}

// modulate renders bits with the default configuration
func modulate(cfg Config, bits []byte) []int16 {
	return NewModulator(cfg, 0.8).Modulate(bits)
}

// tone returns n samples of a unit sine at freq
func tone(freq float64, n, sampleRate int, phase float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(phase + 2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// splitChunks cuts pcm at the given offsets
func splitChunks(pcm []int16, sizes []int) [][]int16 {
	var out [][]int16
	for _, n := range sizes {
		if len(pcm) == 0 {
			break
		}
		if n > len(pcm) {
			n = len(pcm)
		}
		out = append(out, pcm[:n])
		pcm = pcm[n:]
	}
	if len(pcm) > 0 {
		out = append(out, pcm)
	}
	return out
}
