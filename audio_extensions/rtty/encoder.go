package rtty

import (
	"fmt"
	"math"
)

// Encoder frames text into start/data/stop bit sequences
type Encoder struct {
	codebook *Codebook
	stopBits int
}

// NewEncoder creates an encoder emitting stopBits stop bits per frame (minimum 1)
func NewEncoder(cb *Codebook, stopBits int) *Encoder {
	if cb == nil {
		cb = DefaultCodebook
	}
	if stopBits < 1 {
		stopBits = 1
	}
	return &Encoder{codebook: cb, stopBits: stopBits}
}

// Frame returns start(0) + the 5 data bits of code + the stop bits
func (e *Encoder) Frame(code Code) []byte {
	out := make([]byte, 0, 6+e.stopBits)
	out = append(out, 0)
	b := code.Bits()
	out = append(out, b[:]...)
	for i := 0; i < e.stopBits; i++ {
		out = append(out, 1)
	}
	return out
}

// EncodeText frames text starting in mode, inserting mode-switch frames where a character
// is not in the active mode. It returns the bits and the final mode.
func (e *Encoder) EncodeText(text string, mode Mode) ([]byte, Mode, error) {
	var bits []byte
	for _, r := range text {
		code, ok := e.codebook.Encode(mode, r)
		if !ok {
			modes := e.codebook.ModesFor(r)
			if len(modes) == 0 {
				return nil, mode, fmt.Errorf("character %q has no ITA2 code", r)
			}
			mode = modes[0]
			bits = append(bits, e.Frame(e.codebook.ShiftCode(mode))...)
			code, _ = e.codebook.Encode(mode, r)
		}
		bits = append(bits, e.Frame(code)...)
	}
	return bits, mode, nil
}

// Idle returns n mark bits
func Idle(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

// Modulator renders bits as continuous-phase FSK audio
type Modulator struct {
	markFreq   float64
	spaceFreq  float64
	sampleRate float64
	spb        int
	amplitude  float64
	phase      float64
}

// NewModulator creates a modulator for cfg; amplitude is relative to full scale
func NewModulator(cfg Config, amplitude float64) *Modulator {
	mark, space := cfg.MarkFreq, cfg.SpaceFreq
	if cfg.Inverted {
		mark, space = space, mark
	}
	return &Modulator{
		markFreq:   mark,
		spaceFreq:  space,
		sampleRate: float64(cfg.SampleRate),
		spb:        cfg.SamplesPerBit(),
		amplitude:  math.Max(0, math.Min(1, amplitude)),
	}
}

// Modulate returns samples-per-bit PCM samples for every bit; phase carries over between
// calls
func (m *Modulator) Modulate(bits []byte) []int16 {
	out := make([]int16, 0, len(bits)*m.spb)
	for _, b := range bits {
		freq := m.spaceFreq
		if b != 0 {
			freq = m.markFreq
		}
		step := 2 * math.Pi * freq / m.sampleRate
		for i := 0; i < m.spb; i++ {
			out = append(out, floatToInt16(m.amplitude*math.Sin(m.phase)))
			m.phase += step
			if m.phase > 2*math.Pi {
				m.phase -= 2 * math.Pi
			}
		}
	}
	return out
}

// floatToInt16 clamps and scales a [-1, 1] sample
func floatToInt16(f float64) int16 {
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	return int16(math.Round(f * 32767))
}
