package rtty

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is returned (wrapped) by Config.Validate
var ErrInvalidConfig = errors.New("invalid rtty config")

// Config contains the demodulator and framing parameters of one decoder instance
type Config struct {
	BaudRate        float64 `yaml:"baud" json:"baud"`                           // Baud (45.45 for amateur RTTY)
	MarkFreq        float64 `yaml:"mark_freq" json:"mark_freq"`                 // Hz, tone for bit 1
	SpaceFreq       float64 `yaml:"space_freq" json:"space_freq"`               // Hz, tone for bit 0
	SampleRate      int     `yaml:"sample_rate" json:"sample_rate"`             // Hz
	FilterOrder     int     `yaml:"order" json:"order"`                         // Butterworth prototype order
	HalfWidth       float64 `yaml:"half_width" json:"half_width"`               // Hz, band half-width for batch decoding
	StreamHalfWidth float64 `yaml:"stream_half_width" json:"stream_half_width"` // Hz, band half-width for streaming sessions
	Hysteresis      float64 `yaml:"hysteresis" json:"hysteresis"`               // Hold ratio, 0 disables
	Inverted        bool    `yaml:"inverted" json:"inverted"`                   // Swap mark and space
}

// DefaultConfig returns the amateur 45.45 baud, 170 Hz shift configuration
func DefaultConfig() Config {
	return Config{
		BaudRate:        45.45,
		MarkFreq:        1170,
		SpaceFreq:       1000,
		SampleRate:      44100,
		FilterOrder:     5,
		HalfWidth:       50,
		StreamHalfWidth: 60,
		Hysteresis:      0,
		Inverted:        false,
	}
}

// ApplyDefaults fills zero-valued fields from DefaultConfig
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.BaudRate == 0 {
		c.BaudRate = def.BaudRate
	}
	if c.MarkFreq == 0 {
		c.MarkFreq = def.MarkFreq
	}
	if c.SpaceFreq == 0 {
		c.SpaceFreq = def.SpaceFreq
	}
	if c.SampleRate == 0 {
		c.SampleRate = def.SampleRate
	}
	if c.FilterOrder == 0 {
		c.FilterOrder = def.FilterOrder
	}
	if c.HalfWidth == 0 {
		c.HalfWidth = def.HalfWidth
	}
	if c.StreamHalfWidth == 0 {
		c.StreamHalfWidth = def.StreamHalfWidth
	}
}

// BitDuration returns the length of one bit in seconds
func (c Config) BitDuration() float64 {
	return 1.0 / c.BaudRate
}

// SamplesPerBit returns round(sample_rate * bit_duration)
func (c Config) SamplesPerBit() int {
	return int(math.Round(float64(c.SampleRate) * c.BitDuration()))
}

// Validate checks the configuration for values the filters and framing cannot work with
func (c Config) Validate() error {
	if c.BaudRate <= 0 || math.IsNaN(c.BaudRate) || math.IsInf(c.BaudRate, 0) {
		return fmt.Errorf("%w: baud rate %.2f must be positive", ErrInvalidConfig, c.BaudRate)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d must be positive", ErrInvalidConfig, c.SampleRate)
	}
	if c.FilterOrder < 1 || c.FilterOrder > 10 {
		return fmt.Errorf("%w: filter order %d (must be 1-10)", ErrInvalidConfig, c.FilterOrder)
	}
	if c.MarkFreq == c.SpaceFreq {
		return fmt.Errorf("%w: mark and space frequency are both %.1f Hz", ErrInvalidConfig, c.MarkFreq)
	}
	if c.Hysteresis < 0 || c.Hysteresis >= 1 {
		return fmt.Errorf("%w: hysteresis %.3f (must be in [0, 1))", ErrInvalidConfig, c.Hysteresis)
	}

	nyquist := float64(c.SampleRate) / 2
	for _, hw := range []float64{c.HalfWidth, c.StreamHalfWidth} {
		if hw <= 0 {
			return fmt.Errorf("%w: band half-width %.1f Hz must be positive", ErrInvalidConfig, hw)
		}
		for _, f := range []float64{c.MarkFreq, c.SpaceFreq} {
			if f-hw <= 0 || f+hw >= nyquist {
				return fmt.Errorf("%w: band %.1f±%.1f Hz outside (0, %.1f) Hz", ErrInvalidConfig, f, hw, nyquist)
			}
		}
	}

	if c.SamplesPerBit() <= 0 {
		return fmt.Errorf("%w: samples per bit is zero (rate %d, baud %.2f)", ErrInvalidConfig, c.SampleRate, c.BaudRate)
	}

	return nil
}
