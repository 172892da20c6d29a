package rtty

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// streamWindowFraction is the trailing share of a streaming window used for the decision
const streamWindowFraction = 0.8

// BandDiscriminator turns one bit-duration segment into a bit by comparing the energy of
// the mark and space bands
type BandDiscriminator struct {
	mark       *Filter
	space      *Filter
	trailing   bool    // Use only the trailing 80% of each segment
	hysteresis float64 // Hold ratio, 0 disables
}

// NewBandDiscriminator designs the mark and space filters for cfg with the given
// half-width. trailing selects the streaming window discipline.
func NewBandDiscriminator(cfg Config, halfWidth float64, trailing bool) (*BandDiscriminator, error) {
	markFreq, spaceFreq := cfg.MarkFreq, cfg.SpaceFreq
	if cfg.Inverted {
		markFreq, spaceFreq = spaceFreq, markFreq
	}

	sr := float64(cfg.SampleRate)
	mark, err := DesignBandpass(cfg.FilterOrder, markFreq-halfWidth, markFreq+halfWidth, sr)
	if err != nil {
		return nil, fmt.Errorf("mark filter: %w", err)
	}
	space, err := DesignBandpass(cfg.FilterOrder, spaceFreq-halfWidth, spaceFreq+halfWidth, sr)
	if err != nil {
		return nil, fmt.Errorf("space filter: %w", err)
	}

	return &BandDiscriminator{
		mark:       mark,
		space:      space,
		trailing:   trailing,
		hysteresis: cfg.Hysteresis,
	}, nil
}

// window returns the part of segment that takes part in the decision
func (d *BandDiscriminator) window(segment []float64) []float64 {
	if !d.trailing {
		return segment
	}
	n := int(float64(len(segment)) * streamWindowFraction)
	return segment[len(segment)-n:]
}

// Energies returns the mark and space band energies of segment
func (d *BandDiscriminator) Energies(segment []float64) (mark, space float64) {
	seg := d.window(segment)
	if len(seg) == 0 {
		return 0, 0
	}
	m := d.mark.FiltFilt(seg)
	s := d.space.FiltFilt(seg)
	return floats.Dot(m, m), floats.Dot(s, s)
}

// Decide converts band energies into a bit; prev is returned when hysteresis is enabled
// and the energies are within the hold ratio of each other
func (d *BandDiscriminator) Decide(mark, space float64, prev byte) byte {
	if d.hysteresis > 0 && math.Abs(mark-space) < d.hysteresis*(mark+space) {
		return prev
	}
	if mark > space {
		return 1
	}
	return 0
}

// Bit demodulates one segment
func (d *BandDiscriminator) Bit(segment []float64, prev byte) byte {
	m, s := d.Energies(segment)
	return d.Decide(m, s, prev)
}
