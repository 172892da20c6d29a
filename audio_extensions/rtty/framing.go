package rtty

import "strings"

// frameBits is the minimum frame: start + 5 data + 1 stop
const frameBits = 7

// SyncResult is the outcome of one synchronization pass
type SyncResult struct {
	Text     string // Characters emitted, mode switches excluded
	Consumed int    // Bits consumed from the front of the input
	Mode     Mode   // Mode after the pass

	Frames   int // Frames recognized, switches included
	Resyncs  int // Start bits abandoned for lack of a stop bit
	Unknown  int // Placeholders emitted
	Switches int // Mode-switch codes applied
}

// FrameSynchronizer finds start/stop framed ITA2 characters in a bit stream
type FrameSynchronizer struct {
	codebook *Codebook
}

// NewFrameSynchronizer creates a synchronizer over cb, DefaultCodebook when nil
func NewFrameSynchronizer(cb *Codebook) *FrameSynchronizer {
	if cb == nil {
		cb = DefaultCodebook
	}
	return &FrameSynchronizer{codebook: cb}
}

// Synchronize decodes bits starting in mode. Bits after the last complete frame are left
// unconsumed so a later call can resume with them prepended to new bits.
func (fs *FrameSynchronizer) Synchronize(bits []byte, mode Mode) SyncResult {
	var text strings.Builder
	res := SyncResult{Mode: mode}

	i := 0
	for i < len(bits)-(frameBits-1) {
		if bits[i] != 0 {
			i++
			continue
		}

		code := CodeFromBits(bits[i+1 : i+6])

		j := i + 6
		for j < len(bits) && bits[j] == 1 {
			j++
		}
		if j == i+6 {
			// No stop bit: retry one bit later
			res.Resyncs++
			i++
			continue
		}

		res.Frames++
		if m, ok := fs.codebook.Switch(code); ok {
			res.Mode = m
			res.Switches++
		} else if r, ok := fs.codebook.Lookup(res.Mode, code); ok {
			text.WriteRune(r)
		} else {
			text.WriteRune(Placeholder)
			res.Unknown++
		}

		i = j
	}

	res.Text = text.String()
	res.Consumed = i
	return res
}

// FormatStreamText replaces carriage returns with newlines and collapses newline runs
func FormatStreamText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r", "\n")
	for strings.Contains(s, "\n\n") {
		s = strings.ReplaceAll(s, "\n\n", "\n")
	}
	return s
}
