package rtty

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// DefaultPollInterval is the drain cadence of Session.Run
const DefaultPollInterval = 100 * time.Millisecond

// SampleSource delivers mono int16 chunks to a streaming session. ReadChunk returns io.EOF
// once the source is exhausted.
type SampleSource interface {
	ReadChunk(ctx context.Context) ([]int16, error)
}

// SessionStats is a snapshot of a session's counters
type SessionStats struct {
	SamplesIn      uint64  `json:"samples_in"`
	Bits           uint64  `json:"bits"`
	Frames         uint64  `json:"frames"`
	Resyncs        uint64  `json:"resyncs"`
	Unknown        uint64  `json:"unknown"`
	Switches       uint64  `json:"switches"`
	Chars          uint64  `json:"chars"`
	MarkEnergy     float64 `json:"mark_energy"`  // Last window
	SpaceEnergy    float64 `json:"space_energy"` // Last window
	Mode           string  `json:"mode"`
	PendingSamples int     `json:"pending_samples"`
	PendingBits    int     `json:"pending_bits"`
}

// Session decodes a continuous stream pushed in arbitrarily sized chunks
type Session struct {
	ID string

	config       Config
	disc         *BandDiscriminator
	sync         *FrameSynchronizer
	logger       *log.Logger
	spb          int
	pollInterval time.Duration

	// Streaming state, guarded by mu as one unit
	mu      sync.Mutex
	samples []float64
	bits    []byte
	mode    Mode
	lastBit byte
	stats   SessionStats

	ready chan struct{}
}

// NewSession validates cfg and designs the streaming filters
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	disc, err := NewBandDiscriminator(cfg, cfg.StreamHalfWidth, true)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	s := &Session{
		ID:           id,
		config:       cfg,
		disc:         disc,
		sync:         NewFrameSynchronizer(o.codebook),
		logger:       o.logger.With("session", id[:8]),
		spb:          cfg.SamplesPerBit(),
		pollInterval: o.pollInterval,
		mode:         ModeLAT,
		ready:        make(chan struct{}, 1),
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}

	s.logger.Debugf("Session created: %d samples/bit", s.spb)
	return s, nil
}

// Config returns the session configuration
func (s *Session) Config() Config {
	return s.config
}

// PushSamples appends a PCM chunk and demodulates every complete bit window it completes.
// Fewer than one bit's worth of samples stays pending afterwards, so no sample is ever dropped.
func (s *Session) PushSamples(chunk []int16) {
	if len(chunk) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, Int16ToFloat(chunk)...)
	s.stats.SamplesIn += uint64(len(chunk))

	off := 0
	for len(s.samples)-off >= s.spb {
		m, sp := s.disc.Energies(s.samples[off : off+s.spb])
		s.lastBit = s.disc.Decide(m, sp, s.lastBit)
		s.bits = append(s.bits, s.lastBit)
		s.stats.Bits++
		s.stats.MarkEnergy, s.stats.SpaceEnergy = m, sp
		off += s.spb
	}
	if off > 0 {
		n := copy(s.samples, s.samples[off:])
		s.samples = s.samples[:n]
	}

	if len(s.bits) >= frameBits {
		select {
		case s.ready <- struct{}{}:
		default:
		}
	}
}

// PollText synchronizes the pending bits and returns newly decoded, formatted text
func (s *Session) PollText() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.bits) < frameBits {
		return ""
	}

	res := s.sync.Synchronize(s.bits, s.mode)
	n := copy(s.bits, s.bits[res.Consumed:])
	s.bits = s.bits[:n]

	if res.Mode != s.mode {
		s.logger.Debugf("Mode %s -> %s", s.mode, res.Mode)
	}
	s.mode = res.Mode

	s.stats.Frames += uint64(res.Frames)
	s.stats.Resyncs += uint64(res.Resyncs)
	s.stats.Unknown += uint64(res.Unknown)
	s.stats.Switches += uint64(res.Switches)
	s.stats.Chars += uint64(len([]rune(res.Text)))

	return FormatStreamText(res.Text)
}

// Ready is signalled when a push leaves at least one frame's worth of bits pending
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Mode returns the current decode mode
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Backlog returns the pending sample and bit counts
func (s *Session) Backlog() (samples, bits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples), len(s.bits)
}

// Stats returns a snapshot of the session counters
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.Mode = s.mode.String()
	st.PendingSamples = len(s.samples)
	st.PendingBits = len(s.bits)
	return st
}

// Reset discards both backlogs and returns to LAT
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = s.samples[:0]
	s.bits = s.bits[:0]
	s.mode = ModeLAT
	s.lastBit = 0
}

// Run feeds chunks from src into the session and emits decoded text on every poll tick or
// ready signal. Cancelling ctx or exhausting src ends the run after one final drain. Any
// other source error discards the backlog and is returned.
func (s *Session) Run(ctx context.Context, src SampleSource, emit func(string)) error {
	if emit == nil {
		emit = func(string) {}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			chunk, err := src.ReadChunk(runCtx)
			if len(chunk) > 0 {
				s.PushSamples(chunk)
			}
			if err != nil {
				errc <- err
				return
			}
		}
	}()

	drain := func() {
		if text := s.PollText(); text != "" {
			emit(text)
		}
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cancel()
			wg.Wait()
			drain()
			s.logger.Debugf("Session stopped: %v", ctx.Err())
			return nil

		case err := <-errc:
			wg.Wait()
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				drain()
				s.logger.Debugf("Session finished: %v", err)
				return nil
			}
			s.Reset()
			s.logger.Errorf("Sample source failed: %v", err)
			return fmt.Errorf("sample source: %w", err)

		case <-ticker.C:
			drain()

		case <-s.ready:
			drain()
		}
	}
}
