package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cwsl/ka9q_rtty/audio_extensions/rtty"
)

// WAVFileSource plays a WAV file into the decoder in fixed-size chunks
type WAVFileSource struct {
	path       string
	samples    []int16
	pos        int
	chunkSize  int
	sampleRate int
	realtime   bool
	next       time.Time
}

// NewWAVFileSource loads the first channel of cfg.Path
func NewWAVFileSource(cfg WAVConfig, logger *log.Logger) (*WAVFileSource, error) {
	s, err := rtty.LoadWAV(cfg.Path)
	if err != nil {
		return nil, err
	}
	if s.Frames() == 0 {
		return nil, fmt.Errorf("%s: %w", cfg.Path, rtty.ErrEmptySignal)
	}

	src := newWAVFileSource(s, cfg)
	logger.Infof("Playing %s: %d samples at %d Hz (%d channels, realtime: %v)",
		cfg.Path, len(src.samples), s.SampleRate, s.Channels, cfg.Realtime)
	return src, nil
}

func newWAVFileSource(s rtty.Samples, cfg WAVConfig) *WAVFileSource {
	pcm := make([]int16, s.Frames())
	for i := range pcm {
		pcm[i] = floatToPCM(s.Data[i*s.Channels])
	}

	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = 4096
	}
	return &WAVFileSource{
		path:       cfg.Path,
		samples:    pcm,
		chunkSize:  chunk,
		sampleRate: s.SampleRate,
		realtime:   cfg.Realtime,
	}
}

// floatToPCM scales a [-1, 1] sample to int16
func floatToPCM(v float64) int16 {
	v = math.Max(-1, math.Min(1, v))
	return int16(math.Round(v * 32767))
}

// ReadChunk returns the next chunk, or io.EOF once the file is exhausted
func (s *WAVFileSource) ReadChunk(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.samples) {
		return nil, io.EOF
	}

	if s.realtime {
		if s.next.IsZero() {
			s.next = time.Now()
		}
		if wait := time.Until(s.next); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	end := s.pos + s.chunkSize
	if end > len(s.samples) {
		end = len(s.samples)
	}
	chunk := s.samples[s.pos:end]
	s.pos = end

	if s.realtime {
		s.next = s.next.Add(time.Duration(len(chunk)) * time.Second / time.Duration(s.sampleRate))
	}
	return chunk, nil
}

// SampleRate returns the file's sample rate
func (s *WAVFileSource) SampleRate() int {
	return s.sampleRate
}

// Name describes the source
func (s *WAVFileSource) Name() string {
	return "wav:" + s.path
}

// Live reports false: file playback waits for the decoder
func (s *WAVFileSource) Live() bool {
	return false
}

// Close is a no-op; the file is read completely at open
func (s *WAVFileSource) Close() error {
	return nil
}
