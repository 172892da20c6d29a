package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/cwsl/ka9q_rtty/audio_extensions/rtty"
)

// AudioSource is a sample source the daemon can feed an audio extension from
type AudioSource interface {
	rtty.SampleSource

	// SampleRate returns the stream rate in Hz
	SampleRate() int
	// Name describes the source for logs and the status API
	Name() string
	// Live reports whether chunks should be dropped rather than block when the decoder lags
	Live() bool
	Close() error
}

// newAudioSource opens the source selected in cfg
func newAudioSource(cfg AudioConfig, metrics *PrometheusMetrics, logger *log.Logger) (AudioSource, error) {
	switch cfg.Source {
	case "rtp":
		return NewRTPSource(cfg.RTP, cfg.SampleRate, metrics, logger)
	case "portaudio":
		return NewPortAudioSource(cfg.PortAudio, cfg.SampleRate, logger)
	case "wav":
		return NewWAVFileSource(cfg.WAV, logger)
	}
	return nil, fmt.Errorf("unknown audio source %q", cfg.Source)
}

// pumpAudio copies chunks from src to audioChan until ctx is cancelled or src ends, then
// closes audioChan. Live sources never block on a full channel.
func pumpAudio(ctx context.Context, src AudioSource, audioChan chan<- []int16, metrics *PrometheusMetrics, logger *log.Logger) error {
	defer close(audioChan)

	live := src.Live()
	for {
		chunk, err := src.ReadChunk(ctx)
		if len(chunk) > 0 {
			if live {
				select {
				case audioChan <- chunk:
				default:
					// Channel full, skip this chunk
					metrics.RecordDroppedChunk(len(chunk))
				}
			} else {
				select {
				case audioChan <- chunk:
				case <-ctx.Done():
					return nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Infof("Audio source %s finished", src.Name())
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("audio source %s: %w", src.Name(), err)
		}
	}
}
