package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
)

// PortAudioSource captures mono 16-bit audio from a sound card
type PortAudioSource struct {
	stream     *portaudio.Stream
	buffer     []int16
	sampleRate int
	device     string
	logger     *log.Logger
}

// NewPortAudioSource opens the named input device, or the default input when the name is
// empty, and starts capturing
func NewPortAudioSource(cfg PortAudioConfig, sampleRate int, logger *log.Logger) (*PortAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	buffer := make([]int16, cfg.FramesPerBuffer)
	stream, name, err := openInputStream(cfg, sampleRate, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	logger.Infof("Capturing from %s at %d Hz (buffer: %d frames)", name, sampleRate, cfg.FramesPerBuffer)

	return &PortAudioSource{
		stream:     stream,
		buffer:     buffer,
		sampleRate: sampleRate,
		device:     name,
		logger:     logger,
	}, nil
}

func openInputStream(cfg PortAudioConfig, sampleRate int, buffer []int16) (*portaudio.Stream, string, error) {
	if cfg.Device == "" {
		stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buffer), buffer)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open default input stream: %w", err)
		}
		return stream, "default input", nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get device list: %w", err)
	}

	for _, device := range devices {
		if device.Name != cfg.Device || device.MaxInputChannels < 1 {
			continue
		}
		params := portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   device,
				Channels: 1,
				Latency:  device.DefaultHighInputLatency,
			},
			SampleRate:      float64(sampleRate),
			FramesPerBuffer: len(buffer),
		}
		stream, err := portaudio.OpenStream(params, buffer)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open input stream on %s: %w", device.Name, err)
		}
		return stream, device.Name, nil
	}

	return nil, "", fmt.Errorf("input device %q not found", cfg.Device)
}

// ReadChunk blocks for one buffer of samples
func (s *PortAudioSource) ReadChunk(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.stream.Read(); err != nil {
		if err == portaudio.InputOverflowed {
			s.logger.Debugf("Input overflowed on %s", s.device)
		} else {
			return nil, fmt.Errorf("failed to read audio: %w", err)
		}
	}
	chunk := make([]int16, len(s.buffer))
	copy(chunk, s.buffer)
	return chunk, nil
}

// SampleRate returns the capture rate
func (s *PortAudioSource) SampleRate() int {
	return s.sampleRate
}

// Name describes the source
func (s *PortAudioSource) Name() string {
	return "portaudio:" + s.device
}

// Live reports that chunks may be dropped when the decoder falls behind
func (s *PortAudioSource) Live() bool {
	return true
}

// Close stops capture and releases PortAudio
func (s *PortAudioSource) Close() error {
	s.stream.Stop()
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}
