package rtty

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
)

type inputKind uint8

const (
	inputFile inputKind = iota + 1
	inputMemory
)

// Input is a complete signal for batch decoding, built with FileBacked or InMemorySamples
type Input struct {
	kind    inputKind
	path    string
	samples Samples
}

// FileBacked names a WAV file to decode
func FileBacked(path string) Input {
	return Input{kind: inputFile, path: path}
}

// InMemorySamples wraps an already acquired sample block
func InMemorySamples(s Samples) Input {
	return Input{kind: inputMemory, samples: s}
}

// String describes the input for logs
func (in Input) String() string {
	switch in.kind {
	case inputFile:
		return "file:" + in.path
	case inputMemory:
		return fmt.Sprintf("memory:%d frames@%d Hz", in.samples.Frames(), in.samples.SampleRate)
	default:
		return "invalid input"
	}
}

// acquire resolves the input into samples
func (in Input) acquire() (Samples, error) {
	switch in.kind {
	case inputFile:
		return LoadWAV(in.path)
	case inputMemory:
		return in.samples, nil
	default:
		return Samples{}, fmt.Errorf("input was not built with FileBacked or InMemorySamples")
	}
}

// BatchResult is the outcome of decoding one complete signal
type BatchResult struct {
	Text  string
	Bits  []byte
	Sync  SyncResult
	Input string
}

// BatchDecoder decodes complete, finite signals
type BatchDecoder struct {
	config Config
	disc   *BandDiscriminator
	sync   *FrameSynchronizer
	logger *log.Logger
}

// NewBatchDecoder validates cfg and designs the batch filters
func NewBatchDecoder(cfg Config, opts ...Option) (*BatchDecoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	disc, err := NewBandDiscriminator(cfg, cfg.HalfWidth, false)
	if err != nil {
		return nil, err
	}

	return &BatchDecoder{
		config: cfg,
		disc:   disc,
		sync:   NewFrameSynchronizer(o.codebook),
		logger: o.logger,
	}, nil
}

// Config returns the decoder configuration
func (d *BatchDecoder) Config() Config {
	return d.config
}

// Decode acquires, normalizes, demodulates and synchronizes the whole input from LAT
func (d *BatchDecoder) Decode(ctx context.Context, in Input) (*BatchResult, error) {
	s, err := in.acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s: %w", in, err)
	}

	if s.SampleRate != d.config.SampleRate {
		d.logger.Warnf("Sample rate mismatch: source %d Hz, configured %d Hz; decoding may degrade",
			s.SampleRate, d.config.SampleRate)
	}

	signal, err := Normalize(s.Data, s.Channels)
	if err != nil {
		return nil, err
	}

	bits, err := d.demodulate(ctx, signal)
	if err != nil {
		return nil, err
	}

	res := d.sync.Synchronize(bits, ModeLAT)
	d.logger.Debugf("Decoded %s: %d bits, %d frames, %d resyncs, %d unknown",
		in, len(bits), res.Frames, res.Resyncs, res.Unknown)

	return &BatchResult{
		Text:  res.Text,
		Bits:  bits,
		Sync:  res,
		Input: in.String(),
	}, nil
}

// Demodulate converts a normalized signal into bits, one per samples-per-bit window
func (d *BatchDecoder) Demodulate(signal []float64) []byte {
	bits, _ := d.demodulate(context.Background(), signal)
	return bits
}

func (d *BatchDecoder) demodulate(ctx context.Context, signal []float64) ([]byte, error) {
	spb := d.config.SamplesPerBit()
	bits := make([]byte, 0, len(signal)/spb+1)

	var prev byte
	for i := 0; i < len(signal); i += spb {
		if i%(spb*256) == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		end := i + spb
		if end > len(signal) {
			end = len(signal)
		}
		segment := signal[i:end]
		if len(segment) < spb/2 {
			continue
		}

		prev = d.disc.Bit(segment, prev)
		bits = append(bits, prev)
	}

	return bits, nil
}
