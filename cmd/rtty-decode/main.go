// rtty-decode decodes RTTY recordings from WAV files
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/cwsl/ka9q_rtty/audio_extensions/rtty"
)

type options struct {
	cfg       rtty.Config
	autoTune  bool
	stream    bool
	chunkSize int
	jsonOut   bool
}

type fileResult struct {
	File      string             `json:"file"`
	Text      string             `json:"text"`
	Bits      int                `json:"bits"`
	Frames    int                `json:"frames"`
	Resyncs   int                `json:"resyncs"`
	Unknown   int                `json:"unknown"`
	FinalMode string             `json:"final_mode"`
	Tones     *rtty.ToneEstimate `json:"tones,omitempty"`
}

func main() {
	def := rtty.DefaultConfig()
	var opts options
	opts.cfg = def

	pflag.Float64Var(&opts.cfg.BaudRate, "baud", def.BaudRate, "Baud rate")
	pflag.Float64VarP(&opts.cfg.MarkFreq, "mark", "m", def.MarkFreq, "Mark tone in Hz")
	pflag.Float64VarP(&opts.cfg.SpaceFreq, "space", "s", def.SpaceFreq, "Space tone in Hz")
	pflag.IntVar(&opts.cfg.FilterOrder, "order", def.FilterOrder, "Butterworth filter order")
	pflag.Float64Var(&opts.cfg.HalfWidth, "half-width", def.HalfWidth, "Band half-width in Hz for batch decoding")
	pflag.Float64Var(&opts.cfg.StreamHalfWidth, "stream-half-width", def.StreamHalfWidth, "Band half-width in Hz for stream decoding")
	pflag.Float64Var(&opts.cfg.Hysteresis, "hysteresis", def.Hysteresis, "Bit decision hold ratio (0 disables)")
	pflag.BoolVarP(&opts.cfg.Inverted, "inverted", "i", false, "Swap mark and space")
	pflag.BoolVarP(&opts.autoTune, "auto-tune", "a", false, "Estimate mark and space from each file")
	pflag.BoolVar(&opts.stream, "stream", false, "Replay each file through a streaming session")
	pflag.IntVar(&opts.chunkSize, "chunk", 4096, "Samples per chunk in stream mode")
	pflag.BoolVar(&opts.jsonOut, "json", false, "Print one JSON result per file")
	debug := pflag.BoolP("debug", "d", false, "Enable debug logging")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] file.wav...\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "rtty-decode"})
	if *debug {
		logger.SetLevel(log.DebugLevel)
	}

	if pflag.NArg() == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	failed := false
	for _, path := range pflag.Args() {
		res, err := decodeFile(ctx, path, opts, logger)
		if err != nil {
			logger.Errorf("%s: %v", path, err)
			failed = true
			continue
		}
		if opts.jsonOut {
			data, _ := json.Marshal(res)
			fmt.Println(string(data))
			continue
		}
		if pflag.NArg() > 1 {
			fmt.Printf("==> %s <==\n", path)
		}
		fmt.Println(res.Text)
	}
	if failed {
		os.Exit(1)
	}
}

func decodeFile(ctx context.Context, path string, opts options, logger *log.Logger) (*fileResult, error) {
	s, err := rtty.LoadWAV(path)
	if err != nil {
		return nil, err
	}

	cfg := opts.cfg
	cfg.SampleRate = s.SampleRate
	res := &fileResult{File: path}

	if opts.autoTune {
		mono, err := rtty.Normalize(s.Data, s.Channels)
		if err != nil {
			return nil, err
		}
		est, err := rtty.EstimateTones(mono, s.SampleRate, rtty.TuneOptions{})
		if err != nil {
			return nil, fmt.Errorf("auto-tune: %w", err)
		}
		logger.Infof("%s: mark %.1f Hz, space %.1f Hz (shift %.1f Hz)", path, est.Mark, est.Space, est.Shift)
		cfg.MarkFreq, cfg.SpaceFreq = est.Mark, est.Space
		res.Tones = &est
	}

	opt := rtty.WithLogger(logger.WithPrefix("rtty"))
	if opts.stream {
		return streamFile(ctx, s, cfg, opts.chunkSize, res, opt)
	}

	dec, err := rtty.NewBatchDecoder(cfg, opt)
	if err != nil {
		return nil, err
	}
	out, err := dec.Decode(ctx, rtty.InMemorySamples(s))
	if err != nil {
		return nil, err
	}

	res.Text = out.Text
	res.Bits = len(out.Bits)
	res.Frames = out.Sync.Frames
	res.Resyncs = out.Sync.Resyncs
	res.Unknown = out.Sync.Unknown
	res.FinalMode = out.Sync.Mode.String()
	return res, nil
}

// streamFile feeds the first channel through a session in fixed chunks, polling after each
func streamFile(ctx context.Context, s rtty.Samples, cfg rtty.Config, chunkSize int, res *fileResult, opts ...rtty.Option) (*fileResult, error) {
	session, err := rtty.NewSession(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if chunkSize <= 0 {
		chunkSize = 4096
	}

	pcm := make([]int16, s.Frames())
	for i := range pcm {
		v := math.Max(-1, math.Min(1, s.Data[i*s.Channels]))
		pcm[i] = int16(math.Round(v * 32767))
	}

	var text []byte
	for len(pcm) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := min(chunkSize, len(pcm))
		session.PushSamples(pcm[:n])
		pcm = pcm[n:]
		text = append(text, session.PollText()...)
	}
	text = append(text, session.PollText()...)

	st := session.Stats()
	res.Text = string(text)
	res.Bits = int(st.Bits)
	res.Frames = int(st.Frames)
	res.Resyncs = int(st.Resyncs)
	res.Unknown = int(st.Unknown)
	res.FinalMode = st.Mode
	return res, nil
}
