// rtty-gen writes an RTTY test signal to a WAV file
package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/cwsl/ka9q_rtty/audio_extensions/rtty"
)

// signalParams describes the rendered signal
type signalParams struct {
	text      string
	startMode rtty.Mode
	stopBits  int
	amplitude float64
	noise     float64 // Gaussian noise standard deviation relative to full scale
	seed      uint64
	leadBits  int // Idle mark bits before and after the text
}

func main() {
	def := rtty.DefaultConfig()
	cfg := def
	var p signalParams
	var mode string

	out := pflag.StringP("out", "o", "rtty.wav", "Output WAV file")
	pflag.StringVarP(&p.text, "text", "t", "RYRYRY CQ CQ DE TEST K", "Text to send")
	pflag.StringVar(&mode, "mode", "LAT", "Initial receiver mode (LAT, RUS or FIGS)")
	pflag.Float64Var(&cfg.BaudRate, "baud", def.BaudRate, "Baud rate")
	pflag.Float64VarP(&cfg.MarkFreq, "mark", "m", def.MarkFreq, "Mark tone in Hz")
	pflag.Float64VarP(&cfg.SpaceFreq, "space", "s", def.SpaceFreq, "Space tone in Hz")
	pflag.IntVarP(&cfg.SampleRate, "rate", "r", def.SampleRate, "Sample rate in Hz")
	pflag.BoolVarP(&cfg.Inverted, "inverted", "i", false, "Swap mark and space")
	pflag.IntVar(&p.stopBits, "stop-bits", 2, "Stop bits per frame")
	pflag.Float64Var(&p.amplitude, "amplitude", 0.8, "Tone amplitude relative to full scale")
	pflag.Float64Var(&p.noise, "noise", 0, "Noise level relative to full scale")
	pflag.Uint64Var(&p.seed, "seed", 1, "Noise seed")
	pflag.IntVar(&p.leadBits, "lead", 10, "Idle bits before and after the text")
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "rtty-gen"})

	m, err := rtty.ParseMode(mode)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	p.startMode = m

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("%v", err)
	}

	pcm, err := render(cfg, p)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	w, err := rtty.NewWAVWriter(*out, cfg.SampleRate, 1)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if err := w.WriteSamples(pcm); err != nil {
		w.Close()
		logger.Fatalf("%v", err)
	}
	if err := w.Close(); err != nil {
		logger.Fatalf("%v", err)
	}

	fmt.Printf("Wrote %s: %.2f s at %d Hz, mark %.1f Hz, space %.1f Hz\n",
		*out, w.Duration(), cfg.SampleRate, cfg.MarkFreq, cfg.SpaceFreq)
}

// render encodes p.text and modulates it with optional additive noise
func render(cfg rtty.Config, p signalParams) ([]int16, error) {
	bits, _, err := rtty.NewEncoder(nil, p.stopBits).EncodeText(p.text, p.startMode)
	if err != nil {
		return nil, err
	}
	lead := rtty.Idle(p.leadBits)
	all := append(append(append([]byte{}, lead...), bits...), lead...)

	pcm := rtty.NewModulator(cfg, p.amplitude).Modulate(all)
	if p.noise > 0 {
		rng := rand.New(rand.NewPCG(p.seed, p.seed^0x9e3779b97f4a7c15))
		for i, v := range pcm {
			f := float64(v)/32767 + rng.NormFloat64()*p.noise
			pcm[i] = int16(math.Round(math.Max(-1, math.Min(1, f)) * 32767))
		}
	}
	return pcm, nil
}
