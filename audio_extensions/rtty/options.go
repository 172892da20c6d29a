package rtty

import (
	"time"

	"github.com/charmbracelet/log"
)

type options struct {
	logger       *log.Logger
	codebook     *Codebook
	pollInterval time.Duration
}

// Option customizes a BatchDecoder or Session
type Option func(*options)

// WithLogger sets the logger; the package default logger is used otherwise
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithCodebook replaces DefaultCodebook
func WithCodebook(cb *Codebook) Option {
	return func(o *options) {
		o.codebook = cb
	}
}

// WithPollInterval sets the drain cadence of Session.Run
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Default().WithPrefix("rtty")
	}
	if o.codebook == nil {
		o.codebook = DefaultCodebook
	}
	return o
}
