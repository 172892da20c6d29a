package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/cwsl/ka9q_rtty/audio_extensions/rtty"
)

// ResultSink consumes parsed extension result messages
type ResultSink interface {
	HandleMessage(msg rtty.Message)
}

// Dispatcher fans extension result messages out to every sink
type Dispatcher struct {
	results <-chan []byte
	sinks   []ResultSink
	metrics *PrometheusMetrics
	logger  *log.Logger

	mu       sync.Mutex
	messages uint64
	lastMode rtty.Mode
}

// NewDispatcher creates a dispatcher reading from results
func NewDispatcher(results <-chan []byte, metrics *PrometheusMetrics, logger *log.Logger, sinks ...ResultSink) *Dispatcher {
	return &Dispatcher{
		results: results,
		sinks:   sinks,
		metrics: metrics,
		logger:  logger,
	}
}

// Run delivers messages until the result channel is closed
func (d *Dispatcher) Run() {
	for raw := range d.results {
		msg, err := rtty.ParseMessage(raw)
		if err != nil {
			d.metrics.RecordResultParseError()
			d.logger.Warnf("Dropping result message: %v", err)
			continue
		}

		d.mu.Lock()
		d.messages++
		if msg.Type == rtty.MessageMode {
			if msg.Mode != d.lastMode {
				d.logger.Debugf("Mode %s", msg.Mode)
			}
			d.lastMode = msg.Mode
		}
		d.mu.Unlock()

		for _, sink := range d.sinks {
			sink.HandleMessage(msg)
		}
	}
	d.logger.Debugf("Result channel closed after %d messages", d.Messages())
}

// Messages returns the number of messages delivered
func (d *Dispatcher) Messages() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.messages
}

// writerSink prints decoded text to a writer, for example stdout
type writerSink struct {
	w io.Writer
}

func (s writerSink) HandleMessage(msg rtty.Message) {
	if msg.Type == rtty.MessageText {
		fmt.Fprint(s.w, msg.Text)
	}
}
