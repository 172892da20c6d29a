package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

// Version is the daemon version reported by --version and the status API
const Version = "1.0.0"

const statusInterval = 10 * time.Second

// DebugMode enables debug logging
var DebugMode bool

// StartTime is used for uptime reporting
var StartTime time.Time

func main() {
	StartTime = time.Now()

	configFile := pflag.StringP("config", "c", "config.yaml", "Path to configuration file")
	debug := pflag.BoolP("debug", "d", false, "Enable debug logging")
	showVersion := pflag.Bool("version", false, "Print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println("rttyd", Version)
		return
	}

	// Environment variable takes precedence over the flag
	DebugMode = *debug
	if debugEnv := os.Getenv("DEBUG"); debugEnv != "" {
		DebugMode = debugEnv == "true" || debugEnv == "1" || debugEnv == "yes"
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "rttyd",
		ReportTimestamp: true,
	})

	config, err := LoadConfig(*configFile)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	level, _ := log.ParseLevel(config.Logging.Level)
	if DebugMode {
		level = log.DebugLevel
	}
	logger.SetLevel(level)
	log.SetDefault(logger)
	logger.Debugf("Debug mode enabled")

	if err := run(config, logger); err != nil {
		logger.Fatalf("%v", err)
	}
}

// run wires the source, decoder and outputs and blocks until shutdown
func run(config *Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Outputs run on their own context so they outlive the final decoder drain
	outCtx, outCancel := context.WithCancel(context.Background())
	defer outCancel()

	var metrics *PrometheusMetrics
	if config.Prometheus.Enabled {
		metrics = NewPrometheusMetrics(prometheus.DefaultRegisterer)
		metrics.InitializeSystemMetrics(logger)
	}

	registry := NewAudioExtensionRegistry()
	registerBuiltinExtensions(registry, logger)
	// Fail before opening sockets or devices
	if err := checkExtension(registry, config.Decoder.Extension); err != nil {
		return err
	}

	source, err := newAudioSource(config.Audio, metrics, logger.WithPrefix("audio"))
	if err != nil {
		return fmt.Errorf("failed to open audio source: %w", err)
	}
	defer source.Close()

	ext, err := registry.Create(config.Decoder.Extension, AudioExtensionParams{
		SampleRate:    source.SampleRate(),
		Channels:      1,
		BitsPerSample: 16,
	}, config.Decoder.Params)
	if err != nil {
		return fmt.Errorf("failed to create %s decoder: %w", config.Decoder.Extension, err)
	}

	wsHandler := NewTextWebSocketHandler(config.Server.RecentLines, metrics, logger.WithPrefix("ws"))
	sinks := []ResultSink{wsHandler}

	if config.Server.PrintText {
		sinks = append(sinks, writerSink{w: os.Stdout})
	}

	if config.Transcript.Enabled {
		transcript, err := NewTranscriptLog(config.Transcript, metrics, logger.WithPrefix("transcript"))
		if err != nil {
			return fmt.Errorf("failed to open transcript: %w", err)
		}
		defer transcript.Close()
		sinks = append(sinks, transcript)
	}

	if config.MQTT.Enabled {
		publisher, err := NewMQTTPublisher(config.MQTT, prometheus.DefaultGatherer, metrics, logger.WithPrefix("mqtt"))
		if err != nil {
			// Decoding is still useful without the broker
			logger.Errorf("MQTT disabled: %v", err)
		} else {
			defer publisher.Close()
			publisher.StartMetricsPublisher(outCtx)
			sinks = append(sinks, publisher)
		}
	}

	audioChan := make(chan []int16, config.Audio.BufferSize)
	resultChan := make(chan []byte, 256)
	dispatcher := NewDispatcher(resultChan, metrics, logger.WithPrefix("dispatch"), sinks...)

	if err := ext.Start(audioChan, resultChan); err != nil {
		return fmt.Errorf("failed to start %s: %w", ext.GetName(), err)
	}

	var dispatchWG sync.WaitGroup
	dispatchWG.Add(1)
	go func() {
		defer dispatchWG.Done()
		dispatcher.Run()
	}()

	stats, _ := ext.(statsProvider)
	if metrics != nil {
		metrics.StartStatsUpdater(outCtx, stats, time.Duration(config.Prometheus.Interval)*time.Second)
		metrics.StartPushgatewayWorker(outCtx, config.Prometheus.Pushgateway, prometheus.DefaultGatherer, logger.WithPrefix("pushgateway"))
	}

	if stats != nil {
		go broadcastStatusLoop(outCtx, wsHandler, stats, statusInterval)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(config.Server.WebSocketPath, wsHandler.HandleWebSocket)
	mux.HandleFunc("/api/status", statusHandler(config, source, ext, stats, wsHandler))
	mux.HandleFunc("/api/extensions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, registry.List())
	})
	if config.Prometheus.Enabled {
		mux.Handle(config.Prometheus.Path, promhttp.Handler())
	}

	server := &http.Server{
		Addr:    config.Server.Listen,
		Handler: mux,
	}
	go func() {
		logger.Infof("Server listening on %s", config.Server.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Server error: %v", err)
			stop()
		}
	}()

	logger.Infof("Decoding %s with %s", source.Name(), ext.GetName())

	// The pump closes audioChan on cancel or EOF, which ends the session after a final drain
	pumpErr := pumpAudio(ctx, source, audioChan, metrics, logger.WithPrefix("audio"))
	if pumpErr != nil {
		logger.Errorf("%v", pumpErr)
	}

	if w, ok := ext.(waiter); ok {
		w.Wait()
	}
	if err := ext.Stop(); err != nil {
		logger.Warnf("Error stopping %s: %v", ext.GetName(), err)
	}

	close(resultChan)
	dispatchWG.Wait()

	logger.Infof("Shutting down server...")
	outCancel()
	wsHandler.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Error closing server: %v", err)
	}

	if stats != nil {
		metrics.UpdateDecoderStats(stats.Stats())
		st := stats.Stats()
		logger.Infof("Decoded %d characters from %d frames (%d resyncs, %d unknown)",
			st.Chars, st.Frames, st.Resyncs, st.Unknown)
	}
	logger.Infof("Server stopped")
	return pumpErr
}

// broadcastStatusLoop pushes decoder stats to text feed clients until ctx is done
func broadcastStatusLoop(ctx context.Context, ws *TextWebSocketHandler, stats statsProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ws.ClientCount() > 0 {
				ws.BroadcastStatus(stats.Stats())
			}
		}
	}
}

// statusHandler reports the decoder state as JSON
func statusHandler(config *Config, source AudioSource, ext AudioExtension, stats statsProvider, ws *TextWebSocketHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"version":     Version,
			"uptime":      time.Since(StartTime).Round(time.Second).String(),
			"source":      source.Name(),
			"sample_rate": source.SampleRate(),
			"extension":   ext.GetName(),
			"ws_clients":  ws.ClientCount(),
			"recent":      ws.recentJSON(),
		}
		if stats != nil {
			status["decoder"] = stats.Stats()
		}
		if strings.Contains(r.URL.RawQuery, "config") {
			status["params"] = config.Decoder.Params
		}
		writeJSON(w, status)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
