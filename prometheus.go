package main

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/cwsl/ka9q_rtty/audio_extensions/rtty"
)

// PrometheusMetrics holds all Prometheus metric collectors for the decoder and its outputs
type PrometheusMetrics struct {
	// Decoder counters (fed from session stats deltas)
	samplesTotal  prometheus.Counter
	bitsTotal     prometheus.Counter
	framesTotal   prometheus.Counter
	resyncsTotal  prometheus.Counter
	unknownTotal  prometheus.Counter
	switchesTotal prometheus.Counter
	charsTotal    prometheus.Counter

	// Decoder state
	pendingSamples prometheus.Gauge
	pendingBits    prometheus.Gauge
	markEnergy     prometheus.Gauge
	spaceEnergy    prometheus.Gauge
	mode           *prometheus.GaugeVec // 1 for the active mode

	// Audio input
	droppedChunks  prometheus.Counter
	rtpPackets     prometheus.Counter
	rtpGapsTotal   prometheus.Counter
	resultsDropped prometheus.Counter

	// Outputs
	wsClients         prometheus.Gauge
	wsMessagesSent    *prometheus.CounterVec
	mqttPublishes     prometheus.Counter
	mqttFailures      prometheus.Counter
	transcriptWrites  prometheus.Counter
	transcriptErrors  prometheus.Counter
	pushgatewayPushes prometheus.Counter
	pushgatewayFails  prometheus.Counter
	pushgatewayLast   prometheus.Gauge

	// Resource metrics
	goroutineCount   prometheus.Gauge
	memoryAllocBytes prometheus.Gauge
	memoryHeapBytes  prometheus.Gauge
	gcPauseSeconds   prometheus.Gauge
	cpuCores         prometheus.Gauge
	cpuPercent       prometheus.Gauge

	mu   sync.Mutex
	last rtty.SessionStats // Previous snapshot for counter deltas
}

// NewPrometheusMetrics creates and registers all collectors on reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	f := promauto.With(reg)

	return &PrometheusMetrics{
		samplesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_samples_total",
			Help: "Audio samples pushed into the decoder",
		}),
		bitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_bits_total",
			Help: "Bits demodulated",
		}),
		framesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_frames_total",
			Help: "Character frames recognized",
		}),
		resyncsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_resyncs_total",
			Help: "Spurious start bits skipped while looking for frame sync",
		}),
		unknownTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_unknown_codes_total",
			Help: "Frames whose code has no character in the active mode",
		}),
		switchesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_mode_switches_total",
			Help: "Mode-switch codes received",
		}),
		charsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_decoded_chars_total",
			Help: "Characters decoded",
		}),

		pendingSamples: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtty_pending_samples",
			Help: "Samples waiting for a complete bit window",
		}),
		pendingBits: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtty_pending_bits",
			Help: "Bits waiting for a complete frame",
		}),
		markEnergy: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtty_mark_energy",
			Help: "Mark band energy of the last bit window",
		}),
		spaceEnergy: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtty_space_energy",
			Help: "Space band energy of the last bit window",
		}),
		mode: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rtty_mode",
			Help: "Active decode mode (1 for the current mode)",
		}, []string{"mode"}),

		droppedChunks: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_audio_dropped_samples_total",
			Help: "Samples dropped because the decoder input channel was full",
		}),
		rtpPackets: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_rtp_packets_total",
			Help: "RTP packets accepted",
		}),
		rtpGapsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_rtp_lost_packets_total",
			Help: "RTP packets missing according to sequence numbers",
		}),
		resultsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_result_parse_errors_total",
			Help: "Extension result messages that could not be parsed",
		}),

		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtty_websocket_clients",
			Help: "Connected text feed clients",
		}),
		wsMessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rtty_websocket_messages_sent_total",
			Help: "Messages sent to text feed clients",
		}, []string{"type"}),
		mqttPublishes: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_mqtt_publishes_total",
			Help: "MQTT messages published",
		}),
		mqttFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_mqtt_failures_total",
			Help: "MQTT publish failures",
		}),
		transcriptWrites: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_transcript_writes_total",
			Help: "Text fragments written to the transcript",
		}),
		transcriptErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_transcript_errors_total",
			Help: "Transcript write failures",
		}),
		pushgatewayPushes: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_pushgateway_pushes_total",
			Help: "Pushgateway push attempts",
		}),
		pushgatewayFails: f.NewCounter(prometheus.CounterOpts{
			Name: "rtty_pushgateway_failures_total",
			Help: "Failed Pushgateway pushes",
		}),
		pushgatewayLast: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtty_pushgateway_last_push_timestamp",
			Help: "Unix time of the last successful push",
		}),

		goroutineCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtty_goroutines",
			Help: "Number of goroutines",
		}),
		memoryAllocBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtty_memory_alloc_bytes",
			Help: "Currently allocated bytes",
		}),
		memoryHeapBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtty_memory_heap_bytes",
			Help: "Heap allocated bytes",
		}),
		gcPauseSeconds: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtty_gc_pause_seconds",
			Help: "Most recent GC pause",
		}),
		cpuCores: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtty_host_cpu_cores",
			Help: "Physical CPU cores on the host",
		}),
		cpuPercent: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtty_host_cpu_percent",
			Help: "Host CPU utilisation since the previous sample",
		}),
	}
}

// UpdateDecoderStats converts a session snapshot into counter increments and gauge values
func (pm *PrometheusMetrics) UpdateDecoderStats(st rtty.SessionStats) {
	if pm == nil {
		return
	}

	pm.mu.Lock()
	prev := pm.last
	// A counter going backwards means a new session; count it from zero
	if st.SamplesIn < prev.SamplesIn {
		prev = rtty.SessionStats{}
	}
	pm.last = st
	pm.mu.Unlock()

	pm.samplesTotal.Add(float64(st.SamplesIn - prev.SamplesIn))
	pm.bitsTotal.Add(float64(st.Bits - prev.Bits))
	pm.framesTotal.Add(float64(st.Frames - prev.Frames))
	pm.resyncsTotal.Add(float64(st.Resyncs - prev.Resyncs))
	pm.unknownTotal.Add(float64(st.Unknown - prev.Unknown))
	pm.switchesTotal.Add(float64(st.Switches - prev.Switches))
	pm.charsTotal.Add(float64(st.Chars - prev.Chars))

	pm.pendingSamples.Set(float64(st.PendingSamples))
	pm.pendingBits.Set(float64(st.PendingBits))
	pm.markEnergy.Set(st.MarkEnergy)
	pm.spaceEnergy.Set(st.SpaceEnergy)

	for _, m := range []rtty.Mode{rtty.ModeLAT, rtty.ModeRUS, rtty.ModeFIGS} {
		v := 0.0
		if m.String() == st.Mode {
			v = 1
		}
		pm.mode.WithLabelValues(m.String()).Set(v)
	}
}

// StartStatsUpdater periodically copies decoder stats into the metrics
func (pm *PrometheusMetrics) StartStatsUpdater(ctx context.Context, src statsProvider, interval time.Duration) {
	if pm == nil || src == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				// Final snapshot so totals include the last drain
				pm.UpdateDecoderStats(src.Stats())
				return
			case <-ticker.C:
				pm.UpdateDecoderStats(src.Stats())
				pm.updateResourceMetrics()
			}
		}
	}()
}

// InitializeSystemMetrics sets values that do not change while running
func (pm *PrometheusMetrics) InitializeSystemMetrics(logger *log.Logger) {
	if pm == nil {
		return
	}

	info, err := cpu.Info()
	if err != nil {
		logger.Warnf("Failed to read CPU info: %v", err)
		return
	}
	cores := 0
	for _, ci := range info {
		cores += int(ci.Cores)
	}
	pm.cpuCores.Set(float64(cores))
}

// updateResourceMetrics updates runtime resource metrics
func (pm *PrometheusMetrics) updateResourceMetrics() {
	if pm == nil {
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	pm.goroutineCount.Set(float64(runtime.NumGoroutine()))
	pm.memoryAllocBytes.Set(float64(m.Alloc))
	pm.memoryHeapBytes.Set(float64(m.HeapAlloc))
	if m.NumGC > 0 {
		pm.gcPauseSeconds.Set(float64(m.PauseNs[(m.NumGC+255)%256]) / 1e9)
	}

	// Non-blocking: utilisation since the previous call
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		pm.cpuPercent.Set(pct[0])
	}
}

// RecordDroppedChunk counts samples dropped before reaching the decoder
func (pm *PrometheusMetrics) RecordDroppedChunk(samples int) {
	if pm == nil {
		return
	}
	pm.droppedChunks.Add(float64(samples))
}

// RecordRTPPacket counts an accepted RTP packet
func (pm *PrometheusMetrics) RecordRTPPacket() {
	if pm == nil {
		return
	}
	pm.rtpPackets.Inc()
}

// RecordRTPGap counts missing RTP packets
func (pm *PrometheusMetrics) RecordRTPGap(missing int) {
	if pm == nil {
		return
	}
	pm.rtpGapsTotal.Add(float64(missing))
}

// RecordResultParseError counts an unparseable extension message
func (pm *PrometheusMetrics) RecordResultParseError() {
	if pm == nil {
		return
	}
	pm.resultsDropped.Inc()
}

// SetWSClients sets the number of connected websocket clients
func (pm *PrometheusMetrics) SetWSClients(n int) {
	if pm == nil {
		return
	}
	pm.wsClients.Set(float64(n))
}

// RecordWSMessageSent counts a message sent to one websocket client
func (pm *PrometheusMetrics) RecordWSMessageSent(msgType string) {
	if pm == nil {
		return
	}
	pm.wsMessagesSent.WithLabelValues(msgType).Inc()
}

// RecordMQTTPublish counts a publish attempt and its outcome
func (pm *PrometheusMetrics) RecordMQTTPublish(err error) {
	if pm == nil {
		return
	}
	pm.mqttPublishes.Inc()
	if err != nil {
		pm.mqttFailures.Inc()
	}
}

// RecordTranscriptWrite counts a transcript write and its outcome
func (pm *PrometheusMetrics) RecordTranscriptWrite(err error) {
	if pm == nil {
		return
	}
	pm.transcriptWrites.Inc()
	if err != nil {
		pm.transcriptErrors.Inc()
	}
}

// StartPushgatewayWorker periodically pushes everything in gatherer to the Pushgateway
func (pm *PrometheusMetrics) StartPushgatewayWorker(ctx context.Context, cfg PushgatewayConfig, gatherer prometheus.Gatherer, logger *log.Logger) {
	if pm == nil || !cfg.Enabled {
		return
	}

	logger.Infof("Starting Pushgateway worker: URL=%s, Job=%s, Instance=%s, Interval=%ds",
		cfg.URL, cfg.Job, cfg.Instance, cfg.Interval)

	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Interval) * time.Second)
		defer ticker.Stop()

		pushOnce := func() {
			pm.pushgatewayPushes.Inc()
			if err := pushToGateway(cfg, gatherer); err != nil {
				pm.pushgatewayFails.Inc()
				logger.Errorf("Failed to push metrics to Pushgateway: %v", err)
				return
			}
			pm.pushgatewayLast.Set(float64(time.Now().Unix()))
			logger.Debugf("Pushed metrics to Pushgateway")
		}

		pushOnce()
		for {
			select {
			case <-ctx.Done():
				logger.Infof("Pushgateway worker stopped")
				return
			case <-ticker.C:
				pushOnce()
			}
		}
	}()
}

// pushToGateway pushes all metrics with the instance and version as grouping labels
func pushToGateway(cfg PushgatewayConfig, gatherer prometheus.Gatherer) error {
	pusher := push.New(cfg.URL, cfg.Job).Gatherer(gatherer)
	if cfg.Instance != "" {
		pusher = pusher.Grouping("instance", cfg.Instance)
		if cfg.Token != "" {
			pusher = pusher.BasicAuth(cfg.Instance, cfg.Token)
		}
	}
	pusher = pusher.Grouping("version", Version)

	if err := pusher.Push(); err != nil {
		return fmt.Errorf("failed to push to gateway: %w", err)
	}
	return nil
}
