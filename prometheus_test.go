package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/cwsl/ka9q_rtty/audio_extensions/rtty"
)

func TestUpdateDecoderStatsDeltas(t *testing.T) {
	pm := NewPrometheusMetrics(prometheus.NewRegistry())

	pm.UpdateDecoderStats(rtty.SessionStats{SamplesIn: 1000, Bits: 10, Frames: 1, Chars: 1, Mode: "LAT", PendingBits: 3, MarkEnergy: 5})
	pm.UpdateDecoderStats(rtty.SessionStats{SamplesIn: 3000, Bits: 30, Frames: 3, Chars: 2, Switches: 1, Mode: "RUS", PendingBits: 1, MarkEnergy: 7})

	assert.Equal(t, 3000.0, testutil.ToFloat64(pm.samplesTotal))
	assert.Equal(t, 30.0, testutil.ToFloat64(pm.bitsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.framesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.charsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.switchesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.pendingBits))
	assert.Equal(t, 7.0, testutil.ToFloat64(pm.markEnergy))
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.mode.WithLabelValues("LAT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.mode.WithLabelValues("RUS")))
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.mode.WithLabelValues("FIGS")))
}

func TestUpdateDecoderStatsReset(t *testing.T) {
	pm := NewPrometheusMetrics(prometheus.NewRegistry())

	pm.UpdateDecoderStats(rtty.SessionStats{SamplesIn: 5000, Bits: 50})
	// A fresh session starts its counters from zero
	pm.UpdateDecoderStats(rtty.SessionStats{SamplesIn: 100, Bits: 2})

	assert.Equal(t, 5100.0, testutil.ToFloat64(pm.samplesTotal))
	assert.Equal(t, 52.0, testutil.ToFloat64(pm.bitsTotal))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var pm *PrometheusMetrics
	assert.NotPanics(t, func() {
		pm.UpdateDecoderStats(rtty.SessionStats{SamplesIn: 1})
		pm.RecordDroppedChunk(10)
		pm.RecordRTPPacket()
		pm.RecordRTPGap(2)
		pm.RecordResultParseError()
		pm.SetWSClients(3)
		pm.RecordWSMessageSent("text")
		pm.RecordMQTTPublish(assert.AnError)
		pm.RecordTranscriptWrite(nil)
		pm.InitializeSystemMetrics(quietLogger())
		pm.StartStatsUpdater(context.Background(), nil, time.Second)
		pm.StartPushgatewayWorker(context.Background(), PushgatewayConfig{Enabled: true}, nil, quietLogger())
	})
}

func TestRecorders(t *testing.T) {
	pm := NewPrometheusMetrics(prometheus.NewRegistry())

	pm.RecordDroppedChunk(480)
	pm.RecordRTPPacket()
	pm.RecordRTPPacket()
	pm.RecordRTPGap(3)
	pm.RecordMQTTPublish(nil)
	pm.RecordMQTTPublish(assert.AnError)
	pm.RecordTranscriptWrite(assert.AnError)
	pm.RecordWSMessageSent("text")
	pm.RecordWSMessageSent("text")
	pm.RecordWSMessageSent("mode")
	pm.SetWSClients(2)

	assert.Equal(t, 480.0, testutil.ToFloat64(pm.droppedChunks))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.rtpPackets))
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.rtpGapsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.mqttPublishes))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.mqttFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.transcriptErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.wsMessagesSent.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.wsMessagesSent.WithLabelValues("mode")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.wsClients))
}

type fixedStats struct{ st rtty.SessionStats }

func (f fixedStats) Stats() rtty.SessionStats { return f.st }

func TestStatsUpdaterFinalSnapshot(t *testing.T) {
	pm := NewPrometheusMetrics(prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())

	pm.StartStatsUpdater(ctx, fixedStats{rtty.SessionStats{SamplesIn: 970, Chars: 4}}, time.Hour)
	cancel()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(pm.charsTotal) == 4
	}, time.Second, 5*time.Millisecond)
}

func TestResourceMetrics(t *testing.T) {
	pm := NewPrometheusMetrics(prometheus.NewRegistry())
	pm.updateResourceMetrics()
	assert.Greater(t, testutil.ToFloat64(pm.goroutineCount), 0.0)
	assert.Greater(t, testutil.ToFloat64(pm.memoryAllocBytes), 0.0)
}

func TestPushToGateway(t *testing.T) {
	var gotPath, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	NewPrometheusMetrics(reg).RecordRTPPacket()

	cfg := PushgatewayConfig{URL: srv.URL, Job: "ka9q_rtty", Instance: "station1", Token: "secret"}
	assert.NoError(t, pushToGateway(cfg, reg))
	assert.Contains(t, gotPath, "/metrics/job/ka9q_rtty")
	assert.Contains(t, gotPath, "instance/station1")
	assert.Equal(t, "station1", gotUser)

	srv.Close()
	assert.Error(t, pushToGateway(cfg, reg))
}
