package main

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func TestGatherMetricPayload(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)
	pm.RecordRTPPacket()
	pm.RecordWSMessageSent("text")

	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "unrelated_total", Help: "x"})
	reg.MustRegister(other)
	other.Inc()

	now := time.Unix(1700000000, 0)
	payload, err := gatherMetricPayload(reg, "rtty_", now)
	require.NoError(t, err)

	assert.Equal(t, int64(1700000000), payload.Timestamp)
	assert.Equal(t, 1.0, payload.Metrics["rtty_rtp_packets_total"])
	assert.Equal(t, 1.0, payload.Metrics["rtty_websocket_messages_sent_total{type=text}"])
	assert.NotContains(t, payload.Metrics, "unrelated_total")
}

func TestSeriesKey(t *testing.T) {
	assert.Equal(t, "rtty_mode", seriesKey("rtty_mode", nil))

	labels := []*dto.LabelPair{
		{Name: proto.String("mode"), Value: proto.String("RUS")},
		{Name: proto.String("host"), Value: proto.String("a")},
	}
	assert.Equal(t, "rtty_mode{mode=RUS,host=a}", seriesKey("rtty_mode", labels))
}

func TestExtractMetricValue(t *testing.T) {
	v, ok := extractMetricValue(&dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(2.5)}})
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)

	v, ok = extractMetricValue(&dto.Metric{Counter: &dto.Counter{Value: proto.Float64(7)}})
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)

	v, ok = extractMetricValue(&dto.Metric{Histogram: &dto.Histogram{SampleSum: proto.Float64(1.5)}})
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	_, ok = extractMetricValue(&dto.Metric{})
	assert.False(t, ok)
}

func TestGenerateClientID(t *testing.T) {
	a, b := generateClientID(), generateClientID()
	assert.Len(t, a, len("rttyd_")+16)
	assert.NotEqual(t, a, b)
}

func TestLoadTLSConfig(t *testing.T) {
	cfg, err := loadTLSConfig(MQTTTLSConfig{})
	assert.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = loadTLSConfig(MQTTTLSConfig{Enabled: true, CACert: "/nonexistent/ca.pem"})
	assert.Error(t, err)
}
