package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/cwsl/ka9q_rtty/audio_extensions/rtty"
)

// MQTTPublisher publishes decoded text and metrics snapshots
type MQTTPublisher struct {
	client   mqtt.Client
	config   MQTTConfig
	gatherer prometheus.Gatherer
	metrics  *PrometheusMetrics
	logger   *log.Logger
	mode     string
}

// TextPayload is published for every decoded text fragment
type TextPayload struct {
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
	Mode      string `json:"mode"`
}

// MetricPayload represents a metrics snapshot
type MetricPayload struct {
	Timestamp int64              `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
	Labels    map[string]string  `json:"labels,omitempty"`
}

// generateClientID creates a random client ID for the MQTT connection
func generateClientID() string {
	return "rttyd_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

// loadTLSConfig loads TLS configuration from files
func loadTLSConfig(tlsConfig MQTTTLSConfig) (*tls.Config, error) {
	if !tlsConfig.Enabled {
		return nil, nil
	}

	config := &tls.Config{}

	if tlsConfig.CACert != "" {
		caCert, err := os.ReadFile(tlsConfig.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		config.RootCAs = caCertPool
	}

	if tlsConfig.ClientCert != "" && tlsConfig.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.ClientCert, tlsConfig.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}

// NewMQTTPublisher connects to the broker in config
func NewMQTTPublisher(config MQTTConfig, gatherer prometheus.Gatherer, metrics *PrometheusMetrics, logger *log.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(generateClientID())

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	if config.TLS.Enabled {
		tlsConfig, err := loadTLSConfig(config.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.Infof("Connected to broker")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warnf("Connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		logger.Infof("Attempting to reconnect...")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logger.Infof("Successfully connected to broker: %s", config.Broker)

	return &MQTTPublisher{
		client:   client,
		config:   config,
		gatherer: gatherer,
		metrics:  metrics,
		logger:   logger,
		mode:     rtty.ModeLAT.String(),
	}, nil
}

// topic joins the configured prefix and name
func (mp *MQTTPublisher) topic(name string) string {
	return strings.TrimSuffix(mp.config.TopicPrefix, "/") + "/" + name
}

// HandleMessage implements ResultSink: text fragments go to <prefix>/text, mode changes to
// <prefix>/mode (retained)
func (mp *MQTTPublisher) HandleMessage(msg rtty.Message) {
	switch msg.Type {
	case rtty.MessageText:
		mp.publishJSON(mp.topic("text"), false, TextPayload{
			Timestamp: msg.Timestamp.Unix(),
			Text:      msg.Text,
			Mode:      mp.mode,
		})
	case rtty.MessageMode:
		mp.mode = msg.Mode.String()
		mp.publishRaw(mp.topic("mode"), true, []byte(mp.mode))
	}
}

// StartMetricsPublisher publishes a snapshot of the rtty_ metrics at the configured interval
func (mp *MQTTPublisher) StartMetricsPublisher(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Duration(mp.config.PublishInterval) * time.Second)
		defer ticker.Stop()

		mp.logger.Infof("Metrics publisher started with %d second interval", mp.config.PublishInterval)

		for {
			select {
			case <-ctx.Done():
				mp.logger.Infof("Metrics publisher stopped")
				return
			case <-ticker.C:
				mp.publishMetrics()
			}
		}
	}()
}

func (mp *MQTTPublisher) publishMetrics() {
	payload, err := gatherMetricPayload(mp.gatherer, "rtty_", time.Now())
	if err != nil {
		mp.logger.Errorf("Failed to gather Prometheus metrics: %v", err)
		return
	}
	if len(payload.Metrics) == 0 {
		return
	}
	mp.publishJSON(mp.topic("metrics"), mp.config.Retain, payload)
}

func (mp *MQTTPublisher) publishJSON(topic string, retain bool, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		mp.logger.Errorf("Failed to marshal payload for topic %s: %v", topic, err)
		return
	}
	mp.publishRaw(topic, retain, data)
}

func (mp *MQTTPublisher) publishRaw(topic string, retain bool, data []byte) {
	token := mp.client.Publish(topic, mp.config.QoS, retain, data)
	var err error
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		err = token.Error()
		mp.logger.Errorf("Failed to publish to topic %s: %v", topic, err)
	}
	mp.metrics.RecordMQTTPublish(err)
}

// Close disconnects from the broker
func (mp *MQTTPublisher) Close() {
	mp.client.Disconnect(250)
}

// gatherMetricPayload flattens every metric whose name starts with prefix. Labelled series
// are keyed as name{label=value,...}.
func gatherMetricPayload(gatherer prometheus.Gatherer, prefix string, now time.Time) (MetricPayload, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return MetricPayload{}, err
	}

	payload := MetricPayload{
		Timestamp: now.Unix(),
		Metrics:   make(map[string]float64),
	}
	for _, mf := range families {
		name := mf.GetName()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		for _, m := range mf.GetMetric() {
			value, ok := extractMetricValue(m)
			if !ok {
				continue
			}
			payload.Metrics[seriesKey(name, m.GetLabel())] = value
		}
	}
	return payload, nil
}

func seriesKey(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.GetName()+"="+l.GetValue())
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

// extractMetricValue extracts the numeric value from a Prometheus metric
func extractMetricValue(m *dto.Metric) (float64, bool) {
	if m.GetGauge() != nil {
		return m.GetGauge().GetValue(), true
	}
	if m.GetCounter() != nil {
		return m.GetCounter().GetValue(), true
	}
	if m.GetHistogram() != nil {
		return m.GetHistogram().GetSampleSum(), true
	}
	if m.GetSummary() != nil {
		return m.GetSummary().GetSampleSum(), true
	}
	return 0, false
}
