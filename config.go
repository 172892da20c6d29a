package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/cwsl/ka9q_rtty/audio_extensions/rtty"
)

// Config represents the application configuration
type Config struct {
	Decoder    DecoderConfig    `yaml:"decoder"`
	Audio      AudioConfig      `yaml:"audio"`
	Server     ServerConfig     `yaml:"server"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DecoderConfig selects the audio extension and its user parameters
type DecoderConfig struct {
	Extension string                 `yaml:"extension"` // Registered extension name (default "rtty")
	Params    map[string]interface{} `yaml:"params"`    // Extension parameters (baud, mark_freq, space_freq, ...)
}

// AudioConfig contains audio source settings
type AudioConfig struct {
	Source     string          `yaml:"source"`      // rtp, portaudio or wav
	SampleRate int             `yaml:"sample_rate"` // Hz, stream rate for live sources
	BufferSize int             `yaml:"buffer_size"` // Audio channel capacity in chunks
	RTP        RTPConfig       `yaml:"rtp"`
	PortAudio  PortAudioConfig `yaml:"portaudio"`
	WAV        WAVConfig       `yaml:"wav"`
}

// RTPConfig contains radiod multicast settings
type RTPConfig struct {
	Group     string `yaml:"group"`     // Multicast group and port (e.g., 239.1.2.3:5004)
	Interface string `yaml:"interface"` // Network interface to join on (empty = system default)
	SSRC      uint32 `yaml:"ssrc"`      // Only accept this SSRC (0 = any)
}

// PortAudioConfig contains sound card capture settings
type PortAudioConfig struct {
	Device          string `yaml:"device"`            // Input device name (empty = default input)
	FramesPerBuffer int    `yaml:"frames_per_buffer"` // Frames per read
}

// WAVConfig contains file playback settings
type WAVConfig struct {
	Path      string `yaml:"path"`       // WAV file to play into the decoder
	ChunkSize int    `yaml:"chunk_size"` // Samples per chunk
	Realtime  bool   `yaml:"realtime"`   // Pace chunks at the file's sample rate
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Listen        string `yaml:"listen"`         // Listen address (e.g., :8090)
	WebSocketPath string `yaml:"websocket_path"` // Text feed path
	RecentLines   int    `yaml:"recent_lines"`   // Text fragments replayed to new websocket clients
	PrintText     bool   `yaml:"print_text"`     // Also write decoded text to stdout
}

// PrometheusConfig contains Prometheus metrics settings
type PrometheusConfig struct {
	Enabled     bool              `yaml:"enabled"`     // Enable/disable Prometheus metrics endpoint
	Path        string            `yaml:"path"`        // Metrics endpoint path
	Interval    int               `yaml:"interval"`    // Decoder stats update interval in seconds
	Pushgateway PushgatewayConfig `yaml:"pushgateway"` // Pushgateway configuration
}

// PushgatewayConfig contains Prometheus Pushgateway settings
type PushgatewayConfig struct {
	Enabled  bool   `yaml:"enabled"`  // Enable/disable pushing to Pushgateway
	URL      string `yaml:"url"`      // Pushgateway URL (e.g., http://pushgateway:9091)
	Job      string `yaml:"job"`      // Job name
	Instance string `yaml:"instance"` // Instance label and basic auth username
	Token    string `yaml:"token"`    // Basic auth password (optional)
	Interval int    `yaml:"interval"` // Push interval in seconds
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Enabled         bool          `yaml:"enabled"`          // Enable/disable MQTT publishing
	Broker          string        `yaml:"broker"`           // MQTT broker URL (e.g., tcp://mqtt.example.com:1883)
	Username        string        `yaml:"username"`         // MQTT authentication username
	Password        string        `yaml:"password"`         // MQTT authentication password
	TopicPrefix     string        `yaml:"topic_prefix"`     // Topic prefix for all messages
	PublishInterval int           `yaml:"publish_interval"` // Metrics snapshot interval in seconds
	QoS             byte          `yaml:"qos"`              // MQTT Quality of Service level (0, 1, or 2)
	Retain          bool          `yaml:"retain"`           // Retain flag for metrics snapshots
	TLS             MQTTTLSConfig `yaml:"tls"`              // TLS/SSL settings
}

// MQTTTLSConfig contains MQTT TLS/SSL settings
type MQTTTLSConfig struct {
	Enabled    bool   `yaml:"enabled"`     // Enable/disable TLS
	CACert     string `yaml:"ca_cert"`     // Path to CA certificate file
	ClientCert string `yaml:"client_cert"` // Path to client certificate file (optional)
	ClientKey  string `yaml:"client_key"`  // Path to client key file (optional)
}

// TranscriptConfig contains decoded text logging settings
type TranscriptConfig struct {
	Enabled  bool   `yaml:"enabled"`  // Enable/disable transcript files
	Dir      string `yaml:"dir"`      // Base directory, files go to dir/YYYY/MM/DD/
	Charset  string `yaml:"charset"`  // utf-8, koi8-r or windows-1251
	Compress bool   `yaml:"compress"` // zstd-compress transcript files
}

// LoggingConfig contains log settings
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn or error
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, applies defaults and validates it
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Decoder.Extension == "" {
		c.Decoder.Extension = "rtty"
	}
	if c.Decoder.Params == nil {
		c.Decoder.Params = map[string]interface{}{}
	}

	if c.Audio.Source == "" {
		c.Audio.Source = "rtp"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = rtty.DefaultConfig().SampleRate
	}
	if c.Audio.BufferSize == 0 {
		c.Audio.BufferSize = 256
	}
	if c.Audio.PortAudio.FramesPerBuffer == 0 {
		c.Audio.PortAudio.FramesPerBuffer = 1024
	}
	if c.Audio.WAV.ChunkSize == 0 {
		c.Audio.WAV.ChunkSize = 4096
	}

	if c.Server.Listen == "" {
		c.Server.Listen = ":8090"
	}
	if c.Server.WebSocketPath == "" {
		c.Server.WebSocketPath = "/ws"
	}
	if c.Server.RecentLines == 0 {
		c.Server.RecentLines = 50
	}

	if c.Prometheus.Path == "" {
		c.Prometheus.Path = "/metrics"
	}
	if c.Prometheus.Interval == 0 {
		c.Prometheus.Interval = 5
	}
	if c.Prometheus.Pushgateway.Job == "" {
		c.Prometheus.Pushgateway.Job = "ka9q_rtty"
	}
	if c.Prometheus.Pushgateway.Interval == 0 {
		c.Prometheus.Pushgateway.Interval = 60
	}

	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "rtty"
	}
	if c.MQTT.PublishInterval == 0 {
		c.MQTT.PublishInterval = 60
	}

	if c.Transcript.Dir == "" {
		c.Transcript.Dir = "transcripts"
	}
	if c.Transcript.Charset == "" {
		c.Transcript.Charset = "utf-8"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for values the daemon cannot start with
func (c *Config) Validate() error {
	switch c.Audio.Source {
	case "rtp":
		if c.Audio.RTP.Group == "" {
			return fmt.Errorf("audio.rtp.group is required for the rtp source")
		}
	case "portaudio":
	case "wav":
		if c.Audio.WAV.Path == "" {
			return fmt.Errorf("audio.wav.path is required for the wav source")
		}
	default:
		return fmt.Errorf("audio.source %q (must be rtp, portaudio or wav)", c.Audio.Source)
	}

	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate %d must be positive", c.Audio.SampleRate)
	}

	// The WAV source carries its own rate; live sources must decode at the stream rate
	if c.Decoder.Extension == "rtty" && c.Audio.Source != "wav" {
		if _, err := rtty.ConfigFromParams(c.Audio.SampleRate, c.Decoder.Params); err != nil {
			return fmt.Errorf("decoder.params: %w", err)
		}
	}

	if !strings.HasPrefix(c.Server.WebSocketPath, "/") {
		return fmt.Errorf("server.websocket_path %q must start with /", c.Server.WebSocketPath)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos %d (must be 0, 1 or 2)", c.MQTT.QoS)
		}
	}

	if c.Prometheus.Pushgateway.Enabled && c.Prometheus.Pushgateway.URL == "" {
		return fmt.Errorf("prometheus.pushgateway.url is required when the pushgateway is enabled")
	}

	if c.Transcript.Enabled {
		if _, err := transcriptEncoding(c.Transcript.Charset); err != nil {
			return fmt.Errorf("transcript.charset: %w", err)
		}
	}

	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}
