package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("audio:\n  rtp:\n    group: 239.1.2.3:5004\n"))
	require.NoError(t, err)

	assert.Equal(t, "rtty", cfg.Decoder.Extension)
	assert.NotNil(t, cfg.Decoder.Params)
	assert.Equal(t, "rtp", cfg.Audio.Source)
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, 256, cfg.Audio.BufferSize)
	assert.Equal(t, 1024, cfg.Audio.PortAudio.FramesPerBuffer)
	assert.Equal(t, 4096, cfg.Audio.WAV.ChunkSize)
	assert.Equal(t, ":8090", cfg.Server.Listen)
	assert.Equal(t, "/ws", cfg.Server.WebSocketPath)
	assert.Equal(t, 50, cfg.Server.RecentLines)
	assert.Equal(t, "/metrics", cfg.Prometheus.Path)
	assert.Equal(t, 5, cfg.Prometheus.Interval)
	assert.Equal(t, "ka9q_rtty", cfg.Prometheus.Pushgateway.Job)
	assert.Equal(t, 60, cfg.Prometheus.Pushgateway.Interval)
	assert.Equal(t, "rtty", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 60, cfg.MQTT.PublishInterval)
	assert.Equal(t, "transcripts", cfg.Transcript.Dir)
	assert.Equal(t, "utf-8", cfg.Transcript.Charset)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestParseConfigDecoderParams(t *testing.T) {
	data := `
decoder:
  params:
    baud: 50
    mark_freq: 1275
    space_freq: 1445
    inverted: true
audio:
  source: portaudio
  sample_rate: 48000
`
	cfg, err := ParseConfig([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Decoder.Params["baud"])
	assert.Equal(t, true, cfg.Decoder.Params["inverted"])
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
}

func TestParseConfigErrors(t *testing.T) {
	cases := map[string]string{
		"bad yaml":           "audio: [",
		"unknown source":     "audio:\n  source: alsa\n",
		"rtp without group":  "audio:\n  source: rtp\n",
		"wav without path":   "audio:\n  source: wav\n",
		"negative rate":      "audio:\n  source: portaudio\n  sample_rate: -1\n",
		"bad baud":           "decoder:\n  params:\n    baud: -5\naudio:\n  source: portaudio\n",
		"baud not a number":  "decoder:\n  params:\n    baud: fast\naudio:\n  source: portaudio\n",
		"mark above nyquist": "decoder:\n  params:\n    mark_freq: 30000\naudio:\n  source: portaudio\n",
		"ws path":            "audio:\n  source: portaudio\nserver:\n  websocket_path: ws\n",
		"mqtt broker":        "audio:\n  source: portaudio\nmqtt:\n  enabled: true\n",
		"mqtt qos":           "audio:\n  source: portaudio\nmqtt:\n  enabled: true\n  broker: tcp://localhost:1883\n  qos: 3\n",
		"pushgateway url":    "audio:\n  source: portaudio\nprometheus:\n  pushgateway:\n    enabled: true\n",
		"charset":            "audio:\n  source: portaudio\ntranscript:\n  enabled: true\n  charset: ebcdic\n",
		"log level":          "audio:\n  source: portaudio\nlogging:\n  level: loud\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestParseConfigWAVSkipsRateCheck(t *testing.T) {
	// The file's own rate is used, so a mark above the default Nyquist is not rejected here
	data := "decoder:\n  params:\n    mark_freq: 30000\naudio:\n  source: wav\n  wav:\n    path: in.wav\n"
	cfg, err := ParseConfig([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "in.wav", cfg.Audio.WAV.Path)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio:\n  source: portaudio\nlogging:\n  level: debug\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "portaudio", cfg.Audio.Source)
	assert.Equal(t, "debug", cfg.Logging.Level)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
