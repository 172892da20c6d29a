package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/ka9q_rtty/audio_extensions/rtty"
)

func dialTextFeed(t *testing.T, h *TextWebSocketHandler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestTextFeedReplay(t *testing.T) {
	h := NewTextWebSocketHandler(2, nil, quietLogger())
	ts := time.Unix(1700000000, 0)
	h.HandleMessage(rtty.Message{Type: rtty.MessageMode, Mode: rtty.ModeRUS})
	h.HandleMessage(rtty.Message{Type: rtty.MessageText, Timestamp: ts, Text: "ONE "})
	h.HandleMessage(rtty.Message{Type: rtty.MessageText, Timestamp: ts, Text: "TWO "})
	h.HandleMessage(rtty.Message{Type: rtty.MessageText, Timestamp: ts, Text: "THREE"})

	conn := dialTextFeed(t, h)

	mode := readWS(t, conn)
	assert.Equal(t, "mode", mode.Type)
	assert.Equal(t, "RUS", mode.Mode)

	// Only the most recent two fragments are kept
	first := readWS(t, conn)
	assert.Equal(t, "text", first.Type)
	assert.Equal(t, "TWO ", first.Text)
	assert.Equal(t, int64(1700000000), first.Timestamp)
	assert.Equal(t, "THREE", readWS(t, conn).Text)
}

func TestTextFeedBroadcast(t *testing.T) {
	metrics := NewPrometheusMetrics(prometheus.NewRegistry())
	h := NewTextWebSocketHandler(10, metrics, quietLogger())
	conn := dialTextFeed(t, h)

	assert.Equal(t, "LAT", readWS(t, conn).Mode)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	h.HandleMessage(rtty.Message{Type: rtty.MessageText, Timestamp: time.Now(), Text: "CQ"})
	h.HandleMessage(rtty.Message{Type: rtty.MessageLevel, MarkEnergy: 3, SpaceEnergy: 1})
	h.HandleMessage(rtty.Message{Type: rtty.MessageMode, Mode: rtty.ModeFIGS})
	h.BroadcastStatus(map[string]int{"chars": 2})

	assert.Equal(t, "CQ", readWS(t, conn).Text)
	level := readWS(t, conn)
	assert.Equal(t, "level", level.Type)
	assert.Equal(t, 3.0, level.Mark)
	assert.Equal(t, 1.0, level.Space)
	assert.Equal(t, "FIGS", readWS(t, conn).Mode)
	assert.Equal(t, "status", readWS(t, conn).Type)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.wsClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.wsMessagesSent.WithLabelValues("text")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.wsMessagesSent.WithLabelValues("mode")))

	h.Close()
	assert.Zero(t, h.ClientCount())
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestTextFeedClientDisconnect(t *testing.T) {
	h := NewTextWebSocketHandler(10, nil, quietLogger())
	conn := dialTextFeed(t, h)
	readWS(t, conn)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
