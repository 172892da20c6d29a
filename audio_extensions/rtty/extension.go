package rtty

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Result message types sent on an extension's result channel
const (
	MessageText  byte = 0x01 // [type:1][timestamp:8][text_length:4][text:length]
	MessageMode  byte = 0x03 // [type:1][mode:1]
	MessageLevel byte = 0x04 // [type:1][mark_energy:8][space_energy:8]
)

// stateInterval is how often mode and level updates are considered
const stateInterval = 250 * time.Millisecond

// Message is a decoded result message
type Message struct {
	Type        byte
	Timestamp   time.Time
	Text        string
	Mode        Mode
	MarkEnergy  float64
	SpaceEnergy float64
}

// EncodeTextMessage builds a text message
func EncodeTextMessage(ts time.Time, text string) []byte {
	msg := make([]byte, 1+8+4+len(text))
	msg[0] = MessageText
	binary.BigEndian.PutUint64(msg[1:9], uint64(ts.Unix()))
	binary.BigEndian.PutUint32(msg[9:13], uint32(len(text)))
	copy(msg[13:], text)
	return msg
}

// EncodeModeMessage builds a mode update message
func EncodeModeMessage(mode Mode) []byte {
	return []byte{MessageMode, byte(mode)}
}

// EncodeLevelMessage builds a signal level message
func EncodeLevelMessage(mark, space float64) []byte {
	msg := make([]byte, 1+8+8)
	msg[0] = MessageLevel
	binary.BigEndian.PutUint64(msg[1:9], math.Float64bits(mark))
	binary.BigEndian.PutUint64(msg[9:17], math.Float64bits(space))
	return msg
}

// ParseMessage decodes a result message
func ParseMessage(msg []byte) (Message, error) {
	if len(msg) == 0 {
		return Message{}, errors.New("empty message")
	}

	switch msg[0] {
	case MessageText:
		if len(msg) < 13 {
			return Message{}, fmt.Errorf("text message too short: %d bytes", len(msg))
		}
		n := binary.BigEndian.Uint32(msg[9:13])
		if uint32(len(msg)-13) < n {
			return Message{}, fmt.Errorf("text message truncated: want %d bytes, have %d", n, len(msg)-13)
		}
		return Message{
			Type:      MessageText,
			Timestamp: time.Unix(int64(binary.BigEndian.Uint64(msg[1:9])), 0),
			Text:      string(msg[13 : 13+n]),
		}, nil

	case MessageMode:
		if len(msg) < 2 {
			return Message{}, errors.New("mode message too short")
		}
		return Message{Type: MessageMode, Mode: Mode(msg[1])}, nil

	case MessageLevel:
		if len(msg) < 17 {
			return Message{}, fmt.Errorf("level message too short: %d bytes", len(msg))
		}
		return Message{
			Type:        MessageLevel,
			MarkEnergy:  math.Float64frombits(binary.BigEndian.Uint64(msg[1:9])),
			SpaceEnergy: math.Float64frombits(binary.BigEndian.Uint64(msg[9:17])),
		}, nil
	}

	return Message{}, fmt.Errorf("unknown message type 0x%02x", msg[0])
}

// chanSource adapts an audio channel to SampleSource
type chanSource struct {
	ch <-chan []int16
}

func (c chanSource) ReadChunk(ctx context.Context) ([]int16, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case chunk, ok := <-c.ch:
		if !ok {
			return nil, io.EOF
		}
		return chunk, nil
	}
}

// Extension runs a streaming session behind the audio extension interface
type Extension struct {
	session *Session
	logger  *log.Logger

	running bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewExtension creates an extension around a new session for cfg
func NewExtension(cfg Config, opts ...Option) (*Extension, error) {
	session, err := NewSession(cfg, opts...)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Extension{session: session, logger: o.logger}, nil
}

// Session returns the underlying session
func (e *Extension) Session() *Session {
	return e.session
}

// Start begins decoding audioChan. Text messages block until resultChan accepts them, so the
// caller must keep reading resultChan until Wait or Stop returns. Mode and level messages are
// skipped while resultChan is full.
func (e *Extension) Start(audioChan <-chan []int16, resultChan chan<- []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("decoder already running")
	}
	e.running = true

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	send := func(msg []byte) {
		select {
		case resultChan <- msg:
		default:
			// Channel full, skip this message
		}
	}

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		defer cancel()
		err := e.session.Run(ctx, chanSource{ch: audioChan}, func(text string) {
			resultChan <- EncodeTextMessage(time.Now(), text)
		})
		if err != nil {
			e.logger.Errorf("Session %s ended: %v", e.session.ID, err)
		}
	}()
	go func() {
		defer e.wg.Done()
		e.stateLoop(ctx, send)
	}()

	e.logger.Infof("Extension started: session %s", e.session.ID)
	return nil
}

// stateLoop reports mode changes and signal levels
func (e *Extension) stateLoop(ctx context.Context, send func([]byte)) {
	ticker := time.NewTicker(stateInterval)
	defer ticker.Stop()

	lastMode := Mode(math.MaxUint8)
	var lastBits uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := e.session.Stats()
			if mode := e.session.Mode(); mode != lastMode {
				send(EncodeModeMessage(mode))
				lastMode = mode
			}
			if st.Bits != lastBits {
				send(EncodeLevelMessage(st.MarkEnergy, st.SpaceEnergy))
				lastBits = st.Bits
			}
		}
	}
}

// Stop cancels the session after its final drain
func (e *Extension) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	return nil
}

// Wait blocks until the session ends on its own, for example when the audio channel closes
func (e *Extension) Wait() {
	e.wg.Wait()
}

// GetName returns the extension name
func (e *Extension) GetName() string {
	return "rtty"
}

// Stats returns the session counters
func (e *Extension) Stats() SessionStats {
	return e.session.Stats()
}
