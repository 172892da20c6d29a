package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pion/rtp"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// rtpReadTimeout bounds each socket read so cancellation is noticed
const rtpReadTimeout = 500 * time.Millisecond

// RTPSource receives PCM audio from a radiod multicast stream
type RTPSource struct {
	conn       *net.UDPConn
	addr       *net.UDPAddr
	ssrc       uint32 // 0 accepts any SSRC
	sampleRate int
	logger     *log.Logger
	metrics    *PrometheusMetrics

	buffer  []byte
	mu      sync.Mutex
	haveSeq bool
	lastSeq uint16
	packets uint64
	gaps    uint64
}

// NewRTPSource joins the multicast group in cfg and returns a source reading from it
func NewRTPSource(cfg RTPConfig, sampleRate int, metrics *PrometheusMetrics, logger *log.Logger) (*RTPSource, error) {
	addr, err := net.ResolveUDPAddr("udp4", cfg.Group)
	if err != nil {
		return nil, fmt.Errorf("invalid multicast group %q: %w", cfg.Group, err)
	}

	var iface *net.Interface
	if cfg.Interface != "" {
		iface, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", cfg.Interface, err)
		}
	}

	conn, err := setupDataSocket(addr, iface, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to setup data socket: %w", err)
	}

	logger.Infof("Audio receiver listening on %s (iface: %v, ssrc: %d)", addr, cfg.Interface, cfg.SSRC)

	return &RTPSource{
		conn:       conn,
		addr:       addr,
		ssrc:       cfg.SSRC,
		sampleRate: sampleRate,
		logger:     logger,
		metrics:    metrics,
		buffer:     make([]byte, 65536),
	}, nil
}

// setupDataSocket creates a UDP socket for receiving multicast data
// This matches ka9q-radio's listen_mcast() behavior
func setupDataSocket(addr *net.UDPAddr, iface *net.Interface, logger *log.Logger) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				// Several decoders may listen to the same radiod stream
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
					sockErr = fmt.Errorf("failed to set SO_REUSEPORT: %w", err)
					return
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					sockErr = fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
					return
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	conn, err := lc.ListenPacket(context.Background(), "udp4", addr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	udpConn := conn.(*net.UDPConn)

	if err := udpConn.SetReadBuffer(1024 * 1024); err != nil {
		logger.Warnf("Failed to set read buffer size: %v", err)
	}

	if !addr.IP.IsMulticast() {
		return udpConn, nil
	}

	p := ipv4.NewPacketConn(udpConn)
	if iface != nil {
		if err := p.JoinGroup(iface, addr); err != nil {
			logger.Warnf("Failed to join multicast group on %s: %v", iface.Name, err)
		}
	} else if err := p.JoinGroup(nil, addr); err != nil {
		logger.Warnf("Failed to join multicast group: %v", err)
	}

	// Also join on loopback for radiod running on this host
	if loopback, err := getLoopbackInterface(); err == nil && loopback != nil {
		if err := p.JoinGroup(loopback, addr); err != nil {
			logger.Debugf("Failed to join multicast group on loopback: %v", err)
		}
	}

	return udpConn, nil
}

// getLoopbackInterface returns the first multicast-capable loopback interface
func getLoopbackInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		if ifaces[i].Flags&net.FlagLoopback != 0 && ifaces[i].Flags&net.FlagUp != 0 {
			return &ifaces[i], nil
		}
	}
	return nil, errors.New("no loopback interface")
}

// ReadChunk returns the samples of the next accepted RTP packet
func (s *RTPSource) ReadChunk(ctx context.Context) ([]int16, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(rtpReadTimeout)); err != nil {
			return nil, err
		}
		n, _, err := s.conn.ReadFromUDP(s.buffer)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return nil, fmt.Errorf("error reading UDP packet: %w", err)
		}

		packet, samples, err := parseRTPAudio(s.buffer[:n])
		if err != nil {
			s.logger.Debugf("Dropping packet: %v", err)
			continue
		}
		if s.ssrc != 0 && packet.SSRC != s.ssrc {
			// Other channels on the same multicast group
			continue
		}

		if gap := s.track(packet.SequenceNumber); gap > 0 {
			s.metrics.RecordRTPGap(gap)
			s.logger.Debugf("RTP sequence gap: %d packets before seq %d", gap, packet.SequenceNumber)
		}
		s.metrics.RecordRTPPacket()

		return samples, nil
	}
}

// track records seq and returns the number of packets missing before it
func (s *RTPSource) track(seq uint16) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packets++
	gap := 0
	if s.haveSeq {
		// uint16 arithmetic handles wraparound; late or duplicate packets look like huge gaps
		if d := seq - s.lastSeq; d > 1 && d < 0x8000 {
			gap = int(d - 1)
			s.gaps += uint64(gap)
		}
	}
	s.haveSeq = true
	s.lastSeq = seq
	return gap
}

// Counters returns the number of accepted packets and missing packets
func (s *RTPSource) Counters() (packets, gaps uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packets, s.gaps
}

// SampleRate returns the configured stream rate
func (s *RTPSource) SampleRate() int {
	return s.sampleRate
}

// Name describes the source
func (s *RTPSource) Name() string {
	return "rtp:" + s.addr.String()
}

// Live reports that chunks may be dropped when the decoder falls behind
func (s *RTPSource) Live() bool {
	return true
}

// Close closes the socket
func (s *RTPSource) Close() error {
	return s.conn.Close()
}

// parseRTPAudio unmarshals an RTP packet carrying big-endian 16-bit PCM
func parseRTPAudio(data []byte) (*rtp.Packet, []int16, error) {
	if len(data) < 12 {
		return nil, nil, fmt.Errorf("packet too small (%d bytes)", len(data))
	}

	packet := &rtp.Packet{}
	if err := packet.Unmarshal(data); err != nil {
		return nil, nil, fmt.Errorf("error parsing RTP packet: %w", err)
	}
	if len(packet.Payload)%2 != 0 {
		return nil, nil, fmt.Errorf("odd PCM payload length %d", len(packet.Payload))
	}

	// The payload aliases the read buffer; conversion copies it
	return packet, bytesToInt16Samples(packet.Payload), nil
}

// bytesToInt16Samples converts big-endian PCM bytes to int16 samples
func bytesToInt16Samples(pcmBytes []byte) []int16 {
	sampleCount := len(pcmBytes) / 2
	samples := make([]int16, sampleCount)
	for i := 0; i < sampleCount; i++ {
		samples[i] = int16(pcmBytes[i*2])<<8 | int16(pcmBytes[i*2+1])
	}
	return samples
}
