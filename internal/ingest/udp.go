package ingest

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/example/castreceiver/internal/logging"
)

// Datagram packet types. A message that fits one datagram is sent as
// packetComplete; larger ones as one packetStart followed by continuations.
//
//	packetStart:        type(1) | total size u32 | payload
//	packetContinuation: type(1) | payload
//	packetComplete:     type(1) | size u32 | payload
const (
	packetStart        = 0
	packetContinuation = 1
	packetComplete     = 2
)

// MaxDatagramPayload keeps fragments under a typical path MTU.
const MaxDatagramPayload = 1200

// Fragment splits msg into datagrams for the UDP ingest.
func Fragment(msg []byte, maxPayload int) [][]byte {
	if len(msg) <= maxPayload {
		pkt := make([]byte, 5+len(msg))
		pkt[0] = packetComplete
		binary.LittleEndian.PutUint32(pkt[1:5], uint32(len(msg)))
		copy(pkt[5:], msg)
		return [][]byte{pkt}
	}

	var pkts [][]byte
	n := min(len(msg), maxPayload)
	first := make([]byte, 5+n)
	first[0] = packetStart
	binary.LittleEndian.PutUint32(first[1:5], uint32(len(msg)))
	copy(first[5:], msg[:n])
	pkts = append(pkts, first)

	for rest := msg[n:]; len(rest) > 0; {
		n = min(len(rest), maxPayload)
		pkt := make([]byte, 1+n)
		pkt[0] = packetContinuation
		copy(pkt[1:], rest[:n])
		pkts = append(pkts, pkt)
		rest = rest[n:]
	}
	return pkts
}

// reassembler rebuilds messages from datagrams. A lost fragment makes the
// partial message be discarded at the next start packet.
type reassembler struct {
	buf      []byte
	expected int
	maxSize  int
}

func newReassembler(maxSize int) *reassembler {
	return &reassembler{maxSize: maxSize}
}

// feed consumes one datagram and returns a complete message when one is
// available. The returned slice is only valid until the next call.
func (r *reassembler) feed(pkt []byte) ([]byte, bool) {
	if len(pkt) < 1 {
		return nil, false
	}

	switch pkt[0] {
	case packetStart:
		if len(pkt) < 5 {
			return nil, false
		}
		size := int(binary.LittleEndian.Uint32(pkt[1:5]))
		if size == 0 || size > r.maxSize {
			logging.Warnf("UDP ingest: message size %d out of range", size)
			r.expected = 0
			return nil, false
		}
		r.expected = size
		r.buf = append(r.buf[:0], pkt[5:]...)

	case packetContinuation:
		if r.expected == 0 {
			logging.Debugf("UDP ingest: continuation without start")
			return nil, false
		}
		r.buf = append(r.buf, pkt[1:]...)

	case packetComplete:
		if len(pkt) < 5 {
			return nil, false
		}
		size := int(binary.LittleEndian.Uint32(pkt[1:5]))
		r.expected = 0
		if len(pkt)-5 < size {
			return nil, false
		}
		return pkt[5 : 5+size], true

	default:
		return nil, false
	}

	if r.expected > 0 && len(r.buf) >= r.expected {
		if len(r.buf) > r.expected {
			logging.Debugf("UDP ingest: got %d bytes, expected %d", len(r.buf), r.expected)
		}
		msg := r.buf[:r.expected]
		r.expected = 0
		return msg, true
	}
	return nil, false
}

// UDPServer receives fragmented ingest messages over UDP.
type UDPServer struct {
	addr string
	sink Sink
}

func NewUDPServer(addr string, sink Sink) *UDPServer {
	return &UDPServer{addr: addr, sink: sink}
}

// Start receives until ctx is cancelled.
func (s *UDPServer) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("resolve UDP ingest address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen UDP: %w", err)
	}
	conn.SetReadBuffer(8 * 1024 * 1024)
	logging.Infof("UDP ingest listening on %s", conn.LocalAddr())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.receiveLoop(ctx, conn)
	return nil
}

// Read error backoff bounds. A socket that keeps failing is retried with
// doubling delays rather than spun on.
const (
	minReadBackoff = 10 * time.Millisecond
	maxReadBackoff = time.Second
)

type datagramReader interface {
	ReadFrom(p []byte) (int, net.Addr, error)
}

func (s *UDPServer) receiveLoop(ctx context.Context, conn datagramReader) {
	r := newReassembler(MaxMessageSize)
	packetBuf := make([]byte, 65535)

	var failures int
	backoff := minReadBackoff
	for {
		n, _, err := conn.ReadFrom(packetBuf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			if failures == 1 || failures%100 == 0 {
				logging.Warnf("UDP ingest read failed (%d in a row): %v", failures, err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxReadBackoff)
			continue
		}
		if failures > 0 {
			logging.Infof("UDP ingest recovered after %d read errors", failures)
			failures = 0
			backoff = minReadBackoff
		}

		msg, ok := r.feed(packetBuf[:n])
		if !ok {
			continue
		}
		if err := Dispatch(s.sink, msg); err != nil {
			logDispatchError(err)
		}
	}
}
