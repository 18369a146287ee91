package ingest

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/example/castreceiver/internal/logging"
	"golang.org/x/net/websocket"
)

// MaxMessageSize bounds a single ingest message: a 4096x2160 YUV420P frame
// with generous stride padding fits.
const MaxMessageSize = 32 * 1024 * 1024

// StatsFunc returns a JSON-serializable diagnostics snapshot.
type StatsFunc func() any

// WebSocketServer accepts a stream of length-prefixed ingest messages on
// /ingest and serves diagnostics on /stats.
type WebSocketServer struct {
	addr       string
	sink       Sink
	stats      StatsFunc
	httpServer *http.Server
}

func NewWebSocketServer(addr string, sink Sink, stats StatsFunc) *WebSocketServer {
	s := &WebSocketServer{
		addr:  addr,
		sink:  sink,
		stats: stats,
	}
	mux := http.NewServeMux()
	mux.Handle("/ingest", websocket.Handler(s.handleWebSocket))
	mux.HandleFunc("/stats", s.serveStats)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routes for embedding and tests.
func (s *WebSocketServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is cancelled.
func (s *WebSocketServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen websocket ingest: %w", err)
	}
	logging.Infof("WebSocket ingest listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("websocket ingest: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown; Close
	// drops them.
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.httpServer.Close()
	}
	<-errCh
	return nil
}

func (s *WebSocketServer) handleWebSocket(ws *websocket.Conn) {
	defer ws.Close()
	ws.PayloadType = websocket.BinaryFrame
	logging.Infof("Ingest client connected: %s", ws.Request().RemoteAddr)

	var buf []byte
	for {
		var sizeBytes [4]byte
		if _, err := io.ReadFull(ws, sizeBytes[:]); err != nil {
			if err != io.EOF {
				logging.Errorf("Error reading message size: %v", err)
			}
			break
		}

		size := binary.LittleEndian.Uint32(sizeBytes[:])
		if size == 0 || size > MaxMessageSize {
			logging.Errorf("Invalid message size: %d", size)
			break
		}

		if cap(buf) < int(size) {
			buf = make([]byte, size)
		}
		buf = buf[:size]
		if _, err := io.ReadFull(ws, buf); err != nil {
			logging.Errorf("Error reading message: %v", err)
			break
		}

		if err := Dispatch(s.sink, buf); err != nil {
			logDispatchError(err)
		}
	}
	logging.Infof("Ingest client disconnected: %s", ws.Request().RemoteAddr)
}

func (s *WebSocketServer) serveStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.stats()); err != nil {
		logging.Errorf("encode stats: %v", err)
	}
}

// WriteMessage sends one length-prefixed ingest message on a client
// connection.
func WriteMessage(ws *websocket.Conn, msg []byte) error {
	packet := make([]byte, 4+len(msg))
	binary.LittleEndian.PutUint32(packet[0:4], uint32(len(msg)))
	copy(packet[4:], msg)
	return websocket.Message.Send(ws, packet)
}

// logDispatchError keeps session-side failures, which the session reports
// itself, out of the warning log.
func logDispatchError(err error) {
	if errors.Is(err, ErrShortMessage) || errors.Is(err, ErrUnknownKind) || errors.Is(err, ErrUndecodable) {
		logging.Warnf("ingest: malformed message: %v", err)
		return
	}
	logging.Debugf("ingest: %v", err)
}
