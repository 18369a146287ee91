package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/castreceiver/internal/video"
	"golang.org/x/net/websocket"
)

type recordingSink struct {
	mu     sync.Mutex
	audio  [][]byte
	frames []video.Frame
}

func (s *recordingSink) PushAudio(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, bytes.Clone(p))
	return nil
}

func (s *recordingSink) PushVideoFrame(f video.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.Y, f.U, f.V = bytes.Clone(f.Y), bytes.Clone(f.U), bytes.Clone(f.V)
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio), len(s.frames)
}

func testFrame(w, h, pad int) video.Frame {
	cw, ch := video.ChromaSize(w, h)
	f := video.Frame{
		Y:       make([]byte, (w+pad)*h),
		U:       make([]byte, (cw+pad)*ch),
		V:       make([]byte, (cw+pad)*ch),
		YStride: w + pad,
		UStride: cw + pad,
		VStride: cw + pad,
		Width:   w,
		Height:  h,
	}
	for i := range f.Y {
		f.Y[i] = byte(i)
	}
	for i := range f.U {
		f.U[i] = byte(100 + i)
		f.V[i] = byte(200 - i)
	}
	return f
}

func TestVideoRoundTrip(t *testing.T) {
	t.Parallel()
	in := testFrame(5, 3, 3)
	data, err := EncodeVideo(in)
	if err != nil {
		t.Fatal(err)
	}
	if want := videoHeaderSize + 8*3 + 6*2 + 6*2; len(data) != want {
		t.Fatalf("encoded size = %d, want %d", len(data), want)
	}

	msg, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Kind != KindVideo {
		t.Fatalf("kind = %v", msg.Kind)
	}
	out := msg.Video
	if out.Width != 5 || out.Height != 3 || out.YStride != 8 || out.UStride != 6 {
		t.Fatalf("header = %+v", out)
	}
	if !bytes.Equal(out.Y, in.Y) || !bytes.Equal(out.U, in.U) || !bytes.Equal(out.V, in.V) {
		t.Fatal("planes differ after round trip")
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("decoded frame invalid: %v", err)
	}
}

func TestEncodeVideoPadsShortLastRow(t *testing.T) {
	t.Parallel()
	f := testFrame(4, 2, 4)
	// A last row without its trailing padding is a valid frame.
	f.Y = f.Y[:f.YStride+f.Width]
	data, err := EncodeVideo(f)
	if err != nil {
		t.Fatal(err)
	}
	msg, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(msg.Video.Y); got != 16 {
		t.Fatalf("Y plane = %d bytes, want 16", got)
	}
	if !bytes.Equal(msg.Video.Y[12:], []byte{0, 0, 0, 0}) {
		t.Fatalf("padding = %v, want zeros", msg.Video.Y[12:])
	}
}

func TestEncodeVideoRejectsInvalid(t *testing.T) {
	t.Parallel()
	f := testFrame(4, 4, 0)
	f.U = nil
	if _, err := EncodeVideo(f); !errors.Is(err, video.ErrInvalidFrame) {
		t.Fatalf("err = %v, want ErrInvalidFrame", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	full, _ := EncodeVideo(testFrame(4, 4, 0))

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrShortMessage},
		{"unknown kind", []byte{9, 1, 2}, ErrUnknownKind},
		{"short header", []byte{byte(KindVideo), 4, 0, 4}, ErrShortMessage},
		{"truncated planes", full[:len(full)-1], ErrShortMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDispatch(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}

	if err := Dispatch(sink, EncodeAudio([]byte{1, 2, 3})); err != nil {
		t.Fatal(err)
	}
	data, _ := EncodeVideo(testFrame(2, 2, 0))
	if err := Dispatch(sink, data); err != nil {
		t.Fatal(err)
	}
	if err := Dispatch(sink, []byte{0}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v", err)
	}

	if !bytes.Equal(sink.audio[0], []byte{1, 2, 3}) {
		t.Errorf("audio = %v", sink.audio[0])
	}
	if len(sink.frames) != 1 || sink.frames[0].Width != 2 {
		t.Errorf("frames = %+v", sink.frames)
	}
}

func TestFragmentReassemble(t *testing.T) {
	t.Parallel()
	msg := make([]byte, 2500)
	for i := range msg {
		msg[i] = byte(i * 7)
	}

	pkts := Fragment(msg, 1000)
	if len(pkts) != 3 {
		t.Fatalf("got %d packets, want 3", len(pkts))
	}
	if pkts[0][0] != packetStart || pkts[1][0] != packetContinuation || pkts[2][0] != packetContinuation {
		t.Fatalf("packet types = %d %d %d", pkts[0][0], pkts[1][0], pkts[2][0])
	}

	r := newReassembler(MaxMessageSize)
	for i, p := range pkts {
		got, ok := r.feed(p)
		if ok != (i == len(pkts)-1) {
			t.Fatalf("packet %d: complete = %v", i, ok)
		}
		if ok && !bytes.Equal(got, msg) {
			t.Fatal("reassembled message differs")
		}
	}
}

func TestFragmentSingleDatagram(t *testing.T) {
	t.Parallel()
	pkts := Fragment([]byte{1, 2, 3}, MaxDatagramPayload)
	if len(pkts) != 1 || pkts[0][0] != packetComplete {
		t.Fatalf("packets = %v", pkts)
	}
	got, ok := newReassembler(MaxMessageSize).feed(pkts[0])
	if !ok || !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("feed = %v %v", got, ok)
	}
}

func TestReassemblerDropsOrphansAndRestarts(t *testing.T) {
	t.Parallel()
	r := newReassembler(MaxMessageSize)

	if _, ok := r.feed([]byte{packetContinuation, 1, 2}); ok {
		t.Fatal("continuation without start completed a message")
	}

	lost := Fragment(bytes.Repeat([]byte{1}, 30), 10)
	r.feed(lost[0])
	// The tail of the first message is lost; a new start replaces it.
	next := Fragment(bytes.Repeat([]byte{2}, 20), 10)
	r.feed(next[0])
	got, ok := r.feed(next[1])
	if !ok || !bytes.Equal(got, bytes.Repeat([]byte{2}, 20)) {
		t.Fatalf("feed = %v %v", got, ok)
	}
}

func TestReassemblerRejectsOversize(t *testing.T) {
	t.Parallel()
	r := newReassembler(16)
	pkts := Fragment(make([]byte, 40), 10)
	for _, p := range pkts {
		if _, ok := r.feed(p); ok {
			t.Fatal("oversize message completed")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketIngest(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	srv := NewWebSocketServer("", sink, func() any {
		return map[string]int{"frames": 1}
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ingest"
	ws, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	ws.PayloadType = websocket.BinaryFrame

	if err := WriteMessage(ws, EncodeAudio([]byte{4, 5})); err != nil {
		t.Fatal(err)
	}
	data, _ := EncodeVideo(testFrame(6, 4, 2))
	if err := WriteMessage(ws, data); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		a, v := sink.counts()
		return a == 1 && v == 1
	})

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var stats map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats["frames"] != 1 {
		t.Fatalf("stats = %v", stats)
	}
}

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDispatchStill(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	data := EncodeStill(encodePNG(t, 5, 3, color.White))

	if err := Dispatch(sink, data); err != nil {
		t.Fatal(err)
	}
	if len(sink.frames) != 1 {
		t.Fatalf("got %d frames", len(sink.frames))
	}
	f := sink.frames[0]
	if f.Width != 5 || f.Height != 3 {
		t.Fatalf("frame = %dx%d, want 5x3", f.Width, f.Height)
	}
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}
	if len(f.U) != 3*2 {
		t.Fatalf("chroma plane = %d bytes, want 6", len(f.U))
	}
	for i, y := range f.Y {
		if y != 255 {
			t.Fatalf("Y[%d] = %d, want 255", i, y)
		}
	}
	for i := range f.U {
		if f.U[i] != 128 || f.V[i] != 128 {
			t.Fatalf("chroma[%d] = %d,%d, want neutral", i, f.U[i], f.V[i])
		}
	}
}

func TestDecodeStillColour(t *testing.T) {
	t.Parallel()
	red := color.RGBA{R: 255, A: 255}
	f, err := DecodeStill(encodePNG(t, 4, 4, red))
	if err != nil {
		t.Fatal(err)
	}
	wy, wcb, wcr := color.RGBToYCbCr(255, 0, 0)
	if f.Y[0] != wy || f.U[0] != wcb || f.V[0] != wcr {
		t.Fatalf("YCbCr = %d,%d,%d, want %d,%d,%d", f.Y[0], f.U[0], f.V[0], wy, wcb, wcr)
	}
}

func TestDecodeStillRejectsGarbage(t *testing.T) {
	t.Parallel()
	if _, err := DecodeStill([]byte("not an image")); !errors.Is(err, ErrUndecodable) {
		t.Fatalf("err = %v, want ErrUndecodable", err)
	}
	if err := Dispatch(&recordingSink{}, EncodeStill(nil)); !errors.Is(err, ErrUndecodable) {
		t.Fatalf("Dispatch err = %v, want ErrUndecodable", err)
	}
}

type failingReader struct {
	mu    sync.Mutex
	calls int
}

func (f *failingReader) ReadFrom([]byte) (int, net.Addr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 0, nil, errors.New("socket broken")
}

func TestUDPReceiveLoopBacksOffOnReadErrors(t *testing.T) {
	t.Parallel()
	conn := &failingReader{}
	srv := NewUDPServer("", &recordingSink{})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		srv.receiveLoop(ctx, conn)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not stop after cancel")
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	// 10+20+40+80 ms of backoff fits about five reads into 150 ms.
	if conn.calls == 0 || conn.calls > 10 {
		t.Fatalf("read %d times in 150ms, want a handful", conn.calls)
	}
}
