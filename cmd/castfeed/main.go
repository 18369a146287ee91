// castfeed streams a synthetic test signal (moving colour bars and a sine
// tone) into a running receiver, standing in for the decode process.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"image/color"
	"math"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/castreceiver/internal/audio"
	"github.com/example/castreceiver/internal/ingest"
	"github.com/example/castreceiver/internal/logging"
	"github.com/example/castreceiver/internal/video"
	"golang.org/x/net/websocket"
)

var bars = []color.RGBA{
	{R: 255, G: 255, B: 255, A: 255},
	{R: 255, G: 255, B: 0, A: 255},
	{R: 0, G: 255, B: 255, A: 255},
	{R: 0, G: 255, B: 0, A: 255},
	{R: 255, G: 0, B: 255, A: 255},
	{R: 255, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 255, A: 255},
	{R: 0, G: 0, B: 0, A: 255},
}

func main() {
	mode := flag.String("mode", "ws", "Transport: ws or udp")
	addr := flag.String("addr", "ws://127.0.0.1:8080/ingest", "Receiver address (ws URL or host:port for udp)")
	width := flag.Int("width", 640, "Video width")
	height := flag.Int("height", 360, "Video height")
	fps := flag.Int("fps", 30, "Video frame rate")
	rate := flag.Int("rate", audio.DefaultFormat.SampleRate, "Audio sample rate")
	channels := flag.Int("channels", audio.DefaultFormat.Channels, "Audio channel count")
	sampleFormat := flag.String("sample-format", audio.DefaultFormat.SampleFormat.String(), "Audio sample format (f32le, s16le)")
	tone := flag.Float64("tone", 440, "Tone frequency in Hz")
	still := flag.String("still", "", "Send this image once instead of colour bars (audio-only cast with artwork)")
	duration := flag.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	flag.Parse()

	sf, err := audio.ParseSampleFormat(*sampleFormat)
	if err != nil {
		logging.Fatalf("%v", err)
	}
	format := audio.Format{SampleRate: *rate, Channels: *channels, SampleFormat: sf}
	if err := format.Validate(); err != nil {
		logging.Fatalf("%v", err)
	}
	if *fps <= 0 {
		logging.Fatalf("fps must be positive")
	}

	send, closeFn, err := dial(*mode, *addr)
	if err != nil {
		logging.Fatalf("Connect to %s: %v", *addr, err)
	}
	defer closeFn()
	logging.Infof("Streaming %dx%d@%d and %s to %s (%s)", *width, *height, *fps, format, *addr, *mode)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if *still != "" {
		data, err := os.ReadFile(*still)
		if err != nil {
			logging.Fatalf("Read still: %v", err)
		}
		if err := send(ingest.EncodeStill(data)); err != nil {
			logging.Fatalf("Send still: %v", err)
		}
		logging.Infof("Sent still %s (%d bytes)", *still, len(data))
	}

	gen := &toneGenerator{format: format, freq: *tone}
	samplesPerFrame := format.SampleRate / *fps

	ticker := time.NewTicker(time.Second / time.Duration(*fps))
	defer ticker.Stop()

	var frames int
	for {
		select {
		case <-ctx.Done():
			logging.Infof("Sent %d frames", frames)
			return
		case <-ticker.C:
		}

		if err := send(ingest.EncodeAudio(gen.next(samplesPerFrame))); err != nil {
			logging.Fatalf("Send audio: %v", err)
		}
		frames++
		if *still != "" {
			continue
		}
		msg, err := ingest.EncodeVideo(colourBars(*width, *height, frames))
		if err != nil {
			logging.Fatalf("Encode frame: %v", err)
		}
		if err := send(msg); err != nil {
			logging.Fatalf("Send frame: %v", err)
		}
		if frames%(*fps*5) == 0 {
			logging.Infof("Sent %d frames", frames)
		}
	}
}

func dial(mode, addr string) (func([]byte) error, func() error, error) {
	switch mode {
	case "ws":
		ws, err := websocket.Dial(addr, "", "http://localhost/")
		if err != nil {
			return nil, nil, err
		}
		ws.PayloadType = websocket.BinaryFrame
		return func(msg []byte) error { return ingest.WriteMessage(ws, msg) }, ws.Close, nil

	case "udp":
		raddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, nil, err
		}
		conn, err := net.DialUDP("udp", nil, raddr)
		if err != nil {
			return nil, nil, err
		}
		conn.SetWriteBuffer(8 * 1024 * 1024)
		send := func(msg []byte) error {
			for _, pkt := range ingest.Fragment(msg, ingest.MaxDatagramPayload) {
				if _, err := conn.Write(pkt); err != nil {
					return err
				}
			}
			return nil
		}
		return send, conn.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown mode %q", mode)
}

// colourBars draws vertical bars scrolled by n columns as a YUV420P frame.
func colourBars(width, height, n int) video.Frame {
	cw, ch := video.ChromaSize(width, height)
	f := video.Frame{
		Y:       make([]byte, width*height),
		U:       make([]byte, cw*ch),
		V:       make([]byte, cw*ch),
		YStride: width,
		UStride: cw,
		VStride: cw,
		Width:   width,
		Height:  height,
	}

	barAt := func(x int) color.RGBA {
		i := ((x + n*4) * len(bars) / width) % len(bars)
		return bars[i]
	}
	for x := 0; x < width; x++ {
		c := barAt(x)
		y, _, _ := color.RGBToYCbCr(c.R, c.G, c.B)
		for row := 0; row < height; row++ {
			f.Y[row*width+x] = y
		}
	}
	for x := 0; x < cw; x++ {
		c := barAt(x * 2)
		_, cb, cr := color.RGBToYCbCr(c.R, c.G, c.B)
		for row := 0; row < ch; row++ {
			f.U[row*cw+x] = cb
			f.V[row*cw+x] = cr
		}
	}
	return f
}

type toneGenerator struct {
	format audio.Format
	freq   float64
	phase  float64
}

// next returns n frames of interleaved sine samples at -12 dBFS.
func (g *toneGenerator) next(n int) []byte {
	bps := g.format.SampleFormat.BytesPerSample()
	out := make([]byte, n*g.format.BytesPerFrame())
	step := 2 * math.Pi * g.freq / float64(g.format.SampleRate)

	off := 0
	for i := 0; i < n; i++ {
		v := 0.25 * math.Sin(g.phase)
		g.phase = math.Mod(g.phase+step, 2*math.Pi)
		for c := 0; c < g.format.Channels; c++ {
			switch g.format.SampleFormat {
			case audio.SampleFormatS16:
				binary.LittleEndian.PutUint16(out[off:], uint16(int16(v*math.MaxInt16)))
			default:
				binary.LittleEndian.PutUint32(out[off:], math.Float32bits(float32(v)))
			}
			off += bps
		}
	}
	return out
}
