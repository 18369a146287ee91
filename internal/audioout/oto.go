//go:build !headless

package audioout

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/example/castreceiver/internal/audio"
	"github.com/example/castreceiver/internal/logging"
)

// bufferSize is the hardware-side latency oto keeps queued.
const bufferSize = 40 * time.Millisecond

// Player feeds the system audio device from a Source. oto allows one
// context per process, so create one Player per receiver.
type Player struct {
	ctx    *oto.Context
	player *oto.Player
	src    Source

	mu      sync.Mutex
	started bool
}

func NewPlayer(format audio.Format, src Source) (*Player, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		BufferSize:   bufferSize,
	}
	switch format.SampleFormat {
	case audio.SampleFormatS16:
		op.Format = oto.FormatSignedInt16LE
	default:
		op.Format = oto.FormatFloat32LE
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	p := &Player{ctx: ctx, src: src}
	p.player = ctx.NewPlayer(p)
	logging.Infof("Audio output open: %s", format)
	return p, nil
}

// Read is called from oto's mixing goroutine. It never returns an error so
// the device keeps pulling silence through gaps in the stream.
func (p *Player) Read(buf []byte) (int, error) {
	p.src.Fill(buf)
	return len(buf), nil
}

func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		p.player.Play()
		p.started = true
	}
}

func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player == nil {
		return nil
	}
	err := p.player.Close()
	p.player = nil
	p.started = false
	if err := p.ctx.Suspend(); err != nil {
		logging.Debugf("suspend audio context: %v", err)
	}
	return err
}
