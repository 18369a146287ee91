//go:build headless

package audioout

import (
	"context"
	"sync"

	"github.com/example/castreceiver/internal/audio"
	"github.com/example/castreceiver/internal/logging"
)

// Player stands in for the audio device in headless builds: it drains the
// source at real-time pace and discards the samples.
type Player struct {
	format audio.Format
	src    Source

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPlayer(format audio.Format, src Source) (*Player, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	logging.Infof("Audio output disabled (headless build): %s", format)
	return &Player{format: format, src: src}, nil
}

func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		Discard(ctx, p.src, p.format, DefaultPeriod)
	}()
}

func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	return nil
}
