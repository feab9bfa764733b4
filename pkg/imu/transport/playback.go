package transport

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/loopholelabs/logging/types"
)

// Playback replays a recorded byte stream from a file as if it were a live
// device, at no wall-clock rate. Writes are ignored; timing-sensitive code
// will not work against it.
type Playback struct {
	path string
	log  types.Logger

	mu        sync.Mutex
	connected bool
	chunks    chan Chunk
	cancel    func()
}

// NewPlayback returns a transport replaying the file at path.
func NewPlayback(path string, log types.Logger) *Playback {
	return &Playback{path: path, log: log}
}

func (p *Playback) Kind() Kind               { return KindPlayback }
func (p *Playback) HasRealTimeChannel() bool { return false }
func (p *Playback) Chunks() <-chan Chunk     { return p.chunks }
func (p *Playback) Target() string           { return p.path }

func (p *Playback) Connect(ctx context.Context) error {
	f, err := os.Open(p.path)
	if err != nil {
		return err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	chunks := make(chan Chunk, 64)

	p.mu.Lock()
	p.chunks = chunks
	p.cancel = cancel
	p.connected = true
	p.mu.Unlock()

	go func() {
		defer close(chunks)
		defer f.Close()
		buf := make([]byte, 4096)
		for {
			n, err := f.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case chunks <- Chunk{Data: data, Timestamp: time.Now().UnixNano()}:
				case <-readCtx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF && p.log != nil {
					p.log.Error().Err(err).Str("path", p.path).Msg("playback read failed")
				}
				return
			}
		}
	}()
	return nil
}

func (p *Playback) WriteFrame(_ []byte) error {
	if p.log != nil {
		p.log.Warn().Str("path", p.path).Msg("ignoring write to playback transport")
	}
	return nil
}

func (p *Playback) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil
	}
	p.connected = false
	p.cancel()
	return nil
}
