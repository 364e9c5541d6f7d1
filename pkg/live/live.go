// Package live streams a song's audio as it renders, for real time
// playback.
package live

import (
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/james-see/w4on2/pkg/apu"
	"github.com/james-see/w4on2/pkg/bounce"
)

// Renderer is an io.Reader of signed 16-bit little endian stereo PCM at
// bounce.SampleRate. It renders one tick at a time as it is read and
// produces exactly the samples of bounce.BouncePCM. It is safe to call
// Position while another goroutine reads.
type Renderer struct {
	mu      sync.Mutex
	session *bounce.Session
	tick    []int16
	pending []byte
}

// NewRenderer validates a song and returns a Renderer at its start.
func NewRenderer(blob []byte) (*Renderer, error) {
	s, err := bounce.NewSession(blob)
	if err != nil {
		return nil, err
	}
	return &Renderer{
		session: s,
		tick:    make([]int16, bounce.Channels*bounce.FramesPerTick),
	}, nil
}

func (r *Renderer) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 {
		if !r.session.Next(r.tick) {
			return 0, io.EOF
		}
		r.pending = r.pending[:0]
		for _, s := range r.tick {
			r.pending = binary.LittleEndian.AppendUint16(r.pending, uint16(s))
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// Position returns the number of ticks rendered so far, padding included.
func (r *Renderer) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Ticks()
}

// Elapsed returns Position as time.
func (r *Renderer) Elapsed() time.Duration {
	return time.Duration(r.Position()) * time.Second / apu.TickRate
}
