// Package bounce renders w4on2 songs to PCM audio the way the console would
// play them.
package bounce

import (
	"github.com/james-see/w4on2/pkg/apu"
	"github.com/james-see/w4on2/pkg/player"
)

const (
	// SampleRate is the rate of rendered audio, in frames per second.
	SampleRate = 44100
	// Channels is the number of interleaved channels of rendered audio.
	Channels = 2
	// FramesPerTick is the number of frames one tick lasts.
	FramesPerTick = SampleRate / apu.TickRate
	// PaddingTicks of silence come before and after every song.
	PaddingTicks = 5
)

// Session renders a song tick by tick.
type Session struct {
	apu    *apu.APU
	rt     *player.Runtime
	player *player.Player

	lead, tail int
	ticks      int
	done       bool
}

// NewSession validates a song and prepares to render it.
func NewSession(blob []byte) (*Session, error) {
	p, err := player.New(blob)
	if err != nil {
		return nil, err
	}
	a := apu.New(SampleRate)
	return &Session{
		apu:    a,
		rt:     player.NewRuntime(a),
		player: p,
	}, nil
}

// Ticks returns the number of ticks rendered so far, padding included.
func (s *Session) Ticks() int { return s.ticks }

// Next renders one tick of interleaved stereo samples into out, which must
// hold 2*FramesPerTick samples. It returns false once the song and its
// trailing padding are over.
func (s *Session) Next(out []int16) bool {
	playing := false
	switch {
	case s.lead < PaddingTicks:
		s.lead++
	case !s.done:
		playing = true
	case s.tail < PaddingTicks:
		s.tail++
	default:
		return false
	}

	s.rt.Tick()
	s.apu.Tick()
	s.apu.WriteSamples(out, FramesPerTick)
	s.ticks++
	if playing && s.player.Tick(s.rt) == 0 {
		s.done = true
	}
	return true
}

// BouncePCM renders blob to interleaved 16-bit stereo samples at
// SampleRate, with PaddingTicks of silence on both ends.
func BouncePCM(blob []byte) ([]int16, error) {
	s, err := NewSession(blob)
	if err != nil {
		return nil, err
	}
	buf := make([]int16, Channels*FramesPerTick)
	var out []int16
	for s.Next(buf) {
		out = append(out, buf...)
	}
	return out, nil
}
