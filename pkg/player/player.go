package player

import (
	"encoding/binary"
	"fmt"

	"github.com/james-see/w4on2/pkg/format"
)

// cursor is the read position of one track.
type cursor struct {
	started bool
	// outer indexes the track's pattern list, inner the current pattern.
	outer, inner int
	// Ticks left on the delta at inner; 0 when no delta is pending.
	delay int
}

// Player steps through a serialized song one tick at a time.
type Player struct {
	data    []byte
	header  *format.Header
	cursors []cursor
}

// New validates a serialized song and returns a Player positioned at its
// start.
func New(data []byte) (*Player, error) {
	if _, err := format.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("invalid song: %w", err)
	}
	h, err := format.ParseHeader(data)
	if err != nil {
		return nil, err
	}
	return &Player{
		data:    data,
		header:  h,
		cursors: make([]cursor, len(h.TrackOffsets)),
	}, nil
}

// Tracks returns the number of tracks in the song.
func (p *Player) Tracks() int { return len(p.cursors) }

// Tick feeds every event due on this tick to rt and returns the number of
// tracks that had not finished when the tick started. Call rt.Tick after
// it.
func (p *Player) Tick(rt *Runtime) int {
	active := 0
	for ti := range p.cursors {
		c := &p.cursors[ti]
		trackStart, trackEnd := p.header.TrackBounds(ti)
		if !c.started {
			c.outer, c.started = trackStart, true
		}
		if c.outer < trackEnd {
			active++
		}

		for c.outer < trackEnd {
			ptnStart, ptnEnd := p.header.PatternBounds(int(p.data[c.outer]))
			if c.inner == 0 {
				c.inner = ptnStart
			}
			if c.inner >= ptnEnd {
				c.outer++
				c.inner = 0
				continue
			}

			ticks, size, notesOff, isDelta := delta(p.data[c.inner:])
			if !isDelta {
				c.inner += max(rt.FeedEvent(ti, p.data[c.inner:]), 1)
				continue
			}
			if c.delay == 0 {
				c.delay = ticks
				break
			}
			c.delay--
			if c.delay > 0 {
				break
			}
			c.inner += size
			if notesOff {
				rt.FeedEvent(ti, []byte{format.OpNotesOff})
			}
		}
	}
	return active
}

// delta decodes the delta at the start of b, if there is one.
func delta(b []byte) (ticks, size int, notesOff, ok bool) {
	switch op := b[0]; {
	case op == format.OpLongDelta, op == format.OpLongDeltaNotesOff:
		return int(binary.BigEndian.Uint16(b[1:])) + format.ShortDeltaCount + 1, 3, op == format.OpLongDeltaNotesOff, true
	case op < format.OpShortDeltaNotesOff:
		return int(op-format.OpShortDelta) + 1, 1, false, true
	case op < format.OpNoteOn:
		return int(op-format.OpShortDeltaNotesOff) + 1, 1, true, true
	}
	return 0, 0, false, false
}
