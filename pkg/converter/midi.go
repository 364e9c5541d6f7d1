package converter

import (
	"bytes"
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/w4on2/pkg/format"
	"github.com/james-see/w4on2/pkg/song"
)

var ErrDuplicateTrackName = errors.New("midi track name already set")

// MIDI meta event types.
const (
	metaTrackName     = 0x03
	metaEndOfTrack    = 0x2f
	metaTempo         = 0x51
	metaTimeSignature = 0x58
)

const controllerPan = 10

// ParseMIDI parses a Standard MIDI File.
func ParseMIDI(data []byte) (*smf.SMF, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}
	return s, nil
}

// metaEvent splits a raw meta message (FF type length data) into its type
// and data. The length is a variable length quantity.
func metaEvent(msg []byte) (typ byte, data []byte, ok bool) {
	if len(msg) < 3 || msg[0] != 0xff {
		return 0, nil, false
	}
	length := 0
	for i := 2; i < len(msg) && i < 6; i++ {
		length = length<<7 | int(msg[i]&0x7f)
		if msg[i]&0x80 != 0 {
			continue
		}
		if i+1+length > len(msg) {
			return 0, nil, false
		}
		return msg[1], msg[i+1 : i+1+length], true
	}
	return 0, nil, false
}

// trackEvents maps every channel message of s onto tick aligned events,
// one event list per MIDI channel. Empty channels are dropped.
func (c *Converter) trackEvents(s *smf.SMF, timing *Timing) ([][]format.Event, error) {
	var (
		tracks   [song.TrackCount][]format.Event
		lastTick [song.TrackCount]uint64
		mapper   = NewEventMapper(c.config)
		buf      []format.Event
	)

	for ti, track := range s.Tracks {
		var trackName string
		hasName := false
		var midiTicks uint64

		for _, ev := range track {
			midiTicks += uint64(ev.Delta)
			msg := []byte(ev.Message)
			if len(msg) == 0 {
				continue
			}

			if typ, data, ok := metaEvent(msg); ok {
				var err error
				switch typ {
				case metaTempo:
					if len(data) < 3 {
						return nil, stageErr(StageParse, fmt.Errorf("short tempo event in track %d", ti))
					}
					err = timing.SetTempo(uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2]))
				case metaTimeSignature:
					if len(data) < 4 {
						return nil, stageErr(StageParse, fmt.Errorf("short time signature event in track %d", ti))
					}
					err = timing.SetTimeSignature(TimeSignature{data[0], data[1], data[2], data[3]})
				case metaTrackName:
					if hasName {
						return nil, stageErr(StageMap, fmt.Errorf("%w: track %d was %q", ErrDuplicateTrackName, ti, trackName))
					}
					trackName, hasName = string(data), true
				case metaEndOfTrack:
				default:
					c.logger.Warn("unhandled MIDI event", "track", ti, "tick", midiTicks, "meta", fmt.Sprintf("%#02x", typ))
				}
				if err != nil {
					return nil, stageErr(StageTiming, err)
				}
				continue
			}

			status := msg[0]
			if status >= 0xf0 {
				c.logger.Warn("unhandled MIDI event", "track", ti, "tick", midiTicks, "status", fmt.Sprintf("%#02x", status))
				continue
			}
			if len(msg) < 3 {
				continue
			}
			ch := status & 0x0f

			buf = buf[:0]
			switch status & 0xf0 {
			case 0x90:
				// A note on without velocity is a note off.
				if msg[2] == 0 {
					buf = mapper.NoteOff(buf, ch, msg[1])
				} else {
					buf = mapper.NoteOn(buf, ch, msg[1], msg[2])
				}
			case 0x80:
				buf = mapper.NoteOff(buf, ch, msg[1])
			case 0xb0:
				if msg[1] == controllerPan {
					mapper.Pan(ch, msg[2])
				}
			}
			if len(buf) == 0 {
				continue
			}

			ticks, err := timing.Ticks(midiTicks)
			if err != nil {
				return nil, stageErr(StageTiming, err)
			}
			if ticks > lastTick[ch] {
				tracks[ch] = appendDelta(tracks[ch], ticks-lastTick[ch])
				lastTick[ch] = ticks
			}
			tracks[ch] = append(tracks[ch], buf...)
		}
		if hasName {
			c.logger.Debug("read MIDI track", "track", ti, "name", trackName, "events", len(track))
		}
	}

	c.logger.Info("timing inaccuracy", "ticks", timing.Inaccuracy())

	var out [][]format.Event
	for _, t := range tracks {
		if len(t) > 0 {
			out = append(out, t)
		}
	}
	return out, nil
}

// appendDelta appends a wait of d ticks, split into as many deltas as a
// delta's range needs.
func appendDelta(events []format.Event, d uint64) []format.Event {
	for ; d > format.MaxDelta; d -= format.MaxDelta {
		events = append(events, format.Delta(format.MaxDelta))
	}
	if d > 0 {
		events = append(events, format.Delta(uint32(d)))
	}
	return events
}

// fuseNotesOff replaces every NotesOff that directly follows a Delta with a
// single DeltaNotesOff. Empty tracks are dropped.
func fuseNotesOff(tracks [][]format.Event) [][]format.Event {
	var out [][]format.Event
	for _, t := range tracks {
		if len(t) == 0 {
			continue
		}
		fused := make([]format.Event, 0, len(t))
		for _, ev := range t {
			if ev.Kind == format.KindNotesOff && len(fused) > 0 {
				if last := &fused[len(fused)-1]; last.Kind == format.KindDelta {
					*last = format.DeltaNotesOff(last.Ticks)
					continue
				}
			}
			fused = append(fused, ev)
		}
		out = append(out, fused)
	}
	return out
}
