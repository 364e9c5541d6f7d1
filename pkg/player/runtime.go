// Package player runs compiled w4on2 songs: Runtime interprets the event
// byte-code and turns instrument state into tone calls every tick, Player
// walks the song's tracks and feeds events to the Runtime in time.
package player

import (
	"github.com/james-see/w4on2/pkg/format"
	"github.com/james-see/w4on2/pkg/song"
)

// ToneGenerator receives the tone calls of a Runtime. The arguments are
// packed as for the WASM-4 tone function; *apu.APU implements it.
type ToneGenerator interface {
	Tone(frequency, duration, volume, flags uint32)
}

// wasm4VolumeMax is the loudest volume of a tone call.
const wasm4VolumeMax = 100

const noActiveTrack = 0xff

// track is the instrument state of one track, set by events.
type track struct {
	flags      uint8
	volume     uint8
	velocity   uint8
	a, d, s, r uint8
	peOffset   int8
	peDuration uint8
	arpRate    uint8
	portamento uint8
	vibSpeed   uint8
	vibDepth   uint8
}

// channel is one chip channel, played by whichever track last started a
// note on it.
type channel struct {
	// Reset when a note starts from silence.
	firstTriggerTicks uint16
	// Reset on every note on.
	lastTriggerTicks uint8
	activeTrack      uint8
	keyCount         uint8
	// Held keys, oldest first. After a release keys[0] is the released key.
	keys [format.MaxNotes]uint8
}

// Runtime is the event interpreter. It is not safe for concurrent use.
type Runtime struct {
	out      ToneGenerator
	tracks   [format.TrackCount]track
	channels [format.ChannelCount]channel
}

// NewRuntime returns a Runtime with every track at its default instrument.
func NewRuntime(out ToneGenerator) *Runtime {
	rt := &Runtime{out: out}
	def := song.DefaultTrackConfig()
	for i := range rt.tracks {
		rt.tracks[i] = track{
			flags:    def.Channel.Flags(),
			volume:   def.Volume,
			velocity: format.VelocityMax,
			a:        def.ADSR.Attack(),
			d:        def.ADSR.Decay(),
			s:        def.ADSR.Sustain(),
			r:        def.ADSR.Release(),
		}
	}
	for i := range rt.channels {
		rt.channels[i].activeTrack = noActiveTrack
	}
	return rt
}

func ramp(ticks, duration, from, to int32) int32 {
	switch {
	case duration == 0 || ticks >= duration:
		return to
	case ticks <= 0:
		return from
	}
	return from + (to-from)*ticks/duration
}

// ramp2 returns the ramp at ticks and at the tick after.
func ramp2(ticks, duration, from, to int32) (int32, int32) {
	return ramp(ticks, duration, from, to), ramp(ticks+1, duration, from, to)
}

// triangle maps a phase in 0..0xffff to -peak..peak.
func triangle(phase uint32, peak int32) int32 {
	if phase < 0x7fff {
		return int32(2*int64(peak)*int64(phase)/0x7fff) - peak
	}
	return int32(2*int64(peak)*int64(0xffff-phase)/0x7fff) - peak
}

// bentNote packs a pitch in 1/256 semitones as a note-mode frequency: the
// note in the low byte, the bend in the high byte.
func bentNote(pitch int32) uint32 {
	p := uint32(pitch)
	return (p>>8 | p<<8) & 0xffff
}

// Tick issues this tick's tone for every active channel.
func (rt *Runtime) Tick() {
	for ci := range rt.channels {
		ch := &rt.channels[ci]
		if ch.activeTrack >= format.TrackCount {
			continue
		}
		t := &rt.tracks[ch.activeTrack]
		flags := uint32(t.flags) | 0x40

		velUndiv := uint32(t.volume) * uint32(t.velocity)
		peakAmp := int32(wasm4VolumeMax * velUndiv / (song.VolumeMax * format.VelocityMax) & 0xff)
		susAmp := int32(wasm4VolumeMax * velUndiv * uint32(t.s) / (song.VolumeMax * format.VelocityMax * song.SustainMax) & 0xff)

		if ch.keyCount > 0 {
			count := uint16(ch.keyCount)
			keyI := count - 1
			if t.arpRate > 0 {
				keyI = ch.firstTriggerTicks / uint16(t.arpRate) % count
			}
			key := int32(ch.keys[keyI])
			prevKey := int32(ch.keys[(keyI+count-1)%count])

			// Arpeggios restart the envelope on every arpeggiated note.
			keyTicks := ch.firstTriggerTicks
			if t.arpRate > 0 && ch.keyCount >= 2 {
				keyTicks = ch.firstTriggerTicks % uint16(t.arpRate)
			}

			var fromVol, toVol int32
			if int32(keyTicks) < int32(t.a) {
				fromVol, toVol = ramp2(int32(keyTicks), int32(t.a), 0, peakAmp)
			} else {
				fromVol, toVol = ramp2(int32(keyTicks)-int32(t.a), int32(t.d), peakAmp, susAmp)
			}

			// Pitch in 1/256 semitones.
			portaTicks := uint16(ch.lastTriggerTicks)
			if t.arpRate > 0 {
				portaTicks = keyTicks
			}
			fromPitch, toPitch := ramp2(int32(portaTicks), int32(t.portamento), prevKey<<8, key<<8)
			peFrom, peTo := ramp2(int32(keyTicks), int32(t.peDuration), int32(t.peOffset)*256, 0)
			fromPitch += peFrom
			toPitch += peTo

			speed := uint32(t.vibSpeed) << 6
			depth := int32(t.vibDepth) << 2
			fromPitch += triangle((0x3fff+uint32(portaTicks)*speed)&0xffff, depth)
			toPitch += triangle((0x3fff+(uint32(portaTicks)+1)*speed)%0xffff, depth)

			freq := bentNote(fromPitch) | bentNote(toPitch)<<16

			// A one tick linear tone. Decay ramps between two absolute
			// volumes, but a zero peak means full volume to the chip, so a
			// ramp up from silence uses the attack instead.
			if fromVol != 0 {
				rt.out.Tone(freq, 1<<16, uint32(toVol)|uint32(fromVol)<<8, flags)
			} else if toVol != 0 {
				rt.out.Tone(freq, 1<<24, uint32(toVol)|uint32(toVol)<<8, flags)
			}
		} else if ch.firstTriggerTicks == 0 {
			// The chip handles the release ramp on its own.
			rt.out.Tone(uint32(ch.keys[0]), uint32(t.r)<<8, uint32(susAmp), flags)
		}

		if ch.firstTriggerTicks < 0xffff {
			ch.firstTriggerTicks++
		}
		if ch.lastTriggerTicks < 0xff {
			ch.lastTriggerTicks++
		}
	}
}

// FeedEvent applies the event at the start of data to track ti and returns
// its encoded size. Deltas are left to the Player and only sized here. It
// returns 0 for an unknown opcode.
func (rt *Runtime) FeedEvent(ti int, data []byte) int {
	t := &rt.tracks[ti]
	ch := &rt.channels[t.flags&0x3]

	op := data[0]
	switch {
	case op == format.OpLongDelta, op == format.OpLongDeltaNotesOff:
		return 3
	case op < format.OpNoteOn:
		return 1
	case op < format.OpNotesOff:
		if uint8(ti) != ch.activeTrack {
			ch.activeTrack = uint8(ti)
			ch.keyCount = 0
		}
		if ch.keyCount >= format.MaxNotes {
			copy(ch.keys[:], ch.keys[1:])
			ch.keyCount--
		}
		if ch.keyCount == 0 {
			ch.firstTriggerTicks = 0
		}
		ch.keys[ch.keyCount] = op - format.OpNoteOn
		ch.keyCount++
		ch.lastTriggerTicks = 0
		return 1
	case op == format.OpNotesOff:
		if ch.keyCount > 0 {
			key := ch.keys[ch.keyCount-1]
			if t.arpRate > 0 {
				key = ch.keys[ch.firstTriggerTicks/uint16(t.arpRate)%uint16(ch.keyCount)]
			}
			ch.keys[0] = key
			ch.keyCount = 0
			ch.firstTriggerTicks = 0
		}
		return 1
	case op == format.OpSetFlags:
		t.flags = data[1]
		return 2
	case op == format.OpSetVolume:
		t.volume = data[1]
		return 2
	case op < format.OpSetVelocity:
		t.flags = t.flags&^0x30 | (op-format.OpSetPan)<<4
		return 1
	case op == format.OpSetVelocity:
		t.velocity = data[1]
		return 2
	case op == format.OpSetADSR:
		t.a, t.d, t.s, t.r = data[1], data[2], data[3], data[4]
		return 5
	case op == format.OpSetA:
		t.a = data[1]
		return 2
	case op == format.OpSetD:
		t.d = data[1]
		return 2
	case op == format.OpSetS:
		t.s = data[1]
		return 2
	case op == format.OpSetR:
		t.r = data[1]
		return 2
	case op == format.OpSetPitchEnv:
		t.peOffset, t.peDuration = int8(data[1]), data[2]
		return 3
	case op == format.OpSetArpRate:
		t.arpRate = data[1]
		return 2
	case op == format.OpSetPortamento:
		t.portamento = data[1]
		return 2
	case op == format.OpSetVibrato:
		t.vibSpeed, t.vibDepth = data[1], data[2]
		return 3
	}
	return 0
}
