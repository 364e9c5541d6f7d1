package converter

import (
	"github.com/james-see/w4on2/pkg/format"
	"github.com/james-see/w4on2/pkg/song"
)

type mapperTrack struct {
	// active is what the runtime currently has, want what the song config
	// asks for.
	active, want song.TrackConfig
	velocity     uint8
	key          uint8
	pan, wantPan song.Pan
}

// EventMapper turns MIDI channel messages into events, sending instrument
// parameters only when they differ from what the runtime already has.
type EventMapper struct {
	tracks [song.TrackCount]mapperTrack
}

// NewEventMapper returns a mapper for the instruments in conf.
func NewEventMapper(conf song.Config) *EventMapper {
	m := &EventMapper{}
	for i := range m.tracks {
		m.tracks[i] = mapperTrack{
			active:   song.DefaultTrackConfig(),
			want:     conf.Channels[i],
			velocity: format.VelocityMax,
			pan:      song.Stereo,
			wantPan:  song.Stereo,
		}
	}
	return m
}

// sync appends a setter for every instrument parameter of ch that the
// runtime does not have yet.
func (m *EventMapper) sync(into []format.Event, ch uint8) []format.Event {
	t := &m.tracks[ch]
	w, a := &t.want, &t.active
	if a.Channel != w.Channel {
		into = append(into, format.SetFlags(w.Channel.Flags()))
		a.Channel = w.Channel
	}
	if a.Volume != w.Volume {
		into = append(into, format.SetVolume(w.Volume))
		a.Volume = w.Volume
	}
	if a.ADSR != w.ADSR {
		into = append(into, format.SetADSR(w.ADSR))
		a.ADSR = w.ADSR
	}
	if a.Arpeggio != w.Arpeggio {
		into = append(into, format.SetArpeggio(w.Arpeggio))
		a.Arpeggio = w.Arpeggio
	}
	if a.Portamento != w.Portamento {
		into = append(into, format.SetPortamento(w.Portamento))
		a.Portamento = w.Portamento
	}
	if a.PitchEnv != w.PitchEnv {
		into = append(into, format.SetPitchEnv(w.PitchEnv))
		a.PitchEnv = w.PitchEnv
	}
	if a.Vibrato != w.Vibrato {
		into = append(into, format.SetVibrato(w.Vibrato))
		a.Vibrato = w.Vibrato
	}
	return into
}

// NoteOn appends the events that start key on MIDI channel ch.
func (m *EventMapper) NoteOn(into []format.Event, ch, key, velocity uint8) []format.Event {
	into = m.sync(into, ch)
	t := &m.tracks[ch]
	t.key = key
	if t.velocity != velocity {
		t.velocity = velocity
		into = append(into, format.SetVelocity(velocity))
	}
	if t.pan != t.wantPan {
		t.pan = t.wantPan
		into = append(into, format.SetPan(t.wantPan))
	}
	return append(into, format.NoteOn(key))
}

// NoteOff appends the events that release key on MIDI channel ch. Only the
// most recent key releases the channel; the runtime cannot release single
// keys of a chord.
func (m *EventMapper) NoteOff(into []format.Event, ch, key uint8) []format.Event {
	into = m.sync(into, ch)
	if m.tracks[ch].key == key {
		into = append(into, format.NotesOff())
	}
	return into
}

// Pan records a pan controller value for ch. It takes effect with the next
// note.
func (m *EventMapper) Pan(ch, value uint8) {
	m.tracks[ch].wantPan = song.PanFromController(value)
}
