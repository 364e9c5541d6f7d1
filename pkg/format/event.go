package format

import (
	"fmt"

	"github.com/james-see/w4on2/pkg/song"
)

// Kind identifies the variant of an Event.
type Kind uint8

const (
	KindDelta Kind = iota
	KindDeltaNotesOff
	KindNoteOn
	KindNotesOff
	KindSetFlags
	KindSetVolume
	KindSetPan
	KindSetVelocity
	KindSetADSR
	KindSetA
	KindSetD
	KindSetS
	KindSetR
	KindSetPitchEnv
	KindSetArpeggio
	KindSetPortamento
	KindSetVibrato
)

var kindNames = [...]string{
	KindDelta:         "Delta",
	KindDeltaNotesOff: "DeltaNotesOff",
	KindNoteOn:        "NoteOn",
	KindNotesOff:      "NotesOff",
	KindSetFlags:      "SetFlags",
	KindSetVolume:     "SetVolume",
	KindSetPan:        "SetPan",
	KindSetVelocity:   "SetVelocity",
	KindSetADSR:       "SetADSR",
	KindSetA:          "SetA",
	KindSetD:          "SetD",
	KindSetS:          "SetS",
	KindSetR:          "SetR",
	KindSetPitchEnv:   "SetPitchEnv",
	KindSetArpeggio:   "SetArpeggio",
	KindSetPortamento: "SetPortamento",
	KindSetVibrato:    "SetVibrato",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Event is one instruction of a channel's event stream. Events are
// comparable, so streams can be matched and deduplicated directly.
//
// Ticks holds the wait of Delta and DeltaNotesOff. Args holds the operands of
// every other kind, laid out as they are encoded.
type Event struct {
	Kind  Kind
	Ticks uint32
	Args  [4]uint8
}

// Delta waits ticks.
func Delta(ticks uint32) Event { return Event{Kind: KindDelta, Ticks: ticks} }

// DeltaNotesOff waits ticks and then releases every held key.
func DeltaNotesOff(ticks uint32) Event { return Event{Kind: KindDeltaNotesOff, Ticks: ticks} }

// NoteOn presses key.
func NoteOn(key uint8) Event { return Event{Kind: KindNoteOn, Args: [4]uint8{key}} }

// NotesOff releases every held key.
func NotesOff() Event { return Event{Kind: KindNotesOff} }

// SetFlags selects the channel and duty of the tone flags.
func SetFlags(flags uint8) Event { return Event{Kind: KindSetFlags, Args: [4]uint8{flags}} }

// SetVolume sets the track volume.
func SetVolume(v uint8) Event { return Event{Kind: KindSetVolume, Args: [4]uint8{v}} }

// SetPan sets the stereo position.
func SetPan(p song.Pan) Event { return Event{Kind: KindSetPan, Args: [4]uint8{uint8(p)}} }

// SetVelocity sets the velocity of following notes.
func SetVelocity(v uint8) Event { return Event{Kind: KindSetVelocity, Args: [4]uint8{v}} }

// SetADSR sets the whole envelope.
func SetADSR(a song.ADSR) Event { return Event{Kind: KindSetADSR, Args: a} }

// SetA sets the attack.
func SetA(v uint8) Event { return Event{Kind: KindSetA, Args: [4]uint8{v}} }

// SetD sets the decay.
func SetD(v uint8) Event { return Event{Kind: KindSetD, Args: [4]uint8{v}} }

// SetS sets the sustain level.
func SetS(v uint8) Event { return Event{Kind: KindSetS, Args: [4]uint8{v}} }

// SetR sets the release.
func SetR(v uint8) Event { return Event{Kind: KindSetR, Args: [4]uint8{v}} }

// SetPitchEnv sets the note offset a note starts at and how long it takes to settle.
func SetPitchEnv(pe song.PitchEnv) Event {
	return Event{Kind: KindSetPitchEnv, Args: [4]uint8{uint8(pe.NoteOffset), pe.Duration}}
}

// SetArpeggio sets the rate at which held keys cycle.
func SetArpeggio(a song.Arpeggio) Event {
	return Event{Kind: KindSetArpeggio, Args: [4]uint8{a.Rate}}
}

// SetPortamento sets the glide time between notes.
func SetPortamento(p uint8) Event { return Event{Kind: KindSetPortamento, Args: [4]uint8{p}} }

// SetVibrato sets the vibrato speed and depth.
func SetVibrato(v song.Vibrato) Event {
	return Event{Kind: KindSetVibrato, Args: [4]uint8{v.Speed, v.Depth}}
}

// IsDelta reports whether the event waits for ticks to elapse.
func (e Event) IsDelta() bool {
	return e.Kind == KindDelta || e.Kind == KindDeltaNotesOff
}

func (e Event) String() string {
	switch e.Kind {
	case KindDelta, KindDeltaNotesOff:
		return fmt.Sprintf("%s(%d)", e.Kind, e.Ticks)
	case KindNotesOff:
		return e.Kind.String()
	case KindSetPan:
		return fmt.Sprintf("%s(%s)", e.Kind, song.Pan(e.Args[0]))
	case KindSetADSR:
		return fmt.Sprintf("%s(%d, %d, %d, %d)", e.Kind, e.Args[0], e.Args[1], e.Args[2], e.Args[3])
	case KindSetPitchEnv:
		return fmt.Sprintf("%s(%d, %d)", e.Kind, int8(e.Args[0]), e.Args[1])
	case KindSetVibrato:
		return fmt.Sprintf("%s(%d, %d)", e.Kind, e.Args[0], e.Args[1])
	}
	return fmt.Sprintf("%s(%d)", e.Kind, e.Args[0])
}
