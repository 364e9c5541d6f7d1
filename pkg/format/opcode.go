// Package format implements the w4on2 event vocabulary and its binary
// encoding, as consumed by the w4on2 runtime on the console.
package format

// Opcodes of the runtime's byte-code. Ranged opcodes carry their operand in
// the opcode byte itself: a short delta of d ticks is ShortDelta+d-1, a note
// on of key k is NoteOn+k.
const (
	OpLongDelta          = 0x00
	OpLongDeltaNotesOff  = 0x01
	OpShortDelta         = 0x02
	OpShortDeltaNotesOff = OpShortDelta + ShortDeltaCount
	OpNoteOn             = OpShortDeltaNotesOff + ShortDeltaCount
	OpNotesOff           = OpNoteOn + NoteOnCount
	OpSetFlags           = 0xe7
	OpSetVolume          = 0xe8
	OpSetPan             = 0xe9
	OpSetVelocity        = OpSetPan + SetPanCount
	OpSetADSR            = 0xed
	OpSetA               = 0xee
	OpSetD               = 0xef
	OpSetS               = 0xf0
	OpSetR               = 0xf1
	OpSetPitchEnv        = 0xf2
	OpSetArpRate         = 0xf3
	OpSetPortamento      = 0xf4
	OpSetVibrato         = 0xf5
	OpReserved           = 0xf6
)

const (
	ShortDeltaCount = 50
	NoteOnCount     = 128
	SetPanCount     = 3
)

// Runtime limits.
const (
	TrackCount   = 16
	ChannelCount = 4
	MaxNotes     = 8
	MaxPatterns  = 256
	VelocityMax  = 127
	MaxDelta     = 0xffff
	MaxSize      = 0xffff
)

// longDeltaBias is subtracted from a delta before it is stored in a long
// delta, since anything up to ShortDeltaCount fits a short one.
const longDeltaBias = ShortDeltaCount + 1
