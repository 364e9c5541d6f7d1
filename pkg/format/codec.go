package format

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrDeltaRange    = errors.New("delta out of range 1..65535")
	ErrNoteRange     = errors.New("note key out of range 0..127")
	ErrPanRange      = errors.New("pan out of range")
	ErrUnknownKind   = errors.New("unknown event kind")
	ErrUnknownOpcode = errors.New("unknown opcode")
	ErrTruncated     = errors.New("truncated data")
)

// AppendBinary appends the encoding of e to b. Values the runtime cannot
// represent are reported as errors and nothing is appended.
func (e Event) AppendBinary(b []byte) ([]byte, error) {
	switch e.Kind {
	case KindDelta, KindDeltaNotesOff:
		if e.Ticks == 0 || e.Ticks > MaxDelta {
			return b, fmt.Errorf("%w: %d", ErrDeltaRange, e.Ticks)
		}
		short, long := byte(OpShortDelta), byte(OpLongDelta)
		if e.Kind == KindDeltaNotesOff {
			short, long = OpShortDeltaNotesOff, OpLongDeltaNotesOff
		}
		if e.Ticks <= ShortDeltaCount {
			return append(b, short+byte(e.Ticks-1)), nil
		}
		b = append(b, long)
		return binary.BigEndian.AppendUint16(b, uint16(e.Ticks-longDeltaBias)), nil
	case KindNoteOn:
		if e.Args[0] >= NoteOnCount {
			return b, fmt.Errorf("%w: %d", ErrNoteRange, e.Args[0])
		}
		return append(b, OpNoteOn+e.Args[0]), nil
	case KindNotesOff:
		return append(b, OpNotesOff), nil
	case KindSetFlags:
		return append(b, OpSetFlags, e.Args[0]), nil
	case KindSetVolume:
		return append(b, OpSetVolume, e.Args[0]), nil
	case KindSetPan:
		if e.Args[0] >= SetPanCount {
			return b, fmt.Errorf("%w: %d", ErrPanRange, e.Args[0])
		}
		return append(b, OpSetPan+e.Args[0]), nil
	case KindSetVelocity:
		return append(b, OpSetVelocity, e.Args[0]), nil
	case KindSetADSR:
		return append(b, OpSetADSR, e.Args[0], e.Args[1], e.Args[2], e.Args[3]), nil
	case KindSetA:
		return append(b, OpSetA, e.Args[0]), nil
	case KindSetD:
		return append(b, OpSetD, e.Args[0]), nil
	case KindSetS:
		return append(b, OpSetS, e.Args[0]), nil
	case KindSetR:
		return append(b, OpSetR, e.Args[0]), nil
	case KindSetPitchEnv:
		return append(b, OpSetPitchEnv, e.Args[0], e.Args[1]), nil
	case KindSetArpeggio:
		return append(b, OpSetArpRate, e.Args[0]), nil
	case KindSetPortamento:
		return append(b, OpSetPortamento, e.Args[0]), nil
	case KindSetVibrato:
		return append(b, OpSetVibrato, e.Args[0], e.Args[1]), nil
	}
	return b, fmt.Errorf("%w: %d", ErrUnknownKind, e.Kind)
}

// EncodeEvents encodes a stream of events back to back.
func EncodeEvents(events []Event) ([]byte, error) {
	var out []byte
	for i, ev := range events {
		var err error
		if out, err = ev.AppendBinary(out); err != nil {
			return nil, fmt.Errorf("event %d (%v): %w", i, ev, err)
		}
	}
	return out, nil
}

// EventSize returns the encoded size of the event starting with opcode op,
// or 0 if op is not a valid opcode.
func EventSize(op byte) int {
	switch {
	case op == OpLongDelta, op == OpLongDeltaNotesOff:
		return 3
	case op < OpNotesOff+1:
		return 1
	case op == OpSetFlags, op == OpSetVolume, op == OpSetVelocity:
		return 2
	case op < OpSetVelocity:
		return 1
	case op == OpSetADSR:
		return 5
	case op >= OpSetA && op <= OpSetR:
		return 2
	case op == OpSetPitchEnv, op == OpSetVibrato:
		return 3
	case op == OpSetArpRate, op == OpSetPortamento:
		return 2
	}
	return 0
}

// DecodeEvent decodes the event at the start of b and returns it with its
// encoded size.
func DecodeEvent(b []byte) (Event, int, error) {
	if len(b) == 0 {
		return Event{}, 0, ErrTruncated
	}
	op := b[0]
	size := EventSize(op)
	if size == 0 {
		return Event{}, 0, fmt.Errorf("%w: %#02x", ErrUnknownOpcode, op)
	}
	if len(b) < size {
		return Event{}, 0, fmt.Errorf("%w: opcode %#02x needs %d bytes", ErrTruncated, op, size)
	}

	var ev Event
	switch {
	case op == OpLongDelta:
		ev = Delta(uint32(binary.BigEndian.Uint16(b[1:])) + longDeltaBias)
	case op == OpLongDeltaNotesOff:
		ev = DeltaNotesOff(uint32(binary.BigEndian.Uint16(b[1:])) + longDeltaBias)
	case op < OpShortDeltaNotesOff:
		ev = Delta(uint32(op-OpShortDelta) + 1)
	case op < OpNoteOn:
		ev = DeltaNotesOff(uint32(op-OpShortDeltaNotesOff) + 1)
	case op < OpNotesOff:
		ev = NoteOn(op - OpNoteOn)
	case op == OpNotesOff:
		ev = NotesOff()
	case op == OpSetFlags:
		ev = SetFlags(b[1])
	case op == OpSetVolume:
		ev = SetVolume(b[1])
	case op < OpSetVelocity:
		ev = Event{Kind: KindSetPan, Args: [4]uint8{op - OpSetPan}}
	case op == OpSetVelocity:
		ev = SetVelocity(b[1])
	case op == OpSetADSR:
		ev = Event{Kind: KindSetADSR, Args: [4]uint8{b[1], b[2], b[3], b[4]}}
	case op == OpSetA:
		ev = SetA(b[1])
	case op == OpSetD:
		ev = SetD(b[1])
	case op == OpSetS:
		ev = SetS(b[1])
	case op == OpSetR:
		ev = SetR(b[1])
	case op == OpSetPitchEnv:
		ev = Event{Kind: KindSetPitchEnv, Args: [4]uint8{b[1], b[2]}}
	case op == OpSetArpRate:
		ev = Event{Kind: KindSetArpeggio, Args: [4]uint8{b[1]}}
	case op == OpSetPortamento:
		ev = SetPortamento(b[1])
	case op == OpSetVibrato:
		ev = Event{Kind: KindSetVibrato, Args: [4]uint8{b[1], b[2]}}
	}
	return ev, size, nil
}

// DecodeEvents decodes a stream of back to back events.
func DecodeEvents(b []byte) ([]Event, error) {
	var events []Event
	for off := 0; off < len(b); {
		ev, n, err := DecodeEvent(b[off:])
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", off, err)
		}
		events = append(events, ev)
		off += n
	}
	return events, nil
}
