package format

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/james-see/w4on2/pkg/song"
)

func TestAppendBinary(t *testing.T) {
	tests := []struct {
		event    Event
		expected []byte
	}{
		{Delta(1), []byte{0x02}},
		{Delta(50), []byte{0x33}},
		{Delta(51), []byte{0x00, 0x00, 0x00}},
		{Delta(300), []byte{0x00, 0x00, 0xf9}},
		{Delta(65535), []byte{0x00, 0xff, 0xcc}},
		{DeltaNotesOff(1), []byte{0x34}},
		{DeltaNotesOff(50), []byte{0x65}},
		{DeltaNotesOff(51), []byte{0x01, 0x00, 0x00}},
		{NoteOn(0), []byte{0x66}},
		{NoteOn(60), []byte{0xa2}},
		{NoteOn(127), []byte{0xe5}},
		{NotesOff(), []byte{0xe6}},
		{SetFlags(0x0d), []byte{0xe7, 0x0d}},
		{SetVolume(80), []byte{0xe8, 80}},
		{SetPan(song.Stereo), []byte{0xe9}},
		{SetPan(song.Left), []byte{0xea}},
		{SetPan(song.Right), []byte{0xeb}},
		{SetVelocity(99), []byte{0xec, 99}},
		{SetADSR(song.ADSR{1, 2, 3, 4}), []byte{0xed, 1, 2, 3, 4}},
		{SetA(7), []byte{0xee, 7}},
		{SetD(7), []byte{0xef, 7}},
		{SetS(7), []byte{0xf0, 7}},
		{SetR(7), []byte{0xf1, 7}},
		{SetPitchEnv(song.PitchEnv{NoteOffset: -1, Duration: 6}), []byte{0xf2, 0xff, 6}},
		{SetArpeggio(song.Arpeggio{Rate: 3}), []byte{0xf3, 3}},
		{SetPortamento(9), []byte{0xf4, 9}},
		{SetVibrato(song.Vibrato{Speed: 4, Depth: 5}), []byte{0xf5, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.event.String(), func(t *testing.T) {
			got, err := tt.event.AppendBinary(nil)
			if err != nil {
				t.Fatalf("AppendBinary() error = %v", err)
			}
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("AppendBinary() = % x, want % x", got, tt.expected)
			}
			if size := EventSize(got[0]); size != len(got) {
				t.Errorf("EventSize(%#02x) = %d, want %d", got[0], size, len(got))
			}
			decoded, n, err := DecodeEvent(got)
			if err != nil {
				t.Fatalf("DecodeEvent() error = %v", err)
			}
			if decoded != tt.event || n != len(got) {
				t.Errorf("DecodeEvent() = %v, %d, want %v, %d", decoded, n, tt.event, len(got))
			}
		})
	}
}

func TestAppendBinaryErrors(t *testing.T) {
	tests := []struct {
		event Event
		want  error
	}{
		{Delta(0), ErrDeltaRange},
		{Delta(65536), ErrDeltaRange},
		{DeltaNotesOff(0), ErrDeltaRange},
		{NoteOn(128), ErrNoteRange},
		{Event{Kind: KindSetPan, Args: [4]uint8{3}}, ErrPanRange},
		{Event{Kind: Kind(200)}, ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.event.String(), func(t *testing.T) {
			got, err := tt.event.AppendBinary([]byte{0xaa})
			if !errors.Is(err, tt.want) {
				t.Errorf("AppendBinary() error = %v, want %v", err, tt.want)
			}
			if !bytes.Equal(got, []byte{0xaa}) {
				t.Errorf("AppendBinary() appended % x on error", got[1:])
			}
		})
	}
}

func TestDecodeEventErrors(t *testing.T) {
	if _, _, err := DecodeEvent([]byte{OpReserved}); !errors.Is(err, ErrUnknownOpcode) {
		t.Errorf("DecodeEvent(reserved) error = %v, want %v", err, ErrUnknownOpcode)
	}
	if _, _, err := DecodeEvent([]byte{OpSetADSR, 1, 2}); !errors.Is(err, ErrTruncated) {
		t.Errorf("DecodeEvent(short adsr) error = %v, want %v", err, ErrTruncated)
	}
	if _, _, err := DecodeEvent(nil); !errors.Is(err, ErrTruncated) {
		t.Errorf("DecodeEvent(nil) error = %v, want %v", err, ErrTruncated)
	}
}

func TestMarshalBinaryLayout(t *testing.T) {
	s := &Song{
		Patterns: [][]Event{
			{NoteOn(60), Delta(10)},
			{DeltaNotesOff(2)},
		},
		Tracks: [][]int{{0, 1, 0}, {1}},
	}

	got, err := s.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}

	expected := []byte{
		0x00, 0x13, // size
		0x02, 0x02, // pattern count, track count
		0x00, 0x0c, 0x00, 0x0e, // pattern offsets
		0x00, 0x0f, 0x00, 0x12, // track offsets
		0xa2, 0x0b, // pattern 0
		0x35,             // pattern 1
		0x00, 0x01, 0x00, // track 0
		0x01, // track 1
	}
	if !bytes.Equal(got, expected) {
		t.Errorf("MarshalBinary() = % x, want % x", got, expected)
	}

	h, err := ParseHeader(got)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if start, end := h.PatternBounds(1); start != 14 || end != 15 {
		t.Errorf("PatternBounds(1) = %d, %d, want 14, 15", start, end)
	}
	if start, end := h.TrackBounds(1); start != 18 || end != 19 {
		t.Errorf("TrackBounds(1) = %d, %d, want 18, 19", start, end)
	}

	decoded, err := Unmarshal(got)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(decoded, s) {
		t.Errorf("Unmarshal() = %+v, want %+v", decoded, s)
	}
}

func TestMarshalBinaryEmpty(t *testing.T) {
	got, err := (&Song{}).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	if !bytes.Equal(got, []byte{0x00, 0x04, 0x00, 0x00}) {
		t.Errorf("MarshalBinary() = % x, want 00 04 00 00", got)
	}
}

func TestMarshalBinaryLimits(t *testing.T) {
	tooManyPatterns := &Song{Patterns: make([][]Event, MaxPatterns+1)}
	tooManyTracks := &Song{Tracks: make([][]int, TrackCount+1)}
	badIndex := &Song{Patterns: [][]Event{{NotesOff()}}, Tracks: [][]int{{1}}}

	long := make([]Event, 0, 70000)
	for i := 0; i < cap(long); i++ {
		long = append(long, NotesOff())
	}
	tooLarge := &Song{Patterns: [][]Event{long}, Tracks: [][]int{{0}}}

	tests := []struct {
		name string
		song *Song
		want error
	}{
		{"patterns", tooManyPatterns, ErrTooManyPatterns},
		{"tracks", tooManyTracks, ErrTooManyTracks},
		{"index", badIndex, ErrPatternIndex},
		{"size", tooLarge, ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.song.MarshalBinary()
			if !errors.Is(err, tt.want) {
				t.Errorf("MarshalBinary() error = %v, want %v", err, tt.want)
			}
			if got != nil {
				t.Errorf("MarshalBinary() returned %d bytes on error", len(got))
			}
		})
	}
}

func TestFullDictionaryHeader(t *testing.T) {
	s := &Song{Patterns: make([][]Event, MaxPatterns), Tracks: [][]int{{255, 0}}}
	for i := range s.Patterns {
		s.Patterns[i] = []Event{NoteOn(uint8(i % NoteOnCount))}
	}
	b, err := s.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	if b[2] != 0 {
		t.Errorf("pattern count byte = %d, want 0", b[2])
	}
	h, err := ParseHeader(b)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if len(h.PatternOffsets) != MaxPatterns {
		t.Errorf("ParseHeader() patterns = %d, want %d", len(h.PatternOffsets), MaxPatterns)
	}
}

func TestParseHeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte{0x00}},
		{"size mismatch", []byte{0x00, 0x09, 0x00, 0x00}},
		{"table past end", []byte{0x00, 0x06, 0x01, 0x01, 0x00, 0x06}},
		{"offset out of bounds", []byte{0x00, 0x07, 0x01, 0x00, 0x00, 0x09, 0xe6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseHeader(tt.data); !errors.Is(err, ErrBadHeader) {
				t.Errorf("ParseHeader() error = %v, want %v", err, ErrBadHeader)
			}
		})
	}
}
