package player

import (
	"errors"
	"reflect"
	"testing"

	"github.com/james-see/w4on2/pkg/format"
	"github.com/james-see/w4on2/pkg/song"
)

type tone struct {
	frequency, duration, volume, flags uint32
}

type recorder struct {
	tones []tone
}

func (r *recorder) Tone(frequency, duration, volume, flags uint32) {
	r.tones = append(r.tones, tone{frequency, duration, volume, flags})
}

// take returns the tones recorded since the last call.
func (r *recorder) take() []tone {
	t := r.tones
	r.tones = nil
	return t
}

func feed(t *testing.T, rt *Runtime, ti int, events ...format.Event) {
	t.Helper()
	b, err := format.EncodeEvents(events)
	if err != nil {
		t.Fatalf("EncodeEvents() error = %v", err)
	}
	for off := 0; off < len(b); {
		n := rt.FeedEvent(ti, b[off:])
		if n == 0 {
			t.Fatalf("FeedEvent(%#02x) = 0", b[off])
		}
		off += n
	}
}

func compile(t *testing.T, s *format.Song) []byte {
	t.Helper()
	b, err := s.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	return b
}

func TestRamp(t *testing.T) {
	tests := []struct {
		ticks, duration, from, to int32
		expected                  int32
	}{
		{0, 0, 10, 20, 20},
		{0, 4, 10, 20, 10},
		{-1, 4, 10, 20, 10},
		{2, 4, 10, 20, 15},
		{4, 4, 10, 20, 20},
		{9, 4, 10, 20, 20},
		{1, 4, 100, 0, 75},
	}

	for _, tt := range tests {
		if got := ramp(tt.ticks, tt.duration, tt.from, tt.to); got != tt.expected {
			t.Errorf("ramp(%d, %d, %d, %d) = %d, want %d", tt.ticks, tt.duration, tt.from, tt.to, got, tt.expected)
		}
	}
}

func TestTriangle(t *testing.T) {
	tests := []struct {
		phase    uint32
		peak     int32
		expected int32
	}{
		{0, 100, -100},
		// Integer division puts the midpoint at -1, not 0.
		{0x3fff, 100, -1},
		{0x7fff, 100, 100},
		{0xbfff, 100, 0},
		{0xffff, 100, -100},
		{0x3fff, 0, 0},
	}

	for _, tt := range tests {
		if got := triangle(tt.phase, tt.peak); got != tt.expected {
			t.Errorf("triangle(%#x, %d) = %d, want %d", tt.phase, tt.peak, got, tt.expected)
		}
	}
}

func TestFeedEventSizes(t *testing.T) {
	for op := 0; op <= 0xff; op++ {
		rt := NewRuntime(&recorder{})
		got := rt.FeedEvent(0, []byte{byte(op), 0, 0, 0, 0})
		if want := format.EventSize(byte(op)); got != want {
			t.Errorf("FeedEvent(%#02x) = %d, want %d", op, got, want)
		}
	}
}

func TestNoteOnThenRelease(t *testing.T) {
	rec := &recorder{}
	rt := NewRuntime(rec)

	feed(t, rt, 0, format.NoteOn(60))
	rt.Tick()
	want := []tone{{60 | 60<<16, 1 << 16, 100 | 100<<8, 0x40}}
	if got := rec.take(); !reflect.DeepEqual(got, want) {
		t.Errorf("tones after note on = %v, want %v", got, want)
	}

	feed(t, rt, 0, format.NotesOff())
	rt.Tick()
	want = []tone{{60, 0, 100, 0x40}}
	if got := rec.take(); !reflect.DeepEqual(got, want) {
		t.Errorf("tones after notes off = %v, want %v", got, want)
	}

	rt.Tick()
	if got := rec.take(); len(got) != 0 {
		t.Errorf("tones after release = %v, want none", got)
	}
}

func TestInstrumentEvents(t *testing.T) {
	rec := &recorder{}
	rt := NewRuntime(rec)

	feed(t, rt, 3,
		format.SetFlags(song.TriangleChannel().Flags()),
		format.SetPan(song.Right),
		format.SetVelocity(64),
		format.SetADSR(song.ADSR{2, 0, song.SustainMax, 7}),
		format.NoteOn(48),
	)

	for i, want := range []tone{
		{48 | 48<<16, 1 << 24, 25 | 25<<8, 0x62},
		{48 | 48<<16, 1 << 16, 50 | 25<<8, 0x62},
		{48 | 48<<16, 1 << 16, 50 | 50<<8, 0x62},
	} {
		rt.Tick()
		if got := rec.take(); !reflect.DeepEqual(got, []tone{want}) {
			t.Errorf("tick %d tones = %v, want %v", i, got, want)
		}
	}

	feed(t, rt, 3, format.NotesOff())
	rt.Tick()
	want := []tone{{48, 7 << 8, 50, 0x62}}
	if got := rec.take(); !reflect.DeepEqual(got, want) {
		t.Errorf("release tones = %v, want %v", got, want)
	}
}

func TestPitchEnvelope(t *testing.T) {
	rec := &recorder{}
	rt := NewRuntime(rec)
	feed(t, rt, 0, format.SetPitchEnv(song.PitchEnv{NoteOffset: 12, Duration: 2}), format.NoteOn(60))

	rt.Tick()
	got := rec.take()
	if len(got) != 1 {
		t.Fatalf("tones = %v, want one", got)
	}
	// From 72 down to 66 within the first tick.
	if from, to := got[0].frequency&0xffff, got[0].frequency>>16; from != 72 || to != 66 {
		t.Errorf("pitch env frequency = %d..%d, want 72..66", from, to)
	}
}

func TestNoteStackOverflow(t *testing.T) {
	rec := &recorder{}
	rt := NewRuntime(rec)
	for k := uint8(0); k < format.MaxNotes+1; k++ {
		feed(t, rt, 0, format.NoteOn(40+k))
	}
	if got := rt.channels[0].keyCount; got != format.MaxNotes {
		t.Errorf("keyCount = %d, want %d", got, format.MaxNotes)
	}
	if got := rt.channels[0].keys[0]; got != 41 {
		t.Errorf("oldest key = %d, want 41", got)
	}

	rt.Tick()
	if got := rec.take(); len(got) != 1 || got[0].frequency&0xff != 48 {
		t.Errorf("tones = %v, want the newest key 48", got)
	}
}

func TestTrackTakesOverChannel(t *testing.T) {
	rec := &recorder{}
	rt := NewRuntime(rec)
	feed(t, rt, 0, format.NoteOn(60))
	feed(t, rt, 1, format.NoteOn(64))

	if got := rt.channels[0].activeTrack; got != 1 {
		t.Errorf("activeTrack = %d, want 1", got)
	}
	if got := rt.channels[0].keyCount; got != 1 {
		t.Errorf("keyCount = %d, want 1", got)
	}
}

func TestPlayerTiming(t *testing.T) {
	tests := []struct {
		name     string
		song     format.Song
		expected []int
	}{
		{
			name: "delta then notes off",
			song: format.Song{
				Patterns: [][]format.Event{{format.NoteOn(60), format.Delta(2), format.NotesOff()}},
				Tracks:   [][]int{{0}},
			},
			expected: []int{1, 1, 1, 0},
		},
		{
			name: "fused notes off",
			song: format.Song{
				Patterns: [][]format.Event{{format.NoteOn(60), format.DeltaNotesOff(1)}},
				Tracks:   [][]int{{0}},
			},
			expected: []int{1, 1, 0},
		},
		{
			name: "tracks of different lengths",
			song: format.Song{
				Patterns: [][]format.Event{{format.Delta(1)}, {format.Delta(3)}},
				Tracks:   [][]int{{0}, {1}},
			},
			expected: []int{2, 2, 1, 1, 0},
		},
		{
			name: "repeated pattern",
			song: format.Song{
				Patterns: [][]format.Event{{format.Delta(1)}},
				Tracks:   [][]int{{0, 0, 0}},
			},
			expected: []int{1, 1, 1, 1, 0},
		},
		{
			name:     "no tracks",
			song:     format.Song{},
			expected: []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(compile(t, &tt.song))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			rt := NewRuntime(&recorder{})
			var got []int
			for range tt.expected {
				got = append(got, p.Tick(rt))
				rt.Tick()
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Tick() sequence = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPlayerFeedsEvents(t *testing.T) {
	s := format.Song{
		Patterns: [][]format.Event{{format.NoteOn(60), format.Delta(2), format.NotesOff()}},
		Tracks:   [][]int{{0}},
	}
	p, err := New(compile(t, &s))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rec := &recorder{}
	rt := NewRuntime(rec)

	var calls []int
	for p.Tick(rt) > 0 {
		rt.Tick()
		calls = append(calls, len(rec.take()))
	}
	if want := []int{1, 1, 1}; !reflect.DeepEqual(calls, want) {
		t.Errorf("tone calls per tick = %v, want %v", calls, want)
	}
}

func TestPlayerLongDelta(t *testing.T) {
	s := format.Song{
		Patterns: [][]format.Event{{format.Delta(100)}},
		Tracks:   [][]int{{0}},
	}
	p, err := New(compile(t, &s))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rt := NewRuntime(&recorder{})
	ticks := 0
	for p.Tick(rt) > 0 {
		rt.Tick()
		ticks++
	}
	if ticks != 101 {
		t.Errorf("active ticks = %d, want 101", ticks)
	}
}

func TestNewInvalid(t *testing.T) {
	b := compile(t, &format.Song{
		Patterns: [][]format.Event{{format.NoteOn(1)}},
		Tracks:   [][]int{{0}},
	})
	b[len(b)-1] = 9

	_, err := New(b)
	if !errors.Is(err, format.ErrPatternIndex) {
		t.Errorf("New() error = %v, want %v", err, format.ErrPatternIndex)
	}
	if _, err := New([]byte{0, 9}); !errors.Is(err, format.ErrBadHeader) {
		t.Errorf("New() error = %v, want %v", err, format.ErrBadHeader)
	}
}
