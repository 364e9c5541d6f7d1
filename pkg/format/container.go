package format

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrTooManyPatterns = errors.New("too many patterns")
	ErrTooManyTracks   = errors.New("too many tracks")
	ErrPatternIndex    = errors.New("pattern index out of range")
	ErrTooLarge        = errors.New("song exceeds 65535 bytes")
	ErrBadHeader       = errors.New("malformed song header")
)

// Song is a compressed song: a dictionary of event patterns shared by every
// track, and per track the sequence of patterns it plays.
type Song struct {
	Patterns [][]Event
	Tracks   [][]int
}

// headerSize is the fixed part of the header: total size, pattern count and
// track count.
const headerSize = 4

// MarshalBinary serializes the song container:
//
//	[size u16][pattern count u8][track count u8]
//	[pattern offsets u16...][track offsets u16...]
//	[pattern bodies][track bodies, one pattern index per byte]
//
// All integers are big-endian and offsets are absolute.
func (s *Song) MarshalBinary() ([]byte, error) {
	if len(s.Patterns) > MaxPatterns {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyPatterns, len(s.Patterns), MaxPatterns)
	}
	if len(s.Tracks) > TrackCount {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyTracks, len(s.Tracks), TrackCount)
	}

	tableSize := headerSize + 2*(len(s.Patterns)+len(s.Tracks))
	out := make([]byte, tableSize)
	// A full dictionary of 256 patterns wraps to 0.
	out[2] = byte(len(s.Patterns))
	out[3] = byte(len(s.Tracks))

	setOffset := func(slot int) error {
		if len(out) > MaxSize {
			return fmt.Errorf("%w: offset %d", ErrTooLarge, len(out))
		}
		binary.BigEndian.PutUint16(out[headerSize+2*slot:], uint16(len(out)))
		return nil
	}

	for i, pattern := range s.Patterns {
		if err := setOffset(i); err != nil {
			return nil, err
		}
		var err error
		for j, ev := range pattern {
			if out, err = ev.AppendBinary(out); err != nil {
				return nil, fmt.Errorf("pattern %d event %d (%v): %w", i, j, ev, err)
			}
		}
	}
	for i, track := range s.Tracks {
		if err := setOffset(len(s.Patterns) + i); err != nil {
			return nil, err
		}
		for _, idx := range track {
			if idx < 0 || idx >= len(s.Patterns) {
				return nil, fmt.Errorf("%w: track %d uses pattern %d of %d", ErrPatternIndex, i, idx, len(s.Patterns))
			}
			out = append(out, byte(idx))
		}
	}

	if len(out) > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(out))
	}
	binary.BigEndian.PutUint16(out, uint16(len(out)))
	return out, nil
}

// Header is the decoded offset table of a serialized song.
type Header struct {
	Size           int
	PatternOffsets []int
	TrackOffsets   []int
}

// PatternBounds returns the byte range of pattern i.
func (h *Header) PatternBounds(i int) (start, end int) {
	start = h.PatternOffsets[i]
	if i+1 < len(h.PatternOffsets) {
		return start, h.PatternOffsets[i+1]
	}
	if len(h.TrackOffsets) > 0 {
		return start, h.TrackOffsets[0]
	}
	return start, h.Size
}

// TrackBounds returns the byte range of track i.
func (h *Header) TrackBounds(i int) (start, end int) {
	start = h.TrackOffsets[i]
	if i+1 < len(h.TrackOffsets) {
		return start, h.TrackOffsets[i+1]
	}
	return start, h.Size
}

// ParseHeader decodes and validates the offset table of a serialized song.
// Offsets must be in bounds and non-decreasing, and the stored size must
// match len(b).
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadHeader, len(b))
	}
	h := &Header{Size: int(binary.BigEndian.Uint16(b))}
	if h.Size != len(b) {
		return nil, fmt.Errorf("%w: stored size %d, have %d bytes", ErrBadHeader, h.Size, len(b))
	}

	tracks := int(b[3])
	if tracks > TrackCount {
		return nil, fmt.Errorf("%w: %d tracks", ErrBadHeader, tracks)
	}
	patterns := int(b[2])
	if patterns == 0 && h.Size > headerSize+2*tracks {
		// A full dictionary stores its pattern count as 0. Without patterns
		// there is nothing after the offset table.
		patterns = MaxPatterns
	}

	tableEnd := headerSize + 2*(patterns+tracks)
	if tableEnd > h.Size {
		return nil, fmt.Errorf("%w: offset table runs past the end", ErrBadHeader)
	}
	prev := tableEnd
	read := func(slot int) (int, error) {
		off := int(binary.BigEndian.Uint16(b[headerSize+2*slot:]))
		if off < prev || off > h.Size {
			return 0, fmt.Errorf("%w: offset %d of slot %d", ErrBadHeader, off, slot)
		}
		prev = off
		return off, nil
	}
	for i := 0; i < patterns; i++ {
		off, err := read(i)
		if err != nil {
			return nil, err
		}
		h.PatternOffsets = append(h.PatternOffsets, off)
	}
	for i := 0; i < tracks; i++ {
		off, err := read(patterns + i)
		if err != nil {
			return nil, err
		}
		h.TrackOffsets = append(h.TrackOffsets, off)
	}
	if patterns > 0 && h.PatternOffsets[0] != tableEnd {
		return nil, fmt.Errorf("%w: first pattern at %d, table ends at %d", ErrBadHeader, h.PatternOffsets[0], tableEnd)
	}
	return h, nil
}

// Unmarshal decodes a serialized song and checks that every pattern decodes
// to whole events and every track references existing patterns.
func Unmarshal(b []byte) (*Song, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	s := &Song{
		Patterns: make([][]Event, len(h.PatternOffsets)),
		Tracks:   make([][]int, len(h.TrackOffsets)),
	}
	for i := range h.PatternOffsets {
		start, end := h.PatternBounds(i)
		if s.Patterns[i], err = DecodeEvents(b[start:end]); err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i, err)
		}
	}
	for i := range h.TrackOffsets {
		start, end := h.TrackBounds(i)
		s.Tracks[i] = make([]int, 0, end-start)
		for _, idx := range b[start:end] {
			if int(idx) >= len(s.Patterns) {
				return nil, fmt.Errorf("%w: track %d uses pattern %d of %d", ErrPatternIndex, i, idx, len(s.Patterns))
			}
			s.Tracks[i] = append(s.Tracks[i], int(idx))
		}
	}
	return s, nil
}
