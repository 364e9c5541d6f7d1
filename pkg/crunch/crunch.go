// Package crunch compresses a set of event sequences into a shared
// dictionary of patterns. Every track becomes a list of dictionary indices
// whose concatenation reproduces it exactly.
package crunch

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrBudget       = errors.New("more tracks than dictionary entries")
	ErrPatternIndex = errors.New("pattern index out of range")
)

// chunk is a not yet compressed piece of a track. start is the offset of
// events within the original track.
type chunk[T comparable] struct {
	track  int
	start  int
	events []T
}

type occurrence struct {
	chunk int
	start int
}

// matchSet is every non-overlapping occurrence of one sequence of events.
type matchSet struct {
	length int
	occ    []occurrence
}

func (m matchSet) savings(overhead int) int {
	return (m.length-1)*len(m.occ) - overhead
}

// better orders match sets by savings, then by where their first
// occurrence is, then by length. The order is total, which makes the
// compressor deterministic.
func (m matchSet) better(o matchSet, overhead int) bool {
	if sm, so := m.savings(overhead), o.savings(overhead); sm != so {
		return sm > so
	}
	if m.occ[0].chunk != o.occ[0].chunk {
		return m.occ[0].chunk < o.occ[0].chunk
	}
	if m.occ[0].start != o.occ[0].start {
		return m.occ[0].start < o.occ[0].start
	}
	return m.length > o.length
}

type usage struct {
	start   int
	pattern int
}

// Crunch builds a dictionary of at most dictMax patterns out of tracks.
// dictOverhead is the cost of one dictionary entry, in events, that a
// repeated sequence has to win back before it is worth extracting.
//
// It returns the dictionary and, per track, the dictionary indices that
// rebuild it. Empty tracks get no indices.
func Crunch[T comparable](tracks [][]T, dictMax, dictOverhead int) ([][]T, [][]int, error) {
	var chunks []chunk[T]
	for i, events := range tracks {
		if len(events) > 0 {
			chunks = append(chunks, chunk[T]{track: i, events: events})
		}
	}
	if len(chunks) > dictMax {
		return nil, nil, fmt.Errorf("%w: %d tracks, %d entries", ErrBudget, len(chunks), dictMax)
	}

	var dict [][]T
	uses := make([][]usage, len(tracks))

	for len(dict)+len(chunks)*2 < dictMax {
		best, ok := bestMatch(chunks, dictOverhead)
		if !ok {
			break
		}
		next, used := split(chunks, best, len(dict))
		if len(dict)+1+len(next) > dictMax {
			break
		}
		first := chunks[best.occ[0].chunk]
		dict = append(dict, slices.Clone(first.events[best.occ[0].start:best.occ[0].start+best.length]))
		for _, u := range used {
			uses[u.track] = append(uses[u.track], u.usage)
		}
		chunks = next
	}

	for _, c := range chunks {
		uses[c.track] = append(uses[c.track], usage{start: c.start, pattern: len(dict)})
		dict = append(dict, slices.Clone(c.events))
	}

	indices := make([][]int, len(tracks))
	for t, us := range uses {
		slices.SortFunc(us, func(a, b usage) int { return a.start - b.start })
		indices[t] = make([]int, len(us))
		for i, u := range us {
			indices[t][i] = u.pattern
		}
	}
	return dict, indices, nil
}

// bestMatch compares every position of every chunk against every other
// position and returns the match set with the highest savings.
func bestMatch[T comparable](chunks []chunk[T], overhead int) (matchSet, bool) {
	// seen[c][e] holds the match lengths already attributed to position e of
	// chunk c, so every sequence is collected once, at its first occurrence.
	seen := make([][]map[int]struct{}, len(chunks))
	for c := range chunks {
		seen[c] = make([]map[int]struct{}, len(chunks[c].events))
	}

	var best matchSet
	found := false
	for oc := range chunks {
		outer := chunks[oc].events
		for oe := range outer {
			contenders := map[int][]occurrence{}
			for ic := range chunks {
				inner := chunks[ic].events
				for ie := range inner {
					n := min(len(inner)-ie, len(outer)-oe)
					for k := 0; k < n && inner[ie+k] == outer[oe+k]; k++ {
						length := k + 1
						if _, ok := seen[ic][ie][length]; ok {
							continue
						}
						if seen[ic][ie] == nil {
							seen[ic][ie] = map[int]struct{}{}
						}
						seen[ic][ie][length] = struct{}{}
						contenders[length] = append(contenders[length], occurrence{chunk: ic, start: ie})
					}
				}
			}

			for length, occ := range contenders {
				m := matchSet{length: length, occ: dropOverlaps(occ, length)}
				if len(m.occ) < 2 || m.savings(overhead) < 1 {
					continue
				}
				if !found || m.better(best, overhead) {
					best, found = m, true
				}
			}
		}
	}
	return best, found
}

// dropOverlaps keeps, within each chunk, the earliest occurrences that do
// not overlap. occ is ordered by chunk and then start.
func dropOverlaps(occ []occurrence, length int) []occurrence {
	kept := occ[:0]
	lastChunk, lastEnd := -1, 0
	for _, o := range occ {
		if o.chunk == lastChunk && o.start < lastEnd {
			continue
		}
		kept = append(kept, o)
		lastChunk, lastEnd = o.chunk, o.start+length
	}
	return kept
}

type trackUsage struct {
	track int
	usage
}

// split cuts every occurrence of m out of its chunk. It returns the new
// chunk list, untouched chunks in their original order followed by the
// leftover pieces, and the usages of pattern it created.
func split[T comparable](chunks []chunk[T], m matchSet, pattern int) ([]chunk[T], []trackUsage) {
	hit := make(map[int][]occurrence)
	for _, o := range m.occ {
		hit[o.chunk] = append(hit[o.chunk], o)
	}

	var next, pieces []chunk[T]
	var used []trackUsage
	for ci, c := range chunks {
		occ, ok := hit[ci]
		if !ok {
			next = append(next, c)
			continue
		}
		last := 0
		for _, o := range occ {
			if o.start > last {
				pieces = append(pieces, chunk[T]{track: c.track, start: c.start + last, events: c.events[last:o.start]})
			}
			used = append(used, trackUsage{track: c.track, usage: usage{start: c.start + o.start, pattern: pattern}})
			last = o.start + m.length
		}
		if last < len(c.events) {
			pieces = append(pieces, chunk[T]{track: c.track, start: c.start + last, events: c.events[last:]})
		}
	}
	return append(next, pieces...), used
}

// Uncrunch rebuilds the tracks from a dictionary and its indices.
func Uncrunch[T any](dict [][]T, indices [][]int) ([][]T, error) {
	tracks := make([][]T, len(indices))
	for t, idx := range indices {
		for _, i := range idx {
			if i < 0 || i >= len(dict) {
				return nil, fmt.Errorf("%w: track %d uses %d of %d", ErrPatternIndex, t, i, len(dict))
			}
			tracks[t] = append(tracks[t], dict[i]...)
		}
	}
	return tracks, nil
}
