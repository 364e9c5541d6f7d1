package crunch

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"slices"
	"testing"
)

func equalTracks[T comparable](a, b [][]T) bool {
	return slices.EqualFunc(a, b, func(x, y []T) bool { return slices.Equal(x, y) })
}

func checkLossless[T comparable](t *testing.T, tracks [][]T, dictMax, overhead int) ([][]T, [][]int) {
	t.Helper()
	dict, indices, err := Crunch(tracks, dictMax, overhead)
	if err != nil {
		t.Fatalf("Crunch() error = %v", err)
	}
	if len(dict) > dictMax {
		t.Errorf("Crunch() dictionary has %d patterns, want at most %d", len(dict), dictMax)
	}
	for i, p := range dict {
		if len(p) == 0 {
			t.Errorf("Crunch() pattern %d is empty", i)
		}
	}
	got, err := Uncrunch(dict, indices)
	if err != nil {
		t.Fatalf("Uncrunch() error = %v", err)
	}
	if !equalTracks(got, tracks) {
		t.Errorf("Uncrunch(Crunch(%v)) = %v", tracks, got)
	}
	return dict, indices
}

func TestUncrunch(t *testing.T) {
	dict := [][]int{{0, 0, 0}, {1, 1, 1}}
	indices := [][]int{{1, 0}, {0, 1}}

	got, err := Uncrunch(dict, indices)
	if err != nil {
		t.Fatalf("Uncrunch() error = %v", err)
	}
	expected := [][]int{{1, 1, 1, 0, 0, 0}, {0, 0, 0, 1, 1, 1}}
	if !equalTracks(got, expected) {
		t.Errorf("Uncrunch() = %v, want %v", got, expected)
	}
}

func TestUncrunchBadIndex(t *testing.T) {
	_, err := Uncrunch([][]int{{1}}, [][]int{{0, 1}})
	if !errors.Is(err, ErrPatternIndex) {
		t.Errorf("Uncrunch() error = %v, want %v", err, ErrPatternIndex)
	}
}

func TestCrunch(t *testing.T) {
	tracks := [][]int{
		{9, 0, 0, 1, 1, 2, 0},
		{2, 2, 0, 0, 1, 1, 4},
	}

	dict, indices := checkLossless(t, tracks, 99, 1)

	expectedDict := [][]int{{0, 0, 1, 1}, {9}, {2, 0}, {2, 2}, {4}}
	expectedIndices := [][]int{{1, 0, 2}, {3, 0, 4}}
	if !equalTracks(dict, expectedDict) {
		t.Errorf("Crunch() dict = %v, want %v", dict, expectedDict)
	}
	if !reflect.DeepEqual(indices, expectedIndices) {
		t.Errorf("Crunch() indices = %v, want %v", indices, expectedIndices)
	}
}

func TestCrunchRegressions(t *testing.T) {
	tests := []struct {
		name   string
		tracks [][]int
	}{
		{"overlapping repeat", [][]int{{123, 123, 34, 1234, 123, 123}, {34, 1234}}},
		{"self overlap", [][]int{{1, 1, 1}}},
		{"runs", [][]int{{5, 4, 4, 1, 1, 1, 6, 6, 7, 1, 1, 0, 4, 4, 4, 3}}},
		{"long tracks", [][]int{
			{0, 1, 2, 3, 0, 1, 2, 3, 4, 5, 4, 5, 0, 1, 2, 3},
			{4, 5, 0, 1, 2, 3, 6, 6, 6, 6, 0, 1, 2, 3, 4, 5},
		}},
		{"empty track", [][]int{{}, {1, 2, 1, 2, 1, 2}, {}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkLossless(t, tt.tracks, 256, 3)
			checkLossless(t, tt.tracks, 99, 1)
		})
	}
}

func TestCrunchSelfOverlapKeepsEarliest(t *testing.T) {
	// 1 2 1 2 1 occurs as "1 2 1" at 0 and 2; only the one at 0 survives,
	// so "1 2" (at 0 and 2) wins instead.
	dict, _ := checkLossless(t, [][]int{{1, 2, 1, 2, 1, 2}}, 99, 0)
	if !slices.Equal(dict[0], []int{1, 2}) {
		t.Errorf("Crunch() first pattern = %v, want [1 2]", dict[0])
	}
}

func TestDropOverlaps(t *testing.T) {
	tests := []struct {
		name     string
		occ      []occurrence
		length   int
		expected []occurrence
	}{
		{
			// 7 1 1 1 1 8 1 1: "1 1" at 2 overlaps the kept one at 1, but
			// the one at 3 only overlaps a dropped one and stays.
			"chained run",
			[]occurrence{{0, 1}, {0, 2}, {0, 3}, {0, 6}},
			2,
			[]occurrence{{0, 1}, {0, 3}, {0, 6}},
		},
		{
			"separate chunks",
			[]occurrence{{0, 0}, {1, 0}, {1, 1}},
			2,
			[]occurrence{{0, 0}, {1, 0}},
		},
		{"no overlap", []occurrence{{0, 0}, {0, 3}}, 3, []occurrence{{0, 0}, {0, 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dropOverlaps(slices.Clone(tt.occ), tt.length)
			if !slices.Equal(got, tt.expected) {
				t.Errorf("dropOverlaps(%v, %d) = %v, want %v", tt.occ, tt.length, got, tt.expected)
			}
		})
	}
}

func TestCrunchRunOfRepeats(t *testing.T) {
	dict, indices := checkLossless(t, [][]int{{7, 1, 1, 1, 1, 8, 1, 1}}, 99, 1)
	uses := 0
	for _, i := range indices[0] {
		if slices.Equal(dict[i], []int{1, 1}) {
			uses++
		}
	}
	if uses != 3 {
		t.Errorf("Crunch() uses [1 1] %d times, want 3 (dict %v, indices %v)", uses, dict, indices)
	}
}

func TestCrunchEmptyTracks(t *testing.T) {
	dict, indices := checkLossless(t, [][]int{{}, {}}, 16, 3)
	if len(dict) != 0 {
		t.Errorf("Crunch() dict = %v, want empty", dict)
	}
	for i, idx := range indices {
		if len(idx) != 0 {
			t.Errorf("Crunch() indices[%d] = %v, want empty", i, idx)
		}
	}
}

func TestCrunchBudget(t *testing.T) {
	tracks := [][]int{{1}, {2}, {3}}
	if _, _, err := Crunch(tracks, 2, 3); !errors.Is(err, ErrBudget) {
		t.Errorf("Crunch() error = %v, want %v", err, ErrBudget)
	}

	// A tight budget still yields a lossless song within the budget.
	tracks = [][]int{
		{1, 2, 3, 9, 1, 2, 3, 8, 1, 2, 3, 7, 1, 2, 3},
		{4, 1, 2, 3, 5, 1, 2, 3, 6},
	}
	for dictMax := 2; dictMax <= 12; dictMax++ {
		t.Run(fmt.Sprint(dictMax), func(t *testing.T) {
			checkLossless(t, tracks, dictMax, 1)
		})
	}
}

func randomTracks(rng *rand.Rand) [][]int {
	tracks := make([][]int, 1+rng.Intn(16))
	for i := range tracks {
		tracks[i] = make([]int, rng.Intn(40))
		alphabet := 1 + rng.Intn(6)
		for j := range tracks[i] {
			tracks[i][j] = rng.Intn(alphabet)
		}
	}
	return tracks
}

func TestCrunchFuzz(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		tracks := randomTracks(rng)
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			checkLossless(t, tracks, 256, 3)
			checkLossless(t, tracks, 16, 1)
		})
	}
}

func TestCrunchDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 50; i++ {
		tracks := randomTracks(rng)
		dict1, idx1, err1 := Crunch(tracks, 16, 3)
		dict2, idx2, err2 := Crunch(tracks, 16, 3)
		if err1 != nil || err2 != nil {
			t.Fatalf("Crunch() errors = %v, %v", err1, err2)
		}
		if !reflect.DeepEqual(dict1, dict2) || !reflect.DeepEqual(idx1, idx2) {
			t.Fatalf("Crunch(%v) is not deterministic", tracks)
		}
	}
}
