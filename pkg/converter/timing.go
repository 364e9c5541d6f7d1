package converter

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/james-see/w4on2/pkg/apu"
)

var (
	ErrTimingUnknown       = errors.New("midi tempo or time signature missing")
	ErrTempoChange         = errors.New("tempo changes are not supported")
	ErrTimeSignatureChange = errors.New("time signature changes are not supported")
)

// TimeSignature is the payload of a MIDI time signature meta event.
// DenominatorPower is stored the way MIDI does: 2 means quarter notes.
type TimeSignature struct {
	Numerator        uint8
	DenominatorPower uint8
	ClocksPerClick   uint8
	ThirtySeconds    uint8
}

func (ts TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", ts.Numerator, 1<<ts.DenominatorPower)
}

// OptimalBPM returns the tempo closest to midiBPM that a whole number of
// ticks per beat can play without drift, and that number of ticks.
// When any input is zero no conversion is possible and it returns
// (midiBPM, 1).
func OptimalBPM(midiBPM float64, num, denom int) (float64, int) {
	if midiBPM == 0 || num == 0 || denom == 0 {
		return midiBPM, 1
	}
	exact := apu.TickRate * 60 / (midiBPM * float64(num))
	bpm := func(tickWait int) float64 {
		return apu.TickRate * 60 / float64(tickWait*num)
	}

	tickWait := max(int(math.Round(exact)), 1)
	for _, c := range []int{int(math.Floor(exact)), int(math.Ceil(exact))} {
		if c < 1 {
			continue
		}
		if math.Abs(midiBPM-bpm(c)) < math.Abs(midiBPM-bpm(tickWait)) {
			tickWait = c
		}
	}
	return bpm(tickWait), tickWait
}

// literalTickDivisor is the divisor that keeps the MIDI tempo exactly,
// with a fractional tick wait.
func literalTickDivisor(midiBPM float64, ts TimeSignature) float64 {
	tickWait := apu.TickRate * 60 / (midiBPM * float64(ts.Numerator))
	return float64(ts.ClocksPerClick) / tickWait
}

// TimingInfo describes how MIDI time was mapped onto ticks.
type TimingInfo struct {
	MIDIBPM       float64
	OptimalBPM    float64
	TickWait      int
	Divisor       float64
	TimeSignature TimeSignature
	// Sum of the rounding errors of every converted timestamp, in ticks.
	Inaccuracy float64
}

// Timing converts MIDI ticks to ticks once both the tempo and the time
// signature of a song are known. A song may only have one of each.
type Timing struct {
	stretch bool
	logger  *slog.Logger

	tempo    uint32
	timeSig  TimeSignature
	hasSig   bool
	resolved bool
	info     TimingInfo
}

// NewTiming returns a Timing. With stretch the song's tempo is rounded to
// the nearest drift free one, otherwise every timestamp is rounded on its
// own.
func NewTiming(stretch bool, logger *slog.Logger) *Timing {
	if logger == nil {
		logger = slog.Default()
	}
	return &Timing{stretch: stretch, logger: logger}
}

// SetTempo sets the tempo in microseconds per quarter note.
func (t *Timing) SetTempo(usPerQuarter uint32) error {
	if t.tempo != 0 && t.tempo != usPerQuarter {
		return fmt.Errorf("%w: %dus then %dus per quarter", ErrTempoChange, t.tempo, usPerQuarter)
	}
	t.tempo = usPerQuarter
	if t.hasSig {
		t.resolve()
	}
	return nil
}

// SetTimeSignature sets the time signature.
func (t *Timing) SetTimeSignature(ts TimeSignature) error {
	if t.hasSig && t.timeSig != ts {
		return fmt.Errorf("%w: %v then %v", ErrTimeSignatureChange, t.timeSig, ts)
	}
	t.timeSig, t.hasSig = ts, true
	if t.tempo != 0 {
		t.resolve()
	}
	return nil
}

func (t *Timing) resolve() {
	midiBPM := 60_000_000 / float64(t.tempo)
	optimal, tickWait := OptimalBPM(midiBPM, int(t.timeSig.Numerator), int(t.timeSig.DenominatorPower))
	divisor := float64(t.timeSig.ClocksPerClick) / float64(tickWait)
	t.logger.Info("resolved timing",
		"midi_bpm", midiBPM,
		"optimal_bpm", optimal,
		"tick_wait", tickWait,
		"tick_divisor", divisor,
		"time_signature", t.timeSig.String())

	if !t.stretch {
		divisor = literalTickDivisor(midiBPM, t.timeSig)
		t.logger.Info("keeping literal tempo", "tick_divisor", divisor)
	}
	t.info = TimingInfo{
		MIDIBPM:       midiBPM,
		OptimalBPM:    optimal,
		TickWait:      tickWait,
		Divisor:       divisor,
		TimeSignature: t.timeSig,
		Inaccuracy:    t.info.Inaccuracy,
	}
	// A zero clocks per click byte leaves nothing to divide by.
	t.resolved = divisor > 0 && !math.IsInf(divisor, 0)
}

// Ticks converts an absolute MIDI tick count to ticks.
func (t *Timing) Ticks(midiTicks uint64) (uint64, error) {
	if !t.resolved {
		if midiTicks == 0 {
			return 0, nil
		}
		return 0, fmt.Errorf("%w at midi tick %d", ErrTimingUnknown, midiTicks)
	}
	x := float64(midiTicks) / t.info.Divisor
	r := math.Round(x)
	t.info.Inaccuracy += math.Abs(x - r)
	return uint64(r), nil
}

// Info returns the resolved timing and the inaccuracy so far. ok is false
// until both tempo and time signature are known.
func (t *Timing) Info() (info TimingInfo, ok bool) {
	return t.info, t.resolved
}

// Inaccuracy returns the accumulated rounding error in ticks.
func (t *Timing) Inaccuracy() float64 {
	return t.info.Inaccuracy
}
