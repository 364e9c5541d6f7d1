package bounce

import (
	"math"
	"time"

	"github.com/viterin/vek/vek32"
)

// Levels summarizes rendered audio. Levels are in dBFS; silence is -Inf.
type Levels struct {
	Duration  time.Duration
	PeakLeft  float64
	PeakRight float64
	RMSLeft   float64
	RMSRight  float64
}

// Measure computes the duration, peak and RMS levels of interleaved stereo pcm.
func Measure(pcm []int16) Levels {
	frames := len(pcm) / Channels
	l := Levels{Duration: time.Duration(frames) * time.Second / SampleRate}

	left := make([]float32, frames)
	right := make([]float32, frames)
	for i := 0; i < frames; i++ {
		left[i] = float32(pcm[2*i]) / 32768
		right[i] = float32(pcm[2*i+1]) / 32768
	}
	l.PeakLeft, l.RMSLeft = measure(left)
	l.PeakRight, l.RMSRight = measure(right)
	return l
}

func measure(x []float32) (peak, rms float64) {
	if len(x) == 0 {
		return math.Inf(-1), math.Inf(-1)
	}
	sq := vek32.Mul_Into(make([]float32, len(x)), x, x)
	rms = math.Sqrt(float64(vek32.Mean(sq)))
	vek32.Abs_Inplace(x)
	peak = float64(vek32.Max(x))
	return decibels(peak), decibels(rms)
}

func decibels(v float64) float64 {
	if v == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}
