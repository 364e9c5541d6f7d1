// Package apu emulates the WASM-4 sound chip: two pulse channels, a
// triangle channel and a noise channel driven by tone calls and advanced
// by 60Hz ticks.
package apu

import "math"

// TickRate is the number of ticks per second.
const TickRate = 60

const (
	channelPulse1 = iota
	channelPulse2
	channelTriangle
	channelNoise
)

// Flag bits of Tone.
const (
	FlagNoteMode = 0x40
)

type channel struct {
	freq1, freq2 float32

	// Envelope phase boundaries, in samples since the APU was created.
	startTime   uint64
	attackTime  uint64
	decayTime   uint64
	sustainTime uint64
	releaseTime uint64
	// The tick the tone ends on. A channel keeps sounding for the whole of
	// that tick, which lets tones issued every tick join up seamlessly.
	endTick uint64

	sustainVolume int16
	peakVolume    int16
	phase         float32
	pan           uint8

	dutyCycle  float32
	noiseSeed  uint16
	lastRandom int16
}

// APU is the sound chip. It is not safe for concurrent use.
type APU struct {
	time       uint64
	ticks      uint64
	sampleRate uint32
	channels   [4]channel
}

// New returns a silent APU producing sampleRate frames per second.
func New(sampleRate uint32) *APU {
	a := &APU{sampleRate: sampleRate}
	a.channels[channelNoise].noiseSeed = 0x1
	return a
}

// SampleRate returns the number of frames per second.
func (a *APU) SampleRate() uint32 { return a.sampleRate }

// Time returns the number of frames written so far.
func (a *APU) Time() uint64 { return a.time }

// Ticks returns the number of ticks so far.
func (a *APU) Ticks() uint64 { return a.ticks }

// Tick advances the tick counter.
func (a *APU) Tick() {
	a.ticks++
}

// Tone starts a tone, using the same argument packing as the WASM-4 tone
// function:
//
//	frequency: start frequency in bits 0-15, end frequency in bits 16-31
//	duration:  sustain, release, decay, attack ticks from the low byte up
//	volume:    sustain volume in bits 0-7, peak volume in bits 8-15
//	flags:     channel in bits 0-1, duty mode in 2-3, pan in 4-5, note mode 0x40
//
// In note mode each frequency holds a MIDI note in its low byte and a pitch
// bend in 1/256 semitones in its high byte.
func (a *APU) Tone(frequency, duration, volume, flags uint32) {
	freq1 := frequency & 0xffff
	freq2 := frequency >> 16 & 0xffff

	sustain := duration & 0xff
	release := duration >> 8 & 0xff
	decay := duration >> 16 & 0xff
	attack := duration >> 24 & 0xff

	sustainVolume := min(volume&0xff, 100)
	peakVolume := min(volume>>8, 100)

	idx := flags & 0x3
	mode := flags >> 2 & 0x3
	pan := flags >> 4 & 0x3
	noteMode := flags&FlagNoteMode != 0

	ch := &a.channels[idx]

	// Restart the waveform unless the previous tone is still sounding.
	if a.time > ch.releaseTime && a.ticks != ch.endTick {
		if idx == channelTriangle {
			ch.phase = 0.25
		} else {
			ch.phase = 0
		}
	}

	if noteMode {
		ch.freq1 = midiFreq(uint8(freq1), uint8(freq1>>8))
		if freq2 == 0 {
			ch.freq2 = 0
		} else {
			ch.freq2 = midiFreq(uint8(freq2), uint8(freq2>>8))
		}
	} else {
		ch.freq1 = float32(freq1)
		ch.freq2 = float32(freq2)
	}

	ch.startTime = a.time
	ch.attackTime = ch.startTime + uint64(a.sampleRate*attack/TickRate)
	ch.decayTime = ch.attackTime + uint64(a.sampleRate*decay/TickRate)
	ch.sustainTime = ch.decayTime + uint64(a.sampleRate*sustain/TickRate)
	ch.releaseTime = ch.sustainTime + uint64(a.sampleRate*release/TickRate)
	ch.endTick = a.ticks + uint64(attack+decay+sustain+release)

	maxVolume := uint32(0x1333)
	if idx == channelTriangle {
		maxVolume = 0x2000
	}
	ch.sustainVolume = int16(maxVolume * sustainVolume / 100)
	if peakVolume != 0 {
		ch.peakVolume = int16(maxVolume * peakVolume / 100)
	} else {
		ch.peakVolume = int16(maxVolume)
	}
	ch.pan = uint8(pan)

	switch idx {
	case channelPulse1, channelPulse2:
		switch mode {
		case 0:
			ch.dutyCycle = 0.125
		case 2:
			ch.dutyCycle = 0.5
		default:
			ch.dutyCycle = 0.25
		}
	case channelNoise:
		// A noise hit without release would end in a click.
		if release == 0 {
			ch.releaseTime += uint64(a.sampleRate / 1000)
		}
	}
}

// WriteSamples renders frames interleaved stereo frames (left, right) into
// out, which must hold at least 2*frames samples.
func (a *APU) WriteSamples(out []int16, frames int) {
	for i := 0; i < frames; i++ {
		var left, right int16
		for idx := range a.channels {
			ch := &a.channels[idx]
			if a.time >= ch.releaseTime && a.ticks != ch.endTick {
				continue
			}

			freq := ch.frequency(a.time)
			volume := ch.volume(a.time, a.sampleRate)

			var sample int16
			switch idx {
			case channelNoise:
				ch.phase += freq * freq / (float32(1000000.0/44100.0) * float32(a.sampleRate))
				for ch.phase > 0 {
					ch.phase--
					ch.noiseSeed ^= ch.noiseSeed >> 7
					ch.noiseSeed ^= ch.noiseSeed << 9
					ch.noiseSeed ^= ch.noiseSeed << 13
					ch.lastRandom = int16(2*int32(ch.noiseSeed&0x1) - 1)
				}
				sample = int16(int32(volume) * int32(ch.lastRandom))
			default:
				phaseInc := freq / float32(a.sampleRate)
				ch.phase += phaseInc
				if ch.phase >= 1 {
					ch.phase--
				}
				if idx == channelTriangle {
					sample = int16(float64(volume) * (2*math.Abs(float64(2*ch.phase-1)) - 1))
				} else {
					sample = ch.pulse(phaseInc, volume)
				}
			}

			if ch.pan != 1 {
				right = int16(int32(right) + int32(sample))
			}
			if ch.pan != 2 {
				left = int16(int32(left) + int32(sample))
			}
		}
		out[2*i] = left
		out[2*i+1] = right
		a.time++
	}
}

// pulse returns a band-limited square wave sample.
func (ch *channel) pulse(phaseInc float32, volume int16) int16 {
	var dutyPhase, dutyPhaseInc float32
	var multiplier int16
	if ch.phase < ch.dutyCycle {
		dutyPhase = ch.phase / ch.dutyCycle
		dutyPhaseInc = phaseInc / ch.dutyCycle
		multiplier = volume
	} else {
		dutyPhase = (ch.phase - ch.dutyCycle) / (1 - ch.dutyCycle)
		dutyPhaseInc = phaseInc / (1 - ch.dutyCycle)
		multiplier = -volume
	}
	return int16(float32(multiplier) * polyBLEP(dutyPhase, dutyPhaseInc))
}

func (ch *channel) frequency(time uint64) float32 {
	if ch.freq2 > 0 {
		return rampf(time, ch.freq1, ch.freq2, ch.startTime, ch.releaseTime)
	}
	return ch.freq1
}

func (ch *channel) volume(time uint64, sampleRate uint32) int16 {
	switch {
	case time >= ch.sustainTime && ch.releaseTime-ch.sustainTime > uint64(sampleRate/1000):
		return int16(ramp(time, int32(ch.sustainVolume), 0, ch.sustainTime, ch.releaseTime))
	case time >= ch.decayTime:
		return ch.sustainVolume
	case time >= ch.attackTime:
		return int16(ramp(time, int32(ch.peakVolume), int32(ch.sustainVolume), ch.attackTime, ch.decayTime))
	default:
		return int16(ramp(time, 0, int32(ch.peakVolume), ch.startTime, ch.attackTime))
	}
}

func ramp(time uint64, v1, v2 int32, t1, t2 uint64) int32 {
	if time >= t2 {
		return v2
	}
	t := float32(time-t1) / float32(t2-t1)
	return int32(float32(v1) + t*float32(v2-v1))
}

func rampf(time uint64, v1, v2 float32, t1, t2 uint64) float32 {
	if time >= t2 {
		return v2
	}
	t := float32(time-t1) / float32(t2-t1)
	return v1 + t*(v2-v1)
}

func polyBLEP(phase, phaseInc float32) float32 {
	switch {
	case phase < phaseInc:
		t := phase / phaseInc
		return t + t - t*t
	case phase > 1-phaseInc:
		t := (phase - (1 - phaseInc)) / phaseInc
		return 1 - (t + t - t*t)
	default:
		return 1
	}
}

// midiFreq converts a MIDI note and a bend in 1/256 semitones to Hz.
func midiFreq(note, bend uint8) float32 {
	return float32(math.Pow(2, float64((float32(note)-69+float32(bend)/256)/12))) * 440
}
