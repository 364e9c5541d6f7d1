// Package song describes how each of the 16 MIDI channels of a song is
// played on the WASM-4 sound chip.
package song

import (
	"errors"
	"fmt"
)

// TrackCount is the number of MIDI channels a song configures.
const TrackCount = 16

// VolumeMax is the loudest instrument volume the runtime understands.
const VolumeMax = 255

// SustainMax is the loudest sustain level of an ADSR envelope.
const SustainMax = 255

var (
	ErrUnknownDuty    = errors.New("unknown pulse duty")
	ErrUnknownChannel = errors.New("unknown channel")
)

// PulseDuty is the duty cycle of a pulse channel.
type PulseDuty uint8

const (
	Duty12_5 PulseDuty = iota
	Duty25
	Duty50
	Duty75
)

var dutyNames = [...]string{"12.5%", "25%", "50%", "75%"}

func (d PulseDuty) String() string {
	if int(d) < len(dutyNames) {
		return dutyNames[d]
	}
	return fmt.Sprintf("PulseDuty(%d)", uint8(d))
}

// ParsePulseDuty parses a duty name such as "50%".
func ParsePulseDuty(s string) (PulseDuty, error) {
	for i, name := range dutyNames {
		if s == name {
			return PulseDuty(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDuty, s)
}

// ChannelKind selects one of the four chip channels.
type ChannelKind uint8

const (
	Pulse1 ChannelKind = iota
	Pulse2
	Triangle
	Noise
)

var kindNames = [...]string{"pulse1", "pulse2", "triangle", "noise"}

func (k ChannelKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ChannelKind(%d)", uint8(k))
}

// Channel is the chip channel an instrument plays on. Duty is only
// meaningful for the pulse channels.
type Channel struct {
	Kind ChannelKind
	Duty PulseDuty
}

// PulseChannel1 returns the first pulse channel with the given duty.
func PulseChannel1(d PulseDuty) Channel { return Channel{Kind: Pulse1, Duty: d} }

// PulseChannel2 returns the second pulse channel with the given duty.
func PulseChannel2(d PulseDuty) Channel { return Channel{Kind: Pulse2, Duty: d} }

// TriangleChannel returns the triangle channel.
func TriangleChannel() Channel { return Channel{Kind: Triangle} }

// NoiseChannel returns the noise channel.
func NoiseChannel() Channel { return Channel{Kind: Noise} }

// Flags returns the WASM-4 tone flags selecting this channel: the channel
// index in bits 0-1 and, for pulse channels, the duty mode in bits 2-3.
func (c Channel) Flags() uint8 {
	switch c.Kind {
	case Pulse1:
		return uint8(c.Duty) << 2
	case Pulse2:
		return 1 | uint8(c.Duty)<<2
	case Triangle:
		return 2
	default:
		return 3
	}
}

func (c Channel) String() string {
	if c.Kind == Pulse1 || c.Kind == Pulse2 {
		return fmt.Sprintf("%s(%s)", c.Kind, c.Duty)
	}
	return c.Kind.String()
}

// Pan places a channel in the stereo field.
type Pan uint8

const (
	Stereo Pan = iota
	Left
	Right
)

func (p Pan) String() string {
	switch p {
	case Stereo:
		return "stereo"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("Pan(%d)", uint8(p))
}

// PanFromController quantizes a MIDI pan controller value (CC 10).
func PanFromController(value uint8) Pan {
	switch {
	case value < 43:
		return Left
	case value > 84:
		return Right
	default:
		return Stereo
	}
}

// ADSR holds attack, decay and release durations in ticks and the sustain
// level, in that order: A, D, S, R.
type ADSR [4]uint8

func (a ADSR) Attack() uint8  { return a[0] }
func (a ADSR) Decay() uint8   { return a[1] }
func (a ADSR) Sustain() uint8 { return a[2] }
func (a ADSR) Release() uint8 { return a[3] }

// PitchEnv bends a note from NoteOffset semitones to its pitch over Duration ticks.
type PitchEnv struct {
	NoteOffset int8  `toml:"note_offset" yaml:"note_offset"`
	Duration   uint8 `toml:"duration" yaml:"duration"`
}

// Arpeggio cycles through held notes every Rate ticks. Zero disables it.
type Arpeggio struct {
	Rate uint8 `toml:"rate" yaml:"rate"`
}

// Vibrato modulates the pitch with a triangle wave.
type Vibrato struct {
	Speed uint8 `toml:"speed" yaml:"speed"`
	Depth uint8 `toml:"depth" yaml:"depth"`
}

// TrackConfig is the instrument assigned to one MIDI channel.
type TrackConfig struct {
	Nickname   string
	Channel    Channel
	Volume     uint8
	ADSR       ADSR
	PitchEnv   PitchEnv
	Portamento uint8
	Arpeggio   Arpeggio
	Vibrato    Vibrato
}

// DefaultTrackConfig returns the instrument state the runtime starts from.
func DefaultTrackConfig() TrackConfig {
	return TrackConfig{
		Channel: PulseChannel1(Duty12_5),
		Volume:  VolumeMax,
		ADSR:    ADSR{0, 0, SustainMax, 0},
	}
}

// Config assigns an instrument to every MIDI channel.
type Config struct {
	Channels [TrackCount]TrackConfig
}

// Default returns a config with every channel set to DefaultTrackConfig.
func Default() Config {
	var c Config
	for i := range c.Channels {
		c.Channels[i] = DefaultTrackConfig()
	}
	return c
}
