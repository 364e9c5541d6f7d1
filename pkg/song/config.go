package song

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Encoding is a text encoding of a Config.
type Encoding string

const (
	EncodingTOML Encoding = "toml"
	EncodingYAML Encoding = "yaml"
)

var (
	ErrChannelCount     = errors.New("song config must configure exactly 16 channels")
	ErrUnknownEncoding  = errors.New("unknown config encoding")
	ErrInvalidADSR      = errors.New("adsr must hold 4 values in 0..255")
	ErrInvalidChannelID = errors.New("channel must be \"triangle\", \"noise\" or a pulse1/pulse2 table")
)

// EncodingFromPath picks the config encoding from a file extension.
func EncodingFromPath(path string) (Encoding, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return EncodingTOML, nil
	case ".yml", ".yaml":
		return EncodingYAML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownEncoding, path)
}

// fileConfig mirrors the on-disk layout. Every per-channel field is
// optional and falls back to DefaultTrackConfig.
type fileConfig struct {
	Channels []fileTrack `toml:"channels" yaml:"channels"`
}

type fileTrack struct {
	Nickname   *string   `toml:"nickname,omitempty" yaml:"nickname,omitempty"`
	Channel    any       `toml:"channel,omitempty" yaml:"channel,omitempty"`
	Volume     *uint8    `toml:"volume,omitempty" yaml:"volume,omitempty"`
	ADSR       []int     `toml:"adsr,omitempty" yaml:"adsr,omitempty,flow"`
	PitchEnv   *PitchEnv `toml:"pitch_env,omitempty" yaml:"pitch_env,omitempty"`
	Portamento *uint8    `toml:"portamento,omitempty" yaml:"portamento,omitempty"`
	Arpeggio   *Arpeggio `toml:"arpeggio,omitempty" yaml:"arpeggio,omitempty"`
	Vibrato    *Vibrato  `toml:"vibrato,omitempty" yaml:"vibrato,omitempty"`
}

// Parse decodes a config document.
func Parse(data []byte, enc Encoding) (Config, error) {
	var fc fileConfig
	var err error
	switch enc {
	case EncodingTOML:
		err = toml.Unmarshal(data, &fc)
	case EncodingYAML:
		err = yaml.Unmarshal(data, &fc)
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to decode %s config: %w", enc, err)
	}
	if len(fc.Channels) != TrackCount {
		return Config{}, fmt.Errorf("%w: got %d", ErrChannelCount, len(fc.Channels))
	}

	conf := Default()
	for i, ft := range fc.Channels {
		if err := ft.apply(&conf.Channels[i]); err != nil {
			return Config{}, fmt.Errorf("channel %d: %w", i, err)
		}
	}
	return conf, nil
}

func (ft fileTrack) apply(tc *TrackConfig) error {
	if ft.Nickname != nil {
		tc.Nickname = *ft.Nickname
	}
	if ft.Channel != nil {
		ch, err := parseChannel(ft.Channel)
		if err != nil {
			return err
		}
		tc.Channel = ch
	}
	if ft.Volume != nil {
		tc.Volume = *ft.Volume
	}
	if ft.ADSR != nil {
		if len(ft.ADSR) != len(tc.ADSR) {
			return fmt.Errorf("%w: got %d values", ErrInvalidADSR, len(ft.ADSR))
		}
		for i, v := range ft.ADSR {
			if v < 0 || v > 255 {
				return fmt.Errorf("%w: got %d", ErrInvalidADSR, v)
			}
			tc.ADSR[i] = uint8(v)
		}
	}
	if ft.PitchEnv != nil {
		tc.PitchEnv = *ft.PitchEnv
	}
	if ft.Portamento != nil {
		tc.Portamento = *ft.Portamento
	}
	if ft.Arpeggio != nil {
		tc.Arpeggio = *ft.Arpeggio
	}
	if ft.Vibrato != nil {
		tc.Vibrato = *ft.Vibrato
	}
	return nil
}

// parseChannel accepts "triangle", "noise", or a single-entry table
// such as {pulse1 = "50%"}.
func parseChannel(v any) (Channel, error) {
	switch v := v.(type) {
	case string:
		switch v {
		case "triangle":
			return TriangleChannel(), nil
		case "noise":
			return NoiseChannel(), nil
		}
		return Channel{}, fmt.Errorf("%w: %q", ErrUnknownChannel, v)
	case map[string]any:
		if len(v) != 1 {
			return Channel{}, ErrInvalidChannelID
		}
		for key, duty := range v {
			s, ok := duty.(string)
			if !ok {
				return Channel{}, fmt.Errorf("%w: duty of %s must be a string", ErrInvalidChannelID, key)
			}
			d, err := ParsePulseDuty(s)
			if err != nil {
				return Channel{}, err
			}
			switch key {
			case "pulse1":
				return PulseChannel1(d), nil
			case "pulse2":
				return PulseChannel2(d), nil
			}
			return Channel{}, fmt.Errorf("%w: %q", ErrUnknownChannel, key)
		}
	}
	return Channel{}, ErrInvalidChannelID
}

func formatChannel(c Channel) any {
	switch c.Kind {
	case Pulse1, Pulse2:
		return map[string]any{c.Kind.String(): c.Duty.String()}
	}
	return c.Kind.String()
}

// Marshal encodes a config, writing every field of every channel.
func Marshal(conf Config, enc Encoding) ([]byte, error) {
	fc := fileConfig{Channels: make([]fileTrack, len(conf.Channels))}
	for i := range conf.Channels {
		tc := conf.Channels[i]
		fc.Channels[i] = fileTrack{
			Nickname:   &tc.Nickname,
			Channel:    formatChannel(tc.Channel),
			Volume:     &tc.Volume,
			ADSR:       []int{int(tc.ADSR[0]), int(tc.ADSR[1]), int(tc.ADSR[2]), int(tc.ADSR[3])},
			PitchEnv:   &tc.PitchEnv,
			Portamento: &tc.Portamento,
			Arpeggio:   &tc.Arpeggio,
			Vibrato:    &tc.Vibrato,
		}
	}

	switch enc {
	case EncodingTOML:
		var buf bytes.Buffer
		e := toml.NewEncoder(&buf)
		e.SetIndentTables(true)
		if err := e.Encode(fc); err != nil {
			return nil, fmt.Errorf("failed to encode toml config: %w", err)
		}
		return buf.Bytes(), nil
	case EncodingYAML:
		var buf bytes.Buffer
		e := yaml.NewEncoder(&buf)
		e.SetIndent(2)
		if err := e.Encode(fc); err != nil {
			return nil, fmt.Errorf("failed to encode yaml config: %w", err)
		}
		if err := e.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode yaml config: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
}

// Load reads a config file, choosing the decoder from its extension.
func Load(path string) (Config, error) {
	enc, err := EncodingFromPath(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, enc)
}

// Save writes a config file, choosing the encoder from its extension.
func Save(path string, conf Config) error {
	enc, err := EncodingFromPath(path)
	if err != nil {
		return err
	}
	data, err := Marshal(conf, enc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Encodings lists the supported config encodings.
func Encodings() []Encoding {
	return []Encoding{EncodingTOML, EncodingYAML}
}
