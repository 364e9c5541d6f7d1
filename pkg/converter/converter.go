package converter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/james-see/w4on2/pkg/bounce"
	"github.com/james-see/w4on2/pkg/crunch"
	"github.com/james-see/w4on2/pkg/export"
	"github.com/james-see/w4on2/pkg/format"
	"github.com/james-see/w4on2/pkg/song"
)

var (
	ErrLossy          = errors.New("crunch did not reproduce the tracks")
	ErrVerifyMismatch = errors.New("crunched and uncrunched songs sound different")
)

// patternCreateCost is what a dictionary entry costs in bytes: one track
// byte to use it and two offset bytes to find it.
const patternCreateCost = 3

// patternBudget keeps the pattern count byte nonzero. The cart runtime
// locates the track offsets from that byte, so a full dictionary of
// format.MaxPatterns would not play there.
const patternBudget = format.MaxPatterns - 1

// Format represents a file format
type Format string

const (
	FormatMIDI    Format = "midi"
	FormatW4ON2   Format = "w4on2"
	FormatWAV     Format = "wav"
	FormatC       Format = "c"
	FormatGo      Format = "go"
	FormatRust    Format = "rust"
	FormatZig     Format = "zig"
	FormatUnknown Format = "unknown"
)

// IsSource reports whether f is a source code format for export.
func (f Format) IsSource() bool {
	switch f {
	case FormatC, FormatGo, FormatRust, FormatZig:
		return true
	}
	return false
}

// DetectFormat detects the format of a file based on extension
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".mid", ".midi":
		return FormatMIDI
	case ".w4on2":
		return FormatW4ON2
	case ".wav":
		return FormatWAV
	case ".c", ".h":
		return FormatC
	case ".go":
		return FormatGo
	case ".rs":
		return FormatRust
	case ".zig":
		return FormatZig
	default:
		return FormatUnknown
	}
}

// DetectFormatFromContent detects format from file content
func DetectFormatFromContent(data []byte) Format {
	if len(data) < 4 {
		return FormatUnknown
	}

	switch string(data[:4]) {
	case "MThd":
		return FormatMIDI
	case "RIFF":
		return FormatWAV
	}

	// A w4on2 song starts with its own size.
	if int(binary.BigEndian.Uint16(data)) == len(data) {
		if _, err := format.ParseHeader(data); err == nil {
			return FormatW4ON2
		}
	}
	return FormatUnknown
}

// Compile runs the whole conversion of midiData and returns every
// intermediate result.
func (c *Converter) Compile(midiData []byte) (*Result, error) {
	s, err := ParseMIDI(midiData)
	if err != nil {
		return nil, stageErr(StageParse, err)
	}

	timing := NewTiming(c.options.Stretch, c.logger)
	tracks, err := c.trackEvents(s, timing)
	if err != nil {
		return nil, err
	}
	tracks = fuseNotesOff(tracks)

	sng := &format.Song{}
	if c.options.Crunch {
		c.logger.Debug("crunching", "tracks", len(tracks), "events", countEvents(tracks))
		dict, indices, err := crunch.Crunch(tracks, patternBudget, patternCreateCost)
		if err != nil {
			return nil, stageErr(StageCrunch, err)
		}
		back, err := crunch.Uncrunch(dict, indices)
		if err != nil {
			return nil, stageErr(StageCrunch, err)
		}
		if !slices.EqualFunc(back, tracks, func(a, b []format.Event) bool { return slices.Equal(a, b) }) {
			return nil, stageErr(StageCrunch, ErrLossy)
		}
		c.logger.Debug("crunched", "patterns", len(dict), "events", countEvents(dict))
		sng.Patterns, sng.Tracks = dict, indices
	} else {
		sng.Patterns = tracks
		sng.Tracks = make([][]int, len(tracks))
		for i := range tracks {
			sng.Tracks[i] = []int{i}
		}
	}

	data, err := sng.MarshalBinary()
	if err != nil {
		return nil, stageErr(StageEncode, err)
	}
	c.logger.Info("compiled song", "bytes", len(data), "patterns", len(sng.Patterns), "tracks", len(sng.Tracks))

	info, _ := timing.Info()
	return &Result{Tracks: tracks, Song: sng, Data: data, Timing: info}, nil
}

// Convert compiles midiData to a w4on2 song.
func (c *Converter) Convert(midiData []byte) ([]byte, error) {
	r, err := c.Compile(midiData)
	if err != nil {
		return nil, err
	}
	return r.Data, nil
}

// Verify compiles midiData with and without crunching and checks that both
// songs render to identical audio.
func (c *Converter) Verify(midiData []byte) error {
	render := func(crunched bool) ([]int16, error) {
		cc := *c
		cc.options.Crunch = crunched
		data, err := cc.Convert(midiData)
		if err != nil {
			return nil, err
		}
		pcm, err := bounce.BouncePCM(data)
		if err != nil {
			return nil, stageErr(StageVerify, err)
		}
		return pcm, nil
	}

	crunched, err := render(true)
	if err != nil {
		return err
	}
	plain, err := render(false)
	if err != nil {
		return err
	}
	if len(crunched) != len(plain) {
		return stageErr(StageVerify, fmt.Errorf("%w: %d samples vs %d", ErrVerifyMismatch, len(crunched), len(plain)))
	}
	for i := range crunched {
		if crunched[i] != plain[i] {
			return stageErr(StageVerify, fmt.Errorf("%w: first difference at sample %d", ErrVerifyMismatch, i))
		}
	}
	c.logger.Info("verified crunched song", "samples", len(plain))
	return nil
}

// Convert compiles midiData with conf.
func Convert(conf song.Config, midiData []byte, opts Options) ([]byte, error) {
	c := New(conf)
	c.SetOptions(opts)
	return c.Convert(midiData)
}

// Verify checks that crunching does not change how midiData sounds with conf.
func Verify(conf song.Config, midiData []byte, stretch bool) error {
	c := New(conf)
	c.SetOptions(Options{Stretch: stretch, Crunch: true})
	return c.Verify(midiData)
}

// ConvertFile converts a file from one format to another
func (c *Converter) ConvertFile(inputPath, outputPath string) error {
	inputFormat := DetectFormat(inputPath)
	outputFormat := DetectFormat(outputPath)

	// Read input
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	if inputFormat == FormatUnknown {
		// Try to detect from content
		inputFormat = DetectFormatFromContent(data)
	}

	if outputFormat == FormatUnknown {
		return errors.New("cannot determine output format from filename")
	}

	var blob []byte
	switch inputFormat {
	case FormatMIDI:
		if blob, err = c.Convert(data); err != nil {
			return fmt.Errorf("conversion failed: %w", err)
		}
	case FormatW4ON2:
		if _, err := format.Unmarshal(data); err != nil {
			return fmt.Errorf("invalid w4on2 input: %w", err)
		}
		blob = data
	default:
		return fmt.Errorf("unsupported conversion: %s to %s", inputFormat, outputFormat)
	}

	var outputData []byte
	switch {
	case outputFormat == FormatW4ON2:
		outputData = blob
	case outputFormat == FormatWAV:
		pcm, err := bounce.BouncePCM(blob)
		if err != nil {
			return fmt.Errorf("bounce failed: %w", err)
		}
		if outputData, err = bounce.WAV(pcm); err != nil {
			return fmt.Errorf("bounce failed: %w", err)
		}
	case outputFormat.IsSource():
		name := strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))
		if outputData, err = export.Render(string(outputFormat), name, blob); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
	default:
		return fmt.Errorf("unsupported conversion: %s to %s", inputFormat, outputFormat)
	}

	// Write output
	if err := os.WriteFile(outputPath, outputData, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	c.logger.Info("converted file", "input", inputPath, "output", outputPath, "bytes", len(outputData))
	return nil
}

// GetSupportedConversions returns a list of supported conversion paths
func GetSupportedConversions() []string {
	var out []string
	for _, in := range []Format{FormatMIDI, FormatW4ON2} {
		for _, to := range []Format{FormatW4ON2, FormatWAV, FormatC, FormatGo, FormatRust, FormatZig} {
			if in == to {
				continue
			}
			out = append(out, fmt.Sprintf("%s -> %s", in, to))
		}
	}
	return out
}

func countEvents(tracks [][]format.Event) int {
	n := 0
	for _, t := range tracks {
		n += len(t)
	}
	return n
}
