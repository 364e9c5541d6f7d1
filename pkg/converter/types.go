// Package converter compiles a Standard MIDI File and a song configuration
// into the w4on2 binary format.
package converter

import (
	"log/slog"

	"github.com/james-see/w4on2/pkg/format"
	"github.com/james-see/w4on2/pkg/song"
)

// Stage names the step of a conversion that failed.
type Stage string

const (
	StageParse  Stage = "parse"
	StageTiming Stage = "timing"
	StageMap    Stage = "map"
	StageCrunch Stage = "crunch"
	StageEncode Stage = "encode"
	StageVerify Stage = "verify"
)

// StageError is returned by every conversion failure.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Options control a conversion.
type Options struct {
	// Stretch rounds the tempo to one that a whole number of ticks per beat
	// plays without drift.
	Stretch bool
	// Crunch compresses the tracks into a shared pattern dictionary.
	Crunch bool
}

// DefaultOptions returns the options the command line uses by default.
func DefaultOptions() Options {
	return Options{Stretch: true, Crunch: true}
}

// Result holds a compiled song and what it was compiled from.
type Result struct {
	// Tracks are the per channel events before compression.
	Tracks [][]format.Event
	Song   *format.Song
	Data   []byte
	Timing TimingInfo
}

// Converter compiles MIDI files with one song configuration.
type Converter struct {
	config  song.Config
	options Options
	logger  *slog.Logger
}

// New creates a Converter for conf with the default options.
func New(conf song.Config) *Converter {
	return &Converter{
		config:  conf,
		options: DefaultOptions(),
		logger:  slog.Default(),
	}
}

// Config returns the song configuration.
func (c *Converter) Config() song.Config {
	return c.config
}

// SetConfig sets the song configuration.
func (c *Converter) SetConfig(conf song.Config) {
	c.config = conf
}

// Options returns the conversion options.
func (c *Converter) Options() Options {
	return c.options
}

// SetOptions sets the conversion options.
func (c *Converter) SetOptions(opts Options) {
	c.options = opts
}

// SetLogger sets the logger conversions report progress to. A nil logger
// selects slog.Default.
func (c *Converter) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	c.logger = logger
}
