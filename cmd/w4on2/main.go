// Package main is the entry point for the w4on2 CLI
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/spf13/cobra"

	"github.com/james-see/w4on2/pkg/api"
	"github.com/james-see/w4on2/pkg/bounce"
	"github.com/james-see/w4on2/pkg/converter"
	"github.com/james-see/w4on2/pkg/export"
	"github.com/james-see/w4on2/pkg/format"
	"github.com/james-see/w4on2/pkg/live"
	"github.com/james-see/w4on2/pkg/song"
	"github.com/james-see/w4on2/pkg/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	outputFile string
	midiFile   string
	noStretch  bool
	noCrunch   bool
	verify     bool
	showStats  bool
	showEvents bool
	exportLang string
	exportName string
	serverPort int
	verbose    bool
	quiet      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "w4on2",
	Short: "Compile MIDI songs for the WASM-4 sound chip",
	Long: `w4on2 compiles a MIDI file and a 16 channel instrument config into a
compact byte code song that a WASM-4 cart plays on its 4 sound channels.

Examples:
  w4on2 init -o song.toml
  w4on2 convert song.toml
  w4on2 convert song.toml -m tune.mid -o tune.w4on2 --verify
  w4on2 bounce tune.w4on2 --stats
  w4on2 export tune.w4on2 --lang rust
  w4on2 play tune.w4on2
  w4on2 tui
  w4on2 serve --port 8080`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

var convertCmd = &cobra.Command{
	Use:   "convert <config>",
	Short: "Compile a MIDI file with a song config",
	Long: `Compiles a MIDI file into a w4on2 song. The MIDI file and the output
default to the config path with .mid and .w4on2 extensions. An output with
a .wav, .h, .go, .rs or .zig extension is rendered or exported instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

var bounceCmd = &cobra.Command{
	Use:   "bounce <input.w4on2>",
	Short: "Render a song to a WAV file",
	Args:  cobra.ExactArgs(1),
	RunE:  runBounce,
}

var exportCmd = &cobra.Command{
	Use:   "export <input.w4on2>",
	Short: "Embed a song in source code for a cart",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var infoCmd = &cobra.Command{
	Use:   "info <input.w4on2>",
	Short: "Show the patterns and tracks of a song",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default song config",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var playCmd = &cobra.Command{
	Use:   "play <input.w4on2>",
	Short: "Play a song on the default audio device",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	// convert command
	convertCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path")
	convertCmd.Flags().StringVarP(&midiFile, "midi", "m", "", "MIDI file path")
	convertCmd.Flags().BoolVar(&noStretch, "no-stretch", false, "Keep the MIDI tempo instead of rounding it to a drift free one")
	convertCmd.Flags().BoolVar(&noCrunch, "no-crunch", false, "Skip pattern compression")
	convertCmd.Flags().BoolVar(&verify, "verify", false, "Check that compression does not change the sound")

	// bounce command
	bounceCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output .wav file path")
	bounceCmd.Flags().BoolVar(&showStats, "stats", false, "Print peak and RMS levels")

	// export command
	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output source file path")
	exportCmd.Flags().StringVarP(&exportLang, "lang", "l", "c", fmt.Sprintf("Language (%s)", strings.Join(export.Languages(), ", ")))
	exportCmd.Flags().StringVarP(&exportName, "name", "n", "", "Identifier (default: file name)")

	// info command
	infoCmd.Flags().BoolVar(&showEvents, "events", false, "List the events of every pattern")

	// init command
	initCmd.Flags().StringVarP(&outputFile, "output", "o", "song.toml", "Output config path (.toml, .yaml)")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "Server port")

	// Add commands
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(bounceCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func getOutputPath(input, defaultExt string) string {
	if outputFile != "" {
		return outputFile
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + defaultExt
}

func readSong(path string) ([]byte, *format.Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	s, err := format.Unmarshal(data)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid w4on2 file %s: %w", path, err)
	}
	return data, s, nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	configPath := args[0]
	base := strings.TrimSuffix(configPath, filepath.Ext(configPath))
	input := midiFile
	if input == "" {
		input = base + ".mid"
	}
	output := getOutputPath(configPath, ".w4on2")

	conf, err := song.Load(configPath)
	if err != nil {
		return err
	}
	conv := converter.New(conf)
	conv.SetOptions(converter.Options{Stretch: !noStretch, Crunch: !noCrunch})

	if verify {
		data, err := os.ReadFile(input)
		if err != nil {
			return err
		}
		if err := conv.Verify(data); err != nil {
			return err
		}
		slog.Info("verified compression", "midi", input)
	}

	if err := conv.ConvertFile(input, output); err != nil {
		return err
	}
	fmt.Printf("Converted %s -> %s\n", input, output)
	return nil
}

func runBounce(cmd *cobra.Command, args []string) error {
	input := args[0]
	output := getOutputPath(input, ".wav")

	data, _, err := readSong(input)
	if err != nil {
		return err
	}
	pcm, err := bounce.BouncePCM(data)
	if err != nil {
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := bounce.WriteWAV(f, pcm); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Printf("Rendered %s -> %s\n", input, output)
	if showStats {
		l := bounce.Measure(pcm)
		fmt.Printf("Duration: %s\n", l.Duration.Round(time.Millisecond))
		fmt.Printf("Peak:     L %6.2f dBFS  R %6.2f dBFS\n", l.PeakLeft, l.PeakRight)
		fmt.Printf("RMS:      L %6.2f dBFS  R %6.2f dBFS\n", l.RMSLeft, l.RMSRight)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	input := args[0]
	ext := export.Extension(exportLang)
	if ext == "" {
		return fmt.Errorf("%w: %q", export.ErrUnknownLanguage, exportLang)
	}
	output := getOutputPath(input, ext)

	data, _, err := readSong(input)
	if err != nil {
		return err
	}
	name := exportName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(output), filepath.Ext(output))
	}
	src, err := export.Render(exportLang, name, data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, src, 0644); err != nil {
		return err
	}

	fmt.Printf("Exported %s -> %s\n", input, output)
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	data, s, err := readSong(args[0])
	if err != nil {
		return err
	}
	h, err := format.ParseHeader(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Size:     %d bytes\n", h.Size)
	fmt.Fprintf(out, "Patterns: %d\n", len(s.Patterns))
	fmt.Fprintf(out, "Tracks:   %d\n", len(s.Tracks))
	for i, track := range s.Tracks {
		fmt.Fprintf(out, "  track %2d: %v\n", i, track)
	}
	for i, p := range s.Patterns {
		start, end := h.PatternBounds(i)
		fmt.Fprintf(out, "pattern %3d: %d events, %d bytes\n", i, len(p), end-start)
		if showEvents {
			for _, ev := range p {
				fmt.Fprintf(out, "    %s\n", ev)
			}
		}
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(outputFile); err == nil {
		return fmt.Errorf("%s already exists", outputFile)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := song.Save(outputFile, song.Default()); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", outputFile)
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	data, _, err := readSong(args[0])
	if err != nil {
		return err
	}
	r, err := live.NewRenderer(data)
	if err != nil {
		return err
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   bounce.SampleRate,
		ChannelCount: bounce.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("failed to open audio device: %w", err)
	}
	<-ready

	p := ctx.NewPlayer(r)
	p.Play()
	fmt.Printf("Playing %s\n", args[0])
	for p.IsPlaying() {
		time.Sleep(100 * time.Millisecond)
		fmt.Printf("\r%s", r.Elapsed().Truncate(100*time.Millisecond))
	}
	fmt.Println()
	return p.Close()
}

func runTUI(cmd *cobra.Command, args []string) error {
	return tui.Run()
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Printf("Starting API server on port %d...\n", serverPort)
	return api.StartServer(serverPort)
}
