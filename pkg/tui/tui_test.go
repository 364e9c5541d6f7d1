package tui

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/w4on2/pkg/format"
	"github.com/james-see/w4on2/pkg/song"
)

func writeSong(t *testing.T, path string) {
	t.Helper()
	s := format.Song{
		Patterns: [][]format.Event{{format.NoteOn(60), format.DeltaNotesOff(10)}},
		Tracks:   [][]int{{0}},
	}
	b, err := s.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		t.Fatalf("failed to write song: %v", err)
	}
}

func writeMIDI(t *testing.T, path string) {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(96)
	var track smf.Track
	track.Add(0, []byte{0xff, 0x51, 0x03, 0x07, 0xa1, 0x20})
	track.Add(0, []byte{0xff, 0x58, 0x04, 0x04, 0x02, 0x18, 0x08})
	track.Add(0, midi.NoteOn(0, 60, 100))
	track.Add(96, midi.NoteOff(0, 60))
	track.Close(0)
	if err := s.Add(track); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write MIDI: %v", err)
	}
}

func TestMenuItems(t *testing.T) {
	items := menuItems()
	var titles []string
	for _, it := range items {
		titles = append(titles, it.Title)
	}
	for _, want := range []string{"W4ON2 → C", "W4ON2 → Go", "W4ON2 → Rust", "W4ON2 → Zig"} {
		found := false
		for _, title := range titles {
			if title == want {
				found = true
			}
		}
		if !found {
			t.Errorf("menuItems() = %v, missing %q", titles, want)
		}
	}
	if last := items[len(items)-1]; last.Action != ActionExit {
		t.Errorf("last item = %q, want Exit", last.Title)
	}
}

func TestMenuNavigation(t *testing.T) {
	var m tea.Model = New()
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if got := m.(Model).menuIndex; got != 0 {
		t.Errorf("menuIndex after up = %d, want 0", got)
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if got := m.(Model).menuIndex; got != 1 {
		t.Errorf("menuIndex after down = %d, want 1", got)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model := m.(Model)
	if model.state != StateFilePicker {
		t.Fatalf("state = %v, want %v", model.state, StateFilePicker)
	}
	if got := model.filePicker.AllowedTypes; len(got) != 1 || got[0] != ".w4on2" {
		t.Errorf("AllowedTypes = %v, want [.w4on2]", got)
	}
	if !strings.Contains(model.View(), ".W4ON2") {
		t.Errorf("View() does not name the file type")
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if got := m.(Model).state; got != StateMenu {
		t.Errorf("state after esc = %v, want %v", got, StateMenu)
	}
}

func TestMenuExit(t *testing.T) {
	var m tea.Model = New()
	for range menuItems() {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	}
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd == nil {
		t.Errorf("enter on Exit returned no command")
	}
}

func TestConversionDone(t *testing.T) {
	var m tea.Model = New()
	m, _ = m.Update(conversionDoneMsg{outputFile: "/tmp/tune.wav"})
	model := m.(Model)
	if model.state != StateResult {
		t.Fatalf("state = %v, want %v", model.state, StateResult)
	}
	if !strings.Contains(model.View(), "tune.wav") {
		t.Errorf("View() does not show the output file")
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if got := m.(Model).state; got != StateMenu {
		t.Errorf("state after enter = %v, want %v", got, StateMenu)
	}
}

func TestPerform(t *testing.T) {
	dir := t.TempDir()
	songPath := filepath.Join(dir, "tune.w4on2")
	writeSong(t, songPath)

	confPath := filepath.Join(dir, "theme.toml")
	if err := song.Save(confPath, song.Default()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	writeMIDI(t, filepath.Join(dir, "theme.mid"))

	tests := []struct {
		name     string
		item     MenuItem
		path     string
		expected string
		prefix   string
	}{
		{"convert", MenuItem{Action: ActionConvert}, confPath, "theme.w4on2", ""},
		{"bounce", MenuItem{Action: ActionBounce}, songPath, "tune.wav", "RIFF"},
		{"export", MenuItem{Action: ActionExport, Lang: "zig"}, songPath, "tune.zig", "// tune"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := perform(tt.item, tt.path)
			if err != nil {
				t.Fatalf("perform() error = %v", err)
			}
			if filepath.Base(out) != tt.expected {
				t.Errorf("perform() = %q, want %q", filepath.Base(out), tt.expected)
			}
			data, err := os.ReadFile(out)
			if err != nil {
				t.Fatalf("failed to read output: %v", err)
			}
			if !bytes.HasPrefix(data, []byte(tt.prefix)) {
				t.Errorf("output starts with %q, want %q", data[:min(len(data), 8)], tt.prefix)
			}
		})
	}
}

func TestPerformErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.w4on2")
	if err := os.WriteFile(bad, []byte{0, 1}, 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	confPath := filepath.Join(dir, "lonely.toml")
	if err := song.Save(confPath, song.Default()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	tests := []struct {
		name string
		item MenuItem
		path string
	}{
		{"invalid song", MenuItem{Action: ActionBounce}, bad},
		{"missing midi", MenuItem{Action: ActionConvert}, confPath},
		{"missing file", MenuItem{Action: ActionExport, Lang: "c"}, filepath.Join(dir, "nope.w4on2")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := perform(tt.item, tt.path); err == nil {
				t.Errorf("perform() error = nil, want error")
			}
		})
	}
}
