// Package tui provides a terminal user interface for w4on2
package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/james-see/w4on2/pkg/bounce"
	"github.com/james-see/w4on2/pkg/converter"
	"github.com/james-see/w4on2/pkg/export"
	"github.com/james-see/w4on2/pkg/format"
	"github.com/james-see/w4on2/pkg/song"
)

// WASM-4 palette
var (
	paletteLight = lipgloss.Color("#E0F8CF")
	paletteMid   = lipgloss.Color("#86C06C")
	paletteDark  = lipgloss.Color("#306850")
	paletteBlack = lipgloss.Color("#071821")
)

type theme struct {
	logo, title, item, selected, detail, status, fail, ok, help, box lipgloss.Style
}

func newTheme() theme {
	base := lipgloss.NewStyle()
	return theme{
		logo:     base.Foreground(paletteMid),
		title:    base.Bold(true).Foreground(paletteLight).Background(paletteDark).Padding(0, 2).MarginBottom(1),
		item:     base.Foreground(paletteMid).PaddingLeft(2),
		selected: base.Foreground(paletteLight).Bold(true).PaddingLeft(2),
		detail:   base.Foreground(paletteMid).PaddingLeft(4),
		status:   base.Foreground(paletteMid).PaddingTop(1),
		fail:     base.Foreground(lipgloss.Color("#FF0000")).Bold(true),
		ok:       base.Foreground(paletteLight).Bold(true),
		help:     base.Foreground(lipgloss.Color("#666666")).MarginTop(1),
		box:      base.Border(lipgloss.RoundedBorder()).BorderForeground(paletteMid).Background(paletteBlack).Padding(1, 2),
	}
}

var styles = newTheme()

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateFilePicker
	StateConverting
	StateResult
)

// Action is what a menu item does with the picked file.
type Action int

const (
	ActionExit Action = iota
	ActionConvert
	ActionBounce
	ActionExport
)

// MenuItem represents a menu option
type MenuItem struct {
	Title       string
	Description string
	Action      Action
	// Lang is the export language of ActionExport.
	Lang       string
	Extensions []string
}

func menuItems() []MenuItem {
	title := cases.Title(language.English)
	items := []MenuItem{
		{
			Title:       "Config → W4ON2",
			Description: "Compile the MIDI file next to a song config",
			Action:      ActionConvert,
			Extensions:  []string{".toml", ".yaml", ".yml"},
		},
		{
			Title:       "W4ON2 → WAV",
			Description: "Render a song to a WAV file",
			Action:      ActionBounce,
			Extensions:  []string{".w4on2"},
		},
	}
	for _, lang := range export.Languages() {
		items = append(items, MenuItem{
			Title:       fmt.Sprintf("W4ON2 → %s", title.String(lang)),
			Description: fmt.Sprintf("Embed a song in %s source for a cart", title.String(lang)),
			Action:      ActionExport,
			Lang:        lang,
			Extensions:  []string{".w4on2"},
		})
	}
	return append(items, MenuItem{Title: "Exit", Description: "Exit the application", Action: ActionExit})
}

// Model represents the TUI model
type Model struct {
	state        State
	items        []MenuItem
	menuIndex    int
	filePicker   filepicker.Model
	spinner      spinner.Model
	selectedFile string
	outputFile   string
	conversion   MenuItem
	err          error
	width        int
	height       int
}

// conversionDoneMsg signals conversion completion
type conversionDoneMsg struct {
	outputFile string
	err        error
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick)
}

// New creates a new TUI model
func New() Model {
	// Initialize file picker
	fp := filepicker.New()
	fp.CurrentDirectory, _ = os.Getwd()

	// Initialize spinner
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(paletteMid)

	return Model{
		state:      StateMenu,
		items:      menuItems(),
		filePicker: fp,
		spinner:    s,
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && (key.String() == "ctrl+c" || key.String() == "q") {
		return m, tea.Quit
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		if m.state != StateFilePicker {
			return m, nil
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case conversionDoneMsg:
		m.state, m.outputFile, m.err = StateResult, msg.outputFile, msg.err
		return m, nil
	}

	switch m.state {
	case StateMenu:
		if key, ok := msg.(tea.KeyMsg); ok {
			return m.updateMenu(key)
		}
	case StateFilePicker:
		return m.updatePicker(msg)
	case StateResult:
		if key, ok := msg.(tea.KeyMsg); ok && (key.String() == "enter" || key.String() == "esc") {
			m.state, m.err, m.selectedFile, m.outputFile = StateMenu, nil, "", ""
		}
	}
	return m, nil
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.menuIndex = max(m.menuIndex-1, 0)
	case "down", "j":
		m.menuIndex = min(m.menuIndex+1, len(m.items)-1)
	case "enter":
		m.conversion = m.items[m.menuIndex]
		if m.conversion.Action == ActionExit {
			return m, tea.Quit
		}
		m.state = StateFilePicker
		m.filePicker.AllowedTypes = m.conversion.Extensions
		return m, m.filePicker.Init()
	}
	return m, nil
}

// updatePicker hands every message to the file picker, which reads the
// directory asynchronously.
func (m Model) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.state = StateMenu
		return m, nil
	}

	var cmd tea.Cmd
	m.filePicker, cmd = m.filePicker.Update(msg)
	if ok, path := m.filePicker.DidSelectFile(msg); ok {
		m.selectedFile = path
		m.state = StateConverting
		return m, tea.Batch(m.spinner.Tick, m.performConversion())
	}
	return m, cmd
}

func (m Model) performConversion() tea.Cmd {
	item, path := m.conversion, m.selectedFile
	return func() tea.Msg {
		out, err := perform(item, path)
		return conversionDoneMsg{outputFile: out, err: err}
	}
}

// perform runs a menu item on path and returns the file it wrote, next to
// the input.
func perform(item MenuItem, path string) (string, error) {
	base := strings.TrimSuffix(path, filepath.Ext(path))

	if item.Action == ActionConvert {
		conf, err := song.Load(path)
		if err != nil {
			return "", err
		}
		output := base + ".w4on2"
		if err := converter.New(conf).ConvertFile(base+".mid", output); err != nil {
			return "", err
		}
		return output, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if _, err := format.Unmarshal(data); err != nil {
		return "", fmt.Errorf("invalid w4on2 file: %w", err)
	}

	var result []byte
	var output string
	switch item.Action {
	case ActionBounce:
		pcm, err := bounce.BouncePCM(data)
		if err != nil {
			return "", err
		}
		if result, err = bounce.WAV(pcm); err != nil {
			return "", err
		}
		output = base + ".wav"
	case ActionExport:
		if result, err = export.Render(item.Lang, filepath.Base(base), data); err != nil {
			return "", err
		}
		output = base + export.Extension(item.Lang)
	default:
		return "", fmt.Errorf("nothing to do for %q", item.Title)
	}

	if err := os.WriteFile(output, result, 0644); err != nil {
		return "", err
	}
	return output, nil
}

const logo = `
 __      __ _ _      ___  _  _  ___
 \ \    / /| | |    / _ \| \| ||_  )
  \ \/\/ / |_  _|  | (_) | .' | / /
   \_/\_/    |_|    \___/|_|\_|/___|
`

// View renders the TUI
func (m Model) View() string {
	var body string
	switch m.state {
	case StateMenu:
		body = m.viewMenu()
	case StateFilePicker:
		body = m.viewFilePicker()
	case StateConverting:
		body = m.viewConverting()
	case StateResult:
		body = m.viewResult()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		styles.logo.Render(logo),
		body,
		styles.help.Render("↑/↓: navigate • enter: select • q: quit"),
	)
}

func (m Model) viewMenu() string {
	lines := []string{styles.title.Render(" SELECT TASK ")}
	for i, item := range m.items {
		if i != m.menuIndex {
			lines = append(lines, styles.item.Render("  "+item.Title))
			continue
		}
		lines = append(lines, styles.selected.Render("▸ "+item.Title), styles.detail.Render(item.Description))
	}
	return styles.box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) viewFilePicker() string {
	exts := strings.ToUpper(strings.Join(m.conversion.Extensions, " "))
	return lipgloss.JoinVertical(lipgloss.Left,
		styles.title.Render(" SELECT "+exts+" FILE "),
		m.filePicker.View(),
		styles.help.Render("esc: back to menu"),
	)
}

func (m Model) viewConverting() string {
	return styles.box.Render(lipgloss.JoinVertical(lipgloss.Left,
		styles.title.Render(" WORKING "),
		fmt.Sprintf("%s Processing %s...", m.spinner.View(), filepath.Base(m.selectedFile)),
		styles.status.Render("  "+m.conversion.Title),
	))
}

func (m Model) viewResult() string {
	lines := []string{styles.title.Render(" SUCCESS "), styles.ok.Render("✓ Done!"), "",
		"Input:  " + filepath.Base(m.selectedFile),
		"Output: " + filepath.Base(m.outputFile),
	}
	if m.err != nil {
		lines = []string{styles.title.Render(" ERROR "),
			styles.fail.Render(fmt.Sprintf("✗ %s failed: %v", m.conversion.Title, m.err)),
		}
	}
	lines = append(lines, styles.help.Render("Press enter to continue"))
	return styles.box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// Run starts the TUI application
func Run() error {
	p := tea.NewProgram(New(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
