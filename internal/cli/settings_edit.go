package cli

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"imagine-pilot/internal/model"
	"imagine-pilot/internal/runstore"
)

type settingsFieldKind int

const (
	settingsFieldString settingsFieldKind = iota
	settingsFieldInt
	settingsFieldBool
	settingsFieldSelect
)

type settingsField struct {
	Key     string
	Label   string
	Help    string
	Kind    settingsFieldKind
	Value   string
	Options []string
}

type settingsSavedMsg struct {
	path string
	err  error
}

var (
	settingsTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	settingsMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	settingsErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	settingsOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	settingsPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	settingsSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
)

type settingsModel struct {
	store   runstore.Store
	fields  []settingsField
	index   int
	input   textinput.Model
	editing bool
	status  string
	errMsg  string
	width   int

	fatalErr error
}

func runSettingsEdit(args []string) error {
	fs := flag.NewFlagSet("settings edit", flag.ContinueOnError)
	stateDir := fs.String("state-dir", defaultStateDir(), "state directory")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !stdinIsTTY() {
		return errors.New("settings edit requires an interactive terminal (TTY)")
	}

	store := runstore.New(strings.TrimSpace(*stateDir))
	settings, _, err := store.LoadSettings()
	if err != nil {
		return err
	}

	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 512
	input.Width = 60

	m := settingsModel{
		store:  store,
		fields: settingsFieldsFrom(settings),
		input:  input,
	}
	finalModel, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return errors.New("settings edit requires an interactive terminal (TTY)")
		}
		return err
	}
	if fm, ok := finalModel.(settingsModel); ok {
		return fm.fatalErr
	}
	return nil
}

func settingsFieldsFrom(s model.Settings) []settingsField {
	return []settingsField{
		{Key: "delay", Label: "Delay Seconds", Help: "Wait between prompts", Kind: settingsFieldInt, Value: strconv.Itoa(s.DelaySeconds)},
		{Key: "randomize", Label: "Randomize Ratio", Help: "Draw a ratio per prompt from the list below", Kind: settingsFieldBool, Value: yesNo(s.RandomizeRatio)},
		{Key: "ratios", Label: "Aspect Ratio Pool", Help: "Comma-separated, used when randomize is on", Kind: settingsFieldString, Value: strings.Join(s.AspectRatios, ", ")},
		{Key: "fixed_ratio", Label: "Fixed Ratio", Help: "Used when randomize is off", Kind: settingsFieldString, Value: s.FixedRatio},
		{Key: "upscale", Label: "Upscale Videos", Help: "Run the HD workflow on each finished video", Kind: settingsFieldBool, Value: yesNo(s.UpscaleVideos)},
		{Key: "auto_download", Label: "Auto Download", Help: "Save detected media automatically", Kind: settingsFieldBool, Value: yesNo(s.AutoDownload)},
		{Key: "download_all", Label: "Download All Images", Help: "Save the whole gallery per prompt in image mode", Kind: settingsFieldBool, Value: yesNo(s.DownloadAllImages)},
		{Key: "multi_count", Label: "Images Per Prompt", Help: "Gallery cap when Download All is on", Kind: settingsFieldInt, Value: strconv.Itoa(s.DownloadMultiCount)},
		{Key: "save_prompt", Label: "Save Prompt Text", Help: "Write the prompt as a .txt next to each file", Kind: settingsFieldBool, Value: yesNo(s.SavePromptText)},
		{Key: "subfolder", Label: "Download Subfolder", Help: "Subfolder under the output dir (empty for none)", Kind: settingsFieldString, Value: s.DownloadSubfolder},
		{Key: "breaks", Label: "Scheduled Breaks", Help: "Pause periodically during long runs", Kind: settingsFieldBool, Value: yesNo(s.BreakEnabled)},
		{Key: "break_prompts", Label: "Prompts Per Break", Help: "How many prompts between breaks", Kind: settingsFieldInt, Value: strconv.Itoa(s.BreakPrompts)},
		{Key: "break_min", Label: "Break Min Minutes", Help: "Shortest break length", Kind: settingsFieldInt, Value: strconv.Itoa(s.BreakMinutesMin)},
		{Key: "break_max", Label: "Break Max Minutes", Help: "Longest break length", Kind: settingsFieldInt, Value: strconv.Itoa(s.BreakMinutesMax)},
		{Key: "duration", Label: "Video Duration", Help: "Clip length for video generation", Kind: settingsFieldSelect, Value: s.VideoDuration, Options: []string{"5s", "6s", "10s"}},
	}
}

func (m settingsModel) toSettings() (model.Settings, error) {
	vals := make(map[string]string, len(m.fields))
	for _, f := range m.fields {
		v := strings.TrimSpace(f.Value)
		if f.Kind == settingsFieldInt {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return model.Settings{}, fmt.Errorf("%s must be an integer >= 1", strings.ToLower(f.Label))
			}
		}
		vals[f.Key] = v
	}
	delay, _ := strconv.Atoi(vals["delay"])
	multi, _ := strconv.Atoi(vals["multi_count"])
	breakPrompts, _ := strconv.Atoi(vals["break_prompts"])
	breakMin, _ := strconv.Atoi(vals["break_min"])
	breakMax, _ := strconv.Atoi(vals["break_max"])
	if breakMax < breakMin {
		return model.Settings{}, errors.New("break max minutes must be >= break min minutes")
	}

	s := model.Settings{
		DelaySeconds:       delay,
		RandomizeRatio:     vals["randomize"] == "yes",
		AspectRatios:       parseRatioList(vals["ratios"]),
		FixedRatio:         vals["fixed_ratio"],
		UpscaleVideos:      vals["upscale"] == "yes",
		AutoDownload:       vals["auto_download"] == "yes",
		DownloadAllImages:  vals["download_all"] == "yes",
		DownloadMultiCount: multi,
		SavePromptText:     vals["save_prompt"] == "yes",
		DownloadSubfolder:  vals["subfolder"],
		BreakEnabled:       vals["breaks"] == "yes",
		BreakPrompts:       breakPrompts,
		BreakMinutesMin:    breakMin,
		BreakMinutesMax:    breakMax,
		VideoDuration:      vals["duration"],
	}
	if s.RandomizeRatio && len(s.AspectRatios) == 0 {
		return model.Settings{}, errors.New("randomize ratio needs at least one ratio in the pool")
	}
	return s.Normalized(), nil
}

func (m settingsModel) Init() tea.Cmd { return nil }

func (m settingsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = clampWidth(msg.Width-8, 20, 120)
		return m, nil
	case settingsSavedMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.status = "saved to " + msg.path
		return m, tea.Quit
	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(msg)
		}
		return m.updateBrowsing(msg)
	}
	return m, nil
}

func (m settingsModel) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.index > 0 {
			m.index--
		}
	case "down", "j":
		if m.index < len(m.fields)-1 {
			m.index++
		}
	case " ":
		f := &m.fields[m.index]
		switch f.Kind {
		case settingsFieldBool:
			if f.Value == "yes" {
				f.Value = "no"
			} else {
				f.Value = "yes"
			}
		case settingsFieldSelect:
			f.Value = nextOption(f.Options, f.Value)
		}
		m.errMsg = ""
	case "enter":
		f := m.fields[m.index]
		if f.Kind == settingsFieldBool || f.Kind == settingsFieldSelect {
			return m.updateBrowsing(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
		}
		m.editing = true
		m.input.SetValue(f.Value)
		m.input.CursorEnd()
		m.input.Focus()
	case "s", "ctrl+s":
		settings, err := m.toSettings()
		if err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		store := m.store
		return m, func() tea.Msg {
			if err := store.SaveSettings(settings); err != nil {
				return settingsSavedMsg{err: err}
			}
			return settingsSavedMsg{path: store.SettingsPath()}
		}
	}
	return m, nil
}

func (m settingsModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.editing = false
		m.input.Blur()
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		f := &m.fields[m.index]
		if f.Kind == settingsFieldInt {
			if n, err := strconv.Atoi(value); err != nil || n <= 0 {
				m.errMsg = strings.ToLower(f.Label) + " must be an integer >= 1"
				return m, nil
			}
		}
		f.Value = value
		m.editing = false
		m.errMsg = ""
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m settingsModel) View() string {
	var b strings.Builder
	b.WriteString(settingsTitleStyle.Render("Run Defaults"))
	b.WriteString("\n\n")
	for i, f := range m.fields {
		value := f.Value
		if value == "" {
			value = settingsMutedStyle.Render("(none)")
		}
		line := fmt.Sprintf("%-20s %s", f.Label, value)
		if i == m.index {
			line = settingsSelStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if m.editing {
		f := m.fields[m.index]
		b.WriteString(settingsPanelStyle.Render(f.Label + "\n" + settingsMutedStyle.Render(f.Help) + "\n" + m.input.View()))
		b.WriteString("\n")
		b.WriteString(settingsMutedStyle.Render("enter save field · esc cancel"))
	} else {
		b.WriteString(settingsMutedStyle.Render(m.fields[m.index].Help))
		b.WriteString("\n")
		b.WriteString(settingsMutedStyle.Render("↑/↓ move · enter/space edit · s save · q quit"))
	}
	if m.errMsg != "" {
		b.WriteString("\n" + settingsErrorStyle.Render(m.errMsg))
	}
	if m.status != "" {
		b.WriteString("\n" + settingsOKStyle.Render(m.status))
	}
	return b.String()
}

func nextOption(options []string, current string) string {
	if len(options) == 0 {
		return current
	}
	for i, opt := range options {
		if strings.EqualFold(opt, current) {
			return options[(i+1)%len(options)]
		}
	}
	return options[0]
}

func clampWidth(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}
