package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI message types
type recordingStartMsg struct{}
type recordingStopMsg struct{}
type recordingTickMsg struct{ Seconds float64 }
type audioLevelMsg struct{ Level float64 }
type processingMsg struct{}
type transcriptionMsg struct {
	Text   string
	Copied bool
}
type transcriptionErrorMsg struct{ Text string }
type hideMsg struct{}
type modeLineMsg struct{ Text string }
type deviceLineMsg struct{ Text string }
type rateLimitMsg struct{ Text string }
type tickMsg time.Time

type tuiState int

const (
	tuiIdle tuiState = iota
	tuiRecording
	tuiProcessing
	tuiDisplaying
	tuiError
)

var (
	statusRecStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	statusIdleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusBusyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	textStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	errStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	copiedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	meterLoudStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	meterMidStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	meterQuietStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	meterEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
)

const meterWidth = 30

type tuiModel struct {
	state         tuiState
	frame         int
	seconds       float64
	level         float64
	peak          float64
	msgCount      int
	width, height int
	modeLine      string
	deviceLine    string
	rateLimit     string
	lastText      string
	lastErr       string
	copied        bool
}

func newTUIProgram() *tea.Program {
	return tea.NewProgram(tuiModel{}, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case recordingStartMsg:
		m.state = tuiRecording
		m.seconds = 0
		m.level = 0
		m.peak = 0
		m.lastErr = ""

	case recordingStopMsg:
		m.level = 0

	case recordingTickMsg:
		m.seconds = msg.Seconds

	case audioLevelMsg:
		if m.state == tuiRecording {
			m.level = m.level*0.6 + msg.Level*0.4
			if msg.Level > m.peak {
				m.peak = msg.Level
			}
		}

	case processingMsg:
		m.state = tuiProcessing

	case transcriptionMsg:
		m.state = tuiDisplaying
		m.msgCount++
		m.lastText = msg.Text
		m.copied = msg.Copied
		m.lastErr = ""

	case transcriptionErrorMsg:
		m.state = tuiError
		m.lastErr = msg.Text

	case hideMsg:
		m.state = tuiIdle

	case modeLineMsg:
		m.modeLine = msg.Text

	case deviceLineMsg:
		m.deviceLine = msg.Text

	case rateLimitMsg:
		m.rateLimit = msg.Text
	}
	return m, nil
}

func renderMeter(level float64) string {
	lit := int(level * float64(meterWidth) * 4)
	if lit > meterWidth {
		lit = meterWidth
	}
	var b strings.Builder
	for i := 0; i < meterWidth; i++ {
		if i >= lit {
			b.WriteString(meterEmptyStyle.Render("─"))
			continue
		}
		switch {
		case i > meterWidth*3/4:
			b.WriteString(meterLoudStyle.Render("█"))
		case i > meterWidth/2:
			b.WriteString(meterMidStyle.Render("█"))
		default:
			b.WriteString(meterQuietStyle.Render("█"))
		}
	}
	return b.String()
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var lines []string

	switch m.state {
	case tuiRecording:
		lines = append(lines, statusRecStyle.Render(fmt.Sprintf("● REC %.1fs", m.seconds)))
		lines = append(lines, renderMeter(m.level))
		if m.seconds > 1.0 && m.peak < 0.02 {
			lines = append(lines, errStyle.Render("⚠ no voice detected"))
		}
	case tuiProcessing:
		spin := spinnerFrames[m.frame%len(spinnerFrames)]
		lines = append(lines, statusBusyStyle.Render(spin+" transcribing..."))
	case tuiError:
		lines = append(lines, errStyle.Render("✗ "+m.lastErr))
	default:
		lines = append(lines, statusIdleStyle.Render("○ STANDBY"))
	}

	lines = append(lines, "")

	if m.lastText != "" {
		title := dimStyle.Render(fmt.Sprintf("Last transcription (#%d)", m.msgCount))
		lines = append(lines, title)
		wrapWidth := m.width - 2
		if wrapWidth < 10 {
			wrapWidth = 10
		}
		wrapped := wrapText(m.lastText, wrapWidth)
		for i, line := range wrapped {
			out := textStyle.Render(line)
			if i == len(wrapped)-1 && m.copied {
				out += " " + copiedStyle.Render("[✓ copied]")
			}
			lines = append(lines, out)
		}
		lines = append(lines, "")
	}

	if m.modeLine != "" {
		lines = append(lines, dimStyle.Render(m.modeLine))
	}
	if m.deviceLine != "" {
		lines = append(lines, dimStyle.Render(m.deviceLine))
	}
	if m.rateLimit != "" {
		lines = append(lines, dimStyle.Render(m.rateLimit))
	}

	lines = append(lines, "")
	lines = append(lines, helpKeyStyle.Render("Ctrl+Shift+Space")+helpStyle.Render(" to record, again to stop"))
	lines = append(lines, helpStyle.Render("murmur "+version))

	return strings.Join(lines, "\n")
}

func wrapText(text string, width int) []string {
	var lines []string
	words := strings.Fields(text)
	var cur string
	for _, w := range words {
		if cur == "" {
			cur = w
			continue
		}
		if len(cur)+1+len(w) > width {
			lines = append(lines, cur)
			cur = w
			continue
		}
		cur += " " + w
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

// tuiSink adapts a Bubble Tea program to the session display contract.
type tuiSink struct {
	p *tea.Program
}

func (s *tuiSink) RecordingStart()           { s.p.Send(recordingStartMsg{}) }
func (s *tuiSink) RecordingStop()            { s.p.Send(recordingStopMsg{}) }
func (s *tuiSink) RecordingTick(sec float64) { s.p.Send(recordingTickMsg{Seconds: sec}) }
func (s *tuiSink) AudioLevel(level float64)  { s.p.Send(audioLevelMsg{Level: level}) }
func (s *tuiSink) Processing()               { s.p.Send(processingMsg{}) }
func (s *tuiSink) Transcription(text string, copied bool) {
	s.p.Send(transcriptionMsg{Text: text, Copied: copied})
}
func (s *tuiSink) TranscriptionError(msg string) { s.p.Send(transcriptionErrorMsg{Text: msg}) }
func (s *tuiSink) Hide()                         { s.p.Send(hideMsg{}) }
func (s *tuiSink) ModeLine(text string)          { s.p.Send(modeLineMsg{Text: text}) }
func (s *tuiSink) DeviceLine(text string)        { s.p.Send(deviceLineMsg{Text: text}) }
func (s *tuiSink) RateLimit(text string)         { s.p.Send(rateLimitMsg{Text: "requests: " + text + " remaining"}) }
