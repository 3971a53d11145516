package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

const PlaceHolderText = "What do you do?"

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config   *ConsoleConfig
	client   *http.Client
	viewport viewport.Model
	textarea textarea.Model
	ready    bool
	width    int
	height   int
	loading  bool
	turn     int

	transcript []transcriptEntry
}

type transcriptEntry struct {
	role string // "you", "narrator", "system", "error"
	text string
}

type turnMsg struct {
	response *turnResponse
	err      error
}

type gameMsg struct {
	response *gameResponse
	err      error
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	vp := viewport.New(50, 20)
	vp.MouseWheelEnabled = true

	return ConsoleUI{
		config:   cfg,
		client:   client,
		textarea: ta,
		viewport: vp,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return textarea.Blink
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.width - 4
		m.viewport.Height = m.height - 7
		m.textarea.SetWidth(m.width - 4)
		m.writeTranscript()
		m.ready = true

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			switch input {
			case "/undo":
				m.loading = true
				m.transcript = append(m.transcript, transcriptEntry{role: "system", text: "Rewinding..."})
				m.writeTranscript()
				return m, m.sendGameCmd("/v1/undo")
			case "/reset":
				m.loading = true
				m.transcript = append(m.transcript, transcriptEntry{role: "system", text: "Resetting the world..."})
				m.writeTranscript()
				return m, m.sendGameCmd("/v1/reset")
			case "/quit":
				return m, tea.Quit
			}
			m.loading = true
			m.transcript = append(m.transcript, transcriptEntry{role: "you", text: input})
			m.writeTranscript()
			return m, m.sendTurnCmd(input)
		}

	case turnMsg:
		m.loading = false
		if msg.err != nil {
			m.transcript = append(m.transcript, transcriptEntry{role: "error", text: msg.err.Error()})
		} else {
			m.turn = msg.response.Turn
			m.transcript = append(m.transcript, transcriptEntry{role: "narrator", text: msg.response.Narrative})
		}
		m.writeTranscript()

	case gameMsg:
		m.loading = false
		if msg.err != nil {
			m.transcript = append(m.transcript, transcriptEntry{role: "error", text: msg.err.Error()})
		} else {
			m.turn = msg.response.Turn
			text := msg.response.Message
			if text == "" {
				text = fmt.Sprintf("Back at turn %d.", msg.response.Turn)
			}
			m.transcript = append(m.transcript, transcriptEntry{role: "system", text: text})
		}
		m.writeTranscript()
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

func (m ConsoleUI) View() string {
	if !m.ready {
		return "Loading..."
	}

	status := fmt.Sprintf("turn %d", m.turn)
	if m.loading {
		status = loadingStyle.Render("the world turns...")
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s",
		m.viewport.View(),
		separatorStyle.Render(strings.Repeat("─", max(m.width-4, 1))),
		m.textarea.View(),
		promptStyle.Render(status+"  •  Enter: act  •  /undo  /reset  •  Ctrl+C: quit"))
}

func (m *ConsoleUI) writeTranscript() {
	width := m.viewport.Width - 4
	if width < 10 {
		width = 10
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("FABLETURN") + "\n\n")
	content.WriteString("Describe what you do; the world answers.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", width)) + "\n\n")

	for _, entry := range m.transcript {
		switch entry.role {
		case "you":
			content.WriteString(userStyle.Render("You: ") + wordwrap.String(entry.text, width) + "\n\n")
		case "narrator":
			content.WriteString(narratorStyle.Render(wordwrap.String(entry.text, width)) + "\n\n")
		case "system":
			content.WriteString(promptStyle.Render(wordwrap.String(entry.text, width)) + "\n\n")
		case "error":
			content.WriteString(errorStyle.Render(wordwrap.String(entry.text, width)) + "\n\n")
		}
	}

	m.viewport.SetContent(content.String())
	m.viewport.GotoBottom()
}

func (m ConsoleUI) sendTurnCmd(input string) tea.Cmd {
	return func() tea.Msg {
		resp, err := sendTurn(m.client, m.config.APIBaseURL, input)
		return turnMsg{response: resp, err: err}
	}
}

func (m ConsoleUI) sendGameCmd(path string) tea.Cmd {
	return func() tea.Msg {
		resp, err := sendSimple(m.client, m.config.APIBaseURL, path)
		return gameMsg{response: resp, err: err}
	}
}
