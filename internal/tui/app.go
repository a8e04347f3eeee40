package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sheet-rag/internal/models"
	"sheet-rag/internal/session"
)

type Message struct {
	Role    string
	Content string
}

type Model struct {
	// ctx bounds the ingest and ask commands; cancelling it aborts in-flight model calls.
	ctx        context.Context
	session    *session.Session
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	messages   []Message
	processing bool
	width      int
}

type ingestDoneMsg struct {
	path string
	err  error
}

type answerMsg struct {
	answer string
}

var (
	primaryColor = lipgloss.Color("#00D9FF")
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	textColor    = lipgloss.Color("#F9FAFB")

	titleStyle     = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(textColor)
	systemStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	successStyle   = lipgloss.NewStyle().Foreground(successColor)
	errorStyle     = lipgloss.NewStyle().Foreground(errorColor)
)

const helpText = `Commands:
  /load <path>  ingest a spreadsheet
  /clear        forget the current spreadsheet
  /quit         exit
Anything else is asked about the loaded spreadsheet.`

func NewModel(ctx context.Context, sess *session.Session) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask a question or /load <file.xlsx>"
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 80
	ti.PromptStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	m := Model{
		ctx:      ctx,
		session:  sess,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  s,
		messages: []Message{{Role: "system", Content: "Excel Chatbot\n\n" + helpText}},
	}
	m.viewport.SetContent(m.renderMessages())
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.processing {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.SetValue("")
			if strings.HasPrefix(text, "/") {
				return m.handleCommand(text)
			}
			m.push(Message{Role: "user", Content: text})
			m.processing = true
			return m, tea.Batch(m.spinner.Tick, m.ask(text))
		}

	case ingestDoneMsg:
		m.processing = false
		if msg.err != nil {
			m.push(Message{Role: "error", Content: session.IngestMessage(msg.err)})
		} else {
			m.push(Message{Role: "success", Content: fmt.Sprintf("%s (%s, %d chunks)", models.UploadedMessage, m.session.Source(), m.session.Chunks())})
		}
		return m, nil

	case answerMsg:
		m.processing = false
		m.push(Message{Role: "assistant", Content: msg.answer})
		return m, nil

	case spinner.TickMsg:
		if m.processing {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 6
		m.input.Width = msg.Width - 8
		m.viewport.SetContent(m.renderMessages())
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleCommand(text string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/clear":
		m.session.Clear()
		m.push(Message{Role: "success", Content: models.ClearedMessage})
		return m, nil
	case "/help":
		m.push(Message{Role: "system", Content: helpText})
		return m, nil
	case "/load":
		if arg == "" {
			m.push(Message{Role: "error", Content: "Usage: /load <path>"})
			return m, nil
		}
		m.push(Message{Role: "system", Content: "Loading " + arg + "..."})
		m.processing = true
		return m, tea.Batch(m.spinner.Tick, m.ingest(arg))
	default:
		m.push(Message{Role: "error", Content: "Unknown command: " + name})
		return m, nil
	}
}

func (m Model) ingest(path string) tea.Cmd {
	ctx, sess := m.ctx, m.session
	return func() tea.Msg {
		return ingestDoneMsg{path: path, err: sess.Ingest(ctx, path)}
	}
}

func (m Model) ask(question string) tea.Cmd {
	ctx, sess := m.ctx, m.session
	return func() tea.Msg {
		return answerMsg{answer: sess.Ask(ctx, question)}
	}
}

func (m *Model) push(msg Message) {
	m.messages = append(m.messages, msg)
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m Model) renderMessages() string {
	var b strings.Builder
	for _, msg := range m.messages {
		switch msg.Role {
		case "user":
			b.WriteString(userStyle.Render("> " + msg.Content))
		case "assistant":
			b.WriteString(assistantStyle.Render(msg.Content))
		case "success":
			b.WriteString(successStyle.Render(msg.Content))
		case "error":
			b.WriteString(errorStyle.Render(msg.Content))
		default:
			b.WriteString(systemStyle.Render(msg.Content))
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func (m Model) View() string {
	status := fmt.Sprintf("session: %s", m.session.State())
	if src := m.session.Source(); src != "" {
		status += " · " + src
	}
	if m.processing {
		status = m.spinner.View() + " working..."
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s",
		titleStyle.Render("Excel Chatbot"),
		m.viewport.View(),
		systemStyle.Render(status),
		m.input.View(),
	)
}

// Messages returns the conversation so far.
func (m Model) Messages() []Message {
	return m.messages
}

// Run starts the interactive program on the terminal. It stops when ctx is cancelled.
func Run(ctx context.Context, sess *session.Session) error {
	_, err := tea.NewProgram(NewModel(ctx, sess), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
