package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"chai-assistant/internal/app"
	"chai-assistant/internal/model"
)

// ChatPort is the part of the chat service the terminal UI drives.
type ChatPort interface {
	StreamAsk(ctx context.Context, input app.AskInput, emit func(app.Event) error) (*app.AskResult, error)
	History(ctx context.Context, threadID string) ([]model.Turn, error)
	ClearHistory(ctx context.Context, threadID string) (int64, error)
}

type entry struct {
	role    string
	content string
	sources []string
}

// contextMsg and deltaMsg arrive while an answer streams, before answerMsg.
type contextMsg struct {
	items []model.ContextItem
}

type deltaMsg string

type answerMsg struct {
	result *app.AskResult
	err    error
}

type historyMsg struct {
	turns []model.Turn
	err   error
}

type clearedMsg struct {
	deleted int64
	err     error
}

type Model struct {
	ctx      context.Context
	chat     ChatPort
	threadID string
	topK     int
	// send delivers stream events to the running program.
	send func(tea.Msg)

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	entries []entry
	status  string
	busy    bool
	ready   bool
}

func New(ctx context.Context, chat ChatPort, threadID string, topK int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the documentation and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:      ctx,
		chat:     chat,
		threadID: threadID,
		topK:     topK,
		send:     func(tea.Msg) {},
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "ctrl+n new thread, ctrl+l clear history, ctrl+c quit",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadHistory())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		fw, fh := boxStyle.GetFrameSize()
		// header, status and the input box around its single line
		reserved := 1 + 1 + (fh + 1) + fh
		m.viewport.Width = max(20, msg.Width-fw)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyCtrlN:
			if m.busy {
				return m, nil
			}
			m.threadID = uuid.NewString()
			m.entries = nil
			m.status = "new thread " + m.threadID
			m.refresh()
			return m, nil
		case tea.KeyCtrlL:
			if m.busy {
				return m, nil
			}
			return m, m.clearHistory()
		case tea.KeyEnter:
			question := strings.TrimSpace(m.input.Value())
			if question == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			m.entries = append(m.entries,
				entry{role: model.RoleUser, content: question},
				entry{role: model.RoleAssistant},
			)
			m.busy = true
			m.status = "thinking"
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.ask(question))
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case contextMsg:
		if last := m.last(); m.busy && last != nil {
			last.sources = sources(msg.items)
			m.status = fmt.Sprintf("%d context items, answering", len(msg.items))
			m.refresh()
		}
		return m, nil

	case deltaMsg:
		if last := m.last(); m.busy && last != nil {
			last.content += string(msg)
			m.refresh()
		}
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			if last := m.last(); last != nil && last.content == "" {
				m.entries = m.entries[:len(m.entries)-1]
			}
			m.status = "error: " + msg.err.Error()
			m.refresh()
			return m, nil
		}
		if last := m.last(); last != nil {
			last.content = msg.result.Content
			last.sources = sources(msg.result.Context)
		}
		m.status = fmt.Sprintf("%d context items", len(msg.result.Context))
		m.refresh()
		return m, nil

	case historyMsg:
		if msg.err != nil {
			m.status = "load history failed: " + msg.err.Error()
			return m, nil
		}
		m.entries = m.entries[:0]
		for _, t := range msg.turns {
			m.entries = append(m.entries, entry{role: t.Role, content: t.Content})
		}
		m.refresh()
		return m, nil

	case clearedMsg:
		if msg.err != nil {
			m.status = "clear failed: " + msg.err.Error()
			return m, nil
		}
		m.entries = nil
		m.status = fmt.Sprintf("cleared %d turns", msg.deleted)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("ChAI") + " " + mutedStyle.Render("thread "+m.threadID)
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		boxStyle.Render(m.viewport.View()) + "\n" +
		boxStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(status)
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderEntries(m.entries, m.viewport.Width))
	m.viewport.GotoBottom()
}

// last is the assistant entry being streamed, or nil.
func (m *Model) last() *entry {
	if len(m.entries) == 0 || m.entries[len(m.entries)-1].role != model.RoleAssistant {
		return nil
	}
	return &m.entries[len(m.entries)-1]
}

func (m Model) ask(question string) tea.Cmd {
	ctx, chat, thread, topK, send := m.ctx, m.chat, m.threadID, m.topK, m.send
	return func() tea.Msg {
		result, err := chat.StreamAsk(ctx, app.AskInput{Question: question, ThreadID: thread, TopK: topK}, func(ev app.Event) error {
			switch ev.Kind {
			case app.EventContext:
				send(contextMsg{items: ev.Context})
			case app.EventContent:
				send(deltaMsg(ev.Delta))
			}
			return nil
		})
		return answerMsg{result: result, err: err}
	}
}

func (m Model) loadHistory() tea.Cmd {
	ctx, chat, thread := m.ctx, m.chat, m.threadID
	return func() tea.Msg {
		turns, err := chat.History(ctx, thread)
		return historyMsg{turns: turns, err: err}
	}
}

func (m Model) clearHistory() tea.Cmd {
	ctx, chat, thread := m.ctx, m.chat, m.threadID
	return func() tea.Msg {
		n, err := chat.ClearHistory(ctx, thread)
		return clearedMsg{deleted: n, err: err}
	}
}

func renderEntries(entries []entry, width int) string {
	if len(entries) == 0 {
		return mutedStyle.Render("No messages yet.")
	}
	body := lipgloss.NewStyle().Width(max(10, width-2))

	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if e.role == model.RoleUser {
			b.WriteString(userStyle.Render("you"))
		} else {
			b.WriteString(assistantStyle.Render("chai"))
		}
		b.WriteString("\n")
		b.WriteString(body.Render(e.content))
		if len(e.sources) > 0 {
			b.WriteString("\n")
			b.WriteString(mutedStyle.Render("sources: " + strings.Join(e.sources, ", ")))
		}
	}
	return b.String()
}

// sources lists distinct item sources in first seen order.
func sources(items []model.ContextItem) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		src := item.Source()
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}

var (
	boxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle     = lipgloss.NewStyle().Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)

// Run starts the chat program and blocks until the user quits.
func Run(ctx context.Context, chat ChatPort, threadID string, topK int, opts ...tea.ProgramOption) error {
	var p *tea.Program
	m := New(ctx, chat, threadID, topK)
	m.send = func(msg tea.Msg) { p.Send(msg) }
	p = tea.NewProgram(m, opts...)
	_, err := p.Run()
	return err
}
