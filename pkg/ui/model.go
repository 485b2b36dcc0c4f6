// Package ui is the terminal front end for one assistant session.
package ui

import (
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	bspinner "github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"github.com/go-go-golems/estatebot/pkg/assistant"
	"github.com/go-go-golems/estatebot/pkg/chat"
	"github.com/go-go-golems/estatebot/pkg/reply"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("118"))
	noticeStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("214"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle     = lipgloss.NewStyle().Width(8).Foreground(lipgloss.Color("246"))
)

// copyToClipboard is swapped in tests.
var copyToClipboard = clipboard.WriteAll

const (
	fieldName = iota
	fieldPhone
	fieldEmail
)

type Model struct {
	backend *SessionBackend
	title   string

	form     []textinput.Model
	focus    int
	input    textinput.Model
	rating   textinput.Model
	viewport viewport.Model
	spinner  bspinner.Model

	busy   bool
	status string
	err    error
	width  int
}

func NewModel(b *SessionBackend, title string) Model {
	mk := func(placeholder string) textinput.Model {
		ti := textinput.New()
		ti.Placeholder = placeholder
		ti.CharLimit = 200
		return ti
	}
	form := []textinput.Model{mk("Your name"), mk("Phone (optional if email given)"), mk("Email (optional if phone given)")}
	form[fieldName].Focus()

	input := mk("Ask about properties, budgets, title deeds...")
	input.CharLimit = 1000
	rating := mk("1-5 and an optional comment, e.g. 5 very helpful")

	sp := bspinner.New()
	sp.Spinner = bspinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))

	m := Model{
		backend:  b,
		title:    title,
		form:     form,
		input:    input,
		rating:   rating,
		viewport: viewport.New(80, 16),
		spinner:  sp,
		width:    80,
	}
	m.syncFocus()
	m.refresh()
	return m
}

func (m Model) session() *assistant.Session { return m.backend.Session() }

// completeAndQuit runs Complete off the update loop, since it waits for a
// reply still being composed.
func (m Model) completeAndQuit() tea.Cmd {
	s := m.session()
	return func() tea.Msg {
		_ = s.Complete()
		return tea.QuitMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.backend.waitForEvent())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = ev.Width
		m.viewport.Width = ev.Width
		if h := ev.Height - 6; h > 3 {
			m.viewport.Height = h
		}
		m.refresh()
		return m, nil

	case eventMsg:
		m.refresh()
		return m, m.backend.waitForEvent()

	case eventsClosedMsg:
		return m, nil

	case bspinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(ev)
		return m, cmd

	case identityDoneMsg:
		m.busy = false
		m.err = ev.err
		m.syncFocus()
		m.refresh()
		return m, nil

	case sendDoneMsg:
		m.busy = false
		m.err = ev.err
		m.refresh()
		return m, nil

	case ratingDoneMsg:
		m.busy = false
		m.err = ev.err
		m.syncFocus()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if ev.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.session().Phase() {
		case assistant.PhaseForm:
			return m.updateForm(ev)
		case assistant.PhaseChat:
			return m.updateChat(ev)
		case assistant.PhaseRating:
			return m.updateRating(ev)
		default:
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) updateForm(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.Type {
	case tea.KeyTab, tea.KeyDown:
		m.focus = (m.focus + 1) % len(m.form)
		m.syncFocus()
		return m, nil
	case tea.KeyShiftTab, tea.KeyUp:
		m.focus = (m.focus + len(m.form) - 1) % len(m.form)
		m.syncFocus()
		return m, nil
	case tea.KeyEnter:
		if m.busy {
			return m, nil
		}
		m.busy, m.err = true, nil
		return m, tea.Batch(m.spinner.Tick, m.backend.SubmitIdentity(reply.Identity{
			Name:  m.form[fieldName].Value(),
			Phone: m.form[fieldPhone].Value(),
			Email: m.form[fieldEmail].Value(),
		}))
	}
	var cmd tea.Cmd
	m.form[m.focus], cmd = m.form[m.focus].Update(k)
	return m, cmd
}

func (m Model) updateChat(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.Type {
	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.busy {
			return m, nil
		}
		m.input.Reset()
		m.busy, m.err, m.status = true, nil, ""
		return m, tea.Batch(m.spinner.Tick, m.backend.Send(text))
	case tea.KeyCtrlY:
		if last, ok := lastReply(m.session().Messages()); ok {
			if err := copyToClipboard(last); err != nil {
				m.err = err
			} else {
				m.status = "Copied the last reply."
			}
		}
		return m, nil
	case tea.KeyCtrlR:
		if m.busy {
			return m, nil
		}
		m.err = m.session().BeginRating()
		m.syncFocus()
		return m, nil
	case tea.KeyEsc:
		return m, m.completeAndQuit()
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(k)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(k)
	return m, cmd
}

func (m Model) updateRating(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.Type {
	case tea.KeyEsc:
		return m, m.completeAndQuit()
	case tea.KeyEnter:
		if m.busy {
			return m, nil
		}
		score, comment, err := parseRating(m.rating.Value())
		if err != nil {
			m.err = err
			return m, nil
		}
		m.busy, m.err = true, nil
		return m, m.backend.Rate(score, comment)
	}
	var cmd tea.Cmd
	m.rating, cmd = m.rating.Update(k)
	return m, cmd
}

// parseRating reads "N [comment]".
func parseRating(s string) (int, string, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, "", errors.New("enter a rating from 1 to 5")
	}
	score, err := strconv.Atoi(fields[0])
	if err != nil || score < 1 || score > 5 {
		return 0, "", errors.New("rating must be a number from 1 to 5")
	}
	return score, strings.Join(fields[1:], " "), nil
}

func lastReply(msgs []chat.Message) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleAssistant && !msgs[i].Local {
			return msgs[i].Content, true
		}
	}
	return "", false
}

func (m *Model) syncFocus() {
	phase := m.session().Phase()
	for i := range m.form {
		if phase == assistant.PhaseForm && i == m.focus {
			m.form[i].Focus()
		} else {
			m.form[i].Blur()
		}
	}
	if phase == assistant.PhaseChat {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
	if phase == assistant.PhaseRating {
		m.rating.Focus()
	} else {
		m.rating.Blur()
	}
}

// refresh re-renders the transcript from the session's local view.
func (m *Model) refresh() {
	s := m.session()
	revealID, revealText, revealing := s.CurrentReveal()
	var b strings.Builder
	for _, msg := range s.Messages() {
		content := msg.Content
		if revealing && msg.ID == revealID {
			content = revealText
		}
		switch {
		case msg.Local || msg.Role == chat.RoleSystem:
			b.WriteString(noticeStyle.Render("! " + content))
		case msg.Role == chat.RoleUser:
			b.WriteString(userStyle.Render("You: "))
			b.WriteString(content)
		default:
			b.WriteString(assistantStyle.Render("Assistant: "))
			b.WriteString(content)
		}
		b.WriteString("\n\n")
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.width).Render(strings.TrimRight(b.String(), "\n")))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(m.title))
	if name := m.session().Identity().DisplayName(); !m.session().Identity().IsAnonymous() {
		b.WriteString(helpStyle.Render("  · " + name))
	}
	b.WriteString("\n\n")

	switch m.session().Phase() {
	case assistant.PhaseForm:
		b.WriteString("Tell us who you are before we start.\n\n")
		labels := []string{"Name", "Phone", "Email"}
		for i, in := range m.form {
			b.WriteString(labelStyle.Render(labels[i]))
			b.WriteString(in.View())
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render("\ntab: next field · enter: start chatting · ctrl+c: quit"))
	case assistant.PhaseChat:
		b.WriteString(m.viewport.View())
		b.WriteString("\n\n")
		if m.busy || m.session().Loading() {
			b.WriteString(m.spinner.View() + " thinking...\n")
		}
		b.WriteString(m.input.View())
		b.WriteString(helpStyle.Render("\nenter: send · ctrl+y: copy reply · ctrl+r: rate · esc: end chat"))
	case assistant.PhaseRating:
		b.WriteString("How helpful was this conversation?\n\n")
		b.WriteString(m.rating.View())
		b.WriteString(helpStyle.Render("\nenter: submit · esc: skip"))
	default:
		b.WriteString("Thank you for chatting with us. Press any key to exit.")
	}

	if m.status != "" {
		b.WriteString("\n" + helpStyle.Render(m.status))
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render(m.err.Error()))
	}
	return b.String()
}
