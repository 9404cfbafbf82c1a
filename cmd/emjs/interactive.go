package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type interactiveModel struct {
	err      error
	session  *session
	filename string
	result   string
	inputs   []textinput.Model
	timeout  time.Duration
	selected int
	focusIdx int
	state    modelState
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(filename string, timeout time.Duration) *interactiveModel {
	return &interactiveModel{
		filename: filename,
		timeout:  timeout,
		state:    stateSelectFunc,
	}
}

type loadedMsg struct {
	err     error
	session *session
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadObject
}

func (m *interactiveModel) loadObject() tea.Msg {
	s, err := openSession(context.Background(), m.filename, m.timeout)
	return loadedMsg{err: err, session: s}
}

func (m *interactiveModel) funcs() []callable {
	if m.session == nil {
		return nil
	}
	return m.session.callables
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs())-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs()) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) close() {
	if m.session != nil {
		m.session.Close(context.Background())
		m.session = nil
	}
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs()[m.selected]
	m.inputs = make([]textinput.Model, len(f.ft.Params))
	for i, p := range f.ft.Params {
		ti := textinput.New()
		ti.Placeholder = p.String()
		ti.Prompt = f.params[i] + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	f := m.funcs()[m.selected]
	args := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = input.Value()
	}
	result, err := m.session.call(context.Background(), f.name, args)
	return callResultMsg{result: result, err: err}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.session == nil {
		return "Loading object..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("emjs"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs()) == 0 {
			b.WriteString("The object has no snippets.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a snippet to call:\n\n")
		for i, f := range m.funcs() {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatFunc(f)))
			} else {
				b.WriteString("  " + formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs()[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.ft.Params[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs()[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatFunc(f callable) string {
	params := make([]string, len(f.params))
	for i, p := range f.params {
		params[i] = p + ": " + typeStyle.Render(f.ft.Params[i].String())
	}
	result := ""
	if len(f.ft.Results) > 0 {
		result = " -> " + typeStyle.Render(f.ft.Results[0].String())
	}
	return funcStyle.Render(f.name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(filename string, timeout time.Duration) error {
	m := newInteractiveModel(filename, timeout)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	m.close()
	return err
}
