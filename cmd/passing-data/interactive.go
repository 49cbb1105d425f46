package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/passing-data/exchange"
	"github.com/wippyai/passing-data/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxHistory bounds the exchanges shown on screen.
const maxHistory = 8

func (a *app) interactiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "interactive",
		Usage: "Type strings and pass each through a fresh guest instance",
		Flags: configFlags(),
		Action: func(c *cli.Context) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("interactive mode needs a terminal; use the run command instead")
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			img, err := loadGuest(cfg.Guest)
			if err != nil {
				return err
			}
			p := tea.NewProgram(newInteractiveModel(c.Context, cfg, img, a.logger), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}

type exchangeRecord struct {
	err    error
	input  string
	result exchange.Result
}

type interactiveModel struct {
	ctx     context.Context
	cfg     exchange.Config
	img     *runtime.Image
	logger  *zap.Logger
	input   textinput.Model
	history []exchangeRecord
	running bool
}

func newInteractiveModel(ctx context.Context, cfg exchange.Config, img *runtime.Image, logger *zap.Logger) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = exchange.DefaultInput
	ti.Prompt = "input: "
	ti.Width = 50
	ti.Focus()

	return &interactiveModel{
		ctx:    ctx,
		cfg:    cfg,
		img:    img,
		logger: logger,
		input:  ti,
	}
}

type exchangeDoneMsg exchangeRecord

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

// runExchange drives one exchange on its own instance. The image is
// shared; every run gets a fresh runtime and memory. The expected result
// keeps the suffix of the configured input/expected pair.
func (m *interactiveModel) runExchange(input string) tea.Cmd {
	cfg := m.cfg.WithInput(input)

	return func() tea.Msg {
		res, err := exchange.NewDriver(cfg, exchange.WithLogger(m.logger)).Run(m.ctx, m.img)
		return exchangeDoneMsg{input: input, result: res, err: err}
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			if m.running {
				return m, nil
			}
			input := m.input.Value()
			if input == "" {
				input = exchange.DefaultInput
			}
			m.input.SetValue("")
			m.running = true
			return m, m.runExchange(input)
		}

	case exchangeDoneMsg:
		m.running = false
		m.history = append(m.history, exchangeRecord(msg))
		if len(m.history) > maxHistory {
			m.history = m.history[len(m.history)-maxHistory:]
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Passing Data"))
	b.WriteString(" ")
	if m.cfg.Guest != "" {
		b.WriteString(m.cfg.Guest)
	} else {
		b.WriteString("built-in guest")
	}
	b.WriteString("\n\n")

	for _, rec := range m.history {
		b.WriteString(inputStyle.Render(fmt.Sprintf("%q", rec.input)))
		b.WriteString("\n  ")
		if rec.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", rec.err)))
		} else {
			b.WriteString(resultStyle.Render(fmt.Sprintf("%q", rec.result.Output)))
			b.WriteString(" ")
			b.WriteString(detailStyle.Render(fmt.Sprintf("(%d bytes, buffer %d → %d, memory %d bytes)",
				rec.result.Length, rec.result.Pointer.Offset, rec.result.Refreshed.Offset, rec.result.MemorySize)))
		}
		b.WriteString("\n")
	}
	if len(m.history) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	if m.running {
		b.WriteString(helpStyle.Render("  running..."))
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter run • esc quit"))

	return b.String()
}
