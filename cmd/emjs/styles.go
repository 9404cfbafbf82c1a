package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var colorEnabled bool

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boldStyle = lipgloss.NewStyle().Bold(true)
)

func initColor(disabled bool) {
	fd := os.Stdout.Fd()
	colorEnabled = !disabled && os.Getenv("NO_COLOR") == "" &&
		(isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
}

func paint(s lipgloss.Style, text string) string {
	if !colorEnabled {
		return text
	}
	return s.Render(text)
}

func success(text string) string { return paint(resultStyle, "✓ "+text) }
func failure(text string) string { return paint(errorStyle, "✗ "+text) }
func dim(text string) string     { return paint(dimStyle, text) }
func bold(text string) string    { return paint(boldStyle, text) }
func fn(text string) string      { return paint(funcStyle, text) }
func typ(text string) string     { return paint(typeStyle, text) }
