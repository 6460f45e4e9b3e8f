package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	session  lipgloss.Style
	detail   lipgloss.Style
	meta     lipgloss.Style
	empty    lipgloss.Style
	section  lipgloss.Style
	active   lipgloss.Style
	pending  lipgloss.Style
	done     lipgloss.Style
	failed   lipgloss.Style
	observer lipgloss.Style
	warning  lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true),
		header:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		session:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		meta:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		empty:    lipgloss.NewStyle().Faint(true),
		section:  lipgloss.NewStyle().MarginTop(1),
		active:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		pending:  lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		done:     lipgloss.NewStyle().Faint(true),
		failed:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		observer: lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		warning:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
	}
}
