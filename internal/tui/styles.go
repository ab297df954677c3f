package tui

import (
	"github.com/charmbracelet/lipgloss"

	"trailmetrics/internal/service"
)

// Palette
var (
	trailColor = lipgloss.Color("#2F855A") // forest green
	climbColor = lipgloss.Color("#DD6B20") // elevation
	alertColor = lipgloss.Color("#E53E3E")
	dimColor   = lipgloss.Color("#718096")
	inkColor   = lipgloss.Color("#F7FAFC")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(inkColor).
			Background(trailColor).
			Padding(0, 1).
			MarginBottom(1)

	runTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(trailColor).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Width(16)

	valueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(inkColor)

	gainStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(climbColor)

	columnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(trailColor).
				BorderBottom(true).
				BorderForeground(dimColor).
				Padding(0, 1)

	rowStyle = lipgloss.NewStyle().Padding(0, 1)

	hintStyle  = lipgloss.NewStyle().Foreground(dimColor).MarginTop(1)
	failStyle  = lipgloss.NewStyle().Foreground(alertColor)
	cleanStyle = lipgloss.NewStyle().Foreground(trailColor)
	flagStyle  = lipgloss.NewStyle().Foreground(climbColor)

	keyStyle     = lipgloss.NewStyle().Foreground(trailColor).Bold(true)
	keyDescStyle = lipgloss.NewStyle().Foreground(dimColor)
)

var phaseLabels = map[string]string{
	service.PhaseLoad:    "Loading",
	service.PhaseEnrich:  "Enriching",
	service.PhasePersist: "Saving",
}

// phaseLabel names a run phase for display
func phaseLabel(phase string) string {
	if l, ok := phaseLabels[phase]; ok {
		return l
	}
	return phase
}

// RenderMetric renders a label and its value on one line
func RenderMetric(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left, labelStyle.Render(label), valueStyle.Render(value))
}

// RenderKeyHelp renders a key binding help item
func RenderKeyHelp(key, desc string) string {
	return keyStyle.Render(key) + " " + keyDescStyle.Render(desc)
}

// renderQuality highlights traces that needed cleaning
func renderQuality(q string) string {
	if q == "ok" {
		return cleanStyle.Render(q)
	}
	return flagStyle.Render(q)
}
