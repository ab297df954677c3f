package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"trailmetrics/internal/service"
)

// ReportModel is a scrollable view of a stored run
type ReportModel struct {
	queryService *service.QueryService
	runID        string
	report       *service.RunReport
	viewport     viewport.Model
	loading      bool
	err          error
	ready        bool
}

// NewReportModel creates a report model for runID, empty for the latest run
func NewReportModel(qs *service.QueryService, runID string, width, height int) ReportModel {
	m := ReportModel{
		queryService: qs,
		runID:        runID,
		loading:      true,
	}

	if width > 0 && height > 0 {
		m.viewport = viewport.New(width, height-4)
		m.ready = true
	}

	return m
}

// Init initializes the report screen
func (m ReportModel) Init() tea.Cmd {
	return m.loadReport
}

type reportLoadedMsg struct {
	report *service.RunReport
	err    error
}

func (m ReportModel) loadReport() tea.Msg {
	report, err := m.queryService.GetRunReport(m.runID)
	return reportLoadedMsg{report: report, err: err}
}

// Update handles messages
func (m ReportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case reportLoadedMsg:
		m.loading = false
		m.err = msg.err
		m.report = msg.report
		if m.ready && m.report != nil {
			m.viewport.SetContent(RenderReport(m.report))
		}

	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		if m.report != nil {
			m.viewport.SetContent(RenderReport(m.report))
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, m.loadReport
		}
	}

	// Handle viewport scrolling
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the report screen
func (m ReportModel) View() string {
	if m.loading {
		return "\n  Loading run..."
	}

	if m.err != nil {
		return failStyle.Render(fmt.Sprintf("\n  Error: %v", m.err))
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	footer := hintStyle.Render("  " + strings.Join([]string{
		RenderKeyHelp("j/k", "scroll"),
		RenderKeyHelp("r", "reload"),
		RenderKeyHelp("q", "quit"),
	}, "  "))

	return lipgloss.JoinVertical(lipgloss.Left, m.viewport.View(), footer)
}

// RenderReport renders a run and its traces as a table
func RenderReport(r *service.RunReport) string {
	var sections []string

	sections = append(sections, runTitleStyle.Render(fmt.Sprintf("Run %s", r.Run.ID)))
	sections = append(sections, strings.Join([]string{
		RenderMetric("Source", r.Run.Source),
		RenderMetric("Started", fmt.Sprintf("%s (%s)", r.Run.StartedAt.Local().Format("Jan 02, 2006 15:04"), humanize.Time(r.Run.StartedAt))),
		RenderMetric("Traces", humanize.Comma(int64(r.Run.Traces))),
		RenderMetric("Points", humanize.Comma(int64(r.Run.Points))),
		RenderMetric("Distance", fmt.Sprintf("%s km", humanize.FormatFloat("#,###.#", r.TotalDistance/1000))),
		RenderMetric("Elevation gain", gainStyle.Render(fmt.Sprintf("%s m", humanize.Comma(int64(r.TotalGain+0.5))))),
	}, "\n"))

	if len(r.Traces) > 0 {
		header := columnHeaderStyle.Render(fmt.Sprintf("%-12s  %-28s  %-8s  %10s  %8s  %8s  %9s  %s",
			"Date", "Trace", "Activity", "Distance", "D+", "Moving", "Pace", "Quality"))
		rows := []string{"", header}
		for _, t := range r.Traces {
			row := fmt.Sprintf("%-12s  %-28s  %-8s  %10s  %8s  %8s  %9s  %s",
				t.Date,
				truncateName(t.Summary.SourceID, 28),
				t.Summary.ActivityShort,
				t.Distance,
				t.Gain,
				t.Moving,
				t.Pace,
				renderQuality(t.Quality),
			)
			rows = append(rows, rowStyle.Render(row))
		}
		sections = append(sections, strings.Join(rows, "\n"))
	}

	if len(r.Failures) > 0 {
		lines := []string{"", flagStyle.Render(fmt.Sprintf("%d traces failed", len(r.Failures)))}
		for _, f := range r.Failures {
			lines = append(lines, failStyle.Render(fmt.Sprintf("  %s: %s", f.SourceID, f.Message)))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// truncateName shortens s to max runes, marking the cut with "..."
func truncateName(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
