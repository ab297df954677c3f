package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"trailmetrics/internal/service"
)

// RunFunc starts a run that reports to progress. It must close progress
// when it returns.
type RunFunc func(ctx context.Context, progress chan<- service.RunProgress) (*service.RunResult, error)

// ProgressMsg carries one progress report from the run
type ProgressMsg service.RunProgress

// RunDoneMsg is sent when the run finishes
type RunDoneMsg struct {
	Result *service.RunResult
	Err    error
}

// RunModel shows the progress of an enrichment run
type RunModel struct {
	title    string
	spinner  spinner.Model
	bar      progress.Model
	current  service.RunProgress
	started  time.Time
	result   *service.RunResult
	err      error
	done     bool
	cancel   context.CancelFunc
	quitting bool
}

// NewRunModel creates a new progress model. cancel is called when the
// user aborts.
func NewRunModel(title string, cancel context.CancelFunc) RunModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(trailColor)

	return RunModel{
		title:   title,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		current: service.RunProgress{Phase: service.PhaseLoad},
		started: time.Now(),
		cancel:  cancel,
	}
}

// Init initializes the model
func (m RunModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages
func (m RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ProgressMsg:
		m.current = service.RunProgress(msg)
		var percent float64
		if msg.Total > 0 {
			percent = float64(msg.Completed) / float64(msg.Total)
		}
		return m, m.bar.SetPercent(percent)

	case RunDoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil && !m.quitting {
				m.quitting = true
				m.cancel()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-8, 60)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

// View renders the progress screen
func (m RunModel) View() string {
	sections := []string{headerStyle.Render(m.title)}

	if m.done {
		if m.err != nil {
			sections = append(sections, failStyle.Render(fmt.Sprintf("  Error: %v", m.err)))
		} else {
			sections = append(sections, m.renderSummary())
		}
		return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
	}

	var lines []string
	switch m.current.Phase {
	case service.PhaseLoad:
		lines = append(lines, fmt.Sprintf("  %s %s traces...", m.spinner.View(), phaseLabel(m.current.Phase)))
	default:
		lines = append(lines, fmt.Sprintf("  %s %s %s/%s traces",
			m.spinner.View(), phaseLabel(m.current.Phase),
			humanize.Comma(int64(m.current.Completed)), humanize.Comma(int64(m.current.Total))))
		lines = append(lines, "  "+m.bar.View())
		if m.current.SourceID != "" {
			lines = append(lines, hintStyle.Render("  "+m.current.SourceID))
		}
		if m.current.Failed > 0 {
			lines = append(lines, flagStyle.Render(fmt.Sprintf("  %d failed", m.current.Failed)))
		}
	}

	if m.quitting {
		lines = append(lines, hintStyle.Render("  Cancelling..."))
	} else {
		lines = append(lines, hintStyle.Render("  "+RenderKeyHelp("q", "cancel")))
	}
	sections = append(sections, strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m RunModel) renderSummary() string {
	if m.result == nil {
		return ""
	}
	r := m.result.Run
	lines := []string{
		cleanStyle.Render(fmt.Sprintf("  %s traces enriched", humanize.Comma(int64(r.Traces)))),
		RenderMetric("  Points", humanize.Comma(int64(r.Points))),
		RenderMetric("  Elapsed", m.result.Elapsed.Round(time.Millisecond).String()),
	}
	if r.Failures > 0 {
		lines = append(lines, flagStyle.Render(fmt.Sprintf("  %d traces failed", r.Failures)))
	}
	if r.Skipped > 0 {
		lines = append(lines, flagStyle.Render(fmt.Sprintf("  %d inputs skipped", r.Skipped)))
	}
	return strings.Join(lines, "\n")
}

// Result returns the outcome once the run is done
func (m RunModel) Result() (*service.RunResult, error) {
	return m.result, m.err
}

// RunWithProgress runs fn while rendering its progress in the terminal and
// returns fn's result. Aborting from the keyboard cancels ctx for fn.
func RunWithProgress(ctx context.Context, title string, fn RunFunc, opts ...tea.ProgramOption) (*service.RunResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewRunModel(title, cancel), opts...)

	go func() {
		progressCh := make(chan service.RunProgress)
		forwarded := make(chan struct{})
		go func() {
			defer close(forwarded)
			for msg := range progressCh {
				p.Send(ProgressMsg(msg))
			}
		}()
		res, err := fn(ctx, progressCh)
		<-forwarded
		p.Send(RunDoneMsg{Result: res, Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("running progress view: %w", err)
	}
	return final.(RunModel).Result()
}
