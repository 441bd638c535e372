// internal/ui/progress.go

package ui

import (
	"context"
	"fmt"
	"io"
	apperr "provisioner/internal/error"
	"provisioner/internal/ui/messages"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
)

type stageStatus int

const (
	stagePending stageStatus = iota
	stageRunning
	stageSucceeded
	stageFailed
)

type stageRow struct {
	name    string
	status  stageStatus
	elapsed time.Duration
	err     error
}

// ProgressModel renders the stages of one deploy as they run.
type ProgressModel struct {
	target  string
	rows    []stageRow
	spinner spinner.Model
	cancel  context.CancelFunc

	interrupted bool
	done        bool
	err         error
}

// NewProgressModel lists stages as pending. cancel is called on ctrl+c;
// the model keeps running until the deploy reports it is done.
func NewProgressModel(target string, stages []string, cancel context.CancelFunc) ProgressModel {
	rows := make([]stageRow, len(stages))
	for i, name := range stages {
		rows[i] = stageRow{name: name}
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = RunningStyle
	return ProgressModel{
		target:  target,
		rows:    rows,
		spinner: s,
		cancel:  cancel,
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && !m.interrupted {
			m.interrupted = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case messages.StageStartedMsg:
		m.update(msg.Name, func(r *stageRow) {
			r.status = stageRunning
		})
		return m, nil

	case messages.StageFinishedMsg:
		m.update(msg.Name, func(r *stageRow) {
			r.elapsed = msg.Elapsed
			r.err = msg.Err
			r.status = stageSucceeded
			if msg.Err != nil {
				r.status = stageFailed
			}
		})
		return m, nil

	case messages.DeployDoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *ProgressModel) update(name string, fn func(*stageRow)) {
	for i := range m.rows {
		if m.rows[i].name == name {
			fn(&m.rows[i])
			return
		}
	}
	m.rows = append(m.rows, stageRow{name: name})
	fn(&m.rows[len(m.rows)-1])
}

func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Deploying " + m.target))
	b.WriteString("\n")

	names := make([]string, len(m.rows))
	for i, r := range m.rows {
		names[i] = r.name
	}
	width := GetMaxWidth(names)

	for _, r := range m.rows {
		name := fmt.Sprintf("%-*s", width, r.name)
		switch r.status {
		case stagePending:
			b.WriteString(PendingStyle.Render("  · " + name))
		case stageRunning:
			b.WriteString("  " + m.spinner.View() + " " + RunningStyle.Render(name))
		case stageSucceeded:
			b.WriteString(SuccessStyle.Render("  ✓ "+name) + DescriptionStyle.Render(FormatElapsed(r.elapsed)))
		case stageFailed:
			b.WriteString(ErrorStyle.Render("  ✗ "+name) + DescriptionStyle.Render(FormatElapsed(r.elapsed)))
		}
		b.WriteString("\n")
	}

	if m.interrupted && !m.done {
		b.WriteString(PendingStyle.Render("interrupted, waiting for the running stage to finish"))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString("\n" + ErrorStyle.Render(m.err.Error()) + "\n")
		if cmdErr, ok := apperr.AsCommand(m.err); ok && cmdErr.Output != "" {
			b.WriteString(OutputStyle.Render(strings.TrimRight(cmdErr.Output, "\n")) + "\n")
		}
	}
	return b.String()
}

// FormatElapsed renders a stage duration the way it is shown to users.
func FormatElapsed(d time.Duration) string {
	var start time.Time
	return strings.TrimSpace(humanize.RelTime(start, start.Add(d), "", ""))
}

// ProgramObserver forwards stage events to a running bubbletea program.
type ProgramObserver struct {
	Program *tea.Program
}

func (o *ProgramObserver) StageStarted(name string) {
	o.Program.Send(messages.StageStartedMsg{Name: name})
}

func (o *ProgramObserver) StageFinished(name string, elapsed time.Duration, err error) {
	o.Program.Send(messages.StageFinishedMsg{Name: name, Elapsed: elapsed, Err: err})
}

// RunProgress shows the progress model on out while run executes. run
// receives a context cancelled on ctrl+c and the observer to report to.
func RunProgress(ctx context.Context, out io.Writer, target string, stages []string,
	run func(ctx context.Context, obs *ProgramObserver) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgressModel(target, stages, cancel), tea.WithOutput(out))
	obs := &ProgramObserver{Program: p}

	result := make(chan error, 1)
	go func() {
		err := run(ctx, obs)
		p.Send(messages.DeployDoneMsg{Err: err})
		result <- err
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-result
		return apperr.New(apperr.FileError, "progress display failed", err)
	}
	return <-result
}
