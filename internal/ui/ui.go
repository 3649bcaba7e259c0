package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/tasks"
)

const recentLines = 8

// RunFunc starts a download run that reports to progress and returns when it ends.
type RunFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.DownloadResult, error)

// keyMap defines the [key.Binding] mapping for the monitor.
type keyMap struct {
	quit key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "stop")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.quit}}
}

type progressUpdateMsg tasks.ProgressUpdate

type runCompleteMsg struct {
	result *tasks.DownloadResult
	err    error
}

// activeTransfer is the latest state of one in-flight transfer.
type activeTransfer struct {
	name    string
	message string
}

// Model is a live view of a download run: one line per in-flight transfer, a bar for
// the current batch, and the most recent finished transfers.
type Model struct {
	ctx          context.Context
	cancel       context.CancelFunc
	run          RunFunc
	progressChan chan tasks.ProgressUpdate

	status    string
	batch     int
	batchSize int
	batchDone int
	active    map[string]activeTransfer
	recent    []string

	result   *tasks.DownloadResult
	err      error
	stopping bool
	done     bool

	spinner spinner.Model
	bar     progress.Model
	help    help.Model
	keys    keyMap
}

// NewModel creates a monitor for run. Stopping the monitor cancels ctx for the run.
func NewModel(ctx context.Context, run RunFunc) *Model {
	ctx, cancel := context.WithCancel(ctx)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.warn

	return &Model{
		ctx:     ctx,
		cancel:  cancel,
		run:     run,
		status:  "Starting...",
		active:  make(map[string]activeTransfer),
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Result returns the outcome of the run once the program has exited.
func (m *Model) Result() (*tasks.DownloadResult, error) {
	return m.result, m.err
}

// Init starts the run and begins listening for progress.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startRun(), m.waitForProgress())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-8, 10), 60)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			if m.done {
				return m, tea.Quit
			}
			m.stopping = true
			m.status = "Stopping, releasing in-flight downloads..."
			m.cancel()
		}
		return m, nil

	case progressUpdateMsg:
		cmd := m.apply(tasks.ProgressUpdate(msg))
		return m, tea.Batch(cmd, m.waitForProgress())

	case runCompleteMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		m.cancel()
		return m, tea.Quit

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

// apply folds one progress update into the model.
func (m *Model) apply(u tasks.ProgressUpdate) tea.Cmd {
	switch u.Phase {
	case tasks.Batch:
		m.batch = u.Step
		m.batchSize = u.Total
		m.batchDone = 0
		m.status = u.Message
		return m.bar.SetPercent(0)

	case tasks.Transfer:
		t := m.active[u.Key]
		if item, ok := u.Data.(*models.Item); ok {
			t.name = item.Name
		}
		t.message = u.Message
		m.active[u.Key] = t
		return nil

	case tasks.Finalize:
		delete(m.active, u.Key)
		m.recent = append(m.recent, u.Message)
		if len(m.recent) > recentLines {
			m.recent = m.recent[len(m.recent)-recentLines:]
		}
		m.batchDone++
		if m.batchSize > 0 {
			return m.bar.SetPercent(float64(m.batchDone) / float64(m.batchSize))
		}
		return nil

	default:
		if !m.stopping {
			m.status = u.Message
		}
		return nil
	}
}

// startRun runs the download on a fresh progress channel and closes the channel when
// the run returns.
func (m *Model) startRun() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	ch := m.progressChan

	return func() tea.Msg {
		result, err := m.run(m.ctx, ch)
		close(ch)
		return runCompleteMsg{result: result, err: err}
	}
}

func (m *Model) waitForProgress() tea.Cmd {
	ch := m.progressChan
	return func() tea.Msg {
		if ch == nil {
			return nil
		}
		update, ok := <-ch
		if !ok {
			return nil
		}
		return progressUpdateMsg(update)
	}
}

// View renders the current state of the run.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(Title("vmx download"))
	b.WriteString("\n")

	if m.done {
		b.WriteString(m.renderResult())
		return b.String()
	}

	fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), m.status)

	if m.batch > 0 {
		fmt.Fprintf(&b, "Batch %d  %s  %d/%d\n\n", m.batch, m.bar.View(), m.batchDone, m.batchSize)
	}

	keys := make([]string, 0, len(m.active))
	for k := range m.active {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t := m.active[k]
		fmt.Fprintf(&b, "  %s  %s\n", t.name, Help(t.message))
	}

	if len(m.recent) > 0 {
		b.WriteString("\n")
		for _, line := range m.recent {
			b.WriteString("  " + colorLine(line) + "\n")
		}
	}

	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderResult() string {
	if m.result == nil {
		return Err(fmt.Sprintf("Download failed: %v", m.err)) + "\n"
	}

	r := m.result
	summary := fmt.Sprintf("Processed %d: %s, %s, %s\n",
		r.Processed,
		OK(fmt.Sprintf("%d downloaded", r.Downloaded)),
		Err(fmt.Sprintf("%d failed", r.Failed)),
		Warn(fmt.Sprintf("%d re-armed", r.Rearmed)),
	)
	if m.err != nil {
		summary += Err(fmt.Sprintf("Stopped: %v", m.err)) + "\n"
	}
	return summary
}

func colorLine(line string) string {
	switch {
	case strings.HasPrefix(line, "✓"):
		return OK(line)
	case strings.HasPrefix(line, "✗"):
		return Err(line)
	default:
		return Help(line)
	}
}
