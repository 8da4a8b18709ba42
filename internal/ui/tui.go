package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/repoindex/internal/progress"
	bprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws build progress with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *buildModel
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when the output is not
// a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	model := newBuildModel(cfg.Source)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}
	return &TUIRenderer{cfg: cfg, model: model, done: make(chan struct{})}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}
	ctx, r.cancel = context.WithCancel(ctx)

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// Update implements Renderer.
func (r *TUIRenderer) Update(s progress.Snapshot) {
	r.send(snapshotMsg(s))
}

// Finish implements Renderer.
func (r *TUIRenderer) Finish(s progress.Snapshot) {
	r.send(finishMsg(s))
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Stop implements Renderer. It waits briefly for the final frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p, cancel := r.program, r.cancel
	r.mu.Unlock()

	if p == nil {
		return nil
	}
	select {
	case <-r.done:
	case <-time.After(500 * time.Millisecond):
		p.Quit()
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}
	cancel()
	return nil
}

type snapshotMsg progress.Snapshot
type finishMsg progress.Snapshot

// buildModel is the bubbletea model of one build.
type buildModel struct {
	source   string
	snap     progress.Snapshot
	rates    *Sparkline
	finished bool
	quitting bool
	width    int
	spinner  spinner.Model
	bar      bprogress.Model
	styles   Styles
	now      func() time.Time
}

func newBuildModel(source string) *buildModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	return &buildModel{
		source:  source,
		rates:   NewSparkline(120),
		width:   80,
		spinner: s,
		bar: bprogress.New(
			bprogress.WithSolidFill(ColorAccent),
			bprogress.WithWidth(50),
			bprogress.WithoutPercentage(),
		),
		styles: DefaultStyles(),
		now:    time.Now,
	}
}

// Init implements tea.Model.
func (m *buildModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)

	case snapshotMsg:
		m.snap = progress.Snapshot(msg)
		if r := m.snap.ProcessingRate; r != nil {
			m.rates.Add(*r)
		}

	case finishMsg:
		m.snap = progress.Snapshot(msg)
		m.finished = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *buildModel) View() string {
	if m.quitting && !m.finished {
		return "Detached; the build continues on the server.\n"
	}
	if m.finished {
		return m.renderFinished()
	}

	width := max(m.width-4, 40)
	sections := []string{
		m.renderSteps(),
		m.divider(width),
		m.renderBar(),
		m.renderRate(),
	}
	if m.rates.Count() > 0 {
		sections = append(sections,
			m.styles.Sparkline.Render(m.rates.Render(width-12))+" "+m.styles.Dim.Render("files/s"))
	}
	if f := m.snap.CurrentFile; f != "" {
		sections = append(sections, m.divider(width), m.styles.Dim.Render(truncateFilePath(f, width-2)))
	}

	title := "repoindex"
	if m.source != "" {
		title += " • " + m.source
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(strings.Join(sections, "\n")),
		m.styles.Dim.Render("q to detach"),
	)
}

func (m *buildModel) renderSteps() string {
	current := StepOf(m.snap.CurrentPhase)
	var parts []string
	for _, st := range []Step{StepFetch, StepEmbed, StepIndex} {
		switch {
		case st < current:
			parts = append(parts, m.styles.Success.Render("● "+st.String()))
		case st == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+st.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+st.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *buildModel) renderBar() string {
	pct := m.snap.ProgressPercentage
	line := m.bar.ViewAs(pct/100) + "  " + m.styles.Active.Render(fmt.Sprintf("%3.0f%%", pct))

	detail := m.snap.StatusMsg
	if m.snap.TotalFiles > 0 {
		detail = fmt.Sprintf("%d / %d files • %d chunks updated",
			m.snap.ProcessedFiles, m.snap.TotalFiles, m.snap.UpdatedChunks)
	}
	return line + "\n" + m.styles.Label.Render(detail)
}

func (m *buildModel) renderRate() string {
	var parts []string
	if r := m.snap.ProcessingRate; r != nil {
		parts = append(parts, fmt.Sprintf("Rate: %.1f files/s", *r))
	}
	if eta := m.snap.EstimatedCompletion; eta != nil {
		if left := eta.Sub(m.now()); left > 0 {
			parts = append(parts, "ETA: "+formatDuration(left))
		}
	}
	if len(parts) == 0 {
		return m.styles.Dim.Render(string(m.snap.Status))
	}
	return m.styles.Label.Render(strings.Join(parts, "  •  "))
}

func (m *buildModel) divider(width int) string {
	return m.styles.Border.Render(strings.Repeat("─", width))
}

func (m *buildModel) renderFinished() string {
	var lines []string
	border := ColorAccent
	if m.snap.Status == progress.StatusFailed {
		border = ColorRed
		lines = append(lines,
			m.styles.Error.Render("✗ Build failed"),
			"",
			m.snap.StatusMsg)
	} else {
		lines = append(lines, m.styles.Success.Render("✓ Index built"), "")
		if st := m.snap.IndexStats; st != nil {
			d := time.Duration(st.DurationMs) * time.Millisecond
			lines = append(lines,
				fmt.Sprintf("%s    %d", m.styles.Label.Render("Files:"), st.TotalFiles),
				fmt.Sprintf("%s   %d", m.styles.Label.Render("Chunks:"), st.UpdatedChunks),
				fmt.Sprintf("%s %s", m.styles.Label.Render("Duration:"), formatDuration(d)))
		}
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(border)).
		Padding(1, 2).
		Width(max(m.width-4, 40))
	return panel.Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// truncateFilePath shortens path to maxLen, keeping the file name.
func truncateFilePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen < 4 {
		return "..."
	}
	i := strings.LastIndex(path, "/")
	name := path[i+1:]
	if i < 0 || len(name)+4 > maxLen {
		return "..." + path[len(path)-maxLen+3:]
	}
	keep := maxLen - len(name) - 4
	if keep <= 0 {
		return ".../" + name
	}
	dir := path[:i]
	return "..." + dir[len(dir)-keep:] + "/" + name
}

var _ Renderer = (*TUIRenderer)(nil)
