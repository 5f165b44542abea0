// Package tui provides the interactive day view for Nutrinest
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/tildaslashalef/nutrinest/internal/nutrition"
	"github.com/tildaslashalef/nutrinest/internal/reconcile"
	"github.com/tildaslashalef/nutrinest/internal/resource"
	"github.com/tildaslashalef/nutrinest/internal/utils"
)

// Source supplies the streams shown for a day
type Source interface {
	DailySummary(date string) reconcile.Stream[*nutrition.DailySummary]
	ObserveFood(ctx context.Context, date string) <-chan []*nutrition.FoodEntry
}

// KeyMap defines the key bindings for the TUI
type KeyMap struct {
	Help    key.Binding
	Quit    key.Binding
	NextDay key.Binding
	PrevDay key.Binding
	Today   key.Binding
	Refresh key.Binding
}

// DefaultKeyMap returns the default key map
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		NextDay: key.NewBinding(
			key.WithKeys("n", "right"),
			key.WithHelp("n", "next day"),
		),
		PrevDay: key.NewBinding(
			key.WithKeys("p", "left"),
			key.WithHelp("p", "previous day"),
		),
		Today: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "today"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
	}
}

// Keys is a global instance of the keymap for use in the model
var Keys = DefaultKeyMap()

// ShortHelp returns the short help text
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit, k.PrevDay, k.NextDay}
}

// FullHelp returns the full help text
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Help, k.Quit},
		{k.PrevDay, k.NextDay, k.Today, k.Refresh},
	}
}

// summaryMsg carries one emission of the summary stream
type summaryMsg struct {
	gen      int
	resource resource.Resource[*nutrition.DailySummary]
	next     <-chan resource.Resource[*nutrition.DailySummary]
}

// foodMsg carries one emission of the food entry stream
type foodMsg struct {
	gen     int
	entries []*nutrition.FoodEntry
	next    <-chan []*nutrition.FoodEntry
}

// streamClosedMsg reports that a stream of generation gen has ended
type streamClosedMsg struct {
	gen int
}

// Model is the day view. Each date change starts a new generation of
// subscriptions; messages from older generations are dropped.
type Model struct {
	source Source
	ctx    context.Context
	cancel context.CancelFunc
	gen    int
	now    func() time.Time

	date       string
	summary    resource.Resource[*nutrition.DailySummary]
	hasSummary bool
	entries    []*nutrition.FoodEntry

	width    int
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	showHelp bool
	styles   Styles
	renderer *glamour.TermRenderer
}

// NewModel creates the day view for date. Subscriptions live until ctx is
// done or the user quits.
func NewModel(ctx context.Context, source Source, date string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	styles := DefaultStyles()
	s.Style = styles.Spinner

	return Model{
		source:   source,
		ctx:      ctx,
		now:      time.Now,
		date:     date,
		width:    80,
		viewport: viewport.New(80, 12),
		spinner:  s,
		help:     help.New(),
		styles:   styles,
		renderer: newRenderer(80),
	}
}

func newRenderer(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return func() tea.Msg { return refreshMsg{} }
}

// refreshMsg asks the model to (re)subscribe for the current date
type refreshMsg struct{}

// subscribe cancels the previous generation and starts streams for m.date
func (m *Model) subscribe() tea.Cmd {
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.gen++

	m.summary = resource.Loading[*nutrition.DailySummary](nil)
	m.hasSummary = false
	m.entries = nil
	m.viewport.SetContent(m.renderEntries())

	summaries := m.source.DailySummary(m.date).Subscribe(ctx)
	food := m.source.ObserveFood(ctx, m.date)

	return tea.Batch(
		waitForSummary(m.gen, summaries),
		waitForFood(m.gen, food),
	)
}

func waitForSummary(gen int, ch <-chan resource.Resource[*nutrition.DailySummary]) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return streamClosedMsg{gen: gen}
		}
		return summaryMsg{gen: gen, resource: r, next: ch}
	}
}

func waitForFood(gen int, ch <-chan []*nutrition.FoodEntry) tea.Cmd {
	return func() tea.Msg {
		entries, ok := <-ch
		if !ok {
			return streamClosedMsg{gen: gen}
		}
		return foodMsg{gen: gen, entries: entries, next: ch}
	}
}

// Update updates the model based on messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, Keys.Quit):
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit

		case key.Matches(msg, Keys.Help):
			m.showHelp = !m.showHelp
			m.help.ShowAll = m.showHelp
			return m, nil

		case key.Matches(msg, Keys.NextDay):
			m.date = shiftDate(m.date, 1)
			return m, m.subscribe()

		case key.Matches(msg, Keys.PrevDay):
			m.date = shiftDate(m.date, -1)
			return m, m.subscribe()

		case key.Matches(msg, Keys.Today):
			m.date = m.now().Format(nutrition.DateLayout)
			return m, m.subscribe()

		case key.Matches(msg, Keys.Refresh):
			return m, m.subscribe()
		}

		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case refreshMsg:
		return m, tea.Batch(m.subscribe(), m.spinner.Tick)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		// banner, status bar, summary box and help
		m.viewport.Height = max(msg.Height-14, 5)
		m.help.Width = msg.Width
		m.renderer = newRenderer(max(msg.Width-4, 20))
		m.viewport.SetContent(m.renderEntries())
		return m, nil

	case summaryMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.summary = msg.resource
		m.hasSummary = true
		return m, waitForSummary(msg.gen, msg.next)

	case foodMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.entries = msg.entries
		m.viewport.SetContent(m.renderEntries())
		return m, waitForFood(msg.gen, msg.next)

	case streamClosedMsg:
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the model
func (m Model) View() string {
	footer := m.help.View(Keys)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Banner.Render("nutrinest"),
		m.styles.StatusBar.Render(m.date),
		m.statusLine(),
		m.summaryView(),
		m.viewport.View(),
		footer,
	)
}

func (m Model) statusLine() string {
	switch {
	case m.summary.IsLoading():
		return m.spinner.View() + " " + m.styles.Subtle.Render("Refreshing from server...")
	case m.summary.IsError():
		return m.styles.Warning.Render("⚠ " + m.summary.Message())
	}

	s, ok := m.summary.Data()
	if !ok || s.LastSyncedAt.IsZero() {
		return m.styles.Subtle.Render("Showing local data")
	}
	return m.styles.Success.Render("✓ ") + m.styles.Subtle.Render("Synced "+utils.FormatAgo(s.LastSyncedAt, m.now()))
}

func (m Model) summaryView() string {
	s, ok := m.summary.Data()
	if !ok {
		if m.hasSummary {
			return m.styles.Box.Render(m.styles.Subtle.Render("No summary stored for this day"))
		}
		return m.styles.Box.Render(m.styles.Subtle.Render("Loading summary..."))
	}

	row := func(label, value string) string {
		return m.styles.Label.Render(label) + m.styles.Value.Render(value)
	}
	return m.styles.Box.Render(lipgloss.JoinVertical(lipgloss.Left,
		row("Goal", fmt.Sprintf("%.0f kcal", s.CalorieGoal)),
		row("Consumed", fmt.Sprintf("%.0f kcal", s.CaloriesConsumed)),
		row("Remaining", fmt.Sprintf("%.0f kcal", s.Remaining())),
		row("Macros", fmt.Sprintf("P %.1f g  C %.1f g  F %.1f g", s.ProteinG, s.CarbsG, s.FatG)),
	))
}

func (m Model) renderEntries() string {
	md := entriesMarkdown(m.entries)
	if m.renderer == nil {
		return md
	}
	out, err := m.renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

// entriesMarkdown renders the food entries as a markdown table
func entriesMarkdown(entries []*nutrition.FoodEntry) string {
	var b strings.Builder
	b.WriteString("## Food\n\n")

	if len(entries) == 0 {
		b.WriteString("_Nothing logged yet._\n")
		return b.String()
	}

	b.WriteString("| Meal | Food | Grams | Kcal | Sync |\n")
	b.WriteString("| --- | --- | ---: | ---: | --- |\n")
	for _, e := range entries {
		sync := "synced"
		if e.PendingSync {
			sync = "pending"
		}
		fmt.Fprintf(&b, "| %s | %s | %.0f | %.0f | %s |\n",
			e.Meal, strings.ReplaceAll(e.Name, "|", `\|`), e.QuantityG, e.Calories, sync)
	}

	calories, protein, carbs, fat := nutrition.Totals(entries)
	fmt.Fprintf(&b, "\n**Total:** %.0f kcal, P %.1f g, C %.1f g, F %.1f g\n", calories, protein, carbs, fat)
	return b.String()
}

// shiftDate moves date by days, returning date unchanged when it does not parse
func shiftDate(date string, days int) string {
	t, err := time.Parse(nutrition.DateLayout, date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, days).Format(nutrition.DateLayout)
}
