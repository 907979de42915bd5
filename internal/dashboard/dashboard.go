package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lepinkainen/feed-brief/internal/articles"
	"github.com/lepinkainen/feed-brief/internal/i18n"
	"github.com/lepinkainen/feed-brief/internal/lang"
	"github.com/lepinkainen/feed-brief/internal/news"
)

// ViewMode represents the current view mode
type ViewMode int

// View modes for the dashboard
const (
	LoadingView ViewMode = iota
	ListView
	DetailView
	ChatView
	ErrorView
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("12")).Bold(true)
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	boldStyle     = lipgloss.NewStyle().Bold(true)
)

// Loader runs the briefing pipeline in the given language.
type Loader func(ctx context.Context, l lang.Language) (*news.Result, error)

// Options wire the dashboard to the orchestrator.
type Options struct {
	Load     Loader
	Refresh  Loader
	Language lang.Language
	Catalog  *i18n.Catalog
	// Open shows a URL, usually in the browser.
	Open func(string) error
	Now  func() time.Time
}

type loadedMsg struct {
	result *news.Result
	err    error
}

type replyMsg struct{ err error }

type openedMsg struct{ err error }

// Model represents the Bubble Tea model for the dashboard
type Model struct {
	opts     Options
	result   *news.Result
	err      error
	viewMode ViewMode
	category int
	cursor   int
	spinner  spinner.Model
	input    textinput.Model
	waiting  bool
	notice   string
	width    int
	height   int
}

// NewModel creates a dashboard that starts by loading the briefing.
func NewModel(opts Options) Model {
	if opts.Catalog == nil {
		opts.Catalog = i18n.Base()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	ti := textinput.New()
	ti.Placeholder = opts.Catalog.T("chat.placeholder")
	ti.Prompt = "> "
	ti.CharLimit = 1000

	return Model{
		opts:     opts,
		viewMode: LoadingView,
		spinner:  sp,
		input:    ti,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run(m.opts.Load))
}

func (m Model) run(load Loader) tea.Cmd {
	language := m.opts.Language
	return func() tea.Msg {
		res, err := load(context.Background(), language)
		return loadedMsg{result: res, err: err}
	}
}

func (m Model) send(text string) tea.Cmd {
	chat := m.result.Chat
	return func() tea.Msg {
		_, err := chat.Send(context.Background(), text)
		return replyMsg{err: err}
	}
}

func (m Model) open(url string) tea.Cmd {
	open := m.opts.Open
	return func() tea.Msg {
		if open == nil {
			return nil
		}
		return openedMsg{err: open(url)}
	}
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-4)
		return m, nil

	case spinner.TickMsg:
		if m.viewMode == LoadingView || m.waiting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case loadedMsg:
		if errors.Is(msg.err, news.ErrSuperseded) {
			return m, nil
		}
		if msg.err != nil {
			m.err = msg.err
			m.viewMode = ErrorView
			return m, nil
		}
		m.result = msg.result
		m.err = nil
		m.notice = ""
		m.category, m.cursor = 0, 0
		m.viewMode = ListView
		if msg.result.ChatErr != nil {
			m.notice = i18n.Describe(m.opts.Catalog, msg.result.ChatErr)
		}
		return m, nil

	case replyMsg:
		m.waiting = false
		if msg.err != nil {
			m.notice = i18n.Describe(m.opts.Catalog, msg.err)
		}
		return m, nil

	case openedMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.viewMode {
		case LoadingView:
			if msg.String() == "q" {
				return m, tea.Quit
			}
		case ListView:
			return m.updateListView(msg)
		case DetailView:
			return m.updateDetailView(msg)
		case ChatView:
			return m.updateChatView(msg)
		case ErrorView:
			return m.updateErrorView(msg)
		}
	}

	return m, nil
}

func (m Model) groups() articles.Categorized {
	if m.result == nil {
		return nil
	}
	return m.result.Articles
}

func (m Model) current() []articles.Article {
	groups := m.groups()
	if m.category >= len(groups) {
		return nil
	}
	return groups[m.category].Articles
}

func (m Model) refresh() (tea.Model, tea.Cmd) {
	m.viewMode = LoadingView
	m.notice = ""
	return m, tea.Batch(m.spinner.Tick, m.run(m.opts.Refresh))
}

func (m Model) openChat() (tea.Model, tea.Cmd) {
	m.viewMode = ChatView
	m.notice = ""
	return m, tea.Batch(m.input.Focus(), textinput.Blink)
}

// updateListView handles key presses in list view mode
func (m Model) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.current())-1 {
			m.cursor++
		}

	case "right", "l", "tab":
		if n := len(m.groups()); n > 0 {
			m.category = (m.category + 1) % n
			m.cursor = 0
		}

	case "left", "h", "shift+tab":
		if n := len(m.groups()); n > 0 {
			m.category = (m.category - 1 + n) % n
			m.cursor = 0
		}

	case "enter":
		if len(m.current()) > 0 {
			m.viewMode = DetailView
		}

	case "o":
		if list := m.current(); len(list) > 0 {
			return m, m.open(list[m.cursor].URL)
		}

	case "c":
		return m.openChat()

	case "r":
		return m.refresh()
	}

	return m, nil
}

// updateDetailView handles key presses in detail view mode
func (m Model) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "esc", "backspace":
		m.viewMode = ListView
	case "o", "enter":
		return m, m.open(m.current()[m.cursor].URL)
	case "c":
		return m.openChat()
	}
	return m, nil
}

func (m Model) updateChatView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.input.Blur()
		m.viewMode = ListView
		return m, nil

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.waiting {
			return m, nil
		}
		m.input.Reset()
		m.waiting = true
		m.notice = ""
		return m, tea.Batch(m.spinner.Tick, m.send(text))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateErrorView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "r", "enter":
		return m.refresh()
	}
	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(m.opts.Catalog.T("header.title")))
	b.WriteString("\n\n")

	switch m.viewMode {
	case LoadingView:
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.opts.Catalog.T("app.loadingMessage"))
	case ListView:
		m.renderListView(&b)
	case DetailView:
		m.renderDetailView(&b)
	case ChatView:
		m.renderChatView(&b)
	case ErrorView:
		m.renderErrorView(&b)
	}
	return b.String()
}

func (m Model) textWidth() int {
	if m.width > 4 {
		return min(m.width-2, 100)
	}
	return 70
}

func (m Model) renderListView(b *strings.Builder) {
	groups := m.groups()
	for i, g := range groups {
		label := fmt.Sprintf(" %s (%d) ", g.Category, len(g.Articles))
		if i == m.category {
			b.WriteString(selectedStyle.Render(label))
		} else {
			b.WriteString(label)
		}
	}
	b.WriteString("\n\n")

	list := m.current()
	visibleStart, visibleEnd := 0, len(list)
	if m.height > 0 {
		maxVisible := max(1, m.height-10)
		if maxVisible < len(list) {
			visibleStart = max(0, m.cursor-maxVisible/2)
			visibleEnd = visibleStart + maxVisible
			if visibleEnd > len(list) {
				visibleEnd = len(list)
				visibleStart = max(0, visibleEnd-maxVisible)
			}
		}
	}

	for i := visibleStart; i < visibleEnd; i++ {
		line := FormatListItem(i, list[i])
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("→ " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.result.FromCache {
		b.WriteString(footerStyle.Render(m.opts.Catalog.T("app.cachedAt", "time", formatTimeAgo(m.result.CachedAt, m.opts.Now()))))
		b.WriteString("\n")
	}
	if n := len(m.result.FeedErrors); n > 0 {
		b.WriteString(footerStyle.Render(fmt.Sprintf("%d feed(s) skipped", n)))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(errorStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(footerStyle.Render("↑/↓: navigate • ←/→: category • enter: details • o: open • c: chat • r: refresh • q: quit"))
}

func (m Model) renderDetailView(b *strings.Builder) {
	list := m.current()
	if m.cursor >= len(list) {
		b.WriteString("No article selected")
		return
	}
	b.WriteString(FormatDetail(list[m.cursor], m.opts.Catalog.T("articleCard.readMore"), m.textWidth()))
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(errorStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(footerStyle.Render("esc: back to list • o: open • c: chat • q: quit"))
}

func (m Model) renderChatView(b *strings.Builder) {
	transcript := FormatTranscript(m.result.Chat.History(), m.textWidth())
	if m.height > 0 {
		lines := strings.Split(strings.TrimRight(transcript, "\n"), "\n")
		if keep := m.height - 10; keep > 0 && len(lines) > keep {
			lines = lines[len(lines)-keep:]
		}
		transcript = strings.Join(lines, "\n") + "\n"
	}
	b.WriteString(transcript)
	b.WriteString("\n")

	if m.waiting {
		fmt.Fprintf(b, "%s %s\n", m.spinner.View(), m.opts.Catalog.T("chat.thinking"))
	}
	if m.notice != "" {
		b.WriteString(errorStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(footerStyle.Render("enter: " + m.opts.Catalog.T("chat.sendMessage") + " • esc: back to list"))
}

func (m Model) renderErrorView(b *strings.Builder) {
	b.WriteString(errorStyle.Render(m.opts.Catalog.T("app.error")))
	b.WriteString("\n")
	for _, seg := range i18n.Segments(i18n.Describe(m.opts.Catalog, m.err)) {
		if seg.Bold {
			b.WriteString(boldStyle.Render(seg.Text))
		} else {
			b.WriteString(seg.Text)
		}
	}
	b.WriteString("\n\n")
	b.WriteString(footerStyle.Render("r: retry • q: quit"))
}

// Run starts the Bubble Tea program
func Run(opts Options) error {
	p := tea.NewProgram(NewModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
