package studycmder

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/papercomputeco/drills/pkg/study"
)

// reviewer is the part of the orchestrator the TUI drives.
type reviewer interface {
	RecordResponse(ctx context.Context, resp *study.GradedResponse) (*study.ReviewItem, error)
	CompleteSession(ctx context.Context, sessionID string, itemsCompleted, itemsCorrect int) (*study.StudySession, error)
}

type studyKeyMap struct {
	Reveal key.Binding
	Again  key.Binding
	Rate   key.Binding
	Skip   key.Binding
	Quit   key.Binding
}

func (k studyKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Reveal, k.Again, k.Rate, k.Skip, k.Quit}
}

func (k studyKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Reveal, k.Skip}, {k.Again, k.Rate, k.Quit}}
}

func defaultKeyMap() studyKeyMap {
	return studyKeyMap{
		Reveal: key.NewBinding(key.WithKeys("space", "enter"), key.WithHelp("space", "reveal")),
		Again:  key.NewBinding(key.WithKeys("x", "0"), key.WithHelp("x", "missed")),
		Rate:   key.NewBinding(key.WithKeys("1", "2", "3", "4"), key.WithHelp("1-4", "got it (hard to easy)")),
		Skip:   key.NewBinding(key.WithKeys("s", "right"), key.WithHelp("s", "skip")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

var (
	studyTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	studyMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	studyPromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Padding(1, 2).
				Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("237"))
	studyBucketStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("215"))
	studyOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("70"))
	studyFailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type answeredMsg struct {
	item    *study.ReviewItem
	correct bool
	err     error
}

type completedMsg struct {
	session *study.StudySession
	err     error
}

type studyModel struct {
	ctx       context.Context
	reviewer  reviewer
	userID    string
	sessionID string
	items     []*study.ReviewItem

	pos       int
	revealed  bool
	busy      bool
	completed int
	correct   int
	last      string
	err       error
	finished  *study.StudySession

	// onProgress is told the index of the next unanswered item.
	onProgress func(pos int)

	width int
	keys  studyKeyMap
	help  help.Model
}

func newStudyModel(ctx context.Context, r reviewer, session *study.StudySession, items []*study.ReviewItem, pos int, onProgress func(int)) studyModel {
	if onProgress == nil {
		onProgress = func(int) {}
	}
	return studyModel{
		ctx:        ctx,
		reviewer:   r,
		userID:     session.UserID,
		sessionID:  session.SessionID,
		items:      items,
		pos:        min(max(pos, 0), len(items)),
		completed:  session.ItemsCompleted,
		correct:    session.ItemsCorrect,
		onProgress: onProgress,
		keys:       defaultKeyMap(),
		help:       help.New(),
	}
}

func (m studyModel) Init() tea.Cmd {
	if m.pos >= len(m.items) {
		return m.completeCmd()
	}
	return nil
}

func (m studyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case answeredMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.completed++
		if msg.correct {
			m.correct++
			m.last = studyOKStyle.Render(fmt.Sprintf("✓ back in %s", days(msg.item.IntervalDays)))
		} else {
			m.last = studyFailStyle.Render("✗ back tomorrow")
		}
		return m.advance()
	case completedMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.finished = msg.session
		return m, nil
	case tea.KeyPressMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m studyModel) handleKey(k fmt.Stringer) (tea.Model, tea.Cmd) {
	if key.Matches(k, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.busy || m.pos >= len(m.items) {
		return m, nil
	}

	switch {
	case key.Matches(k, m.keys.Reveal):
		m.revealed = true
	case key.Matches(k, m.keys.Skip):
		m.last = studyMutedStyle.Render("skipped")
		return m.advance()
	case m.revealed && key.Matches(k, m.keys.Again):
		m.busy = true
		return m, m.answerCmd(false, 1)
	case m.revealed && key.Matches(k, m.keys.Rate):
		rating, _ := strconv.Atoi(k.String())
		m.busy = true
		return m, m.answerCmd(true, study.EaseRating(rating))
	}
	return m, nil
}

func (m studyModel) advance() (tea.Model, tea.Cmd) {
	m.pos++
	m.revealed = false
	m.onProgress(m.pos)
	if m.pos >= len(m.items) {
		m.busy = true
		return m, m.completeCmd()
	}
	return m, nil
}

func (m studyModel) answerCmd(correct bool, rating study.EaseRating) tea.Cmd {
	item := m.items[m.pos]
	return func() tea.Msg {
		updated, err := m.reviewer.RecordResponse(m.ctx, &study.GradedResponse{
			UserID:     m.userID,
			ItemID:     item.ItemID,
			ItemType:   item.ItemType,
			SessionID:  m.sessionID,
			IsCorrect:  correct,
			EaseRating: rating,
		})
		return answeredMsg{item: updated, correct: correct, err: err}
	}
}

func (m studyModel) completeCmd() tea.Cmd {
	completed, correct := m.completed, m.correct
	return func() tea.Msg {
		session, err := m.reviewer.CompleteSession(m.ctx, m.sessionID, completed, correct)
		return completedMsg{session: session, err: err}
	}
}

func (m studyModel) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}

func (m studyModel) render() string {
	var b strings.Builder
	b.WriteString(studyTitleStyle.Render("drills · "+m.userID) + "\n\n")

	switch {
	case m.finished != nil:
		fmt.Fprintf(&b, "Session complete: %d of %d answered, %d correct.\n\n",
			m.finished.ItemsCompleted, m.finished.ItemsTotal, m.finished.ItemsCorrect)
		b.WriteString(studyMutedStyle.Render("press q to quit"))
		return b.String()
	case m.pos >= len(m.items):
		b.WriteString(studyMutedStyle.Render("Finishing session..."))
		return b.String()
	}

	item := m.items[m.pos]
	fmt.Fprintf(&b, "%s  %s  %s\n",
		studyMutedStyle.Render(fmt.Sprintf("%d/%d", m.pos+1, len(m.items))),
		studyBucketStyle.Render(string(item.ItemType)),
		studyMutedStyle.Render(strings.Join(item.Topics, ", ")),
	)

	prompt := item.Prompt
	if prompt == "" {
		prompt = item.Ref().String()
	}
	style := studyPromptStyle
	if m.width > 8 {
		style = style.Width(min(m.width-4, 80))
	}
	b.WriteString(style.Render(prompt) + "\n\n")

	if m.revealed {
		b.WriteString("Did you get it? x missed, 1-4 got it (hard to easy)\n\n")
	} else {
		b.WriteString(studyMutedStyle.Render("Think of the answer, then press space.") + "\n\n")
	}

	if m.err != nil {
		b.WriteString(studyFailStyle.Render("error: "+m.err.Error()) + "\n")
	} else if m.last != "" {
		b.WriteString(m.last + "\n")
	}

	fmt.Fprintf(&b, "\n%s  %s\n",
		studyMutedStyle.Render(fmt.Sprintf("%d answered, %d correct", m.completed, m.correct)),
		studyMutedStyle.Render(m.help.View(m.keys)),
	)
	return b.String()
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return strconv.Itoa(n) + " days"
}
