package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/notiledger/internal/cli"
	"github.com/Veraticus/notiledger/internal/duplicate"
	"github.com/Veraticus/notiledger/internal/model"
)

// Resolver applies the user's decision to a pending duplicate.
type Resolver interface {
	ResolveDuplicate(ctx context.Context, groupID, pendingID string, resolution model.Resolution, remember bool) (*duplicate.Result, error)
}

// Summary reports what a review session did.
type Summary struct {
	Resolved  map[model.Resolution]int
	Remaining int
}

type resolvedMsg struct {
	err        error
	result     *duplicate.Result
	id         string
	resolution model.Resolution
}

// ReviewModel lists unresolved duplicates and resolves the selected pair.
type ReviewModel struct {
	ctx      context.Context
	resolver Resolver
	lastErr  error
	resolved map[model.Resolution]int
	theme    Theme
	groupID  string
	status   string
	pending  []*model.PendingDuplicate
	keymap   KeyMap
	table    table.Model
	help     help.Model
	busy     bool
	remember bool
	quitting bool
}

// NewReviewModel builds a review screen over pending.
func NewReviewModel(ctx context.Context, resolver Resolver, groupID string, pending []*model.PendingDuplicate) ReviewModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "First", Width: 14},
			{Title: "Second", Width: 14},
			{Title: "Amount", Width: 12},
			{Title: "Gap", Width: 6},
			{Title: "Description", Width: 28},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	t.SetStyles(Default.tableStyles())

	m := ReviewModel{
		ctx:      ctx,
		resolver: resolver,
		groupID:  groupID,
		pending:  pending,
		resolved: make(map[model.Resolution]int),
		theme:    Default,
		keymap:   DefaultKeyMap(),
		table:    t,
		help:     help.New(),
	}
	m.refreshRows()
	return m
}

// Init implements tea.Model.
func (m ReviewModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetHeight(max(3, msg.Height-14))
		m.help.Width = msg.Width
		return m, nil

	case resolvedMsg:
		return m.handleResolved(msg)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keymap.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keymap.Remember):
			m.remember = !m.remember
			return m, nil
		}
		if resolution, ok := m.keymap.resolutionFor(msg); ok {
			return m.startResolve(resolution)
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m ReviewModel) startResolve(resolution model.Resolution) (tea.Model, tea.Cmd) {
	p := m.selected()
	if p == nil || m.busy {
		return m, nil
	}
	m.busy = true
	m.lastErr = nil
	m.status = fmt.Sprintf("Resolving as %s...", resolution)

	ctx, resolver, groupID, remember := m.ctx, m.resolver, m.groupID, m.remember
	id := p.ID
	return m, func() tea.Msg {
		res, err := resolver.ResolveDuplicate(ctx, groupID, id, resolution, remember)
		return resolvedMsg{id: id, resolution: resolution, result: res, err: err}
	}
}

func (m ReviewModel) handleResolved(msg resolvedMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	if msg.err != nil {
		m.lastErr = msg.err
		m.status = ""
		return m, nil
	}

	kept := m.pending[:0:0]
	for _, p := range m.pending {
		if p.ID != msg.id {
			kept = append(kept, p)
		}
	}
	m.pending = kept
	m.refreshRows()

	if msg.result != nil && msg.result.Applied {
		m.resolved[msg.resolution]++
		m.status = fmt.Sprintf("Resolved as %s", msg.resolution)
		if len(msg.result.Deleted) > 0 {
			m.status += ", removed " + strings.Join(msg.result.Deleted, ", ")
		}
	} else {
		m.status = "Already resolved elsewhere"
	}

	if len(m.pending) == 0 {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *ReviewModel) refreshRows() {
	rows := make([]table.Row, 0, len(m.pending))
	for _, p := range m.pending {
		gap := p.Second.NotificationTime.Sub(p.First.NotificationTime).Round(time.Second)
		rows = append(rows, table.Row{
			p.First.BankID,
			p.Second.BankID,
			cli.FormatWon(p.First.Amount),
			gap.String(),
			cli.Truncate(p.First.Description, 28),
		})
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

func (m ReviewModel) selected() *model.PendingDuplicate {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.pending) {
		return nil
	}
	return m.pending[i]
}

// Summary reports the decisions made so far.
func (m ReviewModel) Summary() Summary {
	out := Summary{Resolved: make(map[model.Resolution]int, len(m.resolved)), Remaining: len(m.pending)}
	for r, n := range m.resolved {
		out.Resolved[r] = n
	}
	return out
}

// View implements tea.Model.
func (m ReviewModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.theme.Title.Render(fmt.Sprintf("%s Possible duplicates (%d)", cli.LedgerIcon, len(m.pending))))
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")

	if p := m.selected(); p != nil {
		b.WriteString(m.theme.Detail.Render(
			fmt.Sprintf("1 %s\n2 %s", cli.Truncate(p.First.OriginalText, 60), cli.Truncate(p.Second.OriginalText, 60))))
		b.WriteString("\n")
	}

	remember := "off"
	if m.remember {
		remember = "on"
	}
	b.WriteString(m.theme.Subtitle.Render("Remember for this bank pair: " + remember))
	b.WriteString("\n")

	switch {
	case m.lastErr != nil:
		b.WriteString(m.theme.StatusError.Render(m.lastErr.Error()))
	case m.busy:
		b.WriteString(m.theme.StatusWarning.Render(m.status))
	case m.status != "":
		b.WriteString(m.theme.StatusSuccess.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keymap))
	return b.String()
}
