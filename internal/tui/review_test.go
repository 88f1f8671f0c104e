package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/notiledger/internal/duplicate"
	"github.com/Veraticus/notiledger/internal/model"
)

type call struct {
	id         string
	resolution model.Resolution
	remember   bool
}

type fakeResolver struct {
	err   error
	calls []call
}

func (f *fakeResolver) ResolveDuplicate(_ context.Context, _, id string, resolution model.Resolution, remember bool) (*duplicate.Result, error) {
	f.calls = append(f.calls, call{id: id, resolution: resolution, remember: remember})
	if f.err != nil {
		return nil, f.err
	}
	p := &model.PendingDuplicate{ID: id, Resolution: resolution, IsResolved: true}
	return &duplicate.Result{Pending: p, Applied: true, Deleted: p.TransactionsToDelete(resolution)}, nil
}

func pendingPair(id string) *model.PendingDuplicate {
	at := time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)
	return &model.PendingDuplicate{
		ID:         id,
		GroupID:    "g",
		Resolution: model.ResolutionPending,
		First: model.DuplicateTransactionInfo{
			TransactionID: id + "-a", BankID: "kb_kookmin", Amount: 12345,
			Description: "스타벅스", NotificationTime: at, OriginalText: "[KB국민] 출금 12,345원 스타벅스",
		},
		Second: model.DuplicateTransactionInfo{
			TransactionID: id + "-b", BankID: "kb_card", Amount: 12345,
			Description: "스타벅스", NotificationTime: at.Add(40 * time.Second), OriginalText: "KB국민카드 승인 12,345원 스타벅스",
		},
	}
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the command it produces, feeding the result back.
func press(t *testing.T, m ReviewModel, s string) (ReviewModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(keyPress(s))
	m = next.(ReviewModel)
	if cmd == nil {
		return m, nil
	}
	msg := cmd()
	if _, ok := msg.(resolvedMsg); !ok {
		return m, cmd
	}
	next, cmd = m.Update(msg)
	return next.(ReviewModel), cmd
}

func TestReviewModel_Resolves(t *testing.T) {
	tests := []struct {
		key  string
		want model.Resolution
	}{
		{key: "b", want: model.ResolutionKeepBoth},
		{key: "1", want: model.ResolutionKeepFirst},
		{key: "2", want: model.ResolutionKeepSecond},
		{key: "d", want: model.ResolutionDeleteBoth},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			r := &fakeResolver{}
			m := NewReviewModel(context.Background(), r, "g", []*model.PendingDuplicate{pendingPair("p1"), pendingPair("p2")})

			m, cmd := press(t, m, tt.key)
			assert.Nil(t, cmd)
			require.Len(t, r.calls, 1)
			assert.Equal(t, call{id: "p1", resolution: tt.want}, r.calls[0])

			s := m.Summary()
			assert.Equal(t, 1, s.Resolved[tt.want])
			assert.Equal(t, 1, s.Remaining)
			assert.Contains(t, m.View(), "Resolved as "+string(tt.want))
		})
	}
}

func TestReviewModel_RememberToggle(t *testing.T) {
	r := &fakeResolver{}
	m := NewReviewModel(context.Background(), r, "g", []*model.PendingDuplicate{pendingPair("p1"), pendingPair("p2")})

	m, _ = press(t, m, "r")
	assert.Contains(t, m.View(), "Remember for this bank pair: on")
	m, _ = press(t, m, "2")

	require.Len(t, r.calls, 1)
	assert.True(t, r.calls[0].remember)
}

func TestReviewModel_QuitsWhenDone(t *testing.T) {
	r := &fakeResolver{}
	m := NewReviewModel(context.Background(), r, "g", []*model.PendingDuplicate{pendingPair("p1")})

	m, cmd := press(t, m, "b")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, 0, m.Summary().Remaining)
	assert.Empty(t, m.View())
}

func TestReviewModel_ShowsResolveError(t *testing.T) {
	r := &fakeResolver{err: errors.New("storage offline")}
	m := NewReviewModel(context.Background(), r, "g", []*model.PendingDuplicate{pendingPair("p1")})

	m, _ = press(t, m, "1")
	assert.Contains(t, m.View(), "storage offline")
	assert.Equal(t, 1, m.Summary().Remaining)
	assert.Empty(t, m.Summary().Resolved)
}

func TestReviewModel_QuitKey(t *testing.T) {
	m := NewReviewModel(context.Background(), &fakeResolver{}, "g", []*model.PendingDuplicate{pendingPair("p1")})

	_, cmd := m.Update(keyPress("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestReviewModel_View(t *testing.T) {
	m := NewReviewModel(context.Background(), &fakeResolver{}, "g", []*model.PendingDuplicate{pendingPair("p1")})
	view := m.View()

	assert.Contains(t, view, "Possible duplicates (1)")
	assert.Contains(t, view, "kb_kookmin")
	assert.Contains(t, view, "12,345원")
	assert.Contains(t, view, "40s")
	assert.Contains(t, view, "KB국민카드 승인")
}

func TestRunReview_NothingPending(t *testing.T) {
	s, err := RunReview(context.Background(), ReviewConfig{Resolver: &fakeResolver{}})
	require.NoError(t, err)
	assert.Zero(t, s.Remaining)

	_, err = RunReview(context.Background(), ReviewConfig{})
	assert.Error(t, err)
}
