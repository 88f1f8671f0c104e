package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/notiledger/internal/model"
)

func pendingPair(firstBank, secondBank string) *model.PendingDuplicate {
	at := time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)
	return &model.PendingDuplicate{
		ID:      "dup-1",
		GroupID: "family",
		First: model.DuplicateTransactionInfo{
			TransactionID:    "txn-bank",
			BankID:           firstBank,
			Description:      "스타벅스",
			OriginalText:     "KB국민 출금 4,500원 스타벅스",
			Type:             model.TypeExpense,
			Amount:           4500,
			NotificationTime: at,
		},
		Second: model.DuplicateTransactionInfo{
			TransactionID:    "txn-card",
			BankID:           secondBank,
			Description:      "스타벅스",
			OriginalText:     "KB카드 승인 4,500원 스타벅스",
			Type:             model.TypeExpense,
			Amount:           4500,
			NotificationTime: at.Add(40 * time.Second),
		},
		Resolution: model.ResolutionPending,
	}
}

func TestDuplicatePrompter_Review(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		firstBank  string
		secondBank string
		want       Decision
	}{
		{
			name:       "keep first and remember",
			input:      "1\ny\n",
			firstBank:  "kb_kookmin",
			secondBank: "kb_card",
			want:       Decision{Resolution: model.ResolutionKeepFirst, Remember: true},
		},
		{
			name:       "keep second without rule",
			input:      "2\nn\n",
			firstBank:  "kb_kookmin",
			secondBank: "kb_card",
			want:       Decision{Resolution: model.ResolutionKeepSecond},
		},
		{
			name:       "same bank never asks to remember",
			input:      "d\n",
			firstBank:  "kb_card",
			secondBank: "kb_card",
			want:       Decision{Resolution: model.ResolutionDeleteBoth},
		},
		{
			name:       "invalid choice then keep both",
			input:      "x\nB\nn\n",
			firstBank:  "kb_kookmin",
			secondBank: "kb_card",
			want:       Decision{Resolution: model.ResolutionKeepBoth},
		},
		{
			name:       "skip",
			input:      "s\n",
			firstBank:  "kb_kookmin",
			secondBank: "kb_card",
			want:       Decision{Skipped: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewDuplicatePrompter(strings.NewReader(tt.input), &out)

			got, err := p.Review(context.Background(), pendingPair(tt.firstBank, tt.secondBank))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Possible Duplicate")
			assert.Contains(t, out.String(), "txn-card")
		})
	}
}

func TestDuplicatePrompter_InputClosed(t *testing.T) {
	p := NewDuplicatePrompter(strings.NewReader(""), &bytes.Buffer{})
	_, err := p.Review(context.Background(), pendingPair("a", "b"))
	assert.ErrorIs(t, err, ErrInputClosed)
}

func TestDuplicatePrompter_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewDuplicatePrompter(strings.NewReader("1\n"), &bytes.Buffer{})
	_, err := p.Review(ctx, pendingPair("a", "b"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDuplicatePrompter_Stats(t *testing.T) {
	var out bytes.Buffer
	p := NewDuplicatePrompter(strings.NewReader("1\ny\ns\nb\nn\n"), &out)
	p.SetTotal(3)

	for i := 0; i < 3; i++ {
		_, err := p.Review(context.Background(), pendingPair("kb_kookmin", "kb_card"))
		require.NoError(t, err)
	}

	stats := p.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Reviewed)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Remembered)
	assert.Equal(t, 1, stats.ByResolution[model.ResolutionKeepFirst])
	assert.Equal(t, 1, stats.ByResolution[model.ResolutionKeepBoth])

	p.ShowCompletion()
	assert.Contains(t, out.String(), "Review Complete")
	assert.Contains(t, out.String(), "Reviewed: 2 of 3")
}
