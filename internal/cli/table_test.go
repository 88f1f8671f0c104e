package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/notiledger/internal/model"
)

func TestFormatAmount(t *testing.T) {
	assert.Contains(t, FormatAmount(1234567, model.TypeExpense), "1,234,567원")
	assert.Contains(t, FormatAmount(50000, model.TypeIncome), IncomeIcon)
	assert.Equal(t, "0원", FormatAmount(0, model.TypeUnknown))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "short", n: 10, want: "short"},
		{in: "KB국민 출금  4,500원\n스타벅스", n: 100, want: "KB국민 출금 4,500원 스타벅스"},
		{in: "스타벅스강남점", n: 4, want: "스타벅…"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.n))
	}
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", FormatTime(time.Time{}))
	assert.NotEqual(t, "-", FormatTime(time.Now()))
}

func TestTable(t *testing.T) {
	var out bytes.Buffer
	table := NewTable(&out, "ID", "Bank", "Uses")
	table.Row("m-1", "kb_card", 3)
	table.Row("m-2")
	require.NoError(t, table.Flush())

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "────")
	assert.Contains(t, lines[2], "kb_card")
	assert.True(t, strings.HasPrefix(lines[3], "m-2"))
}
