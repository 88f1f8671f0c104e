package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Veraticus/notiledger/internal/model"
)

var wonPrinter = message.NewPrinter(language.Korean)

// FormatWon renders an amount in won with digit grouping and no styling.
func FormatWon(amount int64) string {
	return wonPrinter.Sprintf("%d원", amount)
}

// FormatAmount renders an amount in won, colored and marked by direction.
func FormatAmount(amount int64, t model.TransactionType) string {
	s := FormatWon(amount)
	switch t {
	case model.TypeIncome:
		return SuccessStyle.Render(IncomeIcon + " " + s)
	case model.TypeExpense:
		return ErrorStyle.Render(ExpenseIcon + " " + s)
	default:
		return s
	}
}

// FormatTime renders a timestamp in the local zone, or "-" when unset.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Table writes aligned columns with a styled header row.
type Table struct {
	w    *tabwriter.Writer
	cols int
	err  error
}

// NewTable starts a table on out and writes its header and separator.
func NewTable(out io.Writer, headers ...string) *Table {
	t := &Table{
		w:    tabwriter.NewWriter(out, 0, 0, 2, ' ', 0),
		cols: len(headers),
	}

	styled := make([]string, len(headers))
	rules := make([]string, len(headers))
	for i, h := range headers {
		styled[i] = TableHeaderStyle.Render(h)
		rules[i] = strings.Repeat("─", max(len([]rune(h)), 4))
	}
	t.line(styled)
	t.line(rules)
	return t
}

// Row appends one row. Missing cells are left blank.
func (t *Table) Row(cells ...any) {
	out := make([]string, t.cols)
	for i := 0; i < t.cols && i < len(cells); i++ {
		out[i] = fmt.Sprint(cells[i])
	}
	t.line(out)
}

// Flush writes the buffered rows and returns the first write error.
func (t *Table) Flush() error {
	if err := t.w.Flush(); err != nil && t.err == nil {
		t.err = err
	}
	if t.err != nil {
		return fmt.Errorf("failed to write table: %w", t.err)
	}
	return nil
}

func (t *Table) line(cells []string) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}
