package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/notiledger/internal/model"
)

// ErrInputClosed is returned when the input ends before a choice is made.
var ErrInputClosed = errors.New("input terminated")

// Decision is the user's answer for one suspected duplicate.
type Decision struct {
	Resolution model.Resolution
	Remember   bool
	Skipped    bool
}

// ReviewStats summarizes an interactive review session.
type ReviewStats struct {
	ByResolution map[model.Resolution]int
	Duration     time.Duration
	Total        int
	Reviewed     int
	Skipped      int
	Remembered   int
}

// DuplicatePrompter asks the user to resolve suspected duplicate pairs.
type DuplicatePrompter struct {
	startTime   time.Time
	writer      io.Writer
	reader      *LineReader
	progressBar *progressbar.ProgressBar
	stats       ReviewStats
	statsMutex  sync.RWMutex
}

// NewDuplicatePrompter creates a prompter reading from reader and writing to writer.
func NewDuplicatePrompter(reader io.Reader, writer io.Writer) *DuplicatePrompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &DuplicatePrompter{
		reader:    NewLineReader(reader),
		writer:    writer,
		startTime: time.Now(),
		stats:     ReviewStats{ByResolution: make(map[model.Resolution]int)},
	}
}

var choiceResolutions = map[string]model.Resolution{
	"b": model.ResolutionKeepBoth,
	"1": model.ResolutionKeepFirst,
	"2": model.ResolutionKeepSecond,
	"d": model.ResolutionDeleteBoth,
}

// Review shows one pending duplicate and reads the user's decision. When the
// two sides come from different banks the user is also asked whether to
// remember the choice as a rule.
func (p *DuplicatePrompter) Review(ctx context.Context, pending *model.PendingDuplicate) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	p.updateProgress()

	if _, err := fmt.Fprintln(p.writer, RenderBox("Possible Duplicate", FormatPendingDuplicate(pending))); err != nil {
		return Decision{}, fmt.Errorf("failed to write duplicate box: %w", err)
	}

	options := []string{
		"  [B] Keep both (not a duplicate)",
		"  [1] Keep the first notification",
		"  [2] Keep the second notification",
		"  [D] Delete both",
		"  [S] Skip for now",
	}
	if _, err := fmt.Fprintln(p.writer, FormatPrompt("Options:")+"\n"+strings.Join(options, "\n")+"\n"); err != nil {
		return Decision{}, fmt.Errorf("failed to write options: %w", err)
	}

	choice, err := p.promptChoice(ctx, "Choice", []string{"b", "1", "2", "d", "s"})
	if err != nil {
		return Decision{}, err
	}
	if choice == "s" {
		p.recordDecision(Decision{Skipped: true})
		return Decision{Skipped: true}, nil
	}

	decision := Decision{Resolution: choiceResolutions[choice]}
	if pending.First.BankID != pending.Second.BankID {
		prompt := fmt.Sprintf("Always do this for %s + %s? [y/n]", pending.First.BankID, pending.Second.BankID)
		answer, err := p.promptChoice(ctx, prompt, []string{"y", "n"})
		if err != nil {
			return Decision{}, err
		}
		decision.Remember = answer == "y"
	}

	p.recordDecision(decision)
	return decision, nil
}

// SetTotal sets the number of pairs to review and starts the progress bar.
func (p *DuplicatePrompter) SetTotal(total int) {
	p.statsMutex.Lock()
	p.stats.Total = total
	p.statsMutex.Unlock()

	p.progressBar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription("[cyan][bold]Reviewing duplicates...[reset]"),
	)
}

// Stats returns a copy of the session statistics.
func (p *DuplicatePrompter) Stats() ReviewStats {
	p.statsMutex.RLock()
	defer p.statsMutex.RUnlock()

	stats := p.stats
	stats.ByResolution = make(map[model.Resolution]int, len(p.stats.ByResolution))
	for k, v := range p.stats.ByResolution {
		stats.ByResolution[k] = v
	}
	stats.Duration = time.Since(p.startTime)
	return stats
}

// ShowCompletion prints the session summary.
func (p *DuplicatePrompter) ShowCompletion() {
	if p.progressBar != nil {
		if err := p.progressBar.Finish(); err != nil {
			slog.Warn("Failed to finish progress bar", "error", err)
		}
		if _, err := fmt.Fprintln(p.writer); err != nil {
			slog.Warn("Failed to write newline", "error", err)
		}
	}

	stats := p.Stats()
	summary := fmt.Sprintf("%s Statistics:\n", ChartIcon) +
		fmt.Sprintf("  • Reviewed: %d of %d\n", stats.Reviewed, stats.Total) +
		fmt.Sprintf("  • Kept both: %d\n", stats.ByResolution[model.ResolutionKeepBoth]) +
		fmt.Sprintf("  • Kept one: %d\n", stats.ByResolution[model.ResolutionKeepFirst]+stats.ByResolution[model.ResolutionKeepSecond]) +
		fmt.Sprintf("  • Deleted both: %d\n", stats.ByResolution[model.ResolutionDeleteBoth]) +
		fmt.Sprintf("  • Skipped: %d\n", stats.Skipped) +
		fmt.Sprintf("  • New rules: %d\n", stats.Remembered) +
		fmt.Sprintf("  • Time taken: %s\n", stats.Duration.Round(time.Second))

	if _, err := fmt.Fprintln(p.writer, RenderBox("Review Complete", summary)); err != nil {
		slog.Warn("Failed to write completion box", "error", err)
	}
}

// FormatPendingDuplicate renders both sides of a pair for review.
func FormatPendingDuplicate(pending *model.PendingDuplicate) string {
	side := func(label string, info model.DuplicateTransactionInfo) string {
		return fmt.Sprintf("%s %s\n", BoldStyle.Render(label), SubtleStyle.Render(info.TransactionID)) +
			fmt.Sprintf("  Bank: %s\n", info.BankID) +
			fmt.Sprintf("  Time: %s\n", FormatTime(info.NotificationTime)) +
			fmt.Sprintf("  Amount: %s\n", FormatAmount(info.Amount, info.Type)) +
			fmt.Sprintf("  Description: %s\n", info.Description) +
			fmt.Sprintf("  Text: %s\n", Truncate(info.OriginalText, 60))
	}

	gap := pending.Second.NotificationTime.Sub(pending.First.NotificationTime)
	return side("First", pending.First) + "\n" + side("Second", pending.Second) +
		fmt.Sprintf("\n%s Arrived %s apart", InfoIcon, gap.Round(time.Second))
}

func (p *DuplicatePrompter) recordDecision(d Decision) {
	p.statsMutex.Lock()
	defer p.statsMutex.Unlock()
	if d.Skipped {
		p.stats.Skipped++
		return
	}
	p.stats.Reviewed++
	p.stats.ByResolution[d.Resolution]++
	if d.Remember {
		p.stats.Remembered++
	}
}

func (p *DuplicatePrompter) updateProgress() {
	if p.progressBar != nil {
		if err := p.progressBar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
}

func (p *DuplicatePrompter) promptChoice(ctx context.Context, prompt string, validChoices []string) (string, error) {
	for {
		if _, err := fmt.Fprintf(p.writer, "%s ", FormatPrompt(prompt)); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}

		input, err := p.reader.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", ErrInputClosed
			}
			return "", err
		}

		choice := strings.ToLower(input)
		for _, valid := range validChoices {
			if choice == valid {
				return choice, nil
			}
		}

		if _, err := fmt.Fprintln(p.writer, FormatError("Invalid choice. Please try again.")); err != nil {
			slog.Warn("Failed to write error message", "error", err)
		}
	}
}
