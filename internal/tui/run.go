package tui

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/notiledger/internal/model"
)

// ReviewConfig holds what a review session needs.
type ReviewConfig struct {
	Resolver Resolver
	Input    io.Reader
	Output   io.Writer
	GroupID  string
	Pending  []*model.PendingDuplicate
}

// RunReview shows the review screen until every pair is resolved or the user
// quits.
func RunReview(ctx context.Context, cfg ReviewConfig) (Summary, error) {
	if cfg.Resolver == nil {
		return Summary{}, fmt.Errorf("resolver is required")
	}
	if len(cfg.Pending) == 0 {
		return Summary{Resolved: map[model.Resolution]int{}}, nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if cfg.Input != nil {
		opts = append(opts, tea.WithInput(cfg.Input))
	}
	if cfg.Output != nil {
		opts = append(opts, tea.WithOutput(cfg.Output))
	}

	p := tea.NewProgram(NewReviewModel(ctx, cfg.Resolver, cfg.GroupID, cfg.Pending), opts...)
	final, err := p.Run()
	if err != nil {
		return Summary{}, fmt.Errorf("review screen failed: %w", err)
	}
	m, ok := final.(ReviewModel)
	if !ok {
		return Summary{}, fmt.Errorf("unexpected model %T", final)
	}
	return m.Summary(), nil
}
