package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/notiledger/internal/cli"
	"github.com/Veraticus/notiledger/internal/config"
	"github.com/Veraticus/notiledger/internal/engine"
	"github.com/Veraticus/notiledger/internal/model"
)

func ingestCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Process a file of captured notifications",
		Long: `Process notifications exported from a device. The file holds either a JSON
array or one JSON object per line, each with text, sourcePackage and
postedAt. Notifications without groupId or userId use the configured ones.

Use "-" to read from stdin. Notifications that were already ingested are
skipped, so an interrupted run can simply be repeated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			in, closeIn, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer closeIn()

			notifications, err := readNotifications(in, a.cfg)
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = a.cfg.IngestWorkers
			}

			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx = handler.HandleInterrupts(ctx, true)

			summary, err := ingestAll(ctx, a.engine, notifications, workers, cmd.ErrOrStderr())
			if printErr := summary.print(cmd.OutOrStdout()); printErr != nil {
				slog.Warn("Failed to print summary", "error", printErr)
			}
			if handler.WasInterrupted() {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent workers (default: ingest.workers)")
	return cmd
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(config.ExpandPath(path)) //nolint:gosec // path is supplied by the user
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

// readNotifications decodes a JSON array or a stream of JSON objects and
// fills in the configured group and user where they are missing.
func readNotifications(r io.Reader, cfg *config.PipelineConfig) ([]model.Notification, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	var out []model.Notification
	dec := json.NewDecoder(br)
	if first == '[' {
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode notifications: %w", err)
		}
	} else {
		for {
			var n model.Notification
			if err := dec.Decode(&n); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("failed to decode notification %d: %w", len(out)+1, err)
			}
			out = append(out, n)
		}
	}

	for i := range out {
		withDefaults(&out[i], cfg)
	}
	return out, nil
}

func withDefaults(n *model.Notification, cfg *config.PipelineConfig) {
	if n.GroupID == "" {
		n.GroupID = cfg.GroupID
	}
	if n.UserID == "" {
		n.UserID = cfg.UserID
	}
}

// peekNonSpace returns the first byte that is neither whitespace nor part of
// a UTF-8 byte order mark, leaving it unread.
func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if bytes.IndexByte([]byte(" \t\r\n\xef\xbb\xbf"), b) < 0 {
			return b, br.UnreadByte()
		}
	}
}

// ingestSummary counts outcomes across workers.
type ingestSummary struct {
	counts   map[engine.Status]int
	pending  int
	deposits int
	failed   int
	mu       sync.Mutex
}

func (s *ingestSummary) add(res *engine.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = make(map[engine.Status]int)
	}
	if err != nil {
		s.failed++
		return
	}
	s.counts[res.Status]++
	if res.Pending != nil {
		s.pending++
	}
	if res.Contribution != nil {
		s.deposits++
	}
}

func (s *ingestSummary) print(out io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := cli.NewTable(out, "Outcome", "Count")
	table.Row("stored", s.counts[engine.StatusStored])
	table.Row("already ingested", s.counts[engine.StatusAlreadyIngested])
	table.Row("duplicate dropped", s.counts[engine.StatusDuplicateDropped])
	table.Row("unparsed (queued)", s.counts[engine.StatusUnparsed])
	table.Row("failed", s.failed)
	if err := table.Flush(); err != nil {
		return err
	}

	if s.pending > 0 {
		if _, err := fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d possible duplicates need review: notiledger duplicates review", s.pending))); err != nil {
			return err
		}
	}
	if s.deposits > 0 {
		if _, err := fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%d deposits matched to savings goals: notiledger deposits contributions", s.deposits))); err != nil {
			return err
		}
	}
	return nil
}

// ingestAll feeds notifications to a bounded pool of workers. A notification
// that fails is counted and logged; the run continues with the rest.
func ingestAll(ctx context.Context, e *engine.Engine, notifications []model.Notification, workers int, progressOut io.Writer) (*ingestSummary, error) {
	summary := &ingestSummary{}
	if len(notifications) == 0 {
		return summary, nil
	}

	bar := progressbar.NewOptions(len(notifications),
		progressbar.OptionSetWriter(progressOut),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Ingesting notifications...[reset]"),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(progressOut) }),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, n := range notifications {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := e.Process(ctx, n)
			if err != nil {
				slog.Error("Failed to process notification",
					"group_id", n.GroupID,
					"source_package", n.SourcePackage,
					"error", err)
			}
			summary.add(res, err)
			if err := bar.Add(1); err != nil {
				slog.Debug("Failed to update progress bar", "error", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if finishErr := bar.Finish(); finishErr != nil {
		slog.Debug("Failed to finish progress bar", "error", finishErr)
	}
	return summary, err
}
