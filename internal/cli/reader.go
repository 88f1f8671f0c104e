package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when the context ends while waiting for input.
var ErrInputCancelled = errors.New("input canceled")

type line struct {
	err  error
	text string
}

// LineReader reads answers line by line without blocking past a canceled
// context. A single goroutine reads ahead, so a line that arrives after a
// cancellation is kept for the next call.
type LineReader struct {
	src   *bufio.Reader
	lines chan line
	start sync.Once
}

// NewLineReader creates a LineReader over r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		src:   bufio.NewReader(r),
		lines: make(chan line),
	}
}

func (r *LineReader) pump() {
	defer close(r.lines)
	for {
		text, err := r.src.ReadString('\n')
		if text != "" {
			r.lines <- line{text: text}
		}
		if err != nil {
			r.lines <- line{err: err}
			return
		}
	}
}

// ReadLine returns the next line with surrounding whitespace removed. It
// returns io.EOF once input is exhausted and ErrInputCancelled when ctx ends.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInputCancelled
	}
	r.start.Do(func() { go r.pump() })

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case l, ok := <-r.lines:
		if !ok {
			return "", io.EOF
		}
		if l.err != nil {
			return "", l.err
		}
		return strings.TrimSpace(l.text), nil
	}
}
