package wakeup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cptspacemanspiff/lowpower-stats/internal/bufwriter"
)

// DefaultReasonPath is where the kernel publishes the last resume reason.
const DefaultReasonPath = "/sys/kernel/wakeup_reasons/last_resume_reason"

// ErrSourceUnavailable is returned when the reason file cannot be opened or closed.
var ErrSourceUnavailable = errors.New("wakeup reason source unavailable")

// Reader waits for wakeups and reads the reason file after each one.
type Reader struct {
	notifier *Notifier
	path     string
	maxLine  int
	log      *slog.Logger
}

// NewReader creates a Reader for the reason file at path.
func NewReader(notifier *Notifier, path string, maxLine int, logger *slog.Logger) *Reader {
	if path == "" {
		path = DefaultReasonPath
	}
	if maxLine <= 1 {
		maxLine = DefaultMaxLineLength
	}
	return &Reader{notifier: notifier, path: path, maxLine: maxLine, log: logger}
}

// WaitForWakeup blocks until the next wakeup and writes the merged reason
// string into buf. It returns the payload length without the terminator, 0
// when the wait was interrupted or no reason line parsed, and -1 with an
// error on failure.
func (r *Reader) WaitForWakeup(ctx context.Context, buf []byte) (int, error) {
	w, err := bufwriter.New(buf)
	if err != nil {
		return -1, err
	}

	if err := r.notifier.Wait(ctx); err != nil {
		if errors.Is(err, ErrInterrupted) {
			r.log.Warn("error waiting for wakeup", "err", err)
			return 0, nil
		}
		return -1, err
	}

	return r.ReadReasons(w)
}

// ReadReasons reads and merges the current reason file into w without
// waiting.
func (r *Reader) ReadReasons(w *bufwriter.Writer) (int, error) {
	f, err := os.Open(r.path)
	if err != nil {
		r.log.Error("failed to open reason file", "path", r.path, "err", err)
		return -1, fmt.Errorf("%w: open %s: %v", ErrSourceUnavailable, r.path, err)
	}

	r.log.Debug("reading wakeup reasons", "path", r.path)
	_, parseErr := ParseReasons(f, w, r.maxLine, r.log)

	if err := f.Close(); err != nil {
		r.log.Error("failed to close reason file", "path", r.path, "err", err)
		return -1, fmt.Errorf("%w: close %s: %v", ErrSourceUnavailable, r.path, err)
	}
	if parseErr != nil {
		return -1, fmt.Errorf("%w: %v", ErrSourceUnavailable, parseErr)
	}
	return w.Len(), nil
}
