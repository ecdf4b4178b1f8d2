package wakeup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrInterrupted is returned when a wait ends without a wakeup signal.
	ErrInterrupted = errors.New("wakeup wait interrupted")
	// ErrGateInit is returned when the wake source could not be registered.
	ErrGateInit = errors.New("wakeup gate init failed")
)

// gateDepth bounds how many undelivered wakeups are kept; extra posts
// coalesce into the pending ones.
const gateDepth = 64

// Source delivers suspend/resume notifications. Start registers post as
// the callback and must not block.
type Source interface {
	Start(post func(resumed bool)) error
}

// Notifier is a counting gate released once per suspend/resume cycle. The
// gate and the source registration are set up on the first Wait.
type Notifier struct {
	src Source
	log *slog.Logger

	once    sync.Once
	initErr error
	sem     chan struct{}
}

// NewNotifier creates a notifier fed by src.
func NewNotifier(src Source, logger *slog.Logger) *Notifier {
	return &Notifier{
		src: src,
		log: logger,
		sem: make(chan struct{}, gateDepth),
	}
}

func (n *Notifier) init() {
	n.log.Debug("registering wakeup callback")
	if err := n.src.Start(n.Post); err != nil {
		n.log.Error("error registering wakeup callback", "err", err)
		n.initErr = fmt.Errorf("%w: %v", ErrGateInit, err)
	}
}

// Post releases one waiter. resumed is false when the suspend was aborted.
func (n *Notifier) Post(resumed bool) {
	if resumed {
		n.log.Debug("resumed from suspend")
	} else {
		n.log.Debug("suspend aborted")
	}
	select {
	case n.sem <- struct{}{}:
	default:
	}
}

// Wait blocks until the next wakeup is posted. It returns ErrInterrupted if
// ctx is done first.
func (n *Notifier) Wait(ctx context.Context) error {
	n.once.Do(n.init)
	if n.initErr != nil {
		return n.initErr
	}

	n.log.Debug("waiting for wakeup")
	select {
	case <-n.sem:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
	}
}
