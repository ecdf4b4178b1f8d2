// Package powerstats renders platform and subsystem low-power statistics
// from a power HAL into bounded text buffers.
package powerstats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrServiceUnavailable means the power HAL could not be resolved or a call
// to it failed in transport.
var ErrServiceUnavailable = errors.New("power HAL service not available")

// HAL is the base power HAL interface.
type HAL interface {
	PlatformLowPowerStats(ctx context.Context) (Status, []SleepState, error)
}

// SubsystemHAL is the extended capability implemented by newer HALs.
type SubsystemHAL interface {
	HAL
	SubsystemLowPowerStats(ctx context.Context) (Status, []Subsystem, error)
}

// Resolver looks up the power HAL.
type Resolver func(ctx context.Context) (HAL, error)

// Holder caches a resolved HAL. All access to the cached handle, including
// calls made through it, happens under one lock.
type Holder struct {
	mu      sync.Mutex
	hal     HAL
	resolve Resolver
	log     *slog.Logger
}

// NewHolder creates a Holder that resolves lazily through resolve.
func NewHolder(resolve Resolver, logger *slog.Logger) *Holder {
	return &Holder{resolve: resolve, log: logger}
}

// With runs fn with the resolved HAL while holding the lock. If resolution
// fails, or fn returns an error wrapping ErrServiceUnavailable, the cached
// handle is dropped so the next call resolves again.
func (h *Holder) With(ctx context.Context, fn func(HAL) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hal == nil {
		hal, err := h.resolve(ctx)
		if err != nil || hal == nil {
			h.log.Error("power HAL not loaded", "err", err)
			if err == nil {
				return ErrServiceUnavailable
			}
			return errors.Join(ErrServiceUnavailable, err)
		}
		h.hal = hal
	}

	err := fn(h.hal)
	if errors.Is(err, ErrServiceUnavailable) && !isContextErr(err) {
		h.hal = nil
	}
	return err
}

// CallError wraps an error returned by a HAL call. Context cancellation and
// deadlines pass through as-is; anything else is a transport failure.
func CallError(op string, err error) error {
	if isContextErr(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrServiceUnavailable, op, err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
