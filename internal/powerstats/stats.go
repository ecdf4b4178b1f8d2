package powerstats

import (
	"context"
	"log/slog"

	"github.com/cptspacemanspiff/lowpower-stats/internal/bufwriter"
)

// Stats formats low-power statistics from the HAL held by a Holder.
type Stats struct {
	holder *Holder
	log    *slog.Logger
}

// NewStats creates a Stats bound to holder.
func NewStats(holder *Holder, logger *slog.Logger) *Stats {
	return &Stats{holder: holder, log: logger}
}

// GetPlatformLowPowerStats writes the platform sleep states into buf and
// returns the number of bytes written including the terminator. A HAL that
// reports a non-success status yields an empty body and a return of 1.
func (s *Stats) GetPlatformLowPowerStats(ctx context.Context, buf []byte) (int, error) {
	w, err := bufwriter.New(buf)
	if err != nil {
		return -1, err
	}

	err = s.holder.With(ctx, func(hal HAL) error {
		status, states, err := hal.PlatformLowPowerStats(ctx)
		if err != nil {
			s.log.Error("getPlatformLowPowerStats() failed", "err", err)
			return CallError("platform low power stats", err)
		}
		if status != StatusSuccess {
			s.log.Warn("platform low power stats unavailable", "status", status)
			return nil
		}
		FormatPlatform(w, states, s.log)
		return nil
	})
	if err != nil {
		return -1, err
	}
	return w.Terminate()
}

// GetSubsystemLowPowerStats writes the subsystem sleep states into buf. It
// returns 0 without touching buf when the HAL lacks subsystem support.
func (s *Stats) GetSubsystemLowPowerStats(ctx context.Context, buf []byte) (int, error) {
	w, err := bufwriter.New(buf)
	if err != nil {
		return -1, err
	}

	supported := true
	err = s.holder.With(ctx, func(hal HAL) error {
		ext, ok := hal.(SubsystemHAL)
		if !ok {
			supported = false
			return nil
		}
		status, subsystems, err := ext.SubsystemLowPowerStats(ctx)
		if err != nil {
			s.log.Error("getSubsystemLowPowerStats() failed", "err", err)
			return CallError("subsystem low power stats", err)
		}
		if status != StatusSuccess {
			s.log.Warn("subsystem low power stats unavailable", "status", status)
			return nil
		}
		FormatSubsystems(w, subsystems, s.log)
		return nil
	})
	if err != nil {
		return -1, err
	}
	if !supported {
		s.log.Debug("power HAL does not support subsystem stats")
		return 0, nil
	}
	return w.Terminate()
}
