package powerstats

import (
	"log/slog"

	"github.com/cptspacemanspiff/lowpower-stats/internal/bufwriter"
)

// FormatPlatform writes each state and its voters as space-separated
// key=value tokens. Ordinals are 1-based. When the buffer fills up after a
// state, the last byte is retracted for the terminator and the remaining
// states are dropped.
func FormatPlatform(w *bufwriter.Writer, states []SleepState, logger *slog.Logger) {
	for i, state := range states {
		w.Printf("state_%d name=%s time=%d count=%d ",
			i+1, state.Name, state.ResidencyMs, state.TotalTransitions)

		for j, voter := range state.Voters {
			w.Printf("voter_%d name=%s time=%d count=%d ",
				j+1, voter.Name, voter.TotalTimeMs, voter.TotalTimesVoted)
		}

		if w.Full() {
			w.Retract()
			logger.Warn("buffer not enough", "states_written", i+1, "states_total", len(states))
			return
		}
	}
}

// FormatSubsystems writes each subsystem and its states in the same shape
// as FormatPlatform.
func FormatSubsystems(w *bufwriter.Writer, subsystems []Subsystem, logger *slog.Logger) {
	for i, subsystem := range subsystems {
		w.Printf("subsystem_%d name=%s ", i+1, subsystem.Name)

		for j, state := range subsystem.States {
			w.Printf("state_%d name=%s time=%d count=%d last entry TS(ms)=%d ",
				j+1, state.Name, state.ResidencyMs, state.TotalTransitions, state.LastEntryTimestampMs)
		}

		if w.Full() {
			w.Retract()
			logger.Warn("buffer not enough", "subsystems_written", i+1, "subsystems_total", len(subsystems))
			return
		}
	}
}
