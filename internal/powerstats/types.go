package powerstats

// Status is the result code a power HAL reports for a whole record set.
type Status int

const (
	StatusSuccess Status = iota
	StatusFilesystemError
	StatusIllegalArgument
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFilesystemError:
		return "filesystem_error"
	case StatusIllegalArgument:
		return "illegal_argument"
	default:
		return "unknown"
	}
}

// Voter is an entity that voted for a platform sleep state.
type Voter struct {
	Name            string `json:"name"`
	TotalTimeMs     uint64 `json:"total_time_ms"`
	TotalTimesVoted uint64 `json:"total_times_voted"`
}

// SleepState is a platform-level sleep state with its voters in order.
type SleepState struct {
	Name             string  `json:"name"`
	ResidencyMs      uint64  `json:"residency_ms"`
	TotalTransitions uint64  `json:"total_transitions"`
	Voters           []Voter `json:"voters"`
}

// SubsystemSleepState is one sleep state of a subsystem.
type SubsystemSleepState struct {
	Name                 string `json:"name"`
	ResidencyMs          uint64 `json:"residency_ms"`
	TotalTransitions     uint64 `json:"total_transitions"`
	LastEntryTimestampMs uint64 `json:"last_entry_timestamp_ms"`
}

// Subsystem is a hardware or software domain with its own sleep states.
type Subsystem struct {
	Name   string                `json:"name"`
	States []SubsystemSleepState `json:"states"`
}
