package powerstats

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultSysfsRoot is the sysfs mount point.
const DefaultSysfsRoot = "/sys"

// SysfsHAL reports CPU idle states from the cpuidle sysfs interface as
// platform sleep states. Each idle state becomes one SleepState whose voters
// are the CPUs that have it, e.g. the file
// /sys/devices/system/cpu/cpu2/cpuidle/state3/time feeds voter "cpu2" of
// state 3. It has no subsystem support.
type SysfsHAL struct {
	Root string
}

type idleState struct {
	index int
	state SleepState
}

// PlatformLowPowerStats implements HAL.
func (h *SysfsHAL) PlatformLowPowerStats(ctx context.Context) (Status, []SleepState, error) {
	if err := ctx.Err(); err != nil {
		return StatusSuccess, nil, err
	}
	root := h.Root
	if root == "" {
		root = DefaultSysfsRoot
	}

	cpuDirs, err := filepath.Glob(filepath.Join(root, "devices/system/cpu/cpu[0-9]*"))
	if err != nil {
		return StatusIllegalArgument, nil, nil
	}
	cpus := make([]int, 0, len(cpuDirs))
	for _, dir := range cpuDirs {
		id, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(dir), "cpu"))
		if err != nil {
			continue
		}
		cpus = append(cpus, id)
	}
	sort.Ints(cpus)

	byIndex := make(map[int]*idleState)
	for _, cpu := range cpus {
		if err := ctx.Err(); err != nil {
			return StatusSuccess, nil, err
		}
		cpuName := fmt.Sprintf("cpu%d", cpu)
		stateDirs, _ := filepath.Glob(filepath.Join(root, "devices/system/cpu", cpuName, "cpuidle/state[0-9]*"))
		for _, dir := range stateDirs {
			index, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(dir), "state"))
			if err != nil {
				continue
			}
			name, err := readSysString(filepath.Join(dir, "name"))
			if err != nil {
				continue
			}
			timeUs, _ := readSysUint(filepath.Join(dir, "time"))
			usage, _ := readSysUint(filepath.Join(dir, "usage"))

			is, ok := byIndex[index]
			if !ok {
				is = &idleState{index: index, state: SleepState{Name: name}}
				byIndex[index] = is
			}
			is.state.ResidencyMs += timeUs / 1000
			is.state.TotalTransitions += usage
			is.state.Voters = append(is.state.Voters, Voter{
				Name:            cpuName,
				TotalTimeMs:     timeUs / 1000,
				TotalTimesVoted: usage,
			})
		}
	}

	if len(byIndex) == 0 {
		return StatusFilesystemError, nil, nil
	}

	ordered := make([]*idleState, 0, len(byIndex))
	for _, is := range byIndex {
		ordered = append(ordered, is)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })

	states := make([]SleepState, 0, len(ordered))
	for _, is := range ordered {
		states = append(states, is.state)
	}
	return StatusSuccess, states, nil
}

func readSysString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readSysUint(path string) (uint64, error) {
	s, err := readSysString(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, 10, 64)
}
