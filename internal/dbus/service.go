package dbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/cptspacemanspiff/lowpower-stats/internal/powerstats"
	"github.com/cptspacemanspiff/lowpower-stats/internal/storage"
)

const (
	BusName   = "org.gnome.LowPowerStats"
	ObjPath   = "/org/gnome/LowPowerStats"
	IfaceName = "org.gnome.LowPowerStats"
)

const (
	maxRangeSecs = 86400 * 366
	maxCapacity  = 1 << 20
)

const introspectXML = `
<node>
  <interface name="` + IfaceName + `">
    <method name="GetPlatformLowPowerStats">
      <arg direction="in" type="i" name="capacity"/>
      <arg direction="out" type="s" name="text"/>
      <arg direction="out" type="i" name="length"/>
    </method>
    <method name="GetSubsystemLowPowerStats">
      <arg direction="in" type="i" name="capacity"/>
      <arg direction="out" type="s" name="text"/>
      <arg direction="out" type="i" name="length"/>
    </method>
    <method name="GetPlatformSleepStates">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetSubsystemSleepStates">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="HasSubsystemStats">
      <arg direction="out" type="b" name="supported"/>
    </method>
    <method name="GetWakeupReasons">
      <arg direction="in" type="x" name="from_epoch"/>
      <arg direction="in" type="x" name="to_epoch"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetLastWakeupReason">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetLatestSnapshot">
      <arg direction="in" type="s" name="kind"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetSnapshots">
      <arg direction="in" type="s" name="kind"/>
      <arg direction="in" type="x" name="from_epoch"/>
      <arg direction="in" type="x" name="to_epoch"/>
      <arg direction="out" type="s" name="json"/>
    </method>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

// platformStates is the JSON body of GetPlatformSleepStates.
type platformStates struct {
	Status powerstats.Status       `json:"status"`
	States []powerstats.SleepState `json:"states"`
}

// subsystemStates is the JSON body of GetSubsystemSleepStates.
type subsystemStates struct {
	Status     powerstats.Status      `json:"status"`
	Subsystems []powerstats.Subsystem `json:"subsystems"`
}

// Service exposes low-power statistics and wakeup history over D-Bus.
type Service struct {
	holder *powerstats.Holder
	stats  *powerstats.Stats
	store  *storage.DB
}

// NewService creates a new D-Bus service.
func NewService(holder *powerstats.Holder, stats *powerstats.Stats, store *storage.DB) *Service {
	return &Service{holder: holder, stats: stats, store: store}
}

// Export registers the service on the system bus.
func (s *Service) Export() (*godbus.Conn, error) {
	conn, err := godbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	if err := conn.Export(s, ObjPath, IfaceName); err != nil {
		return nil, fmt.Errorf("export service: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(introspectXML), ObjPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(BusName, godbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("name %s already taken", BusName)
	}

	return conn, nil
}

// GetPlatformLowPowerStats formats the platform sleep states into a buffer
// of the given capacity and returns the text without its terminator and the
// formatter's length.
func (s *Service) GetPlatformLowPowerStats(capacity int32) (string, int32, *godbus.Error) {
	return s.format(capacity, s.stats.GetPlatformLowPowerStats)
}

// GetSubsystemLowPowerStats is GetPlatformLowPowerStats for subsystems. A
// length of 0 means the HAL has no subsystem support.
func (s *Service) GetSubsystemLowPowerStats(capacity int32) (string, int32, *godbus.Error) {
	return s.format(capacity, s.stats.GetSubsystemLowPowerStats)
}

func (s *Service) format(capacity int32, get func(context.Context, []byte) (int, error)) (string, int32, *godbus.Error) {
	if capacity <= 0 || capacity > maxCapacity {
		return "", -1, godbus.MakeFailedError(fmt.Errorf("capacity must be between 1 and %d, got %d", maxCapacity, capacity))
	}
	buf := make([]byte, capacity)
	n, err := get(context.Background(), buf)
	if err != nil {
		return "", -1, godbus.MakeFailedError(err)
	}
	if n == 0 {
		return "", 0, nil
	}
	return string(buf[:n-1]), int32(n), nil
}

// GetPlatformSleepStates returns the HAL's platform sleep states as JSON.
func (s *Service) GetPlatformSleepStates() (string, *godbus.Error) {
	var body platformStates
	err := s.holder.With(context.Background(), func(hal powerstats.HAL) error {
		status, states, err := hal.PlatformLowPowerStats(context.Background())
		if err != nil {
			return powerstats.CallError("platform sleep states", err)
		}
		body = platformStates{Status: status, States: states}
		return nil
	})
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return marshal(body)
}

// GetSubsystemSleepStates returns the HAL's subsystem sleep states as JSON.
func (s *Service) GetSubsystemSleepStates() (string, *godbus.Error) {
	var body subsystemStates
	err := s.holder.With(context.Background(), func(hal powerstats.HAL) error {
		ext, ok := hal.(powerstats.SubsystemHAL)
		if !ok {
			return errUnsupported
		}
		status, subsystems, err := ext.SubsystemLowPowerStats(context.Background())
		if err != nil {
			return powerstats.CallError("subsystem sleep states", err)
		}
		body = subsystemStates{Status: status, Subsystems: subsystems}
		return nil
	})
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return marshal(body)
}

var errUnsupported = errors.New("power HAL does not support subsystem stats")

// HasSubsystemStats reports whether the HAL supports subsystem stats.
func (s *Service) HasSubsystemStats() (bool, *godbus.Error) {
	var supported bool
	err := s.holder.With(context.Background(), func(hal powerstats.HAL) error {
		_, supported = hal.(powerstats.SubsystemHAL)
		return nil
	})
	if err != nil {
		return false, godbus.MakeFailedError(err)
	}
	return supported, nil
}

// GetWakeupReasons returns recorded wakeup reasons in a time range as JSON.
func (s *Service) GetWakeupReasons(fromEpoch, toEpoch int64) (string, *godbus.Error) {
	if err := validateTimeRange(fromEpoch, toEpoch); err != nil {
		return "", err
	}
	reasons, err := s.store.WakeupReasonsInRange(fromEpoch, toEpoch)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	if reasons == nil {
		reasons = []storage.WakeupReason{}
	}
	return marshal(reasons)
}

// GetLastWakeupReason returns the most recent wakeup reason as JSON, or
// "null" if none was recorded.
func (s *Service) GetLastWakeupReason() (string, *godbus.Error) {
	reason, err := s.store.LatestWakeupReason()
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return marshal(reason)
}

// GetLatestSnapshot returns the most recent snapshot of one kind as JSON, or
// "null" if none was recorded.
func (s *Service) GetLatestSnapshot(kind string) (string, *godbus.Error) {
	if err := validateKind(kind); err != nil {
		return "", err
	}
	snapshot, err := s.store.LatestSnapshot(kind)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return marshal(snapshot)
}

// GetSnapshots returns stats snapshots of one kind in a time range as JSON.
func (s *Service) GetSnapshots(kind string, fromEpoch, toEpoch int64) (string, *godbus.Error) {
	if err := validateKind(kind); err != nil {
		return "", err
	}
	if err := validateTimeRange(fromEpoch, toEpoch); err != nil {
		return "", err
	}
	snapshots, err := s.store.SnapshotsInRange(kind, fromEpoch, toEpoch)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	if snapshots == nil {
		snapshots = []storage.Snapshot{}
	}
	return marshal(snapshots)
}

func validateKind(kind string) *godbus.Error {
	if kind != storage.KindPlatform && kind != storage.KindSubsystem {
		return godbus.MakeFailedError(fmt.Errorf("unknown snapshot kind %q", kind))
	}
	return nil
}

func validateTimeRange(fromEpoch, toEpoch int64) *godbus.Error {
	if fromEpoch < 0 || toEpoch < 0 {
		return godbus.MakeFailedError(fmt.Errorf("time range must be non-negative, got %d..%d", fromEpoch, toEpoch))
	}
	if toEpoch < fromEpoch {
		return godbus.MakeFailedError(fmt.Errorf("to_epoch %d is before from_epoch %d", toEpoch, fromEpoch))
	}
	if toEpoch-fromEpoch > maxRangeSecs {
		return godbus.MakeFailedError(fmt.Errorf("time range exceeds %d seconds", maxRangeSecs))
	}
	return nil
}

func marshal(v any) (string, *godbus.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}
