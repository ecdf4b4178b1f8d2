package dbus

import (
	"context"
	"encoding/json"
	"fmt"

	godbus "github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/lowpower-stats/internal/powerstats"
)

// caller is the subset of godbus.BusObject used by the remote HAL.
type caller interface {
	CallWithContext(ctx context.Context, method string, flags godbus.Flags, args ...interface{}) *godbus.Call
}

// RemoteHAL reads platform sleep states from a Service on another process.
type RemoteHAL struct {
	obj   caller
	iface string
}

// RemoteSubsystemHAL is a RemoteHAL whose service supports subsystem stats.
type RemoteSubsystemHAL struct {
	*RemoteHAL
}

// PlatformLowPowerStats implements powerstats.HAL.
func (h *RemoteHAL) PlatformLowPowerStats(ctx context.Context) (powerstats.Status, []powerstats.SleepState, error) {
	var body platformStates
	if err := h.call(ctx, "GetPlatformSleepStates", &body); err != nil {
		return powerstats.StatusSuccess, nil, err
	}
	return body.Status, body.States, nil
}

// SubsystemLowPowerStats implements powerstats.SubsystemHAL.
func (h *RemoteSubsystemHAL) SubsystemLowPowerStats(ctx context.Context) (powerstats.Status, []powerstats.Subsystem, error) {
	var body subsystemStates
	if err := h.call(ctx, "GetSubsystemSleepStates", &body); err != nil {
		return powerstats.StatusSuccess, nil, err
	}
	return body.Status, body.Subsystems, nil
}

func (h *RemoteHAL) call(ctx context.Context, method string, out any) error {
	var jsonStr string
	if err := h.obj.CallWithContext(ctx, h.iface+"."+method, 0).Store(&jsonStr); err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	return nil
}

// NewRemoteResolver returns a resolver for the service at name and path on
// conn. The resolved HAL implements powerstats.SubsystemHAL only when the
// service reports subsystem support.
func NewRemoteResolver(conn *godbus.Conn, name string, path godbus.ObjectPath) powerstats.Resolver {
	return func(ctx context.Context) (powerstats.HAL, error) {
		return resolveRemote(ctx, conn.Object(name, path), IfaceName)
	}
}

func resolveRemote(ctx context.Context, obj caller, iface string) (powerstats.HAL, error) {
	var supported bool
	if err := obj.CallWithContext(ctx, iface+".HasSubsystemStats", 0).Store(&supported); err != nil {
		return nil, fmt.Errorf("resolve remote power HAL: %w", err)
	}
	hal := &RemoteHAL{obj: obj, iface: iface}
	if supported {
		return &RemoteSubsystemHAL{RemoteHAL: hal}, nil
	}
	return hal, nil
}
