package main

import (
	"encoding/json"
	"fmt"
	"time"

	godbus "github.com/godbus/dbus/v5"

	dbussvc "github.com/cptspacemanspiff/lowpower-stats/internal/dbus"
	"github.com/cptspacemanspiff/lowpower-stats/internal/storage"
)

type dbusClient struct {
	conn *godbus.Conn
	obj  godbus.BusObject
}

func newDBusClient() (*dbusClient, error) {
	conn, err := godbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	obj := conn.Object(dbussvc.BusName, dbussvc.ObjPath)
	return &dbusClient{conn: conn, obj: obj}, nil
}

func (c *dbusClient) GetLowPowerStats(kind string, capacity int) (string, int, error) {
	method := "GetPlatformLowPowerStats"
	if kind == storage.KindSubsystem {
		method = "GetSubsystemLowPowerStats"
	}
	var (
		text   string
		length int32
	)
	err := c.obj.Call(dbussvc.IfaceName+"."+method, 0, int32(capacity)).Store(&text, &length)
	if err != nil {
		return "", -1, err
	}
	return text, int(length), nil
}

func (c *dbusClient) GetWakeupReasons(from, to time.Time) ([]storage.WakeupReason, error) {
	var jsonStr string
	err := c.obj.Call(dbussvc.IfaceName+".GetWakeupReasons", 0, from.Unix(), to.Unix()).Store(&jsonStr)
	if err != nil {
		return nil, err
	}
	var reasons []storage.WakeupReason
	if err := json.Unmarshal([]byte(jsonStr), &reasons); err != nil {
		return nil, err
	}
	return reasons, nil
}

func (c *dbusClient) GetSnapshots(kind string, from, to time.Time) ([]storage.Snapshot, error) {
	var jsonStr string
	err := c.obj.Call(dbussvc.IfaceName+".GetSnapshots", 0, kind, from.Unix(), to.Unix()).Store(&jsonStr)
	if err != nil {
		return nil, err
	}
	var snapshots []storage.Snapshot
	if err := json.Unmarshal([]byte(jsonStr), &snapshots); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (c *dbusClient) GetLastWakeupReason() (*storage.WakeupReason, error) {
	var jsonStr string
	err := c.obj.Call(dbussvc.IfaceName+".GetLastWakeupReason", 0).Store(&jsonStr)
	if err != nil {
		return nil, err
	}
	var reason *storage.WakeupReason
	if err := json.Unmarshal([]byte(jsonStr), &reason); err != nil {
		return nil, err
	}
	return reason, nil
}

func (c *dbusClient) GetLatestSnapshot(kind string) (*storage.Snapshot, error) {
	var jsonStr string
	err := c.obj.Call(dbussvc.IfaceName+".GetLatestSnapshot", 0, kind).Store(&jsonStr)
	if err != nil {
		return nil, err
	}
	var snapshot *storage.Snapshot
	if err := json.Unmarshal([]byte(jsonStr), &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (c *dbusClient) Close() error {
	return c.conn.Close()
}
