package storage

import (
	"path/filepath"
	"reflect"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	})

	return db
}

func TestWakeupReasonRoundTrip(t *testing.T) {
	db := openTestDB(t)

	latest, err := db.LatestWakeupReason()
	if err != nil {
		t.Fatalf("LatestWakeupReason() on empty db error = %v", err)
	}
	if latest != nil {
		t.Fatalf("LatestWakeupReason() on empty db = %#v, want nil", latest)
	}

	r1 := WakeupReason{Timestamp: 10, Reason: "146:00:02:00"}
	r2 := WakeupReason{Timestamp: 20, Reason: "Abort:Pending Wakeup Sources: ipc000"}
	if err := db.InsertWakeupReason(r1); err != nil {
		t.Fatalf("InsertWakeupReason(r1) error = %v", err)
	}
	if err := db.InsertWakeupReason(r2); err != nil {
		t.Fatalf("InsertWakeupReason(r2) error = %v", err)
	}

	latest, err = db.LatestWakeupReason()
	if err != nil {
		t.Fatalf("LatestWakeupReason() error = %v", err)
	}
	if latest == nil || *latest != r2 {
		t.Fatalf("LatestWakeupReason() = %#v, want %#v", latest, r2)
	}

	ranged, err := db.WakeupReasonsInRange(10, 15)
	if err != nil {
		t.Fatalf("WakeupReasonsInRange() error = %v", err)
	}
	if !reflect.DeepEqual(ranged, []WakeupReason{r1}) {
		t.Fatalf("WakeupReasonsInRange() = %#v, want one row at ts=10", ranged)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)

	platform := Snapshot{Timestamp: 100, Kind: KindPlatform, Text: "state_1 name=C1 time=3 count=2 "}
	truncated := Snapshot{Timestamp: 200, Kind: KindPlatform, Text: "state_1 na", Truncated: true}
	subsystem := Snapshot{Timestamp: 150, Kind: KindSubsystem, Text: "subsystem_1 name=wlan "}
	for _, s := range []Snapshot{platform, truncated, subsystem} {
		if err := db.InsertSnapshot(s); err != nil {
			t.Fatalf("InsertSnapshot(%s@%d) error = %v", s.Kind, s.Timestamp, err)
		}
	}

	latest, err := db.LatestSnapshot(KindPlatform)
	if err != nil {
		t.Fatalf("LatestSnapshot() error = %v", err)
	}
	if latest == nil || *latest != truncated {
		t.Fatalf("LatestSnapshot(platform) = %#v, want %#v", latest, truncated)
	}

	ranged, err := db.SnapshotsInRange(KindPlatform, 0, 150)
	if err != nil {
		t.Fatalf("SnapshotsInRange() error = %v", err)
	}
	if !reflect.DeepEqual(ranged, []Snapshot{platform}) {
		t.Fatalf("SnapshotsInRange(platform) = %#v, want %#v", ranged, []Snapshot{platform})
	}

	subs, err := db.SnapshotsInRange(KindSubsystem, 0, 1000)
	if err != nil {
		t.Fatalf("SnapshotsInRange() error = %v", err)
	}
	if !reflect.DeepEqual(subs, []Snapshot{subsystem}) {
		t.Fatalf("SnapshotsInRange(subsystem) = %#v, want %#v", subs, []Snapshot{subsystem})
	}

	none, err := db.LatestSnapshot("unknown")
	if err != nil || none != nil {
		t.Fatalf("LatestSnapshot(unknown) = (%#v, %v), want (nil, nil)", none, err)
	}
}
