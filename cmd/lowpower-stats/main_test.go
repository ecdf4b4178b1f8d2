package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	sysRoot := filepath.Join(dir, "sys")
	stateDir := filepath.Join(sysRoot, "devices/system/cpu/cpu0/cpuidle/state0")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, contents := range map[string]string{"name": "C1\n", "time": "2000000\n", "usage": "5\n"} {
		if err := os.WriteFile(filepath.Join(stateDir, name), []byte(contents), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	cfgPath := filepath.Join(dir, "config.toml")
	cfg := "[storage]\ndb_path = \"" + filepath.Join(dir, "data.db") + "\"\n\n" +
		"[hal]\nbackend = \"sysfs\"\nsysfs_root = \"" + sysRoot + "\"\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestRun_PlatformSysfs(t *testing.T) {
	cfgPath := writeTestConfig(t)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"--config", cfgPath, "platform"}, &stdout, &stderr); code != 0 {
		t.Fatalf("run() = %d, stderr = %s", code, stderr.String())
	}
	want := "state_1 name=C1 time=2000 count=5 voter_1 name=cpu0 time=2000 count=5 \n"
	if stdout.String() != want {
		t.Fatalf("stdout = %q, want %q", stdout.String(), want)
	}
}

func TestRun_SubsystemUnsupported(t *testing.T) {
	cfgPath := writeTestConfig(t)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"--config", cfgPath, "subsystem"}, &stdout, &stderr); code != 1 {
		t.Fatalf("run() = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "not supported") {
		t.Fatalf("stderr = %q, want unsupported message", stderr.String())
	}
}

func TestRun_UsageErrors(t *testing.T) {
	cfgPath := writeTestConfig(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "no command", args: []string{"--config", cfgPath}, want: 2},
		{name: "unknown command", args: []string{"--config", cfgPath, "voters"}, want: 2},
		{name: "zero buffer", args: []string{"--config", cfgPath, "platform", "--buffer", "0"}, want: 1},
		{name: "unknown backend", args: []string{"--config", cfgPath, "platform", "--backend", "acpi"}, want: 1},
		{name: "negative wait buffer", args: []string{"--config", cfgPath, "wait", "--buffer", "-1"}, want: 1},
		{name: "zero wait buffer", args: []string{"--config", cfgPath, "wait", "--buffer", "0"}, want: 1},
		{name: "bad snapshot kind", args: []string{"--config", cfgPath, "snapshots", "--kind", "voters"}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if got := run(tt.args, &stdout, &stderr); got != tt.want {
				t.Fatalf("run() = %d, want %d (stderr %q)", got, tt.want, stderr.String())
			}
		})
	}
}

func TestTimeRange(t *testing.T) {
	now := time.Unix(1000, 500)

	from, to, err := timeRange(now, 10*time.Second)
	if err != nil {
		t.Fatalf("timeRange() error = %v", err)
	}
	if from.Unix() != 990 || to.Unix() != 1000 {
		t.Fatalf("timeRange() = %d..%d, want 990..1000", from.Unix(), to.Unix())
	}

	if _, _, err := timeRange(now, 0); err == nil {
		t.Fatal("timeRange(0) error = nil, want error")
	}
}
