package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/spf13/pflag"

	"github.com/cptspacemanspiff/lowpower-stats/internal/config"
	dbussvc "github.com/cptspacemanspiff/lowpower-stats/internal/dbus"
	"github.com/cptspacemanspiff/lowpower-stats/internal/powerstats"
	"github.com/cptspacemanspiff/lowpower-stats/internal/storage"
	"github.com/cptspacemanspiff/lowpower-stats/internal/wakeup"
)

const (
	defaultConfigPath = "/etc/lowpower-stats/config.toml"
	usage             = `usage: lowpower-stats [--config PATH] [-v] <command> [flags]

commands:
  platform    print platform low-power stats
  subsystem   print subsystem low-power stats
  reasons     list recorded wakeup reasons
  snapshots   list recorded stats snapshots
  wait        block until the next wakeup and print its reasons
`
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := pflag.NewFlagSet("lowpower-stats", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(stderr)
	configPath := global.String("config", defaultConfigPath, "path to the TOML config file")
	verbose := global.BoolP("verbose", "v", false, "log debug output to stderr")
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if global.NArg() == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(stderr, "error: load config: %v\n", err)
			return 1
		}
		cfg, _ = config.NormalizeAndValidate(config.DefaultConfig())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	switch cmd {
	case storage.KindPlatform, storage.KindSubsystem:
		err = runStats(ctx, cmd, cmdArgs, cfg, logger, stdout)
	case "reasons":
		err = runReasons(cmdArgs, stdout)
	case "snapshots":
		err = runSnapshots(cmdArgs, stdout)
	case "wait":
		err = runWait(ctx, cmdArgs, cfg, logger, stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func runStats(ctx context.Context, kind string, args []string, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	fs := pflag.NewFlagSet(kind, pflag.ContinueOnError)
	bufSize := fs.IntP("buffer", "b", cfg.Stats.BufferSize, "output buffer capacity in bytes")
	backend := fs.String("backend", cfg.HAL.Backend, "power HAL backend: sysfs, dbus or daemon")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bufSize <= 0 {
		return fmt.Errorf("--buffer must be positive, got %d", *bufSize)
	}

	var (
		text string
		n    int
	)
	if *backend == "daemon" {
		client, err := newDBusClient()
		if err != nil {
			return err
		}
		defer client.Close()
		if text, n, err = client.GetLowPowerStats(kind, *bufSize); err != nil {
			return err
		}
	} else {
		stats, err := localStats(*backend, cfg.HAL, logger)
		if err != nil {
			return err
		}
		buf := make([]byte, *bufSize)
		get := stats.GetPlatformLowPowerStats
		if kind == storage.KindSubsystem {
			get = stats.GetSubsystemLowPowerStats
		}
		if n, err = get(ctx, buf); err != nil {
			return err
		}
		if n > 0 {
			text = string(buf[:n-1])
		}
	}

	if n == 0 {
		return fmt.Errorf("%s stats not supported by the power HAL", kind)
	}
	fmt.Fprintln(stdout, text)
	if n == *bufSize {
		logger.Warn("output filled the buffer and may be truncated", "buffer", *bufSize)
	}
	return nil
}

func localStats(backend string, hal config.HALConfig, logger *slog.Logger) (*powerstats.Stats, error) {
	var resolve powerstats.Resolver
	switch backend {
	case config.BackendSysfs:
		sysfs := &powerstats.SysfsHAL{Root: hal.SysfsRoot}
		resolve = func(context.Context) (powerstats.HAL, error) { return sysfs, nil }
	case config.BackendDBus:
		resolve = func(ctx context.Context) (powerstats.HAL, error) {
			conn, err := godbus.SystemBus()
			if err != nil {
				return nil, fmt.Errorf("connect system bus: %w", err)
			}
			return dbussvc.NewRemoteResolver(conn, hal.DBusName, godbus.ObjectPath(hal.DBusPath))(ctx)
		}
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
	holder := powerstats.NewHolder(resolve, logger)
	return powerstats.NewStats(holder, logger), nil
}

func runReasons(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("reasons", pflag.ContinueOnError)
	since := fs.Duration("since", 24*time.Hour, "how far back to list")
	last := fs.Bool("last", false, "show only the most recent reason")
	if err := fs.Parse(args); err != nil {
		return err
	}
	from, to, err := timeRange(time.Now(), *since)
	if err != nil {
		return err
	}

	client, err := newDBusClient()
	if err != nil {
		return err
	}
	defer client.Close()

	var reasons []storage.WakeupReason
	if *last {
		latest, err := client.GetLastWakeupReason()
		if err != nil {
			return err
		}
		if latest != nil {
			reasons = append(reasons, *latest)
		}
	} else if reasons, err = client.GetWakeupReasons(from, to); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tREASON")
	for _, r := range reasons {
		fmt.Fprintf(tw, "%s\t%s\n", formatTimestamp(r.Timestamp), r.Reason)
	}
	return tw.Flush()
}

func runSnapshots(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("snapshots", pflag.ContinueOnError)
	since := fs.Duration("since", time.Hour, "how far back to list")
	kind := fs.String("kind", storage.KindPlatform, "snapshot kind: platform or subsystem")
	latest := fs.Bool("latest", false, "show only the most recent snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *kind != storage.KindPlatform && *kind != storage.KindSubsystem {
		return fmt.Errorf("--kind must be %q or %q, got %q", storage.KindPlatform, storage.KindSubsystem, *kind)
	}
	from, to, err := timeRange(time.Now(), *since)
	if err != nil {
		return err
	}

	client, err := newDBusClient()
	if err != nil {
		return err
	}
	defer client.Close()

	var snapshots []storage.Snapshot
	if *latest {
		snapshot, err := client.GetLatestSnapshot(*kind)
		if err != nil {
			return err
		}
		if snapshot != nil {
			snapshots = append(snapshots, *snapshot)
		}
	} else if snapshots, err = client.GetSnapshots(*kind, from, to); err != nil {
		return err
	}
	for _, s := range snapshots {
		mark := ""
		if s.Truncated {
			mark = " (truncated)"
		}
		fmt.Fprintf(stdout, "%s%s\n  %s\n", formatTimestamp(s.Timestamp), mark, s.Text)
	}
	return nil
}

func runWait(ctx context.Context, args []string, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	fs := pflag.NewFlagSet("wait", pflag.ContinueOnError)
	bufSize := fs.IntP("buffer", "b", cfg.Wakeup.BufferSize, "reason buffer capacity in bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bufSize <= 0 {
		return fmt.Errorf("--buffer must be positive, got %d", *bufSize)
	}

	source, err := wakeup.NewLogindSource(logger)
	if err != nil {
		return err
	}
	defer source.Close()

	reader := wakeup.NewReader(wakeup.NewNotifier(source, logger), cfg.Wakeup.ReasonPath, cfg.Wakeup.MaxLineLength, logger)
	buf := make([]byte, *bufSize)
	n, err := reader.WaitForWakeup(ctx, buf)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	fmt.Fprintln(stdout, string(buf[:n]))
	return nil
}

// timeRange returns [now-since, now] rounded to whole seconds.
func timeRange(now time.Time, since time.Duration) (time.Time, time.Time, error) {
	if since <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("--since must be positive, got %s", since)
	}
	to := now.Truncate(time.Second)
	return to.Add(-since), to, nil
}

func formatTimestamp(epoch int64) string {
	return time.Unix(epoch, 0).Format("2006-01-02 15:04:05")
}
