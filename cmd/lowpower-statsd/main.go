package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/spf13/pflag"

	"github.com/cptspacemanspiff/lowpower-stats/internal/config"
	dbussvc "github.com/cptspacemanspiff/lowpower-stats/internal/dbus"
	"github.com/cptspacemanspiff/lowpower-stats/internal/powerstats"
	"github.com/cptspacemanspiff/lowpower-stats/internal/storage"
	"github.com/cptspacemanspiff/lowpower-stats/internal/wakeup"
)

const defaultConfigPath = "/etc/lowpower-stats/config.toml"

// topicHandler wraps an slog.Handler and filters records by a "topic" attribute.
// Records without a topic attribute always pass through (startup messages, errors).
// Records with a topic only pass if that topic is enabled.
type topicHandler struct {
	inner  slog.Handler
	topics map[string]bool
	topic  string // set when WithAttrs includes a "topic" key
}

func (h *topicHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.inner.Enabled(context.Background(), level)
}

func (h *topicHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.topics["all"] || r.Level >= slog.LevelWarn {
		return h.inner.Handle(ctx, r)
	}
	topic := h.topic
	if topic == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "topic" {
				topic = a.Value.String()
				return false
			}
			return true
		})
	}
	if topic != "" && !h.topics[topic] {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *topicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	topic := h.topic
	for _, a := range attrs {
		if a.Key == "topic" {
			topic = a.Value.String()
		}
	}
	return &topicHandler{inner: h.inner.WithAttrs(attrs), topics: h.topics, topic: topic}
}

func (h *topicHandler) WithGroup(name string) slog.Handler {
	return &topicHandler{inner: h.inner.WithGroup(name), topics: h.topics, topic: h.topic}
}

func main() {
	flagSet := pflag.NewFlagSet("lowpower-statsd", pflag.ContinueOnError)
	configPath := flagSet.String("config", defaultConfigPath, "path to the TOML config file")
	verbose := flagSet.BoolP("verbose", "v", false, "enable all verbose logging (equivalent to --log=all)")
	logFlag := flagSet.String("log", "", "comma-separated log topics: wakeup,stats,storage (or 'all')")
	resetDB := flagSet.Bool("reset-db", false, "delete the database and start fresh")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	topics := make(map[string]bool)
	if *verbose {
		topics["all"] = true
	}
	if *logFlag != "" {
		for _, t := range strings.Split(*logFlag, ",") {
			topics[strings.TrimSpace(t)] = true
		}
	}

	handler := &topicHandler{
		inner:  slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		topics: topics,
	}
	logger := slog.New(handler)

	wakeupLog := logger.With("topic", "wakeup")
	statsLog := logger.With("topic", "stats")
	storageLog := logger.With("topic", "storage")

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Error("load config", "path", *configPath, "err", err)
		os.Exit(1)
	}

	dbPath := cfg.Storage.DBPath
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("create data dir", "err", err)
		os.Exit(1)
	}

	if *resetDB {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
				logger.Error("delete database", "err", err)
				os.Exit(1)
			}
		}
		logger.Info("database deleted", "path", dbPath)
		return
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		logger.Error("open database", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	resolve, err := newResolver(cfg.HAL)
	if err != nil {
		logger.Error("configure power HAL", "err", err)
		os.Exit(1)
	}
	holder := powerstats.NewHolder(resolve, statsLog)
	stats := powerstats.NewStats(holder, statsLog)

	svc := dbussvc.NewService(holder, stats, store)
	conn, err := svc.Export()
	if err != nil {
		logger.Error("export dbus service", "err", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("D-Bus service registered", "name", dbussvc.BusName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, err := wakeup.NewLogindSource(wakeupLog)
	if err != nil {
		logger.Warn("wakeup source unavailable", "err", err)
	} else {
		defer source.Close()
		notifier := wakeup.NewNotifier(source, wakeupLog)
		reader := wakeup.NewReader(notifier, cfg.Wakeup.ReasonPath, cfg.Wakeup.MaxLineLength, wakeupLog)
		go recordWakeups(ctx, reader, cfg.Wakeup.BufferSize, store, wakeupLog)
	}

	statsTicker := time.NewTicker(time.Duration(cfg.Stats.IntervalSeconds) * time.Second)
	defer statsTicker.Stop()
	cleanupTicker := time.NewTicker(time.Duration(cfg.Cleanup.IntervalHours) * time.Hour)
	defer cleanupTicker.Stop()

	logger.Info("lowpower-statsd started",
		"hal", cfg.HAL.Backend,
		"interval_secs", cfg.Stats.IntervalSeconds)
	snapshotStats(ctx, stats, cfg.Stats.BufferSize, store, statsLog)
	for {
		select {
		case <-statsTicker.C:
			snapshotStats(ctx, stats, cfg.Stats.BufferSize, store, statsLog)
		case <-cleanupTicker.C:
			cutoff := time.Now().AddDate(0, 0, -cfg.Cleanup.RetentionDays).Unix()
			n, err := store.DeleteOlderThan(cutoff)
			if err != nil {
				logger.Error("cleanup", "err", err)
			} else {
				storageLog.Info("cleanup", "deleted_rows", n, "cutoff", cutoff)
			}
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		}
	}
}

// loadConfig reads the config at path. On first run, when the file does not
// exist yet, the defaults are written there so they can be edited.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	cfg, err = config.NormalizeAndValidate(config.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := config.Save(path, cfg); err != nil {
		logger.Warn("write default config", "path", path, "err", err)
	} else {
		logger.Info("wrote default config", "path", path)
	}
	return cfg, nil
}

func newResolver(cfg config.HALConfig) (powerstats.Resolver, error) {
	switch cfg.Backend {
	case config.BackendDBus:
		if cfg.DBusName == dbussvc.BusName {
			return nil, fmt.Errorf("hal.dbus_name must name another service than %s", dbussvc.BusName)
		}
		return func(ctx context.Context) (powerstats.HAL, error) {
			conn, err := godbus.SystemBus()
			if err != nil {
				return nil, fmt.Errorf("connect system bus: %w", err)
			}
			return dbussvc.NewRemoteResolver(conn, cfg.DBusName, godbus.ObjectPath(cfg.DBusPath))(ctx)
		}, nil
	default:
		hal := &powerstats.SysfsHAL{Root: cfg.SysfsRoot}
		return func(context.Context) (powerstats.HAL, error) {
			return hal, nil
		}, nil
	}
}

// recordWakeups stores the reason string of every resume until ctx is done.
func recordWakeups(ctx context.Context, reader *wakeup.Reader, bufSize int, store *storage.DB, logger *slog.Logger) {
	buf := make([]byte, bufSize)
	for ctx.Err() == nil {
		n, err := reader.WaitForWakeup(ctx, buf)
		if errors.Is(err, wakeup.ErrGateInit) {
			logger.Error("wakeup wait disabled", "err", err)
			return
		}
		if err != nil {
			logger.Error("read wakeup reasons", "err", err)
			continue
		}
		if n == 0 {
			continue
		}
		reason := storage.WakeupReason{Timestamp: time.Now().Unix(), Reason: string(buf[:n])}
		logger.Info("wakeup", "reason", reason.Reason)
		if err := store.InsertWakeupReason(reason); err != nil {
			logger.Error("store wakeup reason", "err", err)
		}
	}
}

// snapshotStats formats both stats kinds and stores them. A length equal to
// the buffer size means the text may have been cut short.
func snapshotStats(ctx context.Context, stats *powerstats.Stats, bufSize int, store *storage.DB, logger *slog.Logger) {
	kinds := []struct {
		kind string
		get  func(context.Context, []byte) (int, error)
	}{
		{storage.KindPlatform, stats.GetPlatformLowPowerStats},
		{storage.KindSubsystem, stats.GetSubsystemLowPowerStats},
	}

	now := time.Now().Unix()
	for _, k := range kinds {
		buf := make([]byte, bufSize)
		n, err := k.get(ctx, buf)
		if err != nil {
			logger.Error("collect low power stats", "kind", k.kind, "err", err)
			continue
		}
		if n <= 1 {
			logger.Debug("no low power stats", "kind", k.kind, "length", n)
			continue
		}
		snap := storage.Snapshot{
			Timestamp: now,
			Kind:      k.kind,
			Text:      string(buf[:n-1]),
			Truncated: n == bufSize,
		}
		logger.Debug("snapshot", "kind", k.kind, "length", n, "truncated", snap.Truncated)
		if err := store.InsertSnapshot(snap); err != nil {
			logger.Error("store snapshot", "kind", k.kind, "err", err)
		}
	}
}
