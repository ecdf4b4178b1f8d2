package wakeup

import (
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	logindIface       = "org.freedesktop.login1.Manager"
	prepareForSleep   = logindIface + ".PrepareForSleep"
	signalBufferDepth = 16
)

// LogindSource listens for systemd-logind PrepareForSleep signals and posts
// a wakeup each time the system comes back from sleep.
type LogindSource struct {
	conn *dbus.Conn
	done chan struct{}
	log  *slog.Logger

	closeOnce sync.Once
}

// NewLogindSource connects to the system bus and subscribes to
// PrepareForSleep.
func NewLogindSource(logger *slog.Logger) (*LogindSource, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}

	err = conn.AddMatchSignal(
		dbus.WithMatchInterface(logindIface),
		dbus.WithMatchMember("PrepareForSleep"),
	)
	if err != nil {
		return nil, err
	}

	return &LogindSource{
		conn: conn,
		done: make(chan struct{}),
		log:  logger,
	}, nil
}

// Start begins delivering resume notifications to post.
func (s *LogindSource) Start(post func(resumed bool)) error {
	ch := make(chan *dbus.Signal, signalBufferDepth)
	s.conn.Signal(ch)
	go s.listen(ch, post)
	return nil
}

// Close stops the listener.
func (s *LogindSource) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *LogindSource) listen(ch chan *dbus.Signal, post func(resumed bool)) {
	defer s.conn.RemoveSignal(ch)

	for {
		select {
		case sig := <-ch:
			if sig == nil || sig.Name != prepareForSleep || len(sig.Body) < 1 {
				continue
			}
			active, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}
			if active {
				s.log.Info("system going to sleep")
				continue
			}
			s.log.Info("system woke up")
			post(true)
		case <-s.done:
			return
		}
	}
}
