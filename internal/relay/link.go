// internal/relay/link.go
package relay

import (
	"log/slog"
	"net"
	"os/exec"
	"sync/atomic"

	"github.com/ColonelBlimp/bandwatch/internal/recovery"
)

// Link reports whether the network link itself is present and lets the
// delivery manager request a reconnect without waiting for it.
type Link interface {
	// Up reports whether the underlying link is usable
	Up() bool
	// RequestReconnect asks the medium to re-establish itself. Must not
	// block; the sampling loop observes the result on later cycles.
	RequestReconnect()
}

// NetLink watches a named network interface and reconnects by running a
// configured command in the background. With no interface configured the
// link is assumed up; with no command configured reconnect requests are
// logged and dropped.
type NetLink struct {
	iface string
	cmd   string
	log   *slog.Logger

	reconnecting atomic.Bool
}

// NewNetLink creates a link watcher for the given interface name and
// reconnect command. Both may be empty.
func NewNetLink(iface, cmd string, log *slog.Logger) *NetLink {
	if log == nil {
		log = slog.Default()
	}
	return &NetLink{iface: iface, cmd: cmd, log: log}
}

// Up reports whether the watched interface exists and is flagged up
func (l *NetLink) Up() bool {
	if l.iface == "" {
		return true
	}

	ifi, err := net.InterfaceByName(l.iface)
	if err != nil {
		return false
	}
	return ifi.Flags&net.FlagUp != 0
}

// RequestReconnect launches the reconnect command on a goroutine,
// fire-and-forget. At most one reconnect runs at a time; further requests
// while one is in flight are dropped.
func (l *NetLink) RequestReconnect() {
	if l.cmd == "" {
		l.log.Debug("link down, no reconnect command configured", "op", "link.reconnect")
		return
	}
	if !l.reconnecting.CompareAndSwap(false, true) {
		return
	}

	l.log.Info("requesting link reconnect", "op", "link.reconnect", "interface", l.iface)
	go func() {
		defer l.reconnecting.Store(false)
		defer recovery.HandlePanicFunc(nil)

		if err := exec.Command("/bin/sh", "-c", l.cmd).Run(); err != nil {
			l.log.Warn("reconnect command failed",
				"op", "link.reconnect", "error", err)
			return
		}
		l.log.Info("reconnect command finished", "op", "link.reconnect")
	}()
}
