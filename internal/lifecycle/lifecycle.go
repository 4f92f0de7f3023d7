// Package lifecycle registers and deregisters signaling connections as the
// transport opens and closes them.
//
// The Manager keeps the online counter in step with the Registry and applies
// two policies on connect: what happens to a connection superseded by a newer
// one for the same identity, and how many connections may be registered at
// once.
package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/registry"
)

var ErrEmptyIdentity = errors.New("lifecycle: empty identity")

// SupersedePolicy decides the fate of a connection whose identity has been
// registered again by a newer connection.
type SupersedePolicy string

const (
	// SupersedeClose closes the older connection.
	SupersedeClose SupersedePolicy = "close"
	// SupersedeKeep leaves the older connection open but unreachable; it is
	// cleaned up when the transport notices it is gone.
	SupersedeKeep SupersedePolicy = "keep"
)

func ParseSupersedePolicy(s string) (SupersedePolicy, error) {
	switch SupersedePolicy(s) {
	case SupersedeClose, SupersedeKeep:
		return SupersedePolicy(s), nil
	default:
		return "", fmt.Errorf("invalid supersede policy %q (expected %q or %q)", s, SupersedeClose, SupersedeKeep)
	}
}

type Config struct {
	Registry *registry.Registry
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// AdmissionLimit caps the number of registered connections. When a
	// connect pushes the count past it, only the AdmissionLimit most recent
	// registrations survive. Zero disables the limit.
	AdmissionLimit int

	Supersede SupersedePolicy
}

type Manager struct {
	reg       *registry.Registry
	metrics   *metrics.Metrics
	log       *slog.Logger
	limit     int
	supersede SupersedePolicy

	online atomic.Int64

	// admitMu serializes the admission check so two concurrent connects past
	// the limit agree on who survives.
	admitMu sync.Mutex
}

func New(cfg Config) *Manager {
	reg := cfg.Registry
	if reg == nil {
		reg = registry.New()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	supersede := cfg.Supersede
	if supersede == "" {
		supersede = SupersedeClose
	}
	limit := cfg.AdmissionLimit
	if limit < 0 {
		limit = 0
	}
	return &Manager{
		reg:       reg,
		metrics:   cfg.Metrics,
		log:       log,
		limit:     limit,
		supersede: supersede,
	}
}

func (m *Manager) Registry() *registry.Registry { return m.reg }

// OnlineCount is the number of registered connections.
func (m *Manager) OnlineCount() int64 { return m.online.Load() }

// OnConnect registers conn under identity.
func (m *Manager) OnConnect(identity string, conn registry.Conn) error {
	if identity == "" {
		return ErrEmptyIdentity
	}

	// Count before publishing so a racing disconnect never sees the entry
	// without its increment.
	n := m.online.Add(1)
	prev, replaced := m.reg.Put(identity, conn)
	if replaced {
		n = m.online.Add(-1)
	}
	m.setOnline(n)
	m.metrics.Inc(metrics.EventConnect)
	m.log.Info("signaling connection registered",
		"user_id", identity,
		"conn_id", conn.ID(),
		"online", m.online.Load(),
	)

	if replaced && prev.Conn != conn {
		m.metrics.Inc(metrics.EventSuperseded)
		m.log.Info("signaling connection superseded",
			"user_id", identity,
			"conn_id", prev.Conn.ID(),
			"policy", string(m.supersede),
		)
		if m.supersede == SupersedeClose {
			_ = prev.Conn.Close()
		}
	}

	if m.limit > 0 {
		m.admit()
	}
	return nil
}

// admit evicts every registration except the limit most recent ones.
func (m *Manager) admit() {
	m.admitMu.Lock()
	defer m.admitMu.Unlock()

	snap := m.reg.Snapshot()
	if len(snap) <= m.limit {
		return
	}
	for _, e := range snap[:len(snap)-m.limit] {
		if !m.reg.RemoveConn(e.Identity, e.Conn) {
			continue
		}
		m.decrement()
		m.metrics.Inc(metrics.EventEvicted)
		m.log.Info("signaling connection evicted by admission limit",
			"user_id", e.Identity,
			"conn_id", e.Conn.ID(),
			"limit", m.limit,
		)
		_ = e.Conn.Close()
	}
}

// OnDisconnect deregisters conn. It reports whether conn was still the
// registered connection for identity; a superseded connection leaves its
// successor in place.
func (m *Manager) OnDisconnect(identity string, conn registry.Conn) bool {
	if identity == "" {
		return false
	}
	var removed bool
	if conn == nil {
		_, removed = m.reg.Remove(identity)
	} else {
		removed = m.reg.RemoveConn(identity, conn)
	}
	if !removed {
		return false
	}
	m.decrement()
	m.metrics.Inc(metrics.EventDisconnect)
	m.log.Info("signaling connection deregistered",
		"user_id", identity,
		"online", m.online.Load(),
	)
	return true
}

// OnError reports a transport error. Closing the connection is left to the
// transport.
func (m *Manager) OnError(identity string, err error) {
	m.log.Warn("signaling connection error", "user_id", identity, "err", err)
}

// Close deregisters and closes every connection.
func (m *Manager) Close() {
	for _, e := range m.reg.Snapshot() {
		if m.reg.RemoveConn(e.Identity, e.Conn) {
			m.decrement()
			_ = e.Conn.Close()
		}
	}
}

func (m *Manager) decrement() {
	for {
		cur := m.online.Load()
		if cur <= 0 {
			m.setOnline(0)
			return
		}
		if m.online.CompareAndSwap(cur, cur-1) {
			m.setOnline(cur - 1)
			return
		}
	}
}

func (m *Manager) setOnline(n int64) {
	m.metrics.SetOnline(n)
}
