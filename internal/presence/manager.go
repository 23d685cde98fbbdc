// Package presence implements the peer-presence state machine: a
// MAC-keyed table of (name, last_seen, state) refreshed by inbound traffic
// and swept periodically for timeouts.
package presence

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/qbolapp/qbolapp/internal/event"
)

// State is a peer's presence state.
type State int

const (
	// Online means a frame from this peer arrived within presence_timeout.
	Online State = iota
	// Offline means presence_timeout has elapsed without activity. The
	// peer remains in the table for an additional grace period so
	// list_peers can still report its last known name.
	Offline
)

func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Peer is a snapshot of one entry in the presence table.
type Peer struct {
	MAC      [6]byte
	Name     string
	State    State
	LastSeen time.Time
}

// HWAddr renders MAC as a net.HardwareAddr for display.
func (p Peer) HWAddr() net.HardwareAddr {
	hw := make(net.HardwareAddr, 6)
	copy(hw, p.MAC[:])
	return hw
}

type entry struct {
	name      string
	state     State
	lastSeen  time.Time
	offlineAt time.Time
}

// Manager owns the presence table. Touch/MarkOnline/MarkOffline are called
// from the router's single dispatch goroutine; Sweep and List may be called
// from any goroutine.
type Manager struct {
	mu      sync.Mutex
	peers   map[[6]byte]*entry
	timeout time.Duration
	grace   time.Duration
	events  *event.Sink
}

// NewManager creates an empty presence table.
func NewManager(timeout, grace time.Duration, events *event.Sink) *Manager {
	return &Manager{
		peers:   make(map[[6]byte]*entry),
		timeout: timeout,
		grace:   grace,
		events:  events,
	}
}

// Touch refreshes last_seen for mac on any inbound frame, and brings an
// Offline peer back Online (raising peer_online). It does not create a
// table entry for an unknown peer — that only happens via MarkOnline
// (HELLO/BROADCAST_ONLINE).
func (m *Manager) Touch(mac [6]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.peers[mac]; ok {
		e.lastSeen = time.Now()
		if e.state == Offline {
			e.state = Online
			m.emitOnline(mac, e.name)
		}
	}
}

// MarkOnline records mac as Online with the given display name, raising
// peer_online exactly once per Offline→Online transition (including first
// sight of a previously unknown peer).
func (m *Manager) MarkOnline(mac [6]byte, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.peers[mac]
	if !ok {
		e = &entry{}
		m.peers[mac] = e
	}
	e.name = name
	e.lastSeen = time.Now()

	wasOffline := !ok || e.state == Offline
	e.state = Online
	if wasOffline {
		m.emitOnline(mac, name)
	}
}

// MarkOffline records mac as Offline immediately, e.g. on receipt of an
// explicit BROADCAST_OFFLINE.
func (m *Manager) MarkOffline(mac [6]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.peers[mac]
	if !ok || e.state == Offline {
		return
	}
	e.state = Offline
	e.offlineAt = time.Now()
	m.emitOffline(mac)
}

// emitOnline/emitOffline must be called with mu held.
func (m *Manager) emitOnline(mac [6]byte, name string) {
	if m.events != nil {
		m.events.Emit(event.PeerOnline{MAC: mac, Name: name})
	}
}

func (m *Manager) emitOffline(mac [6]byte) {
	if m.events != nil {
		m.events.Emit(event.PeerOffline{MAC: mac})
	}
}

// Sweep transitions silent peers to Offline after timeout and forgets them
// entirely after an additional grace period.
func (m *Manager) Sweep() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for mac, e := range m.peers {
		switch e.state {
		case Online:
			if now.Sub(e.lastSeen) > m.timeout {
				e.state = Offline
				e.offlineAt = now
				m.emitOffline(mac)
			}
		case Offline:
			if now.Sub(e.offlineAt) > m.grace {
				delete(m.peers, mac)
			}
		}
	}
}

// Run drives the HELLO ticker and cleanup sweep until ctx is cancelled.
// sendHello is invoked on every helloInterval tick to broadcast this node's
// own presence. sweepTick is independent of helloInterval so that Offline
// detection latency stays bounded by presence_timeout plus one ack tick,
// regardless of how often HELLOs are announced.
func (m *Manager) Run(ctx context.Context, helloInterval, sweepTick time.Duration, sendHello func()) {
	helloTicker := time.NewTicker(helloInterval)
	defer helloTicker.Stop()

	sweepTicker := time.NewTicker(sweepTick)
	defer sweepTicker.Stop()

	for {
		select {
		case <-helloTicker.C:
			if sendHello != nil {
				sendHello()
			}
		case <-sweepTicker.C:
			m.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// List returns a snapshot of every known peer, online or recently offline.
func (m *Manager) List() []Peer {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Peer, 0, len(m.peers))
	for mac, e := range m.peers {
		out = append(out, Peer{MAC: mac, Name: e.name, State: e.state, LastSeen: e.lastSeen})
	}
	return out
}
