// Package reliability implements the ACK manager: tracking outstanding
// reliable frames, retransmitting them on a fixed tick until acknowledged,
// and reporting delivery failure once max_attempts is exhausted.
package reliability

import (
	"context"
	"sync"
	"time"

	"github.com/qbolapp/qbolapp/internal/event"
	"github.com/qbolapp/qbolapp/internal/util"
)

// Enqueue re-submits an already-encoded frame to the transmit queue. It is
// satisfied by *dispatch.TxQueue's Enqueue method without this package
// importing dispatch.
type Enqueue func(ctx context.Context, frame []byte, reliable bool) error

type recordKey struct {
	peer [6]byte
	seq  uint32
}

type record struct {
	frame    []byte
	kind     string
	attempts int
	lastSent time.Time
}

// Manager tracks one outstanding record per (peer, sequence) reliable send
// awaiting acknowledgement.
type Manager struct {
	mu                 sync.Mutex
	records            map[recordKey]*record
	retransmitInterval time.Duration
	maxAttempts        int
	enqueue            Enqueue
	events             *event.Sink
	stats              *util.Stats
}

// NewManager creates a Manager. enqueue is called (outside any internal
// lock) to re-send a frame on retransmit.
func NewManager(retransmitInterval time.Duration, maxAttempts int, enqueue Enqueue, events *event.Sink, stats *util.Stats) *Manager {
	return &Manager{
		records:            make(map[recordKey]*record),
		retransmitInterval: retransmitInterval,
		maxAttempts:        maxAttempts,
		enqueue:            enqueue,
		events:             events,
		stats:              stats,
	}
}

// Register records a freshly-sent reliable frame as awaiting acknowledgement.
// kind is a display label ("MSG" or "FILE") used in DeliveryFailed events.
func (m *Manager) Register(peer [6]byte, seq uint32, frame []byte, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey{peer, seq}] = &record{
		frame:    frame,
		kind:     kind,
		attempts: 1,
		lastSent: time.Now(),
	}
}

// HandleAck retires the outstanding record matching (peer, seq), if any.
func (m *Manager) HandleAck(peer [6]byte, seq uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, recordKey{peer, seq})
}

// HandleNack schedules an immediate retransmit of the matching record on
// the next tick. NACK is treated as an optional fast-retransmit hint; no
// sender in this implementation emits one, but inbound NACKs from a peer
// running a different implementation are still honored.
func (m *Manager) HandleNack(peer [6]byte, seq uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[recordKey{peer, seq}]; ok {
		rec.lastSent = time.Time{}
	}
}

// Pending reports the number of outstanding unacknowledged records, for
// tests and diagnostics.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Run drives the retransmit ticker until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) sweep(ctx context.Context) {
	now := time.Now()

	type resend struct {
		key  recordKey
		rec  *record
		fail bool
	}
	var pending []resend

	m.mu.Lock()
	for key, rec := range m.records {
		if now.Sub(rec.lastSent) < m.retransmitInterval {
			continue
		}
		if rec.attempts >= m.maxAttempts {
			delete(m.records, key)
			pending = append(pending, resend{key: key, rec: rec, fail: true})
			continue
		}
		rec.attempts++
		rec.lastSent = now
		pending = append(pending, resend{key: key, rec: rec})
	}
	m.mu.Unlock()

	for _, p := range pending {
		if p.fail {
			util.LogWarning("delivery failed to %x seq=%d after max attempts", p.key.peer, p.key.seq)
			if m.events != nil {
				m.events.Emit(event.DeliveryFailed{Peer: p.key.peer, Seq: p.key.seq, Kind: p.rec.kind})
			}
			continue
		}
		if m.stats != nil {
			m.stats.AddRetransmit()
		}
		if err := m.enqueue(ctx, p.rec.frame, true); err != nil {
			util.LogDebug("reliability: retransmit enqueue failed: %v", err)
		}
	}
}
