package filetransfer

import (
	"sync"
	"time"

	"github.com/qbolapp/qbolapp/internal/event"
	"github.com/qbolapp/qbolapp/internal/util"
)

type inboundKey struct {
	peer       [6]byte
	transferID uint32
}

type inboundTransfer struct {
	total      uint32
	fragments  map[uint32][]byte
	startedAt  time.Time
	lastActive time.Time
}

// Assembler reassembles inbound FILE fragments per (source MAC, transfer
// id).
type Assembler struct {
	mu      sync.Mutex
	inbound map[inboundKey]*inboundTransfer
	timeout time.Duration
	events  *event.Sink
}

// NewAssembler creates an Assembler that discards transfers idle past
// timeout.
func NewAssembler(timeout time.Duration, events *event.Sink) *Assembler {
	return &Assembler{
		inbound: make(map[inboundKey]*inboundTransfer),
		timeout: timeout,
		events:  events,
	}
}

// HandleFragment records one inbound fragment, delivering a TransferCompleted
// event once every index in [0, total) has been seen.
func (a *Assembler) HandleFragment(peer [6]byte, transferID, fragIndex, total uint32, payload []byte) {
	key := inboundKey{peer, transferID}
	now := time.Now()

	a.mu.Lock()
	t, ok := a.inbound[key]
	if !ok {
		t = &inboundTransfer{fragments: make(map[uint32][]byte), startedAt: now}
		a.inbound[key] = t
	}
	if total > 0 {
		t.total = total
	}
	t.lastActive = now
	if _, dup := t.fragments[fragIndex]; !dup {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		t.fragments[fragIndex] = buf
	}

	complete := t.total > 0 && uint32(len(t.fragments)) == t.total
	var data []byte
	if complete {
		data = reassemble(t)
		delete(a.inbound, key)
	}
	a.mu.Unlock()

	if complete && a.events != nil {
		a.events.Emit(event.TransferCompleted{Peer: peer, TransferID: transferID, Data: data, Outbound: false})
	}
}

func reassemble(t *inboundTransfer) []byte {
	out := make([]byte, 0, len(t.fragments))
	for i := uint32(0); i < t.total; i++ {
		out = append(out, t.fragments[i]...)
	}
	return out
}

// Sweep discards transfers idle past timeout, raising TransferFailed for
// each.
func (a *Assembler) Sweep() {
	now := time.Now()

	type expired struct {
		peer       [6]byte
		transferID uint32
	}
	var timedOut []expired

	a.mu.Lock()
	for key, t := range a.inbound {
		if now.Sub(t.lastActive) > a.timeout {
			timedOut = append(timedOut, expired{peer: key.peer, transferID: key.transferID})
			delete(a.inbound, key)
		}
	}
	a.mu.Unlock()

	for _, e := range timedOut {
		util.LogWarning("inbound transfer %d from %s timed out", e.transferID, util.FormatMAC(e.peer))
		if a.events != nil {
			a.events.Emit(event.TransferFailed{Peer: e.peer, TransferID: e.transferID, Reason: "idle timeout"})
		}
	}
}

// FailAll discards every inbound transfer in progress, raising
// TransferFailed for each. Called on shutdown so a transfer in flight is
// never simply dropped without notice.
func (a *Assembler) FailAll(reason string) {
	type expired struct {
		peer       [6]byte
		transferID uint32
	}
	var abandoned []expired

	a.mu.Lock()
	for key := range a.inbound {
		abandoned = append(abandoned, expired{peer: key.peer, transferID: key.transferID})
		delete(a.inbound, key)
	}
	a.mu.Unlock()

	for _, e := range abandoned {
		util.LogWarning("inbound transfer %d from %s abandoned: %s", e.transferID, util.FormatMAC(e.peer), reason)
		if a.events != nil {
			a.events.Emit(event.TransferFailed{Peer: e.peer, TransferID: e.transferID, Reason: reason})
		}
	}
}
