// Package filetransfer implements the outbound file sender and inbound
// assembler for whole-blob transfer over fixed-size fragments.
package filetransfer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qbolapp/qbolapp/internal/event"
	"github.com/qbolapp/qbolapp/internal/protocol"
	"github.com/qbolapp/qbolapp/internal/util"
)

// Enqueue re-submits an already-encoded frame to the transmit queue. It is
// satisfied by *dispatch.TxQueue's Enqueue method without this package
// importing dispatch.
type Enqueue func(ctx context.Context, frame []byte, reliable bool) error

type outstandingFragment struct {
	frame    []byte
	attempts int
	lastSent time.Time
}

type outboundTransfer struct {
	peer       [6]byte
	reliable   bool
	chunks     [][]byte
	total      uint32
	nextToSend uint32
	window     map[uint32]*outstandingFragment
}

// Sender assigns transfer ids, fragments outbound blobs into MTU-sized
// chunks, and drives the reliable stop-and-wait window of §4.9.
type Sender struct {
	mu      sync.Mutex
	builder *protocol.Builder
	seq     *protocol.SeqGen
	key     []byte
	enqueue Enqueue
	events  *event.Sink

	windowDepth        int
	mtu                int
	retransmitInterval time.Duration
	maxAttempts        int

	transfers map[uint32]*outboundTransfer
}

// NewSender creates a Sender bound to the local frame builder/sequence
// generator/obfuscation key and the shared transmit queue.
func NewSender(builder *protocol.Builder, seq *protocol.SeqGen, key []byte, enqueue Enqueue, events *event.Sink, windowDepth, mtu int, retransmitInterval time.Duration, maxAttempts int) *Sender {
	return &Sender{
		builder:            builder,
		seq:                seq,
		key:                key,
		enqueue:            enqueue,
		events:             events,
		windowDepth:        windowDepth,
		mtu:                mtu,
		retransmitInterval: retransmitInterval,
		maxAttempts:        maxAttempts,
		transfers:          make(map[uint32]*outboundTransfer),
	}
}

// newTransferID draws a fresh 32-bit transfer id uniformly at random.
// Collision probability at this width is tolerated; a UUID's randomness
// source is reused rather than reaching for math/rand directly, since the
// id only needs to be well-distributed, not globally unique.
func newTransferID() uint32 {
	id := uuid.New()
	return uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3])
}

func chunk(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var out [][]byte
	for i := 0; i < len(data); i += size {
		end := i + size
		if end > len(data) {
			end = len(data)
		}
		out = append(out, data[i:end])
	}
	return out
}

// Send fragments data and begins transmission to dst, returning the
// assigned transfer id.
func (s *Sender) Send(ctx context.Context, dst [6]byte, data []byte, reliable bool) (uint32, error) {
	chunks := chunk(data, s.mtu)
	total := uint32(len(chunks))

	transferID := newTransferID()
	t := &outboundTransfer{
		peer:     dst,
		reliable: reliable,
		chunks:   chunks,
		total:    total,
		window:   make(map[uint32]*outstandingFragment),
	}

	s.mu.Lock()
	s.transfers[transferID] = t
	s.mu.Unlock()

	if !reliable {
		for i := uint32(0); i < total; i++ {
			s.sendFragment(ctx, transferID, t, i)
		}
		s.mu.Lock()
		delete(s.transfers, transferID)
		s.mu.Unlock()
		if s.events != nil {
			s.events.Emit(event.TransferCompleted{Peer: dst, TransferID: transferID, Outbound: true})
		}
		return transferID, nil
	}

	s.mu.Lock()
	for t.nextToSend < total && uint32(len(t.window)) < uint32(s.windowDepth) {
		s.sendFragment(ctx, transferID, t, t.nextToSend)
		t.nextToSend++
	}
	s.mu.Unlock()

	return transferID, nil
}

// sendFragment must be called with s.mu held for reliable transfers.
func (s *Sender) sendFragment(ctx context.Context, transferID uint32, t *outboundTransfer, index uint32) {
	f := s.builder.BuildFile(t.peer, s.seq.Next(), transferID, index, t.total, t.chunks[index], t.reliable)
	raw, err := protocol.Encode(f, s.key)
	if err != nil {
		util.LogError("filetransfer: failed to encode fragment %d/%d: %v", index, t.total, err)
		return
	}
	if err := s.enqueue(ctx, raw, t.reliable); err != nil {
		util.LogDebug("filetransfer: enqueue failed for fragment %d: %v", index, err)
	}
	if t.reliable {
		t.window[index] = &outstandingFragment{frame: raw, attempts: 1, lastSent: time.Now()}
	}
}

// HandleFileAck retires the fragment (transferID, fragIndex) and slides the
// window forward.
func (s *Sender) HandleFileAck(peer [6]byte, transferID, fragIndex uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[transferID]
	if !ok || !t.reliable {
		return
	}
	delete(t.window, fragIndex)

	for t.nextToSend < t.total && uint32(len(t.window)) < uint32(s.windowDepth) {
		s.sendFragment(context.Background(), transferID, t, t.nextToSend)
		t.nextToSend++
	}

	if t.nextToSend >= t.total && len(t.window) == 0 {
		delete(s.transfers, transferID)
		if s.events != nil {
			s.events.Emit(event.TransferCompleted{Peer: peer, TransferID: transferID, Outbound: true})
		}
	}
}

// Run drives the retransmit sweep for outstanding reliable fragments.
func (s *Sender) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) sweep(ctx context.Context) {
	now := time.Now()

	type failure struct {
		peer       [6]byte
		transferID uint32
	}
	var failed []failure

	s.mu.Lock()
	for transferID, t := range s.transfers {
		if !t.reliable {
			continue
		}
		for index, frag := range t.window {
			if now.Sub(frag.lastSent) < s.retransmitInterval {
				continue
			}
			if frag.attempts >= s.maxAttempts {
				failed = append(failed, failure{peer: t.peer, transferID: transferID})
				delete(s.transfers, transferID)
				break
			}
			frag.attempts++
			frag.lastSent = now
			if err := s.enqueue(ctx, frag.frame, true); err != nil {
				util.LogDebug("filetransfer: retransmit enqueue failed for fragment %d: %v", index, err)
			}
		}
	}
	s.mu.Unlock()

	for _, f := range failed {
		util.LogWarning("outbound transfer %d to %s failed: fragment exceeded max attempts", f.transferID, util.FormatMAC(f.peer))
		if s.events != nil {
			s.events.Emit(event.TransferFailed{Peer: f.peer, TransferID: f.transferID, Reason: "max attempts exceeded"})
		}
	}
}

// FailAll abandons every outstanding reliable transfer, raising
// TransferFailed for each. Called on shutdown so a transfer in flight is
// never simply dropped without notice.
func (s *Sender) FailAll(reason string) {
	type failure struct {
		peer       [6]byte
		transferID uint32
	}
	var failed []failure

	s.mu.Lock()
	for transferID, t := range s.transfers {
		if !t.reliable {
			continue
		}
		failed = append(failed, failure{peer: t.peer, transferID: transferID})
		delete(s.transfers, transferID)
	}
	s.mu.Unlock()

	for _, f := range failed {
		util.LogWarning("outbound transfer %d to %s abandoned: %s", f.transferID, util.FormatMAC(f.peer), reason)
		if s.events != nil {
			s.events.Emit(event.TransferFailed{Peer: f.peer, TransferID: f.transferID, Reason: reason})
		}
	}
}
