package dispatch

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/qbolapp/qbolapp/internal/protocol"
)

var (
	testLocal = [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	testPeer  = [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

func newTestRouter(t *testing.T, cb Callbacks) (*Router, *TxQueue) {
	t.Helper()
	builder := protocol.NewBuilder(net.HardwareAddr(testLocal[:]), "local")
	tx := NewTxQueue(16)
	return NewRouter(builder, protocol.NewSeqGen(), nil, tx, cb), tx
}

func TestDuplicateReliableMsgDeliversOnceButReAcksEveryTime(t *testing.T) {
	var delivered int32
	cb := Callbacks{
		DeliverMessage: func(src [6]byte, text string, reliable bool) {
			atomic.AddInt32(&delivered, 1)
		},
	}
	r, tx := newTestRouter(t, cb)

	f := &protocol.Frame{
		Dst:     testLocal,
		Src:     testPeer,
		Kind:    protocol.KindMSG,
		Flags:   protocol.FlagReliable,
		Seq:     42,
		Payload: []byte("hello"),
	}

	ctx := context.Background()
	r.dispatch(ctx, f)
	r.dispatch(ctx, f)

	if got := atomic.LoadInt32(&delivered); got != 1 {
		t.Fatalf("DeliverMessage fired %d times, want exactly 1", got)
	}
	if got := tx.Len(); got != 2 {
		t.Fatalf("tx queue has %d frames, want 2 (one ACK per dispatch)", got)
	}
}

func TestNonDuplicateSeqsBothDeliver(t *testing.T) {
	var delivered int32
	cb := Callbacks{
		DeliverMessage: func(src [6]byte, text string, reliable bool) {
			atomic.AddInt32(&delivered, 1)
		},
	}
	r, _ := newTestRouter(t, cb)

	ctx := context.Background()
	r.dispatch(ctx, &protocol.Frame{Dst: testLocal, Src: testPeer, Kind: protocol.KindMSG, Flags: protocol.FlagReliable, Seq: 1, Payload: []byte("a")})
	r.dispatch(ctx, &protocol.Frame{Dst: testLocal, Src: testPeer, Kind: protocol.KindMSG, Flags: protocol.FlagReliable, Seq: 2, Payload: []byte("b")})

	if got := atomic.LoadInt32(&delivered); got != 2 {
		t.Fatalf("DeliverMessage fired %d times, want 2 for two distinct sequence numbers", got)
	}
}

func TestBroadcastDeliversToAllPeersWithoutAck(t *testing.T) {
	const numPeers = 3

	// One broadcast frame from a single sender, fed independently into
	// numPeers separate routers, each standing in for a distinct receiving
	// peer's dispatch goroutine on the same LAN segment.
	frame := &protocol.Frame{
		Dst:     protocol.Broadcast,
		Src:     testPeer,
		Kind:    protocol.KindMSG,
		Seq:     5,
		Payload: []byte("hi everyone"),
	}

	ctx := context.Background()
	for i := 0; i < numPeers; i++ {
		var delivered int32
		cb := Callbacks{
			DeliverBroadcast: func(src [6]byte, text string) {
				atomic.AddInt32(&delivered, 1)
				if src != testPeer {
					t.Fatalf("delivered src = %x, want %x", src, testPeer)
				}
				if text != "hi everyone" {
					t.Fatalf("delivered text = %q, want %q", text, "hi everyone")
				}
			},
		}
		r, tx := newTestRouter(t, cb)

		r.dispatch(ctx, frame)

		if got := atomic.LoadInt32(&delivered); got != 1 {
			t.Fatalf("peer %d: DeliverBroadcast fired %d times, want 1", i, got)
		}
		if got := tx.Len(); got != 0 {
			t.Fatalf("peer %d: tx queue has %d frames, want 0: broadcasts never trigger an ACK", i, got)
		}
	}
}

func TestUnreliableDuplicateMsgHasNoDupSuppressionOrAck(t *testing.T) {
	var delivered int32
	cb := Callbacks{
		DeliverMessage: func(src [6]byte, text string, reliable bool) {
			atomic.AddInt32(&delivered, 1)
		},
	}
	r, tx := newTestRouter(t, cb)

	f := &protocol.Frame{Dst: testLocal, Src: testPeer, Kind: protocol.KindMSG, Seq: 9, Payload: []byte("x")}
	ctx := context.Background()
	r.dispatch(ctx, f)
	r.dispatch(ctx, f)

	if got := atomic.LoadInt32(&delivered); got != 2 {
		t.Fatalf("DeliverMessage fired %d times, want 2: unreliable frames are never dup-suppressed", got)
	}
	if got := tx.Len(); got != 0 {
		t.Fatalf("tx queue has %d frames, want 0: unreliable MSG never triggers an ACK", got)
	}
}
