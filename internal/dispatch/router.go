package dispatch

import (
	"context"

	"github.com/qbolapp/qbolapp/internal/protocol"
	"github.com/qbolapp/qbolapp/internal/util"
)

// Callbacks wires the Router to the other subsystems without the dispatch
// package importing them directly — a function-value registration idiom,
// the same shape as an OnPacket/OnOpen event hook. This keeps dispatch a
// leaf package with no dependency on reliability, presence or filetransfer,
// avoiding an import cycle back from those packages into dispatch.
type Callbacks struct {
	DeliverMessage     func(src [6]byte, text string, reliable bool)
	DeliverBroadcast   func(src [6]byte, text string)
	HandleAck          func(peer [6]byte, seq uint32)
	HandleNack         func(peer [6]byte, seq uint32)
	HandleFileFragment func(peer [6]byte, transferID, fragIndex, total uint32, payload []byte)
	HandleFileAck      func(peer [6]byte, transferID, fragIndex uint32)
	MarkOnline         func(mac [6]byte, name string)
	MarkOffline        func(mac [6]byte)
	Touch              func(mac [6]byte)
}

// Router performs single-threaded dispatch of decoded frames by kind,
// including per-peer duplicate suppression for reliable MSG and FILE
// frames.
type Router struct {
	builder *protocol.Builder
	seq     *protocol.SeqGen
	key     []byte
	tx      *TxQueue
	cb      Callbacks

	dupWindows map[[6]byte]*dupWindow
}

// NewRouter creates a Router. builder/seq/key are used to synthesize
// ACK/FILE_ACK frames; tx is where those synthesized frames are enqueued.
func NewRouter(builder *protocol.Builder, seq *protocol.SeqGen, key []byte, tx *TxQueue, cb Callbacks) *Router {
	return &Router{
		builder:    builder,
		seq:        seq,
		key:        key,
		tx:         tx,
		cb:         cb,
		dupWindows: make(map[[6]byte]*dupWindow),
	}
}

// Run consumes input until ctx is cancelled or the channel closes.
func (r *Router) Run(ctx context.Context, input <-chan *protocol.Frame) {
	for {
		select {
		case f, ok := <-input:
			if !ok {
				return
			}
			r.dispatch(ctx, f)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) windowFor(peer [6]byte) *dupWindow {
	w, ok := r.dupWindows[peer]
	if !ok {
		w = newDupWindow()
		r.dupWindows[peer] = w
	}
	return w
}

func (r *Router) dispatch(ctx context.Context, f *protocol.Frame) {
	if r.cb.Touch != nil {
		r.cb.Touch(f.Src)
	}

	switch f.Kind {
	case protocol.KindMSG:
		r.handleMsg(ctx, f)

	case protocol.KindACK:
		if seq, ok := protocol.DecodeAckPayload(f.Payload); ok && r.cb.HandleAck != nil {
			r.cb.HandleAck(f.Src, seq)
		}

	case protocol.KindNACK:
		if seq, ok := protocol.DecodeAckPayload(f.Payload); ok && r.cb.HandleNack != nil {
			r.cb.HandleNack(f.Src, seq)
		}

	case protocol.KindFILE:
		r.handleFile(ctx, f)

	case protocol.KindFILEACK:
		if r.cb.HandleFileAck != nil {
			r.cb.HandleFileAck(f.Src, f.TransferID, f.FragmentIndex)
		}

	case protocol.KindHELLO, protocol.KindBroadcastOnline:
		if r.cb.MarkOnline != nil {
			r.cb.MarkOnline(f.Src, string(f.Payload))
		}

	case protocol.KindBroadcastOffline:
		if r.cb.MarkOffline != nil {
			r.cb.MarkOffline(f.Src)
		}

	case protocol.KindCTRL:
		util.LogDebug("router: dropping unhandled CTRL frame from %s", util.FormatMAC(f.Src))

	default:
		util.LogDebug("router: dropping frame of unknown kind %d from %s", f.Kind, util.FormatMAC(f.Src))
	}
}

func (r *Router) handleMsg(ctx context.Context, f *protocol.Frame) {
	if f.IsBroadcast() {
		if r.cb.DeliverBroadcast != nil {
			r.cb.DeliverBroadcast(f.Src, string(f.Payload))
		}
		return
	}

	reliable := f.Reliable()
	if !reliable {
		if r.cb.DeliverMessage != nil {
			r.cb.DeliverMessage(f.Src, string(f.Payload), false)
		}
		return
	}

	w := r.windowFor(f.Src)
	if !w.isDuplicate(f.Seq) {
		w.mark(f.Seq)
		if r.cb.DeliverMessage != nil {
			r.cb.DeliverMessage(f.Src, string(f.Payload), true)
		}
	}
	r.sendAck(ctx, f.Src, f.Seq)
}

func (r *Router) handleFile(ctx context.Context, f *protocol.Frame) {
	w := r.windowFor(f.Src)
	if !w.isDuplicate(f.Seq) {
		w.mark(f.Seq)
		if r.cb.HandleFileFragment != nil {
			r.cb.HandleFileFragment(f.Src, f.TransferID, f.FragmentIndex, f.TotalFragments, f.Payload)
		}
	}
	if f.Reliable() {
		r.sendFileAck(ctx, f.Src, f.TransferID, f.FragmentIndex)
	}
}

func (r *Router) sendAck(ctx context.Context, dst [6]byte, ackedSeq uint32) {
	ack := r.builder.BuildAck(dst, r.seq.Next(), ackedSeq)
	r.enqueue(ctx, ack)
}

func (r *Router) sendFileAck(ctx context.Context, dst [6]byte, transferID, fragIndex uint32) {
	ack := r.builder.BuildFileAck(dst, r.seq.Next(), transferID, fragIndex)
	r.enqueue(ctx, ack)
}

func (r *Router) enqueue(ctx context.Context, f *protocol.Frame) {
	raw, err := protocol.Encode(f, r.key)
	if err != nil {
		util.LogError("router: failed to encode synthesized %s: %v", f.Kind, err)
		return
	}
	_ = r.tx.Enqueue(ctx, raw, false)
}
