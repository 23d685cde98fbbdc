// Package engine wires the dispatcher, reliability, presence and
// filetransfer subsystems into a single Application API, and owns the
// concurrency model and shutdown sequence.
package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/qbolapp/qbolapp/internal/config"
	"github.com/qbolapp/qbolapp/internal/dispatch"
	"github.com/qbolapp/qbolapp/internal/event"
	"github.com/qbolapp/qbolapp/internal/filetransfer"
	"github.com/qbolapp/qbolapp/internal/link"
	"github.com/qbolapp/qbolapp/internal/presence"
	"github.com/qbolapp/qbolapp/internal/protocol"
	"github.com/qbolapp/qbolapp/internal/reliability"
	"github.com/qbolapp/qbolapp/internal/util"
)

var loopFabrics sync.Map // name -> *link.Fabric, so "loop:<name>" peers share a segment

func fabricFor(name string) *link.Fabric {
	f, _ := loopFabrics.LoadOrStore(name, link.NewFabric())
	return f.(*link.Fabric)
}

func randomMAC() net.HardwareAddr {
	mac := make(net.HardwareAddr, 6)
	_, _ = rand.Read(mac)
	mac[0] = (mac[0] &^ 0x01) | 0x02 // unicast, locally administered
	return mac
}

// Engine is a single running QBolapp node: bound endpoint plus the
// receiver/router/sender/ACK-manager/presence/file-transfer goroutines that
// serve it.
type Engine struct {
	cfg      config.Config
	ep       link.Endpoint
	localMAC net.HardwareAddr

	builder *protocol.Builder
	seq     *protocol.SeqGen
	tx      *dispatch.TxQueue
	stats   *util.Stats
	events  *event.Sink

	reliability *reliability.Manager
	presence    *presence.Manager
	assembler   *filetransfer.Assembler
	sender      *filetransfer.Sender

	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once
}

// Start binds the configured endpoint, starts every long-lived goroutine,
// and announces this node's presence.
func Start(cfg config.Config) (*Engine, error) {
	if cfg.Debug {
		util.EnableDebug()
	}

	var ep link.Endpoint
	var err error
	if name, ok := strings.CutPrefix(cfg.Interface, "loop:"); ok {
		ep = fabricFor(name).Join(randomMAC())
	} else {
		ep, err = link.NewAFPacketEndpoint(cfg.Interface)
		if err != nil {
			return nil, err
		}
	}

	localMAC := ep.LocalMAC()
	builder := protocol.NewBuilder(localMAC, cfg.UserName)
	seq := protocol.NewSeqGen()
	tx := dispatch.NewTxQueue(cfg.TxQueueCapacity)
	stats := util.NewStats()
	events := event.NewSink()

	enqueue := func(ctx context.Context, frame []byte, reliable bool) error {
		return tx.Enqueue(ctx, frame, reliable)
	}

	e := &Engine{
		cfg:         cfg,
		ep:          ep,
		localMAC:    localMAC,
		builder:     builder,
		seq:         seq,
		tx:          tx,
		stats:       stats,
		events:      events,
		reliability: reliability.NewManager(cfg.RetransmitInterval, cfg.MaxAttempts, enqueue, events, stats),
		presence:    presence.NewManager(cfg.PresenceTimeout, cfg.PresenceGrace, events),
		assembler:   filetransfer.NewAssembler(cfg.TransferTimeout, events),
		sender:      filetransfer.NewSender(builder, seq, cfg.ObfuscationKey, enqueue, events, cfg.SendWindow, cfg.PayloadMTU, cfg.RetransmitInterval, cfg.MaxAttempts),
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	router := dispatch.NewRouter(builder, seq, cfg.ObfuscationKey, tx, dispatch.Callbacks{
		DeliverMessage: func(src [6]byte, text string, reliable bool) {
			events.Emit(event.MessageReceived{Src: src, Text: text})
		},
		DeliverBroadcast: func(src [6]byte, text string) {
			events.Emit(event.BroadcastReceived{Src: src, Text: text})
		},
		HandleAck:          e.reliability.HandleAck,
		HandleNack:         e.reliability.HandleNack,
		HandleFileFragment: e.assembler.HandleFragment,
		HandleFileAck:      e.sender.HandleFileAck,
		MarkOnline:         e.presence.MarkOnline,
		MarkOffline:        e.presence.MarkOffline,
		Touch:              e.presence.Touch,
	})

	input := make(chan *protocol.Frame, dispatch.RouterInputCapacity)

	e.wg.Add(1)
	go func() { defer e.wg.Done(); dispatch.RunReceiver(ctx, ep, localMAC, cfg.ObfuscationKey, input, stats) }()

	e.wg.Add(1)
	go func() { defer e.wg.Done(); router.Run(ctx, input) }()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		dispatch.RunSender(ctx, tx, ep, stats, func() {
			util.LogError("link endpoint write failing persistently, shutting down")
			e.cancel()
		})
	}()

	e.wg.Add(1)
	go func() { defer e.wg.Done(); e.reliability.Run(ctx, cfg.AckTick) }()

	e.wg.Add(1)
	go func() { defer e.wg.Done(); e.sender.Run(ctx, cfg.AckTick) }()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.presence.Run(ctx, cfg.HelloInterval, cfg.AckTick, func() { e.broadcastHello(ctx) })
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(cfg.TransferTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.assembler.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()

	stats.StartReporter(ctx, 5*time.Second)

	e.announceOnline(ctx)

	return e, nil
}

func (e *Engine) broadcastHello(ctx context.Context) {
	f := e.builder.BuildHello(e.seq.Next())
	e.enqueueBuilt(ctx, f, false)
}

// AnnounceHello immediately broadcasts a HELLO frame, independent of the
// presence manager's periodic ticker. Exposed for the CLI's "hello" command.
func (e *Engine) AnnounceHello() {
	e.broadcastHello(context.Background())
}

func (e *Engine) announceOnline(ctx context.Context) {
	f := e.builder.BuildBroadcastOnline(e.seq.Next())
	e.enqueueBuilt(ctx, f, false)
}

func (e *Engine) enqueueBuilt(ctx context.Context, f *protocol.Frame, reliable bool) ([]byte, error) {
	raw, err := protocol.Encode(f, e.cfg.ObfuscationKey)
	if err != nil {
		return nil, err
	}
	if err := e.tx.Enqueue(ctx, raw, reliable); err != nil {
		return raw, err
	}
	return raw, nil
}

// SendMessage sends text to dst, returning the local sequence number
// assigned to the frame.
func (e *Engine) SendMessage(dst net.HardwareAddr, text string, reliable bool) (uint32, error) {
	if len(dst) != 6 {
		return 0, fmt.Errorf("engine: destination MAC must be 6 bytes, got %d", len(dst))
	}
	if len(text) > e.cfg.PayloadMTU {
		return 0, fmt.Errorf("%w: %d bytes exceeds payload_mtu %d", protocol.ErrPayloadTooLarge, len(text), e.cfg.PayloadMTU)
	}
	seq := e.seq.Next()
	dstMAC := protocol.MACFrom(dst)

	var f *protocol.Frame
	if reliable {
		f = e.builder.BuildMsg(dstMAC, seq, text)
	} else {
		f = e.builder.BuildMsgUnreliable(dstMAC, seq, text)
	}

	raw, err := e.enqueueBuilt(context.Background(), f, reliable)
	if err != nil {
		return 0, err
	}
	if reliable {
		e.reliability.Register(dstMAC, seq, raw, "MSG")
	}
	return seq, nil
}

// SendBroadcast sends an unreliable MSG addressed to the broadcast MAC.
func (e *Engine) SendBroadcast(text string) error {
	if len(text) > e.cfg.PayloadMTU {
		return fmt.Errorf("%w: %d bytes exceeds payload_mtu %d", protocol.ErrPayloadTooLarge, len(text), e.cfg.PayloadMTU)
	}
	f := e.builder.BuildBroadcast(e.seq.Next(), text)
	_, err := e.enqueueBuilt(context.Background(), f, false)
	return err
}

// SendFile fragments data and begins transmission to dst, returning the
// assigned transfer id.
func (e *Engine) SendFile(dst net.HardwareAddr, data []byte, reliable bool) (uint32, error) {
	if len(dst) != 6 {
		return 0, fmt.Errorf("engine: destination MAC must be 6 bytes, got %d", len(dst))
	}
	return e.sender.Send(context.Background(), protocol.MACFrom(dst), data, reliable)
}

// ListPeers returns a snapshot of the known peer table.
func (e *Engine) ListPeers() []presence.Peer {
	return e.presence.List()
}

// Events returns the channel the CLI/GUI collaborator pulls notifications
// from.
func (e *Engine) Events() <-chan event.Event {
	return e.events.C()
}

// LocalMAC returns this node's bound hardware address.
func (e *Engine) LocalMAC() net.HardwareAddr { return e.localMAC }

// Shutdown stops every goroutine, draining the transmit queue with a short
// deadline so an already-enqueued BROADCAST_OFFLINE has a chance to leave,
// fails any file transfer still in flight, then closes the endpoint.
// Idempotent.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		f := e.builder.BuildBroadcastOffline(e.seq.Next())
		_, _ = e.enqueueBuilt(context.Background(), f, false)

		e.tx.WaitDrained(e.cfg.ShutdownDrain)

		e.sender.FailAll("engine shutting down")
		e.assembler.FailAll("engine shutting down")

		e.cancel()
		_ = e.ep.Close()
		e.wg.Wait()
		e.events.Close()
	})
}
