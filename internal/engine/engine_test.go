package engine

import (
	"testing"
	"time"

	"github.com/qbolapp/qbolapp/internal/config"
	"github.com/qbolapp/qbolapp/internal/event"
)

// fastConfig scales every timer down so end-to-end tests over a loopback
// fabric run in milliseconds instead of the production defaults.
func fastConfig(iface, name string) config.Config {
	cfg := config.Default()
	cfg.Interface = iface
	cfg.UserName = name
	cfg.PayloadMTU = 16
	cfg.RetransmitInterval = 20 * time.Millisecond
	cfg.AckTick = 5 * time.Millisecond
	cfg.HelloInterval = 30 * time.Millisecond
	cfg.PresenceTimeout = 40 * time.Millisecond
	cfg.PresenceGrace = 40 * time.Millisecond
	cfg.TransferTimeout = 200 * time.Millisecond
	cfg.ShutdownDrain = 50 * time.Millisecond
	return cfg
}

func waitForEvent(t *testing.T, ch <-chan event.Event, timeout time.Duration, match func(event.Event) bool) event.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-ch:
			if match(e) {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for expected event")
			return nil
		}
	}
}

func TestReliableMessageDeliveryAndAck(t *testing.T) {
	fabric := "msg-" + t.Name()
	e1, err := Start(fastConfig("loop:"+fabric, "alice"))
	if err != nil {
		t.Fatalf("Start e1: %v", err)
	}
	defer e1.Shutdown()

	e2, err := Start(fastConfig("loop:"+fabric, "bob"))
	if err != nil {
		t.Fatalf("Start e2: %v", err)
	}
	defer e2.Shutdown()

	waitForEvent(t, e1.Events(), time.Second, func(e event.Event) bool {
		_, ok := e.(event.PeerOnline)
		return ok
	})

	if _, err := e2.SendMessage(e1.LocalMAC(), "hello alice", true); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	got := waitForEvent(t, e1.Events(), time.Second, func(e event.Event) bool {
		_, ok := e.(event.MessageReceived)
		return ok
	})
	mr := got.(event.MessageReceived)
	if mr.Text != "hello alice" {
		t.Fatalf("MessageReceived.Text = %q, want %q", mr.Text, "hello alice")
	}

	deadline := time.Now().Add(time.Second)
	for e2.reliability.Pending() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sender still has %d unacked records, want 0 once the ACK arrives", e2.reliability.Pending())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPresenceOfflineOnGracefulShutdown(t *testing.T) {
	fabric := "presence-" + t.Name()
	e1, err := Start(fastConfig("loop:"+fabric, "alice"))
	if err != nil {
		t.Fatalf("Start e1: %v", err)
	}
	defer e1.Shutdown()

	e2, err := Start(fastConfig("loop:"+fabric, "bob"))
	if err != nil {
		t.Fatalf("Start e2: %v", err)
	}

	waitForEvent(t, e1.Events(), time.Second, func(e event.Event) bool {
		_, ok := e.(event.PeerOnline)
		return ok
	})

	e2.Shutdown()

	waitForEvent(t, e1.Events(), time.Second, func(e event.Event) bool {
		_, ok := e.(event.PeerOffline)
		return ok
	})
}

func TestReliableFileTransferCompletesOnBothSides(t *testing.T) {
	fabric := "file-" + t.Name()
	e1, err := Start(fastConfig("loop:"+fabric, "alice"))
	if err != nil {
		t.Fatalf("Start e1: %v", err)
	}
	defer e1.Shutdown()

	e2, err := Start(fastConfig("loop:"+fabric, "bob"))
	if err != nil {
		t.Fatalf("Start e2: %v", err)
	}
	defer e2.Shutdown()

	waitForEvent(t, e1.Events(), time.Second, func(e event.Event) bool {
		_, ok := e.(event.PeerOnline)
		return ok
	})

	blob := []byte("this is a small file blob for the reliable transfer test")

	transferID, err := e2.SendFile(e1.LocalMAC(), blob, true)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}

	gotOnReceiver := waitForEvent(t, e1.Events(), 2*time.Second, func(e event.Event) bool {
		tc, ok := e.(event.TransferCompleted)
		return ok && !tc.Outbound
	})
	tc := gotOnReceiver.(event.TransferCompleted)
	if string(tc.Data) != string(blob) {
		t.Fatalf("reassembled data = %q, want %q", tc.Data, blob)
	}

	gotOnSender := waitForEvent(t, e2.Events(), 2*time.Second, func(e event.Event) bool {
		tc, ok := e.(event.TransferCompleted)
		return ok && tc.Outbound && tc.TransferID == transferID
	})
	if gotOnSender == nil {
		t.Fatal("expected outbound TransferCompleted on sender")
	}
}
