package presence

import (
	"testing"
	"time"

	"github.com/qbolapp/qbolapp/internal/event"
)

var testMAC = [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}

func drainEvents(t *testing.T, sink *event.Sink, want ...event.Event) {
	t.Helper()
	for i, w := range want {
		select {
		case got := <-sink.C():
			if got != w {
				t.Fatalf("event %d = %#v, want %#v", i, got, w)
			}
		default:
			t.Fatalf("expected event %d (%#v), sink was empty", i, w)
		}
	}
}

func TestMarkOnlineRaisesEventOnce(t *testing.T) {
	sink := event.NewSink()
	m := NewManager(time.Minute, time.Minute, sink)

	m.MarkOnline(testMAC, "alice")
	m.MarkOnline(testMAC, "alice") // already online: no second event

	drainEvents(t, sink, event.PeerOnline{MAC: testMAC, Name: "alice"})

	select {
	case e := <-sink.C():
		t.Fatalf("unexpected second event %#v", e)
	default:
	}

	peers := m.List()
	if len(peers) != 1 || peers[0].State != Online {
		t.Fatalf("List() = %#v, want one online peer", peers)
	}
}

func TestSweepTransitionsOfflineThenRemoves(t *testing.T) {
	sink := event.NewSink()
	m := NewManager(10*time.Millisecond, 10*time.Millisecond, sink)
	m.MarkOnline(testMAC, "bob")
	drainEvents(t, sink, event.PeerOnline{MAC: testMAC, Name: "bob"})

	time.Sleep(20 * time.Millisecond)
	m.Sweep()

	drainEvents(t, sink, event.PeerOffline{MAC: testMAC})

	if peers := m.List(); len(peers) != 1 || peers[0].State != Offline {
		t.Fatalf("List() after timeout = %#v, want one offline peer", peers)
	}

	time.Sleep(20 * time.Millisecond)
	m.Sweep()

	if peers := m.List(); len(peers) != 0 {
		t.Fatalf("List() after grace = %#v, want no peers", peers)
	}
}

func TestTouchRefreshesLastSeenAndRevivesOfflinePeer(t *testing.T) {
	sink := event.NewSink()
	m := NewManager(time.Hour, time.Hour, sink)
	m.MarkOnline(testMAC, "carol")
	drainEvents(t, sink, event.PeerOnline{MAC: testMAC, Name: "carol"})

	m.MarkOffline(testMAC)
	drainEvents(t, sink, event.PeerOffline{MAC: testMAC})

	m.Touch(testMAC)
	drainEvents(t, sink, event.PeerOnline{MAC: testMAC, Name: "carol"})

	if peers := m.List(); len(peers) != 1 || peers[0].State != Online {
		t.Fatalf("List() after Touch = %#v, want one online peer", peers)
	}
}
