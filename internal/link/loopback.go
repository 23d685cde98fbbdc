package link

import (
	"net"
	"sync"
)

// Fabric is an in-memory Ethernet segment: every frame Send by one member
// is delivered to the Recv queue of every other member, exactly as a real
// shared-medium or switched LAN would deliver it. It backs both the test
// suite and the CLI's "loop:<name>" pseudo-interface for single-host demos.
type Fabric struct {
	mu      sync.Mutex
	members map[string]*LoopbackEndpoint
}

// NewFabric creates an empty loopback LAN segment.
func NewFabric() *Fabric {
	return &Fabric{members: make(map[string]*LoopbackEndpoint)}
}

// Join attaches a new endpoint with the given MAC to the fabric.
func (f *Fabric) Join(mac net.HardwareAddr) *LoopbackEndpoint {
	f.mu.Lock()
	defer f.mu.Unlock()

	ep := &LoopbackEndpoint{
		mac:    append(net.HardwareAddr(nil), mac...),
		fabric: f,
		inbox:  make(chan []byte, 256),
		done:   make(chan struct{}),
	}
	f.members[mac.String()] = ep
	return ep
}

func (f *Fabric) leave(mac net.HardwareAddr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members, mac.String())
}

func (f *Fabric) broadcast(from net.HardwareAddr, frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := append([]byte(nil), frame...)
	for key, ep := range f.members {
		if key == from.String() {
			continue
		}
		select {
		case ep.inbox <- cp:
		default:
			// Slow reader on a loopback fabric — drop rather than block
			// the sender, matching how a real NIC would drop under
			// backpressure.
		}
	}
}

// LoopbackEndpoint is a Fabric member implementing Endpoint.
type LoopbackEndpoint struct {
	mac    net.HardwareAddr
	fabric *Fabric
	inbox  chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func (e *LoopbackEndpoint) Send(frame []byte) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	e.fabric.broadcast(e.mac, frame)
	return nil
}

func (e *LoopbackEndpoint) Recv() ([]byte, error) {
	select {
	case frame := <-e.inbox:
		return frame, nil
	case <-e.done:
		return nil, ErrClosed
	}
}

func (e *LoopbackEndpoint) LocalMAC() net.HardwareAddr {
	return e.mac
}

func (e *LoopbackEndpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		e.fabric.leave(e.mac)
	})
	return nil
}
