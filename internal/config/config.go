// Package config holds the tunables that shape QBolapp's engine behavior.
package config

import "time"

// Config stores every tunable that shapes wire and timing behavior,
// gathered from CLI flags or defaults.
type Config struct {
	// Interface is the name of the local link to bind, or "loop:<name>" to
	// use an in-memory loopback fabric instead of a real NIC.
	Interface string
	// UserName is the display name announced in HELLO/BROADCAST_ONLINE frames.
	UserName string
	// Debug enables verbose logging.
	Debug bool

	// PayloadMTU is the maximum cleartext payload per frame.
	PayloadMTU int
	// RetransmitInterval is how long an unacked reliable frame waits before
	// the ACK manager resends it.
	RetransmitInterval time.Duration
	// MaxAttempts is how many times a reliable frame is sent before it is
	// given up on and a DeliveryFailed event is raised.
	MaxAttempts int
	// AckTick is the ACK manager's sweep interval.
	AckTick time.Duration
	// HelloInterval is how often the presence manager announces itself.
	HelloInterval time.Duration
	// PresenceTimeout is how long a peer may stay silent before it is
	// marked Offline.
	PresenceTimeout time.Duration
	// PresenceGrace is the additional silence tolerated, past
	// PresenceTimeout, before an Offline peer is forgotten entirely.
	PresenceGrace time.Duration
	// TransferTimeout is how long an inbound file transfer may sit idle
	// before it is discarded and a TransferFailed event is raised.
	TransferTimeout time.Duration
	// SendWindow is the number of outstanding unacked fragments a reliable
	// outbound file transfer may have at once.
	SendWindow int
	// TxQueueCapacity bounds the transmit queue.
	TxQueueCapacity int
	// ObfuscationKey is the shared secret XORed into every frame's payload.
	ObfuscationKey []byte
	// ShutdownDrain bounds how long Shutdown waits for the transmit queue
	// to drain before closing the link endpoint.
	ShutdownDrain time.Duration
}

// Default returns a Config populated with the protocol's documented
// defaults.
func Default() Config {
	return Config{
		PayloadMTU:         1400,
		RetransmitInterval: 1000 * time.Millisecond,
		MaxAttempts:        5,
		AckTick:            200 * time.Millisecond,
		HelloInterval:      5 * time.Second,
		PresenceTimeout:    20 * time.Second,
		PresenceGrace:      60 * time.Second,
		TransferTimeout:    60 * time.Second,
		SendWindow:         4,
		TxQueueCapacity:    1024,
		ObfuscationKey:     []byte("qbolapp-shared-secret"),
		ShutdownDrain:      500 * time.Millisecond,
	}
}
