package dispatch

import (
	"context"
	"errors"
	"net"

	"github.com/qbolapp/qbolapp/internal/link"
	"github.com/qbolapp/qbolapp/internal/protocol"
	"github.com/qbolapp/qbolapp/internal/util"
)

// RouterInputCapacity bounds the queue between the receiver and the router.
const RouterInputCapacity = 1024

// RunReceiver reads frames from ep in a loop, decodes them, and pushes
// well-formed frames addressed to localMAC or the broadcast address onto
// input. Decode failures increment stats.FramesDropped and are otherwise
// swallowed — the receiver never terminates on a single bad frame.
func RunReceiver(ctx context.Context, ep link.Endpoint, localMAC net.HardwareAddr, key []byte, input chan<- *protocol.Frame, stats *util.Stats) {
	local := protocol.MACFrom(localMAC)

	for {
		raw, err := ep.Recv()
		if err != nil {
			if errors.Is(err, link.ErrClosed) {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
				util.LogDebug("receiver: endpoint read error: %v", err)
				continue
			}
		}

		f, err := protocol.Decode(raw, key)
		if err != nil {
			stats.AddDropped()
			util.LogDebug("receiver: dropping malformed frame: %v", err)
			continue
		}

		if f.Dst != local && f.Dst != protocol.Broadcast {
			continue
		}

		stats.AddRecv(len(raw))

		select {
		case input <- f:
		case <-ctx.Done():
			return
		}
	}
}
