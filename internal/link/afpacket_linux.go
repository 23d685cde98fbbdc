//go:build linux

package link

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/google/gopacket/afpacket"
)

// AFPacketEndpoint is a real raw-Ethernet Endpoint backed by AF_PACKET, via
// gopacket/afpacket. It sends and receives whatever bytes it is given —
// EtherType filtering and MAC-address filtering are the receiver's job.
type AFPacketEndpoint struct {
	tp       *afpacket.TPacket
	localMAC net.HardwareAddr
}

// NewAFPacketEndpoint opens a raw socket bound to iface. It returns
// ErrInterfaceUnavailable if the interface does not exist and
// ErrPermissionDenied if the process lacks CAP_NET_RAW.
func NewAFPacketEndpoint(iface string) (*AFPacketEndpoint, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInterfaceUnavailable, iface, err)
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(iface),
		afpacket.OptFrameSize(65536),
		afpacket.OptBlockSize(65536*8),
		afpacket.OptNumBlocks(4),
	)
	if err != nil {
		if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EPERM) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInterfaceUnavailable, iface, err)
	}

	return &AFPacketEndpoint{tp: tp, localMAC: ifi.HardwareAddr}, nil
}

func (e *AFPacketEndpoint) Send(frame []byte) error {
	return e.tp.WritePacketData(frame)
}

func (e *AFPacketEndpoint) Recv() ([]byte, error) {
	data, _, err := e.tp.ZeroCopyReadPacketData()
	if err != nil {
		return nil, err
	}
	// The underlying buffer is reused by the kernel ring on the next read;
	// copy out before handing it to the receiver goroutine.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (e *AFPacketEndpoint) LocalMAC() net.HardwareAddr {
	return e.localMAC
}

func (e *AFPacketEndpoint) Close() error {
	e.tp.Close()
	return nil
}
