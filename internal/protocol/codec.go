package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// Decode failure sentinels: malformed-frame conditions and a distinct CRC
// mismatch sentinel.
var (
	ErrTooShort        = errors.New("protocol: frame shorter than fixed header")
	ErrBadEtherType    = errors.New("protocol: unexpected ethertype")
	ErrPayloadOverrun  = errors.New("protocol: declared payload length exceeds buffer")
	ErrCRCMismatch     = errors.New("protocol: crc mismatch")
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds configured MTU")
)

// MalformedFrame reports whether err represents a locally-dropped decode
// failure (as opposed to ErrCRCMismatch, which is its own sentinel).
func MalformedFrame(err error) bool {
	return errors.Is(err, ErrTooShort) || errors.Is(err, ErrBadEtherType) || errors.Is(err, ErrPayloadOverrun)
}

// Encode serializes f into the obfuscated, CRC-checked wire format. key is
// the shared obfuscation secret.
func Encode(f *Frame, key []byte) ([]byte, error) {
	if len(f.Payload) > 0xFFFF {
		return nil, ErrPayloadTooLarge
	}

	body := obfuscate(f.Payload, key)
	buf := make([]byte, HeaderSize+len(body)+CRCSize)

	copy(buf[0:6], f.Dst[:])
	copy(buf[6:12], f.Src[:])
	binary.BigEndian.PutUint16(buf[12:14], EtherType)
	buf[14] = byte(f.Kind)
	buf[15] = f.Flags
	binary.BigEndian.PutUint32(buf[16:20], f.Seq)
	binary.BigEndian.PutUint32(buf[20:24], f.TransferID)
	binary.BigEndian.PutUint32(buf[24:28], f.FragmentIndex)
	binary.BigEndian.PutUint32(buf[28:32], f.TotalFragments)
	binary.BigEndian.PutUint16(buf[32:34], uint16(len(body)))
	copy(buf[HeaderSize:HeaderSize+len(body)], body)

	crc := crc32.ChecksumIEEE(buf[:HeaderSize+len(body)])
	binary.BigEndian.PutUint32(buf[HeaderSize+len(body):], crc)

	return buf, nil
}

// Decode parses raw into a Frame, validating ethertype, bounds and CRC
// before trusting any payload-length-derived slicing.
func Decode(raw []byte, key []byte) (*Frame, error) {
	if len(raw) < HeaderSize+CRCSize {
		return nil, ErrTooShort
	}

	ethertype := binary.BigEndian.Uint16(raw[12:14])
	if ethertype != EtherType {
		return nil, fmt.Errorf("%w: got 0x%04X", ErrBadEtherType, ethertype)
	}

	payloadLen := int(binary.BigEndian.Uint16(raw[32:34]))
	expected := HeaderSize + payloadLen + CRCSize
	if len(raw) < expected {
		return nil, ErrPayloadOverrun
	}

	crcRecv := binary.BigEndian.Uint32(raw[HeaderSize+payloadLen : expected])
	crcCalc := crc32.ChecksumIEEE(raw[:HeaderSize+payloadLen])
	if crcRecv != crcCalc {
		return nil, ErrCRCMismatch
	}

	f := &Frame{
		Kind:           Kind(raw[14]),
		Flags:          raw[15],
		Seq:            binary.BigEndian.Uint32(raw[16:20]),
		TransferID:     binary.BigEndian.Uint32(raw[20:24]),
		FragmentIndex:  binary.BigEndian.Uint32(raw[24:28]),
		TotalFragments: binary.BigEndian.Uint32(raw[28:32]),
	}
	copy(f.Dst[:], raw[0:6])
	copy(f.Src[:], raw[6:12])

	if payloadLen > 0 {
		f.Payload = obfuscate(raw[HeaderSize:HeaderSize+payloadLen], key)
	}

	return f, nil
}
