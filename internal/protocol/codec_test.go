package protocol

import (
	"bytes"
	"testing"
)

var testKey = []byte("test-secret-key")

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		f    *Frame
	}{
		{
			name: "MSG reliable with text",
			f: &Frame{
				Dst:     [6]byte{1, 2, 3, 4, 5, 6},
				Src:     [6]byte{6, 5, 4, 3, 2, 1},
				Kind:    KindMSG,
				Flags:   FlagReliable,
				Seq:     42,
				Payload: []byte("hola"),
			},
		},
		{
			name: "ACK no payload beyond seq",
			f: &Frame{
				Dst:     [6]byte{1, 1, 1, 1, 1, 1},
				Src:     [6]byte{2, 2, 2, 2, 2, 2},
				Kind:    KindACK,
				Seq:     7,
				Payload: []byte{0, 0, 0, 5},
			},
		},
		{
			name: "FILE last fragment",
			f: &Frame{
				Dst:            Broadcast,
				Src:            [6]byte{9, 9, 9, 9, 9, 9},
				Kind:           KindFILE,
				Flags:          FlagReliable | FlagLastFragment,
				Seq:            1,
				TransferID:     123456,
				FragmentIndex:  3,
				TotalFragments: 4,
				Payload:        bytes.Repeat([]byte{0xAB}, 1400),
			},
		},
		{
			name: "empty payload",
			f: &Frame{
				Dst:  [6]byte{0, 0, 0, 0, 0, 1},
				Src:  [6]byte{0, 0, 0, 0, 0, 2},
				Kind: KindHELLO,
				Seq:  1,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Encode(tc.f, testKey)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoded, err := Decode(encoded, testKey)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if decoded.Dst != tc.f.Dst || decoded.Src != tc.f.Src {
				t.Errorf("MAC mismatch: got dst=%v src=%v, want dst=%v src=%v",
					decoded.Dst, decoded.Src, tc.f.Dst, tc.f.Src)
			}
			if decoded.Kind != tc.f.Kind {
				t.Errorf("Kind mismatch: got %v, want %v", decoded.Kind, tc.f.Kind)
			}
			if decoded.Flags != tc.f.Flags {
				t.Errorf("Flags mismatch: got %v, want %v", decoded.Flags, tc.f.Flags)
			}
			if decoded.Seq != tc.f.Seq {
				t.Errorf("Seq mismatch: got %d, want %d", decoded.Seq, tc.f.Seq)
			}
			if decoded.TransferID != tc.f.TransferID || decoded.FragmentIndex != tc.f.FragmentIndex ||
				decoded.TotalFragments != tc.f.TotalFragments {
				t.Errorf("file fields mismatch: got %+v, want %+v", decoded, tc.f)
			}
			if !bytes.Equal(decoded.Payload, tc.f.Payload) {
				t.Errorf("Payload mismatch: got %v, want %v", decoded.Payload, tc.f.Payload)
			}
		})
	}
}

func TestDecodeTooShort(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01},
		make([]byte, HeaderSize+CRCSize-1),
	}
	for _, raw := range cases {
		if _, err := Decode(raw, testKey); err == nil {
			t.Errorf("expected error decoding %d bytes, got nil", len(raw))
		}
	}
}

func TestDecodeBadEtherType(t *testing.T) {
	f := &Frame{Dst: [6]byte{1}, Src: [6]byte{2}, Kind: KindMSG, Seq: 1, Payload: []byte("x")}
	encoded, err := Encode(f, testKey)
	if err != nil {
		t.Fatal(err)
	}
	// Corrupt the ethertype field (bytes 12:14), then recompute nothing —
	// this must fail on the ethertype check before it ever reaches CRC.
	encoded[12] = 0x00
	encoded[13] = 0x00
	if _, err := Decode(encoded, testKey); err == nil {
		t.Fatal("expected ErrBadEtherType, got nil")
	}
}

func TestDecodeRejectsOverrunPayloadLength(t *testing.T) {
	f := &Frame{Dst: [6]byte{1}, Src: [6]byte{2}, Kind: KindMSG, Seq: 1}
	encoded, err := Encode(f, testKey)
	if err != nil {
		t.Fatal(err)
	}
	// Claim a huge payload length without actually growing the buffer.
	encoded[32] = 0xFF
	encoded[33] = 0xFF
	if _, err := Decode(encoded, testKey); err == nil {
		t.Fatal("expected ErrPayloadOverrun, got nil")
	}
}

// TestCRCCoverage verifies flipping any single bit outside the CRC field
// causes decode to fail: with a CRC mismatch, or earlier on the ethertype
// or payload-length check for bits inside those fields.
func TestCRCCoverage(t *testing.T) {
	f := &Frame{
		Dst:     [6]byte{1, 2, 3, 4, 5, 6},
		Src:     [6]byte{6, 5, 4, 3, 2, 1},
		Kind:    KindMSG,
		Flags:   FlagReliable,
		Seq:     99,
		Payload: []byte("flip me"),
	}
	encoded, err := Encode(f, testKey)
	if err != nil {
		t.Fatal(err)
	}

	crcFieldStart := len(encoded) - CRCSize
	for i := 0; i < crcFieldStart; i++ {
		for bit := 0; bit < 8; bit++ {
			corrupted := make([]byte, len(encoded))
			copy(corrupted, encoded)
			corrupted[i] ^= 1 << bit

			_, err := Decode(corrupted, testKey)
			if err == nil {
				t.Fatalf("byte %d bit %d: expected decode failure, got success", i, bit)
			}
		}
	}
}

func TestObfuscationInvolution(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	once := obfuscate(data, testKey)
	twice := obfuscate(once, testKey)
	if !bytes.Equal(twice, data) {
		t.Errorf("obfuscate is not an involution: got %v, want %v", twice, data)
	}
	if bytes.Equal(once, data) && len(testKey) > 0 {
		t.Errorf("obfuscate did not change the data at all")
	}
}

func TestSeqGenMonotonic(t *testing.T) {
	g := NewSeqGen()
	prev := g.Next()
	for i := 0; i < 1000; i++ {
		next := g.Next()
		if next <= prev {
			t.Fatalf("sequence number did not increase: prev=%d next=%d", prev, next)
		}
		prev = next
	}
}
