package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// Stats is the process-wide frame counter for one running engine.
type Stats struct {
	FramesSent    atomic.Int64
	FramesRecv    atomic.Int64
	BytesSent     atomic.Int64
	BytesRecv     atomic.Int64
	FramesDropped atomic.Int64 // MalformedFrame / CrcMismatch discards
	Retransmits   atomic.Int64
}

// NewStats creates an empty Stats.
func NewStats() *Stats { return &Stats{} }

func (s *Stats) AddSent(n int)  { s.FramesSent.Add(1); s.BytesSent.Add(int64(n)) }
func (s *Stats) AddRecv(n int)  { s.FramesRecv.Add(1); s.BytesRecv.Add(int64(n)) }
func (s *Stats) AddDropped()    { s.FramesDropped.Add(1) }
func (s *Stats) AddRetransmit() { s.Retransmits.Add(1) }

// StartReporter launches a goroutine that logs throughput every interval.
// It stops when ctx is cancelled.
func (s *Stats) StartReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prevSent, prevRecv int64
		for {
			select {
			case <-ticker.C:
				sent := s.BytesSent.Load()
				recv := s.BytesRecv.Load()
				secs := interval.Seconds()

				outS := float64(sent-prevSent) / secs
				inS := float64(recv-prevRecv) / secs

				if outS > 1 || inS > 1 || s.FramesDropped.Load() > 0 {
					pterm.DefaultLogger.Debug(formatStats(inS, outS, s.FramesDropped.Load(), s.Retransmits.Load()))
				}

				prevSent = sent
				prevRecv = recv

			case <-ctx.Done():
				return
			}
		}
	}()
}

var byteUnits = []string{"B", "KiB", "MiB", "GiB"}

func formatBytes(b float64) string {
	unitIdx := 0
	for b > 99 && unitIdx < len(byteUnits)-1 {
		b /= 1024
		unitIdx++
	}
	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

func formatStats(inS, outS float64, dropped, retransmits int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | dropped=%d retransmits=%d",
		formatBytes(inS), formatBytes(outS), dropped, retransmits)
}
