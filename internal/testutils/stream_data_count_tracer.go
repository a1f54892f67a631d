package testutils

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/logging"
)

// StreamDataCountTracer counts the stream data received in 1-RTT packets.
type StreamDataCountTracer interface {
	NewConnectionTracer(ctx context.Context, perspective logging.Perspective, id quic.ConnectionID) *logging.ConnectionTracer
	FirstByteChan() <-chan struct{}
	// ReceivedBytes is the highest stream offset received
	ReceivedBytes() int64
}

type streamDataCountTracer struct {
	receivedBytes atomic.Int64
	firstByteChan chan struct{}
	firstByteOnce sync.Once
}

func NewStreamDataCountTracer() StreamDataCountTracer {
	return &streamDataCountTracer{
		firstByteChan: make(chan struct{}),
	}
}

func (t *streamDataCountTracer) ReceivedBytes() int64 {
	return t.receivedBytes.Load()
}

func (t *streamDataCountTracer) FirstByteChan() <-chan struct{} {
	return t.firstByteChan
}

func (t *streamDataCountTracer) NewConnectionTracer(_ context.Context, _ logging.Perspective, _ quic.ConnectionID) *logging.ConnectionTracer {
	return &logging.ConnectionTracer{
		ReceivedShortHeaderPacket: func(_ *logging.ShortHeader, _ logging.ByteCount, _ logging.ECN, frames []logging.Frame) {
			for _, frame := range frames {
				switch frame := frame.(type) {
				case *logging.StreamFrame:
					if frame.Length > 0 {
						t.firstByteOnce.Do(func() { close(t.firstByteChan) })
					}
					end := int64(frame.Offset + frame.Length)
					for {
						current := t.receivedBytes.Load()
						if end <= current || t.receivedBytes.CompareAndSwap(current, end) {
							break
						}
					}
				}
			}
		},
	}
}
