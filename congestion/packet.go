package congestion

import "time"

// SentPacket is the congestion control view of a packet in flight.
type SentPacket struct {
	PacketNumber int64
	Size         int
	TimeSent     time.Time
	AckEliciting bool
}

// RTTSample holds the round trip estimates when an ack is processed.
type RTTSample struct {
	Latest   time.Duration
	Smoothed time.Duration
	Min      time.Duration
}

// Estimate returns the smoothed RTT, or the latest sample before one exists.
func (s RTTSample) Estimate() time.Duration {
	if s.Smoothed > 0 {
		return s.Smoothed
	}
	return s.Latest
}
