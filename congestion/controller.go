package congestion

import (
	"context"
	"sync"
	"time"

	"github.com/quic-go/quic-go/logging"

	"crperf-go/common"
	"crperf-go/metrics"
)

// DefaultStallTimeout bounds how long a writer waits for window or pacing credit.
const DefaultStallTimeout = 200 * time.Millisecond

// Snapshot of the sender state.
type Snapshot struct {
	Cwnd                   int
	Ssthresh               int
	BytesInFlight          int
	Phase                  Phase
	ResumeEnabled          bool
	SmoothedRTT            time.Duration
	MinRTT                 time.Duration
	TransportCwnd          int
	TransportBytesInFlight int
}

// Controller drives a PacketSender from the events of a quic-go connection
// and gates application writes on its window and pacer.
// All methods are safe for concurrent use.
type Controller struct {
	mutex sync.Mutex

	sender       *PacketSender
	maxDatagram  int
	stallTimeout time.Duration
	logger       common.Logger

	sent     map[int64]*SentPacket
	reserved int
	rtt      RTTSample
	ecnCE    uint64

	transportCwnd          int
	transportBytesInFlight int
	maxTransportCwnd       int

	algorithm Algorithm
	// nil until AttachTransport, then only touched from tracer callbacks
	transport           *TransportWindow
	transportConfigured bool
	pendingWindows      []WindowChange

	// closed and replaced on every state change
	changed chan struct{}
	closed  bool
}

func NewController(config *SenderConfig) *Controller {
	config = config.Populate()
	c := &Controller{
		sender:       NewPacketSender(config, time.Now()),
		maxDatagram:  config.MaxDatagramSize,
		stallTimeout: DefaultStallTimeout,
		logger:       config.Logger,
		sent:         map[int64]*SentPacket{},
		changed:      make(chan struct{}),
		algorithm:    config.Algorithm,
	}
	c.sender.SetWindowChangeHandler(func(change WindowChange) {
		if c.transport != nil {
			c.pendingWindows = append(c.pendingWindows, change)
		}
	})
	return c
}

// AttachTransport makes the controller apply the windows of careful resume to w.
// The windows are written from the UpdatedMetrics callback, which quic-go
// invokes after its own congestion updates of an ack or a sent packet.
// Only the first window attached is used.
func (c *Controller) AttachTransport(w *TransportWindow) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.transport == nil {
		c.transport = w
	}
}

func (c *Controller) TransportAttached() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.transport != nil
}

func (c *Controller) applyTransportLocked() {
	w := c.transport
	if !c.transportConfigured {
		c.transportConfigured = true
		if c.algorithm == AlgorithmNewReno && !w.SetReno(true) {
			c.logger.Infof("transport does not support newreno, using its default")
		}
	}
	for _, change := range c.pendingWindows {
		switch change.Phase {
		case PhaseNormal:
			if change.Cwnd > 0 {
				w.SetCwnd(change.Cwnd)
			}
			if change.Ssthresh > 0 {
				w.SetSsthresh(change.Ssthresh)
			} else {
				w.Release()
			}
		default:
			// no window growth while the jumped window is unvalidated
			if change.Cwnd > 0 {
				w.Hold(change.Cwnd)
			}
		}
		c.logger.Debugf("transport window in %s: cwnd %d, ssthresh %d", change.Phase, w.Cwnd(), w.Ssthresh())
	}
	c.pendingWindows = c.pendingWindows[:0]
}

// SetStallTimeout must be called before the connection is started.
func (c *Controller) SetStallTimeout(timeout time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stallTimeout = timeout
}

func (c *Controller) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// Tracer feeds 1-RTT packet events into the controller.
func (c *Controller) Tracer() *logging.ConnectionTracer {
	return &logging.ConnectionTracer{
		SentShortHeaderPacket: func(hdr *logging.ShortHeader, size logging.ByteCount, _ logging.ECN, _ *logging.AckFrame, frames []logging.Frame) {
			c.OnPacketSent(int64(hdr.PacketNumber), int(size), isAckEliciting(frames), time.Now())
		},
		ReceivedShortHeaderPacket: func(_ *logging.ShortHeader, _ logging.ByteCount, _ logging.ECN, frames []logging.Frame) {
			for _, f := range frames {
				if ack, ok := f.(*logging.AckFrame); ok {
					c.onAckFrame(ack, time.Now())
				}
			}
		},
		AcknowledgedPacket: func(encLevel logging.EncryptionLevel, pn logging.PacketNumber) {
			if encLevel == logging.Encryption1RTT {
				c.OnPacketAcked(int64(pn), time.Now())
			}
		},
		LostPacket: func(encLevel logging.EncryptionLevel, pn logging.PacketNumber, _ logging.PacketLossReason) {
			if encLevel == logging.Encryption1RTT {
				c.OnPacketLost(int64(pn), time.Now())
			}
		},
		UpdatedMetrics: func(rttStats *logging.RTTStats, cwnd, bytesInFlight logging.ByteCount, _ int) {
			c.OnMetricsUpdated(RTTSample{
				Latest:   rttStats.LatestRTT(),
				Smoothed: rttStats.SmoothedRTT(),
				Min:      rttStats.MinRTT(),
			}, int(cwnd), int(bytesInFlight))
		},
		Close: c.Close,
	}
}

func isAckEliciting(frames []logging.Frame) bool {
	for _, f := range frames {
		switch f.(type) {
		case *logging.AckFrame, *logging.ConnectionCloseFrame:
		default:
			return true
		}
	}
	return false
}

func (c *Controller) OnPacketSent(pn int64, size int, ackEliciting bool, now time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}
	pkt := &SentPacket{
		PacketNumber: pn,
		Size:         size,
		TimeSent:     now,
		AckEliciting: ackEliciting,
	}
	if ackEliciting {
		c.sent[pn] = pkt
		c.reserved = common.Max(c.reserved-size, 0)
	}
	c.sender.OnPacketSent(pkt, c.rtt.Estimate())
}

func (c *Controller) OnPacketAcked(pn int64, now time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	pkt, ok := c.sent[pn]
	if !ok || c.closed {
		return
	}
	delete(c.sent, pn)
	c.sender.OnPacketsAcked([]*SentPacket{pkt}, c.rtt, now)
	c.notifyLocked()
}

func (c *Controller) OnPacketLost(pn int64, now time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	pkt, ok := c.sent[pn]
	if !ok || c.closed {
		return
	}
	delete(c.sent, pn)
	if c.sender.OnPacketsLost([]*SentPacket{pkt}, now) {
		c.logger.Debugf("congestion event: %s", c.sender)
	}
	c.notifyLocked()
}

// onAckFrame reacts to a rising ECN-CE count reported by the peer.
func (c *Controller) onAckFrame(ack *logging.AckFrame, now time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed || ack.ECNCE <= c.ecnCE {
		return
	}
	c.ecnCE = ack.ECNCE
	largest, ok := c.sent[int64(ack.LargestAcked())]
	if !ok {
		largest = &SentPacket{PacketNumber: int64(ack.LargestAcked())}
	}
	c.sender.OnECNCE(largest, now)
	c.notifyLocked()
}

func (c *Controller) OnMetricsUpdated(rtt RTTSample, transportCwnd int, transportBytesInFlight int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.rtt = rtt
	if c.transport != nil && !c.closed {
		c.applyTransportLocked()
		transportCwnd = c.transport.Cwnd()
	}
	c.transportCwnd = transportCwnd
	c.transportBytesInFlight = transportBytesInFlight
	c.maxTransportCwnd = common.Max(c.maxTransportCwnd, transportCwnd)
}

// Close releases all waiting writers, later writes are not gated.
func (c *Controller) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for pn, pkt := range c.sent {
		c.sender.Discard(pkt)
		delete(c.sent, pn)
	}
	c.notifyLocked()
}

// readyLocked returns the number of bytes that may be written now,
// or when to check again.
func (c *Controller) readyLocked(n int, now time.Time) (int, time.Time) {
	if c.closed {
		return n, time.Time{}
	}
	if next, ok := c.sender.NextPaced(c.rtt.Estimate()); ok && next.After(now) {
		return 0, next
	}
	avail := c.sender.CwndAvail() - c.reserved
	if avail < common.Min(n, c.maxDatagram) {
		return 0, time.Time{}
	}
	return common.Min(n, avail), time.Time{}
}

// Wait blocks until up to n bytes may be written and returns that number.
// If neither window nor pacing credit becomes available within the stall timeout,
// n is returned so that untracked packets never block a transfer.
func (c *Controller) Wait(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	c.mutex.Lock()
	deadline := time.Now().Add(c.stallTimeout)
	c.mutex.Unlock()
	for {
		now := time.Now()
		c.mutex.Lock()
		allowed, next := c.readyLocked(n, now)
		if allowed > 0 {
			c.reserved += allowed
			c.mutex.Unlock()
			return allowed, nil
		}
		if !now.Before(deadline) {
			c.reserved = 0
			c.mutex.Unlock()
			metrics.WriteStalls.Inc()
			c.logger.Debugf("write stalled for %s: %s", c.stallTimeout, c.sender)
			return n, nil
		}
		changed := c.changed
		c.mutex.Unlock()

		wait := deadline.Sub(now)
		if !next.IsZero() && next.Sub(now) < wait {
			wait = next.Sub(now)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-changed:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return Snapshot{
		Cwnd:                   c.sender.Cwnd(),
		Ssthresh:               c.sender.Ssthresh(),
		BytesInFlight:          c.sender.BytesInFlight(),
		Phase:                  c.sender.Resume().Phase(),
		ResumeEnabled:          c.sender.Resume().Enabled(),
		SmoothedRTT:            c.rtt.Smoothed,
		MinRTT:                 c.rtt.Min,
		TransportCwnd:          c.transportCwnd,
		TransportBytesInFlight: c.transportBytesInFlight,
	}
}

// Observed returns the parameters to seed the next connection with:
// the minimum RTT and the largest congestion window of the transport.
// ok is false if nothing was measured yet.
func (c *Controller) Observed() (SavedParameters, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	p := SavedParameters{
		RTT:     c.rtt.Min,
		Cwnd:    c.maxTransportCwnd,
		Enabled: c.rtt.Min > 0 && c.maxTransportCwnd > 0,
	}
	return p, p.Enabled
}

// SaveParameters writes the observed parameters to path.
func (c *Controller) SaveParameters(path string) error {
	p, ok := c.Observed()
	if !ok {
		return ErrSeedMissing
	}
	return SaveParameters(path, p)
}
