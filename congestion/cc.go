package congestion

import (
	"fmt"
	"math"
	"strings"
	"time"

	"crperf-go/common"
)

// Algorithm selects the window adjustment used by the classic controller.
type Algorithm uint8

const (
	AlgorithmCubic Algorithm = iota
	AlgorithmNewReno
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmCubic:
		return "cubic"
	case AlgorithmNewReno:
		return "newreno"
	default:
		return "unknown"
	}
}

// ParseAlgorithm accepts "cubic", "newreno" and "reno".
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(s) {
	case "", "cubic":
		return AlgorithmCubic, nil
	case "newreno", "reno":
		return AlgorithmNewReno, nil
	default:
		return 0, fmt.Errorf("unknown congestion control algorithm %q", s)
	}
}

// InitialWindow as defined in RFC 9002 section 7.2.
func InitialWindow(maxDatagramSize int) int {
	return common.Min(10*maxDatagramSize, common.Max(14720, 2*maxDatagramSize))
}

// MinimumWindow as defined in RFC 9002 section 7.2.
func MinimumWindow(maxDatagramSize int) int {
	return 2 * maxDatagramSize
}

type windowAdjustment interface {
	// bytesForCwndIncrease returns the number of acked bytes in congestion avoidance
	// that allow the window to grow by one datagram.
	bytesForCwndIncrease(cwnd int, newAcked int, minRTT time.Duration, now time.Time) int
	// reduceCwnd returns the reduced window and acked byte counter after a congestion event.
	reduceCwnd(cwnd int, ackedBytes int) (int, int)
	onAppLimited()
}

type ccState uint8

const (
	ccStateSlowStart ccState = iota
	ccStateCongestionAvoidance
	ccStateRecovery
)

func (s ccState) String() string {
	switch s {
	case ccStateSlowStart:
		return "slow_start"
	case ccStateCongestionAvoidance:
		return "congestion_avoidance"
	case ccStateRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// classicCongestionControl implements slow start and congestion avoidance
// with a pluggable window adjustment, as in RFC 9002 appendix B.
type classicCongestionControl struct {
	algorithm       windowAdjustment
	hystart         *HyStart
	maxDatagramSize int

	state         ccState
	cwnd          int
	ssthresh      int
	bytesInFlight int
	ackedBytes    int
	// packets sent before recoveryStart do not trigger another reduction
	recoveryStart    int64
	largestSent      int64
	hasRecoveryStart bool
}

func newClassicCongestionControl(algorithm Algorithm, hystart *HyStart, maxDatagramSize int) *classicCongestionControl {
	var adjustment windowAdjustment
	switch algorithm {
	case AlgorithmNewReno:
		adjustment = &newReno{}
	default:
		adjustment = newCubic(maxDatagramSize)
	}
	return &classicCongestionControl{
		algorithm:       adjustment,
		hystart:         hystart,
		maxDatagramSize: maxDatagramSize,
		cwnd:            InitialWindow(maxDatagramSize),
		ssthresh:        math.MaxInt,
		largestSent:     -1,
	}
}

func (c *classicCongestionControl) Cwnd() int          { return c.cwnd }
func (c *classicCongestionControl) Ssthresh() int      { return c.ssthresh }
func (c *classicCongestionControl) BytesInFlight() int { return c.bytesInFlight }
func (c *classicCongestionControl) CwndInitial() int   { return InitialWindow(c.maxDatagramSize) }
func (c *classicCongestionControl) CwndMin() int       { return MinimumWindow(c.maxDatagramSize) }

// CwndAvail is the number of bytes that may be sent now.
func (c *classicCongestionControl) CwndAvail() int {
	return common.Max(c.cwnd-c.bytesInFlight, 0)
}

func (c *classicCongestionControl) SetCwnd(cwnd int) {
	c.cwnd = common.Max(cwnd, c.CwndMin())
}

func (c *classicCongestionControl) SetSsthresh(ssthresh int) {
	c.ssthresh = ssthresh
	if c.cwnd >= c.ssthresh && c.state == ccStateSlowStart {
		c.state = ccStateCongestionAvoidance
	}
}

func (c *classicCongestionControl) inSlowStart() bool {
	return c.cwnd < c.ssthresh && c.state == ccStateSlowStart
}

func (c *classicCongestionControl) appLimited() bool {
	if c.bytesInFlight >= c.cwnd {
		return false
	}
	if c.inSlowStart() {
		return c.bytesInFlight < c.cwnd/2
	}
	return c.bytesInFlight+2*c.maxDatagramSize < c.cwnd
}

func (c *classicCongestionControl) afterRecoveryStart(pkt *SentPacket) bool {
	return !c.hasRecoveryStart || pkt.PacketNumber >= c.recoveryStart
}

func (c *classicCongestionControl) OnPacketSent(pkt *SentPacket) {
	if pkt.PacketNumber > c.largestSent {
		c.largestSent = pkt.PacketNumber
	}
	if !pkt.AckEliciting {
		return
	}
	c.bytesInFlight += pkt.Size
	if c.inSlowStart() {
		c.hystart.OnSent(pkt.PacketNumber)
	}
}

func (c *classicCongestionControl) OnPacketsAcked(pkts []*SentPacket, rtt RTTSample, now time.Time) {
	appLimited := c.appLimited()
	newAcked := 0
	for _, pkt := range pkts {
		if !pkt.AckEliciting {
			continue
		}
		c.bytesInFlight = common.Max(c.bytesInFlight-pkt.Size, 0)
		if !c.afterRecoveryStart(pkt) {
			continue
		}
		if c.inSlowStart() {
			c.hystart.OnAck(pkt, rtt.Latest)
		}
		newAcked += pkt.Size
	}
	if newAcked == 0 {
		return
	}
	if c.state == ccStateRecovery {
		c.state = ccStateCongestionAvoidance
	}
	if appLimited {
		c.algorithm.onAppLimited()
		return
	}

	if c.inSlowStart() && c.hystart.InCongestionAvoidance() {
		c.SetSsthresh(c.cwnd)
	}
	if c.inSlowStart() {
		increase := common.Min(c.ssthresh-c.cwnd, newAcked)
		c.cwnd += c.hystart.CwndIncrease(increase)
		newAcked -= increase
		if c.cwnd >= c.ssthresh {
			c.state = ccStateCongestionAvoidance
		}
	}
	if newAcked == 0 {
		return
	}

	c.ackedBytes += newAcked
	bytesForIncrease := c.algorithm.bytesForCwndIncrease(c.cwnd, newAcked, rtt.Min, now)
	if bytesForIncrease <= 0 {
		bytesForIncrease = c.cwnd
	}
	for c.ackedBytes >= bytesForIncrease {
		c.ackedBytes -= bytesForIncrease
		c.cwnd += c.maxDatagramSize
	}
}

// OnPacketsLost returns true if the window was reduced.
func (c *classicCongestionControl) OnPacketsLost(pkts []*SentPacket) bool {
	var last *SentPacket
	for _, pkt := range pkts {
		if !pkt.AckEliciting {
			continue
		}
		c.bytesInFlight = common.Max(c.bytesInFlight-pkt.Size, 0)
		last = pkt
	}
	if last == nil {
		return false
	}
	return c.onCongestionEvent(last)
}

// OnECNCE returns true if the window was reduced.
func (c *classicCongestionControl) OnECNCE(largestAcked *SentPacket) bool {
	return c.onCongestionEvent(largestAcked)
}

// Discard removes a packet that will never be acknowledged or declared lost.
func (c *classicCongestionControl) Discard(pkt *SentPacket) {
	if pkt.AckEliciting {
		c.bytesInFlight = common.Max(c.bytesInFlight-pkt.Size, 0)
	}
}

func (c *classicCongestionControl) onCongestionEvent(pkt *SentPacket) bool {
	if !c.afterRecoveryStart(pkt) {
		return false
	}
	cwnd, ackedBytes := c.algorithm.reduceCwnd(c.cwnd, c.ackedBytes)
	c.cwnd = common.Max(cwnd, c.CwndMin())
	c.ackedBytes = ackedBytes
	c.ssthresh = c.cwnd
	c.recoveryStart = c.largestSent + 1
	c.hasRecoveryStart = true
	c.state = ccStateRecovery
	c.hystart.OnCongestion()
	return true
}

func (c *classicCongestionControl) String() string {
	return fmt.Sprintf("%s cwnd=%d ssthresh=%d inflight=%d %s", c.state, c.cwnd, c.ssthresh, c.bytesInFlight, c.hystart)
}
