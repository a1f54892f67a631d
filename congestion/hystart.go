package congestion

import (
	"fmt"
	"time"

	"crperf-go/common"
)

// HyStart++ constants from RFC 9406.
const (
	hystartMinRTTThresh  = 4 * time.Millisecond
	hystartMaxRTTThresh  = 16 * time.Millisecond
	hystartMinRTTDivisor = 8
	hystartNRTTSample    = 8
	hystartCSSGrowthDiv  = 4
	hystartCSSRounds     = 5
)

type hystartState uint8

const (
	hystartSlowStart hystartState = iota
	hystartCSS
	hystartCongestionAvoidance
)

// HyStart decides when to leave slow start based on RTT increase (RFC 9406).
// A nil or disabled HyStart leaves slow start untouched.
type HyStart struct {
	enabled bool
	state   hystartState

	lastRoundMinRTT    time.Duration
	currentRoundMinRTT time.Duration
	rttSampleCount     int
	windowEnd          int64
	hasWindowEnd       bool

	cssBaselineMinRTT time.Duration
	cssRounds         int
}

// NewHyStart returns an enabled HyStart++ instance.
func NewHyStart() *HyStart {
	return &HyStart{
		enabled:            true,
		lastRoundMinRTT:    common.MaxDuration,
		currentRoundMinRTT: common.MaxDuration,
	}
}

func (h *HyStart) active() bool {
	return h != nil && h.enabled
}

// OnSent starts a new round if none is in progress.
func (h *HyStart) OnSent(pn int64) {
	if !h.active() || h.hasWindowEnd {
		return
	}
	h.windowEnd = pn
	h.hasWindowEnd = true
	h.lastRoundMinRTT = h.currentRoundMinRTT
	h.currentRoundMinRTT = common.MaxDuration
	h.rttSampleCount = 0
}

func (h *HyStart) roundFinished(pkt *SentPacket) bool {
	if h.hasWindowEnd && h.windowEnd <= pkt.PacketNumber {
		h.hasWindowEnd = false
		return true
	}
	return false
}

// OnAck takes an RTT sample for the acknowledged packet.
func (h *HyStart) OnAck(pkt *SentPacket, rtt time.Duration) {
	if !h.active() {
		return
	}
	h.rttSampleCount++
	h.currentRoundMinRTT = common.Min(h.currentRoundMinRTT, rtt)

	switch h.state {
	case hystartSlowStart:
		h.roundFinished(pkt)
		if h.rttSampleCount >= hystartNRTTSample &&
			h.currentRoundMinRTT != common.MaxDuration &&
			h.lastRoundMinRTT != common.MaxDuration {
			rttThresh := common.Clamp(h.lastRoundMinRTT/hystartMinRTTDivisor, hystartMinRTTThresh, hystartMaxRTTThresh)
			if h.currentRoundMinRTT >= h.lastRoundMinRTT+rttThresh {
				h.state = hystartCSS
				h.cssBaselineMinRTT = h.currentRoundMinRTT
				// a partial round counts towards the limit
				h.cssRounds = 0
				if h.hasWindowEnd {
					h.cssRounds = 1
				}
			}
		}
	case hystartCSS:
		if h.rttSampleCount >= hystartNRTTSample && h.currentRoundMinRTT < h.cssBaselineMinRTT {
			h.state = hystartSlowStart
			return
		}
		if h.roundFinished(pkt) {
			h.cssRounds++
			if h.cssRounds >= hystartCSSRounds {
				h.state = hystartCongestionAvoidance
			}
		}
	}
}

// OnCongestion leaves slow start for good.
func (h *HyStart) OnCongestion() {
	if !h.active() {
		return
	}
	h.state = hystartCongestionAvoidance
}

// CwndIncrease scales a slow start increase, CSS grows at a quarter of the rate.
func (h *HyStart) CwndIncrease(increase int) int {
	if h.active() && h.state == hystartCSS {
		return increase / hystartCSSGrowthDiv
	}
	return increase
}

func (h *HyStart) InCSS() bool {
	return h.active() && h.state == hystartCSS
}

func (h *HyStart) InCongestionAvoidance() bool {
	return h.active() && h.state == hystartCongestionAvoidance
}

func (h *HyStart) String() string {
	if !h.active() {
		return "hystart++ disabled"
	}
	switch h.state {
	case hystartCSS:
		return fmt.Sprintf("hystart++ css round %d baseline %s", h.cssRounds, h.cssBaselineMinRTT)
	case hystartCongestionAvoidance:
		return "hystart++ ca"
	default:
		return "hystart++ ss"
	}
}
