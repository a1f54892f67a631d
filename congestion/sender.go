package congestion

import (
	"fmt"
	"time"

	"crperf-go/common"
)

// number of packets the pacer lets through in a burst
const pacingBurstSize = 2

type SenderConfig struct {
	Algorithm       Algorithm
	Pacing          bool
	HyStart         bool
	MaxDatagramSize int
	// nil disables careful resume
	Saved    *SavedParameters
	Bounds   Bounds
	Recorder Recorder
	Logger   common.Logger
}

// Populate fills unset fields with defaults, it returns a new config.
func (c *SenderConfig) Populate() *SenderConfig {
	if c == nil {
		c = &SenderConfig{}
	}
	populated := *c
	if populated.MaxDatagramSize == 0 {
		populated.MaxDatagramSize = common.DefaultMaxDatagramSize
	}
	populated.Bounds = populated.Bounds.Populate(populated.MaxDatagramSize)
	if populated.Logger == nil {
		populated.Logger = common.DefaultLogger
	}
	return &populated
}

// WindowChange is a window decided by careful resume, 0 means unchanged.
type WindowChange struct {
	Phase    Phase
	Cwnd     int
	Ssthresh int
}

// PacketSender combines congestion control, pacing and careful resume.
// It is not safe for concurrent use.
type PacketSender struct {
	cc     *classicCongestionControl
	pacer  *Pacer
	resume *Resume

	onWindowChange func(WindowChange)
}

func NewPacketSender(config *SenderConfig, now time.Time) *PacketSender {
	config = config.Populate()
	var hystart *HyStart
	if config.HyStart {
		hystart = NewHyStart()
	}
	mds := config.MaxDatagramSize
	return &PacketSender{
		cc:     newClassicCongestionControl(config.Algorithm, hystart, mds),
		pacer:  NewPacer(config.Pacing, now, pacingBurstSize*mds, mds),
		resume: NewResume(config.Saved, config.Bounds, config.Recorder, config.Logger),
	}
}

func (s *PacketSender) Cwnd() int          { return s.cc.Cwnd() }
func (s *PacketSender) CwndAvail() int     { return s.cc.CwndAvail() }
func (s *PacketSender) CwndInitial() int   { return s.cc.CwndInitial() }
func (s *PacketSender) BytesInFlight() int { return s.cc.BytesInFlight() }
func (s *PacketSender) Ssthresh() int      { return s.cc.Ssthresh() }
func (s *PacketSender) Resume() *Resume    { return s.resume }

// SetWindowChangeHandler registers f to be called whenever careful resume
// changes the window or its phase.
func (s *PacketSender) SetWindowChangeHandler(f func(WindowChange)) {
	s.onWindowChange = f
}

func (s *PacketSender) windowChanged(before Phase, nextCwnd int, nextSsthresh int) {
	phase := s.resume.Phase()
	if s.onWindowChange == nil || (phase == before && nextCwnd == 0 && nextSsthresh == 0) {
		return
	}
	s.onWindowChange(WindowChange{Phase: phase, Cwnd: nextCwnd, Ssthresh: nextSsthresh})
}

func (s *PacketSender) OnPacketSent(pkt *SentPacket, rtt time.Duration) {
	if pkt.AckEliciting {
		s.pacer.Spend(pkt.TimeSent, rtt, s.cc.Cwnd(), pkt.Size)
	}
	s.cc.OnPacketSent(pkt)
	s.resume.OnSent(s.cc.Cwnd(), pkt.PacketNumber, pkt.TimeSent)
}

// OnPacketsAcked lets careful resume adjust the window before the controller grows it.
func (s *PacketSender) OnPacketsAcked(pkts []*SentPacket, rtt RTTSample, now time.Time) {
	for _, pkt := range pkts {
		before := s.resume.Phase()
		nextCwnd, nextSsthresh := s.resume.OnAck(pkt, rtt.Estimate(), s.cc.BytesInFlight(), s.cc.Cwnd(), s.cc.CwndInitial(), now)
		if nextCwnd > 0 {
			s.cc.SetCwnd(nextCwnd)
			s.pacer.Spend(now, rtt.Estimate(), nextCwnd, 0)
		}
		if nextSsthresh > 0 {
			s.cc.SetSsthresh(nextSsthresh)
		}
		s.windowChanged(before, nextCwnd, nextSsthresh)
	}
	s.cc.OnPacketsAcked(pkts, rtt, now)
}

// OnPacketsLost returns true if the window was reduced.
func (s *PacketSender) OnPacketsLost(pkts []*SentPacket, now time.Time) bool {
	reduced := s.cc.OnPacketsLost(pkts)
	if reduced {
		s.applyResume(TriggerPacketLoss, now)
	}
	return reduced
}

// OnECNCE returns true if the window was reduced.
func (s *PacketSender) OnECNCE(largestAcked *SentPacket, now time.Time) bool {
	s.applyResume(TriggerECNCE, now)
	return s.cc.OnECNCE(largestAcked)
}

func (s *PacketSender) applyResume(trigger Trigger, now time.Time) {
	before := s.resume.Phase()
	nextCwnd, nextSsthresh := s.resume.OnCongestion(trigger, now)
	defer s.windowChanged(before, nextCwnd, nextSsthresh)
	if nextCwnd > 0 {
		s.resume.logger.Debugf("reduced cwnd to %d", nextCwnd)
		s.cc.SetCwnd(nextCwnd)
	}
	if nextSsthresh > 0 {
		s.cc.SetSsthresh(nextSsthresh)
	}
}

// Discard removes a packet that will never be acknowledged or declared lost.
func (s *PacketSender) Discard(pkt *SentPacket) {
	s.cc.Discard(pkt)
}

// NextPaced returns when the next packet may be sent.
// Only packets sent while others are in flight are paced.
func (s *PacketSender) NextPaced(rtt time.Duration) (time.Time, bool) {
	if s.cc.BytesInFlight() == 0 {
		return time.Time{}, false
	}
	return s.pacer.Next(rtt, s.cc.Cwnd()), true
}

func (s *PacketSender) String() string {
	return fmt.Sprintf("%s %s %s", s.cc, s.pacer, s.resume.Phase())
}
