package congestion

import (
	"errors"
	"time"

	"crperf-go/common"
	"crperf-go/metrics"
)

// Phase of careful resume.
type Phase uint8

const (
	PhaseReconnaissance Phase = iota
	// PhaseJumping means the window was increased but the first unvalidated packet is not sent yet.
	PhaseJumping
	PhaseUnvalidated
	PhaseValidating
	PhaseSafeRetreat
	PhaseNormal
)

// String returns the qlog name, jumping is still reported as reconnaissance.
func (p Phase) String() string {
	switch p {
	case PhaseReconnaissance, PhaseJumping:
		return "reconnaissance"
	case PhaseUnvalidated:
		return "unvalidated"
	case PhaseValidating:
		return "validating"
	case PhaseSafeRetreat:
		return "safe_retreat"
	case PhaseNormal:
		return "normal"
	default:
		return "unknown"
	}
}

// Trigger of a phase change.
type Trigger uint8

const (
	TriggerNone Trigger = iota
	TriggerCwndLimited
	TriggerRTTNotValidated
	TriggerFirstUnvalidatedPacketAcknowledged
	TriggerLastUnvalidatedPacketAcknowledged
	TriggerRateLimited
	TriggerPacketLoss
	TriggerECNCE
	TriggerExitRecovery
)

func (t Trigger) String() string {
	switch t {
	case TriggerCwndLimited:
		return "congestion_window_limited"
	case TriggerRTTNotValidated:
		return "rtt_not_validated"
	case TriggerFirstUnvalidatedPacketAcknowledged:
		return "first_unvalidated_packet_acknowledged"
	case TriggerLastUnvalidatedPacketAcknowledged:
		return "last_unvalidated_packet_acknowledged"
	case TriggerRateLimited:
		return "rate_limited"
	case TriggerPacketLoss:
		return "packet_loss"
	case TriggerECNCE:
		return "ecn_ce"
	case TriggerExitRecovery:
		return "exit_recovery"
	default:
		return ""
	}
}

// Resume implements careful resume: it reuses the capacity of a previous
// connection once the path has been confirmed, and retreats if the reused
// capacity turns out to be wrong.
type Resume struct {
	enabled bool
	// set once the seed caused congestion and must not be saved again
	invalidated bool
	phase       Phase
	ackedBytes  int

	cwnd                int
	pipesize            int
	firstUnvalidatedPkt int64
	lastUnvalidatedPkt  int64
	initialPhaseLogged  bool

	saved    SavedParameters
	recorder Recorder
	logger   common.Logger
}

// NewResume returns a disabled instance if saved is nil or outside bounds.
// recorder may be nil.
func NewResume(saved *SavedParameters, bounds Bounds, recorder Recorder, logger common.Logger) *Resume {
	r := &Resume{
		recorder: recorder,
		logger:   logger.WithPrefix("careful_resume"),
	}
	if saved == nil {
		return r
	}
	r.saved = *saved
	if err := saved.Validate(bounds); err != nil {
		if errors.Is(err, ErrSeedMissing) {
			return r
		}
		metrics.SeedValidations.WithLabelValues("rejected").Inc()
		r.logger.Errorf("ignoring seed, falling back to slow start: %s", err)
		if recorder != nil {
			recorder.SeedRejected(*saved, err)
		}
		return r
	}
	metrics.SeedValidations.WithLabelValues("accepted").Inc()
	r.enabled = true
	return r
}

func (r *Resume) Enabled() bool {
	return r.enabled
}

func (r *Resume) Phase() Phase {
	return r.phase
}

// Invalidated reports whether the seed led to congestion.
func (r *Resume) Invalidated() bool {
	return r.invalidated
}

func (r *Resume) stateData() StateData {
	return StateData{
		Pipesize:            r.pipesize,
		FirstUnvalidatedPkt: r.firstUnvalidatedPkt,
		LastUnvalidatedPkt:  r.lastUnvalidatedPkt,
		CongestionWindow:    r.cwnd,
	}
}

func (r *Resume) record(old *Phase, next Phase, trigger Trigger, ssthresh int, now time.Time) {
	if old != nil {
		metrics.CarefulResumeTransitions.WithLabelValues(old.String(), next.String(), trigger.String()).Inc()
	}
	if r.recorder == nil {
		return
	}
	state := r.stateData()
	state.Ssthresh = ssthresh
	r.recorder.PhaseUpdated(PhaseUpdate{
		Time:     now,
		Old:      old,
		New:      next,
		State:    state,
		Restored: r.saved,
		Trigger:  trigger,
	})
}

func (r *Resume) changePhase(next Phase, trigger Trigger, ssthresh int, now time.Time) {
	old := r.phase
	r.logger.Debugf("%s -> %s (%s)", old, next, trigger)
	r.record(&old, next, trigger, ssthresh, now)
	r.phase = next
}

func (r *Resume) maybeJump(rtt time.Duration, initialCwnd int, now time.Time) int {
	if r.phase != PhaseReconnaissance || r.ackedBytes < initialCwnd {
		return 0
	}
	jump := r.saved.Cwnd / 2
	if jump <= r.cwnd {
		r.logger.Infof("abort: jump %d not larger than cwnd %d", jump, r.cwnd)
		r.changePhase(PhaseNormal, TriggerCwndLimited, 0, now)
		return 0
	}
	if rtt <= r.saved.RTT/2 || r.saved.RTT*10 <= rtt {
		r.logger.Infof("abort: rtt %s too divergent from saved rtt %s", rtt, r.saved.RTT)
		r.changePhase(PhaseNormal, TriggerRTTNotValidated, 0, now)
		return 0
	}
	r.pipesize = r.cwnd
	r.cwnd = jump
	r.phase = PhaseJumping
	return jump
}

// OnAck returns the window and slow start threshold to apply, 0 means unchanged.
// flightsize is the number of bytes in flight including the acknowledged packet.
func (r *Resume) OnAck(pkt *SentPacket, rtt time.Duration, flightsize int, cwnd int, initialCwnd int, now time.Time) (nextCwnd int, nextSsthresh int) {
	if !r.enabled {
		return 0, 0
	}
	r.cwnd = cwnd

	switch r.phase {
	case PhaseReconnaissance:
		r.ackedBytes += pkt.Size
		return r.maybeJump(rtt, initialCwnd, now), 0
	case PhaseUnvalidated:
		r.pipesize += pkt.Size
		if pkt.PacketNumber < r.firstUnvalidatedPkt {
			return 0, 0
		}
		if r.pipesize < flightsize {
			r.changePhase(PhaseValidating, TriggerFirstUnvalidatedPacketAcknowledged, 0, now)
			return flightsize, 0
		}
		r.changePhase(PhaseNormal, TriggerRateLimited, 0, now)
		return r.pipesize, 0
	case PhaseValidating:
		r.pipesize += pkt.Size
		if r.lastUnvalidatedPkt <= pkt.PacketNumber {
			r.changePhase(PhaseNormal, TriggerLastUnvalidatedPacketAcknowledged, 0, now)
		}
		return 0, 0
	case PhaseSafeRetreat:
		r.pipesize += pkt.Size
		if r.lastUnvalidatedPkt <= pkt.PacketNumber {
			r.changePhase(PhaseNormal, TriggerExitRecovery, r.pipesize, now)
			return 0, r.pipesize
		}
		return 0, 0
	default:
		return 0, 0
	}
}

// OnSent tracks the packets sent with the unvalidated window.
func (r *Resume) OnSent(cwnd int, pn int64, now time.Time) {
	if !r.enabled {
		return
	}
	r.cwnd = cwnd

	switch r.phase {
	case PhaseReconnaissance:
		if !r.initialPhaseLogged {
			r.initialPhaseLogged = true
			r.record(nil, r.phase, TriggerNone, 0, now)
		}
	case PhaseJumping:
		r.firstUnvalidatedPkt = pn
		r.lastUnvalidatedPkt = pn
		r.changePhase(PhaseUnvalidated, TriggerCwndLimited, 0, now)
	case PhaseUnvalidated:
		r.lastUnvalidatedPkt = pn
	}
}

// OnCongestion reacts to loss or an ECN-CE mark.
// It returns the window and slow start threshold to apply, 0 means unchanged.
func (r *Resume) OnCongestion(trigger Trigger, now time.Time) (nextCwnd int, nextSsthresh int) {
	if !r.enabled {
		return 0, 0
	}
	switch r.phase {
	case PhaseUnvalidated:
		r.invalidated = true
		r.changePhase(PhaseSafeRetreat, trigger, 0, now)
		return common.Max(r.pipesize/2, 1), 0
	case PhaseValidating:
		r.invalidated = true
		r.changePhase(PhaseNormal, trigger, r.pipesize, now)
		return 0, r.pipesize
	case PhaseJumping:
		// nothing was sent with the jumped window yet, keep the reduction of the controller
		r.invalidated = true
		r.changePhase(PhaseNormal, trigger, 0, now)
		return 0, 0
	default:
		return 0, 0
	}
}
