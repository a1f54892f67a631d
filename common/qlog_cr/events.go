package qlog_cr

import (
	"github.com/francoispqt/gojay"

	"crperf-go/common/qlog"
	"crperf-go/congestion"
)

const categoryRecovery = "recovery"

type stateData congestion.StateData

func (d stateData) IsNil() bool { return false }
func (d stateData) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Uint64Key("pipesize", uint64(d.Pipesize))
	enc.Int64Key("first_unvalidated_packet", d.FirstUnvalidatedPkt)
	enc.Int64Key("last_unvalidated_packet", d.LastUnvalidatedPkt)
	enc.Uint64Key("congestion_window", uint64(d.CongestionWindow))
	if d.Ssthresh > 0 {
		enc.Uint64Key("ssthresh", uint64(d.Ssthresh))
	}
}

type restoredData congestion.SavedParameters

func (d restoredData) IsNil() bool { return false }
func (d restoredData) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Float64Key("saved_rtt", qlog.Milliseconds(d.RTT))
	enc.Uint64Key("saved_congestion_window", uint64(d.Cwnd))
}

type eventPhaseUpdated struct {
	update congestion.PhaseUpdate
}

var _ qlog.EventDetails = &eventPhaseUpdated{}

func (e eventPhaseUpdated) Category() string { return categoryRecovery }
func (e eventPhaseUpdated) Name() string     { return "careful_resume_phase_updated" }
func (e eventPhaseUpdated) IsNil() bool      { return false }

func (e eventPhaseUpdated) MarshalJSONObject(enc *gojay.Encoder) {
	if e.update.Old != nil {
		enc.StringKey("old", e.update.Old.String())
	}
	enc.StringKey("new", e.update.New.String())
	enc.ObjectKey("state_data", stateData(e.update.State))
	enc.ObjectKey("restored_data", restoredData(e.update.Restored))
	enc.StringKeyOmitEmpty("trigger", e.update.Trigger.String())
}

type eventSeedRejected struct {
	saved  congestion.SavedParameters
	reason error
}

var _ qlog.EventDetails = &eventSeedRejected{}

func (e eventSeedRejected) Category() string { return categoryRecovery }
func (e eventSeedRejected) Name() string     { return "careful_resume_seed_rejected" }
func (e eventSeedRejected) IsNil() bool      { return false }

func (e eventSeedRejected) MarshalJSONObject(enc *gojay.Encoder) {
	enc.ObjectKey("restored_data", restoredData(e.saved))
	enc.StringKey("reason", e.reason.Error())
}
