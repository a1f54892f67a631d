package qlog_cr

import (
	"time"

	"crperf-go/common/qlog"
	"crperf-go/congestion"
)

type recorder struct {
	qlogWriter qlog.Writer
	odcid      string
}

var _ congestion.Recorder = &recorder{}

// NewRecorder writes careful resume events of the connection with the given ODCID to w.
func NewRecorder(w qlog.Writer, odcid string) congestion.Recorder {
	return &recorder{qlogWriter: w, odcid: odcid}
}

func (r *recorder) PhaseUpdated(update congestion.PhaseUpdate) {
	r.qlogWriter.RecordEventWithTimeGroupODCID(&eventPhaseUpdated{update: update}, update.Time, r.odcid, r.odcid)
}

func (r *recorder) SeedRejected(saved congestion.SavedParameters, reason error) {
	r.qlogWriter.RecordEventWithTimeGroupODCID(&eventSeedRejected{saved: saved, reason: reason}, time.Now(), r.odcid, r.odcid)
}
