package common

import (
	"time"

	"github.com/francoispqt/gojay"

	"crperf-go/common/qlog"
)

const categoryCrperf = "crperf"

type RequestSentEvent struct {
	Path string
}

var _ qlog.EventDetails = &RequestSentEvent{}

func (e RequestSentEvent) Category() string { return categoryCrperf }
func (e RequestSentEvent) Name() string     { return "request_sent" }
func (e RequestSentEvent) IsNil() bool      { return false }
func (e RequestSentEvent) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("path", e.Path)
}

type FirstAppDataReceivedEvent struct{}

var _ qlog.EventDetails = &FirstAppDataReceivedEvent{}

func (t FirstAppDataReceivedEvent) Category() string                   { return categoryCrperf }
func (t FirstAppDataReceivedEvent) Name() string                       { return "first_app_data_received" }
func (t FirstAppDataReceivedEvent) IsNil() bool                        { return true }
func (t FirstAppDataReceivedEvent) MarshalJSONObject(_ *gojay.Encoder) {}

type ReportEvent struct {
	Period        time.Duration
	BytesReceived uint64
	// bit/s
	Rate   float64
	MinRTT *time.Duration
	// congestion window of the careful resume model
	Cwnd  *int
	Phase string
}

var _ qlog.EventDetails = &ReportEvent{}

func (t ReportEvent) Category() string { return categoryCrperf }
func (t ReportEvent) Name() string     { return "report" }
func (t ReportEvent) IsNil() bool      { return false }
func (t ReportEvent) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Uint64Key("bytes_received", t.BytesReceived)
	enc.Float64Key("mbps", t.Rate/1e6)
	if t.MinRTT != nil {
		enc.Float64Key("min_rtt", qlog.Milliseconds(*t.MinRTT))
	}
	if t.Cwnd != nil {
		enc.IntKey("congestion_window", *t.Cwnd)
	}
	enc.StringKeyOmitEmpty("careful_resume_phase", t.Phase)
	enc.Float64Key("period", qlog.Milliseconds(t.Period))
}

type TransferCompletedEvent struct {
	Bytes            uint64
	Duration         time.Duration
	Checksum         string
	ExpectedChecksum string
	ChecksumMatch    bool
}

var _ qlog.EventDetails = &TransferCompletedEvent{}

func (e TransferCompletedEvent) Category() string { return categoryCrperf }
func (e TransferCompletedEvent) Name() string     { return "transfer_completed" }
func (e TransferCompletedEvent) IsNil() bool      { return false }
func (e TransferCompletedEvent) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Uint64Key("bytes", e.Bytes)
	enc.Float64Key("duration", qlog.Milliseconds(e.Duration))
	enc.StringKey("checksum", e.Checksum)
	if e.ExpectedChecksum != "" {
		enc.StringKey("expected_checksum", e.ExpectedChecksum)
		enc.BoolKey("checksum_match", e.ChecksumMatch)
	}
}
