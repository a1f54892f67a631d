package qlog

// inspired quic-go/qlog/event.go

import (
	"time"

	"github.com/francoispqt/gojay"
)

func milliseconds(dur time.Duration) float64 { return float64(dur.Nanoseconds()) / 1e6 }

// Milliseconds converts a duration to the fractional milliseconds used by qlog.
func Milliseconds(dur time.Duration) float64 { return milliseconds(dur) }

type EventDetails interface {
	Category() string
	Name() string
	gojay.MarshalerJSONObject
}

type event struct {
	RelativeTime time.Duration
	EventDetails
	GroupID string
	ODCID   string
}

var _ gojay.MarshalerJSONObject = &event{}

func (e event) IsNil() bool { return false }

// MarshalJSONObject implements gojay.MarshalJSONObject
func (e event) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Float64Key("time", milliseconds(e.RelativeTime))
	enc.StringKey("name", e.Category()+":"+e.Name())
	enc.ObjectKey("data", e.EventDetails)
	enc.StringKeyOmitEmpty("group_id", e.GroupID)
	enc.StringKeyOmitEmpty("ODCID", e.ODCID)
}
