package qlog

// mostly copied from quic-go/qlog/trace.go

import (
	"time"

	"github.com/francoispqt/gojay"
	"github.com/quic-go/quic-go/logging"
)

type topLevel struct {
	trace trace
}

func (topLevel) IsNil() bool { return false }
func (l topLevel) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("qlog_format", "NDJSON")
	enc.StringKey("qlog_version", "draft-02")
	enc.StringKeyOmitEmpty("title", l.trace.Title)
	enc.StringKeyOmitEmpty("code_version", l.trace.CodeVersion)
	enc.ObjectKey("trace", l.trace)
}

type vantagePoint struct {
	Name string
	Type logging.Perspective
}

func (p vantagePoint) IsNil() bool { return len(p.Name) == 0 && p.Type == 0 }
func (p vantagePoint) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKeyOmitEmpty("name", p.Name)
	switch p.Type {
	case logging.PerspectiveClient:
		enc.StringKey("type", "client")
	case logging.PerspectiveServer:
		enc.StringKey("type", "server")
	}
}

type commonFields struct {
	ODCID         string
	GroupID       string
	ProtocolType  string
	ReferenceTime time.Time
}

func (f commonFields) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKeyOmitEmpty("ODCID", f.ODCID)
	enc.StringKeyOmitEmpty("group_id", f.GroupID)
	enc.StringKeyOmitEmpty("protocol_type", f.ProtocolType)
	enc.Float64Key("reference_time", float64(f.ReferenceTime.UnixNano())/1e6)
	enc.StringKey("time_format", "relative")
}

func (f commonFields) IsNil() bool { return false }

type trace struct {
	Title        string
	CodeVersion  string
	VantagePoint vantagePoint
	CommonFields commonFields
}

func (trace) IsNil() bool { return false }
func (t trace) MarshalJSONObject(enc *gojay.Encoder) {
	enc.ObjectKeyOmitEmpty("vantage_point", t.VantagePoint)
	enc.ObjectKey("common_fields", t.CommonFields)
}
