package qlog_app

import "github.com/francoispqt/gojay"

// InfoEvent records an application message in the connection qlog.
type InfoEvent struct {
	Message string
}

func (e InfoEvent) Category() string { return "app" }
func (e InfoEvent) Name() string     { return "info" }
func (e InfoEvent) IsNil() bool      { return false }

func (e InfoEvent) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("message", e.Message)
}

// ErrorEvent records why a transfer failed.
type ErrorEvent struct {
	// short machine readable reason, e.g. checksum_mismatch
	Code    string
	Message string
}

func (e ErrorEvent) Category() string { return "app" }
func (e ErrorEvent) Name() string     { return "error" }
func (e ErrorEvent) IsNil() bool      { return false }

func (e ErrorEvent) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKeyOmitEmpty("code", e.Code)
	enc.StringKey("message", e.Message)
}
