package errors

import "github.com/quic-go/quic-go"

const (
	NoError           = quic.ApplicationErrorCode(0)
	InternalErrorCode = quic.ApplicationErrorCode(1)
)

// stream error codes of the hq-interop transfer protocol
const (
	InternalErrorStreamCode  = quic.StreamErrorCode(0x102)
	RequestCanceledErrorCode = quic.StreamErrorCode(0x10c)
	BadRequestErrorCode      = quic.StreamErrorCode(0x110)
	FileNotFoundErrorCode    = quic.StreamErrorCode(0x111)
)
