package common

import (
	"context"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/logging"
)

// ConnectionTracerFunc is the signature of quic.Config.Tracer
type ConnectionTracerFunc = func(ctx context.Context, perspective logging.Perspective, id quic.ConnectionID) *logging.ConnectionTracer

// NewMultiplexedTracer combines tracers, nil tracers are skipped.
func NewMultiplexedTracer(tracers ...ConnectionTracerFunc) ConnectionTracerFunc {
	return func(ctx context.Context, perspective logging.Perspective, id quic.ConnectionID) *logging.ConnectionTracer {
		var connectionTracers []*logging.ConnectionTracer
		for _, tracer := range tracers {
			if tracer == nil {
				continue
			}
			connectionTracer := tracer(ctx, perspective, id)
			if connectionTracer == nil {
				continue
			}
			connectionTracers = append(connectionTracers, connectionTracer)
		}
		switch len(connectionTracers) {
		case 0:
			return nil
		case 1:
			return connectionTracers[0]
		default:
			return logging.NewMultiplexedConnectionTracer(connectionTracers...)
		}
	}
}
