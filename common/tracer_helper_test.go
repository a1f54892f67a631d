package common

import (
	"context"
	"testing"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMultiplexedTracerSkipsNil(t *testing.T) {
	tracer := NewMultiplexedTracer(nil, func(context.Context, logging.Perspective, quic.ConnectionID) *logging.ConnectionTracer {
		return nil
	})
	assert.Nil(t, tracer(context.Background(), logging.PerspectiveClient, quic.ConnectionID{}))
}

func TestNewMultiplexedTracerCallsAll(t *testing.T) {
	var closed int
	newTracer := func(context.Context, logging.Perspective, quic.ConnectionID) *logging.ConnectionTracer {
		return &logging.ConnectionTracer{
			Close: func() { closed++ },
		}
	}
	tracer := NewMultiplexedTracer(newTracer, nil, newTracer)(context.Background(), logging.PerspectiveServer, quic.ConnectionID{})
	require.NotNil(t, tracer)
	tracer.Close()
	assert.Equal(t, 2, closed)
}
