package hq_server

import (
	"context"
	"errors"
	"sync"

	"github.com/quic-go/quic-go"

	"crperf-go/common"
	errors2 "crperf-go/errors"
)

type Connection interface {
	Context() context.Context
	TracingID() uint64
	// Close connection without error
	Close()
	QuicConn() quic.Connection
}

type connection struct {
	quicConnection quic.Connection
	closeOnce      sync.Once
	// only set within closeOnce
	err    error
	mutex  sync.Mutex
	logger common.Logger
	// only access while holding mutex
	responseSendStreams map[quic.StreamID]ResponseSendStream
	config              *Config
}

func NewConnection(quicConnection quic.Connection, config *Config) Connection {
	c := &connection{
		quicConnection:      quicConnection,
		responseSendStreams: map[quic.StreamID]ResponseSendStream{},
		config:              config,
		logger:              config.Logger.WithField("remote", quicConnection.RemoteAddr().String()),
	}
	go func() {
		err := c.run()
		if err != nil {
			c.close(err)
		}
	}()
	return c
}

func (c *connection) handleStream(stream quic.Stream) {
	respStream := newResponseSendStream(stream, c)
	c.mutex.Lock()
	c.responseSendStreams[respStream.StreamID()] = respStream
	c.mutex.Unlock()
	go func() {
		<-respStream.Context().Done()
		c.mutex.Lock()
		delete(c.responseSendStreams, respStream.StreamID())
		c.mutex.Unlock()
	}()
}

func (c *connection) run() error {
	for {
		stream, err := c.quicConnection.AcceptStream(c.Context())
		if err != nil {
			return err
		}
		c.handleStream(stream)
	}
}

func (c *connection) close(err error) {
	c.closeOnce.Do(func() {
		var appErr *quic.ApplicationError
		if err != nil && !(errors.As(err, &appErr) && appErr.ErrorCode == errors2.NoError) {
			c.logger.Debugf("connection closed: %s", err)
		}
		if err != nil {
			c.err = c.quicConnection.CloseWithError(errors2.InternalErrorCode, "internal error")
		} else {
			c.err = c.quicConnection.CloseWithError(errors2.NoError, "no error")
		}
	})
}

func (c *connection) Close() {
	c.close(nil)
}

func (c *connection) Context() context.Context {
	return c.quicConnection.Context()
}

func (c *connection) TracingID() uint64 {
	return c.quicConnection.Context().Value(quic.ConnectionTracingKey).(uint64)
}

func (c *connection) QuicConn() quic.Connection {
	return c.quicConnection
}
