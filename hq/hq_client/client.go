package hq_client

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/quic-go/quic-go"

	errors2 "crperf-go/errors"
	"crperf-go/hq"
)

type Client interface {
	Context() context.Context
	// Get requests path on a new stream, the response is read from the returned stream
	Get(path string) (ResponseReceiveStream, error)
	Close() error
	ReceivedBytes() uint64
	QuicConn() quic.Connection
}

type client struct {
	conn          quic.Connection
	config        *Config
	closeOnce     sync.Once
	err           error
	receivedBytes atomic.Uint64
}

func DialAddr(ctx context.Context, remoteAddr string, conf *Config) (Client, error) {
	c := &client{
		config: conf.Populate(),
	}
	var err error
	c.conn, err = quic.DialAddr(ctx, remoteAddr, c.config.TlsConfig, c.config.QuicConfig)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *client) Context() context.Context {
	return c.conn.Context()
}

func (c *client) Get(path string) (ResponseReceiveStream, error) {
	stream, err := c.conn.OpenStream()
	if err != nil {
		return nil, err
	}
	if err := hq.WriteRequest(stream, path); err != nil {
		stream.CancelRead(errors2.RequestCanceledErrorCode)
		return nil, err
	}
	if err := stream.Close(); err != nil {
		return nil, err
	}
	return newResponseReceiveStream(stream, c), nil
}

// nil to close without error
func (c *client) close(err error) {
	c.closeOnce.Do(func() {
		if err != nil {
			c.err = c.conn.CloseWithError(errors2.InternalErrorCode, "internal error")
		} else {
			c.err = c.conn.CloseWithError(errors2.NoError, "no error")
		}
	})
}

func (c *client) Close() error {
	c.close(nil)
	return c.err
}

func (c *client) ReceivedBytes() uint64 {
	return c.receivedBytes.Load()
}

func (c *client) QuicConn() quic.Connection {
	return c.conn
}
