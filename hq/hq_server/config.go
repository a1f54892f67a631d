package hq_server

import (
	"context"
	"crypto/tls"

	"github.com/quic-go/quic-go"

	"crperf-go/common"
	"crperf-go/congestion"
	"crperf-go/hq"
)

type Config struct {
	TlsConfig  *tls.Config
	QuicConfig *quic.Config
	Handler    hq.Handler
	// returns the controller that paces responses of the connection, may be nil
	Controller func(ctx context.Context) *congestion.Controller
	// called for every accepted connection before its requests are served, may be nil
	OnConnection func(conn quic.Connection)
	Logger       common.Logger
}

func (c *Config) Populate() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.TlsConfig == nil {
		c.TlsConfig = &tls.Config{}
	}
	if c.TlsConfig.NextProtos == nil {
		c.TlsConfig.NextProtos = []string{hq.ALPN}
	}
	if c.QuicConfig == nil {
		c.QuicConfig = &quic.Config{}
	}
	if c.Controller == nil {
		c.Controller = func(context.Context) *congestion.Controller { return nil }
	}
	if c.Logger == nil {
		c.Logger = common.DefaultLogger
	}
	return c
}
