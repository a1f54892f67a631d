package hq_client

import (
	"crypto/tls"

	"github.com/quic-go/quic-go"

	"crperf-go/hq"
)

type Config struct {
	TlsConfig  *tls.Config
	QuicConfig *quic.Config
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
	return c
}
