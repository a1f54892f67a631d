package server

import (
	"crypto/tls"
	"net"
	"runtime/debug"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/logging"

	"crperf-go/common"
	qlog2 "crperf-go/common/qlog"
	"crperf-go/congestion"
)

const (
	DefaultQlogTitle = "crperf"
	DefaultQlogLabel = "server"
)

func getDefaultQlogCodeVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	return info.Main.Version
}

type Config struct {
	// files are served from here, empty serves generated files only
	Root       string
	QnsTest    common.QnsTest
	TlsConfig  *tls.Config
	QuicConfig *quic.Config
	// empty disables qlog
	QlogDir    string
	QlogConfig *qlog2.Config
	// nil disables careful resume pacing of responses
	Sender       *congestion.SenderConfig
	StallTimeout time.Duration
	// observed congestion parameters are written here after every connection
	SaveFile string
	// NSS key log file, empty disables
	KeyLogFile string
	// capture index file, empty disables
	CaptureIndex string
	// used instead of listening on the address if set, closed with the server
	PacketConn net.PacketConn
	Logger     common.Logger
}

func (c *Config) Populate() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.QnsTest == "" {
		c.QnsTest = common.QnsTestTransfer
	}
	if c.TlsConfig == nil {
		c.TlsConfig = &tls.Config{}
	}
	if c.TlsConfig.Certificates == nil && c.TlsConfig.GetCertificate == nil {
		c.TlsConfig.Certificates = []tls.Certificate{common.GenerateCert()}
	}
	if c.QuicConfig == nil {
		c.QuicConfig = &quic.Config{}
	}
	if c.QlogConfig == nil {
		c.QlogConfig = &qlog2.Config{}
	}
	if c.QlogConfig.Title == "" {
		c.QlogConfig.Title = DefaultQlogTitle
	}
	if c.QlogConfig.VantagePoint == 0 {
		c.QlogConfig.VantagePoint = logging.PerspectiveServer
	}
	if c.QlogConfig.CodeVersion == "" {
		c.QlogConfig.CodeVersion = getDefaultQlogCodeVersion()
	}
	if c.Logger == nil {
		c.Logger = common.DefaultLogger
	}
	return c
}
