package client

import (
	"crypto/tls"
	"math"
	"runtime/debug"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/logging"

	"crperf-go/common"
	qlog2 "crperf-go/common/qlog"
	"crperf-go/congestion"
)

const (
	DefaultReportInterval = 1 * time.Second
	DefaultQlogTitle      = "crperf"
	DefaultQlogLabel      = "client"
	DefaultPath           = "/"
)

func getDefaultQlogCodeVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	return info.Main.Version
}

type Config struct {
	RemoteAddress string
	// requested path, e.g. /10MiB
	Path    string
	QnsTest common.QnsTest
	// the response is written to OutputDir/<base name of Path>, empty discards it
	OutputDir string
	// hex SHA-256 of the expected response, empty skips verification
	ExpectedChecksum string
	// QlogConfig only applies to the crperf events, quic-go events use the same writer
	QlogConfig *qlog2.Config
	QlogDir    string
	TlsConfig  *tls.Config
	QuicConfig *quic.Config
	// careful resume seed and congestion control of the client side
	Sender *congestion.SenderConfig
	// observed parameters of the download are written here
	SaveFile       string
	KeyLogFile     string
	CaptureIndex   string
	ReportInterval time.Duration
	PrintRaw       bool
	LogPrefix      string
	// written as JSON when the transfer completed
	ResultFile string
	// created after the result file, signals completion to an outer orchestrator
	DoneFile string
	Logger   common.Logger
}

func (c *Config) Populate() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.QnsTest == "" {
		c.QnsTest = common.QnsTestTransfer
	}
	if c.TlsConfig == nil {
		c.TlsConfig = &tls.Config{}
	}
	if c.QlogConfig == nil {
		c.QlogConfig = &qlog2.Config{}
	}
	if c.QlogConfig.Title == "" {
		c.QlogConfig.Title = DefaultQlogTitle
	}
	if c.QlogConfig.VantagePoint == 0 {
		c.QlogConfig.VantagePoint = logging.PerspectiveClient
	}
	if c.QlogConfig.CodeVersion == "" {
		c.QlogConfig.CodeVersion = getDefaultQlogCodeVersion()
	}
	c.QlogConfig.Populate()
	if c.QuicConfig == nil {
		c.QuicConfig = &quic.Config{}
	}
	if c.Sender == nil {
		c.Sender = &congestion.SenderConfig{}
	}
	if c.ReportInterval == 0 {
		c.ReportInterval = time.Duration(math.MaxInt64)
	}
	if c.Logger == nil {
		c.Logger = common.DefaultLogger
	}
	return c
}
