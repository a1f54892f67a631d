package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/m-lab/go/rtx"
	"github.com/m-lab/go/warnonerror"
	"github.com/quic-go/quic-go"
	"github.com/urfave/cli/v2"

	"crperf-go/capture"
	"crperf-go/client"
	"crperf-go/common"
	"crperf-go/common/qlog"
	"crperf-go/congestion"
	"crperf-go/metrics"
	"crperf-go/server"
)

// quic-go reads this environment variable when creating a connection
const disableGSOEnv = "QUIC_GO_DISABLE_GSO"

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "qlog-dir",
			Usage:   "directory for qlog files named <odcid>_<role>.qlog, $QLOGDIR if not set",
			EnvVars: []string{qlog.QlogDirEnv},
		},
		&cli.StringFlag{
			Name:  "qlog-level",
			Usage: "events to record in qlog files, \"info\" or \"debug\" (includes every packet)",
			Value: "info",
		},
		&cli.StringFlag{
			Name:  "cc",
			Usage: "congestion control algorithm, \"cubic\" or \"newreno\", newreno also switches the window growth of quic-go",
			Value: "cubic",
		},
		&cli.StringFlag{
			Name:    "cr-saved-rtt",
			Usage:   "saved RTT to resume from, as duration (\"100ms\") or milliseconds",
			EnvVars: []string{"PREVIOUS_RTT"},
		},
		&cli.StringFlag{
			Name:    "cr-saved-cwnd",
			Usage:   "saved congestion window to resume from, in bytes",
			EnvVars: []string{"PREVIOUS_CWND_BYTES"},
		},
		&cli.StringFlag{
			Name:  "cr-save-file",
			Usage: "file to store the observed RTT and congestion window in, read as seed if no saved values are given",
		},
		&cli.StringFlag{
			Name:  "cr-min-rtt",
			Usage: "smallest saved RTT that is accepted",
			Value: congestion.DefaultMinSeedRTT.String(),
		},
		&cli.StringFlag{
			Name:  "cr-max-rtt",
			Usage: "largest saved RTT that is accepted",
			Value: congestion.DefaultMaxSeedRTT.String(),
		},
		&cli.StringFlag{
			Name:  "cr-max-cwnd",
			Usage: "largest saved congestion window that is accepted, in bytes",
			Value: "1GiB",
		},
		&cli.DurationFlag{
			Name:  "cr-stall-timeout",
			Usage: "how long a write waits for the careful resume model before it is released",
			Value: congestion.DefaultStallTimeout,
		},
		&cli.StringFlag{
			Name:  "qns-test",
			Usage: "\"transfer\" (hq-interop) or \"http3\"",
			Value: string(common.QnsTestTransfer),
		},
		&cli.StringFlag{
			Name:  "max-data",
			Usage: "the initial connection-level receive window, in bytes",
		},
		&cli.StringFlag{
			Name:  "max-stream-data",
			Usage: "the initial stream-level receive window, in bytes",
		},
		&cli.StringFlag{
			Name:  "max-window",
			Usage: "the maximum connection-level receive window, in bytes",
		},
		&cli.StringFlag{
			Name:  "max-stream-window",
			Usage: "the maximum stream-level receive window, in bytes",
		},
		&cli.Int64Flag{
			Name:  "max-streams-bidi",
			Usage: "the maximum number of concurrent bidirectional streams the peer may open",
		},
		&cli.Int64Flag{
			Name:  "max-streams-uni",
			Usage: "the maximum number of concurrent unidirectional streams the peer may open",
		},
		&cli.BoolFlag{
			Name:  "disable-hystart",
			Usage: "disable HyStart++ in the careful resume model",
		},
		&cli.BoolFlag{
			Name:  "disable-gso",
			Usage: "disable generic segmentation offload",
		},
		&cli.BoolFlag{
			Name:  "no-pacing",
			Usage: "disable pacing in the careful resume model",
		},
		&cli.StringFlag{
			Name:    "keylog-file",
			Usage:   "append TLS secrets in NSS key log format, $SSLKEYLOGFILE if not set",
			EnvVars: []string{capture.KeyLogEnv},
		},
		&cli.StringFlag{
			Name:  "capture-index",
			Usage: "append addresses, time window and client randoms of every connection as JSON lines",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "serve prometheus metrics on this address",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "\"nothing\", \"error\", \"info\" or \"debug\"",
			Value: "info",
		},
		&cli.StringFlag{
			Name:  "log-prefix",
			Usage: "the prefix of the command line output",
		},
	}
}

func parseByteCountFlag(c *cli.Context, name string) (uint64, error) {
	if !c.IsSet(name) && c.String(name) == "" {
		return 0, nil
	}
	n, err := common.ParseByteCountWithUnit(c.String(name))
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return n, nil
}

func quicConfig(c *cli.Context) (*quic.Config, error) {
	conf := &quic.Config{
		MaxIncomingStreams:    c.Int64("max-streams-bidi"),
		MaxIncomingUniStreams: c.Int64("max-streams-uni"),
	}
	var err error
	if conf.InitialConnectionReceiveWindow, err = parseByteCountFlag(c, "max-data"); err != nil {
		return nil, err
	}
	if conf.MaxConnectionReceiveWindow, err = parseByteCountFlag(c, "max-window"); err != nil {
		return nil, err
	}
	if conf.InitialStreamReceiveWindow, err = parseByteCountFlag(c, "max-stream-data"); err != nil {
		return nil, err
	}
	if conf.MaxStreamReceiveWindow, err = parseByteCountFlag(c, "max-stream-window"); err != nil {
		return nil, err
	}
	conf.MaxConnectionReceiveWindow = common.Max(conf.MaxConnectionReceiveWindow, conf.InitialConnectionReceiveWindow)
	conf.MaxStreamReceiveWindow = common.Max(conf.MaxStreamReceiveWindow, conf.InitialStreamReceiveWindow)
	return conf, nil
}

func qlogConfig(c *cli.Context) (*qlog.Config, error) {
	conf := &qlog.Config{ExcludeEventsByDefault: true}
	switch strings.ToLower(c.String("qlog-level")) {
	case "", "info":
		conf.SetIncludedEvents(common.QlogLevelInfoEvents)
	case "debug":
		conf.SetIncludedEvents(common.QlogLevelDebugEvents)
	default:
		return nil, fmt.Errorf("invalid qlog level %q", c.String("qlog-level"))
	}
	return conf, nil
}

// savedParameters returns the seed given on the command line,
// or the one stored in the save file, or nil.
func savedParameters(c *cli.Context) (*congestion.SavedParameters, error) {
	if c.String("cr-saved-rtt") == "" && c.String("cr-saved-cwnd") == "" {
		path := c.String("cr-save-file")
		if path == "" {
			return nil, nil
		}
		saved, err := congestion.LoadParameters(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return saved, err
	}
	saved := &congestion.SavedParameters{Enabled: true}
	if s := c.String("cr-saved-rtt"); s != "" {
		rtt, err := common.ParseMilliseconds(s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse cr-saved-rtt: %w", err)
		}
		saved.RTT = rtt
	}
	if s := c.String("cr-saved-cwnd"); s != "" {
		cwnd, err := common.ParseByteCountWithUnit(s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse cr-saved-cwnd: %w", err)
		}
		saved.Cwnd = int(common.Min(cwnd, uint64(1<<62)))
	}
	return saved, nil
}

func senderConfig(c *cli.Context, logger common.Logger) (*congestion.SenderConfig, error) {
	algorithm, err := congestion.ParseAlgorithm(c.String("cc"))
	if err != nil {
		return nil, err
	}
	saved, err := savedParameters(c)
	if err != nil {
		return nil, err
	}
	minRTT, err := common.ParseMilliseconds(c.String("cr-min-rtt"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse cr-min-rtt: %w", err)
	}
	maxRTT, err := common.ParseMilliseconds(c.String("cr-max-rtt"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse cr-max-rtt: %w", err)
	}
	maxCwnd, err := common.ParseByteCountWithUnit(c.String("cr-max-cwnd"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse cr-max-cwnd: %w", err)
	}
	if saved != nil {
		logger.Infof("careful resume seed: rtt %s, cwnd %d", saved.RTT, saved.Cwnd)
	}
	return &congestion.SenderConfig{
		Algorithm: algorithm,
		Pacing:    !c.Bool("no-pacing"),
		HyStart:   !c.Bool("disable-hystart"),
		Saved:     saved,
		Bounds: congestion.Bounds{
			MinRTT:  minRTT,
			MaxRTT:  maxRTT,
			MaxCwnd: int(common.Min(maxCwnd, uint64(1<<62))),
		},
		Logger: logger,
	}, nil
}

// setup applies the process wide flags and returns the logger.
func setup(c *cli.Context) (common.Logger, error) {
	level, err := common.ParseLogLevel(c.String("log-level"))
	if err != nil {
		return nil, err
	}
	common.DefaultLogger.SetLogLevel(level)
	logger := common.DefaultLogger.WithPrefix(c.String("log-prefix"))
	if c.Bool("disable-gso") {
		if err := os.Setenv(disableGSOEnv, "true"); err != nil {
			return nil, err
		}
	}
	if addr := c.String("metrics-addr"); addr != "" {
		accessLogger := logger.WithPrefix("metrics")
		srv, err := metrics.Serve(addr, func(p []byte) (int, error) {
			accessLogger.Debugf("%s", strings.TrimSpace(string(p)))
			return len(p), nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to serve metrics: %w", err)
		}
		logger.Infof("serving metrics on %s", srv.Addr)
		go func() {
			<-c.Context.Done()
			warnonerror.Close(srv, "failed to stop metrics server")
		}()
	}
	return logger, nil
}

// parseTarget accepts an URL like https://host:port/path as first argument,
// otherwise the addr and path flags are used.
func parseTarget(c *cli.Context) (addr string, path string, err error) {
	addr, path = c.String("addr"), c.String("path")
	if c.Args().Len() == 0 {
		if addr == "" {
			return "", "", errors.New("no server address given")
		}
		return addr, path, nil
	}
	u, err := url.Parse(c.Args().First())
	if err != nil {
		return "", "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("invalid url %q", c.Args().First())
	}
	addr = u.Host
	if u.Port() == "" {
		addr = fmt.Sprintf("%s:%d", u.Hostname(), common.DefaultServerPort)
	}
	return addr, u.Path, nil
}

func runClient(c *cli.Context) error {
	logger, err := setup(c)
	if err != nil {
		return err
	}
	addr, path, err := parseTarget(c)
	if err != nil {
		return err
	}
	qnsTest, err := common.ParseQnsTest(c.String("qns-test"))
	if err != nil {
		return err
	}
	quicConf, err := quicConfig(c)
	if err != nil {
		return err
	}
	qlogConf, err := qlogConfig(c)
	if err != nil {
		return err
	}
	sender, err := senderConfig(c, logger)
	if err != nil {
		return err
	}
	tlsConf := &tls.Config{}
	if certFile := c.String("tls-cert"); certFile != "" {
		tlsConf.RootCAs, err = common.NewCertPoolFromFiles(certFile)
		if err != nil {
			return err
		}
	} else {
		tlsConf.InsecureSkipVerify = true
	}

	_, err = client.Run(c.Context, &client.Config{
		RemoteAddress:    addr,
		Path:             path,
		QnsTest:          qnsTest,
		OutputDir:        c.String("output-dir"),
		ExpectedChecksum: c.String("expected-checksum"),
		QlogDir:          c.String("qlog-dir"),
		QlogConfig:       qlogConf,
		TlsConfig:        tlsConf,
		QuicConfig:       quicConf,
		Sender:           sender,
		SaveFile:         c.String("cr-save-file"),
		KeyLogFile:       capture.ResolveKeyLogFile(c.String("keylog-file")),
		CaptureIndex:     c.String("capture-index"),
		ReportInterval:   time.Duration(c.Float64("report-interval") * float64(time.Second)),
		PrintRaw:         c.Bool("print-raw"),
		ResultFile:       c.String("result-file"),
		DoneFile:         c.String("done-file"),
		Logger:           logger,
	})
	return err
}

func runServer(c *cli.Context) error {
	logger, err := setup(c)
	if err != nil {
		return err
	}
	qnsTest, err := common.ParseQnsTest(c.String("qns-test"))
	if err != nil {
		return err
	}
	quicConf, err := quicConfig(c)
	if err != nil {
		return err
	}
	qlogConf, err := qlogConfig(c)
	if err != nil {
		return err
	}
	sender, err := senderConfig(c, logger)
	if err != nil {
		return err
	}
	cert, err := common.LoadOrGenerateCert(c.String("tls-cert"), c.String("tls-key"))
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}

	s, err := server.Listen(c.String("addr"), &server.Config{
		Root:         c.String("root"),
		QnsTest:      qnsTest,
		TlsConfig:    &tls.Config{Certificates: []tls.Certificate{cert}},
		QuicConfig:   quicConf,
		QlogDir:      c.String("qlog-dir"),
		QlogConfig:   qlogConf,
		Sender:       sender,
		StallTimeout: c.Duration("cr-stall-timeout"),
		SaveFile:     c.String("cr-save-file"),
		KeyLogFile:   capture.ResolveKeyLogFile(c.String("keylog-file")),
		CaptureIndex: c.String("capture-index"),
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()
	<-ctx.Done()
	logger.Infof("shutting down")
	return s.Close()
}

func main() {
	app := &cli.App{
		Name:  "crperf-go",
		Usage: "A QUIC transfer benchmark with careful resume of congestion state",
		Commands: []*cli.Command{
			{
				Name:      "client",
				Usage:     "run in client mode",
				ArgsUsage: "[https://host:port/path]",
				Flags: append(commonFlags(),
					&cli.StringFlag{
						Name:  "addr",
						Usage: fmt.Sprintf("address to connect to, in the form \"host:port\", default port %d if not specified", common.DefaultServerPort),
					},
					&cli.StringFlag{
						Name:  "path",
						Usage: "path to request, a byte count like /10MiB requests a generated file",
						Value: client.DefaultPath,
					},
					&cli.StringFlag{
						Name:  "output-dir",
						Usage: "directory to store the downloaded file in",
					},
					&cli.StringFlag{
						Name:  "expected-checksum",
						Usage: "hex SHA-256 the downloaded file must match",
					},
					&cli.StringFlag{
						Name:  "tls-cert",
						Usage: "certificate file to trust the server, the server is not verified if not set",
					},
					&cli.StringFlag{
						Name:  "result-file",
						Usage: "write the transfer result as JSON to this file",
					},
					&cli.StringFlag{
						Name:  "done-file",
						Usage: "create this file once the transfer completed",
					},
					&cli.Float64Flag{
						Name:    "report-interval",
						Aliases: []string{"i"},
						Usage:   "seconds between each statistics report",
						Value:   client.DefaultReportInterval.Seconds(),
					},
					&cli.BoolFlag{
						Name:  "print-raw",
						Usage: "output raw statistics, don't calculate metric prefixes",
					},
				),
				Action: runClient,
			},
			{
				Name:  "server",
				Usage: "run in server mode",
				Flags: append(commonFlags(),
					&cli.StringFlag{
						Name:  "addr",
						Usage: "address to listen on",
						Value: fmt.Sprintf("0.0.0.0:%d", common.DefaultServerPort),
					},
					&cli.StringFlag{
						Name:  "root",
						Usage: "directory to serve files from, missing files named like a byte count are generated",
					},
					&cli.StringFlag{
						Name:  "tls-cert",
						Usage: "certificate file to use, a self-signed certificate is generated if not set",
					},
					&cli.StringFlag{
						Name:  "tls-key",
						Usage: "key file to use",
					},
				),
				Action: runServer,
			},
		},
	}

	rtx.Must(app.Run(os.Args), "crperf-go failed")
}

