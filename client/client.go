package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/m-lab/go/memoryless"
	"github.com/m-lab/go/warnonerror"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"crperf-go/capture"
	"crperf-go/common"
	"crperf-go/common/qlog"
	"crperf-go/common/qlog_app"
	"crperf-go/congestion"
	errors2 "crperf-go/errors"
	"crperf-go/hq"
	"crperf-go/hq/hq_client"
	"crperf-go/metrics"
	"crperf-go/tracing"
)

// ErrChecksumMismatch is returned if the downloaded file does not match the expected checksum.
var ErrChecksumMismatch = errors.New("checksum mismatch")

type client struct {
	config  *Config
	state   common.State
	reports []common.Report
	logger  common.Logger
	tracing *tracing.Tracing
	capture *capture.Index
	conn    quic.Connection
	qlog    qlog.Writer
}

// Run downloads config.Path from config.RemoteAddress.
// The result is returned even if the checksum does not match.
func Run(ctx context.Context, config *Config) (*Result, error) {
	c := &client{
		config: config.Populate(),
	}
	c.logger = c.config.Logger.WithPrefix(c.config.LogPrefix)

	// close gracefully on interrupt (CTRL+C)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	tlsConfig := c.config.TlsConfig
	if c.config.KeyLogFile != "" || c.config.CaptureIndex != "" {
		var err error
		c.capture, err = capture.NewIndex(c.config.KeyLogFile, c.config.CaptureIndex, c.logger)
		if err != nil {
			return nil, err
		}
		defer warnonerror.Close(c.capture, "failed to close capture index")
		remote, err := common.ParseResolveHost(c.config.RemoteAddress, common.DefaultServerPort)
		if err != nil {
			return nil, fmt.Errorf("invalid server address: %w", err)
		}
		tlsConfig = c.capture.ClientTLSConfig(tlsConfig, remote.String())
	}
	c.tracing = tracing.New(&tracing.Config{
		QlogDir:    c.config.QlogDir,
		QlogConfig: c.config.QlogConfig,
		QlogLabel:  DefaultQlogLabel,
		Sender:     c.config.Sender,
		Capture:    c.capture,
		Logger:     c.logger,
	})
	quicConfig := c.config.QuicConfig.Clone()
	quicConfig.Tracer = common.NewMultiplexedTracer(quicConfig.Tracer, c.tracing.ConnectionTracer)

	c.state.SetStartTime()
	body, closeConn, err := c.request(ctx, tlsConfig, quicConfig)
	if err != nil {
		metrics.TransferErrors.WithLabelValues("client", "request").Inc()
		return nil, err
	}
	defer closeConn()

	metrics.ActiveTransfers.WithLabelValues("client").Inc()
	defer metrics.ActiveTransfers.WithLabelValues("client").Dec()
	result, err := c.receive(ctx, body)
	if err != nil {
		metrics.TransferErrors.WithLabelValues("client", "receive").Inc()
		c.recordError("receive", err)
		return nil, err
	}
	metrics.TransferDuration.WithLabelValues("client").Observe(result.Duration.Seconds())

	if c.config.SaveFile != "" {
		if saved, ok := c.observed(result); ok {
			if err := congestion.SaveParameters(c.config.SaveFile, saved); err != nil {
				c.logger.Errorf("failed to save congestion parameters: %s", err)
			} else if c.qlog != nil {
				c.qlog.RecordEvent(qlog_app.InfoEvent{
					Message: fmt.Sprintf("saved rtt %s, cwnd %d to %s", saved.RTT, saved.Cwnd, c.config.SaveFile),
				})
			}
		}
	}
	if c.config.ResultFile != "" {
		if err := result.WriteFile(c.config.ResultFile); err != nil {
			return result, err
		}
	}
	if c.config.DoneFile != "" {
		if err := touch(c.config.DoneFile, result.RunID.String()+"\n"); err != nil {
			return result, fmt.Errorf("failed to create done file: %w", err)
		}
	}
	if result.ExpectedChecksum != "" && !result.ChecksumMatch {
		metrics.TransferErrors.WithLabelValues("client", "checksum").Inc()
		err := fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, result.ExpectedChecksum, result.Checksum)
		c.recordError("checksum_mismatch", err)
		return result, err
	}
	return result, nil
}

// request returns the response body and a function to close the connection.
func (c *client) request(ctx context.Context, tlsConfig *tls.Config, quicConfig *quic.Config) (io.Reader, func(), error) {
	switch c.config.QnsTest {
	case common.QnsTestHTTP3:
		roundTripper := &http3.RoundTripper{
			TLSClientConfig: tlsConfig,
			QuicConfig:      quicConfig,
			Dial: func(ctx context.Context, addr string, tlsCfg *tls.Config, cfg *quic.Config) (quic.EarlyConnection, error) {
				conn, err := quic.DialAddrEarly(ctx, addr, tlsCfg, cfg)
				if err != nil {
					return nil, err
				}
				c.onConnection(conn)
				c.recordRequest()
				return conn, nil
			},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+c.config.RemoteAddress+c.requestPath(), nil)
		if err != nil {
			return nil, nil, err
		}
		resp, err := roundTripper.RoundTrip(req)
		if err != nil {
			_ = roundTripper.Close()
			return nil, nil, fmt.Errorf("request failed: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			_ = roundTripper.Close()
			return nil, nil, fmt.Errorf("request failed: %s", resp.Status)
		}
		return resp.Body, func() {
			warnonerror.Close(resp.Body, "failed to close response body")
			warnonerror.Close(roundTripper, "failed to close connection")
		}, nil
	default:
		tlsConfig = tlsConfig.Clone()
		tlsConfig.NextProtos = []string{hq.ALPN}
		hqClient, err := hq_client.DialAddr(ctx, c.config.RemoteAddress, &hq_client.Config{
			TlsConfig:  tlsConfig,
			QuicConfig: quicConfig,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to establish connection: %w", err)
		}
		c.onConnection(hqClient.QuicConn())
		c.recordRequest()
		resp, err := hqClient.Get(c.requestPath())
		if err != nil {
			_ = hqClient.Close()
			return nil, nil, fmt.Errorf("request failed: %w", err)
		}
		go func() {
			<-ctx.Done()
			resp.Cancel()
		}()
		return resp, func() {
			warnonerror.Close(hqClient, "failed to close connection")
		}, nil
	}
}

func (c *client) requestPath() string {
	if path.IsAbs(c.config.Path) {
		return c.config.Path
	}
	return "/" + c.config.Path
}

func (c *client) onConnection(conn quic.Connection) {
	c.state.SetEstablishmentTime()
	c.conn = conn
	c.qlog = c.tracing.Qlog(conn)
	c.tracing.AttachTransport(conn)
	metrics.Connections.WithLabelValues("client").Inc()
	c.reportEstablishmentTime()
}

func (c *client) recordRequest() {
	if c.qlog != nil {
		c.qlog.RecordEvent(common.RequestSentEvent{Path: c.requestPath()})
	}
}

func (c *client) recordError(code string, err error) {
	if c.qlog != nil {
		c.qlog.RecordEvent(qlog_app.ErrorEvent{Code: code, Message: err.Error()})
	}
}

func (c *client) output() (io.WriteCloser, error) {
	if c.config.OutputDir == "" {
		return nil, nil
	}
	name := path.Base(c.requestPath())
	if name == "/" || name == "." {
		name = "index.html"
	}
	if err := os.MkdirAll(c.config.OutputDir, 0o755); err != nil {
		return nil, err
	}
	return os.Create(filepath.Join(c.config.OutputDir, name))
}

func (c *client) receive(ctx context.Context, body io.Reader) (*Result, error) {
	out, err := c.output()
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	checksum := common.NewChecksumWriter()
	writers := []io.Writer{checksum}
	if out != nil {
		writers = append(writers, out)
	}

	reportCtx, stopReports := context.WithCancel(ctx)
	reportsDone := c.runReports(reportCtx)

	firstByte := true
	_, err = io.CopyBuffer(io.MultiWriter(writers...), common.NewCountingReader(body, func(n int) {
		c.state.AddReceivedBytes(uint64(n))
		if n > 0 && firstByte {
			firstByte = false
			c.reportFirstByte()
			if c.qlog != nil {
				c.qlog.RecordEvent(common.FirstAppDataReceivedEvent{})
			}
		}
	}), make([]byte, 65536))
	c.state.SetCompletionTime()
	stopReports()
	<-reportsDone
	if out != nil {
		if closeErr := out.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to write output file: %w", closeErr)
		}
	}
	if err != nil {
		var streamErr *quic.StreamError
		if errors.As(err, &streamErr) && streamErr.ErrorCode == errors2.FileNotFoundErrorCode {
			return nil, fmt.Errorf("%s: %w", c.requestPath(), hq.ErrNotFound)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	result := c.result(checksum.Sum())
	c.reportTotal(result)
	if c.qlog != nil {
		c.qlog.RecordEvent(common.TransferCompletedEvent{
			Bytes:            result.Bytes,
			Duration:         result.Duration,
			Checksum:         result.Checksum,
			ExpectedChecksum: result.ExpectedChecksum,
			ChecksumMatch:    result.ChecksumMatch,
		})
	}
	return result, nil
}

func (c *client) controller() *congestion.Controller {
	if c.conn == nil {
		return nil
	}
	return c.tracing.Controller(c.conn)
}

func (c *client) result(checksum string) *Result {
	bytes, _ := c.state.Total()
	start := c.state.StartTime()
	result := &Result{
		RunID:             uuid.New(),
		RemoteAddress:     c.config.RemoteAddress,
		Path:              c.requestPath(),
		Bytes:             bytes,
		EstablishmentTime: c.state.EstablishmentTime().Sub(start),
		Duration:          c.state.CompletionTime().Sub(start),
		Rates:             common.SummarizeRates(c.reports),
		Checksum:          checksum,
		ExpectedChecksum:  c.config.ExpectedChecksum,
	}
	if firstByte, ok := c.state.FirstByteTime(); ok {
		result.TimeToFirstByte = firstByte.Sub(start)
	}
	if transfer := c.state.CompletionTime().Sub(c.state.EstablishmentTime()); transfer > 0 {
		result.Goodput = float64(bytes) * 8 / transfer.Seconds()
	}
	if controller := c.controller(); controller != nil {
		snapshot := controller.Snapshot()
		result.SmoothedRTT = snapshot.SmoothedRTT
		result.MinRTT = snapshot.MinRTT
		if snapshot.ResumeEnabled {
			result.CarefulResume = snapshot.Phase.String()
		}
	}
	if result.ExpectedChecksum != "" {
		result.ChecksumMatch = common.ChecksumMatches(result.ExpectedChecksum, checksum)
	}
	return result
}

// observed estimates the parameters of the download path: the minimum RTT
// and the bandwidth delay product of the best reporting interval.
func (c *client) observed(result *Result) (congestion.SavedParameters, bool) {
	rate := math.Max(result.Rates.Max, result.Goodput)
	p := congestion.SavedParameters{
		RTT:  result.MinRTT,
		Cwnd: int(rate / 8 * result.MinRTT.Seconds()),
	}
	p.Enabled = p.RTT > 0 && p.Cwnd > 0
	return p, p.Enabled
}

func (c *client) runReports(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if c.config.ReportInterval == time.Duration(math.MaxInt64) {
		close(done)
		return done
	}
	ticker, err := memoryless.NewTicker(ctx, memoryless.Config{
		Min:      c.config.ReportInterval,
		Expected: c.config.ReportInterval,
		Max:      c.config.ReportInterval,
	})
	if err != nil {
		c.logger.Errorf("reports disabled: %s", err)
		close(done)
		return done
	}
	go func() {
		defer close(done)
		// the ticker closes its channel once ctx is done
		for range ticker.C {
			c.report()
		}
	}()
	return done
}

func (c *client) reportEstablishmentTime() {
	establishmentTime := c.state.EstablishmentTime().Sub(c.state.StartTime())
	if c.config.PrintRaw {
		c.logger.Infof("connection establishment time: %f s",
			establishmentTime.Seconds())
	} else {
		c.logger.Infof("connection establishment time: %s",
			humanize.SIWithDigits(establishmentTime.Seconds(), 2, "s"))
	}
}

func (c *client) reportFirstByte() {
	firstByte, _ := c.state.FirstByteTime()
	if c.config.PrintRaw {
		c.logger.Infof("time to first byte: %f s",
			firstByte.Sub(c.state.StartTime()).Seconds())
	} else {
		c.logger.Infof("time to first byte: %s",
			humanize.SIWithDigits(firstByte.Sub(c.state.StartTime()).Seconds(), 2, "s"))
	}
}

func (c *client) report() {
	receivedBytes, receivedPackets, delta := c.state.GetAndResetReport()
	report := common.Report{
		Period:          delta,
		ReceivedBytes:   receivedBytes,
		ReceivedPackets: receivedPackets,
	}
	c.reports = append(c.reports, report)
	firstByte, ok := c.state.FirstByteTime()
	if !ok {
		firstByte = c.state.StartTime()
	}
	second := time.Since(firstByte).Seconds()

	event := common.ReportEvent{
		Period:        delta,
		BytesReceived: receivedBytes,
		Rate:          report.BitsPerSecond(),
	}
	phase := ""
	if controller := c.controller(); controller != nil {
		snapshot := controller.Snapshot()
		event.MinRTT = &snapshot.MinRTT
		event.Cwnd = &snapshot.Cwnd
		if snapshot.ResumeEnabled {
			event.Phase = snapshot.Phase.String()
			phase = ", careful resume: " + event.Phase
		}
	}
	if c.qlog != nil {
		c.qlog.RecordEvent(event)
	}

	if c.config.PrintRaw {
		c.logger.Infof("second %f: %f bit/s, bytes received: %d B%s",
			second,
			report.BitsPerSecond(),
			receivedBytes,
			phase)
	} else {
		c.logger.Infof("second %.1f: %s, bytes received: %s%s",
			second,
			humanize.SIWithDigits(report.BitsPerSecond(), 2, "bit/s"),
			humanize.SI(float64(receivedBytes), "B"),
			phase)
	}
}

func (c *client) reportTotal(result *Result) {
	if c.config.PrintRaw {
		c.logger.Infof("total: bytes received: %d B, duration: %f s, goodput: %f bit/s",
			result.Bytes,
			result.Duration.Seconds(),
			result.Goodput)
	} else {
		c.logger.Infof("total: bytes received: %s, duration: %s, goodput: %s",
			humanize.SI(float64(result.Bytes), "B"),
			humanize.SIWithDigits(result.Duration.Seconds(), 2, "s"),
			humanize.SIWithDigits(result.Goodput, 2, "bit/s"))
	}
	if result.Rates.Samples > 1 && !c.config.PrintRaw {
		c.logger.Infof("interval rates: mean %s, stddev %s, p50 %s, p95 %s",
			humanize.SIWithDigits(result.Rates.Mean, 2, "bit/s"),
			humanize.SIWithDigits(result.Rates.StdDev, 2, "bit/s"),
			humanize.SIWithDigits(result.Rates.Median, 2, "bit/s"),
			humanize.SIWithDigits(result.Rates.P95, 2, "bit/s"))
	}
	c.logger.Infof("checksum: %s", result.Checksum)
	if result.ExpectedChecksum != "" {
		c.logger.Infof("expected checksum: %s, match: %t", result.ExpectedChecksum, result.ChecksumMatch)
	}
}
