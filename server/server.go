package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/m-lab/go/warnonerror"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"crperf-go/capture"
	"crperf-go/common"
	"crperf-go/congestion"
	"crperf-go/hq"
	"crperf-go/hq/hq_server"
	"crperf-go/metrics"
	"crperf-go/tracing"
)

type Server interface {
	Addr() net.Addr
	Close() error
	// Context is done when the server stopped
	Context() context.Context
}

type server struct {
	config    *Config
	files     *FileHandler
	tracing   *tracing.Tracing
	capture   *capture.Index
	hqServer  hq_server.Server
	h3Server  *http3.Server
	h3Conn    net.PacketConn
	logger    common.Logger
	ctx       context.Context
	cancelCtx context.CancelFunc
	closeOnce sync.Once
}

// Listen starts serving files on addr.
func Listen(addr string, config *Config) (Server, error) {
	s := &server{
		config: config.Populate(),
	}
	s.logger = s.config.Logger
	s.files = &FileHandler{Root: s.config.Root}
	s.ctx, s.cancelCtx = context.WithCancel(context.Background())

	tlsConfig := s.config.TlsConfig
	if s.config.QnsTest != common.QnsTestHTTP3 && len(tlsConfig.NextProtos) == 0 {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.NextProtos = []string{hq.ALPN}
	}
	if s.config.KeyLogFile != "" || s.config.CaptureIndex != "" {
		var err error
		s.capture, err = capture.NewIndex(s.config.KeyLogFile, s.config.CaptureIndex, s.logger)
		if err != nil {
			return nil, err
		}
		tlsConfig = s.capture.ServerTLSConfig(tlsConfig)
	}

	s.tracing = tracing.New(&tracing.Config{
		QlogDir:      s.config.QlogDir,
		QlogConfig:   s.config.QlogConfig,
		QlogLabel:    DefaultQlogLabel,
		Sender:       s.config.Sender,
		StallTimeout: s.config.StallTimeout,
		SaveFile:     s.config.SaveFile,
		Capture:      s.capture,
		Logger:       s.logger,
	})
	quicConfig := s.config.QuicConfig.Clone()
	quicConfig.Tracer = common.NewMultiplexedTracer(quicConfig.Tracer, s.tracing.ConnectionTracer)

	var err error
	switch s.config.QnsTest {
	case common.QnsTestHTTP3:
		err = s.listenHTTP3(addr, tlsConfig, quicConfig)
	default:
		hqConfig := &hq_server.Config{
			TlsConfig:    tlsConfig,
			QuicConfig:   quicConfig,
			Handler:      s.files,
			Controller:   s.tracing.ControllerContext,
			OnConnection: s.tracing.AttachTransport,
			Logger:       s.logger,
		}
		if s.config.PacketConn != nil {
			s.hqServer, err = hq_server.Listen(s.config.PacketConn, hqConfig)
		} else {
			s.hqServer, err = hq_server.ListenAddr(addr, hqConfig)
		}
	}
	if err != nil {
		s.closeCapture()
		return nil, err
	}

	cc := "none"
	if s.config.Sender != nil {
		cc = s.config.Sender.Algorithm.String()
	}
	s.logger.Infof("listening on %s, qns-test %s, cc %s, root %q", s.Addr(), s.config.QnsTest, cc, s.config.Root)
	return s, nil
}

func (s *server) listenHTTP3(addr string, tlsConfig *tls.Config, quicConfig *quic.Config) error {
	s.h3Conn = s.config.PacketConn
	if s.h3Conn == nil {
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return err
		}
		s.h3Conn, err = net.ListenUDP("udp", udpAddr)
		if err != nil {
			return err
		}
	}
	s.h3Server = &http3.Server{
		TLSConfig:  tlsConfig,
		QuicConfig: quicConfig,
		Handler:    http.HandlerFunc(s.serveHTTP),
		ConnContext: func(ctx context.Context, conn quic.Connection) context.Context {
			s.tracing.AttachTransport(conn)
			return ctx
		},
	}
	go func() {
		err := s.h3Server.Serve(s.h3Conn)
		if err != nil && !errors.Is(err, http.ErrServerClosed) && s.ctx.Err() == nil {
			s.logger.Errorf("http3 server stopped: %s", err)
		}
	}()
	return nil
}

func (s *server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.ActiveTransfers.WithLabelValues("server").Inc()
	defer metrics.ActiveTransfers.WithLabelValues("server").Dec()
	if r.Method != http.MethodGet {
		metrics.TransferErrors.WithLabelValues("server", "bad_request").Inc()
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	size, err := s.files.Size(r.URL.Path)
	if err != nil {
		s.httpError(w, r, err)
		return
	}
	body, err := s.files.Open(r.URL.Path)
	if err != nil {
		s.httpError(w, r, err)
		return
	}
	defer warnonerror.Close(body, "failed to close response body")

	var controller *congestion.Controller
	if hijacker, ok := w.(http3.Hijacker); ok {
		controller = s.tracing.ControllerContext(hijacker.StreamCreator().Context())
	}
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	n, err := io.Copy(congestion.NewGatedWriter(r.Context(), controller, w), body)
	metrics.TransferBytes.WithLabelValues("sent").Add(float64(n))
	if err != nil {
		metrics.TransferErrors.WithLabelValues("server", "canceled").Inc()
		s.logger.Infof("request %q failed: %s", r.URL.Path, err)
		return
	}
	s.logger.Infof("sent %s: %d bytes", r.URL.Path, n)
}

func (s *server) httpError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Infof("request %q failed: %s", r.URL.Path, err)
	switch {
	case errors.Is(err, hq.ErrForbidden):
		metrics.TransferErrors.WithLabelValues("server", "not_found").Inc()
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, hq.ErrNotFound):
		metrics.TransferErrors.WithLabelValues("server", "not_found").Inc()
		http.NotFound(w, r)
	default:
		metrics.TransferErrors.WithLabelValues("server", "internal").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *server) Addr() net.Addr {
	if s.h3Conn != nil {
		return s.h3Conn.LocalAddr()
	}
	return s.hqServer.Addr()
}

func (s *server) Context() context.Context {
	return s.ctx
}

func (s *server) closeCapture() {
	if s.capture != nil {
		warnonerror.Close(s.capture, "failed to close capture index")
	}
}

func (s *server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancelCtx()
		if s.h3Server != nil {
			err = s.h3Server.Close()
			if closeErr := s.h3Conn.Close(); err == nil {
				err = closeErr
			}
		}
		if s.hqServer != nil {
			s.hqServer.Close()
			if s.config.PacketConn != nil {
				err = s.config.PacketConn.Close()
			}
		}
		s.closeCapture()
		if err != nil {
			err = fmt.Errorf("failed to close server: %w", err)
		}
	})
	return err
}
