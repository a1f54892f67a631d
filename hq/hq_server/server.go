package hq_server

import (
	"context"
	"net"
	"sync"

	"github.com/quic-go/quic-go"

	"crperf-go/metrics"
)

type Server interface {
	Addr() net.Addr
	Close()
	Context() context.Context
}

type server struct {
	config    *Config
	listener  *quic.Listener
	ctx       context.Context
	cancelCtx context.CancelFunc
	closeOnce sync.Once
	err       error
}

func (s *server) Context() context.Context {
	return s.ctx
}

func ListenAddr(addr string, config *Config) (Server, error) {
	config = config.Populate()
	listener, err := quic.ListenAddr(addr, config.TlsConfig, config.QuicConfig)
	if err != nil {
		return nil, err
	}
	return serve(listener, config), nil
}

// Listen serves on conn, which is not closed by the server.
func Listen(conn net.PacketConn, config *Config) (Server, error) {
	config = config.Populate()
	listener, err := quic.Listen(conn, config.TlsConfig, config.QuicConfig)
	if err != nil {
		return nil, err
	}
	return serve(listener, config), nil
}

func serve(listener *quic.Listener, config *Config) *server {
	s := &server{
		config:   config,
		listener: listener,
	}
	s.ctx, s.cancelCtx = context.WithCancel(context.Background())
	go func() {
		err := s.run()
		if err != nil {
			s.close(err)
		}
	}()
	return s
}

func (s *server) run() error {
	for {
		quicConn, err := s.listener.Accept(s.ctx)
		if err != nil {
			return err
		}
		metrics.Connections.WithLabelValues("server").Inc()
		if s.config.OnConnection != nil {
			s.config.OnConnection(quicConn)
		}
		NewConnection(quicConn, s.config)
	}
}

func (s *server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *server) Close() {
	s.close(nil)
}

func (s *server) close(err error) {
	s.closeOnce.Do(func() {
		if err != nil && s.ctx.Err() == nil {
			s.config.Logger.Errorf("stopped accepting connections: %s", err)
		}
		s.err = s.listener.Close()
		s.cancelCtx()
	})
}
