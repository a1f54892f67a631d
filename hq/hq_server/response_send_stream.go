package hq_server

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/m-lab/go/warnonerror"
	"github.com/quic-go/quic-go"

	"crperf-go/congestion"
	errors2 "crperf-go/errors"
	"crperf-go/hq"
	"crperf-go/metrics"
)

const responseBufferSize = 65536

type ResponseSendStream interface {
	StreamID() quic.StreamID
	Context() context.Context
	Path() string
	SentBytes() uint64
}

type responseSendStream struct {
	quicStream quic.Stream
	connection *connection
	path       string
	sentBytes  atomic.Uint64
	ctx        context.Context
	cancelCtx  context.CancelFunc
}

func newResponseSendStream(quicStream quic.Stream, connection *connection) ResponseSendStream {
	s := &responseSendStream{
		quicStream: quicStream,
		connection: connection,
	}
	s.ctx, s.cancelCtx = context.WithCancel(connection.Context())
	go func() {
		defer s.cancelCtx()
		metrics.ActiveTransfers.WithLabelValues("server").Inc()
		defer metrics.ActiveTransfers.WithLabelValues("server").Dec()
		start := time.Now()
		err := s.run()
		if err != nil {
			s.fail(err)
			return
		}
		metrics.TransferDuration.WithLabelValues("server").Observe(time.Since(start).Seconds())
		s.connection.logger.Infof("sent %s: %d bytes in %s", s.path, s.sentBytes.Load(), time.Since(start))
	}()
	return s
}

func (s *responseSendStream) run() error {
	path, err := hq.ReadRequest(s.quicStream)
	if err != nil {
		return err
	}
	s.path = path
	body, err := s.connection.config.Handler.Open(path)
	if err != nil {
		return err
	}
	defer warnonerror.Close(body, "failed to close response body")

	controller := s.connection.config.Controller(s.connection.Context())
	w := congestion.NewGatedWriter(s.ctx, controller, s.quicStream)
	var buf [responseBufferSize]byte
	for {
		n, readErr := body.Read(buf[:])
		if n > 0 {
			written, err := w.Write(buf[:n])
			s.sentBytes.Add(uint64(written))
			metrics.TransferBytes.WithLabelValues("sent").Add(float64(written))
			if err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	return s.quicStream.Close()
}

// fail resets the stream with a code matching err.
func (s *responseSendStream) fail(err error) {
	code := errors2.InternalErrorStreamCode
	label := "internal"
	var streamErr *quic.StreamError
	switch {
	case errors.Is(err, hq.ErrMalformedRequest):
		code, label = errors2.BadRequestErrorCode, "bad_request"
	case errors.Is(err, hq.ErrNotFound), errors.Is(err, hq.ErrForbidden):
		code, label = errors2.FileNotFoundErrorCode, "not_found"
	case errors.As(err, &streamErr):
		code, label = errors2.RequestCanceledErrorCode, "canceled"
	case s.connection.Context().Err() != nil:
		label = "connection_closed"
	}
	metrics.TransferErrors.WithLabelValues("server", label).Inc()
	s.connection.logger.Infof("request %q failed: %s", s.path, err)
	s.quicStream.CancelRead(code)
	s.quicStream.CancelWrite(code)
}

func (s *responseSendStream) StreamID() quic.StreamID {
	return s.quicStream.StreamID()
}

func (s *responseSendStream) Context() context.Context {
	return s.ctx
}

func (s *responseSendStream) Path() string {
	return s.path
}

func (s *responseSendStream) SentBytes() uint64 {
	return s.sentBytes.Load()
}
