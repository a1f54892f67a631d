package hq_client

import (
	"io"
	"sync/atomic"

	"github.com/quic-go/quic-go"

	errors2 "crperf-go/errors"
)

type ResponseReceiveStream interface {
	io.Reader
	ReceivedBytes() uint64
	// Cancel stops reading the response
	Cancel()
	StreamID() quic.StreamID
}

type responseReceiveStream struct {
	receivedBytes atomic.Uint64
	client        *client
	quicStream    quic.ReceiveStream
}

func newResponseReceiveStream(quicStream quic.ReceiveStream, client *client) ResponseReceiveStream {
	return &responseReceiveStream{
		client:     client,
		quicStream: quicStream,
	}
}

func (s *responseReceiveStream) Read(p []byte) (int, error) {
	n, err := s.quicStream.Read(p)
	s.receivedBytes.Add(uint64(n))
	s.client.receivedBytes.Add(uint64(n))
	return n, err
}

func (s *responseReceiveStream) ReceivedBytes() uint64 {
	return s.receivedBytes.Load()
}

func (s *responseReceiveStream) Cancel() {
	s.quicStream.CancelRead(errors2.RequestCanceledErrorCode)
}

func (s *responseReceiveStream) StreamID() quic.StreamID {
	return s.quicStream.StreamID()
}
