package qlog_quic

// mostly copied from quic-go/qlog/event.go

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/francoispqt/gojay"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/logging"

	"crperf-go/common/qlog"
)

func milliseconds(dur time.Duration) float64 { return qlog.Milliseconds(dur) }

type eventConnectionStarted struct {
	SrcAddr          *net.UDPAddr
	DestAddr         *net.UDPAddr
	SrcConnectionID  logging.ConnectionID
	DestConnectionID logging.ConnectionID
}

var _ qlog.EventDetails = &eventConnectionStarted{}

func (e eventConnectionStarted) Category() string { return categoryTransport }
func (e eventConnectionStarted) Name() string     { return "connection_started" }
func (e eventConnectionStarted) IsNil() bool      { return false }

func (e eventConnectionStarted) MarshalJSONObject(enc *gojay.Encoder) {
	if e.SrcAddr.IP.To4() != nil {
		enc.StringKey("ip_version", "ipv4")
	} else {
		enc.StringKey("ip_version", "ipv6")
	}
	enc.StringKey("src_ip", e.SrcAddr.IP.String())
	enc.IntKey("src_port", e.SrcAddr.Port)
	enc.StringKey("dst_ip", e.DestAddr.IP.String())
	enc.IntKey("dst_port", e.DestAddr.Port)
	enc.StringKey("src_cid", e.SrcConnectionID.String())
	enc.StringKey("dst_cid", e.DestConnectionID.String())
}

type eventConnectionClosed struct {
	e error
}

func (e eventConnectionClosed) Category() string { return categoryTransport }
func (e eventConnectionClosed) Name() string     { return "connection_closed" }
func (e eventConnectionClosed) IsNil() bool      { return false }

func (e eventConnectionClosed) MarshalJSONObject(enc *gojay.Encoder) {
	var (
		statelessResetErr     *quic.StatelessResetError
		handshakeTimeoutErr   *quic.HandshakeTimeoutError
		idleTimeoutErr        *quic.IdleTimeoutError
		applicationErr        *quic.ApplicationError
		transportErr          *quic.TransportError
		versionNegotiationErr *quic.VersionNegotiationError
	)
	switch {
	case errors.As(e.e, &statelessResetErr):
		enc.StringKey("owner", ownerRemote.String())
		enc.StringKey("trigger", "stateless_reset")
		enc.StringKey("stateless_reset_token", fmt.Sprintf("%x", statelessResetErr.Token))
	case errors.As(e.e, &handshakeTimeoutErr):
		enc.StringKey("owner", ownerLocal.String())
		enc.StringKey("trigger", "handshake_timeout")
	case errors.As(e.e, &idleTimeoutErr):
		enc.StringKey("owner", ownerLocal.String())
		enc.StringKey("trigger", "idle_timeout")
	case errors.As(e.e, &applicationErr):
		o := ownerLocal
		if applicationErr.Remote {
			o = ownerRemote
		}
		enc.StringKey("owner", o.String())
		enc.Uint64Key("application_code", uint64(applicationErr.ErrorCode))
		enc.StringKey("reason", applicationErr.ErrorMessage)
	case errors.As(e.e, &transportErr):
		o := ownerLocal
		if transportErr.Remote {
			o = ownerRemote
		}
		enc.StringKey("owner", o.String())
		enc.StringKey("connection_code", transportError(transportErr.ErrorCode).String())
		enc.StringKey("reason", transportErr.ErrorMessage)
	case errors.As(e.e, &versionNegotiationErr):
		enc.StringKey("trigger", "version_mismatch")
	}
}

type packetHeader struct {
	PacketType   packetType
	PacketNumber logging.PacketNumber
}

func (h packetHeader) IsNil() bool { return false }
func (h packetHeader) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("packet_type", h.PacketType.String())
	enc.Int64Key("packet_number", int64(h.PacketNumber))
}

type eventPacketSent struct {
	Header    packetHeader
	Length    logging.ByteCount
	NumFrames int
	HasAck    bool
}

func (e eventPacketSent) Category() string { return categoryTransport }
func (e eventPacketSent) Name() string     { return "packet_sent" }
func (e eventPacketSent) IsNil() bool      { return false }

func (e eventPacketSent) MarshalJSONObject(enc *gojay.Encoder) {
	enc.ObjectKey("header", e.Header)
	enc.ObjectKey("raw", rawInfo{Length: e.Length})
	enc.IntKey("frame_count", e.NumFrames)
	enc.BoolKeyOmitEmpty("ack", e.HasAck)
}

type eventPacketReceived struct {
	Header    packetHeader
	Length    logging.ByteCount
	NumFrames int
}

func (e eventPacketReceived) Category() string { return categoryTransport }
func (e eventPacketReceived) Name() string     { return "packet_received" }
func (e eventPacketReceived) IsNil() bool      { return false }

func (e eventPacketReceived) MarshalJSONObject(enc *gojay.Encoder) {
	enc.ObjectKey("header", e.Header)
	enc.ObjectKey("raw", rawInfo{Length: e.Length})
	enc.IntKey("frame_count", e.NumFrames)
}

type rawInfo struct {
	Length logging.ByteCount
}

func (i rawInfo) IsNil() bool { return false }
func (i rawInfo) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Uint64Key("length", uint64(i.Length))
}

type metrics struct {
	MinRTT           time.Duration
	SmoothedRTT      time.Duration
	LatestRTT        time.Duration
	RTTVariance      time.Duration
	CongestionWindow logging.ByteCount
	BytesInFlight    logging.ByteCount
	PacketsInFlight  int
}

type eventMetricsUpdated struct {
	Last    *metrics
	Current *metrics
}

func (e eventMetricsUpdated) Category() string { return categoryRecovery }
func (e eventMetricsUpdated) Name() string     { return "metrics_updated" }
func (e eventMetricsUpdated) IsNil() bool      { return false }

// MarshalJSONObject only writes the fields that changed since the last event
func (e eventMetricsUpdated) MarshalJSONObject(enc *gojay.Encoder) {
	if e.Last == nil || e.Last.MinRTT != e.Current.MinRTT {
		enc.FloatKey("min_rtt", milliseconds(e.Current.MinRTT))
	}
	if e.Last == nil || e.Last.SmoothedRTT != e.Current.SmoothedRTT {
		enc.FloatKey("smoothed_rtt", milliseconds(e.Current.SmoothedRTT))
	}
	if e.Last == nil || e.Last.LatestRTT != e.Current.LatestRTT {
		enc.FloatKey("latest_rtt", milliseconds(e.Current.LatestRTT))
	}
	if e.Last == nil || e.Last.RTTVariance != e.Current.RTTVariance {
		enc.FloatKey("rtt_variance", milliseconds(e.Current.RTTVariance))
	}
	if e.Last == nil || e.Last.CongestionWindow != e.Current.CongestionWindow {
		enc.Uint64Key("congestion_window", uint64(e.Current.CongestionWindow))
	}
	if e.Last == nil || e.Last.BytesInFlight != e.Current.BytesInFlight {
		enc.Uint64Key("bytes_in_flight", uint64(e.Current.BytesInFlight))
	}
	if e.Last == nil || e.Last.PacketsInFlight != e.Current.PacketsInFlight {
		enc.Uint64Key("packets_in_flight", uint64(e.Current.PacketsInFlight))
	}
}

type eventPacketLost struct {
	Header  packetHeader
	Trigger packetLossReason
}

func (e eventPacketLost) Category() string { return categoryRecovery }
func (e eventPacketLost) Name() string     { return "packet_lost" }
func (e eventPacketLost) IsNil() bool      { return false }

func (e eventPacketLost) MarshalJSONObject(enc *gojay.Encoder) {
	enc.ObjectKey("header", e.Header)
	enc.StringKey("trigger", e.Trigger.String())
}

type eventCongestionStateUpdated struct {
	state congestionState
}

func (e eventCongestionStateUpdated) Category() string { return categoryRecovery }
func (e eventCongestionStateUpdated) Name() string     { return "congestion_state_updated" }
func (e eventCongestionStateUpdated) IsNil() bool      { return false }

func (e eventCongestionStateUpdated) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("new", e.state.String())
}
