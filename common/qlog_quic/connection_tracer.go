package qlog_quic

// mostly copied from quic-go/qlog/qlog.go

import (
	"net"
	"time"

	"github.com/quic-go/quic-go/logging"

	"crperf-go/common/qlog"
)

type connectionTracer struct {
	qlogWriter                 qlog.Writer
	closeQlogWriterOnQuicClose bool
	odcid                      string
	perspective                logging.Perspective
	lastMetrics                *metrics
	groupID                    string
	config                     config
}

// NewConnectionTracer creates a new tracer to record a qlog for a connection.
func NewConnectionTracer(qlogWriter qlog.Writer, p logging.Perspective, odcid logging.ConnectionID, closeQlogWriterOnQuicClose bool) *logging.ConnectionTracer {
	t := &connectionTracer{
		qlogWriter:                 qlogWriter,
		closeQlogWriterOnQuicClose: closeQlogWriterOnQuicClose,
		perspective:                p,
		odcid:                      odcid.String(),
		groupID:                    odcid.String(),
	}
	t.config.ApplyConf(qlogWriter.Config())
	return &logging.ConnectionTracer{
		StartedConnection:         t.StartedConnection,
		ClosedConnection:          t.ClosedConnection,
		SentLongHeaderPacket:      t.SentLongHeaderPacket,
		SentShortHeaderPacket:     t.SentShortHeaderPacket,
		ReceivedLongHeaderPacket:  t.ReceivedLongHeaderPacket,
		ReceivedShortHeaderPacket: t.ReceivedShortHeaderPacket,
		UpdatedMetrics:            t.UpdatedMetrics,
		LostPacket:                t.LostPacket,
		UpdatedCongestionState:    t.UpdatedCongestionState,
		Close:                     t.Close,
	}
}

func (t *connectionTracer) Close() {
	if t.closeQlogWriterOnQuicClose {
		t.qlogWriter.Close()
	}
}

func (t *connectionTracer) recordEvent(eventTime time.Time, details qlog.EventDetails) {
	t.qlogWriter.RecordEventWithTimeGroupODCID(details, eventTime, t.groupID, t.odcid)
}

func (t *connectionTracer) StartedConnection(local, remote net.Addr, srcConnID, destConnID logging.ConnectionID) {
	if !t.config.LogTransportConnectionStarted {
		return
	}
	// ignore this event if we're not dealing with UDP addresses here
	localAddr, ok := local.(*net.UDPAddr)
	if !ok {
		return
	}
	remoteAddr, ok := remote.(*net.UDPAddr)
	if !ok {
		return
	}
	t.recordEvent(time.Now(), &eventConnectionStarted{
		SrcAddr:          localAddr,
		DestAddr:         remoteAddr,
		SrcConnectionID:  srcConnID,
		DestConnectionID: destConnID,
	})
}

func (t *connectionTracer) ClosedConnection(e error) {
	if !t.config.LogTransportConnectionClosed {
		return
	}
	t.recordEvent(time.Now(), &eventConnectionClosed{e: e})
}

func (t *connectionTracer) SentLongHeaderPacket(hdr *logging.ExtendedHeader, size logging.ByteCount, _ logging.ECN, ack *logging.AckFrame, frames []logging.Frame) {
	if !t.config.LogTransportPacketSent {
		return
	}
	t.recordEvent(time.Now(), &eventPacketSent{
		Header: packetHeader{
			PacketType:   packetType(logging.PacketTypeFromHeader(&hdr.Header)),
			PacketNumber: hdr.PacketNumber,
		},
		Length:    size,
		NumFrames: len(frames),
		HasAck:    ack != nil,
	})
}

func (t *connectionTracer) SentShortHeaderPacket(hdr *logging.ShortHeader, size logging.ByteCount, _ logging.ECN, ack *logging.AckFrame, frames []logging.Frame) {
	if !t.config.LogTransportPacketSent {
		return
	}
	t.recordEvent(time.Now(), &eventPacketSent{
		Header: packetHeader{
			PacketType:   packetType(logging.PacketType1RTT),
			PacketNumber: hdr.PacketNumber,
		},
		Length:    size,
		NumFrames: len(frames),
		HasAck:    ack != nil,
	})
}

func (t *connectionTracer) ReceivedLongHeaderPacket(hdr *logging.ExtendedHeader, size logging.ByteCount, _ logging.ECN, frames []logging.Frame) {
	if !t.config.LogTransportPacketReceived {
		return
	}
	t.recordEvent(time.Now(), &eventPacketReceived{
		Header: packetHeader{
			PacketType:   packetType(logging.PacketTypeFromHeader(&hdr.Header)),
			PacketNumber: hdr.PacketNumber,
		},
		Length:    size,
		NumFrames: len(frames),
	})
}

func (t *connectionTracer) ReceivedShortHeaderPacket(hdr *logging.ShortHeader, size logging.ByteCount, _ logging.ECN, frames []logging.Frame) {
	if !t.config.LogTransportPacketReceived {
		return
	}
	t.recordEvent(time.Now(), &eventPacketReceived{
		Header: packetHeader{
			PacketType:   packetType(logging.PacketType1RTT),
			PacketNumber: hdr.PacketNumber,
		},
		Length:    size,
		NumFrames: len(frames),
	})
}

func (t *connectionTracer) UpdatedMetrics(rttStats *logging.RTTStats, cwnd, bytesInFlight logging.ByteCount, packetsInFlight int) {
	if !t.config.LogRecoveryMetricsUpdated {
		return
	}
	m := &metrics{
		MinRTT:           rttStats.MinRTT(),
		SmoothedRTT:      rttStats.SmoothedRTT(),
		LatestRTT:        rttStats.LatestRTT(),
		RTTVariance:      rttStats.MeanDeviation(),
		CongestionWindow: cwnd,
		BytesInFlight:    bytesInFlight,
		PacketsInFlight:  packetsInFlight,
	}
	if t.lastMetrics != nil && *t.lastMetrics == *m {
		return
	}
	t.recordEvent(time.Now(), &eventMetricsUpdated{
		Last:    t.lastMetrics,
		Current: m,
	})
	t.lastMetrics = m
}

func (t *connectionTracer) LostPacket(encLevel logging.EncryptionLevel, pn logging.PacketNumber, lossReason logging.PacketLossReason) {
	if !t.config.LogRecoveryPacketLost {
		return
	}
	t.recordEvent(time.Now(), &eventPacketLost{
		Header: packetHeader{
			PacketType:   encLevelToPacketType(encLevel),
			PacketNumber: pn,
		},
		Trigger: packetLossReason(lossReason),
	})
}

func (t *connectionTracer) UpdatedCongestionState(state logging.CongestionState) {
	if !t.config.LogRecoveryCongestionStateUpdated {
		return
	}
	t.recordEvent(time.Now(), &eventCongestionStateUpdated{state: congestionState(state)})
}
