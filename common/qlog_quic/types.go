package qlog_quic

// mostly copied from quic-go/qlog/types.go

import (
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/logging"
)

// category is the qlog event category.
type category = string

const (
	categoryTransport category = "transport"
	categoryRecovery  category = "recovery"
)

type owner uint8

const (
	ownerLocal owner = iota
	ownerRemote
)

func (o owner) String() string {
	switch o {
	case ownerLocal:
		return "local"
	case ownerRemote:
		return "remote"
	default:
		return "unknown owner"
	}
}

func encLevelToPacketNumberSpace(encLevel logging.EncryptionLevel) string {
	switch encLevel {
	case logging.EncryptionInitial:
		return "initial"
	case logging.EncryptionHandshake:
		return "handshake"
	case logging.Encryption0RTT, logging.Encryption1RTT:
		return "application_data"
	default:
		return "unknown encryption level"
	}
}

func encLevelToPacketType(encLevel logging.EncryptionLevel) packetType {
	switch encLevel {
	case logging.EncryptionInitial:
		return packetType(logging.PacketTypeInitial)
	case logging.EncryptionHandshake:
		return packetType(logging.PacketTypeHandshake)
	case logging.Encryption0RTT:
		return packetType(logging.PacketType0RTT)
	case logging.Encryption1RTT:
		return packetType(logging.PacketType1RTT)
	default:
		return packetType(logging.PacketTypeNotDetermined)
	}
}

type transportError uint64

func (e transportError) String() string {
	switch quic.TransportErrorCode(e) {
	case quic.NoError:
		return "no_error"
	case quic.InternalError:
		return "internal_error"
	case quic.ConnectionRefused:
		return "connection_refused"
	case quic.FlowControlError:
		return "flow_control_error"
	case quic.StreamLimitError:
		return "stream_limit_error"
	case quic.StreamStateError:
		return "stream_state_error"
	case quic.FinalSizeError:
		return "final_size_error"
	case quic.FrameEncodingError:
		return "frame_encoding_error"
	case quic.TransportParameterError:
		return "transport_parameter_error"
	case quic.ConnectionIDLimitError:
		return "connection_id_limit_error"
	case quic.ProtocolViolation:
		return "protocol_violation"
	case quic.InvalidToken:
		return "invalid_token"
	case quic.ApplicationErrorErrorCode:
		return "application_error"
	case quic.CryptoBufferExceeded:
		return "crypto_buffer_exceeded"
	case quic.KeyUpdateError:
		return "key_update_error"
	case quic.AEADLimitReached:
		return "aead_limit_reached"
	default:
		return ""
	}
}

type packetType logging.PacketType

func (t packetType) String() string {
	switch logging.PacketType(t) {
	case logging.PacketTypeInitial:
		return "initial"
	case logging.PacketTypeHandshake:
		return "handshake"
	case logging.PacketTypeRetry:
		return "retry"
	case logging.PacketType0RTT:
		return "0RTT"
	case logging.PacketTypeVersionNegotiation:
		return "version_negotiation"
	case logging.PacketTypeStatelessReset:
		return "stateless_reset"
	case logging.PacketType1RTT:
		return "1RTT"
	case logging.PacketTypeNotDetermined:
		return ""
	default:
		return "unknown packet type"
	}
}

type packetLossReason logging.PacketLossReason

func (r packetLossReason) String() string {
	switch logging.PacketLossReason(r) {
	case logging.PacketLossReorderingThreshold:
		return "reordering_threshold"
	case logging.PacketLossTimeThreshold:
		return "time_threshold"
	default:
		return "unknown loss reason"
	}
}

type congestionState logging.CongestionState

func (s congestionState) String() string {
	switch logging.CongestionState(s) {
	case logging.CongestionStateSlowStart:
		return "slow_start"
	case logging.CongestionStateCongestionAvoidance:
		return "congestion_avoidance"
	case logging.CongestionStateRecovery:
		return "recovery"
	case logging.CongestionStateApplicationLimited:
		return "application_limited"
	default:
		return "unknown congestion state"
	}
}
