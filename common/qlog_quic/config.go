package qlog_quic

import (
	"fmt"
	"reflect"

	"crperf-go/common/qlog"
)

type config struct {
	LogTransportConnectionStarted     bool
	LogTransportConnectionClosed      bool
	LogTransportPacketReceived        bool
	LogTransportPacketSent            bool
	LogRecoveryMetricsUpdated         bool
	LogRecoveryPacketLost             bool
	LogRecoveryCongestionStateUpdated bool
}

func (c *config) ApplyConf(qlogConfig qlog.Config) {
	c.SetIncludeAll(!qlogConfig.ExcludeEventsByDefault)
	for name, include := range qlogConfig.IncludedEvents {
		c.SetIncludeByName(fmt.Sprintf("%s:%s", name.Category, name.Name), include)
	}
}

func (c *config) SetIncludeAll(include bool) {
	v := reflect.ValueOf(c).Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		f.SetBool(include)
	}
}

// SetIncludeByName
// does nothing if name does not match
func (c *config) SetIncludeByName(name string, include bool) {
	switch name {
	case "transport:connection_started":
		c.LogTransportConnectionStarted = include
	case "transport:connection_closed":
		c.LogTransportConnectionClosed = include
	case "transport:packet_sent":
		c.LogTransportPacketSent = include
	case "transport:packet_received":
		c.LogTransportPacketReceived = include
	case "recovery:metrics_updated":
		c.LogRecoveryMetricsUpdated = include
	case "recovery:packet_lost":
		c.LogRecoveryPacketLost = include
	case "recovery:congestion_state_updated":
		c.LogRecoveryCongestionStateUpdated = include
	}
}
