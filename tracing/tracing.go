package tracing

import (
	"context"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/logging"

	"crperf-go/capture"
	"crperf-go/common"
	"crperf-go/common/qlog"
	"crperf-go/common/qlog_cr"
	"crperf-go/common/qlog_quic"
	"crperf-go/congestion"
)

type Config struct {
	// empty disables qlog
	QlogDir    string
	QlogConfig *qlog.Config
	// part of the qlog file name, e.g. client
	QlogLabel string
	// nil disables the careful resume controller
	Sender *congestion.SenderConfig
	// 0 uses congestion.DefaultStallTimeout
	StallTimeout time.Duration
	// observed parameters are written here when a connection closes
	SaveFile string
	// nil disables the capture index
	Capture *capture.Index
	Logger  common.Logger
}

func (c *Config) Populate() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.QlogConfig == nil {
		c.QlogConfig = &qlog.Config{}
	}
	if c.Logger == nil {
		c.Logger = common.DefaultLogger
	}
	return c
}

// Tracing creates the tracers of every connection and keeps their per
// connection state, so that application code can reach the qlog and the
// congestion controller of its connection.
type Tracing struct {
	config     *Config
	controller *congestion.Registry

	mutex sync.Mutex
	qlogs map[uint64]qlog.Writer
}

func New(config *Config) *Tracing {
	return &Tracing{
		config:     config.Populate(),
		controller: congestion.NewRegistry(),
		qlogs:      map[uint64]qlog.Writer{},
	}
}

// ConnectionTracer is to be used as quic.Config.Tracer.
func (t *Tracing) ConnectionTracer(ctx context.Context, p logging.Perspective, odcid quic.ConnectionID) *logging.ConnectionTracer {
	var tracers []*logging.ConnectionTracer
	logger := t.config.Logger.WithField("odcid", odcid.String())

	var qlogWriter qlog.Writer
	if t.config.QlogDir != "" {
		qlogConfig := t.config.QlogConfig.Copy()
		qlogConfig.ODCID = odcid.String()
		qlogConfig.GroupID = qlogConfig.ODCID
		qlogConfig.VantagePoint = p
		w, err := qlog.NewQlogDirWriter(t.config.QlogDir, odcid.Bytes(), t.config.QlogLabel, qlogConfig)
		if err != nil {
			logger.Errorf("failed to create qlog file: %s", err)
		} else {
			qlogWriter = w
			tracers = append(tracers, qlog_quic.NewConnectionTracer(w, p, odcid, true))
		}
	}

	id, hasID := ctx.Value(quic.ConnectionTracingKey).(uint64)
	if qlogWriter != nil && hasID {
		t.mutex.Lock()
		t.qlogs[id] = qlogWriter
		t.mutex.Unlock()
	}

	if t.config.Sender != nil {
		senderConfig := *t.config.Sender
		senderConfig.Logger = logger
		if qlogWriter != nil {
			senderConfig.Recorder = qlog_cr.NewRecorder(qlogWriter, odcid.String())
		}
		controller := congestion.NewController(&senderConfig)
		if t.config.StallTimeout > 0 {
			controller.SetStallTimeout(t.config.StallTimeout)
		}
		t.controller.Register(ctx, controller)
		tracer := controller.Tracer()
		closeController := tracer.Close
		tracer.Close = func() {
			if t.config.SaveFile != "" {
				if err := controller.SaveParameters(t.config.SaveFile); err != nil {
					logger.Errorf("failed to save congestion parameters: %s", err)
				} else {
					logger.Infof("saved congestion parameters to %s", t.config.SaveFile)
				}
			}
			closeController()
		}
		tracers = append(tracers, tracer)
	}

	if t.config.Capture != nil {
		tracers = append(tracers, t.config.Capture.Tracer(ctx, p, odcid))
	}

	tracers = append(tracers, &logging.ConnectionTracer{
		Close: func() {
			t.controller.Remove(ctx)
			if hasID {
				t.mutex.Lock()
				delete(t.qlogs, id)
				t.mutex.Unlock()
			}
		},
	})
	return logging.NewMultiplexedConnectionTracer(tracers...)
}

// Qlog returns the qlog writer of conn, or nil.
func (t *Tracing) Qlog(conn quic.Connection) qlog.Writer {
	id, ok := conn.Context().Value(quic.ConnectionTracingKey).(uint64)
	if !ok {
		return nil
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.qlogs[id]
}

// Controller returns the careful resume controller of conn, or nil.
func (t *Tracing) Controller(conn quic.Connection) *congestion.Controller {
	return t.controller.Lookup(conn)
}

// ControllerContext returns the careful resume controller of the connection with context ctx, or nil.
func (t *Tracing) ControllerContext(ctx context.Context) *congestion.Controller {
	return t.controller.LookupContext(ctx)
}

// AttachTransport lets the careful resume controller of conn set the congestion window of conn.
// Without a controller this is a no-op. If the window of conn is not accessible,
// careful resume only gates application writes.
func (t *Tracing) AttachTransport(conn quic.Connection) {
	controller := t.controller.Lookup(conn)
	if controller == nil || controller.TransportAttached() {
		return
	}
	w, err := congestion.NewTransportWindow(conn)
	if err != nil {
		t.config.Logger.Infof("careful resume limited to application writes: %s", err)
		return
	}
	controller.AttachTransport(w)
}
