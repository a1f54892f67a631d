package congestion

import (
	"errors"
	"fmt"
	"reflect"
	"unsafe"

	"crperf-go/common"
)

// maximum window of the quic-go sender in datagrams, protocol.MaxCongestionWindowPackets
const transportMaxCwndPackets = 10000

// transport windows are never set below two datagrams
const transportMinCwndPackets = 2

var ErrTransportWindowUnsupported = errors.New("congestion window of the transport is not accessible")

// TransportWindow sets the congestion window of the cubic sender inside a quic-go connection.
// quic-go has no API for this, the sender is located by field name:
// connection.sentPacketHandler.congestion.{congestionWindow,slowStartThreshold,reno}.
// The sender is owned by the connection's run loop, so the window may only be
// accessed from tracer callbacks of that connection.
type TransportWindow struct {
	cwnd            *int64
	ssthresh        *int64
	maxDatagramSize *int64
	reno            *bool

	held          bool
	savedSsthresh int64
}

// NewTransportWindow locates the congestion window of conn,
// it returns ErrTransportWindowUnsupported if conn has an unknown layout.
func NewTransportWindow(conn any) (*TransportWindow, error) {
	v := reflect.ValueOf(conn)
	for _, name := range []string{"sentPacketHandler", "congestion"} {
		var err error
		v, err = structField(v, name)
		if err != nil {
			return nil, err
		}
	}
	sender, ok := indirect(v)
	if !ok {
		return nil, fmt.Errorf("%w: no congestion sender", ErrTransportWindowUnsupported)
	}
	w := &TransportWindow{}
	for name, dst := range map[string]**int64{
		"congestionWindow":   &w.cwnd,
		"slowStartThreshold": &w.ssthresh,
		"maxDatagramSize":    &w.maxDatagramSize,
	} {
		f := sender.FieldByName(name)
		if !f.IsValid() || f.Kind() != reflect.Int64 || !f.CanAddr() {
			return nil, fmt.Errorf("%w: no field %s in %s", ErrTransportWindowUnsupported, name, sender.Type())
		}
		*dst = (*int64)(unsafe.Pointer(f.UnsafeAddr()))
	}
	if f := sender.FieldByName("reno"); f.IsValid() && f.Kind() == reflect.Bool && f.CanAddr() {
		w.reno = (*bool)(unsafe.Pointer(f.UnsafeAddr()))
	}
	return w, nil
}

// indirect follows interfaces and pointers down to a struct.
func indirect(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, v.Kind() == reflect.Struct
}

func structField(v reflect.Value, name string) (reflect.Value, error) {
	s, ok := indirect(v)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: no struct holding %s", ErrTransportWindowUnsupported, name)
	}
	f := s.FieldByName(name)
	if !f.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: no field %s in %s", ErrTransportWindowUnsupported, name, s.Type())
	}
	return f, nil
}

func (w *TransportWindow) Cwnd() int     { return int(*w.cwnd) }
func (w *TransportWindow) Ssthresh() int { return int(*w.ssthresh) }

func (w *TransportWindow) bounds() (int64, int64) {
	mds := *w.maxDatagramSize
	return transportMinCwndPackets * mds, transportMaxCwndPackets * mds
}

// SetCwnd sets the window, clamped to the limits of the transport.
func (w *TransportWindow) SetCwnd(cwnd int) {
	lo, hi := w.bounds()
	*w.cwnd = common.Clamp(int64(cwnd), lo, hi)
}

// SetSsthresh sets the slow start threshold, the transport leaves slow start at this window.
// It ends a hold.
func (w *TransportWindow) SetSsthresh(ssthresh int) {
	lo, _ := w.bounds()
	*w.ssthresh = common.Max(int64(ssthresh), lo)
	w.held = false
}

// Hold sets the window and keeps the transport out of slow start until Release.
func (w *TransportWindow) Hold(cwnd int) {
	if !w.held {
		w.savedSsthresh = *w.ssthresh
		w.held = true
	}
	w.SetCwnd(cwnd)
	*w.ssthresh = *w.cwnd
}

// Release restores the slow start threshold from before Hold.
func (w *TransportWindow) Release() {
	if !w.held {
		return
	}
	*w.ssthresh = w.savedSsthresh
	w.held = false
}

func (w *TransportWindow) Held() bool { return w.held }

// SetReno switches the transport between NewReno and CUBIC window growth.
// It returns false if the transport has no such switch.
func (w *TransportWindow) SetReno(reno bool) bool {
	if w.reno == nil {
		return false
	}
	*w.reno = reno
	return true
}
