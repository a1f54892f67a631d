package client

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/francoispqt/gojay"
	"github.com/google/uuid"

	"crperf-go/common"
	"crperf-go/common/qlog"
	"crperf-go/common/utils"
)

// Result of a transfer.
type Result struct {
	RunID             uuid.UUID
	RemoteAddress     string
	Path              string
	Bytes             uint64
	EstablishmentTime time.Duration
	TimeToFirstByte   time.Duration
	Duration          time.Duration
	// bit/s over the whole transfer
	Goodput          float64
	Rates            common.RateSummary
	SmoothedRTT      time.Duration
	MinRTT           time.Duration
	CarefulResume    string
	Checksum         string
	ExpectedChecksum string
	ChecksumMatch    bool
}

type rateSummary common.RateSummary

func (s rateSummary) IsNil() bool { return s.Samples == 0 }
func (s rateSummary) MarshalJSONObject(enc *gojay.Encoder) {
	enc.IntKey("samples", s.Samples)
	enc.Float64Key("mean", s.Mean)
	enc.Float64Key("stddev", s.StdDev)
	enc.Float64Key("p50", s.Median)
	enc.Float64Key("p95", s.P95)
	enc.Float64Key("max", s.Max)
}

func (r *Result) IsNil() bool { return r == nil }
func (r *Result) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("run_id", r.RunID.String())
	enc.StringKey("remote_address", r.RemoteAddress)
	enc.StringKey("path", r.Path)
	enc.Uint64Key("bytes", r.Bytes)
	enc.Float64Key("establishment_time_ms", qlog.Milliseconds(r.EstablishmentTime))
	enc.Float64Key("time_to_first_byte_ms", qlog.Milliseconds(r.TimeToFirstByte))
	enc.Float64Key("duration_ms", qlog.Milliseconds(r.Duration))
	enc.Float64Key("goodput_bps", r.Goodput)
	enc.ObjectKeyOmitEmpty("interval_rates_bps", rateSummary(r.Rates))
	enc.Float64Key("smoothed_rtt_ms", qlog.Milliseconds(r.SmoothedRTT))
	enc.Float64Key("min_rtt_ms", qlog.Milliseconds(r.MinRTT))
	enc.StringKeyOmitEmpty("careful_resume_phase", r.CarefulResume)
	enc.StringKey("checksum", r.Checksum)
	if r.ExpectedChecksum != "" {
		enc.StringKey("expected_checksum", r.ExpectedChecksum)
		enc.BoolKey("checksum_match", r.ChecksumMatch)
	}
}

// WriteFile writes the result as a single JSON object.
func (r *Result) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create result file: %w", err)
	}
	w := utils.NewBufferedWriteCloser(bufio.NewWriter(f), f)
	if err := gojay.NewEncoder(w).EncodeObject(r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if _, err := w.Write([]byte{'\n'}); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// touch creates the file at path, or truncates it if it exists.
func touch(path string, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
