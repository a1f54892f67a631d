package congestion

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/francoispqt/gojay"
	"github.com/m-lab/go/warnonerror"
)

var (
	ErrSeedMissing        = errors.New("no congestion state seed")
	ErrSeedRTTOutOfRange  = errors.New("seed rtt out of range")
	ErrSeedCwndOutOfRange = errors.New("seed congestion window out of range")
)

// SavedParameters is the congestion state observed on a previous connection to the same peer.
type SavedParameters struct {
	RTT     time.Duration
	Cwnd    int
	Enabled bool
}

// Bounds is the range a seed must fall in to be used.
type Bounds struct {
	MinRTT  time.Duration
	MaxRTT  time.Duration
	MinCwnd int
	MaxCwnd int
}

const (
	DefaultMinSeedRTT  = time.Millisecond
	DefaultMaxSeedRTT  = 60 * time.Second
	DefaultMaxSeedCwnd = 1 << 30
)

// DefaultBounds accepts seeds between one initial window and 1 GiB.
func DefaultBounds(maxDatagramSize int) Bounds {
	return Bounds{
		MinRTT:  DefaultMinSeedRTT,
		MaxRTT:  DefaultMaxSeedRTT,
		MinCwnd: InitialWindow(maxDatagramSize),
		MaxCwnd: DefaultMaxSeedCwnd,
	}
}

// Populate fills unset fields with the defaults.
func (b Bounds) Populate(maxDatagramSize int) Bounds {
	defaults := DefaultBounds(maxDatagramSize)
	if b.MinRTT == 0 {
		b.MinRTT = defaults.MinRTT
	}
	if b.MaxRTT == 0 {
		b.MaxRTT = defaults.MaxRTT
	}
	if b.MinCwnd == 0 {
		b.MinCwnd = defaults.MinCwnd
	}
	if b.MaxCwnd == 0 {
		b.MaxCwnd = defaults.MaxCwnd
	}
	return b
}

// Validate reports why the seed must not be used.
// Out of range values are rejected, never clamped.
func (p SavedParameters) Validate(bounds Bounds) error {
	if !p.Enabled {
		return ErrSeedMissing
	}
	if p.RTT < bounds.MinRTT || p.RTT > bounds.MaxRTT {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrSeedRTTOutOfRange, p.RTT, bounds.MinRTT, bounds.MaxRTT)
	}
	if p.Cwnd < bounds.MinCwnd || p.Cwnd > bounds.MaxCwnd {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrSeedCwndOutOfRange, p.Cwnd, bounds.MinCwnd, bounds.MaxCwnd)
	}
	return nil
}

type savedParametersFile struct {
	SavedParameters
	SavedAt time.Time
}

func (f *savedParametersFile) IsNil() bool { return f == nil }

func (f *savedParametersFile) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Float64Key("rtt_ms", float64(f.RTT.Nanoseconds())/1e6)
	enc.IntKey("cwnd", f.Cwnd)
	enc.StringKey("saved_at", f.SavedAt.UTC().Format(time.RFC3339))
}

func (f *savedParametersFile) UnmarshalJSONObject(dec *gojay.Decoder, key string) error {
	switch key {
	case "rtt_ms":
		var ms float64
		if err := dec.Float64(&ms); err != nil {
			return err
		}
		f.RTT = time.Duration(ms * float64(time.Millisecond))
	case "cwnd":
		return dec.Int(&f.Cwnd)
	case "saved_at":
		var s string
		if err := dec.String(&s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
		f.SavedAt = t
	}
	return nil
}

func (f *savedParametersFile) NKeys() int { return 3 }

// SaveParameters writes p to path as JSON.
func SaveParameters(path string, p SavedParameters) error {
	data, err := gojay.MarshalJSONObject(&savedParametersFile{SavedParameters: p, SavedAt: time.Now()})
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// LoadParameters reads parameters written by SaveParameters.
func LoadParameters(path string) (*SavedParameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer warnonerror.Close(f, "failed to close saved parameters file")
	file := &savedParametersFile{}
	if err := gojay.NewDecoder(f).DecodeObject(file); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	file.Enabled = file.RTT > 0 && file.Cwnd > 0
	return &file.SavedParameters, nil
}
