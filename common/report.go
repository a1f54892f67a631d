package common

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Report is one reporting interval of a transfer.
type Report struct {
	Period          time.Duration
	ReceivedBytes   uint64
	ReceivedPackets uint64
}

// BitsPerSecond of the interval, 0 for an empty period.
func (r Report) BitsPerSecond() float64 {
	if r.Period <= 0 {
		return 0
	}
	return float64(r.ReceivedBytes) * 8 / r.Period.Seconds()
}

// RateSummary summarizes the interval rates of a transfer in bit/s.
type RateSummary struct {
	Samples int
	Mean    float64
	StdDev  float64
	Median  float64
	P95     float64
	Max     float64
}

// SummarizeRates computes a RateSummary over the given reports.
func SummarizeRates(reports []Report) RateSummary {
	if len(reports) == 0 {
		return RateSummary{}
	}
	rates := make([]float64, len(reports))
	for i, r := range reports {
		rates[i] = r.BitsPerSecond()
	}
	sort.Float64s(rates)
	summary := RateSummary{
		Samples: len(rates),
		Mean:    stat.Mean(rates, nil),
		Median:  stat.Quantile(0.5, stat.Empirical, rates, nil),
		P95:     stat.Quantile(0.95, stat.Empirical, rates, nil),
		Max:     rates[len(rates)-1],
	}
	if len(rates) > 1 {
		summary.StdDev = stat.StdDev(rates, nil)
	}
	return summary
}
