package common

import (
	"fmt"
	"time"
)

const (
	MinDuration time.Duration = -1 << 63
	MaxDuration time.Duration = 1<<63 - 1
)

func MaxTime(times []time.Time) time.Time {
	maxTime := time.Time{}
	for _, time := range times {
		if maxTime.Before(time) {
			maxTime = time
		}
	}
	return maxTime
}

// ParseMilliseconds parses a duration like "250ms" or a plain number of milliseconds like "250" or "12.5".
func ParseMilliseconds(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	var ms float64
	if _, err := fmt.Sscanf(s, "%g", &ms); err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}
