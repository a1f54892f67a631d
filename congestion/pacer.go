package congestion

import (
	"fmt"
	"time"

	"crperf-go/common"
)

// pacerSpeedup spaces packets over half of the RTT,
// matching a window that doubles every round trip in slow start.
const pacerSpeedup = 2

// timerGranularity below which waiting is pointless
const timerGranularity = time.Millisecond

// Pacer is a leaky bucket.
type Pacer struct {
	enabled bool
	// last update
	t time.Time
	// maximum capacity in bytes, the burst size
	m int
	// current capacity in bytes
	c int
	// packet size, the credit needed before a packet is sent
	p int
}

// NewPacer primes the bucket with m bytes of credit.
// m must be at least one packet of size p.
func NewPacer(enabled bool, now time.Time, m int, p int) *Pacer {
	if m < p {
		panic("maximum capacity has to be at least one packet")
	}
	return &Pacer{
		enabled: enabled,
		t:       now,
		m:       m,
		c:       m,
		p:       p,
	}
}

// Next returns when the next packet can be sent.
// The result may be in the past.
func (p *Pacer) Next(rtt time.Duration, cwnd int) time.Time {
	if !p.enabled || p.c >= p.p || cwnd <= 0 {
		return p.t
	}
	// inverse of the credit increase in Spend
	w := time.Duration(int64(rtt) * int64(p.p-p.c) / int64(cwnd*pacerSpeedup))
	if w < timerGranularity {
		return p.t
	}
	return p.t.Add(w)
}

// Spend takes count bytes of credit.
// Callers use Next to decide when to spend, so this never fails.
func (p *Pacer) Spend(now time.Time, rtt time.Duration, cwnd int, count int) {
	if !p.enabled {
		p.t = now
		return
	}
	incr := p.m
	if elapsed := now.Sub(p.t); elapsed <= 0 {
		incr = 0
	} else if rtt > 0 {
		// elapsed fraction of the RTT times the rate at which credit is added
		incr = int(common.Min(int64(elapsed)*int64(cwnd*pacerSpeedup)/int64(rtt), int64(p.m)))
	}
	p.c = common.Min(p.m, common.Max(p.c+incr-count, 0))
	p.t = now
}

func (p *Pacer) String() string {
	return fmt.Sprintf("pacer %d/%d", p.c, p.m)
}
