package congestion

import (
	"math"
	"time"
)

// CUBIC constants from RFC 9438.
const (
	cubicC    = 0.4
	cubicBeta = 0.7
	// cubicAlpha makes the Reno-friendly estimate grow as fast as Reno on average
	cubicAlpha              = 3 * (1 - cubicBeta) / (1 + cubicBeta)
	cubicFastConvergence    = (1 + cubicBeta) / 2
	cubicBetaDividend       = 7
	cubicBetaDivisor        = 10
	cubicIdleIncreaseFactor = 100
)

type cubic struct {
	maxDatagramSize float64
	lastMaxCwnd     float64
	estimatedTCP    float64
	k               float64
	wMax            float64
	caEpochStart    time.Time
	tcpAckedBytes   float64
}

var _ windowAdjustment = &cubic{}

func newCubic(maxDatagramSize int) *cubic {
	return &cubic{maxDatagramSize: float64(maxDatagramSize)}
}

// wCubic is the window at time t since the epoch start: C*(t-K)^3 + Wmax.
func (c *cubic) wCubic(t float64) float64 {
	return cubicC*math.Pow(t-c.k, 3)*c.maxDatagramSize + c.wMax
}

func (c *cubic) startEpoch(cwnd float64, newAcked float64, now time.Time) {
	c.caEpochStart = now
	c.tcpAckedBytes = newAcked
	c.estimatedTCP = cwnd
	if c.lastMaxCwnd <= cwnd {
		c.wMax = cwnd
		c.k = 0
	} else {
		c.wMax = c.lastMaxCwnd
		c.k = math.Cbrt((c.wMax - cwnd) / cubicC / c.maxDatagramSize)
	}
}

func (c *cubic) bytesForCwndIncrease(cwnd int, newAcked int, minRTT time.Duration, now time.Time) int {
	curr := float64(cwnd)
	if c.caEpochStart.IsZero() {
		c.startEpoch(curr, float64(newAcked), now)
	} else {
		c.tcpAckedBytes += float64(newAcked)
	}

	timeCA := minRTT
	if elapsed := now.Add(minRTT).Sub(c.caEpochStart); elapsed > 0 {
		timeCA = elapsed
	}
	target := c.wCubic(timeCA.Seconds())

	tcpCnt := c.estimatedTCP / cubicAlpha
	if tcpCnt > 0 {
		incr := math.Floor(c.tcpAckedBytes / tcpCnt)
		if incr > 0 {
			c.tcpAckedBytes -= incr * tcpCnt
			c.estimatedTCP += incr * c.maxDatagramSize
		}
	}
	target = math.Max(target, c.estimatedTCP)

	if target > curr {
		return int(math.Max(c.maxDatagramSize*curr/(target-curr), 1))
	}
	return int(cubicIdleIncreaseFactor * c.maxDatagramSize)
}

func (c *cubic) reduceCwnd(cwnd int, ackedBytes int) (int, int) {
	curr := float64(cwnd)
	if curr+c.maxDatagramSize < c.lastMaxCwnd {
		c.lastMaxCwnd = curr * cubicFastConvergence
	} else {
		c.lastMaxCwnd = curr
	}
	c.caEpochStart = time.Time{}
	return cwnd * cubicBetaDividend / cubicBetaDivisor, ackedBytes * cubicBetaDividend / cubicBetaDivisor
}

func (c *cubic) onAppLimited() {
	c.caEpochStart = time.Time{}
}
