package congestion

import "time"

type newReno struct{}

var _ windowAdjustment = &newReno{}

func (n *newReno) bytesForCwndIncrease(cwnd int, _ int, _ time.Duration, _ time.Time) int {
	return cwnd
}

func (n *newReno) reduceCwnd(cwnd int, ackedBytes int) (int, int) {
	return cwnd / 2, ackedBytes / 2
}

func (n *newReno) onAppLimited() {}
