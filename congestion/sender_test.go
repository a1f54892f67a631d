package congestion

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender(saved *SavedParameters, recorder Recorder) *PacketSender {
	return NewPacketSender(&SenderConfig{
		Algorithm: AlgorithmNewReno,
		Saved:     saved,
		Recorder:  recorder,
	}, time.Now())
}

func sendFromSender(s *PacketSender, from int64, count int, now time.Time) []*SentPacket {
	pkts := make([]*SentPacket, count)
	for i := range pkts {
		pkts[i] = &SentPacket{PacketNumber: from + int64(i), Size: testMDS, TimeSent: now, AckEliciting: true}
		s.OnPacketSent(pkts[i], testRTT.Smoothed)
	}
	return pkts
}

func TestSenderWithoutSeedUsesSlowStart(t *testing.T) {
	now := time.Now()
	s := newTestSender(nil, nil)
	assert.Equal(t, InitialWindow(testMDS), s.Cwnd())
	s.OnPacketsAcked(sendFromSender(s, 0, 10, now), testRTT, now)
	assert.Equal(t, 2*InitialWindow(testMDS), s.Cwnd())
	assert.False(t, s.Resume().Enabled())
}

func TestSenderOutOfRangeSeedNeverJumps(t *testing.T) {
	var seeds []SavedParameters
	for _, rtt := range []time.Duration{0, 500 * time.Microsecond, 100 * time.Millisecond, 61 * time.Second, time.Hour} {
		for _, cwnd := range []int{0, 1000, InitialWindow(testMDS) - 1, 200_000, DefaultMaxSeedCwnd + 1, 8 << 30} {
			seed := SavedParameters{RTT: rtt, Cwnd: cwnd, Enabled: true}
			if seed.Validate(DefaultBounds(testMDS)) == nil {
				continue
			}
			seeds = append(seeds, seed)
		}
	}
	require.NotEmpty(t, seeds)
	for _, seed := range seeds {
		seed := seed
		t.Run(fmt.Sprintf("rtt=%s/cwnd=%d", seed.RTT, seed.Cwnd), func(t *testing.T) {
			now := time.Now()
			recorder := &testRecorder{}
			s := newTestSender(&seed, recorder)
			assert.False(t, s.Resume().Enabled())
			assert.Len(t, recorder.rejected, 1)
			for round := int64(0); round < 3; round++ {
				assert.LessOrEqual(t, s.Cwnd(), InitialWindow(testMDS)<<round)
				n := s.Cwnd() / testMDS
				s.OnPacketsAcked(sendFromSender(s, round*1000, n, now), testRTT, now)
			}
			assert.Equal(t, InitialWindow(testMDS)<<3, s.Cwnd())
			assert.Empty(t, recorder.changes)
		})
	}
}

func TestSenderJumpsAndValidates(t *testing.T) {
	now := time.Now()
	recorder := &testRecorder{}
	s := newTestSender(testSeed(), recorder)
	s.OnPacketsAcked(sendFromSender(s, 0, 10, now), testRTT, now)
	assert.Equal(t, 100_000, s.Cwnd())
	assert.Equal(t, PhaseJumping, s.Resume().Phase())

	pkts := sendFromSender(s, 10, 40, now)
	assert.Equal(t, PhaseUnvalidated, s.Resume().Phase())
	s.OnPacketsAcked(pkts[:1], testRTT, now)
	assert.Equal(t, PhaseValidating, s.Resume().Phase())
	// the window drops to the flight size, then slow start continues
	assert.Equal(t, 41*testMDS, s.Cwnd())

	s.OnPacketsAcked(pkts[1:], testRTT, now)
	assert.Equal(t, PhaseNormal, s.Resume().Phase())
	assert.Len(t, recorder.changes, 4)
}

func TestSenderReportsWindowChanges(t *testing.T) {
	now := time.Now()
	s := newTestSender(testSeed(), nil)
	var changes []WindowChange
	s.SetWindowChangeHandler(func(change WindowChange) {
		changes = append(changes, change)
	})
	s.OnPacketsAcked(sendFromSender(s, 0, 10, now), testRTT, now)
	pkts := sendFromSender(s, 10, 40, now)
	s.OnPacketsAcked(pkts[:1], testRTT, now)
	s.OnPacketsAcked(pkts[1:], testRTT, now)
	assert.Equal(t, []WindowChange{
		{Phase: PhaseJumping, Cwnd: 100_000},
		{Phase: PhaseValidating, Cwnd: 40 * testMDS},
		{Phase: PhaseNormal},
	}, changes)

	// no changes once careful resume ended
	s.OnPacketsLost(sendFromSender(s, 100, 1, now), now)
	assert.Len(t, changes, 3)
}

func TestSenderLossWhileUnvalidated(t *testing.T) {
	now := time.Now()
	s := newTestSender(testSeed(), nil)
	s.OnPacketsAcked(sendFromSender(s, 0, 10, now), testRTT, now)
	pkts := sendFromSender(s, 10, 40, now)

	assert.True(t, s.OnPacketsLost(pkts[2:3], now))
	assert.Equal(t, PhaseSafeRetreat, s.Resume().Phase())
	assert.Equal(t, InitialWindow(testMDS)/2, s.Cwnd())
	assert.True(t, s.Resume().Invalidated())

	s.OnPacketsAcked(pkts[3:], testRTT, now)
	assert.Equal(t, PhaseNormal, s.Resume().Phase())
	// the pipe size is the initial window plus the 37 packets acknowledged after the jump
	assert.Equal(t, InitialWindow(testMDS)+37*testMDS, s.Ssthresh())
}

func TestSenderECNCEWhileUnvalidated(t *testing.T) {
	now := time.Now()
	s := newTestSender(testSeed(), nil)
	s.OnPacketsAcked(sendFromSender(s, 0, 10, now), testRTT, now)
	pkts := sendFromSender(s, 10, 40, now)

	assert.True(t, s.OnECNCE(pkts[5], now))
	assert.Equal(t, PhaseSafeRetreat, s.Resume().Phase())
	assert.Equal(t, InitialWindow(testMDS)/4, s.Cwnd())
}

func TestSenderNextPaced(t *testing.T) {
	now := time.Now()
	s := NewPacketSender(&SenderConfig{Pacing: true}, now)
	_, ok := s.NextPaced(testRTT.Smoothed)
	assert.False(t, ok)
	sendFromSender(s, 0, 2, now)
	next, ok := s.NextPaced(testRTT.Smoothed)
	assert.True(t, ok)
	assert.True(t, next.After(now))
}
