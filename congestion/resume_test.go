package congestion

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crperf-go/common"
)

const testMDS = 1252

type phaseChange struct {
	old     string
	new     string
	trigger string
}

type testRecorder struct {
	changes  []phaseChange
	rejected []error
}

func (r *testRecorder) PhaseUpdated(update PhaseUpdate) {
	old := ""
	if update.Old != nil {
		old = update.Old.String()
	}
	r.changes = append(r.changes, phaseChange{old: old, new: update.New.String(), trigger: update.Trigger.String()})
}

func (r *testRecorder) SeedRejected(_ SavedParameters, reason error) {
	r.rejected = append(r.rejected, reason)
}

func testSeed() *SavedParameters {
	return &SavedParameters{RTT: 100 * time.Millisecond, Cwnd: 200_000, Enabled: true}
}

func TestValidateSeed(t *testing.T) {
	bounds := DefaultBounds(testMDS)
	assert.NoError(t, testSeed().Validate(bounds))
	assert.ErrorIs(t, SavedParameters{}.Validate(bounds), ErrSeedMissing)
	assert.ErrorIs(t, SavedParameters{RTT: 0, Cwnd: 200_000, Enabled: true}.Validate(bounds), ErrSeedRTTOutOfRange)
	assert.ErrorIs(t, SavedParameters{RTT: 2 * time.Minute, Cwnd: 200_000, Enabled: true}.Validate(bounds), ErrSeedRTTOutOfRange)
	assert.ErrorIs(t, SavedParameters{RTT: time.Second, Cwnd: 1000, Enabled: true}.Validate(bounds), ErrSeedCwndOutOfRange)
	assert.ErrorIs(t, SavedParameters{RTT: time.Second, Cwnd: 2 << 30, Enabled: true}.Validate(bounds), ErrSeedCwndOutOfRange)
}

func TestBoundsPopulate(t *testing.T) {
	bounds := Bounds{MaxRTT: time.Second}.Populate(testMDS)
	assert.Equal(t, DefaultMinSeedRTT, bounds.MinRTT)
	assert.Equal(t, time.Second, bounds.MaxRTT)
	assert.Equal(t, InitialWindow(testMDS), bounds.MinCwnd)
	assert.Equal(t, DefaultMaxSeedCwnd, bounds.MaxCwnd)
}

func TestResumeDisabledWithoutSeed(t *testing.T) {
	recorder := &testRecorder{}
	r := NewResume(nil, DefaultBounds(testMDS), recorder, common.DefaultLogger)
	assert.False(t, r.Enabled())
	cwnd, ssthresh := r.OnAck(&SentPacket{Size: 100_000}, time.Second, 0, 12520, 12520, time.Now())
	assert.Zero(t, cwnd)
	assert.Zero(t, ssthresh)
	assert.Empty(t, recorder.changes)
	assert.Empty(t, recorder.rejected)
}

func TestResumeRejectsOutOfRangeSeed(t *testing.T) {
	recorder := &testRecorder{}
	r := NewResume(&SavedParameters{RTT: time.Hour, Cwnd: 200_000, Enabled: true}, DefaultBounds(testMDS), recorder, common.DefaultLogger)
	assert.False(t, r.Enabled())
	require.Len(t, recorder.rejected, 1)
	assert.True(t, errors.Is(recorder.rejected[0], ErrSeedRTTOutOfRange))
}

func TestResumeFullValidation(t *testing.T) {
	recorder := &testRecorder{}
	r := NewResume(testSeed(), DefaultBounds(testMDS), recorder, common.DefaultLogger)
	require.True(t, r.Enabled())
	now := time.Now()
	initial := InitialWindow(testMDS)

	r.OnSent(initial, 0, now)
	var jump int
	for pn := int64(0); pn < 10; pn++ {
		jump, _ = r.OnAck(&SentPacket{PacketNumber: pn, Size: testMDS}, 100*time.Millisecond, initial, initial, initial, now)
		if pn < 9 {
			assert.Zero(t, jump)
		}
	}
	assert.Equal(t, 100_000, jump)
	assert.Equal(t, PhaseJumping, r.Phase())

	for pn := int64(10); pn < 50; pn++ {
		r.OnSent(jump, pn, now)
	}
	assert.Equal(t, PhaseUnvalidated, r.Phase())

	flight := 40 * testMDS
	cwnd, _ := r.OnAck(&SentPacket{PacketNumber: 10, Size: testMDS}, 100*time.Millisecond, flight, jump, initial, now)
	assert.Equal(t, flight, cwnd)
	assert.Equal(t, PhaseValidating, r.Phase())

	for pn := int64(11); pn < 50; pn++ {
		r.OnAck(&SentPacket{PacketNumber: pn, Size: testMDS}, 100*time.Millisecond, flight, flight, initial, now)
	}
	assert.Equal(t, PhaseNormal, r.Phase())
	assert.False(t, r.Invalidated())

	assert.Equal(t, []phaseChange{
		{old: "", new: "reconnaissance", trigger: ""},
		{old: "reconnaissance", new: "unvalidated", trigger: "congestion_window_limited"},
		{old: "unvalidated", new: "validating", trigger: "first_unvalidated_packet_acknowledged"},
		{old: "validating", new: "normal", trigger: "last_unvalidated_packet_acknowledged"},
	}, recorder.changes)
}

func TestResumeRateLimited(t *testing.T) {
	r := NewResume(testSeed(), DefaultBounds(testMDS), nil, common.DefaultLogger)
	now := time.Now()
	initial := InitialWindow(testMDS)
	r.OnAck(&SentPacket{PacketNumber: 0, Size: initial}, 100*time.Millisecond, initial, initial, initial, now)
	require.Equal(t, PhaseJumping, r.Phase())
	r.OnSent(100_000, 1, now)
	// pipesize exceeds the flight size, the path is not the bottleneck
	cwnd, _ := r.OnAck(&SentPacket{PacketNumber: 1, Size: testMDS}, 100*time.Millisecond, testMDS, 100_000, initial, now)
	assert.Equal(t, initial+testMDS, cwnd)
	assert.Equal(t, PhaseNormal, r.Phase())
}

func TestResumeAbortsOnDivergentRTT(t *testing.T) {
	for _, rtt := range []time.Duration{50 * time.Millisecond, 10 * time.Millisecond, time.Second, 5 * time.Second} {
		recorder := &testRecorder{}
		r := NewResume(testSeed(), DefaultBounds(testMDS), recorder, common.DefaultLogger)
		initial := InitialWindow(testMDS)
		cwnd, _ := r.OnAck(&SentPacket{Size: initial}, rtt, initial, initial, initial, time.Now())
		assert.Zero(t, cwnd, rtt)
		assert.Equal(t, PhaseNormal, r.Phase(), rtt)
		require.Len(t, recorder.changes, 1)
		assert.Equal(t, "rtt_not_validated", recorder.changes[0].trigger)
	}
}

func TestResumeAbortsWhenJumpIsSmall(t *testing.T) {
	recorder := &testRecorder{}
	r := NewResume(&SavedParameters{RTT: 100 * time.Millisecond, Cwnd: 20_000, Enabled: true}, DefaultBounds(testMDS), recorder, common.DefaultLogger)
	initial := InitialWindow(testMDS)
	cwnd, _ := r.OnAck(&SentPacket{Size: initial}, 100*time.Millisecond, initial, initial, initial, time.Now())
	assert.Zero(t, cwnd)
	assert.Equal(t, PhaseNormal, r.Phase())
	require.Len(t, recorder.changes, 1)
	assert.Equal(t, "congestion_window_limited", recorder.changes[0].trigger)
}

func TestResumeSafeRetreat(t *testing.T) {
	r := NewResume(testSeed(), DefaultBounds(testMDS), nil, common.DefaultLogger)
	now := time.Now()
	initial := InitialWindow(testMDS)
	r.OnAck(&SentPacket{PacketNumber: 0, Size: initial}, 100*time.Millisecond, initial, initial, initial, now)
	r.OnSent(100_000, 1, now)
	r.OnSent(100_000, 2, now)
	r.OnSent(100_000, 3, now)

	cwnd, ssthresh := r.OnCongestion(TriggerPacketLoss, now)
	assert.Equal(t, initial/2, cwnd)
	assert.Zero(t, ssthresh)
	assert.Equal(t, PhaseSafeRetreat, r.Phase())
	assert.True(t, r.Invalidated())

	_, ssthresh = r.OnAck(&SentPacket{PacketNumber: 2, Size: testMDS}, 100*time.Millisecond, 0, cwnd, initial, now)
	assert.Zero(t, ssthresh)
	_, ssthresh = r.OnAck(&SentPacket{PacketNumber: 3, Size: testMDS}, 100*time.Millisecond, 0, cwnd, initial, now)
	assert.Equal(t, initial+2*testMDS, ssthresh)
	assert.Equal(t, PhaseNormal, r.Phase())
}

func TestResumeLossWhileValidating(t *testing.T) {
	r := NewResume(testSeed(), DefaultBounds(testMDS), nil, common.DefaultLogger)
	now := time.Now()
	initial := InitialWindow(testMDS)
	r.OnAck(&SentPacket{PacketNumber: 0, Size: initial}, 100*time.Millisecond, initial, initial, initial, now)
	r.OnSent(100_000, 1, now)
	r.OnSent(100_000, 2, now)
	r.OnAck(&SentPacket{PacketNumber: 1, Size: testMDS}, 100*time.Millisecond, 50_000, 100_000, initial, now)
	require.Equal(t, PhaseValidating, r.Phase())

	cwnd, ssthresh := r.OnCongestion(TriggerPacketLoss, now)
	assert.Zero(t, cwnd)
	assert.Equal(t, initial+testMDS, ssthresh)
	assert.Equal(t, PhaseNormal, r.Phase())
}

func TestPhaseAndTriggerNames(t *testing.T) {
	assert.Equal(t, "reconnaissance", PhaseJumping.String())
	assert.Equal(t, "safe_retreat", PhaseSafeRetreat.String())
	assert.Equal(t, "ecn_ce", TriggerECNCE.String())
	assert.Equal(t, "exit_recovery", TriggerExitRecovery.String())
	assert.Equal(t, "", TriggerNone.String())
}
