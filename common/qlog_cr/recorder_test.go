package qlog_cr

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crperf-go/common"
	"crperf-go/common/qlog"
	"crperf-go/common/utils"
	"crperf-go/congestion"
)

func readEvents(t *testing.T, data []byte) []map[string]interface{} {
	var events []map[string]interface{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Scan() // header
	for scanner.Scan() {
		event := map[string]interface{}{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}
	return events
}

func TestRecorderWritesPhaseUpdates(t *testing.T) {
	buf := &bytes.Buffer{}
	w := qlog.NewQlogWriter(utils.NopWriteCloser{Writer: buf}, &qlog.Config{ODCID: "0102", GroupID: "0102"})
	recorder := NewRecorder(w, "0102")
	saved := &congestion.SavedParameters{RTT: 100 * time.Millisecond, Cwnd: 200_000, Enabled: true}
	resume := congestion.NewResume(saved, congestion.DefaultBounds(common.DefaultMaxDatagramSize), recorder, common.DefaultLogger)

	now := time.Now()
	initial := congestion.InitialWindow(common.DefaultMaxDatagramSize)
	resume.OnSent(initial, 0, now)
	resume.OnAck(&congestion.SentPacket{PacketNumber: 0, Size: initial}, 100*time.Millisecond, initial, initial, initial, now)
	resume.OnSent(100_000, 1, now)
	w.Close()

	events := readEvents(t, buf.Bytes())
	require.Len(t, events, 2)
	assert.Equal(t, "recovery:careful_resume_phase_updated", events[0]["name"])
	first := events[0]["data"].(map[string]interface{})
	assert.NotContains(t, first, "old")
	assert.Equal(t, "reconnaissance", first["new"])
	assert.Equal(t, 100.0, first["restored_data"].(map[string]interface{})["saved_rtt"])
	assert.Equal(t, 200_000.0, first["restored_data"].(map[string]interface{})["saved_congestion_window"])

	second := events[1]["data"].(map[string]interface{})
	assert.Equal(t, "reconnaissance", second["old"])
	assert.Equal(t, "unvalidated", second["new"])
	assert.Equal(t, "congestion_window_limited", second["trigger"])
	assert.Equal(t, 100_000.0, second["state_data"].(map[string]interface{})["congestion_window"])
	assert.Equal(t, float64(initial), second["state_data"].(map[string]interface{})["pipesize"])
}

func TestRecorderWritesRejectedSeed(t *testing.T) {
	buf := &bytes.Buffer{}
	w := qlog.NewQlogWriter(utils.NopWriteCloser{Writer: buf}, nil)
	saved := &congestion.SavedParameters{RTT: time.Hour, Cwnd: 200_000, Enabled: true}
	congestion.NewResume(saved, congestion.DefaultBounds(common.DefaultMaxDatagramSize), NewRecorder(w, ""), common.DefaultLogger)
	w.Close()

	events := readEvents(t, buf.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, "recovery:careful_resume_seed_rejected", events[0]["name"])
	assert.Contains(t, events[0]["data"].(map[string]interface{})["reason"], "seed rtt out of range")
}
