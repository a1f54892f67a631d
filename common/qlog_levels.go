package common

// QlogLevelDefaultEvents are recorded unless configured otherwise
var QlogLevelDefaultEvents = QlogLevelInfoEvents

var QlogLevelInfoEvents = map[string]bool{
	"transport:connection_started":          true,
	"transport:connection_closed":           true,
	"recovery:metrics_updated":              true,
	"recovery:packet_lost":                  true,
	"recovery:congestion_state_updated":     true,
	"recovery:careful_resume_phase_updated": true,
	"recovery:careful_resume_seed_rejected": true,
	"crperf:request_sent":                   true,
	"crperf:first_app_data_received":        true,
	"crperf:report":                         true,
	"crperf:transfer_completed":             true,
	"app:info":                              true,
	"app:error":                             true,
}

// QlogLevelDebugEvents additionally include per packet events
var QlogLevelDebugEvents = func() map[string]bool {
	events := map[string]bool{
		"transport:packet_sent":     true,
		"transport:packet_received": true,
	}
	for k, v := range QlogLevelInfoEvents {
		events[k] = v
	}
	return events
}()
