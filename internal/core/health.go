package core

import "time"

// Mode is the lifecycle state of a source's polling state machine.
type Mode string

const (
	ModeIdle     Mode = "idle"
	ModePolling  Mode = "polling"
	ModeDegraded Mode = "degraded"
	ModeOffline  Mode = "offline"
)

// SourceHealth is the health snapshot of a single source. It is owned
// exclusively by that source's monitor; everyone else sees copies.
type SourceHealth struct {
	Provider            Provider  `json:"provider"`
	Priority            int       `json:"priority"`
	Mode                Mode      `json:"mode"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	FallbackWindowStart time.Time `json:"fallback_window_start,omitempty"`
}
