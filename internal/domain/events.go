package domain

import "time"

// EventBus topics published by the orchestrator.
const (
	EventSyncProgress  = "sync:progress"
	EventSyncCompleted = "sync:completed"
	// EventSettingsChanged is emitted after a downloaded or imported snapshot
	// rewrote the stored settings, carrying the new auto sync section so the
	// scheduler can pick it up without a restart.
	EventSettingsChanged = "settings:changed"
)

// SyncProgress is one step of a long-running operation.
type SyncProgress struct {
	Class     DataClass `json:"class"`
	Stage     string    `json:"stage"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
}

// SyncCompleted is emitted exactly once per finished operation, after the
// ledger has been updated.
type SyncCompleted struct {
	Class     DataClass     `json:"class"`
	Result    SyncResult    `json:"result"`
	ErrorCode string        `json:"errorCode,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}
