package domain

import (
	"context"
	"time"
)

// DataClass is one of the independently synchronized state categories.
type DataClass string

const (
	DataClassConfig  DataClass = "config"
	DataClassHistory DataClass = "history"
	// DataClassBundle is the paired config+history run driven by the
	// scheduler or a "sync all" action.
	DataClassBundle DataClass = "bundle"
)

type SyncResult string

const (
	SyncResultNever   SyncResult = "never"
	SyncResultSuccess SyncResult = "success"
	SyncResultFailed  SyncResult = "failed"
	SyncResultPartial SyncResult = "partial"
)

// SyncStatusRecord is the persisted outcome of the last sync attempt for one
// data class. It is written unconditionally at the end of every attempt,
// failures included, so the UI always shows the most recent outcome.
type SyncStatusRecord struct {
	Class       DataClass  `json:"class"`
	AttemptedAt time.Time  `json:"attemptedAt"`
	Result      SyncResult `json:"result"`
	ErrorCode   string     `json:"errorCode,omitempty"`
	ErrorDetail string     `json:"errorDetail,omitempty"`
}

type SyncStatusRepo interface {
	Get(ctx context.Context, class DataClass) (*SyncStatusRecord, error)
	List(ctx context.Context) ([]SyncStatusRecord, error)
	Upsert(ctx context.Context, record SyncStatusRecord) error
}

// AutoSyncState is the scheduler's observable state. NextRunIn is advisory,
// recomputed on every read and never persisted as a deadline.
type AutoSyncState struct {
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"intervalMinutes"`
	LastRunAt       *time.Time `json:"lastRunAt,omitempty"`
	LastResult      SyncResult `json:"lastResult"`
	Running         bool       `json:"running"`
	NextRunIn       string     `json:"nextRunIn,omitempty"`
}
