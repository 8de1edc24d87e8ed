package models

import "time"

type SyncState string

const (
	SyncNotStarted SyncState = "not_started"
	SyncRunning    SyncState = "running"
	SyncPaused     SyncState = "paused"
	SyncCompleted  SyncState = "completed"
	SyncError      SyncState = "error"
)

// SyncStatus is the global per-user, per-provider sync record. The current
// run id lives only here, never in process memory, so any instance can pick
// up where a previous invocation stopped.
type SyncStatus struct {
	UserID       string     `gorm:"column:user_id;primaryKey"`
	Provider     Provider   `gorm:"column:provider;primaryKey"`
	Status       SyncState  `gorm:"column:sync_status"`
	CurrentRunID *string    `gorm:"column:current_run_id"`
	ErrorMessage *string    `gorm:"column:error_message"`
	StartedAt    *time.Time `gorm:"column:started_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (SyncStatus) TableName() string {
	return "sync_status"
}
