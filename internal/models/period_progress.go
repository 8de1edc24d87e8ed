package models

import "time"

type PeriodState string

const (
	PeriodNotStarted PeriodState = "not_started"
	PeriodInProgress PeriodState = "in_progress"
	PeriodPartial    PeriodState = "partial"
	PeriodCompleted  PeriodState = "completed"
	PeriodError      PeriodState = "error"
)

// PeriodProgress tracks one calendar bucket of sync work: an ISO week for
// mail, a month for calendar. Created lazily when the bucket is first
// selected; counters only ever grow within a run.
type PeriodProgress struct {
	UserID         string      `gorm:"column:user_id;primaryKey"`
	Provider       Provider    `gorm:"column:provider;primaryKey"`
	Year           int         `gorm:"column:year;primaryKey"`
	PeriodNumber   int         `gorm:"column:period_number;primaryKey"`
	PeriodStart    time.Time   `gorm:"column:period_start"`
	Status         PeriodState `gorm:"column:sync_status"`
	ErrorMessage   *string     `gorm:"column:error_message"`
	TotalItems     int         `gorm:"column:total_items"`
	HeadersFetched int         `gorm:"column:headers_fetched"`
	ItemsSynced    int         `gorm:"column:items_synced"`
	ItemsMatched   int         `gorm:"column:items_matched"`
	BodiesFetched  int         `gorm:"column:bodies_fetched"`
	StartedAt      *time.Time  `gorm:"column:started_at"`
	CompletedAt    *time.Time  `gorm:"column:completed_at"`
	UpdatedAt      time.Time   `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (PeriodProgress) TableName() string {
	return "sync_period_progress"
}
