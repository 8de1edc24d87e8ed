package models

import "time"

// ConsoleMessage is an append-only status line for one sync run, polled by
// the UI for live progress. The pipeline never reads it back.
type ConsoleMessage struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    string    `gorm:"column:user_id"`
	RunID     string    `gorm:"column:run_id"`
	Message   string    `gorm:"column:message"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (ConsoleMessage) TableName() string {
	return "console_messages"
}
