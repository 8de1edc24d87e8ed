package models

import "time"

// Contact is a CRM contact (educator) read by the matching stage. The sync
// engine never writes this table.
type Contact struct {
	ID        string    `gorm:"column:id;primaryKey"`
	FirstName string    `gorm:"column:first_name"`
	LastName  string    `gorm:"column:last_name"`
	Email     string    `gorm:"column:email"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (Contact) TableName() string {
	return "contacts"
}
