package models

import (
	"time"

	"github.com/lib/pq"
)

// Item is one fetched provider record: a Gmail message (g_emails) or a
// Calendar event (g_events). Both tables share this column shape; Sender
// holds the organizer and Recipients the attendees for calendar rows.
// Headers arrive first; bodies and contact matches are filled in later, in
// place.
type Item struct {
	UserID            string         `gorm:"column:user_id;primaryKey"`
	ItemID            string         `gorm:"column:item_id;primaryKey"`
	ThreadID          string         `gorm:"column:thread_id"`
	Sender            string         `gorm:"column:sender"`
	Recipients        pq.StringArray `gorm:"column:recipients;type:text[]"`
	Subject           string         `gorm:"column:subject"`
	ItemTimestamp     time.Time      `gorm:"column:item_ts"`
	Snippet           string         `gorm:"column:snippet"`
	BodyText          string         `gorm:"column:body_text"`
	BodyHTML          string         `gorm:"column:body_html"`
	HasAttachments    bool           `gorm:"column:has_attachments"`
	BodyFetched       bool           `gorm:"column:body_fetched"`
	MatchedContactIDs pq.StringArray `gorm:"column:matched_contact_ids;type:text[]"`
	IsPrivate         bool           `gorm:"column:is_private"`
	CreatedAt         time.Time      `gorm:"column:created_at"`
	UpdatedAt         time.Time      `gorm:"column:updated_at"`
}
