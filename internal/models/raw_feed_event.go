package models

import (
	"time"

	"gorm.io/datatypes"
)

// RawFeedEvent is an audit row for upstream feed payloads; written
// best-effort, never read on the serving path.
type RawFeedEvent struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement"`
	Symbol     string         `gorm:"type:varchar(64);not null;index"`
	EventType  string         `gorm:"type:text;not null"`
	ReceivedAt time.Time      `gorm:"type:timestamptz;not null;index"`
	Payload    datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (RawFeedEvent) TableName() string {
	return "raw_feed_events"
}
