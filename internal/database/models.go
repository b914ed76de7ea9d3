package database

import (
	"time"
)

// EventRecord is the persisted form of a processed event together with
// its classification. Content is stored redacted only.
type EventRecord struct {
	ID              uint   `gorm:"primaryKey"`
	EventID         string `gorm:"uniqueIndex;size:128;not null"`
	Subject         string `gorm:"index;size:256;not null"`
	Kind            string `gorm:"size:32;not null"`
	RedactedContent string `gorm:"type:text"`
	ContentRef      string `gorm:"size:512"`
	Metadata        string `gorm:"type:text"`
	// Classification is the serialized classification result.
	Classification string    `gorm:"type:text"`
	Fingerprint    string    `gorm:"index;size:64"`
	Timestamp      time.Time `gorm:"index;not null"`
	CreatedAt      time.Time

	Alerts []AlertRecord `gorm:"foreignKey:EventRecordID"`
}

func (EventRecord) TableName() string { return "dlp_events" }

// AlertRecord is one persisted alert. Alerts are append-only; nothing
// updates or deletes them.
type AlertRecord struct {
	ID            uint   `gorm:"primaryKey"`
	EventRecordID uint   `gorm:"index;not null"`
	AlertID       string `gorm:"uniqueIndex;size:64;not null"`
	EventID       string `gorm:"index;size:128;not null"`
	PolicyID      string `gorm:"index;size:128;not null"`
	RuleID        string `gorm:"size:128;not null"`
	Severity      string `gorm:"size:16;not null"`
	MatchedLabels string `gorm:"type:text"`
	ActionsTaken  string `gorm:"type:text"`
	CreatedAt     time.Time
}

func (AlertRecord) TableName() string { return "dlp_alerts" }
