package models

import "time"

// PostReport is the audit record written for every accepted report. The
// post's report_count is the authoritative counter; these rows preserve who
// reported and why. Duplicate reports from one member are kept as separate
// rows.
type PostReport struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Reference  string    `gorm:"size:36;not null;uniqueIndex" json:"reference"`
	PostID     uint      `gorm:"index;not null" json:"post_id"`
	ReporterID uint      `gorm:"index;not null" json:"reporter_id"`
	Reason     string    `gorm:"size:512" json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}
