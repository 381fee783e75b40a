package moderation

import (
	"time"

	"gorm.io/datatypes"
)

// ReportableType tags the kind of entity a report points at.
type ReportableType string

const (
	ReportablePost    ReportableType = "post"
	ReportableComment ReportableType = "comment"
	ReportableUser    ReportableType = "user"
)

// Snapshot is the denormalized copy of a reported entity captured when the report is filed, so
// moderators can inspect it after the original is gone.
type Snapshot struct {
	Type       ReportableType `json:"type"`
	ID         uint64         `json:"id"`
	AuthorID   uint64         `json:"author_id,omitempty"`
	PostID     uint64         `json:"post_id,omitempty"`
	Username   string         `json:"username,omitempty"`
	Body       string         `json:"body,omitempty"`
	CapturedAt time.Time      `json:"captured_at"`
}

// Report is a moderation record. It is pending while ClosedAt is nil.
type Report struct {
	ID             uint64                       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ReporterID     uint64                       `gorm:"column:reporter_id;not null;index" json:"reporter_id"`
	ReportableType ReportableType               `gorm:"column:reportable_type;size:16;not null;index:idx_reports_reportable,priority:1" json:"reportable_type"`
	ReportableID   uint64                       `gorm:"column:reportable_id;not null;index:idx_reports_reportable,priority:2" json:"reportable_id"`
	Reason         string                       `gorm:"column:reason;size:500;not null" json:"reason"`
	Snapshot       datatypes.JSONType[Snapshot] `gorm:"column:snapshot;not null" json:"snapshot"`
	ResolverID     *uint64                      `gorm:"column:resolver_id" json:"resolver_id"`
	Notes          *string                      `gorm:"column:notes;type:text" json:"notes"`
	ClosedAt       *time.Time                   `gorm:"column:closed_at;index" json:"closed_at"`
	CreatedAt      time.Time                    `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt      time.Time                    `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Report) TableName() string {
	return "reports"
}

// Pending reports whether the report is still open.
func (r Report) Pending() bool {
	return r.ClosedAt == nil
}
