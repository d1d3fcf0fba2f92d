package submissions

import (
	"errors"
	"strings"
	"time"
)

// Status enumerates the moderation states of a submission.
type Status string

const (
	// StatusPending marks a freshly submitted note awaiting moderation.
	StatusPending Status = "pending"
	// StatusApproved marks a submission queued for a future drop.
	StatusApproved Status = "approved"
	// StatusRejected marks a submission excluded from all drops.
	StatusRejected Status = "rejected"
	// StatusUsed marks a submission already consumed into a drop.
	StatusUsed Status = "used"
)

// MaxTextLength is the hard cap on submission text.
const MaxTextLength = 280

var (
	// ErrEmptyText indicates a submission with no content.
	ErrEmptyText = errors.New("submissions: text is empty")
	// ErrTextTooLong indicates a submission exceeding MaxTextLength characters.
	ErrTextTooLong = errors.New("submissions: text exceeds 280 characters")
)

// ValidateText enforces the submission text constraints. Length is counted
// in characters, not bytes, so multibyte text gets the full 280.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if len([]rune(text)) > MaxTextLength {
		return ErrTextTooLong
	}
	return nil
}

// Submission models a user-submitted note moving through the moderation
// queue. Rows are never deleted; used submissions stay as history.
type Submission struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Text      string    `gorm:"column:text;type:text;not null"`
	Status    Status    `gorm:"column:status;size:16;not null;default:pending;index:idx_submissions_status"`
	SortOrder *int64    `gorm:"column:sort_order"`
	Created   time.Time `gorm:"column:created;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Submission) TableName() string {
	return "submissions"
}
