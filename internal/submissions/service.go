package submissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a stable machine-readable code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew   = "submissions.service.new"
	opCreate       = "submissions.create"
	opListPending  = "submissions.list_pending"
	opListApproved = "submissions.list_approved"
	opApprove      = "submissions.approve"
	opReject       = "submissions.reject"
	opUnapprove    = "submissions.unapprove"
	opReorder      = "submissions.reorder"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig wires the moderation queue service dependencies.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages the submission moderation queue.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService validates the configuration and returns a queue service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Create inserts a pending submission. Callers are expected to have
// validated the text via ValidateText; the check here is a backstop.
func (s *Service) Create(ctx context.Context, text string) (Submission, error) {
	if err := ValidateText(text); err != nil {
		return Submission{}, newServiceError(opCreate, "invalid_text", err)
	}

	submission := Submission{
		Text:    text,
		Status:  StatusPending,
		Created: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&submission).Error; err != nil {
		s.logError(opCreate, "insert_failed", err)
		return Submission{}, newServiceError(opCreate, "insert_failed", err)
	}

	return submission, nil
}

// PendingPage is one page of the pending moderation listing.
type PendingPage struct {
	Submissions []Submission
	Total       int64
	Page        int
	TotalPages  int
}

// ListPending returns pending submissions ordered newest first. Page numbers
// past the last valid page are clamped to it; the clamped page is reported
// back so HTTP callers can redirect.
func (s *Service) ListPending(ctx context.Context, page, pageSize int) (PendingPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&Submission{}).
		Where("status = ?", StatusPending).
		Count(&total).Error; err != nil {
		s.logError(opListPending, "count_failed", err)
		return PendingPage{}, newServiceError(opListPending, "count_failed", err)
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}

	var pending []Submission
	offset := (page - 1) * pageSize
	if err := s.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order("created DESC").
		Limit(pageSize).
		Offset(offset).
		Find(&pending).Error; err != nil {
		s.logError(opListPending, "query_failed", err)
		return PendingPage{}, newServiceError(opListPending, "query_failed", err)
	}

	return PendingPage{Submissions: pending, Total: total, Page: page, TotalPages: totalPages}, nil
}

// ListApproved returns the approved queue in priority order, highest
// priority (lowest sort order) first. Ties fall back to creation time.
func (s *Service) ListApproved(ctx context.Context, limit int) ([]Submission, error) {
	query := s.db.WithContext(ctx).
		Where("status = ?", StatusApproved).
		Order("sort_order ASC, created ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var approved []Submission
	if err := query.Find(&approved).Error; err != nil {
		s.logError(opListApproved, "query_failed", err)
		return nil, newServiceError(opListApproved, "query_failed", err)
	}
	return approved, nil
}

// Approve moves a submission into the approved queue, appended at the tail
// (lowest priority). Unknown ids are silent no-ops.
func (s *Service) Approve(ctx context.Context, id int64) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxOrder int64
		row := tx.Model(&Submission{}).
			Where("status = ?", StatusApproved).
			Select("COALESCE(MAX(sort_order), 0)").
			Row()
		if err := row.Scan(&maxOrder); err != nil {
			return err
		}

		nextOrder := maxOrder + 1
		return tx.Model(&Submission{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":     StatusApproved,
				"sort_order": nextOrder,
			}).Error
	})
	if txErr != nil {
		s.logError(opApprove, "update_failed", txErr, zap.Int64("submission_id", id))
		return newServiceError(opApprove, "update_failed", txErr)
	}
	return nil
}

// Reject marks a submission rejected. Unknown ids are silent no-ops.
func (s *Service) Reject(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Model(&Submission{}).
		Where("id = ?", id).
		Update("status", StatusRejected).Error; err != nil {
		s.logError(opReject, "update_failed", err, zap.Int64("submission_id", id))
		return newServiceError(opReject, "update_failed", err)
	}
	return nil
}

// Unapprove returns an approved submission to the pending list and clears
// its queue position.
func (s *Service) Unapprove(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Model(&Submission{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     StatusPending,
			"sort_order": nil,
		}).Error; err != nil {
		s.logError(opUnapprove, "update_failed", err, zap.Int64("submission_id", id))
		return newServiceError(opUnapprove, "update_failed", err)
	}
	return nil
}

// Reorder reassigns sort order 1..N by position for exactly the named
// submissions. This is the operator reprioritizing the approved queue.
func (s *Service) Reorder(ctx context.Context, idsInNewOrder []int64) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for position, id := range idsInNewOrder {
			if err := tx.Model(&Submission{}).
				Where("id = ?", id).
				Update("sort_order", position+1).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		s.logError(opReorder, "update_failed", txErr)
		return newServiceError(opReorder, "update_failed", txErr)
	}
	return nil
}

// NextApproved selects up to limit approved submissions in priority order
// using the provided transaction handle. Used by the drop materializer.
func NextApproved(tx *gorm.DB, limit int) ([]Submission, error) {
	var next []Submission
	err := tx.
		Where("status = ?", StatusApproved).
		Order("sort_order ASC, created ASC").
		Limit(limit).
		Find(&next).Error
	if err != nil {
		return nil, err
	}
	return next, nil
}

// ConsumeApproved transitions one submission from approved to used. The
// guard on the current status makes the transition a compare-and-set: a
// submission racing into two concurrent drop fills is consumed exactly once,
// and the loser observes false.
func ConsumeApproved(tx *gorm.DB, id int64) (bool, error) {
	result := tx.Model(&Submission{}).
		Where("id = ? AND status = ?", id, StatusApproved).
		Update("status", StatusUsed)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("submissions service error", attrs...)
}
