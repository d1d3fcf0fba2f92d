package drops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gratitudedrop/backend/internal/submissions"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultDropSize is the target note count per drop.
const DefaultDropSize = 5

var (
	// ErrNoteNotFound indicates a lookup for a note id with no row.
	ErrNoteNotFound = errors.New("drops: note not found")

	errMissingDatabase = errors.New("drops: database handle is required")
	errMissingResolver = errors.New("drops: drop id resolver is required")
)

// Resolver maps an instant to the drop identifier current at that time.
type Resolver interface {
	Resolve(now time.Time) string
}

// PayloadCache holds serialized drop payloads keyed by drop id.
type PayloadCache interface {
	Get(dropID string) ([]byte, bool)
	Set(dropID string, payload []byte)
	Invalidate(dropID string)
}

// ServiceConfig wires the drop service dependencies.
type ServiceConfig struct {
	Database *gorm.DB
	Resolver Resolver
	Cache    PayloadCache
	DropSize int
	Logger   *zap.Logger
}

// Service materializes and serves drops and their notes.
type Service struct {
	db       *gorm.DB
	resolver Resolver
	cache    PayloadCache
	dropSize int
	logger   *zap.Logger
}

// NewService validates the configuration and returns a drop service. The
// cache is optional; without one every read hits storage.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Resolver == nil {
		return nil, errMissingResolver
	}

	dropSize := cfg.DropSize
	if dropSize <= 0 {
		dropSize = DefaultDropSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		db:       cfg.Database,
		resolver: cfg.Resolver,
		cache:    cfg.Cache,
		dropSize: dropSize,
		logger:   logger,
	}, nil
}

// NotePayload is the wire shape of a note inside a drop response.
type NotePayload struct {
	ID     int64  `json:"id"`
	Text   string `json:"text"`
	Hearts int64  `json:"hearts"`
}

// DropPayload is the wire shape of the drop response.
type DropPayload struct {
	DropID string        `json:"dropId"`
	Notes  []NotePayload `json:"notes"`
}

// EnsurePopulated tops the drop up to the target size from the approved
// queue, highest priority first. Idempotent: a full drop is a no-op, and a
// shortfall of approved submissions leaves the drop partially filled until a
// later call finds more. The approved-to-used transition is a guarded update
// inside the transaction, so two racing fills never consume the same
// submission twice.
func (s *Service) EnsurePopulated(ctx context.Context, dropID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Note{}).Where("drop_id = ?", dropID).Count(&count).Error; err != nil {
			return fmt.Errorf("count notes: %w", err)
		}
		needed := s.dropSize - int(count)
		if needed <= 0 {
			return nil
		}

		next, err := submissions.NextApproved(tx, needed)
		if err != nil {
			return fmt.Errorf("select approved: %w", err)
		}
		if len(next) == 0 {
			return nil
		}

		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Drop{DropID: dropID}).Error; err != nil {
			return fmt.Errorf("ensure drop row: %w", err)
		}

		for _, submission := range next {
			consumed, err := submissions.ConsumeApproved(tx, submission.ID)
			if err != nil {
				return fmt.Errorf("consume submission: %w", err)
			}
			if !consumed {
				// Lost the race to a concurrent fill; skip rather
				// than duplicate the text into this drop.
				continue
			}
			note := Note{Text: submission.Text, Hearts: 0, DropID: dropID}
			if err := tx.Create(&note).Error; err != nil {
				return fmt.Errorf("insert note: %w", err)
			}
		}
		return nil
	})
}

// GetDrop returns the serialized payload for the drop current at now,
// serving from cache when possible. Freshly assembled payloads are cached
// for the configured TTL.
func (s *Service) GetDrop(ctx context.Context, now time.Time) ([]byte, error) {
	dropID := s.resolver.Resolve(now)

	if s.cache != nil {
		if payload, ok := s.cache.Get(dropID); ok {
			return payload, nil
		}
	}

	if err := s.EnsurePopulated(ctx, dropID); err != nil {
		s.logger.Error("drop materialization failed", zap.String("drop_id", dropID), zap.Error(err))
		return nil, err
	}

	var notes []Note
	if err := s.db.WithContext(ctx).
		Where("drop_id = ?", dropID).
		Order("id ASC").
		Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}

	payload := DropPayload{DropID: dropID, Notes: make([]NotePayload, 0, len(notes))}
	for _, note := range notes {
		payload.Notes = append(payload.Notes, NotePayload{ID: note.ID, Text: note.Text, Hearts: note.Hearts})
	}

	serialized, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal drop payload: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(dropID, serialized)
	}
	return serialized, nil
}

// Heart increments the heart counter for a note and invalidates the cache
// entry of the drop the note actually belongs to. Unknown note ids are
// silent no-ops.
func (s *Service) Heart(ctx context.Context, noteID int64) error {
	return s.adjustHearts(ctx, noteID, gorm.Expr("hearts + 1"))
}

// Unheart decrements the heart counter, clamped at zero.
func (s *Service) Unheart(ctx context.Context, noteID int64) error {
	return s.adjustHearts(ctx, noteID, gorm.Expr("MAX(0, hearts - 1)"))
}

func (s *Service) adjustHearts(ctx context.Context, noteID int64, expr any) error {
	var note Note
	err := s.db.WithContext(ctx).Select("id", "drop_id").First(&note, noteID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load note: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&Note{}).
		Where("id = ?", noteID).
		Update("hearts", expr).Error; err != nil {
		return fmt.Errorf("update hearts: %w", err)
	}

	s.invalidate(note.DropID)
	return nil
}

// GetNote returns a single note for shared-note deep links.
func (s *Service) GetNote(ctx context.Context, noteID int64) (Note, error) {
	var note Note
	err := s.db.WithContext(ctx).First(&note, noteID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, ErrNoteNotFound
	}
	if err != nil {
		return Note{}, fmt.Errorf("load note: %w", err)
	}
	return note, nil
}

// DeleteNote hard-deletes a note (operator moderation) and invalidates its
// drop's cache entry. The originating submission is untouched.
func (s *Service) DeleteNote(ctx context.Context, noteID int64) error {
	var note Note
	err := s.db.WithContext(ctx).Select("id", "drop_id").First(&note, noteID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNoteNotFound
	}
	if err != nil {
		return fmt.Errorf("load note: %w", err)
	}

	if err := s.db.WithContext(ctx).Delete(&Note{}, noteID).Error; err != nil {
		return fmt.Errorf("delete note: %w", err)
	}

	s.invalidate(note.DropID)
	return nil
}

// AnalyticsReport summarizes engagement across all dropped notes.
type AnalyticsReport struct {
	TotalNotes   int64   `json:"totalNotes"`
	TotalHearts  int64   `json:"totalHearts"`
	AverageHeart float64 `json:"averageHearts"`
	Notes        []Note  `json:"notes"`
}

// Analytics returns all dropped notes ordered by hearts descending, with
// aggregate totals for the operator view.
func (s *Service) Analytics(ctx context.Context) (AnalyticsReport, error) {
	var notes []Note
	if err := s.db.WithContext(ctx).
		Order("hearts DESC, drop_id DESC").
		Find(&notes).Error; err != nil {
		return AnalyticsReport{}, fmt.Errorf("query notes: %w", err)
	}

	report := AnalyticsReport{Notes: notes, TotalNotes: int64(len(notes))}
	for _, note := range notes {
		report.TotalHearts += note.Hearts
	}
	if report.TotalNotes > 0 {
		report.AverageHeart = float64(report.TotalHearts) / float64(report.TotalNotes)
	}
	return report, nil
}

func (s *Service) invalidate(dropID string) {
	if s.cache != nil {
		s.cache.Invalidate(dropID)
	}
}
