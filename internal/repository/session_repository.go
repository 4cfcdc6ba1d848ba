package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cragline/service-booking/internal/domain/session"
)

// SessionModel maps the scheduling service's sessions table. This service
// only reads it.
type SessionModel struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Date            time.Time       `gorm:"type:timestamptz;not null;index:idx_sessions_date_status"`
	DurationMinutes int             `gorm:"not null"`
	Capacity        int             `gorm:"not null"`
	Status          string          `gorm:"not null;size:20;default:'active';index:idx_sessions_date_status"`
	CoachIDs        json.RawMessage `gorm:"type:jsonb;not null;default:'[]'"`
	CreatedAt       time.Time       `gorm:"type:timestamptz;not null;default:now()"`
	UpdatedAt       time.Time       `gorm:"type:timestamptz;not null;default:now()"`
}

// TableName returns the table name for the GORM model.
func (SessionModel) TableName() string {
	return "sessions"
}

// GormSessionRepository implements session.Registry using GORM.
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new GormSessionRepository.
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// GetSession returns the session or session.ErrNotFound.
func (r *GormSessionRepository) GetSession(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	var model SessionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrNotFound
		}
		return nil, storageError("find session by ID", err)
	}
	return toDomainSession(&model)
}

// FindSessions returns sessions matching q ordered by date.
func (r *GormSessionRepository) FindSessions(ctx context.Context, q session.Query) ([]*session.Session, error) {
	db := r.db.WithContext(ctx).Where("date >= ? AND date < ?", q.From.UTC(), q.To.UTC())
	if q.DurationMinutes > 0 {
		db = db.Where("duration_minutes = ?", q.DurationMinutes)
	}
	if q.Status != "" {
		db = db.Where("status = ?", string(q.Status))
	}

	var models []SessionModel
	if err := db.Order("date ASC").Find(&models).Error; err != nil {
		return nil, storageError("find sessions", err)
	}

	sessions := make([]*session.Session, 0, len(models))
	for i := range models {
		s, err := toDomainSession(&models[i])
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// Save inserts or replaces a session row. Used by tooling and tests that
// stand in for the scheduling service.
func (r *GormSessionRepository) Save(ctx context.Context, s *session.Session) error {
	model, err := toSessionModel(s)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return storageError("save session", err)
	}
	return nil
}

func toSessionModel(s *session.Session) (*SessionModel, error) {
	coachIDs := s.CoachIDs
	if coachIDs == nil {
		coachIDs = []uuid.UUID{}
	}
	raw, err := json.Marshal(coachIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal coach IDs: %w", err)
	}
	now := time.Now().UTC()
	return &SessionModel{
		ID:              s.ID,
		Date:            s.Date.UTC(),
		DurationMinutes: s.DurationMinutes,
		Capacity:        s.Capacity,
		Status:          string(s.Status),
		CoachIDs:        raw,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func toDomainSession(m *SessionModel) (*session.Session, error) {
	status, err := session.ParseStatus(m.Status)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", m.ID, err)
	}

	var coachIDs []uuid.UUID
	if len(m.CoachIDs) > 0 {
		if err := json.Unmarshal(m.CoachIDs, &coachIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal coach IDs: %w", err)
		}
	}

	return &session.Session{
		ID:              m.ID,
		Date:            m.Date.UTC(),
		DurationMinutes: m.DurationMinutes,
		Capacity:        m.Capacity,
		Status:          status,
		CoachIDs:        coachIDs,
	}, nil
}
