package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	bookingDomain "github.com/cragline/service-booking/internal/domain/booking"
)

// BookingModel is the GORM model for the bookings table. The partial unique
// index allows one active booking per (session, climber) while keeping
// cancelled rows as history.
type BookingModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	SessionID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_bookings_session_status;uniqueIndex:uniq_bookings_active_climber,where:status = 'booked'"`
	ClimberID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uniq_bookings_active_climber,where:status = 'booked'"`
	BookedByID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	Status      string     `gorm:"not null;size:20;index:idx_bookings_session_status"`
	CancelledAt *time.Time `gorm:"type:timestamptz"`
	Version     int64      `gorm:"not null;default:1"`
	CreatedAt   time.Time  `gorm:"type:timestamptz;not null"`
	UpdatedAt   time.Time  `gorm:"type:timestamptz;not null"`
}

// TableName returns the table name for the GORM model.
func (BookingModel) TableName() string {
	return "bookings"
}

// GormBookingRepository is the GORM-based implementation of BookingRepository.
type GormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository creates a new GormBookingRepository.
func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// FindByID retrieves a booking by its unique identifier.
func (r *GormBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingDomain.NewError(bookingDomain.KindBookingNotFound).WithBooking(id)
		}
		return nil, storageError("find booking by ID", err)
	}
	return toDomainBooking(&model)
}

// FindByBooker retrieves bookings created by bookedByID with pagination.
func (r *GormBookingRepository) FindByBooker(ctx context.Context, bookedByID uuid.UUID, filter bookingDomain.ListFilter, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		return applyFilter(db.Where("booked_by_id = ?", bookedByID), filter)
	}
	return r.paginate(ctx, scope, page, limit)
}

// ListAll retrieves all bookings with pagination (staff).
func (r *GormBookingRepository) ListAll(ctx context.Context, filter bookingDomain.ListFilter, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		return applyFilter(db, filter)
	}
	return r.paginate(ctx, scope, page, limit)
}

// FindActiveBySession returns every booking holding a slot in the session.
func (r *GormBookingRepository) FindActiveBySession(ctx context.Context, sessionID uuid.UUID) ([]*bookingDomain.Booking, error) {
	var models []BookingModel
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND status = ?", sessionID, string(bookingDomain.StatusBooked)).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, storageError("find active bookings by session", err)
	}
	return toDomainBookings(models)
}

// CountByStatus returns booking counts grouped by status (admin).
func (r *GormBookingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return nil, storageError("count bookings by status", err)
	}

	counts := make(map[string]int64)
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

func (r *GormBookingRepository) paginate(ctx context.Context, scope func(*gorm.DB) *gorm.DB, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, storageError("count bookings", err)
	}

	var models []BookingModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).
		Scopes(scope).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, storageError("list bookings", err)
	}

	bookings, err := toDomainBookings(models)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

func applyFilter(db *gorm.DB, filter bookingDomain.ListFilter) *gorm.DB {
	if filter.Status != "" {
		db = db.Where("status = ?", string(filter.Status))
	}
	if filter.ClimberID != uuid.Nil {
		db = db.Where("climber_id = ?", filter.ClimberID)
	}
	if filter.SessionID != uuid.Nil {
		db = db.Where("session_id = ?", filter.SessionID)
	}
	return db
}

// --- Conversion Helpers ---

func toBookingModel(bk *bookingDomain.Booking) *BookingModel {
	return &BookingModel{
		ID:          bk.ID(),
		SessionID:   bk.SessionID(),
		ClimberID:   bk.ClimberID(),
		BookedByID:  bk.BookedByID(),
		Status:      string(bk.Status()),
		CancelledAt: bk.CancelledAt(),
		Version:     bk.Version(),
		CreatedAt:   bk.CreatedAt(),
		UpdatedAt:   bk.UpdatedAt(),
	}
}

func toDomainBooking(m *BookingModel) (*bookingDomain.Booking, error) {
	status, err := bookingDomain.ParseBookingStatus(m.Status)
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w", m.ID, err)
	}

	return bookingDomain.ReconstructBooking(
		m.ID,
		m.SessionID,
		m.ClimberID,
		m.BookedByID,
		status,
		m.CancelledAt,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	), nil
}

func toDomainBookings(models []BookingModel) ([]*bookingDomain.Booking, error) {
	bookings := make([]*bookingDomain.Booking, len(models))
	for i := range models {
		bk, err := toDomainBooking(&models[i])
		if err != nil {
			return nil, err
		}
		bookings[i] = bk
	}
	return bookings, nil
}
