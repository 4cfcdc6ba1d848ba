package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	bookingDomain "github.com/cragline/service-booking/internal/domain/booking"
)

// SessionLedgerModel is the per-session active booking counter.
type SessionLedgerModel struct {
	SessionID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	ActiveCount int       `gorm:"not null;default:0;check:active_count >= 0"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;not null"`
}

// TableName returns the table name for the GORM model.
func (SessionLedgerModel) TableName() string {
	return "session_ledgers"
}

// seedLedger creates the counter row from live booking rows the first time a
// session is touched. It inserts nothing when the session does not exist.
const seedLedger = `
INSERT INTO session_ledgers (session_id, active_count, updated_at)
SELECT s.id,
       (SELECT count(*) FROM bookings b WHERE b.session_id = s.id AND b.status = 'booked'),
       NOW()
FROM sessions s
WHERE s.id = ?
ON CONFLICT (session_id) DO NOTHING`

// errRejected rolls back an admission transaction without surfacing an error.
var errRejected = errors.New("admission rejected")

// GormCapacityLedger serializes admissions per session by locking the
// session's ledger row for the duration of the check and insert.
type GormCapacityLedger struct {
	db *gorm.DB
}

// NewGormCapacityLedger creates a new GormCapacityLedger.
func NewGormCapacityLedger(db *gorm.DB) *GormCapacityLedger {
	return &GormCapacityLedger{db: db}
}

// Admit reserves a slot for b and inserts it in the same transaction.
func (l *GormCapacityLedger) Admit(ctx context.Context, b *bookingDomain.Booking) (bookingDomain.AdmissionOutcome, error) {
	outcome := bookingDomain.Admitted
	sessionID := b.SessionID()

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger, capacity, found, err := lockLedger(tx, sessionID)
		if err != nil {
			return err
		}
		if !found {
			outcome = bookingDomain.AdmissionSessionNotFound
			return errRejected
		}

		var existing int64
		if err := tx.Model(&BookingModel{}).
			Where("session_id = ? AND climber_id = ? AND status = ?", sessionID, b.ClimberID(), string(bookingDomain.StatusBooked)).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			outcome = bookingDomain.AdmissionAlreadyBooked
			return errRejected
		}

		if ledger.ActiveCount >= capacity {
			outcome = bookingDomain.AdmissionSessionFull
			return errRejected
		}

		if err := tx.Create(toBookingModel(b)).Error; err != nil {
			if isUniqueViolation(err) {
				outcome = bookingDomain.AdmissionAlreadyBooked
				return errRejected
			}
			return err
		}

		return tx.Model(&SessionLedgerModel{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]interface{}{
				"active_count": gorm.Expr("active_count + 1"),
				"updated_at":   time.Now().UTC(),
			}).Error
	})
	if errors.Is(err, errRejected) {
		return outcome, nil
	}
	if err != nil {
		return outcome, storageError("admit booking", err)
	}
	return outcome, nil
}

// Release marks b cancelled and decrements the counter in one transaction.
// The ledger row is locked before the booking row, the same order Admit uses.
func (l *GormCapacityLedger) Release(ctx context.Context, b *bookingDomain.Booking) error {
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ledger SessionLedgerModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ?", b.SessionID()).
			Limit(1).
			Find(&ledger).Error; err != nil {
			return err
		}

		res := tx.Model(&BookingModel{}).
			Where("id = ? AND status = ?", b.ID(), string(bookingDomain.StatusBooked)).
			Updates(map[string]interface{}{
				"status":       string(b.Status()),
				"cancelled_at": b.CancelledAt(),
				"version":      b.Version(),
				"updated_at":   b.UpdatedAt(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return bookingDomain.NewError(bookingDomain.KindAlreadyCancelled).WithBooking(b.ID())
		}

		return tx.Model(&SessionLedgerModel{}).
			Where("session_id = ? AND active_count > 0", b.SessionID()).
			Updates(map[string]interface{}{
				"active_count": gorm.Expr("active_count - 1"),
				"updated_at":   time.Now().UTC(),
			}).Error
	})

	var domainErr *bookingDomain.Error
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return storageError("release booking", err)
}

// ActiveCount returns the live number of active bookings in the session.
func (l *GormCapacityLedger) ActiveCount(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int64
	if err := l.db.WithContext(ctx).Model(&BookingModel{}).
		Where("session_id = ? AND status = ?", sessionID, string(bookingDomain.StatusBooked)).
		Count(&count).Error; err != nil {
		return 0, storageError("count active bookings", err)
	}
	return int(count), nil
}

// Reconcile recomputes the counter from booking rows under the ledger lock.
func (l *GormCapacityLedger) Reconcile(ctx context.Context, sessionID uuid.UUID) (bookingDomain.ReconcileResult, error) {
	result := bookingDomain.ReconcileResult{SessionID: sessionID}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger, _, found, err := lockLedger(tx, sessionID)
		if err != nil {
			return err
		}
		if !found {
			return bookingDomain.NewError(bookingDomain.KindSessionNotFound).WithSession(sessionID)
		}

		var live int64
		if err := tx.Model(&BookingModel{}).
			Where("session_id = ? AND status = ?", sessionID, string(bookingDomain.StatusBooked)).
			Count(&live).Error; err != nil {
			return err
		}

		result.Before = ledger.ActiveCount
		result.After = int(live)
		if result.Before == result.After {
			return nil
		}
		return tx.Model(&SessionLedgerModel{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]interface{}{
				"active_count": result.After,
				"updated_at":   time.Now().UTC(),
			}).Error
	})

	var domainErr *bookingDomain.Error
	if errors.As(err, &domainErr) {
		return result, domainErr
	}
	if err != nil {
		return result, storageError("reconcile ledger", err)
	}
	return result, nil
}

// lockLedger seeds the session's counter row if needed, locks it, and reads
// the session capacity. found is false when the session does not exist.
func lockLedger(tx *gorm.DB, sessionID uuid.UUID) (ledger SessionLedgerModel, capacity int, found bool, err error) {
	if err = tx.Exec(seedLedger, sessionID).Error; err != nil {
		return ledger, 0, false, err
	}

	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("session_id = ?", sessionID).
		First(&ledger).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger, 0, false, nil
	}
	if err != nil {
		return ledger, 0, false, err
	}

	var s SessionModel
	err = tx.Select("capacity").Where("id = ?", sessionID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger, 0, false, nil
	}
	if err != nil {
		return ledger, 0, false, err
	}
	return ledger, s.Capacity, true, nil
}
