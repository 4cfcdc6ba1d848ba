package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	bookingDomain "github.com/cragline/service-booking/internal/domain/booking"
	"github.com/cragline/service-booking/internal/domain/session"
)

func setupMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

var bookingColumns = []string{"id", "session_id", "climber_id", "booked_by_id", "status", "cancelled_at", "version", "created_at", "updated_at"}

func TestGormBookingRepository_FindByID(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewGormBookingRepository(db)

	id, sessionID, climberID := uuid.New(), uuid.New(), uuid.New()
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "bookings" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(bookingColumns).
			AddRow(id.String(), sessionID.String(), climberID.String(), climberID.String(), "booked", nil, 1, created, created))

	bk, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, bk.ID())
	assert.Equal(t, sessionID, bk.SessionID())
	assert.Equal(t, bookingDomain.StatusBooked, bk.Status())
	assert.True(t, bk.IsActive())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormBookingRepository_FindByID_Errors(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewGormBookingRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "bookings"`).WillReturnRows(sqlmock.NewRows(bookingColumns))
	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, bookingDomain.ErrBookingNotFound)

	mock.ExpectQuery(`SELECT \* FROM "bookings"`).WillReturnError(&pgconn.PgError{Code: pgSerializationFailure})
	_, err = repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, bookingDomain.ErrTransient)

	mock.ExpectQuery(`SELECT \* FROM "bookings"`).WillReturnError(errors.New("syntax error"))
	_, err = repo.FindByID(context.Background(), uuid.New())
	require.Error(t, err)
	_, typed := bookingDomain.AsError(err)
	assert.False(t, typed, "permanent storage failures stay untyped")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormBookingRepository_CountByStatus(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewGormBookingRepository(db)

	mock.ExpectQuery(`SELECT status, count\(\*\) as count FROM "bookings" GROUP BY`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("booked", 7).
			AddRow("cancelled", 2))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"booked": 7, "cancelled": 2}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormBookingRepository_FindActiveBySession(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewGormBookingRepository(db)
	sessionID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "bookings" WHERE session_id = \$1 AND status = \$2 ORDER BY created_at ASC`).
		WithArgs(sessionID, "booked").
		WillReturnRows(sqlmock.NewRows(bookingColumns).
			AddRow(uuid.NewString(), sessionID.String(), uuid.NewString(), uuid.NewString(), "booked", nil, 1, now, now).
			AddRow(uuid.NewString(), sessionID.String(), uuid.NewString(), uuid.NewString(), "booked", nil, 1, now, now))

	active, err := repo.FindActiveBySession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormBookingRepository_UnknownStatus(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewGormBookingRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "bookings"`).
		WillReturnRows(sqlmock.NewRows(bookingColumns).
			AddRow(uuid.NewString(), uuid.NewString(), uuid.NewString(), uuid.NewString(), "pending", nil, 1, now, now))

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestGormSessionRepository_GetSession_NotFound(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewGormSessionRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "sessions" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "date", "duration_minutes", "capacity", "status"}))

	_, err := repo.GetSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, session.ErrNotFound)

	mock.ExpectQuery(`SELECT \* FROM "sessions"`).WillReturnError(&pgconn.PgError{Code: pgAdminShutdown})
	_, err = repo.FindSessions(context.Background(), session.Query{From: time.Now(), To: time.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, bookingDomain.ErrTransient)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormLinkRepository_FindLink(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewGormLinkRepository(db)
	parent, child := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "parent_climber_links" WHERE parent_id = \$1 AND climber_id = \$2`).
		WithArgs(parent, child).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "parent_climber_links"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	linked, err := repo.FindLink(context.Background(), parent, child)
	require.NoError(t, err)
	assert.True(t, linked)

	linked, err = repo.FindLink(context.Background(), child, parent)
	require.NoError(t, err)
	assert.False(t, linked)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bad conn", driver.ErrBadConn, true},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"serialization", &pgconn.PgError{Code: pgSerializationFailure}, true},
		{"deadlock", &pgconn.PgError{Code: pgDeadlockDetected}, true},
		{"connection class", &pgconn.PgError{Code: "08006"}, true},
		{"unique violation", &pgconn.PgError{Code: pgUniqueViolation}, false},
		{"check violation", &pgconn.PgError{Code: "23514"}, false},
		{"not found", gorm.ErrRecordNotFound, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: pgUniqueViolation}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: pgSerializationFailure}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestStorageError(t *testing.T) {
	assert.NoError(t, storageError("op", nil))

	err := storageError("save booking", &pgconn.PgError{Code: pgDeadlockDetected})
	e, ok := bookingDomain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, bookingDomain.KindTransient, e.Kind)
	assert.True(t, e.Retryable())
}
