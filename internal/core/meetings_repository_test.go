package core

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}

	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestMeetingsRepository(t *testing.T) {
	t.Run("meeting started", func(t *testing.T) {
		db, mock := newMockDB(t)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO meetings`)).
			WithArgs("room-1", "Alice", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

		m, err := NewMeetingsRepository(db).MeetingStarted("room-1", "Alice")

		assert.Nil(t, err)
		assert.Equal(t, int64(7), m.ID)
		assert.Equal(t, "room-1", m.RoomID)
		assert.Nil(t, mock.ExpectationsWereMet())
	})

	t.Run("meeting started fails", func(t *testing.T) {
		db, mock := newMockDB(t)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO meetings`)).WillReturnError(errors.New("boom"))

		m, err := NewMeetingsRepository(db).MeetingStarted("room-1", "Alice")

		assert.NotNil(t, err)
		assert.Nil(t, m)
	})

	t.Run("joined and left", func(t *testing.T) {
		db, mock := newMockDB(t)
		defer db.Close()

		p := NewParticipant("p1", "Bob")

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO attendances`)).
			WithArgs("room-1", "p1", "Bob", p.JoinedAt).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE attendances SET left_at`)).
			WithArgs("room-1", "p1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewMeetingsRepository(db)
		assert.Nil(t, repo.Joined("room-1", p))
		assert.Nil(t, repo.Left("room-1", "p1"))
		assert.Nil(t, mock.ExpectationsWereMet())
	})

	t.Run("active meeting lookup", func(t *testing.T) {
		db, mock := newMockDB(t)
		defer db.Close()

		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`FROM meetings`)).
			WithArgs("room-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "room_id", "started_by", "created_at", "ended_at"}).
				AddRow(3, "room-1", "Alice", now, nil))

		m, err := NewMeetingsRepository(db).FindActiveMeeting("room-1")

		assert.Nil(t, err)
		assert.Equal(t, int64(3), m.ID)
		assert.Nil(t, m.EndedAt)
	})

	t.Run("no active meeting", func(t *testing.T) {
		db, mock := newMockDB(t)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`FROM meetings`)).
			WithArgs("room-2").
			WillReturnRows(sqlmock.NewRows([]string{"id", "room_id", "started_by", "created_at", "ended_at"}))

		m, err := NewMeetingsRepository(db).FindActiveMeeting("room-2")

		assert.Nil(t, err)
		assert.Nil(t, m)
	})
}
