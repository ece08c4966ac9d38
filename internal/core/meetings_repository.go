package core

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

type Meeting struct {
	ID        int64      `json:"id" db:"id"`
	RoomID    string     `json:"room_id" db:"room_id"`
	StartedBy string     `json:"started_by" db:"started_by"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

type Attendance struct {
	ID            int64         `json:"id" db:"id"`
	RoomID        string        `json:"room_id" db:"room_id"`
	ParticipantID ParticipantID `json:"participant_id" db:"participant_id"`
	DisplayName   string        `json:"display_name" db:"display_name"`
	JoinedAt      time.Time     `json:"joined_at" db:"joined_at"`
	LeftAt        *time.Time    `json:"left_at,omitempty" db:"left_at"`
}

// MeetingsStorer keeps a history of meetings and who attended them
type MeetingsStorer interface {
	MeetingStarted(roomID string, startedBy string) (*Meeting, error)
	Joined(roomID string, p *Participant) error
	Left(roomID string, id ParticipantID) error
	MeetingEnded(roomID string) error
	FindActiveMeeting(roomID string) (*Meeting, error)
}

type MeetingsRepository struct {
	db *sqlx.DB
}

func NewMeetingsRepository(db *sqlx.DB) *MeetingsRepository {
	return &MeetingsRepository{
		db: db,
	}
}

func (r *MeetingsRepository) MeetingStarted(roomID string, startedBy string) (*Meeting, error) {
	m := &Meeting{
		RoomID:    roomID,
		StartedBy: startedBy,
		CreatedAt: time.Now(),
	}

	err := r.db.Get(&m.ID,
		`INSERT INTO meetings (room_id, started_by, created_at) VALUES ($1, $2, $3) RETURNING id`,
		m.RoomID,
		m.StartedBy,
		m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (r *MeetingsRepository) Joined(roomID string, p *Participant) error {
	_, err := r.db.Exec(
		`INSERT INTO attendances (room_id, participant_id, display_name, joined_at) VALUES ($1, $2, $3, $4)`,
		roomID,
		string(p.ID),
		p.DisplayName,
		p.JoinedAt,
	)
	return err
}

func (r *MeetingsRepository) Left(roomID string, id ParticipantID) error {
	_, err := r.db.Exec(
		`UPDATE attendances SET left_at = NOW() WHERE room_id = $1 AND participant_id = $2 AND left_at IS NULL`,
		roomID,
		string(id),
	)
	return err
}

func (r *MeetingsRepository) MeetingEnded(roomID string) error {
	_, err := r.db.Exec(
		`UPDATE meetings SET ended_at = NOW() WHERE room_id = $1 AND ended_at IS NULL`,
		roomID,
	)
	return err
}

// FindActiveMeeting returns nil without error when the room has no running meeting
func (r *MeetingsRepository) FindActiveMeeting(roomID string) (*Meeting, error) {
	m := &Meeting{}

	err := r.db.Get(m,
		`SELECT id, room_id, started_by, created_at, ended_at
			FROM meetings
			WHERE room_id = $1 AND ended_at IS NULL
			ORDER BY created_at DESC LIMIT 1`,
		roomID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return m, nil
}
