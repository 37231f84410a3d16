// Package journal appends join and leave events to Postgres so room occupancy
// can be audited after the fact. Chat content is never stored.
package journal

import (
	"context"
	"database/sql"
	"time"

	"roomrelay/internal/relay"
)

const writeTimeout = 2 * time.Second

const schemaQ = `
	CREATE TABLE IF NOT EXISTS room_presence (
	    id          BIGSERIAL   PRIMARY KEY,
	    instance_id TEXT        NOT NULL,
	    user_id     TEXT        NOT NULL,
	    room_id     TEXT        NOT NULL,
	    event       TEXT        NOT NULL,
	    at          TIMESTAMPTZ NOT NULL
	)`

const insertQ = `
	INSERT INTO room_presence (instance_id, user_id, room_id, event, at)
	     VALUES ($1, $2, $3, $4, $5)`

type PresenceJournal struct {
	db         *sql.DB
	instanceID string
}

var _ relay.Recorder = (*PresenceJournal)(nil)

func New(db *sql.DB, instanceID string) *PresenceJournal {
	return &PresenceJournal{db: db, instanceID: instanceID}
}

// EnsureSchema creates the table on first boot.
func (j *PresenceJournal) EnsureSchema(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, schemaQ)
	return err
}

// Record stores user_joined and user_left events; message events are skipped.
func (j *PresenceJournal) Record(ctx context.Context, ev relay.Event) error {
	switch ev.Type {
	case relay.EventUserJoined, relay.EventUserLeft:
	default:
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := j.db.ExecContext(ctx, insertQ,
		j.instanceID,
		ev.UserID,
		ev.RoomID,
		string(ev.Type),
		ev.Timestamp,
	)
	return err
}
