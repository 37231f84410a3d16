package relay

import (
	"encoding/json"
	"time"
)

// EventType discriminates the frames sent to room members.
type EventType string

const (
	EventMessage    EventType = "message"
	EventUserJoined EventType = "user_joined"
	EventUserLeft   EventType = "user_left"
)

// Event is one join, leave or chat occurrence. Values are never mutated after
// construction; pass them by value.
type Event struct {
	Type      EventType
	MessageID string // message events only
	UserID    string
	RoomID    string
	Content   string // message events only
	Timestamp time.Time
}

// ─────────────────────────────── wire shapes ─────────────────────────────────

type messageFrame struct {
	Type      EventType `json:"type"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	RoomID    string    `json:"room_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type presenceFrame struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	RoomID    string    `json:"room_id"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON renders the self-describing text payload. Message frames always
// carry content, even when it is empty; presence frames never carry it.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Type == EventMessage {
		return json.Marshal(messageFrame{
			Type:      e.Type,
			MessageID: e.MessageID,
			UserID:    e.UserID,
			RoomID:    e.RoomID,
			Content:   e.Content,
			Timestamp: e.Timestamp,
		})
	}
	return json.Marshal(presenceFrame{
		Type:      e.Type,
		UserID:    e.UserID,
		RoomID:    e.RoomID,
		Timestamp: e.Timestamp,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON. The server never decodes its own
// frames; clients and tests do.
func (e *Event) UnmarshalJSON(data []byte) error {
	var f messageFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*e = Event{
		Type:      f.Type,
		MessageID: f.MessageID,
		UserID:    f.UserID,
		RoomID:    f.RoomID,
		Content:   f.Content,
		Timestamp: f.Timestamp,
	}
	return nil
}
