package models

import "time"

// EventKind names a review action recorded in the activity journal.
type EventKind string

const (
	EventUpload   EventKind = "upload"
	EventSave     EventKind = "save"
	EventFinalize EventKind = "finalize"
)

// Event is one journal record.
type Event struct {
	SessionID string    `json:"sessionId"`
	Kind      EventKind `json:"kind"`
	OK        bool      `json:"ok"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
}
