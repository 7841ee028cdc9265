package models

import "time"

// ChangeEvent announces a committed change to connected clients.
type ChangeEvent struct {
	Type   string    `json:"type"` // always "change"
	Store  string    `json:"store"`
	Action string    `json:"action"` // created, updated, removed, linked, unlinked, paid, reversed, recomputed
	ID     int64     `json:"id"`
	At     time.Time `json:"at"`
}
