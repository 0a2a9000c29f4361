package domain

import "time"

// Record is one logged question/answer exchange, retained for export.
// Records are append-only for the lifetime of a session and survive a
// chat clear; they are never persisted across restarts.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	UserQuery string    `json:"user_query"`
	SQLQuery  string    `json:"sql_query"` // formatted prompt sent to the agent
	Response  string    `json:"response"`
}
