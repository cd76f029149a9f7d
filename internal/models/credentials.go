package models

import "time"

// Credentials is the persisted login session: the bearer token and the
// identity it was issued for. The token is encrypted at rest when a
// VOXCHAT_SECRET is configured.
type Credentials struct {
	Token    string    `db:"token"`
	UserID   int64     `db:"user_id"`
	Username string    `db:"username"`
	SavedAt  time.Time `db:"saved_at"`
}
