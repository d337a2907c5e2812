package models

import "time"

// Session is the persisted record of one outstanding refresh token.
type Session struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Token     string     `db:"token" json:"-"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	Revoked   bool       `db:"revoked" json:"revoked"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	IPAddress string     `db:"ip_address" json:"ip_address"`
	UserAgent string     `db:"user_agent" json:"user_agent"`
}

// IsValid reports whether the session can still be exchanged at now.
func (s *Session) IsValid(now time.Time) bool {
	if s == nil {
		return false
	}
	return !s.Revoked && s.ExpiresAt.After(now)
}
