package domain

import "time"

// AuditKind classifies a session lifecycle event.
type AuditKind string

const (
	AuditLoginSucceeded AuditKind = "login_succeeded"
	AuditLoginFailed    AuditKind = "login_failed"
	AuditLogout         AuditKind = "logout"
	AuditSessionsPurged AuditKind = "sessions_purged"
)

// AuditEvent records something that happened to a user's sessions.
// TokenPrefix is never the full token.
type AuditEvent struct {
	Kind        AuditKind
	Username    string
	TokenPrefix string
	Count       int
	At          time.Time
}
