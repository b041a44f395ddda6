package model

import "time"

// SessionStatus enumerates the lifecycle states of a counselling session.
// ENDED and ABANDONED are terminal; no transition leaves them.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusEnded     SessionStatus = "ENDED"
	SessionStatusAbandoned SessionStatus = "ABANDONED"
)

const (
	EndReasonClosed  = "closed"
	EndReasonTimeout = "timeout"
	EndReasonForced  = "forced"
)

// Session is a matched conversation between one requester and one
// counsellor. It exclusively owns the request it was created from
// (RequestID is set once and never changes).
type Session struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	RequestID      uint          `gorm:"not null;uniqueIndex" json:"request_id"`
	RequesterID    uint          `gorm:"not null;index" json:"requester_id"`
	CounsellorID   uint          `gorm:"not null;index" json:"counsellor_id"`
	Status         SessionStatus `gorm:"size:16;not null;index" json:"status"`
	StartedAt      time.Time     `gorm:"not null" json:"started_at"`
	LastActivityAt time.Time     `gorm:"not null" json:"last_activity_at"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	EndReason      string        `gorm:"size:16" json:"end_reason,omitempty"`
}

// Terminal reports whether the session is in a final state.
func (s *Session) Terminal() bool {
	return s.Status == SessionStatusEnded || s.Status == SessionStatusAbandoned
}

// HasParticipant reports whether userID is the session's requester or
// counsellor.
func (s *Session) HasParticipant(userID uint) bool {
	return userID == s.RequesterID || userID == s.CounsellorID
}
