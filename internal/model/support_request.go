package model

import "time"

// RequestStatus enumerates the lifecycle states of a support request.
type RequestStatus string

const (
	RequestStatusRequested RequestStatus = "REQUESTED"
	RequestStatusMatched   RequestStatus = "MATCHED"
	RequestStatusCancelled RequestStatus = "CANCELLED"
)

// SupportRequest is a user's ask for a confidential counselling session.
// Requests are never deleted; terminal rows are retained for audit.
type SupportRequest struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	RequesterID      uint          `gorm:"not null;index" json:"requester_id"`
	Status           RequestStatus `gorm:"size:16;not null;index" json:"status"`
	MatchedSessionID *uint         `gorm:"index" json:"matched_session_id,omitempty"`
	CreatedAt        time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}
