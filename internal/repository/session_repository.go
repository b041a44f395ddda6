package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"listenline/internal/model"
)

var (
	// ErrCounsellorBusy is returned when the counsellor already holds an
	// ACTIVE session. At most one ACTIVE session may exist per counsellor.
	ErrCounsellorBusy = errors.New("counsellor already holds an active session")
	// ErrRequesterBusy is returned when the requester already has an
	// ACTIVE session.
	ErrRequesterBusy = errors.New("requester already has an active session")
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateForRequest inserts the session and links it to its MATCHED
// request in one transaction. Inside the transaction it re-checks the
// one-active-session invariants for both participants, so a counsellor
// who raced two claims on different requests cannot end up owning both.
func (r *SessionRepository) CreateForRequest(session *model.Session) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var busy int64
		if err := tx.Model(&model.Session{}).
			Where("counsellor_id = ? AND status = ?", session.CounsellorID, model.SessionStatusActive).
			Count(&busy).Error; err != nil {
			return fmt.Errorf("count counsellor sessions failed: %w", err)
		}
		if busy > 0 {
			return ErrCounsellorBusy
		}

		if err := tx.Model(&model.Session{}).
			Where("requester_id = ? AND status = ?", session.RequesterID, model.SessionStatusActive).
			Count(&busy).Error; err != nil {
			return fmt.Errorf("count requester sessions failed: %w", err)
		}
		if busy > 0 {
			return ErrRequesterBusy
		}

		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("create session failed: %w", err)
		}

		result := tx.Model(&model.SupportRequest{}).
			Where("id = ? AND status = ?", session.RequestID, model.RequestStatusMatched).
			Update("matched_session_id", session.ID)
		if result.Error != nil {
			return fmt.Errorf("link session to request failed: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("request %d not in matched state", session.RequestID)
		}
		return nil
	})
}

func (r *SessionRepository) GetByID(sessionID uint) (*model.Session, error) {
	var session model.Session
	if err := r.db.First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

// GetActiveByParticipant returns the ACTIVE session the user takes part
// in, as requester or counsellor, or nil when there is none.
func (r *SessionRepository) GetActiveByParticipant(userID uint) (*model.Session, error) {
	var session model.Session
	err := r.db.
		Where("status = ? AND (requester_id = ? OR counsellor_id = ?)", model.SessionStatusActive, userID, userID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) GetActiveByCounsellor(counsellorID uint) (*model.Session, error) {
	var session model.Session
	err := r.db.
		Where("status = ? AND counsellor_id = ?", model.SessionStatusActive, counsellorID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get counsellor session failed: %w", err)
	}
	return &session, nil
}

// CloseIfActive conditionally moves an ACTIVE session to the given
// terminal state. Returns false when the session was not ACTIVE anymore,
// which callers treat as "someone else already closed it".
func (r *SessionRepository) CloseIfActive(sessionID uint, status model.SessionStatus, reason string, endedAt time.Time) (bool, error) {
	result := r.db.Model(&model.Session{}).
		Where("id = ? AND status = ?", sessionID, model.SessionStatusActive).
		Updates(map[string]interface{}{
			"status":     status,
			"end_reason": reason,
			"ended_at":   endedAt,
		})
	if result.Error != nil {
		return false, fmt.Errorf("close session failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// TouchActivity refreshes last_activity_at on an ACTIVE session. Returns
// false when the session is no longer active.
func (r *SessionRepository) TouchActivity(sessionID uint, at time.Time) (bool, error) {
	result := r.db.Model(&model.Session{}).
		Where("id = ? AND status = ?", sessionID, model.SessionStatusActive).
		Update("last_activity_at", at)
	if result.Error != nil {
		return false, fmt.Errorf("touch session activity failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListStaleActive returns ACTIVE sessions whose last activity is older
// than cutoff. The watchdog drives these to ABANDONED.
func (r *SessionRepository) ListStaleActive(cutoff time.Time) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.
		Where("status = ? AND last_activity_at < ?", model.SessionStatusActive, cutoff).
		Order("last_activity_at ASC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list stale sessions failed: %w", err)
	}
	return sessions, nil
}
