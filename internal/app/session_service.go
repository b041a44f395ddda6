package app

import (
	"context"
	"log"
	"time"

	"listenline/internal/model"
)

// SessionStore is the durable session record. Terminal transitions are
// conditional updates scoped to the ACTIVE status, so a session can
// never be closed twice with different outcomes.
type SessionStore interface {
	CreateForRequest(session *model.Session) error
	GetByID(sessionID uint) (*model.Session, error)
	GetActiveByParticipant(userID uint) (*model.Session, error)
	GetActiveByCounsellor(counsellorID uint) (*model.Session, error)
	CloseIfActive(sessionID uint, status model.SessionStatus, reason string, endedAt time.Time) (bool, error)
	TouchActivity(sessionID uint, at time.Time) (bool, error)
	ListStaleActive(cutoff time.Time) ([]model.Session, error)
}

// SessionService governs the session lifecycle after matching: ending,
// abandoning, heartbeats and the active-session lookup.
type SessionService struct {
	sessions  SessionStore
	publisher EventPublisher
}

func NewSessionService(sessions SessionStore, publisher EventPublisher) *SessionService {
	return &SessionService{
		sessions:  sessions,
		publisher: publisher,
	}
}

// End closes a session. Participants end it deliberately (ENDED,
// "closed"); an admin who is not a participant force-closes it
// (ABANDONED, "forced"). Ending an already-terminal session is
// idempotent and returns the existing terminal record, which tolerates
// duplicate close requests from flaky clients.
func (s *SessionService) End(ctx context.Context, sessionID, actorID uint, actorRole string) (*model.Session, error) {
	if sessionID == 0 || actorID == 0 {
		return nil, ErrInvalidInput
	}

	session, err := s.sessions.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	participant := session.HasParticipant(actorID)
	if !participant && actorRole != model.RoleAdmin {
		return nil, ErrForbidden
	}
	if session.Terminal() {
		return session, nil
	}

	status, reason := model.SessionStatusEnded, model.EndReasonClosed
	eventType := model.EventSessionEnded
	if !participant {
		status, reason = model.SessionStatusAbandoned, model.EndReasonForced
		eventType = model.EventSessionAbandoned
	}

	return s.close(ctx, session, status, reason, eventType, actorID)
}

// Abandon drives a stale session to ABANDONED on behalf of the
// watchdog. It shares the terminal transition with End, so the
// terminal-state invariant is never bypassed, and is equally idempotent.
func (s *SessionService) Abandon(ctx context.Context, sessionID uint, reason string) (*model.Session, error) {
	if sessionID == 0 {
		return nil, ErrInvalidInput
	}
	if reason != model.EndReasonTimeout && reason != model.EndReasonForced {
		return nil, ErrInvalidInput
	}

	session, err := s.sessions.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Terminal() {
		return session, nil
	}

	return s.close(ctx, session, model.SessionStatusAbandoned, reason, model.EventSessionAbandoned, 0)
}

// GetActive returns the actor's current ACTIVE session, or nil when the
// actor is not in one.
func (s *SessionService) GetActive(userID uint) (*model.Session, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessions.GetActiveByParticipant(userID)
}

// Heartbeat refreshes the liveness timestamp the watchdog inspects.
// Only participants may heartbeat; heartbeating a terminal session is a
// conflict, not an error worth retrying.
func (s *SessionService) Heartbeat(sessionID, actorID uint) error {
	if sessionID == 0 || actorID == 0 {
		return ErrInvalidInput
	}

	session, err := s.sessions.GetByID(sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if !session.HasParticipant(actorID) {
		return ErrForbidden
	}

	touched, err := s.sessions.TouchActivity(sessionID, time.Now())
	if err != nil {
		return err
	}
	if !touched {
		return ErrConflict
	}
	return nil
}

// ListStale returns ACTIVE sessions idle past cutoff.
func (s *SessionService) ListStale(cutoff time.Time) ([]model.Session, error) {
	return s.sessions.ListStaleActive(cutoff)
}

func (s *SessionService) close(
	ctx context.Context,
	session *model.Session,
	status model.SessionStatus,
	reason, eventType string,
	actorID uint,
) (*model.Session, error) {
	now := time.Now()
	closed, err := s.sessions.CloseIfActive(session.ID, status, reason, now)
	if err != nil {
		return nil, err
	}
	if !closed {
		// Someone else closed it between our read and the update.
		// Return their terminal record; the call stays idempotent.
		current, err := s.sessions.GetByID(session.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ErrSessionNotFound
		}
		return current, nil
	}

	session.Status = status
	session.EndReason = reason
	session.EndedAt = &now

	if s.publisher != nil {
		event := model.SessionEvent{
			Type:       eventType,
			RequestID:  session.RequestID,
			SessionID:  session.ID,
			ActorID:    actorID,
			Reason:     reason,
			OccurredAt: now,
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			log.Printf("session: publish %s event failed: %v", eventType, err)
		}
	}
	return session, nil
}
