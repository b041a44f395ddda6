package app

import (
	"log"
	"strings"
	"time"

	"listenline/internal/model"
)

// MessageStore is the append-only conversation log backing store.
type MessageStore interface {
	Create(message *model.Message) error
	ListBySessionID(sessionID, afterID uint, limit int) ([]model.Message, error)
}

// ConversationService appends to and reads the per-session message log.
// Writes are accepted only while the owning session is ACTIVE and only
// from its two participants.
type ConversationService struct {
	sessions SessionStore
	messages MessageStore
}

func NewConversationService(sessions SessionStore, messages MessageStore) *ConversationService {
	return &ConversationService{
		sessions: sessions,
		messages: messages,
	}
}

// Append writes one message to the session's log. Posting to a closed
// session, or from a non-participant, is rejected as a domain-rule
// violation rather than a transient conflict.
func (s *ConversationService) Append(sessionID, senderID uint, content string) (*model.Message, error) {
	if sessionID == 0 || senderID == 0 {
		return nil, ErrInvalidInput
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrInvalidInput
	}

	session, err := s.sessions.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.HasParticipant(senderID) {
		return nil, ErrRejected
	}
	if session.Status != model.SessionStatusActive {
		return nil, ErrRejected
	}

	message := &model.Message{
		SessionID: sessionID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.messages.Create(message); err != nil {
		return nil, err
	}

	// A message counts as liveness; keep the watchdog off this session.
	if _, err := s.sessions.TouchActivity(sessionID, message.CreatedAt); err != nil {
		log.Printf("conversation: touch activity for session %d failed: %v", sessionID, err)
	}
	return message, nil
}

// List returns the log ascending by creation time, restartable via the
// afterID cursor. Participants and admins may read; the log survives
// session closure for review.
func (s *ConversationService) List(sessionID, actorID uint, actorRole string, afterID uint, limit int) ([]model.Message, error) {
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
	if !session.HasParticipant(actorID) && actorRole != model.RoleAdmin {
		return nil, ErrForbidden
	}

	return s.messages.ListBySessionID(sessionID, afterID, limit)
}
