package app

import (
	"context"
	"errors"
	"log"
	"time"

	"listenline/internal/model"
	"listenline/internal/repository"
)

// RequestStore is the durable side of the waiting line. All status
// moves are conditional updates so the engine stays correct when several
// service instances run against the same database.
type RequestStore interface {
	CreateIfNone(request *model.SupportRequest) error
	GetByID(requestID uint) (*model.SupportRequest, error)
	ListRequested() ([]model.SupportRequest, error)
	MarkMatched(requestID uint) (bool, error)
	RollbackMatch(requestID uint) (bool, error)
	MarkCancelled(requestID uint) (bool, error)
}

// QueueCache holds the derived waiting-line snapshot. A nil cache is
// valid; the store is then consulted on every listing.
type QueueCache interface {
	GetQueue(ctx context.Context) ([]model.SupportRequest, bool, error)
	SetQueue(ctx context.Context, requests []model.SupportRequest) error
	Invalidate(ctx context.Context) error
}

// UserStore supplies the accounts consulted during matching. The role
// in a token is minted at login and can go stale, so Claim re-checks
// the counsellor role against the store.
type UserStore interface {
	GetCounsellor(id uint) (*model.User, error)
}

// EventPublisher is the fire-and-forget notification sink. Publish
// failures are logged and never fail the triggering operation.
type EventPublisher interface {
	Publish(ctx context.Context, event model.SessionEvent) error
}

// MatchingService pairs available counsellors with waiting requests.
// Claim is the sole critical section in the system: a compare-and-set on
// the request status followed by session creation, with a compensating
// rollback when the second step fails.
type MatchingService struct {
	requests  RequestStore
	sessions  SessionStore
	users     UserStore
	queue     QueueCache
	publisher EventPublisher
}

func NewMatchingService(requests RequestStore, sessions SessionStore, users UserStore, queue QueueCache, publisher EventPublisher) *MatchingService {
	return &MatchingService{
		requests:  requests,
		sessions:  sessions,
		users:     users,
		queue:     queue,
		publisher: publisher,
	}
}

// QueueEntry is the waiting-line view handed to counsellors.
type QueueEntry struct {
	RequestID   uint      `json:"request_id"`
	RequesterID uint      `json:"requester_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Submit opens a new support request for the requester. A requester may
// hold at most one open request, and none while a session of theirs is
// still active.
func (s *MatchingService) Submit(ctx context.Context, requesterID uint) (*model.SupportRequest, error) {
	if requesterID == 0 {
		return nil, ErrInvalidInput
	}

	// Cheap pre-check; the authoritative one runs inside the insert
	// transaction.
	active, err := s.sessions.GetActiveByParticipant(requesterID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrAlreadyRequested
	}

	request := &model.SupportRequest{
		RequesterID: requesterID,
		Status:      model.RequestStatusRequested,
	}
	if err := s.requests.CreateIfNone(request); err != nil {
		if errors.Is(err, repository.ErrDuplicateRequest) || errors.Is(err, repository.ErrRequesterInSession) {
			return nil, ErrAlreadyRequested
		}
		return nil, err
	}

	s.invalidateQueue(ctx)
	s.publish(ctx, model.SessionEvent{
		Type:       model.EventRequestSubmitted,
		RequestID:  request.ID,
		ActorID:    requesterID,
		OccurredAt: time.Now(),
	})
	return request, nil
}

// Cancel withdraws a request that is still waiting. The status move is
// conditional: when a claim won the race first, the caller gets a
// conflict and must be told a match already happened.
func (s *MatchingService) Cancel(ctx context.Context, requestID, actorID uint) error {
	if requestID == 0 || actorID == 0 {
		return ErrInvalidInput
	}

	request, err := s.requests.GetByID(requestID)
	if err != nil {
		return err
	}
	if request == nil {
		return ErrRequestNotFound
	}
	if request.RequesterID != actorID {
		return ErrForbidden
	}

	cancelled, err := s.requests.MarkCancelled(requestID)
	if err != nil {
		return err
	}
	if !cancelled {
		return ErrConflict
	}

	s.invalidateQueue(ctx)
	s.publish(ctx, model.SessionEvent{
		Type:       model.EventRequestCancelled,
		RequestID:  requestID,
		ActorID:    actorID,
		OccurredAt: time.Now(),
	})
	return nil
}

// ListQueue returns the waiting line in strict FIFO order. Any
// counsellor may claim any entry; there is no specialty filtering.
func (s *MatchingService) ListQueue(ctx context.Context) ([]QueueEntry, error) {
	if s.queue != nil {
		if cached, hit, err := s.queue.GetQueue(ctx); err == nil && hit {
			return toQueueEntries(cached), nil
		}
	}

	requests, err := s.requests.ListRequested()
	if err != nil {
		return nil, err
	}
	if s.queue != nil {
		if err := s.queue.SetQueue(ctx, requests); err != nil {
			log.Printf("matching: cache queue snapshot failed: %v", err)
		}
	}
	return toQueueEntries(requests), nil
}

// Claim atomically takes ownership of a waiting request for the
// counsellor. For N concurrent claims on the same request exactly one
// succeeds; the rest observe ErrConflict. When session creation fails
// after the request was already marked, the request is rolled back to
// the waiting line rather than left matched with no session.
func (s *MatchingService) Claim(ctx context.Context, requestID, counsellorID uint) (*model.Session, error) {
	if requestID == 0 || counsellorID == 0 {
		return nil, ErrInvalidInput
	}

	counsellor, err := s.users.GetCounsellor(counsellorID)
	if err != nil {
		return nil, err
	}
	if counsellor == nil {
		return nil, ErrForbidden
	}

	request, err := s.requests.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, ErrRequestNotFound
	}
	if request.Status != model.RequestStatusRequested {
		return nil, ErrConflict
	}

	// Cheap pre-check; the authoritative one runs inside the session
	// creation transaction.
	busy, err := s.sessions.GetActiveByCounsellor(counsellorID)
	if err != nil {
		return nil, err
	}
	if busy != nil {
		return nil, ErrConflict
	}

	matched, err := s.requests.MarkMatched(requestID)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, ErrConflict
	}

	now := time.Now()
	session := &model.Session{
		RequestID:      requestID,
		RequesterID:    request.RequesterID,
		CounsellorID:   counsellorID,
		Status:         model.SessionStatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := s.sessions.CreateForRequest(session); err != nil {
		s.rollback(requestID)
		if errors.Is(err, repository.ErrCounsellorBusy) || errors.Is(err, repository.ErrRequesterBusy) {
			return nil, ErrConflict
		}
		log.Printf("matching: session creation for request %d failed: %v", requestID, err)
		return nil, ErrUnavailable
	}

	s.invalidateQueue(ctx)
	s.publish(ctx, model.SessionEvent{
		Type:       model.EventSessionStarted,
		RequestID:  requestID,
		SessionID:  session.ID,
		ActorID:    counsellorID,
		OccurredAt: now,
	})
	return session, nil
}

func (s *MatchingService) rollback(requestID uint) {
	rolledBack, err := s.requests.RollbackMatch(requestID)
	if err != nil {
		log.Printf("matching: rollback of request %d failed: %v", requestID, err)
		return
	}
	if !rolledBack {
		log.Printf("matching: rollback of request %d affected no rows", requestID)
	}
}

func (s *MatchingService) invalidateQueue(ctx context.Context) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Invalidate(ctx); err != nil {
		log.Printf("matching: invalidate queue snapshot failed: %v", err)
	}
}

func (s *MatchingService) publish(ctx context.Context, event model.SessionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("matching: publish %s event failed: %v", event.Type, err)
	}
}

func toQueueEntries(requests []model.SupportRequest) []QueueEntry {
	entries := make([]QueueEntry, 0, len(requests))
	for _, request := range requests {
		entries = append(entries, QueueEntry{
			RequestID:   request.ID,
			RequesterID: request.RequesterID,
			CreatedAt:   request.CreatedAt,
		})
	}
	return entries
}
