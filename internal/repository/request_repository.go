package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"listenline/internal/model"
)

var (
	// ErrDuplicateRequest is returned when the requester already has an
	// open support request. At most one REQUESTED row may exist per
	// requester.
	ErrDuplicateRequest = errors.New("requester already has an open request")
	// ErrRequesterInSession is returned when the requester is still in an
	// ACTIVE session and therefore may not open a new request.
	ErrRequesterInSession = errors.New("requester already in an active session")
)

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// CreateIfNone inserts the request unless the requester already has a
// REQUESTED row or an ACTIVE session. Both checks and the insert run in
// one transaction, so a submission racing the claim of the requester's
// previous request cannot slip a new REQUESTED row in alongside the
// freshly created session.
func (r *RequestRepository) CreateIfNone(request *model.SupportRequest) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&model.SupportRequest{}).
			Where("requester_id = ? AND status = ?", request.RequesterID, model.RequestStatusRequested).
			Count(&open).Error; err != nil {
			return fmt.Errorf("count open requests failed: %w", err)
		}
		if open > 0 {
			return ErrDuplicateRequest
		}

		if err := tx.Model(&model.Session{}).
			Where("requester_id = ? AND status = ?", request.RequesterID, model.SessionStatusActive).
			Count(&open).Error; err != nil {
			return fmt.Errorf("count requester sessions failed: %w", err)
		}
		if open > 0 {
			return ErrRequesterInSession
		}

		if err := tx.Create(request).Error; err != nil {
			return fmt.Errorf("create request failed: %w", err)
		}
		return nil
	})
}

func (r *RequestRepository) GetByID(requestID uint) (*model.SupportRequest, error) {
	var request model.SupportRequest
	if err := r.db.First(&request, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get request failed: %w", err)
	}
	return &request, nil
}

// ListRequested returns the waiting line: all REQUESTED rows in strict
// FIFO order. Ties on created_at break on id, giving a stable total order.
// The result is always recomputed from the store, never persisted apart
// from it.
func (r *RequestRepository) ListRequested() ([]model.SupportRequest, error) {
	var requests []model.SupportRequest
	if err := r.db.Where("status = ?", model.RequestStatusRequested).
		Order("created_at ASC, id ASC").
		Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("list waiting requests failed: %w", err)
	}
	return requests, nil
}

// MarkMatched conditionally moves the request from REQUESTED to MATCHED.
// Returns false when the precondition no longer holds (already matched or
// cancelled), which the caller must surface as a conflict.
func (r *RequestRepository) MarkMatched(requestID uint) (bool, error) {
	result := r.db.Model(&model.SupportRequest{}).
		Where("id = ? AND status = ?", requestID, model.RequestStatusRequested).
		Update("status", model.RequestStatusMatched)
	if result.Error != nil {
		return false, fmt.Errorf("mark request matched failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// RollbackMatch is the compensating update for a claim whose session
// creation failed: it moves the request back from MATCHED to REQUESTED so
// it reappears in the waiting line instead of dangling.
func (r *RequestRepository) RollbackMatch(requestID uint) (bool, error) {
	result := r.db.Model(&model.SupportRequest{}).
		Where("id = ? AND status = ?", requestID, model.RequestStatusMatched).
		Updates(map[string]interface{}{
			"status":             model.RequestStatusRequested,
			"matched_session_id": nil,
		})
	if result.Error != nil {
		return false, fmt.Errorf("rollback matched request failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkCancelled conditionally moves the request from REQUESTED to
// CANCELLED. A cancellation racing a claim loses exactly when the claim's
// own compare-and-set has already won.
func (r *RequestRepository) MarkCancelled(requestID uint) (bool, error) {
	result := r.db.Model(&model.SupportRequest{}).
		Where("id = ? AND status = ?", requestID, model.RequestStatusRequested).
		Update("status", model.RequestStatusCancelled)
	if result.Error != nil {
		return false, fmt.Errorf("mark request cancelled failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
