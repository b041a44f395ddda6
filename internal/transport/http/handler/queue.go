package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"listenline/internal/app"
	"listenline/internal/transport/http/response"
)

// QueueHandler exposes the waiting line: submitting and cancelling
// requests for users, listing and claiming for counsellors.
type QueueHandler struct {
	matching *app.MatchingService
}

func NewQueueHandler(matching *app.MatchingService) *QueueHandler {
	return &QueueHandler{matching: matching}
}

func (h *QueueHandler) SubmitRequest(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	request, err := h.matching.Submit(c.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrAlreadyRequested):
			response.Error(c, http.StatusConflict, response.CodeAlreadyRequested, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "submit request failed")
		}
		return
	}

	response.OK(c, gin.H{"request_id": request.ID})
}

func (h *QueueHandler) CancelRequest(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	requestID, ok := parseIDParam(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request id")
		return
	}

	if err := h.matching.Cancel(c.Request.Context(), requestID, userID); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrRequestNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		case errors.Is(err, app.ErrForbidden):
			response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
		case errors.Is(err, app.ErrConflict):
			response.Error(c, http.StatusConflict, response.CodeConflict, "request was already matched or cancelled")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "cancel request failed")
		}
		return
	}

	response.OK(c, gin.H{"cancelled_request_id": requestID})
}

func (h *QueueHandler) ListQueue(c *gin.Context) {
	entries, err := h.matching.ListQueue(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list queue failed")
		return
	}
	response.OK(c, entries)
}

func (h *QueueHandler) ClaimRequest(c *gin.Context) {
	counsellorID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	requestID, ok := parseIDParam(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request id")
		return
	}

	session, err := h.matching.Claim(c.Request.Context(), requestID, counsellorID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrRequestNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		case errors.Is(err, app.ErrForbidden):
			response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
		case errors.Is(err, app.ErrConflict):
			response.Error(c, http.StatusConflict, response.CodeConflict, "already claimed by another counsellor")
		case errors.Is(err, app.ErrUnavailable):
			response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "claim request failed")
		}
		return
	}

	response.OK(c, gin.H{"session_id": session.ID, "session": session})
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || raw == 0 {
		return 0, false
	}
	return uint(raw), true
}
