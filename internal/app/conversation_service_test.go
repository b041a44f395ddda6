package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"listenline/internal/model"
)

func TestAppend_BothParticipants(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)

	for _, senderID := range []uint{1, 10} {
		message, err := f.log.Append(session.ID, senderID, "hello")
		if err != nil {
			t.Fatalf("Append from %d: %v", senderID, err)
		}
		if message.ID == 0 || message.SessionID != session.ID || message.SenderID != senderID {
			t.Fatalf("message = %+v, want persisted for session %d from %d", message, session.ID, senderID)
		}
	}
}

func TestAppend_RefreshesActivity(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)

	message, err := f.log.Append(session.ID, 1, "hello")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := f.sessions.GetByID(session.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.LastActivityAt.Before(message.CreatedAt) {
		t.Errorf("last_activity_at = %v, want >= message time %v", got.LastActivityAt, message.CreatedAt)
	}
}

func TestAppend_NonParticipantRejected(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)

	_, err := f.log.Append(session.ID, 99, "let me in")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
}

func TestAppend_ClosedSessionRejected(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)
	ctx := context.Background()

	if _, err := f.lifecycle.End(ctx, session.ID, 1, model.RoleUser); err != nil {
		t.Fatalf("End: %v", err)
	}

	_, err := f.log.Append(session.ID, 1, "one more thing")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
}

func TestAppend_BlankContent(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)

	_, err := f.log.Append(session.ID, 1, "   ")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestList_OrderAndCursor(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)

	var ids []uint
	for i := 0; i < 5; i++ {
		message, err := f.log.Append(session.ID, 1, fmt.Sprintf("message %d", i))
		if err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
		ids = append(ids, message.ID)
	}

	all, err := f.log.List(session.ID, 1, model.RoleUser, 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("len(all) = %d, want 5", len(all))
	}
	for i, message := range all {
		if message.ID != ids[i] {
			t.Errorf("all[%d].ID = %d, want %d", i, message.ID, ids[i])
		}
	}

	tail, err := f.log.List(session.ID, 1, model.RoleUser, ids[2], 0)
	if err != nil {
		t.Fatalf("List after cursor: %v", err)
	}
	if len(tail) != 2 || tail[0].ID != ids[3] || tail[1].ID != ids[4] {
		t.Fatalf("tail = %+v, want the two messages after %d", tail, ids[2])
	}

	page, err := f.log.List(session.ID, 1, model.RoleUser, 0, 2)
	if err != nil {
		t.Fatalf("List with limit: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("len(page) = %d, want 2", len(page))
	}
}

func TestList_ReadableAfterClosure(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)
	ctx := context.Background()

	if _, err := f.log.Append(session.ID, 1, "for the record"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := f.lifecycle.End(ctx, session.ID, 10, model.RoleCounsellor); err != nil {
		t.Fatalf("End: %v", err)
	}

	messages, err := f.log.List(session.ID, 1, model.RoleUser, 0, 0)
	if err != nil {
		t.Fatalf("List after closure: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(messages))
	}
}

func TestList_Authorization(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)

	if _, err := f.log.List(session.ID, 99, model.RoleUser, 0, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider err = %v, want ErrForbidden", err)
	}

	if _, err := f.log.List(session.ID, 99, model.RoleAdmin, 0, 0); err != nil {
		t.Fatalf("admin List: %v", err)
	}
}
