package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"listenline/internal/model"
)

func startSession(t *testing.T, f *matchingFixture, requesterID, counsellorID uint) *model.Session {
	t.Helper()
	ctx := context.Background()
	seedCounsellor(t, f.db, counsellorID)
	request, err := f.matching.Submit(ctx, requesterID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	session, err := f.matching.Claim(ctx, request.ID, counsellorID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	return session
}

func TestEnd_ByRequester(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)

	ended, err := f.lifecycle.End(context.Background(), session.ID, 1, model.RoleUser)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.Status != model.SessionStatusEnded || ended.EndReason != model.EndReasonClosed {
		t.Fatalf("ended = %q/%q, want ENDED/closed", ended.Status, ended.EndReason)
	}
	if ended.EndedAt == nil {
		t.Error("EndedAt should be set")
	}
	if got := f.publisher.byType(model.EventSessionEnded); len(got) != 1 {
		t.Errorf("session.ended events = %d, want 1", len(got))
	}
}

func TestEnd_Idempotent(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)
	ctx := context.Background()

	first, err := f.lifecycle.End(ctx, session.ID, 10, model.RoleCounsellor)
	if err != nil {
		t.Fatalf("first End: %v", err)
	}

	// The other participant ends again; the original outcome sticks.
	second, err := f.lifecycle.End(ctx, session.ID, 1, model.RoleUser)
	if err != nil {
		t.Fatalf("second End: %v", err)
	}
	if second.Status != first.Status || second.EndReason != first.EndReason {
		t.Fatalf("second end = %q/%q, want the original %q/%q",
			second.Status, second.EndReason, first.Status, first.EndReason)
	}
	if got := f.publisher.byType(model.EventSessionEnded); len(got) != 1 {
		t.Errorf("session.ended events = %d, want 1 despite the repeat", len(got))
	}
}

func TestEnd_ForbiddenForOutsider(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)

	_, err := f.lifecycle.End(context.Background(), session.ID, 99, model.RoleUser)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestEnd_AdminForceClose(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)

	closed, err := f.lifecycle.End(context.Background(), session.ID, 99, model.RoleAdmin)
	if err != nil {
		t.Fatalf("admin End: %v", err)
	}
	if closed.Status != model.SessionStatusAbandoned || closed.EndReason != model.EndReasonForced {
		t.Fatalf("closed = %q/%q, want ABANDONED/forced", closed.Status, closed.EndReason)
	}
	if got := f.publisher.byType(model.EventSessionAbandoned); len(got) != 1 {
		t.Errorf("session.abandoned events = %d, want 1", len(got))
	}
}

func TestEnd_AdminParticipantClosesNormally(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)

	// An admin who is also the counsellor is a participant first.
	ended, err := f.lifecycle.End(context.Background(), session.ID, 10, model.RoleAdmin)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.Status != model.SessionStatusEnded || ended.EndReason != model.EndReasonClosed {
		t.Fatalf("ended = %q/%q, want ENDED/closed", ended.Status, ended.EndReason)
	}
}

func TestEnd_Missing(t *testing.T) {
	f := newMatchingFixture(t)

	_, err := f.lifecycle.End(context.Background(), 999, 1, model.RoleUser)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestAbandon_Timeout(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)

	abandoned, err := f.lifecycle.Abandon(context.Background(), session.ID, model.EndReasonTimeout)
	if err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if abandoned.Status != model.SessionStatusAbandoned || abandoned.EndReason != model.EndReasonTimeout {
		t.Fatalf("abandoned = %q/%q, want ABANDONED/timeout", abandoned.Status, abandoned.EndReason)
	}
}

func TestAbandon_RejectsUnknownReason(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)

	_, err := f.lifecycle.Abandon(context.Background(), session.ID, "closed")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestAbandon_TerminalIsIdempotent(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)
	ctx := context.Background()

	if _, err := f.lifecycle.End(ctx, session.ID, 1, model.RoleUser); err != nil {
		t.Fatalf("End: %v", err)
	}

	got, err := f.lifecycle.Abandon(ctx, session.ID, model.EndReasonTimeout)
	if err != nil {
		t.Fatalf("Abandon after end: %v", err)
	}
	if got.Status != model.SessionStatusEnded || got.EndReason != model.EndReasonClosed {
		t.Fatalf("got = %q/%q, want the existing ENDED/closed record", got.Status, got.EndReason)
	}
}

func TestGetActive(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)
	ctx := context.Background()

	got, err := f.lifecycle.GetActive(1)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if got == nil || got.ID != session.ID {
		t.Fatalf("GetActive = %+v, want session %d", got, session.ID)
	}

	// No session is a normal answer, not an error.
	got, err = f.lifecycle.GetActive(99)
	if err != nil {
		t.Fatalf("GetActive(99): %v", err)
	}
	if got != nil {
		t.Fatalf("GetActive(99) = %+v, want nil", got)
	}

	f.lifecycle.End(ctx, session.ID, 1, model.RoleUser)
	got, err = f.lifecycle.GetActive(1)
	if err != nil {
		t.Fatalf("GetActive after end: %v", err)
	}
	if got != nil {
		t.Fatalf("GetActive after end = %+v, want nil", got)
	}
}

func TestHeartbeat(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)
	ctx := context.Background()

	if err := f.lifecycle.Heartbeat(session.ID, 1); err != nil {
		t.Fatalf("requester heartbeat: %v", err)
	}
	if err := f.lifecycle.Heartbeat(session.ID, 10); err != nil {
		t.Fatalf("counsellor heartbeat: %v", err)
	}

	if err := f.lifecycle.Heartbeat(session.ID, 99); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider heartbeat err = %v, want ErrForbidden", err)
	}

	f.lifecycle.End(ctx, session.ID, 1, model.RoleUser)
	if err := f.lifecycle.Heartbeat(session.ID, 1); !errors.Is(err, ErrConflict) {
		t.Fatalf("terminal heartbeat err = %v, want ErrConflict", err)
	}
}

func TestListStale(t *testing.T) {
	f := newMatchingFixture(t)
	session := startSession(t, f, 1, 10)
	startSession(t, f, 2, 11)

	past := time.Now().Add(-time.Hour)
	if err := f.db.Model(&model.Session{}).Where("id = ?", session.ID).
		Update("last_activity_at", past).Error; err != nil {
		t.Fatalf("age session: %v", err)
	}

	stale, err := f.lifecycle.ListStale(time.Now().Add(-30 * time.Minute))
	if err != nil {
		t.Fatalf("ListStale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != session.ID {
		t.Fatalf("stale = %+v, want only session %d", stale, session.ID)
	}
}
