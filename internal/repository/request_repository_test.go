package repository

import (
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"listenline/internal/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	// A single connection keeps all goroutines on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&model.User{}, &model.SupportRequest{}, &model.Session{}, &model.Message{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func newWaitingRequest(t *testing.T, db *gorm.DB, requesterID uint, createdAt time.Time) *model.SupportRequest {
	t.Helper()
	request := &model.SupportRequest{
		RequesterID: requesterID,
		Status:      model.RequestStatusRequested,
		CreatedAt:   createdAt,
	}
	if err := db.Create(request).Error; err != nil {
		t.Fatalf("seed request: %v", err)
	}
	return request
}

func TestCreateIfNone_Success(t *testing.T) {
	db := openTestDB(t)
	repo := NewRequestRepository(db)

	request := &model.SupportRequest{RequesterID: 1, Status: model.RequestStatusRequested}
	if err := repo.CreateIfNone(request); err != nil {
		t.Fatalf("CreateIfNone: %v", err)
	}
	if request.ID == 0 {
		t.Fatal("expected request ID to be set")
	}
}

func TestCreateIfNone_DuplicateOpenRequest(t *testing.T) {
	db := openTestDB(t)
	repo := NewRequestRepository(db)

	if err := repo.CreateIfNone(&model.SupportRequest{RequesterID: 1, Status: model.RequestStatusRequested}); err != nil {
		t.Fatalf("first CreateIfNone: %v", err)
	}

	err := repo.CreateIfNone(&model.SupportRequest{RequesterID: 1, Status: model.RequestStatusRequested})
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("err = %v, want ErrDuplicateRequest", err)
	}
}

func TestCreateIfNone_TerminalRequestDoesNotBlock(t *testing.T) {
	db := openTestDB(t)
	repo := NewRequestRepository(db)

	cancelled := &model.SupportRequest{RequesterID: 1, Status: model.RequestStatusCancelled}
	if err := db.Create(cancelled).Error; err != nil {
		t.Fatalf("seed cancelled request: %v", err)
	}

	if err := repo.CreateIfNone(&model.SupportRequest{RequesterID: 1, Status: model.RequestStatusRequested}); err != nil {
		t.Fatalf("CreateIfNone after cancelled: %v", err)
	}
}

func TestCreateIfNone_ActiveSessionBlocks(t *testing.T) {
	db := openTestDB(t)
	repo := NewRequestRepository(db)

	// The requester's previous request was already claimed; the session
	// row alone must block a new submission.
	session := &model.Session{
		RequestID:      77,
		RequesterID:    1,
		CounsellorID:   10,
		Status:         model.SessionStatusActive,
		StartedAt:      time.Now(),
		LastActivityAt: time.Now(),
	}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}

	err := repo.CreateIfNone(&model.SupportRequest{RequesterID: 1, Status: model.RequestStatusRequested})
	if !errors.Is(err, ErrRequesterInSession) {
		t.Fatalf("err = %v, want ErrRequesterInSession", err)
	}

	// Once the session is closed, submission opens up again.
	if _, err := NewSessionRepository(db).CloseIfActive(session.ID, model.SessionStatusEnded, model.EndReasonClosed, time.Now()); err != nil {
		t.Fatalf("close session: %v", err)
	}
	if err := repo.CreateIfNone(&model.SupportRequest{RequesterID: 1, Status: model.RequestStatusRequested}); err != nil {
		t.Fatalf("CreateIfNone after close: %v", err)
	}
}

func TestListRequested_FIFOOrder(t *testing.T) {
	db := openTestDB(t)
	repo := NewRequestRepository(db)

	base := time.Now().Add(-time.Hour)
	c := newWaitingRequest(t, db, 3, base.Add(3*time.Minute))
	a := newWaitingRequest(t, db, 1, base.Add(1*time.Minute))
	b := newWaitingRequest(t, db, 2, base.Add(2*time.Minute))

	// Non-waiting rows must never surface.
	matched := newWaitingRequest(t, db, 4, base)
	db.Model(matched).Update("status", model.RequestStatusMatched)

	queue, err := repo.ListRequested()
	if err != nil {
		t.Fatalf("ListRequested: %v", err)
	}
	if len(queue) != 3 {
		t.Fatalf("len(queue) = %d, want 3", len(queue))
	}
	want := []uint{a.ID, b.ID, c.ID}
	for i, request := range queue {
		if request.ID != want[i] {
			t.Errorf("queue[%d].ID = %d, want %d", i, request.ID, want[i])
		}
	}
}

func TestListRequested_TieBreakByID(t *testing.T) {
	db := openTestDB(t)
	repo := NewRequestRepository(db)

	at := time.Now().Truncate(time.Second)
	first := newWaitingRequest(t, db, 1, at)
	second := newWaitingRequest(t, db, 2, at)

	queue, err := repo.ListRequested()
	if err != nil {
		t.Fatalf("ListRequested: %v", err)
	}
	if len(queue) != 2 || queue[0].ID != first.ID || queue[1].ID != second.ID {
		t.Fatalf("queue order = %+v, want [%d %d]", queue, first.ID, second.ID)
	}
}

func TestMarkMatched_OnlyOnce(t *testing.T) {
	db := openTestDB(t)
	repo := NewRequestRepository(db)
	request := newWaitingRequest(t, db, 1, time.Now())

	matched, err := repo.MarkMatched(request.ID)
	if err != nil {
		t.Fatalf("MarkMatched: %v", err)
	}
	if !matched {
		t.Fatal("first MarkMatched should succeed")
	}

	matched, err = repo.MarkMatched(request.ID)
	if err != nil {
		t.Fatalf("second MarkMatched: %v", err)
	}
	if matched {
		t.Fatal("second MarkMatched should fail the precondition")
	}
}

func TestMarkCancelled_LosesToMatch(t *testing.T) {
	db := openTestDB(t)
	repo := NewRequestRepository(db)
	request := newWaitingRequest(t, db, 1, time.Now())

	if matched, _ := repo.MarkMatched(request.ID); !matched {
		t.Fatal("MarkMatched should succeed")
	}

	cancelled, err := repo.MarkCancelled(request.ID)
	if err != nil {
		t.Fatalf("MarkCancelled: %v", err)
	}
	if cancelled {
		t.Fatal("cancel must fail once the request is matched")
	}
}

func TestRollbackMatch_RestoresWaitingState(t *testing.T) {
	db := openTestDB(t)
	repo := NewRequestRepository(db)
	request := newWaitingRequest(t, db, 1, time.Now())

	if matched, _ := repo.MarkMatched(request.ID); !matched {
		t.Fatal("MarkMatched should succeed")
	}

	rolledBack, err := repo.RollbackMatch(request.ID)
	if err != nil {
		t.Fatalf("RollbackMatch: %v", err)
	}
	if !rolledBack {
		t.Fatal("RollbackMatch should affect the matched row")
	}

	got, err := repo.GetByID(request.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != model.RequestStatusRequested {
		t.Errorf("status = %q, want REQUESTED", got.Status)
	}
	if got.MatchedSessionID != nil {
		t.Errorf("matched_session_id = %v, want nil", *got.MatchedSessionID)
	}

	// The rolled back request must reappear in the waiting line.
	queue, err := repo.ListRequested()
	if err != nil {
		t.Fatalf("ListRequested: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != request.ID {
		t.Fatalf("queue = %+v, want the rolled back request", queue)
	}
}

func TestRollbackMatch_NoEffectOnWaitingRow(t *testing.T) {
	db := openTestDB(t)
	repo := NewRequestRepository(db)
	request := newWaitingRequest(t, db, 1, time.Now())

	rolledBack, err := repo.RollbackMatch(request.ID)
	if err != nil {
		t.Fatalf("RollbackMatch: %v", err)
	}
	if rolledBack {
		t.Fatal("rollback of a non-matched request should affect no rows")
	}
}

func TestGetByID_Missing(t *testing.T) {
	db := openTestDB(t)
	repo := NewRequestRepository(db)

	got, err := repo.GetByID(999)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Fatalf("got = %+v, want nil", got)
	}
}
