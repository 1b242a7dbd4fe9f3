package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/wa-autoresponder/internal/negotiation"
)

var closedAt = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

var columns = []string{"id", "conversation_id", "channel", "place", "agreed_time", "payment", "closed_at"}

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	repo := newRepositoryWithDB(mock)
	repo.now = func() time.Time { return closedAt }
	return repo, mock
}

func TestInsertRecordsFactsAndChannel(t *testing.T) {
	repo, mock := newMockRepo(t)
	facts := negotiation.BookingFacts{Place: "short-stay venue", Time: "20:00", Payment: "pix"}

	mock.ExpectExec("INSERT INTO closed_bookings").
		WithArgs(pgxmock.AnyArg(), "webchat:abc", "webchat", "short-stay venue", "20:00", "pix", closedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	b, err := repo.Insert(context.Background(), "webchat:abc", facts)
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if b.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}
	if b.Channel != "webchat" {
		t.Fatalf("expected webchat channel, got %s", b.Channel)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertWrapsErrors(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO closed_bookings").WillReturnError(errors.New("conn reset"))

	_, err := repo.Insert(context.Background(), "5511", negotiation.BookingFacts{})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestGet(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM closed_bookings WHERE id").WithArgs(id).
		WillReturnRows(pgxmock.NewRows(columns).AddRow(id, "5511", "whatsapp", "provider venue", "21:00", "cash", closedAt))
	b, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if b.ConversationID != "5511" || b.Payment != "cash" {
		t.Fatalf("unexpected booking: %+v", b)
	}

	missing := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM closed_bookings WHERE id").WithArgs(missing).WillReturnError(pgx.ErrNoRows)
	if _, err := repo.Get(context.Background(), missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRecent(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM closed_bookings ORDER BY closed_at DESC LIMIT").WithArgs(50).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow(uuid.New(), "a", "whatsapp", "provider venue", "20:00", "pix", closedAt).
			AddRow(uuid.New(), "b", "whatsapp", "client residence", "21:00", "card", closedAt.Add(-time.Hour)))
	list, err := repo.ListRecent(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("ListRecent returned error: %v", err)
	}
	if len(list) != 2 || list[0].ConversationID != "a" {
		t.Fatalf("unexpected list: %+v", list)
	}

	mock.ExpectQuery("WHERE conversation_id").WithArgs("a", 5).
		WillReturnRows(pgxmock.NewRows(columns))
	list, err = repo.ListRecent(context.Background(), "a", 5)
	if err != nil {
		t.Fatalf("ListRecent returned error: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestServiceRecordClosed(t *testing.T) {
	repo, mock := newMockRepo(t)
	svc := NewService(repo, nil)

	mock.ExpectExec("INSERT INTO closed_bookings").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	b, err := svc.RecordClosed(context.Background(), "5511", negotiation.BookingFacts{Place: "provider venue", Time: "20:00", Payment: "pix"})
	if err != nil {
		t.Fatalf("RecordClosed returned error: %v", err)
	}
	if b.Channel != "whatsapp" {
		t.Fatalf("expected whatsapp channel, got %s", b.Channel)
	}
}
