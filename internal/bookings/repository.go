package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/wa-autoresponder/internal/messaging"
	"github.com/wolfman30/wa-autoresponder/internal/negotiation"
)

// ErrNotFound is returned when a booking does not exist.
var ErrNotFound = errors.New("bookings: not found")

// Booking is one closed negotiation in the ledger.
type Booking struct {
	ID             uuid.UUID `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Channel        string    `json:"channel"`
	Place          string    `json:"place"`
	Time           string    `json:"time"`
	Payment        string    `json:"payment"`
	ClosedAt       time.Time `json:"closed_at"`
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists closed bookings in Postgres.
type Repository struct {
	db  db
	now func() time.Time
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return newRepositoryWithDB(pool)
}

func newRepositoryWithDB(conn db) *Repository {
	if conn == nil {
		panic("bookings: db required")
	}
	return &Repository{db: conn, now: func() time.Time { return time.Now().UTC() }}
}

const bookingColumns = `id, conversation_id, channel, place, agreed_time, payment, closed_at`

// Insert records a closed booking for conversationID.
func (r *Repository) Insert(ctx context.Context, conversationID string, facts negotiation.BookingFacts) (*Booking, error) {
	b := &Booking{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Channel:        channelOf(conversationID),
		Place:          facts.Place,
		Time:           facts.Time,
		Payment:        facts.Payment,
		ClosedAt:       r.now(),
	}
	query := `
		INSERT INTO closed_bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.Exec(ctx, query, b.ID, b.ConversationID, b.Channel, b.Place, b.Time, b.Payment, b.ClosedAt); err != nil {
		return nil, fmt.Errorf("bookings: insert: %w", err)
	}
	return b, nil
}

// Get loads one booking by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM closed_bookings WHERE id = $1`
	b, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bookings: get: %w", err)
	}
	return b, nil
}

// ListRecent returns up to limit bookings, newest first. A non-empty
// conversationID restricts the list to that conversation.
func (r *Repository) ListRecent(ctx context.Context, conversationID string, limit int) ([]Booking, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var (
		rows pgx.Rows
		err  error
	)
	if conversationID != "" {
		rows, err = r.db.Query(ctx, `SELECT `+bookingColumns+` FROM closed_bookings WHERE conversation_id = $1 ORDER BY closed_at DESC LIMIT $2`, conversationID, limit)
	} else {
		rows, err = r.db.Query(ctx, `SELECT `+bookingColumns+` FROM closed_bookings ORDER BY closed_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: list: %w", err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: list: %w", err)
	}
	return out, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	if err := row.Scan(&b.ID, &b.ConversationID, &b.Channel, &b.Place, &b.Time, &b.Payment, &b.ClosedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func channelOf(conversationID string) string {
	if strings.HasPrefix(conversationID, messaging.WebChatPrefix) {
		return messaging.ChannelWebChat
	}
	return messaging.ChannelWhatsApp
}
