// Package bookings keeps the ledger of closed booking negotiations.
package bookings

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/wa-autoresponder/internal/negotiation"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

var bookingsTracer = otel.Tracer("wa.internal.bookings")

// Service records closed bookings.
type Service struct {
	repo   *Repository
	logger *logging.Logger
}

// NewService constructs a bookings service.
func NewService(repo *Repository, logger *logging.Logger) *Service {
	if repo == nil {
		panic("bookings: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// RecordClosed stores the facts agreed in conversationID.
func (s *Service) RecordClosed(ctx context.Context, conversationID string, facts negotiation.BookingFacts) (*Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.record_closed")
	defer span.End()
	span.SetAttributes(attribute.String("wa.conversation_id", conversationID))

	b, err := s.repo.Insert(ctx, conversationID, facts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("booking recorded", "conversation_id", conversationID, "booking_id", b.ID)
	return b, nil
}

// Get loads one booking.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.repo.Get(ctx, id)
}

// List returns recent bookings, optionally for one conversation.
func (s *Service) List(ctx context.Context, conversationID string, limit int) ([]Booking, error) {
	return s.repo.ListRecent(ctx, conversationID, limit)
}
