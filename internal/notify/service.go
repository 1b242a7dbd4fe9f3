package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/wa-autoresponder/internal/bookings"
	"github.com/wolfman30/wa-autoresponder/internal/negotiation"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

// BookingRecorder writes closed bookings to the ledger. *bookings.Service satisfies it.
type BookingRecorder interface {
	RecordClosed(ctx context.Context, conversationID string, facts negotiation.BookingFacts) (*bookings.Booking, error)
}

// Service handles the BookingClosed event: it records the booking and emails
// the operator.
type Service struct {
	email      EmailSender
	ledger     BookingRecorder
	recipients []string
	now        func() time.Time
	logger     *logging.Logger
}

// NewService creates a notification service. email and ledger may be nil.
// recipients is a comma separated list (ALERT_EMAIL_TO).
func NewService(email EmailSender, ledger BookingRecorder, recipients string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:      email,
		ledger:     ledger,
		recipients: splitRecipients(recipients),
		now:        time.Now,
		logger:     logger,
	}
}

// NotifyBookingClosed records and announces one closed booking. Every recipient
// is tried; failures are joined into the returned error.
func (s *Service) NotifyBookingClosed(ctx context.Context, conversationID string, facts negotiation.BookingFacts) error {
	var errs []error

	bookingID := ""
	if s.ledger != nil {
		b, err := s.ledger.RecordClosed(ctx, conversationID, facts)
		if err != nil {
			s.logger.Error("notify: failed to record booking", "error", err, "conversation_id", conversationID)
			errs = append(errs, err)
		} else if b != nil {
			bookingID = b.ID.String()
		}
	}

	if s.email != nil && len(s.recipients) > 0 {
		msg := s.bookingEmail(conversationID, bookingID, facts)
		for _, recipient := range s.recipients {
			msg.To = recipient
			if err := s.email.Send(ctx, msg); err != nil {
				s.logger.Error("notify: failed to send email", "error", err, "to", recipient)
				errs = append(errs, fmt.Errorf("notify: email %s: %w", recipient, err))
				continue
			}
			s.logger.Info("notify: booking email sent", "to", recipient, "conversation_id", conversationID)
		}
	}

	return errors.Join(errs...)
}

func (s *Service) bookingEmail(conversationID, bookingID string, facts negotiation.BookingFacts) EmailMessage {
	closedAt := s.now().UTC().Format("January 2, 2006 at 15:04 MST")
	subject := fmt.Sprintf("Booking closed - %s", conversationID)

	rows := [][2]string{
		{"Conversation", conversationID},
		{"Place", facts.Place},
		{"Time", facts.Time},
		{"Payment", facts.Payment},
		{"Closed", closedAt},
	}
	if bookingID != "" {
		rows = append(rows, [2]string{"Booking ID", bookingID})
	}

	var text, table strings.Builder
	text.WriteString("A booking was agreed on WhatsApp.\n\n")
	for _, row := range rows {
		fmt.Fprintf(&text, "%s: %s\n", row[0], row[1])
		fmt.Fprintf(&table, `  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>%s:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>`+"\n",
			html.EscapeString(row[0]), html.EscapeString(row[1]))
	}
	text.WriteString("\nThe assistant is muted for this client until the mute window ends.")

	body := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #10b981;">Booking closed</h2>
<table style="border-collapse: collapse; margin: 20px 0;">
%s</table>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">The assistant is muted for this client until the mute window ends.</p>
</div>`, table.String())

	return EmailMessage{Subject: subject, Body: text.String(), HTML: body}
}

func splitRecipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
