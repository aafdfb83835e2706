package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hackgods/doctor-booking/internal/booking"
)

var ErrNoRecipient = errors.New("notify: patient has no email address")

const confirmedSubject = "Appointment Approved"

// Enqueuer is the write side of the outbox.
type Enqueuer interface {
	Enqueue(ctx context.Context, n Notification) (bool, error)
}

// OutboxNotifier turns a confirmed reservation into a queued email.
type OutboxNotifier struct {
	outbox Enqueuer
}

func NewOutboxNotifier(outbox Enqueuer) *OutboxNotifier {
	return &OutboxNotifier{outbox: outbox}
}

func (n *OutboxNotifier) NotifyConfirmed(ctx context.Context, d booking.ReservationDetail) error {
	if d.PatientEmail == nil || strings.TrimSpace(*d.PatientEmail) == "" {
		return ErrNoRecipient
	}

	msg := RenderConfirmed(d)
	_, err := n.outbox.Enqueue(ctx, Notification{
		ReservationID: d.ID,
		Kind:          KindReservationConfirmed,
		Recipient:     msg.To,
		RecipientName: msg.ToName,
		Subject:       msg.Subject,
		Body:          msg.Body,
	})
	return err
}

// RenderConfirmed builds the approval email for a confirmed reservation.
func RenderConfirmed(d booking.ReservationDetail) EmailMessage {
	name := strings.TrimSpace(d.PatientName)
	if name == "" {
		name = "Patient"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", name)
	b.WriteString("Your appointment request has been approved.\n\n")
	if d.DoctorName != "" {
		fmt.Fprintf(&b, "Doctor: %s\n", d.DoctorName)
	}
	fmt.Fprintf(&b, "Date: %s\n", d.Date.Format(booking.DateLayout))
	if d.SlotTime != "" {
		fmt.Fprintf(&b, "Time: %s (%s)\n", d.SlotTime, d.SlotCategory)
	}
	fmt.Fprintf(&b, "Type: %s\n", d.Type)

	var to string
	if d.PatientEmail != nil {
		to = strings.TrimSpace(*d.PatientEmail)
	}

	return EmailMessage{
		To:      to,
		ToName:  name,
		Subject: confirmedSubject,
		Body:    b.String(),
	}
}

var _ booking.Notifier = (*OutboxNotifier)(nil)
