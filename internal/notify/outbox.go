package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	KindReservationConfirmed = "reservation_confirmed"

	defaultFromName = "Doctor Booking"
)

// DB is the subset of *pgxpool.Pool the outbox needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Notification is one queued email.
type Notification struct {
	ID            uuid.UUID
	ReservationID uuid.UUID
	Kind          string
	Recipient     string
	RecipientName string
	Subject       string
	Body          string
	Attempts      int
	CreatedAt     time.Time
}

type OutboxStore struct {
	db DB
}

func NewOutboxStore(db DB) *OutboxStore {
	if db == nil {
		panic("notify: db required")
	}
	return &OutboxStore{db: db}
}

// Enqueue stores n for delivery. A second enqueue of the same kind for the same
// reservation is a no-op and reports false.
func (s *OutboxStore) Enqueue(ctx context.Context, n Notification) (bool, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO notification_outbox (id, reservation_id, kind, recipient, recipient_name, subject, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (reservation_id, kind) DO NOTHING
	`, n.ID, n.ReservationID, n.Kind, n.Recipient, n.RecipientName, n.Subject, n.Body)
	if err != nil {
		return false, fmt.Errorf("notify: enqueue: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimDue leases up to limit due notifications. A leased row is invisible to other
// workers until lease elapses, so a crashed worker's batch is picked up again.
func (s *OutboxStore) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]Notification, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE notification_outbox o
		SET next_attempt_at = now() + make_interval(secs => $2)
		WHERE o.id IN (
			SELECT id
			FROM notification_outbox
			WHERE status = 'pending'
			  AND next_attempt_at <= now()
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING o.id, o.reservation_id, o.kind, o.recipient, o.recipient_name, o.subject, o.body, o.attempts, o.created_at
	`, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("notify: claim due: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.ReservationID, &n.Kind, &n.Recipient, &n.RecipientName,
			&n.Subject, &n.Body, &n.Attempts, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan outbox: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *OutboxStore) MarkSent(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE notification_outbox
		SET status = 'sent',
		    attempts = attempts + 1,
		    last_error = NULL,
		    sent_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, fmt.Errorf("notify: mark sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed records a failed attempt. With final set the row is parked as failed,
// otherwise it becomes due again after retryAfter.
func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string, retryAfter time.Duration, final bool) error {
	_, err := s.db.Exec(ctx, `
		UPDATE notification_outbox
		SET attempts = attempts + 1,
		    last_error = $2,
		    status = CASE WHEN $4::boolean THEN 'failed' ELSE 'pending' END,
		    next_attempt_at = now() + make_interval(secs => $3)
		WHERE id = $1 AND status = 'pending'
	`, id, reason, retryAfter.Seconds(), final)
	if err != nil {
		return fmt.Errorf("notify: mark failed: %w", err)
	}
	return nil
}
