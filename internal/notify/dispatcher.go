package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-booking/internal/metrics"
)

const maxBackoff = 30 * time.Minute

// Queue is the read side of the outbox used by the dispatcher.
type Queue interface {
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]Notification, error)
	MarkSent(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, retryAfter time.Duration, final bool) error
}

type DispatcherOptions struct {
	BatchSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	Lease       time.Duration
}

func (o DispatcherOptions) withDefaults() DispatcherOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = 25
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 30 * time.Second
	}
	if o.Lease <= 0 {
		o.Lease = 2 * time.Minute
	}
	return o
}

// Dispatcher drains the outbox through an EmailSender.
type Dispatcher struct {
	queue   Queue
	sender  EmailSender
	metrics *metrics.BookingMetrics
	logger  zerolog.Logger
	opts    DispatcherOptions
}

func NewDispatcher(queue Queue, sender EmailSender, m *metrics.BookingMetrics, logger zerolog.Logger, opts DispatcherOptions) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		sender:  sender,
		metrics: m,
		logger:  logger,
		opts:    opts.withDefaults(),
	}
}

// Run drains once immediately and then every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	d.logger.Info().Dur("interval", interval).Msg("notification dispatcher started")

	d.drain(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("notification dispatcher stopping")
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	sent, failed, err := d.DrainOnce(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("outbox drain failed")
		return
	}
	if sent > 0 || failed > 0 {
		d.logger.Info().Int("sent", sent).Int("failed", failed).Msg("outbox drained")
	}
}

// DrainOnce delivers one batch of due notifications.
func (d *Dispatcher) DrainOnce(ctx context.Context) (sent, failed int, err error) {
	batch, err := d.queue.ClaimDue(ctx, d.opts.BatchSize, d.opts.Lease)
	if err != nil {
		return 0, 0, err
	}

	for _, n := range batch {
		if ctx.Err() != nil {
			return sent, failed, ctx.Err()
		}

		sendErr := d.sender.Send(ctx, EmailMessage{
			To:      n.Recipient,
			ToName:  n.RecipientName,
			Subject: n.Subject,
			Body:    n.Body,
		})
		if sendErr == nil {
			if _, err := d.queue.MarkSent(ctx, n.ID); err != nil {
				d.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("failed to mark notification sent")
			}
			d.metrics.ObserveNotification("deliver", "sent")
			sent++
			continue
		}

		failed++
		final := n.Attempts+1 >= d.opts.MaxAttempts
		retryAfter := d.backoff(n.Attempts)

		log := d.logger.Warn()
		status := "retry"
		if final {
			log = d.logger.Error()
			status = "failed"
		}
		log.Err(sendErr).
			Str("notification_id", n.ID.String()).
			Str("reservation_id", n.ReservationID.String()).
			Int("attempt", n.Attempts+1).
			Bool("final", final).
			Msg("notification delivery failed")
		d.metrics.ObserveNotification("deliver", status)

		if err := d.queue.MarkFailed(ctx, n.ID, sendErr.Error(), retryAfter, final); err != nil {
			d.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("failed to record notification failure")
		}
	}

	return sent, failed, nil
}

func (d *Dispatcher) backoff(attempts int) time.Duration {
	wait := d.opts.BaseBackoff
	for i := 0; i < attempts; i++ {
		wait *= 2
		if wait >= maxBackoff {
			return maxBackoff
		}
	}
	return wait
}
