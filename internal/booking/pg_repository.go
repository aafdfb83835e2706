package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	activeTripleIndex = "reservations_active_triple_idx"
)

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db        DB
	txRetries int
}

// NewPgRepository builds a repository. txRetries bounds how many times a booking
// transaction is replayed after a serialization failure.
func NewPgRepository(db DB, txRetries int) *PgRepository {
	if txRetries < 0 {
		txRetries = 0
	}
	return &PgRepository{db: db, txRetries: txRetries}
}

const reservationColumns = `id, patient_id, doctor_id, slot_id, reservation_date, appointment_type, status, created_at, updated_at`

const detailSelect = `
	SELECT r.id, r.patient_id, r.doctor_id, r.slot_id, r.reservation_date, r.appointment_type,
	       r.status, r.created_at, r.updated_at,
	       to_char(s.slot_time, 'HH24:MI'), s.slot_type, d.name, u.name, u.email
	FROM reservations r
	JOIN slots s ON s.id = r.slot_id
	JOIN doctors d ON d.id = r.doctor_id
	JOIN users u ON u.id = r.patient_id
`

// Helpers

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation

	err := row.Scan(
		&r.ID,
		&r.PatientID,
		&r.DoctorID,
		&r.SlotID,
		&r.Date,
		&r.Type,
		&r.Status,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}

	r.Date = NormalizeDate(r.Date)
	return &r, nil
}

func scanDetail(row pgx.Row) (*ReservationDetail, error) {
	var d ReservationDetail
	var email *string

	err := row.Scan(
		&d.ID,
		&d.PatientID,
		&d.DoctorID,
		&d.SlotID,
		&d.Date,
		&d.Type,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.SlotTime,
		&d.SlotCategory,
		&d.DoctorName,
		&d.PatientName,
		&email,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}

	d.Date = NormalizeDate(d.Date)
	d.PatientEmail = email
	return &d, nil
}

func collectDetails(rows pgx.Rows) ([]ReservationDetail, error) {
	defer rows.Close()

	var result []ReservationDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Interface methods

func (r *PgRepository) DoctorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check doctor: %w", err)
	}
	return ok, nil
}

func (r *PgRepository) ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, doctor_id, to_char(slot_time, 'HH24:MI'), slot_type
		FROM slots
		WHERE doctor_id = $1
		ORDER BY slot_time
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.ID, &s.DoctorID, &s.Time, &s.Category); err != nil {
			return nil, err
		}
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ActiveSlotIDs(ctx context.Context, doctorID uuid.UUID, date time.Time) (map[uuid.UUID]struct{}, error) {
	rows, err := r.db.Query(ctx, `
		SELECT slot_id
		FROM reservations
		WHERE doctor_id = $1
		  AND reservation_date = $2
		  AND status IN ('pending', 'confirmed')
	`, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list active slots: %w", err)
	}
	defer rows.Close()

	taken := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		taken[id] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return taken, nil
}

// CreateReservation replays the booking transaction on serialization failures.
// A unique violation on the active-triple index means a concurrent booking won;
// any other unique violation is returned as is.
func (r *PgRepository) CreateReservation(ctx context.Context, req BookingRequest) (*Reservation, error) {
	var lastErr error

	for attempt := 0; attempt <= r.txRetries; attempt++ {
		res, err := r.createReservationTx(ctx, req)
		if err == nil {
			return res, nil
		}

		switch pgErrorCode(err) {
		case pgUniqueViolation:
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.ConstraintName == activeTripleIndex {
				return nil, ErrSlotAlreadyBooked
			}
			return nil, err
		case pgSerializationFailure, pgDeadlockDetected:
			lastErr = err
			continue
		}

		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrStorageBusy, err)
		}
		return nil, err
	}

	return nil, fmt.Errorf("%w: %v", ErrStorageBusy, lastErr)
}

func (r *PgRepository) createReservationTx(ctx context.Context, req BookingRequest) (*Reservation, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, req.DoctorID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check doctor: %w", err)
	}
	if !exists {
		return nil, ErrDoctorNotFound
	}

	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1 AND doctor_id = $2)
	`, req.SlotID, req.DoctorID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check slot: %w", err)
	}
	if !exists {
		return nil, ErrSlotNotFound
	}

	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE doctor_id = $1
			  AND slot_id = $2
			  AND reservation_date = $3
			  AND status IN ('pending', 'confirmed')
		)
	`, req.DoctorID, req.SlotID, req.Date).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check active reservation: %w", err)
	}
	if exists {
		return nil, ErrSlotAlreadyBooked
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO reservations (id, patient_id, doctor_id, slot_id, reservation_date, appointment_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', now(), now())
		RETURNING `+reservationColumns,
		uuid.New(), req.PatientID, req.DoctorID, req.SlotID, req.Date, req.Type)

	res, err := scanReservation(row)
	if err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return res, nil
}

func (r *PgRepository) GetReservationByID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = $1
	`, id)
	return scanReservation(row)
}

func (r *PgRepository) GetReservationDetail(ctx context.Context, id uuid.UUID) (*ReservationDetail, error) {
	row := r.db.QueryRow(ctx, detailSelect+`WHERE r.id = $1`, id)
	return scanDetail(row)
}

func (r *PgRepository) ListReservationsByPatient(ctx context.Context, patientID uuid.UUID) ([]ReservationDetail, error) {
	rows, err := r.db.Query(ctx, detailSelect+`
		WHERE r.patient_id = $1
		ORDER BY r.reservation_date DESC, s.slot_time DESC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list reservations by patient: %w", err)
	}
	return collectDetails(rows)
}

func (r *PgRepository) ListPendingReservations(ctx context.Context) ([]ReservationDetail, error) {
	rows, err := r.db.Query(ctx, detailSelect+`
		WHERE r.status = 'pending'
		ORDER BY r.reservation_date DESC, s.slot_time
	`)
	if err != nil {
		return nil, fmt.Errorf("list pending reservations: %w", err)
	}
	return collectDetails(rows)
}

func (r *PgRepository) UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Reservation, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE reservations
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+reservationColumns,
		id, to, from)

	return scanReservation(row)
}

func (r *PgRepository) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, reservation_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.ReservationID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
