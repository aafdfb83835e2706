package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reservationCols = []string{"id", "patient_id", "doctor_id", "slot_id", "reservation_date", "appointment_type", "status", "created_at", "updated_at"}

func newMockRepo(t *testing.T, retries int) (pgxmock.PgxPoolIface, *PgRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPgRepository(mock, retries)
}

func sampleRequest() BookingRequest {
	return BookingRequest{
		PatientID: uuid.New(),
		DoctorID:  uuid.New(),
		SlotID:    uuid.New(),
		Type:      TypeOnline,
		Date:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func existsRow(v bool) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"exists"}).AddRow(v)
}

func expectBookingChecks(mock pgxmock.PgxPoolIface, req BookingRequest, doctor, slot, taken bool) {
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectQuery("FROM doctors WHERE id").WithArgs(req.DoctorID).WillReturnRows(existsRow(doctor))
	if !doctor {
		return
	}
	mock.ExpectQuery("FROM slots WHERE id").WithArgs(req.SlotID, req.DoctorID).WillReturnRows(existsRow(slot))
	if !slot {
		return
	}
	mock.ExpectQuery("SELECT 1 FROM reservations").WithArgs(req.DoctorID, req.SlotID, req.Date).WillReturnRows(existsRow(taken))
}

func TestCreateReservationCommitsPending(t *testing.T) {
	mock, repo := newMockRepo(t, 2)
	req := sampleRequest()
	now := time.Now().UTC()
	id := uuid.New()

	expectBookingChecks(mock, req, true, true, false)
	mock.ExpectQuery("INSERT INTO reservations").
		WithArgs(pgxmock.AnyArg(), req.PatientID, req.DoctorID, req.SlotID, req.Date, req.Type).
		WillReturnRows(pgxmock.NewRows(reservationCols).
			AddRow(id, req.PatientID, req.DoctorID, req.SlotID, req.Date, TypeOnline, StatusPending, now, now))
	mock.ExpectCommit()

	res, err := repo.CreateReservation(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, id, res.ID)
	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, req.Date, res.Date)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReservationCheckOrder(t *testing.T) {
	tests := []struct {
		name                string
		doctor, slot, taken bool
		want                error
	}{
		{"doctor missing", false, true, true, ErrDoctorNotFound},
		{"slot not owned by doctor", true, false, true, ErrSlotNotFound},
		{"triple already active", true, true, true, ErrSlotAlreadyBooked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, repo := newMockRepo(t, 2)
			req := sampleRequest()

			expectBookingChecks(mock, req, tt.doctor, tt.slot, tt.taken)
			mock.ExpectRollback()

			_, err := repo.CreateReservation(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateReservationMapsUniqueViolation(t *testing.T) {
	mock, repo := newMockRepo(t, 2)
	req := sampleRequest()

	expectBookingChecks(mock, req, true, true, false)
	mock.ExpectQuery("INSERT INTO reservations").
		WithArgs(pgxmock.AnyArg(), req.PatientID, req.DoctorID, req.SlotID, req.Date, req.Type).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "reservations_active_triple_idx"})
	mock.ExpectRollback()

	_, err := repo.CreateReservation(context.Background(), req)
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReservationOtherUniqueViolationIsNotAConflict(t *testing.T) {
	mock, repo := newMockRepo(t, 2)
	req := sampleRequest()

	expectBookingChecks(mock, req, true, true, false)
	mock.ExpectQuery("INSERT INTO reservations").
		WithArgs(pgxmock.AnyArg(), req.PatientID, req.DoctorID, req.SlotID, req.Date, req.Type).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "reservations_pkey"})
	mock.ExpectRollback()

	_, err := repo.CreateReservation(context.Background(), req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSlotAlreadyBooked)
	assert.NotErrorIs(t, err, ErrStorageBusy)

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "reservations_pkey", pgErr.ConstraintName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReservationRetriesSerializationFailure(t *testing.T) {
	mock, repo := newMockRepo(t, 2)
	req := sampleRequest()

	expectBookingChecks(mock, req, true, true, false)
	mock.ExpectQuery("INSERT INTO reservations").
		WithArgs(pgxmock.AnyArg(), req.PatientID, req.DoctorID, req.SlotID, req.Date, req.Type).
		WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()

	// The replay observes the winner's row and reports a conflict.
	expectBookingChecks(mock, req, true, true, true)
	mock.ExpectRollback()

	_, err := repo.CreateReservation(context.Background(), req)
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReservationGivesUpAsStorageBusy(t *testing.T) {
	mock, repo := newMockRepo(t, 1)
	req := sampleRequest()

	for i := 0; i < 2; i++ {
		mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
		mock.ExpectQuery("FROM doctors WHERE id").WithArgs(req.DoctorID).
			WillReturnError(&pgconn.PgError{Code: "40P01"})
		mock.ExpectRollback()
	}

	_, err := repo.CreateReservation(context.Background(), req)
	assert.ErrorIs(t, err, ErrStorageBusy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReservationStatusIsConditional(t *testing.T) {
	mock, repo := newMockRepo(t, 0)
	id := uuid.New()

	mock.ExpectQuery("UPDATE reservations").
		WithArgs(id, StatusConfirmed, StatusPending).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateReservationStatus(context.Background(), id, StatusPending, StatusConfirmed)
	assert.ErrorIs(t, err, ErrReservationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteReservation(t *testing.T) {
	mock, repo := newMockRepo(t, 0)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM reservations").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, repo.DeleteReservation(context.Background(), id))

	mock.ExpectExec("DELETE FROM reservations").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, repo.DeleteReservation(context.Background(), id), ErrReservationNotFound)

	mock.ExpectExec("DELETE FROM reservations").WithArgs(id).WillReturnError(errors.New("conn closed"))
	err := repo.DeleteReservation(context.Background(), id)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrReservationNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveSlotIDs(t *testing.T) {
	mock, repo := newMockRepo(t, 0)
	doctor := uuid.New()
	a, b := uuid.New(), uuid.New()
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT slot_id").WithArgs(doctor, date).
		WillReturnRows(pgxmock.NewRows([]string{"slot_id"}).AddRow(a).AddRow(b))

	taken, err := repo.ActiveSlotIDs(context.Background(), doctor, date)
	require.NoError(t, err)
	assert.Len(t, taken, 2)
	assert.Contains(t, taken, a)
	assert.Contains(t, taken, b)
	assert.NoError(t, mock.ExpectationsWereMet())
}
