package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAvailabilityKeepsCatalogOrder(t *testing.T) {
	a := Slot{ID: uuid.New(), Time: "09:00", Category: CategoryMorning}
	b := Slot{ID: uuid.New(), Time: "10:00", Category: CategoryMorning}
	c := Slot{ID: uuid.New(), Time: "18:00", Category: CategoryEvening}

	got := ResolveAvailability([]Slot{a, b, c}, map[uuid.UUID]struct{}{b.ID: {}})

	require.Len(t, got, 3)
	assert.Equal(t, a.ID, got[0].ID)
	assert.True(t, got[0].IsAvailable)
	assert.Equal(t, b.ID, got[1].ID)
	assert.False(t, got[1].IsAvailable)
	assert.Equal(t, CategoryEvening, got[2].Category)
	assert.True(t, got[2].IsAvailable)
}

func TestResolveAvailabilityEmptyCatalog(t *testing.T) {
	got := ResolveAvailability(nil, map[uuid.UUID]struct{}{uuid.New(): {}})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusConfirmed))
	assert.True(t, StatusPending.CanTransition(StatusRejected))
	assert.False(t, StatusPending.CanTransition(StatusPending))
	assert.False(t, StatusConfirmed.CanTransition(StatusRejected))
	assert.False(t, StatusRejected.CanTransition(StatusConfirmed))

	assert.True(t, StatusPending.Active())
	assert.True(t, StatusConfirmed.Active())
	assert.False(t, StatusRejected.Active())
}

func TestParseDateIsNaive(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("2024-13-01")
	assert.Error(t, err)
	_, err = ParseDate("01/06/2024")
	assert.Error(t, err)

	assert.Equal(t, d, NormalizeDate(d.Add(23*time.Hour)))
}

func TestTripleString(t *testing.T) {
	doctor := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	slot := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	tr := Triple{DoctorID: doctor, SlotID: slot, Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, doctor.String()+":"+slot.String()+":2024-06-01", tr.String())
}
