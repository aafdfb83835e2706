package booking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepository is an in-memory Repository. CreateReservation holds the mutex for
// the whole check-and-insert, standing in for the serializable transaction.
// With splitCheck set the mutex is released between the check and the insert,
// so only a caller-side lock keeps concurrent bookings apart.
type memRepository struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]Doctor
	slots        map[uuid.UUID]Slot
	patients     map[uuid.UUID]PatientContact
	reservations map[uuid.UUID]Reservation
	events       []EventLog

	detailErr  error
	createHook func()
	splitCheck bool
}

func newMemRepository() *memRepository {
	return &memRepository{
		doctors:      make(map[uuid.UUID]Doctor),
		slots:        make(map[uuid.UUID]Slot),
		patients:     make(map[uuid.UUID]PatientContact),
		reservations: make(map[uuid.UUID]Reservation),
	}
}

func (m *memRepository) addDoctor(name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.doctors[id] = Doctor{ID: id, Name: name}
	return id
}

func (m *memRepository) addSlot(doctorID uuid.UUID, at string, cat SlotCategory) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.slots[id] = Slot{ID: id, DoctorID: doctorID, Time: at, Category: cat}
	return id
}

func (m *memRepository) addPatient(name, email string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.patients[id] = PatientContact{ID: id, Name: name, Email: &email}
	return id
}

func (m *memRepository) activeCount(t Triple) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.reservations {
		if r.Triple() == t && r.Status.Active() {
			n++
		}
	}
	return n
}

func (m *memRepository) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (m *memRepository) DoctorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.doctors[id]
	return ok, nil
}

func (m *memRepository) ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Slot
	for _, s := range m.slots {
		if s.DoctorID == doctorID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (m *memRepository) ActiveSlotIDs(ctx context.Context, doctorID uuid.UUID, date time.Time) (map[uuid.UUID]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	taken := make(map[uuid.UUID]struct{})
	for _, r := range m.reservations {
		if r.DoctorID == doctorID && r.Date.Equal(date) && r.Status.Active() {
			taken[r.SlotID] = struct{}{}
		}
	}
	return taken, nil
}

func (m *memRepository) CreateReservation(ctx context.Context, req BookingRequest) (*Reservation, error) {
	if m.splitCheck {
		m.mu.Lock()
		err := m.checkBookableLocked(req)
		m.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if m.createHook != nil {
			m.createHook()
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.insertLocked(req), nil
	}

	if m.createHook != nil {
		m.createHook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkBookableLocked(req); err != nil {
		return nil, err
	}
	return m.insertLocked(req), nil
}

func (m *memRepository) checkBookableLocked(req BookingRequest) error {
	if _, ok := m.doctors[req.DoctorID]; !ok {
		return ErrDoctorNotFound
	}
	slot, ok := m.slots[req.SlotID]
	if !ok || slot.DoctorID != req.DoctorID {
		return ErrSlotNotFound
	}
	triple := Triple{DoctorID: req.DoctorID, SlotID: req.SlotID, Date: req.Date}
	for _, r := range m.reservations {
		if r.Triple() == triple && r.Status.Active() {
			return ErrSlotAlreadyBooked
		}
	}
	return nil
}

func (m *memRepository) insertLocked(req BookingRequest) *Reservation {
	now := time.Now()
	r := Reservation{
		ID:        uuid.New(),
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		SlotID:    req.SlotID,
		Date:      req.Date,
		Type:      req.Type,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.reservations[r.ID] = r
	return &r
}

func (m *memRepository) GetReservationByID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	return &r, nil
}

func (m *memRepository) detailLocked(r Reservation) ReservationDetail {
	slot := m.slots[r.SlotID]
	patient := m.patients[r.PatientID]
	return ReservationDetail{
		Reservation:  r,
		SlotTime:     slot.Time,
		SlotCategory: slot.Category,
		DoctorName:   m.doctors[r.DoctorID].Name,
		PatientName:  patient.Name,
		PatientEmail: patient.Email,
	}
}

func (m *memRepository) GetReservationDetail(ctx context.Context, id uuid.UUID) (*ReservationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detailErr != nil {
		return nil, m.detailErr
	}
	r, ok := m.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	d := m.detailLocked(r)
	return &d, nil
}

func (m *memRepository) ListReservationsByPatient(ctx context.Context, patientID uuid.UUID) ([]ReservationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ReservationDetail
	for _, r := range m.reservations {
		if r.PatientID == patientID {
			out = append(out, m.detailLocked(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].SlotTime > out[j].SlotTime
	})
	return out, nil
}

func (m *memRepository) ListPendingReservations(ctx context.Context) ([]ReservationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ReservationDetail
	for _, r := range m.reservations {
		if r.Status == StatusPending {
			out = append(out, m.detailLocked(r))
		}
	}
	return out, nil
}

func (m *memRepository) UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok || r.Status != from {
		return nil, ErrReservationNotFound
	}
	r.Status = to
	r.UpdatedAt = time.Now()
	m.reservations[id] = r
	return &r, nil
}

func (m *memRepository) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reservations[id]; !ok {
		return ErrReservationNotFound
	}
	delete(m.reservations, id)
	return nil
}

func (m *memRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []ReservationDetail
	err   error
}

func (n *recordingNotifier) NotifyConfirmed(ctx context.Context, detail ReservationDetail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, detail)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

var errNotifierDown = errors.New("notifier down")
