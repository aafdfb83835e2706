package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-booking/internal/auth"
	"github.com/hackgods/doctor-booking/internal/booking"
	"github.com/hackgods/doctor-booking/internal/config"
	"github.com/hackgods/doctor-booking/internal/db"
	"github.com/hackgods/doctor-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	DecideRatio  float64
	ReadRatio    float64
	HotTriples   int
	Days         int
	PatientLimit int
	SlotLimit    int
	PostgresDSN  string
	JWTSecret    string
}

type slotRef struct {
	DoctorID uuid.UUID
	SlotID   uuid.UUID
}

type DataPool struct {
	Patients []uuid.UUID
	Slots    []slotRef
	Admin    uuid.UUID
	Dates    []string

	mu       sync.RWMutex
	hot      []booking.Triple
	bookings []uuid.UUID
}

func (dp *DataPool) AddBooking(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, id)
}

// TakeBooking removes and returns a random booked reservation so it is decided once.
func (dp *DataPool) TakeBooking(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.bookings) == 0 {
		return uuid.Nil, false
	}
	idx := rng.Intn(len(dp.bookings))
	id := dp.bookings[idx]
	dp.bookings[idx] = dp.bookings[len(dp.bookings)-1]
	dp.bookings = dp.bookings[:len(dp.bookings)-1]
	return id, true
}

// HotTriple returns one of a small set of (doctor, slot, date) triples so that
// concurrent workers contend for the same reservation.
func (dp *DataPool) HotTriple(rng *rand.Rand) booking.Triple {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	return dp.hot[rng.Intn(len(dp.hot))]
}

func buildHotTriples(slots []slotRef, dates []string, n int, rng *rand.Rand) []booking.Triple {
	if n <= 0 || len(slots) == 0 || len(dates) == 0 {
		return nil
	}
	out := make([]booking.Triple, 0, n)
	for i := 0; i < n; i++ {
		s := slots[rng.Intn(len(slots))]
		d, _ := booking.ParseDate(dates[rng.Intn(len(dates))])
		out = append(out, booking.Triple{DoctorID: s.DoctorID, SlotID: s.SlotID, Date: d})
	}
	return out
}

func upcomingDates(from time.Time, days int) []string {
	out := make([]string, 0, days)
	for i := 1; i <= days; i++ {
		out = append(out, from.AddDate(0, 0, i).Format(booking.DateLayout))
	}
	return out
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, pct int) int {
	idx := n * pct / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking        OperationMetrics
	Accept         OperationMetrics
	Reject         OperationMetrics
	AvailableSlots OperationMetrics
	MyAppointments OperationMetrics
	Pending        OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	tokens  *auth.JWT
	logger  zerolog.Logger
	metrics Metrics

	tokenMu sync.Mutex
	cache   map[uuid.UUID]string
}

func main() {
	logger := logging.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"), "simulate")
	logger.Info().Msg("simulator starting")

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("hot_triples", cfg.HotTriples).
		Float64("booking", cfg.BookingRatio).
		Float64("decide", cfg.DecideRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulation config")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	logger.Info().
		Int("patients", len(dataPool.Patients)).
		Int("slots", len(dataPool.Slots)).
		Int("hot_triples", len(dataPool.hot)).
		Bool("admin", dataPool.Admin != uuid.Nil).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		tokens: auth.NewJWT(cfg.JWTSecret, cfg.Duration+time.Hour),
		logger: logger,
		cache:  make(map[uuid.UUID]string),
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("load base config: %w", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		DecideRatio:  getFloat("SIM_DECIDE_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		HotTriples:   getInt("SIM_HOT_TRIPLES", 20),
		Days:         getInt("SIM_DAYS", 7),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 2400),
		PostgresDSN:  baseCfg.PostgresDSN,
		JWTSecret:    baseCfg.JWTSecret,
	}

	total := cfg.BookingRatio + cfg.DecideRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.DecideRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg, nil
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.HotTriples <= 0 {
		return fmt.Errorf("SIM_HOT_TRIPLES must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{Dates: upcomingDates(time.Now().UTC(), cfg.Days)}

	rows, err := pool.Query(ctx, `SELECT id FROM users WHERE role = 'patient' LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `SELECT doctor_id, id FROM slots LIMIT $1`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	for rows.Next() {
		var s slotRef
		if err := rows.Scan(&s.DoctorID, &s.SlotID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, s)
	}
	rows.Close()

	// Missing admin only disables the accept/reject mix.
	_ = pool.QueryRow(ctx, `SELECT id FROM users WHERE role = 'admin' LIMIT 1`).Scan(&dataPool.Admin)

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no slots loaded")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	dataPool.hot = buildHotTriples(dataPool.Slots, dataPool.Dates, cfg.HotTriples, rng)

	return dataPool, nil
}

func (s *Simulator) token(id uuid.UUID, role auth.Role) (string, error) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	if tok, ok := s.cache[id]; ok {
		return tok, nil
	}
	tok, err := s.tokens.Issue(auth.Identity{UserID: id, Role: role})
	if err != nil {
		return "", err
	}
	s.cache[id] = tok
	return tok, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.DecideRatio:
				s.doDecide(ctx, rng)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doAvailableSlots(ctx, rng)
				case 1:
					s.doMyAppointments(ctx, rng)
				case 2:
					s.doPending(ctx)
				}
			}
		}
	}
}

// do sends one authenticated request and returns the status code, or 0 on transport error.
func (s *Simulator) do(ctx context.Context, method, path string, userID uuid.UUID, role auth.Role, body any, out any) int {
	tok, err := s.token(userID, role)
	if err != nil {
		return 0
	}

	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	triple := s.pool.HotTriple(rng)
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	apptType := booking.TypeOnline
	if rng.Intn(2) == 0 {
		apptType = booking.TypeOffline
	}

	var resp struct {
		Appointment struct {
			ID uuid.UUID `json:"id"`
		} `json:"appointment"`
	}

	start := time.Now()
	status := s.do(ctx, http.MethodPost, "/api/appointments/book", patientID, auth.RolePatient, map[string]string{
		"doctor_id":        triple.DoctorID.String(),
		"slot_id":          triple.SlotID.String(),
		"appointment_type": string(apptType),
		"appointment_date": triple.Date.Format(booking.DateLayout),
	}, &resp)
	latency := time.Since(start)

	success := status == http.StatusCreated
	if success && resp.Appointment.ID != uuid.Nil {
		s.pool.AddBooking(resp.Appointment.ID)
	}
	s.metrics.Booking.Record(latency, success, status == http.StatusConflict)
}

// doDecide accepts most bookings and rejects the rest, freeing their triple again.
func (s *Simulator) doDecide(ctx context.Context, rng *rand.Rand) {
	if s.pool.Admin == uuid.Nil {
		return
	}
	id, ok := s.pool.TakeBooking(rng)
	if !ok {
		return
	}

	action, om := "accept", &s.metrics.Accept
	if rng.Intn(4) == 0 {
		action, om = "reject", &s.metrics.Reject
	}

	start := time.Now()
	status := s.do(ctx, http.MethodPut, fmt.Sprintf("/api/admin/appointments/%s/%s", id, action),
		s.pool.Admin, auth.RoleAdmin, nil, nil)
	om.Record(time.Since(start), status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doAvailableSlots(ctx context.Context, rng *rand.Rand) {
	triple := s.pool.HotTriple(rng)
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status := s.do(ctx, http.MethodGet,
		fmt.Sprintf("/api/appointments/available-slots/%s/%s", triple.DoctorID, triple.Date.Format(booking.DateLayout)),
		patientID, auth.RolePatient, nil, nil)
	s.metrics.AvailableSlots.Record(time.Since(start), status == http.StatusOK, false)
}

func (s *Simulator) doMyAppointments(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status := s.do(ctx, http.MethodGet, "/api/appointments/my-appointments", patientID, auth.RolePatient, nil, nil)
	s.metrics.MyAppointments.Record(time.Since(start), status == http.StatusOK, false)
}

func (s *Simulator) doPending(ctx context.Context) {
	if s.pool.Admin == uuid.Nil {
		return
	}

	start := time.Now()
	status := s.do(ctx, http.MethodGet, "/api/admin/appointments/", s.pool.Admin, auth.RoleAdmin, nil, nil)
	s.metrics.Pending.Record(time.Since(start), status == http.StatusOK, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Hot triples: %d\n", len(s.pool.hot))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Accept", &s.metrics.Accept)
	printOperationReport("Reject", &s.metrics.Reject)
	printOperationReport("Available Slots", &s.metrics.AvailableSlots)
	printOperationReport("My Appointments", &s.metrics.MyAppointments)
	printOperationReport("Pending (admin)", &s.metrics.Pending)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
