package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/doctor-booking/internal/booking"
	"github.com/hackgods/doctor-booking/internal/db"
	"github.com/hackgods/doctor-booking/internal/logging"
)

type slotSpec struct {
	at       string
	category booking.SlotCategory
}

// slotSchedule returns every step between start and end (exclusive), HH:MM.
func slotSchedule(start, end string, step time.Duration, category booking.SlotCategory) ([]slotSpec, error) {
	from, err := time.Parse("15:04", start)
	if err != nil {
		return nil, fmt.Errorf("parse start: %w", err)
	}
	to, err := time.Parse("15:04", end)
	if err != nil {
		return nil, fmt.Errorf("parse end: %w", err)
	}
	if step <= 0 {
		return nil, errors.New("step must be positive")
	}

	var out []slotSpec
	for t := from; t.Before(to); t = t.Add(step) {
		out = append(out, slotSpec{at: t.Format("15:04"), category: category})
	}
	return out, nil
}

func defaultSchedule() []slotSpec {
	morning, _ := slotSchedule("09:00", "12:00", 30*time.Minute, booking.CategoryMorning)
	evening, _ := slotSchedule("17:00", "20:00", 30*time.Minute, booking.CategoryEvening)
	return append(morning, evening...)
}

func main() {
	logger := logging.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"), "seed")
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedAdmin(context.Background(), pool, logger, os.Getenv("ADMIN_EMAIL"), os.Getenv("ADMIN_PASSWORD")); err != nil {
		logger.Fatal().Err(err).Msg("seed admin")
	}
	if err := seedDoctors(context.Background(), pool, logger, getInt("SEED_DOCTORS", 25), defaultSchedule()); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(context.Background(), pool, logger, getInt("SEED_PATIENTS", 2000)); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, email, password string) error {
	if email == "" || password == "" {
		logger.Warn().Msg("ADMIN_EMAIL or ADMIN_PASSWORD not set, skipping admin account")
		return nil
	}

	var existing uuid.UUID
	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&existing)
	if err == nil {
		logger.Info().Str("admin_id", existing.String()).Msg("admin user already exists")
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("look up admin: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	id := uuid.New()
	if _, err := pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, role)
		VALUES ($1, 'Admin', $2, $3, 'admin')
	`, id, email, string(hash)); err != nil {
		return fmt.Errorf("insert admin: %w", err)
	}

	logger.Info().Str("admin_id", id.String()).Msg("admin user created")
	return nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, count int, schedule []slotSpec) error {
	logger.Info().Int("count", count).Int("slots_per_doctor", len(schedule)).Msg("seeding doctors")

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, experience, rating, location, gender)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, id,
			"Dr. "+gofakeit.Name(),
			specialties[gofakeit.Number(0, len(specialties)-1)],
			gofakeit.Number(1, 35),
			gofakeit.Float64Range(3.0, 5.0),
			gofakeit.City(),
			gofakeit.Gender(),
		)
		if err != nil {
			return err
		}

		for _, s := range schedule {
			if _, err := tx.Exec(ctx, `
				INSERT INTO slots (id, doctor_id, slot_time, slot_type)
				VALUES ($1, $2, $3::time, $4)
			`, uuid.New(), id, s.at, s.category); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, email, role)
				VALUES ($1, $2, $3, 'patient')
				ON CONFLICT (email) DO NOTHING
			`, uuid.New(), gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("seeded", end).Int("total", count).Msg("patients batch committed")
	}

	logger.Info().Msg("patients seeded")
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
