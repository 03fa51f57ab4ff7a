package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jamiecoded/slotsure/internal/api"
	"github.com/jamiecoded/slotsure/internal/appointment"
	"github.com/jamiecoded/slotsure/internal/db"
)

const (
	clinicCount           = 3
	appointmentsPerClinic = 12
	waitlistPerClinic     = 6
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	jwtSecret := os.Getenv("JWT_SECRET")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	for i := 0; i < clinicCount; i++ {
		clinicID := uuid.New()

		if err := seedClinic(context.Background(), pool, clinicID); err != nil {
			log.Fatalf("seed clinic %s: %v", clinicID, err)
		}

		if jwtSecret != "" {
			token, err := api.IssueOperatorToken(clinicID, jwtSecret, 30*24*time.Hour)
			if err != nil {
				log.Fatalf("issue operator token: %v", err)
			}
			log.Printf("clinic=%s token=%s", clinicID, token)
		} else {
			log.Printf("clinic=%s (set JWT_SECRET to also mint operator tokens)", clinicID)
		}
	}

	log.Println("seed complete")
}

func seedClinic(ctx context.Context, pool *pgxpool.Pool, clinicID uuid.UUID) error {
	log.Printf("seeding clinic %s", clinicID)

	services := []string{
		"General checkup",
		"Dental cleaning",
		"Dermatology consult",
		"Physiotherapy",
		"Vaccination",
		"Eye exam",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Appointments on distinct future hours so the unique slot
	// constraint never trips during seeding.
	base := time.Now().UTC().Truncate(time.Hour).Add(2 * time.Hour)
	for i := 0; i < appointmentsPerClinic; i++ {
		slot := base.Add(time.Duration(i) * time.Hour)
		service := services[gofakeit.Number(0, len(services)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (id, clinic_id, patient_name, patient_email, service, appointment_time, status, confirmation_token, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		`, uuid.New(), clinicID, gofakeit.Name(), gofakeit.Email(), service, slot,
			appointment.StatusScheduled, appointment.NewConfirmationToken())
		if err != nil {
			return err
		}
	}

	// Waitlist entries desiring the same hours, so cancellations have
	// candidates to promote.
	for i := 0; i < waitlistPerClinic; i++ {
		desired := base.Add(time.Duration(i*2)*time.Hour + time.Duration(gofakeit.Number(0, 59))*time.Minute)

		_, err := tx.Exec(ctx, `
			INSERT INTO waitlist (id, clinic_id, patient_name, patient_email, desired_time, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
		`, uuid.New(), clinicID, gofakeit.Name(), gofakeit.Email(), desired)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("clinic %s seeded", clinicID)
	return nil
}
