package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-core/internal/access"
	"github.com/hackgods/clinic-core/internal/appointment"
	"github.com/hackgods/clinic-core/internal/apperr"
	"github.com/hackgods/clinic-core/internal/billing"
	"github.com/hackgods/clinic-core/internal/config"
	"github.com/hackgods/clinic-core/internal/db"
	"github.com/hackgods/clinic-core/internal/logger"
	"github.com/hackgods/clinic-core/internal/prescription"
	redisclient "github.com/hackgods/clinic-core/internal/redis"
)

type seedConfig struct {
	Doctors  int     `env:"SEED_DOCTORS" envDefault:"10"`
	Patients int     `env:"SEED_PATIENTS" envDefault:"200"`
	Days     int     `env:"SEED_DAYS" envDefault:"5"`
	Fill     float64 `env:"SEED_FILL" envDefault:"0.4"` // share of free slots booked per doctor
}

var (
	reasons   = []string{"Annual checkup", "Persistent cough", "Back pain", "Follow-up visit", "Skin rash", "Headaches"}
	diagnoses = []string{"Acute bronchitis", "Lumbar strain", "Contact dermatitis", "Tension headache", "Seasonal allergies"}
)

type seeder struct {
	scheduler *appointment.Scheduler
	ledger    *billing.Ledger
	gate      *prescription.Gate
	staff     access.Actor
	doctors   []uuid.UUID
	patients  []uuid.UUID
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("config load error")
	}
	var sc seedConfig
	if err := env.Parse(&sc); err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("seed config error")
	}

	log, err := logger.New(cfg.LogLevel, cfg.Env, "seed")
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("logger init error")
	}
	log.Info().Int("doctors", sc.Doctors).Int("patients", sc.Patients).Int("days", sc.Days).Msg("seed starting")

	if err := db.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxConn)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	prescriptions := prescription.NewPgRepository(pool)
	s := &seeder{
		scheduler: appointment.NewScheduler(appointment.NewPgRepository(pool), redisclient.NoopLocker{}, nil, cfg.Schedule),
		ledger:    billing.NewLedger(billing.NewPgRepository(pool, prescriptions.MarkInvoicePaid)),
		gate:      prescription.NewGate(prescriptions, nil),
		staff:     access.Actor{ID: uuid.New(), Role: access.RoleStaff},
		doctors:   ids(sc.Doctors),
		patients:  ids(sc.Patients),
	}

	ctx = log.WithContext(context.Background())
	loc := cfg.Schedule.Location()
	y, m, d := time.Now().In(loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)

	booked := 0
	for d := 1; d <= sc.Days; d++ {
		n, err := s.seedDay(ctx, today.AddDate(0, 0, d), sc.Fill)
		if err != nil {
			log.Fatal().Err(err).Msg("seed appointments")
		}
		booked += n
	}
	log.Info().Int("appointments", booked).Msg("appointments seeded")

	settled, err := s.seedVisits(ctx, booked/4)
	if err != nil {
		log.Fatal().Err(err).Msg("seed visits")
	}
	log.Info().Int("visits", settled).Msg("seed complete")
}

func ids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func (s *seeder) pick(from []uuid.UUID) uuid.UUID {
	return from[gofakeit.Number(0, len(from)-1)]
}

func (s *seeder) seedDay(ctx context.Context, day time.Time, fill float64) (int, error) {
	booked := 0
	for _, doctor := range s.doctors {
		slots, err := s.scheduler.AvailableSlots(ctx, s.staff, doctor, day)
		if err != nil {
			return booked, err
		}
		for _, at := range slots {
			if gofakeit.Float64Range(0, 1) > fill {
				continue
			}
			_, err := s.scheduler.Book(ctx, s.staff, appointment.BookRequest{
				DoctorID:    doctor,
				PatientID:   s.pick(s.patients),
				ScheduledAt: at,
				Reason:      gofakeit.RandomString(reasons),
			})
			if errors.Is(err, apperr.ErrConflict) {
				continue
			}
			if err != nil {
				return booked, err
			}
			booked++
		}
	}
	return booked, nil
}

// seedVisits completes some appointments and bills them, attaching a
// prescription to each invoice and paying part of them.
func (s *seeder) seedVisits(ctx context.Context, n int) (int, error) {
	status := appointment.StatusScheduled
	list, err := s.scheduler.List(ctx, s.staff, appointment.ListFilter{Status: &status, Limit: n})
	if err != nil {
		return 0, err
	}

	for _, appt := range list {
		for _, next := range []appointment.AppointmentStatus{appointment.StatusInProgress, appointment.StatusCompleted} {
			if _, err := s.scheduler.Advance(ctx, s.staff, appt.ID, next); err != nil {
				return 0, err
			}
		}

		consultation := appt.ID
		inv, err := s.ledger.CreateInvoice(ctx, s.staff, billing.CreateInvoiceRequest{
			PatientID:         appt.PatientID,
			ConsultationID:    &consultation,
			Items:             fakeItems(),
			TaxRate:           decimal.NewFromInt(20),
			InsuranceCoverage: decimal.NewFromInt(int64(gofakeit.RandomInt([]int{0, 0, 10, 25}))),
		})
		if err != nil {
			return 0, err
		}

		doctor := access.Actor{ID: appt.DoctorID, Role: access.RoleDoctor}
		p, err := s.gate.Issue(ctx, doctor, prescription.IssueRequest{
			PatientID:      appt.PatientID,
			ConsultationID: &consultation,
			Diagnosis:      gofakeit.RandomString(diagnoses),
			Medications:    fakeMedications(),
		})
		if err != nil {
			return 0, err
		}
		if _, err := s.gate.AttachInvoice(ctx, doctor, p.ID, inv.ID); err != nil {
			return 0, err
		}

		if err := s.pay(ctx, inv); err != nil {
			return 0, err
		}
	}
	return len(list), nil
}

func (s *seeder) pay(ctx context.Context, inv *billing.Invoice) error {
	if inv.AmountDue.IsZero() || gofakeit.Bool() {
		return nil
	}

	amount := inv.AmountDue
	if gofakeit.Bool() {
		amount = amount.Div(decimal.NewFromInt(2)).Round(2)
	}
	method := billing.PaymentMethod(gofakeit.RandomString([]string{"cash", "card", "bank_transfer"}))

	_, err := s.ledger.ApplyPayment(ctx, s.staff, inv.ID, billing.PaymentRequest{
		Amount:    amount,
		Method:    method,
		Reference: gofakeit.Numerify("REF-########"),
	})
	return err
}

func fakeItems() []billing.Item {
	items := []billing.Item{{
		Description: "Consultation",
		Quantity:    1,
		UnitPrice:   decimal.NewFromInt(int64(gofakeit.Number(40, 120))),
		Category:    "consultation",
	}}
	for i := gofakeit.Number(0, 2); i > 0; i-- {
		items = append(items, billing.Item{
			Description: gofakeit.ProductName(),
			Quantity:    gofakeit.Number(1, 3),
			UnitPrice:   decimal.NewFromFloat(gofakeit.Price(5, 60)).Round(2),
			Category:    "supplies",
		})
	}
	return items
}

func fakeMedications() []prescription.Medication {
	meds := make([]prescription.Medication, gofakeit.Number(1, 3))
	for i := range meds {
		meds[i] = prescription.Medication{
			Name:     gofakeit.RandomString([]string{"Amoxicillin", "Ibuprofen", "Paracetamol", "Omeprazole", "Cetirizine", "Metformin"}),
			Dosage:   gofakeit.RandomString([]string{"250 mg", "500 mg", "10 mg", "20 mg"}),
			Regimen:  gofakeit.RandomString([]string{"once daily", "twice daily", "every 8 hours"}),
			Duration: gofakeit.RandomString([]string{"5 days", "7 days", "14 days"}),
		}
	}
	return meds
}
