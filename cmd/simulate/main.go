package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-core/internal/access"
	"github.com/hackgods/clinic-core/internal/api"
	"github.com/hackgods/clinic-core/internal/config"
	"github.com/hackgods/clinic-core/internal/db"
	"github.com/hackgods/clinic-core/internal/logger"
)

type SimConfig struct {
	APIBaseURL   string        `env:"SIM_API_BASE_URL" envDefault:"http://localhost:8080"`
	Duration     time.Duration `env:"SIM_DURATION" envDefault:"30s"`
	Workers      int           `env:"SIM_WORKERS" envDefault:"10"`
	RaceRounds   int           `env:"SIM_RACE_ROUNDS" envDefault:"20"`
	BookingRatio float64       `env:"SIM_BOOKING_RATIO" envDefault:"0.5"`
	PaymentRatio float64       `env:"SIM_PAYMENT_RATIO" envDefault:"0.2"`
	ReadRatio    float64       `env:"SIM_READ_RATIO" envDefault:"0.3"`
	DoctorCount  int           `env:"SIM_DOCTORS" envDefault:"20"`
	PatientCount int           `env:"SIM_PATIENTS" envDefault:"500"`
}

type DataPool struct {
	Doctors  []uuid.UUID
	Patients []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID
	invoices     []uuid.UUID
}

func (dp *DataPool) add(list *[]uuid.UUID, id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	*list = append(*list, id)
}

func (dp *DataPool) random(rng *rand.Rand, list *[]uuid.UUID) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(*list) == 0 {
		return uuid.Nil, false
	}
	return (*list)[rng.Intn(len(*list))], true
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
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	at := func(pct int) time.Duration {
		return latencies[min(len(latencies)*pct/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), at(50), at(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking     OperationMetrics
	Payment     OperationMetrics
	ReadByID    OperationMetrics
	ListPatient OperationMetrics
	Slots       OperationMetrics
}

// Violations counts observed breaks of the booking and balance guarantees.
type Violations struct {
	DoubleBooked    int64
	OverpaidRounds  int64
	BalanceMismatch int64
}

type Simulator struct {
	config     SimConfig
	schedule   config.Schedule
	pool       *DataPool
	client     *http.Client
	staff      access.Actor
	metrics    Metrics
	violations Violations
	log        zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("config load error")
	}
	var cfg SimConfig
	if err := env.Parse(&cfg); err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("sim config error")
	}
	if cfg.Workers <= 0 || cfg.Duration <= 0 {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Msg("SIM_WORKERS and SIM_DURATION must be positive")
	}
	normalizeRatios(&cfg)

	log, err := logger.New(baseCfg.LogLevel, baseCfg.Env, "simulate")
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("logger init error")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("race_rounds", cfg.RaceRounds).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, 4)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	log.Info().Int("doctors", len(dataPool.Doctors)).Int("patients", len(dataPool.Patients)).Msg("data pool loaded")

	sim := &Simulator{
		config:   cfg,
		schedule: baseCfg.Schedule,
		pool:     dataPool,
		client:   &http.Client{Timeout: 10 * time.Second},
		staff:    access.Actor{ID: uuid.New(), Role: access.RoleStaff},
		log:      log,
	}

	sim.RaceBookings()
	sim.RacePayments()
	sim.Run()

	checkCtx, cancelCheck := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelCheck()
	if err := sim.CheckDatabase(checkCtx, pgPool); err != nil {
		log.Error().Err(err).Msg("database check failed")
	}

	sim.PrintReport()
	if sim.violated() {
		os.Exit(1)
	}
}

func normalizeRatios(cfg *SimConfig) {
	total := cfg.BookingRatio + cfg.PaymentRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.PaymentRatio /= total
		cfg.ReadRatio /= total
	}
}

// loadDataPool reuses doctors and patients already present and tops the
// pool up with fresh ids. Identities live upstream, so any uuid will do.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{}

	var err error
	dp.Doctors, err = distinctIDs(ctx, pool, "doctor_id", cfg.DoctorCount)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	dp.Patients, err = distinctIDs(ctx, pool, "patient_id", cfg.PatientCount)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	for len(dp.Doctors) < cfg.DoctorCount {
		dp.Doctors = append(dp.Doctors, uuid.New())
	}
	for len(dp.Patients) < cfg.PatientCount {
		dp.Patients = append(dp.Patients, uuid.New())
	}
	return dp, nil
}

func distinctIDs(ctx context.Context, pool *pgxpool.Pool, column string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, fmt.Sprintf(`SELECT DISTINCT %s FROM appointments LIMIT $1`, column), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RaceBookings fires every worker at the same fresh slot at once. Exactly
// one booking per round may win.
func (s *Simulator) RaceBookings() {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for round := 0; round < s.config.RaceRounds; round++ {
		doctor := uuid.New()
		at := s.slotAt(rng, 30+round)

		var won atomic.Int64
		s.fanOut(func(worker int) {
			status, _ := s.book(context.Background(), doctor, s.pool.Patients[(round+worker)%len(s.pool.Patients)], at)
			if status == http.StatusCreated {
				won.Add(1)
			}
		})

		if won.Load() != 1 {
			atomic.AddInt64(&s.violations.DoubleBooked, 1)
			s.log.Error().Int("round", round).Int64("winners", won.Load()).Msg("booking race violated")
		}
	}
	s.log.Info().Int("rounds", s.config.RaceRounds).Msg("booking races done")
}

// RacePayments opens a 100.00 invoice and has every worker pay 30.00 into it
// at once. At most three payments fit.
func (s *Simulator) RacePayments() {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for round := 0; round < s.config.RaceRounds; round++ {
		patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
		invoiceID, err := s.createInvoice(ctx, patient)
		if err != nil {
			s.log.Error().Err(err).Msg("create invoice")
			continue
		}

		var accepted atomic.Int64
		s.fanOut(func(int) {
			if status := s.pay(ctx, invoiceID, "30.00"); status == http.StatusCreated {
				accepted.Add(1)
			}
		})

		want := int64(min(s.config.Workers, 3))
		if accepted.Load() != want {
			atomic.AddInt64(&s.violations.OverpaidRounds, 1)
			s.log.Error().Int("round", round).Int64("accepted", accepted.Load()).Int64("want", want).Msg("payment race violated")
		}
	}
	s.log.Info().Int("rounds", s.config.RaceRounds).Msg("payment races done")
}

func (s *Simulator) fanOut(fn func(worker int)) {
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			<-start
			fn(worker)
		}(i)
	}
	close(start)
	wg.Wait()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting mixed load")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("mixed load complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.PaymentRatio:
			s.doPayment(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doListByPatient(ctx, rng)
			case 2:
				s.doSlots(ctx, rng)
			}
		}
	}
}

// slotAt picks a random slot start daysAhead days from now.
func (s *Simulator) slotAt(rng *rand.Rand, daysAhead int) time.Time {
	loc := s.schedule.Location()
	y, m, d := time.Now().In(loc).AddDate(0, 0, daysAhead).Date()
	open := time.Date(y, m, d, s.schedule.StartHour, 0, 0, 0, loc)
	perDay := int(time.Duration(s.schedule.EndHour-s.schedule.StartHour) * time.Hour / s.schedule.SlotDuration)
	return open.Add(time.Duration(rng.Intn(perDay)) * s.schedule.SlotDuration)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, id := s.book(ctx, doctor, patient, s.slotAt(rng, 1+rng.Intn(7)))
	latency := time.Since(start)

	if status == http.StatusCreated {
		s.pool.add(&s.pool.appointments, id)
		if rng.Intn(4) == 0 {
			if invoiceID, err := s.createInvoice(ctx, patient); err == nil {
				s.pool.add(&s.pool.invoices, invoiceID)
			}
		}
	}
	s.metrics.Booking.Record(latency, status == http.StatusCreated, status == http.StatusConflict)
}

func (s *Simulator) doPayment(ctx context.Context, rng *rand.Rand) {
	invoiceID, ok := s.pool.random(rng, &s.pool.invoices)
	if !ok {
		return
	}

	start := time.Now()
	status := s.pay(ctx, invoiceID, fmt.Sprintf("%d.%02d", 5+rng.Intn(40), rng.Intn(100)))
	// 422 means the invoice is settled or the amount exceeds what is due.
	s.metrics.Payment.Record(time.Since(start), status == http.StatusCreated, status == http.StatusUnprocessableEntity)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.random(rng, &s.pool.appointments)
	if !ok {
		return
	}

	start := time.Now()
	status, _ := s.do(ctx, s.staff, http.MethodGet, "/appointments/"+apptID.String(), nil)
	s.metrics.ReadByID.Record(time.Since(start), status == http.StatusOK, false)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patient := access.Actor{ID: s.pool.Patients[rng.Intn(len(s.pool.Patients))], Role: access.RolePatient}

	start := time.Now()
	status, _ := s.do(ctx, patient, http.MethodGet, "/appointments?limit=20&offset=0", nil)
	s.metrics.ListPatient.Record(time.Since(start), status == http.StatusOK, false)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	date := time.Now().AddDate(0, 0, 1+rng.Intn(7)).Format("2006-01-02")

	start := time.Now()
	status, _ := s.do(ctx, s.staff, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=%s", doctor, date), nil)
	s.metrics.Slots.Record(time.Since(start), status == http.StatusOK, false)
}

func (s *Simulator) book(ctx context.Context, doctor, patient uuid.UUID, at time.Time) (int, uuid.UUID) {
	status, body := s.do(ctx, s.staff, http.MethodPost, "/appointments", map[string]any{
		"doctor_id":    doctor,
		"patient_id":   patient,
		"scheduled_at": at.Format(time.RFC3339),
		"reason":       "simulated visit",
	})

	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	if status == http.StatusCreated {
		_ = json.Unmarshal(body, &resp)
	}
	return status, resp.ID
}

func (s *Simulator) createInvoice(ctx context.Context, patient uuid.UUID) (uuid.UUID, error) {
	status, body := s.do(ctx, s.staff, http.MethodPost, "/invoices", map[string]any{
		"patient_id": patient,
		"items": []map[string]any{
			{"description": "Consultation", "quantity": 1, "unit_price": "100.00"},
		},
		"tax_rate":           "0",
		"insurance_coverage": "0",
	})
	if status != http.StatusCreated {
		return uuid.Nil, fmt.Errorf("create invoice: status %d: %s", status, body)
	}

	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.ID, nil
}

func (s *Simulator) pay(ctx context.Context, invoiceID uuid.UUID, amount string) int {
	status, _ := s.do(ctx, s.staff, http.MethodPost, "/invoices/"+invoiceID.String()+"/payments", map[string]any{
		"amount": amount,
		"method": "card",
	})
	return status
}

// do sends one request as actor. Transport failures come back as status 0.
func (s *Simulator) do(ctx context.Context, actor access.Actor, method, path string, payload any) (int, []byte) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.HeaderActorID, actor.ID.String())
	req.Header.Set(api.HeaderActorRole, string(actor.Role))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

// CheckDatabase looks for double-booked slots and invoices whose balance
// disagrees with their payments.
func (s *Simulator) CheckDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	var overlaps int64
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.doctor_id = b.doctor_id
		 AND a.id < b.id
		 AND a.scheduled_at < b.scheduled_at + make_interval(secs => b.duration_s)
		 AND b.scheduled_at < a.scheduled_at + make_interval(secs => a.duration_s)
		WHERE a.status <> 'cancelled' AND b.status <> 'cancelled'
	`).Scan(&overlaps)
	if err != nil {
		return fmt.Errorf("check overlaps: %w", err)
	}
	atomic.AddInt64(&s.violations.DoubleBooked, overlaps)

	var mismatched int64
	err = pool.QueryRow(ctx, `
		SELECT count(*)
		FROM invoices i
		LEFT JOIN (
			SELECT invoice_id, sum(amount) AS paid FROM payments GROUP BY invoice_id
		) p ON p.invoice_id = i.id
		WHERE i.amount_paid <> COALESCE(p.paid, 0)
		   OR i.amount_paid > i.amount_total - i.insurance_coverage
	`).Scan(&mismatched)
	if err != nil {
		return fmt.Errorf("check balances: %w", err)
	}
	atomic.AddInt64(&s.violations.BalanceMismatch, mismatched)
	return nil
}

func (s *Simulator) violated() bool {
	return s.violations.DoubleBooked > 0 || s.violations.OverpaidRounds > 0 || s.violations.BalanceMismatch > 0
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Race rounds: %d\n", s.config.RaceRounds)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Payment", &s.metrics.Payment)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListPatient)
	printOperationReport("Available Slots", &s.metrics.Slots)

	fmt.Println("Consistency:")
	fmt.Printf("  Double-booked slots: %d\n", s.violations.DoubleBooked)
	fmt.Printf("  Overpaid race rounds: %d\n", s.violations.OverpaidRounds)
	fmt.Printf("  Invoices out of balance: %d\n", s.violations.BalanceMismatch)
	fmt.Println()
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}
