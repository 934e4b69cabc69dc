package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-queue-backend/internal/appointment"
)

type SimConfig struct {
	APIBaseURL string
	Doctor     string
	Date       string
	Requests   int
	Workers    int
	Timeout    time.Duration
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

func (om *OperationMetrics) Stats() (avg, fastest, slowest, p50, p95 time.Duration) {
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
	fastest = latencies[0]
	slowest = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, fastest, slowest, p50, p95
}

func percentileIndex(n, pct int) int {
	idx := n * pct / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Simulator struct {
	config   SimConfig
	client   *http.Client
	faker    *gofakeit.Faker
	fakerMu  sync.Mutex
	booking  OperationMetrics
	numbers  []int
	firstErr error
	numMu    sync.Mutex
}

func main() {
	cfg := SimConfig{}

	cmd := &cobra.Command{
		Use:          "simulate",
		Short:        "Book many appointments for one doctor and day concurrently and check the queue",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfig(cfg); err != nil {
				return err
			}
			sim := &Simulator{
				config: cfg,
				client: &http.Client{Timeout: cfg.Timeout},
				faker:  gofakeit.New(0),
			}
			if err := sim.Run(cmd.Context()); err != nil {
				return err
			}
			sim.PrintReport()
			return sim.Verify(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.APIBaseURL, "api", envOr("SIM_API_BASE_URL", "http://localhost:8080"), "API base URL")
	flags.StringVar(&cfg.Doctor, "doctor", "Dr. Simulation", "Doctor every request books with")
	flags.StringVar(&cfg.Date, "date", time.Now().Format(appointment.DateLayout), "Day to book, YYYY-MM-DD")
	flags.IntVar(&cfg.Requests, "requests", 100, "Number of bookings to send")
	flags.IntVar(&cfg.Workers, "workers", 20, "Concurrent requests in flight")
	flags.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "Per-request timeout")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Requests <= 0 {
		return fmt.Errorf("--requests must be > 0")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("--workers must be > 0")
	}
	if strings.TrimSpace(cfg.Doctor) == "" {
		return fmt.Errorf("--doctor is required")
	}
	if _, err := appointment.ParseDate(cfg.Date); err != nil {
		return err
	}
	u, err := url.ParseRequestURI(cfg.APIBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("--api must be an http(s) URL, got %q", cfg.APIBaseURL)
	}
	return nil
}

// Run fires all bookings with at most Workers in flight.
func (s *Simulator) Run(ctx context.Context) error {
	fmt.Printf("booking %d appointments for %q on %s with %d workers\n",
		s.config.Requests, s.config.Doctor, s.config.Date, s.config.Workers)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)

	for i := 0; i < s.config.Requests; i++ {
		g.Go(func() error {
			s.doBooking(ctx, i)
			return nil
		})
	}
	return g.Wait()
}

func (s *Simulator) doBooking(ctx context.Context, i int) {
	s.fakerMu.Lock()
	patient := s.faker.Name()
	s.fakerMu.Unlock()

	start := time.Now()
	success, conflict := false, false

	resp, err := s.postBooking(ctx, patient, i)
	latency := time.Since(start)

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			var created struct {
				QueueNumber int `json:"queue_number"`
			}
			if json.NewDecoder(resp.Body).Decode(&created) == nil {
				success = true
				s.numMu.Lock()
				s.numbers = append(s.numbers, created.QueueNumber)
				s.numMu.Unlock()
			}
		case http.StatusConflict:
			conflict = true
		}
	} else {
		s.recordFailure(err)
	}

	s.booking.Record(latency, success, conflict)
}

func (s *Simulator) postBooking(ctx context.Context, patient string, i int) (*http.Response, error) {
	body, err := json.Marshal(map[string]string{
		"patient_name": patient,
		"doctor_name":  s.config.Doctor,
		"time_slot":    fmt.Sprintf("%sT%02d:%02d:00", s.config.Date, 8+(i/60)%10, i%60),
	})
	if err != nil {
		return nil, fmt.Errorf("encode booking: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/api/appointments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build booking request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return s.client.Do(req)
}

// recordFailure keeps the first transport error for the report.
func (s *Simulator) recordFailure(err error) {
	s.numMu.Lock()
	defer s.numMu.Unlock()
	if s.firstErr == nil {
		s.firstErr = err
	}
}

// Verify checks that this run was handed a contiguous block of numbers and
// that the server's queue for the day is exactly 1..N with every issued
// number in it. The doctor may already have had bookings that day, so the
// block does not have to start at 1.
func (s *Simulator) Verify(ctx context.Context) error {
	s.numMu.Lock()
	got := append([]int(nil), s.numbers...)
	firstErr := s.firstErr
	s.numMu.Unlock()
	sort.Ints(got)

	if len(got) == 0 {
		if firstErr != nil {
			return fmt.Errorf("no bookings succeeded: %w", firstErr)
		}
		return fmt.Errorf("no bookings succeeded")
	}
	if err := checkContiguous(got); err != nil {
		return fmt.Errorf("issued queue numbers: %w", err)
	}

	target := fmt.Sprintf("%s/api/appointments/%s?date_str=%s",
		s.config.APIBaseURL, url.PathEscape(s.config.Doctor), url.QueryEscape(s.config.Date))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build queue request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch queue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch queue: unexpected status %d", resp.StatusCode)
	}

	var queue []struct {
		QueueNumber int `json:"queue_number"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&queue); err != nil {
		return fmt.Errorf("decode queue: %w", err)
	}

	stored := make([]int, 0, len(queue))
	for _, q := range queue {
		stored = append(stored, q.QueueNumber)
	}
	sort.Ints(stored)

	if err := checkSequence(stored); err != nil {
		return fmt.Errorf("stored queue: %w", err)
	}
	if last := got[len(got)-1]; last > len(stored) {
		return fmt.Errorf("issued number %d missing from stored queue of %d", last, len(stored))
	}

	fmt.Printf("queue verified: %d numbers (%d..%d), no gaps or duplicates\n", len(got), got[0], got[len(got)-1])
	return nil
}

// checkContiguous reports whether sorted runs first, first+1, ... with no
// gaps or duplicates.
func checkContiguous(sorted []int) error {
	for i, n := range sorted {
		if want := sorted[0] + i; n != want {
			return fmt.Errorf("expected %d at position %d, got %d", want, i, n)
		}
	}
	return nil
}

func checkSequence(sorted []int) error {
	for i, n := range sorted {
		if n != i+1 {
			return fmt.Errorf("expected %d at position %d, got %d", i+1, i, n)
		}
	}
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Doctor: %s  Date: %s\n", s.config.Doctor, s.config.Date)
	fmt.Printf("Requests: %d  Workers: %d\n", s.config.Requests, s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.booking)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, fastest, slowest, p50, p95 := om.Stats()

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
		avg.Round(time.Millisecond), fastest.Round(time.Millisecond), slowest.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
