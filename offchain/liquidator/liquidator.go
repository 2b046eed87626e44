package liquidator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/openalpha/credit-engine/api"
)

// Config holds the liquidator bot configuration
type Config struct {
	PollInterval   time.Duration // How often to poll the monitor API
	SubmitInterval time.Duration // Time interval for batch submission
	APIBaseURL     string        // Monitor API base URL
	GRPCAddr       string        // Chain gRPC address for submission
	BatchSize      int           // Maximum jobs per batch submission
	LiquidateLimit int           // Maximum liquidatable accounts fetched per poll
	Cooldown       time.Duration // Minimum time between resubmissions of the same target
}

// DefaultConfig returns the default liquidator configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:   time.Second,
		SubmitInterval: 500 * time.Millisecond,
		APIBaseURL:     "http://localhost:8081",
		GRPCAddr:       "localhost:9090",
		BatchSize:      50,
		LiquidateLimit: 100,
		Cooldown:       10 * time.Second,
	}
}

// JobKind distinguishes the transaction a job resolves to
type JobKind int

const (
	JobExecuteTrigger JobKind = iota
	JobDeleverage
)

func (k JobKind) String() string {
	switch k {
	case JobExecuteTrigger:
		return "execute_trigger"
	case JobDeleverage:
		return "deleverage"
	default:
		return "unknown"
	}
}

// Job is one pending keeper transaction discovered by polling
type Job struct {
	ID         string // uuid
	Kind       JobKind
	AccountID  string
	OrderID    uint64 // trigger jobs only
	Denom      string // deleverage jobs only
	EnqueuedAt time.Time
	Attempts   int
}

// Key returns the dedup key for the job's target. Two jobs against the same
// trigger order or the same account/denom pair share a key.
func (j *Job) Key() string {
	if j.Kind == JobExecuteTrigger {
		return fmt.Sprintf("trigger/%s/%d", j.AccountID, j.OrderID)
	}
	return fmt.Sprintf("deleverage/%s/%s", j.AccountID, j.Denom)
}

// Liquidator is the offchain keeper bot. It polls the monitor API for
// executable trigger orders and liquidatable accounts, maintains a local
// watchlist ordered by health factor, and submits keeper transactions
// through the configured submitter.
type Liquidator struct {
	config    *Config
	monitor   MonitorClient
	submitter TxSubmitter

	jobs      *JobBuffer
	seen      *SeenCache
	watchlist *api.Watchlist

	mu            sync.RWMutex
	polledRounds  uint64
	submittedJobs uint64
	failedJobs    uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewLiquidator creates a new liquidator bot instance
func NewLiquidator(config *Config, monitor MonitorClient, submitter TxSubmitter) *Liquidator {
	if config == nil {
		config = DefaultConfig()
	}
	if monitor == nil {
		monitor = NewHTTPMonitorClient(config.APIBaseURL, 0)
	}
	if submitter == nil {
		submitter = NewMockSubmitter()
	}

	return &Liquidator{
		config:    config,
		monitor:   monitor,
		submitter: submitter,
		jobs:      NewJobBuffer(config.BatchSize),
		seen:      NewSeenCache(config.Cooldown),
		watchlist: api.NewWatchlist(),
		stopCh:    make(chan struct{}),
	}
}

// Start starts the poll and submit loops
func (l *Liquidator) Start(ctx context.Context) error {
	log.Println("Starting liquidator bot...")

	l.wg.Add(1)
	go l.pollLoop(ctx)

	l.wg.Add(1)
	go l.submitLoop(ctx)

	log.Println("Liquidator bot started")
	return nil
}

// Stop stops the liquidator bot
func (l *Liquidator) Stop() error {
	log.Println("Stopping liquidator bot...")
	close(l.stopCh)
	l.wg.Wait()
	log.Println("Liquidator bot stopped")
	return nil
}

// pollLoop periodically polls the monitor API and enqueues jobs
func (l *Liquidator) pollLoop(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			if err := l.pollOnce(ctx); err != nil {
				log.Printf("Error polling monitor: %v", err)
			}
		}
	}
}

// submitLoop periodically submits pending jobs to the chain
func (l *Liquidator) submitLoop(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.SubmitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Submit any remaining jobs before stopping
			l.submitPendingJobs(ctx)
			return
		case <-l.stopCh:
			l.submitPendingJobs(ctx)
			return
		case <-ticker.C:
			l.submitPendingJobs(ctx)
		}
	}
}

// pollOnce runs a single poll round: executable trigger orders first, then
// liquidatable accounts ordered riskiest first.
func (l *Liquidator) pollOnce(ctx context.Context) error {
	l.mu.Lock()
	l.polledRounds++
	l.mu.Unlock()

	orders, err := l.monitor.ExecutableTriggerOrders(ctx)
	if err != nil {
		return fmt.Errorf("fetch executable trigger orders: %w", err)
	}
	for _, order := range orders {
		l.enqueue(&Job{
			ID:         uuid.New().String(),
			Kind:       JobExecuteTrigger,
			AccountID:  order.AccountID,
			OrderID:    order.OrderID,
			EnqueuedAt: time.Now(),
		})
	}

	accounts, err := l.monitor.LiquidatableAccounts(ctx, l.config.LiquidateLimit)
	if err != nil {
		return fmt.Errorf("fetch liquidatable accounts: %w", err)
	}
	for _, acct := range accounts {
		if hf, err := math.LegacyNewDecFromStr(acct.LiquidationHealthFactor); err == nil {
			l.watchlist.Update(acct.AccountID, hf)
		}

		denom, err := l.pickDeleverageDenom(ctx, acct.AccountID)
		if err != nil {
			log.Printf("Error picking deleverage denom for account %s: %v", acct.AccountID, err)
			continue
		}
		if denom == "" {
			continue
		}
		l.enqueue(&Job{
			ID:         uuid.New().String(),
			Kind:       JobDeleverage,
			AccountID:  acct.AccountID,
			Denom:      denom,
			EnqueuedAt: time.Now(),
		})
	}

	return nil
}

// enqueue adds a job unless its target was submitted within the cooldown
func (l *Liquidator) enqueue(job *Job) {
	if !l.seen.TrySet(job.Key()) {
		return
	}
	l.jobs.Add(job)
}

// pickDeleverageDenom picks the position with the deepest unrealized loss.
// Closing the worst leg first restores health fastest.
func (l *Liquidator) pickDeleverageDenom(ctx context.Context, accountID string) (string, error) {
	positions, err := l.monitor.AccountPositions(ctx, accountID)
	if err != nil {
		return "", err
	}
	if len(positions) == 0 {
		return "", nil
	}

	denom := positions[0].Denom
	worst := math.LegacyZeroDec()
	for _, pos := range positions {
		pnl, err := math.LegacyNewDecFromStr(pos.UnrealizedPnl)
		if err != nil {
			continue
		}
		if pnl.LT(worst) {
			worst = pnl
			denom = pos.Denom
		}
	}
	return denom, nil
}

// submitPendingJobs flushes the job buffer to the submitter
func (l *Liquidator) submitPendingJobs(ctx context.Context) {
	jobs := l.jobs.Flush()
	if len(jobs) == 0 {
		return
	}

	log.Printf("Submitting %d keeper jobs to chain...", len(jobs))
	if err := l.submitter.SubmitJobs(ctx, jobs); err != nil {
		log.Printf("Error submitting jobs: %v", err)
		l.mu.Lock()
		l.failedJobs += uint64(len(jobs))
		l.mu.Unlock()
		// Re-add jobs to buffer for retry, dropping their cooldown marks so
		// the next poll round can also rediscover them.
		for _, job := range jobs {
			job.Attempts++
			l.seen.Delete(job.Key())
			l.jobs.Add(job)
		}
		return
	}

	l.mu.Lock()
	l.submittedJobs += uint64(len(jobs))
	l.mu.Unlock()
}

// Watchlist exposes the bot's local risk index
func (l *Liquidator) Watchlist() *api.Watchlist {
	return l.watchlist
}

// Stats returns liquidator statistics
type Stats struct {
	PolledRounds  uint64
	PendingJobs   int
	SubmittedJobs uint64
	FailedJobs    uint64
	WatchlistSize int
	SeenTargets   int
}

// GetStats returns current liquidator statistics
func (l *Liquidator) GetStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Stats{
		PolledRounds:  l.polledRounds,
		PendingJobs:   l.jobs.Len(),
		SubmittedJobs: l.submittedJobs,
		FailedJobs:    l.failedJobs,
		WatchlistSize: l.watchlist.Len(),
		SeenTargets:   l.seen.Len(),
	}
}
