package liquidator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/openalpha/credit-engine/pkg/grpcclient"
)

// TxSubmitter defines the interface for submitting keeper transactions
type TxSubmitter interface {
	// SubmitJobs submits a batch of keeper jobs to the chain
	SubmitJobs(ctx context.Context, jobs []*Job) error

	// GetStatus returns the submitter status
	GetStatus() SubmitterStatus
}

// SubmitterStatus represents the status of a submitter
type SubmitterStatus struct {
	Connected         bool
	PendingTxCount    int
	LastSubmitTime    time.Time
	LastError         string
	TotalSubmissions  int64
	FailedSubmissions int64
}

// MockSubmitter is a mock implementation for testing
type MockSubmitter struct {
	mu              sync.Mutex
	jobs            []*Job
	status          SubmitterStatus
	simulateFailure bool
}

// NewMockSubmitter creates a new mock submitter
func NewMockSubmitter() *MockSubmitter {
	return &MockSubmitter{
		jobs: make([]*Job, 0),
		status: SubmitterStatus{
			Connected: true,
		},
	}
}

// SubmitJobs submits jobs (mock implementation)
func (s *MockSubmitter) SubmitJobs(ctx context.Context, jobs []*Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.simulateFailure {
		s.status.FailedSubmissions++
		s.status.LastError = "simulated failure"
		return fmt.Errorf("simulated failure")
	}

	s.jobs = append(s.jobs, jobs...)
	s.status.TotalSubmissions++
	s.status.LastSubmitTime = time.Now()

	log.Printf("[MockSubmitter] Submitted %d jobs", len(jobs))
	for _, job := range jobs {
		log.Printf("  Job: %s, Kind: %s, Account: %s", job.ID, job.Kind, job.AccountID)
	}

	return nil
}

// GetStatus returns the mock submitter status
func (s *MockSubmitter) GetStatus() SubmitterStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// GetSubmittedJobs returns all submitted jobs (for testing)
func (s *MockSubmitter) GetSubmittedJobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*Job, len(s.jobs))
	copy(result, s.jobs)
	return result
}

// SetSimulateFailure enables or disables failure simulation
func (s *MockSubmitter) SetSimulateFailure(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simulateFailure = fail
}

// Clear clears all submitted data (for testing)
func (s *MockSubmitter) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make([]*Job, 0)
}

// GRPCSubmitter submits keeper jobs through the gRPC tx client. Signing,
// connection pooling and per-call retry live in the client itself.
type GRPCSubmitter struct {
	client *grpcclient.Client

	mu     sync.Mutex
	status SubmitterStatus
}

// GRPCSubmitterConfig holds configuration for GRPCSubmitter
type GRPCSubmitterConfig struct {
	GRPCAddr   string
	ChainID    string
	PrivKeyHex string
}

// NewGRPCSubmitter creates a submitter backed by a signing gRPC client
func NewGRPCSubmitter(config *GRPCSubmitterConfig) (*GRPCSubmitter, error) {
	clientConfig := grpcclient.DefaultConfig()
	if config.GRPCAddr != "" {
		clientConfig.GRPCAddr = config.GRPCAddr
	}
	if config.ChainID != "" {
		clientConfig.ChainID = config.ChainID
	}

	client, err := grpcclient.NewClient(clientConfig, config.PrivKeyHex)
	if err != nil {
		return nil, fmt.Errorf("create grpc client: %w", err)
	}

	return &GRPCSubmitter{
		client: client,
		status: SubmitterStatus{
			Connected: true,
		},
	}, nil
}

// SubmitJobs submits each job as its own transaction. A failed job does not
// block the rest of the batch; the first failure is reported after all jobs
// ran so the caller can requeue.
func (s *GRPCSubmitter) SubmitJobs(ctx context.Context, jobs []*Job) error {
	if len(jobs) == 0 {
		return nil
	}

	s.mu.Lock()
	s.status.PendingTxCount = len(jobs)
	s.mu.Unlock()

	var firstErr error
	failed := 0
	for _, job := range jobs {
		result := s.submitJob(ctx, job)
		if !result.Success {
			failed++
			if firstErr == nil {
				firstErr = result.Error
			}
			log.Printf("Job %s (%s) failed: %v", job.ID, job.Kind, result.Error)
			continue
		}
		log.Printf("Job %s (%s) submitted: tx=%s latency=%v", job.ID, job.Kind, result.TxHash, result.Latency)
	}

	s.mu.Lock()
	s.status.PendingTxCount = 0
	s.status.LastSubmitTime = time.Now()
	if failed > 0 {
		s.status.FailedSubmissions += int64(failed)
		s.status.LastError = firstErr.Error()
	}
	s.status.TotalSubmissions += int64(len(jobs) - failed)
	s.mu.Unlock()

	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed: %w", failed, len(jobs), firstErr)
	}
	return nil
}

// submitJob maps a job to the matching tx client call
func (s *GRPCSubmitter) submitJob(ctx context.Context, job *Job) *grpcclient.SubmitResult {
	switch job.Kind {
	case JobExecuteTrigger:
		return s.client.ExecuteTriggerOrder(ctx, job.AccountID, job.OrderID)
	case JobDeleverage:
		return s.client.Deleverage(ctx, job.AccountID, job.Denom)
	default:
		return &grpcclient.SubmitResult{Error: fmt.Errorf("unknown job kind: %v", job.Kind)}
	}
}

// GetStatus returns the submitter status
func (s *GRPCSubmitter) GetStatus() SubmitterStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close closes the underlying gRPC connections
func (s *GRPCSubmitter) Close() error {
	return s.client.Close()
}

// SubmitterFactory creates submitters based on configuration
type SubmitterFactory struct{}

// NewSubmitterFactory creates a new submitter factory
func NewSubmitterFactory() *SubmitterFactory {
	return &SubmitterFactory{}
}

// Create creates a new submitter based on the type
func (f *SubmitterFactory) Create(submitterType string, config *GRPCSubmitterConfig) (TxSubmitter, error) {
	switch submitterType {
	case "grpc":
		return NewGRPCSubmitter(config)
	case "mock":
		return NewMockSubmitter(), nil
	default:
		return NewMockSubmitter(), nil
	}
}
