package liquidator

import (
	"sync"
	"time"
)

// JobBuffer is a thread-safe buffer for keeper jobs pending submission
type JobBuffer struct {
	jobs    []*Job
	maxSize int
	mu      sync.Mutex
}

// NewJobBuffer creates a new job buffer with the given max batch size
func NewJobBuffer(maxSize int) *JobBuffer {
	if maxSize <= 0 {
		maxSize = 50
	}
	return &JobBuffer{
		jobs:    make([]*Job, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add adds a job to the buffer
func (b *JobBuffer) Add(job *Job) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs = append(b.jobs, job)
}

// AddBatch adds multiple jobs to the buffer
func (b *JobBuffer) AddBatch(jobs []*Job) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs = append(b.jobs, jobs...)
}

// Flush returns all jobs and clears the buffer
func (b *JobBuffer) Flush() []*Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	jobs := b.jobs
	b.jobs = make([]*Job, 0, b.maxSize)
	return jobs
}

// FlushBatch returns up to maxSize jobs and removes them from the buffer
func (b *JobBuffer) FlushBatch() []*Job {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.jobs) == 0 {
		return nil
	}

	count := b.maxSize
	if len(b.jobs) < count {
		count = len(b.jobs)
	}

	batch := b.jobs[:count]
	b.jobs = b.jobs[count:]
	return batch
}

// Len returns the number of jobs in the buffer
func (b *JobBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.jobs)
}

// IsFull returns true if the buffer is at or above max size
func (b *JobBuffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.jobs) >= b.maxSize
}

// Clear removes all jobs from the buffer
func (b *JobBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs = make([]*Job, 0, b.maxSize)
}

// Peek returns the jobs without removing them (for inspection)
func (b *JobBuffer) Peek() []*Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]*Job, len(b.jobs))
	copy(result, b.jobs)
	return result
}

// SeenCache is a thread-safe TTL set of recently enqueued job targets.
// It keeps the bot from flooding the chain with duplicate transactions
// while a target stays in the poll results across rounds.
type SeenCache struct {
	entries map[string]time.Time
	ttl     time.Duration
	mu      sync.Mutex
}

// NewSeenCache creates a new seen cache with the given cooldown TTL
func NewSeenCache(ttl time.Duration) *SeenCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &SeenCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
	}
}

// TrySet marks a key as seen. Returns false if the key is already marked
// and its cooldown has not expired yet.
func (c *SeenCache) TrySet(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if expiry, exists := c.entries[key]; exists && now.Before(expiry) {
		return false
	}
	c.entries[key] = now.Add(c.ttl)
	return true
}

// Seen returns true if the key is marked and not expired
func (c *SeenCache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	expiry, exists := c.entries[key]
	return exists && time.Now().Before(expiry)
}

// Delete removes a key from the cache
func (c *SeenCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Sweep removes expired entries
func (c *SeenCache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, expiry := range c.entries {
		if now.After(expiry) {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of entries, expired included
func (c *SeenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries
func (c *SeenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]time.Time)
}
