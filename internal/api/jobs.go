package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/marketplace-scraper/internal/queue"
	"github.com/maltedev/marketplace-scraper/internal/scraper"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// maxJobs bounds the job table; the oldest finished jobs are evicted first.
const maxJobs = 100

var ErrJobNotFound = errors.New("job not found")

// Runner executes one run request. The worker calls it from a single
// goroutine, one request at a time.
type Runner interface {
	Run(ctx context.Context, req scraper.Request) (*scraper.Report, error)
}

type RunnerFunc func(ctx context.Context, req scraper.Request) (*scraper.Report, error)

func (f RunnerFunc) Run(ctx context.Context, req scraper.Request) (*scraper.Report, error) {
	return f(ctx, req)
}

// Job represents a queued run
type Job struct {
	ID          string          `json:"id"`
	Mode        scraper.Mode    `json:"mode"`
	Input       string          `json:"input"`
	Tag         string          `json:"tag,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Report      *scraper.Report `json:"report,omitempty"`
	Error       string          `json:"error,omitempty"`
}

type Stats struct {
	TotalJobs     int  `json:"total_jobs"`
	PendingJobs   int  `json:"pending_jobs"`
	RunningJobs   int  `json:"running_jobs"`
	CompletedJobs int  `json:"completed_jobs"`
	FailedJobs    int  `json:"failed_jobs"`
	Queued        int  `json:"queued"`
	WorkerBusy    bool `json:"worker_busy"`
}

// Manager keeps the job table and feeds the queue to a single worker.
type Manager struct {
	queue  queue.Queue
	runner Runner
	logger *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewManager(q queue.Queue, runner Runner, logger *slog.Logger) *Manager {
	return &Manager{
		queue:  q,
		runner: runner,
		logger: logger.With("component", "job_manager"),
		jobs:   make(map[string]*Job),
		now:    time.Now,
	}
}

// CreateJob validates req and queues it.
func (m *Manager) CreateJob(req scraper.Request) (*Job, error) {
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("%w: %d", scraper.ErrInvalidMode, int(req.Mode))
	}
	if req.Mode != scraper.ModeCatalog && strings.TrimSpace(req.Input) == "" {
		return nil, fmt.Errorf("%w: input is required for mode %s", scraper.ErrEmptyInput, req.Mode)
	}

	job := &Job{
		ID:        uuid.New().String(),
		Mode:      req.Mode,
		Input:     req.Input,
		Tag:       req.Tag,
		Status:    StatusPending,
		CreatedAt: m.now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.evictLocked()
	m.mu.Unlock()

	err := m.queue.Push(&queue.Task{
		ID:        job.ID,
		Mode:      int(req.Mode),
		Input:     req.Input,
		Tag:       req.Tag,
		CreatedAt: job.CreatedAt,
	})
	if err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "mode", req.Mode.String(), "input", req.Input)
	return job.snapshot(), nil
}

func (m *Manager) GetJob(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.snapshot(), nil
}

// ListJobs returns the jobs newest first.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

func (m *Manager) GetStats() *Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{TotalJobs: len(m.jobs), Queued: m.queue.Size()}
	for _, job := range m.jobs {
		switch job.Status {
		case StatusPending:
			stats.PendingJobs++
		case StatusRunning:
			stats.RunningJobs++
			stats.WorkerBusy = true
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
	}
	return stats
}

// StartWorker runs queued jobs one after another until ctx ends or the
// queue is closed.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
				m.logger.Info("job worker stopping")
				return
			}
			m.logger.Error("failed to pop job", "error", err)
			continue
		}

		m.processJob(ctx, task)
	}
}

func (m *Manager) processJob(ctx context.Context, task *queue.Task) {
	req := scraper.Request{Mode: scraper.Mode(task.Mode), Input: task.Input, Tag: task.Tag}

	m.update(task.ID, func(job *Job) {
		now := m.now()
		job.Status = StatusRunning
		job.StartedAt = &now
	})
	m.logger.Info("processing job", "id", task.ID, "mode", req.Mode.String())

	report, err := m.runner.Run(ctx, req)

	m.update(task.ID, func(job *Job) {
		now := m.now()
		job.CompletedAt = &now
		job.Report = report
		if err != nil {
			job.Status = StatusFailed
			job.Error = err.Error()
			return
		}
		job.Status = StatusCompleted
	})

	if err != nil {
		m.logger.Error("job failed", "id", task.ID, "error", err)
		return
	}
	m.logger.Info("job completed", "id", task.ID)
}

func (m *Manager) update(id string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[id]; ok {
		fn(job)
	}
}

// evictLocked drops the oldest finished jobs once the table is full.
func (m *Manager) evictLocked() {
	if len(m.jobs) <= maxJobs {
		return
	}

	finished := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if job.Status == StatusCompleted || job.Status == StatusFailed {
			finished = append(finished, job)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].CreatedAt.Before(finished[j].CreatedAt)
	})

	for _, job := range finished {
		if len(m.jobs) <= maxJobs {
			return
		}
		delete(m.jobs, job.ID)
	}
}

func (j *Job) snapshot() *Job {
	c := *j
	return &c
}
