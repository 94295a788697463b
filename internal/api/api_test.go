package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maltedev/marketplace-scraper/internal/queue"
	"github.com/maltedev/marketplace-scraper/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu       sync.Mutex
	requests []scraper.Request
	err      error
	active   int
	maxSeen  int
}

func (r *recordingRunner) Run(_ context.Context, req scraper.Request) (*scraper.Report, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.active++
	if r.active > r.maxSeen {
		r.maxSeen = r.active
	}
	r.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	r.mu.Lock()
	r.active--
	r.mu.Unlock()

	return &scraper.Report{Mode: req.Mode, Input: req.Input, Files: []string{req.Input + ".xlsx"}}, r.err
}

func (r *recordingRunner) seen() []scraper.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scraper.Request(nil), r.requests...)
}

type MockOutbox struct {
	mock.Mock
}

func (m *MockOutbox) Stats(ctx context.Context) (int64, int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T, runner Runner, outbox OutboxStats) (*httptest.Server, *Manager) {
	t.Helper()

	q := queue.NewInMemoryQueue()
	manager := NewManager(q, runner, discard())
	handlers := NewHandlers(manager, outbox, discard())

	srv := httptest.NewServer(NewRouter(handlers, discard()))
	t.Cleanup(func() {
		srv.Close()
		q.Close()
	})
	return srv, manager
}

func postRun(t *testing.T, srv *httptest.Server, body string) (*http.Response, map[string]string) {
	t.Helper()

	resp, err := http.Post(srv.URL+"/api/v1/runs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func getJob(t *testing.T, srv *httptest.Server, id string) (*http.Response, *Job) {
	t.Helper()

	resp, err := http.Get(srv.URL + "/api/v1/runs/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	var job Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	return resp, &job
}

func TestCreateRun_Queued(t *testing.T) {
	srv, manager := newServer(t, &recordingRunner{}, nil)

	resp, out := postRun(t, srv, `{"mode": 0, "input": "кружка"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, StatusPending, out["status"])
	require.NotEmpty(t, out["job_id"])

	_, job := getJob(t, srv, out["job_id"])
	require.NotNil(t, job)
	assert.Equal(t, scraper.ModeSearch, job.Mode)
	assert.Equal(t, "кружка", job.Input)
	assert.Equal(t, 1, manager.GetStats().Queued)
}

func TestCreateRun_ModeByName(t *testing.T) {
	srv, _ := newServer(t, &recordingRunner{}, nil)

	resp, out := postRun(t, srv, `{"mode": "batch-offers", "input": "111 222", "tag": "march"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	_, job := getJob(t, srv, out["job_id"])
	require.NotNil(t, job)
	assert.Equal(t, scraper.ModeBatchOffers, job.Mode)
	assert.Equal(t, "march", job.Tag)
}

func TestCreateRun_Rejected(t *testing.T) {
	srv, manager := newServer(t, &recordingRunner{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed body", `{"mode":`},
		{"unknown mode", `{"mode": 9, "input": "x"}`},
		{"unknown mode name", `{"mode": "scrape", "input": "x"}`},
		{"empty input", `{"mode": 1, "input": "  "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := postRun(t, srv, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, out["error"])
		})
	}

	assert.Zero(t, manager.GetStats().TotalJobs)
}

func TestCreateRun_CatalogWithoutInput(t *testing.T) {
	srv, _ := newServer(t, &recordingRunner{}, nil)

	resp, _ := postRun(t, srv, `{"mode": "catalog"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestGetRun_NotFound(t *testing.T) {
	srv, _ := newServer(t, &recordingRunner{}, nil)

	resp, job := getJob(t, srv, "missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Nil(t, job)
}

func TestWorker_RunsJobsInOrderOneAtATime(t *testing.T) {
	runner := &recordingRunner{}
	srv, manager := newServer(t, runner, nil)

	var ids []string
	for _, input := range []string{"a", "b", "c"} {
		_, out := postRun(t, srv, `{"mode": 0, "input": "`+input+`"}`)
		ids = append(ids, out["job_id"])
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.StartWorker(ctx)

	require.Eventually(t, func() bool {
		return manager.GetStats().CompletedJobs == 3
	}, 2*time.Second, 10*time.Millisecond)

	seen := runner.seen()
	require.Len(t, seen, 3)
	assert.Equal(t, "a", seen[0].Input)
	assert.Equal(t, "b", seen[1].Input)
	assert.Equal(t, "c", seen[2].Input)
	runner.mu.Lock()
	assert.Equal(t, 1, runner.maxSeen)
	runner.mu.Unlock()

	_, job := getJob(t, srv, ids[1])
	require.NotNil(t, job)
	assert.Equal(t, StatusCompleted, job.Status)
	require.NotNil(t, job.Report)
	assert.Equal(t, []string{"b.xlsx"}, job.Report.Files)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
}

func TestWorker_FailedJob(t *testing.T) {
	runner := &recordingRunner{err: errors.New("offer lookup failed: product 1")}
	srv, manager := newServer(t, runner, nil)

	_, out := postRun(t, srv, `{"mode": 1, "input": "1"}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.StartWorker(ctx)

	require.Eventually(t, func() bool {
		return manager.GetStats().FailedJobs == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, job := getJob(t, srv, out["job_id"])
	require.NotNil(t, job)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Contains(t, job.Error, "offer lookup failed")
	require.NotNil(t, job.Report)
}

func TestWorker_StopsWhenQueueCloses(t *testing.T) {
	q := queue.NewInMemoryQueue()
	manager := NewManager(q, &recordingRunner{}, discard())

	done := make(chan struct{})
	go func() {
		manager.StartWorker(context.Background())
		close(done)
	}()

	require.NoError(t, q.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	srv, manager := newServer(t, &recordingRunner{}, nil)

	base := time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)
	tick := 0
	manager.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	postRun(t, srv, `{"mode": 0, "input": "first"}`)
	postRun(t, srv, `{"mode": 0, "input": "second"}`)

	resp, err := http.Get(srv.URL + "/api/v1/runs")
	require.NoError(t, err)
	defer resp.Body.Close()

	var jobs []Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	require.Len(t, jobs, 2)
	assert.Equal(t, "second", jobs[0].Input)
	assert.Equal(t, "first", jobs[1].Input)
}

func TestManager_EvictsFinishedJobs(t *testing.T) {
	manager := NewManager(queue.NewInMemoryQueue(), &recordingRunner{}, discard())

	for i := 0; i < maxJobs; i++ {
		job, err := manager.CreateJob(scraper.Request{Mode: scraper.ModeSearch, Input: "q"})
		require.NoError(t, err)
		manager.update(job.ID, func(j *Job) { j.Status = StatusCompleted })
	}

	_, err := manager.CreateJob(scraper.Request{Mode: scraper.ModeSearch, Input: "q"})
	require.NoError(t, err)

	stats := manager.GetStats()
	assert.Equal(t, maxJobs, stats.TotalJobs)
	assert.Equal(t, 1, stats.PendingJobs)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		pending  int64
		dead     int64
		err      error
		status   int
		expected string
	}{
		{"ok", 3, 0, nil, http.StatusOK, "ok"},
		{"backlog", 1500, 0, nil, http.StatusOK, "warning"},
		{"dead letters", 0, 101, nil, http.StatusServiceUnavailable, "error"},
		{"outbox down", 0, 0, errors.New("connection refused"), http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outbox := new(MockOutbox)
			outbox.On("Stats", mock.Anything).Return(tt.pending, tt.dead, tt.err)

			srv, _ := newServer(t, &recordingRunner{}, outbox)

			resp, err := http.Get(srv.URL + "/health")
			require.NoError(t, err)
			defer resp.Body.Close()

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.expected, body["status"])
			outbox.AssertExpectations(t)
		})
	}
}

func TestHealth_WithoutOutbox(t *testing.T) {
	srv, _ := newServer(t, &recordingRunner{}, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotContains(t, body, "outbox")
}
