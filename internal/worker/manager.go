package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"recscribe/internal/models"
	"recscribe/internal/recordings"
	"recscribe/internal/redis"
)

var (
	ErrUnsupportedJob = errors.New("key is neither a recording nor a results document")
	ErrStopped        = errors.New("worker manager stopped")
)

// DispatcherConfig sizes the pool and the intake queue.
type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
	// JobTimeout bounds a single Handle call; zero means no limit.
	JobTimeout time.Duration
}

// Manager accepts pipeline jobs, runs them on the pool and tracks status.
type Manager struct {
	handler    Handler
	dispatcher *Dispatcher
	state      *jobState
	cache      *stateRedis
	jobTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
}

func NewManager(handler Handler, client *redis.Client, cfg DispatcherConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		handler:    handler,
		state:      newJobState(),
		cache:      newStateCache(client),
		jobTimeout: cfg.JobTimeout,
		ctx:        ctx,
		cancel:     cancel,
	}
	m.cache.startListener(ctx, m.state.setIfNewer, m.state.remove)
	m.dispatcher = NewDispatcher(cfg.MinWorkers, cfg.MaxWorkers, cfg.QueueSize, m, cfg.IdleTimeout)
	return m
}

// Submit queues key for the pipeline stage its name selects.
func (m *Manager) Submit(key string) (models.JobStatus, error) {
	kind := recordings.Classify(key)
	if kind == recordings.KindIgnored {
		return models.JobStatus{}, fmt.Errorf("%w: %s", ErrUnsupportedJob, key)
	}
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		return models.JobStatus{}, ErrStopped
	}

	job := Job{
		ID:         uuid.NewString(),
		Type:       Process,
		Kind:       kind,
		Key:        key,
		EnqueuedAt: time.Now().UTC(),
	}
	status := m.update(job, models.JobQueued, nil)
	if err := m.dispatcher.Submit(job); err != nil {
		m.state.remove(job.ID)
		m.cache.deleteStatus(m.ctx, job.ID)
		return models.JobStatus{}, err
	}
	debugLog("[manager] queued %s job %s for %s", kind, job.ID, key)
	return status, nil
}

// Status looks the job up locally, then in redis.
func (m *Manager) Status(ctx context.Context, id string) (models.JobStatus, bool) {
	if status, ok := m.state.get(id); ok {
		return status, true
	}
	return m.cache.loadStatus(ctx, id)
}

// Stop waits for running jobs and fails everything still queued.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	dropped := m.dispatcher.stop()
	for _, job := range dropped {
		m.update(job, models.JobFailed, ErrStopped)
	}
	m.cancel()
}

func (m *Manager) execute(job Job) {
	m.update(job, models.JobRunning, nil)

	ctx := m.ctx
	if m.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.jobTimeout)
		defer cancel()
	}

	entry := log.WithFields(logrus.Fields{"job_id": job.ID, "kind": job.Kind, "key": job.Key})
	start := time.Now()
	err := m.handle(ctx, job)
	if err != nil {
		entry.WithError(err).Error("job failed")
		m.update(job, models.JobFailed, err)
		return
	}
	entry.WithField("elapsed", time.Since(start).String()).Info("job done")
	m.update(job, models.JobDone, nil)
}

func (m *Manager) handle(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.handler.Handle(ctx, job)
}

func (m *Manager) update(job Job, state models.JobState, err error) models.JobStatus {
	status := models.JobStatus{
		ID:        job.ID,
		Kind:      string(job.Kind),
		Key:       job.Key,
		State:     state,
		UpdatedAt: time.Now().UTC(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	m.state.set(status)
	m.cache.storeStatus(context.Background(), status)
	return status
}
