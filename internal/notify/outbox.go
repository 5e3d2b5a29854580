package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/booking"
	"github.com/MimeLyc/carshop-agent/pkg/log"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Job is one queued confirmation email.
type Job struct {
	ID           string               `json:"id"`
	DedupeKey    string               `json:"dedupe_key"`
	Confirmation booking.Confirmation `json:"confirmation"`
	Status       Status               `json:"status"`
	Error        string               `json:"error,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Store persists outbox jobs so pending mail survives a restart.
type Store interface {
	LoadOutboxJobs(ctx context.Context) ([]*Job, error)
	UpsertOutboxJob(ctx context.Context, job *Job) error
	DeleteOutboxJob(ctx context.Context, jobID string) error
}

type Executor func(ctx context.Context, job *Job) error

var ErrOutboxStopped = errors.New("outbox is stopped")

// Outbox delivers confirmations on background workers. Jobs are deduped by
// booking id while pending or running, and are not retried.
type Outbox struct {
	workerCount int
	maxJobs     int
	sendTimeout time.Duration
	store       Store
	logger      *log.Logger

	mu         sync.RWMutex
	jobs       map[string]*Job
	dedupe     map[string]string
	started    bool
	stopped    bool
	pendingIDs chan string
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewOutbox(workerCount int, store Store) *Outbox {
	if workerCount <= 0 {
		workerCount = 1
	}
	o := &Outbox{
		workerCount: workerCount,
		maxJobs:     500,
		sendTimeout: 30 * time.Second,
		store:       store,
		logger:      log.Named("outbox"),
		jobs:        make(map[string]*Job),
		dedupe:      make(map[string]string),
		pendingIDs:  make(chan string, 256),
		stopCh:      make(chan struct{}),
	}
	o.hydrateFromStore(context.Background())
	return o
}

// Confirm queues c. It satisfies booking.Confirmer.
func (o *Outbox) Confirm(_ context.Context, c booking.Confirmation) error {
	o.mu.RLock()
	stopped := o.stopped
	o.mu.RUnlock()
	if stopped {
		return ErrOutboxStopped
	}
	o.Enqueue(c)
	return nil
}

// Enqueue adds a job unless one for the same booking is still in flight.
// The bool reports whether a new job was created.
func (o *Outbox) Enqueue(c booking.Confirmation) (*Job, bool) {
	now := time.Now()
	key := c.BookingID

	o.mu.Lock()
	if id, ok := o.dedupe[key]; ok && key != "" {
		if existing, exists := o.jobs[id]; exists {
			snapshot := cloneJob(existing)
			o.mu.Unlock()
			return snapshot, false
		}
		delete(o.dedupe, key)
	}

	job := &Job{
		ID:           "outbox-" + uuid.NewString(),
		DedupeKey:    key,
		Confirmation: c,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	o.jobs[job.ID] = job
	if key != "" {
		o.dedupe[key] = job.ID
	}
	started := o.started
	snapshot := cloneJob(job)
	o.mu.Unlock()

	o.persistJob(snapshot)
	if started {
		o.enqueuePendingID(job.ID)
	}
	return snapshot, true
}

func (o *Outbox) Get(id string) (*Job, bool) {
	o.mu.RLock()
	job, ok := o.jobs[id]
	o.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

func (o *Outbox) List() []*Job {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ret := make([]*Job, 0, len(o.jobs))
	for _, job := range o.jobs {
		ret = append(ret, cloneJob(job))
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].CreatedAt.Before(ret[j].CreatedAt) })
	return ret
}

// Counts reports how many jobs are in each status.
func (o *Outbox) Counts() map[Status]int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := map[Status]int{StatusPending: 0, StatusRunning: 0, StatusSent: 0, StatusFailed: 0}
	for _, job := range o.jobs {
		out[job.Status]++
	}
	return out
}

func (o *Outbox) Start(exec Executor) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true

	pending := make([]*Job, 0)
	for _, job := range o.jobs {
		if job.Status == StatusPending {
			pending = append(pending, job)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	o.mu.Unlock()

	for _, job := range pending {
		o.enqueuePendingID(job.ID)
	}

	for range o.workerCount {
		o.wg.Add(1)
		go o.worker(exec)
	}
}

func (o *Outbox) Stop() {
	o.stopOnce.Do(func() {
		o.mu.Lock()
		o.stopped = true
		o.mu.Unlock()
		close(o.stopCh)
		o.wg.Wait()
	})
}

func (o *Outbox) worker(exec Executor) {
	defer o.wg.Done()

	for {
		select {
		case <-o.stopCh:
			return
		case id := <-o.pendingIDs:
			job, ok := o.markRunning(id)
			if !ok {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), o.sendTimeout)
			err := exec(ctx, job)
			cancel()
			if err != nil {
				o.logger.Error("confirmation %s for booking %s failed: %v", job.ID, job.DedupeKey, err)
				o.finish(id, StatusFailed, err)
				continue
			}
			o.finish(id, StatusSent, nil)
		}
	}
}

func (o *Outbox) enqueuePendingID(id string) {
	select {
	case o.pendingIDs <- id:
	default:
		go func() {
			select {
			case o.pendingIDs <- id:
			case <-o.stopCh:
			}
		}()
	}
}

func (o *Outbox) markRunning(id string) (*Job, bool) {
	o.mu.Lock()
	job, ok := o.jobs[id]
	if !ok || job.Status != StatusPending {
		o.mu.Unlock()
		return nil, false
	}
	job.Status = StatusRunning
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	o.mu.Unlock()

	o.persistJob(snapshot)
	return snapshot, true
}

func (o *Outbox) finish(id string, status Status, err error) {
	o.mu.Lock()
	job, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return
	}
	job.Status = status
	job.Error = ""
	if err != nil {
		job.Error = err.Error()
	}
	job.UpdatedAt = time.Now()
	o.releaseDedupeLocked(job)
	pruned := o.pruneTerminalJobsLocked()
	snapshot := cloneJob(job)
	o.mu.Unlock()

	o.persistJob(snapshot)
	o.deleteJobsFromStore(pruned)
}

func (o *Outbox) releaseDedupeLocked(job *Job) {
	if job == nil || job.DedupeKey == "" {
		return
	}
	if id, ok := o.dedupe[job.DedupeKey]; ok && id == job.ID {
		delete(o.dedupe, job.DedupeKey)
	}
}

func (o *Outbox) pruneTerminalJobsLocked() []string {
	if o.maxJobs <= 0 || len(o.jobs) <= o.maxJobs {
		return nil
	}

	terminal := make([]*Job, 0, len(o.jobs))
	for _, job := range o.jobs {
		if job.Status == StatusSent || job.Status == StatusFailed {
			terminal = append(terminal, job)
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].UpdatedAt.Before(terminal[j].UpdatedAt)
	})

	toRemove := min(len(o.jobs)-o.maxJobs, len(terminal))
	pruned := make([]string, 0, toRemove)
	for _, job := range terminal[:toRemove] {
		o.releaseDedupeLocked(job)
		delete(o.jobs, job.ID)
		pruned = append(pruned, job.ID)
	}
	return pruned
}

func (o *Outbox) deleteJobsFromStore(ids []string) {
	if o.store == nil {
		return
	}
	for _, id := range ids {
		if err := o.store.DeleteOutboxJob(context.Background(), id); err != nil {
			o.logger.Error("failed to delete pruned outbox job %s: %v", id, err)
		}
	}
}

// hydrateFromStore reloads jobs; anything left running by a crash goes back
// to pending.
func (o *Outbox) hydrateFromStore(ctx context.Context) {
	if o.store == nil {
		return
	}
	loaded, err := o.store.LoadOutboxJobs(ctx)
	if err != nil {
		o.logger.Error("failed to load outbox jobs: %v", err)
		return
	}

	now := time.Now()
	toPersist := make([]*Job, 0)
	o.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := cloneJob(raw)
		if job.Status == StatusRunning {
			job.Status = StatusPending
			job.UpdatedAt = now
			toPersist = append(toPersist, cloneJob(job))
		}
		o.jobs[job.ID] = job
		if job.Status == StatusPending && job.DedupeKey != "" {
			o.dedupe[job.DedupeKey] = job.ID
		}
	}
	o.mu.Unlock()

	for _, job := range toPersist {
		o.persistJob(job)
	}
}

func (o *Outbox) persistJob(job *Job) {
	if o.store == nil || job == nil {
		return
	}
	if err := o.store.UpsertOutboxJob(context.Background(), job); err != nil {
		o.logger.Error("failed to persist outbox job %s: %v", job.ID, err)
	}
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	return &tmp
}

// Deliver composes and sends each job's confirmation.
func Deliver(composer *Composer, sender Sender) Executor {
	return func(ctx context.Context, job *Job) error {
		msg, err := composer.Compose(job.Confirmation)
		if err != nil {
			return err
		}
		_, err = sender.Send(ctx, msg)
		return err
	}
}
