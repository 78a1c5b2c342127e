package worker

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/telefetch-project/telefetch/internal/logger"
	"github.com/telefetch-project/telefetch/internal/media"
	"github.com/telefetch-project/telefetch/internal/queue"
	"github.com/telefetch-project/telefetch/internal/registry"
	"github.com/telefetch-project/telefetch/internal/status"
	"github.com/telefetch-project/telefetch/internal/storage"
	"github.com/telefetch-project/telefetch/internal/telegram"
	"github.com/telefetch-project/telefetch/internal/websocket"
)

// Uploader is the slice of the platform client the pool uploads with.
type Uploader interface {
	Upload(ctx context.Context, req telegram.UploadRequest) error
}

// Messenger covers the direct message operations the pool performs
// outside the throttled reporter.
type Messenger interface {
	SafeDelete(chatID int64, messageID int)
}

// Config holds the pool's static parameters.
type Config struct {
	Workers      int
	DownloadDir  string
	MaxSendBytes int64
	MinFreeBytes int64
}

// Deps are the pool's collaborators. Events and Store may be nil.
type Deps struct {
	Resolver  media.Resolver
	Uploader  Uploader
	Messenger Messenger
	Reporter  *status.Reporter
	Cancels   *registry.CancelRegistry
	Store     storage.Store
	Events    *websocket.Manager
	Log       *logger.Logger
}

// Pool is the fixed-size worker pool draining the job queue.
type Pool struct {
	cfg  Config
	deps Deps

	jobs     *queue.Queue[*Job]
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	diskFree func(path string) (uint64, error)

	mu     sync.Mutex
	active map[string]*Job
}

// NewPool creates a pool. Call Start to launch the workers.
func NewPool(cfg Config, deps Deps) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if deps.Log == nil {
		deps.Log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:      cfg,
		deps:     deps,
		jobs:     queue.New[*Job](),
		ctx:      ctx,
		cancel:   cancel,
		diskFree: realDiskFree,
		active:   make(map[string]*Job),
	}
}

func realDiskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	p.deps.Log.Infof("worker pool started with %d workers", p.cfg.Workers)
}

// Stop closes the queue and waits for running jobs to reach a terminal
// state. Queued jobs still drain before workers exit.
func (p *Pool) Stop() {
	p.jobs.Close()
	p.wg.Wait()
	p.cancel()
	p.deps.Log.Info("worker pool stopped")
}

// Enqueue accepts a job, records it, posts the queued status line and
// returns the job's queue position.
func (p *Pool) Enqueue(job *Job) int {
	position := p.jobs.Push(job)
	if position == 0 {
		return 0
	}

	markup := status.CancelKeyboard(job.ID)
	p.deps.Reporter.Edit(job.ChatID, job.StatusMsgID,
		status.Queued(job.Title, position), &markup, true)

	if p.deps.Store != nil {
		rec := &storage.JobRecord{
			ID:      job.ID,
			ChatID:  job.ChatID,
			UserID:  job.UserID,
			URL:     job.URL,
			Title:   job.Title,
			Mode:    string(job.Mode),
			Outcome: "queued",
			Quality: job.qualityLabel(),
		}
		// Ledger failures never fail a job.
		if err := p.deps.Store.CreateJob(context.Background(), rec); err != nil {
			p.deps.Log.WithError(err).Warn("failed to record job in ledger")
		}
	}
	if p.deps.Events != nil {
		p.deps.Events.BroadcastJobQueued(job.ID, job.Title, string(job.Mode), position)
	}
	return position
}

// QueueLen returns the number of jobs waiting for a worker slot.
func (p *Pool) QueueLen() int {
	return p.jobs.Len()
}

// ActiveJobs returns a snapshot of the jobs currently being executed.
func (p *Pool) ActiveJobs() []*Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	jobs := make([]*Job, 0, len(p.active))
	for _, job := range p.active {
		copied := *job
		jobs = append(jobs, &copied)
	}
	return jobs
}

func (j *Job) qualityLabel() string {
	switch {
	case j.VideoPlan != nil:
		return j.VideoPlan.QualityLabel
	case j.AudioPlan != nil:
		return j.AudioPlan.QualityLabel
	}
	return ""
}

// workerLoop runs until the queue is closed and drained. A single
// job's failure never takes the worker down.
func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()

	for {
		job, ok := p.jobs.Pop()
		if !ok {
			return
		}

		p.mu.Lock()
		p.active[job.ID] = job
		p.mu.Unlock()

		p.runSafely(job)

		p.mu.Lock()
		delete(p.active, job.ID)
		p.mu.Unlock()
	}
}

func (p *Pool) runSafely(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			p.deps.Log.WithField("job", job.ID).Errorf("worker panic recovered: %v", r)
			p.finishJob(job, OutcomeErrored, "internal error", 0)
		}
	}()

	start := time.Now()
	p.run(job)
	p.deps.Log.WithFields(map[string]interface{}{
		"job":      job.ID,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("job finished")
}
