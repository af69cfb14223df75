// Package scheduler runs jobs on fixed intervals. A job never runs concurrently with itself.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Job is a periodically executed function.
type Job struct {
	ID       string
	Interval time.Duration
	Run      func(context.Context) error
}

// JobStatus is a snapshot of the state of a job.
type JobStatus struct {
	ID        string     `json:"id"`
	Interval  string     `json:"interval"`
	Running   bool       `json:"running"`
	Runs      int        `json:"runs"`
	Skipped   int        `json:"skipped"`
	LastStart *time.Time `json:"last_start,omitempty"`
	LastEnd   *time.Time `json:"last_end,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

type jobState struct {
	sync.Mutex
	job    Job
	status JobStatus
}

// Scheduler runs the registered jobs.
type Scheduler struct {
	sync.Mutex
	logger     hclog.Logger
	jobs       []*jobState
	runOnStart bool
	started    bool
	wg         sync.WaitGroup
}

// New returns a new scheduler. With runOnStart, every job runs immediately when started
// instead of after its first interval.
func New(logger hclog.Logger, runOnStart bool) *Scheduler {
	return &Scheduler{
		logger:     logger,
		runOnStart: runOnStart,
	}
}

// Add registers a job. Jobs can't be added after the scheduler was started.
func (s *Scheduler) Add(job Job) error {
	s.Lock()
	defer s.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	if job.ID == "" || job.Run == nil {
		return fmt.Errorf("job requires an ID and a function")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.ID)
	}
	for _, existing := range s.jobs {
		if existing.job.ID == job.ID {
			return fmt.Errorf("job %s already registered", job.ID)
		}
	}
	s.jobs = append(s.jobs, &jobState{
		job:    job,
		status: JobStatus{ID: job.ID, Interval: job.Interval.String()},
	})
	s.logger.Info("job added", "job", job.ID, "interval", job.Interval)
	return nil
}

// Start runs the jobs until the context is cancelled, then waits for running jobs to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.Lock()
	if s.started {
		s.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	jobs := append([]*jobState{}, s.jobs...)
	s.Unlock()

	if len(jobs) == 0 {
		s.logger.Warn("no jobs scheduled")
	}

	loops := &sync.WaitGroup{}
	for _, js := range jobs {
		loops.Add(1)
		go func(js *jobState) {
			defer loops.Done()
			s.loop(ctx, js)
		}(js)
	}
	<-ctx.Done()
	loops.Wait()
	s.logger.Info("waiting for running jobs to finish")
	s.wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, js *jobState) {
	ticker := time.NewTicker(js.job.Interval)
	defer ticker.Stop()
	s.setNextRun(js, time.Now().Add(js.job.Interval))
	if s.runOnStart {
		s.trigger(ctx, js)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			s.setNextRun(js, tick.Add(js.job.Interval))
			s.trigger(ctx, js)
		}
	}
}

func (s *Scheduler) setNextRun(js *jobState, next time.Time) {
	js.Lock()
	defer js.Unlock()
	js.status.NextRun = &next
}

// trigger starts the job unless an instance is already running.
func (s *Scheduler) trigger(ctx context.Context, js *jobState) {
	js.Lock()
	if ctx.Err() != nil {
		js.Unlock()
		return
	}
	if js.status.Running {
		js.status.Skipped = js.status.Skipped + 1
		js.Unlock()
		s.logger.Warn("execution of job skipped: maximum number of running instances reached (1)", "job", js.job.ID)
		return
	}
	now := time.Now()
	js.status.Running = true
	js.status.LastStart = &now
	js.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.execute(ctx, js)
		end := time.Now()
		js.Lock()
		defer js.Unlock()
		js.status.Running = false
		js.status.Runs = js.status.Runs + 1
		js.status.LastEnd = &end
		js.status.LastError = ""
		if err != nil {
			js.status.LastError = err.Error()
		}
	}()
}

func (s *Scheduler) execute(ctx context.Context, js *jobState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", js.job.ID, r)
			s.logger.Error("job panicked", "job", js.job.ID, "reason", r)
		}
	}()
	s.logger.Debug("running job", "job", js.job.ID)
	if err := js.job.Run(ctx); err != nil {
		s.logger.Error("job failed", "job", js.job.ID, "reason", err)
		return err
	}
	s.logger.Debug("job finished", "job", js.job.ID)
	return nil
}

// Status returns the status of every job, sorted by ID.
func (s *Scheduler) Status() []JobStatus {
	s.Lock()
	jobs := append([]*jobState{}, s.jobs...)
	s.Unlock()
	result := []JobStatus{}
	for _, js := range jobs {
		js.Lock()
		result = append(result, js.status)
		js.Unlock()
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
