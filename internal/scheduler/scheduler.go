package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/alert"
	"github.com/JakeFAU/seo-orchestrator/internal/config"
	"github.com/JakeFAU/seo-orchestrator/internal/progress"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// Action executes one task run and returns its payload.
type Action func(ctx context.Context, opts seo.TaskOptions) (any, error)

// Registry maps every runnable task to its action.
type Registry map[seo.TaskName]Action

// StatusWriter persists health reports.
type StatusWriter interface {
	Write(report seo.HealthReport) error
}

// Config tunes task execution.
type Config struct {
	// TaskTimeout bounds a single run; zero disables the limit.
	TaskTimeout time.Duration
}

// TaskStatus describes one registered task for dashboards and the CLI.
type TaskStatus struct {
	Name       seo.TaskName    `json:"name"`
	Schedule   string          `json:"schedule,omitempty"`
	Enabled    bool            `json:"enabled"`
	NextRun    *time.Time      `json:"next_run,omitempty"`
	Running    bool            `json:"running"`
	LastResult *seo.TaskResult `json:"last_result,omitempty"`
}

type scheduledTask struct {
	schedule seo.TaskSchedule
	cron     cron.Schedule
	next     time.Time
}

// Scheduler owns task timers and dispatches runs.
type Scheduler struct {
	registry Registry
	services []seo.Service
	clock    clockwork.Clock
	ids      seo.IDGenerator
	events   progress.Emitter
	notifier alert.Notifier
	status   StatusWriter
	cfg      Config
	logger   *zap.Logger

	lifecycle sync.Mutex
	mu        sync.Mutex
	baseCtx   context.Context
	cancelAll context.CancelFunc
	stopTimer context.CancelFunc
	tasks     map[seo.TaskName]*scheduledTask
	running   map[seo.TaskName]bool
	last      map[seo.TaskName]seo.TaskResult
	timers    sync.WaitGroup
	runs      sync.WaitGroup
	shutdown  bool
}

// New constructs a Scheduler. Nil collaborators other than registry and ids
// are replaced by no-op defaults.
func New(
	registry Registry,
	services []seo.Service,
	clock clockwork.Clock,
	ids seo.IDGenerator,
	events progress.Emitter,
	notifier alert.Notifier,
	status StatusWriter,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = alert.NewLog(logger)
	}
	reg := make(Registry, len(registry))
	for name, action := range registry {
		reg[name] = action
	}
	return &Scheduler{
		registry: reg,
		services: append([]seo.Service(nil), services...),
		clock:    clock,
		ids:      ids,
		events:   events,
		notifier: notifier,
		status:   status,
		cfg:      cfg,
		logger:   logger,
		tasks:    make(map[seo.TaskName]*scheduledTask),
		running:  make(map[seo.TaskName]bool),
		last:     make(map[seo.TaskName]seo.TaskResult),
	}
}

// Initialize validates schedules and starts a timer for every enabled task.
// Any invalid entry aborts initialization without starting timers.
func (s *Scheduler) Initialize(ctx context.Context, schedules []seo.TaskSchedule) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return errors.New("scheduler is shut down")
	}
	if s.baseCtx != nil {
		s.mu.Unlock()
		return errors.New("scheduler already initialized")
	}
	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.baseCtx = base
	s.cancelAll = cancel
	s.mu.Unlock()

	if err := s.Reschedule(schedules); err != nil {
		return err
	}
	s.logger.Info("scheduler initialized", zap.Int("tasks", len(s.registry)))
	return nil
}

// Reschedule replaces every timer with schedules. The running timers are left
// untouched when schedules is invalid.
func (s *Scheduler) Reschedule(schedules []seo.TaskSchedule) error {
	planned, err := s.plan(schedules)
	if err != nil {
		return err
	}
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.shutdown || s.baseCtx == nil {
		s.mu.Unlock()
		return errors.New("scheduler is not running")
	}
	stop := s.stopTimer
	s.stopTimer = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.timers.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return errors.New("scheduler is not running")
	}
	timerCtx, cancel := context.WithCancel(s.baseCtx)
	s.stopTimer = cancel
	s.tasks = planned
	for name, task := range planned {
		if !task.schedule.Enabled {
			continue
		}
		s.timers.Add(1)
		go s.loop(timerCtx, name, task.cron)
		s.logger.Info("task scheduled",
			zap.String("task", string(name)),
			zap.String("schedule", task.schedule.Expression),
		)
	}
	return nil
}

func (s *Scheduler) plan(schedules []seo.TaskSchedule) (map[seo.TaskName]*scheduledTask, error) {
	planned := make(map[seo.TaskName]*scheduledTask, len(schedules))
	for _, sched := range schedules {
		if _, ok := s.registry[sched.Name]; !ok {
			return nil, fmt.Errorf("%w: %q", seo.ErrUnknownTask, sched.Name)
		}
		if _, dup := planned[sched.Name]; dup {
			return nil, fmt.Errorf("task %s scheduled twice", sched.Name)
		}
		task := &scheduledTask{schedule: sched}
		if sched.Enabled {
			parsed, err := config.ParseSchedule(sched.Expression)
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", sched.Name, err)
			}
			task.cron = parsed
		}
		planned[sched.Name] = task
	}
	return planned, nil
}

func (s *Scheduler) loop(ctx context.Context, name seo.TaskName, sched cron.Schedule) {
	defer s.timers.Done()
	for {
		now := s.clock.Now()
		next := sched.Next(now)
		s.setNext(name, next)
		timer := s.clock.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
		if !s.beginScheduled() {
			return
		}
		go func() {
			defer s.runs.Done()
			s.runScheduled(name)
		}()
	}
}

func (s *Scheduler) beginScheduled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return false
	}
	s.runs.Add(1)
	return true
}

func (s *Scheduler) setNext(name seo.TaskName, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[name]; ok {
		task.next = next
	}
}

func (s *Scheduler) runScheduled(name seo.TaskName) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	_, err := s.execute(ctx, name, seo.TriggerScheduled, nil)
	if errors.Is(err, seo.ErrTaskInFlight) {
		s.logger.Info("scheduled run skipped, task already running", zap.String("task", string(name)))
	}
}

// RunTask executes name immediately. Unknown tasks return seo.ErrUnknownTask;
// a task that is already running returns a skipped result and
// seo.ErrTaskInFlight.
func (s *Scheduler) RunTask(ctx context.Context, name seo.TaskName, opts seo.TaskOptions) (seo.TaskResult, error) {
	if _, ok := s.registry[name]; !ok {
		return seo.TaskResult{}, fmt.Errorf("%w: %q", seo.ErrUnknownTask, name)
	}
	return s.execute(ctx, name, seo.TriggerManual, opts)
}

func (s *Scheduler) execute(
	ctx context.Context,
	name seo.TaskName,
	trigger seo.Trigger,
	opts seo.TaskOptions,
) (seo.TaskResult, error) {
	logger := s.logger.With(zap.String("task", string(name)), zap.String("trigger", string(trigger)))
	if !s.acquire(name) {
		now := s.clock.Now()
		return seo.TaskResult{
			TaskName:    name,
			Trigger:     trigger,
			StartedAt:   now,
			CompletedAt: now,
			Status:      seo.TaskStatusSkipped,
			Error:       seo.ErrTaskInFlight.Error(),
		}, seo.ErrTaskInFlight
	}
	defer s.release(name)

	id, err := s.ids.NewID()
	if err != nil {
		return seo.TaskResult{}, fmt.Errorf("generate run id: %w", err)
	}

	runCtx := ctx
	if s.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.TaskTimeout)
		defer cancel()
	}

	logger.Info("task started", zap.String("run_id", id))
	start := s.clock.Now()
	payload, runErr := invoke(runCtx, s.registry[name], opts)
	done := s.clock.Now()

	result := seo.TaskResult{
		ID:          id,
		TaskName:    name,
		Trigger:     trigger,
		StartedAt:   start,
		CompletedAt: done,
		DurationMs:  done.Sub(start).Milliseconds(),
		Status:      seo.TaskStatusSuccess,
		Payload:     payload,
	}
	if runErr != nil {
		result.Status = seo.TaskStatusFailure
		result.Error = runErr.Error()
		logger.Error("task failed", zap.String("run_id", id), zap.Error(runErr))
	} else {
		logger.Info("task completed", zap.String("run_id", id), zap.Int64("duration_ms", result.DurationMs))
	}

	s.mu.Lock()
	s.last[name] = result
	s.mu.Unlock()
	if s.events != nil {
		s.events.Emit(progress.TaskCompleted(result))
	}

	if runErr != nil {
		if trigger == seo.TriggerScheduled {
			s.raise(ctx, result)
		}
		return result, fmt.Errorf("task %s: %w", name, runErr)
	}
	return result, nil
}

func (s *Scheduler) raise(ctx context.Context, result seo.TaskResult) {
	a := seo.Alert{
		Task:    result.TaskName,
		Trigger: result.Trigger,
		RunID:   result.ID,
		Message: fmt.Sprintf("%s failed", result.TaskName),
		Error:   result.Error,
		At:      result.CompletedAt,
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), a); err != nil {
		s.logger.Warn("alert delivery failed", zap.String("task", string(result.TaskName)), zap.Error(err))
	}
}

func invoke(ctx context.Context, action Action, opts seo.TaskOptions) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return action(ctx, opts)
}

func (s *Scheduler) acquire(name seo.TaskName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *Scheduler) release(name seo.TaskName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, name)
}

// Status lists every registered task in canonical order.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStatus, 0, len(s.registry))
	for _, name := range seo.TaskNames() {
		if _, ok := s.registry[name]; !ok {
			continue
		}
		st := TaskStatus{Name: name, Running: s.running[name]}
		if task, ok := s.tasks[name]; ok {
			st.Schedule = task.schedule.Expression
			st.Enabled = task.schedule.Enabled
			if task.schedule.Enabled && !task.next.IsZero() {
				next := task.next
				st.NextRun = &next
			}
		}
		if last, ok := s.last[name]; ok {
			st.LastResult = &last
		}
		out = append(out, st)
	}
	return out
}

// PerformHealthCheck asks every service for its health. A non-healthy service
// degrades the overall state; a failing check makes it unhealthy. The report is
// persisted and broadcast.
func (s *Scheduler) PerformHealthCheck(ctx context.Context) (seo.HealthReport, error) {
	report := seo.HealthReport{
		Overall:   seo.HealthHealthy,
		CheckedAt: s.clock.Now(),
		Services:  make(map[string]seo.ServiceHealth, len(s.services)),
	}
	var failed, degraded bool
	for _, svc := range s.services {
		health, err := svc.HealthCheck(ctx)
		if err != nil {
			failed = true
			report.Services[svc.Name()] = seo.ServiceHealth{Status: seo.HealthUnhealthy, Message: err.Error()}
			s.logger.Warn("health check failed", zap.String("service", svc.Name()), zap.Error(err))
			continue
		}
		if health.Status != seo.HealthHealthy {
			degraded = true
		}
		report.Services[svc.Name()] = health
	}
	switch {
	case failed:
		report.Overall = seo.HealthUnhealthy
	case degraded:
		report.Overall = seo.HealthDegraded
	}

	if s.events != nil {
		s.events.Emit(progress.Status(report))
	}
	if s.status != nil {
		if err := s.status.Write(report); err != nil {
			return report, fmt.Errorf("persist health status: %w", err)
		}
	}
	return report, nil
}

// Shutdown stops every timer, waits for in-progress scheduled runs and closes
// services in registration order. Service close errors are logged only.
func (s *Scheduler) Shutdown(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	stop := s.stopTimer
	cancelAll := s.cancelAll
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.timers.Wait()

	if !waitCtx(ctx, &s.runs) {
		s.logger.Warn("shutdown deadline reached, cancelling running tasks")
	}
	if cancelAll != nil {
		cancelAll()
	}
	s.runs.Wait()

	for _, svc := range s.services {
		if err := svc.Close(ctx); err != nil {
			s.logger.Warn("service close failed", zap.String("service", svc.Name()), zap.Error(err))
			continue
		}
		s.logger.Info("service closed", zap.String("service", svc.Name()))
	}
}

func waitCtx(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
