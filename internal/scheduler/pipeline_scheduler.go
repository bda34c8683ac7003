// Package scheduler triggers periodic pipeline runs from cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/attrpipe/internal/entities"
	"github.com/mrlokans/attrpipe/internal/tasks"
)

// Schedule binds one pipeline to a cron spec.
type Schedule struct {
	PipelineID uint
	Spec       string // standard 5-field cron format, e.g. "0 */6 * * *"
}

// PipelineScheduler enqueues scheduled pipeline runs through the task
// queue. Runs triggered here carry triggeredBy=schedule.
type PipelineScheduler struct {
	taskClient *tasks.Client
	schedules  []Schedule

	cron       *cron.Cron
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

// NewPipelineScheduler creates a new scheduler instance.
func NewPipelineScheduler(taskClient *tasks.Client, schedules []Schedule) *PipelineScheduler {
	return &PipelineScheduler{
		taskClient: taskClient,
		schedules:  schedules,
		cron:       cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler if any schedules are configured.
func (s *PipelineScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if len(s.schedules) == 0 {
		log.Printf("Pipeline scheduler: no schedules configured")
		return nil
	}

	for _, schedule := range s.schedules {
		schedule := schedule
		_, err := s.cron.AddFunc(schedule.Spec, func() {
			s.enqueue(schedule.PipelineID)
		})
		if err != nil {
			return fmt.Errorf("invalid cron schedule %q for pipeline %d: %w", schedule.Spec, schedule.PipelineID, err)
		}
	}

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true
	log.Printf("Pipeline scheduler: started with %d schedule(s)", len(s.schedules))

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs.
func (s *PipelineScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}

	log.Printf("Pipeline scheduler: stopped")
}

// RunNow enqueues an immediate run for a pipeline outside its schedule.
func (s *PipelineScheduler) RunNow(pipelineID uint) {
	go s.enqueue(pipelineID)
}

// IsRunning returns whether the scheduler is active.
func (s *PipelineScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRuns returns the upcoming fire times, mainly for status logging.
func (s *PipelineScheduler) NextRuns() []time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	entries := s.cron.Entries()
	next := make([]time.Time, 0, len(entries))
	for _, entry := range entries {
		next = append(next, entry.Next)
	}
	return next
}

func (s *PipelineScheduler) enqueue(pipelineID uint) {
	_, err := s.taskClient.Add(tasks.RunPipelineTask{
		PipelineID:  pipelineID,
		TriggeredBy: entities.TriggeredBySchedule,
	}).Save()
	if err != nil {
		log.Printf("Pipeline scheduler: failed to enqueue pipeline %d: %v", pipelineID, err)
		return
	}
	log.Printf("Pipeline scheduler: enqueued scheduled run for pipeline %d", pipelineID)
}
