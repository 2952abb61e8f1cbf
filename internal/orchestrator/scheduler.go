package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rahul/conductor/internal/observability"
	"github.com/rahul/conductor/internal/report"
	"github.com/rahul/conductor/internal/store"
)

// Runner executes a task description.
type Runner interface {
	Run(ctx context.Context, description, sourceLabel string) (*report.Report, error)
}

// Messenger delivers run summaries to people.
type Messenger interface {
	Notify(ctx context.Context, text string) error
}

// TaskStore is the part of the run store the scheduler needs.
type TaskStore interface {
	DueSchedules(now time.Time) ([]store.Schedule, error)
	MarkScheduleRun(id int64, at time.Time) error
	DeleteSchedule(id int64) error
	SaveReport(r *report.Report) error
}

// Scheduler runs stored schedules when they fall due.
type Scheduler struct {
	Runner   Runner
	Store    TaskStore
	Gateway  Messenger
	Logger   *observability.Logger
	Interval time.Duration

	now func() time.Time
}

func NewScheduler(runner Runner, store TaskStore, gateway Messenger, logger *observability.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		Runner:   runner,
		Store:    store,
		Gateway:  gateway,
		Logger:   logger,
		Interval: interval,
		now:      time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Println("Task scheduler started...")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Logger.LogHeartbeat()
			s.pollAndExecute(ctx)
		}
	}
}

func (s *Scheduler) pollAndExecute(ctx context.Context) {
	tasks, err := s.Store.DueSchedules(s.now())
	if err != nil {
		log.Printf("Error polling schedules: %v", err)
		return
	}

	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}
		log.Printf("Executing schedule %d (%s)", t.ID, t.Label)

		r, err := s.Runner.Run(ctx, t.Description, t.Label)
		if err != nil && !errors.Is(err, ErrFatal) {
			log.Printf("Error executing schedule %d: %v", t.ID, err)
			continue
		}

		if r != nil && r.Status == report.StatusCancelled {
			// Interrupted by shutdown; the schedule stays due for the next start.
			log.Printf("Schedule %d cancelled after %d/%d steps", t.ID, r.StepsExecuted, r.TotalSteps)
			if err := s.Store.SaveReport(r); err != nil {
				log.Printf("Error saving report for schedule %d: %v", t.ID, err)
			}
			continue
		}

		// Update last run time
		if err := s.Store.MarkScheduleRun(t.ID, s.now()); err != nil {
			log.Printf("Error updating last run for schedule %d: %v", t.ID, err)
		}

		// If it's a one-time schedule (interval = 0), delete it
		if t.OneShot() {
			if err := s.Store.DeleteSchedule(t.ID); err != nil {
				log.Printf("Error deleting one-time schedule %d: %v", t.ID, err)
			}
		}

		if r == nil {
			continue
		}
		if err := s.Store.SaveReport(r); err != nil {
			log.Printf("Error saving report for schedule %d: %v", t.ID, err)
		}

		// Notify via the gateway
		if s.Gateway != nil {
			text := fmt.Sprintf("⏰ *Scheduled run: %s*\n\n%s", t.Label, r.Markdown())
			if err != nil {
				text += "\n" + err.Error()
			}
			if nerr := s.Gateway.Notify(ctx, text); nerr != nil {
				log.Printf("Error notifying for schedule %d: %v", t.ID, nerr)
			}
		}
	}
}
