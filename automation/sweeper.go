package automation

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"boardflow-api/domain"
)

const (
	// How far ahead the approaching scan looks.
	dueSoonWindow = 24 * time.Hour
	// Tasks untouched this long count as stale in their column.
	staleAfter = 3 * time.Hour

	sweepActorID = "system"
)

// Sweeper periodically scans all tasks for time-derived conditions and
// synthesizes events into the dispatcher. Each of the four scans runs in
// isolation: one scan failing or panicking never prevents the others.
type Sweeper struct {
	store      SweepStore
	dispatcher *Dispatcher
	deduper    Deduper
	logger     *log.Logger
	interval   time.Duration
	now        func() time.Time
}

// NewSweeper creates a sweeper. deduper may be nil, in which case every
// sweep re-fires for every matching task.
func NewSweeper(store SweepStore, dispatcher *Dispatcher, deduper Deduper, interval time.Duration, logger *log.Logger) *Sweeper {
	return &Sweeper{
		store:      store,
		dispatcher: dispatcher,
		deduper:    deduper,
		logger:     logger,
		interval:   interval,
		now:        time.Now,
	}
}

// Run executes sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Infof("sweeper started, interval: %v", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs the four scans once.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.runScan(ctx, "overdue", s.scanOverdue)
	s.runScan(ctx, "approaching", s.scanApproaching)
	s.runScan(ctx, "stale", s.scanStale)
	s.runScan(ctx, "wip", s.scanWIP)
}

func (s *Sweeper) runScan(ctx context.Context, name string, scan func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("scan", name).Errorf("scan panicked: %v", r)
		}
	}()
	if err := scan(ctx); err != nil {
		s.logger.WithField("scan", name).Errorf("scan failed: %v", err)
	}
}

func (s *Sweeper) scanOverdue(ctx context.Context) error {
	now := s.now().UTC()
	tasks, err := s.store.OverdueTasks(ctx, now)
	if err != nil {
		return err
	}
	for i := range tasks {
		t := &tasks[i]
		hoursOverdue := int(now.Sub(*t.DueDate).Hours())
		s.emit(ctx, domain.TriggerTaskOverdue, t, map[string]any{
			"dueDate":      *t.DueDate,
			"hoursOverdue": hoursOverdue,
		})
	}
	return nil
}

func (s *Sweeper) scanApproaching(ctx context.Context) error {
	now := s.now().UTC()
	tasks, err := s.store.DueSoonTasks(ctx, now, dueSoonWindow)
	if err != nil {
		return err
	}
	for i := range tasks {
		t := &tasks[i]
		s.emit(ctx, domain.TriggerDueDateApproaching, t, map[string]any{
			"dueDate": *t.DueDate,
		})
	}
	return nil
}

func (s *Sweeper) scanStale(ctx context.Context) error {
	now := s.now().UTC()
	tasks, err := s.store.StaleTasks(ctx, now.Add(-staleAfter))
	if err != nil {
		return err
	}
	for i := range tasks {
		t := &tasks[i]
		s.emit(ctx, domain.TriggerTimeInColumn, t, map[string]any{
			"hoursInColumn": int(now.Sub(t.UpdatedAt).Hours()),
		})
	}
	return nil
}

func (s *Sweeper) scanWIP(ctx context.Context) error {
	breaches, err := s.store.WIPBreaches(ctx)
	if err != nil {
		return err
	}
	for i := range breaches {
		b := &breaches[i]
		if b.Task.ID == "" || b.Column.WIPLimit == nil {
			continue
		}
		s.emit(ctx, domain.TriggerWIPLimitExceeded, &b.Task, map[string]any{
			"columnId": b.Column.ID,
			"limit":    *b.Column.WIPLimit,
			"overage":  b.Count - *b.Column.WIPLimit,
		})
	}
	return nil
}

// emit builds a synthetic event context for a task and dispatches it,
// unless another instance already fired the same trigger for this task
// within the dedupe window.
func (s *Sweeper) emit(ctx context.Context, trigger domain.TriggerType, t *domain.Task, payload map[string]any) {
	if s.deduper != nil {
		key := fmt.Sprintf("%s:%s", trigger, t.ID)
		added, err := s.deduper.Add(ctx, t.BoardID, key)
		if err != nil {
			// Fire anyway: a duplicate event beats a dropped one.
			s.logger.WithField("task", t.ID).Warnf("sweep dedupe: %v", err)
		} else if !added {
			return
		}
	}

	snapshot := t.Snapshot()
	evt := &domain.EventContext{
		TaskID:     t.ID,
		ActorID:    sweepActorID,
		BoardID:    t.BoardID,
		ColumnID:   t.ColumnID,
		SwimlaneID: t.SwimlaneID,
		Current:    &snapshot,
		Payload:    payload,
	}
	s.dispatcher.Dispatch(ctx, trigger, evt)
}
