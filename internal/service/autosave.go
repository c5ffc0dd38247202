package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Autosaver periodically saves the dirty sessions of a DocumentService on
// a cron schedule.
type Autosaver struct {
	docs     *DocumentService
	schedule string
	log      *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewAutosaver creates an Autosaver. schedule is a cron spec such as
// "@every 30s" or "*/5 * * * *".
func NewAutosaver(docs *DocumentService, schedule string, log *zap.Logger) *Autosaver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Autosaver{docs: docs, schedule: schedule, log: log}
}

// Start schedules the saves. Calling Start twice restarts the schedule.
func (a *Autosaver) Start(ctx context.Context) error {
	a.Stop()

	c := cron.New()
	_, err := c.AddFunc(a.schedule, func() { a.Tick(ctx) })
	if err != nil {
		return fmt.Errorf("autosave: invalid schedule %q: %w", a.schedule, err)
	}
	c.Start()

	a.mu.Lock()
	a.cron = c
	a.mu.Unlock()
	a.log.Info("autosave scheduled", zap.String("schedule", a.schedule))
	return nil
}

// Tick saves every dirty session once.
func (a *Autosaver) Tick(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	n, err := a.docs.SaveAll(ctx)
	if err != nil {
		a.log.Warn("autosave: some documents failed to save", zap.Error(err))
	}
	if n > 0 {
		a.log.Debug("autosave: documents saved", zap.Int("count", n))
	}
	return n
}

// Stop halts the schedule and waits for a running tick to finish.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	c := a.cron
	a.cron = nil
	a.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
