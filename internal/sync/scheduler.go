package sync

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"
	"time"

	apperrors "github.com/lodestone-crm/lodestone-backend/internal/errors"
	"github.com/lodestone-crm/lodestone-backend/internal/repository"
)

// SchedulerConfig holds configuration for the polling scheduler
type SchedulerConfig struct {
	// TickInterval is how often due accounts are looked up
	TickInterval time.Duration
	// SyncTimeout bounds a single account sync
	SyncTimeout time.Duration
}

// Scheduler periodically polls every schedulable account. Exclusion is
// enforced by the engine's database lock, so a tick overlapping a running
// sync (or a webhook-triggered one) is harmless.
type Scheduler struct {
	engine   *Engine
	accounts repository.AccountRepository
	config   SchedulerConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       stdsync.WaitGroup
	running  bool
	mu       stdsync.Mutex
}

// NewScheduler creates a polling scheduler
func NewScheduler(engine *Engine, accounts repository.AccountRepository, config SchedulerConfig, logger *slog.Logger) *Scheduler {
	if config.TickInterval <= 0 {
		config.TickInterval = 30 * time.Second
	}
	if config.SyncTimeout <= 0 {
		config.SyncTimeout = 5 * time.Minute
	}

	return &Scheduler{
		engine:   engine,
		accounts: accounts,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the polling loop
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.pollLoop()

	s.logger.Info("sync scheduler started",
		slog.Duration("tick_interval", s.config.TickInterval))
}

// Stop gracefully stops the polling loop and waits for in-flight syncs
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("sync scheduler stopped")
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// pollLoop is the main loop that syncs due accounts every tick
func (s *Scheduler) pollLoop() {
	defer s.wg.Done()

	// Run immediately on start
	s.syncDueAccounts()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.syncDueAccounts()
		}
	}
}

// syncDueAccounts finds accounts past their next poll time and syncs each
// in its own goroutine. Failed accounts come back automatically once their
// backoff window elapses, since ListSchedulable filters on next_sync_at.
func (s *Scheduler) syncDueAccounts() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.SyncTimeout)
	defer cancel()

	due, err := s.accounts.ListSchedulable(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to list schedulable accounts",
			slog.String("error", err.Error()))
		return
	}
	if len(due) == 0 {
		return
	}

	var wg stdsync.WaitGroup
	for _, account := range due {
		wg.Add(1)
		go func(accountID uint, provider string) {
			defer wg.Done()

			syncCtx, syncCancel := context.WithTimeout(context.Background(), s.config.SyncTimeout)
			defer syncCancel()

			_, err := s.engine.RunSync(syncCtx, accountID, ModeAuto)
			if err != nil {
				// Lost the lock race to a webhook-triggered sync; the
				// account is being handled either way.
				if errors.Is(err, apperrors.ErrSyncAlreadyRunning) {
					return
				}
				s.logger.Warn("scheduled sync failed",
					slog.Uint64("account_id", uint64(accountID)),
					slog.String("provider", provider),
					slog.String("error", err.Error()))
			}
		}(account.ID, account.Provider)
	}
	wg.Wait()
}
