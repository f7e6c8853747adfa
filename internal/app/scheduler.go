package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Ticker выполняет один проход планировщика уведомлений
type Ticker interface {
	Tick(ctx context.Context) error
}

// Scheduler периодически запускает проход уведомлений
type Scheduler struct {
	ticker   Ticker
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

// NewScheduler создаёт новый планировщик
func NewScheduler(ticker Ticker, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		ticker:   ticker,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start запускает фоновую задачу
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting notification scheduler", zap.Duration("interval", s.interval))

	s.started.Store(true)
	go s.run(ctx)
}

// Stop останавливает планировщик и ждёт завершения текущего прохода
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping notification scheduler")
		close(s.stopChan)
	})
	if s.started.Load() {
		<-s.done
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	// Первый запуск сразу при старте
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopChan:
			s.logger.Info("Notification scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Notification scheduler cancelled")
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.ticker.Tick(ctx); err != nil {
		// ошибки одного прохода не останавливают планировщик
		s.logger.Error("Notification tick failed", zap.Error(err))
	}
}
