package job

import (
	"context"
	"sync"
	"time"

	"ethpoint/internal/config"
	"ethpoint/internal/infrastructure/mq"
	"ethpoint/internal/model"
	"ethpoint/internal/repository"
	"ethpoint/pkg/logger"

	"gorm.io/gorm"
)

// OutboxSender publishes pending outbox events to Kafka in creation order.
// A message that keeps failing is marked FAILED after MaxRetryCount attempts.
type OutboxSender struct {
	outboxRepo    *repository.OutboxRepository
	producer      mq.Producer
	stopCh        chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
	interval      time.Duration
	batchSize     int
	maxRetryCount int
}

func NewOutboxSender(db *gorm.DB, producer mq.Producer, cfg *config.BusinessConfig) *OutboxSender {
	interval := cfg.OutboxInterval
	if interval <= 0 {
		interval = time.Second
	}
	batchSize := cfg.OutboxBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	maxRetry := cfg.MaxRetryCount
	if maxRetry <= 0 {
		maxRetry = 5
	}

	return &OutboxSender{
		outboxRepo:    repository.NewOutboxRepository(db),
		producer:      producer,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		interval:      interval,
		batchSize:     batchSize,
		maxRetryCount: maxRetry,
	}
}

// Start runs until ctx is cancelled or Stop is called. Done is closed on return.
func (s *OutboxSender) Start(ctx context.Context) {
	defer close(s.done)
	logger.Log.Info().Dur("interval", s.interval).Msg("outbox sender started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info().Msg("outbox sender stopped by context")
			return
		case <-s.stopCh:
			logger.Log.Info().Msg("outbox sender stopped")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

// Stop asks Start to return and waits until an in-flight batch has finished.
// Start must have been called.
func (s *OutboxSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

func (s *OutboxSender) Done() <-chan struct{} {
	return s.done
}

// ProcessPending sends one batch and returns the number of messages published.
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		logger.Log.Error().Err(err).Msg("load pending outbox messages")
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.producer.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if err := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); err != nil {
			logger.Log.Error().Err(err).Int64("id", msg.ID).Msg("mark outbox message sent")
			return false
		}
		logger.Log.Debug().Int64("id", msg.ID).Str("topic", msg.Topic).Str("key", msg.MessageKey).Msg("outbox message sent")
		return true
	}

	logger.Log.Warn().Err(err).Int64("id", msg.ID).Str("event", msg.EventType).Int("retry", msg.RetryCount).Msg("send outbox message")

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		logger.Log.Error().Err(err).Int64("id", msg.ID).Msg("increment outbox retry count")
	}

	if msg.RetryCount+1 >= s.maxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			logger.Log.Error().Err(err).Int64("id", msg.ID).Msg("mark outbox message failed")
		} else {
			logger.Log.Error().Int64("id", msg.ID).Str("event", msg.EventType).Msg("outbox message exceeded max retries")
		}
	}
	return false
}
