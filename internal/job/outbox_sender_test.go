package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"ethpoint/internal/config"
	"ethpoint/internal/infrastructure/database"
	"ethpoint/internal/infrastructure/mq"
	"ethpoint/internal/model"
	"ethpoint/internal/repository"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{Dialect: "sqlite", DSN: ":memory:", LogLevel: "silent"})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func enqueue(t *testing.T, db *gorm.DB, key string) {
	t.Helper()
	repo := repository.NewOutboxRepository(db)
	payload := map[string]string{"payment_no": key}
	if err := repo.Enqueue(context.Background(), nil, "payments", model.EventPaymentCreated, key, payload); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func statuses(t *testing.T, db *gorm.DB) map[string]model.OutboxMessage {
	t.Helper()
	var messages []model.OutboxMessage
	if err := db.Find(&messages).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	result := make(map[string]model.OutboxMessage, len(messages))
	for _, m := range messages {
		result[m.MessageKey] = m
	}
	return result
}

func TestOutboxSenderPublishesInOrder(t *testing.T) {
	db := newTestDB(t)
	enqueue(t, db, "CRY1")
	enqueue(t, db, "CRY2")

	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"payment_no":"CRY1"}` {
			return errors.New("expected CRY1 first, got " + string(val))
		}
		return nil
	})
	mock.ExpectSendMessageAndSucceed()

	sender := NewOutboxSender(db, mq.NewKafkaProducerFrom(mock), &config.BusinessConfig{MaxRetryCount: 3})
	if sent := sender.ProcessPending(context.Background()); sent != 2 {
		t.Errorf("expected 2 messages sent, got %d", sent)
	}
	if err := mock.Close(); err != nil {
		t.Fatalf("close producer: %v", err)
	}

	for key, msg := range statuses(t, db) {
		if msg.Status != model.OutboxStatusSent {
			t.Errorf("%s: expected SENT, got %s", key, msg.Status)
		}
	}
}

func TestOutboxSenderRetriesThenFails(t *testing.T) {
	db := newTestDB(t)
	enqueue(t, db, "CRY1")

	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	sender := NewOutboxSender(db, mq.NewKafkaProducerFrom(mock), &config.BusinessConfig{MaxRetryCount: 2})
	ctx := context.Background()

	sender.ProcessPending(ctx)
	msg := statuses(t, db)["CRY1"]
	if msg.Status != model.OutboxStatusPending || msg.RetryCount != 1 {
		t.Fatalf("expected pending with one retry, got %s/%d", msg.Status, msg.RetryCount)
	}

	sender.ProcessPending(ctx)
	msg = statuses(t, db)["CRY1"]
	if msg.Status != model.OutboxStatusFailed || msg.RetryCount != 2 {
		t.Fatalf("expected failed after two attempts, got %s/%d", msg.Status, msg.RetryCount)
	}

	// failed messages are no longer picked up
	if sent := sender.ProcessPending(ctx); sent != 0 {
		t.Errorf("expected nothing to send, got %d", sent)
	}
	if err := mock.Close(); err != nil {
		t.Fatalf("close producer: %v", err)
	}
}

// blockingProducer holds every send until release is closed.
type blockingProducer struct {
	sending chan struct{}
	release chan struct{}
}

func (p *blockingProducer) SendMessage(topic, key, value string) error {
	p.sending <- struct{}{}
	<-p.release
	return nil
}

func (p *blockingProducer) Close() error { return nil }

func TestOutboxSenderStopWaitsForBatch(t *testing.T) {
	db := newTestDB(t)
	enqueue(t, db, "CRY1")

	producer := &blockingProducer{sending: make(chan struct{}, 1), release: make(chan struct{})}
	sender := NewOutboxSender(db, producer, &config.BusinessConfig{OutboxInterval: 10 * time.Millisecond})
	go sender.Start(context.Background())

	select {
	case <-producer.sending:
	case <-time.After(2 * time.Second):
		t.Fatal("sender never picked up the pending message")
	}

	stopped := make(chan struct{})
	go func() {
		sender.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a send was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(producer.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the batch finished")
	}
	select {
	case <-sender.Done():
	default:
		t.Error("expected Done to be closed")
	}

	if msg := statuses(t, db)["CRY1"]; msg.Status != model.OutboxStatusSent {
		t.Errorf("expected in-flight message to be marked SENT, got %s", msg.Status)
	}
}
