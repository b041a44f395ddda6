package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"listenline/internal/model"
)

// Notifier delivers a session event to its final channel. The engine
// never waits on delivery; failures are nacked and retried by the
// broker, not by the caller.
type Notifier interface {
	Notify(ctx context.Context, event model.SessionEvent) error
}

// LogNotifier is the default sink: it records events to the process log.
// Real channels (mail, push) plug in behind the same interface.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event model.SessionEvent) error {
	log.Printf("notify: %s request=%d session=%d reason=%q", event.Type, event.RequestID, event.SessionID, event.Reason)
	return nil
}

// NotifyWorker consumes session events from the broker queue and hands
// them to the notifier.
type NotifyWorker struct {
	conn      *amqp.Connection
	notifier  Notifier
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNotifyWorker(conn *amqp.Connection, notifier Notifier, queueName string) *NotifyWorker {
	return &NotifyWorker{
		conn:      conn,
		notifier:  notifier,
		queueName: queueName,
	}
}

func (w *NotifyWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare event queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume event queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var event model.SessionEvent
				if err := json.Unmarshal(d.Body, &event); err != nil {
					log.Printf("worker decode event failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := w.notifier.Notify(workerCtx, event); err != nil {
					log.Printf("worker deliver %s event failed: %v", event.Type, err)
					_ = d.Nack(false, true)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *NotifyWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
