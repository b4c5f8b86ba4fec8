// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

var (
	// ErrSinkClosed is returned by [KafkaSink.Emit] after Close.
	ErrSinkClosed = errors.New("audit: sink closed")
	// ErrSinkBusy is returned by [KafkaSink.Emit] when the producer buffer is full.
	ErrSinkBusy = errors.New("audit: producer buffer full")
)

// KafkaSink publishes events to a topic through an async producer.
//
// Delivery failures surface on the producer's error channel and are logged by a
// background goroutine; they never reach the caller of Emit.
type KafkaSink struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewKafkaProducer builds the async producer used by [KafkaSink].
func NewKafkaProducer(brokers []string) (sarama.AsyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true
	config.Metadata.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("audit: create kafka producer: %w", err)
	}
	return producer, nil
}

// NewKafkaSink wraps producer and starts draining its error channel.
func NewKafkaSink(producer sarama.AsyncProducer, topic string, logger *slog.Logger) *KafkaSink {
	sink := &KafkaSink{
		producer: producer,
		topic:    topic,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go sink.handleErrors()
	return sink
}

// Emit enqueues event keyed by user id so one user's events stay ordered.
// It never blocks: a full producer buffer returns [ErrSinkBusy].
func (s *KafkaSink) Emit(ctx context.Context, event Event) error {
	event = stamp(ctx, event)

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: s.topic,
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("action"), Value: []byte(event.Action)},
		},
		Timestamp: event.OccurredAt,
	}
	if event.UserID != "" {
		message.Key = sarama.StringEncoder(event.UserID)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSinkClosed
	}

	// Never wait on a saturated producer. The event is dropped and the caller
	// logs the failure.
	select {
	case s.producer.Input() <- message:
		return nil
	default:
		return fmt.Errorf("audit: enqueue %s: %w", event.Action, ErrSinkBusy)
	}
}

// Close flushes pending messages and stops the error drain.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.producer.Close()
	<-s.done

	if err != nil {
		return fmt.Errorf("audit: close kafka producer: %w", err)
	}
	return nil
}

func (s *KafkaSink) handleErrors() {
	defer close(s.done)

	for producerErr := range s.producer.Errors() {
		if producerErr == nil {
			continue
		}
		s.logger.Error("audit_delivery_failed",
			slog.String("topic", producerErr.Msg.Topic),
			slog.String("error", producerErr.Err.Error()),
		)
	}
}
