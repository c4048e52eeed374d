// Package events publishes analysis outcomes to Kafka.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

const TypeAnalysisCompleted = "analysis.completed"

type Event struct {
	Type        string    `json:"type"`
	SessionID   string    `json:"session_id"`
	Fingerprint string    `json:"fingerprint"`
	Filename    string    `json:"filename,omitempty"`
	Outcome     string    `json:"outcome"`
	Features    int       `json:"features"`
	Major       int       `json:"major"`
	Minor       int       `json:"minor"`
	DurationMS  int64     `json:"duration_ms"`
	TS          time.Time `json:"ts"`
}

// Publisher is what the dashboard needs from an event sink.
type Publisher interface {
	Publish(ev Event)
	Close() error
}

// Nop discards events; used when publishing is disabled.
type Nop struct{}

func (Nop) Publish(Event) {}
func (Nop) Close() error  { return nil }

type KafkaPublisher struct {
	topic     string
	events    chan Event
	prod      sarama.AsyncProducer
	logger    *slog.Logger
	stopped   chan struct{}
	errsDone  chan struct{}
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewProducer builds the async producer with the settings the publisher
// expects: errors returned, successes not.
func NewProducer(brokers []string) (sarama.AsyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events: create async producer: %w", err)
	}
	return prod, nil
}

// NewKafkaPublisher takes ownership of prod and closes it on Close.
func NewKafkaPublisher(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *KafkaPublisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	p := &KafkaPublisher{
		topic:    topic,
		events:   make(chan Event, queueSize),
		prod:     prod,
		logger:   logger,
		stopped:  make(chan struct{}),
		errsDone: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Warn("events: marshal", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.SessionID),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		defer close(p.errsDone)
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Warn("events: producer error", "err", err)
			}
		}
	}()

	return p
}

// Publish never blocks the request path; a full queue drops the event.
func (p *KafkaPublisher) Publish(ev Event) {
	if ev.Type == "" {
		ev.Type = TypeAnalysisCompleted
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		p.logger.Debug("events: queue full, dropping", "session_id", ev.SessionID)
	}
}

func (p *KafkaPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.events)
		p.mu.Unlock()
		<-p.stopped
		if cerr := p.prod.Close(); cerr != nil {
			err = fmt.Errorf("events: close producer: %w", cerr)
		}
		<-p.errsDone
	})
	return err
}
