package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Session lifecycle event types published to the events topic.
const (
	EventStartAuth    = "start_auth"
	EventRenewLink    = "renew_link"
	EventAuthed       = "authed"
	EventBookingStart = "booking_start"
	EventSuccess      = "success"
	EventLinkExpired  = "link_expired"
	EventEvicted      = "evicted"
)

type SessionEvent struct {
	Type      string    `json:"type"`
	SID       string    `json:"sid"`
	Status    string    `json:"status"`
	AttemptNo int       `json:"attempt_no,omitempty"`
	TicketNo  string    `json:"ticket_no,omitempty"`
	Plate     string    `json:"plate,omitempty"`
	At        time.Time `json:"at"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
