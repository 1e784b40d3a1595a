package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"gopherai-docqa/internal/app"
)

// IngestPublisher queues ingestion jobs as persistent JSON messages.
type IngestPublisher struct {
	conn      *amqp.Connection
	queueName string

	mu sync.Mutex
	ch *amqp.Channel
}

func NewIngestPublisher(conn *amqp.Connection, queueName string) *IngestPublisher {
	return &IngestPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *IngestPublisher) PublishIngestJob(ctx context.Context, job app.IngestJob) error {
	msg, err := EncodeJob(job)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, msg); err != nil {
		// drop the channel; the next publish opens a fresh one
		_ = ch.Close()
		p.ch = nil
		return fmt.Errorf("publish ingest job failed: %w", err)
	}
	return nil
}

func (p *IngestPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	if err := DeclareQueue(ch, p.queueName); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *IngestPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}

// EncodeJob builds the message for one job. The document id doubles as the
// message id so duplicates are recognisable on the broker.
func EncodeJob(job app.IngestJob) (amqp.Publishing, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal ingest job failed: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    job.DocumentID,
		Body:         payload,
		DeliveryMode: amqp.Persistent,
	}, nil
}
