package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/platform/rabbitmq"
)

// JobProcessor runs one ingestion job.
type JobProcessor interface {
	Process(ctx context.Context, job app.IngestJob) (*app.IngestResult, error)
}

// IngestWorker consumes ingestion jobs. A failed job is not requeued: its
// failure is already recorded on the document.
type IngestWorker struct {
	conn      *amqp.Connection
	processor JobProcessor
	queueName string
	prefetch  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, processor JobProcessor, queueName string, prefetch int) *IngestWorker {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &IngestWorker{
		conn:      conn,
		processor: processor,
		queueName: queueName,
		prefetch:  prefetch,
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
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

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
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
		return fmt.Errorf("consume queue failed: %w", err)
	}

	for i := 0; i < w.prefetch; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					if err := w.Handle(workerCtx, d.Body); err != nil {
						log.Printf("worker: ingest job failed: %v", err)
						_ = d.Nack(false, false)
						continue
					}
					_ = d.Ack(false)
				}
			}
		}()
	}

	go func() {
		w.wg.Wait()
		_ = ch.Close()
	}()
	return nil
}

// Handle decodes and processes one message body.
func (w *IngestWorker) Handle(ctx context.Context, body []byte) error {
	var job app.IngestJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decode ingest job failed: %w", err)
	}
	if job.DocumentID == "" || job.OwnerID == "" {
		return errors.New("decode ingest job failed: document_id and owner_id are required")
	}
	res, err := w.processor.Process(ctx, job)
	if err != nil {
		return fmt.Errorf("document %s: %w", job.DocumentID, err)
	}
	log.Printf("worker: document %s is %s with %d chunks", job.DocumentID, res.Document.Status, res.ChunkCount)
	return nil
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
