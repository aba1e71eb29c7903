// Package worker consumes document ingest jobs: chunk, embed, fingerprint,
// and store, off the request path.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"paperchat/internal/app"
	"paperchat/internal/platform/rabbitmq"
)

type DocumentIngestWorker struct {
	conn      *amqp.Connection
	docs      *app.DocumentService
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDocumentIngestWorker(conn *amqp.Connection, docs *app.DocumentService, queueName string) *DocumentIngestWorker {
	return &DocumentIngestWorker{
		conn:      conn,
		docs:      docs,
		queueName: queueName,
	}
}

func (w *DocumentIngestWorker) Start(ctx context.Context) error {
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
		return fmt.Errorf("declare worker queue failed: %w", err)
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
		return fmt.Errorf("consume ingest queue failed: %w", err)
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

				var job rabbitmq.IngestJob
				if err := json.Unmarshal(d.Body, &job); err != nil {
					log.Printf("worker decode ingest job failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := w.docs.Ingest(workerCtx, job.DocumentID, job.Pages); err != nil {
					log.Printf("worker ingest document %d failed: %v", job.DocumentID, err)
					_ = d.Nack(false, false)
					continue
				}

				log.Printf("worker ingested document %d", job.DocumentID)
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *DocumentIngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
