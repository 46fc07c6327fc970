package worker

import (
	"context"
	"time"

	"fieldcrm/services"
	"fieldcrm/utils"

	"github.com/sirupsen/logrus"
)

// BatchProcessor delivers one batch of queued webhooks
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, limit int) (*services.BatchResult, error)
}

// WebhookWorker drains the webhook delivery queue on a fixed interval
type WebhookWorker struct {
	processor BatchProcessor
	logger    logrus.FieldLogger
	interval  time.Duration
	batchSize int
}

func NewWebhookWorker(processor BatchProcessor, logger logrus.FieldLogger, interval time.Duration, batchSize int) *WebhookWorker {
	return &WebhookWorker{
		processor: processor,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start blocks until ctx is cancelled
func (w *WebhookWorker) Start(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	w.logger.WithField("interval", w.interval.String()).Info("Starting webhook worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runOnce(ctx)
		case <-ctx.Done():
			w.logger.Info("Stopping webhook worker")
			return
		}
	}
}

func (w *WebhookWorker) runOnce(ctx context.Context) {
	// a batch never outlives one tick
	batchCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	if _, err := w.processor.ProcessBatch(batchCtx, w.batchSize); err != nil {
		utils.LogError(w.logger, "webhook_worker", err, nil)
	}
}
