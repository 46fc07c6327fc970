package worker

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"fieldcrm/services"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type countingProcessor struct {
	calls atomic.Int32
	limit atomic.Int32
	err   error
}

func (p *countingProcessor) ProcessBatch(_ context.Context, limit int) (*services.BatchResult, error) {
	p.calls.Add(1)
	p.limit.Store(int32(limit))
	return &services.BatchResult{}, p.err
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestWebhookWorkerRunsUntilCancelled(t *testing.T) {
	processor := &countingProcessor{err: errors.New("endpoint down")}
	w := NewWebhookWorker(processor, quietLogger(), 5*time.Millisecond, 25)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return processor.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, int32(25), processor.limit.Load())
}

func TestWebhookWorkerDisabled(t *testing.T) {
	processor := &countingProcessor{}
	w := NewWebhookWorker(processor, quietLogger(), 0, 25)

	// returns immediately without a cancelled context
	w.Start(context.Background())
	assert.Zero(t, processor.calls.Load())
}
