package worker

import (
	"context"
	"fmt"

	"github.com/qr-backend/internal/logger"
	"github.com/qr-backend/internal/provider"
	"github.com/qr-backend/internal/queue"
	"github.com/qr-backend/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskBulkStatusApply, c.handleBulkStatusApply)
}

func (c *Consumer) handleBulkStatusApply(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.Container == nil || c.BulkJobService == nil || task == nil {
		logger.Debugw("worker_bulk_status_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseBulkStatusPayload(task)
	if err != nil {
		logger.Warnw("worker_bulk_status_unmarshal_failed", "error", err)
		return fmt.Errorf("decode bulk status payload: %w", asynq.SkipRetry)
	}
	if payload.JobID == "" {
		logger.Debugw("worker_bulk_status_skip_invalid_payload", "tenant_id", payload.TenantID)
		return nil
	}
	if err := c.BulkJobService.RunJob(ctx, payload.JobID); err != nil {
		if service.IsJobTerminalError(err) {
			logger.TW(payload.TenantID).Warnw("worker_bulk_status_terminal", "job_id", payload.JobID, "error", err)
			return fmt.Errorf("run bulk job %s: %v: %w", payload.JobID, err, asynq.SkipRetry)
		}
		logger.TW(payload.TenantID).Warnw("worker_bulk_status_failed", "job_id", payload.JobID, "error", err)
		return err
	}
	logger.TW(payload.TenantID).Infow("worker_bulk_status_done", "job_id", payload.JobID)
	return nil
}
