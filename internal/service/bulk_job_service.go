package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/qr-backend/internal/cache"
	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/constants"
	"github.com/qr-backend/internal/logger"
	"github.com/qr-backend/internal/metrics"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/queue"
	"github.com/qr-backend/internal/repository"

	"github.com/google/uuid"
)

// BulkJobService 批处理任务：持久化、入队、执行与进度查询
type BulkJobService struct {
	jobRepo repository.BulkJobRepository
	engine  *StatusEngine
	queue   *queue.Client
	metrics *metrics.CoreMetrics
	cfg     config.BulkConfig
	now     func() time.Time
}

// NewBulkJobService 创建批处理任务服务
func NewBulkJobService(
	jobRepo repository.BulkJobRepository,
	engine *StatusEngine,
	queueClient *queue.Client,
	coreMetrics *metrics.CoreMetrics,
	cfg config.BulkConfig,
) *BulkJobService {
	return &BulkJobService{
		jobRepo: jobRepo,
		engine:  engine,
		queue:   queueClient,
		metrics: coreMetrics,
		cfg:     cfg.Normalize(),
		now:     time.Now,
	}
}

// SubmitBulkStatus 创建批量状态变更任务；队列未启用时同步执行
func (s *BulkJobService) SubmitBulkStatus(ctx context.Context, req StatusRequest) (*models.BulkJob, error) {
	req, err := normalizeStatusRequest(req)
	if err != nil {
		return nil, err
	}
	req.JobID = ""
	payload, err := statusPayload(req)
	if err != nil {
		return nil, err
	}
	job := &models.BulkJob{
		ID:       uuid.NewString(),
		TenantID: req.TenantID,
		Kind:     constants.BulkJobKindStatus,
		Status:   constants.BulkJobStatusQueued,
		Payload:  payload,
		Actor:    req.Actor,
		Errors:   models.RowErrorList{},
	}
	if err := s.jobRepo.Create(job); err != nil {
		return nil, err
	}
	s.publish(ctx, job)
	s.metrics.IncBulkJob(constants.BulkJobStatusQueued)

	if s.queue.Enabled() {
		if err := s.queue.EnqueueBulkStatus(queue.BulkStatusPayload{JobID: job.ID, TenantID: job.TenantID}); err != nil {
			logger.TW(job.TenantID).Errorw("bulk_job_enqueue_failed", "job_id", job.ID, "error", err)
			s.finish(ctx, job.ID, constants.BulkJobStatusQueued, constants.BulkJobStatusFailed, err.Error())
			return nil, err
		}
		logger.TW(job.TenantID).Infow("bulk_job_enqueued", "job_id", job.ID)
		return job, nil
	}

	if err := s.RunJob(ctx, job.ID); err != nil {
		logger.TW(job.TenantID).Warnw("bulk_job_inline_failed", "job_id", job.ID, "error", err)
	}
	return s.jobRepo.GetByID(job.ID)
}

// RunJob 执行任务；重复投递时已结束的任务直接跳过
func (s *BulkJobService) RunJob(ctx context.Context, jobID string) error {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}
	if job.IsTerminal() {
		return nil
	}

	started := s.now()
	ok, err := s.jobRepo.UpdateStatus(job.ID, constants.BulkJobStatusQueued, constants.BulkJobStatusRunning, map[string]interface{}{"started_at": started})
	if err != nil {
		return err
	}
	if !ok {
		status, err := s.jobRepo.GetStatus(job.ID)
		if err != nil {
			return err
		}
		switch status {
		case constants.BulkJobStatusRunning:
			logger.TW(job.TenantID).Warnw("bulk_job_resume_running", "job_id", job.ID)
		case constants.BulkJobStatusCanceling:
			s.finish(ctx, job.ID, constants.BulkJobStatusCanceling, constants.BulkJobStatusCanceled, "")
			return nil
		default:
			return nil
		}
	}
	job.Status = constants.BulkJobStatusRunning
	s.publish(ctx, job)
	// 重新投递时从已持久化的进度继续对外发布，processed 不回退
	floor := job.Processed

	var req StatusRequest
	if err := json.Unmarshal(mustJSON(job.Payload), &req); err != nil {
		s.finish(ctx, job.ID, constants.BulkJobStatusRunning, constants.BulkJobStatusFailed, err.Error())
		return err
	}
	req.TenantID = job.TenantID
	req.JobID = job.ID
	if req.Actor == "" {
		req.Actor = job.Actor
	}

	result, runErr := s.engine.ApplyBulkStatus(ctx, req, StatusRunOptions{
		ChunkSize: s.cfg.ChunkSize,
		ShouldCancel: func() bool {
			status, err := s.jobRepo.GetStatus(job.ID)
			return err == nil && status == constants.BulkJobStatusCanceling
		},
		OnProgress: func(result *StatusResult) {
			s.recordProgress(ctx, job, result, floor)
		},
	})
	if runErr != nil {
		if result != nil {
			s.recordProgress(ctx, job, result, floor)
		}
		s.finishFromActive(ctx, job.ID, constants.BulkJobStatusFailed, runErr.Error())
		return runErr
	}
	final := constants.BulkJobStatusCompleted
	if result.Canceled {
		final = constants.BulkJobStatusCanceled
	}
	s.finishFromActive(ctx, job.ID, final, "")
	return nil
}

// GetJobProgress 优先读取缓存进度，未命中回落到任务行
func (s *BulkJobService) GetJobProgress(ctx context.Context, tenantID uint, jobID string) (*cache.JobProgress, error) {
	progress, err := cache.GetJobProgress(ctx, jobID)
	if err != nil {
		logger.TW(tenantID).Warnw("bulk_job_progress_cache_read_failed", "job_id", jobID, "error", err)
	}
	if progress != nil && progress.TenantID == tenantID {
		return progress, nil
	}
	job, err := s.GetJob(tenantID, jobID)
	if err != nil {
		return nil, err
	}
	return progressOf(job), nil
}

// GetJob 获取任务详情（含行级错误）
func (s *BulkJobService) GetJob(tenantID uint, jobID string) (*models.BulkJob, error) {
	job, err := s.jobRepo.GetByTenantAndID(tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// CancelJob 取消任务：排队中直接取消，执行中置为 canceling 由执行方在块间确认
func (s *BulkJobService) CancelJob(ctx context.Context, tenantID uint, jobID string) (*models.BulkJob, error) {
	job, err := s.GetJob(tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, ErrJobFinished
	}
	switch job.Status {
	case constants.BulkJobStatusQueued:
		ok, err := s.jobRepo.UpdateStatus(job.ID, constants.BulkJobStatusQueued, constants.BulkJobStatusCanceled, map[string]interface{}{"finished_at": s.now()})
		if err != nil {
			return nil, err
		}
		if ok {
			s.metrics.IncBulkJob(constants.BulkJobStatusCanceled)
			break
		}
		if _, err := s.jobRepo.UpdateStatus(job.ID, constants.BulkJobStatusRunning, constants.BulkJobStatusCanceling, nil); err != nil {
			return nil, err
		}
	case constants.BulkJobStatusRunning:
		if _, err := s.jobRepo.UpdateStatus(job.ID, constants.BulkJobStatusRunning, constants.BulkJobStatusCanceling, nil); err != nil {
			return nil, err
		}
	}
	updated, err := s.GetJob(tenantID, jobID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, updated)
	logger.TW(tenantID).Infow("bulk_job_cancel_requested", "job_id", jobID, "status", updated.Status)
	return updated, nil
}

func (s *BulkJobService) recordProgress(ctx context.Context, job *models.BulkJob, result *StatusResult, floor int) {
	rowErrors := result.Errors
	if limit := s.cfg.MaxErrorsKept; limit > 0 && len(rowErrors) > limit {
		rowErrors = rowErrors[:limit]
	}
	processed := result.Processed
	if processed < floor {
		processed = floor
	}
	total := result.Total
	if total < processed {
		total = processed
	}
	if err := s.jobRepo.UpdateProgress(job.ID, total, processed, len(result.Errors), toRowErrorList(rowErrors)); err != nil {
		logger.TW(job.TenantID).Warnw("bulk_job_progress_update_failed", "job_id", job.ID, "error", err)
	}
	job.Total = total
	job.Processed = processed
	job.ErrorCount = len(result.Errors)
	s.publish(ctx, job)
}

// finishFromActive 从 running 或 canceling 进入终态
func (s *BulkJobService) finishFromActive(ctx context.Context, jobID, final, lastError string) {
	if s.finish(ctx, jobID, constants.BulkJobStatusRunning, final, lastError) {
		return
	}
	if final == constants.BulkJobStatusCompleted {
		final = constants.BulkJobStatusCanceled
	}
	s.finish(ctx, jobID, constants.BulkJobStatusCanceling, final, lastError)
}

func (s *BulkJobService) finish(ctx context.Context, jobID, from, to, lastError string) bool {
	fields := map[string]interface{}{"finished_at": s.now()}
	if lastError != "" {
		fields["last_error"] = lastError
	}
	ok, err := s.jobRepo.UpdateStatus(jobID, from, to, fields)
	if err != nil {
		logger.Warnw("bulk_job_finish_failed", "job_id", jobID, "status", to, "error", err)
		return false
	}
	if !ok {
		return false
	}
	s.metrics.IncBulkJob(to)
	if job, err := s.jobRepo.GetByID(jobID); err == nil && job != nil {
		s.publish(ctx, job)
		logger.TW(job.TenantID).Infow("bulk_job_finished", "job_id", jobID, "status", to, "processed", job.Processed, "total", job.Total, "errors", job.ErrorCount)
	}
	return true
}

func (s *BulkJobService) publish(ctx context.Context, job *models.BulkJob) {
	ttl := time.Duration(s.cfg.ProgressTTLSeconds) * time.Second
	if err := cache.SetJobProgress(ctx, progressOf(job), ttl); err != nil {
		logger.TW(job.TenantID).Warnw("bulk_job_progress_publish_failed", "job_id", job.ID, "error", err)
	}
}

func progressOf(job *models.BulkJob) *cache.JobProgress {
	return &cache.JobProgress{
		JobID:      job.ID,
		TenantID:   job.TenantID,
		Status:     job.Status,
		Total:      job.Total,
		Processed:  job.Processed,
		ErrorCount: job.ErrorCount,
		UpdatedAt:  time.Now().Unix(),
	}
}

func statusPayload(req StatusRequest) (models.JSON, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	payload := models.JSON{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func mustJSON(payload models.JSON) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

// IsJobTerminalError 判断任务错误是否无需重试
func IsJobTerminalError(err error) bool {
	return errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrInvalidStatus) || errors.Is(err, ErrInvalidTarget) || errors.Is(err, ErrEmptySelector)
}
