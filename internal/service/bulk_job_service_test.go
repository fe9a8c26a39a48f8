package service

import (
	"context"
	"errors"
	"testing"

	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/constants"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/repository"

	"github.com/google/uuid"
)

func TestSubmitBulkStatusRunsInlineWithoutQueue(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	product := h.createProduct(t, 1, "SENSOR-1")
	h.bindAll(t, 1, product.ID, 10)
	ctx := context.Background()

	job, err := h.jobs.SubmitBulkStatus(ctx, StatusRequest{
		TenantID:  1,
		Target:    constants.StatusTargetBoth,
		NewStatus: constants.CodeStatusShipped,
		Actor:     "ops",
		Selector:  repository.StatusSelector{ProductID: product.ID},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if job.Status != constants.BulkJobStatusCompleted || job.Total != 10 || job.Processed != 10 || job.ErrorCount != 0 {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.StartedAt == nil || job.FinishedAt == nil {
		t.Fatalf("expected start and finish timestamps")
	}
	if n := h.countRows(t, &models.StatusHistory{}, "job_id = ?", job.ID); n != 20 {
		t.Fatalf("expected 20 history rows tagged with job id, got %d", n)
	}

	backward, err := h.jobs.SubmitBulkStatus(ctx, StatusRequest{
		TenantID:  1,
		NewStatus: constants.CodeStatusBound,
		Selector:  repository.StatusSelector{ProductID: product.ID},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if backward.Status != constants.BulkJobStatusCompleted || backward.ErrorCount != 10 || len(backward.Errors) != 10 {
		t.Fatalf("expected completed job with 10 row errors, got %+v", backward)
	}
	if backward.Errors[0].Code != constants.RowErrorNotAllowed {
		t.Fatalf("unexpected row error: %+v", backward.Errors[0])
	}

	progress, err := h.jobs.GetJobProgress(ctx, 1, job.ID)
	if err != nil {
		t.Fatalf("get progress failed: %v", err)
	}
	if progress.Status != constants.BulkJobStatusCompleted || progress.Processed != 10 {
		t.Fatalf("unexpected progress: %+v", progress)
	}
	if _, err := h.jobs.GetJobProgress(ctx, 2, job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected other tenant to miss job, got %v", err)
	}
	if _, err := h.jobs.CancelJob(ctx, 1, job.ID); !errors.Is(err, ErrJobFinished) {
		t.Fatalf("expected ErrJobFinished, got %v", err)
	}
}

func TestSubmitBulkStatusValidatesBeforePersisting(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	_, err := h.jobs.SubmitBulkStatus(context.Background(), StatusRequest{TenantID: 1, NewStatus: constants.CodeStatusSold})
	if !errors.Is(err, ErrEmptySelector) {
		t.Fatalf("expected ErrEmptySelector, got %v", err)
	}
	if n := h.countRows(t, &models.BulkJob{}, ""); n != 0 {
		t.Fatalf("invalid request must not create a job")
	}
}

func TestCancelQueuedJobAndSkipOnDelivery(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	ctx := context.Background()
	job := &models.BulkJob{
		ID:       uuid.NewString(),
		TenantID: 1,
		Kind:     constants.BulkJobKindStatus,
		Status:   constants.BulkJobStatusQueued,
		Payload:  models.JSON{"new_status": constants.CodeStatusSold, "selector": map[string]interface{}{"product_id": 1}},
	}
	if err := h.db.Create(job).Error; err != nil {
		t.Fatalf("create job failed: %v", err)
	}

	canceled, err := h.jobs.CancelJob(ctx, 1, job.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if canceled.Status != constants.BulkJobStatusCanceled {
		t.Fatalf("expected queued job canceled, got %s", canceled.Status)
	}
	if err := h.jobs.RunJob(ctx, job.ID); err != nil {
		t.Fatalf("run of canceled job should be a no-op: %v", err)
	}
	reloaded, err := h.jobs.GetJob(1, job.ID)
	if err != nil || reloaded.Status != constants.BulkJobStatusCanceled || reloaded.StartedAt != nil {
		t.Fatalf("canceled job must not start, got %+v err=%v", reloaded, err)
	}
}

func TestRunJobHonorsCancelingState(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	product := h.createProduct(t, 1, "SENSOR-1")
	h.issue(t, 1, product.ID, 5)
	job := &models.BulkJob{
		ID:       uuid.NewString(),
		TenantID: 1,
		Kind:     constants.BulkJobKindStatus,
		Status:   constants.BulkJobStatusCanceling,
		Payload:  models.JSON{"new_status": constants.CodeStatusSold, "selector": map[string]interface{}{"product_id": product.ID}},
	}
	if err := h.db.Create(job).Error; err != nil {
		t.Fatalf("create job failed: %v", err)
	}
	if err := h.jobs.RunJob(context.Background(), job.ID); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	reloaded, err := h.jobs.GetJob(1, job.ID)
	if err != nil || reloaded.Status != constants.BulkJobStatusCanceled {
		t.Fatalf("expected canceled job, got %+v err=%v", reloaded, err)
	}
	if n := h.countRows(t, &models.Code{}, "status = ?", constants.CodeStatusSold); n != 0 {
		t.Fatalf("canceled job must not apply changes, got %d", n)
	}
}

func TestRunJobResumeKeepsProgressMonotonic(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	product := h.createProduct(t, 1, "SENSOR-1")
	h.issue(t, 1, product.ID, 5)
	ctx := context.Background()
	job := &models.BulkJob{
		ID:        uuid.NewString(),
		TenantID:  1,
		Kind:      constants.BulkJobKindStatus,
		Status:    constants.BulkJobStatusRunning,
		Total:     5,
		Processed: 4,
		Payload:   models.JSON{"new_status": constants.CodeStatusVoid, "selector": map[string]interface{}{"product_id": product.ID}},
	}
	if err := h.db.Create(job).Error; err != nil {
		t.Fatalf("create job failed: %v", err)
	}

	h.jobs.recordProgress(ctx, job, &StatusResult{Total: 5, Processed: 1}, 4)
	reloaded, err := h.jobs.GetJob(1, job.ID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if reloaded.Processed != 4 || reloaded.Total != 5 {
		t.Fatalf("processed must not move backward, got %d/%d", reloaded.Processed, reloaded.Total)
	}

	if err := h.jobs.RunJob(ctx, job.ID); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	reloaded, err = h.jobs.GetJob(1, job.ID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if reloaded.Status != constants.BulkJobStatusCompleted || reloaded.Processed != 5 || reloaded.Total != 5 {
		t.Fatalf("expected completed 5/5 after resume, got %+v", reloaded)
	}
	if n := h.countRows(t, &models.Code{}, "status = ?", constants.CodeStatusVoid); n != 5 {
		t.Fatalf("expected 5 void codes, got %d", n)
	}
}

func TestRunJobUnknownIsTerminal(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	err := h.jobs.RunJob(context.Background(), "missing")
	if !errors.Is(err, ErrJobNotFound) || !IsJobTerminalError(err) {
		t.Fatalf("expected terminal ErrJobNotFound, got %v", err)
	}
}
