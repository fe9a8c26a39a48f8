package admin

import (
	"github.com/qr-backend/internal/http/response"
	"github.com/qr-backend/internal/repository"
	"github.com/qr-backend/internal/service"

	"github.com/gin-gonic/gin"
)

// BulkStatusRequest 批量状态变更请求；tokens 在服务端转为哈希
type BulkStatusRequest struct {
	Target     string   `json:"target" binding:"required"`
	NewStatus  string   `json:"new_status" binding:"required"`
	Reason     string   `json:"reason"`
	PrintRunID uint     `json:"print_run_id"`
	ProductID  uint     `json:"product_id"`
	Statuses   []string `json:"statuses"`
	Tokens     []string `json:"tokens"`
	DeviceUIDs []string `json:"device_uids"`
}

// SubmitBulkStatus 提交批量状态变更任务
func (h *Handler) SubmitBulkStatus(c *gin.Context) {
	tenantID, actor, ok := getOperator(c)
	if !ok {
		return
	}
	var req BulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	hashes := make([]string, 0, len(req.Tokens))
	for _, token := range req.Tokens {
		hashes = append(hashes, service.HashToken(token))
	}
	job, err := h.BulkJobService.SubmitBulkStatus(c.Request.Context(), service.StatusRequest{
		TenantID:  tenantID,
		Target:    req.Target,
		NewStatus: req.NewStatus,
		Reason:    req.Reason,
		Actor:     actor,
		Selector: repository.StatusSelector{
			PrintRunID:  req.PrintRunID,
			ProductID:   req.ProductID,
			Statuses:    req.Statuses,
			TokenHashes: hashes,
			DeviceUIDs:  req.DeviceUIDs,
		},
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("admin_bulk_status_submitted", "job_id", job.ID, "status", job.Status, "actor", actor)
	response.Success(c, job)
}

// GetJob 任务详情与进度
func (h *Handler) GetJob(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	jobID := c.Param("id")
	job, err := h.BulkJobService.GetJob(tenantID, jobID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	progress, err := h.BulkJobService.GetJobProgress(c.Request.Context(), tenantID, jobID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"job":      job,
		"progress": progress,
	})
}

// CancelJob 取消任务
func (h *Handler) CancelJob(c *gin.Context) {
	tenantID, actor, ok := getOperator(c)
	if !ok {
		return
	}
	job, err := h.BulkJobService.CancelJob(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("admin_bulk_job_cancel", "job_id", job.ID, "status", job.Status, "actor", actor)
	response.Success(c, job)
}
