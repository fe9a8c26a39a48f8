package admin

import (
	"time"

	"github.com/qr-backend/internal/http/response"
	"github.com/qr-backend/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateBatchRequest 创建批次请求
type CreateBatchRequest struct {
	BatchNo        string     `json:"batch_no"`
	ProductID      uint       `json:"product_id"`
	ManufacturedAt *time.Time `json:"manufactured_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	Note           string     `json:"note"`
}

// CreatePrintRunRequest 创建印刷批次请求
type CreatePrintRunRequest struct {
	RunNo  string `json:"run_no"`
	Vendor string `json:"vendor"`
}

// CreateChannelRequest 创建渠道请求
type CreateChannelRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name"`
}

// CreateBatch 创建生产批次
func (h *Handler) CreateBatch(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	var req CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	batch, err := h.ProvenanceService.CreateBatch(service.CreateBatchInput{
		TenantID:       tenantID,
		BatchNo:        req.BatchNo,
		ProductID:      req.ProductID,
		ManufacturedAt: req.ManufacturedAt,
		ExpiresAt:      req.ExpiresAt,
		Note:           req.Note,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, batch)
}

// CreatePrintRun 创建印刷批次
func (h *Handler) CreatePrintRun(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	var req CreatePrintRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	run, err := h.ProvenanceService.CreatePrintRun(tenantID, req.RunNo, req.Vendor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, run)
}

// CreateChannel 创建销售渠道
func (h *Handler) CreateChannel(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	channel, err := h.ProvenanceService.CreateChannel(tenantID, req.Code, req.Name)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, channel)
}
