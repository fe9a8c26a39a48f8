package admin

import (
	"strings"
	"time"

	handlershared "github.com/qr-backend/internal/http/handlers/shared"
	"github.com/qr-backend/internal/http/response"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/repository"
	"github.com/qr-backend/internal/service"

	"github.com/gin-gonic/gin"
)

// IssueCodesRequest 发码请求
type IssueCodesRequest struct {
	ProductID        uint       `json:"product_id"`
	Quantity         int64      `json:"quantity" binding:"required"`
	VerificationMode string     `json:"verification_mode"`
	BatchID          *uint      `json:"batch_id"`
	ChannelID        *uint      `json:"channel_id"`
	PrintRunID       *uint      `json:"print_run_id"`
	ExpiresAt        *time.Time `json:"expires_at"`
}

// MintAssemblyRequest 组合件发码请求
type MintAssemblyRequest struct {
	RootProductID    uint       `json:"root_product_id" binding:"required"`
	RootQuantity     int64      `json:"root_quantity" binding:"required"`
	VerificationMode string     `json:"verification_mode"`
	BatchID          *uint      `json:"batch_id"`
	ChannelID        *uint      `json:"channel_id"`
	PrintRunID       *uint      `json:"print_run_id"`
	ExpiresAt        *time.Time `json:"expires_at"`
}

// LinkGraphRequest 用已发码池建立码图请求，pools 键为商品ID
type LinkGraphRequest struct {
	RootProductID uint              `json:"root_product_id" binding:"required"`
	Pools         map[string][]uint `json:"pools" binding:"required"`
}

// MarkCodeStatusRequest 单码状态变更请求
type MarkCodeStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// codeLabel 标签渲染所需的码信息
type codeLabel struct {
	ID        uint   `json:"id"`
	ProductID *uint  `json:"product_id,omitempty"`
	Token     string `json:"token"`
	MicroCode string `json:"micro_code"`
	VerifyURL string `json:"verify_url,omitempty"`
	Status    string `json:"status"`
}

func (h *Handler) labels(codes []models.Code) []codeLabel {
	base := strings.TrimRight(strings.TrimSpace(h.Config.Codes.VerifyBaseURL), "/")
	labels := make([]codeLabel, 0, len(codes))
	for _, code := range codes {
		label := codeLabel{
			ID:        code.ID,
			ProductID: code.ProductID,
			Token:     code.Token,
			MicroCode: service.FormatMicroCode(code.MicroCheck),
			Status:    code.Status,
		}
		if base != "" {
			label.VerifyURL = base + "/" + code.Token
		}
		labels = append(labels, label)
	}
	return labels
}

// IssueCodes 发行一批码
func (h *Handler) IssueCodes(c *gin.Context) {
	tenantID, actor, ok := getOperator(c)
	if !ok {
		return
	}
	var req IssueCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	codes, err := h.LedgerService.IssueCodes(service.IssueCodesInput{
		TenantID:         tenantID,
		ProductID:        req.ProductID,
		Quantity:         req.Quantity,
		VerificationMode: req.VerificationMode,
		BatchID:          req.BatchID,
		ChannelID:        req.ChannelID,
		PrintRunID:       req.PrintRunID,
		ExpiresAt:        req.ExpiresAt,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("admin_codes_issued", "product_id", req.ProductID, "count", len(codes), "actor", actor)
	response.Success(c, gin.H{
		"count": len(codes),
		"codes": h.labels(codes),
	})
}

// MintAssembly 组合件整树发码并建立码图
func (h *Handler) MintAssembly(c *gin.Context) {
	tenantID, actor, ok := getOperator(c)
	if !ok {
		return
	}
	var req MintAssemblyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	result, err := h.AssemblyService.MintAssembly(service.MintAssemblyInput{
		TenantID:         tenantID,
		RootProductID:    req.RootProductID,
		RootQuantity:     req.RootQuantity,
		VerificationMode: req.VerificationMode,
		BatchID:          req.BatchID,
		ChannelID:        req.ChannelID,
		PrintRunID:       req.PrintRunID,
		ExpiresAt:        req.ExpiresAt,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	codes := make(map[uint][]codeLabel, len(result.Codes))
	for productID, list := range result.Codes {
		codes[productID] = h.labels(list)
	}
	requestLog(c).Infow("admin_assembly_minted",
		"root_product_id", req.RootProductID,
		"root_quantity", req.RootQuantity,
		"total", result.Plan.Total(),
		"edges", len(result.Edges),
		"actor", actor,
	)
	response.Success(c, gin.H{
		"plan":       result.Plan,
		"total":      result.Plan.Total(),
		"codes":      codes,
		"edge_count": len(result.Edges),
	})
}

// LinkGraph 用已有码池按 BOM 建立父子关系
func (h *Handler) LinkGraph(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	var req LinkGraphRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	pools := make(map[uint][]uint, len(req.Pools))
	for key, ids := range req.Pools {
		productID, ok := parseUintString(key)
		if !ok {
			respondError(c, response.CodeBadRequest, "error.bad_request", nil)
			return
		}
		pools[productID] = ids
	}
	edges, err := h.GraphService.LinkGraph(tenantID, req.RootProductID, pools)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"edges": edges,
		"count": len(edges),
	})
}

// ListCodes 码列表
func (h *Handler) ListCodes(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	codes, total, err := h.LedgerService.ListCodes(tenantID, repository.CodeListFilter{
		Page:       page,
		PageSize:   pageSize,
		ProductID:  queryUint(c, "product_id"),
		BatchID:    queryUint(c, "batch_id"),
		PrintRunID: queryUint(c, "print_run_id"),
		Status:     strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, codes, handlershared.BuildPagination(page, pageSize, total))
}

// GetCode 码详情：微码、祖先、后代与状态审计
func (h *Handler) GetCode(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	codeID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	code, err := h.LedgerService.GetCode(tenantID, codeID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	ancestors, err := h.GraphService.ListAncestors(tenantID, codeID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	descendants, err := h.VerifyService.ListDescendantViews(tenantID, codeID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	history, err := h.LedgerService.ListCodeHistory(tenantID, codeID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"code":        code,
		"micro_code":  service.FormatMicroCode(code.MicroCheck),
		"ancestors":   ancestors,
		"descendants": descendants,
		"history":     history,
	})
}

// MarkCodeStatus 单码状态变更
func (h *Handler) MarkCodeStatus(c *gin.Context) {
	tenantID, actor, ok := getOperator(c)
	if !ok {
		return
	}
	codeID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req MarkCodeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	code, err := h.LedgerService.MarkStatus(tenantID, codeID, req.Status, req.Reason, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, code)
}
