package admin

import (
	"strconv"
	"strings"

	handlershared "github.com/qr-backend/internal/http/handlers/shared"
	"github.com/qr-backend/internal/http/response"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/repository"
	"github.com/qr-backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateProductRequest 创建商品请求
type CreateProductRequest struct {
	SKU               string                   `json:"sku" binding:"required"`
	Name              string                   `json:"name"`
	Type              string                   `json:"type"`
	AttributeTemplate models.AttributeTemplate `json:"attribute_template"`
}

// SetAttributeTemplateRequest 设置属性模板请求
type SetAttributeTemplateRequest struct {
	AttributeTemplate models.AttributeTemplate `json:"attribute_template"`
}

// AddBOMEdgeRequest 新增或更新 BOM 边请求
type AddBOMEdgeRequest struct {
	ChildProductID uint            `json:"child_product_id" binding:"required"`
	Quantity       decimal.Decimal `json:"quantity"`
}

// ListProducts 商品列表
func (h *Handler) ListProducts(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	products, total, err := h.CatalogService.ListProducts(tenantID, repository.ProductListFilter{
		Page:     page,
		PageSize: pageSize,
		Type:     strings.TrimSpace(c.Query("type")),
		Status:   strings.TrimSpace(c.Query("status")),
		Search:   strings.TrimSpace(c.Query("search")),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, products, handlershared.BuildPagination(page, pageSize, total))
}

// CreateProduct 创建商品
func (h *Handler) CreateProduct(c *gin.Context) {
	tenantID, actor, ok := getOperator(c)
	if !ok {
		return
	}
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	product, err := h.CatalogService.CreateProduct(service.CreateProductInput{
		TenantID:          tenantID,
		SKU:               req.SKU,
		Name:              req.Name,
		Type:              req.Type,
		AttributeTemplate: req.AttributeTemplate,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("admin_product_created", "product_id", product.ID, "sku", product.SKU, "actor", actor)
	response.Success(c, product)
}

// GetProduct 商品详情（含直接 BOM）
func (h *Handler) GetProduct(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	product, err := h.CatalogService.GetProduct(tenantID, productID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	edges, err := h.CatalogService.ListBOMEdges(tenantID, productID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"product": product,
		"bom":     edges,
	})
}

// SetAttributeTemplate 设置设备属性模板
func (h *Handler) SetAttributeTemplate(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req SetAttributeTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	product, err := h.CatalogService.SetAttributeTemplate(tenantID, productID, req.AttributeTemplate)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, product)
}

// ArchiveProduct 归档商品
func (h *Handler) ArchiveProduct(c *gin.Context) {
	tenantID, actor, ok := getOperator(c)
	if !ok {
		return
	}
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.CatalogService.ArchiveProduct(tenantID, productID); err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("admin_product_archived", "product_id", productID, "actor", actor)
	response.Success(c, nil)
}

// AddBOMEdge 新增或更新 BOM 边
func (h *Handler) AddBOMEdge(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	parentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req AddBOMEdgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	edge, err := h.CatalogService.AddBOMEdge(tenantID, parentID, req.ChildProductID, req.Quantity)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, edge)
}

// RemoveBOMEdge 删除 BOM 边
func (h *Handler) RemoveBOMEdge(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	parentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	childID, ok := parseIDParam(c, "child_id")
	if !ok {
		return
	}
	if err := h.CatalogService.RemoveBOMEdge(tenantID, parentID, childID); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, nil)
}

// GetRequirements 展开 BOM 需求
func (h *Handler) GetRequirements(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	qty, err := strconv.ParseInt(strings.TrimSpace(c.DefaultQuery("qty", "1")), 10, 64)
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.quantity_invalid", nil)
		return
	}
	plan, err := h.BOMService.Plan(tenantID, productID, qty)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"root_product_id": plan.RootProductID,
		"root_quantity":   plan.RootQuantity,
		"quantities":      plan.Quantities,
		"total":           plan.Total(),
		"suppressed":      plan.Suppressed,
	})
}
