package admin

import (
	"strconv"
	"strings"

	handlershared "github.com/qr-backend/internal/http/handlers/shared"
	"github.com/qr-backend/internal/http/response"
	"github.com/qr-backend/internal/repository"
	"github.com/qr-backend/internal/service"

	"github.com/gin-gonic/gin"
)

// BindDeviceRequest 单个绑定请求
type BindDeviceRequest struct {
	Token     string                 `json:"token" binding:"required"`
	DeviceUID string                 `json:"device_uid" binding:"required"`
	ProductID uint                   `json:"product_id"`
	Attrs     map[string]interface{} `json:"attrs"`
	Station   string                 `json:"station"`
}

// BulkBindRequest 批量绑定请求（JSON 行）
type BulkBindRequest struct {
	RootProductID uint                  `json:"root_product_id"`
	RootSKU       string                `json:"root_sku"`
	Allocate      bool                  `json:"allocate"`
	BatchID       uint                  `json:"batch_id"`
	ChannelID     uint                  `json:"channel_id"`
	Station       string                `json:"station"`
	Rows          []service.BulkBindRow `json:"rows" binding:"required"`
}

// BindDevice 扫码绑定设备
func (h *Handler) BindDevice(c *gin.Context) {
	tenantID, actor, ok := getOperator(c)
	if !ok {
		return
	}
	var req BindDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	device, err := h.BindingService.BindDevice(service.BindDeviceInput{
		TenantID:  tenantID,
		Token:     req.Token,
		DeviceUID: req.DeviceUID,
		ProductID: req.ProductID,
		Attrs:     req.Attrs,
		Actor:     actor,
		Station:   req.Station,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, device)
}

// BulkBind 批量绑定（JSON）
func (h *Handler) BulkBind(c *gin.Context) {
	tenantID, actor, ok := getOperator(c)
	if !ok {
		return
	}
	var req BulkBindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	for i := range req.Rows {
		if req.Rows[i].Row == 0 {
			req.Rows[i].Row = i + 1
		}
	}
	h.runBulkBind(c, service.BulkBindInput{
		TenantID:      tenantID,
		RootProductID: req.RootProductID,
		RootSKU:       req.RootSKU,
		Rows:          req.Rows,
		Allocate:      req.Allocate,
		BatchID:       req.BatchID,
		ChannelID:     req.ChannelID,
		Actor:         actor,
		Station:       req.Station,
	})
}

// BulkBindCSV 批量绑定（multipart CSV 上传）
func (h *Handler) BulkBindCSV(c *gin.Context) {
	tenantID, actor, ok := getOperator(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.csv_file_required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.csv_invalid", err)
		return
	}
	defer file.Close()

	rows, err := service.ParseBindCSV(file)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	allocate, _ := strconv.ParseBool(strings.TrimSpace(c.PostForm("allocate")))
	rootProductID, _ := parseUintString(c.PostForm("root_product_id"))
	batchID, _ := parseUintString(c.PostForm("batch_id"))
	channelID, _ := parseUintString(c.PostForm("channel_id"))

	h.runBulkBind(c, service.BulkBindInput{
		TenantID:      tenantID,
		RootProductID: rootProductID,
		RootSKU:       strings.TrimSpace(c.PostForm("root_sku")),
		Rows:          rows,
		Allocate:      allocate,
		BatchID:       batchID,
		ChannelID:     channelID,
		Actor:         actor,
		Station:       strings.TrimSpace(c.PostForm("station")),
	})
}

func (h *Handler) runBulkBind(c *gin.Context, input service.BulkBindInput) {
	result, err := h.BindingService.BulkBind(input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("admin_bulk_bind_done",
		"rows", len(input.Rows),
		"bound_total", result.BoundTotal,
		"assembly_linked", result.AssemblyLinked,
		"error_count", len(result.Errors),
		"actor", input.Actor,
	)
	response.Success(c, result)
}

// ListDevices 设备列表
func (h *Handler) ListDevices(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	devices, total, err := h.BindingService.ListDevices(tenantID, repository.DeviceListFilter{
		Page:      page,
		PageSize:  pageSize,
		ProductID: queryUint(c, "product_id"),
		Status:    strings.TrimSpace(c.Query("status")),
		Search:    strings.TrimSpace(c.Query("search")),
		AttrKey:   strings.TrimSpace(c.Query("attr_key")),
		AttrValue: strings.TrimSpace(c.Query("attr_value")),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, devices, handlershared.BuildPagination(page, pageSize, total))
}

// GetDevice 设备详情
func (h *Handler) GetDevice(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	deviceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	device, err := h.BindingService.GetDevice(tenantID, deviceID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, device)
}

// GetAssemblyCoverage 组合设备装配完整度
func (h *Handler) GetAssemblyCoverage(c *gin.Context) {
	tenantID, _, ok := getOperator(c)
	if !ok {
		return
	}
	deviceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	coverage, err := h.BindingService.AssemblyCoverage(tenantID, deviceID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, coverage)
}
