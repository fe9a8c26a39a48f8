package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/qr-backend/internal/models"
)

// 通用错误
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStorageFailed   = errors.New("storage operation failed")
)

// 发码与配额错误
var (
	ErrQuotaExceeded       = errors.New("code quota exceeded")
	ErrProductUnknown      = errors.New("product unknown")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInvalidVerification = errors.New("invalid verification mode")
	ErrTokenExhausted      = errors.New("unable to mint a unique token")
	ErrBatchNotFound       = errors.New("batch not found")
	ErrChannelNotFound     = errors.New("channel not found")
	ErrPrintRunNotFound    = errors.New("print run not found")
)

// 目录与 BOM 错误
var (
	ErrBOMCycle       = errors.New("bom edge would create a cycle")
	ErrBOMSelfEdge    = errors.New("bom edge cannot reference itself")
	ErrBOMQuantity    = errors.New("bom quantity must be positive")
	ErrSKUExists      = errors.New("sku already exists")
	ErrSKURequired    = errors.New("sku is required")
	ErrInvalidProduct = errors.New("invalid product")
	ErrBOMOverflow    = errors.New("bom requirement exceeds supported quantity")
)

// 码装配图错误
var (
	ErrInsufficientCodePool = errors.New("insufficient code pool")
	ErrCodePoolMismatch     = errors.New("code pool does not match product")
	ErrCodeAlreadyAssembled = errors.New("code already assembled under a parent")
)

// 绑定错误
var (
	ErrCodeNotFound              = errors.New("code not found")
	ErrCodeAlreadyBound          = errors.New("code already bound")
	ErrCodeAlreadyLinked         = errors.New("code already linked to a device")
	ErrDeviceAlreadyHasCode      = errors.New("device already has a code")
	ErrProductUnresolved         = errors.New("product unresolved")
	ErrMissingRequiredAttributes = errors.New("missing required attributes")
	ErrUnknownSKU                = errors.New("unknown sku")
	ErrDeviceUIDRequired         = errors.New("device uid is required")
	ErrCodeProductMismatch       = errors.New("code belongs to another product")
	ErrCodeExpired               = errors.New("code expired")
	ErrNoCodeAvailable           = errors.New("no issued code available")
	ErrInvalidNFCUID             = errors.New("invalid nfc uid")
	ErrInvalidPUFFingerprint     = errors.New("invalid puf fingerprint")
	ErrDuplicateNFCUID           = errors.New("duplicate nfc uid")
	ErrInvalidCSV                = errors.New("invalid csv")
	ErrDeviceNotFound            = errors.New("device not found")
)

// 状态与任务错误
var (
	ErrNotAllowedTransition = errors.New("status transition not allowed")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidTarget        = errors.New("invalid status target")
	ErrEmptySelector        = errors.New("status selector is empty")
	ErrJobNotFound          = errors.New("bulk job not found")
	ErrJobFinished          = errors.New("bulk job already finished")
)

// MissingAttributesError 缺少必填属性（列出全部缺失键）
type MissingAttributesError struct {
	Keys []string
}

func (e *MissingAttributesError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingRequiredAttributes.Error(), strings.Join(e.Keys, ", "))
}

// Unwrap 支持 errors.Is
func (e *MissingAttributesError) Unwrap() error {
	return ErrMissingRequiredAttributes
}

// UnknownSKUError 批量绑定预检失败的 SKU
type UnknownSKUError struct {
	SKUs []string
}

func (e *UnknownSKUError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownSKU.Error(), strings.Join(e.SKUs, ", "))
}

// Unwrap 支持 errors.Is
func (e *UnknownSKUError) Unwrap() error {
	return ErrUnknownSKU
}

// InsufficientPoolError 装配时子件码池不足
type InsufficientPoolError struct {
	ProductID uint
	Needed    int64
	Available int64
}

func (e *InsufficientPoolError) Error() string {
	return fmt.Sprintf("%s: product %d needs %d, pool has %d", ErrInsufficientCodePool.Error(), e.ProductID, e.Needed, e.Available)
}

// Unwrap 支持 errors.Is
func (e *InsufficientPoolError) Unwrap() error {
	return ErrInsufficientCodePool
}

// QuantityOverflowError BOM 展开数量溢出
type QuantityOverflowError struct {
	ProductID uint
}

func (e *QuantityOverflowError) Error() string {
	return fmt.Sprintf("%s: product %d", ErrBOMOverflow.Error(), e.ProductID)
}

// Unwrap 支持 errors.Is
func (e *QuantityOverflowError) Unwrap() error {
	return ErrBOMOverflow
}

// QuotaError 配额超限详情
type QuotaError struct {
	Requested    int64
	Used         int64
	MonthlyLimit int64
	MaxBatchSize int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: requested %d, used %d/%d, max batch %d", ErrQuotaExceeded.Error(), e.Requested, e.Used, e.MonthlyLimit, e.MaxBatchSize)
}

// Unwrap 支持 errors.Is
func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}

// RowError 批处理行级错误，Row 为输入行号（从 1 开始）
type RowError struct {
	Row     int    `json:"row"`
	Ref     string `json:"ref,omitempty"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d (%s): %s: %s", e.Row, e.Field, e.Code, e.Message)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Code, e.Message)
}

func toRowErrorList(rows []RowError) models.RowErrorList {
	list := make(models.RowErrorList, 0, len(rows))
	for _, row := range rows {
		list = append(list, models.RowErrorEntry{
			Row:     row.Row,
			Ref:     row.Ref,
			Field:   row.Field,
			Code:    row.Code,
			Message: row.Message,
		})
	}
	return list
}
