package shared

import (
	"errors"

	"github.com/qr-backend/internal/http/response"
	"github.com/qr-backend/internal/service"

	"github.com/gin-gonic/gin"
)

// MappedError 定义业务错误到接口错误响应的映射关系。
type MappedError struct {
	Target error
	Code   int
	Key    string
}

// ServiceErrorRules 核心服务哨兵错误的统一映射
var ServiceErrorRules = []MappedError{
	{Target: service.ErrQuotaExceeded, Code: response.CodeTooManyRequests, Key: "error.quota_exceeded"},
	{Target: service.ErrTokenInvalid, Code: response.CodeUnauthorized, Key: "error.token_invalid"},

	{Target: service.ErrProductUnknown, Code: response.CodeNotFound, Key: "error.product_not_found"},
	{Target: service.ErrBatchNotFound, Code: response.CodeNotFound, Key: "error.batch_not_found"},
	{Target: service.ErrChannelNotFound, Code: response.CodeNotFound, Key: "error.channel_not_found"},
	{Target: service.ErrPrintRunNotFound, Code: response.CodeNotFound, Key: "error.print_run_not_found"},
	{Target: service.ErrCodeNotFound, Code: response.CodeNotFound, Key: "error.code_not_found"},
	{Target: service.ErrJobNotFound, Code: response.CodeNotFound, Key: "error.job_not_found"},
	{Target: service.ErrDeviceNotFound, Code: response.CodeNotFound, Key: "error.device_not_found"},
	{Target: service.ErrNotFound, Code: response.CodeNotFound, Key: "error.not_found"},

	{Target: service.ErrSKUExists, Code: response.CodeConflict, Key: "error.sku_exists"},
	{Target: service.ErrBOMCycle, Code: response.CodeConflict, Key: "error.bom_cycle"},
	{Target: service.ErrCodeAlreadyAssembled, Code: response.CodeConflict, Key: "error.code_already_assembled"},
	{Target: service.ErrCodeAlreadyBound, Code: response.CodeConflict, Key: "error.code_already_bound"},
	{Target: service.ErrCodeAlreadyLinked, Code: response.CodeConflict, Key: "error.code_already_linked"},
	{Target: service.ErrDeviceAlreadyHasCode, Code: response.CodeConflict, Key: "error.device_already_has_code"},
	{Target: service.ErrDuplicateNFCUID, Code: response.CodeConflict, Key: "error.nfc_uid_duplicate"},
	{Target: service.ErrNotAllowedTransition, Code: response.CodeConflict, Key: "error.status_not_allowed"},
	{Target: service.ErrJobFinished, Code: response.CodeConflict, Key: "error.job_finished"},

	{Target: service.ErrBOMOverflow, Code: response.CodeUnprocessableEntity, Key: "error.bom_overflow"},
	{Target: service.ErrInsufficientCodePool, Code: response.CodeUnprocessableEntity, Key: "error.code_pool_insufficient"},
	{Target: service.ErrCodePoolMismatch, Code: response.CodeUnprocessableEntity, Key: "error.code_pool_mismatch"},
	{Target: service.ErrMissingRequiredAttributes, Code: response.CodeUnprocessableEntity, Key: "error.missing_attributes"},
	{Target: service.ErrProductUnresolved, Code: response.CodeUnprocessableEntity, Key: "error.product_unresolved"},
	{Target: service.ErrUnknownSKU, Code: response.CodeUnprocessableEntity, Key: "error.unknown_sku"},
	{Target: service.ErrCodeProductMismatch, Code: response.CodeUnprocessableEntity, Key: "error.code_product_mismatch"},
	{Target: service.ErrCodeExpired, Code: response.CodeUnprocessableEntity, Key: "error.code_expired"},
	{Target: service.ErrNoCodeAvailable, Code: response.CodeUnprocessableEntity, Key: "error.no_code_available"},

	{Target: service.ErrSKURequired, Code: response.CodeBadRequest, Key: "error.sku_required"},
	{Target: service.ErrInvalidProduct, Code: response.CodeBadRequest, Key: "error.product_invalid"},
	{Target: service.ErrBOMSelfEdge, Code: response.CodeBadRequest, Key: "error.bom_self_edge"},
	{Target: service.ErrBOMQuantity, Code: response.CodeBadRequest, Key: "error.bom_quantity_invalid"},
	{Target: service.ErrInvalidQuantity, Code: response.CodeBadRequest, Key: "error.quantity_invalid"},
	{Target: service.ErrInvalidVerification, Code: response.CodeBadRequest, Key: "error.verification_invalid"},
	{Target: service.ErrDeviceUIDRequired, Code: response.CodeBadRequest, Key: "error.device_uid_required"},
	{Target: service.ErrInvalidNFCUID, Code: response.CodeBadRequest, Key: "error.nfc_uid_invalid"},
	{Target: service.ErrInvalidPUFFingerprint, Code: response.CodeBadRequest, Key: "error.puf_invalid"},
	{Target: service.ErrInvalidCSV, Code: response.CodeBadRequest, Key: "error.csv_invalid"},
	{Target: service.ErrInvalidStatus, Code: response.CodeBadRequest, Key: "error.status_invalid"},
	{Target: service.ErrInvalidTarget, Code: response.CodeBadRequest, Key: "error.status_target_invalid"},
	{Target: service.ErrEmptySelector, Code: response.CodeBadRequest, Key: "error.status_selector_empty"},
	{Target: service.ErrInvalidArgument, Code: response.CodeBadRequest, Key: "error.argument_invalid"},

	{Target: service.ErrTokenExhausted, Code: response.CodeInternal, Key: "error.token_exhausted"},
}

// RespondServiceError 按统一映射返回业务错误，未命中时返回内部错误并记录日志。
func RespondServiceError(c *gin.Context, err error) {
	RespondMappedError(c, err, ServiceErrorRules, response.CodeInternal, "error.internal")
}

// RespondMappedError 按映射规则返回错误响应，携带错误明细。
func RespondMappedError(c *gin.Context, err error, rules []MappedError, fallbackCode int, fallbackKey string) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			RespondErrorWithData(c, rule.Code, rule.Key, errorDetail(err), nil)
			return
		}
	}
	RespondError(c, fallbackCode, fallbackKey, err)
}

func errorDetail(err error) interface{} {
	var missing *service.MissingAttributesError
	if errors.As(err, &missing) {
		return gin.H{"missing": missing.Keys}
	}
	var unknown *service.UnknownSKUError
	if errors.As(err, &unknown) {
		return gin.H{"unknown_skus": unknown.SKUs}
	}
	var pool *service.InsufficientPoolError
	if errors.As(err, &pool) {
		return gin.H{"product_id": pool.ProductID, "needed": pool.Needed, "available": pool.Available}
	}
	var quota *service.QuotaError
	if errors.As(err, &quota) {
		return gin.H{
			"requested":      quota.Requested,
			"used":           quota.Used,
			"monthly_limit":  quota.MonthlyLimit,
			"max_batch_size": quota.MaxBatchSize,
		}
	}
	return nil
}
