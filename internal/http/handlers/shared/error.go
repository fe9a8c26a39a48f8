package shared

import (
	"github.com/qr-backend/internal/http/response"
	"github.com/qr-backend/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	kv := make([]interface{}, 0, 4)
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			kv = append(kv, "request_id", id)
		}
	}
	if tenantID, ok := c.Get("tenant_id"); ok {
		kv = append(kv, "tenant_id", tenantID)
	}
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, key string, err error) {
	RespondErrorWithData(c, code, key, nil, err)
}

// RespondErrorWithData 返回携带明细数据的错误响应。
func RespondErrorWithData(c *gin.Context, code int, key string, data interface{}, err error) {
	appErr := response.WrapError(code, Message(key), err)
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
	}
	if data == nil {
		response.Error(c, appErr.Code, appErr.Message)
		return
	}
	response.ErrorWithData(c, appErr.Code, appErr.Message, data)
}

// RespondErrorWithMsg 返回自定义消息错误响应，并在有原始错误时记录日志。
func RespondErrorWithMsg(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
	}
	response.Error(c, appErr.Code, appErr.Message)
}
