package shared

import (
	"strings"

	"github.com/qr-backend/internal/http/response"

	"github.com/gin-gonic/gin"
)

// 上下文键
const (
	ContextKeyTenantID = "tenant_id"
	ContextKeyActor    = "actor"
)

// GetContextUintWithKeys 从上下文读取 uint 值并统一处理错误响应。
func GetContextUintWithKeys(c *gin.Context, key, invalidKey, typeInvalidKey string) (uint, bool) {
	value, exists := c.Get(key)
	if !exists {
		RespondError(c, response.CodeUnauthorized, "error.unauthorized", nil)
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		if v == 0 {
			RespondError(c, response.CodeUnauthorized, invalidKey, nil)
			return 0, false
		}
		return v, true
	case int:
		if v <= 0 {
			RespondError(c, response.CodeBadRequest, invalidKey, nil)
			return 0, false
		}
		return uint(v), true
	case float64:
		if v <= 0 {
			RespondError(c, response.CodeBadRequest, invalidKey, nil)
			return 0, false
		}
		return uint(v), true
	default:
		RespondError(c, response.CodeInternal, typeInvalidKey, nil)
		return 0, false
	}
}

// GetTenantID 读取令牌中的租户ID
func GetTenantID(c *gin.Context) (uint, bool) {
	return GetContextUintWithKeys(c, ContextKeyTenantID, "error.tenant_id_invalid", "error.tenant_id_type_invalid")
}

// GetOperator 读取令牌中的租户与操作人
func GetOperator(c *gin.Context) (uint, string, bool) {
	tenantID, ok := GetTenantID(c)
	if !ok {
		return 0, "", false
	}
	actor := strings.TrimSpace(c.GetString(ContextKeyActor))
	if actor == "" {
		RespondError(c, response.CodeUnauthorized, "error.actor_missing", nil)
		return 0, "", false
	}
	return tenantID, actor, true
}
