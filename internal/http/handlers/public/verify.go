package public

import (
	"strconv"
	"strings"

	handlershared "github.com/qr-backend/internal/http/handlers/shared"
	"github.com/qr-backend/internal/http/response"

	"github.com/gin-gonic/gin"
)

// TenantHeader 公开校验接口的租户请求头
const TenantHeader = "X-Tenant-ID"

// resolveTenantID 读取租户：请求头优先，其次查询参数 tenant_id
func resolveTenantID(c *gin.Context) (uint, bool) {
	raw := strings.TrimSpace(c.GetHeader(TenantHeader))
	if raw == "" {
		raw = strings.TrimSpace(c.Query("tenant_id"))
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		handlershared.RespondError(c, response.CodeBadRequest, "error.tenant_id_invalid", nil)
		return 0, false
	}
	return uint(value), true
}

// VerifyToken 扫码校验：真伪、微码比对、绑定设备与组件清单
func (h *Handler) VerifyToken(c *gin.Context) {
	tenantID, ok := resolveTenantID(c)
	if !ok {
		return
	}
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		handlershared.RespondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	result, err := h.VerifyService.VerifyToken(tenantID, token, c.Query("micro"))
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, result)
}
