package admin

import "github.com/qr-backend/internal/provider"

// Handler 后台管理接口处理器入口
// 说明：该处理器仅用于租户操作员 API，租户与操作人来自令牌。
type Handler struct {
	*provider.Container
}

// New 创建后台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
