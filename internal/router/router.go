package router

import (
	"fmt"
	"strings"

	"github.com/qr-backend/internal/cache"
	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/constants"
	adminhandlers "github.com/qr-backend/internal/http/handlers/admin"
	publichandlers "github.com/qr-backend/internal/http/handlers/public"
	"github.com/qr-backend/internal/logger"
	"github.com/qr-backend/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按公开/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = constants.RedisPrefixDefault
	}
	verifyRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:verify", redisPrefix),
		WindowSeconds: cfg.Security.VerifyRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.VerifyRateLimit.MaxRequests,
		BlockSeconds:  cfg.Security.VerifyRateLimit.BlockSeconds,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		public := apiV1.Group("/public")
		{
			public.GET("/verify/:token",
				RateLimitMiddleware(cache.Client(), verifyRule, KeyByIPAndHeader(publichandlers.TenantHeader)),
				publicHandler.VerifyToken,
			)
		}

		// 后台接口（租户与操作人来自令牌）
		authorized := apiV1.Group("/admin")
		authorized.Use(JWTAuthMiddleware(c.AuthService))
		{
			// 商品与 BOM
			authorized.GET("/products", adminHandler.ListProducts)
			authorized.POST("/products", adminHandler.CreateProduct)
			authorized.GET("/products/:id", adminHandler.GetProduct)
			authorized.PUT("/products/:id/attribute-template", adminHandler.SetAttributeTemplate)
			authorized.POST("/products/:id/archive", adminHandler.ArchiveProduct)
			authorized.POST("/products/:id/bom", adminHandler.AddBOMEdge)
			authorized.DELETE("/products/:id/bom/:child_id", adminHandler.RemoveBOMEdge)
			authorized.GET("/products/:id/requirements", adminHandler.GetRequirements)

			// 批次、印刷批次与渠道
			authorized.POST("/batches", adminHandler.CreateBatch)
			authorized.POST("/print-runs", adminHandler.CreatePrintRun)
			authorized.POST("/channels", adminHandler.CreateChannel)

			// 发码与码图
			authorized.POST("/codes/issue", adminHandler.IssueCodes)
			authorized.POST("/codes/mint-assembly", adminHandler.MintAssembly)
			authorized.POST("/codes/link-graph", adminHandler.LinkGraph)
			authorized.GET("/codes", adminHandler.ListCodes)
			authorized.GET("/codes/:id", adminHandler.GetCode)
			authorized.POST("/codes/:id/status", adminHandler.MarkCodeStatus)

			// 绑定
			authorized.POST("/bind", adminHandler.BindDevice)
			authorized.POST("/bind/bulk", adminHandler.BulkBind)
			authorized.POST("/bind/bulk/csv", adminHandler.BulkBindCSV)
			authorized.GET("/devices", adminHandler.ListDevices)
			authorized.GET("/devices/:id", adminHandler.GetDevice)
			authorized.GET("/devices/:id/coverage", adminHandler.GetAssemblyCoverage)

			// 批量状态与任务
			authorized.POST("/status/bulk", adminHandler.SubmitBulkStatus)
			authorized.GET("/jobs/:id", adminHandler.GetJob)
			authorized.POST("/jobs/:id/cancel", adminHandler.CancelJob)
		}
	}

	// 指标
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})))

	// 健康检查
	r.GET("/health", func(ctx *gin.Context) {
		redisStatus := "disabled"
		if cache.Enabled() {
			redisStatus = "ok"
			if err := cache.Ping(ctx.Request.Context()); err != nil {
				redisStatus = "unavailable"
			}
		}
		ctx.JSON(200, gin.H{"status": "ok", "redis": redisStatus})
	})

	return r
}
