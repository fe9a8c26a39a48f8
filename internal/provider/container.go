package provider

import (
	"github.com/qr-backend/internal/cache"
	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/logger"
	"github.com/qr-backend/internal/metrics"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/queue"
	"github.com/qr-backend/internal/repository"
	"github.com/qr-backend/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Registry    *prometheus.Registry
	Metrics     *metrics.CoreMetrics

	// Repositories
	ProductRepo       repository.ProductRepository
	BOMRepo           repository.BOMRepository
	CodeRepo          repository.CodeRepository
	ProvenanceRepo    repository.ProvenanceRepository
	CodeGraphRepo     repository.CodeGraphRepository
	StatusHistoryRepo repository.StatusHistoryRepository
	DeviceRepo        repository.DeviceRepository
	BulkJobRepo       repository.BulkJobRepository

	// Services
	AuthService       *service.AuthService
	CatalogService    *service.CatalogService
	BOMService        *service.BOMService
	ProvenanceService *service.ProvenanceService
	LedgerService     *service.CodeLedgerService
	GraphService      *service.CodeGraphService
	AssemblyService   *service.AssemblyService
	BindingService    *service.BindingService
	StatusEngine      *service.StatusEngine
	BulkJobService    *service.BulkJobService
	VerifyService     *service.VerifyService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) (*Container, error) {
	return NewContainerWithDB(cfg, models.DB)
}

// NewContainerWithDB 使用指定数据库连接初始化容器
func NewContainerWithDB(cfg *config.Config, db *gorm.DB) (*Container, error) {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Registry:    registry,
		Metrics:     metrics.NewCoreMetrics(registry),
	}

	// 1. 初始化 Repositories
	c.initRepositories(db)

	// 2. 初始化 Services
	if err := c.initServices(); err != nil {
		_ = queueClient.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.ProductRepo = repository.NewProductRepository(db)
	c.BOMRepo = repository.NewBOMRepository(db)
	c.CodeRepo = repository.NewCodeRepository(db)
	c.ProvenanceRepo = repository.NewProvenanceRepository(db)
	c.CodeGraphRepo = repository.NewCodeGraphRepository(db)
	c.StatusHistoryRepo = repository.NewStatusHistoryRepository(db)
	c.DeviceRepo = repository.NewDeviceRepository(db)
	c.BulkJobRepo = repository.NewBulkJobRepository(db)
}

func (c *Container) initServices() error {
	cfg := c.Config
	keyring, err := service.NewHKDFKeyring(cfg.Codes.RootSecret)
	if err != nil {
		logger.Errorw("provider_init_keyring_failed", "error", err)
		return err
	}

	c.AuthService = service.NewAuthService(cfg.JWT)
	c.CatalogService = service.NewCatalogService(c.ProductRepo, c.BOMRepo)
	c.BOMService = service.NewBOMService(c.ProductRepo, c.BOMRepo)
	c.ProvenanceService = service.NewProvenanceService(c.ProvenanceRepo)
	c.LedgerService = service.NewCodeLedgerService(
		c.ProductRepo,
		c.CodeRepo,
		c.ProvenanceRepo,
		c.CodeGraphRepo,
		c.StatusHistoryRepo,
		service.NewTokenGenerator(keyring, cfg.Codes),
		service.NewConfigQuotaProvider(cfg.Quota, c.CodeRepo),
		c.Metrics,
		cfg.Codes,
	)
	c.GraphService = service.NewCodeGraphService(c.ProductRepo, c.BOMRepo, c.CodeRepo, c.CodeGraphRepo, c.Metrics)
	c.AssemblyService = service.NewAssemblyService(c.LedgerService, c.BOMService, c.GraphService)
	c.BindingService = service.NewBindingService(c.ProductRepo, c.BOMRepo, c.CodeRepo, c.DeviceRepo, c.StatusHistoryRepo, c.Metrics)
	c.StatusEngine = service.NewStatusEngine(c.ProductRepo, c.CodeRepo, c.DeviceRepo, c.StatusHistoryRepo, c.Metrics, cfg.Bulk.ChunkSize)
	c.BulkJobService = service.NewBulkJobService(c.BulkJobRepo, c.StatusEngine, c.QueueClient, c.Metrics, cfg.Bulk)
	c.VerifyService = service.NewVerifyService(c.LedgerService, c.ProductRepo, c.CodeRepo, c.DeviceRepo, c.CodeGraphRepo, c.BindingService)
	return nil
}

// Close 释放容器持有的外部连接
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	return multierr.Combine(
		c.QueueClient.Close(),
		cache.Close(),
	)
}
