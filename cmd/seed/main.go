package main

import (
	"flag"
	"fmt"

	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/constants"
	"github.com/qr-backend/internal/logger"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/provider"
	"github.com/qr-backend/internal/service"

	"github.com/shopspring/decimal"
)

type seedProduct struct {
	SKU        string
	Name       string
	Type       string
	Attributes models.AttributeTemplate
}

type seedEdge struct {
	Parent   string
	Child    string
	Quantity string
}

var seedProducts = []seedProduct{
	{SKU: "KIT-STARTER", Name: "Starter Kit", Type: constants.ProductTypeComposite},
	{SKU: "CTRL-BOARD", Name: "Controller Board", Type: constants.ProductTypeStandard, Attributes: models.AttributeTemplate{
		{Key: "serial", Label: "Serial Number", Required: true},
		{Key: "firmware", Label: "Firmware"},
	}},
	{SKU: "SENSOR-T", Name: "Temperature Sensor", Type: constants.ProductTypeStandard},
	{SKU: "CABLE-1M", Name: "Cable 1m", Type: constants.ProductTypeStandard},
}

var seedEdges = []seedEdge{
	{Parent: "KIT-STARTER", Child: "CTRL-BOARD", Quantity: "1"},
	{Parent: "KIT-STARTER", Child: "SENSOR-T", Quantity: "2"},
	{Parent: "CTRL-BOARD", Child: "CABLE-1M", Quantity: "0.5"},
}

func main() {
	var tenantID uint
	var actor string
	flag.UintVar(&tenantID, "tenant", 1, "租户ID")
	flag.StringVar(&actor, "actor", "seed-operator", "操作员标识")
	flag.Parse()

	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, cfg.Server.Mode, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	defer models.CloseDB()

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	container, err := provider.NewContainer(cfg)
	if err != nil {
		stdLog.Fatalf("Failed to build container: %v", err)
	}
	defer container.Close()

	summary, err := seedCatalog(container, tenantID)
	if err != nil {
		stdLog.Fatalf("Failed to seed catalog: %v", err)
	}
	for _, item := range seedProducts {
		fmt.Printf("product: %s (id=%d)\n", item.SKU, summary.ProductIDs[item.SKU])
	}
	fmt.Printf("requirements for 1 x KIT-STARTER: %v\n", summary.Plan.Quantities)

	token, expiresAt, err := container.AuthService.GenerateJWT(tenantID, actor)
	if err != nil {
		stdLog.Fatalf("Failed to issue operator token: %v", err)
	}
	fmt.Printf("operator token (expires %s):\n%s\n", expiresAt.Format("2006-01-02 15:04:05"), token)
}

type seedSummary struct {
	ProductIDs map[string]uint
	Plan       *service.RequirementPlan
}

// seedCatalog 写入演示商品与 BOM，可重复执行
func seedCatalog(container *provider.Container, tenantID uint) (*seedSummary, error) {
	ids := make(map[string]uint, len(seedProducts))
	for _, item := range seedProducts {
		existing, err := container.ProductRepo.GetBySKU(tenantID, item.SKU)
		if err != nil {
			return nil, fmt.Errorf("query product %s: %w", item.SKU, err)
		}
		if existing != nil {
			ids[item.SKU] = existing.ID
			continue
		}
		product, err := container.CatalogService.CreateProduct(service.CreateProductInput{
			TenantID:          tenantID,
			SKU:               item.SKU,
			Name:              item.Name,
			Type:              item.Type,
			AttributeTemplate: item.Attributes,
		})
		if err != nil {
			return nil, fmt.Errorf("create product %s: %w", item.SKU, err)
		}
		ids[item.SKU] = product.ID
	}

	for _, edge := range seedEdges {
		quantity, err := decimal.NewFromString(edge.Quantity)
		if err != nil {
			return nil, fmt.Errorf("parse quantity %s -> %s: %w", edge.Parent, edge.Child, err)
		}
		if _, err := container.CatalogService.AddBOMEdge(tenantID, ids[edge.Parent], ids[edge.Child], quantity); err != nil {
			return nil, fmt.Errorf("add bom edge %s -> %s: %w", edge.Parent, edge.Child, err)
		}
	}

	channel, err := container.ProvenanceRepo.GetChannelByCode(tenantID, "DEMO")
	if err != nil {
		return nil, fmt.Errorf("query channel: %w", err)
	}
	if channel == nil {
		if _, err := container.ProvenanceService.CreateChannel(tenantID, "DEMO", "Demo Channel"); err != nil {
			return nil, fmt.Errorf("create channel: %w", err)
		}
	}

	plan, err := container.BOMService.Plan(tenantID, ids["KIT-STARTER"], 1)
	if err != nil {
		return nil, fmt.Errorf("expand requirements: %w", err)
	}
	return &seedSummary{ProductIDs: ids, Plan: plan}, nil
}
