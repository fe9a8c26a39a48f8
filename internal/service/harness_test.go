package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/metrics"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/queue"
	"github.com/qr-backend/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type coreHarness struct {
	db         *gorm.DB
	registry   *prometheus.Registry
	catalog    *CatalogService
	bom        *BOMService
	provenance *ProvenanceService
	ledger     *CodeLedgerService
	graph      *CodeGraphService
	assembly   *AssemblyService
	binding    *BindingService
	engine     *StatusEngine
	jobs       *BulkJobService
	verify     *VerifyService
}

func setupCoreTest(t *testing.T, quota config.QuotaConfig) *coreHarness {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:service_%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.MigrateModels(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	keyring, err := NewHKDFKeyring("service-test-root-secret")
	if err != nil {
		t.Fatalf("new keyring failed: %v", err)
	}
	registry := prometheus.NewRegistry()
	coreMetrics := metrics.NewCoreMetrics(registry)
	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}

	productRepo := repository.NewProductRepository(db)
	bomRepo := repository.NewBOMRepository(db)
	codeRepo := repository.NewCodeRepository(db)
	provenanceRepo := repository.NewProvenanceRepository(db)
	graphRepo := repository.NewCodeGraphRepository(db)
	historyRepo := repository.NewStatusHistoryRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	jobRepo := repository.NewBulkJobRepository(db)

	codesCfg := config.CodesConfig{}
	bomSvc := NewBOMService(productRepo, bomRepo)
	ledger := NewCodeLedgerService(productRepo, codeRepo, provenanceRepo, graphRepo, historyRepo,
		NewTokenGenerator(keyring, codesCfg), NewConfigQuotaProvider(quota, codeRepo), coreMetrics, codesCfg)
	graph := NewCodeGraphService(productRepo, bomRepo, codeRepo, graphRepo, coreMetrics)
	binding := NewBindingService(productRepo, bomRepo, codeRepo, deviceRepo, historyRepo, coreMetrics)
	engine := NewStatusEngine(productRepo, codeRepo, deviceRepo, historyRepo, coreMetrics, 0)

	return &coreHarness{
		db:         db,
		registry:   registry,
		catalog:    NewCatalogService(productRepo, bomRepo),
		bom:        bomSvc,
		provenance: NewProvenanceService(provenanceRepo),
		ledger:     ledger,
		graph:      graph,
		assembly:   NewAssemblyService(ledger, bomSvc, graph),
		binding:    binding,
		engine:     engine,
		jobs:       NewBulkJobService(jobRepo, engine, queueClient, coreMetrics, config.BulkConfig{}),
		verify:     NewVerifyService(ledger, productRepo, codeRepo, deviceRepo, graphRepo, binding),
	}
}

func (h *coreHarness) createProduct(t *testing.T, tenantID uint, sku string, required ...string) *models.Product {
	t.Helper()
	template := make(models.AttributeTemplate, 0, len(required))
	for _, key := range required {
		template = append(template, models.AttributeField{Key: key, Required: true})
	}
	product, err := h.catalog.CreateProduct(CreateProductInput{TenantID: tenantID, SKU: sku, AttributeTemplate: template})
	if err != nil {
		t.Fatalf("create product %s failed: %v", sku, err)
	}
	return product
}

func (h *coreHarness) addEdge(t *testing.T, tenantID, parentID, childID uint, qty string) {
	t.Helper()
	if _, err := h.catalog.AddBOMEdge(tenantID, parentID, childID, decimal.RequireFromString(qty)); err != nil {
		t.Fatalf("add bom edge %d->%d failed: %v", parentID, childID, err)
	}
}

func (h *coreHarness) issue(t *testing.T, tenantID, productID uint, qty int64) []models.Code {
	t.Helper()
	codes, err := h.ledger.IssueCodes(IssueCodesInput{TenantID: tenantID, ProductID: productID, Quantity: qty})
	if err != nil {
		t.Fatalf("issue codes failed: %v", err)
	}
	return codes
}

func (h *coreHarness) countRows(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var count int64
	db := h.db.Model(model)
	if query != "" {
		db = db.Where(query, args...)
	}
	if err := db.Count(&count).Error; err != nil {
		t.Fatalf("count rows failed: %v", err)
	}
	return count
}

func (h *coreHarness) reloadCode(t *testing.T, id uint) models.Code {
	t.Helper()
	var code models.Code
	if err := h.db.First(&code, id).Error; err != nil {
		t.Fatalf("reload code %d failed: %v", id, err)
	}
	return code
}
