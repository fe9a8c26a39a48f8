//go:build integration
// +build integration

package repository

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/qr-backend/internal/constants"
	"github.com/qr-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := []interface{}{
		&models.CodeDeviceLink{},
		&models.Device{},
		&models.Code{},
		&models.BOMEdge{},
		&models.Product{},
	}
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := db.AutoMigrate(
		&models.Product{},
		&models.BOMEdge{},
		&models.Code{},
		&models.Device{},
		&models.CodeDeviceLink{},
	); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresUniqueViolationTargets(t *testing.T) {
	db := setupPostgresIntegrationDB(t)

	productRepo := NewProductRepository(db)
	product := &models.Product{TenantID: 1, SKU: "PG-WIDGET", Name: "widget", Type: constants.ProductTypeStandard, Status: constants.ProductStatusActive}
	if err := productRepo.Create(product); err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	dup := &models.Product{TenantID: 1, SKU: "PG-WIDGET", Name: "dup", Type: constants.ProductTypeStandard, Status: constants.ProductStatusActive}
	err := productRepo.Create(dup)
	if !IsUniqueViolation(err) {
		t.Fatalf("duplicate sku should be unique violation, got %v", err)
	}
	if !UniqueViolationOn(err, "uk_products_tenant_sku", "products.sku") {
		t.Fatalf("violation target mismatch: %s", UniqueViolationTarget(err))
	}

	edge := &models.BOMEdge{TenantID: 1, ParentProductID: product.ID, ChildProductID: product.ID + 1, Quantity: decimal.RequireFromString("1.5")}
	if err := NewBOMRepository(db).Create(edge); err != nil {
		t.Fatalf("create bom edge failed: %v", err)
	}

	codeRepo := NewCodeRepository(db)
	nfc := "04AABBCC"
	now := time.Now()
	codes := []models.Code{
		{TenantID: 1, Token: "tok-a", TokenHash: strings.Repeat("a", 64), Status: constants.CodeStatusIssued, MicroCheck: strings.Repeat("0", 32), WatermarkHash: strings.Repeat("1", 32), NFCUID: &nfc, ProductID: &product.ID, IssuedAt: now},
	}
	if err := codeRepo.CreateBatch(codes); err != nil {
		t.Fatalf("create codes failed: %v", err)
	}
	again := []models.Code{
		{TenantID: 1, Token: "tok-b", TokenHash: strings.Repeat("b", 64), Status: constants.CodeStatusIssued, MicroCheck: strings.Repeat("0", 32), WatermarkHash: strings.Repeat("1", 32), NFCUID: &nfc, ProductID: &product.ID, IssuedAt: now},
	}
	err = codeRepo.CreateBatch(again)
	if !UniqueViolationOn(err, "uk_codes_tenant_nfc_uid", "codes.nfc_uid") {
		t.Fatalf("duplicate nfc uid should hit nfc constraint, got %v", err)
	}

	claimed, err := codeRepo.ClaimNextIssued(1, CodeClaimFilter{ProductID: product.ID})
	if err != nil || claimed == nil {
		t.Fatalf("claim next issued failed: %v", err)
	}
}
