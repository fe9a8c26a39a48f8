package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/provider"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newSeedContainer(t *testing.T) (*provider.Container, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:seed_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.MigrateModels(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	cfg := &config.Config{
		JWT:   config.JWTConfig{SecretKey: "seed-test-secret", ExpireHours: 1},
		Codes: config.CodesConfig{RootSecret: "seed-test-root"}.Normalize(),
	}
	container, err := provider.NewContainerWithDB(cfg, db)
	if err != nil {
		t.Fatalf("new container failed: %v", err)
	}
	t.Cleanup(func() { _ = container.Close() })
	return container, db
}

func TestSeedCatalogIsRepeatable(t *testing.T) {
	container, db := newSeedContainer(t)

	first, err := seedCatalog(container, 1)
	if err != nil {
		t.Fatalf("first seed failed: %v", err)
	}
	second, err := seedCatalog(container, 1)
	if err != nil {
		t.Fatalf("second seed failed: %v", err)
	}
	for sku, id := range first.ProductIDs {
		if second.ProductIDs[sku] != id {
			t.Fatalf("product %s changed id on reseed: %d -> %d", sku, id, second.ProductIDs[sku])
		}
	}

	var products, edges, channels int64
	db.Model(&models.Product{}).Where("tenant_id = ?", 1).Count(&products)
	db.Model(&models.BOMEdge{}).Where("tenant_id = ?", 1).Count(&edges)
	db.Model(&models.Channel{}).Where("tenant_id = ?", 1).Count(&channels)
	if products != int64(len(seedProducts)) || edges != int64(len(seedEdges)) || channels != 1 {
		t.Fatalf("unexpected seeded rows: products=%d edges=%d channels=%d", products, edges, channels)
	}

	want := map[string]int64{"KIT-STARTER": 1, "CTRL-BOARD": 1, "SENSOR-T": 2, "CABLE-1M": 1}
	for sku, qty := range want {
		if got := second.Plan.Quantities[second.ProductIDs[sku]]; got != qty {
			t.Fatalf("plan for %s = %d, want %d", sku, got, qty)
		}
	}
}

func TestSeedCatalogOperatorToken(t *testing.T) {
	container, _ := newSeedContainer(t)
	if _, err := seedCatalog(container, 7); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	token, _, err := container.AuthService.GenerateJWT(7, "seed-operator")
	if err != nil || token == "" {
		t.Fatalf("generate jwt failed: %v", err)
	}
}
