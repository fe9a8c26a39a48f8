package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/qr-backend/internal/constants"
	"github.com/qr-backend/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupRepositoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repository_%s_%d?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.MigrateModels(db); err != nil {
		t.Fatalf("migrate models failed: %v", err)
	}
	return db
}

func seedCode(t *testing.T, db *gorm.DB, tenantID, productID uint, token string, batchID *uint) models.Code {
	t.Helper()
	code := models.Code{
		TenantID:      tenantID,
		Token:         token,
		TokenHash:     fmt.Sprintf("%064s", token),
		Status:        constants.CodeStatusIssued,
		MicroCheck:    strings.Repeat("0", 32),
		WatermarkHash: strings.Repeat("1", 32),
		ProductID:     &productID,
		BatchID:       batchID,
		IssuedAt:      time.Now(),
	}
	if err := db.Create(&code).Error; err != nil {
		t.Fatalf("create code failed: %v", err)
	}
	return code
}

func TestClaimNextIssuedOrderAndFilter(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewCodeRepository(db)
	batchID := uint(9)

	first := seedCode(t, db, 1, 10, "tok-1", nil)
	second := seedCode(t, db, 1, 10, "tok-2", &batchID)
	seedCode(t, db, 2, 10, "tok-3", nil)

	claimed, err := repo.ClaimNextIssued(1, CodeClaimFilter{ProductID: 10})
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("claim should return earliest issued code, got %+v", claimed)
	}

	claimed, err = repo.ClaimNextIssued(1, CodeClaimFilter{ProductID: 10, BatchID: batchID})
	if err != nil {
		t.Fatalf("claim with batch failed: %v", err)
	}
	if claimed == nil || claimed.ID != second.ID {
		t.Fatalf("batch filter should pick batch code, got %+v", claimed)
	}

	claimed, err = repo.ClaimNextIssued(1, CodeClaimFilter{ProductID: 11})
	if err != nil {
		t.Fatalf("claim unknown product failed: %v", err)
	}
	if claimed != nil {
		t.Fatalf("claim should be nil for empty pool")
	}
}

func TestClaimNextIssuedSkipsExpired(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewCodeRepository(db)
	now := time.Now()

	stale := seedCode(t, db, 1, 10, "tok-stale", nil)
	past := now.Add(-time.Minute)
	if err := db.Model(&models.Code{}).Where("id = ?", stale.ID).Update("expires_at", past).Error; err != nil {
		t.Fatalf("expire code failed: %v", err)
	}
	fresh := seedCode(t, db, 1, 10, "tok-fresh", nil)

	claimed, err := repo.ClaimNextIssued(1, CodeClaimFilter{ProductID: 10, ValidAt: now})
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed == nil || claimed.ID != fresh.ID {
		t.Fatalf("claim should skip expired code, got %+v", claimed)
	}

	claimed, err = repo.ClaimNextIssued(1, CodeClaimFilter{ProductID: 10})
	if err != nil {
		t.Fatalf("claim without time failed: %v", err)
	}
	if claimed == nil || claimed.ID != stale.ID {
		t.Fatalf("claim without ValidAt keeps issue order, got %+v", claimed)
	}
}

func TestExistingTokenHashesIsTenantScoped(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewCodeRepository(db)
	code := seedCode(t, db, 1, 10, "tok-a", nil)

	found, err := repo.ExistingTokenHashes(1, []string{code.TokenHash, "missing"})
	if err != nil {
		t.Fatalf("existing hashes failed: %v", err)
	}
	if _, ok := found[code.TokenHash]; !ok || len(found) != 1 {
		t.Fatalf("existing hashes mismatch: %v", found)
	}
	found, err = repo.ExistingTokenHashes(2, []string{code.TokenHash})
	if err != nil {
		t.Fatalf("existing hashes other tenant failed: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("other tenant must not see hash")
	}
}

func TestSelectIDsForStatusByDeviceUID(t *testing.T) {
	db := setupRepositoryTestDB(t)
	codeRepo := NewCodeRepository(db)
	deviceRepo := NewDeviceRepository(db)

	a := seedCode(t, db, 1, 10, "tok-a", nil)
	b := seedCode(t, db, 1, 10, "tok-b", nil)
	for i, code := range []models.Code{a, b} {
		device := &models.Device{TenantID: 1, ProductID: 10, DeviceUID: fmt.Sprintf("DEV-%d", i), Status: constants.DeviceStatusBound}
		if err := deviceRepo.Create(device); err != nil {
			t.Fatalf("create device failed: %v", err)
		}
		if err := deviceRepo.CreateLink(&models.CodeDeviceLink{TenantID: 1, CodeID: code.ID, DeviceID: device.ID, BoundAt: time.Now()}); err != nil {
			t.Fatalf("create link failed: %v", err)
		}
	}

	ids, err := codeRepo.SelectIDsForStatus(1, StatusSelector{DeviceUIDs: []string{"DEV-1"}})
	if err != nil {
		t.Fatalf("select by device uid failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != b.ID {
		t.Fatalf("select by device uid want [%d] got %v", b.ID, ids)
	}

	ids, err = codeRepo.SelectIDsForStatus(1, StatusSelector{ProductID: 10, Statuses: []string{constants.CodeStatusIssued}})
	if err != nil {
		t.Fatalf("select by product failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != a.ID {
		t.Fatalf("select by product want two ordered ids got %v", ids)
	}

	deviceIDs, err := deviceRepo.SelectIDsForStatus(1, StatusSelector{TokenHashes: []string{a.TokenHash}})
	if err != nil {
		t.Fatalf("select devices failed: %v", err)
	}
	if len(deviceIDs) != 1 {
		t.Fatalf("select devices want 1 got %v", deviceIDs)
	}
}

func TestCodeDeviceLinkUniqueness(t *testing.T) {
	db := setupRepositoryTestDB(t)
	deviceRepo := NewDeviceRepository(db)

	if err := deviceRepo.CreateLink(&models.CodeDeviceLink{TenantID: 1, CodeID: 1, DeviceID: 1, BoundAt: time.Now()}); err != nil {
		t.Fatalf("create link failed: %v", err)
	}
	err := deviceRepo.CreateLink(&models.CodeDeviceLink{TenantID: 1, CodeID: 1, DeviceID: 2, BoundAt: time.Now()})
	if !UniqueViolationOn(err, "uk_code_device_links_code", "code_device_links.code_id") {
		t.Fatalf("second device on same code should violate code uniqueness, got %v", err)
	}
	err = deviceRepo.CreateLink(&models.CodeDeviceLink{TenantID: 1, CodeID: 2, DeviceID: 1, BoundAt: time.Now()})
	if !UniqueViolationOn(err, "uk_code_device_links_device", "code_device_links.device_id") {
		t.Fatalf("second code on same device should violate device uniqueness, got %v", err)
	}
}

func TestSetParentOnlyOnce(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewCodeRepository(db)
	parent := seedCode(t, db, 1, 10, "tok-p", nil)
	child := seedCode(t, db, 1, 11, "tok-c", nil)

	if err := repo.SetParent(1, child.ID, parent.ID); err != nil {
		t.Fatalf("set parent failed: %v", err)
	}
	if err := repo.SetParent(1, child.ID, parent.ID); err != ErrParentAlreadySet {
		t.Fatalf("second set parent want ErrParentAlreadySet got %v", err)
	}
}
