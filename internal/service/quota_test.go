package service

import (
	"errors"
	"testing"
	"time"

	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/models"

	"gorm.io/gorm"
)

type stubQuota struct {
	limits QuotaLimits
	used   int64
	err    error
}

func (s stubQuota) Limits(uint) (QuotaLimits, error) { return s.limits, s.err }

func (s stubQuota) UsedThisMonth(uint, time.Time) (int64, error) { return s.used, nil }

func TestCheckQuota(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		provider  QuotaProvider
		requested int64
		exceeded  bool
	}{
		{"unlimited", stubQuota{}, 1 << 20, false},
		{"within month", stubQuota{limits: QuotaLimits{MonthlyLimit: 100}, used: 60}, 40, false},
		{"over month", stubQuota{limits: QuotaLimits{MonthlyLimit: 100}, used: 60}, 41, true},
		{"over batch", stubQuota{limits: QuotaLimits{MaxBatchSize: 10}}, 11, true},
		{"nil provider", nil, 5, false},
	}
	for _, tc := range cases {
		err := checkQuota(tc.provider, 1, tc.requested, now)
		if got := errors.Is(err, ErrQuotaExceeded); got != tc.exceeded {
			t.Fatalf("%s: exceeded=%v, err=%v", tc.name, got, err)
		}
	}

	boom := errors.New("plan lookup failed")
	if err := checkQuota(stubQuota{err: boom}, 1, 1, now); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestMonthStart(t *testing.T) {
	got := monthStart(time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC))
	if !got.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected month start: %v", got)
	}
}

// racingQuota 首次查询后用量跳变，模拟另一笔发码在预检与写入之间提交
type racingQuota struct {
	limits QuotaLimits
	usage  []int64
	calls  int
}

func (r *racingQuota) Limits(uint) (QuotaLimits, error) { return r.limits, nil }

func (r *racingQuota) UsedThisMonth(uint, time.Time) (int64, error) {
	idx := r.calls
	if idx >= len(r.usage) {
		idx = len(r.usage) - 1
	}
	r.calls++
	return r.usage[idx], nil
}

func TestIssueCodesRechecksQuotaInsideTransaction(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	product := h.createProduct(t, 1, "SKU-1")
	quota := &racingQuota{limits: QuotaLimits{MonthlyLimit: 10}, usage: []int64{0, 8}}
	h.ledger.quota = quota

	_, err := h.ledger.IssueCodes(IssueCodesInput{TenantID: 1, ProductID: product.ID, Quantity: 5})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded on in-transaction recheck, got %v", err)
	}
	if quota.calls < 2 {
		t.Fatalf("expected usage to be recounted inside the transaction, got %d calls", quota.calls)
	}
	if n := h.countRows(t, &models.Code{}, ""); n != 0 {
		t.Fatalf("expected nothing persisted, got %d codes", n)
	}
}

func TestMintAssemblyRechecksQuotaInsideTransaction(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	kit := h.createProduct(t, 1, "KIT-1")
	part := h.createProduct(t, 1, "PART-A")
	h.addEdge(t, 1, kit.ID, part.ID, "2")
	h.ledger.quota = &racingQuota{limits: QuotaLimits{MonthlyLimit: 10}, usage: []int64{0, 5}}

	if _, err := h.assembly.MintAssembly(MintAssemblyInput{TenantID: 1, RootProductID: kit.ID, RootQuantity: 2}); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded on in-transaction recheck, got %v", err)
	}
	if n := h.countRows(t, &models.Code{}, ""); n != 0 {
		t.Fatalf("expected nothing persisted, got %d codes", n)
	}
}

func TestCheckQuotaInTxCountsThroughTransaction(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{MonthlyLimit: 10})
	product := h.createProduct(t, 1, "SKU-1")
	h.issue(t, 1, product.ID, 6)

	err := h.db.Transaction(func(tx *gorm.DB) error {
		return checkQuotaInTx(tx, h.ledger.quota, 1, 5, time.Now())
	})
	var quotaErr *QuotaError
	if !errors.As(err, &quotaErr) || quotaErr.Used != 6 {
		t.Fatalf("expected quota error with used=6, got %v", err)
	}
	err = h.db.Transaction(func(tx *gorm.DB) error {
		return checkQuotaInTx(tx, h.ledger.quota, 1, 4, time.Now())
	})
	if err != nil {
		t.Fatalf("4 more codes should fit: %v", err)
	}
}
