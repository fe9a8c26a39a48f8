package service

import (
	"errors"
	"testing"
	"time"

	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/constants"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/repository"
)

func TestIssueCodesWritesCodesAndSelfClosure(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	product := h.createProduct(t, 1, "SKU-1")

	codes := h.issue(t, 1, product.ID, 25)
	if len(codes) != 25 {
		t.Fatalf("expected 25 codes, got %d", len(codes))
	}
	seen := make(map[string]struct{}, len(codes))
	for i, code := range codes {
		if code.Status != constants.CodeStatusIssued {
			t.Fatalf("code %d status = %s", i, code.Status)
		}
		if code.ProductID == nil || *code.ProductID != product.ID {
			t.Fatalf("code %d product not set", i)
		}
		if code.TokenHash != HashToken(code.Token) {
			t.Fatalf("code %d token hash mismatch", i)
		}
		if len(code.MicroCheck) != 32 || len(code.WatermarkHash) != 32 {
			t.Fatalf("code %d derived values have unexpected length", i)
		}
		if i > 0 && code.ID <= codes[i-1].ID {
			t.Fatalf("codes not returned in insertion order")
		}
		if _, dup := seen[code.Token]; dup {
			t.Fatalf("duplicate token %s", code.Token)
		}
		seen[code.Token] = struct{}{}
	}
	if n := h.countRows(t, &models.CodeClosure{}, "ancestor_id = descendant_id AND depth = 0"); n != 25 {
		t.Fatalf("expected 25 self closure rows, got %d", n)
	}
}

func TestIssueCodesGenericAndNFCMode(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	codes, err := h.ledger.IssueCodes(IssueCodesInput{TenantID: 3, Quantity: 2, VerificationMode: constants.VerificationModeQRNFC})
	if err != nil {
		t.Fatalf("issue generic codes failed: %v", err)
	}
	for _, code := range codes {
		if code.ProductID != nil {
			t.Fatalf("generic code should not carry product")
		}
		if code.NFCKeyRef != "nfc/3" {
			t.Fatalf("unexpected nfc key ref: %s", code.NFCKeyRef)
		}
	}
	if _, err := h.ledger.IssueCodes(IssueCodesInput{TenantID: 3, Quantity: 1, VerificationMode: "laser"}); !errors.Is(err, ErrInvalidVerification) {
		t.Fatalf("expected ErrInvalidVerification, got %v", err)
	}
}

func TestIssueCodesRejectsInvalidInput(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	product := h.createProduct(t, 1, "SKU-1")

	if _, err := h.ledger.IssueCodes(IssueCodesInput{TenantID: 1, ProductID: product.ID, Quantity: 0}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := h.ledger.IssueCodes(IssueCodesInput{TenantID: 1, ProductID: 9999, Quantity: 1}); !errors.Is(err, ErrProductUnknown) {
		t.Fatalf("expected ErrProductUnknown, got %v", err)
	}
	if _, err := h.ledger.IssueCodes(IssueCodesInput{TenantID: 2, ProductID: product.ID, Quantity: 1}); !errors.Is(err, ErrProductUnknown) {
		t.Fatalf("expected cross-tenant product to be unknown, got %v", err)
	}
	missing := uint(4242)
	if _, err := h.ledger.IssueCodes(IssueCodesInput{TenantID: 1, ProductID: product.ID, Quantity: 1, BatchID: &missing}); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
	if n := h.countRows(t, &models.Code{}, ""); n != 0 {
		t.Fatalf("expected no codes persisted, got %d", n)
	}
}

func TestIssueCodesQuotaIsAllOrNothing(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{MonthlyLimit: 10, MaxBatchSize: 8})
	product := h.createProduct(t, 1, "SKU-1")

	h.issue(t, 1, product.ID, 6)

	_, err := h.ledger.IssueCodes(IssueCodesInput{TenantID: 1, ProductID: product.ID, Quantity: 5})
	var quotaErr *QuotaError
	if !errors.As(err, &quotaErr) || !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if quotaErr.Used != 6 || quotaErr.Requested != 5 {
		t.Fatalf("unexpected quota detail: %+v", quotaErr)
	}
	if _, err := h.ledger.IssueCodes(IssueCodesInput{TenantID: 2, ProductID: 0, Quantity: 9}); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected batch size limit, got %v", err)
	}
	if n := h.countRows(t, &models.Code{}, ""); n != 6 {
		t.Fatalf("rejected requests must not persist codes, got %d", n)
	}
	h.issue(t, 1, product.ID, 4)
}

func TestIssueCodesTenantMonthlyOverride(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{MonthlyLimit: 2, TenantMonthly: map[string]int64{"7": 100}})
	h.issue(t, 7, 0, 50)
	if _, err := h.ledger.IssueCodes(IssueCodesInput{TenantID: 8, Quantity: 3}); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected default limit for tenant 8, got %v", err)
	}
}

func TestIssueCodesInheritsBatchExpiry(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	product := h.createProduct(t, 1, "SKU-1")
	expires := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	batch, err := h.provenance.CreateBatch(CreateBatchInput{TenantID: 1, ProductID: product.ID, ExpiresAt: &expires})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}

	codes, err := h.ledger.IssueCodes(IssueCodesInput{TenantID: 1, ProductID: product.ID, Quantity: 2, BatchID: &batch.ID})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	for _, code := range codes {
		if code.BatchID == nil || *code.BatchID != batch.ID {
			t.Fatalf("batch not attached")
		}
		if code.ExpiresAt == nil || !code.ExpiresAt.Equal(expires) {
			t.Fatalf("expected expiry %v, got %v", expires, code.ExpiresAt)
		}
	}

	own := time.Now().Add(time.Hour).Truncate(time.Second)
	codes, err = h.ledger.IssueCodes(IssueCodesInput{TenantID: 1, ProductID: product.ID, Quantity: 1, BatchID: &batch.ID, ExpiresAt: &own})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if !codes[0].ExpiresAt.Equal(own) {
		t.Fatalf("explicit expiry should win over batch expiry")
	}
}

func TestResolveByTokenIsTenantScoped(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	codes := h.issue(t, 1, 0, 1)

	found, err := h.ledger.ResolveByToken(1, codes[0].Token)
	if err != nil || found == nil || found.ID != codes[0].ID {
		t.Fatalf("expected to resolve code, got %+v err=%v", found, err)
	}
	other, err := h.ledger.ResolveByToken(2, codes[0].Token)
	if err != nil || other != nil {
		t.Fatalf("expected miss in other tenant, got %+v err=%v", other, err)
	}
	blank, err := h.ledger.ResolveByToken(1, "   ")
	if err != nil || blank != nil {
		t.Fatalf("expected miss for blank token")
	}
}

func TestMarkStatusIsMonotonic(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	code := h.issue(t, 1, 0, 1)[0]

	updated, err := h.ledger.MarkStatus(1, code.ID, constants.CodeStatusActive, "first scan", "ops")
	if err != nil {
		t.Fatalf("mark active failed: %v", err)
	}
	if updated.Status != constants.CodeStatusActive || updated.ActivatedAt == nil {
		t.Fatalf("expected active code with activated_at, got %+v", updated)
	}
	if _, err := h.ledger.MarkStatus(1, code.ID, constants.CodeStatusActive, "", "ops"); err != nil {
		t.Fatalf("same status should be a no-op: %v", err)
	}
	if _, err := h.ledger.MarkStatus(1, code.ID, constants.CodeStatusBound, "", "ops"); !errors.Is(err, ErrNotAllowedTransition) {
		t.Fatalf("expected ErrNotAllowedTransition, got %v", err)
	}
	if _, err := h.ledger.MarkStatus(1, code.ID, "lost", "", "ops"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := h.ledger.MarkStatus(2, code.ID, constants.CodeStatusSold, "", "ops"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}

	if reloaded := h.reloadCode(t, code.ID); reloaded.Status != constants.CodeStatusActive {
		t.Fatalf("rejected transition changed status to %s", reloaded.Status)
	}
	if n := h.countRows(t, &models.StatusHistory{}, "subject_id = ?", code.ID); n != 1 {
		t.Fatalf("expected exactly one history row, got %d", n)
	}

	voided, err := h.ledger.MarkStatus(1, code.ID, constants.CodeStatusVoid, "damaged", "ops")
	if err != nil || voided.VoidedAt == nil {
		t.Fatalf("expected void with voided_at, err=%v", err)
	}
}

func TestListCodesFiltersByStatus(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	product := h.createProduct(t, 1, "SKU-1")
	codes := h.issue(t, 1, product.ID, 3)
	if _, err := h.ledger.MarkStatus(1, codes[0].ID, constants.CodeStatusShipped, "", "ops"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	list, total, err := h.ledger.ListCodes(1, repository.CodeListFilter{Status: constants.CodeStatusIssued, ProductID: product.ID})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("expected 2 issued codes, got total=%d len=%d", total, len(list))
	}
}
