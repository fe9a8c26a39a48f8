package service

import (
	"strings"
	"testing"
	"time"

	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/constants"
)

func TestVerifyTokenMicroCode(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	product := h.createProduct(t, 1, "SENSOR-1")
	code := h.issue(t, 1, product.ID, 1)[0]
	micro := FormatMicroCode(code.MicroCheck)
	if len(micro) != 9 || micro[4] != '-' {
		t.Fatalf("unexpected micro code format: %q", micro)
	}

	result, err := h.verify.VerifyToken(1, code.Token, micro)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !result.Found || !result.MicroCodeChecked || !result.MicroCodeMatch || result.Expired {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Product == nil || result.Product.SKU != "SENSOR-1" || result.Code.Status != constants.CodeStatusIssued {
		t.Fatalf("expected product and code view, got %+v", result)
	}

	loose := strings.ToLower(strings.ReplaceAll(micro, "-", " "))
	result, err = h.verify.VerifyToken(1, code.Token, loose)
	if err != nil || !result.MicroCodeMatch {
		t.Fatalf("expected normalized micro code to match, err=%v", err)
	}

	result, err = h.verify.VerifyToken(1, code.Token, "0000-0000")
	if err != nil || !result.MicroCodeChecked || result.MicroCodeMatch {
		t.Fatalf("expected micro code mismatch, got %+v err=%v", result, err)
	}

	result, err = h.verify.VerifyToken(1, code.Token, "")
	if err != nil || result.MicroCodeChecked {
		t.Fatalf("empty micro code should not be checked")
	}
}

func TestVerifyTokenNotFoundAndExpired(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	result, err := h.verify.VerifyToken(1, "no-such-token", "")
	if err != nil || result.Found || result.Descendants == nil {
		t.Fatalf("expected not found result, got %+v err=%v", result, err)
	}

	past := time.Now().Add(-time.Minute)
	codes, err := h.ledger.IssueCodes(IssueCodesInput{TenantID: 1, Quantity: 1, ExpiresAt: &past})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	result, err = h.verify.VerifyToken(1, codes[0].Token, "")
	if err != nil || !result.Found || !result.Expired {
		t.Fatalf("expected expired result, got %+v err=%v", result, err)
	}
	if other, err := h.verify.VerifyToken(2, codes[0].Token, ""); err != nil || other.Found {
		t.Fatalf("token must not resolve in another tenant")
	}
}

func TestVerifyTokenShowsDeviceAndDescendants(t *testing.T) {
	h := setupCoreTest(t, config.QuotaConfig{})
	kit := h.createProduct(t, 1, "KIT-1")
	part := h.createProduct(t, 1, "PART-A")
	h.addEdge(t, 1, kit.ID, part.ID, "2")

	minted, err := h.assembly.MintAssembly(MintAssemblyInput{TenantID: 1, RootProductID: kit.ID, RootQuantity: 1})
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	root := minted.RootCodes()[0]
	if _, err := h.binding.BindDevice(BindDeviceInput{TenantID: 1, Token: root.Token, DeviceUID: "KIT-SN-1"}); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	result, err := h.verify.VerifyToken(1, root.Token, "")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if result.Device == nil || result.Device.DeviceUID != "KIT-SN-1" {
		t.Fatalf("expected bound device, got %+v", result.Device)
	}
	if len(result.Descendants) != 2 {
		t.Fatalf("expected 2 descendants, got %+v", result.Descendants)
	}
	for _, view := range result.Descendants {
		if view.Depth != 1 || view.ParentCodeID == nil || *view.ParentCodeID != root.ID {
			t.Fatalf("unexpected descendant: %+v", view)
		}
	}
	if result.Coverage == nil || result.Coverage.Complete {
		t.Fatalf("expected incomplete device coverage, got %+v", result.Coverage)
	}
}
