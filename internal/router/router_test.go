package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type apiEnvelope struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

type routerHarness struct {
	engine *gin.Engine
	token  string
}

func setupRouterTest(t *testing.T) *routerHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:router_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.MigrateModels(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "debug"},
		JWT:    config.JWTConfig{SecretKey: "router-test-secret", ExpireHours: 1},
		Codes:  config.CodesConfig{RootSecret: "router-test-root", VerifyBaseURL: "https://v.example.com/q"}.Normalize(),
	}
	c, err := provider.NewContainerWithDB(cfg, db)
	if err != nil {
		t.Fatalf("new container failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	token, _, err := c.AuthService.GenerateJWT(5, "line-1")
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	return &routerHarness{engine: SetupRouter(cfg, c), token: token}
}

func (h *routerHarness) do(t *testing.T, method, path string, body interface{}, headers map[string]string) apiEnvelope {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("%s %s http status want 200 got %d", method, path, w.Code)
	}
	var env apiEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal envelope failed: %v body=%s", err, w.Body.String())
	}
	return env
}

func (h *routerHarness) admin(t *testing.T, method, path string, body interface{}) apiEnvelope {
	t.Helper()
	return h.do(t, method, "/api/v1/admin"+path, body, map[string]string{"Authorization": "Bearer " + h.token})
}

func mustOK(t *testing.T, env apiEnvelope, out interface{}) {
	t.Helper()
	if env.StatusCode != 0 {
		t.Fatalf("expected success, got %d %s data=%s", env.StatusCode, env.Msg, string(env.Data))
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("unmarshal data failed: %v", err)
		}
	}
}

func TestAdminFlowMintVerifyAndBulkStatus(t *testing.T) {
	h := setupRouterTest(t)

	var kit, part struct {
		ID uint `json:"id"`
	}
	mustOK(t, h.admin(t, http.MethodPost, "/products", gin.H{"sku": "KIT"}), &kit)
	mustOK(t, h.admin(t, http.MethodPost, "/products", gin.H{"sku": "PART"}), &part)
	mustOK(t, h.admin(t, http.MethodPost, fmt.Sprintf("/products/%d/bom", kit.ID), gin.H{"child_product_id": part.ID, "quantity": "2"}), nil)

	var requirements struct {
		Total int64 `json:"total"`
	}
	mustOK(t, h.admin(t, http.MethodGet, fmt.Sprintf("/products/%d/requirements?qty=3", kit.ID), nil), &requirements)
	if requirements.Total != 9 {
		t.Fatalf("requirements total want 9 got %d", requirements.Total)
	}

	var minted struct {
		Total     int64 `json:"total"`
		EdgeCount int   `json:"edge_count"`
		Codes     map[string][]struct {
			Token     string `json:"token"`
			MicroCode string `json:"micro_code"`
			VerifyURL string `json:"verify_url"`
		} `json:"codes"`
	}
	mustOK(t, h.admin(t, http.MethodPost, "/codes/mint-assembly", gin.H{"root_product_id": kit.ID, "root_quantity": 3}), &minted)
	if minted.Total != 9 || minted.EdgeCount != 6 {
		t.Fatalf("unexpected mint result: total=%d edges=%d", minted.Total, minted.EdgeCount)
	}
	roots := minted.Codes[strconv.FormatUint(uint64(kit.ID), 10)]
	if len(roots) != 3 {
		t.Fatalf("expected 3 root labels, got %d", len(roots))
	}
	root := roots[0]
	if !strings.HasSuffix(root.VerifyURL, "/"+root.Token) || len(root.MicroCode) != 9 {
		t.Fatalf("unexpected label: %+v", root)
	}

	var verified struct {
		Found          bool `json:"found"`
		MicroCodeMatch bool `json:"micro_code_match"`
		Descendants    []struct {
			Depth int `json:"depth"`
		} `json:"descendants"`
	}
	path := fmt.Sprintf("/api/v1/public/verify/%s?micro=%s", root.Token, strings.ToLower(root.MicroCode))
	mustOK(t, h.do(t, http.MethodGet, path, nil, map[string]string{"X-Tenant-ID": "5"}), &verified)
	if !verified.Found || !verified.MicroCodeMatch || len(verified.Descendants) != 2 {
		t.Fatalf("unexpected verify result: %+v", verified)
	}

	var otherTenant struct {
		Found bool `json:"found"`
	}
	mustOK(t, h.do(t, http.MethodGet, "/api/v1/public/verify/"+root.Token, nil, map[string]string{"X-Tenant-ID": "6"}), &otherTenant)
	if otherTenant.Found {
		t.Fatalf("token must not resolve in another tenant")
	}
	if env := h.do(t, http.MethodGet, "/api/v1/public/verify/"+root.Token, nil, nil); env.StatusCode != 400 {
		t.Fatalf("missing tenant want 400 got %d", env.StatusCode)
	}

	var job struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		Processed int    `json:"processed"`
	}
	mustOK(t, h.admin(t, http.MethodPost, "/status/bulk", gin.H{"target": "code", "new_status": "void", "product_id": part.ID}), &job)
	if job.Status != "completed" || job.Processed != 6 {
		t.Fatalf("unexpected job: %+v", job)
	}
	var detail struct {
		Job struct {
			Status string `json:"status"`
		} `json:"job"`
		Progress struct {
			Processed int `json:"processed"`
		} `json:"progress"`
	}
	mustOK(t, h.admin(t, http.MethodGet, "/jobs/"+job.ID, nil), &detail)
	if detail.Job.Status != "completed" || detail.Progress.Processed != 6 {
		t.Fatalf("unexpected job detail: %+v", detail)
	}
	if env := h.admin(t, http.MethodPost, "/jobs/"+job.ID+"/cancel", nil); env.StatusCode != 409 {
		t.Fatalf("cancel finished job want 409 got %d", env.StatusCode)
	}
}

func TestAdminErrorMapping(t *testing.T) {
	h := setupRouterTest(t)

	mustOK(t, h.admin(t, http.MethodPost, "/products", gin.H{"sku": "DUP"}), nil)
	if env := h.admin(t, http.MethodPost, "/products", gin.H{"sku": "DUP"}); env.StatusCode != 409 {
		t.Fatalf("duplicate sku want 409 got %d", env.StatusCode)
	}
	if env := h.admin(t, http.MethodPost, "/codes/issue", gin.H{"product_id": 999, "quantity": 1}); env.StatusCode != 404 {
		t.Fatalf("unknown product want 404 got %d", env.StatusCode)
	}
	if env := h.admin(t, http.MethodPost, "/status/bulk", gin.H{"target": "code", "new_status": "void"}); env.StatusCode != 400 {
		t.Fatalf("empty selector want 400 got %d", env.StatusCode)
	}

	env := h.admin(t, http.MethodPost, "/bind/bulk", gin.H{
		"root_sku": "DUP",
		"rows":     []gin.H{{"device_uid": "D-1", "sku": "MISSING"}},
	})
	if env.StatusCode != 422 {
		t.Fatalf("unknown sku want 422 got %d", env.StatusCode)
	}
	var detail struct {
		UnknownSKUs []string `json:"unknown_skus"`
	}
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		t.Fatalf("unmarshal detail failed: %v", err)
	}
	if len(detail.UnknownSKUs) != 1 || detail.UnknownSKUs[0] != "MISSING" {
		t.Fatalf("unexpected unknown skus: %+v", detail.UnknownSKUs)
	}

	if env := h.do(t, http.MethodGet, "/api/v1/admin/products", nil, nil); env.StatusCode != 401 {
		t.Fatalf("missing token want 401 got %d", env.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := setupRouterTest(t)
	mustOK(t, h.admin(t, http.MethodPost, "/codes/issue", gin.H{"quantity": 2}), nil)

	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status want 200 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "codes_issued_total") {
		t.Fatalf("metrics output missing codes_issued_total")
	}
}
