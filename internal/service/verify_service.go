package service

import (
	"strings"
	"time"

	"github.com/qr-backend/internal/logger"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/repository"
)

// VerifiedCode 校验结果中对外展示的码信息（不含令牌原文）
type VerifiedCode struct {
	ID               uint       `json:"id"`
	Status           string     `json:"status"`
	VerificationMode string     `json:"verification_mode"`
	ProductID        *uint      `json:"product_id,omitempty"`
	BatchID          *uint      `json:"batch_id,omitempty"`
	ParentCodeID     *uint      `json:"parent_code_id,omitempty"`
	NFCEnrolled      bool       `json:"nfc_enrolled"`
	PUFEnrolled      bool       `json:"puf_enrolled"`
	IssuedAt         time.Time  `json:"issued_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// DescendantView 码树中的后代节点
type DescendantView struct {
	CodeID       uint   `json:"code_id"`
	ParentCodeID *uint  `json:"parent_code_id,omitempty"`
	ProductID    *uint  `json:"product_id,omitempty"`
	Status       string `json:"status"`
	Depth        int    `json:"depth"`
}

// VerificationResult 令牌校验结果
type VerificationResult struct {
	Found            bool              `json:"found"`
	Code             *VerifiedCode     `json:"code,omitempty"`
	Product          *models.Product   `json:"product,omitempty"`
	Device           *models.Device    `json:"device,omitempty"`
	Expired          bool              `json:"expired"`
	MicroCodeChecked bool              `json:"micro_code_checked"`
	MicroCodeMatch   bool              `json:"micro_code_match"`
	Descendants      []DescendantView  `json:"descendants"`
	Coverage         *AssemblyCoverage `json:"coverage,omitempty"`
}

// VerifyService 令牌校验读服务
type VerifyService struct {
	ledger      *CodeLedgerService
	productRepo repository.ProductRepository
	codeRepo    repository.CodeRepository
	deviceRepo  repository.DeviceRepository
	graphRepo   repository.CodeGraphRepository
	binding     *BindingService
	now         func() time.Time
}

// NewVerifyService 创建校验服务
func NewVerifyService(
	ledger *CodeLedgerService,
	productRepo repository.ProductRepository,
	codeRepo repository.CodeRepository,
	deviceRepo repository.DeviceRepository,
	graphRepo repository.CodeGraphRepository,
	binding *BindingService,
) *VerifyService {
	return &VerifyService{
		ledger:      ledger,
		productRepo: productRepo,
		codeRepo:    codeRepo,
		deviceRepo:  deviceRepo,
		graphRepo:   graphRepo,
		binding:     binding,
		now:         time.Now,
	}
}

// VerifyToken 通过令牌哈希查码，并返回过期、微码比对、绑定设备与后代信息
func (s *VerifyService) VerifyToken(tenantID uint, token, microCode string) (*VerificationResult, error) {
	result := &VerificationResult{Descendants: []DescendantView{}}
	code, err := s.ledger.ResolveByToken(tenantID, token)
	if err != nil {
		return nil, err
	}
	if code == nil {
		logger.TW(tenantID).Infow("verify_token_not_found")
		return result, nil
	}
	result.Found = true
	result.Code = toVerifiedCode(code)
	result.Expired = code.IsExpired(s.now())
	if strings.TrimSpace(microCode) != "" {
		result.MicroCodeChecked = true
		result.MicroCodeMatch = MicroCodeMatches(code.MicroCheck, microCode)
	}

	if code.ProductID != nil {
		product, err := s.productRepo.GetByID(tenantID, *code.ProductID)
		if err != nil {
			return nil, err
		}
		result.Product = product
	}

	link, err := s.deviceRepo.GetLinkByCode(tenantID, code.ID)
	if err != nil {
		return nil, err
	}
	if link != nil {
		device, err := s.deviceRepo.GetByID(tenantID, link.DeviceID)
		if err != nil {
			return nil, err
		}
		result.Device = device
		if device != nil && s.binding != nil {
			coverage, err := s.binding.AssemblyCoverage(tenantID, device.ID)
			if err != nil {
				return nil, err
			}
			if len(coverage.Lines) > 0 {
				result.Coverage = coverage
			}
		}
	}

	descendants, err := s.ListDescendantViews(tenantID, code.ID)
	if err != nil {
		return nil, err
	}
	result.Descendants = descendants
	logger.TW(tenantID).Infow("verify_token_resolved",
		"code_id", code.ID,
		"status", code.Status,
		"expired", result.Expired,
		"micro_code_checked", result.MicroCodeChecked,
		"micro_code_match", result.MicroCodeMatch,
	)
	return result, nil
}

// ListDescendantViews 通过闭包索引读取后代（depth>=1），不做递归查询
func (s *VerifyService) ListDescendantViews(tenantID, codeID uint) ([]DescendantView, error) {
	rows, err := s.graphRepo.ListDescendants(tenantID, codeID, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []DescendantView{}, nil
	}
	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.DescendantID)
	}
	codes, err := s.codeRepo.ListByIDs(tenantID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Code, len(codes))
	for _, code := range codes {
		byID[code.ID] = code
	}
	views := make([]DescendantView, 0, len(rows))
	for _, row := range rows {
		code, ok := byID[row.DescendantID]
		if !ok {
			continue
		}
		views = append(views, DescendantView{
			CodeID:       code.ID,
			ParentCodeID: code.ParentCodeID,
			ProductID:    code.ProductID,
			Status:       code.Status,
			Depth:        row.Depth,
		})
	}
	return views, nil
}

func toVerifiedCode(code *models.Code) *VerifiedCode {
	return &VerifiedCode{
		ID:               code.ID,
		Status:           code.Status,
		VerificationMode: code.VerificationMode,
		ProductID:        code.ProductID,
		BatchID:          code.BatchID,
		ParentCodeID:     code.ParentCodeID,
		NFCEnrolled:      code.NFCUID != nil && *code.NFCUID != "",
		PUFEnrolled:      code.PUFFingerprintHash != "",
		IssuedAt:         code.IssuedAt,
		ExpiresAt:        code.ExpiresAt,
	}
}
