package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/constants"
	"github.com/qr-backend/internal/logger"
	"github.com/qr-backend/internal/metrics"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/repository"

	"gorm.io/gorm"
)

// CodeLedgerService 码台账：发码、状态标记与令牌查询
type CodeLedgerService struct {
	productRepo    repository.ProductRepository
	codeRepo       repository.CodeRepository
	provenanceRepo repository.ProvenanceRepository
	graphRepo      repository.CodeGraphRepository
	historyRepo    repository.StatusHistoryRepository
	tokens         *TokenGenerator
	quota          QuotaProvider
	metrics        *metrics.CoreMetrics
	cfg            config.CodesConfig
	now            func() time.Time
}

// NewCodeLedgerService 创建码台账服务
func NewCodeLedgerService(
	productRepo repository.ProductRepository,
	codeRepo repository.CodeRepository,
	provenanceRepo repository.ProvenanceRepository,
	graphRepo repository.CodeGraphRepository,
	historyRepo repository.StatusHistoryRepository,
	tokens *TokenGenerator,
	quota QuotaProvider,
	coreMetrics *metrics.CoreMetrics,
	cfg config.CodesConfig,
) *CodeLedgerService {
	return &CodeLedgerService{
		productRepo:    productRepo,
		codeRepo:       codeRepo,
		provenanceRepo: provenanceRepo,
		graphRepo:      graphRepo,
		historyRepo:    historyRepo,
		tokens:         tokens,
		quota:          quota,
		metrics:        coreMetrics,
		cfg:            cfg.Normalize(),
		now:            time.Now,
	}
}

// IssueCodesInput 发码输入；ProductID 为 0 表示通用码
type IssueCodesInput struct {
	TenantID         uint
	ProductID        uint
	Quantity         int64
	VerificationMode string
	BatchID          *uint
	ChannelID        *uint
	PrintRunID       *uint
	ExpiresAt        *time.Time
}

// issueSpec 已校验的发码参数
type issueSpec struct {
	tenantID   uint
	productID  *uint
	quantity   int64
	mode       string
	batchID    *uint
	channelID  *uint
	printRunID *uint
	expiresAt  *time.Time
}

// IssueCodes 整单发码：配额不足或任一写入失败时不落任何码
func (s *CodeLedgerService) IssueCodes(input IssueCodesInput) ([]models.Code, error) {
	spec, err := s.prepareIssue(s.productRepo, s.provenanceRepo, input)
	if err != nil {
		return nil, err
	}
	if err := checkQuota(s.quota, input.TenantID, spec.quantity, s.now()); err != nil {
		logger.TW(input.TenantID).Warnw("code_issue_quota_exceeded", "product_id", input.ProductID, "quantity", input.Quantity, "error", err)
		return nil, err
	}

	var codes []models.Code
	err = s.withMintRetry(input.TenantID, func() error {
		return s.productRepo.Transaction(func(tx *gorm.DB) error {
			if err := checkQuotaInTx(tx, s.quota, input.TenantID, spec.quantity, s.now()); err != nil {
				return err
			}
			issued, err := s.issueInTx(tx, spec)
			if err != nil {
				return err
			}
			codes = issued
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			logger.TW(input.TenantID).Warnw("code_issue_quota_exceeded", "product_id", input.ProductID, "quantity", input.Quantity, "error", err)
		}
		return nil, err
	}
	s.metrics.AddCodesIssued(spec.mode, len(codes))
	logger.TW(input.TenantID).Infow("codes_issued", "product_id", input.ProductID, "quantity", len(codes), "mode", spec.mode)
	return codes, nil
}

// prepareIssue 校验商品、批次与渠道并计算默认过期时间
func (s *CodeLedgerService) prepareIssue(productRepo repository.ProductRepository, provenanceRepo repository.ProvenanceRepository, input IssueCodesInput) (issueSpec, error) {
	if input.Quantity <= 0 {
		return issueSpec{}, ErrInvalidQuantity
	}
	mode, err := normalizeVerificationMode(input.VerificationMode)
	if err != nil {
		return issueSpec{}, err
	}
	spec := issueSpec{
		tenantID:   input.TenantID,
		quantity:   input.Quantity,
		mode:       mode,
		batchID:    nonZero(input.BatchID),
		channelID:  nonZero(input.ChannelID),
		printRunID: nonZero(input.PrintRunID),
		expiresAt:  input.ExpiresAt,
	}
	if input.ProductID != 0 {
		product, err := productRepo.GetByID(input.TenantID, input.ProductID)
		if err != nil {
			return issueSpec{}, err
		}
		if product == nil || product.Status == constants.ProductStatusArchived {
			return issueSpec{}, ErrProductUnknown
		}
		productID := product.ID
		spec.productID = &productID
	}
	if spec.batchID != nil {
		batch, err := provenanceRepo.GetBatch(input.TenantID, *spec.batchID)
		if err != nil {
			return issueSpec{}, err
		}
		if batch == nil {
			return issueSpec{}, ErrBatchNotFound
		}
		if spec.expiresAt == nil {
			spec.expiresAt = batch.ExpiresAt
		}
	}
	if spec.channelID != nil {
		channel, err := provenanceRepo.GetChannel(input.TenantID, *spec.channelID)
		if err != nil {
			return issueSpec{}, err
		}
		if channel == nil {
			return issueSpec{}, ErrChannelNotFound
		}
	}
	if spec.printRunID != nil {
		run, err := provenanceRepo.GetPrintRun(input.TenantID, *spec.printRunID)
		if err != nil {
			return issueSpec{}, err
		}
		if run == nil {
			return issueSpec{}, ErrPrintRunNotFound
		}
	}
	if spec.expiresAt == nil && s.cfg.DefaultTTLInDays > 0 {
		expires := s.now().AddDate(0, 0, s.cfg.DefaultTTLInDays)
		spec.expiresAt = &expires
	}
	return spec, nil
}

// issueInTx 在事务内生成令牌、写入码与闭包自身行，返回顺序即插入顺序
func (s *CodeLedgerService) issueInTx(tx *gorm.DB, spec issueSpec) ([]models.Code, error) {
	codeRepo := s.codeRepo.WithTx(tx)
	minted, err := s.mintUnique(codeRepo, spec.tenantID, spec.quantity)
	if err != nil {
		return nil, err
	}
	now := s.now()
	codes := make([]models.Code, 0, len(minted))
	for _, token := range minted {
		code := models.Code{
			TenantID:         spec.tenantID,
			Token:            token.Token,
			TokenHash:        token.TokenHash,
			Status:           constants.CodeStatusIssued,
			VerificationMode: spec.mode,
			MicroCheck:       token.MicroCheck,
			WatermarkHash:    token.WatermarkHash,
			ProductID:        spec.productID,
			BatchID:          spec.batchID,
			ChannelID:        spec.channelID,
			PrintRunID:       spec.printRunID,
			IssuedAt:         now,
			ExpiresAt:        spec.expiresAt,
		}
		if modeRequiresNFC(spec.mode) {
			code.NFCKeyRef = fmt.Sprintf("%s/%d", constants.KeyPurposeNFC, spec.tenantID)
		}
		codes = append(codes, code)
	}
	if err := codeRepo.CreateBatch(codes); err != nil {
		return nil, err
	}
	selfRows := make([]models.CodeClosure, 0, len(codes))
	for _, code := range codes {
		selfRows = append(selfRows, models.CodeClosure{
			TenantID:     spec.tenantID,
			AncestorID:   code.ID,
			DescendantID: code.ID,
			Depth:        0,
		})
	}
	if err := s.graphRepo.WithTx(tx).CreateClosures(selfRows); err != nil {
		return nil, err
	}
	return codes, nil
}

// mintUnique 生成 quantity 个租户内唯一的令牌，冲突时重新生成
func (s *CodeLedgerService) mintUnique(codeRepo repository.CodeRepository, tenantID uint, quantity int64) ([]MintedToken, error) {
	result := make([]MintedToken, 0, quantity)
	seen := make(map[string]struct{}, quantity)
	for attempt := 0; int64(len(result)) < quantity; attempt++ {
		if attempt > s.cfg.MaxMintRetries {
			return nil, ErrTokenExhausted
		}
		need := quantity - int64(len(result))
		candidates := make([]MintedToken, 0, need)
		hashes := make([]string, 0, need)
		for i := int64(0); i < need; i++ {
			minted, err := s.tokens.MintToken(tenantID)
			if err != nil {
				return nil, err
			}
			if _, dup := seen[minted.TokenHash]; dup {
				continue
			}
			seen[minted.TokenHash] = struct{}{}
			candidates = append(candidates, minted)
			hashes = append(hashes, minted.TokenHash)
		}
		existing, err := codeRepo.ExistingTokenHashes(tenantID, hashes)
		if err != nil {
			return nil, err
		}
		for _, minted := range candidates {
			if _, taken := existing[minted.TokenHash]; taken {
				continue
			}
			result = append(result, minted)
		}
		if collisions := need - int64(len(candidates)) + int64(len(existing)); collisions > 0 {
			logger.TW(tenantID).Warnw("token_collision_retry", "attempt", attempt, "collisions", collisions)
		}
	}
	return result, nil
}

// withMintRetry 并发发码撞上唯一约束时整体重试
func (s *CodeLedgerService) withMintRetry(tenantID uint, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.cfg.MaxMintRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !repository.UniqueViolationOn(err, "uk_codes_tenant_token", "codes.token") {
			return err
		}
		logger.TW(tenantID).Warnw("code_issue_token_conflict_retry", "attempt", attempt, "error", err)
	}
	return errors.Join(ErrTokenExhausted, err)
}

// ResolveByToken 通过令牌哈希查找码，不存在返回 nil
func (s *CodeLedgerService) ResolveByToken(tenantID uint, token string) (*models.Code, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	return s.codeRepo.GetByTokenHash(tenantID, HashToken(token))
}

// GetCode 获取码
func (s *CodeLedgerService) GetCode(tenantID, codeID uint) (*models.Code, error) {
	code, err := s.codeRepo.GetByID(tenantID, codeID)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, ErrCodeNotFound
	}
	return code, nil
}

// ListCodeHistory 码状态审计记录
func (s *CodeLedgerService) ListCodeHistory(tenantID, codeID uint) ([]models.StatusHistory, error) {
	if _, err := s.GetCode(tenantID, codeID); err != nil {
		return nil, err
	}
	return s.historyRepo.ListBySubject(tenantID, constants.HistorySubjectCode, codeID)
}

// ListCodes 码列表
func (s *CodeLedgerService) ListCodes(tenantID uint, filter repository.CodeListFilter) ([]models.Code, int64, error) {
	return s.codeRepo.List(tenantID, filter)
}

// MarkStatus 单码状态变更：只允许前进，相同状态不写审计
func (s *CodeLedgerService) MarkStatus(tenantID, codeID uint, newStatus, reason, actor string) (*models.Code, error) {
	newStatus = strings.TrimSpace(newStatus)
	if !IsCodeStatus(newStatus) {
		return nil, ErrInvalidStatus
	}
	var result *models.Code
	err := s.productRepo.Transaction(func(tx *gorm.DB) error {
		codeRepo := s.codeRepo.WithTx(tx)
		code, err := codeRepo.GetByIDForUpdate(tenantID, codeID)
		if err != nil {
			return err
		}
		if code == nil {
			return ErrCodeNotFound
		}
		result = code
		if code.Status == newStatus {
			return nil
		}
		if !CodeTransitionAllowed(code.Status, newStatus) {
			return ErrNotAllowedTransition
		}
		now := s.now()
		history := codeHistory(code, newStatus, reason, actor, "", now)
		applyCodeStatus(code, newStatus, now)
		if err := codeRepo.Update(code); err != nil {
			return err
		}
		return s.historyRepo.WithTx(tx).CreateBatch([]models.StatusHistory{history})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyCodeStatus 写入状态并维护激活/作废时间
func applyCodeStatus(code *models.Code, newStatus string, now time.Time) {
	code.Status = newStatus
	code.UpdatedAt = now
	if newStatus == constants.CodeStatusActive && code.ActivatedAt == nil {
		code.ActivatedAt = &now
	}
	if newStatus == constants.CodeStatusVoid && code.VoidedAt == nil {
		code.VoidedAt = &now
	}
}

func codeHistory(code *models.Code, newStatus, reason, actor, jobID string, now time.Time) models.StatusHistory {
	return models.StatusHistory{
		TenantID:    code.TenantID,
		SubjectType: constants.HistorySubjectCode,
		SubjectID:   code.ID,
		OldStatus:   code.Status,
		NewStatus:   newStatus,
		Reason:      strings.TrimSpace(reason),
		Actor:       strings.TrimSpace(actor),
		JobID:       jobID,
		CreatedAt:   now,
	}
}

func deviceHistory(device *models.Device, newStatus, reason, actor, jobID string, now time.Time) models.StatusHistory {
	return models.StatusHistory{
		TenantID:    device.TenantID,
		SubjectType: constants.HistorySubjectDevice,
		SubjectID:   device.ID,
		OldStatus:   device.Status,
		NewStatus:   newStatus,
		Reason:      strings.TrimSpace(reason),
		Actor:       strings.TrimSpace(actor),
		JobID:       jobID,
		CreatedAt:   now,
	}
}

func nonZero(id *uint) *uint {
	if id == nil || *id == 0 {
		return nil
	}
	value := *id
	return &value
}
