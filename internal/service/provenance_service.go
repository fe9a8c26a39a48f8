package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/qr-backend/internal/constants"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/repository"

	"github.com/google/uuid"
)

// ProvenanceService 批次、印刷批次与渠道
type ProvenanceService struct {
	repo repository.ProvenanceRepository
}

// NewProvenanceService 创建批次服务
func NewProvenanceService(repo repository.ProvenanceRepository) *ProvenanceService {
	return &ProvenanceService{repo: repo}
}

// CreateBatchInput 创建批次输入
type CreateBatchInput struct {
	TenantID       uint
	BatchNo        string
	ProductID      uint
	ManufacturedAt *time.Time
	ExpiresAt      *time.Time
	Note           string
}

// CreateBatch 创建批次，批次号为空时自动生成
func (s *ProvenanceService) CreateBatch(input CreateBatchInput) (*models.Batch, error) {
	if input.ManufacturedAt != nil && input.ExpiresAt != nil && input.ExpiresAt.Before(*input.ManufacturedAt) {
		return nil, ErrInvalidArgument
	}
	batchNo := strings.TrimSpace(input.BatchNo)
	if batchNo == "" {
		batchNo = generateBatchNo(time.Now())
	}
	batch := &models.Batch{
		TenantID:       input.TenantID,
		BatchNo:        batchNo,
		ManufacturedAt: input.ManufacturedAt,
		ExpiresAt:      input.ExpiresAt,
		Note:           strings.TrimSpace(input.Note),
	}
	if input.ProductID != 0 {
		batch.ProductID = &input.ProductID
	}
	if err := s.repo.CreateBatch(batch); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: batch_no %s exists", ErrInvalidArgument, batchNo)
		}
		return nil, err
	}
	return batch, nil
}

// CreatePrintRun 创建印刷批次
func (s *ProvenanceService) CreatePrintRun(tenantID uint, runNo, vendor string) (*models.PrintRun, error) {
	runNo = strings.TrimSpace(runNo)
	if runNo == "" {
		runNo = "RUN-" + strings.ToUpper(uuid.NewString()[:8])
	}
	run := &models.PrintRun{TenantID: tenantID, RunNo: runNo, Vendor: strings.TrimSpace(vendor)}
	if err := s.repo.CreatePrintRun(run); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: run_no %s exists", ErrInvalidArgument, runNo)
		}
		return nil, err
	}
	return run, nil
}

// CreateChannel 创建渠道（编码统一大写，如 WEB、RETAIL）
func (s *ProvenanceService) CreateChannel(tenantID uint, code, name string) (*models.Channel, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrInvalidArgument
	}
	existing, err := s.repo.GetChannelByCode(tenantID, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	channel := &models.Channel{TenantID: tenantID, Code: code, Name: strings.TrimSpace(name)}
	if err := s.repo.CreateChannel(channel); err != nil {
		return nil, err
	}
	return channel, nil
}

func generateBatchNo(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("%s-%s-%s", constants.BatchNoPrefix, now.Format("20060102"), suffix)
}
