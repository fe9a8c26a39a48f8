package repository

import (
	"errors"

	"github.com/qr-backend/internal/models"

	"gorm.io/gorm"
)

// ProvenanceRepository 批次/印刷批次/渠道数据访问接口
type ProvenanceRepository interface {
	CreateBatch(batch *models.Batch) error
	GetBatch(tenantID, id uint) (*models.Batch, error)
	GetBatchByNo(tenantID uint, batchNo string) (*models.Batch, error)
	CreatePrintRun(run *models.PrintRun) error
	GetPrintRun(tenantID, id uint) (*models.PrintRun, error)
	CreateChannel(channel *models.Channel) error
	GetChannel(tenantID, id uint) (*models.Channel, error)
	GetChannelByCode(tenantID uint, code string) (*models.Channel, error)
	WithTx(tx *gorm.DB) ProvenanceRepository
}

// GormProvenanceRepository GORM 实现
type GormProvenanceRepository struct {
	db *gorm.DB
}

// NewProvenanceRepository 创建批次仓库
func NewProvenanceRepository(db *gorm.DB) *GormProvenanceRepository {
	return &GormProvenanceRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProvenanceRepository) WithTx(tx *gorm.DB) ProvenanceRepository {
	if tx == nil {
		return r
	}
	return &GormProvenanceRepository{db: tx}
}

// CreateBatch 创建批次
func (r *GormProvenanceRepository) CreateBatch(batch *models.Batch) error {
	return r.db.Create(batch).Error
}

// GetBatch 获取批次
func (r *GormProvenanceRepository) GetBatch(tenantID, id uint) (*models.Batch, error) {
	var batch models.Batch
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// GetBatchByNo 按批次号获取批次
func (r *GormProvenanceRepository) GetBatchByNo(tenantID uint, batchNo string) (*models.Batch, error) {
	var batch models.Batch
	if err := r.db.Where("tenant_id = ? AND batch_no = ?", tenantID, batchNo).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// CreatePrintRun 创建印刷批次
func (r *GormProvenanceRepository) CreatePrintRun(run *models.PrintRun) error {
	return r.db.Create(run).Error
}

// GetPrintRun 获取印刷批次
func (r *GormProvenanceRepository) GetPrintRun(tenantID, id uint) (*models.PrintRun, error) {
	var run models.PrintRun
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// CreateChannel 创建渠道
func (r *GormProvenanceRepository) CreateChannel(channel *models.Channel) error {
	return r.db.Create(channel).Error
}

// GetChannel 获取渠道
func (r *GormProvenanceRepository) GetChannel(tenantID, id uint) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&channel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}

// GetChannelByCode 按渠道编码获取渠道
func (r *GormProvenanceRepository) GetChannelByCode(tenantID uint, code string) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.Where("tenant_id = ? AND code = ?", tenantID, code).First(&channel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}
