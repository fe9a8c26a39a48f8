package repository

import (
	"github.com/qr-backend/internal/models"

	"gorm.io/gorm"
)

// StatusHistoryRepository 状态审计数据访问接口
type StatusHistoryRepository interface {
	CreateBatch(rows []models.StatusHistory) error
	ListBySubject(tenantID uint, subjectType string, subjectID uint) ([]models.StatusHistory, error)
	CountBySubject(tenantID uint, subjectType string, subjectID uint) (int64, error)
	WithTx(tx *gorm.DB) StatusHistoryRepository
}

// GormStatusHistoryRepository GORM 实现
type GormStatusHistoryRepository struct {
	db *gorm.DB
}

// NewStatusHistoryRepository 创建状态审计仓库
func NewStatusHistoryRepository(db *gorm.DB) *GormStatusHistoryRepository {
	return &GormStatusHistoryRepository{db: db}
}

// WithTx 绑定事务
func (r *GormStatusHistoryRepository) WithTx(tx *gorm.DB) StatusHistoryRepository {
	if tx == nil {
		return r
	}
	return &GormStatusHistoryRepository{db: tx}
}

// CreateBatch 追加审计记录
func (r *GormStatusHistoryRepository) CreateBatch(rows []models.StatusHistory) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.CreateInBatches(rows, 200).Error
}

// ListBySubject 获取主体的审计记录（按时间顺序）
func (r *GormStatusHistoryRepository) ListBySubject(tenantID uint, subjectType string, subjectID uint) ([]models.StatusHistory, error) {
	var rows []models.StatusHistory
	if err := r.db.Where("tenant_id = ? AND subject_type = ? AND subject_id = ?", tenantID, subjectType, subjectID).
		Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountBySubject 统计主体的审计记录数
func (r *GormStatusHistoryRepository) CountBySubject(tenantID uint, subjectType string, subjectID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.StatusHistory{}).
		Where("tenant_id = ? AND subject_type = ? AND subject_id = ?", tenantID, subjectType, subjectID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
