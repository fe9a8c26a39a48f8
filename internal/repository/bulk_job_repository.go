package repository

import (
	"errors"
	"time"

	"github.com/qr-backend/internal/models"

	"gorm.io/gorm"
)

// BulkJobRepository 后台批处理任务数据访问接口
type BulkJobRepository interface {
	Create(job *models.BulkJob) error
	GetByID(id string) (*models.BulkJob, error)
	GetByTenantAndID(tenantID uint, id string) (*models.BulkJob, error)
	UpdateProgress(id string, total, processed, errorCount int, rowErrors models.RowErrorList) error
	UpdateStatus(id, fromStatus, toStatus string, fields map[string]interface{}) (bool, error)
	GetStatus(id string) (string, error)
}

// GormBulkJobRepository GORM 实现
type GormBulkJobRepository struct {
	db *gorm.DB
}

// NewBulkJobRepository 创建任务仓库
func NewBulkJobRepository(db *gorm.DB) *GormBulkJobRepository {
	return &GormBulkJobRepository{db: db}
}

// Create 创建任务
func (r *GormBulkJobRepository) Create(job *models.BulkJob) error {
	return r.db.Create(job).Error
}

// GetByID 获取任务
func (r *GormBulkJobRepository) GetByID(id string) (*models.BulkJob, error) {
	var job models.BulkJob
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// GetByTenantAndID 获取租户下的任务
func (r *GormBulkJobRepository) GetByTenantAndID(tenantID uint, id string) (*models.BulkJob, error) {
	var job models.BulkJob
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// UpdateProgress 写入任务进度
func (r *GormBulkJobRepository) UpdateProgress(id string, total, processed, errorCount int, rowErrors models.RowErrorList) error {
	return r.db.Model(&models.BulkJob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"total":       total,
		"processed":   processed,
		"error_count": errorCount,
		"errors":      rowErrors,
		"updated_at":  time.Now(),
	}).Error
}

// UpdateStatus 条件更新任务状态，fromStatus 为空时不校验原状态
func (r *GormBulkJobRepository) UpdateStatus(id, fromStatus, toStatus string, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     toStatus,
		"updated_at": time.Now(),
	}
	for key, value := range fields {
		updates[key] = value
	}
	query := r.db.Model(&models.BulkJob{}).Where("id = ?", id)
	if fromStatus != "" {
		query = query.Where("status = ?", fromStatus)
	}
	result := query.Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetStatus 读取任务当前状态
func (r *GormBulkJobRepository) GetStatus(id string) (string, error) {
	var statuses []string
	if err := r.db.Model(&models.BulkJob{}).Where("id = ?", id).Limit(1).Pluck("status", &statuses).Error; err != nil {
		return "", err
	}
	if len(statuses) == 0 {
		return "", nil
	}
	return statuses[0], nil
}
