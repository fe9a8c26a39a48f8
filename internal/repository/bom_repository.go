package repository

import (
	"errors"

	"github.com/qr-backend/internal/models"

	"gorm.io/gorm"
)

// BOMRepository 物料清单数据访问接口
type BOMRepository interface {
	ListByTenant(tenantID uint) ([]models.BOMEdge, error)
	ListByParent(tenantID, parentProductID uint) ([]models.BOMEdge, error)
	Get(tenantID, parentProductID, childProductID uint) (*models.BOMEdge, error)
	Create(edge *models.BOMEdge) error
	Update(edge *models.BOMEdge) error
	Delete(tenantID, parentProductID, childProductID uint) error
	WithTx(tx *gorm.DB) BOMRepository
}

// GormBOMRepository GORM 实现
type GormBOMRepository struct {
	db *gorm.DB
}

// NewBOMRepository 创建物料清单仓库
func NewBOMRepository(db *gorm.DB) *GormBOMRepository {
	return &GormBOMRepository{db: db}
}

// WithTx 绑定事务
func (r *GormBOMRepository) WithTx(tx *gorm.DB) BOMRepository {
	if tx == nil {
		return r
	}
	return &GormBOMRepository{db: tx}
}

// ListByTenant 获取租户全部 BOM 边（按创建顺序）
func (r *GormBOMRepository) ListByTenant(tenantID uint) ([]models.BOMEdge, error) {
	var edges []models.BOMEdge
	if err := r.db.Where("tenant_id = ?", tenantID).Order("id ASC").Find(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

// ListByParent 获取父商品的直接子件
func (r *GormBOMRepository) ListByParent(tenantID, parentProductID uint) ([]models.BOMEdge, error) {
	var edges []models.BOMEdge
	if err := r.db.Where("tenant_id = ? AND parent_product_id = ?", tenantID, parentProductID).
		Order("id ASC").Find(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

// Get 获取单条 BOM 边
func (r *GormBOMRepository) Get(tenantID, parentProductID, childProductID uint) (*models.BOMEdge, error) {
	var edge models.BOMEdge
	err := r.db.Where("tenant_id = ? AND parent_product_id = ? AND child_product_id = ?", tenantID, parentProductID, childProductID).
		First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &edge, nil
}

// Create 创建 BOM 边
func (r *GormBOMRepository) Create(edge *models.BOMEdge) error {
	return r.db.Create(edge).Error
}

// Update 更新 BOM 边数量
func (r *GormBOMRepository) Update(edge *models.BOMEdge) error {
	return r.db.Save(edge).Error
}

// Delete 删除 BOM 边
func (r *GormBOMRepository) Delete(tenantID, parentProductID, childProductID uint) error {
	return r.db.Where("tenant_id = ? AND parent_product_id = ? AND child_product_id = ?", tenantID, parentProductID, childProductID).
		Delete(&models.BOMEdge{}).Error
}
