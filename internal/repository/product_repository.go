package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/qr-backend/internal/models"

	"gorm.io/gorm"
)

// ProductRepository 商品目录数据访问接口
type ProductRepository interface {
	List(tenantID uint, filter ProductListFilter) ([]models.Product, int64, error)
	GetByID(tenantID, id uint) (*models.Product, error)
	GetBySKU(tenantID uint, sku string) (*models.Product, error)
	ListByIDs(tenantID uint, ids []uint) ([]models.Product, error)
	ListBySKUs(tenantID uint, skus []string) ([]models.Product, error)
	Create(product *models.Product) error
	Update(product *models.Product) error
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) ProductRepository
}

// GormProductRepository GORM 实现
type GormProductRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓库
func NewProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProductRepository) WithTx(tx *gorm.DB) ProductRepository {
	if tx == nil {
		return r
	}
	return &GormProductRepository{db: tx}
}

// Transaction 执行事务
func (r *GormProductRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// List 商品列表
func (r *GormProductRepository) List(tenantID uint, filter ProductListFilter) ([]models.Product, int64, error) {
	query := r.db.Model(&models.Product{}).Where("tenant_id = ?", tenantID)
	if productType := strings.TrimSpace(filter.Type); productType != "" {
		query = query.Where("type = ?", productType)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		operator := likeOperatorByDialect(dbDialectName(r.db))
		like := "%" + search + "%"
		query = query.Where(fmt.Sprintf("sku %s ? OR name %s ?", operator, operator), like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var products []models.Product
	if err := query.Order("id ASC").Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// GetByID 根据 ID 获取商品
func (r *GormProductRepository) GetByID(tenantID, id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// GetBySKU 根据 SKU 获取商品
func (r *GormProductRepository) GetBySKU(tenantID uint, sku string) (*models.Product, error) {
	var product models.Product
	if err := r.db.Where("tenant_id = ? AND sku = ?", tenantID, strings.TrimSpace(sku)).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// ListByIDs 批量获取商品
func (r *GormProductRepository) ListByIDs(tenantID uint, ids []uint) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var products []models.Product
	if err := r.db.Where("tenant_id = ? AND id IN ?", tenantID, ids).Order("id ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// ListBySKUs 按 SKU 批量获取商品
func (r *GormProductRepository) ListBySKUs(tenantID uint, skus []string) ([]models.Product, error) {
	if len(skus) == 0 {
		return []models.Product{}, nil
	}
	var products []models.Product
	if err := r.db.Where("tenant_id = ? AND sku IN ?", tenantID, skus).Order("id ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// Create 创建商品
func (r *GormProductRepository) Create(product *models.Product) error {
	return r.db.Create(product).Error
}

// Update 更新商品
func (r *GormProductRepository) Update(product *models.Product) error {
	return r.db.Save(product).Error
}
