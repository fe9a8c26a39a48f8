package service

import (
	"strings"
	"time"

	"github.com/qr-backend/internal/constants"
	"github.com/qr-backend/internal/logger"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CatalogService 商品目录与 BOM 维护
type CatalogService struct {
	productRepo repository.ProductRepository
	bomRepo     repository.BOMRepository
}

// NewCatalogService 创建目录服务
func NewCatalogService(productRepo repository.ProductRepository, bomRepo repository.BOMRepository) *CatalogService {
	return &CatalogService{productRepo: productRepo, bomRepo: bomRepo}
}

// CreateProductInput 创建商品输入
type CreateProductInput struct {
	TenantID          uint
	SKU               string
	Name              string
	Type              string
	AttributeTemplate models.AttributeTemplate
}

// CreateProduct 创建商品
func (s *CatalogService) CreateProduct(input CreateProductInput) (*models.Product, error) {
	sku := strings.TrimSpace(input.SKU)
	if sku == "" {
		return nil, ErrSKURequired
	}
	productType := strings.TrimSpace(input.Type)
	switch productType {
	case "":
		productType = constants.ProductTypeStandard
	case constants.ProductTypeStandard, constants.ProductTypeComposite:
	default:
		return nil, ErrInvalidProduct
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = sku
	}
	product := &models.Product{
		TenantID:          input.TenantID,
		SKU:               sku,
		Name:              name,
		Type:              productType,
		Status:            constants.ProductStatusActive,
		AttributeTemplate: normalizeTemplate(input.AttributeTemplate),
	}
	if err := s.productRepo.Create(product); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrSKUExists
		}
		return nil, err
	}
	return product, nil
}

// GetProduct 获取商品
func (s *CatalogService) GetProduct(tenantID, productID uint) (*models.Product, error) {
	product, err := s.productRepo.GetByID(tenantID, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductUnknown
	}
	return product, nil
}

// ListProducts 商品列表
func (s *CatalogService) ListProducts(tenantID uint, filter repository.ProductListFilter) ([]models.Product, int64, error) {
	return s.productRepo.List(tenantID, filter)
}

// SetAttributeTemplate 设置商品属性模板
func (s *CatalogService) SetAttributeTemplate(tenantID, productID uint, template models.AttributeTemplate) (*models.Product, error) {
	product, err := s.GetProduct(tenantID, productID)
	if err != nil {
		return nil, err
	}
	product.AttributeTemplate = normalizeTemplate(template)
	product.UpdatedAt = time.Now()
	if err := s.productRepo.Update(product); err != nil {
		return nil, err
	}
	return product, nil
}

// ArchiveProduct 归档商品
func (s *CatalogService) ArchiveProduct(tenantID, productID uint) error {
	product, err := s.GetProduct(tenantID, productID)
	if err != nil {
		return err
	}
	product.Status = constants.ProductStatusArchived
	product.UpdatedAt = time.Now()
	return s.productRepo.Update(product)
}

// AddBOMEdge 新增或更新 BOM 边，拒绝自环与成环
func (s *CatalogService) AddBOMEdge(tenantID, parentProductID, childProductID uint, quantity decimal.Decimal) (*models.BOMEdge, error) {
	if !quantity.IsPositive() {
		return nil, ErrBOMQuantity
	}
	if parentProductID == childProductID {
		return nil, ErrBOMSelfEdge
	}
	var result *models.BOMEdge
	err := s.productRepo.Transaction(func(tx *gorm.DB) error {
		productRepo := s.productRepo.WithTx(tx)
		bomRepo := s.bomRepo.WithTx(tx)

		products, err := productRepo.ListByIDs(tenantID, []uint{parentProductID, childProductID})
		if err != nil {
			return err
		}
		if len(products) != 2 {
			return ErrProductUnknown
		}
		edges, err := bomRepo.ListByTenant(tenantID)
		if err != nil {
			return err
		}
		if NewBOMGraph(edges).WouldCycle(parentProductID, childProductID) {
			logger.TW(tenantID).Warnw("bom_edge_cycle_rejected",
				"parent_product_id", parentProductID,
				"child_product_id", childProductID,
			)
			return ErrBOMCycle
		}

		existing, err := bomRepo.Get(tenantID, parentProductID, childProductID)
		if err != nil {
			return err
		}
		if existing != nil {
			existing.Quantity = quantity
			existing.UpdatedAt = time.Now()
			if err := bomRepo.Update(existing); err != nil {
				return err
			}
			result = existing
			return nil
		}
		edge := &models.BOMEdge{
			TenantID:        tenantID,
			ParentProductID: parentProductID,
			ChildProductID:  childProductID,
			Quantity:        quantity,
		}
		if err := bomRepo.Create(edge); err != nil {
			return err
		}
		for _, product := range products {
			if product.ID == parentProductID && product.Type != constants.ProductTypeComposite {
				product.Type = constants.ProductTypeComposite
				product.UpdatedAt = time.Now()
				if err := productRepo.Update(&product); err != nil {
					return err
				}
			}
		}
		result = edge
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListBOMEdges 列出父商品的直接子件
func (s *CatalogService) ListBOMEdges(tenantID, parentProductID uint) ([]models.BOMEdge, error) {
	if _, err := s.GetProduct(tenantID, parentProductID); err != nil {
		return nil, err
	}
	return s.bomRepo.ListByParent(tenantID, parentProductID)
}

// RemoveBOMEdge 删除 BOM 边
func (s *CatalogService) RemoveBOMEdge(tenantID, parentProductID, childProductID uint) error {
	return s.bomRepo.Delete(tenantID, parentProductID, childProductID)
}

// ComponentClosure 返回根商品的传递子件集合（含根）
func (s *CatalogService) ComponentClosure(tenantID, rootProductID uint) (map[uint]struct{}, error) {
	edges, err := s.bomRepo.ListByTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return NewBOMGraph(edges).Reachable(rootProductID), nil
}

func normalizeTemplate(template models.AttributeTemplate) models.AttributeTemplate {
	normalized := make(models.AttributeTemplate, 0, len(template))
	seen := make(map[string]struct{}, len(template))
	for _, field := range template {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		field.Key = key
		field.Label = strings.TrimSpace(field.Label)
		normalized = append(normalized, field)
	}
	return normalized
}
