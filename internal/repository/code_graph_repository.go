package repository

import (
	"github.com/qr-backend/internal/models"

	"gorm.io/gorm"
)

// CodeGraphRepository 码装配图与闭包索引数据访问接口
type CodeGraphRepository interface {
	CreateEdges(edges []models.CodeEdge) error
	CreateClosures(rows []models.CodeClosure) error
	ListAncestorRows(tenantID uint, descendantIDs []uint) ([]ClosureRow, error)
	ListDescendantRows(tenantID uint, ancestorIDs []uint) ([]ClosureRow, error)
	ListDescendants(tenantID, codeID uint, minDepth int) ([]models.CodeClosure, error)
	ListAncestors(tenantID, codeID uint, minDepth int) ([]models.CodeClosure, error)
	ListChildEdges(tenantID uint, parentCodeIDs []uint) ([]models.CodeEdge, error)
	WithTx(tx *gorm.DB) CodeGraphRepository
}

// GormCodeGraphRepository GORM 实现
type GormCodeGraphRepository struct {
	db *gorm.DB
}

// NewCodeGraphRepository 创建码装配图仓库
func NewCodeGraphRepository(db *gorm.DB) *GormCodeGraphRepository {
	return &GormCodeGraphRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCodeGraphRepository) WithTx(tx *gorm.DB) CodeGraphRepository {
	if tx == nil {
		return r
	}
	return &GormCodeGraphRepository{db: tx}
}

// CreateEdges 批量写入父子边
func (r *GormCodeGraphRepository) CreateEdges(edges []models.CodeEdge) error {
	if len(edges) == 0 {
		return nil
	}
	return r.db.CreateInBatches(edges, 200).Error
}

// CreateClosures 批量写入闭包行
func (r *GormCodeGraphRepository) CreateClosures(rows []models.CodeClosure) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.CreateInBatches(rows, 200).Error
}

// ListAncestorRows 返回指定后代的全部祖先行（含 depth=0 自身行）
func (r *GormCodeGraphRepository) ListAncestorRows(tenantID uint, descendantIDs []uint) ([]ClosureRow, error) {
	return r.listRows(tenantID, "descendant_id", descendantIDs)
}

// ListDescendantRows 返回指定祖先的全部后代行（含 depth=0 自身行）
func (r *GormCodeGraphRepository) ListDescendantRows(tenantID uint, ancestorIDs []uint) ([]ClosureRow, error) {
	return r.listRows(tenantID, "ancestor_id", ancestorIDs)
}

func (r *GormCodeGraphRepository) listRows(tenantID uint, column string, ids []uint) ([]ClosureRow, error) {
	rows := make([]ClosureRow, 0, len(ids))
	for _, chunk := range chunkUints(ids, 500) {
		var part []ClosureRow
		if err := r.db.Model(&models.CodeClosure{}).
			Select("ancestor_id, descendant_id, depth").
			Where("tenant_id = ? AND "+column+" IN ?", tenantID, chunk).
			Order("depth ASC, id ASC").
			Scan(&part).Error; err != nil {
			return nil, err
		}
		rows = append(rows, part...)
	}
	return rows, nil
}

// ListDescendants 获取码的后代（按层级、ID 排序）
func (r *GormCodeGraphRepository) ListDescendants(tenantID, codeID uint, minDepth int) ([]models.CodeClosure, error) {
	var rows []models.CodeClosure
	if err := r.db.Where("tenant_id = ? AND ancestor_id = ? AND depth >= ?", tenantID, codeID, minDepth).
		Order("depth ASC, descendant_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAncestors 获取码的祖先（由近及远）
func (r *GormCodeGraphRepository) ListAncestors(tenantID, codeID uint, minDepth int) ([]models.CodeClosure, error) {
	var rows []models.CodeClosure
	if err := r.db.Where("tenant_id = ? AND descendant_id = ? AND depth >= ?", tenantID, codeID, minDepth).
		Order("depth ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListChildEdges 获取父码的直接子边
func (r *GormCodeGraphRepository) ListChildEdges(tenantID uint, parentCodeIDs []uint) ([]models.CodeEdge, error) {
	edges := make([]models.CodeEdge, 0, len(parentCodeIDs))
	for _, chunk := range chunkUints(parentCodeIDs, 500) {
		var part []models.CodeEdge
		if err := r.db.Where("tenant_id = ? AND parent_code_id IN ?", tenantID, chunk).
			Order("id ASC").Find(&part).Error; err != nil {
			return nil, err
		}
		edges = append(edges, part...)
	}
	return edges, nil
}
