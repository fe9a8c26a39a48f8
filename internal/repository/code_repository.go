package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/qr-backend/internal/constants"
	"github.com/qr-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrParentAlreadySet 子码已存在父码
var ErrParentAlreadySet = errors.New("code parent already set")

// CodeRepository 防伪码数据访问接口
type CodeRepository interface {
	CreateBatch(codes []models.Code) error
	ExistingTokenHashes(tenantID uint, hashes []string) (map[string]struct{}, error)
	GetByID(tenantID, id uint) (*models.Code, error)
	GetByIDForUpdate(tenantID, id uint) (*models.Code, error)
	GetByTokenHash(tenantID uint, tokenHash string) (*models.Code, error)
	GetByTokenHashForUpdate(tenantID uint, tokenHash string) (*models.Code, error)
	ListByIDs(tenantID uint, ids []uint) ([]models.Code, error)
	ListByIDsForUpdate(tenantID uint, ids []uint) ([]models.Code, error)
	List(tenantID uint, filter CodeListFilter) ([]models.Code, int64, error)
	ClaimNextIssued(tenantID uint, filter CodeClaimFilter) (*models.Code, error)
	CountCreatedSince(tenantID uint, since time.Time) (int64, error)
	ExistsNFCUID(tenantID uint, nfcUID string, excludeCodeID uint) (bool, error)
	SelectIDsForStatus(tenantID uint, selector StatusSelector) ([]uint, error)
	Update(code *models.Code) error
	SetParent(tenantID, childID, parentID uint) error
	WithTx(tx *gorm.DB) CodeRepository
}

// GormCodeRepository GORM 实现
type GormCodeRepository struct {
	db *gorm.DB
}

// NewCodeRepository 创建防伪码仓库
func NewCodeRepository(db *gorm.DB) *GormCodeRepository {
	return &GormCodeRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCodeRepository) WithTx(tx *gorm.DB) CodeRepository {
	if tx == nil {
		return r
	}
	return &GormCodeRepository{db: tx}
}

// CreateBatch 按传入顺序批量插入（ID 单调递增）
func (r *GormCodeRepository) CreateBatch(codes []models.Code) error {
	if len(codes) == 0 {
		return nil
	}
	return r.db.CreateInBatches(codes, 200).Error
}

// ExistingTokenHashes 返回已存在的令牌哈希集合
func (r *GormCodeRepository) ExistingTokenHashes(tenantID uint, hashes []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(hashes) == 0 {
		return existing, nil
	}
	for start := 0; start < len(hashes); start += 500 {
		end := start + 500
		if end > len(hashes) {
			end = len(hashes)
		}
		var found []string
		if err := r.db.Model(&models.Code{}).
			Where("tenant_id = ? AND token_hash IN ?", tenantID, hashes[start:end]).
			Pluck("token_hash", &found).Error; err != nil {
			return nil, err
		}
		for _, hash := range found {
			existing[hash] = struct{}{}
		}
	}
	return existing, nil
}

// GetByID 根据 ID 获取码
func (r *GormCodeRepository) GetByID(tenantID, id uint) (*models.Code, error) {
	return r.first(r.db.Where("tenant_id = ? AND id = ?", tenantID, id))
}

// GetByIDForUpdate 根据 ID 获取码并加行锁
func (r *GormCodeRepository) GetByIDForUpdate(tenantID, id uint) (*models.Code, error) {
	return r.first(r.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("tenant_id = ? AND id = ?", tenantID, id))
}

// GetByTokenHash 根据令牌哈希获取码
func (r *GormCodeRepository) GetByTokenHash(tenantID uint, tokenHash string) (*models.Code, error) {
	return r.first(r.db.Where("tenant_id = ? AND token_hash = ?", tenantID, tokenHash))
}

// GetByTokenHashForUpdate 根据令牌哈希获取码并加行锁
func (r *GormCodeRepository) GetByTokenHashForUpdate(tenantID uint, tokenHash string) (*models.Code, error) {
	return r.first(r.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("tenant_id = ? AND token_hash = ?", tenantID, tokenHash))
}

func (r *GormCodeRepository) first(query *gorm.DB) (*models.Code, error) {
	var code models.Code
	if err := query.First(&code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &code, nil
}

// ListByIDs 批量获取码（按 ID 升序）
func (r *GormCodeRepository) ListByIDs(tenantID uint, ids []uint) ([]models.Code, error) {
	return r.listByIDs(r.db, tenantID, ids)
}

// ListByIDsForUpdate 批量获取码并加行锁
func (r *GormCodeRepository) ListByIDsForUpdate(tenantID uint, ids []uint) ([]models.Code, error) {
	return r.listByIDs(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), tenantID, ids)
}

func (r *GormCodeRepository) listByIDs(query *gorm.DB, tenantID uint, ids []uint) ([]models.Code, error) {
	if len(ids) == 0 {
		return []models.Code{}, nil
	}
	codes := make([]models.Code, 0, len(ids))
	for _, chunk := range chunkUints(ids, 500) {
		var part []models.Code
		if err := query.Session(&gorm.Session{}).
			Where("tenant_id = ? AND id IN ?", tenantID, chunk).
			Order("id ASC").Find(&part).Error; err != nil {
			return nil, err
		}
		codes = append(codes, part...)
	}
	return codes, nil
}

// List 码列表
func (r *GormCodeRepository) List(tenantID uint, filter CodeListFilter) ([]models.Code, int64, error) {
	query := r.db.Model(&models.Code{}).Where("tenant_id = ?", tenantID)
	if filter.ProductID != 0 {
		query = query.Where("product_id = ?", filter.ProductID)
	}
	if filter.BatchID != 0 {
		query = query.Where("batch_id = ?", filter.BatchID)
	}
	if filter.PrintRunID != 0 {
		query = query.Where("print_run_id = ?", filter.PrintRunID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var codes []models.Code
	if err := query.Order("id ASC").Find(&codes).Error; err != nil {
		return nil, 0, err
	}
	return codes, total, nil
}

// ClaimNextIssued 锁定并返回最早发行的可用码（未过期）
func (r *GormCodeRepository) ClaimNextIssued(tenantID uint, filter CodeClaimFilter) (*models.Code, error) {
	query := r.db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("tenant_id = ? AND product_id = ? AND status = ?", tenantID, filter.ProductID, constants.CodeStatusIssued)
	if filter.BatchID != 0 {
		query = query.Where("batch_id = ?", filter.BatchID)
	}
	if filter.ChannelID != 0 {
		query = query.Where("channel_id = ?", filter.ChannelID)
	}
	if !filter.ValidAt.IsZero() {
		query = query.Where("(expires_at IS NULL OR expires_at > ?)", filter.ValidAt)
	}
	return r.first(query.Order("id ASC"))
}

// CountCreatedSince 统计指定时间后创建的码数量
func (r *GormCodeRepository) CountCreatedSince(tenantID uint, since time.Time) (int64, error) {
	var count int64
	if err := r.db.Model(&models.Code{}).
		Where("tenant_id = ? AND created_at >= ?", tenantID, since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ExistsNFCUID 判断 NFC UID 是否已被其他码占用
func (r *GormCodeRepository) ExistsNFCUID(tenantID uint, nfcUID string, excludeCodeID uint) (bool, error) {
	query := r.db.Model(&models.Code{}).Where("tenant_id = ? AND nfc_uid = ?", tenantID, nfcUID)
	if excludeCodeID != 0 {
		query = query.Where("id <> ?", excludeCodeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SelectIDsForStatus 按选择条件返回码 ID（升序）
func (r *GormCodeRepository) SelectIDsForStatus(tenantID uint, selector StatusSelector) ([]uint, error) {
	query := r.db.Model(&models.Code{}).Where("codes.tenant_id = ?", tenantID)
	if selector.PrintRunID != 0 {
		query = query.Where("codes.print_run_id = ?", selector.PrintRunID)
	}
	if selector.ProductID != 0 {
		query = query.Where("codes.product_id = ?", selector.ProductID)
	}
	if len(selector.Statuses) > 0 {
		query = query.Where("codes.status IN ?", selector.Statuses)
	}
	if len(selector.TokenHashes) > 0 {
		query = query.Where("codes.token_hash IN ?", selector.TokenHashes)
	}
	if len(selector.DeviceUIDs) > 0 {
		linked := r.db.Table("code_device_links AS l").
			Select("l.code_id").
			Joins("JOIN devices d ON d.id = l.device_id").
			Where("l.tenant_id = ? AND d.device_uid IN ?", tenantID, selector.DeviceUIDs)
		query = query.Where("codes.id IN (?)", linked)
	}
	var ids []uint
	if err := query.Order("codes.id ASC").Pluck("codes.id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Update 保存码
func (r *GormCodeRepository) Update(code *models.Code) error {
	return r.db.Save(code).Error
}

// SetParent 更新直接父码指针（仅当尚无父码）
func (r *GormCodeRepository) SetParent(tenantID, childID, parentID uint) error {
	result := r.db.Model(&models.Code{}).
		Where("tenant_id = ? AND id = ? AND parent_code_id IS NULL", tenantID, childID).
		Updates(map[string]interface{}{"parent_code_id": parentID, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrParentAlreadySet
	}
	return nil
}
