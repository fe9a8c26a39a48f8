package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/qr-backend/internal/constants"
	"github.com/qr-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceRepository 设备与绑定关系数据访问接口
type DeviceRepository interface {
	GetByID(tenantID, id uint) (*models.Device, error)
	GetByUID(tenantID, productID uint, deviceUID string) (*models.Device, error)
	GetByUIDForUpdate(tenantID, productID uint, deviceUID string) (*models.Device, error)
	FindByUID(tenantID uint, deviceUID string) ([]models.Device, error)
	ListByIDs(tenantID uint, ids []uint) ([]models.Device, error)
	ListByIDsForUpdate(tenantID uint, ids []uint) ([]models.Device, error)
	List(tenantID uint, filter DeviceListFilter) ([]models.Device, int64, error)
	Create(device *models.Device) error
	Update(device *models.Device) error
	SelectIDsForStatus(tenantID uint, selector StatusSelector) ([]uint, error)

	CreateLink(link *models.CodeDeviceLink) error
	GetLinkByCode(tenantID, codeID uint) (*models.CodeDeviceLink, error)
	GetLinkByDevice(tenantID, deviceID uint) (*models.CodeDeviceLink, error)
	ListLinksByCodeIDs(tenantID uint, codeIDs []uint) ([]models.CodeDeviceLink, error)
	ListLinksByDeviceIDs(tenantID uint, deviceIDs []uint) ([]models.CodeDeviceLink, error)

	CreateAssemblyLink(link *models.DeviceAssemblyLink) error
	GetAssemblyByChild(tenantID, childDeviceID uint) (*models.DeviceAssemblyLink, error)
	ListAssemblyChildren(tenantID, parentDeviceID uint) ([]models.Device, error)

	WithTx(tx *gorm.DB) DeviceRepository
}

// GormDeviceRepository GORM 实现
type GormDeviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository 创建设备仓库
func NewDeviceRepository(db *gorm.DB) *GormDeviceRepository {
	return &GormDeviceRepository{db: db}
}

// WithTx 绑定事务
func (r *GormDeviceRepository) WithTx(tx *gorm.DB) DeviceRepository {
	if tx == nil {
		return r
	}
	return &GormDeviceRepository{db: tx}
}

func (r *GormDeviceRepository) first(query *gorm.DB) (*models.Device, error) {
	var device models.Device
	if err := query.First(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &device, nil
}

// GetByID 根据 ID 获取设备
func (r *GormDeviceRepository) GetByID(tenantID, id uint) (*models.Device, error) {
	return r.first(r.db.Where("tenant_id = ? AND id = ?", tenantID, id))
}

// GetByUID 根据商品与设备 UID 获取设备
func (r *GormDeviceRepository) GetByUID(tenantID, productID uint, deviceUID string) (*models.Device, error) {
	return r.first(r.db.Where("tenant_id = ? AND product_id = ? AND device_uid = ?", tenantID, productID, deviceUID))
}

// GetByUIDForUpdate 根据商品与设备 UID 获取设备并加行锁
func (r *GormDeviceRepository) GetByUIDForUpdate(tenantID, productID uint, deviceUID string) (*models.Device, error) {
	return r.first(r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND product_id = ? AND device_uid = ?", tenantID, productID, deviceUID))
}

// FindByUID 跨商品按 UID 查找设备
func (r *GormDeviceRepository) FindByUID(tenantID uint, deviceUID string) ([]models.Device, error) {
	var devices []models.Device
	if err := r.db.Where("tenant_id = ? AND device_uid = ?", tenantID, deviceUID).Order("id ASC").Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

// ListByIDs 批量获取设备
func (r *GormDeviceRepository) ListByIDs(tenantID uint, ids []uint) ([]models.Device, error) {
	return r.listByIDs(r.db, tenantID, ids)
}

// ListByIDsForUpdate 批量获取设备并加行锁
func (r *GormDeviceRepository) ListByIDsForUpdate(tenantID uint, ids []uint) ([]models.Device, error) {
	return r.listByIDs(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), tenantID, ids)
}

func (r *GormDeviceRepository) listByIDs(query *gorm.DB, tenantID uint, ids []uint) ([]models.Device, error) {
	if len(ids) == 0 {
		return []models.Device{}, nil
	}
	devices := make([]models.Device, 0, len(ids))
	for _, chunk := range chunkUints(ids, 500) {
		var part []models.Device
		if err := query.Session(&gorm.Session{}).
			Where("tenant_id = ? AND id IN ?", tenantID, chunk).
			Order("id ASC").Find(&part).Error; err != nil {
			return nil, err
		}
		devices = append(devices, part...)
	}
	return devices, nil
}

// List 设备列表
func (r *GormDeviceRepository) List(tenantID uint, filter DeviceListFilter) ([]models.Device, int64, error) {
	query := r.db.Model(&models.Device{}).Where("tenant_id = ?", tenantID)
	if filter.ProductID != 0 {
		query = query.Where("product_id = ?", filter.ProductID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where(fmt.Sprintf("device_uid %s ?", likeOperatorByDialect(dbDialectName(r.db))), "%"+search+"%")
	}
	if key := strings.TrimSpace(filter.AttrKey); key != "" {
		query = query.Where(fmt.Sprintf("%s = ?", jsonTextExpr(r.db, "attrs", key)), filter.AttrValue)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var devices []models.Device
	if err := query.Order("id ASC").Find(&devices).Error; err != nil {
		return nil, 0, err
	}
	return devices, total, nil
}

// Create 创建设备
func (r *GormDeviceRepository) Create(device *models.Device) error {
	return r.db.Create(device).Error
}

// Update 保存设备
func (r *GormDeviceRepository) Update(device *models.Device) error {
	return r.db.Save(device).Error
}

// SelectIDsForStatus 按选择条件返回已绑定设备 ID（升序）
// Statuses 按设备状态匹配
func (r *GormDeviceRepository) SelectIDsForStatus(tenantID uint, selector StatusSelector) ([]uint, error) {
	query := r.db.Table("devices AS d").
		Joins("JOIN code_device_links l ON l.device_id = d.id").
		Joins("JOIN codes c ON c.id = l.code_id").
		Where("d.tenant_id = ? AND d.status <> ?", tenantID, constants.DeviceStatusUnbound)
	if selector.PrintRunID != 0 {
		query = query.Where("c.print_run_id = ?", selector.PrintRunID)
	}
	if selector.ProductID != 0 {
		query = query.Where("d.product_id = ?", selector.ProductID)
	}
	if len(selector.Statuses) > 0 {
		query = query.Where("d.status IN ?", selector.Statuses)
	}
	if len(selector.TokenHashes) > 0 {
		query = query.Where("c.token_hash IN ?", selector.TokenHashes)
	}
	if len(selector.DeviceUIDs) > 0 {
		query = query.Where("d.device_uid IN ?", selector.DeviceUIDs)
	}
	var ids []uint
	if err := query.Order("d.id ASC").Pluck("d.id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// CreateLink 创建码与设备绑定
func (r *GormDeviceRepository) CreateLink(link *models.CodeDeviceLink) error {
	return r.db.Create(link).Error
}

// GetLinkByCode 按码获取绑定
func (r *GormDeviceRepository) GetLinkByCode(tenantID, codeID uint) (*models.CodeDeviceLink, error) {
	var link models.CodeDeviceLink
	if err := r.db.Where("tenant_id = ? AND code_id = ?", tenantID, codeID).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// GetLinkByDevice 按设备获取绑定
func (r *GormDeviceRepository) GetLinkByDevice(tenantID, deviceID uint) (*models.CodeDeviceLink, error) {
	var link models.CodeDeviceLink
	if err := r.db.Where("tenant_id = ? AND device_id = ?", tenantID, deviceID).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// ListLinksByCodeIDs 批量按码获取绑定
func (r *GormDeviceRepository) ListLinksByCodeIDs(tenantID uint, codeIDs []uint) ([]models.CodeDeviceLink, error) {
	return r.listLinks(tenantID, "code_id", codeIDs)
}

// ListLinksByDeviceIDs 批量按设备获取绑定
func (r *GormDeviceRepository) ListLinksByDeviceIDs(tenantID uint, deviceIDs []uint) ([]models.CodeDeviceLink, error) {
	return r.listLinks(tenantID, "device_id", deviceIDs)
}

func (r *GormDeviceRepository) listLinks(tenantID uint, column string, ids []uint) ([]models.CodeDeviceLink, error) {
	links := make([]models.CodeDeviceLink, 0, len(ids))
	for _, chunk := range chunkUints(ids, 500) {
		var part []models.CodeDeviceLink
		if err := r.db.Where(fmt.Sprintf("tenant_id = ? AND %s IN ?", column), tenantID, chunk).
			Order("id ASC").Find(&part).Error; err != nil {
			return nil, err
		}
		links = append(links, part...)
	}
	return links, nil
}

// CreateAssemblyLink 创建设备装配关系
func (r *GormDeviceRepository) CreateAssemblyLink(link *models.DeviceAssemblyLink) error {
	return r.db.Create(link).Error
}

// GetAssemblyByChild 获取子设备的装配关系
func (r *GormDeviceRepository) GetAssemblyByChild(tenantID, childDeviceID uint) (*models.DeviceAssemblyLink, error) {
	var link models.DeviceAssemblyLink
	if err := r.db.Where("tenant_id = ? AND child_device_id = ?", tenantID, childDeviceID).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// ListAssemblyChildren 获取父设备直接装配的子设备
func (r *GormDeviceRepository) ListAssemblyChildren(tenantID, parentDeviceID uint) ([]models.Device, error) {
	var devices []models.Device
	if err := r.db.Model(&models.Device{}).
		Joins("JOIN device_assembly_links dal ON dal.child_device_id = devices.id").
		Where("dal.tenant_id = ? AND dal.parent_device_id = ?", tenantID, parentDeviceID).
		Order("devices.id ASC").
		Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}
