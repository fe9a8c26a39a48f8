package models

import (
	"time"
)

// Device 物理设备实例（租户+商品+设备UID 唯一）
type Device struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                                                                    // 主键
	TenantID  uint      `gorm:"not null;uniqueIndex:uk_devices_tenant_product_uid,priority:1" json:"tenant_id"`                          // 租户ID
	ProductID uint      `gorm:"not null;uniqueIndex:uk_devices_tenant_product_uid,priority:2" json:"product_id"`                         // 商品ID
	DeviceUID string    `gorm:"type:varchar(128);not null;uniqueIndex:uk_devices_tenant_product_uid,priority:3;index" json:"device_uid"` // 设备UID（序列号）
	Attrs     JSON      `gorm:"type:json" json:"attrs"`                                                                                  // 自由属性
	Status    string    `gorm:"type:varchar(20);not null;index" json:"status"`                                                           // 设备状态
	CreatedAt time.Time `gorm:"index" json:"created_at"`                                                                                 // 创建时间
	UpdatedAt time.Time `json:"updated_at"`                                                                                              // 更新时间
}

// TableName 指定表名
func (Device) TableName() string {
	return "devices"
}

// CodeDeviceLink 码与设备的一对一绑定
type CodeDeviceLink struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                              // 主键
	TenantID  uint      `gorm:"not null;index" json:"tenant_id"`                                   // 租户ID
	CodeID    uint      `gorm:"not null;uniqueIndex:uk_code_device_links_code" json:"code_id"`     // 码ID（唯一）
	DeviceID  uint      `gorm:"not null;uniqueIndex:uk_code_device_links_device" json:"device_id"` // 设备ID（唯一）
	Actor     string    `gorm:"type:varchar(120)" json:"actor"`                                    // 操作人
	Station   string    `gorm:"type:varchar(120)" json:"station"`                                  // 工位
	BoundAt   time.Time `gorm:"not null" json:"bound_at"`                                          // 绑定时间
	CreatedAt time.Time `json:"created_at"`                                                        // 创建时间
}

// TableName 指定表名
func (CodeDeviceLink) TableName() string {
	return "code_device_links"
}

// DeviceAssemblyLink 设备装配关系（子设备只能装配一次）
type DeviceAssemblyLink struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                                       // 主键
	TenantID       uint      `gorm:"not null;index" json:"tenant_id"`                                            // 租户ID
	ParentDeviceID uint      `gorm:"not null;index" json:"parent_device_id"`                                     // 父设备ID
	ChildDeviceID  uint      `gorm:"not null;uniqueIndex:uk_device_assembly_links_child" json:"child_device_id"` // 子设备ID
	Actor          string    `gorm:"type:varchar(120)" json:"actor"`                                             // 操作人
	CreatedAt      time.Time `json:"created_at"`                                                                 // 创建时间
}

// TableName 指定表名
func (DeviceAssemblyLink) TableName() string {
	return "device_assembly_links"
}
