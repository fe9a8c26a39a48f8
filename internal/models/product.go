package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product 商品目录（租户内 SKU 唯一）
type Product struct {
	ID                uint              `gorm:"primarykey" json:"id"`                                                               // 主键
	TenantID          uint              `gorm:"not null;uniqueIndex:uk_products_tenant_sku,priority:1" json:"tenant_id"`            // 租户ID
	SKU               string            `gorm:"type:varchar(64);not null;uniqueIndex:uk_products_tenant_sku,priority:2" json:"sku"` // SKU
	Name              string            `gorm:"type:varchar(200);not null" json:"name"`                                             // 名称
	Type              string            `gorm:"type:varchar(20);not null;default:'standard'" json:"type"`                           // 类型（standard/composite）
	Status            string            `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`                     // 状态（active/archived）
	AttributeTemplate AttributeTemplate `gorm:"type:json" json:"attribute_template"`                                                // 设备属性模板
	CreatedAt         time.Time         `gorm:"index" json:"created_at"`                                                            // 创建时间
	UpdatedAt         time.Time         `json:"updated_at"`                                                                         // 更新时间
	DeletedAt         gorm.DeletedAt    `gorm:"index" json:"-"`                                                                     // 软删除时间
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}

// BOMEdge 物料清单边：每个父件需要的子件数量
type BOMEdge struct {
	ID              uint            `gorm:"primarykey" json:"id"`                                                                           // 主键
	TenantID        uint            `gorm:"not null;uniqueIndex:uk_bom_edges_tenant_parent_child,priority:1" json:"tenant_id"`              // 租户ID
	ParentProductID uint            `gorm:"not null;uniqueIndex:uk_bom_edges_tenant_parent_child,priority:2" json:"parent_product_id"`      // 父商品ID
	ChildProductID  uint            `gorm:"not null;uniqueIndex:uk_bom_edges_tenant_parent_child,priority:3;index" json:"child_product_id"` // 子商品ID
	Quantity        decimal.Decimal `gorm:"type:decimal(15,4);not null" json:"quantity"`                                                    // 每个父件所需数量（可为小数）
	CreatedAt       time.Time       `json:"created_at"`                                                                                     // 创建时间
	UpdatedAt       time.Time       `json:"updated_at"`                                                                                     // 更新时间
}

// TableName 指定表名
func (BOMEdge) TableName() string {
	return "bom_edges"
}

// UnitQuantity 码层面每个父件的整数子件数量（向上取整）
func (e BOMEdge) UnitQuantity() int64 {
	if !e.Quantity.IsPositive() {
		return 0
	}
	return e.Quantity.Ceil().IntPart()
}
