package models

import (
	"time"
)

// CodeEdge 码层面的父子装配边（子码最多一个父码）
type CodeEdge struct {
	ID           uint      `gorm:"primarykey" json:"id"`                                          // 主键
	TenantID     uint      `gorm:"not null;index" json:"tenant_id"`                               // 租户ID
	ParentCodeID uint      `gorm:"not null;index" json:"parent_code_id"`                          // 父码ID
	ChildCodeID  uint      `gorm:"not null;uniqueIndex:uk_code_edges_child" json:"child_code_id"` // 子码ID
	CreatedAt    time.Time `json:"created_at"`                                                    // 创建时间
}

// TableName 指定表名
func (CodeEdge) TableName() string {
	return "code_edges"
}

// CodeClosure 码闭包索引（depth=0 为自身）
type CodeClosure struct {
	ID           uint `gorm:"primarykey" json:"id"`                                                            // 主键
	TenantID     uint `gorm:"not null;index" json:"tenant_id"`                                                 // 租户ID
	AncestorID   uint `gorm:"not null;uniqueIndex:uk_code_closure_pair,priority:1" json:"ancestor_id"`         // 祖先码ID
	DescendantID uint `gorm:"not null;uniqueIndex:uk_code_closure_pair,priority:2;index" json:"descendant_id"` // 后代码ID
	Depth        int  `gorm:"not null" json:"depth"`                                                           // 层级距离
}

// TableName 指定表名
func (CodeClosure) TableName() string {
	return "code_closure"
}
