package models

import (
	"time"
)

// BulkJob 后台批处理任务（批量状态变更）
type BulkJob struct {
	ID          string       `gorm:"type:varchar(36);primarykey" json:"id"`         // 任务ID（uuid）
	TenantID    uint         `gorm:"not null;index" json:"tenant_id"`               // 租户ID
	Kind        string       `gorm:"type:varchar(32);not null" json:"kind"`         // 任务类型
	Status      string       `gorm:"type:varchar(20);not null;index" json:"status"` // 任务状态
	Payload     JSON         `gorm:"type:json" json:"payload"`                      // 任务参数
	Actor       string       `gorm:"type:varchar(120)" json:"actor"`                // 发起人
	Total       int          `gorm:"not null;default:0" json:"total"`               // 总行数
	Processed   int          `gorm:"not null;default:0" json:"processed"`           // 已处理行数
	ErrorCount  int          `gorm:"not null;default:0" json:"error_count"`         // 错误行数
	Errors      RowErrorList `gorm:"type:json" json:"errors"`                       // 行级错误
	LastError   string       `gorm:"type:text" json:"last_error,omitempty"`         // 致命错误信息
	StartedAt   *time.Time   `json:"started_at,omitempty"`                          // 开始时间
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`                         // 结束时间
	CreatedAt   time.Time    `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt   time.Time    `json:"updated_at"`                                    // 更新时间
}

// TableName 指定表名
func (BulkJob) TableName() string {
	return "bulk_jobs"
}

// IsTerminal 任务是否已结束
func (j *BulkJob) IsTerminal() bool {
	if j == nil {
		return false
	}
	switch j.Status {
	case "completed", "failed", "canceled":
		return true
	}
	return false
}
