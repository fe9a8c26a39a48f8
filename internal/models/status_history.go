package models

import (
	"time"
)

// StatusHistory 码/设备状态变更审计（只追加）
type StatusHistory struct {
	ID          uint      `gorm:"primarykey" json:"id"`                                                                      // 主键
	TenantID    uint      `gorm:"not null;index" json:"tenant_id"`                                                           // 租户ID
	SubjectType string    `gorm:"type:varchar(20);not null;index:idx_status_history_subject,priority:1" json:"subject_type"` // 主体类型（code/device）
	SubjectID   uint      `gorm:"not null;index:idx_status_history_subject,priority:2" json:"subject_id"`                    // 主体ID
	OldStatus   string    `gorm:"type:varchar(20);not null" json:"old_status"`                                               // 原状态
	NewStatus   string    `gorm:"type:varchar(20);not null" json:"new_status"`                                               // 新状态
	Reason      string    `gorm:"type:text" json:"reason"`                                                                   // 原因
	Actor       string    `gorm:"type:varchar(120)" json:"actor"`                                                            // 操作人
	JobID       string    `gorm:"type:varchar(36);index" json:"job_id,omitempty"`                                            // 关联批处理任务
	CreatedAt   time.Time `gorm:"index" json:"created_at"`                                                                   // 记录时间
}

// TableName 指定表名
func (StatusHistory) TableName() string {
	return "status_history"
}
