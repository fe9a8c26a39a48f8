package queue

import (
	"encoding/json"

	"github.com/qr-backend/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskBulkStatusApply 批量状态变更任务
	TaskBulkStatusApply = constants.TaskBulkStatusApply
)

// BulkStatusPayload 批量状态变更任务载荷（参数保存在任务行中）
type BulkStatusPayload struct {
	JobID    string `json:"job_id"`
	TenantID uint   `json:"tenant_id"`
}

// NewBulkStatusTask 创建批量状态变更任务
func NewBulkStatusTask(payload BulkStatusPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBulkStatusApply, body), nil
}

// ParseBulkStatusPayload 解析批量状态变更任务载荷
func ParseBulkStatusPayload(task *asynq.Task) (BulkStatusPayload, error) {
	var payload BulkStatusPayload
	if task == nil {
		return payload, nil
	}
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}
