package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const defaultJobProgressTTL = 24 * time.Hour

// JobProgress 批处理任务进度快照，供轮询读取
type JobProgress struct {
	JobID      string `json:"job_id"`
	TenantID   uint   `json:"tenant_id"`
	Status     string `json:"status"`
	Total      int    `json:"total"`
	Processed  int    `json:"processed"`
	ErrorCount int    `json:"error_count"`
	UpdatedAt  int64  `json:"updated_at"`
}

func jobProgressKey(jobID string) string {
	return fmt.Sprintf("bulk_job:%s", strings.TrimSpace(jobID))
}

// SetJobProgress 写入任务进度
func SetJobProgress(ctx context.Context, progress *JobProgress, ttl time.Duration) error {
	if progress == nil || strings.TrimSpace(progress.JobID) == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultJobProgressTTL
	}
	if progress.UpdatedAt == 0 {
		progress.UpdatedAt = time.Now().Unix()
	}
	return SetJSON(ctx, jobProgressKey(progress.JobID), progress, ttl)
}

// GetJobProgress 读取任务进度，未命中返回 nil
func GetJobProgress(ctx context.Context, jobID string) (*JobProgress, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, nil
	}
	var progress JobProgress
	hit, err := GetJSON(ctx, jobProgressKey(jobID), &progress)
	if err != nil || !hit {
		return nil, err
	}
	return &progress, nil
}

// DelJobProgress 删除任务进度
func DelJobProgress(ctx context.Context, jobID string) error {
	return Del(ctx, jobProgressKey(jobID))
}
