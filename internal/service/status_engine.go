package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/qr-backend/internal/constants"
	"github.com/qr-backend/internal/logger"
	"github.com/qr-backend/internal/metrics"
	"github.com/qr-backend/internal/models"
	"github.com/qr-backend/internal/repository"

	"gorm.io/gorm"
)

// StatusRequest 批量状态变更请求
type StatusRequest struct {
	TenantID  uint                      `json:"tenant_id"`
	Target    string                    `json:"target"`
	NewStatus string                    `json:"new_status"`
	Reason    string                    `json:"reason"`
	Actor     string                    `json:"actor"`
	Selector  repository.StatusSelector `json:"selector"`
	JobID     string                    `json:"job_id,omitempty"`
}

// StatusRunOptions 执行选项：分块大小、取消检查与进度回调
type StatusRunOptions struct {
	ChunkSize    int
	ShouldCancel func() bool
	OnProgress   func(result *StatusResult)
}

// StatusResult 批量状态变更结果
type StatusResult struct {
	Total     int        `json:"total"`
	Processed int        `json:"processed"`
	Applied   int        `json:"applied"`
	Skipped   int        `json:"skipped"`
	Errors    []RowError `json:"errors"`
	Canceled  bool       `json:"canceled"`
}

// chunkOutcome 单块处理结果
type chunkOutcome struct {
	applied int
	skipped int
	errors  []RowError
}

// StatusEngine 状态流转引擎：按块加锁推进码与设备状态
type StatusEngine struct {
	productRepo repository.ProductRepository
	codeRepo    repository.CodeRepository
	deviceRepo  repository.DeviceRepository
	historyRepo repository.StatusHistoryRepository
	metrics     *metrics.CoreMetrics
	chunkSize   int
	now         func() time.Time
}

// NewStatusEngine 创建状态流转引擎
func NewStatusEngine(
	productRepo repository.ProductRepository,
	codeRepo repository.CodeRepository,
	deviceRepo repository.DeviceRepository,
	historyRepo repository.StatusHistoryRepository,
	coreMetrics *metrics.CoreMetrics,
	chunkSize int,
) *StatusEngine {
	if chunkSize <= 0 {
		chunkSize = constants.DefaultBulkChunkSize
	}
	return &StatusEngine{
		productRepo: productRepo,
		codeRepo:    codeRepo,
		deviceRepo:  deviceRepo,
		historyRepo: historyRepo,
		metrics:     coreMetrics,
		chunkSize:   chunkSize,
		now:         time.Now,
	}
}

// normalizeStatusRequest 校验目标、状态与选择条件
func normalizeStatusRequest(req StatusRequest) (StatusRequest, error) {
	req.Target = strings.ToLower(strings.TrimSpace(req.Target))
	if req.Target == "" {
		req.Target = constants.StatusTargetCode
	}
	req.NewStatus = strings.ToLower(strings.TrimSpace(req.NewStatus))
	switch req.Target {
	case constants.StatusTargetCode, constants.StatusTargetBoth:
		if !IsCodeStatus(req.NewStatus) {
			return req, ErrInvalidStatus
		}
	case constants.StatusTargetDevice:
		if !IsDeviceStatus(req.NewStatus) {
			if !IsCodeStatus(req.NewStatus) {
				return req, ErrInvalidStatus
			}
			req.NewStatus = DeviceStatusForCode(req.NewStatus)
		}
	default:
		return req, ErrInvalidTarget
	}
	if req.Selector.IsEmpty() {
		return req, ErrEmptySelector
	}
	return req, nil
}

// ApplyBulkStatus 选出目标后按块处理；非法回退记为 not_allowed 行错误并跳过，
// 已提交的块不因后续失败回滚，取消只在块之间生效
func (e *StatusEngine) ApplyBulkStatus(ctx context.Context, req StatusRequest, opts StatusRunOptions) (*StatusResult, error) {
	req, err := normalizeStatusRequest(req)
	if err != nil {
		return nil, err
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = e.chunkSize
	}

	var ids []uint
	if req.Target == constants.StatusTargetDevice {
		ids, err = e.deviceRepo.SelectIDsForStatus(req.TenantID, req.Selector)
	} else {
		ids, err = e.codeRepo.SelectIDsForStatus(req.TenantID, req.Selector)
	}
	if err != nil {
		return nil, err
	}

	result := &StatusResult{Total: len(ids), Errors: []RowError{}}
	log := logger.TW(req.TenantID, "job_id", req.JobID, "target", req.Target, "new_status", req.NewStatus)
	log.Infow("bulk_status_started", "total", result.Total, "chunk_size", chunkSize)
	if opts.OnProgress != nil {
		opts.OnProgress(result)
	}

	for start := 0; start < len(ids); start += chunkSize {
		if ctx.Err() != nil || (opts.ShouldCancel != nil && opts.ShouldCancel()) {
			result.Canceled = true
			log.Warnw("bulk_status_canceled", "processed", result.Processed, "total", result.Total)
			break
		}
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		began := time.Now()
		var outcome chunkOutcome
		err := e.productRepo.Transaction(func(tx *gorm.DB) error {
			var chunkErr error
			if req.Target == constants.StatusTargetDevice {
				outcome, chunkErr = e.applyDeviceChunk(tx, req, chunk, start)
			} else {
				outcome, chunkErr = e.applyCodeChunk(tx, req, chunk, start)
			}
			return chunkErr
		})
		e.metrics.ObserveBulkChunk(time.Since(began))
		if err != nil {
			log.Errorw("bulk_status_chunk_failed", "offset", start, "size", len(chunk), "error", err)
			return result, err
		}

		result.Processed += len(chunk)
		result.Applied += outcome.applied
		result.Skipped += outcome.skipped
		result.Errors = append(result.Errors, outcome.errors...)
		e.metrics.AddBulkRows("applied", outcome.applied)
		e.metrics.AddBulkRows("skipped", outcome.skipped)
		e.metrics.AddBulkRows(constants.RowErrorNotAllowed, len(outcome.errors))
		if opts.OnProgress != nil {
			opts.OnProgress(result)
		}
	}

	log.Infow("bulk_status_finished",
		"total", result.Total,
		"processed", result.Processed,
		"applied", result.Applied,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
		"canceled", result.Canceled,
	)
	return result, nil
}

// applyCodeChunk 锁定并推进一块码，目标含设备时同步其绑定设备
func (e *StatusEngine) applyCodeChunk(tx *gorm.DB, req StatusRequest, ids []uint, offset int) (chunkOutcome, error) {
	var outcome chunkOutcome
	codeRepo := e.codeRepo.WithTx(tx)
	codes, err := codeRepo.ListByIDsForUpdate(req.TenantID, ids)
	if err != nil {
		return outcome, err
	}
	byID := make(map[uint]*models.Code, len(codes))
	for i := range codes {
		byID[codes[i].ID] = &codes[i]
	}

	now := e.now()
	histories := make([]models.StatusHistory, 0, len(ids))
	movable := make([]uint, 0, len(ids))
	rowByCode := make(map[uint]int, len(ids))
	for i, id := range ids {
		row := offset + i + 1
		rowByCode[id] = row
		code, ok := byID[id]
		if !ok {
			outcome.skipped++
			continue
		}
		if code.Status == req.NewStatus {
			outcome.skipped++
			movable = append(movable, id)
			continue
		}
		if !CodeTransitionAllowed(code.Status, req.NewStatus) {
			outcome.errors = append(outcome.errors, notAllowedRow(row, "code:"+strconv.FormatUint(uint64(id), 10), code.Status, req.NewStatus))
			continue
		}
		histories = append(histories, codeHistory(code, req.NewStatus, req.Reason, req.Actor, req.JobID, now))
		applyCodeStatus(code, req.NewStatus, now)
		if err := codeRepo.Update(code); err != nil {
			return outcome, err
		}
		outcome.applied++
		movable = append(movable, id)
	}

	if req.Target == constants.StatusTargetBoth && len(movable) > 0 {
		deviceHistories, deviceErrs, err := e.syncLinkedDevices(tx, req, movable, rowByCode, now)
		if err != nil {
			return outcome, err
		}
		histories = append(histories, deviceHistories...)
		outcome.errors = append(outcome.errors, deviceErrs...)
		sort.SliceStable(outcome.errors, func(i, j int) bool { return outcome.errors[i].Row < outcome.errors[j].Row })
	}

	if err := e.historyRepo.WithTx(tx).CreateBatch(histories); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// syncLinkedDevices 按映射推进已绑定设备的状态
func (e *StatusEngine) syncLinkedDevices(tx *gorm.DB, req StatusRequest, codeIDs []uint, rowByCode map[uint]int, now time.Time) ([]models.StatusHistory, []RowError, error) {
	deviceRepo := e.deviceRepo.WithTx(tx)
	links, err := deviceRepo.ListLinksByCodeIDs(req.TenantID, codeIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(links) == 0 {
		return nil, nil, nil
	}
	codeByDevice := make(map[uint]uint, len(links))
	deviceIDs := make([]uint, 0, len(links))
	for _, link := range links {
		codeByDevice[link.DeviceID] = link.CodeID
		deviceIDs = append(deviceIDs, link.DeviceID)
	}
	devices, err := deviceRepo.ListByIDsForUpdate(req.TenantID, deviceIDs)
	if err != nil {
		return nil, nil, err
	}

	target := DeviceStatusForCode(req.NewStatus)
	var (
		histories []models.StatusHistory
		rowErrs   []RowError
	)
	for i := range devices {
		device := &devices[i]
		if device.Status == target {
			continue
		}
		if !DeviceTransitionAllowed(device.Status, target) {
			rowErrs = append(rowErrs, notAllowedRow(rowByCode[codeByDevice[device.ID]], "device:"+device.DeviceUID, device.Status, target))
			continue
		}
		histories = append(histories, deviceHistory(device, target, req.Reason, req.Actor, req.JobID, now))
		device.Status = target
		device.UpdatedAt = now
		if err := deviceRepo.Update(device); err != nil {
			return nil, nil, err
		}
	}
	return histories, rowErrs, nil
}

// applyDeviceChunk 仅推进设备状态
func (e *StatusEngine) applyDeviceChunk(tx *gorm.DB, req StatusRequest, ids []uint, offset int) (chunkOutcome, error) {
	var outcome chunkOutcome
	deviceRepo := e.deviceRepo.WithTx(tx)
	devices, err := deviceRepo.ListByIDsForUpdate(req.TenantID, ids)
	if err != nil {
		return outcome, err
	}
	byID := make(map[uint]*models.Device, len(devices))
	for i := range devices {
		byID[devices[i].ID] = &devices[i]
	}

	now := e.now()
	histories := make([]models.StatusHistory, 0, len(ids))
	for i, id := range ids {
		device, ok := byID[id]
		if !ok || device.Status == req.NewStatus {
			outcome.skipped++
			continue
		}
		if !DeviceTransitionAllowed(device.Status, req.NewStatus) {
			outcome.errors = append(outcome.errors, notAllowedRow(offset+i+1, "device:"+device.DeviceUID, device.Status, req.NewStatus))
			continue
		}
		histories = append(histories, deviceHistory(device, req.NewStatus, req.Reason, req.Actor, req.JobID, now))
		device.Status = req.NewStatus
		device.UpdatedAt = now
		if err := deviceRepo.Update(device); err != nil {
			return outcome, err
		}
		outcome.applied++
	}
	if err := e.historyRepo.WithTx(tx).CreateBatch(histories); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func notAllowedRow(row int, ref, from, to string) RowError {
	return RowError{
		Row:     row,
		Ref:     ref,
		Field:   "status",
		Code:    constants.RowErrorNotAllowed,
		Message: fmt.Sprintf("transition %s -> %s not allowed", from, to),
	}
}
