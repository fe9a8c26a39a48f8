package service

import (
	"strconv"
	"time"

	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/repository"

	"gorm.io/gorm"
)

// QuotaLimits 租户套餐的发码上限
type QuotaLimits struct {
	MonthlyLimit int64
	MaxBatchSize int64
}

// QuotaProvider 提供租户配额与本月已用量
type QuotaProvider interface {
	Limits(tenantID uint) (QuotaLimits, error)
	UsedThisMonth(tenantID uint, now time.Time) (int64, error)
}

// ConfigQuotaProvider 以配置为上限、以码表为用量的配额实现
type ConfigQuotaProvider struct {
	cfg      config.QuotaConfig
	codeRepo repository.CodeRepository
}

// NewConfigQuotaProvider 创建配额提供者
func NewConfigQuotaProvider(cfg config.QuotaConfig, codeRepo repository.CodeRepository) *ConfigQuotaProvider {
	return &ConfigQuotaProvider{cfg: cfg, codeRepo: codeRepo}
}

// Limits 返回租户上限，支持按租户覆盖月度上限
func (p *ConfigQuotaProvider) Limits(tenantID uint) (QuotaLimits, error) {
	limits := QuotaLimits{MonthlyLimit: p.cfg.MonthlyLimit, MaxBatchSize: p.cfg.MaxBatchSize}
	if override, ok := p.cfg.TenantMonthly[strconv.FormatUint(uint64(tenantID), 10)]; ok {
		limits.MonthlyLimit = override
	}
	return limits, nil
}

// WithTx 返回在事务内统计用量的配额提供者
func (p *ConfigQuotaProvider) WithTx(tx *gorm.DB) QuotaProvider {
	return &ConfigQuotaProvider{cfg: p.cfg, codeRepo: p.codeRepo.WithTx(tx)}
}

// UsedThisMonth 统计自然月内已创建的码
func (p *ConfigQuotaProvider) UsedThisMonth(tenantID uint, now time.Time) (int64, error) {
	return p.codeRepo.CountCreatedSince(tenantID, monthStart(now))
}

func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// txQuotaProvider 可绑定事务的配额提供者
type txQuotaProvider interface {
	WithTx(tx *gorm.DB) QuotaProvider
}

// checkQuotaInTx 加租户锁后在写入事务内复核配额，防止并发发码合计超限
func checkQuotaInTx(tx *gorm.DB, provider QuotaProvider, tenantID uint, requested int64, now time.Time) error {
	if provider == nil {
		return nil
	}
	if err := repository.LockTenantQuota(tx, tenantID); err != nil {
		return err
	}
	if bound, ok := provider.(txQuotaProvider); ok {
		provider = bound.WithTx(tx)
	}
	return checkQuota(provider, tenantID, requested, now)
}

// checkQuota 发码前校验：单批上限与月度上限，任一超出即整单拒绝
// 上限 <= 0 表示不限
func checkQuota(provider QuotaProvider, tenantID uint, requested int64, now time.Time) error {
	if provider == nil {
		return nil
	}
	limits, err := provider.Limits(tenantID)
	if err != nil {
		return err
	}
	used, err := provider.UsedThisMonth(tenantID, now)
	if err != nil {
		return err
	}
	quotaErr := &QuotaError{Requested: requested, Used: used, MonthlyLimit: limits.MonthlyLimit, MaxBatchSize: limits.MaxBatchSize}
	if limits.MaxBatchSize > 0 && requested > limits.MaxBatchSize {
		return quotaErr
	}
	if limits.MonthlyLimit > 0 && used+requested > limits.MonthlyLimit {
		return quotaErr
	}
	return nil
}
