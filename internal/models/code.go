package models

import (
	"time"
)

// Code 已发行的防伪码
type Code struct {
	ID                 uint       `gorm:"primarykey" json:"id"`                                                                                                                                                                                                     // 主键
	TenantID           uint       `gorm:"not null;uniqueIndex:uk_codes_tenant_token,priority:1;uniqueIndex:uk_codes_tenant_token_hash,priority:1;uniqueIndex:uk_codes_tenant_nfc_uid,priority:1;index:idx_codes_tenant_product_status,priority:1" json:"tenant_id"` // 租户ID
	Token              string     `gorm:"type:varchar(64);not null;uniqueIndex:uk_codes_tenant_token,priority:2" json:"token"`                                                                                                                                      // 二维码令牌
	TokenHash          string     `gorm:"type:char(64);not null;uniqueIndex:uk_codes_tenant_token_hash,priority:2" json:"-"`                                                                                                                                        // 令牌哈希（索引查询用）
	Status             string     `gorm:"type:varchar(20);not null;index:idx_codes_tenant_product_status,priority:3" json:"status"`                                                                                                                                 // 状态
	VerificationMode   string     `gorm:"type:varchar(20);not null;default:'qr'" json:"verification_mode"`                                                                                                                                                          // 校验模式
	MicroCheck         string     `gorm:"type:varchar(64);not null" json:"-"`                                                                                                                                                                                       // 微码校验值（hex）
	WatermarkHash      string     `gorm:"type:varchar(64);not null" json:"-"`                                                                                                                                                                                       // 水印哈希（hex）
	NFCKeyRef          string     `gorm:"type:varchar(64)" json:"nfc_key_ref,omitempty"`                                                                                                                                                                            // NFC 密钥引用
	NFCUID             *string    `gorm:"type:varchar(32);uniqueIndex:uk_codes_tenant_nfc_uid,priority:2" json:"nfc_uid,omitempty"`                                                                                                                                 // NFC 标签 UID
	NFCCtrLast         int64      `gorm:"not null;default:0" json:"nfc_ctr_last"`                                                                                                                                                                                   // 最近一次防重放计数
	PUFID              string     `gorm:"type:varchar(64)" json:"puf_id,omitempty"`                                                                                                                                                                                 // PUF 标识
	PUFFingerprintHash string     `gorm:"type:char(64)" json:"puf_fingerprint_hash,omitempty"`                                                                                                                                                                      // PUF 指纹哈希
	PUFAlg             string     `gorm:"type:varchar(32)" json:"puf_alg,omitempty"`                                                                                                                                                                                // PUF 算法
	PUFScoreThreshold  float64    `gorm:"not null;default:0" json:"puf_score_threshold"`                                                                                                                                                                            // PUF 匹配阈值
	ProductID          *uint      `gorm:"index:idx_codes_tenant_product_status,priority:2" json:"product_id,omitempty"`                                                                                                                                             // 商品ID（通用码为空）
	BatchID            *uint      `gorm:"index" json:"batch_id,omitempty"`                                                                                                                                                                                          // 批次ID
	ChannelID          *uint      `gorm:"index" json:"channel_id,omitempty"`                                                                                                                                                                                        // 渠道ID
	PrintRunID         *uint      `gorm:"index" json:"print_run_id,omitempty"`                                                                                                                                                                                      // 印刷批次ID
	ParentCodeID       *uint      `gorm:"index" json:"parent_code_id,omitempty"`                                                                                                                                                                                    // 直接父码ID
	IssuedAt           time.Time  `gorm:"index;not null" json:"issued_at"`                                                                                                                                                                                          // 发行时间
	ActivatedAt        *time.Time `json:"activated_at,omitempty"`                                                                                                                                                                                                   // 激活时间
	VoidedAt           *time.Time `json:"voided_at,omitempty"`                                                                                                                                                                                                      // 作废时间
	ExpiresAt          *time.Time `gorm:"index" json:"expires_at,omitempty"`                                                                                                                                                                                        // 过期时间
	CreatedAt          time.Time  `gorm:"index" json:"created_at"`                                                                                                                                                                                                  // 创建时间
	UpdatedAt          time.Time  `json:"updated_at"`                                                                                                                                                                                                               // 更新时间
}

// TableName 指定表名
func (Code) TableName() string {
	return "codes"
}

// IsExpired 判断码是否已过期
func (c *Code) IsExpired(now time.Time) bool {
	return c != nil && c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Batch 生产批次
type Batch struct {
	ID             uint       `gorm:"primarykey" json:"id"`                                                                  // 主键
	TenantID       uint       `gorm:"not null;uniqueIndex:uk_batches_tenant_no,priority:1" json:"tenant_id"`                 // 租户ID
	BatchNo        string     `gorm:"type:varchar(48);not null;uniqueIndex:uk_batches_tenant_no,priority:2" json:"batch_no"` // 批次号
	ProductID      *uint      `gorm:"index" json:"product_id,omitempty"`                                                     // 商品ID
	ManufacturedAt *time.Time `json:"manufactured_at,omitempty"`                                                             // 生产日期
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`                                                                  // 到期日期（作为码的默认过期时间）
	Note           string     `gorm:"type:text" json:"note"`                                                                 // 备注
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`                                                               // 创建时间
	UpdatedAt      time.Time  `json:"updated_at"`                                                                            // 更新时间
}

// TableName 指定表名
func (Batch) TableName() string {
	return "batches"
}

// PrintRun 印刷任务
type PrintRun struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                                                   // 主键
	TenantID  uint      `gorm:"not null;uniqueIndex:uk_print_runs_tenant_no,priority:1" json:"tenant_id"`               // 租户ID
	RunNo     string    `gorm:"type:varchar(48);not null;uniqueIndex:uk_print_runs_tenant_no,priority:2" json:"run_no"` // 印刷单号
	Vendor    string    `gorm:"type:varchar(120)" json:"vendor"`                                                        // 印刷厂
	CreatedAt time.Time `gorm:"index" json:"created_at"`                                                                // 创建时间
	UpdatedAt time.Time `json:"updated_at"`                                                                             // 更新时间
}

// TableName 指定表名
func (PrintRun) TableName() string {
	return "print_runs"
}

// Channel 发行渠道（如 WEB、RETAIL）
type Channel struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                                                 // 主键
	TenantID  uint      `gorm:"not null;uniqueIndex:uk_channels_tenant_code,priority:1" json:"tenant_id"`             // 租户ID
	Code      string    `gorm:"type:varchar(32);not null;uniqueIndex:uk_channels_tenant_code,priority:2" json:"code"` // 渠道编码
	Name      string    `gorm:"type:varchar(120)" json:"name"`                                                        // 渠道名称
	CreatedAt time.Time `json:"created_at"`                                                                           // 创建时间
	UpdatedAt time.Time `json:"updated_at"`                                                                           // 更新时间
}

// TableName 指定表名
func (Channel) TableName() string {
	return "channels"
}
