package repository

import "time"

// ProductListFilter 查询商品列表的过滤条件
type ProductListFilter struct {
	Page     int
	PageSize int
	Type     string
	Status   string
	Search   string
}

// CodeListFilter 查询码列表的过滤条件
type CodeListFilter struct {
	Page        int
	PageSize    int
	ProductID   uint
	BatchID     uint
	PrintRunID  uint
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// CodeClaimFilter 分配可用码时的过滤条件
type CodeClaimFilter struct {
	ProductID uint
	BatchID   uint
	ChannelID uint
	ValidAt   time.Time // 非零时跳过在该时刻前已过期的码
}

// StatusSelector 批量状态变更的选择条件（各条件取交集）
type StatusSelector struct {
	PrintRunID  uint     `json:"print_run_id,omitempty"`
	ProductID   uint     `json:"product_id,omitempty"`
	Statuses    []string `json:"statuses,omitempty"`
	TokenHashes []string `json:"token_hashes,omitempty"`
	DeviceUIDs  []string `json:"device_uids,omitempty"`
}

// IsEmpty 判断是否没有任何选择条件
func (s StatusSelector) IsEmpty() bool {
	return s.PrintRunID == 0 && s.ProductID == 0 && len(s.Statuses) == 0 && len(s.TokenHashes) == 0 && len(s.DeviceUIDs) == 0
}

// DeviceListFilter 查询设备列表的过滤条件
type DeviceListFilter struct {
	Page      int
	PageSize  int
	ProductID uint
	Status    string
	Search    string
	AttrKey   string
	AttrValue string
}

// ClosureRow 闭包查询结果
type ClosureRow struct {
	AncestorID   uint
	DescendantID uint
	Depth        int
}
