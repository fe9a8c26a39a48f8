package repository

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// dbDialectName 获取数据库方言名称，默认按 sqlite 处理。
func dbDialectName(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return "sqlite"
	}
	name := strings.ToLower(strings.TrimSpace(db.Dialector.Name()))
	if name == "" {
		return "sqlite"
	}
	return name
}

// jsonTextExpr 构建 JSON 字段文本提取表达式，兼容 sqlite 与 postgres。
func jsonTextExpr(db *gorm.DB, column, key string) string {
	return jsonTextExprByDialect(dbDialectName(db), column, key)
}

func jsonTextExprByDialect(dialect, column, key string) string {
	key = strings.ReplaceAll(key, "'", "")
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql":
		// postgres 统一转 jsonb 后再使用 ->> 提取文本
		return fmt.Sprintf("(%s::jsonb ->> '%s')", column, key)
	default:
		// 属性键使用引号避免 - 等特殊字符问题
		return fmt.Sprintf("json_extract(%s, '$.\"%s\"')", column, key)
	}
}

func likeOperatorByDialect(dialect string) string {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql":
		return "ILIKE"
	default:
		return "LIKE"
	}
}

// chunkUints 将 ID 列表按固定大小切分，避免 IN 参数过多。
func chunkUints(ids []uint, size int) [][]uint {
	if size <= 0 {
		size = 500
	}
	chunks := make([][]uint, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// quotaLockNamespace 发码配额的 advisory lock 命名空间
const quotaLockNamespace int32 = 0x51520001

// LockTenantQuota 在当前事务内串行化同一租户的发码配额校验。
// postgres 使用事务级 advisory lock；sqlite 的写事务本身串行执行。
func LockTenantQuota(tx *gorm.DB, tenantID uint) error {
	switch dbDialectName(tx) {
	case "postgres", "postgresql":
		return tx.Exec("SELECT pg_advisory_xact_lock(?, ?)", quotaLockNamespace, int32(tenantID)).Error
	default:
		return nil
	}
}
