package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// pgUniqueViolation PostgreSQL 唯一约束冲突错误码
const pgUniqueViolation = "23505"

// IsUniqueViolation 判断是否为唯一约束冲突（兼容 postgres 与 sqlite）
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// UniqueViolationTarget 返回冲突的约束描述：postgres 为约束名，sqlite 为列清单
func UniqueViolationTarget(err error) string {
	if !IsUniqueViolation(err) {
		return ""
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.ToLower(pgErr.ConstraintName)
	}
	msg := err.Error()
	idx := strings.Index(msg, "UNIQUE constraint failed:")
	if idx < 0 {
		return ""
	}
	target := strings.TrimSpace(msg[idx+len("UNIQUE constraint failed:"):])
	if cut := strings.Index(target, " ("); cut >= 0 {
		target = target[:cut]
	}
	return strings.ToLower(target)
}

// UniqueViolationOn 判断冲突是否落在指定约束或列上
// postgres 按约束名匹配，sqlite 按 "表.列" 匹配
func UniqueViolationOn(err error, constraint, column string) bool {
	target := UniqueViolationTarget(err)
	if target == "" {
		return false
	}
	if constraint != "" && strings.Contains(target, strings.ToLower(constraint)) {
		return true
	}
	return column != "" && strings.Contains(target, strings.ToLower(column))
}
