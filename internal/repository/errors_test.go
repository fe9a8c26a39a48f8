package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm duplicated", err: gorm.ErrDuplicatedKey, want: true},
		{name: "pg unique", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uk_codes_tenant_nfc_uid"}), want: true},
		{name: "pg other", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "sqlite", err: errors.New("constraint failed: UNIQUE constraint failed: code_device_links.code_id (2067)"), want: true},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tc := range cases {
		if got := IsUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("%s: want %v got %v", tc.name, tc.want, got)
		}
	}
}

func TestUniqueViolationOn(t *testing.T) {
	sqliteErr := errors.New("constraint failed: UNIQUE constraint failed: code_device_links.device_id (2067)")
	if !UniqueViolationOn(sqliteErr, "uk_code_device_links_device", "code_device_links.device_id") {
		t.Fatalf("sqlite device conflict should match")
	}
	if UniqueViolationOn(sqliteErr, "uk_code_device_links_code", "code_device_links.code_id") {
		t.Fatalf("sqlite device conflict should not match code constraint")
	}
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uk_code_device_links_code"}
	if !UniqueViolationOn(pgErr, "uk_code_device_links_code", "code_device_links.code_id") {
		t.Fatalf("pg code conflict should match by constraint")
	}
}
