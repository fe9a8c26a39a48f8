package repository

import "testing"

func TestJSONTextExprByDialectSQLite(t *testing.T) {
	got := jsonTextExprByDialect("sqlite", "attrs", "color")
	want := "json_extract(attrs, '$.\"color\"')"
	if got != want {
		t.Fatalf("sqlite json expr mismatch, want %s got %s", want, got)
	}
}

func TestJSONTextExprByDialectPostgres(t *testing.T) {
	got := jsonTextExprByDialect("postgres", "attrs", "fw'version")
	want := "(attrs::jsonb ->> 'fwversion')"
	if got != want {
		t.Fatalf("postgres json expr mismatch, want %s got %s", want, got)
	}
}

func TestLikeOperatorByDialect(t *testing.T) {
	if got := likeOperatorByDialect("postgres"); got != "ILIKE" {
		t.Fatalf("postgres like operator want ILIKE got %s", got)
	}
	if got := likeOperatorByDialect("sqlite"); got != "LIKE" {
		t.Fatalf("sqlite like operator want LIKE got %s", got)
	}
}

func TestChunkUints(t *testing.T) {
	ids := []uint{1, 2, 3, 4, 5}
	chunks := chunkUints(ids, 2)
	if len(chunks) != 3 {
		t.Fatalf("chunk count want 3 got %d", len(chunks))
	}
	if len(chunks[2]) != 1 || chunks[2][0] != 5 {
		t.Fatalf("last chunk mismatch: %v", chunks[2])
	}
	if got := chunkUints(nil, 10); len(got) != 0 {
		t.Fatalf("empty input should yield no chunks, got %v", got)
	}
}
