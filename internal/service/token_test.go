package service

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/constants"
)

// stubKeyring 按用途返回固定密钥
type stubKeyring map[string][]byte

func (k stubKeyring) Key(tenantID uint, purpose string) ([]byte, error) {
	key, ok := k[purpose]
	if !ok {
		return nil, fmt.Errorf("no key for %s", purpose)
	}
	return append([]byte(fmt.Sprintf("%d:", tenantID)), key...), nil
}

func newTestTokenGenerator(t *testing.T) *TokenGenerator {
	t.Helper()
	keyring, err := NewHKDFKeyring("unit-test-root-secret")
	if err != nil {
		t.Fatalf("new keyring failed: %v", err)
	}
	return NewTokenGenerator(keyring, config.CodesConfig{})
}

func TestMintTokenUniqueness(t *testing.T) {
	gen := newTestTokenGenerator(t)
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		minted, err := gen.MintToken(1)
		if err != nil {
			t.Fatalf("mint token failed: %v", err)
		}
		if _, dup := seen[minted.Token]; dup {
			t.Fatalf("duplicate token after %d mints", i)
		}
		seen[minted.Token] = struct{}{}
	}
}

func TestMintTokenShape(t *testing.T) {
	gen := newTestTokenGenerator(t)
	minted, err := gen.MintToken(7)
	if err != nil {
		t.Fatalf("mint token failed: %v", err)
	}
	if len(minted.Token) != 22 {
		t.Fatalf("16 random bytes should encode to 22 chars, got %d", len(minted.Token))
	}
	if strings.ContainsAny(minted.Token, "=+/") {
		t.Fatalf("token must be url-safe without padding: %s", minted.Token)
	}
	if minted.TokenHash != HashToken(minted.Token) || len(minted.TokenHash) != 64 {
		t.Fatalf("token hash mismatch: %s", minted.TokenHash)
	}
	for _, value := range []string{minted.MicroCheck, minted.WatermarkHash} {
		raw, err := hex.DecodeString(value)
		if err != nil || len(raw) != constants.DefaultDerivationBytes {
			t.Fatalf("derived value should be %d hex bytes, got %q", constants.DefaultDerivationBytes, value)
		}
	}
	if minted.MicroCheck == minted.WatermarkHash {
		t.Fatalf("micro check and watermark must differ")
	}
	code := minted.MicroCode()
	if len(code) != 9 || code[4] != '-' {
		t.Fatalf("micro code should render as XXXX-XXXX, got %q", code)
	}
	for _, r := range strings.ReplaceAll(code, "-", "") {
		if !strings.ContainsRune(microCodeAlphabet, r) {
			t.Fatalf("micro code contains confusable char %q", r)
		}
	}
}

func TestDerivationIndependence(t *testing.T) {
	cfg := config.CodesConfig{}
	token := "fixed-token-value"
	base := NewTokenGenerator(stubKeyring{
		constants.KeyPurposeMicro:     []byte("micro-a"),
		constants.KeyPurposeWatermark: []byte("watermark-a"),
	}, cfg)
	microRotated := NewTokenGenerator(stubKeyring{
		constants.KeyPurposeMicro:     []byte("micro-b"),
		constants.KeyPurposeWatermark: []byte("watermark-a"),
	}, cfg)
	watermarkRotated := NewTokenGenerator(stubKeyring{
		constants.KeyPurposeMicro:     []byte("micro-a"),
		constants.KeyPurposeWatermark: []byte("watermark-b"),
	}, cfg)

	baseMicro, _ := base.MicroCheck(1, token)
	baseWatermark, _ := base.WatermarkHash(1, token)

	rotatedMicro, _ := microRotated.MicroCheck(1, token)
	sameWatermark, _ := microRotated.WatermarkHash(1, token)
	if rotatedMicro == baseMicro {
		t.Fatalf("changing micro key must change micro check")
	}
	if sameWatermark != baseWatermark {
		t.Fatalf("changing micro key must not change watermark")
	}

	sameMicro, _ := watermarkRotated.MicroCheck(1, token)
	rotatedWatermark, _ := watermarkRotated.WatermarkHash(1, token)
	if sameMicro != baseMicro {
		t.Fatalf("changing watermark key must not change micro check")
	}
	if rotatedWatermark == baseWatermark {
		t.Fatalf("changing watermark key must change watermark")
	}
}

func TestHKDFKeyringTenantAndPurposeIsolation(t *testing.T) {
	keyring, err := NewHKDFKeyring("root")
	if err != nil {
		t.Fatalf("new keyring failed: %v", err)
	}
	a, _ := keyring.Key(1, constants.KeyPurposeMicro)
	b, _ := keyring.Key(2, constants.KeyPurposeMicro)
	c, _ := keyring.Key(1, constants.KeyPurposeWatermark)
	again, _ := keyring.Key(1, constants.KeyPurposeMicro)
	if bytes.Equal(a, b) || bytes.Equal(a, c) {
		t.Fatalf("tenant keys must be independent per tenant and purpose")
	}
	if !bytes.Equal(a, again) {
		t.Fatalf("key derivation must be deterministic")
	}
	if _, err := NewHKDFKeyring("  "); err == nil {
		t.Fatalf("empty root secret should be rejected")
	}
}

func TestMintTokenUsesInjectedRandomness(t *testing.T) {
	gen := newTestTokenGenerator(t).WithRandom(bytes.NewReader(make([]byte, 32)))
	first, err := gen.MintToken(1)
	if err != nil {
		t.Fatalf("first mint failed: %v", err)
	}
	second, err := gen.MintToken(1)
	if err != nil {
		t.Fatalf("second mint failed: %v", err)
	}
	if first.Token != second.Token {
		t.Fatalf("zero reader should produce identical tokens")
	}
	if _, err := gen.MintToken(1); err == nil {
		t.Fatalf("exhausted randomness should fail")
	}
}

func TestMicroCodeNormalization(t *testing.T) {
	microCheck := "00443214c74254b635cf84653a56d7c6"
	code := FormatMicroCode(microCheck)
	if code != "0123-4567" {
		t.Fatalf("unexpected micro code %q", code)
	}
	cases := []struct {
		input string
		want  bool
	}{
		{input: "0123-4567", want: true},
		{input: "o123 4567", want: true},
		{input: "Ol23.4S67", want: false},
		{input: "0I23-4567", want: true},
		{input: "0123-456", want: false},
	}
	for _, tc := range cases {
		if got := MicroCodeMatches(microCheck, tc.input); got != tc.want {
			t.Fatalf("input %q want %v got %v", tc.input, tc.want, got)
		}
	}
}
