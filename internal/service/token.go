package service

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/qr-backend/internal/config"
	"github.com/qr-backend/internal/constants"

	"golang.org/x/crypto/hkdf"
)

// microCodeAlphabet Crockford base32，排除 I L O U
const microCodeAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// microCodeSourceBytes 微码取校验值前 5 字节（40 bit = 8 个字符）
const microCodeSourceBytes = 5

// TenantKeyring 按租户和用途提供派生密钥
type TenantKeyring interface {
	Key(tenantID uint, purpose string) ([]byte, error)
}

// HKDFKeyring 基于根密钥的 HKDF-SHA256 租户密钥派生
type HKDFKeyring struct {
	root []byte
}

// NewHKDFKeyring 创建租户密钥派生器
func NewHKDFKeyring(rootSecret string) (*HKDFKeyring, error) {
	rootSecret = strings.TrimSpace(rootSecret)
	if rootSecret == "" {
		return nil, errors.New("codes root secret is empty")
	}
	return &HKDFKeyring{root: []byte(rootSecret)}, nil
}

// Key 派生 32 字节密钥：salt 为租户ID，info 为用途标签
func (k *HKDFKeyring) Key(tenantID uint, purpose string) ([]byte, error) {
	if strings.TrimSpace(purpose) == "" {
		return nil, errors.New("key purpose is empty")
	}
	salt := []byte(strconv.FormatUint(uint64(tenantID), 10))
	reader := hkdf.New(sha256.New, k.root, salt, []byte("qr-backend/tenant-key/"+purpose))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive tenant key: %w", err)
	}
	return key, nil
}

// MintedToken 单个令牌及其派生值
type MintedToken struct {
	Token         string
	TokenHash     string
	MicroCheck    string
	WatermarkHash string
}

// MicroCode 人工核对用的微码
func (m MintedToken) MicroCode() string {
	return FormatMicroCode(m.MicroCheck)
}

// TokenGenerator 令牌生成器（不落库）
type TokenGenerator struct {
	keyring        TenantKeyring
	random         io.Reader
	tokenBytes     int
	microBytes     int
	watermarkBytes int
}

// NewTokenGenerator 创建令牌生成器
func NewTokenGenerator(keyring TenantKeyring, cfg config.CodesConfig) *TokenGenerator {
	cfg = cfg.Normalize()
	return &TokenGenerator{
		keyring:        keyring,
		random:         rand.Reader,
		tokenBytes:     cfg.TokenBytes,
		microBytes:     cfg.MicroCheckBytes,
		watermarkBytes: cfg.WatermarkBytes,
	}
}

// WithRandom 替换随机源（测试用）
func (g *TokenGenerator) WithRandom(random io.Reader) *TokenGenerator {
	next := *g
	if random == nil {
		random = rand.Reader
	}
	next.random = random
	return &next
}

// MintToken 生成令牌、哈希与两个独立密钥的派生值
func (g *TokenGenerator) MintToken(tenantID uint) (MintedToken, error) {
	raw := make([]byte, g.tokenBytes)
	if _, err := io.ReadFull(g.random, raw); err != nil {
		return MintedToken{}, fmt.Errorf("read token randomness: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	microCheck, err := g.derive(tenantID, constants.KeyPurposeMicro, token, g.microBytes)
	if err != nil {
		return MintedToken{}, err
	}
	watermark, err := g.derive(tenantID, constants.KeyPurposeWatermark, token, g.watermarkBytes)
	if err != nil {
		return MintedToken{}, err
	}
	return MintedToken{
		Token:         token,
		TokenHash:     HashToken(token),
		MicroCheck:    microCheck,
		WatermarkHash: watermark,
	}, nil
}

// MicroCheck 重新计算令牌的微码校验值
func (g *TokenGenerator) MicroCheck(tenantID uint, token string) (string, error) {
	return g.derive(tenantID, constants.KeyPurposeMicro, token, g.microBytes)
}

// WatermarkHash 重新计算令牌的水印哈希
func (g *TokenGenerator) WatermarkHash(tenantID uint, token string) (string, error) {
	return g.derive(tenantID, constants.KeyPurposeWatermark, token, g.watermarkBytes)
}

func (g *TokenGenerator) derive(tenantID uint, purpose, token string, size int) (string, error) {
	key, err := g.keyring.Key(tenantID, purpose)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil)[:size]), nil
}

// HashToken 令牌的 SHA-256 十六进制摘要
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// FormatMicroCode 将微码校验值渲染为 XXXX-XXXX
func FormatMicroCode(microCheckHex string) string {
	raw, err := hex.DecodeString(microCheckHex)
	if err != nil || len(raw) < microCodeSourceBytes {
		return ""
	}
	code := encodeCrockford(raw[:microCodeSourceBytes])
	return code[:4] + "-" + code[4:]
}

// NormalizeMicroCode 归一化人工输入的微码：大写、去分隔符、O→0、I/L→1
func NormalizeMicroCode(input string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(input) {
		switch {
		case r == 'O':
			b.WriteByte('0')
		case r == 'I' || r == 'L':
			b.WriteByte('1')
		case r >= '0' && r <= '9', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MicroCodeMatches 常量时间比较人工输入与校验值
func MicroCodeMatches(microCheckHex, input string) bool {
	expected := strings.ReplaceAll(FormatMicroCode(microCheckHex), "-", "")
	got := NormalizeMicroCode(input)
	if expected == "" || len(got) != len(expected) {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(got))
}

func encodeCrockford(data []byte) string {
	var (
		out    strings.Builder
		buffer uint64
		bits   uint
	)
	for _, b := range data {
		buffer = buffer<<8 | uint64(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out.WriteByte(microCodeAlphabet[(buffer>>bits)&0x1f])
		}
	}
	if bits > 0 {
		out.WriteByte(microCodeAlphabet[(buffer<<(5-bits))&0x1f])
	}
	return out.String()
}
