package service

import (
	"errors"
	"strings"
	"time"

	"github.com/qr-backend/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid 令牌无效
var ErrTokenInvalid = errors.New("invalid token")

// AuthService 操作员令牌签发与校验
type AuthService struct {
	cfg config.JWTConfig
	now func() time.Time
}

// NewAuthService 创建认证服务实例
func NewAuthService(cfg config.JWTConfig) *AuthService {
	return &AuthService{cfg: cfg, now: time.Now}
}

// OperatorClaims JWT 声明，租户与操作人只从令牌读取
type OperatorClaims struct {
	TenantID uint   `json:"tenant_id"`
	Actor    string `json:"actor"`
	jwt.RegisteredClaims
}

// GenerateJWT 生成 JWT Token
func (s *AuthService) GenerateJWT(tenantID uint, actor string) (string, time.Time, error) {
	actor = strings.TrimSpace(actor)
	if tenantID == 0 || actor == "" {
		return "", time.Time{}, ErrInvalidArgument
	}
	if strings.TrimSpace(s.cfg.SecretKey) == "" {
		return "", time.Time{}, ErrTokenInvalid
	}
	now := s.now()
	hours := s.cfg.ExpireHours
	if hours <= 0 {
		hours = 24
	}
	expiresAt := now.Add(time.Duration(hours) * time.Hour)

	claims := OperatorClaims{
		TenantID: tenantID,
		Actor:    actor,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   actor,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseJWT 解析 JWT Token
func (s *AuthService) ParseJWT(tokenString string) (*OperatorClaims, error) {
	if strings.TrimSpace(s.cfg.SecretKey) == "" {
		return nil, ErrTokenInvalid
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.SecretKey), nil
	})
	if err != nil {
		return nil, errors.Join(ErrTokenInvalid, err)
	}
	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid || claims.TenantID == 0 || strings.TrimSpace(claims.Actor) == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
