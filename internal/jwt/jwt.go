package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

// TokenType Token 类型
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Platform 平台类型
type Platform string

const (
	PlatformUnknown Platform = "unknown" // 未知
	PlatformAndroid Platform = "android" // Android
	PlatformIOS     Platform = "ios"     // iOS
	PlatformWeb     Platform = "web"     // Web 网页
	PlatformDesktop Platform = "desktop" // 桌面应用
)

// Claims JWT 声明
// 会话网关通过 Email 声明把连接绑定到用户身份
type Claims struct {
	Email     string    `json:"email"`
	DeviceID  string    `json:"device_id"`
	Platform  Platform  `json:"platform"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// Service JWT 服务
// 签发由身份子系统负责，核心只做校验；签发方法保留用于测试和本地联调
type Service struct {
	secretKey    []byte
	accessExpire time.Duration
}

// NewService 创建 JWT 服务
func NewService(secretKey string, accessExpire time.Duration) *Service {
	return &Service{
		secretKey:    []byte(secretKey),
		accessExpire: accessExpire,
	}
}

// GenerateAccessToken 生成 Access Token
func (s *Service) GenerateAccessToken(email, deviceID string, platform Platform) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email:     email,
		DeviceID:  deviceID,
		Platform:  platform,
		TokenType: AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessExpire)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "messenger-identity",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateAccessToken 验证 Access Token
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.TokenType != AccessToken {
		return nil, ErrTokenInvalid
	}
	if claims.Email == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
