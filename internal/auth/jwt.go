package auth

import (
	"errors"
	"time"

	"inventory-service/internal/domain"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// JWTClaims carries the caller identity. Subject is the user id.
type JWTClaims struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal returns the authenticated caller described by the claims.
func (c *JWTClaims) Principal() (domain.Principal, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return domain.Principal{}, ErrInvalidToken
	}
	role, err := domain.ParseRole(string(c.Role))
	if err != nil {
		return domain.Principal{}, ErrInvalidToken
	}
	return domain.Principal{UserID: id, Role: role}, nil
}

// JWTManager issues and validates HS256 tokens.
type JWTManager struct {
	secretKey []byte
	ttl       time.Duration
	issuer    string
	logger    *zap.Logger
}

func NewJWTManager(secretKey string, ttl time.Duration, issuer string, logger *zap.Logger) *JWTManager {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &JWTManager{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		issuer:    issuer,
		logger:    logger,
	}
}

// TTL is how long issued tokens stay valid.
func (j *JWTManager) TTL() time.Duration {
	return j.ttl
}

// GenerateToken issues a token for u and returns it with its expiry.
func (j *JWTManager) GenerateToken(u *domain.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(j.ttl)

	claims := JWTClaims{
		Username: u.Email,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.issuer,
			Subject:   u.ID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		j.logger.Error("Failed to generate token", zap.Error(err))
		return "", time.Time{}, err
	}

	j.logger.Debug("Token generated",
		zap.String("user_id", u.ID.String()),
		zap.Time("expires_at", expiresAt),
	)
	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (j *JWTManager) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return j.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
