package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"production-dashboard/lifecycle"
	"production-dashboard/models"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// Claims are the access-token claims issued by the production API.
type Claims struct {
	UserID json.Number `json:"user_id"`
	Email  string      `json:"email"`
	Role   string      `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(user models.User, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: json.Number(strconv.FormatInt(user.ID, 10)),
		Email:  user.Email,
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses an access token. With an empty secret the signature
// is not checked, since only the API holds the signing key; expiry is
// enforced either way.
func ValidateToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}

	if secret == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
		if claims.ExpiresAt != nil && !claims.ExpiresAt.After(time.Now()) {
			return nil, ErrTokenExpired
		}
		return claims, nil
	}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, nil
}

func (c *Claims) User() (models.User, error) {
	id, err := c.UserID.Int64()
	if err != nil || id <= 0 {
		return models.User{}, fmt.Errorf("%w: missing user id", ErrTokenInvalid)
	}
	role, err := lifecycle.ParseRole(c.Role)
	if err != nil {
		return models.User{}, err
	}
	return models.User{ID: id, Email: c.Email, Role: role}, nil
}

func (c *Claims) Expiry() (time.Time, bool) {
	if c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}
