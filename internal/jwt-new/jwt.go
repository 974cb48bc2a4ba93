package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NewToken подписывает HS256 токен с sub = id пользователя у провайдера идентификации.
// В проде токены выдаёт провайдер; здесь для тестов и локальной отладки.
func NewToken(authID, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   authID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
