package jwtmiddleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/linemk/market-checkout/internal/domain/models"
	"github.com/linemk/market-checkout/internal/storage"
)

type contextKey string

const ProfileKey contextKey = "profile"

// New проверяет Bearer токен и кладёт в контекст доменный профиль вызывающего.
// sub токена — id пользователя у провайдера идентификации, профиль ищется через resolver.
func New(secret string, resolver storage.ProfileStorage, log *slog.Logger) func(http.Handler) http.Handler {
	const op = "jwtmiddleware.New"
	log = log.With(slog.String("op", op))

	if secret == "" {
		panic("JWT_SECRET is not set")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем токен из заголовка Authorization (формат: "Bearer <token>")
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid token format", http.StatusUnauthorized)
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if claims.Subject == "" {
				http.Error(w, "invalid token claims: sub not found", http.StatusUnauthorized)
				return
			}

			profile, err := resolver.ResolveProfile(r.Context(), claims.Subject)
			if errors.Is(err, storage.ErrProfileNotFound) {
				http.Error(w, "profile not found", http.StatusUnauthorized)
				return
			}
			if err != nil {
				log.Error("failed to resolve profile", slog.Any("error", err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), ProfileKey, profile)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole пропускает только перечисленные роли; ставится после New.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profile, ok := FromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if profile.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

// FromContext извлекает профиль из контекста.
func FromContext(ctx context.Context) (*models.Profile, bool) {
	p, ok := ctx.Value(ProfileKey).(*models.Profile)
	return p, ok && p != nil
}

// WithProfile кладёт профиль в контекст; нужен хендлерам в тестах.
func WithProfile(ctx context.Context, p *models.Profile) context.Context {
	return context.WithValue(ctx, ProfileKey, p)
}
