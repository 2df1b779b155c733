// Package middleware содержит HTTP middleware сервиса кампаний.
package middleware

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const userKey contextKey = "user"

// RoleAdmin обозначает роль администратора в токене.
const RoleAdmin = "admin"

// User описывает аутентифицированного пользователя запроса.
type User struct {
	ID   uuid.UUID
	Role string
}

// IsAdmin сообщает, что пользователь является администратором.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Claims содержит утверждения bearer-токена. Роль берётся из app_metadata.role, а при
// её отсутствии из role.
type Claims struct {
	Role        string         `json:"role,omitempty"`
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) effectiveRole() string {
	if r, ok := c.AppMetadata["role"].(string); ok && r != "" {
		return r
	}
	return c.Role
}

// AuthMiddleware проверяет bearer-токены, подписанные HS256.
type AuthMiddleware struct {
	secretKey []byte
	parser    *jwt.Parser
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
		parser:    jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

// Middleware проверяет заголовок Authorization и добавляет пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w, "missing bearer token")
			return
		}

		user, err := a.ParseToken(token)
		if err != nil {
			unauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ParseToken проверяет подпись и срок действия токена и возвращает пользователя.
func (a *AuthMiddleware) ParseToken(token string) (User, error) {
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secretKey, nil
	})
	if err != nil {
		return User{}, fmt.Errorf("parse token: %w", err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return User{}, errors.New("subject is not a user id")
	}

	return User{ID: id, Role: claims.effectiveRole()}, nil
}

// SignToken выпускает токен для пользователя. Используется в тестах и локальной разработке.
func (a *AuthMiddleware) SignToken(userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, msg)
}

// GetUserFromContext извлекает пользователя из контекста запроса.
func GetUserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey).(User)
	return u, ok
}

// WithUser кладёт пользователя в контекст.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}
