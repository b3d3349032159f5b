package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/visiovate/Test-Backend/internal/apperror"
	"github.com/visiovate/Test-Backend/internal/model"
)

const principalKey = "auth.principal"

// Principal описывает аутентифицированную сторону запроса. Учётные данные выдаёт
// внешний сервис идентификации, здесь проверяется только подпись токена.
type Principal struct {
	ID   uuid.UUID
	Type model.PartyType
}

type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// IssueToken подписывает токен HS256; нужен сервису идентификации и тестам.
func IssueToken(secret string, p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Type: string(p.Type),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseToken(secret, token string) (Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Principal{}, fmt.Errorf("parse token: %w", err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid subject: %w", err)
	}
	pt := model.PartyType(claims.Type)
	if !pt.Valid() {
		return Principal{}, errors.New("invalid subject type")
	}
	return Principal{ID: id, Type: pt}, nil
}

// Middleware требует валидный bearer-токен. Для websocket допускается ?access_token=.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("access_token")
		}
		if token == "" {
			_ = c.Error(apperror.Unauthorized("missing bearer token"))
			c.Abort()
			return
		}

		p, err := ParseToken(secret, token)
		if err != nil {
			_ = c.Error(apperror.Unauthorized("invalid token"))
			c.Abort()
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func FromContext(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
