package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/emberhold-oss/keep/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the session snapshot carried in the bearer token. The guild rank
// is frozen at issue time; an approved elevation shows up on the next login.
type Claims struct {
	Username  string `json:"username"`
	GuildRank string `json:"guild_rank"`
	jwt.RegisteredClaims
}

func IssueToken(secret []byte, user *models.User, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Username:  user.Username,
		GuildRank: user.GuildRank,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func ParseToken(secret []byte, token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
