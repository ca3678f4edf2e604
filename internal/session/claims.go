package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity-provider token claims this service consumes:
// a privileged-session flag and the device identifiers the session is
// authorized to see alarms for.
type Claims struct {
	Admin       bool     `json:"admin"`
	AllowedTags []string `json:"allowed_tags"`
	jwt.RegisteredClaims
}

// Parse validates a token and returns its claims.
func Parse(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("session: empty token")
	}
	if len(secret) == 0 {
		return nil, errors.New("session: empty secret")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("session: invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("session: invalid token")
	}
	if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
		return nil, errors.New("session: token expired")
	}
	return claims, nil
}
