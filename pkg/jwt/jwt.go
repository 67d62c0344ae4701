package jwt

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/mbeoliero/chatsync/pkg/errcode"
)

// Claims represents the claims the backend puts in its access tokens
type Claims struct {
	UserId     string `json:"user_id"`
	PlatformId int    `json:"platform_id"`
	jwt.RegisteredClaims
}

// ParseToken parses and validates a JWT token
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})

	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errcode.ErrTokenInvalid
}

// ParseUnverified reads the claims without checking the signature.
// The client does not hold the signing secret; the backend still validates the token on connect.
func ParseUnverified(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errcode.ErrTokenMissing
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}
	if claims.UserId == "" {
		return nil, errcode.ErrTokenInvalid
	}
	return claims, nil
}

// Identify returns the claims of tokenString, verifying the signature only when secret is set
func Identify(tokenString, secret string) (*Claims, error) {
	if secret != "" {
		return ParseToken(tokenString, secret)
	}
	return ParseUnverified(tokenString)
}
