package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/Efasquel/tracker/internal"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the registered claims plus the id of the authenticated user.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

type JWTProvider struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTProvider(secret string, ttl time.Duration) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (p *JWTProvider) Issue(userID string) (string, error) {
	now := p.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
		UserID: userID,
	})
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("%w: sign token: %v", internal.ErrInternal, err)
	}
	return signed, nil
}

// Validate returns internal.ErrTokenExpired for expired tokens and
// internal.ErrInvalidToken for anything else that does not verify.
func (p *JWTProvider) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", internal.ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}

var _ TokenProvider = (*JWTProvider)(nil)
