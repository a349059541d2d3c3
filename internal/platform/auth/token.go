package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptySecret  = errors.New("jwt secret is empty")
	ErrEmptyIssuer  = errors.New("jwt issuer is empty")
	ErrBadTTL       = errors.New("jwt ttl must be > 0")
)

// TokenService 签发与校验登录 token
type TokenService interface {
	Sign(id Identity) (string, error)
	Verify(token string) (Identity, error)
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type hs256Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewHS256Service(secret, issuer string, ttl time.Duration) (TokenService, error) {
	switch {
	case secret == "":
		return nil, ErrEmptySecret
	case issuer == "":
		return nil, ErrEmptyIssuer
	case ttl <= 0:
		return nil, ErrBadTTL
	}
	return &hs256Service{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

func (h *hs256Service) Sign(id Identity) (string, error) {
	if id.UserID <= 0 {
		return "", fmt.Errorf("sign token: bad user id %d", id.UserID)
	}
	now := h.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    h.issuer,
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.ttl)),
		},
	})
	return t.SignedString(h.secret)
}

// Verify 只接受 HS256，且必须带 exp 与匹配的 iss
func (h *hs256Service) Verify(token string) (Identity, error) {
	var parsed claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(h.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(h.now),
	)
	if _, err := parser.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return h.secret, nil
	}); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	userID, err := strconv.ParseInt(parsed.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, parsed.Subject)
	}
	return Identity{UserID: userID, Role: parsed.Role}, nil
}
