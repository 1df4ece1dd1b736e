package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/terminal-bench/assetdao/pkg/address"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrWeakSecret   = errors.New("jwt secret must be at least 32 bytes")
)

// Issuer is the iss claim on every token this service signs
const Issuer = "assetdao"

// MinSecretLength guards against trivially guessable HMAC keys
const MinSecretLength = 32

// Service issues and verifies caller tokens. The token subject is the
// caller's address; every write is attributed to it.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Claims carried in a caller token
type Claims struct {
	Address address.Address `json:"addr"`
	jwt.RegisteredClaims
}

// NewService validates the secret and returns a service
func NewService(secret string, ttl time.Duration) (*Service, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the clock; used by tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue signs a token for addr
func (s *Service) Issue(addr address.Address) (string, error) {
	if addr.IsNull() {
		return "", fmt.Errorf("cannot issue token for null address")
	}
	now := s.now()
	claims := &Claims{
		Address: addr,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   addr.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses a token, with or without the "Bearer " prefix, and returns
// its claims. The subject and addr claims must agree.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	addr, err := address.Parse(claims.Subject)
	if err != nil || addr.IsNull() || addr != claims.Address {
		return nil, ErrInvalidToken
	}
	claims.Address = addr
	return claims, nil
}
