package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StaticTokenProvider returns a fixed token. An empty token disables the
// Authorization header.
type StaticTokenProvider struct {
	token string
}

func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: strings.TrimSpace(token)}
}

func (p *StaticTokenProvider) Token(context.Context) (string, error) {
	return p.token, nil
}

// refreshMargin renews a cached token this long before it expires.
const refreshMargin = 30 * time.Second

// HMACTokenProvider signs short-lived HS256 tokens and caches them until
// shortly before expiry.
type HMACTokenProvider struct {
	secret  []byte
	subject string
	issuer  string
	ttl     time.Duration
	now     func() time.Time

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

func NewHMACTokenProvider(secret, subject string, ttl time.Duration) (*HMACTokenProvider, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if ttl <= refreshMargin {
		ttl = 15 * time.Minute
	}
	return &HMACTokenProvider{
		secret:  []byte(secret),
		subject: subject,
		issuer:  "autofund-client",
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

func (p *HMACTokenProvider) Token(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.cached != "" && now.Add(refreshMargin).Before(p.expiresAt) {
		return p.cached, nil
	}

	expiresAt := now.Add(p.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   p.subject,
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	p.cached = signed
	p.expiresAt = expiresAt
	return signed, nil
}

// Verify parses a token signed by this provider. The bridge uses it to
// authenticate local callers with the same secret.
func (p *HMACTokenProvider) Verify(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimPrefix(token, "Bearer "), claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
