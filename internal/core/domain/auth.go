package domain

import (
	"context"
	"time"
)

// Caller identifies the service presenting an API token
type Caller struct {
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired checks if the caller's token has expired
func (c *Caller) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

type callerKey struct{}

// ContextWithCaller returns a context carrying the authenticated caller
func ContextWithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller stored by ContextWithCaller, or nil
func CallerFromContext(ctx context.Context) *Caller {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(callerKey{}).(*Caller)
	return c
}

// CallerSubject returns the subject of the caller in ctx, or "" when unauthenticated
func CallerSubject(ctx context.Context) string {
	if c := CallerFromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}

// NewTokenClaims builds claims for a calling service; a zero ttl never expires
func NewTokenClaims(subject string, now time.Time, ttl time.Duration) *TokenClaims {
	claims := &TokenClaims{Subject: subject, IssuedAt: now.Unix()}
	if ttl > 0 {
		claims.ExpiresAt = now.Add(ttl).Unix()
	}
	return claims
}

// TokenClaims represents the API token payload
type TokenClaims struct {
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}
