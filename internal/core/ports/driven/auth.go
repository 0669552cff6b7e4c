package driven

import "github.com/custodia-labs/subscription-params/internal/core/domain"

// TokenVerifier handles API token cryptography.
type TokenVerifier interface {
	// GenerateToken signs claims for a calling service
	GenerateToken(claims *domain.TokenClaims) (string, error)

	// ParseToken validates a token and returns its claims
	ParseToken(token string) (*domain.TokenClaims, error)
}
