package driven

import (
	"context"

	"github.com/google/uuid"

	"github.com/custodia-labs/subscription-params/internal/core/domain"
)

// ReplaceAtomicity describes how a store applies ReplaceAll
type ReplaceAtomicity string

const (
	// ReplaceAtomic means the old set is removed and the new set written as
	// one unit; a failure leaves the previous set intact.
	ReplaceAtomic ReplaceAtomicity = "atomic"

	// ReplaceSequential means the old set is deleted first and the new records
	// are inserted one by one. An insert failure after the delete surfaces as
	// *domain.PartialFailureError.
	ReplaceSequential ReplaceAtomicity = "sequential"
)

// ParameterStore persists subscription template parameters.
// Implementations hold no cached state and never retry; backend failures
// surface as domain.ErrStorageUnavailable.
type ParameterStore interface {
	// FetchBySubscription returns every parameter recorded for a subscription.
	// Order is backend-defined. Returns an empty slice when there are none.
	FetchBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*domain.SubscriptionTemplateParameter, error)

	// FetchByPlan returns the parameters recorded for a subscription under a plan,
	// ordered by parameter name. Returns an empty slice when there are none.
	FetchByPlan(ctx context.Context, subscriptionID, planID uuid.UUID) ([]*domain.SubscriptionTemplateParameter, error)

	// FetchByName returns a single parameter or domain.ErrNotFound
	FetchByName(ctx context.Context, subscriptionID uuid.UUID, name string) (*domain.SubscriptionTemplateParameter, error)

	// Save creates one parameter and returns the identifier the store assigned.
	// The input is not modified. A duplicate (subscription, name) fails with
	// domain.ErrConstraintViolation.
	Save(ctx context.Context, param *domain.SubscriptionTemplateParameter) (uuid.UUID, error)

	// ReplaceAll makes params the subscription's complete parameter set,
	// superseding records under every plan. An empty params clears the subscription.
	ReplaceAll(ctx context.Context, subscriptionID uuid.UUID, params []*domain.SubscriptionTemplateParameter) error

	// Atomicity reports the ReplaceAll policy of this store
	Atomicity() ReplaceAtomicity

	// Ping checks if the backend is reachable
	Ping(ctx context.Context) error
}
