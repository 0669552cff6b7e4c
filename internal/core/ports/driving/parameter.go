package driving

import (
	"context"

	"github.com/google/uuid"

	"github.com/custodia-labs/subscription-params/internal/core/domain"
)

// ParameterInput is one parameter in a create or replace request
type ParameterInput struct {
	PlanID         uuid.UUID `json:"plan_id"`
	ParameterName  string    `json:"parameter_name"`
	ParameterValue string    `json:"parameter_value"`
}

// CreateParameterRequest represents a request to record a single parameter
type CreateParameterRequest struct {
	SubscriptionID uuid.UUID `json:"-"`
	ParameterInput
}

// ReplaceParametersRequest represents a request to replace a subscription's whole set.
// Parameters must be present; an explicit empty list clears the subscription.
type ReplaceParametersRequest struct {
	Parameters *[]ParameterInput `json:"parameters"`
}

// ParameterService manages subscription template parameters
type ParameterService interface {
	// ListBySubscription returns every parameter recorded for a subscription
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*domain.SubscriptionTemplateParameter, error)

	// ListByPlan returns the parameters recorded under a plan, ordered by name
	ListByPlan(ctx context.Context, subscriptionID, planID uuid.UUID) ([]*domain.SubscriptionTemplateParameter, error)

	// Get returns one parameter by name
	Get(ctx context.Context, subscriptionID uuid.UUID, name string) (*domain.SubscriptionTemplateParameter, error)

	// Create records one parameter and returns it with its assigned ID
	Create(ctx context.Context, req CreateParameterRequest) (*domain.SubscriptionTemplateParameter, error)

	// Replace makes the given inputs the subscription's complete parameter set
	Replace(ctx context.Context, subscriptionID uuid.UUID, inputs []ParameterInput) error

	// ExportARM renders a plan's parameters as an ARM deployment parameter file
	ExportARM(ctx context.Context, subscriptionID, planID uuid.UUID) (*domain.ARMParameterFile, error)

	// Ready checks the store and lock backends
	Ready(ctx context.Context) error
}
