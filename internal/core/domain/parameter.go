package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxParameterNameLength bounds parameter names to what ARM templates accept
const MaxParameterNameLength = 255

// SubscriptionTemplateParameter is one named deployment template value
// recorded for a subscription under a plan.
type SubscriptionTemplateParameter struct {
	ID             uuid.UUID `json:"id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	PlanID         uuid.UUID `json:"plan_id"`
	ParameterName  string    `json:"parameter_name"`
	ParameterValue string    `json:"parameter_value"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks the fields a caller must supply before a write.
// ID and CreatedAt are ignored; the store assigns them.
func (p *SubscriptionTemplateParameter) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: parameter is nil", ErrInvalidInput)
	}
	if p.SubscriptionID == uuid.Nil {
		return fmt.Errorf("%w: subscription id is required", ErrInvalidInput)
	}
	if p.PlanID == uuid.Nil {
		return fmt.Errorf("%w: plan id is required", ErrInvalidInput)
	}
	name := strings.TrimSpace(p.ParameterName)
	if name == "" {
		return fmt.Errorf("%w: parameter name is required", ErrInvalidInput)
	}
	if name != p.ParameterName {
		return fmt.Errorf("%w: parameter name %q has surrounding whitespace", ErrInvalidInput, p.ParameterName)
	}
	if len(p.ParameterName) > MaxParameterNameLength {
		return fmt.Errorf("%w: parameter name exceeds %d characters", ErrInvalidInput, MaxParameterNameLength)
	}
	if !utf8.ValidString(p.ParameterName) {
		return fmt.Errorf("%w: parameter name is not valid UTF-8", ErrInvalidInput)
	}
	// Names are addressed as a single URL path segment
	if strings.Contains(p.ParameterName, "/") {
		return fmt.Errorf("%w: parameter name %q contains '/'", ErrInvalidInput, p.ParameterName)
	}
	if !utf8.ValidString(p.ParameterValue) {
		return fmt.Errorf("%w: parameter value is not valid UTF-8", ErrInvalidInput)
	}
	return nil
}

// WithAssignedID returns a copy carrying the store-assigned identity.
// The receiver is left untouched.
func (p *SubscriptionTemplateParameter) WithAssignedID(id uuid.UUID, createdAt time.Time) *SubscriptionTemplateParameter {
	cp := *p
	cp.ID = id
	cp.CreatedAt = createdAt
	return &cp
}

// ValidateParameterSet checks a full replacement set for one subscription:
// every record valid, every record owned by subscriptionID, no repeated names.
func ValidateParameterSet(subscriptionID uuid.UUID, params []*SubscriptionTemplateParameter) error {
	if subscriptionID == uuid.Nil {
		return fmt.Errorf("%w: subscription id is required", ErrInvalidInput)
	}

	seen := make(map[string]struct{}, len(params))
	for i, p := range params {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
		if p.SubscriptionID != subscriptionID {
			return fmt.Errorf("%w: parameter %q belongs to subscription %s, not %s",
				ErrInvalidInput, p.ParameterName, p.SubscriptionID, subscriptionID)
		}
		if _, dup := seen[p.ParameterName]; dup {
			return fmt.Errorf("%w: parameter %q appears more than once", ErrInvalidInput, p.ParameterName)
		}
		seen[p.ParameterName] = struct{}{}
	}
	return nil
}

// SortByName orders parameters by name in place
func SortByName(params []*SubscriptionTemplateParameter) {
	sort.Slice(params, func(i, j int) bool {
		return params[i].ParameterName < params[j].ParameterName
	})
}

// ToMap flattens parameters into name -> value
func ToMap(params []*SubscriptionTemplateParameter) map[string]string {
	m := make(map[string]string, len(params))
	for _, p := range params {
		m[p.ParameterName] = p.ParameterValue
	}
	return m
}
