// Package memory provides a process-local ParameterStore for single-instance
// runs and tests. It stands in for a backing store without transactions, so
// ReplaceAll follows the sequential delete-then-insert policy.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/subscription-params/internal/core/domain"
	"github.com/custodia-labs/subscription-params/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ParameterStore = (*ParameterStore)(nil)

// ParameterStore keeps parameters in a map keyed by subscription.
type ParameterStore struct {
	mu    sync.RWMutex
	bySub map[uuid.UUID]map[string]*domain.SubscriptionTemplateParameter

	// WriteFault, when set, is consulted before every record insert.
	// A non-nil return aborts that insert with the returned error.
	WriteFault func(param *domain.SubscriptionTemplateParameter) error

	now func() time.Time
}

// NewParameterStore creates an empty store
func NewParameterStore() *ParameterStore {
	return &ParameterStore{
		bySub: make(map[uuid.UUID]map[string]*domain.SubscriptionTemplateParameter),
		now:   time.Now,
	}
}

// FetchBySubscription returns copies of every record for the subscription
func (s *ParameterStore) FetchBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*domain.SubscriptionTemplateParameter, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.SubscriptionTemplateParameter, 0, len(s.bySub[subscriptionID]))
	for _, p := range s.bySub[subscriptionID] {
		cp := *p
		result = append(result, &cp)
	}
	return result, nil
}

// FetchByPlan returns the subscription's records under planID, sorted by name
func (s *ParameterStore) FetchByPlan(ctx context.Context, subscriptionID, planID uuid.UUID) ([]*domain.SubscriptionTemplateParameter, error) {
	all, err := s.FetchBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	result := make([]*domain.SubscriptionTemplateParameter, 0, len(all))
	for _, p := range all {
		if p.PlanID == planID {
			result = append(result, p)
		}
	}
	domain.SortByName(result)
	return result, nil
}

// FetchByName returns one record or domain.ErrNotFound
func (s *ParameterStore) FetchByName(ctx context.Context, subscriptionID uuid.UUID, name string) (*domain.SubscriptionTemplateParameter, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.bySub[subscriptionID][name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// Save inserts one record, enforcing name uniqueness per subscription
func (s *ParameterStore) Save(ctx context.Context, param *domain.SubscriptionTemplateParameter) (uuid.UUID, error) {
	if err := param.Validate(); err != nil {
		return uuid.Nil, err
	}
	if err := ctx.Err(); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(param)
}

// ReplaceAll deletes the subscription's records, then inserts params one at a time.
// This is not atomic: if an insert fails after the delete, the subscription is
// left with the records written so far and *domain.PartialFailureError is returned.
// Readers may observe the intermediate state between the delete and the inserts.
func (s *ParameterStore) ReplaceAll(ctx context.Context, subscriptionID uuid.UUID, params []*domain.SubscriptionTemplateParameter) error {
	if err := domain.ValidateParameterSet(subscriptionID, params); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	s.mu.Lock()
	delete(s.bySub, subscriptionID)
	s.mu.Unlock()

	for i, p := range params {
		s.mu.Lock()
		_, err := s.insertLocked(p)
		s.mu.Unlock()
		if err != nil {
			return &domain.PartialFailureError{
				SubscriptionID: subscriptionID,
				Written:        i,
				Total:          len(params),
				Err:            err,
			}
		}
	}
	return nil
}

// Atomicity reports the sequential replacement policy
func (s *ParameterStore) Atomicity() driven.ReplaceAtomicity {
	return driven.ReplaceSequential
}

// Ping always succeeds
func (s *ParameterStore) Ping(ctx context.Context) error {
	return nil
}

func (s *ParameterStore) insertLocked(param *domain.SubscriptionTemplateParameter) (uuid.UUID, error) {
	if s.WriteFault != nil {
		if err := s.WriteFault(param); err != nil {
			return uuid.Nil, err
		}
	}

	names, ok := s.bySub[param.SubscriptionID]
	if !ok {
		names = make(map[string]*domain.SubscriptionTemplateParameter)
		s.bySub[param.SubscriptionID] = names
	}
	if _, exists := names[param.ParameterName]; exists {
		return uuid.Nil, fmt.Errorf("%w: parameter %q already exists for subscription %s",
			domain.ErrConstraintViolation, param.ParameterName, param.SubscriptionID)
	}

	id := uuid.New()
	names[param.ParameterName] = param.WithAssignedID(id, s.now().UTC())
	return id, nil
}

// Count returns the number of stored records across all subscriptions
func (s *ParameterStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, names := range s.bySub {
		n += len(names)
	}
	return n
}
