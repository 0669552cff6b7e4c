package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/subscription-params/internal/core/domain"
	"github.com/custodia-labs/subscription-params/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ParameterStore = (*ParameterStore)(nil)

// Each subscription owns one hash: field = parameter name, value = JSON record.
// Field names give per-subscription uniqueness for free.
const parameterPrefix = "subscription-params:sub:"

// ParameterStore implements driven.ParameterStore using Redis hashes.
// ReplaceAll runs as a single MULTI/EXEC transaction.
type ParameterStore struct {
	client *redis.Client
}

// NewParameterStore creates a new Redis-backed ParameterStore
func NewParameterStore(client *redis.Client) *ParameterStore {
	return &ParameterStore{client: client}
}

func parameterKey(subscriptionID uuid.UUID) string {
	return parameterPrefix + subscriptionID.String()
}

// FetchBySubscription retrieves all parameters for a subscription
func (s *ParameterStore) FetchBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*domain.SubscriptionTemplateParameter, error) {
	fields, err := s.client.HGetAll(ctx, parameterKey(subscriptionID)).Result()
	if err != nil {
		return nil, classifyError("fetch parameters by subscription", err)
	}

	params := make([]*domain.SubscriptionTemplateParameter, 0, len(fields))
	for name, data := range fields {
		p, err := decodeParameter(data)
		if err != nil {
			return nil, fmt.Errorf("decode parameter %q: %w", name, err)
		}
		params = append(params, p)
	}
	return params, nil
}

// FetchByPlan retrieves a subscription's parameters under a plan, sorted by name
func (s *ParameterStore) FetchByPlan(ctx context.Context, subscriptionID, planID uuid.UUID) ([]*domain.SubscriptionTemplateParameter, error) {
	all, err := s.FetchBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	params := make([]*domain.SubscriptionTemplateParameter, 0, len(all))
	for _, p := range all {
		if p.PlanID == planID {
			params = append(params, p)
		}
	}
	domain.SortByName(params)
	return params, nil
}

// FetchByName retrieves one parameter by name
func (s *ParameterStore) FetchByName(ctx context.Context, subscriptionID uuid.UUID, name string) (*domain.SubscriptionTemplateParameter, error) {
	data, err := s.client.HGet(ctx, parameterKey(subscriptionID), name).Result()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classifyError("fetch parameter by name", err)
	}
	return decodeParameter(data)
}

// Save stores a parameter with HSETNX so an existing name is never overwritten
func (s *ParameterStore) Save(ctx context.Context, param *domain.SubscriptionTemplateParameter) (uuid.UUID, error) {
	if err := param.Validate(); err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	data, err := encodeParameter(param.WithAssignedID(id, time.Now().UTC()))
	if err != nil {
		return uuid.Nil, err
	}

	created, err := s.client.HSetNX(ctx, parameterKey(param.SubscriptionID), param.ParameterName, data).Result()
	if err != nil {
		return uuid.Nil, classifyError("save parameter", err)
	}
	if !created {
		return uuid.Nil, fmt.Errorf("%w: parameter %q already exists for subscription %s",
			domain.ErrConstraintViolation, param.ParameterName, param.SubscriptionID)
	}
	return id, nil
}

// ReplaceAll deletes the subscription hash and writes the new fields in one MULTI/EXEC
func (s *ParameterStore) ReplaceAll(ctx context.Context, subscriptionID uuid.UUID, params []*domain.SubscriptionTemplateParameter) error {
	if err := domain.ValidateParameterSet(subscriptionID, params); err != nil {
		return err
	}

	now := time.Now().UTC()
	values := make([]any, 0, len(params)*2)
	for _, p := range params {
		data, err := encodeParameter(p.WithAssignedID(uuid.New(), now))
		if err != nil {
			return err
		}
		values = append(values, p.ParameterName, data)
	}

	key := parameterKey(subscriptionID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.HSet(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return classifyError("replace parameters", err)
	}
	return nil
}

// Atomicity reports transactional replacement
func (s *ParameterStore) Atomicity() driven.ReplaceAtomicity {
	return driven.ReplaceAtomic
}

// Ping checks if Redis is reachable
func (s *ParameterStore) Ping(ctx context.Context) error {
	return classifyError("ping", s.client.Ping(ctx).Err())
}

func encodeParameter(p *domain.SubscriptionTemplateParameter) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal parameter: %w", err)
	}
	return string(data), nil
}

func decodeParameter(data string) (*domain.SubscriptionTemplateParameter, error) {
	var p domain.SubscriptionTemplateParameter
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameter: %w", err)
	}
	return &p, nil
}

// classifyError maps client errors onto domain error kinds
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
