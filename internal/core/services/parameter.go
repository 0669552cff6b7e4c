package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/subscription-params/internal/core/domain"
	"github.com/custodia-labs/subscription-params/internal/core/ports/driven"
	"github.com/custodia-labs/subscription-params/internal/core/ports/driving"
)

// Ensure parameterService implements ParameterService
var _ driving.ParameterService = (*parameterService)(nil)

// DefaultReplaceLockTTL bounds how long a crashed instance can block replacements
const DefaultReplaceLockTTL = 30 * time.Second

// parameterService implements the ParameterService interface
type parameterService struct {
	store   driven.ParameterStore
	lock    driven.DistributedLock
	lockTTL time.Duration
	logger  *slog.Logger
}

// ParameterServiceConfig holds dependencies for the parameter service.
// Lock is optional; without it replacements are not coordinated across instances.
type ParameterServiceConfig struct {
	Store   driven.ParameterStore
	Lock    driven.DistributedLock
	LockTTL time.Duration
	Logger  *slog.Logger
}

// NewParameterService creates a new ParameterService
func NewParameterService(cfg ParameterServiceConfig) driving.ParameterService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = DefaultReplaceLockTTL
	}

	return &parameterService{
		store:   cfg.Store,
		lock:    cfg.Lock,
		lockTTL: ttl,
		logger:  logger.With("component", "parameters"),
	}
}

// ListBySubscription returns every parameter recorded for a subscription
func (s *parameterService) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*domain.SubscriptionTemplateParameter, error) {
	if subscriptionID == uuid.Nil {
		return nil, fmt.Errorf("%w: subscription id is required", domain.ErrInvalidInput)
	}
	return s.store.FetchBySubscription(ctx, subscriptionID)
}

// ListByPlan returns a plan's parameters ordered by name
func (s *parameterService) ListByPlan(ctx context.Context, subscriptionID, planID uuid.UUID) ([]*domain.SubscriptionTemplateParameter, error) {
	if subscriptionID == uuid.Nil || planID == uuid.Nil {
		return nil, fmt.Errorf("%w: subscription id and plan id are required", domain.ErrInvalidInput)
	}
	return s.store.FetchByPlan(ctx, subscriptionID, planID)
}

// Get returns one parameter by name
func (s *parameterService) Get(ctx context.Context, subscriptionID uuid.UUID, name string) (*domain.SubscriptionTemplateParameter, error) {
	if subscriptionID == uuid.Nil || name == "" {
		return nil, fmt.Errorf("%w: subscription id and parameter name are required", domain.ErrInvalidInput)
	}
	return s.store.FetchByName(ctx, subscriptionID, name)
}

// Create records one parameter
func (s *parameterService) Create(ctx context.Context, req driving.CreateParameterRequest) (*domain.SubscriptionTemplateParameter, error) {
	param := toParameter(req.SubscriptionID, req.ParameterInput)
	if err := param.Validate(); err != nil {
		return nil, err
	}

	id, err := s.store.Save(ctx, param)
	if err != nil {
		return nil, err
	}

	s.logger.Info("parameter created",
		"caller", domain.CallerSubject(ctx),
		"subscription_id", param.SubscriptionID,
		"plan_id", param.PlanID,
		"parameter", param.ParameterName,
		"id", id,
	)

	// Return the stored record so created_at matches later reads
	saved, err := s.store.FetchByName(ctx, param.SubscriptionID, param.ParameterName)
	if err == nil && saved.ID == id {
		return saved, nil
	}
	s.logger.Warn("created parameter not readable, returning request copy",
		"subscription_id", param.SubscriptionID,
		"parameter", param.ParameterName,
		"error", err,
	)
	return param.WithAssignedID(id, time.Now().UTC()), nil
}

// Replace swaps the subscription's parameter set. When a lock is configured a
// concurrent replacement of the same subscription fails with ErrReplaceInProgress.
func (s *parameterService) Replace(ctx context.Context, subscriptionID uuid.UUID, inputs []driving.ParameterInput) error {
	params := make([]*domain.SubscriptionTemplateParameter, 0, len(inputs))
	for _, in := range inputs {
		params = append(params, toParameter(subscriptionID, in))
	}
	if err := domain.ValidateParameterSet(subscriptionID, params); err != nil {
		return err
	}

	if s.lock != nil {
		name := replaceLockName(subscriptionID)
		acquired, err := s.lock.Acquire(ctx, name, s.lockTTL)
		if err != nil {
			return fmt.Errorf("acquire replace lock: %w", err)
		}
		if !acquired {
			return fmt.Errorf("%w: subscription %s", domain.ErrReplaceInProgress, subscriptionID)
		}
		defer func() {
			// ctx may already be cancelled here
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.lock.Release(releaseCtx, name); err != nil {
				s.logger.Warn("failed to release replace lock", "subscription_id", subscriptionID, "error", err)
			}
		}()
	}

	if err := s.store.ReplaceAll(ctx, subscriptionID, params); err != nil {
		var partial *domain.PartialFailureError
		if errors.As(err, &partial) {
			s.logger.Error("parameter replacement left subscription incomplete",
				"caller", domain.CallerSubject(ctx),
				"subscription_id", subscriptionID,
				"written", partial.Written,
				"total", partial.Total,
				"error", partial.Err,
			)
		}
		return err
	}

	s.logger.Info("parameters replaced",
		"caller", domain.CallerSubject(ctx),
		"subscription_id", subscriptionID,
		"count", len(params),
		"atomicity", s.store.Atomicity(),
	)
	return nil
}

// ExportARM renders a plan's parameters as an ARM parameter file
func (s *parameterService) ExportARM(ctx context.Context, subscriptionID, planID uuid.UUID) (*domain.ARMParameterFile, error) {
	params, err := s.ListByPlan(ctx, subscriptionID, planID)
	if err != nil {
		return nil, err
	}
	return domain.ToARMParameters(params), nil
}

// Ready checks the store and, when configured, the lock backend
func (s *parameterService) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return err
	}
	if s.lock != nil {
		if err := s.lock.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

func toParameter(subscriptionID uuid.UUID, in driving.ParameterInput) *domain.SubscriptionTemplateParameter {
	return &domain.SubscriptionTemplateParameter{
		SubscriptionID: subscriptionID,
		PlanID:         in.PlanID,
		ParameterName:  in.ParameterName,
		ParameterValue: in.ParameterValue,
	}
}

func replaceLockName(subscriptionID uuid.UUID) string {
	return "replace:" + subscriptionID.String()
}
