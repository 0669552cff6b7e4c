package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/subscription-params/internal/core/domain"
	"github.com/custodia-labs/subscription-params/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ParameterStore = (*ParameterStore)(nil)

const parameterColumns = `id, subscription_id, plan_id, parameter_name, parameter_value, created_at`

// ParameterStore implements driven.ParameterStore using PostgreSQL.
// ReplaceAll runs in a single transaction.
type ParameterStore struct {
	db *DB
}

// NewParameterStore creates a new ParameterStore
func NewParameterStore(db *DB) *ParameterStore {
	return &ParameterStore{db: db}
}

// FetchBySubscription retrieves all parameters for a subscription
func (s *ParameterStore) FetchBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*domain.SubscriptionTemplateParameter, error) {
	query := `
		SELECT ` + parameterColumns + `
		FROM subscription_template_parameters
		WHERE subscription_id = $1
	`

	rows, err := s.db.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, classifyError("fetch parameters by subscription", err)
	}
	defer rows.Close()

	return scanParameters(rows)
}

// FetchByPlan retrieves a subscription's parameters recorded under a plan
func (s *ParameterStore) FetchByPlan(ctx context.Context, subscriptionID, planID uuid.UUID) ([]*domain.SubscriptionTemplateParameter, error) {
	query := `
		SELECT ` + parameterColumns + `
		FROM subscription_template_parameters
		WHERE subscription_id = $1 AND plan_id = $2
		ORDER BY parameter_name
	`

	rows, err := s.db.QueryContext(ctx, query, subscriptionID, planID)
	if err != nil {
		return nil, classifyError("fetch parameters by plan", err)
	}
	defer rows.Close()

	return scanParameters(rows)
}

// FetchByName retrieves a single parameter by subscription and name
func (s *ParameterStore) FetchByName(ctx context.Context, subscriptionID uuid.UUID, name string) (*domain.SubscriptionTemplateParameter, error) {
	query := `
		SELECT ` + parameterColumns + `
		FROM subscription_template_parameters
		WHERE subscription_id = $1 AND parameter_name = $2
	`

	var p domain.SubscriptionTemplateParameter
	err := s.db.QueryRowContext(ctx, query, subscriptionID, name).Scan(
		&p.ID,
		&p.SubscriptionID,
		&p.PlanID,
		&p.ParameterName,
		&p.ParameterValue,
		&p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classifyError("fetch parameter by name", err)
	}
	return &p, nil
}

// Save inserts a parameter and returns its new identifier.
// The unique constraint on (subscription_id, parameter_name) rejects duplicates.
func (s *ParameterStore) Save(ctx context.Context, param *domain.SubscriptionTemplateParameter) (uuid.UUID, error) {
	if err := param.Validate(); err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	if err := insertParameter(ctx, s.db, param, id, time.Now().UTC()); err != nil {
		return uuid.Nil, classifyError("save parameter", err)
	}
	return id, nil
}

// ReplaceAll swaps the subscription's parameter set in one transaction.
// A transaction-scoped advisory lock on the subscription serialises concurrent
// replacements so they cannot trip over each other's unique keys.
func (s *ParameterStore) ReplaceAll(ctx context.Context, subscriptionID uuid.UUID, params []*domain.SubscriptionTemplateParameter) error {
	if err := domain.ValidateParameterSet(subscriptionID, params); err != nil {
		return err
	}

	now := time.Now().UTC()
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", hashLockName(replaceLockName(subscriptionID))); err != nil {
			return fmt.Errorf("lock subscription: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM subscription_template_parameters WHERE subscription_id = $1",
			subscriptionID,
		); err != nil {
			return fmt.Errorf("delete existing parameters: %w", err)
		}

		for _, p := range params {
			if err := insertParameter(ctx, tx, p, uuid.New(), now); err != nil {
				return fmt.Errorf("insert parameter %q: %w", p.ParameterName, err)
			}
		}
		return nil
	})
	return classifyError("replace parameters", err)
}

// Atomicity reports transactional replacement
func (s *ParameterStore) Atomicity() driven.ReplaceAtomicity {
	return driven.ReplaceAtomic
}

// Ping checks if the database is reachable
func (s *ParameterStore) Ping(ctx context.Context) error {
	return classifyError("ping", s.db.Ping(ctx))
}

// execer is satisfied by both *DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertParameter(ctx context.Context, db execer, p *domain.SubscriptionTemplateParameter, id uuid.UUID, createdAt time.Time) error {
	query := `
		INSERT INTO subscription_template_parameters (` + parameterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := db.ExecContext(ctx, query,
		id,
		p.SubscriptionID,
		p.PlanID,
		p.ParameterName,
		p.ParameterValue,
		createdAt,
	)
	return err
}

func scanParameters(rows *sql.Rows) ([]*domain.SubscriptionTemplateParameter, error) {
	params := make([]*domain.SubscriptionTemplateParameter, 0)
	for rows.Next() {
		var p domain.SubscriptionTemplateParameter
		if err := rows.Scan(
			&p.ID,
			&p.SubscriptionID,
			&p.PlanID,
			&p.ParameterName,
			&p.ParameterValue,
			&p.CreatedAt,
		); err != nil {
			return nil, classifyError("scan parameter", err)
		}
		params = append(params, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError("iterate parameters", err)
	}
	return params, nil
}

// replaceLockName keys the transaction-scoped lock taken by ReplaceAll.
// It is distinct from the service-level lock names so the two never collide.
func replaceLockName(subscriptionID uuid.UUID) string {
	return "replace-tx:" + subscriptionID.String()
}
