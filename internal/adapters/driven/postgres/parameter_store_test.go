package postgres

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/subscription-params/internal/core/domain"
	"github.com/custodia-labs/subscription-params/internal/core/ports/driven"
)

// setupTestDB connects to TEST_DATABASE_URL or skips the test
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := Connect(ctx, DefaultConfig(url))
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		t.Fatalf("failed to init schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newParam(subID, planID uuid.UUID, name, value string) *domain.SubscriptionTemplateParameter {
	return &domain.SubscriptionTemplateParameter{
		SubscriptionID: subID,
		PlanID:         planID,
		ParameterName:  name,
		ParameterValue: value,
	}
}

func sortedNames(params []*domain.SubscriptionTemplateParameter) []string {
	out := make([]string, 0, len(params))
	for _, p := range params {
		out = append(out, p.ParameterName)
	}
	sort.Strings(out)
	return out
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParameterStore_Atomicity(t *testing.T) {
	store := NewParameterStore(nil)
	if store.Atomicity() != driven.ReplaceAtomic {
		t.Errorf("expected atomic replacement, got %s", store.Atomicity())
	}
}

func TestParameterStore_Save_InvalidNeverTouchesDB(t *testing.T) {
	store := NewParameterStore(nil)

	_, err := store.Save(context.Background(), newParam(uuid.Nil, uuid.New(), "region", "eastus"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParameterStore_ReplaceAll_InvalidNeverTouchesDB(t *testing.T) {
	store := NewParameterStore(nil)
	subID := uuid.New()

	err := store.ReplaceAll(context.Background(), subID, []*domain.SubscriptionTemplateParameter{
		newParam(uuid.New(), uuid.New(), "region", "eastus"),
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParameterStore_Integration_SaveAndFetch(t *testing.T) {
	store := NewParameterStore(setupTestDB(t))
	ctx := context.Background()
	s, p1, p2 := uuid.New(), uuid.New(), uuid.New()

	empty, err := store.FetchBySubscription(ctx, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", empty)
	}

	regionID, err := store.Save(ctx, newParam(s, p1, "region", "eastus"))
	if err != nil {
		t.Fatalf("save region: %v", err)
	}
	if _, err := store.Save(ctx, newParam(s, p1, "sku", "standard")); err != nil {
		t.Fatalf("save sku: %v", err)
	}

	byPlan, err := store.FetchByPlan(ctx, s, p1)
	if err != nil {
		t.Fatalf("fetch by plan: %v", err)
	}
	if len(byPlan) != 2 || byPlan[0].ParameterName != "region" || byPlan[1].ParameterName != "sku" {
		t.Errorf("expected [region sku], got %v", sortedNames(byPlan))
	}
	if byPlan[0].ID != regionID {
		t.Errorf("expected id %s, got %s", regionID, byPlan[0].ID)
	}

	other, err := store.FetchByPlan(ctx, s, p2)
	if err != nil {
		t.Fatalf("fetch by other plan: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no parameters for other plan, got %d", len(other))
	}

	got, err := store.FetchByName(ctx, s, "region")
	if err != nil {
		t.Fatalf("fetch by name: %v", err)
	}
	if got.ParameterValue != "eastus" {
		t.Errorf("expected eastus, got %s", got.ParameterValue)
	}

	if _, err := store.FetchByName(ctx, s, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := store.Save(ctx, newParam(s, p2, "region", "westus")); !errors.Is(err, domain.ErrConstraintViolation) {
		t.Errorf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestParameterStore_Integration_ReplaceAll(t *testing.T) {
	store := NewParameterStore(setupTestDB(t))
	ctx := context.Background()
	s, planA, planB := uuid.New(), uuid.New(), uuid.New()

	if err := store.ReplaceAll(ctx, s, []*domain.SubscriptionTemplateParameter{
		newParam(s, planA, "region", "eastus"),
		newParam(s, planA, "sku", "basic"),
	}); err != nil {
		t.Fatalf("replace A: %v", err)
	}

	if err := store.ReplaceAll(ctx, s, []*domain.SubscriptionTemplateParameter{
		newParam(s, planB, "location", "westeurope"),
	}); err != nil {
		t.Fatalf("replace B: %v", err)
	}

	got, err := store.FetchBySubscription(ctx, s)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !equalNames(sortedNames(got), []string{"location"}) {
		t.Errorf("expected only setB, got %v", sortedNames(got))
	}

	if err := store.ReplaceAll(ctx, s, nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err = store.FetchBySubscription(ctx, s)
	if err != nil {
		t.Fatalf("fetch after clear: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty after clear, got %d", len(got))
	}
}

func TestParameterStore_Integration_ReplaceAllRollsBack(t *testing.T) {
	store := NewParameterStore(setupTestDB(t))
	ctx := context.Background()
	s, plan := uuid.New(), uuid.New()

	if err := store.ReplaceAll(ctx, s, []*domain.SubscriptionTemplateParameter{
		newParam(s, plan, "region", "eastus"),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// A cancelled replacement must leave the previous set in place
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err := store.ReplaceAll(cctx, s, []*domain.SubscriptionTemplateParameter{
		newParam(s, plan, "sku", "standard"),
	})
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Errorf("expected ErrStorageUnavailable, got %v", err)
	}
	if errors.Is(err, domain.ErrPartialFailure) {
		t.Error("atomic store must never report partial failure")
	}

	got, err := store.FetchBySubscription(ctx, s)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !equalNames(sortedNames(got), []string{"region"}) {
		t.Errorf("expected previous set to survive, got %v", sortedNames(got))
	}
}

func TestParameterStore_Integration_ConcurrentReplace(t *testing.T) {
	store := NewParameterStore(setupTestDB(t))
	ctx := context.Background()
	s, plan := uuid.New(), uuid.New()

	sets := [][]*domain.SubscriptionTemplateParameter{
		{newParam(s, plan, "region", "eastus"), newParam(s, plan, "sku", "basic")},
		{newParam(s, plan, "region", "westus"), newParam(s, plan, "tier", "gold")},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(sets))
	for i := range sets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.ReplaceAll(ctx, s, sets[i])
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("replace %d: %v", i, err)
		}
	}

	got, err := store.FetchBySubscription(ctx, s)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	names := sortedNames(got)
	if !equalNames(names, []string{"region", "sku"}) && !equalNames(names, []string{"region", "tier"}) {
		t.Errorf("expected one writer's set applied wholesale, got %v", names)
	}
}

func TestAdvisoryLock_Integration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	lock1 := NewAdvisoryLock(db)
	lock2 := NewAdvisoryLock(db)
	name := "replace:" + uuid.NewString()

	ok, err := lock1.Acquire(ctx, name, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got %v %v", ok, err)
	}

	ok, err = lock2.Acquire(ctx, name, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second instance to be refused")
	}

	if err := lock1.Release(ctx, name); err != nil {
		t.Fatalf("release: %v", err)
	}

	ok, err = lock2.Acquire(ctx, name, time.Minute)
	if err != nil || !ok {
		t.Errorf("expected acquire after release to succeed, got %v %v", ok, err)
	}
	_ = lock2.Release(ctx, name)
}
