package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cucumber/godog"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/subscription-params/internal/core/domain"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"testdata/parameter_store.feature"},
			Strict:   true,
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// storeFeature holds per-scenario state
type storeFeature struct {
	mr      *miniredis.Miniredis
	client  *redis.Client
	store   *ParameterStore
	ids     map[string]uuid.UUID
	lastErr error
}

// id maps a scenario label such as "S" or "P1" to a stable UUID
func (f *storeFeature) id(label string) uuid.UUID {
	if id, ok := f.ids[label]; ok {
		return id
	}
	id := uuid.New()
	f.ids[label] = id
	return id
}

func (f *storeFeature) anEmptyParameterStore() error {
	mr, err := miniredis.Run()
	if err != nil {
		return err
	}
	f.mr = mr
	f.client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	f.store = NewParameterStore(f.client)
	return nil
}

func (f *storeFeature) iSaveParameter(name, value, sub, plan string) error {
	_, f.lastErr = f.store.Save(context.Background(), &domain.SubscriptionTemplateParameter{
		SubscriptionID: f.id(sub),
		PlanID:         f.id(plan),
		ParameterName:  name,
		ParameterValue: value,
	})
	return nil
}

func (f *storeFeature) iReplaceWithNothing(sub string) error {
	return f.store.ReplaceAll(context.Background(), f.id(sub), nil)
}

func (f *storeFeature) iReplaceWithTable(sub string, table *godog.Table) error {
	var params []*domain.SubscriptionTemplateParameter
	for i, row := range table.Rows {
		if i == 0 {
			continue
		}
		if len(row.Cells) != 3 {
			return fmt.Errorf("row %d: expected plan, name, value", i)
		}
		params = append(params, &domain.SubscriptionTemplateParameter{
			SubscriptionID: f.id(sub),
			PlanID:         f.id(row.Cells[0].Value),
			ParameterName:  row.Cells[1].Value,
			ParameterValue: row.Cells[2].Value,
		})
	}
	return f.store.ReplaceAll(context.Background(), f.id(sub), params)
}

func (f *storeFeature) subscriptionHasNoParameters(sub string) error {
	params, err := f.store.FetchBySubscription(context.Background(), f.id(sub))
	if err != nil {
		return err
	}
	if len(params) != 0 {
		return fmt.Errorf("expected no parameters, got %d", len(params))
	}
	return nil
}

func (f *storeFeature) subscriptionHasParameters(sub, list string) error {
	params, err := f.store.FetchBySubscription(context.Background(), f.id(sub))
	if err != nil {
		return err
	}
	return matchNames(params, list)
}

func (f *storeFeature) planHasParameters(sub, plan, list string) error {
	params, err := f.store.FetchByPlan(context.Background(), f.id(sub), f.id(plan))
	if err != nil {
		return err
	}
	return matchNames(params, list)
}

func (f *storeFeature) planHasNoParameters(sub, plan string) error {
	params, err := f.store.FetchByPlan(context.Background(), f.id(sub), f.id(plan))
	if err != nil {
		return err
	}
	if len(params) != 0 {
		return fmt.Errorf("expected no parameters, got %d", len(params))
	}
	return nil
}

func (f *storeFeature) subscriptionHasParameterWithValue(sub, name, value string) error {
	params, err := f.store.FetchBySubscription(context.Background(), f.id(sub))
	if err != nil {
		return err
	}
	for _, p := range params {
		if p.ParameterName == name {
			if p.ParameterValue != value {
				return fmt.Errorf("expected %s=%q, got %q", name, value, p.ParameterValue)
			}
			return nil
		}
	}
	return fmt.Errorf("parameter %s not found", name)
}

func (f *storeFeature) lastOperationFailedWithConstraintViolation() error {
	if !errors.Is(f.lastErr, domain.ErrConstraintViolation) {
		return fmt.Errorf("expected constraint violation, got %v", f.lastErr)
	}
	return nil
}

func matchNames(params []*domain.SubscriptionTemplateParameter, list string) error {
	want := strings.Split(list, ",")
	for i := range want {
		want[i] = strings.TrimSpace(want[i])
	}
	sort.Strings(want)

	got := sortedNames(params)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return fmt.Errorf("expected parameters %v, got %v", want, got)
	}
	return nil
}

func initializeScenario(sc *godog.ScenarioContext) {
	f := &storeFeature{ids: make(map[string]uuid.UUID)}

	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		if f.client != nil {
			f.client.Close()
		}
		if f.mr != nil {
			f.mr.Close()
		}
		return ctx, nil
	})

	sc.Step(`^an empty parameter store$`, f.anEmptyParameterStore)
	sc.Step(`^I save parameter "([^"]*)" with value "([^"]*)" for subscription "([^"]*)" under plan "([^"]*)"$`, f.iSaveParameter)
	sc.Step(`^I replace the parameters of subscription "([^"]*)" with nothing$`, f.iReplaceWithNothing)
	sc.Step(`^I replace the parameters of subscription "([^"]*)" with:$`, f.iReplaceWithTable)
	sc.Step(`^subscription "([^"]*)" has no parameters$`, f.subscriptionHasNoParameters)
	sc.Step(`^subscription "([^"]*)" has parameters "([^"]*)"$`, f.subscriptionHasParameters)
	sc.Step(`^subscription "([^"]*)" under plan "([^"]*)" has parameters "([^"]*)"$`, f.planHasParameters)
	sc.Step(`^subscription "([^"]*)" under plan "([^"]*)" has no parameters$`, f.planHasNoParameters)
	sc.Step(`^subscription "([^"]*)" has parameter "([^"]*)" with value "([^"]*)"$`, f.subscriptionHasParameterWithValue)
	sc.Step(`^the last operation failed with a constraint violation$`, f.lastOperationFailedWithConstraintViolation)
}
