package plan_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/nexabot/guardrail/internal/plan"
	"github.com/nexabot/guardrail/pkg/logger"
)

type MockUsageSource struct {
	mock.Mock
}

func (m *MockUsageSource) PlanName(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *MockUsageSource) ActiveBotCount(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockUsageSource) MonthlyMessageCount(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockUsageSource) StorageBytes(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUsageSource) DocumentCount(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func TestEnforcerAllowsUnderLimit(t *testing.T) {
	usage := new(MockUsageSource)
	usage.On("PlanName", mock.Anything, "user-1").Return("basic", nil)
	usage.On("ActiveBotCount", mock.Anything, "user-1").Return(2, nil)

	e := plan.NewEnforcer(usage, logger.NewNoopLogger())
	res := e.Check(context.Background(), "user-1", plan.LimitBots)

	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.CurrentUsage)
	assert.Equal(t, 3, res.Limit)
	usage.AssertExpectations(t)
}

func TestEnforcerDeniesAtLimit(t *testing.T) {
	usage := new(MockUsageSource)
	usage.On("PlanName", mock.Anything, "user-1").Return("free", nil)
	usage.On("MonthlyMessageCount", mock.Anything, "user-1").Return(100, nil)

	e := plan.NewEnforcer(usage, logger.NewNoopLogger())
	res := e.Check(context.Background(), "user-1", plan.LimitMessages)

	assert.False(t, res.Allowed)
	assert.Contains(t, res.Message, "message limit")
	assert.Equal(t, 100, res.CurrentUsage)
	assert.Equal(t, 100, res.Limit)
}

func TestEnforcerEnterpriseNeverDenies(t *testing.T) {
	usage := new(MockUsageSource)
	usage.On("PlanName", mock.Anything, "user-1").Return("enterprise", nil)
	usage.On("ActiveBotCount", mock.Anything, "user-1").Return(5000, nil)

	e := plan.NewEnforcer(usage, logger.NewNoopLogger())
	res := e.Check(context.Background(), "user-1", plan.LimitBots)

	assert.True(t, res.Allowed)
}

func TestEnforcerConvertsStorageToMegabytes(t *testing.T) {
	usage := new(MockUsageSource)
	usage.On("PlanName", mock.Anything, "user-1").Return("free", nil)
	usage.On("StorageBytes", mock.Anything, "user-1").Return(int64(60*1024*1024), nil)

	e := plan.NewEnforcer(usage, logger.NewNoopLogger())
	res := e.Check(context.Background(), "user-1", plan.LimitStorage)

	assert.False(t, res.Allowed)
	assert.Equal(t, 60, res.CurrentUsage)
	assert.Equal(t, 50, res.Limit)
}

func TestEnforcerDeniesWhenPlanLookupFails(t *testing.T) {
	usage := new(MockUsageSource)
	usage.On("PlanName", mock.Anything, "user-1").Return("", errors.New("db down"))

	e := plan.NewEnforcer(usage, logger.NewNoopLogger())
	res := e.Check(context.Background(), "user-1", plan.LimitBots)

	assert.False(t, res.Allowed)
	assert.Equal(t, "unable to verify plan limits", res.Message)
}

func TestEnforcerDeniesWhenUsageLookupFails(t *testing.T) {
	usage := new(MockUsageSource)
	usage.On("PlanName", mock.Anything, "user-1").Return("free", nil)
	usage.On("DocumentCount", mock.Anything, "user-1").Return(0, errors.New("db down"))

	e := plan.NewEnforcer(usage, logger.NewNoopLogger())
	res := e.Check(context.Background(), "user-1", plan.LimitDocuments)

	assert.False(t, res.Allowed)
	assert.Equal(t, "unable to verify plan limits", res.Message)
}

func TestEnforcerRejectsUnknownLimitType(t *testing.T) {
	usage := new(MockUsageSource)
	usage.On("PlanName", mock.Anything, "user-1").Return("free", nil)

	e := plan.NewEnforcer(usage, logger.NewNoopLogger())
	res := e.Check(context.Background(), "user-1", plan.LimitType("teapots"))

	assert.False(t, res.Allowed)
	assert.Equal(t, "invalid limit type", res.Message)
}
