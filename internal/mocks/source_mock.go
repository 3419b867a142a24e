package mocks

import (
	"context"
	"time"

	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/stretchr/testify/mock"
)

// MockSource is a mock implementation of the location.Source interface
type MockSource struct {
	mock.Mock
}

func (m *MockSource) ID() location.ProviderID {
	args := m.Called()
	return args.Get(0).(location.ProviderID)
}

func (m *MockSource) LastKnown(ctx context.Context) (*location.Sample, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(*location.Sample), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSource) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockSource) Subscribe(minInterval time.Duration, minDistance float64, onSample func(*location.Sample)) (location.Unsubscribe, error) {
	args := m.Called(minInterval, minDistance, onSample)
	switch v := args.Get(0).(type) {
	case location.Unsubscribe:
		return v, args.Error(1)
	case func():
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
