package mocks

import (
	"context"

	"github.com/BearBump/CargoDesk/internal/broker/messages"
	"github.com/stretchr/testify/mock"
)

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishEvent(ctx context.Context, ev messages.DomainEvent) error {
	return m.Called(ctx, ev).Error(0)
}
