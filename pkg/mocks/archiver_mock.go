package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/helaix/flowstate/pkg/models"
)

// MockArchiver is a mock implementation of archive.Archiver interface.
type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) Offload(ctx context.Context, snapshot *models.StateSnapshot) (string, error) {
	args := m.Called(ctx, snapshot)

	return args.String(0), args.Error(1)
}

func (m *MockArchiver) Recall(ctx context.Context, snapshot *models.StateSnapshot) (*models.WorkflowState, error) {
	args := m.Called(ctx, snapshot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowState), args.Error(1)
}

func (m *MockArchiver) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockArchiver) Close() error {
	args := m.Called()

	return args.Error(0)
}
