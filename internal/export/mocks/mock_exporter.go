package mocks

import (
	"context"

	"docvault/internal/export"
	"github.com/stretchr/testify/mock"
)

type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) BatchExport(ctx context.Context, ownerID string, documentIDs []string, t export.Transferer) (*export.Result, error) {
	args := m.Called(ctx, ownerID, documentIDs, t)
	if f, ok := args.Get(0).(func(context.Context, string, []string, export.Transferer) *export.Result); ok {
		return f(ctx, ownerID, documentIDs, t), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*export.Result), args.Error(1)
}
