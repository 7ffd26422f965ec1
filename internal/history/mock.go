package history

import (
	"context"
	"time"

	"github.com/adpilot/budgetd/internal/models"
)

// MockHistory is an in-memory HistoryService for tests and local runs
// without a ClickHouse instance.
type MockHistory struct {
	States    map[string][]models.AdState        // tenant -> states
	Histories map[string][]models.MetricSnapshot // adID -> snapshots
	Err       error                              // returned by every call when set
}

// NewMockHistory returns an empty MockHistory.
func NewMockHistory() *MockHistory {
	return &MockHistory{
		States:    make(map[string][]models.AdState),
		Histories: make(map[string][]models.MetricSnapshot),
	}
}

func (m *MockHistory) LoadAdStates(_ context.Context, tenant string, _ time.Duration) ([]models.AdState, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.States[tenant], nil
}

func (m *MockHistory) LoadHistory(_ context.Context, _, adID string, _ time.Duration) ([]models.MetricSnapshot, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Histories[adID], nil
}
