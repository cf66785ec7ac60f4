package stats

import "github.com/stretchr/testify/mock"

// MockStatsUpdater is a StatsProvider for tests.
type MockStatsUpdater struct {
	mock.Mock
}

// AllowAll registers catch-all expectations for every method, for tests
// that exercise metered code paths without asserting on the metrics.
func (m *MockStatsUpdater) AllowAll() *MockStatsUpdater {
	m.On("RegisterMetric", mock.Anything)
	m.On("Incr", mock.Anything)
	m.On("Decr", mock.Anything)
	m.On("Run")
	return m
}

func (m *MockStatsUpdater) Incr(name string) {
	m.Called(name)
}
func (m *MockStatsUpdater) Decr(name string) {
	m.Called(name)
}
func (m *MockStatsUpdater) RegisterMetric(name string) {
	m.Called(name)
}
func (m *MockStatsUpdater) Run() {
	m.Called()
}
