package events

import (
	"testing"
	"time"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEventBus is a mock for EventBus.Bus
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Subscribe(topic string, fn interface{}) error {
	args := m.Called(topic, fn)
	return args.Error(0)
}

func (m *MockEventBus) SubscribeAsync(topic string, fn interface{}, transactional bool) error {
	args := m.Called(topic, fn, transactional)
	return args.Error(0)
}

func (m *MockEventBus) SubscribeOnce(topic string, fn interface{}) error {
	args := m.Called(topic, fn)
	return args.Error(0)
}

func (m *MockEventBus) SubscribeOnceAsync(topic string, fn interface{}) error {
	args := m.Called(topic, fn)
	return args.Error(0)
}

func (m *MockEventBus) Unsubscribe(topic string, handler interface{}) error {
	args := m.Called(topic, handler)
	return args.Error(0)
}

func (m *MockEventBus) Publish(topic string, args ...interface{}) {
	m.Called(append([]interface{}{topic}, args...)...)
}

func (m *MockEventBus) HasCallback(topic string) bool {
	args := m.Called(topic)
	return args.Bool(0)
}

func (m *MockEventBus) WaitAsync() {
	m.Called()
}

func TestNewSubscribers(t *testing.T) {
	log := logger.Mock()
	mockBus := new(MockEventBus)

	var progressHandler, completedHandler interface{}
	mockBus.On("Subscribe", domain.EventSyncProgress, mock.AnythingOfType("func(domain.SyncProgress)")).
		Run(func(args mock.Arguments) {
			progressHandler = args.Get(1)
		}).
		Return(nil)
	mockBus.On("Subscribe", domain.EventSyncCompleted, mock.AnythingOfType("func(domain.SyncCompleted)")).
		Run(func(args mock.Arguments) {
			completedHandler = args.Get(1)
		}).
		Return(nil)

	_ = NewSubscribers(log, mockBus)

	mockBus.AssertCalled(t, "Subscribe", domain.EventSyncProgress, mock.AnythingOfType("func(domain.SyncProgress)"))
	mockBus.AssertCalled(t, "Subscribe", domain.EventSyncCompleted, mock.AnythingOfType("func(domain.SyncCompleted)"))
	require.NotNil(t, progressHandler)
	require.NotNil(t, completedHandler)

	// the captured handlers must be invocable with the event types the
	// orchestrator publishes
	onProgress, ok := progressHandler.(func(domain.SyncProgress))
	require.True(t, ok)
	onCompleted, ok := completedHandler.(func(domain.SyncCompleted))
	require.True(t, ok)

	assert.NotPanics(t, func() {
		onProgress(domain.SyncProgress{Class: domain.DataClassHistory, Stage: "upload", Completed: 2, Total: 3})
		onCompleted(domain.SyncCompleted{Class: domain.DataClassBundle, Result: domain.SyncResultPartial, ErrorCode: "quota-exceeded", Elapsed: time.Second})
	})
}

func TestSubscriber_Register_SubscribeError(t *testing.T) {
	log := logger.Mock()
	mockBus := new(MockEventBus)

	mockBus.On("Subscribe", mock.Anything, mock.Anything).Return(assert.AnError)

	assert.NotPanics(t, func() {
		_ = NewSubscribers(log, mockBus)
	})
	mockBus.AssertNumberOfCalls(t, "Subscribe", 2)
}
