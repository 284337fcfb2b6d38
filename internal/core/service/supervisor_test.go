package service

import (
	"context"
	"fmt"
	"modbot/internal/core/domain"
	"modbot/internal/core/domain/command"
	"modbot/internal/core/port"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Reply(ctx context.Context, event *domain.InvocationEvent, reply domain.Reply) error {
	return m.Called(ctx, event, reply).Error(0)
}

func (m *MockTransport) Open(ctx context.Context, sink port.EventSink) error {
	return m.Called(ctx, sink).Error(0)
}

func (m *MockTransport) Wait(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockTransport) Close() error {
	return m.Called().Error(0)
}

func (m *MockTransport) CatalogKind() domain.InvocationKind {
	return m.Called().Get(0).(domain.InvocationKind)
}

func (m *MockTransport) SyncCommands(ctx context.Context, originID string, entries []domain.CatalogEntry) (int, error) {
	args := m.Called(ctx, originID, entries)
	return args.Int(0), args.Error(1)
}

func (m *MockTransport) Origins() []string {
	return m.Called().Get(0).([]string)
}

func (m *MockTransport) Name() string {
	return m.Called().String(0)
}

func (m *MockTransport) Ready() bool {
	return m.Called().Bool(0)
}

func (m *MockTransport) Latency() time.Duration {
	return m.Called().Get(0).(time.Duration)
}

func newMockTransport(origins ...string) *MockTransport {
	m := new(MockTransport)
	m.On("Name").Return("fake").Maybe()
	m.On("Origins").Return(origins).Maybe()
	m.On("CatalogKind").Return(domain.StructuredInteraction).Maybe()
	m.On("Close").Return(nil).Maybe()

	return m
}

type fakeSink struct {
	started   atomic.Int32
	cancelled atomic.Int32
}

func (f *fakeSink) Dispatch(_ *domain.InvocationEvent) {}

func (f *fakeSink) StartGeneration(_ context.Context) {
	f.started.Add(1)
}

func (f *fakeSink) CancelGeneration() {
	f.cancelled.Add(1)
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func testCatalog(t *testing.T) *command.Registry {
	t.Helper()

	registry := command.NewRegistry()
	require.NoError(t, registry.Register(port.Registration{
		Kind:    domain.StructuredInteraction,
		Name:    "ping",
		Handler: command.NewPing(nil),
	}))

	return registry
}

func newTestSupervisor(t *testing.T, tr *MockTransport, sink *fakeSink, sleeper *sleepRecorder, clock *fakeClock) *Supervisor {
	t.Helper()

	return NewSupervisor(SupervisorParams{
		Transport: tr,
		Sink:      sink,
		Catalog:   testCatalog(t),
		Policy:    DefaultRetryPolicy(),
		Sleep:     sleeper.Sleep,
		Now:       clock.Now,
	})
}

func TestSupervisor_RetryBoundOnDisconnects(t *testing.T) {
	tr := newMockTransport()
	tr.On("Open", mock.Anything, mock.Anything).Return(nil)
	tr.On("Wait", mock.Anything).Return(domain.ErrDisconnected)
	tr.On("SyncCommands", mock.Anything, "", mock.Anything).Return(1, nil)

	sink := &fakeSink{}
	sleeper := &sleepRecorder{}
	s := newTestSupervisor(t, tr, sink, sleeper, &fakeClock{now: time.Now()})

	err := s.Run(t.Context())

	require.ErrorIs(t, err, domain.ErrMaxRetries)
	require.ErrorIs(t, err, domain.ErrDisconnected)
	tr.AssertNumberOfCalls(t, "Open", 5)
	tr.AssertNumberOfCalls(t, "SyncCommands", 1)
	tr.AssertNumberOfCalls(t, "Close", 1)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}, sleeper.delays)
	assert.Equal(t, int32(5), sink.started.Load())
	assert.Equal(t, domain.Closed, s.State())
}

func TestSupervisor_RetryBoundOnFailedOpens(t *testing.T) {
	tr := newMockTransport()
	tr.On("Open", mock.Anything, mock.Anything).Return(fmt.Errorf("%w: connection refused", domain.ErrDisconnected))

	sink := &fakeSink{}
	sleeper := &sleepRecorder{}
	s := newTestSupervisor(t, tr, sink, sleeper, &fakeClock{now: time.Now()})

	err := s.Run(t.Context())

	require.ErrorIs(t, err, domain.ErrMaxRetries)
	tr.AssertNumberOfCalls(t, "Open", 5)
	tr.AssertNotCalled(t, "Wait", mock.Anything)
	tr.AssertNumberOfCalls(t, "Close", 1)
	assert.Len(t, sleeper.delays, 4)
	assert.Equal(t, int32(5), sink.started.Load())
	assert.GreaterOrEqual(t, sink.cancelled.Load(), int32(5))
}

func TestSupervisor_AuthFailureIsFatal(t *testing.T) {
	tr := newMockTransport()
	tr.On("Open", mock.Anything, mock.Anything).Return(fmt.Errorf("%w: 4004 authentication failed", domain.ErrTransportAuth))

	sleeper := &sleepRecorder{}
	s := newTestSupervisor(t, tr, &fakeSink{}, sleeper, &fakeClock{now: time.Now()})

	err := s.Run(t.Context())

	require.ErrorIs(t, err, domain.ErrTransportAuth)
	assert.NotErrorIs(t, err, domain.ErrMaxRetries)
	tr.AssertNumberOfCalls(t, "Open", 1)
	tr.AssertNumberOfCalls(t, "Close", 1)
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, domain.Closed, s.State())
}

func TestSupervisor_RateLimitDelay(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter time.Duration
		wantDelay  time.Duration
	}{
		{
			name:       "short retry-after uses rate limit delay",
			retryAfter: time.Second,
			wantDelay:  10 * time.Second,
		},
		{
			name:       "long retry-after is honoured",
			retryAfter: 30 * time.Second,
			wantDelay:  30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			tr := newMockTransport()
			tr.On("Open", mock.Anything, mock.Anything).Return(&domain.RateLimitedError{RetryAfter: tt.retryAfter}).Once()
			tr.On("Open", mock.Anything, mock.Anything).Return(nil)
			tr.On("SyncCommands", mock.Anything, "", mock.Anything).Return(1, nil)
			tr.On("Wait", mock.Anything).Return(nil).Run(func(_ mock.Arguments) { cancel() })

			sleeper := &sleepRecorder{}
			s := newTestSupervisor(t, tr, &fakeSink{}, sleeper, &fakeClock{now: time.Now()})

			require.NoError(t, s.Run(ctx))
			assert.Equal(t, []time.Duration{tt.wantDelay}, sleeper.delays)
			tr.AssertNumberOfCalls(t, "Open", 2)
		})
	}
}

func TestSupervisor_StableConnectionResetsAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	clock := &fakeClock{now: time.Now()}
	waits := 0

	tr := newMockTransport()
	tr.On("Open", mock.Anything, mock.Anything).Return(nil)
	tr.On("SyncCommands", mock.Anything, "", mock.Anything).Return(1, nil)
	tr.On("Wait", mock.Anything).Return(domain.ErrDisconnected).Run(func(_ mock.Arguments) {
		waits++
		clock.Advance(2 * time.Minute)
		if waits == 8 {
			cancel()
		}
	})

	s := newTestSupervisor(t, tr, &fakeSink{}, &sleepRecorder{}, clock)

	require.NoError(t, s.Run(ctx))
	tr.AssertNumberOfCalls(t, "Open", 8)
}

func TestSupervisor_SyncFallsBackToFirstReachableOrigin(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	tr := newMockTransport("g1", "g2", "g3")
	tr.On("Open", mock.Anything, mock.Anything).Return(nil)
	tr.On("SyncCommands", mock.Anything, "", mock.Anything).Return(0, assert.AnError)
	tr.On("SyncCommands", mock.Anything, "g1", mock.Anything).Return(0, assert.AnError)
	tr.On("SyncCommands", mock.Anything, "g2", mock.Anything).Return(1, nil)
	tr.On("Wait", mock.Anything).Return(domain.ErrDisconnected).Once()
	tr.On("Wait", mock.Anything).Return(nil).Run(func(_ mock.Arguments) { cancel() })

	s := newTestSupervisor(t, tr, &fakeSink{}, &sleepRecorder{}, &fakeClock{now: time.Now()})

	require.NoError(t, s.Run(ctx))
	tr.AssertNumberOfCalls(t, "Open", 2)
	tr.AssertNumberOfCalls(t, "SyncCommands", 3)
	tr.AssertNotCalled(t, "SyncCommands", mock.Anything, "g3", mock.Anything)
	tr.AssertCalled(t, "SyncCommands", mock.Anything, "", []domain.CatalogEntry{{Name: "ping", Description: "Check the bot's latency"}})
}

func TestSupervisor_EventsDuringOpenAreHandled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	registry := command.NewRegistry()
	ping := &funcCommand{fn: func(_ context.Context, _ *domain.InvocationEvent) (domain.Reply, error) {
		return domain.Reply{Text: "pong"}, nil
	}}
	require.NoError(t, registry.Register(port.Registration{Kind: domain.StructuredInteraction, Name: "ping", Handler: ping}))
	registry.Seal()

	replier := &recordingReplier{}
	gate := NewPermissionGate(PermissionConfig{ModeratorRoles: []string{"Moderator"}})
	dispatcher := NewDispatcher(DispatcherParams{
		Registry:   registry,
		Gate:       gate,
		Classifier: NewClassifier(nil),
		Responder:  NewResponder(gate, replier),
		Replier:    replier,
		Deduper:    NewDeduper(100, time.Minute),
		Timeout:    time.Second,
	})
	defer dispatcher.Stop()

	tr := newMockTransport()
	tr.On("Open", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		sink := args.Get(1).(port.EventSink)
		sink.Dispatch(event("e1", "ping", domain.StructuredInteraction, "chan", moderator))
	})
	tr.On("SyncCommands", mock.Anything, "", mock.Anything).Return(1, nil)
	tr.On("Wait", mock.Anything).Return(nil).Run(func(_ mock.Arguments) {
		<-ctx.Done()
	})

	s := NewSupervisor(SupervisorParams{
		Transport: tr,
		Sink:      dispatcher,
		Catalog:   registry,
		Policy:    DefaultRetryPolicy(),
	})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(replier.Texts()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"pong"}, replier.Texts())
	assert.Equal(t, int32(1), ping.calls.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestSupervisor_ShutdownClosesTransport(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	tr := newMockTransport()
	tr.On("Open", mock.Anything, mock.Anything).Return(nil)
	tr.On("SyncCommands", mock.Anything, "", mock.Anything).Return(1, nil)
	tr.On("Wait", mock.Anything).Return(nil).Run(func(_ mock.Arguments) { cancel() })

	sink := &fakeSink{}
	s := newTestSupervisor(t, tr, sink, &sleepRecorder{}, &fakeClock{now: time.Now()})

	require.NoError(t, s.Run(ctx))
	tr.AssertNumberOfCalls(t, "Close", 1)
	assert.Equal(t, int32(1), sink.started.Load())
	assert.GreaterOrEqual(t, sink.cancelled.Load(), int32(2))
	assert.Equal(t, domain.Closed, s.State())
}

func TestSupervisor_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	tr := newMockTransport()
	s := newTestSupervisor(t, tr, &fakeSink{}, &sleepRecorder{}, &fakeClock{now: time.Now()})

	require.NoError(t, s.Run(ctx))
	tr.AssertNotCalled(t, "Open", mock.Anything, mock.Anything)
	tr.AssertNumberOfCalls(t, "Close", 1)
}

func TestRetryPolicy_NextDelay(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, 5*time.Second, p.NextDelay(domain.ErrDisconnected))
	assert.Equal(t, 10*time.Second, p.NextDelay(fmt.Errorf("open: %w", &domain.RateLimitedError{})))
	assert.Equal(t, time.Minute, p.NextDelay(&domain.RateLimitedError{RetryAfter: time.Minute}))
}
