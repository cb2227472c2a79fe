package telemetry

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/RMahshie/voltsense/internal/transport"
	"github.com/RMahshie/voltsense/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakePort behaves like a serial port opened with a read timeout: Read
// returns data when available and (0, nil) after a short idle period.
type fakePort struct {
	data     chan []byte
	readErr  chan error
	closed   chan struct{}
	closeErr error

	mu         sync.Mutex
	closeCalls int
}

func newFakePort() *fakePort {
	return &fakePort{
		data:    make(chan []byte, 16),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.data:
		return copy(b, chunk), nil
	case err := <-p.readErr:
		return 0, err
	case <-p.closed:
		return 0, errors.New("port closed")
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCalls++
	if p.closeCalls == 1 {
		close(p.closed)
	}
	return p.closeErr
}

func (p *fakePort) CloseCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCalls
}

func (p *fakePort) send(s string) {
	p.data <- []byte(s)
}

// MockOpener implements transport.Opener for testing
type MockOpener struct {
	mock.Mock
}

func (m *MockOpener) Open(ctx context.Context, name string, baudRate int) (transport.Port, error) {
	args := m.Called(ctx, name, baudRate)
	if port, ok := args.Get(0).(transport.Port); ok {
		return port, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRecorder implements Recorder for testing
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) StoreReading(ctx context.Context, sessionID string, sample *models.Sample) error {
	args := m.Called(ctx, sessionID, sample)
	return args.Error(0)
}

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m, err := NewManager(opts)
	require.NoError(t, err)
	return m
}

func waitForStatus(t *testing.T, m *Manager, want models.ConnectionStatus) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Status() == want }, 2*time.Second, 5*time.Millisecond)
}

func waitForDone(t *testing.T, m *Manager) {
	t.Helper()
	done := m.Done()
	require.NotNil(t, done)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not finish")
	}
}

// collectStatuses records status events until the returned stop func is called
func collectStatuses(m *Manager) func() []models.ConnectionStatus {
	events, unsubscribe := m.Subscribe()
	var (
		mu       sync.Mutex
		statuses []models.ConnectionStatus
		finished = make(chan struct{})
	)
	go func() {
		defer close(finished)
		for ev := range events {
			if ev.Type == models.EventStatus {
				mu.Lock()
				statuses = append(statuses, ev.Status)
				mu.Unlock()
			}
		}
	}()
	return func() []models.ConnectionStatus {
		unsubscribe()
		<-finished
		mu.Lock()
		defer mu.Unlock()
		return append([]models.ConnectionStatus(nil), statuses...)
	}
}

func TestManagerEndToEnd(t *testing.T) {
	port := newFakePort()
	opener := &MockOpener{}
	opener.On("Open", mock.Anything, "/dev/ttyUSB0", models.BaudRate9600).Return(port, nil)

	m := newTestManager(t, Options{Opener: opener})
	require.NoError(t, m.Connect(context.Background(), "/dev/ttyUSB0"))
	assert.Equal(t, models.StatusConnected, m.Status())
	assert.NotEmpty(t, m.SessionID())

	port.send("{\"v\":230.0,\"i\":2.0,\"f\":50.0}\n{\"v\":228.")
	port.send("5,\"i\":2.1,\"f\":49.9}\n")

	require.Eventually(t, func() bool { return len(m.History()) == 2 }, 2*time.Second, 5*time.Millisecond)
	history := m.History()

	assert.InDelta(t, 230.0, history[0].RMS, tolerance)
	assert.InDelta(t, 2.0, history[0].Current, tolerance)
	assert.InDelta(t, 460.0, history[0].Power, tolerance)
	assert.InDelta(t, 50.0, history[0].Freq, tolerance)
	assert.InDelta(t, 230.0*SineCrestFactor, history[0].VPeak, tolerance)

	assert.InDelta(t, 228.5, history[1].RMS, tolerance)
	assert.InDelta(t, 2.1, history[1].Current, tolerance)
	assert.InDelta(t, 479.85, history[1].Power, 1e-9)
	assert.InDelta(t, 49.9, history[1].Freq, tolerance)
	assert.InDelta(t, 228.5*SineCrestFactor, history[1].VPeak, tolerance)

	assert.False(t, history[1].Timestamp.Before(history[0].Timestamp))

	stats := m.Stats()
	assert.InDelta(t, 228.5, stats.RMS, tolerance)
	assert.InDelta(t, 2*228.5*SineCrestFactor, stats.PeakToPeak, tolerance)

	m.Disconnect()
	waitForDone(t, m)
	assert.Equal(t, models.StatusDisconnected, m.Status())
	assert.Equal(t, 1, port.CloseCalls())
	opener.AssertExpectations(t)
}

func TestManagerDropsBadLines(t *testing.T) {
	port := newFakePort()
	opener := &MockOpener{}
	opener.On("Open", mock.Anything, "", models.BaudRate9600).Return(port, nil)

	m := newTestManager(t, Options{Opener: opener})
	require.NoError(t, m.Connect(context.Background(), ""))

	port.send("boot v1.2\n{broken\n{\"v\":1,}\n{\"temp\":20}\n{\"v\":120}\n")

	require.Eventually(t, func() bool { return len(m.History()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, models.StatusConnected, m.Status(), "malformed records never end the session")
	assert.InDelta(t, 120.0, m.History()[0].RMS, tolerance)

	m.Disconnect()
	waitForDone(t, m)
}

func TestManagerAppliesMultiplierAtIngestion(t *testing.T) {
	port := newFakePort()
	opener := &MockOpener{}
	opener.On("Open", mock.Anything, "p", models.BaudRate9600).Return(port, nil)

	m := newTestManager(t, Options{Opener: opener})
	require.NoError(t, m.Connect(context.Background(), "p"))

	port.send("{\"v\":100}\n")
	require.Eventually(t, func() bool { return len(m.History()) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.SetMultiplier(1.2))
	port.send("{\"v\":100}\n")
	require.Eventually(t, func() bool { return len(m.History()) == 2 }, 2*time.Second, 5*time.Millisecond)

	history := m.History()
	assert.InDelta(t, 100.0, history[0].RMS, tolerance, "history is not recalibrated")
	assert.InDelta(t, 120.0, history[1].RMS, tolerance)

	m.Disconnect()
	waitForDone(t, m)
}

func TestManagerTimestampsNeverDecrease(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	stamps := []time.Time{base, base.Add(-time.Second), base.Add(time.Second)}
	var i int
	now := func() time.Time {
		ts := stamps[i%len(stamps)]
		i++
		return ts
	}

	port := newFakePort()
	opener := &MockOpener{}
	opener.On("Open", mock.Anything, "p", models.BaudRate9600).Return(port, nil)

	m := newTestManager(t, Options{Opener: opener, Now: now})
	require.NoError(t, m.Connect(context.Background(), "p"))
	port.send("{\"v\":1}\n{\"v\":2}\n{\"v\":3}\n")
	require.Eventually(t, func() bool { return len(m.History()) == 3 }, 2*time.Second, 5*time.Millisecond)

	history := m.History()
	assert.Equal(t, base, history[0].Timestamp)
	assert.Equal(t, base, history[1].Timestamp)
	assert.Equal(t, base.Add(time.Second), history[2].Timestamp)

	m.Disconnect()
	waitForDone(t, m)
}

func TestManagerHistoryBound(t *testing.T) {
	port := newFakePort()
	opener := &MockOpener{}
	opener.On("Open", mock.Anything, "p", models.BaudRate9600).Return(port, nil)

	m := newTestManager(t, Options{Opener: opener, HistorySize: 50})
	require.NoError(t, m.Connect(context.Background(), "p"))

	for i := 1; i <= 51; i++ {
		port.data <- []byte("{\"v\":" + strconv.Itoa(i) + "}\n")
	}
	require.Eventually(t, func() bool {
		h := m.History()
		return len(h) == 50 && h[len(h)-1].RMS == 51
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2.0, m.History()[0].RMS)

	m.Disconnect()
	waitForDone(t, m)
}

func TestManagerConnectFailure(t *testing.T) {
	opener := &MockOpener{}
	opener.On("Open", mock.Anything, "p", models.BaudRate115200).Return(nil, transport.ErrPermissionDenied)

	m := newTestManager(t, Options{
		Opener:      opener,
		ErrorHold:   200 * time.Millisecond,
		Calibration: models.Calibration{Multiplier: 1.0, BaudRate: models.BaudRate115200},
	})
	stop := collectStatuses(m)

	err := m.Connect(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectionFailed))
	assert.Equal(t, models.StatusError, m.Status())

	// ERROR refuses a new connect until it reverts
	assert.True(t, errors.Is(m.Connect(context.Background(), "p"), ErrNotDisconnected))

	waitForStatus(t, m, models.StatusDisconnected)
	assert.Equal(t, []models.ConnectionStatus{
		models.StatusConnecting,
		models.StatusError,
		models.StatusDisconnected,
	}, stop())
	opener.AssertNumberOfCalls(t, "Open", 1)
}

func TestManagerTransportUnavailable(t *testing.T) {
	m := newTestManager(t, Options{})
	err := m.Connect(context.Background(), "p")
	assert.True(t, errors.Is(err, ErrTransportUnavailable))
	assert.Equal(t, models.StatusDisconnected, m.Status())
}

func TestManagerConnectOnlyFromDisconnected(t *testing.T) {
	port := newFakePort()
	opener := &MockOpener{}
	opener.On("Open", mock.Anything, "p", models.BaudRate9600).Return(port, nil).Once()

	m := newTestManager(t, Options{Opener: opener})
	require.NoError(t, m.Connect(context.Background(), "p"))
	assert.True(t, errors.Is(m.Connect(context.Background(), "p"), ErrNotDisconnected))

	m.Disconnect()
	waitForDone(t, m)
	opener.AssertExpectations(t)
}

func TestManagerDisconnectWhenCloseFails(t *testing.T) {
	port := newFakePort()
	port.closeErr = errors.New("device busy")
	opener := &MockOpener{}
	opener.On("Open", mock.Anything, "p", models.BaudRate9600).Return(port, nil)

	m := newTestManager(t, Options{Opener: opener})
	stop := collectStatuses(m)
	require.NoError(t, m.Connect(context.Background(), "p"))

	port.send("{\"v\":230}\n")
	require.Eventually(t, func() bool { return len(m.History()) == 1 }, 2*time.Second, 5*time.Millisecond)

	m.Disconnect()
	m.Disconnect()
	waitForDone(t, m)

	// Nothing is read after teardown
	port.data <- []byte("{\"v\":1}\n")
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, m.History(), 1)

	assert.Equal(t, models.StatusDisconnected, m.Status())
	assert.Equal(t, 1, port.CloseCalls())
	assert.Equal(t, []models.ConnectionStatus{
		models.StatusConnecting,
		models.StatusConnected,
		models.StatusDisconnected,
	}, stop())
}

func TestManagerStreamError(t *testing.T) {
	port := newFakePort()
	opener := &MockOpener{}
	opener.On("Open", mock.Anything, "p", models.BaudRate9600).Return(port, nil)

	m := newTestManager(t, Options{Opener: opener})
	stop := collectStatuses(m)
	require.NoError(t, m.Connect(context.Background(), "p"))

	port.readErr <- errors.New("device unplugged")
	waitForDone(t, m)

	assert.Equal(t, models.StatusDisconnected, m.Status())
	assert.Equal(t, []models.ConnectionStatus{
		models.StatusConnecting,
		models.StatusConnected,
		models.StatusError,
		models.StatusDisconnected,
	}, stop())
	opener.AssertNumberOfCalls(t, "Open", 1)
}

func TestManagerStreamEOF(t *testing.T) {
	port := newFakePort()
	opener := &MockOpener{}
	opener.On("Open", mock.Anything, "p", models.BaudRate9600).Return(port, nil)

	m := newTestManager(t, Options{Opener: opener})
	stop := collectStatuses(m)
	require.NoError(t, m.Connect(context.Background(), "p"))

	port.readErr <- io.EOF
	waitForDone(t, m)

	assert.NotContains(t, stop(), models.StatusError)
	assert.Equal(t, models.StatusDisconnected, m.Status())
}

func TestManagerRecordsReadings(t *testing.T) {
	port := newFakePort()
	opener := &MockOpener{}
	opener.On("Open", mock.Anything, "p", models.BaudRate9600).Return(port, nil)

	recorder := &MockRecorder{}
	recorder.On("StoreReading", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("*models.Sample")).
		Return(errors.New("db down")).Once()
	recorder.On("StoreReading", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("*models.Sample")).
		Return(nil)

	m := newTestManager(t, Options{Opener: opener, Recorder: recorder})
	require.NoError(t, m.Connect(context.Background(), "p"))

	port.send("{\"v\":1}\n{\"v\":2}\n")
	require.Eventually(t, func() bool { return len(m.History()) == 2 }, 2*time.Second, 5*time.Millisecond)

	m.Disconnect()
	waitForDone(t, m)

	recorder.AssertNumberOfCalls(t, "StoreReading", 2)
	assert.Equal(t, m.SessionID(), recorder.Calls[0].Arguments.String(1))
}

func TestManagerSlowRecorderDoesNotStallReads(t *testing.T) {
	port := newFakePort()
	opener := &MockOpener{}
	opener.On("Open", mock.Anything, "p", models.BaudRate9600).Return(port, nil)

	unblock := make(chan struct{})
	recorder := &MockRecorder{}
	recorder.On("StoreReading", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("*models.Sample")).
		Run(func(mock.Arguments) { <-unblock }).
		Return(nil).Once()
	recorder.On("StoreReading", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("*models.Sample")).
		Return(nil)

	m := newTestManager(t, Options{Opener: opener, Recorder: recorder})
	require.NoError(t, m.Connect(context.Background(), "p"))

	for i := 1; i <= 10; i++ {
		port.send("{\"v\":" + strconv.Itoa(i) + "}\n")
	}
	require.Eventually(t, func() bool { return len(m.History()) == 10 }, 2*time.Second, 5*time.Millisecond,
		"samples keep flowing while the recorder is blocked")

	close(unblock)
	m.Disconnect()
	waitForDone(t, m)

	recorder.AssertNumberOfCalls(t, "StoreReading", 10)
}

func TestManagerShutdownEndsSubscriptions(t *testing.T) {
	port := newFakePort()
	opener := &MockOpener{}
	opener.On("Open", mock.Anything, "p", models.BaudRate9600).Return(port, nil)

	m := newTestManager(t, Options{Opener: opener})
	events, unsubscribe := m.Subscribe()
	require.NoError(t, m.Connect(context.Background(), "p"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for range events {
		}
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription still open after shutdown")
	}
	unsubscribe()

	late, lateUnsubscribe := m.Subscribe()
	_, ok := <-late
	assert.False(t, ok, "subscribing after shutdown yields a closed channel")
	lateUnsubscribe()
}

func TestManagerShutdown(t *testing.T) {
	port := newFakePort()
	opener := &MockOpener{}
	opener.On("Open", mock.Anything, "p", models.BaudRate9600).Return(port, nil)

	m := newTestManager(t, Options{Opener: opener})
	require.NoError(t, m.Shutdown(context.Background()), "shutdown before any session")

	require.NoError(t, m.Connect(context.Background(), "p"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	assert.Equal(t, models.StatusDisconnected, m.Status())
}

func TestManagerSetCalibration(t *testing.T) {
	m := newTestManager(t, Options{})

	require.NoError(t, m.SetCalibration(models.Calibration{Multiplier: 0.8, BaudRate: models.BaudRate115200}))
	assert.Equal(t, models.Calibration{Multiplier: 0.8, BaudRate: models.BaudRate115200}, m.Calibration())

	assert.True(t, errors.Is(m.SetCalibration(models.Calibration{Multiplier: 1.3, BaudRate: 9600}), ErrMultiplierOutOfRange))
	assert.True(t, errors.Is(m.SetBaudRate(300), ErrUnsupportedBaudRate))
	assert.True(t, errors.Is(m.SetMultiplier(0.79), ErrMultiplierOutOfRange))
	require.NoError(t, m.SetMultiplier(1.2))
	require.NoError(t, m.SetBaudRate(models.BaudRate9600))
	assert.Equal(t, models.Calibration{Multiplier: 1.2, BaudRate: models.BaudRate9600}, m.Calibration())
}

func TestNewManagerRejectsBadCalibration(t *testing.T) {
	_, err := NewManager(Options{Calibration: models.Calibration{Multiplier: 2, BaudRate: 9600}})
	assert.True(t, errors.Is(err, ErrMultiplierOutOfRange))
}
