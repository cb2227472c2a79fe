package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RMahshie/voltsense/internal/transport"
	"github.com/RMahshie/voltsense/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultErrorHold is how long a failed connect stays in ERROR
	DefaultErrorHold = 3 * time.Second

	readBufferSize      = 1024
	pipeShutdownTimeout = 500 * time.Millisecond
	subscriberBuffer    = 64
	recordBuffer        = 256
	recordTimeout       = 5 * time.Second
)

// Pipeline is the ingestion surface consumed by the API and CLI
type Pipeline interface {
	Connect(ctx context.Context, portName string) error
	Disconnect()
	Status() models.ConnectionStatus
	SessionID() string
	Stats() models.Stats
	History() []models.Sample
	HistoryCapacity() int
	Calibration() models.Calibration
	SetCalibration(c models.Calibration) error
	SetMultiplier(multiplier float64) error
	SetBaudRate(baudRate int) error
	Subscribe() (<-chan models.Event, func())
}

// Recorder persists accepted samples outside the rolling history
type Recorder interface {
	StoreReading(ctx context.Context, sessionID string, sample *models.Sample) error
}

// Options configures a Manager
type Options struct {
	Opener      transport.Opener
	Recorder    Recorder
	HistorySize int
	ErrorHold   time.Duration
	Calibration models.Calibration
	Now         func() time.Time
}

// Manager owns the connection lifecycle, the read loop and the state it
// produces. Only the read loop writes samples; everything else reads.
type Manager struct {
	opener    transport.Opener
	recorder  Recorder
	errorHold time.Duration
	now       func() time.Time
	history   *History

	keepReading atomic.Bool

	mu          sync.RWMutex
	status      models.ConnectionStatus
	calibration models.Calibration
	stats       models.Stats
	sessionID   string
	lastStamp   time.Time
	cancel      context.CancelFunc
	done        chan struct{}
	holdTimer   *time.Timer

	subMu       sync.Mutex
	subscribers map[int]chan models.Event
	nextSubID   int
	subsClosed  bool
}

// NewManager creates a disconnected manager
func NewManager(opts Options) (*Manager, error) {
	calibration := opts.Calibration
	if calibration == (models.Calibration{}) {
		calibration = models.DefaultCalibration()
	}
	if err := ValidateCalibration(calibration); err != nil {
		return nil, err
	}

	errorHold := opts.ErrorHold
	if errorHold <= 0 {
		errorHold = DefaultErrorHold
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		opener:      opts.Opener,
		recorder:    opts.Recorder,
		errorHold:   errorHold,
		now:         now,
		history:     NewHistory(opts.HistorySize),
		status:      models.StatusDisconnected,
		calibration: calibration,
		subscribers: make(map[int]chan models.Event),
	}, nil
}

// Connect opens the port at the configured baud rate and starts the read
// loop. It is only valid while disconnected.
func (m *Manager) Connect(ctx context.Context, portName string) error {
	m.mu.Lock()
	if m.status != models.StatusDisconnected {
		status := m.status
		m.mu.Unlock()
		return fmt.Errorf("%w: status is %s", ErrNotDisconnected, status)
	}
	if m.opener == nil {
		m.mu.Unlock()
		return ErrTransportUnavailable
	}
	baudRate := m.calibration.BaudRate
	m.setStatusLocked(models.StatusConnecting)
	m.mu.Unlock()

	port, err := m.opener.Open(ctx, portName, baudRate)
	if err != nil {
		log.Error().Err(err).Str("port", portName).Int("baudRate", baudRate).Msg("Failed to open transport")
		m.holdError()
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	sessionID := uuid.NewString()
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	m.sessionID = sessionID
	m.lastStamp = time.Time{}
	m.cancel = cancel
	m.done = done
	m.keepReading.Store(true)
	m.setStatusLocked(models.StatusConnected)
	m.mu.Unlock()

	log.Info().Str("sessionID", sessionID).Str("port", portName).Int("baudRate", baudRate).Msg("Serial session started")
	go m.readLoop(loopCtx, port, sessionID, done)
	return nil
}

// Disconnect asks the read loop to stop. The loop closes the port and moves
// to DISCONNECTED on its own.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.status != models.StatusConnected {
		m.mu.Unlock()
		return
	}
	m.keepReading.Store(false)
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Shutdown disconnects and waits for the read loop to finish tearing down.
// Every subscription is closed on return.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.Disconnect()

	m.mu.Lock()
	done := m.done
	if m.holdTimer != nil && m.holdTimer.Stop() {
		m.setStatusLocked(models.StatusDisconnected)
	}
	m.mu.Unlock()

	defer m.closeSubscribers()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the current session's read loop has fully torn down.
// It is nil if no session was ever started.
func (m *Manager) Done() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.done
}

func (m *Manager) Status() models.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// SessionID identifies the current or most recent session
func (m *Manager) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

func (m *Manager) Stats() models.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// History returns a copy of the rolling history, oldest first
func (m *Manager) History() []models.Sample {
	return m.history.Snapshot()
}

func (m *Manager) HistoryCapacity() int {
	return m.history.Cap()
}

func (m *Manager) Calibration() models.Calibration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calibration
}

// SetCalibration replaces both settings. A new multiplier applies to the
// next record received; a new baud rate applies to the next connect.
func (m *Manager) SetCalibration(c models.Calibration) error {
	if err := ValidateCalibration(c); err != nil {
		return err
	}
	m.mu.Lock()
	m.calibration = c
	m.mu.Unlock()

	log.Info().Float64("multiplier", c.Multiplier).Int("baudRate", c.BaudRate).Msg("Calibration updated")
	return nil
}

// SetMultiplier applies to the next record received
func (m *Manager) SetMultiplier(multiplier float64) error {
	if err := ValidateMultiplier(multiplier); err != nil {
		return err
	}
	m.mu.Lock()
	m.calibration.Multiplier = multiplier
	m.mu.Unlock()
	return nil
}

// SetBaudRate applies on the next connect
func (m *Manager) SetBaudRate(baudRate int) error {
	if err := ValidateBaudRate(baudRate); err != nil {
		return err
	}
	m.mu.Lock()
	m.calibration.BaudRate = baudRate
	m.mu.Unlock()
	return nil
}

// Subscribe registers for live sample and status events. Events are dropped
// for subscribers that fall behind. The returned func unsubscribes.
// After Shutdown the channel comes back closed.
func (m *Manager) Subscribe() (<-chan models.Event, func()) {
	ch := make(chan models.Event, subscriberBuffer)

	m.subMu.Lock()
	defer m.subMu.Unlock()
	if m.subsClosed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = ch

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if _, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(ch)
		}
	}
}

// closeSubscribers ends every live event stream
func (m *Manager) closeSubscribers() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	m.subsClosed = true
	for id, ch := range m.subscribers {
		delete(m.subscribers, id)
		close(ch)
	}
}

func (m *Manager) broadcast(ev models.Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for id, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			log.Debug().Int("subscriber", id).Str("type", ev.Type).Msg("Dropping event for slow subscriber")
		}
	}
}

// setStatusLocked must be called with m.mu held
func (m *Manager) setStatusLocked(status models.ConnectionStatus) {
	if m.status == status {
		return
	}
	m.status = status
	log.Info().Str("status", string(status)).Msg("Connection status changed")
	m.broadcast(models.Event{Type: models.EventStatus, Status: status})
}

func (m *Manager) setStatus(status models.ConnectionStatus) {
	m.mu.Lock()
	m.setStatusLocked(status)
	m.mu.Unlock()
}

// holdError shows ERROR for errorHold, then reverts to DISCONNECTED
func (m *Manager) holdError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setStatusLocked(models.StatusError)
	m.holdTimer = time.AfterFunc(m.errorHold, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.status == models.StatusError {
			m.setStatusLocked(models.StatusDisconnected)
		}
	})
}

// readLoop runs once per session. Teardown order is fixed: release the
// reader, wait for the pump to stop, then close the port.
func (m *Manager) readLoop(ctx context.Context, port transport.Port, sessionID string, done chan struct{}) {
	defer close(done)

	chunks := make(chan []byte)
	readErrs := make(chan error, 1)
	release := make(chan struct{})
	pumpDone := make(chan struct{})
	go pump(port, chunks, readErrs, release, pumpDone)

	var records chan models.Sample
	if m.recorder != nil {
		records = make(chan models.Sample, recordBuffer)
		recorded := make(chan struct{})
		go m.record(sessionID, records, recorded)
		defer func() {
			close(records)
			<-recorded
		}()
	}

	if err := m.consume(ctx, chunks, readErrs, records); err != nil {
		log.Error().Err(err).Str("sessionID", sessionID).Msg("Serial stream failed")
		m.setStatus(models.StatusError)
	}

	close(release)
	select {
	case <-pumpDone:
	case <-time.After(pipeShutdownTimeout):
		log.Warn().Str("sessionID", sessionID).Msg("Reader did not stop before close")
	}

	if err := port.Close(); err != nil {
		log.Warn().Err(err).Str("sessionID", sessionID).Msg("Failed to close serial port")
	}

	m.mu.Lock()
	m.cancel = nil
	m.keepReading.Store(false)
	m.setStatusLocked(models.StatusDisconnected)
	m.mu.Unlock()

	log.Info().Str("sessionID", sessionID).Msg("Serial session ended")
}

func (m *Manager) consume(ctx context.Context, chunks <-chan []byte, readErrs <-chan error, records chan<- models.Sample) error {
	framer := NewFramer()

	for m.keepReading.Load() {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErrs:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrStreamFailed, err)
		case chunk := <-chunks:
			for _, line := range framer.Feed(chunk) {
				// A disconnect mid-chunk stops ingestion at the next line
				if ctx.Err() != nil {
					return nil
				}
				m.ingest(line, records)
			}
		}
	}
	return nil
}

// ingest decodes, normalizes and publishes one framed line. Bad lines are
// logged and dropped.
func (m *Manager) ingest(line string, records chan<- models.Sample) {
	raw, err := DecodeLine(line)
	if err != nil {
		log.Warn().Err(err).Str("line", line).Msg("Dropping malformed record")
		return
	}

	sample, err := Normalize(raw, m.Calibration().Multiplier)
	if err != nil {
		log.Warn().Err(err).Str("line", line).Msg("Dropping record without usable fields")
		return
	}

	sample = m.publish(sample)

	if records == nil {
		return
	}
	select {
	case records <- sample:
	default:
		log.Warn().Time("timestamp", sample.Timestamp).Msg("Recorder is behind, dropping reading")
	}
}

// record drains accepted samples into the recorder off the read path
func (m *Manager) record(sessionID string, records <-chan models.Sample, done chan<- struct{}) {
	defer close(done)

	for sample := range records {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := m.recorder.StoreReading(ctx, sessionID, &sample); err != nil {
			log.Warn().Err(err).Str("sessionID", sessionID).Msg("Failed to record reading")
		}
		cancel()
	}
}

// publish stamps the sample and updates both views of the stream
func (m *Manager) publish(sample models.Sample) models.Sample {
	m.mu.Lock()
	ts := m.now()
	if ts.Before(m.lastStamp) {
		ts = m.lastStamp
	}
	m.lastStamp = ts
	sample.Timestamp = ts

	stats := StatsFor(sample)
	m.stats = stats
	m.history.Append(sample)
	m.mu.Unlock()

	m.broadcast(models.Event{Type: models.EventSample, Sample: &sample, Stats: &stats})
	return sample
}

// pump performs the blocking reads and hands chunks to the read loop. It
// stops when the stream ends or release is closed.
func pump(r io.Reader, chunks chan<- []byte, readErrs chan<- error, release <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case chunks <- chunk:
			case <-release:
				return
			}
		}
		if err != nil {
			readErrs <- err
			return
		}

		select {
		case <-release:
			return
		default:
		}
	}
}
