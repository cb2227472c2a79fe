package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

var (
	// ErrNoPorts is returned when no port name is given and none are attached
	ErrNoPorts = errors.New("no serial ports found")
	// ErrPermissionDenied is returned when the OS refuses access to the port
	ErrPermissionDenied = errors.New("permission denied")
	// ErrPortBusy is returned when another process holds the port
	ErrPortBusy = errors.New("port busy")
	// ErrPortNotFound is returned when the named port does not exist
	ErrPortNotFound = errors.New("port not found")
)

// Port is an open byte stream to the device
type Port interface {
	io.ReadCloser
}

// Opener opens a device at a given speed
type Opener interface {
	Open(ctx context.Context, name string, baudRate int) (Port, error)
}

// Lister enumerates attached devices
type Lister interface {
	List() ([]string, error)
}

// DefaultReadTimeout bounds each blocking read so the reader can notice a
// stop request between reads
const DefaultReadTimeout = 100 * time.Millisecond

// Serial opens real serial ports through go.bug.st/serial
type Serial struct {
	ReadTimeout time.Duration
}

// NewSerial creates a serial transport with the default read timeout
func NewSerial() *Serial {
	return &Serial{ReadTimeout: DefaultReadTimeout}
}

// List returns the names of attached serial ports
func (s *Serial) List() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Open opens the named port in 8N1 mode. An empty name selects the first
// attached port.
func (s *Serial) Open(ctx context.Context, name string, baudRate int) (Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if name == "" {
		ports, err := s.List()
		if err != nil {
			return nil, err
		}
		if len(ports) == 0 {
			return nil, ErrNoPorts
		}
		name = ports[0]
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	log.Info().Str("port", name).Int("baudRate", baudRate).Msg("Opening serial port")
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, openError(name, err)
	}

	if s.ReadTimeout > 0 {
		if err := port.SetReadTimeout(s.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	// Drop whatever the device sent before we were listening
	if err := port.ResetInputBuffer(); err != nil {
		log.Warn().Err(err).Str("port", name).Msg("Failed to reset input buffer")
	}

	return port, nil
}

func openError(name string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return portErrorFor(name, portErr.Code(), err)
	}
	return fmt.Errorf("failed to open %s: %w", name, err)
}

// portErrorFor maps driver error codes onto the package sentinels
func portErrorFor(name string, code serial.PortErrorCode, err error) error {
	switch code {
	case serial.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, name)
	case serial.PortBusy:
		return fmt.Errorf("%w: %s", ErrPortBusy, name)
	case serial.PortNotFound:
		return fmt.Errorf("%w: %s", ErrPortNotFound, name)
	default:
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
}
