// Package serial implements transport.Transport on top of a physical
// serial port via go.bug.st/serial, the cross-platform serial library
// used throughout the wider device-driver corpus this project draws on.
//
// Grounded on ZachMassia-GoGoGadget/board.go's New/OpenPort pairing
// (config struct, open-then-flush, buffered reads), adapted from
// github.com/ZachMassia/goserial's POSIX-only, ioctl-flushing driver to
// go.bug.st/serial's portable one.
package serial

import (
	"errors"
	"os"
	"time"

	goserial "go.bug.st/serial"

	"github.com/jeroenwalter/firmata/ferrors"
)

// DefaultBaudRate is the baud rate New applies when Config.BaudRate is
// zero. Firmata discovery does not use it: discover probes its own baud
// list, 57600 first.
const DefaultBaudRate = 9600

// defaultReadTimeout bounds how long ReadByte blocks before surfacing a
// timeout error, keeping the Session's receive goroutine responsive to
// Close even with no data arriving.
const defaultReadTimeout = 200 * time.Millisecond

// Config configures a Transport before Open.
type Config struct {
	Name     string
	BaudRate int // defaults to DefaultBaudRate when zero
}

// port is the slice of goserial.Port that Transport actually drives. Kept
// narrow and separate from goserial.Port itself so a test can fake the
// library's documented (0, nil)-on-timeout read convention without
// reimplementing the whole port interface.
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Transport is a transport.Transport backed by a physical or virtual
// serial port.
type Transport struct {
	cfg Config

	port port
	buf  [1]byte
}

// New returns a Transport for cfg. The port is not opened until Open is
// called.
func New(cfg Config) *Transport {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	return &Transport{cfg: cfg}
}

func (t *Transport) Open() error {
	mode := &goserial.Mode{BaudRate: t.cfg.BaudRate}
	p, err := goserial.Open(t.cfg.Name, mode)
	if err != nil {
		if isPermissionError(err) {
			return ferrors.Wrap(ferrors.Unauthorized, "serial.Open", err)
		}
		return ferrors.Wrap(ferrors.TransportIO, "serial.Open", err)
	}
	if err := p.SetReadTimeout(defaultReadTimeout); err != nil {
		p.Close()
		return ferrors.Wrap(ferrors.TransportIO, "serial.SetReadTimeout", err)
	}
	t.port = p
	return nil
}

// isPermissionError reports whether err indicates the port cannot be used
// by this process: an os.ErrPermission-class error (e.g. EACCES on POSIX),
// or a go.bug.st/serial PortError with code PortBusy or InvalidSerialPort.
func isPermissionError(err error) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	var portErr *goserial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case goserial.InvalidSerialPort, goserial.PortBusy:
			return true
		}
	}
	return false
}

func (t *Transport) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return ferrors.Wrap(ferrors.TransportIO, "serial.Close", err)
	}
	return nil
}

func (t *Transport) IsOpen() bool {
	return t.port != nil
}

func (t *Transport) Write(p []byte) (int, error) {
	if t.port == nil {
		return 0, ferrors.New(ferrors.TransportIO, "serial.Write", "port not open")
	}
	n, err := t.port.Write(p)
	if err != nil {
		return n, ferrors.Wrap(ferrors.TransportIO, "serial.Write", err)
	}
	return n, nil
}

// ReadByte reads a single byte directly from the port, bypassing bufio:
// go.bug.st/serial's SetReadTimeout convention is to return (0, nil) when
// the configured timeout elapses with no data, not io.EOF, and a
// bufio.Reader wrapped around such a reader retries the zero-byte read
// internally (up to its maxConsecutiveEmptyReads cap) before giving up
// with io.ErrNoProgress, turning a single 200ms timeout into a much
// longer, misclassified block. Read straight into a 1-byte buffer and
// translate the documented (0, nil) timeout signal ourselves.
func (t *Transport) ReadByte() (byte, error) {
	if t.port == nil {
		return 0, ferrors.New(ferrors.TransportIO, "serial.ReadByte", "port not open")
	}
	n, err := t.port.Read(t.buf[:])
	if err != nil {
		return 0, ferrors.Wrap(ferrors.TransportIO, "serial.ReadByte", err)
	}
	if n == 0 {
		return 0, ferrors.New(ferrors.Timeout, "serial.ReadByte", "read timed out")
	}
	return t.buf[0], nil
}

// BytesToRead always reports 0: go.bug.st/serial exposes no buffered byte
// count outside of wrapping the port in a bufio.Reader, which ReadByte
// deliberately avoids.
func (t *Transport) BytesToRead() (int, error) {
	if t.port == nil {
		return 0, ferrors.New(ferrors.TransportIO, "serial.BytesToRead", "port not open")
	}
	return 0, nil
}

// OnBytesAvailable is a no-op: go.bug.st/serial exposes no readiness
// notification, only blocking reads with a timeout, which ReadByte already
// uses. Session's receive loop polls via ReadByte rather than depending on
// this callback.
func (t *Transport) OnBytesAvailable(func()) {}

func (t *Transport) Name() string { return t.cfg.Name }

func (t *Transport) BaudRate() int { return t.cfg.BaudRate }
