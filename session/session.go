// Package session ties a Transport, Framer, and Dispatcher together into
// the single type applications drive: issue a command, wait for its
// reply, or subscribe to a stream of telemetry.
//
// Grounded on ZachMassia-GoGoGadget/board.go's Board (owns the connection,
// runs one receive goroutine, exposes typed Get* methods) generalized from
// a fixed three-message ready-gate into the full request/reply and
// subscription surface, with jangala-dev-devicecode-go/services/hal's
// defaulted-Config idiom for construction.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeroenwalter/firmata/dispatch"
	"github.com/jeroenwalter/firmata/encode"
	"github.com/jeroenwalter/firmata/ferrors"
	"github.com/jeroenwalter/firmata/framer"
	"github.com/jeroenwalter/firmata/message"
	"github.com/jeroenwalter/firmata/transport"
)

// Config configures a Session. Zero values are defaulted by Connect.
type Config struct {
	// Timeout bounds every sync request-reply call. Zero defaults to
	// transport.InfiniteTimeout.
	Timeout time.Duration

	// Logger receives overflow/unrecognized-sysex/lifecycle diagnostics. Defaults to
	// logrus.StandardLogger() when nil.
	Logger *logrus.Logger
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = transport.InfiniteTimeout
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

// Result carries the outcome of an async request-reply call.
type Result[T any] struct {
	Value T
	Err   error
}

// Session is the single entry point applications drive. Safe for
// concurrent use by multiple caller goroutines; the receive goroutine is
// internal.
type Session struct {
	cfg Config

	t transport.Transport
	f *framer.Framer
	d *dispatch.Dispatcher

	writeMu sync.Mutex

	opened bool // true iff this Session itself opened t

	stop chan struct{}
	done chan struct{}
}

// Connect opens t if not already open, wires a Framer and Dispatcher
// around it, and starts the receive goroutine. If t is supplied already
// open, Dispose will never close it (ownership-transfer rule); Clear still
// closes and reopens it.
func Connect(t transport.Transport, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()

	s := &Session{
		cfg:  cfg,
		t:    t,
		d:    dispatch.New(cfg.Logger),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if cfg.Timeout > 0 {
		s.d.SetStaleWindow(cfg.Timeout)
	}
	s.f = framer.New(s.d.Dispatch, cfg.Logger)

	if !t.IsOpen() {
		if err := t.Open(); err != nil {
			return nil, err
		}
		s.opened = true
	}

	go s.receiveLoop()
	return s, nil
}

func (s *Session) receiveLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		b, err := s.t.ReadByte()
		if err != nil {
			if ferrors.CodeOf(err) == ferrors.Timeout {
				continue
			}
			s.cfg.Logger.WithField("component", "session").WithError(err).
				Debug("receive loop exiting")
			return
		}
		s.f.Feed(b)
	}
}

func (s *Session) write(p []byte, err error) error {
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.t.Write(p)
	return err
}

func (s *Session) ctxFor(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

// --- Sync request-reply operations ---

func (s *Session) GetProtocolVersion(ctx context.Context) (message.ProtocolVersion, error) {
	if err := s.write(encode.RequestProtocolVersion()); err != nil {
		return message.ProtocolVersion{}, err
	}
	cctx, cancel := s.ctxFor(ctx)
	defer cancel()
	m, err := s.d.Wait(cctx, func(m message.Message) bool {
		_, ok := m.(message.ProtocolVersion)
		return ok
	})
	if err != nil {
		return message.ProtocolVersion{}, err
	}
	return m.(message.ProtocolVersion), nil
}

func (s *Session) GetFirmware(ctx context.Context) (message.Firmware, error) {
	if err := s.write(encode.RequestFirmware()); err != nil {
		return message.Firmware{}, err
	}
	cctx, cancel := s.ctxFor(ctx)
	defer cancel()
	m, err := s.d.Wait(cctx, func(m message.Message) bool {
		_, ok := m.(message.Firmware)
		return ok
	})
	if err != nil {
		return message.Firmware{}, err
	}
	return m.(message.Firmware), nil
}

func (s *Session) GetBoardCapability(ctx context.Context) (message.BoardCapability, error) {
	if err := s.write(encode.RequestBoardCapability()); err != nil {
		return message.BoardCapability{}, err
	}
	cctx, cancel := s.ctxFor(ctx)
	defer cancel()
	m, err := s.d.Wait(cctx, func(m message.Message) bool {
		_, ok := m.(message.BoardCapability)
		return ok
	})
	if err != nil {
		return message.BoardCapability{}, err
	}
	return m.(message.BoardCapability), nil
}

func (s *Session) GetBoardAnalogMapping(ctx context.Context) (message.AnalogMapping, error) {
	if err := s.write(encode.RequestBoardAnalogMapping()); err != nil {
		return message.AnalogMapping{}, err
	}
	cctx, cancel := s.ctxFor(ctx)
	defer cancel()
	m, err := s.d.Wait(cctx, func(m message.Message) bool {
		_, ok := m.(message.AnalogMapping)
		return ok
	})
	if err != nil {
		return message.AnalogMapping{}, err
	}
	return m.(message.AnalogMapping), nil
}

func (s *Session) GetPinState(ctx context.Context, pin message.Pin) (message.PinState, error) {
	if err := s.write(encode.RequestPinState(int(pin))); err != nil {
		return message.PinState{}, err
	}
	cctx, cancel := s.ctxFor(ctx)
	defer cancel()
	m, err := s.d.Wait(cctx, func(m message.Message) bool {
		ps, ok := m.(message.PinState)
		return ok && ps.Pin == pin
	})
	if err != nil {
		return message.PinState{}, err
	}
	return m.(message.PinState), nil
}

// --- Async variants: offload the wait onto a goroutine, same semantics ---

func (s *Session) GetFirmwareAsync(ctx context.Context) <-chan Result[message.Firmware] {
	out := make(chan Result[message.Firmware], 1)
	go func() {
		v, err := s.GetFirmware(ctx)
		out <- Result[message.Firmware]{Value: v, Err: err}
		close(out)
	}()
	return out
}

func (s *Session) GetProtocolVersionAsync(ctx context.Context) <-chan Result[message.ProtocolVersion] {
	out := make(chan Result[message.ProtocolVersion], 1)
	go func() {
		v, err := s.GetProtocolVersion(ctx)
		out <- Result[message.ProtocolVersion]{Value: v, Err: err}
		close(out)
	}()
	return out
}

func (s *Session) GetBoardCapabilityAsync(ctx context.Context) <-chan Result[message.BoardCapability] {
	out := make(chan Result[message.BoardCapability], 1)
	go func() {
		v, err := s.GetBoardCapability(ctx)
		out <- Result[message.BoardCapability]{Value: v, Err: err}
		close(out)
	}()
	return out
}

func (s *Session) GetBoardAnalogMappingAsync(ctx context.Context) <-chan Result[message.AnalogMapping] {
	out := make(chan Result[message.AnalogMapping], 1)
	go func() {
		v, err := s.GetBoardAnalogMapping(ctx)
		out <- Result[message.AnalogMapping]{Value: v, Err: err}
		close(out)
	}()
	return out
}

func (s *Session) GetPinStateAsync(ctx context.Context, pin message.Pin) <-chan Result[message.PinState] {
	out := make(chan Result[message.PinState], 1)
	go func() {
		v, err := s.GetPinState(ctx, pin)
		out <- Result[message.PinState]{Value: v, Err: err}
		close(out)
	}()
	return out
}

// --- Fire-and-forget commands ---

func (s *Session) ResetBoard() error {
	return s.write(encode.ResetBoard())
}

func (s *Session) SetDigitalPinMode(pin message.Pin, mode message.PinMode) error {
	return s.write(encode.SetDigitalPinMode(int(pin), byte(mode)))
}

func (s *Session) WriteDigitalPinBool(pin message.Pin, value bool) error {
	return s.write(encode.SetDigitalPinBool(int(pin), value))
}

func (s *Session) WriteDigitalPinAnalog(pin message.Pin, value int) error {
	return s.write(encode.SetDigitalPinAnalog(int(pin), value))
}

func (s *Session) WriteDigitalPinExtended(pin message.Pin, value uint32) error {
	return s.write(encode.SetDigitalPinExtended(int(pin), value))
}

func (s *Session) SetAnalogReportMode(channel message.Channel, enabled bool) error {
	return s.write(encode.SetAnalogReportMode(int(channel), enabled))
}

func (s *Session) SetDigitalReportMode(port message.Port, enabled bool) error {
	return s.write(encode.SetDigitalReportMode(int(port), enabled))
}

func (s *Session) SetDigitalPort(port message.Port, bitmap int) error {
	return s.write(encode.SetDigitalPort(int(port), bitmap))
}

func (s *Session) SetSamplingInterval(ms int) error {
	return s.write(encode.SetSamplingInterval(ms))
}

func (s *Session) ConfigureServo(pin message.Pin, minPulse, maxPulse int) error {
	return s.write(encode.ConfigureServo(int(pin), minPulse, maxPulse))
}

func (s *Session) SendStringData(text string) error {
	return s.write(encode.SendStringData(text))
}

func (s *Session) SetI2CReadInterval(us int) error {
	return s.write(encode.SetI2CReadInterval(us))
}

func (s *Session) WriteI2C(addr int, data []byte) error {
	return s.write(encode.WriteI2C(addr, data))
}

func (s *Session) ReadI2COnce(addr int, register *int, n int) error {
	return s.write(encode.ReadI2COnce(addr, register, n))
}

func (s *Session) ReadI2CContinuous(addr int, register *int, n int) error {
	return s.write(encode.ReadI2CContinuous(addr, register, n))
}

func (s *Session) StopI2CReading() error {
	return s.write(encode.StopI2CReading())
}

func (s *Session) SendSysEx(cmd byte, payload []byte) error {
	return s.write(encode.SendSysEx(cmd, payload))
}

// --- Listener/subscription surface ---

// OnMessage registers a generic listener invoked for every decoded message.
func (s *Session) OnMessage(l func(message.Message)) {
	s.d.OnMessage(l)
}

// SubscribeAnalog delivers every AnalogState for channel until cancelled.
func (s *Session) SubscribeAnalog(channel message.Channel, fn func(message.AnalogState)) (cancel func()) {
	return s.d.OnAnalog(func(m message.AnalogState) {
		if m.Channel == channel {
			fn(m)
		}
	})
}

// SubscribeDigitalPort delivers every DigitalPortState for port until cancelled.
func (s *Session) SubscribeDigitalPort(port message.Port, fn func(message.DigitalPortState)) (cancel func()) {
	return s.d.OnDigitalPort(func(m message.DigitalPortState) {
		if m.Port == port {
			fn(m)
		}
	})
}

// SubscribeI2CReply delivers every I2CReply from address until cancelled.
func (s *Session) SubscribeI2CReply(address int, fn func(message.I2CReply)) (cancel func()) {
	return s.d.OnI2CReply(func(m message.I2CReply) {
		if m.Address == address {
			fn(m)
		}
	})
}

// --- Lifecycle ---

// Clear closes the transport, drops all queued messages and pending
// waiters, reopens the transport, and resets the Framer to Idle. The
// receive goroutine is restarted.
func (s *Session) Clear() error {
	close(s.stop)
	<-s.done

	if err := s.t.Close(); err != nil {
		return err
	}
	if err := s.t.Open(); err != nil {
		return err
	}

	s.d = dispatch.New(s.cfg.Logger)
	if s.cfg.Timeout > 0 {
		s.d.SetStaleWindow(s.cfg.Timeout)
	}
	s.f = framer.New(s.d.Dispatch, s.cfg.Logger)

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.receiveLoop()
	return nil
}

// Dispose stops the receive goroutine and, only if this Session itself
// opened the Transport, closes it. A Transport supplied already-open is
// left open for its original owner.
func (s *Session) Dispose() error {
	select {
	case <-s.stop:
		// already stopped
	default:
		close(s.stop)
	}
	<-s.done

	if s.opened {
		return s.t.Close()
	}
	return nil
}
