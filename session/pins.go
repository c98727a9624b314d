package session

import (
	"context"

	"github.com/jeroenwalter/firmata/ferrors"
	"github.com/jeroenwalter/firmata/message"
)

// Pins tracks per-pin mode against the board's advertised capability,
// rejecting writes the device itself cannot perform instead of letting a
// malformed command reach the wire.
//
// Grounded on ZachMassia-GoGoGadget/pin.go's pin type (supportedModes
// check before setMode, port derivation for digital reporting), adapted
// from a fixed INPUT/OUTPUT/ANALOG/PWM/SERVO/SHIFT/I2C mode set pinned at
// construction time to the full message.PinMode set discovered live via
// GetBoardCapability/GetBoardAnalogMapping.
type Pins struct {
	s *Session

	caps    message.BoardCapability
	mapping message.AnalogMapping

	mode map[message.Pin]message.PinMode
}

// NewPins queries the board's capability and analog mapping and returns a
// Pins tracker bound to s.
func NewPins(ctx context.Context, s *Session) (*Pins, error) {
	caps, err := s.GetBoardCapability(ctx)
	if err != nil {
		return nil, err
	}
	mapping, err := s.GetBoardAnalogMapping(ctx)
	if err != nil {
		return nil, err
	}
	return &Pins{
		s:       s,
		caps:    caps,
		mapping: mapping,
		mode:    make(map[message.Pin]message.PinMode),
	}, nil
}

func (p *Pins) capability(pin message.Pin) (message.PinCapability, bool) {
	idx := int(pin)
	if idx < 0 || idx >= len(p.caps.Pins) {
		return message.PinCapability{}, false
	}
	return p.caps.Pins[idx], true
}

// SetMode validates mode against the pin's advertised capability before
// writing it, and records the accepted mode for subsequent Report calls.
func (p *Pins) SetMode(pin message.Pin, mode message.PinMode) error {
	pc, ok := p.capability(pin)
	if !ok {
		return ferrors.New(ferrors.ArgumentRange, "Pins.SetMode", "pin out of board range")
	}
	if !pc.SupportsMode(mode) {
		return ferrors.New(ferrors.Unsupported, "Pins.SetMode", "pin does not support requested mode")
	}
	if err := p.s.SetDigitalPinMode(pin, mode); err != nil {
		return err
	}
	p.mode[pin] = mode
	return nil
}

func (p *Pins) channelFor(pin message.Pin) (message.Channel, bool) {
	for _, e := range p.mapping.Entries {
		if e.Pin == pin {
			return e.Channel, true
		}
	}
	return 0, false
}

// Report enables or disables telemetry for pin, dispatching to
// SetAnalogReportMode or SetDigitalReportMode depending on the pin's last
// mode set via SetMode. Returns ferrors.Unsupported if the pin is not in
// a reportable mode, or if called before SetMode.
func (p *Pins) Report(pin message.Pin, enabled bool) error {
	mode, ok := p.mode[pin]
	if !ok {
		return ferrors.New(ferrors.Unsupported, "Pins.Report", "pin mode not yet set")
	}

	switch mode {
	case message.ModeAnalogInput:
		channel, ok := p.channelFor(pin)
		if !ok {
			return ferrors.New(ferrors.Unsupported, "Pins.Report", "pin has no analog channel mapping")
		}
		return p.s.SetAnalogReportMode(channel, enabled)
	case message.ModeDigitalInput, message.ModeInputPullup:
		return p.s.SetDigitalReportMode(portOf(pin), enabled)
	default:
		return ferrors.New(ferrors.Unsupported, "Pins.Report", "pin not in a reportable mode")
	}
}

// portOf derives the 8-pin-wide digital port a pin belongs to.
func portOf(pin message.Pin) message.Port {
	return message.Port(int(pin) / 8)
}
