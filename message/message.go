// Package message defines the Firmata wire data model: pin/port/channel
// identifiers, pin modes, and the tagged union of decoded messages the
// framer emits.
package message

import (
	"fmt"
	"time"
)

// Pin is a digital/analog pin identifier in [0,127].
type Pin int

// Port groups eight adjacent digital pins, identified in [0,15].
type Port int

// Channel is an analog input channel identifier in [0,15].
type Channel int

// PinMode is a device-defined pin behavior byte.
type PinMode byte

// Pin modes, encoded as the device-defined byte value (Firmata PIN_MODE values).
const (
	ModeDigitalInput  PinMode = 0x00
	ModeDigitalOutput PinMode = 0x01
	ModeAnalogInput   PinMode = 0x02
	ModePwmOutput     PinMode = 0x03
	ModeServoControl  PinMode = 0x04
	ModeShift         PinMode = 0x05
	ModeI2C           PinMode = 0x06
	ModeOneWire       PinMode = 0x07
	ModeStepperControl PinMode = 0x08
	ModeEncoder       PinMode = 0x09
	ModeSerial        PinMode = 0x0A
	ModeInputPullup   PinMode = 0x0B
)

var pinModeNames = map[PinMode]string{
	ModeDigitalInput:   "DigitalInput",
	ModeDigitalOutput:  "DigitalOutput",
	ModeAnalogInput:    "AnalogInput",
	ModePwmOutput:      "PwmOutput",
	ModeServoControl:   "ServoControl",
	ModeShift:          "Shift",
	ModeI2C:            "I2C",
	ModeOneWire:        "OneWire",
	ModeStepperControl: "StepperControl",
	ModeEncoder:        "Encoder",
	ModeSerial:         "Serial",
	ModeInputPullup:    "InputPullup",
}

// PinModeName returns a human readable name for mode, or "Unknown(0xNN)".
func PinModeName(mode PinMode) string {
	if name, ok := pinModeNames[mode]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%02X)", byte(mode))
}

// ProtocolVersionNumber is the {major, minor} pair reported by 0xF9.
type ProtocolVersionNumber struct {
	Major int
	Minor int
}

// FirmwareInfo describes the firmware reported by a 0xF0 0x79 reply.
type FirmwareInfo struct {
	Major int
	Minor int
	Name  string
}

// PinCapabilityEntry pairs a supported mode with its resolution in bits.
type PinCapabilityEntry struct {
	Mode       PinMode
	Resolution int
}

// PinCapability is the set of supported modes for one pin.
type PinCapability struct {
	Pin     Pin
	Entries []PinCapabilityEntry
}

// SupportsMode reports whether mode is among the pin's supported modes.
func (c PinCapability) SupportsMode(mode PinMode) bool {
	for _, e := range c.Entries {
		if e.Mode == mode {
			return true
		}
	}
	return false
}

// AnalogMappingEntry pairs a digital pin with its analog channel number.
// Pins with no analog channel (wire value 0x7F) are omitted by the decoder.
type AnalogMappingEntry struct {
	Pin     Pin
	Channel Channel
}

// Message is the tagged union over every decoded Firmata message. Each
// variant is a distinct concrete type; callers type-switch on the
// interface rather than inspecting a discriminant field, per the sum-type
// design note.
type Message interface {
	// ReceivedAt returns the time the framer finished decoding this message.
	ReceivedAt() time.Time
	firmataMessage()
}

// AnalogState reports the 14-bit level of an analog input channel (0xE0-0xEF).
type AnalogState struct {
	At      time.Time
	Channel Channel
	Level   uint16 // 14-bit unsigned
}

func (m AnalogState) ReceivedAt() time.Time { return m.At }
func (AnalogState) firmataMessage()         {}

// DigitalPortState reports the 8-bit bitmap of a digital port (0x90-0x9F).
type DigitalPortState struct {
	At   time.Time
	Port Port
	Pins uint8
}

func (m DigitalPortState) ReceivedAt() time.Time { return m.At }
func (DigitalPortState) firmataMessage()         {}

// ProtocolVersion is the device's reported Firmata protocol version (0xF9).
type ProtocolVersion struct {
	At      time.Time
	Version ProtocolVersionNumber
}

func (m ProtocolVersion) ReceivedAt() time.Time { return m.At }
func (ProtocolVersion) firmataMessage()         {}

// Firmware is the device's reported firmware name/version (sysex 0x79).
type Firmware struct {
	At       time.Time
	Firmware FirmwareInfo
}

func (m Firmware) ReceivedAt() time.Time { return m.At }
func (Firmware) firmataMessage()         {}

// BoardCapability is the ordered per-pin capability table (sysex 0x6C).
type BoardCapability struct {
	At   time.Time
	Pins []PinCapability
}

func (m BoardCapability) ReceivedAt() time.Time { return m.At }
func (BoardCapability) firmataMessage()         {}

// AnalogMapping is the ordered pin-to-channel table (sysex 0x6A).
type AnalogMapping struct {
	At      time.Time
	Entries []AnalogMappingEntry
}

func (m AnalogMapping) ReceivedAt() time.Time { return m.At }
func (AnalogMapping) firmataMessage()         {}

// PinState reports a single pin's current mode and value (sysex 0x6E).
type PinState struct {
	At    time.Time
	Pin   Pin
	Mode  PinMode
	Value uint64 // width >= 7 bits, little-endian groups of 7 bits on the wire
}

func (m PinState) ReceivedAt() time.Time { return m.At }
func (PinState) firmataMessage()         {}

// SysEx is a generic system-exclusive message for sub-commands the framer
// does not otherwise decode (unrecognized sub-command, or 0x01-0x0F
// user-defined payloads).
type SysEx struct {
	At      time.Time
	Command byte // in [0, 0x7F]
	Payload []byte
}

func (m SysEx) ReceivedAt() time.Time { return m.At }
func (SysEx) firmataMessage()         {}

// I2CReply is the decoded response to an I2C read request (sysex 0x77).
type I2CReply struct {
	At       time.Time
	Address  int
	Register int
	Data     []byte
}

func (m I2CReply) ReceivedAt() time.Time { return m.At }
func (I2CReply) firmataMessage()         {}

// StringData is a device-originated string message (sysex 0x71).
type StringData struct {
	At   time.Time
	Text string
}

func (m StringData) ReceivedAt() time.Time { return m.At }
func (StringData) firmataMessage()         {}
