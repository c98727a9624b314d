// Package framer implements the byte-driven Firmata stream parser: a state
// machine that consumes one byte at a time and emits fully decoded typed
// messages, resynchronizing silently on garbage rather than failing.
//
// Grounded on ZachMassia-GoGoGadget/board.go's run/handleCallback split
// (command-byte classification driving a per-kind collector), generalized
// to the full sysex sub-decoder table and a silent-resync policy: stray
// or malformed bytes never produce an error, they just restart the
// search for the next recognizable command byte.
package framer

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeroenwalter/firmata/codec"
	"github.com/jeroenwalter/firmata/message"
)

// MinBufferSize is the minimum scratch buffer capacity for an in-progress
// sysex frame before it is treated as overflow and discarded.
const MinBufferSize = 2048

// Firmata command bytes, per the Firmata protocol.
const (
	analogMessageStart  byte = 0xE0
	analogMessageEnd    byte = 0xEF
	digitalMessageStart byte = 0x90
	digitalMessageEnd   byte = 0x9F
	protocolVersion     byte = 0xF9
	startSysex          byte = 0xF0
	endSysex            byte = 0xF7
)

// Sysex sub-command bytes.
const (
	subAnalogMappingResponse byte = 0x6A
	subCapabilityResponse    byte = 0x6C
	subPinStateResponse      byte = 0x6E
	subStringData            byte = 0x71
	subI2CReply              byte = 0x77
	subFirmwareResponse      byte = 0x79
)

type state int

const (
	stateIdle state = iota
	stateCollecting
	stateCollectingSysEx
)

type collectKind int

const (
	kindAnalog collectKind = iota
	kindDigitalPort
	kindProtocolVersion
)

// Sink receives every fully decoded message, in arrival order, from the same
// goroutine that calls Feed — it must not block for long.
type Sink func(message.Message)

// Framer is a stateful, single-goroutine byte parser. It is not safe for
// concurrent use: its state is touched only by the goroutine reading from
// the transport.
type Framer struct {
	state state

	// Collecting state.
	kind   collectKind
	cmd    byte
	needed int
	buf    []byte

	maxBuf int
	sink   Sink
	log    *logrus.Logger

	now func() time.Time
}

// New returns a Framer in the Idle state. sink is invoked synchronously from
// Feed for every decoded message. log defaults to logrus.StandardLogger()
// when nil.
func New(sink Sink, log *logrus.Logger) *Framer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Framer{
		sink:   sink,
		log:    log,
		maxBuf: MinBufferSize,
		now:    time.Now,
	}
}

// Feed processes one incoming byte, possibly emitting a decoded message to
// the sink.
func (f *Framer) Feed(b byte) {
	if b&0x80 != 0 {
		f.feedCommandByte(b)
		return
	}
	f.feedDataByte(b)
}

func (f *Framer) feedCommandByte(b byte) {
	// The sysex terminator is itself a command byte (top bit set); if we
	// are mid-sysex it ends the frame rather than resetting it.
	if f.state == stateCollectingSysEx && b == endSysex {
		f.finishSysEx()
		return
	}

	switch {
	case b >= analogMessageStart && b <= analogMessageEnd:
		f.beginCollecting(kindAnalog, b, 2)
	case b >= digitalMessageStart && b <= digitalMessageEnd:
		f.beginCollecting(kindDigitalPort, b, 2)
	case b == protocolVersion:
		f.beginCollecting(kindProtocolVersion, b, 2)
	case b == startSysex:
		f.beginSysEx()
	default:
		// Any other 0xF? value, or an unclassified command byte: abandon
		// whatever was in progress and resync silently.
		f.reset()
	}
}

func (f *Framer) feedDataByte(b byte) {
	switch f.state {
	case stateIdle:
		// Non-command bytes arriving in Idle are discarded (resync policy).
	case stateCollecting:
		f.buf = append(f.buf, b)
		if len(f.buf) >= f.needed {
			f.finishCollecting()
		}
	case stateCollectingSysEx:
		if len(f.buf) >= f.maxBuf {
			f.log.WithField("component", "framer").Warn("sysex frame exceeded scratch buffer, discarding")
			f.reset()
			return
		}
		f.buf = append(f.buf, b)
	}
}

func (f *Framer) beginCollecting(kind collectKind, cmd byte, needed int) {
	f.state = stateCollecting
	f.kind = kind
	f.cmd = cmd
	f.needed = needed
	f.buf = f.buf[:0]
}

func (f *Framer) beginSysEx() {
	f.state = stateCollectingSysEx
	f.buf = f.buf[:0]
}

func (f *Framer) reset() {
	f.state = stateIdle
	f.buf = f.buf[:0]
}

func (f *Framer) emit(m message.Message) {
	f.reset()
	if f.sink != nil {
		f.sink(m)
	}
}

func (f *Framer) finishCollecting() {
	at := f.now()
	switch f.kind {
	case kindAnalog:
		value := uint16(f.buf[0]) | uint16(f.buf[1])<<7
		f.emit(message.AnalogState{
			At:      at,
			Channel: message.Channel(f.cmd & 0x0F),
			Level:   value,
		})
	case kindDigitalPort:
		bitmap := uint8(f.buf[0]) | uint8(f.buf[1])<<7
		f.emit(message.DigitalPortState{
			At:   at,
			Port: message.Port(f.cmd & 0x0F),
			Pins: bitmap,
		})
	case kindProtocolVersion:
		f.emit(message.ProtocolVersion{
			At: at,
			Version: message.ProtocolVersionNumber{
				Major: int(f.buf[0]),
				Minor: int(f.buf[1]),
			},
		})
	}
}

// finishSysEx runs when the 0xF7 terminator is observed while
// CollectingSysEx. f.buf holds every data byte received after the 0xF0
// start byte (the sub-command byte first, then its payload).
func (f *Framer) finishSysEx() {
	at := f.now()
	if len(f.buf) == 0 {
		f.reset()
		return
	}
	sub := f.buf[0]
	payload := f.buf[1:]

	switch {
	case sub == subAnalogMappingResponse:
		f.emit(decodeAnalogMapping(payload, at))
	case sub == subCapabilityResponse:
		f.emit(decodeCapability(payload, at))
	case sub == subPinStateResponse:
		if m, ok := decodePinState(payload, at); ok {
			f.emit(m)
		} else {
			f.reset()
		}
	case sub == subStringData:
		if m, ok := decodeStringData(payload, at); ok {
			f.emit(m)
		} else {
			f.reset()
		}
	case sub == subI2CReply:
		if m, ok := decodeI2CReply(payload, at); ok {
			f.emit(m)
		} else {
			f.reset()
		}
	case sub == subFirmwareResponse:
		f.emit(decodeFirmware(payload, at))
	case sub >= 0x01 && sub <= 0x0F:
		// User-defined: raw remaining bytes, no unpacking.
		f.emit(message.SysEx{At: at, Command: sub, Payload: append([]byte(nil), payload...)})
	default:
		f.log.WithField("component", "framer").WithField("sub_command", sub).
			Warn("unrecognized sysex sub-command, surfacing as generic sysex")
		f.emit(message.SysEx{At: at, Command: sub, Payload: append([]byte(nil), payload...)})
	}
}

func decodeAnalogMapping(payload []byte, at time.Time) message.AnalogMapping {
	entries := make([]message.AnalogMappingEntry, 0, len(payload))
	for pin, v := range payload {
		if v == 0x7F {
			continue
		}
		entries = append(entries, message.AnalogMappingEntry{
			Pin:     message.Pin(pin),
			Channel: message.Channel(v),
		})
	}
	return message.AnalogMapping{At: at, Entries: entries}
}

func decodeCapability(payload []byte, at time.Time) message.BoardCapability {
	var pins []message.PinCapability
	var entries []message.PinCapabilityEntry
	for i := 0; i < len(payload); i++ {
		if payload[i] == 0x7F {
			pins = append(pins, message.PinCapability{
				Pin:     message.Pin(len(pins)),
				Entries: entries,
			})
			entries = nil
			continue
		}
		if i+1 >= len(payload) {
			break
		}
		entries = append(entries, message.PinCapabilityEntry{
			Mode:       message.PinMode(payload[i]),
			Resolution: int(payload[i+1]),
		})
		i++
	}
	return message.BoardCapability{At: at, Pins: pins}
}

func decodePinState(payload []byte, at time.Time) (message.PinState, bool) {
	if len(payload) < 3 {
		return message.PinState{}, false
	}
	pin := payload[0]
	mode := payload[1]
	var value uint64
	for k, v := range payload[2:] {
		value |= uint64(v) << (7 * uint(k))
	}
	return message.PinState{
		At:    at,
		Pin:   message.Pin(pin),
		Mode:  message.PinMode(mode),
		Value: value,
	}, true
}

func decodeStringData(payload []byte, at time.Time) (message.StringData, bool) {
	words, err := codec.Unpack14Wide(payload)
	if err != nil {
		return message.StringData{}, false
	}
	runes := make([]rune, len(words))
	for i, w := range words {
		runes[i] = rune(w)
	}
	return message.StringData{At: at, Text: string(runes)}, true
}

func decodeI2CReply(payload []byte, at time.Time) (message.I2CReply, bool) {
	if len(payload) < 4 {
		return message.I2CReply{}, false
	}
	words, err := codec.Unpack14Wide(payload)
	if err != nil || len(words) < 2 {
		return message.I2CReply{}, false
	}
	data := make([]byte, 0, len(words)-2)
	for _, w := range words[2:] {
		data = append(data, byte(w))
	}
	return message.I2CReply{
		At:       at,
		Address:  int(words[0]),
		Register: int(words[1]),
		Data:     data,
	}, true
}

func decodeFirmware(payload []byte, at time.Time) message.Firmware {
	if len(payload) < 2 {
		return message.Firmware{At: at}
	}
	major := int(payload[0])
	minor := int(payload[1])
	nameBytes, err := codec.Unpack14(payload[2:])
	name := ""
	if err == nil {
		name = string(nameBytes)
	}
	return message.Firmware{
		At: at,
		Firmware: message.FirmwareInfo{
			Major: major,
			Minor: minor,
			Name:  name,
		},
	}
}
