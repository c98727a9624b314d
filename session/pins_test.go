package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeroenwalter/firmata/ferrors"
	"github.com/jeroenwalter/firmata/message"
)

func newTestPins(t *testing.T) (*Pins, *Session, *pipeTransport) {
	t.Helper()
	s, pt := newTestSession(t)

	go func() {
		time.Sleep(5 * time.Millisecond)
		// Capability response: pin index 0 supports Digital In/Out, pin
		// index 1 supports AnalogInput only (pin index is positional, per
		// the capability wire format, not the device's silkscreen number).
		pt.deviceSends([]byte{
			0xF0, 0x6C,
			byte(message.ModeDigitalInput), 1, byte(message.ModeDigitalOutput), 1, 0x7F,
			byte(message.ModeAnalogInput), 10, 0x7F,
			0xF7,
		})
	}()
	go func() {
		time.Sleep(10 * time.Millisecond)
		// Analog mapping: pin index 0 has no analog channel, pin index 1
		// maps to channel 0.
		pt.deviceSends([]byte{
			0xF0, 0x6A,
			0x7F, 0x00,
			0xF7,
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pins, err := NewPins(ctx, s)
	require.NoError(t, err)
	return pins, s, pt
}

func TestSetModeRejectsUnsupportedMode(t *testing.T) {
	pins, _, _ := newTestPins(t)
	err := pins.SetMode(0, message.ModeServoControl)
	assert.ErrorIs(t, err, ferrors.Unsupported)
}

func TestSetModeAcceptsSupportedMode(t *testing.T) {
	pins, _, pt := newTestPins(t)
	pt.lastSent() // drain the capability/analog-mapping requests NewPins wrote
	require.NoError(t, pins.SetMode(0, message.ModeDigitalOutput))
	assert.Equal(t, []byte{0xF4, 0, byte(message.ModeDigitalOutput)}, pt.lastSent())
}

func TestReportBeforeSetModeIsUnsupported(t *testing.T) {
	pins, _, _ := newTestPins(t)
	err := pins.Report(0, true)
	assert.ErrorIs(t, err, ferrors.Unsupported)
}

func TestReportAnalogUsesMappedChannel(t *testing.T) {
	pins, _, pt := newTestPins(t)
	require.NoError(t, pins.SetMode(1, message.ModeAnalogInput))
	pt.lastSent() // drain the SetMode write
	require.NoError(t, pins.Report(1, true))
	assert.Equal(t, []byte{0xC0, 1}, pt.lastSent())
}

func TestSetModeOutOfBoardRange(t *testing.T) {
	pins, _, _ := newTestPins(t)
	err := pins.SetMode(99, message.ModeDigitalOutput)
	assert.ErrorIs(t, err, ferrors.ArgumentRange)
}
