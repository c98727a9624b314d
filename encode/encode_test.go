package encode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeroenwalter/firmata/ferrors"
)

func TestResetBoard(t *testing.T) {
	b, err := ResetBoard()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF}, b)
}

func TestSetDigitalPinBool(t *testing.T) {
	b, err := SetDigitalPinBool(13, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF5, 13, 1}, b)

	_, err = SetDigitalPinBool(200, true)
	assert.ErrorIs(t, err, ferrors.ArgumentRange)
}

func TestSetDigitalPinAnalogShortForm(t *testing.T) {
	b, err := SetDigitalPinAnalog(3, 170)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xE3, 0x2A, 0x01}, b)
}

func TestSetDigitalPinAnalogRejectsOutOfRangePin(t *testing.T) {
	_, err := SetDigitalPinAnalog(16, 1)
	assert.ErrorIs(t, err, ferrors.ArgumentRange)
}

// Extended-analog form: a small value is still padded to the minimum of
// three 7-bit groups.
func TestSetDigitalPinExtendedMinimumThreeGroups(t *testing.T) {
	b, err := SetDigitalPinExtended(20, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x6F, 20, 5, 0, 0, 0xF7}, b)
}

func TestSetDigitalPinExtendedLargeValue(t *testing.T) {
	b, err := SetDigitalPinExtended(20, 0x1FFFFF)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x6F, 20, 0x7F, 0x7F, 0x7F, 0xF7}, b)
}

func TestSetAnalogReportMode(t *testing.T) {
	b, err := SetAnalogReportMode(2, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC2, 1}, b)
}

func TestSetDigitalPort(t *testing.T) {
	b, err := SetDigitalPort(2, 213)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x92, 0x55, 0x01}, b)

	_, err = SetDigitalPort(1, 256)
	assert.ErrorIs(t, err, ferrors.ArgumentRange)
}

func TestSetDigitalPinMode(t *testing.T) {
	b, err := SetDigitalPinMode(9, 0x04)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF4, 9, 0x04}, b)
}

func TestRequestFirmware(t *testing.T) {
	b, err := RequestFirmware()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x79, 0xF7}, b)
}

func TestRequestBoardCapability(t *testing.T) {
	b, err := RequestBoardCapability()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x6B, 0xF7}, b)
}

func TestRequestPinState(t *testing.T) {
	b, err := RequestPinState(13)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x6D, 13, 0xF7}, b)
}

func TestConfigureServo(t *testing.T) {
	b, err := ConfigureServo(9, 544, 2400)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0xF0, 0x70, 9,
		byte(544 & 0x7F), byte((544 >> 7) & 0x7F),
		byte(2400 & 0x7F), byte((2400 >> 7) & 0x7F),
		0xF7,
	}, b)
}

func TestConfigureServoRejectsInvertedRange(t *testing.T) {
	_, err := ConfigureServo(9, 2400, 544)
	assert.ErrorIs(t, err, ferrors.ArgumentRange)
}

func TestSendStringData(t *testing.T) {
	b, err := SendStringData("Hi")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x71, 'H', 0, 'i', 0, 0xF7}, b)
}

func TestSendStringDataRejectsOutOfRangeRune(t *testing.T) {
	_, err := SendStringData(string(rune(0x4000)))
	assert.ErrorIs(t, err, ferrors.ArgumentRange)
}

func TestWriteI2C7BitAddress(t *testing.T) {
	b, err := WriteI2C(9, []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x76, 9, 0x00, 0x01, 0x00, 0xF7}, b)
}

func TestWriteI2C10BitAddress(t *testing.T) {
	b, err := WriteI2C(0x123, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0xF0), b[0])
	assert.Equal(t, byte(0x76), b[1])
	assert.Equal(t, byte(0x123&0x7F), b[2])
	assert.Equal(t, byte(0x20|((0x123>>7)&0x07)), b[3])
}

func TestReadI2COnceWithRegister(t *testing.T) {
	reg := 0x10
	b, err := ReadI2COnce(9, &reg, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x76, 9, 0x08, 0x10, 0x00, 0x02, 0x00, 0xF7}, b)
}

func TestReadI2CContinuousWithoutRegister(t *testing.T) {
	b, err := ReadI2CContinuous(9, nil, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x76, 9, 0x10, 0x04, 0x00, 0xF7}, b)
}

func TestStopI2CReading(t *testing.T) {
	b, err := StopI2CReading()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x76, 0x00, 0x18, 0xF7}, b)
}

func TestSendSysExRejectsHighBitCommand(t *testing.T) {
	_, err := SendSysEx(0x80, nil)
	assert.ErrorIs(t, err, ferrors.ArgumentRange)
}

func TestSendSysExRoundTrip(t *testing.T) {
	b, err := SendSysEx(0x01, []byte{0x02, 0x03})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x01, 0x02, 0x03, 0xF7}, b)
}

// No byte is written when an argument is out of range: the function
// returns (nil, err), never a partial sequence.
func TestInvalidArgumentProducesNoBytes(t *testing.T) {
	b, err := SetDigitalPinMode(999, 0x04)
	assert.Nil(t, b)
	assert.Error(t, err)
}
