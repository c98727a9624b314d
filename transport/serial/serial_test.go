package serial

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeroenwalter/firmata/ferrors"
)

// fakePort fakes go.bug.st/serial's documented SetReadTimeout behavior:
// Read returns (0, nil), not io.EOF, once the configured timeout elapses
// with no data available.
type fakePort struct {
	reads  [][]byte // successive Read results, consumed in order
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.reads) == 0 {
		return 0, nil // timeout: no more scripted data
	}
	next := p.reads[0]
	p.reads = p.reads[1:]
	if len(next) == 0 {
		return 0, nil
	}
	n := copy(b, next)
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestReadByteTranslatesZeroNilIntoTimeout(t *testing.T) {
	tr := New(Config{Name: "fake"})
	tr.port = &fakePort{}

	_, err := tr.ReadByte()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ferrors.Timeout))
}

func TestReadByteReturnsDataWhenAvailable(t *testing.T) {
	tr := New(Config{Name: "fake"})
	tr.port = &fakePort{reads: [][]byte{{0x42}}}

	b, err := tr.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), b)
}

func TestReadByteAfterDataResumesTimingOut(t *testing.T) {
	tr := New(Config{Name: "fake"})
	tr.port = &fakePort{reads: [][]byte{{0x01}}}

	b, err := tr.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), b)

	_, err = tr.ReadByte()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ferrors.Timeout))
}

func TestReadByteWrapsGenuineIOErrors(t *testing.T) {
	tr := New(Config{Name: "fake"})
	tr.port = &erroringPort{err: io.ErrClosedPipe}

	_, err := tr.ReadByte()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ferrors.TransportIO))
	assert.False(t, errors.Is(err, ferrors.Timeout))
}

type erroringPort struct {
	err error
}

func (p *erroringPort) Read(b []byte) (int, error)  { return 0, p.err }
func (p *erroringPort) Write(b []byte) (int, error) { return 0, p.err }
func (p *erroringPort) Close() error                { return nil }

func TestCloseClearsPort(t *testing.T) {
	tr := New(Config{Name: "fake"})
	fp := &fakePort{}
	tr.port = fp

	require.NoError(t, tr.Close())
	assert.False(t, tr.IsOpen())
	assert.True(t, fp.closed)
}
