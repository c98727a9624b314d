// Package transport defines the byte-level connection contract a Session
// drives, independent of the underlying physical link.
package transport

import "time"

// InfiniteTimeout is the sentinel value for "block with no deadline",
// used wherever a timeout field would otherwise need a magic zero or
// negative value overloaded with two meanings.
const InfiniteTimeout = time.Duration(-1)

// Transport is the byte-level connection a Session drives. Implementations
// need not be safe for concurrent Write and ReadByte calls from different
// goroutines beyond what a Session itself does (Session serializes writes
// and reads from a single goroutine).
type Transport interface {
	// Open establishes the connection. Calling Open on an already-open
	// Transport is implementation-defined; Session never does this.
	Open() error

	// Close releases the connection. Safe to call on an already-closed
	// Transport.
	Close() error

	// IsOpen reports whether the connection is currently open.
	IsOpen() bool

	// Write writes p in full or returns an error classed ferrors.TransportIO.
	Write(p []byte) (int, error)

	// ReadByte blocks for at most the Transport's configured read timeout
	// and returns the next byte, or an error (including a timeout) if none
	// arrived.
	ReadByte() (byte, error)

	// BytesToRead reports how many bytes are currently buffered and ready
	// to read without blocking.
	BytesToRead() (int, error)

	// OnBytesAvailable registers a callback invoked when new bytes may be
	// available to read. Implementations that have no such notification
	// mechanism may ignore this; Session never registers a callback, its
	// receive loop polls ReadByte instead.
	OnBytesAvailable(fn func())

	// Name reports the device name or address this Transport connects to.
	Name() string

	// BaudRate reports the configured baud rate, or 0 if not applicable.
	BaudRate() int
}
