// Package discover probes candidate serial devices at a sequence of baud
// rates to find one running Firmata, returning a ready Session.
//
// Grounded on ZachMassia-GoGoGadget/gogogadget.go's package-level
// convenience constructor pattern (a thin entry point wrapping board
// construction), generalized into a full multi-device/multi-baud probe
// loop; backoff pacing per candidate attempt is new ambient plumbing using
// github.com/cenkalti/backoff/v4, mirroring the retry dependency found in
// dividat-driver's manifest.
package discover

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	goserial "go.bug.st/serial"

	"github.com/jeroenwalter/firmata/ferrors"
	"github.com/jeroenwalter/firmata/session"
	"github.com/jeroenwalter/firmata/transport"
	serialtransport "github.com/jeroenwalter/firmata/transport/serial"
)

// DefaultBaudRates is tried first for every candidate device.
var DefaultBaudRates = []int{57600, 115200, 9600}

// FallbackBaudRates is tried after DefaultBaudRates is exhausted.
var FallbackBaudRates = []int{28800, 14400, 38400, 31250, 4800, 2400}

// Predicate reports whether s is a live Firmata session on the probed
// device. The default predicate requests firmware and checks major
// version >= 2.
type Predicate func(ctx context.Context, s *session.Session) bool

// DefaultPredicate requests firmware and accepts major version >= 2.
func DefaultPredicate(ctx context.Context, s *session.Session) bool {
	fw, err := s.GetFirmware(ctx)
	return err == nil && fw.Firmware.Major >= 2
}

// Options configures a probe run. Zero values are defaulted by Find.
type Options struct {
	BaudRates       []int // defaults to append(DefaultBaudRates, FallbackBaudRates...)
	AttemptTimeout  time.Duration // defaults to 2s
	StartupDelay    time.Duration // defaults to 0 (no post-open sleep)
	Predicate       Predicate     // defaults to DefaultPredicate
	OpenTransport   func(device string, baud int) transport.Transport
	Logger          *logrus.Logger
}

func (o Options) withDefaults() Options {
	if len(o.BaudRates) == 0 {
		o.BaudRates = append(append([]int{}, DefaultBaudRates...), FallbackBaudRates...)
	}
	if o.AttemptTimeout == 0 {
		o.AttemptTimeout = 2 * time.Second
	}
	if o.Predicate == nil {
		o.Predicate = DefaultPredicate
	}
	if o.OpenTransport == nil {
		o.OpenTransport = func(device string, baud int) transport.Transport {
			return serialtransport.New(serialtransport.Config{Name: device, BaudRate: baud})
		}
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// ListCandidateDevices enumerates serial ports that look like they might
// carry an Arduino-class device: go.bug.st/serial's platform-portable
// enumeration, post-filtered on POSIX to prefer /dev/ttyS*, /dev/ttyUSB*
// and /dev/ttyACM*, falling back to any other /dev/tty* that isn't a
// console device (ttyC*, or bare "tty").
func ListCandidateDevices() ([]string, error) {
	all, err := goserial.GetPortsList()
	if err != nil {
		return nil, ferrors.Wrap(ferrors.TransportIO, "discover.ListCandidateDevices", err)
	}

	var preferred, fallback []string
	for _, name := range all {
		switch {
		case !strings.HasPrefix(name, "/dev/tty"):
			// Non-POSIX path (e.g. a Windows COM name): pass through
			// unfiltered, the library already did the platform-specific
			// enumeration.
			preferred = append(preferred, name)
		case strings.HasPrefix(name, "/dev/ttyS"),
			strings.HasPrefix(name, "/dev/ttyUSB"),
			strings.HasPrefix(name, "/dev/ttyACM"):
			preferred = append(preferred, name)
		case strings.HasPrefix(name, "/dev/ttyC"), name == "/dev/tty":
			// Console devices, never an Arduino-class board.
		default:
			fallback = append(fallback, name)
		}
	}
	if len(preferred) > 0 {
		return preferred, nil
	}
	return fallback, nil
}

// Find probes devices in reverse enumeration order (kept for fidelity to
// the ordering the original discovery code observably produced) against
// every baud rate in opts.BaudRates, returning the first Session whose
// predicate succeeds. Ownership of the returned Session's Transport
// transfers to the caller.
func Find(ctx context.Context, devices []string, opts Options) (*session.Session, error) {
	opts = opts.withDefaults()

	for i := len(devices) - 1; i >= 0; i-- {
		device := devices[i]

	baudLoop:
		for _, baud := range opts.BaudRates {
			t := opts.OpenTransport(device, baud)

			s, err := probe(ctx, t, opts)
			switch {
			case err == nil:
				return s, nil
			case ferrors.CodeOf(err) == ferrors.Unauthorized:
				opts.Logger.WithField("device", device).Warn("device unavailable, skipping")
				break baudLoop
			case ferrors.CodeOf(err) == ferrors.Timeout:
				continue
			default:
				opts.Logger.WithField("device", device).WithField("baud", baud).
					WithError(err).Debug("probe failed, trying next baud rate")
				continue
			}
		}
	}

	return nil, ferrors.New(ferrors.Timeout, "discover.Find", "no Firmata device found")
}

// probe constructs a Session around t (which opens t), optionally waits the
// startup delay, and runs the predicate, disposing the Session/Transport
// unless the predicate succeeds.
func probe(ctx context.Context, t transport.Transport, opts Options) (*session.Session, error) {
	var sess *session.Session

	op := func() error {
		s, err := session.Connect(t, session.Config{
			Timeout: opts.AttemptTimeout,
			Logger:  opts.Logger,
		})
		if err != nil && ferrors.CodeOf(err) == ferrors.Unauthorized {
			// Retrying won't change who holds the port; let Retry give up.
			return backoff.Permanent(err)
		}
		sess = s
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = opts.AttemptTimeout
	if err := backoff.Retry(op, b); err != nil {
		if ferrors.CodeOf(err) == ferrors.Unauthorized {
			return nil, err
		}
		return nil, ferrors.Wrap(ferrors.TransportIO, "discover.probe", err)
	}

	if opts.StartupDelay > 0 {
		time.Sleep(opts.StartupDelay)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, opts.AttemptTimeout)
	defer cancel()

	if opts.Predicate(attemptCtx, sess) {
		return sess, nil
	}

	_ = sess.Dispose()
	if attemptCtx.Err() != nil {
		return nil, ferrors.New(ferrors.Timeout, "discover.probe", "predicate timed out")
	}
	return nil, ferrors.New(ferrors.Unsupported, "discover.probe", "predicate rejected device")
}
