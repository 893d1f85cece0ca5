package acquire

import (
	"errors"
	"fmt"
)

var (
	// ErrRange is a consume pass whose repetitions do not lie inside
	// the ring.  The pass is skipped.
	ErrRange = errors.New("acquire: repetitions out of range")

	// ErrOverflow means the card accepted more repetitions than its
	// ring holds, so data were lost.
	ErrOverflow = errors.New("acquire: buffer overflow")

	// ErrDevice wraps a failed card command.
	ErrDevice = errors.New("acquire: device error")

	// ErrTimeout is a bounded wait that expired.
	ErrTimeout = errors.New("acquire: timed out")

	// ErrState is an operation not allowed in the current status.
	ErrState = errors.New("acquire: operation not allowed in this state")

	ErrNotConfigured = errors.New("acquire: not configured")

	// ErrBusy is returned by Tick while another Tick is running.
	ErrBusy = errors.New("acquire: busy")
)

func deviceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDevice, op, err)
}

func stateErr(op string, st Status) error {
	return fmt.Errorf("%w: %s while %s", ErrState, op, st)
}
