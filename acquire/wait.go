package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errNotReady = errors.New("not ready")

// poll calls ready until it reports true, an error, ctx is done, or
// timeout has elapsed.  The interval between calls starts at
// PollInterval and doubles up to MaxPollInterval.  A timeout of zero
// or less checks once.
func (o *Options) poll(ctx context.Context, timeout time.Duration, ready func() (bool, error)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.PollInterval
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = o.MaxPollInterval
	b.MaxElapsedTime = timeout
	var policy backoff.BackOff = b
	if timeout <= 0 {
		policy = &backoff.StopBackOff{}
	}
	err := backoff.Retry(func() error {
		ok, err := ready()
		switch {
		case err != nil:
			return backoff.Permanent(err)
		case !ok:
			return errNotReady
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if errors.Is(err, errNotReady) {
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
	return err
}
