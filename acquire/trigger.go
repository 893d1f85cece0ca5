package acquire

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jbrzusto/fastcounter/card"
)

// action is what the loop does next.
type action int

const (
	actWait     action = iota // nothing to consume; wait for a trigger
	actConsume                // consume with the trigger enabled
	actThrottle               // consume with the trigger disabled
)

func (a action) String() string {
	switch a {
	case actWait:
		return "wait"
	case actConsume:
		return "consume"
	case actThrottle:
		return "throttle"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// decision is the outcome of one controller step.
type decision struct {
	act         action
	trigReps    int64 // whole repetitions triggered since Start
	unprocessed int64 // triggered but not yet consumed
}

// controller paces the card's trigger so that no more repetitions
// are triggered than the ring can hold.
type controller struct {
	dev        card.Device
	gates      int64
	repsPerBuf int64
	ratio      float64
	enabled    atomic.Bool // trigger state as last commanded
	m          *metrics
	log        *zap.Logger
	throttled  *rate.Limiter // limits throttle messages
}

func newController(dev card.Device, gates int, repsPerBuf int64, ratio float64, m *metrics, log *zap.Logger) *controller {
	if gates < 1 {
		gates = 1
	}
	return &controller{
		dev:        dev,
		gates:      int64(gates),
		repsPerBuf: repsPerBuf,
		ratio:      ratio,
		m:          m,
		log:        log,
		throttled:  rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// triggerReps reads the number of whole repetitions triggered.
func (c *controller) triggerReps() (int64, error) {
	n, err := c.dev.TriggerCount()
	if err != nil {
		return 0, deviceErr("TriggerCount", err)
	}
	return n / c.gates, nil
}

// decide compares the repetitions triggered with count, the number
// consumed, and sets the trigger accordingly.
func (c *controller) decide(count int64) (decision, error) {
	trigReps, err := c.triggerReps()
	if err != nil {
		return decision{}, err
	}
	d := decision{trigReps: trigReps, unprocessed: trigReps - count}
	c.m.unprocessed.Set(float64(d.unprocessed))
	switch {
	case d.unprocessed > c.repsPerBuf:
		return d, fmt.Errorf("%w: %d repetitions unprocessed, ring holds %d", ErrOverflow, d.unprocessed, c.repsPerBuf)
	case d.trigReps == 0 || d.unprocessed <= 0:
		d.act = actWait
		err = c.setTrigger(true)
	case float64(d.unprocessed) < c.ratio*float64(c.repsPerBuf):
		d.act = actConsume
		err = c.setTrigger(true)
	default:
		d.act = actThrottle
		if c.throttled.Allow() {
			c.log.Debug("throttling trigger",
				zap.Int64("unprocessed", d.unprocessed),
				zap.Int64("repsPerBuf", c.repsPerBuf),
			)
		}
		err = c.setTrigger(false)
	}
	return d, err
}

// setTrigger enables or disables the trigger, doing nothing if it is
// already in that state.
func (c *controller) setTrigger(on bool) error {
	if c.enabled.Load() == on {
		return nil
	}
	if on {
		if err := c.dev.EnableTrigger(); err != nil {
			return deviceErr("EnableTrigger", err)
		}
		c.m.toggles.WithLabelValues("enabled").Inc()
	} else {
		if err := c.dev.DisableTrigger(); err != nil {
			return deviceErr("DisableTrigger", err)
		}
		c.m.toggles.WithLabelValues("disabled").Inc()
	}
	c.enabled.Store(on)
	return nil
}

// awaitTrigger waits until more than count repetitions have been
// triggered.
func (c *controller) awaitTrigger(ctx context.Context, o *Options, count int64) error {
	return o.poll(ctx, o.TriggerTimeout, func() (bool, error) {
		n, err := c.triggerReps()
		return n > count, err
	})
}
