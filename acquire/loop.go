package acquire

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jbrzusto/fastcounter/average"
	"github.com/jbrzusto/fastcounter/buffer"
	"github.com/jbrzusto/fastcounter/card"
)

// session is the state of one configured measurement.
type session struct {
	meas *Measurement
	set  card.Settings
	data *buffer.Assembler
	dbuf card.Buffer
	ts   *buffer.Correlator // nil unless gated
	tbuf card.Buffer
	ctl  *controller

	// owned by whoever runs the loop: the worker, or Tick
	initDone  bool
	rangeErrs int

	mu      sync.Mutex // guards the fields below
	avg     average.Accumulator
	stack   *buffer.Stack
	started time.Time
	stopped time.Time

	// written under the Counter's mutex
	done      chan struct{}
	closeDone func()
}

// restart empties the average for a new run.
func (s *session) restart(now time.Time, stack bool, limit int) {
	s.initDone, s.rangeErrs = false, 0
	s.mu.Lock()
	s.avg.Reset()
	s.stack = nil
	if stack {
		s.stack = buffer.NewStack(limit)
	}
	s.started, s.stopped = now, time.Time{}
	s.mu.Unlock()
	s.done = make(chan struct{})
	s.closeDone = sync.OnceFunc(func() { close(s.done) })
}

func (s *session) count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avg.Count()
}

// finished reports whether a finite measurement has all its repetitions.
func (s *session) finished() bool {
	return s.meas.Repetitions > 0 && s.count() >= s.meas.Repetitions
}

// availReps is the number of whole repetitions readable from both
// rings, and their positions.
func (s *session) availReps() (reps, pos, tsPos int64, err error) {
	pos, n, err := s.data.Ring().Window()
	if err != nil {
		return 0, 0, 0, deviceErr("data buffer", err)
	}
	reps = n / s.meas.RepBytes
	if s.ts != nil {
		var tn int64
		if tsPos, tn, err = s.ts.Ring().Window(); err != nil {
			return 0, 0, 0, deviceErr("timestamp buffer", err)
		}
		reps = buffer.Paired(reps, tn/s.ts.RepBytes())
	}
	return reps, pos, tsPos, nil
}

// dataReady reports whether at least one repetition can be read.
func (s *session) dataReady() (bool, error) {
	reps, _, _, err := s.availReps()
	return reps > 0, err
}

// consume averages every repetition readable from the rings and
// returns their bytes to the card.  It returns the number of
// repetitions consumed.
func (s *session) consume(m *metrics) (int64, error) {
	reps, pos, tsPos, err := s.availReps()
	if err != nil {
		return 0, err
	}
	if left := s.meas.Repetitions - s.count(); s.meas.Repetitions > 0 && reps > left {
		reps = left
	}
	if reps <= 0 {
		return 0, nil
	}
	blk, err := s.data.Fetch(pos, reps)
	if err != nil {
		return 0, rangeErr(err)
	}
	rows := blk.Rows()
	mean, err := average.BatchMean(rows)
	if err != nil {
		return 0, err
	}
	var edges *buffer.Edges
	if s.ts != nil {
		e, err := s.ts.Fetch(tsPos, reps)
		if err != nil {
			return 0, rangeErr(err)
		}
		edges = &e
	}
	var pulses [][]float64
	if s.stack != nil {
		if pulses, err = blk.Pulses(s.meas.Gates); err != nil {
			return 0, err
		}
	}

	// everything needed is decoded; hand the bytes back
	if err := s.dbuf.SetAvailCardLen(reps * s.meas.RepBytes); err != nil {
		return 0, deviceErr("SetAvailCardLen", err)
	}
	if s.ts != nil {
		if err := s.tbuf.SetAvailCardLen(reps * s.ts.RepBytes()); err != nil {
			return 0, deviceErr("SetAvailCardLen", err)
		}
	}

	s.mu.Lock()
	first := s.avg.Count()
	err = s.avg.Update(mean, reps)
	if err == nil && s.stack != nil {
		s.stack.Add(first, s.meas.Gates, pulses, edges)
	}
	count := s.avg.Count()
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	m.passes.Inc()
	if blk.Wrapped() {
		m.wraps.Inc()
	}
	m.reps.Add(float64(reps))
	m.bytes.Add(float64(reps * s.meas.RepBytes))
	m.count.Set(float64(count))
	return reps, nil
}

func rangeErr(err error) error {
	var re *buffer.RangeError
	if errors.As(err, &re) || errors.Is(err, buffer.ErrOutOfRange) {
		return fmt.Errorf("%w: %w", ErrRange, err)
	}
	return err
}

// pass runs one consume pass, absorbing range errors until too many
// occur in a row.  It returns the number of repetitions consumed.
func (c *Counter) pass(s *session) (int64, error) {
	n, err := s.consume(c.m)
	switch {
	case err == nil:
		s.rangeErrs = 0
		if n > 0 {
			c.clearTimeout(s)
		}
		return n, nil
	case !errors.Is(err, ErrRange):
		return 0, err
	}
	s.rangeErrs++
	c.m.rangeErrors.Inc()
	if s.rangeErrs > c.opts.MaxRangeErrors {
		return 0, fmt.Errorf("%d consecutive passes skipped: %w", s.rangeErrs, err)
	}
	c.log.Warn("skipping consume pass", zap.Error(err), zap.Int("consecutive", s.rangeErrs))
	return 0, nil
}

// step is one iteration of the loop: ask the controller, then wait
// for a trigger or consume.  It reports whether a finite measurement
// is complete.
func (c *Counter) step(ctx context.Context, s *session) (bool, error) {
	if s.finished() {
		return true, nil
	}
	count := s.count()
	d, err := s.ctl.decide(count)
	if err != nil {
		return false, err
	}
	if d.act == actWait {
		return false, s.ctl.awaitTrigger(ctx, &c.opts, count)
	}
	n, err := c.pass(s)
	switch {
	case err != nil:
		return false, err
	case n == 0 && s.rangeErrs == 0:
		// triggered, but the card has not transferred the data yet
		return false, c.opts.poll(ctx, c.opts.DataTimeout, s.dataReady)
	}
	return s.finished(), nil
}

// initial waits for the first data after Start and consumes it.
func (c *Counter) initial(ctx context.Context, s *session) error {
	err := c.opts.poll(ctx, c.opts.DataTimeout, s.dataReady)
	if err != nil {
		return fmt.Errorf("waiting for first data: %w", err)
	}
	if _, err := c.pass(s); err != nil {
		return err
	}
	s.initDone = true
	return nil
}

// run is the background worker.  It returns when ctx is cancelled,
// the measurement is complete, or an error stops the measurement.
func (c *Counter) run(ctx context.Context, s *session, exited chan struct{}) {
	defer close(exited)
	for !s.initDone {
		err := c.initial(ctx, s)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case errors.Is(err, ErrTimeout):
			c.log.Warn("no data", zap.Error(err))
			c.setLastErr(s, err)
		default:
			c.fail(s, err)
			return
		}
	}
	for ctx.Err() == nil {
		finished, err := c.step(ctx, s)
		switch {
		case finished:
			c.finish(s)
			return
		case err == nil:
		case ctx.Err() != nil:
			return
		case errors.Is(err, ErrTimeout):
			c.log.Warn("no trigger", zap.Error(err), zap.Int64("count", s.count()))
			c.setLastErr(s, err)
		default:
			c.fail(s, err)
			return
		}
	}
}
