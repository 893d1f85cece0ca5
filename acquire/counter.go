// Package acquire runs a fast counter measurement.
//
// A Counter owns a card.Device for the lifetime of a measurement.  It
// sizes the card's rings from the requested bin width and record
// length, starts the card, and repeatedly drains whole repetitions
// from the rings into a running average, while pacing the card's
// trigger so that unread repetitions are never overwritten.
//
// The loop runs either on a worker goroutine (SCHED_BACKGROUND) or
// one iteration per call of Tick (SCHED_FOREGROUND).
package acquire

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jbrzusto/fastcounter/average"
	"github.com/jbrzusto/fastcounter/buffer"
	"github.com/jbrzusto/fastcounter/card"
)

// Status is the state of a Counter.
type Status int

const (
	ST_ERROR        Status = -1 // a fatal error stopped the measurement; Configure to recover
	ST_UNCONFIGURED Status = 0  // no measurement configured
	ST_IDLE         Status = 1  // configured, not running
	ST_RUNNING      Status = 2  // acquiring
	ST_PAUSED       Status = 3  // trigger disabled, average kept
)

func (s Status) String() string {
	switch s {
	case ST_ERROR:
		return "error"
	case ST_UNCONFIGURED:
		return "unconfigured"
	case ST_IDLE:
		return "idle"
	case ST_RUNNING:
		return "running"
	case ST_PAUSED:
		return "paused"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Trace is a snapshot of the average.
type Trace struct {
	Mean        []float64     // average of every repetition, RepSamples values
	Reps        int64         // repetitions averaged
	Gates       int           // gates per repetition; 1 when not gated
	GateSamples int           // samples per gate
	BinWidth    float64       // s
	Elapsed     time.Duration // since Start, up to Stop
}

// Rows returns the mean as one row per gate.
func (t Trace) Rows() [][]float64 {
	if t.Gates <= 1 || len(t.Mean) != t.Gates*t.GateSamples {
		return [][]float64{t.Mean}
	}
	rows, err := average.Reshape(t.Mean, t.Gates)
	if err != nil {
		return [][]float64{t.Mean}
	}
	return rows
}

// BufferStatus is a snapshot of the rings for monitoring.
type BufferStatus struct {
	Pos            int64 // next unread byte of the data ring
	Len            int64 // unread bytes in the data ring
	TSPos          int64 // next unread byte of the timestamp ring
	TSLen          int64 // unread bytes in the timestamp ring
	TriggerReps    int64 // repetitions triggered since Start
	Count          int64 // repetitions averaged
	Unprocessed    int64 // TriggerReps - Count
	Stacked        int64 // pulses ever stacked; 0 unless Options.Stack
	TriggerEnabled bool
}

var closed = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Counter is a fast counter measurement on one card.
type Counter struct {
	dev  card.Device
	opts Options
	log  *zap.Logger
	m    *metrics

	mu      sync.Mutex // guards the fields below
	status  Status
	lastErr error
	sess    *session
	runCtx  context.Context
	cancel  context.CancelFunc
	exited  chan struct{} // closed when the worker returns; nil if none
	halting bool          // Pause or Stop is waiting for the loop

	tick sync.Mutex // held while the loop runs in the foreground
}

// NewCounter returns an unconfigured Counter for dev.
func NewCounter(dev card.Device, opts Options) (*Counter, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	switch {
	case opts.BufRatio <= 0:
		opts.BufRatio = 1
	case opts.BufRatio > 1:
		return nil, fmt.Errorf("acquire: buffer ratio %g is more than the whole ring", opts.BufRatio)
	}
	m, err := newMetrics(opts.Namespace, opts.Registerer)
	if err != nil {
		return nil, err
	}
	return &Counter{
		dev:    dev,
		opts:   opts,
		log:    opts.Log,
		m:      m,
		status: ST_UNCONFIGURED,
	}, nil
}

// Configure sets up a measurement with the given bin width (s),
// record length (s; per gate when gated) and number of gates, and
// returns the values actually used after rounding to what the card
// can do.  The average is discarded.  It is allowed when the Counter
// is unconfigured, idle or in error.
func (c *Counter) Configure(binWidth, recordLength float64, gates int) (float64, float64, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.halting:
		return 0, 0, 0, ErrBusy
	case c.status == ST_UNCONFIGURED, c.status == ST_IDLE, c.status == ST_ERROR:
	default:
		return 0, 0, 0, stateErr("Configure", c.status)
	}
	meas, err := newMeasurement(&c.opts, binWidth, recordLength, gates)
	if err != nil {
		return 0, 0, 0, err
	}
	s, err := c.newSession(meas)
	if err != nil {
		c.sess, c.status, c.lastErr = nil, ST_ERROR, err
		return 0, 0, 0, err
	}
	c.sess, c.status, c.lastErr = s, ST_IDLE, nil
	c.log.Info("configured",
		zap.Float64("binWidth", meas.BinWidth),
		zap.Float64("recordLength", meas.RecordLength),
		zap.Int("gates", meas.Gates),
		zap.Int("repSamples", meas.RepSamples),
		zap.Int64("repsPerBuf", meas.RepsPerBuf),
	)
	return meas.BinWidth, meas.RecordLength, meas.Pulses, nil
}

// newSession programs the card for meas.
func (c *Counter) newSession(meas *Measurement) (*session, error) {
	set := meas.cardSettings(c.opts.Card)
	if err := c.dev.Reset(); err != nil {
		return nil, deviceErr("Reset", err)
	}
	if err := c.dev.Configure(&set); err != nil {
		return nil, deviceErr("Configure", err)
	}
	s := &session{meas: meas, set: set, dbuf: c.dev.Data()}
	if s.dbuf == nil {
		return nil, deviceErr("Data", card.ErrNotConfigured)
	}
	var err error
	s.data, err = buffer.NewAssembler(buffer.View(s.dbuf), buffer.Layout{
		RepBytes:    meas.RepBytes,
		RepsPerBuf:  meas.RepsPerBuf,
		SampleBytes: meas.SampleBytes,
	})
	if err != nil {
		return nil, err
	}
	if meas.Gated {
		if s.tbuf = c.dev.Timestamps(); s.tbuf == nil {
			return nil, deviceErr("Timestamps", card.ErrNotConfigured)
		}
		if s.ts, err = buffer.NewCorrelator(buffer.View(s.tbuf), meas.Gates, meas.RepsPerBuf); err != nil {
			return nil, err
		}
	}
	s.ctl = newController(c.dev, meas.Gates, meas.RepsPerBuf, c.opts.BufRatio, c.m, c.log)
	s.restart(time.Time{}, c.opts.Stack, c.opts.StackLimit)
	s.closeDone()
	return s, nil
}

// Start starts a new run from idle, discarding any previous average,
// or resumes a paused run.
func (c *Counter) Start() error {
	c.mu.Lock()
	if c.halting {
		c.mu.Unlock()
		return ErrBusy
	}
	switch c.status {
	case ST_IDLE:
	case ST_PAUSED:
		c.mu.Unlock()
		return c.Continue()
	case ST_UNCONFIGURED:
		c.mu.Unlock()
		return ErrNotConfigured
	default:
		st := c.status
		c.mu.Unlock()
		return stateErr("Start", st)
	}
	defer c.mu.Unlock()

	s := c.sess
	s.restart(time.Now(), c.opts.Stack, c.opts.StackLimit)
	if s.meas.Gated {
		if err := c.dev.ResetTimestamps(); err != nil {
			return c.failLocked(s, deviceErr("ResetTimestamps", err))
		}
	}
	if err := c.dev.Start(s.meas.Gated); err != nil {
		return c.failLocked(s, deviceErr("Start", err))
	}
	s.ctl.enabled.Store(true)
	c.status, c.lastErr = ST_RUNNING, nil
	c.launch(s)
	c.log.Info("started", zap.Stringer("sched", c.opts.Sched), zap.Int64("repetitions", s.meas.Repetitions))
	return nil
}

// launch begins a run of the loop.  Must hold c.mu.
func (c *Counter) launch(s *session) {
	c.runCtx, c.cancel = context.WithCancel(context.Background())
	c.exited = nil
	if c.opts.Sched == SCHED_BACKGROUND {
		c.exited = make(chan struct{})
		go c.run(c.runCtx, s, c.exited)
	}
}

// halt cancels the loop and waits for it to return, leaving the
// foreground lock held.  Must not hold c.mu.
func (c *Counter) halt(cancel context.CancelFunc, exited chan struct{}) {
	if cancel != nil {
		cancel()
	}
	if exited != nil {
		<-exited
	}
	c.tick.Lock()
}

// resume undoes halt.
func (c *Counter) resume() {
	c.tick.Unlock()
	c.mu.Lock()
	c.halting = false
	c.mu.Unlock()
}

// Pause disables the trigger and suspends the loop, keeping the average.
func (c *Counter) Pause() error {
	c.mu.Lock()
	switch c.status {
	case ST_RUNNING:
	case ST_PAUSED:
		c.mu.Unlock()
		return nil
	default:
		st := c.status
		c.mu.Unlock()
		return stateErr("Pause", st)
	}
	s, cancel, exited := c.sess, c.cancel, c.exited
	c.status, c.halting = ST_PAUSED, true
	c.mu.Unlock()

	c.halt(cancel, exited)
	defer c.resume()
	if err := s.ctl.setTrigger(false); err != nil {
		c.fail(s, err)
		return err
	}
	c.log.Info("paused", zap.Int64("count", s.count()))
	return nil
}

// Continue re-enables the trigger and resumes a paused run.
func (c *Counter) Continue() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.halting:
		return ErrBusy
	case c.status == ST_PAUSED:
	case c.status == ST_UNCONFIGURED:
		return ErrNotConfigured
	default:
		return stateErr("Continue", c.status)
	}
	s := c.sess
	if err := s.ctl.setTrigger(true); err != nil {
		return c.failLocked(s, err)
	}
	c.status = ST_RUNNING
	c.launch(s)
	c.log.Info("continued", zap.Int64("count", s.count()))
	return nil
}

// Stop ends the run: the loop is stopped, then the trigger, DMA and
// card.  Stopping an idle or unconfigured Counter does nothing.  A
// Counter in error is stopped but stays in error.
func (c *Counter) Stop() error {
	c.mu.Lock()
	st := c.status
	switch {
	case st == ST_UNCONFIGURED, st == ST_IDLE, st == ST_ERROR && c.sess == nil:
		c.mu.Unlock()
		return nil
	case c.halting:
		c.mu.Unlock()
		return ErrBusy
	case st != ST_ERROR:
		c.status = ST_IDLE
	}
	s, cancel, exited := c.sess, c.cancel, c.exited
	c.cancel, c.exited, c.halting = nil, nil, true
	c.mu.Unlock()

	c.halt(cancel, exited)
	err := c.hardStop(s)
	if err != nil && st != ST_ERROR {
		c.mu.Lock()
		c.status, c.lastErr = ST_ERROR, err
		c.mu.Unlock()
	}
	c.resume()
	c.log.Info("stopped", zap.Int64("count", s.count()), zap.Error(err))
	return err
}

// hardStop disables the trigger and stops DMA and the card.  Only the
// loop or a caller that has halted it may call this.
func (c *Counter) hardStop(s *session) error {
	err := multierr.Combine(
		s.ctl.setTrigger(false),
		wrapDevice("StopDMA", c.dev.StopDMA()),
		wrapDevice("Stop", c.dev.Stop()),
	)
	s.mu.Lock()
	if s.stopped.IsZero() && !s.started.IsZero() {
		s.stopped = time.Now()
	}
	s.mu.Unlock()
	s.closeDone()
	return err
}

func wrapDevice(op string, err error) error {
	if err == nil {
		return nil
	}
	return deviceErr(op, err)
}

// fail records a fatal error from the loop and stops the card.  It
// does nothing if the run has already been stopped or replaced.
func (c *Counter) fail(s *session, err error) {
	c.mu.Lock()
	if c.sess != s || (c.status != ST_RUNNING && c.status != ST_PAUSED) {
		c.mu.Unlock()
		return
	}
	c.status, c.lastErr = ST_ERROR, err
	c.mu.Unlock()
	c.log.Error("measurement failed", zap.Error(err), zap.Int64("count", s.count()))
	if serr := c.hardStop(s); serr != nil {
		c.log.Warn("stopping card after failure", zap.Error(serr))
	}
}

// failLocked records err from a command issued while holding c.mu.
func (c *Counter) failLocked(s *session, err error) error {
	c.status, c.lastErr = ST_ERROR, err
	s.closeDone()
	c.log.Error("measurement failed", zap.Error(err))
	return err
}

// finish marks a finite measurement complete.
func (c *Counter) finish(s *session) {
	s.mu.Lock()
	if s.stopped.IsZero() {
		s.stopped = time.Now()
	}
	s.mu.Unlock()
	s.closeDone()
	c.log.Info("measurement complete", zap.Int64("count", s.count()))
}

func (c *Counter) setLastErr(s *session, err error) {
	c.mu.Lock()
	if c.sess == s {
		c.lastErr = err
	}
	c.mu.Unlock()
}

// clearTimeout forgets a timeout once data are flowing again.
func (c *Counter) clearTimeout(s *session) {
	c.mu.Lock()
	if c.sess == s && errors.Is(c.lastErr, ErrTimeout) {
		c.lastErr = nil
	}
	c.mu.Unlock()
}

// Tick runs one iteration of the loop in SCHED_FOREGROUND mode.  The
// first Tick after Start consumes whatever data have arrived without
// waiting; later ones wait up to TriggerTimeout for a trigger when
// there is nothing to consume.  It returns ErrBusy if another Tick is
// running.
func (c *Counter) Tick(ctx context.Context) error {
	if !c.tick.TryLock() {
		return ErrBusy
	}
	defer c.tick.Unlock()

	c.mu.Lock()
	s, st, runCtx := c.sess, c.status, c.runCtx
	c.mu.Unlock()
	switch {
	case st == ST_UNCONFIGURED:
		return ErrNotConfigured
	case st != ST_RUNNING:
		return stateErr("Tick", st)
	case c.opts.Sched != SCHED_FOREGROUND:
		return fmt.Errorf("%w: Tick with %s scheduling", ErrState, c.opts.Sched)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(runCtx, cancel)()

	var (
		finished bool
		err      error
	)
	if !s.initDone {
		var ready bool
		if ready, err = s.dataReady(); err == nil && ready {
			if _, err = c.pass(s); err == nil {
				s.initDone = true
				finished = s.finished()
			}
		}
	} else {
		finished, err = c.step(ctx, s)
	}
	switch {
	case finished:
		c.finish(s)
		return nil
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, ErrTimeout):
		c.setLastErr(s, err)
		return err
	}
	c.fail(s, err)
	return err
}

// GetDataTrace returns a copy of the average.  It never changes the
// measurement.
func (c *Counter) GetDataTrace() (Trace, error) {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return Trace{}, ErrNotConfigured
	}
	t := Trace{
		Gates:       s.meas.Gates,
		GateSamples: s.meas.SegmentSamples,
		BinWidth:    s.meas.BinWidth,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Reps = s.avg.Count()
	if t.Mean = s.avg.Mean(); t.Mean == nil {
		t.Mean = make([]float64, s.meas.RepSamples)
	}
	switch {
	case s.started.IsZero():
	case s.stopped.IsZero():
		t.Elapsed = time.Since(s.started)
	default:
		t.Elapsed = s.stopped.Sub(s.started)
	}
	return t, nil
}

// Status returns the status and the most recent error.
func (c *Counter) Status() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.lastErr
}

// IsGated reports whether the measurement is gated.
func (c *Counter) IsGated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return c.sess.meas.Gated
	}
	return c.opts.Card.Mode.IsGated()
}

// BinWidth is the configured bin width, or 0 when unconfigured.
func (c *Counter) BinWidth() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return 0
	}
	return c.sess.meas.BinWidth
}

// Constraints lists the bin widths the card supports.
func (c *Counter) Constraints() []float64 {
	return card.BinWidths()
}

// Measurement returns the configured geometry.
func (c *Counter) Measurement() (Measurement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return Measurement{}, ErrNotConfigured
	}
	return *c.sess.meas, nil
}

// Stacked returns the repetitions kept verbatim, oldest first, or nil
// unless Options.Stack is set.
func (c *Counter) Stacked() []buffer.Pulse {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stack == nil {
		return nil
	}
	return s.stack.Pulses()
}

// BufferStatus reads the rings' counters and the trigger counter.
func (c *Counter) BufferStatus() (BufferStatus, error) {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return BufferStatus{}, ErrNotConfigured
	}
	var (
		bs  BufferStatus
		err error
	)
	if bs.Pos, bs.Len, err = s.data.Ring().Window(); err != nil {
		return bs, deviceErr("data buffer", err)
	}
	if s.ts != nil {
		if bs.TSPos, bs.TSLen, err = s.ts.Ring().Window(); err != nil {
			return bs, deviceErr("timestamp buffer", err)
		}
	}
	if bs.TriggerReps, err = s.ctl.triggerReps(); err != nil {
		return bs, err
	}
	bs.Count = s.count()
	bs.Unprocessed = bs.TriggerReps - bs.Count
	s.mu.Lock()
	if s.stack != nil {
		bs.Stacked = s.stack.Total()
	}
	s.mu.Unlock()
	bs.TriggerEnabled = s.ctl.enabled.Load()
	return bs, nil
}

// Done is closed when the current run ends: a finite measurement is
// complete, Stop is called, or a fatal error occurs.
func (c *Counter) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return closed
	}
	return c.sess.done
}

// Close stops any run and releases the card.
func (c *Counter) Close() error {
	return multierr.Append(c.Stop(), c.dev.Close())
}
