package acquire

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jbrzusto/fastcounter/card"
)

const (
	testBin     = 4e-9
	testSamples = 1008
)

// steps produces 1 for the first four repetitions, 3 for the next
// four, then 5.
func steps(rep int64, i int) int32 {
	switch {
	case rep < 4:
		return 1
	case rep < 8:
		return 3
	}
	return 5
}

func testOptions(sched Sched) Options {
	o := DefaultOptions()
	o.Sched = sched
	o.InitBufSamples = 16 * testSamples
	o.PollInterval = time.Millisecond
	o.MaxPollInterval = 5 * time.Millisecond
	o.DataTimeout = 200 * time.Millisecond
	o.TriggerTimeout = 50 * time.Millisecond
	return o
}

func newTestCounter(t *testing.T, dev card.Device, o Options) *Counter {
	o.Log = zaptest.NewLogger(t)
	c, err := NewCounter(dev, o)
	require.NoError(t, err)
	return c
}

func configure(t *testing.T, c *Counter) {
	bw, rl, gates, err := c.Configure(testBin, testSamples*testBin, 1)
	require.NoError(t, err)
	require.InDelta(t, testBin, bw, 1e-18)
	require.InDelta(t, testSamples*testBin, rl, 1e-15)
	require.Equal(t, 1, gates)
}

func requireStatus(t *testing.T, c *Counter, want Status) error {
	t.Helper()
	st, err := c.Status()
	require.Equal(t, want, st)
	return err
}

func requireMean(t *testing.T, c *Counter, reps int64, want float64) {
	t.Helper()
	tr, err := c.GetDataTrace()
	require.NoError(t, err)
	require.Equal(t, reps, tr.Reps)
	require.Len(t, tr.Mean, testSamples)
	for _, v := range tr.Mean {
		require.InDelta(t, want, v, 1e-9)
	}
}

func TestCounterForeground(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	sim := card.NewSim(steps)
	o := testOptions(SCHED_FOREGROUND)
	o.Repetitions = 10
	c := newTestCounter(t, sim, o)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done is open before Configure")
	}
	configure(t, c)

	tr, err := c.GetDataTrace()
	require.NoError(err)
	require.Zero(tr.Reps)
	require.Len(tr.Mean, testSamples)

	require.NoError(c.Start())
	requireStatus(t, c, ST_RUNNING)
	done := c.Done()

	for _, n := range []int{4, 4, 2} {
		require.Equal(n, sim.Fire(n))
		require.NoError(c.Tick(ctx))
	}
	requireMean(t, c, 10, 2.6)

	select {
	case <-done:
	default:
		t.Fatal("Done still open after the last repetition")
	}
	requireStatus(t, c, ST_RUNNING)

	// the trace is a snapshot; reading it twice changes nothing
	a, err := c.GetDataTrace()
	require.NoError(err)
	b, err := c.GetDataTrace()
	require.NoError(err)
	require.Equal(a.Mean, b.Mean)
	require.Greater(a.Elapsed, time.Duration(0))

	require.NoError(c.Stop())
	requireStatus(t, c, ST_IDLE)
	require.False(sim.Status().Running)

	// a new run starts a new average
	require.NoError(c.Start())
	require.Equal(1, sim.Fire(1))
	require.NoError(c.Tick(ctx))
	requireMean(t, c, 1, 1)
	require.NoError(c.Close())
}

func TestCounterTickTimeout(t *testing.T) {
	ctx := context.Background()
	sim := card.NewSim(steps)
	c := newTestCounter(t, sim, testOptions(SCHED_FOREGROUND))
	configure(t, c)
	require.NoError(t, c.Start())

	// the first tick does not wait for data
	require.NoError(t, c.Tick(ctx))

	sim.Fire(1)
	require.NoError(t, c.Tick(ctx))
	err := c.Tick(ctx)
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, requireStatus(t, c, ST_RUNNING), ErrTimeout)

	sim.Fire(1)
	require.NoError(t, c.Tick(ctx))
	requireMean(t, c, 2, 1)
	// data again, so the timeout is forgotten
	require.NoError(t, requireStatus(t, c, ST_RUNNING))
	require.NoError(t, c.Stop())
}

func TestCounterBackground(t *testing.T) {
	require := require.New(t)
	sim := card.NewSim(steps)
	o := testOptions(SCHED_BACKGROUND)
	o.Repetitions = 6
	c := newTestCounter(t, sim, o)
	configure(t, c)

	require.NoError(c.Start())
	done := c.Done()
	sim.Fire(3)
	require.Eventually(func() bool {
		tr, err := c.GetDataTrace()
		return err == nil && tr.Reps == 3
	}, 2*time.Second, time.Millisecond)

	require.ErrorIs(c.Tick(context.Background()), ErrState)

	sim.Fire(3)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("measurement did not complete")
	}
	requireMean(t, c, 6, (4*1+2*3)/6.0)
	require.NoError(c.Stop())
	requireStatus(t, c, ST_IDLE)
}

func TestCounterBackgroundStop(t *testing.T) {
	sim := card.NewSim(nil)
	c := newTestCounter(t, sim, testOptions(SCHED_BACKGROUND))
	configure(t, c)

	require.NoError(t, c.Start())
	sim.Fire(2)
	require.Eventually(t, func() bool {
		bs, err := c.BufferStatus()
		return err == nil && bs.Count == 2
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())
	requireStatus(t, c, ST_IDLE)
	<-c.Done()

	tr, err := c.GetDataTrace()
	require.NoError(t, err)
	require.Equal(t, int64(2), tr.Reps)
	require.Equal(t, 5.0, tr.Mean[5])
}

func TestCounterBackgroundNoData(t *testing.T) {
	sim := card.NewSim(nil)
	o := testOptions(SCHED_BACKGROUND)
	o.DataTimeout = 20 * time.Millisecond
	o.TriggerTimeout = time.Minute
	c := newTestCounter(t, sim, o)
	configure(t, c)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool {
		st, err := c.Status()
		return st == ST_RUNNING && errors.Is(err, ErrTimeout)
	}, 2*time.Second, time.Millisecond)
	select {
	case <-c.Done():
		t.Fatal("worker gave up waiting for data")
	default:
	}

	// the card is still armed; the first trigger is averaged
	sim.Fire(1)
	require.Eventually(t, func() bool {
		tr, err := c.GetDataTrace()
		return err == nil && tr.Reps == 1
	}, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		st, err := c.Status()
		return st == ST_RUNNING && err == nil
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, c.Stop())
	requireStatus(t, c, ST_IDLE)
}

func TestCounterOverflow(t *testing.T) {
	ctx := context.Background()
	sim := card.NewSim(nil)
	o := testOptions(SCHED_FOREGROUND)
	o.InitBufSamples = 2 * testSamples
	c := newTestCounter(t, sim, o)
	configure(t, c)

	require.NoError(t, c.Start())
	require.Equal(t, 2, sim.Fire(5))
	require.NoError(t, c.Tick(ctx))
	err := c.Tick(ctx)
	require.ErrorIs(t, err, ErrOverflow)
	require.ErrorIs(t, requireStatus(t, c, ST_ERROR), ErrOverflow)
	require.False(t, sim.Status().Running)
	<-c.Done()

	require.ErrorIs(t, c.Start(), ErrState)

	// Configure recovers from the error
	configure(t, c)
	requireStatus(t, c, ST_IDLE)
}

func TestCounterDeviceError(t *testing.T) {
	ctx := context.Background()
	sim := card.NewSim(nil)
	c := newTestCounter(t, sim, testOptions(SCHED_FOREGROUND))
	configure(t, c)

	require.NoError(t, c.Start())
	sim.Fire(1)
	require.NoError(t, c.Tick(ctx))

	sim.FailOn("TriggerCount", card.ERR_ABORT)
	err := c.Tick(ctx)
	require.ErrorIs(t, err, ErrDevice)
	var ce *card.Error
	require.True(t, errors.As(err, &ce))
	require.Equal(t, uint32(card.ERR_ABORT), ce.Code)
	requireStatus(t, c, ST_ERROR)

	sim.FailOn("TriggerCount", card.ERR_OK)
	sim.FailOn("Configure", card.ERR_VALUE)
	_, _, _, err = c.Configure(testBin, testSamples*testBin, 1)
	require.ErrorIs(t, err, ErrDevice)
	requireStatus(t, c, ST_ERROR)
	_, err = c.Measurement()
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestCounterStartFails(t *testing.T) {
	sim := card.NewSim(nil)
	c := newTestCounter(t, sim, testOptions(SCHED_FOREGROUND))
	configure(t, c)

	sim.FailOn("Start", card.ERR_SEQUENCE)
	require.ErrorIs(t, c.Start(), ErrDevice)
	requireStatus(t, c, ST_ERROR)
	<-c.Done()
}

func TestCounterPauseContinue(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	sim := card.NewSim(nil)
	c := newTestCounter(t, sim, testOptions(SCHED_FOREGROUND))
	configure(t, c)

	require.NoError(c.Start())
	sim.Fire(2)
	require.NoError(c.Tick(ctx))

	require.NoError(c.Pause())
	require.NoError(c.Pause())
	requireStatus(t, c, ST_PAUSED)
	require.False(sim.Status().TrigOn)
	require.Zero(sim.Fire(3))
	require.ErrorIs(c.Tick(ctx), ErrState)

	tr, err := c.GetDataTrace()
	require.NoError(err)
	require.Equal(int64(2), tr.Reps)

	require.NoError(c.Continue())
	requireStatus(t, c, ST_RUNNING)
	require.True(sim.Status().TrigOn)
	sim.Fire(1)
	require.NoError(c.Tick(ctx))
	tr, err = c.GetDataTrace()
	require.NoError(err)
	require.Equal(int64(3), tr.Reps)

	// Start while paused continues the same average
	require.NoError(c.Pause())
	require.NoError(c.Start())
	sim.Fire(1)
	require.NoError(c.Tick(ctx))
	tr, err = c.GetDataTrace()
	require.NoError(err)
	require.Equal(int64(4), tr.Reps)

	require.NoError(c.Stop())
	require.ErrorIs(c.Continue(), ErrState)
	require.ErrorIs(c.Pause(), ErrState)
}

func TestCounterGated(t *testing.T) {
	require := require.New(t)
	sim := card.NewSim(nil)
	o := testOptions(SCHED_FOREGROUND)
	o.Card.Mode = card.MODE_FIFO_GATE
	o.Card.PreTrigSamples = 8
	o.Card.PostTrigSamples = 8
	o.InitBufSamples = 16 * 96
	o.Stack = true
	c := newTestCounter(t, sim, o)
	require.True(c.IsGated())

	bw, rl, gates, err := c.Configure(testBin, 32*testBin, 2)
	require.NoError(err)
	require.InDelta(testBin, bw, 1e-18)
	require.InDelta(48*testBin, rl, 1e-15)
	require.Equal(2, gates)

	require.NoError(c.Start())
	require.Equal(3, sim.Fire(3))
	require.NoError(c.Tick(context.Background()))

	tr, err := c.GetDataTrace()
	require.NoError(err)
	require.Equal(int64(3), tr.Reps)
	rows := tr.Rows()
	require.Len(rows, 2)
	require.Len(rows[0], 48)
	require.Len(rows[1], 48)
	require.Equal(0.0, rows[0][0])
	require.Equal(48.0, rows[1][0])

	pulses := c.Stacked()
	require.Len(pulses, 6)
	for i, p := range pulses {
		require.Equal(int64(i/2), p.Rep)
		require.Equal(i%2, p.Gate)
		require.Less(p.Rising, p.Falling)
		require.Len(p.Samples, 48)
		if i > 0 {
			require.Greater(p.Rising, pulses[i-1].Rising)
		}
	}

	bs, err := c.BufferStatus()
	require.NoError(err)
	require.Zero(bs.Len)
	require.Zero(bs.TSLen)
	require.Equal(int64(3), bs.TriggerReps)
	require.Zero(bs.Unprocessed)
	require.Equal(int64(6), bs.Stacked)
	require.True(bs.TriggerEnabled)
	require.NoError(c.Stop())
}

func TestCounterStates(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	sim := card.NewSim(nil)
	c := newTestCounter(t, sim, testOptions(SCHED_FOREGROUND))

	require.ErrorIs(c.Start(), ErrNotConfigured)
	require.ErrorIs(c.Tick(ctx), ErrNotConfigured)
	require.ErrorIs(c.Continue(), ErrNotConfigured)
	require.NoError(c.Stop())
	_, err := c.GetDataTrace()
	require.ErrorIs(err, ErrNotConfigured)
	_, err = c.BufferStatus()
	require.ErrorIs(err, ErrNotConfigured)
	require.Zero(c.BinWidth())
	require.Len(c.Constraints(), card.NUM_TIMEBASES)

	_, _, _, err = c.Configure(0, 1e-6, 1)
	require.Error(err)
	requireStatus(t, c, ST_UNCONFIGURED)

	configure(t, c)
	require.InDelta(testBin, c.BinWidth(), 1e-18)
	require.ErrorIs(c.Tick(ctx), ErrState)
	require.NoError(c.Start())
	_, _, _, err = c.Configure(testBin, testSamples*testBin, 1)
	require.ErrorIs(err, ErrState)

	m, err := c.Measurement()
	require.NoError(err)
	require.Equal(int64(16), m.RepsPerBuf)
	require.NoError(c.Stop())
}

func TestCounterStopOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dev := card.NewMockDevice(ctrl)
	buf := card.NewMockBuffer(ctrl)
	c := newTestCounter(t, dev, testOptions(SCHED_FOREGROUND))

	dev.EXPECT().Reset().Return(nil)
	dev.EXPECT().Configure(gomock.Any()).Return(nil)
	dev.EXPECT().Data().Return(buf)
	buf.EXPECT().Region().Return(make([]byte, 16*2*testSamples))
	configure(t, c)

	dev.EXPECT().Start(false).Return(nil)
	require.NoError(t, c.Start())

	gomock.InOrder(
		dev.EXPECT().DisableTrigger().Return(nil),
		dev.EXPECT().StopDMA().Return(nil),
		dev.EXPECT().Stop().Return(nil),
	)
	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())
	requireStatus(t, c, ST_IDLE)

	dev.EXPECT().Close().Return(nil)
	require.NoError(t, c.Close())
}

func TestCounterStopErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dev := card.NewMockDevice(ctrl)
	buf := card.NewMockBuffer(ctrl)
	c := newTestCounter(t, dev, testOptions(SCHED_FOREGROUND))

	dev.EXPECT().Reset().Return(nil)
	dev.EXPECT().Configure(gomock.Any()).Return(nil)
	dev.EXPECT().Data().Return(buf)
	buf.EXPECT().Region().Return(make([]byte, 16*2*testSamples))
	configure(t, c)
	dev.EXPECT().Start(false).Return(nil)
	require.NoError(t, c.Start())

	dev.EXPECT().DisableTrigger().Return(errTest)
	dev.EXPECT().StopDMA().Return(nil)
	dev.EXPECT().Stop().Return(&card.Error{Op: "Stop", Code: card.ERR_SEQUENCE})
	err := c.Stop()
	require.ErrorIs(t, err, ErrDevice)
	require.ErrorIs(t, err, errTest)
	var ce *card.Error
	require.True(t, errors.As(err, &ce))
	requireStatus(t, c, ST_ERROR)
}

func TestCounterRangeErrors(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dev := card.NewMockDevice(ctrl)
	buf := card.NewMockBuffer(ctrl)
	o := testOptions(SCHED_FOREGROUND)
	o.MaxRangeErrors = 1
	c := newTestCounter(t, dev, o)

	dev.EXPECT().Reset().Return(nil)
	dev.EXPECT().Configure(gomock.Any()).Return(nil)
	dev.EXPECT().Data().Return(buf)
	buf.EXPECT().Region().Return(make([]byte, 16*2*testSamples))
	configure(t, c)
	dev.EXPECT().Start(false).Return(nil)
	require.NoError(t, c.Start())

	// a window that does not start on a repetition boundary
	buf.EXPECT().AvailUserPos().Return(int64(3), nil).AnyTimes()
	buf.EXPECT().AvailUserLen().Return(int64(2*2*testSamples), nil).AnyTimes()
	dev.EXPECT().TriggerCount().Return(int64(2), nil).AnyTimes()

	require.NoError(t, c.Tick(ctx))
	requireStatus(t, c, ST_RUNNING)

	dev.EXPECT().DisableTrigger().Return(nil)
	dev.EXPECT().StopDMA().Return(nil)
	dev.EXPECT().Stop().Return(nil)
	err := c.Tick(ctx)
	require.ErrorIs(t, err, ErrRange)
	require.ErrorIs(t, requireStatus(t, c, ST_ERROR), ErrRange)
	require.Equal(t, 2.0, testutil.ToFloat64(c.m.rangeErrors))
}

func TestCounterBufRatio(t *testing.T) {
	sim := card.NewSim(nil)
	o := testOptions(SCHED_FOREGROUND)
	o.BufRatio = 1.5
	_, err := NewCounter(sim, o)
	require.Error(t, err)

	o.BufRatio = 0
	c := newTestCounter(t, sim, o)
	require.Equal(t, 1.0, c.opts.BufRatio)
}

func TestCounterMetrics(t *testing.T) {
	require := require.New(t)
	reg := prometheus.NewRegistry()
	o := testOptions(SCHED_FOREGROUND)
	o.Registerer = reg
	sim := card.NewSim(nil)
	c := newTestCounter(t, sim, o)
	configure(t, c)

	require.NoError(c.Start())
	sim.Fire(3)
	require.NoError(c.Tick(context.Background()))
	require.Equal(3.0, testutil.ToFloat64(c.m.reps))
	require.Equal(float64(3*2*testSamples), testutil.ToFloat64(c.m.bytes))
	require.Equal(1.0, testutil.ToFloat64(c.m.passes))
	require.Equal(3.0, testutil.ToFloat64(c.m.count))
	require.Zero(testutil.ToFloat64(c.m.wraps))

	// reps 3 to 17 run past the end of the 16 rep ring
	require.Equal(15, sim.Fire(15))
	require.NoError(c.Tick(context.Background()))
	require.Equal(18.0, testutil.ToFloat64(c.m.reps))
	require.Equal(1.0, testutil.ToFloat64(c.m.wraps))

	families, err := reg.Gather()
	require.NoError(err)
	require.NotEmpty(families)

	// the same names cannot be registered twice
	_, err = NewCounter(sim, o)
	require.Error(err)
	require.NoError(c.Stop())
}
