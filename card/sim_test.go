package card

import (
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSettings(mode AcqMode, seg, gates, reps int) *Settings {
	s := &Settings{
		Channels:       1,
		Mode:           mode,
		SegmentSamples: seg,
		Gates:          gates,
	}
	s.BufBytes = s.RepBytes() * int64(reps)
	if mode.IsGated() {
		s.TSBufBytes = s.TSRepBytes() * int64(reps)
	}
	return s
}

func TestModeTable(t *testing.T) {
	require := require.New(t)

	m, err := ParseMode(" fifo_gate ")
	require.NoError(err)
	require.Equal(MODE_FIFO_GATE, m)
	require.True(m.IsFIFO())
	require.True(m.IsGated())
	require.Equal(2, m.SampleBytes())
	require.Equal(4, MODE_FIFO_AVERAGE.SampleBytes())
	require.False(MODE_STD_MULTI.IsFIFO())

	_, err = ParseMode("FIFO_BOGUS")
	require.Error(err)

	tr, err := ParseTrig("ch0")
	require.NoError(err)
	require.Equal(TRG_CH0, tr)
	require.Equal("CH0", tr.String())
}

func TestBinWidths(t *testing.T) {
	require := require.New(t)

	w := BinWidths()
	require.Len(w, NUM_TIMEBASES)
	require.InDelta(4e-9, w[0], 1e-18)
	require.InDelta(4e-9*131072, w[NUM_TIMEBASES-1], 1e-15)
}

func TestSimNotConfigured(t *testing.T) {
	sim := NewSim(nil)
	require.ErrorIs(t, sim.Start(false), ErrNotConfigured)
	_, err := sim.TriggerCount()
	require.ErrorIs(t, err, ErrNotConfigured)
	require.Nil(t, sim.Data())
}

func TestSimFireIgnoredUntilStarted(t *testing.T) {
	require := require.New(t)

	sim := NewSim(nil)
	require.NoError(sim.Configure(testSettings(MODE_FIFO_MULTI, 16, 1, 4)))
	require.Zero(sim.Fire(3))

	require.NoError(sim.Start(false))
	require.NoError(sim.DisableTrigger())
	require.Zero(sim.Fire(3))
	n, err := sim.TriggerCount()
	require.NoError(err)
	require.Zero(n)

	require.NoError(sim.EnableTrigger())
	require.Equal(2, sim.Fire(2))
	n, err = sim.TriggerCount()
	require.NoError(err)
	require.Equal(int64(2), n)
}

func TestSimWriteWrapsAndAcknowledges(t *testing.T) {
	require := require.New(t)

	sim := NewSim(func(rep int64, i int) int32 { return int32(100*rep) + int32(i) })
	set := testSettings(MODE_FIFO_MULTI, 16, 1, 4)
	require.NoError(sim.Configure(set))
	require.NoError(sim.Start(false))
	buf := sim.Data()

	require.Equal(3, sim.Fire(3))
	pos, err := buf.AvailUserPos()
	require.NoError(err)
	require.Zero(pos)
	avail, err := buf.AvailUserLen()
	require.NoError(err)
	require.Equal(3*set.RepBytes(), avail)

	require.NoError(buf.SetAvailCardLen(2 * set.RepBytes()))
	pos, err = buf.AvailUserPos()
	require.NoError(err)
	require.Equal(2*set.RepBytes(), pos)

	// reps 3 and 4 fill the last slot and wrap to the first
	require.Equal(2, sim.Fire(2))
	region := buf.Region()
	require.Equal(uint16(300), binary.LittleEndian.Uint16(region[3*set.RepBytes():]))
	require.Equal(uint16(400), binary.LittleEndian.Uint16(region[0:]))
	require.Equal(uint16(415), binary.LittleEndian.Uint16(region[30:]))

	avail, err = buf.AvailUserLen()
	require.NoError(err)
	require.Equal(3*set.RepBytes(), avail)
}

func TestSimOverrun(t *testing.T) {
	require := require.New(t)

	sim := NewSim(nil)
	require.NoError(sim.Configure(testSettings(MODE_FIFO_MULTI, 16, 1, 2)))
	require.NoError(sim.Start(false))

	require.Equal(2, sim.Fire(5))
	st := sim.Status()
	require.Equal(int64(5), st.TrigCount)
	require.Equal(int64(2), st.RepsStored)
	require.Equal(int64(3), st.Overruns)
}

func TestSimAcknowledgeTooMuch(t *testing.T) {
	require := require.New(t)

	sim := NewSim(nil)
	set := testSettings(MODE_FIFO_MULTI, 16, 1, 4)
	require.NoError(sim.Configure(set))
	require.NoError(sim.Start(false))
	sim.Fire(1)

	err := sim.Data().SetAvailCardLen(set.RepBytes() + 1)
	var cerr *Error
	require.True(errors.As(err, &cerr))
	require.Equal(uint32(ERR_VALUE), cerr.Code)
	require.Error(sim.Data().SetAvailCardLen(-1))
}

func TestSimGatedTimestamps(t *testing.T) {
	require := require.New(t)

	sim := NewSim(nil)
	set := testSettings(MODE_FIFO_GATE, 32, 3, 4)
	require.NoError(sim.Configure(set))
	require.NoError(sim.Start(true))

	require.Equal(2, sim.Fire(2))
	n, err := sim.TriggerCount()
	require.NoError(err)
	require.Equal(int64(6), n)

	ts := sim.Timestamps()
	require.NotNil(ts)
	avail, err := ts.AvailUserLen()
	require.NoError(err)
	require.Equal(2*set.TSRepBytes(), avail)

	region := ts.Region()
	for g := 0; g < 6; g++ {
		off := g * TS_BYTES_PER_GATE
		rise := binary.LittleEndian.Uint64(region[off:])
		fill := binary.LittleEndian.Uint64(region[off+8:])
		fall := binary.LittleEndian.Uint64(region[off+16:])
		require.Equal(uint64(64*g), rise)
		require.Zero(fill)
		require.Equal(rise+32, fall)
	}
}

func TestSimGatedNeedsExtraDMA(t *testing.T) {
	sim := NewSim(nil)
	require.NoError(t, sim.Configure(testSettings(MODE_FIFO_GATE, 32, 2, 4)))
	require.NoError(t, sim.Start(false))
	require.Zero(t, sim.Fire(1))
	require.Equal(t, int64(1), sim.Status().Overruns)
}

func TestSimFailOn(t *testing.T) {
	require := require.New(t)

	sim := NewSim(nil)
	require.NoError(sim.Configure(testSettings(MODE_FIFO_MULTI, 16, 1, 4)))
	sim.FailOn("TriggerCount", ERR_ABORT)

	_, err := sim.TriggerCount()
	var cerr *Error
	require.True(errors.As(err, &cerr))
	require.Equal("TriggerCount", cerr.Op)
	require.Equal(uint32(ERR_ABORT), cerr.Code)
	require.Contains(err.Error(), "0x020")

	sim.FailOn("TriggerCount", ERR_OK)
	_, err = sim.TriggerCount()
	require.NoError(err)
}

func TestSimStartTwice(t *testing.T) {
	sim := NewSim(nil)
	require.NoError(t, sim.Configure(testSettings(MODE_FIFO_MULTI, 16, 1, 4)))
	require.NoError(t, sim.Start(false))
	var cerr *Error
	require.True(t, errors.As(sim.Start(false), &cerr))
	require.Equal(t, uint32(ERR_SEQUENCE), cerr.Code)
}

func TestSimDMAFile(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "dma")
	sim := NewSim(nil)
	set := testSettings(MODE_FIFO_MULTI, 16, 1, 4)
	set.DMAFile = path
	require.NoError(sim.Configure(set))
	require.NoError(sim.Start(false))
	sim.Fire(1)

	// a second, read-only mapping sees what the card wrote
	r, err := MapRegion(path, set.BufBytes, false)
	require.NoError(err)
	require.Len(r.Bytes(), int(set.BufBytes))
	require.Equal(uint16(5), binary.LittleEndian.Uint16(r.Bytes()[10:]))
	require.NoError(r.Close())
	require.NoError(r.Close())

	require.NoError(sim.Close())
}

func TestMapRegionBadSize(t *testing.T) {
	_, err := MapRegion(filepath.Join(t.TempDir(), "x"), 0, true)
	require.Error(t, err)
}
