package card

import (
	"fmt"
	"strings"
)

// AcqMode enumerates card acquisition modes.
type AcqMode uint32

const (
	MODE_STD_SINGLE   AcqMode = iota // one trigger into on-card memory
	MODE_STD_MULTI                   // several triggered segments into on-card memory
	MODE_STD_GATE                    // gated segments into on-card memory
	MODE_FIFO_SINGLE                 // one segment per trigger, streamed
	MODE_FIFO_MULTI                  // segments streamed continuously
	MODE_FIFO_GATE                   // gated segments streamed, with timestamps
	MODE_FIFO_AVERAGE                // on-card averaged segments streamed, 32-bit samples
	NUM_MODES
)

// modeInfo is the behaviour of one acquisition mode.
type modeInfo struct {
	name        string
	register    uint32 // card mode register value
	fifo        bool   // streams through the DMA ring buffer
	gated       bool   // segments are framed by gates and timestamped
	preTrigger  bool   // pre-trigger sample count is programmed
	postTrigger bool   // post-trigger sample count is programmed
	sampleBytes int    // bytes per sample in the ring buffer
}

var modes = [NUM_MODES]modeInfo{
	MODE_STD_SINGLE:   {"STD_SINGLE", 0x00000001, false, false, false, true, 2},
	MODE_STD_MULTI:    {"STD_MULTI", 0x00000002, false, false, false, true, 2},
	MODE_STD_GATE:     {"STD_GATE", 0x00000004, false, true, true, true, 2},
	MODE_FIFO_SINGLE:  {"FIFO_SINGLE", 0x00000010, true, false, true, false, 2},
	MODE_FIFO_MULTI:   {"FIFO_MULTI", 0x00000020, true, false, false, true, 2},
	MODE_FIFO_GATE:    {"FIFO_GATE", 0x00000040, true, true, true, true, 2},
	MODE_FIFO_AVERAGE: {"FIFO_AVERAGE", 0x00200000, true, false, false, true, 4},
}

// ParseMode looks up an acquisition mode by name, e.g. "FIFO_MULTI".
func ParseMode(name string) (AcqMode, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for m, info := range modes {
		if info.name == name {
			return AcqMode(m), nil
		}
	}
	return 0, fmt.Errorf("card: unknown acquisition mode %q", name)
}

func (m AcqMode) info() modeInfo {
	if m >= NUM_MODES {
		return modeInfo{name: fmt.Sprintf("AcqMode(%d)", uint32(m))}
	}
	return modes[m]
}

func (m AcqMode) String() string        { return m.info().name }
func (m AcqMode) Register() uint32      { return m.info().register }
func (m AcqMode) IsFIFO() bool          { return m.info().fifo }
func (m AcqMode) IsGated() bool         { return m.info().gated }
func (m AcqMode) UsesPreTrigger() bool  { return m.info().preTrigger }
func (m AcqMode) UsesPostTrigger() bool { return m.info().postTrigger }
func (m AcqMode) SampleBytes() int      { return m.info().sampleBytes }

// TrigMode enumerates trigger sources.
type TrigMode uint32

const (
	TRG_EXT TrigMode = iota // external trigger input
	TRG_SW                  // software trigger
	TRG_CH0                 // level crossing on channel 0
)

var trigNames = [...]string{
	TRG_EXT: "EXT",
	TRG_SW:  "SW",
	TRG_CH0: "CH0",
}

// ParseTrig looks up a trigger mode by name.
func ParseTrig(name string) (TrigMode, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for t, n := range trigNames {
		if n == name {
			return TrigMode(t), nil
		}
	}
	return 0, fmt.Errorf("card: unknown trigger mode %q", name)
}

func (t TrigMode) String() string {
	if int(t) < len(trigNames) {
		return trigNames[t]
	}
	return fmt.Sprintf("TrigMode(%d)", uint32(t))
}
