// Interface to a streaming digitizer card (fast counter).
//
// The acquisition engine never talks to the vendor driver directly;
// it sees the card through the Device interface defined here, which
// exposes the handful of commands needed while streaming:
//
// - card commands: reset, start (optionally with the extra DMA
// channel used for timestamps), stop, enable/disable trigger, start
// and stop DMA.
//
// - trigger counter: the number of trigger events the card has
// detected since it was started.  In gated modes every gate is a
// trigger event, so one repetition accounts for Gates events.
//
// - buffer counters: the card DMAs samples into a host ring buffer
// and reports where the next unread byte is (AvailUserPos) and how
// many bytes can be read from there (AvailUserLen).  The host hands
// consumed bytes back with SetAvailCardLen so the card can reuse
// them.  Gated modes have a second, parallel ring holding one
// timestamp record per gate.
//
// Register level programming (clock, input range, trigger level) is
// done once per measurement by Device.Configure from a Settings
// value; see mode.go for the acquisition modes.
package card

import (
	"errors"
	"fmt"
)

const (
	MAX_SAMPLE_RATE      = 250E6                               // Fastest ADC sampling rate, Hz
	MIN_SAMPLE_PERIOD    = 1.0 / MAX_SAMPLE_RATE               // Shortest bin width, s
	NUM_TIMEBASES        = 18                                  // Number of power-of-2 dividers of the sample clock
	SEGMENT_ALIGNMENT    = 16                                  // Ungated segment sizes are multiples of this many samples
	GATE_END_ALIGNMENT   = 16                                  // Gate lengths are rounded up to multiples of this many samples
	TS_VALUE_BYTES       = 8                                   // Timestamps are 64-bit counter values
	TS_VALUES_PER_GATE   = 4                                   // rising edge, filler, falling edge, filler
	TS_BYTES_PER_GATE    = TS_VALUE_BYTES * TS_VALUES_PER_GATE // Bytes of timestamp record per gate
	PAGE_SIZE            = 4096                                // DMA buffers are page aligned
	DEFAULT_NOTIFY_BYTES = 4096                                // Default data notify size
	DEFAULT_TS_NOTIFY    = 2048                                // Default timestamp notify size
	ERR_OK               = 0x000                               // Driver error code for success
	ERR_SEQUENCE         = 0x107                               // Command issued in the wrong card state
	ERR_VALUE            = 0x109                               // Register value out of range
	ERR_ABORT            = 0x20                                // Card aborted the transfer
	ERR_OVERRUN          = 0x30                                // FIFO overrun, data lost on the card
)

// Error is a card command that failed with a driver error code.
type Error struct {
	Op   string // command that failed
	Code uint32 // driver error code
}

func (e *Error) Error() string {
	return fmt.Sprintf("card: %s failed with error code 0x%03x", e.Op, e.Code)
}

// ErrNotConfigured is returned by commands issued before Configure.
var ErrNotConfigured = errors.New("card: not configured")

//go:generate mockgen -package=card -destination=mock_device.go -self_package=github.com/jbrzusto/fastcounter/card github.com/jbrzusto/fastcounter/card Buffer,Device

// Buffer is a DMA ring buffer filled by the card.
type Buffer interface {
	// Region is the memory the card writes into.  It is only
	// borrowed by callers and must be treated as read-only.
	Region() []byte

	// AvailUserPos is the byte offset in Region of the next unread byte.
	AvailUserPos() (int64, error)

	// AvailUserLen is the number of bytes readable from AvailUserPos,
	// possibly wrapping around the end of Region.
	AvailUserLen() (int64, error)

	// SetAvailCardLen returns n consumed bytes to the card.
	SetAvailCardLen(n int64) error
}

// Device is the command interface of a digitizer card.
type Device interface {
	// Configure programs the registers and allocates the DMA buffers.
	Configure(s *Settings) error
	Reset() error
	Start(extraDMA bool) error
	Stop() error
	EnableTrigger() error
	DisableTrigger() error
	StartDMA() error
	StopDMA() error
	ResetTimestamps() error

	// TriggerCount is the number of trigger events since Start;
	// it never decreases while the card is running.
	TriggerCount() (int64, error)

	// Data is the sample ring buffer.
	Data() Buffer

	// Timestamps is the timestamp ring buffer; nil unless the card
	// is configured for a gated mode.
	Timestamps() Buffer

	Close() error
}

// Settings holds everything programmed into the card for one measurement.
type Settings struct {
	RangeMV         int      `mapstructure:"range_mv"`          // analog input range, mV
	OffsetMV        int      `mapstructure:"offset_mv"`         // analog input offset, mV
	Termination     string   `mapstructure:"termination"`       // "50Ohm" or "1MOhm"
	Coupling        string   `mapstructure:"coupling"`          // "DC" or "AC"
	Channels        int      `mapstructure:"channels"`          // number of enabled channels
	ModeName        string   `mapstructure:"acq_mode"`          // acquisition mode name; see ParseMode
	Mode            AcqMode  `mapstructure:"-"`                 // parsed acquisition mode
	HWAverages      int      `mapstructure:"hw_averages"`       // on-card averages (FIFO_AVERAGE)
	PreTrigSamples  int      `mapstructure:"pre_trig_samples"`  // samples kept before trigger / gate start
	PostTrigSamples int      `mapstructure:"post_trig_samples"` // samples after trigger / gate end
	SegmentSamples  int      `mapstructure:"-"`                 // samples per segment (per gate when gated)
	MemSamples      int64    `mapstructure:"-"`                 // on-card memory used by STD modes
	Loops           int64    `mapstructure:"-"`                 // FIFO loops; 0 runs until stopped
	Gates           int      `mapstructure:"-"`                 // gates per repetition; 1 when not gated
	SampleRateHz    float64  `mapstructure:"-"`                 // sampling clock
	RefClockHz      float64  `mapstructure:"ref_clock_hz"`      // external reference clock
	TrigName        string   `mapstructure:"trig_mode"`         // trigger mode name; see ParseTrig
	Trig            TrigMode `mapstructure:"-"`                 // parsed trigger mode
	TrigLevelMV     int      `mapstructure:"trig_level_mv"`     // trigger level, mV
	BufBytes        int64    `mapstructure:"-"`                 // data ring buffer size
	NotifyBytes     int64    `mapstructure:"notify_bytes"`      // data notify size
	TSBufBytes      int64    `mapstructure:"-"`                 // timestamp ring buffer size
	TSNotifyBytes   int64    `mapstructure:"ts_notify_bytes"`   // timestamp notify size
	DMAFile         string   `mapstructure:"dma_file"`          // if set, back DMA memory with this file
}

// Parse fills Mode and Trig from ModeName and TrigName.
func (s *Settings) Parse() (err error) {
	if s.Mode, err = ParseMode(s.ModeName); err != nil {
		return err
	}
	s.Trig, err = ParseTrig(s.TrigName)
	return err
}

// RepSamples is the number of samples in one repetition.
func (s *Settings) RepSamples() int {
	if s.Mode.IsGated() {
		return s.SegmentSamples * s.Gates
	}
	return s.SegmentSamples
}

// RepBytes is the number of bytes in one repetition.
func (s *Settings) RepBytes() int64 {
	return int64(s.RepSamples()) * int64(s.Mode.SampleBytes())
}

// TSRepBytes is the number of timestamp bytes written per repetition.
func (s *Settings) TSRepBytes() int64 {
	return int64(TS_BYTES_PER_GATE * s.Gates)
}

// BinWidths lists the bin widths the sample clock can produce, shortest first.
func BinWidths() []float64 {
	widths := make([]float64, NUM_TIMEBASES)
	for i := range widths {
		widths[i] = float64(uint64(1)<<uint(i)) / MAX_SAMPLE_RATE
	}
	return widths
}
