package acquire

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jbrzusto/fastcounter/card"
)

// Sched selects who drives the acquisition loop.
type Sched int

const (
	SCHED_BACKGROUND Sched = iota // a worker goroutine runs from Start to Stop
	SCHED_FOREGROUND              // the caller calls Tick periodically
)

var schedNames = [...]string{
	SCHED_BACKGROUND: "background",
	SCHED_FOREGROUND: "foreground",
}

// ParseSched looks up a scheduling mode by name.
func ParseSched(name string) (Sched, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range schedNames {
		if n == name {
			return Sched(s), nil
		}
	}
	return 0, fmt.Errorf("acquire: unknown scheduling mode %q", name)
}

func (s Sched) String() string {
	if s >= 0 && int(s) < len(schedNames) {
		return schedNames[s]
	}
	return fmt.Sprintf("Sched(%d)", int(s))
}

// Options configures a Counter.  Fields tagged for mapstructure are
// read from the "measurement" section of the configuration.
type Options struct {
	Card            card.Settings         `mapstructure:"-"`                 // base card settings; sizes are filled in by Configure
	Repetitions     int64                 `mapstructure:"repetitions"`       // repetitions to acquire; 0 runs until stopped
	InitBufSamples  int64                 `mapstructure:"init_buf_samples"`  // samples the data ring should hold
	MaxRepsPerBuf   int64                 `mapstructure:"max_reps_per_buf"`  // upper limit of repetitions in the ring
	BufRatio        float64               `mapstructure:"buf_ratio"`         // fraction of the ring, in (0, 1], that may fill before the trigger is disabled
	DoubleGate      bool                  `mapstructure:"double_gate"`       // acquire two gates per pulse
	Stack           bool                  `mapstructure:"stack"`             // keep every repetition verbatim
	StackLimit      int                   `mapstructure:"stack_limit"`       // most pulses kept; 0 keeps all
	Sched           Sched                 `mapstructure:"-"`                 // who drives the loop
	PollInterval    time.Duration         `mapstructure:"poll_interval"`     // first interval of a bounded wait
	MaxPollInterval time.Duration         `mapstructure:"max_poll_interval"` // longest interval of a bounded wait
	DataTimeout     time.Duration         `mapstructure:"data_timeout"`      // wait for the first data after Start
	TriggerTimeout  time.Duration         `mapstructure:"trigger_timeout"`   // wait for a trigger while running
	MaxRangeErrors  int                   `mapstructure:"max_range_errors"`  // consecutive skipped passes before giving up
	Namespace       string                `mapstructure:"namespace"`         // metrics namespace
	Registerer      prometheus.Registerer `mapstructure:"-"`                 // where metrics are registered; may be nil
	Log             *zap.Logger           `mapstructure:"-"`                 // may be nil
}

// DefaultOptions returns options for an unlimited FIFO_MULTI
// measurement driven by a worker goroutine.
func DefaultOptions() Options {
	return Options{
		Card: card.Settings{
			RangeMV:        1000,
			Termination:    "50Ohm",
			Coupling:       "DC",
			Channels:       1,
			ModeName:       "FIFO_MULTI",
			Mode:           card.MODE_FIFO_MULTI,
			HWAverages:     1,
			PreTrigSamples: 16,
			RefClockHz:     10e6,
			TrigName:       "EXT",
			Trig:           card.TRG_EXT,
			TrigLevelMV:    1000,
			NotifyBytes:    card.DEFAULT_NOTIFY_BYTES,
			TSNotifyBytes:  card.DEFAULT_TS_NOTIFY,
		},
		InitBufSamples:  1 << 24,
		MaxRepsPerBuf:   10000,
		BufRatio:        1,
		Sched:           SCHED_BACKGROUND,
		PollInterval:    time.Millisecond,
		MaxPollInterval: 10 * time.Millisecond,
		DataTimeout:     10 * time.Second,
		TriggerTimeout:  10 * time.Second,
		MaxRangeErrors:  10,
		Namespace:       "fastcounter",
	}
}

// Measurement is the geometry of one configured measurement, after
// rounding to what the card can do.
type Measurement struct {
	BinWidth       float64 // actual bin width, s
	RecordLength   float64 // actual record length, s; per gate when gated
	SampleRateHz   float64
	Gated          bool
	Pulses         int   // gates requested
	Gates          int   // gates per repetition; twice Pulses with double gates
	GateSamples    int   // gate length rounded to the card's alignment
	SegmentSamples int   // samples per gate, or per repetition when not gated
	RepSamples     int   // samples per repetition
	SampleBytes    int   // bytes per sample
	RepBytes       int64 // bytes per repetition
	RepsPerBuf     int64 // repetitions the data ring holds
	BufBytes       int64 // data ring size
	TSBufBytes     int64 // timestamp ring size; 0 when not gated
	Repetitions    int64 // repetitions to acquire; 0 for unlimited
}

// ceilDiv is ceil(a/b), ignoring rounding error in the quotient.
func ceilDiv(a, b float64) int64 {
	q := a / b
	if r := math.Round(q); math.Abs(q-r) <= 1e-9*math.Max(1, math.Abs(q)) {
		return int64(r)
	}
	return int64(math.Ceil(q))
}

// roundUp rounds n up to a multiple of m.
func roundUp(n, m int64) int64 {
	return (n + m - 1) / m * m
}

// newMeasurement computes the geometry for the requested bin width,
// record length and gate count.
func newMeasurement(o *Options, binWidth, recordLength float64, pulses int) (*Measurement, error) {
	if !(binWidth > 0) || !(recordLength > 0) || math.IsInf(recordLength, 0) {
		return nil, fmt.Errorf("acquire: bad bin width %g or record length %g", binWidth, recordLength)
	}
	mode := o.Card.Mode
	m := &Measurement{
		Gated:       mode.IsGated(),
		SampleBytes: mode.SampleBytes(),
		Repetitions: o.Repetitions,
	}
	rate := ceilDiv(1, binWidth)
	if float64(rate) > card.MAX_SAMPLE_RATE {
		return nil, fmt.Errorf("acquire: bin width %g is shorter than %g", binWidth, card.MIN_SAMPLE_PERIOD)
	}
	m.SampleRateHz = float64(rate)
	m.BinWidth = 1 / m.SampleRateHz

	channels := int64(o.Card.Channels)
	if channels < 1 {
		channels = 1
	}
	if m.Gated {
		if pulses < 1 {
			return nil, fmt.Errorf("acquire: gated mode needs at least one gate, got %d", pulses)
		}
		m.Pulses, m.Gates = pulses, pulses
		if o.DoubleGate {
			m.Gates = 2 * pulses
		}
		m.GateSamples = int(roundUp(ceilDiv(recordLength, binWidth), card.GATE_END_ALIGNMENT))
		m.SegmentSamples = int(channels) * (m.GateSamples + o.Card.PreTrigSamples + o.Card.PostTrigSamples)
		m.RepSamples = m.SegmentSamples * m.Gates
		m.RecordLength = float64(m.SegmentSamples) * m.BinWidth
	} else {
		m.Pulses, m.Gates = 1, 1
		m.RepSamples = int(channels * roundUp(ceilDiv(recordLength, binWidth), card.SEGMENT_ALIGNMENT))
		m.SegmentSamples = m.RepSamples
		m.RecordLength = float64(m.RepSamples) * m.BinWidth
	}
	m.RepBytes = int64(m.RepSamples) * int64(m.SampleBytes)

	m.RepsPerBuf = o.InitBufSamples / int64(m.RepSamples)
	if o.MaxRepsPerBuf > 0 && m.RepsPerBuf > o.MaxRepsPerBuf {
		m.RepsPerBuf = o.MaxRepsPerBuf
	}
	if m.RepsPerBuf < 1 {
		return nil, fmt.Errorf("acquire: a repetition of %d samples does not fit in a buffer of %d samples",
			m.RepSamples, o.InitBufSamples)
	}
	m.BufBytes = m.RepBytes * m.RepsPerBuf
	if m.Gated {
		m.TSBufBytes = int64(card.TS_BYTES_PER_GATE*m.Gates) * m.RepsPerBuf
	}
	if !mode.IsFIFO() && m.Repetitions <= 0 {
		return nil, fmt.Errorf("acquire: %s needs a finite number of repetitions", mode)
	}
	return m, nil
}

// cardSettings derives the card settings for m from base.
func (m *Measurement) cardSettings(base card.Settings) card.Settings {
	s := base
	s.SampleRateHz = m.SampleRateHz
	s.Gates = m.Gates
	s.SegmentSamples = m.SegmentSamples
	s.BufBytes = m.BufBytes
	s.TSBufBytes = m.TSBufBytes
	s.Loops, s.MemSamples = 0, 0
	switch {
	case !s.Mode.IsFIFO():
		s.MemSamples = int64(m.RepSamples) * m.Repetitions
		if !m.Gated {
			s.PostTrigSamples = m.SegmentSamples - s.PreTrigSamples
		}
	case m.Gated:
		s.Loops = m.Repetitions * int64(m.Gates)
	default:
		s.PostTrigSamples = m.SegmentSamples - s.PreTrigSamples
		s.Loops = m.Repetitions
	}
	return s
}

