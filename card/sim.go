package card

import (
	"context"
	"encoding/binary"
	"sync"
	"time"
)

// Generator returns the value of sample i of repetition rep.
// 16-bit modes keep only the low 16 bits.
type Generator func(rep int64, i int) int32

// Counting is the default test pattern: each sample holds its index
// within the repetition.
func Counting(rep int64, i int) int32 {
	return int32(i)
}

// SimStatus is a snapshot of the simulated card.
type SimStatus struct {
	Running    bool
	TrigOn     bool
	TrigCount  int64 // trigger events since Start
	RepsStored int64 // repetitions written to the data ring
	Overruns   int64 // repetitions dropped because the ring was full
	DataAvail  int64 // unread bytes in the data ring
	TSAvail    int64 // unread bytes in the timestamp ring
}

// Sim is an in-memory digitizer implementing Device.  Trigger events
// are produced by calling Fire, or continuously by Run.
type Sim struct {
	mu         sync.Mutex
	gen        Generator
	settings   Settings
	configured bool
	running    bool
	trigOn     bool
	dma        bool
	extraDMA   bool
	trigCount  int64
	repsStored int64
	overruns   int64
	tsClock    uint64
	failures   map[string]uint32
	data       *simBuffer
	ts         *simBuffer
	dmaFile    *Region
}

// NewSim returns an unconfigured simulated card producing samples
// from gen, or the Counting pattern if gen is nil.
func NewSim(gen Generator) *Sim {
	if gen == nil {
		gen = Counting
	}
	return &Sim{gen: gen, failures: map[string]uint32{}}
}

// FailOn makes every later call of the named command fail with the
// given error code.  A code of ERR_OK clears the failure.  Names are
// the Device and Buffer method names, e.g. "TriggerCount".
func (s *Sim) FailOn(op string, code uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == ERR_OK {
		delete(s.failures, op)
		return
	}
	s.failures[op] = code
}

// check returns the injected failure for op, if any.
// Must hold s.mu.
func (s *Sim) check(op string) error {
	if code, ok := s.failures[op]; ok {
		return &Error{Op: op, Code: code}
	}
	return nil
}

func (s *Sim) Configure(set *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("Configure"); err != nil {
		return err
	}
	if set.RepBytes() <= 0 || set.BufBytes < set.RepBytes() {
		return &Error{Op: "Configure", Code: ERR_VALUE}
	}
	if set.Mode.IsGated() && set.TSBufBytes < set.TSRepBytes() {
		return &Error{Op: "Configure", Code: ERR_VALUE}
	}
	if err := s.release(); err != nil {
		return err
	}
	var mem []byte
	if set.DMAFile != "" {
		r, err := MapRegion(set.DMAFile, set.BufBytes, true)
		if err != nil {
			return err
		}
		s.dmaFile, mem = r, r.Bytes()
	} else {
		mem = make([]byte, set.BufBytes)
	}
	s.settings = *set
	s.data = &simBuffer{sim: s, name: "data", mem: mem}
	s.ts = nil
	if set.Mode.IsGated() {
		s.ts = &simBuffer{sim: s, name: "timestamps", mem: make([]byte, set.TSBufBytes)}
	}
	s.configured = true
	s.reset()
	return nil
}

// release unmaps file-backed DMA memory.  Must hold s.mu.
func (s *Sim) release() error {
	if s.dmaFile == nil {
		return nil
	}
	err := s.dmaFile.Close()
	s.dmaFile = nil
	return err
}

// reset returns the card to its just-configured state.  Must hold s.mu.
func (s *Sim) reset() {
	s.running, s.trigOn, s.dma, s.extraDMA = false, false, false, false
	s.trigCount, s.repsStored, s.overruns, s.tsClock = 0, 0, 0, 0
	if s.data != nil {
		s.data.written, s.data.acked = 0, 0
	}
	if s.ts != nil {
		s.ts.written, s.ts.acked = 0, 0
	}
}

// command runs the common checks of a card command.  Must hold s.mu.
func (s *Sim) command(op string) error {
	if err := s.check(op); err != nil {
		return err
	}
	if !s.configured {
		return ErrNotConfigured
	}
	return nil
}

func (s *Sim) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("Reset"); err != nil {
		return err
	}
	s.reset()
	return nil
}

// Start starts a fresh acquisition with the trigger enabled and DMA
// running.  extraDMA also starts the timestamp transfer, which gated
// modes need.
func (s *Sim) Start(extraDMA bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.command("Start"); err != nil {
		return err
	}
	if s.running {
		return &Error{Op: "Start", Code: ERR_SEQUENCE}
	}
	s.reset()
	s.running, s.trigOn, s.dma, s.extraDMA = true, true, true, extraDMA
	return nil
}

func (s *Sim) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.command("Stop"); err != nil {
		return err
	}
	s.running, s.trigOn = false, false
	return nil
}

func (s *Sim) EnableTrigger() error {
	return s.setTrigger("EnableTrigger", true)
}

func (s *Sim) DisableTrigger() error {
	return s.setTrigger("DisableTrigger", false)
}

func (s *Sim) setTrigger(op string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.command(op); err != nil {
		return err
	}
	s.trigOn = on
	return nil
}

func (s *Sim) StartDMA() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.command("StartDMA"); err != nil {
		return err
	}
	s.dma = true
	return nil
}

func (s *Sim) StopDMA() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.command("StopDMA"); err != nil {
		return err
	}
	s.dma = false
	return nil
}

func (s *Sim) ResetTimestamps() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.command("ResetTimestamps"); err != nil {
		return err
	}
	s.tsClock = 0
	return nil
}

func (s *Sim) TriggerCount() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.command("TriggerCount"); err != nil {
		return 0, err
	}
	return s.trigCount, nil
}

func (s *Sim) Data() Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil
	}
	return s.data
}

func (s *Sim) Timestamps() Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ts == nil {
		return nil
	}
	return s.ts
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.configured = false
	return s.release()
}

// Fire emulates reps repetitions' worth of trigger events.  It does
// nothing unless the card is running with its trigger enabled.  Each
// repetition counts Gates trigger events and is written to the data
// ring (with its timestamp record when gated) at the card's write
// cursor, wrapping at the end of the ring.  A repetition that does
// not fit is lost and counted as an overrun.  Fire returns the number
// of repetitions stored.
func (s *Sim) Fire(reps int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := 0
	if !s.running || !s.trigOn {
		return 0
	}
	gates := int64(s.settings.Gates)
	if gates < 1 {
		gates = 1
	}
	for ; reps > 0; reps-- {
		s.trigCount += gates
		if !s.dma || !s.data.room(s.settings.RepBytes()) ||
			(s.ts != nil && (!s.extraDMA || !s.ts.room(s.settings.TSRepBytes()))) {
			s.overruns++
			continue
		}
		s.writeRep()
		stored++
	}
	return stored
}

// writeRep writes the next repetition into the rings.  Must hold s.mu.
func (s *Sim) writeRep() {
	set := &s.settings
	n := set.RepSamples()
	sb := set.Mode.SampleBytes()
	rep := make([]byte, n*sb)
	for i := 0; i < n; i++ {
		v := s.gen(s.repsStored, i)
		if sb == 4 {
			binary.LittleEndian.PutUint32(rep[i*4:], uint32(v))
		} else {
			binary.LittleEndian.PutUint16(rep[i*2:], uint16(v))
		}
	}
	s.data.write(rep)
	if s.ts != nil {
		rec := make([]byte, set.TSRepBytes())
		for g := 0; g < set.Gates; g++ {
			off := g * TS_BYTES_PER_GATE
			rise := s.tsClock
			fall := rise + uint64(set.SegmentSamples)
			binary.LittleEndian.PutUint64(rec[off:], rise)
			binary.LittleEndian.PutUint64(rec[off+16:], fall)
			s.tsClock = fall + uint64(set.SegmentSamples)
		}
		s.ts.write(rec)
	}
	s.repsStored++
}

// Run fires one repetition every period until ctx is done.
func (s *Sim) Run(ctx context.Context, period time.Duration) error {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.Fire(1)
		}
	}
}

// Status returns a snapshot of the card.
func (s *Sim) Status() SimStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SimStatus{
		Running:    s.running,
		TrigOn:     s.trigOn,
		TrigCount:  s.trigCount,
		RepsStored: s.repsStored,
		Overruns:   s.overruns,
	}
	if s.data != nil {
		st.DataAvail = s.data.written - s.data.acked
	}
	if s.ts != nil {
		st.TSAvail = s.ts.written - s.ts.acked
	}
	return st
}

// simBuffer is one of the card's DMA rings.  Its counters are totals
// since Start; positions are taken modulo the ring size.  It is
// guarded by the owning Sim's mutex.
type simBuffer struct {
	sim     *Sim
	name    string
	mem     []byte
	written int64 // bytes written by the card
	acked   int64 // bytes returned by the host
}

func (b *simBuffer) room(n int64) bool {
	return int64(len(b.mem))-(b.written-b.acked) >= n
}

// write copies p at the write cursor, wrapping at the end of the ring.
func (b *simBuffer) write(p []byte) {
	size := int64(len(b.mem))
	pos := b.written % size
	if pos+int64(len(p)) <= size {
		copy(b.mem[pos:], p)
	} else {
		first := size - pos
		copy(b.mem[pos:], p[:first])
		copy(b.mem, p[first:])
	}
	b.written += int64(len(p))
}

func (b *simBuffer) Region() []byte {
	return b.mem
}

func (b *simBuffer) AvailUserPos() (int64, error) {
	b.sim.mu.Lock()
	defer b.sim.mu.Unlock()
	if err := b.sim.check("AvailUserPos"); err != nil {
		return 0, err
	}
	return b.acked % int64(len(b.mem)), nil
}

func (b *simBuffer) AvailUserLen() (int64, error) {
	b.sim.mu.Lock()
	defer b.sim.mu.Unlock()
	if err := b.sim.check("AvailUserLen"); err != nil {
		return 0, err
	}
	return b.written - b.acked, nil
}

func (b *simBuffer) SetAvailCardLen(n int64) error {
	b.sim.mu.Lock()
	defer b.sim.mu.Unlock()
	if err := b.sim.check("SetAvailCardLen"); err != nil {
		return err
	}
	if n < 0 || n > b.written-b.acked {
		return &Error{Op: "SetAvailCardLen", Code: ERR_VALUE}
	}
	b.acked += n
	return nil
}
