package buffer

// A Pulse is the verbatim record of one gate of one repetition, or
// of a whole repetition when the measurement is not gated.  It can be
// thought of as a graph of counts versus time since the trigger (or
// gate start), with metadata that place it in the measurement.
type Pulse struct {
	Rep     int64     // repetition number since Start
	Gate    int       // gate within the repetition; 0 when ungated
	Rising  uint64    // timestamp of the gate's rising edge; 0 when ungated
	Falling uint64    // timestamp of the gate's falling edge; 0 when ungated
	Samples []float64 // samples in this pulse; never modified once stacked
}

// Pulses are stored in a ring buffer.  With a limit of zero the
// buffer grows without bound; otherwise the oldest pulses are
// overwritten once the limit is reached.
type Stack struct {
	buf   []Pulse // ring buffer of pulses
	limit int     // capacity of buf; 0 for unbounded
	iBuff int     // location for next pulse to be written, when bounded
	n     int64   // total pulses stacked
	reps  int64   // repetitions stacked
}

// NewStack returns a Stack keeping at most limit pulses, or all of
// them if limit is 0.
func NewStack(limit int) *Stack {
	if limit < 0 {
		limit = 0
	}
	return &Stack{limit: limit}
}

// Add stacks the rows of one fetch.  rows holds gates rows per
// repetition, the first of which is repetition firstRep.  edges is
// nil for ungated measurements and otherwise has one entry per row.
func (s *Stack) Add(firstRep int64, gates int, rows [][]float64, edges *Edges) {
	if gates < 1 {
		gates = 1
	}
	for i, row := range rows {
		p := Pulse{Rep: firstRep + int64(i/gates), Gate: i % gates, Samples: row}
		if edges != nil && i < edges.Len() {
			p.Rising, p.Falling = edges.Rising[i], edges.Falling[i]
		}
		s.push(p)
	}
	s.reps += int64(len(rows) / gates)
}

func (s *Stack) push(p Pulse) {
	s.n++
	if s.limit == 0 || len(s.buf) < s.limit {
		s.buf = append(s.buf, p)
		return
	}
	if s.iBuff >= s.limit {
		s.iBuff = 0
	}
	s.buf[s.iBuff] = p
	s.iBuff++
}

// Len is the number of pulses held.
func (s *Stack) Len() int {
	return len(s.buf)
}

// Total is the number of pulses ever stacked, including overwritten ones.
func (s *Stack) Total() int64 {
	return s.n
}

// Reps is the number of repetitions ever stacked.
func (s *Stack) Reps() int64 {
	return s.reps
}

// Pulses returns the pulses held, oldest first.  Once the buffer has
// wrapped, the oldest pulses are at iBuff and the newest just before
// it, so the result joins those two runs.  The sample slices are
// shared with the stack.
func (s *Stack) Pulses() []Pulse {
	out := make([]Pulse, 0, len(s.buf))
	if s.limit != 0 && len(s.buf) == s.limit && s.iBuff > 0 {
		out = append(out, s.buf[s.iBuff:]...)
		return append(out, s.buf[:s.iBuff]...)
	}
	return append(out, s.buf...)
}
