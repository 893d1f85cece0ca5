package buffer

import (
	"fmt"

	"github.com/jbrzusto/fastcounter/card"
)

// Edges holds the gate edge counts of a run of repetitions, one entry
// per gate in acquisition order.
type Edges struct {
	Rising  []uint64
	Falling []uint64
}

// Len is the number of gates.
func (e Edges) Len() int {
	return len(e.Rising)
}

// SplitEdges decodes raw timestamp values.  The card writes four
// values per gate: rising edge, filler, falling edge, filler.
func SplitEdges(raw []uint64) (Edges, error) {
	if len(raw)%card.TS_VALUES_PER_GATE != 0 {
		return Edges{}, fmt.Errorf("buffer: %d timestamp values is not a whole number of gates", len(raw))
	}
	n := len(raw) / card.TS_VALUES_PER_GATE
	e := Edges{Rising: make([]uint64, n), Falling: make([]uint64, n)}
	for i := 0; i < n; i++ {
		e.Rising[i] = raw[4*i]
		e.Falling[i] = raw[4*i+2]
	}
	return e, nil
}

// Correlator reads gate edges from a timestamp ring in step with the
// data ring.
type Correlator struct {
	asm   *Assembler
	gates int
}

// NewCorrelator returns a Correlator for a timestamp ring holding
// repsPerBuf repetitions of gates gates each.
func NewCorrelator(ring *Ring, gates int, repsPerBuf int64) (*Correlator, error) {
	if gates <= 0 {
		return nil, fmt.Errorf("buffer: bad gate count %d", gates)
	}
	asm, err := NewAssembler(ring, Layout{
		RepBytes:    int64(card.TS_BYTES_PER_GATE * gates),
		RepsPerBuf:  repsPerBuf,
		SampleBytes: card.TS_VALUE_BYTES,
	})
	if err != nil {
		return nil, err
	}
	return &Correlator{asm: asm, gates: gates}, nil
}

// RepBytes is the size of one repetition's timestamp record.
func (c *Correlator) RepBytes() int64 {
	return c.asm.layout.RepBytes
}

// Ring returns the underlying view.
func (c *Correlator) Ring() *Ring {
	return c.asm.ring
}

// Fetch returns the gate edges of reps repetitions starting at byte
// offset userPos of the timestamp ring.
func (c *Correlator) Fetch(userPos, reps int64) (Edges, error) {
	blk, err := c.asm.Fetch(userPos, reps)
	if err != nil {
		return Edges{}, err
	}
	return SplitEdges(blk.Uint64s())
}

// Paired is the number of repetitions for which both samples and
// timestamps are available.
func Paired(dataReps, tsReps int64) int64 {
	if tsReps < dataReps {
		return tsReps
	}
	return dataReps
}
