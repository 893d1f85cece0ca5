package buffer

import (
	"encoding/binary"
	"fmt"
)

// Layout describes how repetitions are packed into a ring.  The ring
// holds exactly RepsPerBuf repetitions, so repetitions never straddle
// the wrap point partially: a read of several repetitions either is
// contiguous or splits on a repetition boundary.
type Layout struct {
	RepBytes    int64 // bytes per repetition
	RepsPerBuf  int64 // repetitions the ring holds
	SampleBytes int   // bytes per sample: 2, 4 or 8
}

// RangeError is a fetch that does not describe whole repetitions
// inside the ring.
type RangeError struct {
	UserPos    int64 // byte offset of the first repetition
	Reps       int64 // repetitions requested
	EndRep     int64 // UserPos/RepBytes + Reps
	RepsPerBuf int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("buffer: cannot fetch %d repetitions at byte %d (end repetition %d, %d per buffer)",
		e.Reps, e.UserPos, e.EndRep, e.RepsPerBuf)
}

// Unwrap lets errors.Is match ErrOutOfRange.
func (e *RangeError) Unwrap() error {
	return ErrOutOfRange
}

// Assembler cuts a ring into whole repetitions.
type Assembler struct {
	ring   *Ring
	layout Layout
}

// NewAssembler checks that ring holds exactly l.RepsPerBuf repetitions.
func NewAssembler(ring *Ring, l Layout) (*Assembler, error) {
	switch l.SampleBytes {
	case 2, 4, 8:
	default:
		return nil, fmt.Errorf("buffer: unsupported sample size %d", l.SampleBytes)
	}
	if l.RepBytes <= 0 || l.RepBytes%int64(l.SampleBytes) != 0 || l.RepsPerBuf <= 0 {
		return nil, fmt.Errorf("buffer: bad layout %+v", l)
	}
	if ring.Cap() != l.RepBytes*l.RepsPerBuf {
		return nil, fmt.Errorf("buffer: ring of %d bytes does not hold %d repetitions of %d bytes",
			ring.Cap(), l.RepsPerBuf, l.RepBytes)
	}
	return &Assembler{ring: ring, layout: l}, nil
}

// Layout returns the assembler's layout.
func (a *Assembler) Layout() Layout {
	return a.layout
}

// Ring returns the underlying view.
func (a *Assembler) Ring() *Ring {
	return a.ring
}

// Fetch returns reps repetitions starting at byte offset userPos.
// With endRep = userPos/RepBytes + reps, the read is contiguous when
// 0 < endRep <= RepsPerBuf and wraps when RepsPerBuf < endRep <
// 2*RepsPerBuf.  Any other request is a *RangeError.
func (a *Assembler) Fetch(userPos, reps int64) (Block, error) {
	l := a.layout
	endRep := int64(-1)
	if userPos >= 0 && userPos%l.RepBytes == 0 {
		endRep = userPos/l.RepBytes + reps
	}
	if reps <= 0 || reps > l.RepsPerBuf || endRep <= 0 || endRep >= 2*l.RepsPerBuf {
		return Block{}, &RangeError{UserPos: userPos, Reps: reps, EndRep: endRep, RepsPerBuf: l.RepsPerBuf}
	}
	first, second, err := a.ring.Slices(userPos, reps*l.RepBytes)
	if err != nil {
		return Block{}, err
	}
	if endRep <= l.RepsPerBuf && len(second) != 0 {
		return Block{}, &RangeError{UserPos: userPos, Reps: reps, EndRep: endRep, RepsPerBuf: l.RepsPerBuf}
	}
	return Block{
		first:       first,
		second:      second,
		reps:        int(reps),
		repSamples:  int(l.RepBytes) / l.SampleBytes,
		sampleBytes: l.SampleBytes,
	}, nil
}

// Block is a run of whole repetitions borrowed from a ring.  It is
// valid until the bytes are returned to the card.
type Block struct {
	first, second []byte
	reps          int
	repSamples    int
	sampleBytes   int
}

// Reps is the number of repetitions in the block.
func (b Block) Reps() int {
	return b.reps
}

// Len is the size of the block in bytes.
func (b Block) Len() int64 {
	return int64(len(b.first) + len(b.second))
}

// Wrapped reports whether the block straddles the end of the ring.
func (b Block) Wrapped() bool {
	return len(b.second) != 0
}

// raw returns the bytes of the block, copied only if it wraps.
func (b Block) raw() []byte {
	if len(b.second) == 0 {
		return b.first
	}
	p := make([]byte, 0, b.Len())
	p = append(p, b.first...)
	return append(p, b.second...)
}

// Samples decodes the block as little-endian signed samples.
func (b Block) Samples() []float64 {
	out := make([]float64, 0, b.reps*b.repSamples)
	for _, part := range [2][]byte{b.first, b.second} {
		switch b.sampleBytes {
		case 2:
			for i := 0; i+2 <= len(part); i += 2 {
				out = append(out, float64(int16(binary.LittleEndian.Uint16(part[i:]))))
			}
		case 4:
			for i := 0; i+4 <= len(part); i += 4 {
				out = append(out, float64(int32(binary.LittleEndian.Uint32(part[i:]))))
			}
		case 8:
			for i := 0; i+8 <= len(part); i += 8 {
				out = append(out, float64(int64(binary.LittleEndian.Uint64(part[i:]))))
			}
		}
	}
	return out
}

// Rows decodes the block as one row of samples per repetition.
func (b Block) Rows() [][]float64 {
	return split(b.Samples(), b.reps, b.repSamples)
}

// Pulses decodes a gated block as one row per gate, reps*gates rows
// in all.
func (b Block) Pulses(gates int) ([][]float64, error) {
	if gates <= 0 || b.repSamples%gates != 0 {
		return nil, fmt.Errorf("buffer: %d samples per repetition do not split into %d gates", b.repSamples, gates)
	}
	return split(b.Samples(), b.reps*gates, b.repSamples/gates), nil
}

// Uint64s decodes the block as little-endian 64-bit counters, as
// found in timestamp rings.
func (b Block) Uint64s() []uint64 {
	out := make([]uint64, 0, b.Len()/8)
	for _, part := range [2][]byte{b.first, b.second} {
		for i := 0; i+8 <= len(part); i += 8 {
			out = append(out, binary.LittleEndian.Uint64(part[i:]))
		}
	}
	return out
}

// split cuts v into n rows of width w sharing v's storage.
func split(v []float64, n, w int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = v[i*w : (i+1)*w : (i+1)*w]
	}
	return rows
}
