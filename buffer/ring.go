// Read repetitions out of the card's DMA ring buffers.
//
// The card writes samples into a fixed-size ring and reports the
// readable window through two counters: the byte offset of the next
// unread byte, and the number of readable bytes from there.  The
// window may run past the end of the ring and continue at offset 0.
//
// Ring is a bounds-checked view of such a buffer; every offset
// computation against card memory goes through Ring.Slices.  On top
// of it, Assembler cuts the window into whole repetitions, Correlator
// does the same for the parallel timestamp ring of gated modes, and
// Stack optionally keeps the repetitions verbatim.
package buffer

import (
	"errors"
	"fmt"

	"github.com/jbrzusto/fastcounter/card"
)

// ErrOutOfRange is returned for reads outside the ring or outside its
// readable window.
var ErrOutOfRange = errors.New("buffer: position out of range")

// Counters reports the readable window of a ring.
type Counters interface {
	AvailUserPos() (int64, error)
	AvailUserLen() (int64, error)
}

// Ring is a read-only view of memory filled by the card.
type Ring struct {
	mem []byte   // borrowed from the card; never written
	ctr Counters // the card's window counters
}

// NewRing returns a view of mem whose readable window is given by ctr.
func NewRing(mem []byte, ctr Counters) *Ring {
	return &Ring{mem: mem, ctr: ctr}
}

// View returns a Ring over a card buffer.
func View(b card.Buffer) *Ring {
	return NewRing(b.Region(), b)
}

// Cap is the size of the ring in bytes.
func (r *Ring) Cap() int64 {
	return int64(len(r.mem))
}

// Window returns the card's readable window.
func (r *Ring) Window() (pos, n int64, err error) {
	if pos, err = r.ctr.AvailUserPos(); err != nil {
		return 0, 0, err
	}
	if n, err = r.ctr.AvailUserLen(); err != nil {
		return 0, 0, err
	}
	return pos, n, nil
}

// Slices returns count bytes starting at offset without copying.  If
// the bytes run past the end of the ring, first is [offset, Cap) and
// second is the remainder from offset 0; otherwise second is empty.
// The bytes must lie inside the readable window.
func (r *Ring) Slices(offset, count int64) (first, second []byte, err error) {
	size := r.Cap()
	if offset < 0 || offset > size || count < 0 || count > size {
		return nil, nil, fmt.Errorf("%w: %d bytes at %d in ring of %d", ErrOutOfRange, count, offset, size)
	}
	if count == 0 {
		return nil, nil, nil
	}
	if offset == size {
		offset = 0
	}
	pos, n, err := r.Window()
	if err != nil {
		return nil, nil, err
	}
	if pos < 0 || pos >= size || n < 0 || n > size {
		return nil, nil, fmt.Errorf("%w: card window %d bytes at %d in ring of %d", ErrOutOfRange, n, pos, size)
	}
	if lead := (offset - pos + size) % size; lead+count > n {
		return nil, nil, fmt.Errorf("%w: %d bytes at %d outside window of %d bytes at %d", ErrOutOfRange, count, offset, n, pos)
	}
	if offset+count <= size {
		return r.mem[offset : offset+count], nil, nil
	}
	return r.mem[offset:], r.mem[:count-(size-offset)], nil
}

// Read returns a copy of count bytes starting at offset, joining the
// two parts of a read that wraps.
func (r *Ring) Read(offset, count int64) ([]byte, error) {
	first, second, err := r.Slices(offset, count)
	if err != nil {
		return nil, err
	}
	p := make([]byte, 0, count)
	p = append(p, first...)
	return append(p, second...), nil
}
