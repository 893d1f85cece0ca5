package card

import (
	"fmt"
	"os"
	"syscall"
)

// Region is DMA memory backed by a memory-mapped file, so that a
// second process can watch what the card writes.
type Region struct {
	mem     []byte   // mapped memory
	memfile *os.File // file backing the mapping
}

// MapRegion maps size bytes of the file at path, creating and
// extending the file when writable.  Sizes are rounded up to a whole
// number of pages for the mapping, but Bytes returns exactly size bytes.
func MapRegion(path string, size int64, writable bool) (r *Region, err error) {
	if size <= 0 {
		return nil, fmt.Errorf("card: cannot map %d bytes", size)
	}
	mapped := (size + PAGE_SIZE - 1) / PAGE_SIZE * PAGE_SIZE
	flag, prot := os.O_RDONLY, syscall.PROT_READ
	if writable {
		flag, prot = os.O_RDWR|os.O_CREATE, syscall.PROT_READ|syscall.PROT_WRITE
	}
	r = new(Region)
	if r.memfile, err = os.OpenFile(path, flag, 0644); err != nil {
		return nil, err
	}
	if writable {
		if err = r.memfile.Truncate(mapped); err != nil {
			goto cleanup
		}
	}
	r.mem, err = syscall.Mmap(int(r.memfile.Fd()), 0, int(mapped), prot, syscall.MAP_SHARED)
	if err != nil {
		goto cleanup
	}
	r.mem = r.mem[:size]
	return r, nil
cleanup:
	r.memfile.Close()
	return nil, fmt.Errorf("card: mapping %s: %w", path, err)
}

// Bytes is the mapped memory.
func (r *Region) Bytes() []byte {
	return r.mem
}

// Close unmaps the memory and closes the backing file.
func (r *Region) Close() error {
	if r.memfile == nil {
		return nil
	}
	err := syscall.Munmap(r.mem[:cap(r.mem)])
	r.mem = nil
	if cerr := r.memfile.Close(); err == nil {
		err = cerr
	}
	r.memfile = nil
	return err
}
