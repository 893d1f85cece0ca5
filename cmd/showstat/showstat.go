package main

// Show statistics of a file-backed sample ring at repeated intervals.
//
// Usage:
//
//    showstat [flags] FILE
//
// where FILE is the --dma-file given to fastcounter.  Every interval
// the ring is read through a read-only mapping and the mean, standard
// deviation, minimum and maximum of its samples are printed, in total
// and for each of --reps equal parts.  The writer is not synchronised
// with, so a repetition being written may be seen half old, half new.

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/jbrzusto/fastcounter/card"
)

type options struct {
	size        int64
	sampleBytes int
	reps        int
	interval    time.Duration
	count       int
}

func main() {
	var o options
	fs := pflag.NewFlagSet("showstat", pflag.ExitOnError)
	fs.Int64Var(&o.size, "size", 0, "bytes to map; default is the file size")
	fs.IntVar(&o.sampleBytes, "sample-bytes", 2, "bytes per sample: 2 or 4")
	fs.IntVar(&o.reps, "reps", 1, "split the ring into this many parts")
	fs.DurationVar(&o.interval, "interval", time.Second, "time between reads")
	fs.IntVar(&o.count, "count", 0, "reads to do; 0 reads until interrupted")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: showstat [flags] FILE\n")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	if err := show(fs.Arg(0), o); err != nil {
		fmt.Fprintf(os.Stderr, "showstat: %v\n", err)
		os.Exit(1)
	}
}

func show(path string, o options) error {
	if o.sampleBytes != 2 && o.sampleBytes != 4 {
		return fmt.Errorf("bad sample size %d", o.sampleBytes)
	}
	if o.reps < 1 {
		o.reps = 1
	}
	if o.size <= 0 {
		fi, err := os.Stat(path)
		if err != nil {
			return err
		}
		o.size = fi.Size()
	}
	r, err := card.MapRegion(path, o.size, false)
	if err != nil {
		return err
	}
	defer r.Close()

	t := time.NewTicker(o.interval)
	defer t.Stop()
	for i := 0; o.count == 0 || i < o.count; i++ {
		if i > 0 {
			<-t.C
		}
		v := decode(r.Bytes(), o.sampleBytes)
		fmt.Printf("%s all %s\n", time.Now().Format("15:04:05.000"), summary(v))
		if o.reps > 1 {
			n := len(v) / o.reps
			for p := 0; p < o.reps; p++ {
				fmt.Printf("             %3d %s\n", p, summary(v[p*n:(p+1)*n]))
			}
		}
	}
	return nil
}

// decode copies the ring as little-endian signed samples.
func decode(mem []byte, sampleBytes int) []float64 {
	v := make([]float64, len(mem)/sampleBytes)
	for i := range v {
		if sampleBytes == 4 {
			v[i] = float64(int32(binary.LittleEndian.Uint32(mem[4*i:])))
		} else {
			v[i] = float64(int16(binary.LittleEndian.Uint16(mem[2*i:])))
		}
	}
	return v
}

func summary(v []float64) string {
	if len(v) == 0 {
		return "empty"
	}
	mean, std := stat.MeanStdDev(v, nil)
	return fmt.Sprintf("n=%d mean=%.3f sd=%.3f min=%g max=%g", len(v), mean, std, floats.Min(v), floats.Max(v))
}
